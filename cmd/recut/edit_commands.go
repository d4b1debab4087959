package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"recut/internal/api"
	"recut/internal/daemonrun"
	"recut/internal/matching"
	"recut/internal/project"
	"recut/internal/reconcile"
	"recut/internal/services"
)

func parseIndex(raw string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 {
		return 0, services.Wrap(services.ErrValidation, "cli", "args", fmt.Sprintf("scene %q is not an index", raw), nil)
	}
	return idx, nil
}

func parseTime(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "cli", "args", fmt.Sprintf("%q is not a time in seconds", raw), nil)
	}
	return v, nil
}

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	timelineCmd := &cobra.Command{
		Use:   "timeline",
		Short: "Edit scene boundaries",
	}

	timelineCmd.AddCommand(newTimelineEditCommand(ctx, "split <project> <scene> <at>", "Split a scene at a time", 3,
		func(req *api.TimelineEditRequest, args []string) (err error) {
			req.At, err = parseTime(args[2])
			return err
		}))
	var direction string
	merge := newTimelineEditCommand(ctx, "merge <project> <scene>", "Merge a scene into a neighbour", 2,
		func(req *api.TimelineEditRequest, _ []string) error {
			req.Direction = direction
			return nil
		})
	merge.Flags().StringVar(&direction, "direction", "next", "Neighbour to absorb: previous or next")
	timelineCmd.AddCommand(merge)
	timelineCmd.AddCommand(newTimelineEditCommand(ctx, "set-start <project> <scene> <time>", "Move a scene's start", 3,
		func(req *api.TimelineEditRequest, args []string) (err error) {
			req.At, err = parseTime(args[2])
			return err
		}))
	timelineCmd.AddCommand(newTimelineEditCommand(ctx, "set-end <project> <scene> <time>", "Move a scene's end", 3,
		func(req *api.TimelineEditRequest, args []string) (err error) {
			req.At, err = parseTime(args[2])
			return err
		}))
	timelineCmd.AddCommand(newTimelineEditCommand(ctx, "resize <project> <scene> <start> <end>", "Move both boundaries of a scene", 4,
		func(req *api.TimelineEditRequest, args []string) (err error) {
			if req.Start, err = parseTime(args[2]); err != nil {
				return err
			}
			req.End, err = parseTime(args[3])
			return err
		}))

	return timelineCmd
}

func newTimelineEditCommand(ctx *commandContext, use, short string, nargs int, fill func(*api.TimelineEditRequest, []string) error) *cobra.Command {
	op := strings.Fields(use)[0]
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			req := api.TimelineEditRequest{Op: op, Index: &idx}
			if fill != nil {
				if err := fill(&req, args); err != nil {
					return err
				}
			}
			edit, err := req.Edit()
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				p, err := rt.Runner.Mutate(cmd.Context(), args[0], func(p *project.Project) error {
					_, err := p.ApplyEdit(edit)
					return err
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.DetailFromProject(p))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %s to scene %d; project %s now has %d scenes (stage %s)\n",
					op, idx, p.ID, p.SceneCount(), p.Stage)
				return nil
			})
		},
	}
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Resolve source matches",
	}
	matchCmd.AddCommand(newMatchResolveCommand(ctx))
	return matchCmd
}

func newMatchResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <project> <scene> <episode> <source-start> <source-end>",
		Short: "Assign a scene to a source window by hand",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			start, err := parseTime(args[3])
			if err != nil {
				return err
			}
			end, err := parseTime(args[4])
			if err != nil {
				return err
			}
			req := api.ResolveMatchRequest{EpisodeID: args[2], SourceStart: &start, SourceEnd: &end}
			if err := req.Validate(); err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				library := rt.Runner.Library()
				if library == nil {
					return services.Wrap(services.ErrConfiguration, "match", "resolve", "source library not configured", nil)
				}
				episode, err := library.Episode(cmd.Context(), req.EpisodeID)
				if err != nil {
					return err
				}
				result, err := req.Override(idx, episode)
				if err != nil {
					return err
				}
				p, err := rt.Runner.Mutate(cmd.Context(), args[0], func(p *project.Project) error {
					return p.ResolveGap(result)
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.DetailFromProject(p))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scene %d marked %s from %s; remaining gaps: %s\n",
					idx, matching.ManuallyOverridden, episode.ID, joinIndices(p.Gaps()))
				return nil
			})
		},
	}
}

func newScriptCommand(ctx *commandContext) *cobra.Command {
	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Edit narration and review timing",
	}
	scriptCmd.AddCommand(newScriptSetCommand(ctx))
	scriptCmd.AddCommand(newScriptReportCommand(ctx))
	return scriptCmd
}

func newScriptSetCommand(ctx *commandContext) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "set <project> <scene> <text>",
		Short: "Replace a scene's narration",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			req := api.ScriptRequest{Text: args[2], Language: lang}
			if err := req.Validate(); err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				var entry project.ScriptEntry
				p, err := rt.Runner.Mutate(cmd.Context(), args[0], func(p *project.Project) error {
					var err error
					entry, err = p.SetScript(idx, req.Text, req.Language, rt.Runner.Estimator())
					return err
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.DetailFromProject(p))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, scriptVerdictLine(entry, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Narration language (defaults to the project's target language)")
	return cmd
}

func newScriptReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report <project>",
		Short: "Show estimated narration timing per scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				p, err := rt.Runner.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				detail := api.DetailFromProject(p)
				if ctx.jsonOutput() {
					return writeJSON(cmd, struct {
						Summary reconcile.Summary `json:"summary"`
						Scenes  []api.SceneView   `json:"scenes"`
					}{detail.Script, detail.Scenes})
				}
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(detail.Scenes))
				for _, s := range detail.Scenes {
					if s.Script == nil {
						rows = append(rows, []string{strconv.Itoa(s.Index), formatSeconds(s.Duration), "-", "-", "missing", ""})
						continue
					}
					rows = append(rows, []string{
						strconv.Itoa(s.Index),
						formatSeconds(s.Script.OriginalDuration),
						formatSeconds(s.Script.EstimatedDuration),
						strconv.FormatFloat(s.Script.SpeedRatio, 'f', 2, 64),
						s.Script.Classification,
						truncate(s.Script.Text, 40),
					})
				}
				if len(rows) > 0 {
					fmt.Fprint(out, renderTable(scriptColumns, rows))
				}
				sum := detail.Script
				fmt.Fprintf(out, "%d scripted: %d acceptable, %d caution, %d unacceptable; flagged: %s\n",
					sum.Total, sum.Acceptable, sum.Caution, sum.Unacceptable, joinIndices(sum.Flagged))
				return nil
			})
		},
	}
}

func scriptVerdictLine(a project.ScriptEntry, colorize bool) string {
	kind := statusOK
	switch a.Classification {
	case reconcile.Caution:
		kind = statusWarn
	case reconcile.Unacceptable:
		kind = statusError
	}
	msg := fmt.Sprintf("%s (estimated %ss for %ss, ratio %.2f)",
		a.Classification, formatSeconds(a.EstimatedDuration), formatSeconds(a.OriginalDuration), a.SpeedRatio)
	return strings.TrimSpace(renderStatusLine(fmt.Sprintf("Scene %d", a.SceneIndex), kind, msg, colorize))
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
