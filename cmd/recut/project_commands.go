package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recut/internal/api"
	"recut/internal/daemonrun"
	"recut/internal/project"
	"recut/internal/services"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Create, inspect, and delete projects",
	}

	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectDeleteCommand(ctx))

	return projectCmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var stageFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter project.Stage
			if s := strings.TrimSpace(stageFilter); s != "" {
				parsed, ok := project.ParseStage(s)
				if !ok {
					return fmt.Errorf("unknown stage %q", s)
				}
				filter = parsed
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				projects, err := rt.Store.List(cmd.Context())
				if err != nil {
					return err
				}
				if filter != "" {
					kept := projects[:0]
					for _, p := range projects {
						if p.Stage == filter {
							kept = append(kept, p)
						}
					}
					projects = kept
				}
				summaries := api.FromProjects(projects)
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.ProjectListResponse{Projects: summaries})
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(projectListColumns, buildProjectListRows(summaries)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "Only list projects in this stage")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project with its scenes, matches, and script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				p, err := rt.Runner.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.printDetail(cmd, p)
			})
		},
	}
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		id       string
		name     string
		lang     string
		targets  []string
		captions []string
	)

	cmd := &cobra.Command{
		Use:   "create <source-reference>",
		Short: "Create a project from a source video reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateProjectRequest{
				ID:              id,
				Name:            name,
				SourceReference: args[0],
				TargetLanguage:  lang,
			}
			parsed, err := parseTargets(targets, captions)
			if err != nil {
				return err
			}
			req.Targets = parsed
			p, err := req.Project()
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				if err := rt.Runner.Create(cmd.Context(), p); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.DetailFromProject(p))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s\n", p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Project id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&lang, "lang", "", "Target narration language (ISO 639-1)")
	cmd.Flags().StringArrayVar(&targets, "target", nil, "Publish target as platform=RFC3339 time (repeatable)")
	cmd.Flags().StringArrayVar(&captions, "caption", nil, "Caption for the target at the same position (repeatable)")
	return cmd
}

// parseTargets pairs each platform=time flag with the caption at the same
// position, if any.
func parseTargets(targets, captions []string) ([]api.TargetRequest, error) {
	if len(captions) > len(targets) {
		return nil, services.Wrap(services.ErrValidation, "cli", "create", "more --caption values than --target values", nil)
	}
	out := make([]api.TargetRequest, 0, len(targets))
	for i, raw := range targets {
		platform, at, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(platform) == "" || strings.TrimSpace(at) == "" {
			return nil, services.Wrap(services.ErrValidation, "cli", "create", fmt.Sprintf("target %q must be platform=time", raw), nil)
		}
		req := api.TargetRequest{Platform: strings.TrimSpace(platform), ScheduledAt: strings.TrimSpace(at)}
		if i < len(captions) {
			req.Caption = captions[i]
		}
		out = append(out, req)
	}
	return out, nil
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project>",
		Short: "Delete a project and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				if err := rt.Runner.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *commandContext) printDetail(cmd *cobra.Command, p *project.Project) error {
	detail := api.DetailFromProject(p)
	if c.jsonOutput() {
		return writeJSON(cmd, detail)
	}
	out := cmd.OutOrStdout()
	renderProjectDetail(out, detail, shouldColorize(out))
	return nil
}
