package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"recut/internal/api"
)

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func joinIndices(values []int) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func buildProjectListRows(projects []api.ProjectSummary) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			p.ID,
			p.Name,
			p.Stage,
			strconv.Itoa(p.SceneCount),
			joinIndices(p.Gaps),
			p.UpdatedAt,
		})
	}
	return rows
}

func formatMatchCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func renderProjectDetail(out io.Writer, d api.ProjectDetail, colorize bool) {
	printLines(out, renderSectionHeader("Project "+d.ID, colorize)...)
	fmt.Fprintf(out, "Name:        %s\n", d.Name)
	fmt.Fprintf(out, "Stage:       %s\n", d.Stage)
	fmt.Fprintf(out, "Source:      %s\n", d.SourceReference)
	if d.TargetLanguage != "" {
		fmt.Fprintf(out, "Language:    %s\n", d.TargetLanguage)
	}
	if d.VideoPath != "" {
		fmt.Fprintf(out, "Video:       %s (%ss)\n", d.VideoPath, formatSeconds(d.Duration))
	}
	if d.RenderPath != "" {
		fmt.Fprintf(out, "Render:      %s\n", d.RenderPath)
	}
	fmt.Fprintf(out, "Revision:    %d\n", d.Revision)
	if d.Failure != nil {
		line := renderStatusLine("Failure", statusError,
			fmt.Sprintf("%s failed (last good %s): %s", d.Failure.Step, d.Failure.LastGood, d.Failure.Reason), colorize)
		fmt.Fprintln(out, strings.TrimSpace(line))
	}
	if len(d.MatchCounts) > 0 {
		fmt.Fprintf(out, "Matches:     %s\n", formatMatchCounts(d.MatchCounts))
		fmt.Fprintf(out, "Gaps:        %s\n", joinIndices(d.Gaps))
	}

	if len(d.Scenes) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable(sceneColumns, buildSceneRows(d.Scenes)))
	}

	if len(d.Targets) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(d.Targets))
		for _, t := range d.Targets {
			rows = append(rows, []string{t.Platform, t.ScheduledAt, yesNo(t.Pending)})
		}
		fmt.Fprint(out, renderTable(targetColumns, rows))
	}
	if len(d.Dispatches) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(d.Dispatches))
		for _, dispatch := range d.Dispatches {
			rows = append(rows, []string{dispatch.Platform, dispatch.Status, dispatch.At, dispatch.Detail})
		}
		fmt.Fprint(out, renderTable(dispatchColumns, rows))
	}
}

func buildSceneRows(scenes []api.SceneView) [][]string {
	rows := make([][]string, 0, len(scenes))
	for _, s := range scenes {
		state := s.MatchState
		if state == "" {
			state = "-"
		}
		source := "-"
		if len(s.Candidates) > 0 {
			top := s.Candidates[0]
			source = fmt.Sprintf("%s %s-%s", top.EpisodeID, formatSeconds(top.SourceStart), formatSeconds(top.SourceEnd))
		}
		script := "-"
		if s.Script != nil {
			script = s.Script.Classification
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			formatSeconds(s.Start),
			formatSeconds(s.End),
			formatSeconds(s.Duration),
			state,
			source,
			script,
		})
	}
	return rows
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
