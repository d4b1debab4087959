package api

import (
	"math"
	"time"

	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/project"
)

// FromProject converts a project into its list representation.
func FromProject(p *project.Project) ProjectSummary {
	if p == nil {
		return ProjectSummary{}
	}
	summary := ProjectSummary{
		ID:             p.ID,
		Name:           p.Name,
		Stage:          string(p.Stage),
		TargetLanguage: p.TargetLanguage,
		SceneCount:     p.SceneCount(),
		Revision:       p.Revision,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
	if p.Effective().Reached(project.StageMatched) {
		summary.Gaps = p.Gaps()
		counts := p.MatchCounts()
		if len(counts) > 0 {
			summary.MatchCounts = make(map[string]int, len(counts))
			for state, n := range counts {
				summary.MatchCounts[string(state)] = n
			}
		}
	}
	if p.Failure != nil {
		summary.Failure = &FailureView{
			Step:     string(p.Failure.Step),
			LastGood: string(p.Failure.LastGood),
			Reason:   p.Failure.Reason,
			At:       formatTime(p.Failure.At),
		}
	}
	return summary
}

// FromProjects converts a list, preserving order.
func FromProjects(projects []*project.Project) []ProjectSummary {
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, FromProject(p))
	}
	return out
}

// DetailFromProject converts a project into its full view.
func DetailFromProject(p *project.Project) ProjectDetail {
	if p == nil {
		return ProjectDetail{}
	}
	detail := ProjectDetail{
		ProjectSummary:  FromProject(p),
		SourceReference: p.SourceReference,
		VideoPath:       p.VideoPath,
		RenderPath:      p.RenderPath,
		Duration:        roundSeconds(p.Timeline.Duration()),
		Scenes:          make([]SceneView, 0, p.SceneCount()),
		Script:          p.ScriptSummary(),
	}
	for _, scene := range p.Timeline.Scenes() {
		view := SceneView{
			Index:    scene.Index,
			Start:    roundSeconds(scene.Start),
			End:      roundSeconds(scene.End),
			Duration: roundSeconds(scene.Duration()),
		}
		if m, ok := p.Match(scene.Index); ok {
			view.MatchState = string(m.State)
			view.Candidates = append([]matching.Candidate(nil), m.Candidates...)
		}
		if seg, ok := p.TranscriptSegment(scene.Index); ok {
			view.Transcript = seg.Text
		}
		if entry, ok := p.ScriptEntry(scene.Index); ok {
			view.Script = &ScriptView{
				Text:              entry.Text,
				Language:          entry.Language,
				EstimatedDuration: roundSeconds(entry.EstimatedDuration),
				OriginalDuration:  roundSeconds(entry.OriginalDuration),
				SpeedRatio:        entry.SpeedRatio,
				Classification:    string(entry.Classification),
			}
		}
		detail.Scenes = append(detail.Scenes, view)
	}

	pending := make(map[string]bool)
	for _, t := range p.PendingTargets() {
		pending[t.Platform] = true
	}
	for _, t := range p.Targets {
		detail.Targets = append(detail.Targets, TargetView{
			Platform:    t.Platform,
			ScheduledAt: formatTime(t.ScheduledAt),
			Caption:     t.Caption,
			Pending:     pending[t.Platform],
		})
	}
	for _, d := range p.Dispatches {
		detail.Dispatches = append(detail.Dispatches, DispatchView{
			ID:       d.ID,
			Platform: d.Platform,
			Status:   string(d.Status),
			Detail:   d.Detail,
			At:       formatTime(d.At),
		})
	}
	return detail
}

// FromLogEvents converts hub events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			ProjectID: evt.ProjectID,
			Step:      evt.Step,
			Fields:    evt.Fields,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func roundSeconds(v float64) float64 {
	return math.Round(v*1000) / 1000
}
