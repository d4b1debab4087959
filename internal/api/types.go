package api

import (
	"recut/internal/matching"
	"recut/internal/pipeline"
	"recut/internal/reconcile"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ProjectSummary describes a project in list views.
type ProjectSummary struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Stage          string         `json:"stage"`
	TargetLanguage string         `json:"target_language,omitempty"`
	SceneCount     int            `json:"scene_count"`
	Gaps           []int          `json:"gaps,omitempty"`
	MatchCounts    map[string]int `json:"match_counts,omitempty"`
	Failure        *FailureView   `json:"failure,omitempty"`
	Revision       int64          `json:"revision"`
	CreatedAt      string         `json:"created_at,omitempty"`
	UpdatedAt      string         `json:"updated_at,omitempty"`
}

// FailureView explains why a project is failed.
type FailureView struct {
	Step     string `json:"step"`
	LastGood string `json:"last_good"`
	Reason   string `json:"reason"`
	At       string `json:"at,omitempty"`
}

// ProjectDetail is the full project view.
type ProjectDetail struct {
	ProjectSummary
	SourceReference string            `json:"source_reference"`
	VideoPath       string            `json:"video_path,omitempty"`
	RenderPath      string            `json:"render_path,omitempty"`
	Duration        float64           `json:"duration"`
	Scenes          []SceneView       `json:"scenes"`
	Script          reconcile.Summary `json:"script_summary"`
	Targets         []TargetView      `json:"targets,omitempty"`
	Dispatches      []DispatchView    `json:"dispatches,omitempty"`
}

// SceneView is one scene with everything attached to it.
type SceneView struct {
	Index      int                  `json:"index"`
	Start      float64              `json:"start_time"`
	End        float64              `json:"end_time"`
	Duration   float64              `json:"duration"`
	MatchState string               `json:"match_state,omitempty"`
	Candidates []matching.Candidate `json:"candidates,omitempty"`
	Transcript string               `json:"transcript,omitempty"`
	Script     *ScriptView          `json:"script,omitempty"`
}

// ScriptView is a scene's narration with its timing verdict.
type ScriptView struct {
	Text              string  `json:"text"`
	Language          string  `json:"language"`
	EstimatedDuration float64 `json:"estimated_duration"`
	OriginalDuration  float64 `json:"original_duration"`
	SpeedRatio        float64 `json:"speed_ratio"`
	Classification    string  `json:"classification"`
}

// TargetView is a publish target and whether it still needs a dispatch.
type TargetView struct {
	Platform    string `json:"platform"`
	ScheduledAt string `json:"scheduled_at"`
	Caption     string `json:"caption,omitempty"`
	Pending     bool   `json:"pending"`
}

// DispatchView is one recorded hand-off.
type DispatchView struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	At       string `json:"at"`
}

// ProjectListResponse wraps the project list.
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StatusResponse aggregates daemon runtime information for API consumers.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockPath     string             `json:"lock_path"`
	Stages       map[string]int     `json:"stages"`
	Active       []pipeline.Task    `json:"active,omitempty"`
	Steps        []pipeline.Health  `json:"steps"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// LogEvent is a structured log line for live tailing.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	Step      string            `json:"step,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is one page of log events; Next is the cursor for the
// following request.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
