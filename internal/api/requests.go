package api

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"recut/internal/language"
	"recut/internal/matching"
	"recut/internal/project"
	"recut/internal/services"
	"recut/internal/timeline"
)

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	ID              string          `json:"id" validate:"omitempty,max=64,printascii,excludes=/"`
	Name            string          `json:"name" validate:"max=200"`
	SourceReference string          `json:"source_reference" validate:"required"`
	TargetLanguage  string          `json:"target_language" validate:"omitempty,max=16"`
	Targets         []TargetRequest `json:"targets" validate:"dive"`
}

// TargetRequest is one publish target in a create request.
type TargetRequest struct {
	Platform    string `json:"platform" validate:"required,max=32"`
	ScheduledAt string `json:"scheduled_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Caption     string `json:"caption" validate:"max=2200"`
}

// Project validates the request and builds the new project. A missing id is
// generated.
func (r CreateProjectRequest) Project() (*project.Project, error) {
	if err := services.ValidateStruct("project", "create", r); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = uuid.NewString()
	}
	targets := make([]project.PublishTarget, 0, len(r.Targets))
	for _, t := range r.Targets {
		at, err := time.Parse(time.RFC3339, t.ScheduledAt)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "project", "create", "scheduled_at for "+t.Platform, err)
		}
		targets = append(targets, project.PublishTarget{
			Platform:    strings.ToLower(strings.TrimSpace(t.Platform)),
			ScheduledAt: at.UTC(),
			Caption:     t.Caption,
		})
	}
	return project.New(id, r.Name, r.SourceReference, language.Normalize(r.TargetLanguage), targets)
}

// TimelineEditRequest is the body of POST /api/projects/{id}/timeline.
type TimelineEditRequest struct {
	Op        string  `json:"op" validate:"required,oneof=split merge set-start set-end resize set_start set_end"`
	Index     *int    `json:"index" validate:"required,min=0"`
	At        float64 `json:"at" validate:"min=0"`
	Start     float64 `json:"start" validate:"min=0"`
	End       float64 `json:"end" validate:"min=0"`
	Direction string  `json:"direction" validate:"omitempty,oneof=previous prev next"`
}

// Edit validates the request and converts it into a project edit.
func (r TimelineEditRequest) Edit() (project.Edit, error) {
	if err := services.ValidateStruct("timeline", "edit", r); err != nil {
		return project.Edit{}, err
	}
	kind, err := project.ParseEditKind(r.Op)
	if err != nil {
		return project.Edit{}, err
	}
	edit := project.Edit{Kind: kind, Index: *r.Index, At: r.At, Start: r.Start, End: r.End}
	if kind == project.EditMerge {
		dir, err := timeline.ParseDirection(r.Direction)
		if err != nil {
			return project.Edit{}, err
		}
		edit.Direction = dir
	}
	return edit, nil
}

// ResolveMatchRequest is the body of POST /api/projects/{id}/matches/{scene}.
type ResolveMatchRequest struct {
	EpisodeID   string   `json:"source_episode_id" validate:"required"`
	SourceStart *float64 `json:"source_start" validate:"required,min=0"`
	SourceEnd   *float64 `json:"source_end" validate:"required,gtfield=SourceStart"`
}

// Override validates the request against the library episode it names.
func (r ResolveMatchRequest) Override(sceneIndex int, episode matching.Episode) (matching.Result, error) {
	if err := services.ValidateStruct("match", "resolve", r); err != nil {
		return matching.Result{}, err
	}
	return matching.ValidateOverride(sceneIndex, episode, *r.SourceStart, *r.SourceEnd)
}

// Validate checks the request shape before the episode lookup.
func (r ResolveMatchRequest) Validate() error {
	return services.ValidateStruct("match", "resolve", r)
}

// ScriptRequest is the body of PUT /api/projects/{id}/script/{scene}.
type ScriptRequest struct {
	Text     string `json:"text" validate:"required"`
	Language string `json:"language" validate:"omitempty,max=16"`
}

// Validate checks the request shape.
func (r ScriptRequest) Validate() error {
	return services.ValidateStruct("script", "set", r)
}
