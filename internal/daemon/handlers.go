package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recut/internal/api"
	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
)

func projectContext(r *http.Request) (context.Context, string) {
	id := strings.TrimSpace(r.PathValue("id"))
	return services.WithProjectID(r.Context(), id), id
}

func sceneIndex(r *http.Request) (int, error) {
	raw := r.PathValue("scene")
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "path", fmt.Sprintf("scene %q is not an index", raw), nil)
	}
	return idx, nil
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.daemon.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stage := strings.TrimSpace(r.URL.Query().Get("stage"))
	if stage != "" {
		filtered := projects[:0]
		for _, p := range projects {
			if strings.EqualFold(string(p.Stage), stage) {
				filtered = append(filtered, p)
			}
		}
		projects = filtered
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: api.FromProjects(projects)})
}

func (s *apiServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProjectRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := req.Project()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.daemon.runner.Create(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/projects/"+p.ID)
	s.writeJSON(w, http.StatusCreated, api.DetailFromProject(p))
}

func (s *apiServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	p, err := s.daemon.runner.Get(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DetailFromProject(p))
}

func (s *apiServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	if err := s.daemon.runner.Delete(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleTimelineEdit(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	var req api.TimelineEditRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	edit, err := req.Edit()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.daemon.runner.Mutate(ctx, id, func(p *project.Project) error {
		_, err := p.ApplyEdit(edit)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.WithContext(ctx, s.logger).Info("timeline edited",
		logging.String(logging.FieldEventType, "timeline_edit"),
		logging.String("op", string(edit.Kind)),
		logging.Int(logging.FieldSceneIndex, edit.Index),
		logging.Int("scene_count", p.SceneCount()),
	)
	s.writeJSON(w, http.StatusOK, api.DetailFromProject(p))
}

func (s *apiServer) handleResolveMatch(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	idx, err := sceneIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.ResolveMatchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	library := s.daemon.runner.Library()
	if library == nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "match", "resolve", "source library not configured", nil))
		return
	}
	episode, err := library.Episode(ctx, req.EpisodeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := req.Override(idx, episode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.daemon.runner.Mutate(ctx, id, func(p *project.Project) error {
		return p.ResolveGap(result)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.WithContext(ctx, s.logger).Info("scene resolved manually", logging.Args(append(
		logging.MatchDecision(idx, string(matching.ManuallyOverridden), "operator override"),
		logging.String("source_episode_id", episode.ID),
	)...)...)
	s.writeJSON(w, http.StatusOK, api.DetailFromProject(p))
}

func (s *apiServer) handleSetScript(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	idx, err := sceneIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req api.ScriptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.daemon.runner.Mutate(ctx, id, func(p *project.Project) error {
		_, err := p.SetScript(idx, req.Text, req.Language, s.daemon.runner.Estimator())
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DetailFromProject(p))
}

func (s *apiServer) handleRunStep(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	step, err := project.ParseStep(r.PathValue("step"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stream, err := s.daemon.runner.Start(ctx, id, step)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamEvents(w, r, stream)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	stream, err := s.daemon.runner.Retry(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamEvents(w, r, stream)
}

// streamEvents writes the stream as NDJSON. A client that goes away cancels
// the request context and with it the step.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, stream *progress.Stream) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	enc := progress.NewEncoder(w)
	err := stream.Drain(enc.Encode)
	if err != nil && !services.IsAborted(err) {
		logging.WithContext(r.Context(), s.logger).Debug("step stream ended with error", logging.Error(err))
	}
}

func (s *apiServer) handleCancelStep(w http.ResponseWriter, r *http.Request) {
	_, id := projectContext(r)
	task, running := s.daemon.runner.Running(id)
	if !running || !s.daemon.runner.Cancel(id) {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "cancel", "no step running for "+id, nil))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"cancelled": string(task.Step)})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: []api.LogEvent{}})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")
	projectID := strings.TrimSpace(query.Get("project"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		fetched, cursor, err := hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !services.IsAborted(err) && r.Context().Err() == nil {
			s.writeError(w, r, err)
			return
		}
		events, next = fetched, cursor
	}
	if projectID != "" {
		events = logging.ForProject(events, projectID)
	}

	converted := api.FromLogEvents(events)
	filtered := make([]api.LogEvent, 0, len(converted))
	for _, evt := range converted {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}
