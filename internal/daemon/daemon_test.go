package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recut/internal/api"
	"recut/internal/config"
	"recut/internal/daemon"
	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/pipeline"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
	"recut/internal/testsupport"
	"recut/internal/timeline"
)

type stubDownloader struct{}

func (stubDownloader) Download(_ context.Context, projectID, _, workDir string, report progress.ReportFunc) (string, error) {
	if err := report(40, "fetching"); err != nil {
		return "", err
	}
	return workDir + "/" + projectID + ".mp4", nil
}

type stubDetector struct{}

func (stubDetector) Detect(context.Context, string, progress.ReportFunc) ([]timeline.Scene, float64, error) {
	return []timeline.Scene{{Index: 0, Start: 0, End: 6}, {Index: 1, Start: 6, End: 10}}, 10, nil
}

type stubLibrary struct{}

func (stubLibrary) Episodes(context.Context) ([]matching.Episode, error) {
	return []matching.Episode{{ID: "s01e01", Duration: 1200}}, nil
}

func (stubLibrary) Episode(_ context.Context, id string) (matching.Episode, error) {
	if id != "s01e01" {
		return matching.Episode{}, services.Wrap(services.ErrNotFound, "library", "episode", id, nil)
	}
	return matching.Episode{ID: id, Duration: 1200}, nil
}

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *config.Config, *logging.StreamHub) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	runner, err := pipeline.New(st, pipeline.Collaborators{
		Downloader: stubDownloader{},
		Detector:   stubDetector{},
		Library:    stubLibrary{},
	}, pipeline.WithWorkDir(cfg.ProjectWorkDir))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	hub := logging.NewStreamHub(64)
	d, err := daemon.New(cfg, st, runner, logging.NewNop(), daemon.WithLogStream(hub))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, cfg, hub
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func runStep(t *testing.T, url string) ([]progress.Event, progress.Event) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events, last, ok, err := progress.Collect(resp.Body)
	if err != nil || !ok {
		t.Fatalf("collect stream: ok=%v err=%v", ok, err)
	}
	return events, last
}

func TestDaemonStartStop(t *testing.T) {
	d, cfg, _ := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}
	if d.Addr() == "" {
		t.Fatal("expected a listen address")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	st := testsupport.MustOpenStore(t, cfg)
	runner, err := pipeline.New(st, pipeline.Collaborators{})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	other, err := daemon.New(cfg, st, runner, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention, got %v", err)
	}

	d.Stop()
	status, _ = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestAPIProjectLifecycle(t *testing.T) {
	d, _, _ := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()
	client := srv.Client()

	var created api.ProjectDetail
	code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", api.CreateProjectRequest{
		ID:              "clip-1",
		SourceReference: "https://example.com/clip.mp4",
		TargetLanguage:  "en",
	}, &created)
	if code != http.StatusCreated || created.ID != "clip-1" || created.Stage != string(project.StageCreated) {
		t.Fatalf("create: %d %+v", code, created)
	}

	var list api.ProjectListResponse
	if code := doJSON(t, client, http.MethodGet, srv.URL+"/api/projects", nil, &list); code != http.StatusOK || len(list.Projects) != 1 {
		t.Fatalf("list: %d %+v", code, list)
	}

	events, last := runStep(t, srv.URL+"/api/projects/clip-1/steps/download")
	if len(events) != 2 || last.Status != progress.StatusComplete {
		t.Fatalf("unexpected download stream %+v", events)
	}
	if _, last = runStep(t, srv.URL+"/api/projects/clip-1/steps/detect"); last.Status != progress.StatusComplete {
		t.Fatalf("detect failed: %+v", last)
	}

	idx := 0
	var edited api.ProjectDetail
	code = doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/clip-1/timeline",
		api.TimelineEditRequest{Op: "split", Index: &idx, At: 2}, &edited)
	if code != http.StatusOK || len(edited.Scenes) != 3 {
		t.Fatalf("split: %d %+v", code, edited.Scenes)
	}
	if edited.Scenes[1].Start != 2 || edited.Scenes[1].End != 6 {
		t.Fatalf("unexpected split result %+v", edited.Scenes)
	}

	var errResp api.ErrorResponse
	code = doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/clip-1/timeline",
		api.TimelineEditRequest{Op: "set-end", Index: &idx, At: 50}, &errResp)
	if code != http.StatusBadRequest || errResp.Error == "" {
		t.Fatalf("invalid edit: %d %+v", code, errResp)
	}

	if code := doJSON(t, client, http.MethodDelete, srv.URL+"/api/projects/clip-1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code := doJSON(t, client, http.MethodGet, srv.URL+"/api/projects/clip-1", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", code)
	}
}

func TestAPIStepErrors(t *testing.T) {
	d, _, _ := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", api.CreateProjectRequest{ID: "p", SourceReference: "v"}, nil)

	var errResp api.ErrorResponse
	if code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/p/steps/transcribe", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("out of order step: %d %+v", code, errResp)
	}
	if code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/p/steps/encode", nil, &errResp); code != http.StatusBadRequest {
		t.Fatalf("unknown step: %d %+v", code, errResp)
	}
	if code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/missing/steps/download", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("missing project: %d %+v", code, errResp)
	}
	if code := doJSON(t, client, http.MethodDelete, srv.URL+"/api/projects/p/steps", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("cancel with nothing running: %d %+v", code, errResp)
	}
	if code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/p/retry", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("retry of a healthy project: %d %+v", code, errResp)
	}
	if code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", map[string]any{"source_reference": "v", "bogus": 1}, &errResp); code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d %+v", code, errResp)
	}
}

func TestAPIResolveMatchBeforeMatchingConflicts(t *testing.T) {
	d, _, _ := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/api/projects", api.CreateProjectRequest{ID: "p", SourceReference: "v"}, nil)
	runStep(t, srv.URL+"/api/projects/p/steps/download")
	runStep(t, srv.URL+"/api/projects/p/steps/detect")

	start, end := 10.0, 16.0
	var errResp api.ErrorResponse
	code := doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/p/matches/0",
		api.ResolveMatchRequest{EpisodeID: "s01e01", SourceStart: &start, SourceEnd: &end}, &errResp)
	if code != http.StatusConflict {
		t.Fatalf("resolve before matching: %d %+v", code, errResp)
	}
	code = doJSON(t, client, http.MethodPost, srv.URL+"/api/projects/p/matches/0",
		api.ResolveMatchRequest{EpisodeID: "nope", SourceStart: &start, SourceEnd: &end}, &errResp)
	if code != http.StatusNotFound {
		t.Fatalf("unknown episode: %d %+v", code, errResp)
	}
	code = doJSON(t, client, http.MethodPut, srv.URL+"/api/projects/p/script/0",
		api.ScriptRequest{Text: "hello"}, &errResp)
	if code != http.StatusConflict {
		t.Fatalf("script before restructure: %d %+v", code, errResp)
	}
}

func TestAPIAuth(t *testing.T) {
	d, _, _ := newDaemon(t, testsupport.WithToken("s3cret"))
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/projects")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/projects", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestAPILogs(t *testing.T) {
	d, _, hub := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	now := time.Now().UTC()
	hub.Publish(logging.LogEvent{Timestamp: now, Level: "INFO", Message: "stage transition", Component: "pipeline", ProjectID: "a"})
	hub.Publish(logging.LogEvent{Timestamp: now, Level: "INFO", Message: "api request", Component: "api-server"})
	hub.Publish(logging.LogEvent{Timestamp: now, Level: "WARN", Message: "step failed", Component: "pipeline", ProjectID: "b"})

	var page api.LogStreamResponse
	if code := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/logs?tail=1", nil, &page); code != http.StatusOK || len(page.Events) != 3 {
		t.Fatalf("tail: %d %+v", code, page)
	}
	if code := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/logs?project=b", nil, &page); code != http.StatusOK || len(page.Events) != 1 || page.Events[0].Message != "step failed" {
		t.Fatalf("project filter: %d %+v", code, page)
	}
	if code := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/logs?component=pipeline&since=1", nil, &page); code != http.StatusOK || len(page.Events) != 1 {
		t.Fatalf("component filter: %d %+v", code, page)
	}
	if page.Next == 0 {
		t.Fatal("expected a cursor")
	}
}
