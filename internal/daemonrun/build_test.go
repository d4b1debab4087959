package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"recut/internal/config"
	"recut/internal/pipeline"
	"recut/internal/project"
	"recut/internal/testsupport"
)

func readiness(t *testing.T, runner *pipeline.Runner) map[project.Step]bool {
	t.Helper()
	out := make(map[project.Step]bool)
	for _, h := range runner.Health() {
		out[h.Step] = h.Ready
	}
	return out
}

func TestBuildWithoutManifestDisablesMatching(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.LibraryManifest = filepath.Join(t.TempDir(), "missing.yaml")

	rt, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	ready := readiness(t, rt.Runner)
	if ready[project.StepMatch] {
		t.Fatalf("expected match step unready without a manifest")
	}
	if ready[project.StepDownload] {
		t.Fatalf("expected download step unready without a command")
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		t.Fatalf("expected database at %s: %v", cfg.DatabasePath(), err)
	}
}

func TestBuildWiresConfiguredCommands(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Commands.Download = []string{testsupport.WriteCollaborator(t, t.TempDir(), "recut-download")}

	rt, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer rt.Close()

	if !readiness(t, rt.Runner)[project.StepDownload] {
		t.Fatalf("expected download step ready with a stubbed command")
	}

	p, err := project.New("p1", "clip", "https://example.com/video", "en", nil)
	if err != nil {
		t.Fatalf("project.New: %v", err)
	}
	ctx := context.Background()
	if err := rt.Runner.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := rt.Store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Stage != project.StageCreated {
		t.Fatalf("stage = %s, want %s", got.Stage, project.StageCreated)
	}
}

func TestRatesAndPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Reconcile.TempoFactor = 1.25
	cfg.Reconcile.WPM = map[string]float64{"EN": 100}
	rates := Rates(cfg.Reconcile)
	if rates.Tempo != 1.25 {
		t.Fatalf("tempo = %v, want 1.25", rates.Tempo)
	}
	if rates.PerMinute["en"] != 100 {
		t.Fatalf("en rate = %v, want 100", rates.PerMinute["en"])
	}

	cfg.Matching.HighThreshold = 0.95
	if got := Policy(cfg.Matching).HighThreshold; got != 0.95 {
		t.Fatalf("high threshold = %v, want 0.95", got)
	}
}

func TestReadPID(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	if pid := ReadPID(&cfg); pid != 0 {
		t.Fatalf("expected 0 without a pid file, got %d", pid)
	}
	if err := writePIDFile(PIDPath(&cfg)); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	if pid := ReadPID(&cfg); pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
}
