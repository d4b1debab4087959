package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"recut/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "library.yaml")
	if err := os.WriteFile(f, []byte("episodes: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckFileReadable("manifest", f); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckFileReadable("manifest", dir); result.Passed {
		t.Fatal("expected failure for directory")
	}
	if result := CheckFileReadable("manifest", filepath.Join(dir, "missing.yaml")); result.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestCheckWebhook(t *testing.T) {
	tests := []struct {
		name   string
		status int
		passed bool
	}{
		{name: "ok", status: http.StatusOK, passed: true},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, passed: true},
		{name: "server error", status: http.StatusBadGateway, passed: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			result := CheckWebhook(context.Background(), "hook", srv.URL)
			if result.Passed != tc.passed {
				t.Fatalf("passed = %v, want %v (detail %q)", result.Passed, tc.passed, result.Detail)
			}
		})
	}
}

func TestCheckWebhook_MissingURL(t *testing.T) {
	if result := CheckWebhook(context.Background(), "hook", " "); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckSystemDeps(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	cfg := config.Default()
	cfg.Commands.Download = []string{present, "--quiet"}
	cfg.Commands.Detect = []string{"clearly-not-present-binary"}
	cfg.Publish.Native = map[string][]string{"youtube": {present}}

	statuses := CheckSystemDeps(&cfg)
	byName := make(map[string]int, len(statuses))
	for i, s := range statuses {
		byName[s.Name] = i
	}

	download := statuses[byName["download"]]
	if !download.Available || download.Command != present {
		t.Fatalf("expected download available at %s, got %#v", present, download)
	}
	detect := statuses[byName["detect"]]
	if detect.Available || detect.Detail == "" {
		t.Fatalf("expected detect unavailable with detail, got %#v", detect)
	}
	render := statuses[byName["render"]]
	if render.Available || render.Detail != "command not configured" {
		t.Fatalf("unexpected render status %#v", render)
	}
	native, ok := byName["publish:youtube"]
	if !ok {
		t.Fatalf("expected native publish scheduler to be listed")
	}
	if !statuses[native].Optional || !statuses[native].Available {
		t.Fatalf("unexpected native status %#v", statuses[native])
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LibraryManifest = ""

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if Failed(results) {
		t.Fatalf("unexpected failure: %#v", results)
	}
}

func TestRunAll_IncludesWebhookWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.WorkDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LibraryManifest = filepath.Join(t.TempDir(), "missing.yaml")
	cfg.Publish.WebhookURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[4].Name != "Publish webhook" || !results[4].Passed {
		t.Fatalf("unexpected webhook result %#v", results[4])
	}
	if !Failed(results) {
		t.Fatal("expected missing manifest to fail")
	}
}
