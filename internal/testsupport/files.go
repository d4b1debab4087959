package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteMedia writes a stand-in video file whose bytes are its frame hashes.
// Test fingerprinters read it back one frame per byte, so changing frames
// changes both the content hash and the fingerprint.
func WriteMedia(t testing.TB, path string, frames ...byte) {
	t.Helper()
	if len(frames) == 0 {
		frames = []byte{0}
	}
	WriteText(t, path, string(frames))
}

// WriteText writes body to path, creating parent directories.
func WriteText(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScript installs an executable shell script named name in dir and
// returns its path, for use as an external command line.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	WriteText(t, path, "#!/bin/sh\n"+body+"\n")
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
	return path
}

// WriteCollaborator installs a collaborator command that drains its JSON
// request from stdin and prints lines, each normally one NDJSON event.
func WriteCollaborator(t testing.TB, dir, name string, lines ...string) string {
	t.Helper()
	var body strings.Builder
	body.WriteString("cat >/dev/null\n")
	for _, line := range lines {
		body.WriteString("echo '" + strings.ReplaceAll(line, "'", `'\''`) + "'\n")
	}
	return WriteScript(t, dir, name, body.String())
}
