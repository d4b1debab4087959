package extcmd_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recut/internal/extcmd"
	"recut/internal/services"
	"recut/internal/testsupport"
)

func script(t *testing.T, body string) []string {
	t.Helper()
	return []string{testsupport.WriteScript(t, t.TempDir(), "tool.sh", body)}
}

func TestDetectorForwardsProgressAndDecodesResult(t *testing.T) {
	reqPath := filepath.Join(t.TempDir(), "request.json")
	argv := script(t, `cat > "`+reqPath+`"
echo 'loading model'
echo '{"status":"progress","percent":40,"message":"analysing"}'
echo '{"status":"progress","message":"cuts found"}'
echo '{"status":"complete","result":{"duration":6,"scenes":[{"index":0,"start_time":0,"end_time":2.5},{"index":1,"start_time":2.5,"end_time":6}]}}'`)

	var reports []string
	det := extcmd.NewDetector(extcmd.New("detect", argv, nil))
	scenes, duration, err := det.Detect(context.Background(), "/videos/in.mp4", func(percent float64, message string) error {
		reports = append(reports, message)
		return nil
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if duration != 6 || len(scenes) != 2 || scenes[1].Start != 2.5 {
		t.Fatalf("scenes=%+v duration=%v", scenes, duration)
	}
	if strings.Join(reports, ",") != "analysing,cuts found" {
		t.Fatalf("reports = %v", reports)
	}

	data, err := os.ReadFile(reqPath)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	var req map[string]string
	if err := json.Unmarshal(data, &req); err != nil || req["video_path"] != "/videos/in.mp4" {
		t.Fatalf("request = %s (%v)", data, err)
	}
}

func TestCommandFailures(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		marker error
		detail string
	}{
		{"error event", `echo '{"status":"error","error":"model not found"}'; exit 0`, services.ErrExternalStep, "model not found"},
		{"error event with exit", `echo '{"status":"error","error":"disk full"}'; exit 3`, services.ErrExternalStep, "disk full"},
		{"exit status", `echo 'fatal: no input' >&2; exit 2`, services.ErrExternalStep, "fatal: no input"},
		{"no terminal", `echo '{"status":"progress","percent":10}'`, services.ErrExternalStep, "without a result"},
		{"after terminal", `echo '{"status":"complete","result":{}}'; echo '{"status":"progress"}'`, services.ErrExternalStep, "after terminal"},
		{"bad result", `echo '{"status":"complete","result":{"video_path":7}}'`, services.ErrExternalStep, "malformed result"},
		{"empty path", `echo '{"status":"complete","result":{"video_path":""}}'`, services.ErrExternalStep, "video_path is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dl := extcmd.NewDownloader(extcmd.New("download", script(t, tc.body), nil))
			_, err := dl.Download(context.Background(), "p1", "https://example.com/v", t.TempDir(), nil)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("err = %v, want %v", err, tc.marker)
			}
			if !strings.Contains(err.Error(), tc.detail) {
				t.Fatalf("err = %v, want detail %q", err, tc.detail)
			}
		})
	}
}

func TestUnconfiguredCommand(t *testing.T) {
	set := extcmd.FromConfig(extcmdConfig(), nil)
	_, err := set.Renderer.Render(context.Background(), nil, "", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestReportAbortStopsCommand(t *testing.T) {
	argv := script(t, `i=0
while true; do
  echo '{"status":"progress","percent":1}'
  i=$((i+1))
done`)
	aborted := services.Wrap(services.ErrStreamAborted, "test", "report", "consumer left", nil)
	calls := 0
	det := extcmd.NewDetector(extcmd.New("detect", argv, nil))
	_, _, err := det.Detect(context.Background(), "x", func(float64, string) error {
		calls++
		if calls == 3 {
			return aborted
		}
		return nil
	})
	if !errors.Is(err, services.ErrStreamAborted) {
		t.Fatalf("err = %v, want aborted", err)
	}
}

func TestCancelledContextIsAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := extcmd.NewTranscriber(extcmd.New("transcribe", script(t, "sleep 5"), nil))
	_, err := tr.Transcribe(ctx, "x", nil, nil)
	if !services.IsAborted(err) {
		t.Fatalf("err = %v, want aborted", err)
	}
}

func TestFingerprinterParsesHexFrames(t *testing.T) {
	argv := script(t, `echo '{"status":"complete","result":{"frames":["00000000000000ff","0xffffffffffffffff"]}}'`)
	fp := extcmd.NewFingerprinter(extcmd.New("fingerprint", argv, nil))
	got, err := fp.Fingerprint(context.Background(), "/lib/e1.mkv", 0.5)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if got.Interval != 0.5 || len(got.Frames) != 2 || got.Frames[0] != 0xff || got.Frames[1] != ^uint64(0) {
		t.Fatalf("fingerprint = %+v", got)
	}
	if out := extcmd.FormatFrames(got.Frames); out[0] != "00000000000000ff" {
		t.Fatalf("FormatFrames = %v", out)
	}
	if _, err := extcmd.ParseFrames([]string{"zz"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWithEnvPassesVariables(t *testing.T) {
	argv := script(t, `printf '{"status":"complete","result":{"video_path":"%s"}}\n' "$RECUT_PROJECT_ID"`)
	dl := extcmd.NewDownloader(extcmd.New("download", argv, nil).WithEnv("RECUT_PROJECT_ID=p42"))
	got, err := dl.Download(context.Background(), "p42", "ref", "", nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got != "p42" {
		t.Fatalf("video path = %q", got)
	}
}
