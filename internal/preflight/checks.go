package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"recut/internal/api"
	"recut/internal/config"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies that path is a regular file the process can read.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckWebhook verifies that the endpoint answers HTTP requests. Any status
// below 500 counts as reachable since runners commonly reject HEAD.
func CheckWebhook(ctx context.Context, name, url string) Result {
	target := strings.TrimSpace(url)
	if target == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("endpoint error (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

type requirement struct {
	name        string
	argv        []string
	description string
	optional    bool
}

// CheckSystemDeps reports whether each collaborator command resolves to an
// executable. Both the daemon and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}
	cmds := cfg.Commands
	reqs := []requirement{
		{name: "download", argv: cmds.Download, description: "Fetches the source video"},
		{name: "detect", argv: cmds.Detect, description: "Splits the video into scenes"},
		{name: "transcribe", argv: cmds.Transcribe, description: "Transcribes scene dialogue"},
		{name: "restructure", argv: cmds.Restructure, description: "Rewrites transcripts into narration"},
		{name: "fingerprint", argv: cmds.Fingerprint, description: "Produces frame fingerprints for matching"},
		{name: "render", argv: cmds.Render, description: "Renders the final video"},
	}

	platforms := make([]string, 0, len(cfg.Publish.Native))
	for platform := range cfg.Publish.Native {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	for _, platform := range platforms {
		reqs = append(reqs, requirement{
			name:        "publish:" + platform,
			argv:        cfg.Publish.Native[platform],
			description: "Schedules uploads to " + platform,
			optional:    true,
		})
	}

	statuses := make([]api.DependencyStatus, 0, len(reqs))
	for _, req := range reqs {
		statuses = append(statuses, checkCommand(req))
	}
	return statuses
}

func checkCommand(req requirement) api.DependencyStatus {
	status := api.DependencyStatus{
		Name:        req.name,
		Description: req.description,
		Optional:    req.optional,
	}
	if len(req.argv) == 0 || strings.TrimSpace(req.argv[0]) == "" {
		status.Detail = "command not configured"
		return status
	}
	status.Command = strings.TrimSpace(req.argv[0])
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	return status
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
