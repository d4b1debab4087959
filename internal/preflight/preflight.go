package preflight

import (
	"context"

	"recut/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if cfg.Paths.LibraryManifest != "" {
		results = append(results, CheckFileReadable("Library manifest", cfg.Paths.LibraryManifest))
	}

	if cfg.Publish.WebhookURL != "" {
		results = append(results, CheckWebhook(ctx, "Publish webhook", cfg.Publish.WebhookURL))
	}
	if cfg.Publish.NotificationWebhookURL != "" {
		results = append(results, CheckWebhook(ctx, "Notification webhook", cfg.Publish.NotificationWebhookURL))
	}

	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
