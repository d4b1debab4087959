package testsupport

import (
	"path/filepath"
	"testing"

	"recut/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LibraryManifest = filepath.Join(base, "library.yaml")
	cfgVal.Paths.FingerprintCache = filepath.Join(base, "cache", "fingerprints.json")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Matching.Workers = 2

	builder := &configBuilder{cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithToken sets the API bearer token.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithWebhook routes the named platforms through the webhook at url.
func WithWebhook(url string, platforms ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.WebhookURL = url
		if b.cfg.Publish.Platforms == nil {
			b.cfg.Publish.Platforms = make(map[string]string)
		}
		for _, name := range platforms {
			b.cfg.Publish.Platforms[name] = config.PublishModeWebhook
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
