package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvOverrides()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMatching()
	c.normalizeReconcile()
	c.normalizeCommands()
	c.normalizePublish()
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnvOverrides() {
	if value, ok := os.LookupEnv("RECUT_DATA_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DataDir = value
	}
	if value, ok := os.LookupEnv("RECUT_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	if value, ok := os.LookupEnv("RECUT_WEBHOOK_URL"); ok && strings.TrimSpace(value) != "" {
		c.Publish.WebhookURL = value
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LibraryManifest, err = expandPath(c.Paths.LibraryManifest); err != nil {
		return fmt.Errorf("paths.library_manifest: %w", err)
	}
	if strings.TrimSpace(c.Paths.FingerprintCache) == "" {
		c.Paths.FingerprintCache = defaultFingerprintCache
	}
	if c.Paths.FingerprintCache, err = expandPath(c.Paths.FingerprintCache); err != nil {
		return fmt.Errorf("paths.fingerprint_cache: %w", err)
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	return nil
}

func (c *Config) normalizeMatching() {
	if c.Matching.MaxCandidates <= 0 {
		c.Matching.MaxCandidates = defaultMaxCandidates
	}
	if c.Matching.MaxWindowsPerEpisode <= 0 {
		c.Matching.MaxWindowsPerEpisode = defaultMaxWindowsPerEpisode
	}
	if c.Matching.WindowStride <= 0 {
		c.Matching.WindowStride = defaultWindowStride
	}
	if c.Matching.Workers <= 0 {
		c.Matching.Workers = runtime.NumCPU()
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.TempoFactor == 0 {
		c.Reconcile.TempoFactor = defaultTempoFactor
	}
	if c.Reconcile.FallbackWPM == 0 {
		c.Reconcile.FallbackWPM = defaultFallbackWPM
	}
	if len(c.Reconcile.WPM) == 0 {
		return
	}
	normalized := make(map[string]float64, len(c.Reconcile.WPM))
	for code, rate := range c.Reconcile.WPM {
		key := strings.ToLower(strings.TrimSpace(code))
		if key == "" {
			continue
		}
		normalized[key] = rate
	}
	c.Reconcile.WPM = normalized
}

func (c *Config) normalizeCommands() {
	c.Commands.Download = trimArgs(c.Commands.Download)
	c.Commands.Detect = trimArgs(c.Commands.Detect)
	c.Commands.Transcribe = trimArgs(c.Commands.Transcribe)
	c.Commands.Restructure = trimArgs(c.Commands.Restructure)
	c.Commands.Render = trimArgs(c.Commands.Render)
	c.Commands.Fingerprint = trimArgs(c.Commands.Fingerprint)
	if c.Commands.TimeoutSeconds <= 0 {
		c.Commands.TimeoutSeconds = defaultCommandTimeout
	}
}

func (c *Config) normalizePublish() {
	c.Publish.WebhookURL = strings.TrimSpace(c.Publish.WebhookURL)
	c.Publish.NotificationWebhookURL = strings.TrimSpace(c.Publish.NotificationWebhookURL)
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultPublishTimeout
	}
	if len(c.Publish.Platforms) > 0 {
		normalized := make(map[string]string, len(c.Publish.Platforms))
		for name, mode := range c.Publish.Platforms {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(mode))
		}
		c.Publish.Platforms = normalized
	}
	if len(c.Publish.Native) > 0 {
		native := make(map[string][]string, len(c.Publish.Native))
		for name, argv := range c.Publish.Native {
			if key := strings.ToLower(strings.TrimSpace(name)); key != "" {
				native[key] = trimArgs(argv)
			}
		}
		c.Publish.Native = native
	}
	if len(c.Publish.Credentials) > 0 {
		creds := make(map[string]map[string]string, len(c.Publish.Credentials))
		for name, values := range c.Publish.Credentials {
			if key := strings.ToLower(strings.TrimSpace(name)); key != "" {
				creds[key] = values
			}
		}
		c.Publish.Credentials = creds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
