package config

import (
	"errors"
	"fmt"
	"net/url"

	"recut/internal/logging"
)

// PublishModeNative and PublishModeWebhook are the accepted publish.platforms values.
const (
	PublishModeNative  = "native"
	PublishModeWebhook = "webhook"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.LowThreshold <= 0 || m.LowThreshold > 1 {
		return errors.New("matching.low_threshold must be in (0, 1]")
	}
	if m.HighThreshold < m.LowThreshold || m.HighThreshold > 1 {
		return errors.New("matching.high_threshold must be between matching.low_threshold and 1")
	}
	if m.AmbiguityMargin < 0 || m.AmbiguityMargin >= 1 {
		return errors.New("matching.ambiguity_margin must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.TempoFactor <= 1 {
		return errors.New("reconcile.tempo_factor must be greater than 1")
	}
	if c.Reconcile.FallbackWPM <= 0 {
		return errors.New("reconcile.fallback_wpm must be positive")
	}
	for code, rate := range c.Reconcile.WPM {
		if rate <= 0 {
			return fmt.Errorf("reconcile.wpm.%s must be positive", code)
		}
	}
	return nil
}

func (c *Config) validatePublish() error {
	for _, raw := range []struct {
		key   string
		value string
	}{
		{"publish.webhook_url", c.Publish.WebhookURL},
		{"publish.notification_webhook_url", c.Publish.NotificationWebhookURL},
	} {
		if raw.value == "" {
			continue
		}
		parsed, err := url.Parse(raw.value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL", raw.key)
		}
	}
	needsWebhook := false
	for name, mode := range c.Publish.Platforms {
		switch mode {
		case PublishModeNative:
			if len(c.Publish.Native[name]) == 0 {
				return fmt.Errorf("publish.native.%s must name a scheduling command", name)
			}
		case PublishModeWebhook:
			needsWebhook = true
		default:
			return fmt.Errorf("publish.platforms.%s: unsupported mode %q (want native or webhook)", name, mode)
		}
	}
	if needsWebhook && c.Publish.WebhookURL == "" {
		return errors.New("publish.webhook_url is required when a platform uses webhook dispatch")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
