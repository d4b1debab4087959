package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains storage locations.
type Paths struct {
	DataDir          string `toml:"data_dir"`
	WorkDir          string `toml:"work_dir"`
	LogDir           string `toml:"log_dir"`
	LibraryManifest  string `toml:"library_manifest"`
	FingerprintCache string `toml:"fingerprint_cache"`
}

// API contains the daemon's HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Matching contains the source matching policy.
type Matching struct {
	HighThreshold        float64 `toml:"high_threshold"`
	LowThreshold         float64 `toml:"low_threshold"`
	AmbiguityMargin      float64 `toml:"ambiguity_margin"`
	MaxCandidates        int     `toml:"max_candidates"`
	MaxWindowsPerEpisode int     `toml:"max_windows_per_episode"`
	WindowStride         int     `toml:"window_stride"`
	Workers              int     `toml:"workers"`
}

// Reconcile contains speech duration tuning.
type Reconcile struct {
	// TempoFactor is how much faster synthesized speech runs than the WPM table assumes.
	TempoFactor float64 `toml:"tempo_factor"`
	FallbackWPM float64 `toml:"fallback_wpm"`
	// WPM overrides the built-in rate for a language code.
	WPM map[string]float64 `toml:"wpm"`
}

// Commands holds argv templates for the external collaborators. An empty
// command disables the corresponding step.
type Commands struct {
	Download       []string `toml:"download"`
	Detect         []string `toml:"detect"`
	Transcribe     []string `toml:"transcribe"`
	Restructure    []string `toml:"restructure"`
	Render         []string `toml:"render"`
	Fingerprint    []string `toml:"fingerprint"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Publish configures the publish dispatcher.
type Publish struct {
	WebhookURL             string `toml:"webhook_url"`
	NotificationWebhookURL string `toml:"notification_webhook_url"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	// Platforms maps a platform name to its dispatch mode ("native" or "webhook").
	Platforms map[string]string `toml:"platforms"`
	// Native holds the scheduling command for each native platform.
	Native map[string][]string `toml:"native"`
	// Credentials are forwarded to the webhook runner per platform.
	Credentials map[string]map[string]string `toml:"credentials"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for recut.
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Matching  Matching  `toml:"matching"`
	Reconcile Reconcile `toml:"reconcile"`
	Commands  Commands  `toml:"commands"`
	Publish   Publish   `toml:"publish"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := loadDotEnv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recut.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadDotEnv reads .env files next to the config and in the working directory.
// Variables already present in the environment win.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		if info, err := os.Stat(abs); err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %s: %w", abs, err)
		}
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.FingerprintCache); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create fingerprint cache directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite file holding projects.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "recut.db")
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "recut.lock")
}

// ProjectWorkDir is the scratch directory for one project's downloaded and rendered media.
func (c *Config) ProjectWorkDir(projectID string) string {
	return filepath.Join(c.Paths.WorkDir, projectID)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
