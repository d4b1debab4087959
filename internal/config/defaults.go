package config

const (
	defaultConfigPath           = "~/.config/recut/config.toml"
	defaultDataDir              = "~/.local/share/recut"
	defaultWorkDir              = "~/.local/share/recut/work"
	defaultLogDir               = "~/.local/share/recut/logs"
	defaultLibraryManifest      = "~/.config/recut/library.yaml"
	defaultFingerprintCache     = "~/.cache/recut/fingerprints.json"
	defaultAPIBind              = "127.0.0.1:7491"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultHighThreshold        = 0.90
	defaultLowThreshold         = 0.75
	defaultAmbiguityMargin      = 0.03
	defaultMaxCandidates        = 5
	defaultMaxWindowsPerEpisode = 2000
	defaultWindowStride         = 1
	defaultTempoFactor          = 1.15
	defaultFallbackWPM          = 150
	defaultCommandTimeout       = 3600
	defaultPublishTimeout       = 15
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:          defaultDataDir,
			WorkDir:          defaultWorkDir,
			LogDir:           defaultLogDir,
			LibraryManifest:  defaultLibraryManifest,
			FingerprintCache: defaultFingerprintCache,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Matching: Matching{
			HighThreshold:        defaultHighThreshold,
			LowThreshold:         defaultLowThreshold,
			AmbiguityMargin:      defaultAmbiguityMargin,
			MaxCandidates:        defaultMaxCandidates,
			MaxWindowsPerEpisode: defaultMaxWindowsPerEpisode,
			WindowStride:         defaultWindowStride,
		},
		Reconcile: Reconcile{
			TempoFactor: defaultTempoFactor,
			FallbackWPM: defaultFallbackWPM,
		},
		Commands: Commands{
			TimeoutSeconds: defaultCommandTimeout,
		},
		Publish: Publish{
			TimeoutSeconds: defaultPublishTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
