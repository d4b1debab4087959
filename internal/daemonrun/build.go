package daemonrun

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"recut/internal/config"
	"recut/internal/extcmd"
	"recut/internal/library"
	"recut/internal/logging"
	"recut/internal/matching"
	"recut/internal/pipeline"
	"recut/internal/publish"
	"recut/internal/reconcile"
	"recut/internal/store"
)

// Runtime is the wired store and runner shared by the daemon and the CLI.
type Runtime struct {
	Store  *store.Store
	Runner *pipeline.Runner
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Build opens the project store and wires every collaborator from cfg.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	estimator, err := reconcile.NewEstimator(Rates(cfg.Reconcile))
	if err != nil {
		return nil, fmt.Errorf("reconcile rates: %w", err)
	}

	cmds := extcmd.FromConfig(cfg.Commands, logger)
	collab := pipeline.Collaborators{
		Downloader:    cmds.Downloader,
		Detector:      cmds.Detector,
		Transcriber:   cmds.Transcriber,
		Restructurer:  cmds.Restructurer,
		Renderer:      cmds.Renderer,
		Fingerprinter: cmds.Fingerprinter,
		Publisher:     publish.NewDispatcher(cfg.Publish, logger),
	}

	lib, err := openLibrary(cfg, cmds.Fingerprinter, logger)
	if err != nil {
		return nil, err
	}
	if lib != nil {
		collab.Library = lib
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open project store: %w", err)
	}

	runner, err := pipeline.New(st, collab,
		pipeline.WithLogger(logger),
		pipeline.WithMatcher(matching.NewMatcher(
			matching.WithPolicy(Policy(cfg.Matching)),
			matching.WithWorkers(cfg.Matching.Workers),
			matching.WithLogger(logger),
		)),
		pipeline.WithEstimator(estimator),
		pipeline.WithWorkDir(cfg.ProjectWorkDir),
	)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &Runtime{Store: st, Runner: runner}, nil
}

// Policy converts the [matching] section.
func Policy(cfg config.Matching) matching.Policy {
	p := matching.DefaultPolicy()
	p.HighThreshold = cfg.HighThreshold
	p.LowThreshold = cfg.LowThreshold
	p.AmbiguityMargin = cfg.AmbiguityMargin
	p.MaxCandidates = cfg.MaxCandidates
	p.MaxWindowsPerEpisode = cfg.MaxWindowsPerEpisode
	p.WindowStride = cfg.WindowStride
	return p
}

// Rates converts the [reconcile] section.
func Rates(cfg config.Reconcile) reconcile.Rates {
	rates := reconcile.DefaultRates()
	if cfg.TempoFactor > 0 {
		rates.Tempo = cfg.TempoFactor
	}
	if cfg.FallbackWPM > 0 {
		rates.FallbackWPM = cfg.FallbackWPM
	}
	return rates.WithOverrides(cfg.WPM)
}

// openLibrary returns nil when no manifest exists yet; the match step then
// reports itself unconfigured.
func openLibrary(cfg *config.Config, fp library.Fingerprinter, logger *slog.Logger) (*library.Library, error) {
	path := cfg.Paths.LibraryManifest
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("library manifest not found; matching disabled",
				logging.String(logging.FieldEventType, "library_missing"),
				logging.String("manifest", path),
				logging.String(logging.FieldErrorHint, "create the manifest listing source episodes"),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("stat library manifest: %w", err)
	}
	lib, err := library.Open(path, cfg.Paths.FingerprintCache, fp, logger)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return lib, nil
}
