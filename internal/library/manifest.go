package library

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"recut/internal/services"
)

// ManifestEpisode is one entry of the library manifest.
type ManifestEpisode struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Path  string `yaml:"path"`
	// Duration in seconds. Zero means "derive from the fingerprint".
	Duration      float64 `yaml:"duration"`
	FrameInterval float64 `yaml:"frame_interval"`
}

// Manifest lists the source episodes.
type Manifest struct {
	Episodes []ManifestEpisode `yaml:"episodes"`
}

// DefaultFrameInterval is the sampling interval used when an entry omits it.
const DefaultFrameInterval = 0.5

// LoadManifest reads and validates a manifest. Relative episode paths are
// resolved against the manifest directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, services.Wrap(services.ErrConfiguration, "library", "read manifest", path, err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, err
	}
	base := filepath.Dir(path)
	for i := range manifest.Episodes {
		if p := manifest.Episodes[i].Path; p != "" && !filepath.IsAbs(p) {
			manifest.Episodes[i].Path = filepath.Join(base, p)
		}
	}
	return manifest, nil
}

// ParseManifest decodes manifest YAML, rejecting unknown keys.
func ParseManifest(data []byte) (Manifest, error) {
	var manifest Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&manifest); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, services.Wrap(services.ErrConfiguration, "library", "parse manifest", "", err)
	}
	if err := manifest.normalize(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m *Manifest) normalize() error {
	seen := make(map[string]struct{}, len(m.Episodes))
	for i := range m.Episodes {
		ep := &m.Episodes[i]
		ep.ID = strings.TrimSpace(ep.ID)
		ep.Title = strings.TrimSpace(ep.Title)
		ep.Path = strings.TrimSpace(ep.Path)
		if ep.ID == "" {
			return services.Wrap(services.ErrConfiguration, "library", "validate manifest", fmt.Sprintf("episode %d has no id", i), nil)
		}
		if _, dup := seen[ep.ID]; dup {
			return services.Wrap(services.ErrConfiguration, "library", "validate manifest", fmt.Sprintf("duplicate episode id %q", ep.ID), nil)
		}
		seen[ep.ID] = struct{}{}
		if ep.Path == "" {
			return services.Wrap(services.ErrConfiguration, "library", "validate manifest", fmt.Sprintf("episode %q has no path", ep.ID), nil)
		}
		if ep.Duration < 0 {
			return services.Wrap(services.ErrConfiguration, "library", "validate manifest", fmt.Sprintf("episode %q has negative duration", ep.ID), nil)
		}
		if ep.FrameInterval < 0 {
			return services.Wrap(services.ErrConfiguration, "library", "validate manifest", fmt.Sprintf("episode %q has negative frame_interval", ep.ID), nil)
		}
		if ep.FrameInterval == 0 {
			ep.FrameInterval = DefaultFrameInterval
		}
		if ep.Title == "" {
			ep.Title = ep.ID
		}
	}
	return nil
}

// Lookup returns the manifest entry for id.
func (m Manifest) Lookup(id string) (ManifestEpisode, bool) {
	id = strings.TrimSpace(id)
	for _, ep := range m.Episodes {
		if ep.ID == id {
			return ep, true
		}
	}
	return ManifestEpisode{}, false
}
