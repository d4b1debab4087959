package reconcile

import (
	"fmt"
	"math"

	"recut/internal/language"
	"recut/internal/services"
)

// Unit is what a rate counts.
type Unit string

const (
	Words      Unit = "words"
	Characters Unit = "characters"
)

const (
	DefaultTempo       = 1.15
	DefaultFallbackWPM = 150
)

var defaultWordRates = map[string]float64{
	"en": 150,
	"es": 160,
	"fr": 155,
	"de": 130,
	"it": 150,
	"pt": 155,
	"nl": 140,
	"ru": 130,
	"hi": 140,
	"ar": 125,
	"ko": 145,
}

var defaultCharacterRates = map[string]float64{
	"ja": 370,
	"zh": 280,
}

// Rates holds per-minute speech rates keyed by ISO 639-1 code.
type Rates struct {
	Tempo       float64
	FallbackWPM float64
	// PerMinute is words per minute, or characters per minute for
	// character-based languages.
	PerMinute map[string]float64
}

// DefaultRates returns the built-in table.
func DefaultRates() Rates {
	per := make(map[string]float64, len(defaultWordRates)+len(defaultCharacterRates))
	for k, v := range defaultWordRates {
		per[k] = v
	}
	for k, v := range defaultCharacterRates {
		per[k] = v
	}
	return Rates{Tempo: DefaultTempo, FallbackWPM: DefaultFallbackWPM, PerMinute: per}
}

// WithOverrides returns a copy with the given entries replaced. Keys are
// normalized; zero or negative values are ignored.
func (r Rates) WithOverrides(overrides map[string]float64) Rates {
	out := Rates{Tempo: r.Tempo, FallbackWPM: r.FallbackWPM, PerMinute: make(map[string]float64, len(r.PerMinute)+len(overrides))}
	for k, v := range r.PerMinute {
		out.PerMinute[k] = v
	}
	for k, v := range overrides {
		if code := language.Normalize(k); code != "" && v > 0 {
			out.PerMinute[code] = v
		}
	}
	return out
}

// Validate checks the tempo factor and every rate.
func (r Rates) Validate() error {
	if !(r.Tempo > 1) || math.IsInf(r.Tempo, 0) {
		return services.Wrap(services.ErrConfiguration, "reconcile", "validate rates", fmt.Sprintf("tempo factor must be greater than 1, got %v", r.Tempo), nil)
	}
	if !(r.FallbackWPM > 0) {
		return services.Wrap(services.ErrConfiguration, "reconcile", "validate rates", "fallback rate must be positive", nil)
	}
	for code, v := range r.PerMinute {
		if !(v > 0) || math.IsInf(v, 0) {
			return services.Wrap(services.ErrConfiguration, "reconcile", "validate rates", fmt.Sprintf("rate for %q must be positive", code), nil)
		}
	}
	return nil
}

// Rate returns the per-minute rate and its unit for lang. Unknown languages
// use the fallback words-per-minute rate.
func (r Rates) Rate(lang string) (float64, Unit) {
	code := language.Normalize(lang)
	unit := Words
	if language.CharacterBased(code) {
		unit = Characters
	}
	if v, ok := r.PerMinute[code]; ok {
		return v, unit
	}
	return r.FallbackWPM, Words
}
