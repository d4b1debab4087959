package reconcile

import (
	"strings"
	"unicode"
)

// Classification is the advisory verdict on a speed ratio.
type Classification string

const (
	Acceptable   Classification = "acceptable"
	Caution      Classification = "caution"
	Unacceptable Classification = "unacceptable"
)

// Adjustment tells the operator which way playback has to bend.
type Adjustment string

const (
	SpeedUp  Adjustment = "speed_up"
	SlowDown Adjustment = "slow_down"
	None     Adjustment = "none"
)

// Band edges for the speed ratio.
const (
	FastAcceptableMax = 1.75
	FastCautionMax    = 2.0
	SlowAcceptableMin = 0.85
	SlowCautionMin    = 0.75
)

// Assessment is the outcome of reconciling one script entry.
type Assessment struct {
	Units             int            `json:"units"`
	Unit              Unit           `json:"unit"`
	EstimatedDuration float64        `json:"estimated_duration"`
	OriginalDuration  float64        `json:"original_duration"`
	SpeedRatio        float64        `json:"speed_ratio"`
	Classification    Classification `json:"classification"`
	Adjustment        Adjustment     `json:"adjustment"`
}

// Estimator applies a rate table.
type Estimator struct {
	rates Rates
}

// NewEstimator validates rates and returns an estimator.
func NewEstimator(rates Rates) (*Estimator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{rates: rates.WithOverrides(nil)}, nil
}

// Rates returns a copy of the table in use.
func (e *Estimator) Rates() Rates { return e.rates.WithOverrides(nil) }

// Estimate returns the spoken duration of text in seconds.
func (e *Estimator) Estimate(text, lang string) (float64, int, Unit) {
	rate, unit := e.rates.Rate(lang)
	units := CountUnits(text, unit)
	if units == 0 {
		return 0, 0, unit
	}
	return float64(units) * 60 / (rate * e.rates.Tempo), units, unit
}

// Assess estimates text and compares it with the original scene duration.
func (e *Estimator) Assess(text, lang string, originalDuration float64) Assessment {
	estimated, units, unit := e.Estimate(text, lang)
	ratio := SpeedRatio(estimated, originalDuration)
	return Assessment{
		Units:             units,
		Unit:              unit,
		EstimatedDuration: estimated,
		OriginalDuration:  originalDuration,
		SpeedRatio:        ratio,
		Classification:    Classify(ratio),
		Adjustment:        adjustmentFor(ratio),
	}
}

// CountUnits counts words, or letters and digits for character-based text.
func CountUnits(text string, unit Unit) int {
	if unit == Characters {
		n := 0
		for _, r := range text {
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				n++
			}
		}
		return n
	}
	n := 0
	for _, field := range strings.Fields(text) {
		if strings.IndexFunc(field, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) >= 0 {
			n++
		}
	}
	return n
}

// SpeedRatio is estimated/original. A non-positive original carries no
// signal and yields 1.
func SpeedRatio(estimated, original float64) float64 {
	if original <= 0 {
		return 1
	}
	return estimated / original
}

// Classify maps a speed ratio onto the advisory bands. Both band edges at
// 1.75 and 0.85 are acceptable; 2.0 and 0.75 are caution.
func Classify(ratio float64) Classification {
	if ratio >= 1 {
		switch {
		case ratio <= FastAcceptableMax:
			return Acceptable
		case ratio <= FastCautionMax:
			return Caution
		default:
			return Unacceptable
		}
	}
	switch {
	case ratio >= SlowAcceptableMin:
		return Acceptable
	case ratio >= SlowCautionMin:
		return Caution
	default:
		return Unacceptable
	}
}

func adjustmentFor(ratio float64) Adjustment {
	switch {
	case ratio > 1:
		return SpeedUp
	case ratio < 1:
		return SlowDown
	default:
		return None
	}
}

// Summary counts classifications across a project.
type Summary struct {
	Total        int `json:"total"`
	Acceptable   int `json:"acceptable"`
	Caution      int `json:"caution"`
	Unacceptable int `json:"unacceptable"`
	// Flagged lists the scene indices that are not acceptable.
	Flagged []int `json:"flagged,omitempty"`
}

// Summarize builds a Summary from assessments keyed by scene index.
func Summarize(indices []int, assessments []Assessment) Summary {
	var s Summary
	for i, a := range assessments {
		s.Total++
		switch a.Classification {
		case Acceptable:
			s.Acceptable++
			continue
		case Caution:
			s.Caution++
		default:
			s.Unacceptable++
		}
		if i < len(indices) {
			s.Flagged = append(s.Flagged, indices[i])
		}
	}
	return s
}
