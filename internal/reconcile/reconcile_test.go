package reconcile

import (
	"errors"
	"math"
	"strings"
	"testing"

	"recut/internal/services"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Classification
	}{
		{1.0, Acceptable},
		{1.75, Acceptable},
		{1.751, Caution},
		{2.0, Caution},
		{2.001, Unacceptable},
		{0.999, Acceptable},
		{0.85, Acceptable},
		{0.849, Caution},
		{0.75, Caution},
		{0.749, Unacceptable},
		{0, Unacceptable},
	}
	for _, tt := range tests {
		if got := Classify(tt.ratio); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.ratio, got, tt.want)
		}
	}
}

func TestAssessThreeSceneExample(t *testing.T) {
	rates := DefaultRates().WithOverrides(map[string]float64{"en": 240})
	rates.Tempo = 1.25
	est, err := NewEstimator(rates)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}

	originals := []float64{5.0, 3.0, 4.0}
	counts := []int{26, 27, 15}
	wantEstimated := []float64{5.2, 5.4, 3.0}
	wantRatios := []float64{1.04, 1.8, 0.75}
	wantClass := []Classification{Acceptable, Caution, Caution}

	assessments := make([]Assessment, len(originals))
	for i := range originals {
		a := est.Assess(words(counts[i]), "en", originals[i])
		assessments[i] = a
		if math.Abs(a.EstimatedDuration-wantEstimated[i]) > 1e-9 {
			t.Errorf("scene %d: estimated %.6f, want %.6f", i, a.EstimatedDuration, wantEstimated[i])
		}
		if math.Abs(a.SpeedRatio-wantRatios[i]) > 1e-9 {
			t.Errorf("scene %d: ratio %.6f, want %.6f", i, a.SpeedRatio, wantRatios[i])
		}
		if a.Classification != wantClass[i] {
			t.Errorf("scene %d: classification %s, want %s", i, a.Classification, wantClass[i])
		}
	}
	if assessments[0].Adjustment != SpeedUp || assessments[2].Adjustment != SlowDown {
		t.Fatalf("unexpected adjustments %s %s", assessments[0].Adjustment, assessments[2].Adjustment)
	}

	summary := Summarize([]int{0, 1, 2}, assessments)
	if summary.Total != 3 || summary.Acceptable != 1 || summary.Caution != 2 || summary.Unacceptable != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Flagged) != 2 || summary.Flagged[0] != 1 || summary.Flagged[1] != 2 {
		t.Fatalf("unexpected flagged scenes %v", summary.Flagged)
	}
}

func TestEstimateUsesLanguageRates(t *testing.T) {
	est, err := NewEstimator(DefaultRates())
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	tests := []struct {
		name  string
		text  string
		lang  string
		units int
		unit  Unit
		rate  float64
	}{
		{name: "english", text: words(150), lang: "en", units: 150, unit: Words, rate: 150},
		{name: "german tag", text: words(130), lang: "de-AT", units: 130, unit: Words, rate: 130},
		{name: "unknown falls back", text: words(10), lang: "sw", units: 10, unit: Words, rate: DefaultFallbackWPM},
		{name: "empty language falls back", text: words(3), lang: "", units: 3, unit: Words, rate: DefaultFallbackWPM},
		{name: "japanese counts characters", text: "こんにちは、世界。", lang: "ja", units: 7, unit: Characters, rate: 370},
		{name: "chinese counts characters", text: "你好 世界", lang: "zh-CN", units: 4, unit: Characters, rate: 280},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, units, unit := est.Estimate(tt.text, tt.lang)
			if units != tt.units || unit != tt.unit {
				t.Fatalf("units = %d %s, want %d %s", units, unit, tt.units, tt.unit)
			}
			want := float64(tt.units) * 60 / (tt.rate * DefaultTempo)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("duration = %.6f, want %.6f", got, want)
			}
		})
	}
}

func TestCountUnitsIgnoresPunctuation(t *testing.T) {
	if got := CountUnits("Hello , world -- it's  me!", Words); got != 4 {
		t.Fatalf("CountUnits = %d, want 4", got)
	}
	if got := CountUnits("   ", Words); got != 0 {
		t.Fatalf("blank text should count 0, got %d", got)
	}
}

func TestSpeedRatioGuardsZeroOriginal(t *testing.T) {
	if got := SpeedRatio(3, 0); got != 1 {
		t.Fatalf("SpeedRatio(3, 0) = %v, want 1", got)
	}
	if got := SpeedRatio(3, -2); got != 1 {
		t.Fatalf("SpeedRatio(3, -2) = %v, want 1", got)
	}
	est, _ := NewEstimator(DefaultRates())
	a := est.Assess("", "en", 4)
	if a.EstimatedDuration != 0 || a.Classification != Unacceptable {
		t.Fatalf("empty narration should be flagged, got %+v", a)
	}
}

func TestNewEstimatorValidatesRates(t *testing.T) {
	rates := DefaultRates()
	rates.Tempo = 1
	if _, err := NewEstimator(rates); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("tempo 1 should be rejected, got %v", err)
	}
	rates = DefaultRates()
	rates.PerMinute["en"] = 0
	if _, err := NewEstimator(rates); err == nil {
		t.Fatal("zero rate should be rejected")
	}
}

func TestWithOverridesNormalizesKeys(t *testing.T) {
	base := DefaultRates()
	rates := base.WithOverrides(map[string]float64{"English": 170, "fra": 0, "pt-BR": 165})
	if rates.PerMinute["en"] != 170 || rates.PerMinute["pt"] != 165 {
		t.Fatalf("overrides not applied: %+v", rates.PerMinute)
	}
	if rates.PerMinute["fr"] != 155 {
		t.Fatalf("non-positive override should be ignored, got %v", rates.PerMinute["fr"])
	}
	if base.PerMinute["en"] != 150 {
		t.Fatal("WithOverrides must not mutate the receiver")
	}
}
