package matching

// Policy centralizes matching thresholds and scan bounds.
type Policy struct {
	HighThreshold   float64
	LowThreshold    float64
	AmbiguityMargin float64
	MaxCandidates   int
	// MaxWindowsPerEpisode caps window positions scored per episode; the
	// stride widens to honour it.
	MaxWindowsPerEpisode int
	WindowStride         int
	// MaxFramesPerWindow caps frames compared per window by sampling the
	// scene evenly.
	MaxFramesPerWindow int
}

// DefaultPolicy returns defaults tuned for short-form edits of broadcast footage.
func DefaultPolicy() Policy {
	return Policy{
		HighThreshold:        0.90,
		LowThreshold:         0.75,
		AmbiguityMargin:      0.03,
		MaxCandidates:        5,
		MaxWindowsPerEpisode: 2000,
		WindowStride:         1,
		MaxFramesPerWindow:   64,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()

	if p.LowThreshold <= 0 || p.LowThreshold > 1 {
		p.LowThreshold = d.LowThreshold
	}
	if p.HighThreshold <= 0 || p.HighThreshold > 1 {
		p.HighThreshold = d.HighThreshold
	}
	if p.HighThreshold < p.LowThreshold {
		p.HighThreshold = p.LowThreshold
	}
	if p.AmbiguityMargin < 0 || p.AmbiguityMargin >= 1 {
		p.AmbiguityMargin = d.AmbiguityMargin
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = d.MaxCandidates
	}
	if p.MaxWindowsPerEpisode <= 0 {
		p.MaxWindowsPerEpisode = d.MaxWindowsPerEpisode
	}
	if p.WindowStride <= 0 {
		p.WindowStride = d.WindowStride
	}
	if p.MaxFramesPerWindow <= 0 {
		p.MaxFramesPerWindow = d.MaxFramesPerWindow
	}
	return p
}
