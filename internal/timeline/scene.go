package timeline

import (
	"encoding/json"
	"fmt"
	"math"
)

// Epsilon is the tolerance for comparing scene boundaries. Differences below it
// are float noise and are snapped rather than rejected.
const Epsilon = 1e-6

// Scene is a half-open interval [Start, End) of the edited video, in seconds.
type Scene struct {
	Index int     `json:"index"`
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
}

// Duration returns the scene length in seconds.
func (s Scene) Duration() float64 { return s.End - s.Start }

// Contains reports whether t falls inside the half-open interval.
func (s Scene) Contains(t float64) bool { return t >= s.Start && t < s.End }

// Timeline is the validated scene list for one project. It is not safe for
// concurrent mutation; owners serialize edits.
type Timeline struct {
	scenes   []Scene
	duration float64
}

// New validates scenes against the video duration and returns a timeline that
// owns a copy of them. Malformed input is rejected, never repaired.
func New(scenes []Scene, duration float64) (*Timeline, error) {
	copied := append([]Scene(nil), scenes...)
	if err := validate("load", copied, duration); err != nil {
		return nil, err
	}
	snap(copied, duration)
	return &Timeline{scenes: copied, duration: duration}, nil
}

// FromDetector validates scene detector output. Unordered, overlapping or
// gapped scenes and scenes that do not cover [0, duration] are rejected.
func FromDetector(scenes []Scene, duration float64) (*Timeline, error) {
	copied := append([]Scene(nil), scenes...)
	if err := validate("detect", copied, duration); err != nil {
		return nil, err
	}
	snap(copied, duration)
	return &Timeline{scenes: copied, duration: duration}, nil
}

// Whole returns a single-scene timeline spanning the full video, which is the
// detector's result for clips too short to cut.
func Whole(duration float64) (*Timeline, error) {
	return New([]Scene{{Index: 0, Start: 0, End: duration}}, duration)
}

// Len returns the number of scenes.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.scenes)
}

// Duration returns the covered video length.
func (t *Timeline) Duration() float64 {
	if t == nil {
		return 0
	}
	return t.duration
}

// Scenes returns a copy of the scene list.
func (t *Timeline) Scenes() []Scene {
	if t == nil {
		return nil
	}
	return append([]Scene(nil), t.scenes...)
}

// Scene returns the scene at index.
func (t *Timeline) Scene(index int) (Scene, error) {
	if t == nil || index < 0 || index >= len(t.scenes) {
		return Scene{}, sceneNotFound("lookup", index, t.Len())
	}
	return t.scenes[index], nil
}

// Clone returns an independent copy.
func (t *Timeline) Clone() *Timeline {
	if t == nil {
		return nil
	}
	return &Timeline{scenes: t.Scenes(), duration: t.duration}
}

// Validate re-checks every invariant; it is cheap and used after restores.
func (t *Timeline) Validate() error {
	if t == nil {
		return invalid("validate", -1, InvariantNonEmpty, "timeline is nil")
	}
	return validate("validate", t.scenes, t.duration)
}

type timelineJSON struct {
	Duration float64 `json:"duration"`
	Scenes   []Scene `json:"scenes"`
}

func (t *Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(timelineJSON{Duration: t.Duration(), Scenes: t.Scenes()})
}

// UnmarshalJSON rejects documents that do not satisfy the timeline invariants.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	var doc timelineJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := New(doc.Scenes, doc.Duration)
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

func validate(op string, scenes []Scene, duration float64) error {
	if len(scenes) == 0 {
		return invalid(op, -1, InvariantNonEmpty, "no scenes")
	}
	if !finite(duration) || duration <= 0 {
		return invalid(op, -1, InvariantFinite, "video duration %v must be positive and finite", duration)
	}
	for i, scene := range scenes {
		if scene.Index != i {
			return invalid(op, i, InvariantOrdered, "scene at position %d carries index %d", i, scene.Index)
		}
		if !finite(scene.Start) || !finite(scene.End) {
			return invalid(op, i, InvariantFinite, "bounds [%v, %v) are not finite", scene.Start, scene.End)
		}
		if scene.Start >= scene.End {
			return invalid(op, i, InvariantStartBeforeEnd, "start %s is not before end %s", seconds(scene.Start), seconds(scene.End))
		}
		if i > 0 {
			prev := scenes[i-1]
			if math.Abs(prev.End-scene.Start) > Epsilon {
				if scene.Start < prev.End {
					return invalid(op, i, InvariantContiguous, "overlaps scene %d (starts %s before its end %s)", i-1, seconds(scene.Start), seconds(prev.End))
				}
				return invalid(op, i, InvariantContiguous, "gap after scene %d (%s to %s uncovered)", i-1, seconds(prev.End), seconds(scene.Start))
			}
		}
	}
	if math.Abs(scenes[0].Start) > Epsilon {
		return invalid(op, 0, InvariantCoverageStart, "first scene starts at %s, want 0", seconds(scenes[0].Start))
	}
	last := len(scenes) - 1
	if math.Abs(scenes[last].End-duration) > Epsilon {
		return invalid(op, last, InvariantCoverageEnd, "last scene ends at %s, video ends at %s", seconds(scenes[last].End), seconds(duration))
	}
	return nil
}

// snap aligns boundaries that differ only by float noise.
func snap(scenes []Scene, duration float64) {
	scenes[0].Start = 0
	for i := 1; i < len(scenes); i++ {
		scenes[i].Start = scenes[i-1].End
	}
	scenes[len(scenes)-1].End = duration
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func seconds(v float64) string {
	return fmt.Sprintf("%.3fs", v)
}
