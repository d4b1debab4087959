package timeline

import (
	"fmt"
	"strings"
)

// Direction selects the neighbour a merge absorbs.
type Direction string

const (
	Previous Direction = "previous"
	Next     Direction = "next"
)

// ParseDirection accepts "previous"/"prev" and "next".
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "previous", "prev":
		return Previous, nil
	case "next":
		return Next, nil
	default:
		return "", invalid("merge", -1, InvariantNeighbor, "direction %q must be previous or next", value)
	}
}

// ChangeKind classifies a committed edit.
type ChangeKind string

const (
	ChangeBounds ChangeKind = "bounds"
	ChangeSplit  ChangeKind = "split"
	ChangeMerge  ChangeKind = "merge"
)

// Change describes how a committed edit moved scenes so owners of per-scene
// data can remap it. Indices refer to the timeline before the edit unless
// noted otherwise.
type Change struct {
	Kind ChangeKind
	// Index is the edited scene. For a split it is the scene that was cut;
	// for a merge it is the surviving scene.
	Index int
	// Resized lists scenes whose bounds moved (pre-edit indices, bounds edits only).
	Resized []int
	// Absorbed is the scene a merge discarded.
	Absorbed int
	// Result is the post-edit index of the scene produced by a split (its
	// first half) or a merge.
	Result int
}

// SetStart moves the start of scene index to at. The shared boundary with the
// previous scene moves with it.
func (t *Timeline) SetStart(index int, at float64) (Change, error) {
	const op = "set_start"
	if err := t.checkIndex(op, index); err != nil {
		return Change{}, err
	}
	next := t.Scenes()
	if err := moveStart(op, next, index, at); err != nil {
		return Change{}, err
	}
	return t.commit(op, next, Change{Kind: ChangeBounds, Index: index, Resized: touched(index, index-1), Result: index})
}

// SetEnd moves the end of scene index to at. The shared boundary with the
// next scene moves with it.
func (t *Timeline) SetEnd(index int, at float64) (Change, error) {
	const op = "set_end"
	if err := t.checkIndex(op, index); err != nil {
		return Change{}, err
	}
	next := t.Scenes()
	if err := moveEnd(op, next, index, at); err != nil {
		return Change{}, err
	}
	return t.commit(op, next, Change{Kind: ChangeBounds, Index: index, Resized: touched(index, index+1, len(next)), Result: index})
}

// Resize moves both bounds of scene index in one edit.
func (t *Timeline) Resize(index int, start, end float64) (Change, error) {
	const op = "resize"
	if err := t.checkIndex(op, index); err != nil {
		return Change{}, err
	}
	if start >= end {
		return Change{}, invalid(op, index, InvariantStartBeforeEnd, "start %s is not before end %s", seconds(start), seconds(end))
	}
	next := t.Scenes()
	resized := []int{index}
	// Apply the bound that widens first so the intermediate state stays valid.
	if start < next[index].Start {
		if err := moveStart(op, next, index, start); err != nil {
			return Change{}, err
		}
		if err := moveEnd(op, next, index, end); err != nil {
			return Change{}, err
		}
	} else {
		if err := moveEnd(op, next, index, end); err != nil {
			return Change{}, err
		}
		if err := moveStart(op, next, index, start); err != nil {
			return Change{}, err
		}
	}
	if index > 0 && next[index-1].End != t.scenes[index-1].End {
		resized = append([]int{index - 1}, resized...)
	}
	if index < len(next)-1 && next[index+1].Start != t.scenes[index+1].Start {
		resized = append(resized, index+1)
	}
	return t.commit(op, next, Change{Kind: ChangeBounds, Index: index, Resized: resized, Result: index})
}

// Split cuts scene index at time at, which must lie strictly inside it. Later
// scenes shift up by one.
func (t *Timeline) Split(index int, at float64) (Change, error) {
	const op = "split"
	if err := t.checkIndex(op, index); err != nil {
		return Change{}, err
	}
	scene := t.scenes[index]
	if !finite(at) {
		return Change{}, invalid(op, index, InvariantFinite, "split point %v is not finite", at)
	}
	if at <= scene.Start+Epsilon || at >= scene.End-Epsilon {
		return Change{}, invalid(op, index, InvariantSplitInside,
			"split point %s must lie strictly inside (%s, %s)", seconds(at), seconds(scene.Start), seconds(scene.End))
	}
	next := make([]Scene, 0, len(t.scenes)+1)
	next = append(next, t.scenes[:index]...)
	next = append(next,
		Scene{Start: scene.Start, End: at},
		Scene{Start: at, End: scene.End},
	)
	next = append(next, t.scenes[index+1:]...)
	reindex(next)
	return t.commit(op, next, Change{Kind: ChangeSplit, Index: index, Absorbed: -1, Result: index})
}

// Merge combines scene index with its neighbour in direction dir. The
// neighbour is absorbed; later scenes shift down by one.
func (t *Timeline) Merge(index int, dir Direction) (Change, error) {
	const op = "merge"
	if err := t.checkIndex(op, index); err != nil {
		return Change{}, err
	}
	var absorbed int
	switch dir {
	case Previous:
		absorbed = index - 1
	case Next:
		absorbed = index + 1
	default:
		return Change{}, invalid(op, index, InvariantNeighbor, "direction %q must be previous or next", dir)
	}
	if absorbed < 0 || absorbed >= len(t.scenes) {
		return Change{}, invalid(op, index, InvariantNeighbor, "scene has no %s neighbour", dir)
	}
	first, second := index, absorbed
	if absorbed < index {
		first, second = absorbed, index
	}
	merged := Scene{Start: t.scenes[first].Start, End: t.scenes[second].End}
	next := make([]Scene, 0, len(t.scenes)-1)
	next = append(next, t.scenes[:first]...)
	next = append(next, merged)
	next = append(next, t.scenes[second+1:]...)
	reindex(next)
	return t.commit(op, next, Change{Kind: ChangeMerge, Index: index, Absorbed: absorbed, Result: first})
}

func (t *Timeline) checkIndex(op string, index int) error {
	if t == nil || index < 0 || index >= len(t.scenes) {
		return sceneNotFound(op, index, t.Len())
	}
	return nil
}

// commit validates the candidate list and swaps it in only when every
// invariant holds.
func (t *Timeline) commit(op string, next []Scene, change Change) (Change, error) {
	if err := validate(op, next, t.duration); err != nil {
		return Change{}, err
	}
	t.scenes = next
	return change, nil
}

func moveStart(op string, scenes []Scene, index int, at float64) error {
	if !finite(at) {
		return invalid(op, index, InvariantFinite, "start %v is not finite", at)
	}
	if index == 0 {
		if at != 0 {
			return invalid(op, index, InvariantCoverageStart, "first scene must start at 0, got %s", seconds(at))
		}
		return nil
	}
	if at >= scenes[index].End {
		return invalid(op, index, InvariantStartBeforeEnd, "start %s is not before end %s", seconds(at), seconds(scenes[index].End))
	}
	prev := scenes[index-1]
	if at <= prev.Start {
		return invalid(op, index, InvariantContiguous,
			"start %s would collapse previous scene %d [%s, %s)", seconds(at), index-1, seconds(prev.Start), seconds(prev.End))
	}
	scenes[index].Start = at
	scenes[index-1].End = at
	return nil
}

func moveEnd(op string, scenes []Scene, index int, at float64) error {
	if !finite(at) {
		return invalid(op, index, InvariantFinite, "end %v is not finite", at)
	}
	last := len(scenes) - 1
	if index == last {
		if at != scenes[last].End {
			return invalid(op, index, InvariantCoverageEnd, "last scene must end at video end %s, got %s", seconds(scenes[last].End), seconds(at))
		}
		return nil
	}
	if at <= scenes[index].Start {
		return invalid(op, index, InvariantStartBeforeEnd, "end %s is not after start %s", seconds(at), seconds(scenes[index].Start))
	}
	following := scenes[index+1]
	if at >= following.End {
		return invalid(op, index, InvariantContiguous,
			"end %s would collapse next scene %d [%s, %s)", seconds(at), index+1, seconds(following.Start), seconds(following.End))
	}
	scenes[index].End = at
	scenes[index+1].Start = at
	return nil
}

func reindex(scenes []Scene) {
	for i := range scenes {
		scenes[i].Index = i
	}
}

// touched returns index plus the neighbour when it exists. An optional upper
// bound excludes neighbours past the end.
func touched(index, neighbour int, bound ...int) []int {
	limit := -1
	if len(bound) > 0 {
		limit = bound[0]
	}
	if neighbour < 0 || (limit >= 0 && neighbour >= limit) {
		return []int{index}
	}
	if neighbour < index {
		return []int{neighbour, index}
	}
	return []int{index, neighbour}
}

// String renders the timeline compactly for logs.
func (t *Timeline) String() string {
	if t == nil {
		return "timeline(nil)"
	}
	return fmt.Sprintf("timeline(%d scenes, %s)", len(t.scenes), seconds(t.duration))
}
