package domain

import (
	"slices"
	"strconv"
)

// UnlockSet is the sorted set of playable stage numbers in one level group.
// It may also hold the group's completion marker (stages+1).
type UnlockSet []int

// NewUnlockSet builds a normalized set: positive values only, ascending, no duplicates.
func NewUnlockSet(stages ...int) UnlockSet {
	set := make(UnlockSet, 0, len(stages))
	for _, s := range stages {
		if s > 0 {
			set = append(set, s)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Contains reports whether stage is in the set.
func (u UnlockSet) Contains(stage int) bool {
	_, found := slices.BinarySearch(u, stage)
	return found
}

// Union returns a new set holding the members of u and stages.
func (u UnlockSet) Union(stages ...int) UnlockSet {
	all := make([]int, 0, len(u)+len(stages))
	all = append(all, u...)
	all = append(all, stages...)
	return NewUnlockSet(all...)
}

// Highest returns the largest member, or 0 for an empty set.
func (u UnlockSet) Highest() int {
	if len(u) == 0 {
		return 0
	}
	return u[len(u)-1]
}

// Equal reports whether both sets hold the same members.
func (u UnlockSet) Equal(other UnlockSet) bool {
	return slices.Equal(u, other)
}

// UnlockState maps every level group to its unlock set.
type UnlockState map[LevelGroup]UnlockSet

// BaselineState returns the fresh-student shape: group 1 holds stage 1,
// every other group is locked.
func BaselineState(layout Layout) UnlockState {
	state := make(UnlockState, layout.Groups())
	for _, g := range layout.All() {
		state[g] = BaselineSet(g)
	}
	return state
}

// BaselineSet returns the unlock set a group starts with.
func BaselineSet(g LevelGroup) UnlockSet {
	if g == 1 {
		return UnlockSet{1}
	}
	return UnlockSet{}
}

// Clone returns a deep copy of the state.
func (s UnlockState) Clone() UnlockState {
	out := make(UnlockState, len(s))
	for g, set := range s {
		out[g] = slices.Clone(set)
	}
	return out
}

// Get returns the set for g, defaulting to the baseline for that group.
func (s UnlockState) Get(g LevelGroup) UnlockSet {
	if set, ok := s[g]; ok {
		return set
	}
	return BaselineSet(g)
}

// Keyed returns the state with string keys, the shape used for JSON output.
func (s UnlockState) Keyed() map[string]UnlockSet {
	out := make(map[string]UnlockSet, len(s))
	for g, set := range s {
		if set == nil {
			set = UnlockSet{}
		}
		out[strconv.Itoa(int(g))] = set
	}
	return out
}

// LocalProgress is the device-side progression document: the unlock sets
// plus how many stages of each group were finished with a correct answer.
type LocalProgress struct {
	Unlocked  UnlockState
	Completed map[LevelGroup]int
}

// BaselineProgress returns the fresh-student document.
func BaselineProgress(layout Layout) LocalProgress {
	return LocalProgress{
		Unlocked:  BaselineState(layout),
		Completed: make(map[LevelGroup]int),
	}
}

// Clone returns a deep copy of the document.
func (p LocalProgress) Clone() LocalProgress {
	completed := make(map[LevelGroup]int, len(p.Completed))
	for g, n := range p.Completed {
		completed[g] = n
	}
	return LocalProgress{Unlocked: p.Unlocked.Clone(), Completed: completed}
}

// CompletedStages returns the finished-stage count of g, clamped to the layout.
func (p LocalProgress) CompletedStages(layout Layout, g LevelGroup) int {
	return min(max(p.Completed[g], 0), layout.Stages(g))
}

// Reset returns g to its baseline and forgets its completed stages.
func (p LocalProgress) Reset(g LevelGroup) LocalProgress {
	next := p.Clone()
	next.Unlocked[g] = BaselineSet(g)
	delete(next.Completed, g)
	return next
}

// ApplyLocalCompletion folds one finished stage into the document. Unlock
// sets only grow by union and the completed count only grows by max, so
// replaying the same completion never changes the result. A wrong answer
// keeps the played stage open but completes nothing.
func ApplyLocalCompletion(p LocalProgress, layout Layout, g LevelGroup, stage int, correct bool) LocalProgress {
	next := p.Clone()
	stages := layout.Stages(g)

	set := next.Unlocked.Get(g).Union(1, stage)
	if correct {
		next.Completed[g] = max(next.Completed[g], min(stage, stages))
		if stage < stages {
			set = set.Union(stage + 1)
		} else if stage == stages {
			set = set.Union(layout.Marker(g))
		}
	}
	next.Unlocked[g] = set

	if set.Contains(layout.Marker(g)) {
		if ng, ok := layout.Next(g); ok {
			next.Unlocked[ng] = next.Unlocked.Get(ng).Union(1)
		}
	}
	return next
}
