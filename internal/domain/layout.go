package domain

import "fmt"

// LevelGroup identifies a themed group of stages ("world"), starting at 1.
type LevelGroup int

// DefaultStagesPerLevel is the stage count used when no layout is configured.
var DefaultStagesPerLevel = []int{2, 2, 2}

// Layout describes how many stages each level group holds.
// Index 0 holds the stage count of group 1.
type Layout struct {
	stages []int
}

// NewLayout validates stage counts and returns a Layout
func NewLayout(stagesPerLevel []int) (Layout, error) {
	if len(stagesPerLevel) == 0 {
		return Layout{}, fmt.Errorf("%w: at least one level group is required", ErrInvalidLayout)
	}
	stages := make([]int, len(stagesPerLevel))
	for i, n := range stagesPerLevel {
		if n < 1 {
			return Layout{}, fmt.Errorf("%w: level group %d has %d stages", ErrInvalidLayout, i+1, n)
		}
		stages[i] = n
	}
	return Layout{stages: stages}, nil
}

// DefaultLayout returns the three two-stage groups the game ships with
func DefaultLayout() Layout {
	layout, _ := NewLayout(DefaultStagesPerLevel)
	return layout
}

// Groups returns the number of configured level groups.
func (l Layout) Groups() int {
	return len(l.stages)
}

// Valid reports whether g is a configured level group.
func (l Layout) Valid(g LevelGroup) bool {
	return g >= 1 && int(g) <= len(l.stages)
}

// Stages returns the number of stages in g, or 0 for an unknown group.
func (l Layout) Stages(g LevelGroup) int {
	if !l.Valid(g) {
		return 0
	}
	return l.stages[g-1]
}

// Marker returns the completion marker of g (one past its last stage).
func (l Layout) Marker(g LevelGroup) int {
	return l.Stages(g) + 1
}

// ClampStage forces stage into [1, Stages(g)].
func (l Layout) ClampStage(g LevelGroup, stage int) int {
	n := l.Stages(g)
	if n == 0 {
		return 1
	}
	return min(max(stage, 1), n)
}

// TotalStages sums stage counts across all groups.
func (l Layout) TotalStages() int {
	total := 0
	for _, n := range l.stages {
		total += n
	}
	return total
}

// Next returns the group after g, if one exists.
func (l Layout) Next(g LevelGroup) (LevelGroup, bool) {
	next := g + 1
	return next, l.Valid(next)
}

// All returns every configured group in order.
func (l Layout) All() []LevelGroup {
	groups := make([]LevelGroup, len(l.stages))
	for i := range l.stages {
		groups[i] = LevelGroup(i + 1)
	}
	return groups
}

// StagesPerLevel returns a copy of the configured stage counts.
func (l Layout) StagesPerLevel() []int {
	out := make([]int, len(l.stages))
	copy(out, l.stages)
	return out
}
