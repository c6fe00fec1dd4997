package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		name    string
		stages  []int
		wantErr bool
	}{
		{"default shape", []int{2, 2, 2}, false},
		{"uneven groups", []int{3, 1, 5, 2}, false},
		{"empty", nil, true},
		{"zero stage group", []int{2, 0}, true},
		{"negative", []int{-1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.stages)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLayout(%v) error = %v, wantErr %v", tt.stages, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestLayout_ClampStage(t *testing.T) {
	layout, _ := NewLayout([]int{2, 4})

	tests := []struct {
		group LevelGroup
		stage int
		want  int
	}{
		{1, 0, 1},
		{1, -3, 1},
		{1, 1, 1},
		{1, 2, 2},
		{1, 9, 2},
		{2, 3, 3},
		{2, 7, 4},
	}

	for _, tt := range tests {
		if got := layout.ClampStage(tt.group, tt.stage); got != tt.want {
			t.Errorf("ClampStage(%d, %d) = %d, want %d", tt.group, tt.stage, got, tt.want)
		}
	}
}

func TestLayout_Accessors(t *testing.T) {
	layout, _ := NewLayout([]int{2, 3, 1})

	if layout.Groups() != 3 {
		t.Errorf("Groups() = %d, want 3", layout.Groups())
	}
	if layout.TotalStages() != 6 {
		t.Errorf("TotalStages() = %d, want 6", layout.TotalStages())
	}
	if layout.Marker(2) != 4 {
		t.Errorf("Marker(2) = %d, want 4", layout.Marker(2))
	}
	if layout.Valid(0) || layout.Valid(4) {
		t.Error("Valid() accepted an out-of-range group")
	}
	if _, ok := layout.Next(3); ok {
		t.Error("Next(3) should not exist")
	}
	if next, ok := layout.Next(1); !ok || next != 2 {
		t.Errorf("Next(1) = %d, %v, want 2, true", next, ok)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		part, whole, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{5, 5, 100},
	}

	for _, tt := range tests {
		if got := Percent(tt.part, tt.whole); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.part, tt.whole, got, tt.want)
		}
	}
}

func TestApplyCompletion(t *testing.T) {
	layout := DefaultLayout()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := NewProgressRecord("u1", 1)
	rec = ApplyCompletion(rec, layout, 1, true, now)

	if rec.TotalAttempts != 1 || rec.CorrectAnswers != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", rec.CorrectAnswers, rec.TotalAttempts)
	}
	if rec.CompletedStages != 1 || rec.CurrentStage != 2 {
		t.Errorf("completed/current = %d/%d, want 1/2", rec.CompletedStages, rec.CurrentStage)
	}
	if rec.Accuracy != 100 || rec.CompletionRate != 50 {
		t.Errorf("accuracy/completion = %d/%d, want 100/50", rec.Accuracy, rec.CompletionRate)
	}
	if !rec.LastPlayed.Equal(now) {
		t.Errorf("LastPlayed = %v, want %v", rec.LastPlayed, now)
	}

	rec = ApplyCompletion(rec, layout, 2, false, now)
	if rec.Accuracy != 50 {
		t.Errorf("Accuracy = %d, want 50", rec.Accuracy)
	}
	if rec.CompletedStages != 1 {
		t.Errorf("wrong answer changed CompletedStages to %d", rec.CompletedStages)
	}

	rec = ApplyCompletion(rec, layout, 99, true, now)
	if rec.CompletedStages != 2 || rec.CurrentStage != 2 {
		t.Errorf("clamped completion = %d/%d, want 2/2", rec.CompletedStages, rec.CurrentStage)
	}
	if !rec.Complete(layout) {
		t.Error("record should be complete")
	}
}

func TestDeriveUnlockSet(t *testing.T) {
	layout := DefaultLayout()
	complete := &ProgressRecord{LevelGroup: 1, CurrentStage: 2, CompletedStages: 2}
	partial := &ProgressRecord{LevelGroup: 1, CurrentStage: 2, CompletedStages: 1}

	tests := []struct {
		name  string
		group LevelGroup
		rec   *ProgressRecord
		prev  *ProgressRecord
		want  UnlockSet
	}{
		{"group 1 without record", 1, nil, nil, UnlockSet{1}},
		{"group 1 half done", 1, partial, nil, UnlockSet{1, 2}},
		{"group 1 done", 1, complete, nil, UnlockSet{1, 2, 3}},
		{"group 2 gated without rows", 2, nil, nil, UnlockSet{}},
		{"group 2 gated by partial", 2, nil, partial, UnlockSet{}},
		{"group 2 opened", 2, nil, complete, UnlockSet{1}},
		{"group 2 record but previous reset", 2, &ProgressRecord{LevelGroup: 2, CurrentStage: 2, CompletedStages: 1}, nil, UnlockSet{}},
		{"group 2 record with previous done", 2, &ProgressRecord{LevelGroup: 2, CurrentStage: 1, CompletedStages: 0}, complete, UnlockSet{1}},
		{"out of range counters", 1, &ProgressRecord{LevelGroup: 1, CurrentStage: 40, CompletedStages: -2}, nil, UnlockSet{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveUnlockSet(layout, tt.group, tt.rec, tt.prev)
			if !got.Equal(tt.want) {
				t.Errorf("DeriveUnlockSet() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserStats(t *testing.T) {
	stats := NewUserStats(0, 0)
	if stats != (UserStats{}) {
		t.Errorf("NewUserStats(0, 0) = %+v, want zero value", stats)
	}

	stats = NewUserStats(3, 4)
	want := UserStats{Accuracy: 75, TotalAttempts: 4, CorrectAnswers: 3, WrongAnswers: 1}
	if stats != want {
		t.Errorf("NewUserStats(3, 4) = %+v, want %+v", stats, want)
	}

	// inconsistent input never yields negative wrong answers
	stats = NewUserStats(5, 2)
	if stats.WrongAnswers != 0 || stats.Accuracy != 100 {
		t.Errorf("NewUserStats(5, 2) = %+v", stats)
	}
}
