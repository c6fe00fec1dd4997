package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ProgressRecord is the authoritative per-user, per-group progress row.
type ProgressRecord struct {
	UserID          string     `json:"user_id"`
	LevelGroup      LevelGroup `json:"level_group"`
	CurrentStage    int        `json:"current_stage"`
	CompletedStages int        `json:"completed_stages"`
	TotalAttempts   int        `json:"total_attempts"`
	CorrectAnswers  int        `json:"correct_answers"`
	Accuracy        int        `json:"accuracy"`
	// CompletionRate is negative when the store has no value for it.
	CompletionRate int       `json:"completion_rate"`
	LastPlayed     time.Time `json:"last_played"`
}

// NewProgressRecord returns the implicit defaults a record starts from.
func NewProgressRecord(userID string, g LevelGroup) ProgressRecord {
	return ProgressRecord{
		UserID:         userID,
		LevelGroup:     g,
		CurrentStage:   1,
		CompletionRate: -1,
	}
}

// Percent returns round(part/whole*100), or 0 when whole is not positive.
func Percent(part, whole int) int {
	if whole <= 0 || part <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// Recompute refreshes the derived accuracy and completion rate fields.
func (r *ProgressRecord) Recompute(stages int) {
	r.Accuracy = Percent(r.CorrectAnswers, r.TotalAttempts)
	r.CompletionRate = Percent(r.CompletedStages, stages)
}

// Complete reports whether every stage of the group is done.
func (r ProgressRecord) Complete(layout Layout) bool {
	return r.CompletedStages >= layout.Stages(r.LevelGroup)
}

// ApplyCompletion returns the record after one finished session on stage.
// Counters increase on every call; stage bounds only move forward.
func ApplyCompletion(r ProgressRecord, layout Layout, stage int, correct bool, now time.Time) ProgressRecord {
	stages := layout.Stages(r.LevelGroup)
	stage = layout.ClampStage(r.LevelGroup, stage)

	r.TotalAttempts++
	r.CurrentStage = max(r.CurrentStage, stage)
	if correct {
		r.CorrectAnswers++
		r.CompletedStages = max(r.CompletedStages, stage)
		r.CurrentStage = max(r.CurrentStage, min(stage+1, stages))
	}
	r.CurrentStage = min(max(r.CurrentStage, 1), stages)
	r.CompletedStages = min(max(r.CompletedStages, 0), stages)
	r.Recompute(stages)
	r.LastPlayed = now
	return r
}

// DeriveUnlockSet builds a group's unlock set from its remote record and the
// previous group's record. Either may be nil when no row exists.
func DeriveUnlockSet(layout Layout, g LevelGroup, rec, prev *ProgressRecord) UnlockSet {
	if g > 1 && (prev == nil || !prev.Complete(layout)) {
		return UnlockSet{}
	}
	if rec == nil {
		return UnlockSet{1}
	}

	stages := layout.Stages(g)
	reached := max(min(rec.CurrentStage, stages), 1)
	completed := min(max(rec.CompletedStages, 0), stages)

	members := make([]int, 0, stages+1)
	for s := 1; s <= max(reached, completed); s++ {
		members = append(members, s)
	}
	if completed >= stages {
		members = append(members, layout.Marker(g))
	}
	return NewUnlockSet(members...)
}

// AnswerStats is the local tally of answers for one stage.
type AnswerStats struct {
	Correct int `json:"correct"`
	Wrong   int `json:"wrong"`
}

// UserStats aggregates answers across every group and stage.
type UserStats struct {
	Accuracy       int `json:"accuracy"`
	TotalAttempts  int `json:"total_attempts"`
	CorrectAnswers int `json:"correct_answers"`
	WrongAnswers   int `json:"wrong_answers"`
}

// NewUserStats derives a well-formed stats value from raw totals.
func NewUserStats(correct, total int) UserStats {
	correct = max(correct, 0)
	total = max(total, correct)
	return UserStats{
		Accuracy:       Percent(correct, total),
		TotalAttempts:  total,
		CorrectAnswers: correct,
		WrongAnswers:   total - correct,
	}
}

// Attempt is one entry of the remote attempt log.
type Attempt struct {
	ID            uuid.UUID         `json:"id"`
	UserID        string            `json:"user_id"`
	LevelGroup    LevelGroup        `json:"level_group"`
	Stage         int               `json:"stage"`
	IsCorrect     bool              `json:"is_correct"`
	TimeRemaining float64           `json:"time_remaining"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	AttemptedAt   time.Time         `json:"attempted_at"`
}
