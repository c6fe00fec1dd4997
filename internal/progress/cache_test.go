package progress

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"unlock anonymous", unlockKey(""), "unlock/anonymous"},
		{"unlock user", unlockKey("alice"), "unlock/alice"},
		{"unlock escaped", unlockKey("a/b"), "unlock/a%2Fb"},
		{"stats", statsKey("alice", 2, 1), "stats/alice/2/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeState(t *testing.T) {
	layout := domain.DefaultLayout()
	state := domain.LocalProgress{
		Unlocked: domain.UnlockState{
			1: {1, 2, 3},
			2: {1},
			3: nil,
		},
		Completed: map[domain.LevelGroup]int{1: 2},
	}

	raw, err := encodeState("alice", state)
	if err != nil {
		t.Fatalf("encodeState() error = %v", err)
	}
	got, err := decodeState(raw, "alice", layout)
	if err != nil {
		t.Fatalf("decodeState() error = %v", err)
	}

	for _, g := range layout.All() {
		if !got.Unlocked.Get(g).Equal(state.Unlocked.Get(g)) {
			t.Errorf("group %d = %v, want %v", g, got.Unlocked.Get(g), state.Unlocked.Get(g))
		}
		if got.CompletedStages(layout, g) != state.CompletedStages(layout, g) {
			t.Errorf("group %d completed = %d, want %d", g, got.CompletedStages(layout, g), state.CompletedStages(layout, g))
		}
	}
}

func TestDecodeState_MissingGroupsUseBaseline(t *testing.T) {
	layout := domain.DefaultLayout()
	got, err := decodeState(`{"version":2,"user_id":"","groups":{"2":[1]},"completed":{}}`, "", layout)
	if err != nil {
		t.Fatalf("decodeState() error = %v", err)
	}
	if !got.Unlocked.Get(1).Equal(domain.UnlockSet{1}) {
		t.Errorf("group 1 = %v, want [1]", got.Unlocked.Get(1))
	}
	if !got.Unlocked.Get(2).Equal(domain.UnlockSet{1}) {
		t.Errorf("group 2 = %v, want [1]", got.Unlocked.Get(2))
	}
	if n := got.CompletedStages(layout, 1); n != 0 {
		t.Errorf("group 1 completed = %d, want 0", n)
	}
}

func TestDecodeState_Rejects(t *testing.T) {
	valid := `{"version":2,"user_id":"u","groups":{"1":[1]},"completed":{}}`

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"array", `[1,2]`},
		{"unknown field", `{"version":2,"user_id":"u","groups":{},"extra":true}`},
		{"old version", `{"version":1,"user_id":"u","groups":{}}`},
		{"wrong owner", `{"version":2,"user_id":"v","groups":{}}`},
		{"non-numeric group", `{"version":2,"user_id":"u","groups":{"one":[1]}}`},
		{"zero stage", `{"version":2,"user_id":"u","groups":{"1":[0]}}`},
		{"past marker", `{"version":2,"user_id":"u","groups":{"1":[4]}}`},
		{"negative completed", `{"version":2,"user_id":"u","groups":{},"completed":{"1":-1}}`},
		{"completed past stages", `{"version":2,"user_id":"u","groups":{},"completed":{"1":3}}`},
		{"completed unknown group", `{"version":2,"user_id":"u","groups":{},"completed":{"9":1}}`},
		{"second document", valid + `{}`},
		{"trailing garbage", valid + `garbage`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeState(tt.raw, "u", domain.DefaultLayout())
			if !errors.Is(err, domain.ErrCacheCorrupt) {
				t.Errorf("decodeState() error = %v, want ErrCacheCorrupt", err)
			}
		})
	}
}

func TestDecodeState_AllowsTrailingWhitespace(t *testing.T) {
	raw := "{\"version\":2,\"user_id\":\"u\",\"groups\":{}}\n"
	if _, err := decodeState(raw, "u", domain.DefaultLayout()); err != nil {
		t.Errorf("decodeState() error = %v", err)
	}
}

func TestDecodeStats(t *testing.T) {
	got, err := decodeStats(`{"correct":4,"wrong":2}`)
	if err != nil {
		t.Fatalf("decodeStats() error = %v", err)
	}
	if got != (domain.AnswerStats{Correct: 4, Wrong: 2}) {
		t.Errorf("decodeStats() = %+v", got)
	}

	for _, raw := range []string{
		"nope",
		`{"correct":-1,"wrong":0}`,
		`{"right":1}`,
		`{"correct":1,"wrong":0}{"correct":9,"wrong":0}`,
		`{"correct":1,"wrong":0} x`,
	} {
		if _, err := decodeStats(raw); !errors.Is(err, domain.ErrCacheCorrupt) {
			t.Errorf("decodeStats(%q) error = %v, want ErrCacheCorrupt", raw, err)
		}
	}
}
