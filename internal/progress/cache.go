package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/felixgeelhaar/fracquest/internal/domain"
)

const (
	cacheSchemaVersion = 2
	anonymousUser      = "anonymous"
)

// cachedState is the on-device progression document for one user.
type cachedState struct {
	Version   int              `json:"version"`
	UserID    string           `json:"user_id"`
	Groups    map[string][]int `json:"groups"`
	Completed map[string]int   `json:"completed"`
}

func userSegment(userID string) string {
	if userID == "" {
		return anonymousUser
	}
	return url.PathEscape(userID)
}

func unlockKey(userID string) string {
	return "unlock/" + userSegment(userID)
}

func statsKey(userID string, g domain.LevelGroup, stage int) string {
	return fmt.Sprintf("stats/%s/%d/%d", userSegment(userID), g, stage)
}

func encodeState(userID string, p domain.LocalProgress) (string, error) {
	doc := cachedState{
		Version:   cacheSchemaVersion,
		UserID:    userID,
		Groups:    make(map[string][]int, len(p.Unlocked)),
		Completed: make(map[string]int, len(p.Completed)),
	}
	for g, set := range p.Unlocked {
		members := []int(set)
		if members == nil {
			members = []int{}
		}
		doc.Groups[strconv.Itoa(int(g))] = members
	}
	for g, n := range p.Completed {
		if n > 0 {
			doc.Completed[strconv.Itoa(int(g))] = n
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode unlock state: %w", err)
	}
	return string(data), nil
}

// decodeStrict decodes exactly one JSON value with no unknown fields.
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after document", domain.ErrCacheCorrupt)
	}
	return nil
}

// decodeState validates a cached document against the layout and the
// expected owner. Anything unexpected is reported as ErrCacheCorrupt.
func decodeState(raw, userID string, layout domain.Layout) (domain.LocalProgress, error) {
	var doc cachedState
	if err := decodeStrict(raw, &doc); err != nil {
		return domain.LocalProgress{}, err
	}
	if doc.Version != cacheSchemaVersion {
		return domain.LocalProgress{}, fmt.Errorf("%w: schema version %d", domain.ErrCacheCorrupt, doc.Version)
	}
	if doc.UserID != userID {
		return domain.LocalProgress{}, fmt.Errorf("%w: document belongs to another user", domain.ErrCacheCorrupt)
	}

	p := domain.BaselineProgress(layout)
	for key, members := range doc.Groups {
		g, err := parseGroupKey(key, layout)
		if err != nil {
			return domain.LocalProgress{}, err
		}
		for _, s := range members {
			if s < 1 || s > layout.Marker(g) {
				return domain.LocalProgress{}, fmt.Errorf("%w: stage %d out of range for group %d", domain.ErrCacheCorrupt, s, g)
			}
		}
		p.Unlocked[g] = domain.NewUnlockSet(members...)
	}
	for key, n := range doc.Completed {
		g, err := parseGroupKey(key, layout)
		if err != nil {
			return domain.LocalProgress{}, err
		}
		if n < 0 || n > layout.Stages(g) {
			return domain.LocalProgress{}, fmt.Errorf("%w: %d completed stages in group %d", domain.ErrCacheCorrupt, n, g)
		}
		p.Completed[g] = n
	}
	return p, nil
}

func parseGroupKey(key string, layout domain.Layout) (domain.LevelGroup, error) {
	n, err := strconv.Atoi(key)
	g := domain.LevelGroup(n)
	if err != nil || !layout.Valid(g) {
		return 0, fmt.Errorf("%w: unknown level group %q", domain.ErrCacheCorrupt, key)
	}
	return g, nil
}

func decodeStats(raw string) (domain.AnswerStats, error) {
	var stats domain.AnswerStats
	if err := decodeStrict(raw, &stats); err != nil {
		return domain.AnswerStats{}, err
	}
	if stats.Correct < 0 || stats.Wrong < 0 {
		return domain.AnswerStats{}, fmt.Errorf("%w: negative answer tally", domain.ErrCacheCorrupt)
	}
	return stats, nil
}
