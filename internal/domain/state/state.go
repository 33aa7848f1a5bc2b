// internal/domain/state/state.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultSeenCap bounds the dedup window.
const DefaultSeenCap = 100

// State is what survives between runs.
type State struct {
	LastReviewID         int64     `json:"last_review_id"`
	SeenReviewIDs        []int64   `json:"seen_review_ids"` // Oldest first
	LastChecked          Timestamp `json:"last_checked"`
	LastNotificationSent Timestamp `json:"last_notification_sent"`
}

// Repository loads and stores the monitor state. Save must replace the stored
// state as a whole or not at all.
type Repository interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Window returns the seen identifiers as a dedup window bounded by limit.
func (s State) Window(limit int) *SeenWindow {
	w := NewSeenWindow(limit)
	for _, id := range s.SeenReviewIDs {
		w.Observe(id)
	}
	return w
}

// Timestamp is a time.Time that reads both RFC 3339 and the naive ISO-8601
// form written by older state files. A zero value marshals to null.
type Timestamp struct {
	time.Time
}

// Naive timestamps were written in the host's local time.
var naiveLocation = time.Local

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range legacyLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, naiveLocation); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}
