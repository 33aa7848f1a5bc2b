package database

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"

	"review_notification_bot/internal/domain/state"
)

func TestLoadStateQuery(t *testing.T) {
	query, args, err := loadStateQuery("g2-bright-data")
	if err != nil {
		t.Fatalf("loadStateQuery: %v", err)
	}

	want := "SELECT last_review_id, seen_review_ids, last_checked, last_notification_sent FROM monitor_state WHERE monitor_key = $1"
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
	if len(args) != 1 || args[0] != "g2-bright-data" {
		t.Errorf("args = %v", args)
	}
}

func TestSaveStateQuery(t *testing.T) {
	checked := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	query, args, err := saveStateQuery("default", state.State{
		LastReviewID:  99,
		SeenReviewIDs: []int64{98, 99},
		LastChecked:   state.At(checked),
	})
	if err != nil {
		t.Fatalf("saveStateQuery: %v", err)
	}

	if !strings.HasPrefix(query, "INSERT INTO monitor_state (monitor_key,last_review_id,seen_review_ids,last_checked,last_notification_sent) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (monitor_key) DO UPDATE") {
		t.Errorf("unexpected query: %s", query)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != "default" || args[1] != int64(99) {
		t.Errorf("unexpected key/id args: %v", args[:2])
	}
	if ids, ok := args[2].(*pq.Int64Array); !ok || len(*ids) != 2 {
		t.Errorf("seen ids arg = %#v", args[2])
	}
	if nt := args[3].(sql.NullTime); !nt.Valid || !nt.Time.Equal(checked) {
		t.Errorf("last_checked arg = %#v", nt)
	}
	if nt := args[4].(sql.NullTime); nt.Valid {
		t.Errorf("zero last_notification_sent should be NULL, got %#v", nt)
	}
}

func TestSaveStateQuery_NilSeenIsEmptyArray(t *testing.T) {
	_, args, err := saveStateQuery("default", state.State{})
	if err != nil {
		t.Fatalf("saveStateQuery: %v", err)
	}
	ids, ok := args[2].(*pq.Int64Array)
	if !ok || *ids == nil {
		t.Errorf("expected non-nil empty array, got %#v", args[2])
	}
}
