package state_test

import (
	"fmt"
	"testing"
	"time"

	"review_notification_bot/internal/domain/review"
	"review_notification_bot/internal/domain/state"
)

var (
	now  = time.Date(2025, time.June, 15, 14, 30, 0, 0, time.UTC)
	opts = state.FilterOptions{RecentDays: 60, FutureSlackDays: 2, SeenCap: 100}
)

func daysAgo(n int) time.Time {
	return time.Date(2025, time.June, 15-n, 0, 0, 0, 0, time.UTC)
}

func rv(id int64, date time.Time) review.Review {
	return review.Review{
		ID:     id,
		Date:   date,
		Stars:  4,
		Title:  fmt.Sprintf("Review %d", id),
		Author: "someone",
		URL:    fmt.Sprintf("https://g2.example/%d", id),
	}
}

func ids(reviews []review.Review) []int64 {
	out := make([]int64, len(reviews))
	for i, r := range reviews {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFilter_FirstRunEmitsAllInOrder(t *testing.T) {
	fetched := []review.Review{
		rv(30, daysAgo(1)),
		rv(10, daysAgo(5)),
		rv(20, daysAgo(3)),
		rv(25, daysAgo(3)),
	}

	res := state.Filter(fetched, state.State{}, now, opts)

	if got, want := ids(res.New), []int64{10, 20, 25, 30}; !equalIDs(got, want) {
		t.Fatalf("New = %v, want %v", got, want)
	}
	if len(res.Updated.SeenReviewIDs) != 4 {
		t.Errorf("seen = %v, want all 4 ids", res.Updated.SeenReviewIDs)
	}
	for _, id := range []int64{10, 20, 25, 30} {
		if !res.Updated.Window(opts.SeenCap).Contains(id) {
			t.Errorf("id %d missing from seen window", id)
		}
	}
	if res.Updated.LastReviewID != 30 {
		t.Errorf("LastReviewID = %d, want 30", res.Updated.LastReviewID)
	}
}

func TestFilter_IdempotentAcrossRuns(t *testing.T) {
	fetched := []review.Review{rv(1, daysAgo(2)), rv(2, daysAgo(1))}

	first := state.Filter(fetched, state.State{}, now, opts)
	if len(first.New) != 2 {
		t.Fatalf("first run should emit 2, got %d", len(first.New))
	}

	for run := 0; run < 3; run++ {
		again := state.Filter(fetched, first.Updated, now, opts)
		if len(again.New) != 0 {
			t.Fatalf("run %d re-emitted %v", run, ids(again.New))
		}
		if again.Seen != 2 {
			t.Errorf("run %d: Seen = %d, want 2", run, again.Seen)
		}
		first = again
	}
}

func TestFilter_OrderIsByDateThenID(t *testing.T) {
	fetched := []review.Review{
		rv(5, daysAgo(0)),
		rv(900, daysAgo(10)),
		rv(3, daysAgo(0)),
		rv(100, daysAgo(10)),
	}
	res := state.Filter(fetched, state.State{}, now, opts)

	if got, want := ids(res.New), []int64{100, 900, 3, 5}; !equalIDs(got, want) {
		t.Errorf("New = %v, want %v", got, want)
	}
}

func TestFilter_RecencyWindow(t *testing.T) {
	fetched := []review.Review{
		rv(1, daysAgo(61)),          // too old
		rv(2, daysAgo(60)),          // oldest accepted day
		rv(3, daysAgo(-2)),          // two days ahead, within slack
		rv(4, daysAgo(-3)),          // beyond slack
		rv(5, daysAgo(365)),         // backfilled
		rv(6, now.AddDate(0, 0, 0)), // today
	}
	res := state.Filter(fetched, state.State{}, now, opts)

	if got, want := ids(res.New), []int64{2, 6, 3}; !equalIDs(got, want) {
		t.Errorf("New = %v, want %v", got, want)
	}
	if res.Stale != 3 {
		t.Errorf("Stale = %d, want 3", res.Stale)
	}
	// Stale reviews are still remembered.
	w := res.Updated.Window(opts.SeenCap)
	for _, id := range []int64{1, 4, 5} {
		if !w.Contains(id) {
			t.Errorf("stale id %d should be in the seen window", id)
		}
	}
}

func TestFilter_IncompleteReviewsAreHeldBack(t *testing.T) {
	broken := rv(7, daysAgo(1))
	broken.Title = ""

	res := state.Filter([]review.Review{broken, rv(8, daysAgo(1))}, state.State{}, now, opts)

	if got := ids(res.New); !equalIDs(got, []int64{8}) {
		t.Errorf("New = %v, want [8]", got)
	}
	if len(res.Incomplete) != 1 || res.Incomplete[0].ID != 7 {
		t.Errorf("Incomplete = %v", ids(res.Incomplete))
	}
}

func TestFilter_DuplicateIDsInFetchEmittedOnce(t *testing.T) {
	res := state.Filter([]review.Review{rv(4, daysAgo(1)), rv(4, daysAgo(1))}, state.State{}, now, opts)
	if len(res.New) != 1 {
		t.Errorf("expected 1 new review, got %v", ids(res.New))
	}
	if len(res.Updated.SeenReviewIDs) != 1 {
		t.Errorf("seen = %v, want one entry", res.Updated.SeenReviewIDs)
	}
}

func TestFilter_SeenNeverExceedsCap(t *testing.T) {
	small := opts
	small.SeenCap = 10

	prev := state.State{}
	for i := int64(1); i <= 40; i++ {
		prev.SeenReviewIDs = append(prev.SeenReviewIDs, i)
	}

	var fetched []review.Review
	for i := int64(100); i < 125; i++ {
		fetched = append(fetched, rv(i, daysAgo(int(125-i))))
	}

	res := state.Filter(fetched, prev, now, small)
	if n := len(res.Updated.SeenReviewIDs); n > small.SeenCap {
		t.Fatalf("seen size %d exceeds cap %d", n, small.SeenCap)
	}
	// The newest reviews survive truncation.
	w := res.Updated.Window(small.SeenCap)
	for i := int64(115); i < 125; i++ {
		if !w.Contains(i) {
			t.Errorf("recent id %d evicted; window %v", i, res.Updated.SeenReviewIDs)
		}
	}
}

func TestFilter_LastReviewIDIsMonotonic(t *testing.T) {
	prev := state.State{LastReviewID: 500}
	res := state.Filter([]review.Review{rv(10, daysAgo(1))}, prev, now, opts)
	if res.Updated.LastReviewID != 500 {
		t.Errorf("LastReviewID = %d, want 500", res.Updated.LastReviewID)
	}
}

func TestFilter_LeavesTimestampsAlone(t *testing.T) {
	prev := state.State{
		LastChecked:          state.At(now.Add(-time.Hour)),
		LastNotificationSent: state.At(now.Add(-48 * time.Hour)),
	}
	res := state.Filter([]review.Review{rv(1, daysAgo(1))}, prev, now, opts)
	if !res.Updated.LastChecked.Equal(prev.LastChecked.Time) || !res.Updated.LastNotificationSent.Equal(prev.LastNotificationSent.Time) {
		t.Errorf("Filter must not stamp times: %+v", res.Updated)
	}
}
