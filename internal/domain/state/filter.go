package state

import (
	"time"

	"review_notification_bot/internal/domain/review"
)

// Window settings for new-review detection.
type FilterOptions struct {
	RecentDays      int // Oldest acceptable review date, in days before today
	FutureSlackDays int // Newest acceptable review date, in days after today
	SeenCap         int
}

// FilterResult is the outcome of comparing a fetch against previous state.
type FilterResult struct {
	New        []review.Review // Unseen, recent, complete; oldest first
	Incomplete []review.Review // Unseen and recent but missing emission fields
	Stale      int             // Unseen but outside the recency window
	Seen       int             // Already in the window
	Updated    State           // Previous state with this fetch merged in
}

// Filter selects the reviews that still need a notification and merges every
// fetched ID into the dedup window. Timestamps in Updated are left as they
// were in prev; the caller stamps them when the run completes.
func Filter(reviews []review.Review, prev State, now time.Time, opts FilterOptions) FilterResult {
	window := prev.Window(opts.SeenCap)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	earliest := today.AddDate(0, 0, -opts.RecentDays)
	latest := today.AddDate(0, 0, opts.FutureSlackDays)

	var res FilterResult
	maxID := prev.LastReviewID

	for _, r := range reviews {
		if r.ID > maxID {
			maxID = r.ID
		}

		switch {
		case window.Contains(r.ID):
			res.Seen++
		case r.Date.Before(earliest) || r.Date.After(latest):
			res.Stale++
		case r.Complete() != nil:
			res.Incomplete = append(res.Incomplete, r)
		default:
			res.New = append(res.New, r)
		}
	}

	// Duplicate IDs within one fetch are emitted once.
	res.New = uniqueByID(res.New)
	review.SortChronologically(res.New)

	// Observe oldest first so the newest reviews are the last to be evicted.
	observed := make([]review.Review, len(reviews))
	copy(observed, reviews)
	review.SortChronologically(observed)
	for _, r := range observed {
		window.Observe(r.ID)
	}

	res.Updated = prev
	res.Updated.LastReviewID = maxID
	res.Updated.SeenReviewIDs = window.IDs()
	return res
}

func uniqueByID(reviews []review.Review) []review.Review {
	seen := make(map[int64]struct{}, len(reviews))
	out := reviews[:0]
	for _, r := range reviews {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
