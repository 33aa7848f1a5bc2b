// internal/domain/review/review.go
package review

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Review is a product review that passed boundary validation.
type Review struct {
	ID     int64
	Date   time.Time // Calendar date, normalized to UTC midnight
	Stars  float64
	Title  string
	Author string
	URL    string
	Text   []string // Paragraphs as delivered by the provider
}

// Payload mirrors one record of the provider's dataset. Every field is optional
// here; FromPayload decides what is acceptable.
type Payload struct {
	ReviewID  json.RawMessage `json:"review_id"`
	Date      *string         `json:"date"`
	Stars     json.RawMessage `json:"stars"`
	Title     *string         `json:"title"`
	Author    *string         `json:"author"`
	ReviewURL *string         `json:"review_url"`
	Text      []string        `json:"text"`
}

// ValidationError reports a record that cannot be turned into a Review.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid review field %q: %s", e.Field, e.Reason)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"January 2, 2006",
	"Jan 2, 2006",
}

// FromPayload parses the identifier and date, which are required for any
// further processing. Emission fields are parsed when present and checked
// separately by Complete.
func FromPayload(p Payload) (Review, error) {
	id, err := parseID(p.ReviewID)
	if err != nil {
		return Review{}, err
	}

	if p.Date == nil || strings.TrimSpace(*p.Date) == "" {
		return Review{}, &ValidationError{Field: "date", Reason: "missing"}
	}
	date, err := ParseDate(*p.Date)
	if err != nil {
		return Review{}, &ValidationError{Field: "date", Reason: err.Error()}
	}

	r := Review{
		ID:     id,
		Date:   date,
		Title:  deref(p.Title),
		Author: deref(p.Author),
		URL:    deref(p.ReviewURL),
		Text:   p.Text,
	}

	if len(p.Stars) > 0 && string(p.Stars) != "null" {
		stars, err := parseNumber(p.Stars)
		if err != nil {
			return Review{}, &ValidationError{Field: "stars", Reason: err.Error()}
		}
		r.Stars = stars
	}

	return r, nil
}

// Complete reports whether the review carries everything a notification needs.
func (r Review) Complete() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return &ValidationError{Field: "title", Reason: "missing"}
	case strings.TrimSpace(r.Author) == "":
		return &ValidationError{Field: "author", Reason: "missing"}
	case r.Stars <= 0:
		return &ValidationError{Field: "stars", Reason: "missing"}
	case strings.TrimSpace(r.URL) == "":
		return &ValidationError{Field: "review_url", Reason: "missing"}
	}
	return nil
}

// ParseDate accepts the date shapes the provider has been seen to emit and
// returns the calendar day at UTC midnight.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// SortChronologically orders reviews by (date, id), oldest first.
func SortChronologically(reviews []Review) {
	sort.SliceStable(reviews, func(i, j int) bool {
		if !reviews[i].Date.Equal(reviews[j].Date) {
			return reviews[i].Date.Before(reviews[j].Date)
		}
		return reviews[i].ID < reviews[j].ID
	})
}

func parseID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, &ValidationError{Field: "review_id", Reason: "missing"}
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		// Some exports quote the identifier.
		var s string
		if errStr := json.Unmarshal(raw, &s); errStr != nil {
			return 0, &ValidationError{Field: "review_id", Reason: "not a number"}
		}
		n = json.Number(strings.TrimSpace(s))
	}

	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "review_id", Reason: "not an integer"}
	}
	if id <= 0 {
		return 0, &ValidationError{Field: "review_id", Reason: "not positive"}
	}
	return id, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
