package review

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// ExcerptLimit is the maximum number of runes kept from the first paragraph.
	ExcerptLimit   = 500
	noTextFallback = "No review text available"
	answerMarker   = "Answer:"
)

// Excerpt returns the first paragraph of the review as plain text. G2 exports
// prefix answers with the question text followed by "Answer:". The question is
// cut, as is everything from the next "Answer:" on.
func (r Review) Excerpt() string {
	if len(r.Text) == 0 {
		return noTextFallback
	}

	text := stripMarkup(r.Text[0])
	if _, after, found := strings.Cut(text, answerMarker); found {
		// Only the first answer is kept.
		text, _, _ = strings.Cut(after, answerMarker)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return noTextFallback
	}

	runes := []rune(text)
	if len(runes) > ExcerptLimit {
		return string(runes[:ExcerptLimit]) + "..."
	}
	return text
}

// RatingLine renders "4.5/5 ⭐⭐⭐⭐".
func (r Review) RatingLine() string {
	return strings.TrimSpace(formatStars(r.Stars) + "/5 " + strings.Repeat("⭐", int(r.Stars)))
}

func formatStars(stars float64) string {
	return strconv.FormatFloat(stars, 'f', -1, 64)
}

func stripMarkup(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
