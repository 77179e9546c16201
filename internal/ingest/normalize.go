package ingest

import (
	"math"
	"strings"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

const (
	defaultConfidence = 0.8
	maxTitleRunes     = 200
	maxQuoteRunes     = 500
)

// Normalize turns an analyzer candidate into a storable entry. Candidates
// without a title or content are dropped. Unknown types become insights,
// confidence is clamped to [0,1] (NaN counts as missing), and missing times fall back to the
// chunk's time range.
func Normalize(c capability.Candidate, ch Chunk) (store.EntryInput, bool) {
	title := strings.TrimSpace(c.Title)
	content := strings.TrimSpace(c.Content)
	if title == "" || content == "" {
		return store.EntryInput{}, false
	}

	entryType := strings.ToLower(strings.TrimSpace(c.EntryType))
	if !models.ValidEntryType(entryType) {
		entryType = models.EntryInsight
	}

	conf := defaultConfidence
	if c.Confidence != nil && !math.IsNaN(*c.Confidence) {
		conf = *c.Confidence
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	start, end := ch.StartTime, ch.EndTime
	if c.SourceStartTime != nil {
		start = *c.SourceStartTime
	}
	if c.SourceEndTime != nil {
		end = *c.SourceEndTime
	}

	return store.EntryInput{
		EntryType:       entryType,
		Title:           truncateRunes(title, maxTitleRunes),
		Content:         content,
		SourceQuote:     truncateRunes(strings.TrimSpace(c.SourceQuote), maxQuoteRunes),
		SourceStartTime: &start,
		SourceEndTime:   &end,
		Confidence:      conf,
		Categories:      c.Categories,
		Tags:            c.Tags,
	}, true
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
