package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/models"
)

var sevenWords = []models.Segment{
	{Text: "one two three", Start: 0, Duration: 3},
	{Text: "four five six", Start: 3, Duration: 3},
	{Text: "seven", Start: 6, Duration: 1},
}

func TestChunkSegments(t *testing.T) {
	chunks := ChunkSegments(sevenWords, 4, 1)
	require.Len(t, chunks, 2)

	assert.Equal(t, Chunk{Index: 0, Text: "one two three four", StartTime: 0, EndTime: 6, WordCount: 4}, chunks[0])
	assert.Equal(t, Chunk{Index: 1, Text: "four five six seven", StartTime: 3, EndTime: 7, WordCount: 4}, chunks[1])
}

func TestChunkSegments_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkSegments(sevenWords, 3, 1), ChunkSegments(sevenWords, 3, 1))
}

func TestChunkSegments_EdgeCases(t *testing.T) {
	assert.Nil(t, ChunkSegments(nil, 10, 2))
	assert.Nil(t, ChunkSegments([]models.Segment{{Text: "   "}}, 10, 2))

	one := ChunkSegments(sevenWords, 100, 10)
	require.Len(t, one, 1)
	assert.Equal(t, 7, one[0].WordCount)
	assert.Equal(t, 7.0, one[0].EndTime)

	noOverlap := ChunkSegments(sevenWords, 3, 3)
	require.Len(t, noOverlap, 3)
	assert.Equal(t, "seven", noOverlap[2].Text)
	assert.Equal(t, 6.0, noOverlap[2].StartTime)
}

func f64(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	ch := Chunk{Index: 2, StartTime: 100, EndTime: 160}

	_, ok := Normalize(capability.Candidate{Title: "  ", Content: "x"}, ch)
	assert.False(t, ok)
	_, ok = Normalize(capability.Candidate{Title: "x"}, ch)
	assert.False(t, ok)

	e, ok := Normalize(capability.Candidate{EntryType: "Rumor", Title: "Wind", Content: "Check it"}, ch)
	require.True(t, ok)
	assert.Equal(t, models.EntryInsight, e.EntryType)
	assert.Equal(t, 0.8, e.Confidence)
	assert.Equal(t, 100.0, *e.SourceStartTime)
	assert.Equal(t, 160.0, *e.SourceEndTime)

	long := make([]rune, 600)
	for i := range long {
		long[i] = 'é'
	}
	e, ok = Normalize(capability.Candidate{
		EntryType: " TIP ", Title: string(long), Content: "c", SourceQuote: string(long),
		Confidence: f64(1.7), SourceStartTime: f64(120),
	}, ch)
	require.True(t, ok)
	assert.Equal(t, models.EntryTip, e.EntryType)
	assert.Equal(t, 1.0, e.Confidence)
	assert.Len(t, []rune(e.Title), 200)
	assert.Len(t, []rune(e.SourceQuote), 500)
	assert.Equal(t, 120.0, *e.SourceStartTime)

	e, _ = Normalize(capability.Candidate{Title: "t", Content: "c", Confidence: f64(-0.2)}, ch)
	assert.Equal(t, 0.0, e.Confidence)

	e, _ = Normalize(capability.Candidate{Title: "t", Content: "c", Confidence: f64(math.NaN())}, ch)
	assert.Equal(t, 0.8, e.Confidence)
	e, _ = Normalize(capability.Candidate{Title: "t", Content: "c", Confidence: f64(math.Inf(1))}, ch)
	assert.Equal(t, 1.0, e.Confidence)
	e, _ = Normalize(capability.Candidate{Title: "t", Content: "c", Confidence: f64(math.Inf(-1))}, ch)
	assert.Equal(t, 0.0, e.Confidence)
}
