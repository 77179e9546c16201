package ingest

import (
	"strings"

	"github.com/zulandar/lectern/internal/models"
)

// Chunk is a window of transcript words sent to the analyzer in one call.
type Chunk struct {
	Index     int
	Text      string
	StartTime float64
	EndTime   float64
	WordCount int
}

type timedWord struct {
	text  string
	start float64
	end   float64
}

// ChunkSegments splits segments into windows of target words, each window
// repeating the last overlap words of the previous one. A window starts at
// the start of its first word's segment and ends at the end of its last
// word's segment. The result depends only on the inputs.
func ChunkSegments(segs []models.Segment, target, overlap int) []Chunk {
	if target < 1 {
		target = 1
	}
	if overlap < 0 || overlap >= target {
		overlap = 0
	}

	var words []timedWord
	for _, s := range segs {
		for _, w := range strings.Fields(s.Text) {
			words = append(words, timedWord{text: w, start: s.Start, end: s.Start + s.Duration})
		}
	}
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	step := target - overlap
	for i := 0; ; i += step {
		end := i + target
		if end > len(words) {
			end = len(words)
		}
		window := words[i:end]
		texts := make([]string, len(window))
		last := window[0].end
		for j, w := range window {
			texts[j] = w.text
			if w.end > last {
				last = w.end
			}
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      strings.Join(texts, " "),
			StartTime: window[0].start,
			EndTime:   last,
			WordCount: len(window),
		})
		if end == len(words) {
			return chunks
		}
	}
}
