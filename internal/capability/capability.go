// Package capability defines the external services the pipeline depends on
// and the Gate every call to them passes through.
package capability

import (
	"context"

	"github.com/zulandar/lectern/internal/models"
)

// Transcript is a fetched video transcript.
type Transcript struct {
	LanguageCode string
	IsGenerated  bool
	Segments     []models.Segment
}

// TranscriptFetcher retrieves the transcript of a video by platform id.
// A video without a usable transcript is a permanent failure.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) (*Transcript, error)
}

// ChunkRequest is one transcript chunk plus the context an analyzer needs.
type ChunkRequest struct {
	VideoTitle       string
	VideoDescription string
	ChannelName      string
	Index            int
	Total            int
	Text             string
	StartTime        float64
	EndTime          float64
}

// Candidate is a knowledge entry as proposed by an analyzer, before
// validation. Nil pointers mean the analyzer did not supply the value.
type Candidate struct {
	EntryType       string
	Title           string
	Content         string
	SourceQuote     string
	SourceStartTime *float64
	SourceEndTime   *float64
	Confidence      *float64
	Categories      []string
	Tags            []string
}

// Analysis is the result of analyzing one chunk.
type Analysis struct {
	Candidates []Candidate
	TokensUsed int
}

// Analyzer extracts knowledge candidates from a transcript chunk.
type Analyzer interface {
	AnalyzeChunk(ctx context.Context, req ChunkRequest) (*Analysis, error)
}

// BiasEntry is the part of a knowledge entry a bias detector sees.
type BiasEntry struct {
	ID          uint
	EntryType   string
	Title       string
	Content     string
	SourceQuote string
}

// BiasCandidate is one detected bias for one entry.
type BiasCandidate struct {
	EntryID    uint
	BiasType   string
	Severity   string
	BrandNames []string
	Notes      string
	DetectedBy string
}

// BiasDetector inspects a batch of entries and reports the biased ones.
// Entries with no bias produce no candidates.
type BiasDetector interface {
	DetectBias(ctx context.Context, entries []BiasEntry) ([]BiasCandidate, error)
}

// TaxonomyEntry is the part of a knowledge entry a tagger sees.
type TaxonomyEntry struct {
	ID        uint
	EntryType string
	Title     string
	Content   string
}

// Assignment is the names proposed for one entry.
type Assignment struct {
	EntryID uint
	Names   []string
}

// Tagger proposes categories and tags for entries that have none.
// Categorize prefers the known category names but may propose new ones.
type Tagger interface {
	Categorize(ctx context.Context, entries []TaxonomyEntry, known []string) ([]Assignment, error)
	Tag(ctx context.Context, entries []TaxonomyEntry) ([]Assignment, error)
}
