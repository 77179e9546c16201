// Package transcriptdir fetches transcripts from JSON files on disk, one file
// per video and language: <dir>/<video id>.<lang>.json, or <dir>/<video id>.json
// when the language is not part of the name.
package transcriptdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/models"
)

// Fetcher reads transcripts from a directory.
type Fetcher struct {
	dir       string
	languages []string
}

var _ capability.TranscriptFetcher = (*Fetcher)(nil)

// New returns a Fetcher that tries languages in order before falling back
// to a file without a language suffix.
func New(dir string, languages []string) *Fetcher {
	return &Fetcher{dir: dir, languages: languages}
}

// file is the on-disk format. A bare JSON array of segments is also accepted.
type file struct {
	LanguageCode string           `json:"language_code"`
	IsGenerated  bool             `json:"is_generated"`
	Segments     []models.Segment `json:"segments"`
	Snippets     []models.Segment `json:"snippets"`
}

// FetchTranscript loads the transcript for videoID. A missing or empty
// transcript is a permanent failure; an unreadable file is transient.
func (f *Fetcher) FetchTranscript(ctx context.Context, videoID string) (*capability.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if videoID == "" || strings.ContainsAny(videoID, `/\`) || strings.HasPrefix(videoID, ".") {
		return nil, fault.Permanentf("transcriptdir: invalid video id %q", videoID)
	}

	candidates := make([]string, 0, len(f.languages)+1)
	for _, lang := range f.languages {
		candidates = append(candidates, videoID+"."+lang+".json")
	}
	candidates = append(candidates, videoID+".json")

	for _, name := range candidates {
		path := filepath.Join(f.dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fault.Transient(fmt.Errorf("transcriptdir: read %s: %w", path, err))
		}
		t, err := parse(data)
		if err != nil {
			return nil, fault.Permanent(fmt.Errorf("transcriptdir: parse %s: %w", path, err))
		}
		if t.LanguageCode == "" {
			t.LanguageCode = languageFromName(name, videoID)
		}
		if len(t.Segments) == 0 {
			return nil, fault.Permanentf("transcriptdir: transcript for %s is empty", videoID)
		}
		return t, nil
	}
	return nil, fault.Permanentf("transcriptdir: no transcript for %s in %s", videoID, f.dir)
}

func parse(data []byte) (*capability.Transcript, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var segs []models.Segment
		if err := json.Unmarshal(data, &segs); err != nil {
			return nil, err
		}
		return &capability.Transcript{Segments: segs}, nil
	}
	var fl file
	if err := json.Unmarshal(data, &fl); err != nil {
		return nil, err
	}
	segs := fl.Segments
	if len(segs) == 0 {
		segs = fl.Snippets
	}
	return &capability.Transcript{LanguageCode: fl.LanguageCode, IsGenerated: fl.IsGenerated, Segments: segs}, nil
}

func languageFromName(name, videoID string) string {
	if name == videoID+".json" {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, videoID+"."), ".json")
}
