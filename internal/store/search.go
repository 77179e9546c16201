package store

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/searchindex"
	"gorm.io/gorm"
)

// VideoRef identifies the video and channel a search result came from.
type VideoRef struct {
	ID          uint
	VideoID     string
	Title       string
	ChannelName string
}

func videoRefs(db *gorm.DB, ids []uint) (map[uint]VideoRef, error) {
	refs := make(map[uint]VideoRef, len(ids))
	if len(ids) == 0 {
		return refs, nil
	}
	var rows []VideoRef
	err := db.Table("videos v").
		Select("v.id, v.video_id, v.title, c.name as channel_name").
		Joins("JOIN channels c ON c.id = v.channel_id").
		Where("v.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: load video refs: %w", err)
	}
	for _, r := range rows {
		refs[r.ID] = r
	}
	return refs, nil
}

// KnowledgeFilters narrows SearchKnowledge.
type KnowledgeFilters struct {
	EntryType     string
	VideoID       uint
	MinConfidence float64
	Limit         int
}

// KnowledgeResult is one knowledge search hit.
type KnowledgeResult struct {
	Entry models.KnowledgeEntry
	Video VideoRef
	Score float64
}

// SearchKnowledge runs a full-text search over knowledge entries.
func SearchKnowledge(db *gorm.DB, query string, f KnowledgeFilters) ([]KnowledgeResult, error) {
	opts := searchindex.SearchOpts{Limit: f.Limit}
	if f.EntryType != "" {
		opts.Filters = append(opts.Filters, searchindex.Filter{Column: "entry_type", Op: "=", Value: f.EntryType})
	}
	if f.VideoID != 0 {
		opts.Filters = append(opts.Filters, searchindex.Filter{Column: "video_id", Op: "=", Value: f.VideoID})
	}
	if f.MinConfidence > 0 {
		opts.Filters = append(opts.Filters, searchindex.Filter{Column: "confidence", Op: ">=", Value: f.MinConfidence})
	}
	hits, err := searchindex.Search(db, searchindex.Knowledge, query, opts)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	var entries []models.KnowledgeEntry
	if err := db.Preload("Categories").Preload("Tags").Preload("BiasFlags").Where("id IN ?", ids).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: load search entries: %w", err)
	}
	byID := make(map[uint]models.KnowledgeEntry, len(entries))
	var videoIDs []uint
	for _, e := range entries {
		byID[e.ID] = e
		videoIDs = append(videoIDs, e.VideoID)
	}
	refs, err := videoRefs(db, videoIDs)
	if err != nil {
		return nil, err
	}

	out := make([]KnowledgeResult, 0, len(hits))
	for _, h := range hits {
		e, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, KnowledgeResult{Entry: e, Video: refs[e.VideoID], Score: h.Score})
	}
	return out, nil
}

// TranscriptResult is one transcript search hit.
type TranscriptResult struct {
	TranscriptID uint
	Video        VideoRef
	Snippet      string
	Score        float64
}

// SearchTranscripts runs a full-text search over transcripts.
func SearchTranscripts(db *gorm.DB, query string, limit int) ([]TranscriptResult, error) {
	hits, err := searchindex.Search(db, searchindex.Transcripts, query, searchindex.SearchOpts{Limit: limit})
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	var ts []models.Transcript
	if err := db.Where("id IN ?", ids).Find(&ts).Error; err != nil {
		return nil, fmt.Errorf("store: load search transcripts: %w", err)
	}
	byID := make(map[uint]models.Transcript, len(ts))
	var videoIDs []uint
	for _, t := range ts {
		byID[t.ID] = t
		videoIDs = append(videoIDs, t.VideoID)
	}
	refs, err := videoRefs(db, videoIDs)
	if err != nil {
		return nil, err
	}

	words := searchindex.QueryWords(query)
	out := make([]TranscriptResult, 0, len(hits))
	for _, h := range hits {
		t, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, TranscriptResult{
			TranscriptID: t.ID,
			Video:        refs[t.VideoID],
			Snippet:      Snippet(t.FullText, words, 200),
			Score:        h.Score,
		})
	}
	return out, nil
}

// VideoResult is one video search hit.
type VideoResult struct {
	Video       models.Video
	ChannelName string
	Score       float64
}

// SearchVideos runs a full-text search over video titles and descriptions.
func SearchVideos(db *gorm.DB, query string, limit int) ([]VideoResult, error) {
	hits, err := searchindex.Search(db, searchindex.Videos, query, searchindex.SearchOpts{Limit: limit})
	if err != nil || len(hits) == 0 {
		return nil, err
	}
	ids := make([]uint, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	var videos []models.Video
	if err := db.Where("id IN ?", ids).Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("store: load search videos: %w", err)
	}
	byID := make(map[uint]models.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	refs, err := videoRefs(db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]VideoResult, 0, len(hits))
	for _, h := range hits {
		v, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, VideoResult{Video: v, ChannelName: refs[v.ID].ChannelName, Score: h.Score})
	}
	return out, nil
}

// Snippet returns up to max bytes of text around the first occurrence of
// any of words, or the start of text when none occurs.
func Snippet(text string, words []string, max int) string {
	if len(text) <= max {
		return text
	}
	lower := strings.ToLower(text)
	at := -1
	for _, w := range words {
		if i := strings.Index(lower, strings.ToLower(w)); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	start := 0
	if at > max/4 {
		start = at - max/4
	}
	end := start + max
	if end > len(text) {
		end = len(text)
		start = end - max
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	s := text[start:end]
	if start > 0 {
		s = "…" + s
	}
	if end < len(text) {
		s += "…"
	}
	return s
}
