package store

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zulandar/lectern/internal/models"
	"gorm.io/gorm"
)

// VideoEntryStats is an analyzed video with aggregate entry statistics.
type VideoEntryStats struct {
	ID            uint
	VideoID       string
	Title         string
	EntryCount    int64
	AvgConfidence float64
}

// WeakVideos returns analyzed videos with fewer than minEntries entries or an
// average confidence below minAvg.
func WeakVideos(db *gorm.DB, minEntries int, minAvg float64) ([]VideoEntryStats, error) {
	var rows []VideoEntryStats
	err := db.Table("videos v").
		Select("v.id, v.video_id, v.title, COUNT(ke.id) as entry_count, COALESCE(AVG(ke.confidence), 0) as avg_confidence").
		Joins("LEFT JOIN knowledge_entries ke ON ke.video_id = v.id").
		Where("v.ingestion_status = ?", models.StatusAnalyzed).
		Group("v.id, v.video_id, v.title").
		Having("COUNT(ke.id) < ? OR COALESCE(AVG(ke.confidence), 0) < ?", minEntries, minAvg).
		Order("v.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: weak videos: %w", err)
	}
	return rows, nil
}

// LowQualityEntries returns entries below maxConfidence whose content is
// shorter than maxChars characters.
func LowQualityEntries(db *gorm.DB, maxConfidence float64, maxChars int) ([]models.KnowledgeEntry, error) {
	var entries []models.KnowledgeEntry
	if err := db.Where("confidence < ?", maxConfidence).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: low quality entries: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		if utf8.RuneCountInString(e.Content) < maxChars {
			out = append(out, e)
		}
	}
	return out, nil
}

// UnflaggedEntries returns entries that carry no bias flag yet.
func UnflaggedEntries(db *gorm.DB, limit int) ([]models.KnowledgeEntry, error) {
	q := db.Where("id NOT IN (SELECT knowledge_id FROM bias_flags)").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.KnowledgeEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: unflagged entries: %w", err)
	}
	return entries, nil
}

// UncategorizedEntries returns entries linked to no category.
func UncategorizedEntries(db *gorm.DB, limit int) ([]models.KnowledgeEntry, error) {
	return entriesWithout(db, "knowledge_categories", limit)
}

// UntaggedEntries returns entries linked to no tag.
func UntaggedEntries(db *gorm.DB, limit int) ([]models.KnowledgeEntry, error) {
	return entriesWithout(db, "knowledge_tags", limit)
}

func entriesWithout(db *gorm.DB, table string, limit int) ([]models.KnowledgeEntry, error) {
	q := db.Where("id NOT IN (SELECT knowledge_id FROM " + table + ")").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.KnowledgeEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: entries without %s: %w", table, err)
	}
	return entries, nil
}

var longWord = regexp.MustCompile(`[\p{L}\p{N}_]{4,}`)

// TitleKey reduces a title to its first four distinct words of four or more
// letters, sorted. Titles with fewer than two such words have no key.
func TitleKey(title string) string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range longWord.FindAllString(strings.ToLower(title), -1) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return ""
	}
	sort.Strings(words)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

// CorroboratedGroups groups entries whose titles share a TitleKey and that
// come from at least two different videos. Groups are ordered by key.
func CorroboratedGroups(db *gorm.DB) ([][]models.KnowledgeEntry, error) {
	var entries []models.KnowledgeEntry
	if err := db.Select("id, video_id, title, confidence").Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: entries for comparison: %w", err)
	}
	byKey := make(map[string][]models.KnowledgeEntry)
	for _, e := range entries {
		if k := TitleKey(e.Title); k != "" {
			byKey[k] = append(byKey[k], e)
		}
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var groups [][]models.KnowledgeEntry
	for _, k := range keys {
		g := byKey[k]
		videos := make(map[uint]bool)
		for _, e := range g {
			videos[e.VideoID] = true
		}
		if len(videos) >= 2 {
			groups = append(groups, g)
		}
	}
	return groups, nil
}
