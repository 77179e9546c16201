package store

import (
	"fmt"

	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/searchindex"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntryInput is a validated knowledge entry ready to store.
type EntryInput struct {
	EntryType       string
	Title           string
	Content         string
	SourceQuote     string
	SourceStartTime *float64
	SourceEndTime   *float64
	Confidence      float64
	Categories      []string
	Tags            []string
}

func checkEntry(in EntryInput) error {
	if !models.ValidEntryType(in.EntryType) {
		return fault.Integrity(fmt.Errorf("store: invalid entry type %q", in.EntryType))
	}
	if in.Title == "" || in.Content == "" {
		return fault.Integrity(fmt.Errorf("store: entry title and content are required"))
	}
	if !validConfidence(in.Confidence) {
		return fault.Integrity(fmt.Errorf("store: confidence %v outside [0,1]", in.Confidence))
	}
	return nil
}

// validConfidence reports whether c is in [0,1]. NaN is not.
func validConfidence(c float64) bool { return c >= 0 && c <= 1 }

// InsertEntries stores the entries extracted from one chunk of a video,
// links their categories and tags, and indexes them.
func InsertEntries(db *gorm.DB, videoID uint, chunkIndex int, in []EntryInput) ([]models.KnowledgeEntry, error) {
	out := make([]models.KnowledgeEntry, 0, len(in))
	for _, e := range in {
		if err := checkEntry(e); err != nil {
			return nil, err
		}
		row := models.KnowledgeEntry{
			VideoID:         videoID,
			EntryType:       e.EntryType,
			Title:           e.Title,
			Content:         e.Content,
			SourceQuote:     e.SourceQuote,
			SourceStartTime: e.SourceStartTime,
			SourceEndTime:   e.SourceEndTime,
			Confidence:      e.Confidence,
			ChunkIndex:      chunkIndex,
		}
		if err := db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("store: insert entry for video %d chunk %d: %w", videoID, chunkIndex, err)
		}
		if err := linkTaxonomy(db, row.ID, e.Categories, e.Tags); err != nil {
			return nil, err
		}
		if err := indexEntry(db, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// AddEntryTaxonomy links an existing entry to the named categories and
// tags, creating them as needed. Links that already exist are kept.
func AddEntryTaxonomy(db *gorm.DB, entryID uint, categories, tags []string) error {
	var n int64
	if err := db.Model(&models.KnowledgeEntry{}).Where("id = ?", entryID).Count(&n).Error; err != nil {
		return fmt.Errorf("store: find entry %d: %w", entryID, err)
	}
	if n == 0 {
		return notFound("knowledge entry", entryID)
	}
	return linkTaxonomy(db, entryID, categories, tags)
}

func linkTaxonomy(db *gorm.DB, entryID uint, categories, tags []string) error {
	for _, name := range categories {
		cat, err := GetOrCreateCategory(db, name)
		if err != nil {
			return err
		}
		if cat == nil {
			continue
		}
		if err := link(db, "knowledge_categories", "category_id", entryID, cat.ID); err != nil {
			return err
		}
	}
	for _, name := range tags {
		tag, err := GetOrCreateTag(db, name)
		if err != nil {
			return err
		}
		if tag == nil {
			continue
		}
		if err := link(db, "knowledge_tags", "tag_id", entryID, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

func link(db *gorm.DB, table, column string, entryID, targetID uint) error {
	q := db.Table(table)
	if db.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Insert{Modifier: "IGNORE"})
	} else {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	err := q.Create(map[string]interface{}{"knowledge_id": entryID, column: targetID}).Error
	if err != nil {
		return fmt.Errorf("store: link entry %d in %s: %w", entryID, table, err)
	}
	return nil
}

func indexEntry(db *gorm.DB, e *models.KnowledgeEntry) error {
	return searchindex.Upsert(db, searchindex.Knowledge, e.ID, searchindex.Fields{
		"title":        e.Title,
		"content":      e.Content,
		"source_quote": e.SourceQuote,
	})
}

// GetEntry loads a knowledge entry with its categories, tags and flags.
func GetEntry(db *gorm.DB, id uint) (*models.KnowledgeEntry, error) {
	var e models.KnowledgeEntry
	err := db.Preload("Categories").Preload("Tags").Preload("BiasFlags").
		Limit(1).Find(&e, id).Error
	if err != nil {
		return nil, fmt.Errorf("store: get entry %d: %w", id, err)
	}
	if e.ID == 0 {
		return nil, notFound("knowledge entry", id)
	}
	return &e, nil
}

// EntryFilters narrows ListEntries.
type EntryFilters struct {
	VideoID   uint
	EntryType string
	Limit     int
}

// ListEntries returns entries matching f in insertion order.
func ListEntries(db *gorm.DB, f EntryFilters) ([]models.KnowledgeEntry, error) {
	q := db.Model(&models.KnowledgeEntry{})
	if f.VideoID != 0 {
		q = q.Where("video_id = ?", f.VideoID)
	}
	if f.EntryType != "" {
		q = q.Where("entry_type = ?", f.EntryType)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var entries []models.KnowledgeEntry
	if err := q.Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("store: list entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes a knowledge entry, its flags, its links and its index row.
func DeleteEntry(db *gorm.DB, id uint) error {
	var n int64
	if err := db.Model(&models.KnowledgeEntry{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("store: find entry %d: %w", id, err)
	}
	if n == 0 {
		return notFound("knowledge entry", id)
	}
	return deleteEntries(db, []uint{id})
}

func deleteEntries(db *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.Where("knowledge_id IN ?", ids).Delete(&models.BiasFlag{}).Error; err != nil {
		return fmt.Errorf("store: delete bias flags: %w", err)
	}
	for _, table := range []string{"knowledge_categories", "knowledge_tags"} {
		if err := db.Exec("DELETE FROM "+table+" WHERE knowledge_id IN ?", ids).Error; err != nil {
			return fmt.Errorf("store: delete %s links: %w", table, err)
		}
	}
	if err := db.Where("id IN ?", ids).Delete(&models.KnowledgeEntry{}).Error; err != nil {
		return fmt.Errorf("store: delete entries: %w", err)
	}
	for _, id := range ids {
		if err := searchindex.Remove(db, searchindex.Knowledge, id); err != nil {
			return err
		}
	}
	return nil
}

// ClearVideoKnowledge deletes the transcript and every knowledge entry of a
// video, with their index rows.
func ClearVideoKnowledge(db *gorm.DB, videoID uint) error {
	var ids []uint
	if err := db.Model(&models.KnowledgeEntry{}).Where("video_id = ?", videoID).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("store: find entries for video %d: %w", videoID, err)
	}
	if err := deleteEntries(db, ids); err != nil {
		return err
	}
	return deleteTranscript(db, videoID)
}

// UpdateConfidence sets the confidence of an entry.
func UpdateConfidence(db *gorm.DB, id uint, confidence float64) error {
	if !validConfidence(confidence) {
		return fault.Integrity(fmt.Errorf("store: confidence %v outside [0,1]", confidence))
	}
	return updateEntry(db, id, map[string]interface{}{"confidence": confidence})
}

// Reclassify changes the type of an entry.
func Reclassify(db *gorm.DB, id uint, entryType string) error {
	if !models.ValidEntryType(entryType) {
		return fault.Integrity(fmt.Errorf("store: invalid entry type %q", entryType))
	}
	return updateEntry(db, id, map[string]interface{}{"entry_type": entryType})
}

func updateEntry(db *gorm.DB, id uint, updates map[string]interface{}) error {
	result := db.Model(&models.KnowledgeEntry{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: update entry %d: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	// Unchanged rows may report zero affected rows.
	var n int64
	if err := db.Model(&models.KnowledgeEntry{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("store: find entry %d: %w", id, err)
	}
	if n == 0 {
		return notFound("knowledge entry", id)
	}
	return nil
}

// MergeEntries folds drop into keep: keep gains drop's categories and tags
// and the higher of the two confidences, then drop is deleted.
func MergeEntries(db *gorm.DB, keepID, dropID uint) error {
	if keepID == dropID {
		return fmt.Errorf("store: cannot merge entry %d into itself", keepID)
	}
	keep, err := GetEntry(db, keepID)
	if err != nil {
		return err
	}
	drop, err := GetEntry(db, dropID)
	if err != nil {
		return err
	}
	for _, c := range drop.Categories {
		if err := link(db, "knowledge_categories", "category_id", keep.ID, c.ID); err != nil {
			return err
		}
	}
	for _, t := range drop.Tags {
		if err := link(db, "knowledge_tags", "tag_id", keep.ID, t.ID); err != nil {
			return err
		}
	}
	if drop.Confidence > keep.Confidence {
		if err := UpdateConfidence(db, keep.ID, drop.Confidence); err != nil {
			return err
		}
	}
	return deleteEntries(db, []uint{drop.ID})
}
