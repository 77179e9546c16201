package models

import "time"

// Knowledge entry types.
const (
	EntryInsight   = "insight"
	EntryTip       = "tip"
	EntryConcept   = "concept"
	EntryTechnique = "technique"
	EntryWarning   = "warning"
	EntryResource  = "resource"
	EntryQuote     = "quote"
)

// EntryTypes lists the valid knowledge entry types.
var EntryTypes = []string{
	EntryInsight, EntryTip, EntryConcept, EntryTechnique,
	EntryWarning, EntryResource, EntryQuote,
}

// ValidEntryType reports whether t is a known entry type.
func ValidEntryType(t string) bool {
	for _, et := range EntryTypes {
		if et == t {
			return true
		}
	}
	return false
}

// KnowledgeEntry is one unit of knowledge extracted from a transcript chunk.
type KnowledgeEntry struct {
	ID              uint    `gorm:"primaryKey;autoIncrement"`
	VideoID         uint    `gorm:"index;not null"`
	EntryType       string  `gorm:"size:16;not null;index"`
	Title           string  `gorm:"size:200;not null"`
	Content         string  `gorm:"type:text;not null"`
	SourceStartTime *float64
	SourceEndTime   *float64
	SourceQuote     string  `gorm:"type:text"`
	Confidence      float64 `gorm:"not null;check:chk_knowledge_confidence,confidence >= 0 AND confidence <= 1"`
	ChunkIndex      int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Categories []Category `gorm:"many2many:knowledge_categories;joinForeignKey:KnowledgeID;joinReferences:CategoryID;constraint:OnDelete:CASCADE"`
	Tags       []Tag      `gorm:"many2many:knowledge_tags;joinForeignKey:KnowledgeID;joinReferences:TagID;constraint:OnDelete:CASCADE"`
	BiasFlags  []BiasFlag `gorm:"foreignKey:KnowledgeID;constraint:OnDelete:CASCADE"`
}
