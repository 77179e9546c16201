package models

import "time"

// Ingestion statuses a video moves through.
const (
	StatusPending           = "pending"
	StatusTranscriptFetched = "transcript_fetched"
	StatusAnalyzed          = "analyzed"
	StatusFailed            = "failed"
	StatusSkipped           = "skipped"
)

// IngestionStatuses lists every status in pipeline order.
var IngestionStatuses = []string{
	StatusPending,
	StatusTranscriptFetched,
	StatusAnalyzed,
	StatusFailed,
	StatusSkipped,
}

// Video is a single upload and the root of everything derived from it.
type Video struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	VideoID         string `gorm:"size:32;uniqueIndex;not null"`
	ChannelID       uint   `gorm:"index;not null"`
	Title           string `gorm:"size:512;not null"`
	Description     string `gorm:"type:text"`
	PublishedAt     *time.Time
	DurationSeconds int
	ThumbnailURL    string `gorm:"size:512"`
	IngestionStatus string `gorm:"size:24;default:pending;index"`
	FailureReason   string `gorm:"type:text"`
	FailedChunk     *int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Transcript *Transcript      `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
	Entries    []KnowledgeEntry `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE"`
}
