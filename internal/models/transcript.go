package models

import "time"

// Transcript holds the full text of one video. It is replaced, never edited.
type Transcript struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	VideoID      uint   `gorm:"uniqueIndex;not null"`
	LanguageCode string `gorm:"size:16;default:en"`
	IsGenerated  bool   `gorm:"default:false"`
	FullText     string `gorm:"type:mediumtext"`
	SegmentData  string `gorm:"type:mediumtext"`
	WordCount    int
	CreatedAt    time.Time
}

// Segment is one timed caption line. Transcript.SegmentData holds a JSON
// array of segments.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}
