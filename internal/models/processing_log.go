package models

import "time"

// Processing steps.
const (
	StepFetchTranscript = "fetch_transcript"
	StepAnalyze         = "analyze"
	StepAnalyzeChunk    = "analyze_chunk"
	StepReingest        = "re_ingest"
	StepSkip            = "mark_skipped"
)

// Processing log statuses.
const (
	LogStarted   = "started"
	LogCompleted = "completed"
	LogFailed    = "failed"
)

// ProcessingLogEntry is one append-only record of a pipeline step attempt.
type ProcessingLogEntry struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	VideoID      uint   `gorm:"index:idx_proclog_video_step;not null"`
	RunID        string `gorm:"size:36;index"`
	Step         string `gorm:"size:32;index:idx_proclog_video_step;not null"`
	ChunkIndex   *int
	Status       string `gorm:"size:16;not null"`
	TokensUsed   *int
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
}

// TableName keeps the singular table name used by the log.
func (ProcessingLogEntry) TableName() string { return "processing_log" }
