// Package proclog is the append-only record of pipeline step attempts.
// Rows are only ever inserted; retry counts and resume points are computed
// from them at query time.
package proclog

import (
	"fmt"

	"github.com/zulandar/lectern/internal/models"
	"gorm.io/gorm"
)

// Entry describes one step attempt to record.
type Entry struct {
	VideoID    uint
	RunID      string
	Step       string
	ChunkIndex *int
	Status     string
	TokensUsed *int
	Error      string
}

// Record appends e to the processing log.
func Record(db *gorm.DB, e Entry) (*models.ProcessingLogEntry, error) {
	row := models.ProcessingLogEntry{
		VideoID:      e.VideoID,
		RunID:        e.RunID,
		Step:         e.Step,
		ChunkIndex:   e.ChunkIndex,
		Status:       e.Status,
		TokensUsed:   e.TokensUsed,
		ErrorMessage: e.Error,
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("proclog: record %s/%s for video %d: %w", e.Step, e.Status, e.VideoID, err)
	}
	return &row, nil
}

// Chunk returns a pointer to i, for ChunkIndex fields.
func Chunk(i int) *int { return &i }

// chunkScope matches rows for a given chunk, or rows with no chunk when nil.
func chunkScope(chunk *int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if chunk == nil {
			return db.Where("chunk_index IS NULL")
		}
		return db.Where("chunk_index = ?", *chunk)
	}
}

// lastReset returns the id of the most recent re-ingest reset for a video,
// or 0 if it was never reset.
func lastReset(db *gorm.DB, videoID uint) (uint, error) {
	var id uint
	err := db.Model(&models.ProcessingLogEntry{}).
		Select("COALESCE(MAX(id), 0)").
		Where("video_id = ? AND step = ? AND status = ?", videoID, models.StepReingest, models.LogCompleted).
		Scan(&id).Error
	if err != nil {
		return 0, fmt.Errorf("proclog: last reset for video %d: %w", videoID, err)
	}
	return id, nil
}

// FailureCount returns how many attempts of (video, step, chunk) have failed
// since that key last completed or the video was last reset, whichever is
// later.
func FailureCount(db *gorm.DB, videoID uint, step string, chunk *int) (int, error) {
	since, err := lastReset(db, videoID)
	if err != nil {
		return 0, err
	}

	var completed uint
	err = db.Model(&models.ProcessingLogEntry{}).
		Select("COALESCE(MAX(id), 0)").
		Where("video_id = ? AND step = ? AND status = ?", videoID, step, models.LogCompleted).
		Scopes(chunkScope(chunk)).
		Scan(&completed).Error
	if err != nil {
		return 0, fmt.Errorf("proclog: last completion for video %d: %w", videoID, err)
	}
	if completed > since {
		since = completed
	}

	var n int64
	err = db.Model(&models.ProcessingLogEntry{}).
		Where("video_id = ? AND step = ? AND status = ? AND id > ?", videoID, step, models.LogFailed, since).
		Scopes(chunkScope(chunk)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("proclog: count failures for video %d: %w", videoID, err)
	}
	return int(n), nil
}

// CompletedChunks returns the chunk indexes whose analysis has completed
// since the video was last reset.
func CompletedChunks(db *gorm.DB, videoID uint) (map[int]bool, error) {
	since, err := lastReset(db, videoID)
	if err != nil {
		return nil, err
	}
	var idx []int
	err = db.Model(&models.ProcessingLogEntry{}).
		Where("video_id = ? AND step = ? AND status = ? AND id > ? AND chunk_index IS NOT NULL",
			videoID, models.StepAnalyzeChunk, models.LogCompleted, since).
		Pluck("chunk_index", &idx).Error
	if err != nil {
		return nil, fmt.Errorf("proclog: completed chunks for video %d: %w", videoID, err)
	}
	done := make(map[int]bool, len(idx))
	for _, i := range idx {
		done[i] = true
	}
	return done, nil
}

// ForVideo returns every log row for a video in insertion order.
func ForVideo(db *gorm.DB, videoID uint) ([]models.ProcessingLogEntry, error) {
	var rows []models.ProcessingLogEntry
	if err := db.Where("video_id = ?", videoID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("proclog: list for video %d: %w", videoID, err)
	}
	return rows, nil
}

// LastFailure returns the most recent failed row for a video, or nil.
func LastFailure(db *gorm.DB, videoID uint) (*models.ProcessingLogEntry, error) {
	var rows []models.ProcessingLogEntry
	err := db.Where("video_id = ? AND status = ?", videoID, models.LogFailed).
		Order("id DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("proclog: last failure for video %d: %w", videoID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Recent returns the newest log rows across all videos.
func Recent(db *gorm.DB, limit int) ([]models.ProcessingLogEntry, error) {
	var rows []models.ProcessingLogEntry
	if err := db.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("proclog: recent: %w", err)
	}
	return rows, nil
}
