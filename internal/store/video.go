package store

import (
	"fmt"
	"time"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/searchindex"
	"gorm.io/gorm"
)

// ValidTransitions defines the allowed ingestion status changes made by the
// pipeline and by operators. Returning to pending is only possible through
// ResetForReingest.
var ValidTransitions = map[string][]string{
	models.StatusPending:           {models.StatusTranscriptFetched, models.StatusFailed, models.StatusSkipped},
	models.StatusTranscriptFetched: {models.StatusAnalyzed, models.StatusFailed, models.StatusSkipped},
	models.StatusAnalyzed:          {models.StatusSkipped},
	models.StatusFailed:            {models.StatusSkipped},
	models.StatusSkipped:           {},
}

// ReingestFrom lists the statuses a video may be reset to pending from.
var ReingestFrom = []string{models.StatusFailed, models.StatusSkipped, models.StatusAnalyzed}

// isValidTransition checks if transitioning from one status to another is allowed.
func isValidTransition(from, to string) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	VideoID uint
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("store: video %d: invalid transition %s -> %s", e.VideoID, e.From, e.To)
}

// VideoInput describes a video to register.
type VideoInput struct {
	VideoID         string
	Title           string
	Description     string
	PublishedAt     *time.Time
	DurationSeconds int
	ThumbnailURL    string
}

// AddVideos registers videos for a channel and indexes their metadata.
// Videos whose id is already known are skipped. It returns the new rows.
func AddVideos(db *gorm.DB, channelID uint, in []VideoInput) ([]models.Video, error) {
	var added []models.Video
	for _, v := range in {
		if v.VideoID == "" {
			return nil, fmt.Errorf("store: video id is required")
		}
		var n int64
		if err := db.Model(&models.Video{}).Where("video_id = ?", v.VideoID).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("store: check video %s: %w", v.VideoID, err)
		}
		if n > 0 {
			continue
		}
		title := v.Title
		if title == "" {
			title = v.VideoID
		}
		row := models.Video{
			VideoID:         v.VideoID,
			ChannelID:       channelID,
			Title:           title,
			Description:     v.Description,
			PublishedAt:     v.PublishedAt,
			DurationSeconds: v.DurationSeconds,
			ThumbnailURL:    v.ThumbnailURL,
			IngestionStatus: models.StatusPending,
		}
		if err := db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("store: add video %s: %w", v.VideoID, err)
		}
		if err := indexVideo(db, &row); err != nil {
			return nil, err
		}
		added = append(added, row)
	}
	return added, nil
}

func indexVideo(db *gorm.DB, v *models.Video) error {
	return searchindex.Upsert(db, searchindex.Videos, v.ID, searchindex.Fields{
		"title":       v.Title,
		"description": v.Description,
	})
}

// GetVideo loads a video by primary key.
func GetVideo(db *gorm.DB, id uint) (*models.Video, error) {
	var v models.Video
	if err := db.Limit(1).Find(&v, id).Error; err != nil {
		return nil, fmt.Errorf("store: get video %d: %w", id, err)
	}
	if v.ID == 0 {
		return nil, notFound("video", id)
	}
	return &v, nil
}

// GetVideoByExternalID loads a video by its platform id.
func GetVideoByExternalID(db *gorm.DB, videoID string) (*models.Video, error) {
	var v models.Video
	if err := db.Where("video_id = ?", videoID).Limit(1).Find(&v).Error; err != nil {
		return nil, fmt.Errorf("store: get video %s: %w", videoID, err)
	}
	if v.ID == 0 {
		return nil, notFound("video", videoID)
	}
	return &v, nil
}

// VideoFilters narrows ListVideos.
type VideoFilters struct {
	Status    string
	Statuses  []string
	ChannelID uint
	Limit     int
}

// ListVideos returns videos matching f, newest first.
func ListVideos(db *gorm.DB, f VideoFilters) ([]models.Video, error) {
	q := db.Model(&models.Video{})
	if f.Status != "" {
		q = q.Where("ingestion_status = ?", f.Status)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("ingestion_status IN ?", f.Statuses)
	}
	if f.ChannelID != 0 {
		q = q.Where("channel_id = ?", f.ChannelID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var videos []models.Video
	if err := q.Order("published_at DESC, id").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("store: list videos: %w", err)
	}
	return videos, nil
}

// StatusChange is a requested ingestion status update.
type StatusChange struct {
	To            string
	FailureReason string
	FailedChunk   *int
}

// SetVideoStatus moves a video along the state machine. The update is
// conditional on the status read, so a concurrent change fails instead of
// being overwritten.
func SetVideoStatus(db *gorm.DB, id uint, ch StatusChange) (*models.Video, error) {
	v, err := GetVideo(db, id)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(v.IngestionStatus, ch.To) {
		return nil, &TransitionError{VideoID: id, From: v.IngestionStatus, To: ch.To}
	}
	updates := map[string]interface{}{
		"ingestion_status": ch.To,
		"failure_reason":   "",
		"failed_chunk":     nil,
	}
	if ch.To == models.StatusFailed {
		updates["failure_reason"] = ch.FailureReason
		updates["failed_chunk"] = ch.FailedChunk
	}
	if ch.To == models.StatusSkipped && ch.FailureReason != "" {
		updates["failure_reason"] = ch.FailureReason
	}
	result := db.Model(&models.Video{}).
		Where("id = ? AND ingestion_status = ?", id, v.IngestionStatus).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("store: set video %d status %s: %w", id, ch.To, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("store: video %d status: %w", id, ErrConcurrentUpdate)
	}
	return GetVideo(db, id)
}

// MarkSkipped excludes a video from ingestion. Skipping an already skipped
// video is a no-op.
func MarkSkipped(db *gorm.DB, id uint, reason, runID string) (*models.Video, error) {
	v, err := GetVideo(db, id)
	if err != nil {
		return nil, err
	}
	if v.IngestionStatus == models.StatusSkipped {
		return v, nil
	}
	v, err = SetVideoStatus(db, id, StatusChange{To: models.StatusSkipped, FailureReason: reason})
	if err != nil {
		return nil, err
	}
	if _, err := proclog.Record(db, proclog.Entry{
		VideoID: id, RunID: runID, Step: models.StepSkip, Status: models.LogCompleted, Error: reason,
	}); err != nil {
		return nil, err
	}
	return v, nil
}

// ResetForReingest deletes everything derived from a video and returns it
// to pending. The reset is recorded in the processing log, which restarts
// retry counting for the video.
func ResetForReingest(db *gorm.DB, id uint, runID string) (*models.Video, error) {
	v, err := GetVideo(db, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, s := range ReingestFrom {
		if v.IngestionStatus == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &TransitionError{VideoID: id, From: v.IngestionStatus, To: models.StatusPending}
	}

	if err := ClearVideoKnowledge(db, id); err != nil {
		return nil, err
	}
	result := db.Model(&models.Video{}).
		Where("id = ? AND ingestion_status = ?", id, v.IngestionStatus).
		Updates(map[string]interface{}{
			"ingestion_status": models.StatusPending,
			"failure_reason":   "",
			"failed_chunk":     nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("store: reset video %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("store: video %d status: %w", id, ErrConcurrentUpdate)
	}
	if _, err := proclog.Record(db, proclog.Entry{
		VideoID: id, RunID: runID, Step: models.StepReingest, Status: models.LogCompleted,
	}); err != nil {
		return nil, err
	}
	return GetVideo(db, id)
}

// DeleteVideo removes a video and everything derived from it, including its
// index rows. Processing log history is kept.
func DeleteVideo(db *gorm.DB, id uint) error {
	if _, err := GetVideo(db, id); err != nil {
		return err
	}
	if err := ClearVideoKnowledge(db, id); err != nil {
		return err
	}
	if err := db.Delete(&models.Video{}, id).Error; err != nil {
		return fmt.Errorf("store: delete video %d: %w", id, err)
	}
	return searchindex.Remove(db, searchindex.Videos, id)
}
