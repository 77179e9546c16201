package store

import (
	"fmt"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/proclog"
	"gorm.io/gorm"
)

// PipelineStatus summarizes the whole pipeline.
type PipelineStatus struct {
	Channels         int64
	TotalVideos      int64
	VideosByStatus   map[string]int64
	KnowledgeEntries int64
	Categories       int64
	Tags             int64
	BiasFlags        int64
	PendingQueue     int64
	TotalTokens      int64
}

// GetPipelineStatus gathers counts for the status report.
func GetPipelineStatus(db *gorm.DB) (*PipelineStatus, error) {
	s := &PipelineStatus{VideosByStatus: make(map[string]int64, len(models.IngestionStatuses))}
	for _, st := range models.IngestionStatuses {
		s.VideosByStatus[st] = 0
	}

	type row struct {
		IngestionStatus string
		Count           int64
	}
	var rows []row
	err := db.Model(&models.Video{}).
		Select("ingestion_status, COUNT(*) as count").
		Group("ingestion_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count videos by status: %w", err)
	}
	for _, r := range rows {
		s.VideosByStatus[r.IngestionStatus] = r.Count
		s.TotalVideos += r.Count
	}

	counts := []struct {
		model interface{}
		where string
		dest  *int64
	}{
		{&models.Channel{}, "", &s.Channels},
		{&models.KnowledgeEntry{}, "", &s.KnowledgeEntries},
		{&models.Category{}, "", &s.Categories},
		{&models.Tag{}, "", &s.Tags},
		{&models.BiasFlag{}, "", &s.BiasFlags},
		{&models.OptimizationQueueItem{}, "status = 'pending'", &s.PendingQueue},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("store: pipeline status: %w", err)
		}
	}

	if s.TotalTokens, err = proclog.TotalTokens(db); err != nil {
		return nil, err
	}
	return s, nil
}

// FailedVideo is a failed video with the last recorded error.
type FailedVideo struct {
	models.Video
	LastStep  string
	LastError string
}

// FailedVideos lists failed videos with their most recent failure.
func FailedVideos(db *gorm.DB) ([]FailedVideo, error) {
	videos, err := ListVideos(db, VideoFilters{Status: models.StatusFailed})
	if err != nil {
		return nil, err
	}
	out := make([]FailedVideo, len(videos))
	for i, v := range videos {
		out[i] = FailedVideo{Video: v, LastError: v.FailureReason}
		last, err := proclog.LastFailure(db, v.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			out[i].LastStep = last.Step
			if out[i].LastError == "" {
				out[i].LastError = last.ErrorMessage
			}
		}
	}
	return out, nil
}
