package dashboard

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/store"
)

// VideoRow holds video data for display.
type VideoRow struct {
	ID            uint       `json:"id"`
	VideoID       string     `json:"video_id"`
	Title         string     `json:"title"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FailedChunk   *int       `json:"failed_chunk,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Entries       int64      `json:"entries"`
	Tokens        int64      `json:"tokens"`
}

// videoRows lists videos with their channel name, entry count and token
// usage, using one query per aggregate.
func videoRows(db *gorm.DB, f store.VideoFilters) ([]VideoRow, error) {
	videos, err := store.ListVideos(db, f)
	if err != nil {
		return nil, err
	}
	rows := make([]VideoRow, len(videos))
	if len(videos) == 0 {
		return rows, nil
	}

	ids := make([]uint, len(videos))
	channelIDs := make([]uint, 0, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
		channelIDs = append(channelIDs, v.ChannelID)
	}

	var channels []models.Channel
	if err := db.Where("id IN ?", channelIDs).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("dashboard: load channels: %w", err)
	}
	names := make(map[uint]string, len(channels))
	for _, c := range channels {
		names[c.ID] = c.Name
	}

	type countRow struct {
		VideoID uint
		N       int64
	}
	var counts []countRow
	err = db.Model(&models.KnowledgeEntry{}).
		Select("video_id, COUNT(*) as n").
		Where("video_id IN ?", ids).
		Group("video_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: count entries: %w", err)
	}
	entries := make(map[uint]int64, len(counts))
	for _, c := range counts {
		entries[c.VideoID] = c.N
	}

	tokens, err := proclog.VideoTokenMap(db, ids)
	if err != nil {
		return nil, err
	}

	for i, v := range videos {
		rows[i] = VideoRow{
			ID:            v.ID,
			VideoID:       v.VideoID,
			Title:         v.Title,
			Channel:       names[v.ChannelID],
			Status:        v.IngestionStatus,
			FailureReason: v.FailureReason,
			FailedChunk:   v.FailedChunk,
			PublishedAt:   v.PublishedAt,
			Entries:       entries[v.ID],
			Tokens:        tokens[v.ID].TotalTokens,
		}
	}
	return rows, nil
}
