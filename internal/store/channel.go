package store

import (
	"fmt"

	"github.com/zulandar/lectern/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelInput describes a channel to register.
type ChannelInput struct {
	ChannelID       string
	Name            string
	URL             string
	Description     string
	SubscriberCount int
	ThumbnailURL    string
}

// UpsertChannel inserts a channel or refreshes its metadata.
func UpsertChannel(db *gorm.DB, in ChannelInput) (*models.Channel, error) {
	if in.ChannelID == "" {
		return nil, fmt.Errorf("store: channel id is required")
	}
	if in.Name == "" {
		in.Name = in.ChannelID
	}
	ch := models.Channel{
		ChannelID:       in.ChannelID,
		Name:            in.Name,
		URL:             in.URL,
		Description:     in.Description,
		SubscriberCount: in.SubscriberCount,
		ThumbnailURL:    in.ThumbnailURL,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "url", "description", "subscriber_count", "thumbnail_url", "updated_at"}),
	}).Create(&ch)
	if result.Error != nil {
		return nil, fmt.Errorf("store: upsert channel %s: %w", in.ChannelID, result.Error)
	}
	return GetChannel(db, in.ChannelID)
}

// GetChannel loads a channel by its external id.
func GetChannel(db *gorm.DB, channelID string) (*models.Channel, error) {
	var ch models.Channel
	if err := db.Where("channel_id = ?", channelID).Limit(1).Find(&ch).Error; err != nil {
		return nil, fmt.Errorf("store: get channel %s: %w", channelID, err)
	}
	if ch.ID == 0 {
		return nil, notFound("channel", channelID)
	}
	return &ch, nil
}

// GetChannelByID loads a channel by primary key.
func GetChannelByID(db *gorm.DB, id uint) (*models.Channel, error) {
	var ch models.Channel
	if err := db.Limit(1).Find(&ch, id).Error; err != nil {
		return nil, fmt.Errorf("store: get channel %d: %w", id, err)
	}
	if ch.ID == 0 {
		return nil, notFound("channel", id)
	}
	return &ch, nil
}

// ChannelSummary is a channel with its ingestion progress.
type ChannelSummary struct {
	models.Channel
	Videos   int64
	Analyzed int64
}

// ListChannels returns every channel with video counts, ordered by name.
func ListChannels(db *gorm.DB) ([]ChannelSummary, error) {
	var channels []models.Channel
	if err := db.Order("name").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}

	type row struct {
		ChannelID uint
		Videos    int64
		Analyzed  int64
	}
	var rows []row
	err := db.Model(&models.Video{}).
		Select("channel_id, COUNT(*) as videos, SUM(CASE WHEN ingestion_status = ? THEN 1 ELSE 0 END) as analyzed", models.StatusAnalyzed).
		Group("channel_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count channel videos: %w", err)
	}
	counts := make(map[uint]row, len(rows))
	for _, r := range rows {
		counts[r.ChannelID] = r
	}

	out := make([]ChannelSummary, len(channels))
	for i, ch := range channels {
		c := counts[ch.ID]
		out[i] = ChannelSummary{Channel: ch, Videos: c.Videos, Analyzed: c.Analyzed}
	}
	return out, nil
}
