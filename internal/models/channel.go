package models

import "time"

// Channel is a video source whose uploads are ingested.
type Channel struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ChannelID       string `gorm:"size:64;uniqueIndex;not null"`
	Name            string `gorm:"size:255;not null"`
	URL             string `gorm:"size:512"`
	Description     string `gorm:"type:text"`
	SubscriberCount int
	VideoCount      int
	ThumbnailURL    string `gorm:"size:512"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Videos []Video `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
}
