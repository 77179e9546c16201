package proclog

import (
	"fmt"

	"github.com/zulandar/lectern/internal/models"
	"gorm.io/gorm"
)

// TokenSummary holds aggregated token usage for completed analysis calls.
type TokenSummary struct {
	TotalTokens int64
	Calls       int64
}

// TokenUsage returns aggregated token usage for a single video.
func TokenUsage(db *gorm.DB, videoID uint) (TokenSummary, error) {
	var summary TokenSummary
	err := db.Model(&models.ProcessingLogEntry{}).
		Select("COALESCE(SUM(tokens_used),0) as total_tokens, COUNT(*) as calls").
		Where("video_id = ? AND status = ? AND tokens_used IS NOT NULL", videoID, models.LogCompleted).
		Scan(&summary).Error
	if err != nil {
		return summary, fmt.Errorf("proclog: token usage for video %d: %w", videoID, err)
	}
	return summary, nil
}

// TotalTokens returns the token cost of every completed call.
func TotalTokens(db *gorm.DB) (int64, error) {
	var total int64
	err := db.Model(&models.ProcessingLogEntry{}).
		Select("COALESCE(SUM(tokens_used),0)").
		Where("status = ?", models.LogCompleted).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("proclog: total tokens: %w", err)
	}
	return total, nil
}

// VideoTokenMap returns token summaries for multiple videos in one query.
func VideoTokenMap(db *gorm.DB, videoIDs []uint) (map[uint]TokenSummary, error) {
	result := make(map[uint]TokenSummary)
	if len(videoIDs) == 0 {
		return result, nil
	}

	type row struct {
		VideoID     uint  `gorm:"column:video_id"`
		TotalTokens int64 `gorm:"column:total_tokens"`
		Calls       int64 `gorm:"column:calls"`
	}

	var rows []row
	err := db.Model(&models.ProcessingLogEntry{}).
		Select("video_id, COALESCE(SUM(tokens_used),0) as total_tokens, COUNT(*) as calls").
		Where("video_id IN ? AND status = ? AND tokens_used IS NOT NULL", videoIDs, models.LogCompleted).
		Group("video_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("proclog: batch token usage: %w", err)
	}

	for _, r := range rows {
		result[r.VideoID] = TokenSummary{TotalTokens: r.TotalTokens, Calls: r.Calls}
	}
	return result, nil
}
