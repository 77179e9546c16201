package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/searchindex"
	"gorm.io/gorm"
)

// TranscriptInput is the fetched transcript of one video.
type TranscriptInput struct {
	Text         string
	Segments     []models.Segment
	LanguageCode string
	IsGenerated  bool
}

// SaveTranscript stores the transcript for a video, replacing any previous
// one together with its index row.
func SaveTranscript(db *gorm.DB, videoID uint, in TranscriptInput) (*models.Transcript, error) {
	text := in.Text
	if text == "" && len(in.Segments) > 0 {
		parts := make([]string, len(in.Segments))
		for i, s := range in.Segments {
			parts[i] = s.Text
		}
		text = strings.Join(parts, " ")
	}
	segs := in.Segments
	if segs == nil {
		segs = []models.Segment{}
	}
	data, err := json.Marshal(segs)
	if err != nil {
		return nil, fmt.Errorf("store: encode segments for video %d: %w", videoID, err)
	}

	if err := deleteTranscript(db, videoID); err != nil {
		return nil, err
	}
	lang := in.LanguageCode
	if lang == "" {
		lang = "en"
	}
	t := models.Transcript{
		VideoID:      videoID,
		LanguageCode: lang,
		IsGenerated:  in.IsGenerated,
		FullText:     text,
		SegmentData:  string(data),
		WordCount:    len(strings.Fields(text)),
	}
	if err := db.Create(&t).Error; err != nil {
		return nil, fmt.Errorf("store: save transcript for video %d: %w", videoID, err)
	}
	if err := searchindex.Upsert(db, searchindex.Transcripts, t.ID, searchindex.Fields{"full_text": t.FullText}); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTranscript loads the transcript of a video.
func GetTranscript(db *gorm.DB, videoID uint) (*models.Transcript, error) {
	var t models.Transcript
	if err := db.Where("video_id = ?", videoID).Limit(1).Find(&t).Error; err != nil {
		return nil, fmt.Errorf("store: get transcript for video %d: %w", videoID, err)
	}
	if t.ID == 0 {
		return nil, notFound("transcript for video", videoID)
	}
	return &t, nil
}

// Segments decodes the timed segments of a transcript.
func Segments(t *models.Transcript) ([]models.Segment, error) {
	if t.SegmentData == "" {
		return nil, nil
	}
	var segs []models.Segment
	if err := json.Unmarshal([]byte(t.SegmentData), &segs); err != nil {
		return nil, fmt.Errorf("store: decode segments for video %d: %w", t.VideoID, err)
	}
	return segs, nil
}

func deleteTranscript(db *gorm.DB, videoID uint) error {
	var ids []uint
	if err := db.Model(&models.Transcript{}).Where("video_id = ?", videoID).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("store: find transcript for video %d: %w", videoID, err)
	}
	for _, id := range ids {
		if err := db.Delete(&models.Transcript{}, id).Error; err != nil {
			return fmt.Errorf("store: delete transcript %d: %w", id, err)
		}
		if err := searchindex.Remove(db, searchindex.Transcripts, id); err != nil {
			return err
		}
	}
	return nil
}
