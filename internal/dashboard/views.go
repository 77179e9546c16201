package dashboard

import (
	"time"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/store"
)

type failedVideoView struct {
	ID        uint   `json:"id"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	LastStep  string `json:"last_step,omitempty"`
	LastError string `json:"last_error"`
}

type statusView struct {
	Channels         int64             `json:"channels"`
	Videos           int64             `json:"videos"`
	VideosByStatus   map[string]int64  `json:"videos_by_status"`
	KnowledgeEntries int64             `json:"knowledge_entries"`
	Categories       int64             `json:"categories"`
	Tags             int64             `json:"tags"`
	BiasFlags        int64             `json:"bias_flags"`
	PendingQueue     int64             `json:"pending_queue"`
	TotalTokens      int64             `json:"total_tokens"`
	Failed           []failedVideoView `json:"failed"`
}

func newStatusView(s *store.PipelineStatus, failed []store.FailedVideo) statusView {
	v := statusView{
		Channels:         s.Channels,
		Videos:           s.TotalVideos,
		VideosByStatus:   s.VideosByStatus,
		KnowledgeEntries: s.KnowledgeEntries,
		Categories:       s.Categories,
		Tags:             s.Tags,
		BiasFlags:        s.BiasFlags,
		PendingQueue:     s.PendingQueue,
		TotalTokens:      s.TotalTokens,
		Failed:           make([]failedVideoView, len(failed)),
	}
	for i, f := range failed {
		v.Failed[i] = failedVideoView{ID: f.ID, VideoID: f.VideoID, Title: f.Title, LastStep: f.LastStep, LastError: f.LastError}
	}
	return v
}

type stepView struct {
	RunID  string    `json:"run_id"`
	Step   string    `json:"step"`
	Chunk  *int      `json:"chunk,omitempty"`
	Status string    `json:"status"`
	Tokens *int      `json:"tokens,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

type videoDetail struct {
	ID            uint       `json:"id"`
	VideoID       string     `json:"video_id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	FailedChunk   *int       `json:"failed_chunk,omitempty"`
	Tokens        int64      `json:"tokens"`
	Calls         int64      `json:"calls"`
	Log           []stepView `json:"log"`
}

func newVideoDetail(v *models.Video, steps []models.ProcessingLogEntry, tokens proclog.TokenSummary) videoDetail {
	d := videoDetail{
		ID:            v.ID,
		VideoID:       v.VideoID,
		Title:         v.Title,
		Status:        v.IngestionStatus,
		FailureReason: v.FailureReason,
		FailedChunk:   v.FailedChunk,
		Tokens:        tokens.TotalTokens,
		Calls:         tokens.Calls,
		Log:           make([]stepView, len(steps)),
	}
	for i, s := range steps {
		d.Log[i] = stepView{
			RunID: s.RunID, Step: s.Step, Chunk: s.ChunkIndex, Status: s.Status,
			Tokens: s.TokensUsed, Error: s.ErrorMessage, At: s.CreatedAt,
		}
	}
	return d
}

type videoRef struct {
	ID      uint   `json:"id"`
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

func newVideoRef(r store.VideoRef) videoRef {
	return videoRef{ID: r.ID, VideoID: r.VideoID, Title: r.Title, Channel: r.ChannelName}
}

type knowledgeHit struct {
	ID         uint     `json:"id"`
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Start      *float64 `json:"start,omitempty"`
	Video      videoRef `json:"video"`
	Score      float64  `json:"score"`
}

func newKnowledgeHit(r store.KnowledgeResult) knowledgeHit {
	return knowledgeHit{
		ID:         r.Entry.ID,
		Type:       r.Entry.EntryType,
		Title:      r.Entry.Title,
		Content:    r.Entry.Content,
		Confidence: r.Entry.Confidence,
		Start:      r.Entry.SourceStartTime,
		Video:      newVideoRef(r.Video),
		Score:      r.Score,
	}
}

type transcriptHit struct {
	Video   videoRef `json:"video"`
	Snippet string   `json:"snippet"`
	Score   float64  `json:"score"`
}

type videoHit struct {
	ID      uint    `json:"id"`
	VideoID string  `json:"video_id"`
	Title   string  `json:"title"`
	Channel string  `json:"channel"`
	Score   float64 `json:"score"`
}

type biasView struct {
	TotalFlags     int64            `json:"total_flags"`
	FlaggedEntries int64            `json:"flagged_entries"`
	Unreviewed     int64            `json:"unreviewed"`
	ByType         map[string]int64 `json:"by_type"`
	BySeverity     map[string]int64 `json:"by_severity"`
	ByDetector     map[string]int64 `json:"by_detector"`
}

func newBiasView(s *bias.FlagSummary) biasView {
	return biasView{
		TotalFlags:     s.TotalFlags,
		FlaggedEntries: s.FlaggedEntries,
		Unreviewed:     s.Unreviewed,
		ByType:         s.ByType,
		BySeverity:     s.BySeverity,
		ByDetector:     s.ByDetector,
	}
}

type queueItemView struct {
	ID          uint       `json:"id"`
	Action      string     `json:"action"`
	Tier        string     `json:"tier"`
	TargetType  string     `json:"target_type"`
	TargetID    uint       `json:"target_id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
}

func newQueueItemView(i *models.OptimizationQueueItem) queueItemView {
	return queueItemView{
		ID:          i.ID,
		Action:      i.ActionType,
		Tier:        i.Severity,
		TargetType:  i.TargetType,
		TargetID:    i.TargetID,
		Description: i.Description,
		Status:      i.Status,
		Error:       i.Error,
		ResolvedBy:  i.ResolvedBy,
		CreatedAt:   i.CreatedAt,
		ResolvedAt:  i.ResolvedAt,
		ExecutedAt:  i.ExecutedAt,
	}
}
