package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/metrics"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/optimize"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/store"
)

const defaultLimit = 50

type handlers struct {
	db      *gorm.DB
	queue   *optimize.Queue
	metrics *metrics.Metrics
	log     *slog.Logger
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	api := router.Group("/api")
	api.GET("/status", h.status)
	api.GET("/videos", h.videos)
	api.GET("/videos/:id", h.video)
	api.GET("/search", h.search)
	api.GET("/bias/summary", h.biasSummary)
	api.GET("/queue", h.listQueue)
	api.POST("/queue/:id/approve", h.approve)
	api.POST("/queue/:id/reject", h.reject)
	api.GET("/events", handleSSE(h.db))

	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
}

func (h *handlers) status(c *gin.Context) {
	db := h.db.WithContext(c.Request.Context())
	st, err := store.GetPipelineStatus(db)
	if err != nil {
		h.fail(c, err)
		return
	}
	failed, err := store.FailedVideos(db)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusView(st, failed))
}

func (h *handlers) videos(c *gin.Context) {
	f := store.VideoFilters{Status: c.Query("status"), Limit: queryInt(c, "limit", defaultLimit)}
	if ch := c.Query("channel"); ch != "" {
		id, err := strconv.ParseUint(ch, 10, 64)
		if err != nil {
			badRequest(c, "channel must be a numeric id")
			return
		}
		f.ChannelID = uint(id)
	}
	rows, err := videoRows(h.db.WithContext(c.Request.Context()), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": rows})
}

func (h *handlers) video(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	db := h.db.WithContext(c.Request.Context())
	v, err := store.GetVideo(db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	steps, err := proclog.ForVideo(db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := proclog.TokenUsage(db, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newVideoDetail(v, steps, tokens))
}

func (h *handlers) search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		badRequest(c, "q is required")
		return
	}
	db := h.db.WithContext(c.Request.Context())
	limit := queryInt(c, "limit", 20)

	switch kind := c.DefaultQuery("type", "knowledge"); kind {
	case "knowledge":
		res, err := store.SearchKnowledge(db, q, store.KnowledgeFilters{EntryType: c.Query("entry_type"), Limit: limit})
		if err != nil {
			h.fail(c, err)
			return
		}
		out := make([]knowledgeHit, len(res))
		for i, r := range res {
			out[i] = newKnowledgeHit(r)
		}
		c.JSON(http.StatusOK, gin.H{"query": q, "type": kind, "results": out})
	case "transcripts":
		res, err := store.SearchTranscripts(db, q, limit)
		if err != nil {
			h.fail(c, err)
			return
		}
		out := make([]transcriptHit, len(res))
		for i, r := range res {
			out[i] = transcriptHit{Video: newVideoRef(r.Video), Snippet: r.Snippet, Score: r.Score}
		}
		c.JSON(http.StatusOK, gin.H{"query": q, "type": kind, "results": out})
	case "videos":
		res, err := store.SearchVideos(db, q, limit)
		if err != nil {
			h.fail(c, err)
			return
		}
		out := make([]videoHit, len(res))
		for i, r := range res {
			out[i] = videoHit{ID: r.Video.ID, VideoID: r.Video.VideoID, Title: r.Video.Title, Channel: r.ChannelName, Score: r.Score}
		}
		c.JSON(http.StatusOK, gin.H{"query": q, "type": kind, "results": out})
	default:
		badRequest(c, "type must be knowledge, transcripts or videos")
	}
}

func (h *handlers) biasSummary(c *gin.Context) {
	s, err := bias.Summary(h.db.WithContext(c.Request.Context()))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newBiasView(s))
}

func (h *handlers) listQueue(c *gin.Context) {
	items, err := h.queue.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]queueItemView, len(items))
	for i := range items {
		out[i] = newQueueItemView(&items[i])
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

type resolveRequest struct {
	By string `json:"by"`
}

func (h *handlers) approve(c *gin.Context) {
	h.resolve(c, h.queue.Approve)
}

func (h *handlers) reject(c *gin.Context) {
	h.resolve(c, h.queue.Reject)
}

func (h *handlers) resolve(c *gin.Context, op func(ctx context.Context, id uint, by string) (*models.OptimizationQueueItem, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON body")
			return
		}
	}
	if req.By == "" {
		req.By = "dashboard"
	}
	item, err := op(c.Request.Context(), id, req.By)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newQueueItemView(item))
}

// fail maps domain errors onto HTTP statuses.
func (h *handlers) fail(c *gin.Context, err error) {
	var ase *fault.ApprovalStateError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ase):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": ase.Status})
	default:
		h.log.Error("dashboard request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
