package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/models"
)

// pollInterval and heartbeatInterval pace the event stream.
var (
	pollInterval      = 3 * time.Second
	heartbeatInterval = 15 * time.Second
)

// queueEvent announces a new item awaiting approval.
type queueEvent struct {
	ID          uint   `json:"id"`
	Action      string `json:"action"`
	Tier        string `json:"tier"`
	Description string `json:"description"`
	Pending     int64  `json:"pending"`
}

// handleSSE streams a "queue" event whenever new items enter pending.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		gdb := db.WithContext(ctx)

		// Only items created after the client connected are announced.
		var lastSeenID uint
		var newest models.OptimizationQueueItem
		if err := gdb.Order("id DESC").Limit(1).Find(&newest).Error; err == nil {
			lastSeenID = newest.ID
		}

		ticker := time.NewTicker(pollInterval)
		heartbeat := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var items []models.OptimizationQueueItem
				if err := gdb.Where("id > ? AND status = ?", lastSeenID, models.QueueStatusPending).
					Order("id ASC").Find(&items).Error; err != nil || len(items) == 0 {
					continue
				}
				lastSeenID = items[len(items)-1].ID

				var pending int64
				gdb.Model(&models.OptimizationQueueItem{}).
					Where("status = ?", models.QueueStatusPending).
					Count(&pending)

				for _, it := range items {
					writeSSE(c.Writer, "queue", queueEvent{
						ID:          it.ID,
						Action:      it.ActionType,
						Tier:        it.Severity,
						Description: it.Description,
						Pending:     pending,
					})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
