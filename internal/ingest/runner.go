package ingest

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

// Summary counts the outcomes of one Runner pass.
type Summary struct {
	Processed int
	Analyzed  int
	Failed    int
	Skipped   int
	Errors    int
}

// Runner processes many videos on a bounded worker pool.
type Runner struct {
	db      *gorm.DB
	machine *Machine
	workers int
	log     *slog.Logger
}

// NewRunner returns a Runner using at most workers goroutines.
func NewRunner(gdb *gorm.DB, m *Machine, workers int, log *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{db: gdb, machine: m, workers: workers, log: logging.OrDefault(log)}
}

// Run processes each video to a terminal status. A video that returns an
// error is counted and logged; the others continue. Run returns the
// context error if it was cancelled.
func (r *Runner) Run(ctx context.Context, videoIDs []uint) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for _, id := range videoIDs {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			v, err := r.machine.Process(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			sum.Processed++
			if err != nil {
				sum.Errors++
				r.log.Error("process video", "video_id", id, "error", err)
				return nil
			}
			switch v.IngestionStatus {
			case models.StatusAnalyzed:
				sum.Analyzed++
			case models.StatusFailed:
				sum.Failed++
			case models.StatusSkipped:
				sum.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	r.log.Info("ingest pass finished",
		"processed", sum.Processed, "analyzed", sum.Analyzed, "failed", sum.Failed, "errors", sum.Errors)
	return sum, ctx.Err()
}

// RunPending processes pending videos and resumes videos left at
// transcript_fetched. A limit of zero means no limit.
func (r *Runner) RunPending(ctx context.Context, channelID uint, limit int) (Summary, error) {
	videos, err := store.ListVideos(r.db.WithContext(ctx), store.VideoFilters{
		Statuses:  []string{models.StatusTranscriptFetched, models.StatusPending},
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return Summary{}, err
	}
	ids := make([]uint, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	return r.Run(ctx, ids)
}
