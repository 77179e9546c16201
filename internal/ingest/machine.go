// Package ingest moves videos through the ingestion state machine:
// pending, transcript_fetched, analyzed, with failed as the terminal error
// state. Every attempt is written to the processing log, and retry budgets
// are derived from it, so a crashed run resumes where it stopped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/metrics"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/proclog"
	"github.com/zulandar/lectern/internal/store"
)

// Options configures a Machine.
type Options struct {
	Fetcher  capability.TranscriptFetcher
	Analyzer capability.Analyzer
	Gate     *capability.Gate
	Pipeline config.PipelineConfig
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Machine advances individual videos. It is safe for concurrent use on
// different videos.
type Machine struct {
	db       *gorm.DB
	fetcher  capability.TranscriptFetcher
	analyzer capability.Analyzer
	gate     *capability.Gate
	cfg      config.PipelineConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewMachine validates opts and returns a Machine. A nil Gate is built
// from the pipeline settings.
func NewMachine(gdb *gorm.DB, opts Options) (*Machine, error) {
	if gdb == nil {
		return nil, fmt.Errorf("ingest: db is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("ingest: transcript fetcher is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("ingest: analyzer is required")
	}
	gate := opts.Gate
	if gate == nil {
		gate = capability.NewGate(opts.Pipeline, opts.Metrics)
	}
	return &Machine{
		db:       gdb,
		fetcher:  opts.Fetcher,
		analyzer: opts.Analyzer,
		gate:     gate,
		cfg:      opts.Pipeline,
		log:      logging.OrDefault(opts.Logger),
		metrics:  opts.Metrics,
	}, nil
}

// Terminal reports whether status ends ingestion.
func Terminal(status string) bool {
	switch status {
	case models.StatusAnalyzed, models.StatusFailed, models.StatusSkipped:
		return true
	}
	return false
}

// Advance performs the one step that applies to the video's current status
// and returns the video afterwards. It is a no-op for terminal statuses.
func (m *Machine) Advance(ctx context.Context, videoID uint) (*models.Video, error) {
	return m.advance(ctx, videoID, uuid.NewString())
}

// Process advances the video until it reaches a terminal status. All steps
// share one run id.
func (m *Machine) Process(ctx context.Context, videoID uint) (*models.Video, error) {
	runID := uuid.NewString()
	for {
		v, err := m.advance(ctx, videoID, runID)
		if err != nil || Terminal(v.IngestionStatus) {
			return v, err
		}
		if err := ctx.Err(); err != nil {
			return v, err
		}
	}
}

func (m *Machine) advance(ctx context.Context, videoID uint, runID string) (*models.Video, error) {
	v, err := store.GetVideo(m.db.WithContext(ctx), videoID)
	if err != nil {
		return nil, err
	}
	switch v.IngestionStatus {
	case models.StatusPending:
		return m.fetch(ctx, v, runID)
	case models.StatusTranscriptFetched:
		return m.analyze(ctx, v, runID)
	default:
		return v, nil
	}
}

// stepError is a step failure that ends the video's ingestion.
type stepError struct {
	step  string
	chunk *int
	err   error
}

func (e *stepError) Error() string {
	if e.chunk != nil {
		return fmt.Sprintf("chunk %d: %v", *e.chunk, e.err)
	}
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error { return e.err }

// completeFunc writes the step's completed row inside the caller's transaction.
type completeFunc func(tx *gorm.DB, tokens *int) error

// runStep runs one step for (video, step, chunk) with the retry budget that
// remains in the processing log. Each attempt writes started and then
// completed or failed. do performs the external call and commits its result,
// calling complete in the same transaction.
//
// It returns nil on success and a *stepError once the budget is spent or
// the failure is not retryable. Cancellation while waiting for a call slot
// or a backoff delay returns the context error and fails nothing.
func (m *Machine) runStep(ctx context.Context, v *models.Video, runID, step string, chunk *int,
	do func(callCtx context.Context, complete completeFunc) error) error {

	failures, err := proclog.FailureCount(m.db.WithContext(ctx), v.ID, step, chunk)
	if err != nil {
		return err
	}
	remaining := m.cfg.MaxRetries + 1 - failures
	if remaining <= 0 {
		msg := "retry budget exhausted"
		if last, err := proclog.LastFailure(m.db.WithContext(ctx), v.ID); err == nil && last != nil && last.ErrorMessage != "" {
			msg = last.ErrorMessage
		}
		return &stepError{step: step, chunk: chunk, err: errors.New(msg)}
	}

	entry := func(status string) proclog.Entry {
		return proclog.Entry{VideoID: v.ID, RunID: runID, Step: step, ChunkIndex: chunk, Status: status}
	}
	complete := func(tx *gorm.DB, tokens *int) error {
		e := entry(models.LogCompleted)
		e.TokensUsed = tokens
		return m.record(tx, e)
	}

	var admitted bool
	attempt := func() error {
		admitted = false
		err := m.gate.Do(ctx, step, func(callCtx context.Context) error {
			admitted = true
			rdb := m.db.WithContext(context.WithoutCancel(callCtx))
			if err := m.record(rdb, entry(models.LogStarted)); err != nil {
				return err
			}
			err := do(callCtx, complete)
			if err == nil {
				return nil
			}
			var te *store.TransitionError
			if errors.As(err, &te) || errors.Is(err, store.ErrConcurrentUpdate) {
				err = fault.Permanent(err)
			}
			failed := entry(models.LogFailed)
			failed.Error = err.Error()
			if rerr := m.record(rdb, failed); rerr != nil {
				m.log.Error("record failed attempt", "video", v.VideoID, "step", step, "error", rerr)
			}
			return err
		})
		if err == nil {
			return nil
		}
		if !admitted || !fault.IsTransient(err) {
			return backoff.Permanent(err)
		}
		m.log.Warn("step attempt failed", "video", v.VideoID, "step", step, "chunk", chunkAttr(chunk), "error", err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), uint64(remaining-1)), ctx)
	err = backoff.Retry(attempt, b)
	if err == nil {
		return nil
	}
	if !admitted || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return fmt.Errorf("ingest: video %s %s interrupted: %w", v.VideoID, step, err)
	}
	return &stepError{step: step, chunk: chunk, err: err}
}

func (m *Machine) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryBaseDelay
	b.MaxInterval = m.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

func (m *Machine) record(gdb *gorm.DB, e proclog.Entry) error {
	if _, err := proclog.Record(gdb, e); err != nil {
		return err
	}
	m.metrics.Step(e.Step, e.Status)
	return nil
}

func chunkAttr(chunk *int) any {
	if chunk == nil {
		return nil
	}
	return *chunk
}

// fetch runs fetch_transcript for a pending video.
func (m *Machine) fetch(ctx context.Context, v *models.Video, runID string) (*models.Video, error) {
	var words int
	err := m.runStep(ctx, v, runID, models.StepFetchTranscript, nil, func(callCtx context.Context, complete completeFunc) error {
		tr, err := m.fetcher.FetchTranscript(callCtx, v.VideoID)
		if err != nil {
			return err
		}
		return db.Transaction(context.WithoutCancel(callCtx), m.db, func(tx *gorm.DB) error {
			saved, err := store.SaveTranscript(tx, v.ID, store.TranscriptInput{
				Segments:     tr.Segments,
				LanguageCode: tr.LanguageCode,
				IsGenerated:  tr.IsGenerated,
			})
			if err != nil {
				return err
			}
			words = saved.WordCount
			if _, err := store.SetVideoStatus(tx, v.ID, store.StatusChange{To: models.StatusTranscriptFetched}); err != nil {
				return err
			}
			return complete(tx, nil)
		})
	})
	if err != nil {
		return m.settle(ctx, v, runID, err)
	}
	m.metrics.VideoTransition(models.StatusTranscriptFetched)
	m.log.Info("transcript fetched", "video", v.VideoID, "words", words)
	return store.GetVideo(m.db.WithContext(ctx), v.ID)
}

// analyze runs analyze_chunk for every chunk not yet completed, in order,
// then marks the video analyzed.
func (m *Machine) analyze(ctx context.Context, v *models.Video, runID string) (*models.Video, error) {
	gdb := m.db.WithContext(ctx)
	tr, err := store.GetTranscript(gdb, v.ID)
	if errors.Is(err, store.ErrNotFound) {
		return m.settle(ctx, v, runID, &stepError{step: models.StepAnalyze, err: fault.Permanentf("transcript missing")})
	}
	if err != nil {
		return v, err
	}
	segs, err := store.Segments(tr)
	if err != nil {
		return m.settle(ctx, v, runID, &stepError{step: models.StepAnalyze, err: fault.Permanent(err)})
	}
	if len(segs) == 0 && tr.FullText != "" {
		segs = []models.Segment{{Text: tr.FullText}}
	}
	chunks := ChunkSegments(segs, m.cfg.ChunkTargetWords, m.cfg.ChunkOverlapWords)

	channelName := ""
	if ch, err := store.GetChannelByID(gdb, v.ChannelID); err == nil {
		channelName = ch.Name
	}
	done, err := proclog.CompletedChunks(gdb, v.ID)
	if err != nil {
		return v, err
	}
	if err := m.record(gdb, proclog.Entry{VideoID: v.ID, RunID: runID, Step: models.StepAnalyze, Status: models.LogStarted}); err != nil {
		return v, err
	}

	for _, ch := range chunks {
		if done[ch.Index] {
			m.log.Debug("chunk already analyzed", "video", v.VideoID, "chunk", ch.Index)
			continue
		}
		if err := m.analyzeChunk(ctx, v, runID, ch, len(chunks), channelName); err != nil {
			return m.settle(ctx, v, runID, err)
		}
	}

	err = db.Transaction(ctx, m.db, func(tx *gorm.DB) error {
		if _, err := store.SetVideoStatus(tx, v.ID, store.StatusChange{To: models.StatusAnalyzed}); err != nil {
			return err
		}
		return m.record(tx, proclog.Entry{VideoID: v.ID, RunID: runID, Step: models.StepAnalyze, Status: models.LogCompleted})
	})
	if err != nil {
		return v, err
	}
	m.metrics.VideoTransition(models.StatusAnalyzed)
	m.log.Info("video analyzed", "video", v.VideoID, "chunks", len(chunks))
	return store.GetVideo(gdb, v.ID)
}

func (m *Machine) analyzeChunk(ctx context.Context, v *models.Video, runID string, ch Chunk, total int, channelName string) error {
	return m.runStep(ctx, v, runID, models.StepAnalyzeChunk, proclog.Chunk(ch.Index), func(callCtx context.Context, complete completeFunc) error {
		a, err := m.analyzer.AnalyzeChunk(callCtx, capability.ChunkRequest{
			VideoTitle:       v.Title,
			VideoDescription: v.Description,
			ChannelName:      channelName,
			Index:            ch.Index,
			Total:            total,
			Text:             ch.Text,
			StartTime:        ch.StartTime,
			EndTime:          ch.EndTime,
		})
		if err != nil {
			return err
		}
		entries := make([]store.EntryInput, 0, len(a.Candidates))
		for _, c := range a.Candidates {
			if e, ok := Normalize(c, ch); ok {
				entries = append(entries, e)
			}
		}
		tokens := a.TokensUsed
		err = db.Transaction(context.WithoutCancel(callCtx), m.db, func(tx *gorm.DB) error {
			if _, err := store.InsertEntries(tx, v.ID, ch.Index, entries); err != nil {
				return err
			}
			return complete(tx, &tokens)
		})
		if err != nil {
			return err
		}
		m.metrics.Tokens(tokens)
		m.log.Debug("chunk analyzed", "video", v.VideoID, "chunk", ch.Index, "entries", len(entries), "tokens", tokens)
		return nil
	})
}

// settle turns a step failure into a terminal failed status. Errors that are
// not step failures are returned unchanged with the video untouched.
func (m *Machine) settle(ctx context.Context, v *models.Video, runID string, err error) (*models.Video, error) {
	var se *stepError
	if !errors.As(err, &se) {
		return v, err
	}
	rctx := context.WithoutCancel(ctx)
	var out *models.Video
	txErr := db.Transaction(rctx, m.db, func(tx *gorm.DB) error {
		cur, err := store.GetVideo(tx, v.ID)
		if err != nil {
			return err
		}
		if cur.IngestionStatus == models.StatusFailed || cur.IngestionStatus == models.StatusSkipped {
			out = cur
			return nil
		}
		out, err = store.SetVideoStatus(tx, v.ID, store.StatusChange{
			To:            models.StatusFailed,
			FailureReason: se.Error(),
			FailedChunk:   se.chunk,
		})
		if err != nil {
			return err
		}
		if se.step == models.StepAnalyzeChunk || se.step == models.StepAnalyze {
			return m.record(tx, proclog.Entry{
				VideoID: v.ID, RunID: runID, Step: models.StepAnalyze, ChunkIndex: se.chunk,
				Status: models.LogFailed, Error: se.Error(),
			})
		}
		return nil
	})
	if txErr != nil {
		return v, fmt.Errorf("ingest: fail video %s: %w", v.VideoID, txErr)
	}
	if out.IngestionStatus == models.StatusFailed && out.FailureReason == se.Error() {
		m.metrics.VideoTransition(models.StatusFailed)
		m.log.Warn("video failed", "video", v.VideoID, "step", se.step, "chunk", chunkAttr(se.chunk), "error", se.err)
	}
	return out, nil
}
