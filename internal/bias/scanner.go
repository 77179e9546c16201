// Package bias attaches commercial-bias flags to knowledge entries. Flags
// are additive: a scan upserts one flag per (entry, bias type) and never
// removes or rewrites anything else about the entry.
package bias

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/metrics"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/optimize"
	"github.com/zulandar/lectern/internal/store"
)

// Options configures a Scanner.
type Options struct {
	// Detector is the model-backed detector. When nil the heuristics
	// produce the flags.
	Detector  capability.BiasDetector
	Heuristic *HeuristicDetector
	Gate      *capability.Gate
	// Queue receives review proposals for high severity flags. Optional.
	Queue     *optimize.Queue
	BatchSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Scanner runs bias detection and stores the flags.
type Scanner struct {
	db        *gorm.DB
	detector  capability.BiasDetector
	heuristic *HeuristicDetector
	gate      *capability.Gate
	queue     *optimize.Queue
	batchSize int
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewScanner returns a Scanner writing to gdb.
func NewScanner(gdb *gorm.DB, opts Options) (*Scanner, error) {
	if gdb == nil {
		return nil, fmt.Errorf("bias: db is required")
	}
	h := opts.Heuristic
	if h == nil {
		h = NewHeuristicDetector(nil)
	}
	size := opts.BatchSize
	if size < 1 {
		size = 15
	}
	return &Scanner{
		db:        gdb,
		detector:  opts.Detector,
		heuristic: h,
		gate:      opts.Gate,
		queue:     opts.Queue,
		batchSize: size,
		log:       logging.OrDefault(opts.Logger),
		metrics:   opts.Metrics,
	}, nil
}

// Result is the outcome of scanning one entry.
type Result struct {
	EntryID  uint
	Flags    []models.BiasFlag
	Reviews  []models.OptimizationQueueItem
	Fallback bool
}

// Scan runs detection on one entry and stores what it finds.
func (s *Scanner) Scan(ctx context.Context, entryID uint) (*Result, error) {
	e, err := store.GetEntry(s.db.WithContext(ctx), entryID)
	if err != nil {
		return nil, err
	}
	be := toBiasEntry(e)
	cands, fallback, err := s.detect(ctx, []capability.BiasEntry{be}, map[uint]Finding{e.ID: s.heuristic.Inspect(be)})
	if err != nil {
		return nil, err
	}
	res, err := s.apply(ctx, e, cands)
	if err != nil {
		return nil, err
	}
	res.Fallback = fallback
	return res, nil
}

// ScanOptions selects the entries ScanAll visits.
type ScanOptions struct {
	// All rescans entries that already carry flags.
	All bool
	// Limit caps the number of entries; zero means no cap.
	Limit int
}

// ScanReport counts what ScanAll did.
type ScanReport struct {
	Scanned    int
	Suspicious int
	Flagged    int
	Reviews    int
	Fallbacks  int
}

// ScanAll scans entries in batches. Each batch is first screened by the
// heuristics; only suspicious entries go to the detector, so clean entries
// cost no external call.
func (s *Scanner) ScanAll(ctx context.Context, opts ScanOptions) (ScanReport, error) {
	var rep ScanReport
	entries, err := s.candidates(ctx, opts)
	if err != nil {
		return rep, err
	}

	for start := 0; start < len(entries); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		end := min(start+s.batchSize, len(entries))
		batch := entries[start:end]
		rep.Scanned += len(batch)

		var suspicious []capability.BiasEntry
		findings := make(map[uint]Finding)
		byID := make(map[uint]*models.KnowledgeEntry, len(batch))
		for i := range batch {
			be := toBiasEntry(&batch[i])
			if f := s.heuristic.Inspect(be); f.Suspicious() {
				suspicious = append(suspicious, be)
				findings[be.ID] = f
				byID[be.ID] = &batch[i]
			}
		}
		rep.Suspicious += len(suspicious)
		if len(suspicious) == 0 {
			continue
		}

		cands, fallback, err := s.detect(ctx, suspicious, findings)
		if err != nil {
			return rep, err
		}
		if fallback {
			rep.Fallbacks++
		}
		grouped := make(map[uint][]capability.BiasCandidate)
		for _, c := range cands {
			grouped[c.EntryID] = append(grouped[c.EntryID], c)
		}
		for _, be := range suspicious {
			if len(grouped[be.ID]) == 0 {
				continue
			}
			res, err := s.apply(ctx, byID[be.ID], grouped[be.ID])
			if err != nil {
				return rep, err
			}
			rep.Flagged += len(res.Flags)
			rep.Reviews += len(res.Reviews)
		}
		s.log.Debug("bias batch scanned", "entries", len(batch), "suspicious", len(suspicious), "fallback", fallback)
	}

	s.log.Info("bias scan finished", "scanned", rep.Scanned, "suspicious", rep.Suspicious,
		"flagged", rep.Flagged, "reviews", rep.Reviews, "fallbacks", rep.Fallbacks)
	return rep, nil
}

func (s *Scanner) candidates(ctx context.Context, opts ScanOptions) ([]models.KnowledgeEntry, error) {
	gdb := s.db.WithContext(ctx)
	if !opts.All {
		return store.UnflaggedEntries(gdb, opts.Limit)
	}
	return store.ListEntries(gdb, store.EntryFilters{Limit: opts.Limit})
}

// detect asks the detector about entries. If there is no detector, or the
// call fails for any reason but cancellation, the heuristic findings stand
// in for it.
func (s *Scanner) detect(ctx context.Context, entries []capability.BiasEntry, findings map[uint]Finding) ([]capability.BiasCandidate, bool, error) {
	if s.detector == nil {
		cands, err := s.heuristic.DetectBias(ctx, entries)
		return cands, false, err
	}

	var cands []capability.BiasCandidate
	call := func(callCtx context.Context) error {
		var err error
		cands, err = s.detector.DetectBias(callCtx, entries)
		return err
	}
	var err error
	if s.gate != nil {
		err = s.gate.Do(ctx, "detect_bias", call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return cands, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, fmt.Errorf("bias: detect: %w", ctx.Err())
	}

	s.log.Warn("bias detector failed, using heuristics", "entries", len(entries), "error", err)
	cands = cands[:0]
	for _, e := range entries {
		if f, ok := findings[e.ID]; ok && f.Suspicious() {
			cands = append(cands, f.Candidate(e.ID, DetectedByFallback))
		}
	}
	return cands, true, nil
}

// apply stores the candidates for one entry, plus a review proposal for
// each high severity flag, in one transaction.
func (s *Scanner) apply(ctx context.Context, e *models.KnowledgeEntry, cands []capability.BiasCandidate) (*Result, error) {
	res := &Result{EntryID: e.ID}
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		res.Flags, res.Reviews = res.Flags[:0], res.Reviews[:0]
		// Candidates normalized to the same type upsert the same row;
		// the last write wins.
		flagAt := make(map[uint]int)
		reviewed := make(map[uint]bool)
		for _, c := range cands {
			if c.EntryID != e.ID {
				continue
			}
			in := normalize(c)
			flag, err := store.UpsertBiasFlag(tx, in)
			if err != nil {
				return err
			}
			if i, ok := flagAt[flag.ID]; ok {
				res.Flags[i] = *flag
			} else {
				flagAt[flag.ID] = len(res.Flags)
				res.Flags = append(res.Flags, *flag)
			}
			if flag.Severity != models.SeverityHigh || s.queue == nil || reviewed[flag.ID] {
				continue
			}
			reviewed[flag.ID] = true
			item, err := s.queue.EnqueueTx(tx, optimize.Proposal{
				Action:      optimize.ActionReviewEntry,
				Tier:        optimize.Suggestion,
				TargetID:    e.ID,
				Description: fmt.Sprintf("Review %s flag on %q: %s", flag.BiasType, e.Title, flag.Notes),
			})
			if err != nil {
				return err
			}
			res.Reviews = append(res.Reviews, *item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bias: store flags for entry %d: %w", e.ID, err)
	}
	for _, f := range res.Flags {
		s.metrics.BiasFlag(f.BiasType, f.Severity)
		s.log.Info("bias flagged", "entry", e.ID, "type", f.BiasType, "severity", f.Severity, "detected_by", f.DetectedBy)
	}
	return res, nil
}

// normalize maps unknown bias types to brand_promotion and unknown
// severities to medium.
func normalize(c capability.BiasCandidate) store.FlagInput {
	in := store.FlagInput{
		KnowledgeID: c.EntryID,
		BiasType:    c.BiasType,
		Severity:    c.Severity,
		BrandNames:  c.BrandNames,
		Notes:       c.Notes,
		DetectedBy:  c.DetectedBy,
	}
	if !models.ValidBiasType(in.BiasType) {
		in.BiasType = models.BiasBrandPromotion
	}
	if !models.ValidSeverity(in.Severity) {
		in.Severity = models.SeverityMedium
	}
	if in.DetectedBy == "" {
		in.DetectedBy = "llm"
	}
	if in.Notes == "" {
		in.Notes = "Flagged by model analysis"
	}
	return in
}

func toBiasEntry(e *models.KnowledgeEntry) capability.BiasEntry {
	return capability.BiasEntry{
		ID:          e.ID,
		EntryType:   e.EntryType,
		Title:       e.Title,
		Content:     e.Content,
		SourceQuote: e.SourceQuote,
	}
}
