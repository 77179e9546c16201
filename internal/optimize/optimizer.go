package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

// Report counts what one optimizer pass did.
type Report struct {
	TagMerges   int
	Categorized int
	Tagged      int
	Rescored    int
	Failed      int
	Suggestions int
}

// Optimizer finds corrective actions in the store and proposes them to
// the queue. It never mutates the store directly.
type Optimizer struct {
	db     *gorm.DB
	queue  *Queue
	cfg    config.OptimizeConfig
	log    *slog.Logger
	tagger capability.Tagger
	gate   *capability.Gate
}

// NewOptimizer returns an Optimizer proposing to q.
func NewOptimizer(gdb *gorm.DB, q *Queue, cfg config.OptimizeConfig, log *slog.Logger) *Optimizer {
	return &Optimizer{db: gdb, queue: q, cfg: cfg, log: logging.OrDefault(log)}
}

// WithTagger lets the auto phase ask t for categories and tags of entries
// that have none. Calls go through g when it is not nil.
func (o *Optimizer) WithTagger(t capability.Tagger, g *capability.Gate) *Optimizer {
	o.tagger, o.gate = t, g
	return o
}

// Run runs the auto phase and then the suggestion phase.
func (o *Optimizer) Run(ctx context.Context) (Report, error) {
	r, err := o.RunAuto(ctx)
	if err != nil {
		return r, err
	}
	s, err := o.RunSuggestions(ctx)
	r.Suggestions = s.Suggestions
	return r, err
}

// RunAuto merges tags that differ only in case and separators, fills in
// missing categories and tags when a tagger is set, then raises the
// confidence of entries corroborated by several videos. All of it goes
// through the queue as auto items.
func (o *Optimizer) RunAuto(ctx context.Context) (Report, error) {
	var r Report
	gdb := o.db.WithContext(ctx)

	tags, err := store.TagsWithCounts(gdb)
	if err != nil {
		return r, err
	}
	for _, g := range store.DuplicateTagGroups(tags) {
		keep := g[0]
		remove := make([]uint, 0, len(g)-1)
		names := make([]string, 0, len(g)-1)
		for _, t := range g[1:] {
			remove = append(remove, t.ID)
			names = append(names, t.Name)
		}
		item, err := o.queue.Enqueue(ctx, Proposal{
			Action:      ActionMergeTags,
			Tier:        Auto,
			TargetID:    keep.ID,
			Description: fmt.Sprintf("Merge %d tags into %q: %s", len(remove), keep.Name, strings.Join(names, ", ")),
			Details:     Details{RemoveIDs: remove},
		})
		if err != nil {
			return r, err
		}
		r.count(item, &r.TagMerges)
	}

	if o.tagger != nil {
		if err := o.fillTaxonomy(ctx, &r); err != nil {
			return r, err
		}
	}

	boosted, err := o.rescored(ctx)
	if err != nil {
		return r, err
	}
	groups, err := store.CorroboratedGroups(gdb)
	if err != nil {
		return r, err
	}
	for _, g := range groups {
		videos := make(map[uint]bool)
		for _, e := range g {
			videos[e.VideoID] = true
		}
		boost := math.Min(o.cfg.MaxBoost, o.cfg.BoostPerVideo*float64(len(videos)))
		for _, e := range g {
			if boosted[e.ID] {
				continue
			}
			next := math.Min(o.cfg.ConfidenceCeiling, e.Confidence+boost)
			if next <= e.Confidence {
				continue
			}
			next = math.Round(next*1000) / 1000
			item, err := o.queue.Enqueue(ctx, Proposal{
				Action:      ActionUpdateConfidence,
				Tier:        Auto,
				TargetID:    e.ID,
				Description: fmt.Sprintf("Corroborated by %d videos: confidence %.2f -> %.2f", len(videos), e.Confidence, next),
				Details:     Details{Confidence: &next},
			})
			if err != nil {
				return r, err
			}
			r.count(item, &r.Rescored)
		}
	}

	o.log.Info("optimizer auto phase finished", "tag_merges", r.TagMerges, "categorized", r.Categorized,
		"tagged", r.Tagged, "rescored", r.Rescored, "failed", r.Failed)
	return r, nil
}

// fillTaxonomy proposes model-suggested categories for uncategorized
// entries and tags for untagged ones. A batch the model fails on is logged
// and left for the next pass.
func (o *Optimizer) fillTaxonomy(ctx context.Context, r *Report) error {
	gdb := o.db.WithContext(ctx)

	bare, err := store.UncategorizedEntries(gdb, 0)
	if err != nil {
		return err
	}
	if len(bare) > 0 {
		cats, err := store.ListCategories(gdb)
		if err != nil {
			return err
		}
		known := make([]string, len(cats))
		for i, c := range cats {
			known[i] = c.Name
		}
		err = o.fill(ctx, "categorize", bare, &r.Categorized, r,
			func(ctx context.Context, batch []capability.TaxonomyEntry) ([]capability.Assignment, error) {
				return o.tagger.Categorize(ctx, batch, known)
			},
			func(names []string) Details { return Details{Categories: names} })
		if err != nil {
			return err
		}
	}

	untagged, err := store.UntaggedEntries(gdb, 0)
	if err != nil {
		return err
	}
	return o.fill(ctx, "tag", untagged, &r.Tagged, r, o.tagger.Tag,
		func(names []string) Details { return Details{Tags: names} })
}

func (o *Optimizer) fill(ctx context.Context, kind string, entries []models.KnowledgeEntry, done *int, r *Report,
	ask func(context.Context, []capability.TaxonomyEntry) ([]capability.Assignment, error),
	details func([]string) Details) error {
	size := o.cfg.TaxonomyBatchSize
	if size < 1 {
		size = 10
	}
	for start := 0; start < len(entries); start += size {
		batch := entries[start:min(start+size, len(entries))]
		in := make([]capability.TaxonomyEntry, len(batch))
		titles := make(map[uint]string, len(batch))
		for i, e := range batch {
			in[i] = capability.TaxonomyEntry{ID: e.ID, EntryType: e.EntryType, Title: e.Title, Content: e.Content}
			titles[e.ID] = e.Title
		}

		var got []capability.Assignment
		call := func(callCtx context.Context) error {
			var err error
			got, err = ask(callCtx, in)
			return err
		}
		var err error
		if o.gate != nil {
			err = o.gate.Do(ctx, kind, call)
		} else {
			err = call(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("optimize: %s: %w", kind, ctx.Err())
			}
			o.log.Warn("taxonomy batch failed", "kind", kind, "entries", len(batch), "error", err)
			continue
		}

		for _, a := range got {
			title, ok := titles[a.EntryID]
			if !ok || len(a.Names) == 0 {
				continue
			}
			item, err := o.queue.Enqueue(ctx, Proposal{
				Action:      ActionAddTaxonomy,
				Tier:        Auto,
				TargetID:    a.EntryID,
				Description: fmt.Sprintf("%s %q: %s", strings.ToUpper(kind[:1])+kind[1:], clip(title, 60), strings.Join(a.Names, ", ")),
				Details:     details(a.Names),
			})
			if err != nil {
				return err
			}
			r.count(item, done)
		}
	}
	return nil
}

// rescored returns the entries whose confidence the optimizer already
// raised, so rescoring runs at most once per entry.
func (o *Optimizer) rescored(ctx context.Context) (map[uint]bool, error) {
	var ids []uint
	err := o.db.WithContext(ctx).Model(&models.OptimizationQueueItem{}).
		Where("action_type = ? AND status = ?", ActionUpdateConfidence, models.QueueStatusExecuted).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("optimize: rescored entries: %w", err)
	}
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *Report) count(item *models.OptimizationQueueItem, ok *int) {
	if item.Status == models.QueueStatusFailed {
		r.Failed++
		return
	}
	*ok++
}

// RunSuggestions proposes items that need an operator: re-ingesting weak or
// failed videos and deleting very low quality entries. Proposals already
// pending are not duplicated.
func (o *Optimizer) RunSuggestions(ctx context.Context) (Report, error) {
	var r Report
	gdb := o.db.WithContext(ctx)

	var proposals []Proposal
	weak, err := store.WeakVideos(gdb, o.cfg.MinEntries, o.cfg.MinAvgConfidence)
	if err != nil {
		return r, err
	}
	for _, v := range weak {
		proposals = append(proposals, Proposal{
			Action:   ActionReingest,
			Tier:     Destructive,
			TargetID: v.ID,
			Description: fmt.Sprintf("Re-ingest %q: %d entries, average confidence %.0f%%",
				clip(v.Title, 60), v.EntryCount, v.AvgConfidence*100),
		})
	}

	garbage, err := store.LowQualityEntries(gdb, o.cfg.GarbageMaxConfidence, o.cfg.GarbageMaxChars)
	if err != nil {
		return r, err
	}
	for _, e := range garbage {
		proposals = append(proposals, Proposal{
			Action:   ActionDeleteEntry,
			Tier:     Destructive,
			TargetID: e.ID,
			Description: fmt.Sprintf("Delete low-quality entry %q: confidence %.0f%%, %d chars",
				clip(e.Title, 50), e.Confidence*100, len([]rune(e.Content))),
		})
	}

	failed, err := store.FailedVideos(gdb)
	if err != nil {
		return r, err
	}
	for _, v := range failed {
		proposals = append(proposals, Proposal{
			Action:      ActionReingest,
			Tier:        Suggestion,
			TargetID:    v.ID,
			Description: fmt.Sprintf("Retry failed video %q: %s", clip(v.Title, 60), clip(v.LastError, 120)),
		})
	}

	for _, p := range proposals {
		if _, err := o.queue.Enqueue(ctx, p); err != nil {
			return r, err
		}
		r.Suggestions++
	}
	o.log.Info("optimizer suggestions queued", "weak_videos", len(weak), "low_quality", len(garbage), "failed_videos", len(failed))
	return r, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
