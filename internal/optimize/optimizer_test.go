package optimize

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

func TestOptimizer_RunAuto(t *testing.T) {
	q, gdb := newQueue(t)
	ctx := context.Background()
	v1 := seedVideo(t, gdb, "v1", models.StatusAnalyzed)
	v2 := seedVideo(t, gdb, "v2", models.StatusAnalyzed)
	e1 := seedEntry(t, gdb, v1.ID, store.EntryInput{Title: "Bugle calls at dawn", Confidence: 0.8, Tags: []string{"elk-calling"}})
	e2 := seedEntry(t, gdb, v2.ID, store.EntryInput{Title: "Dawn bugle calls", Confidence: 0.9, Tags: []string{"elk calling"}})
	e3 := seedEntry(t, gdb, v2.ID, store.EntryInput{Title: "Wallow hunting tactics", Confidence: 0.7, Tags: []string{"elk calling"}})

	o := NewOptimizer(gdb, q, testOptimizeConfig(), logging.Discard())
	r, err := o.RunAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.TagMerges)
	assert.Equal(t, 2, r.Rescored)
	assert.Zero(t, r.Failed)

	tags, err := store.TagsWithCounts(gdb)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "elk calling", tags[0].Name)
	assert.EqualValues(t, 3, tags[0].Count)

	for id, want := range map[uint]float64{e1.ID: 0.9, e2.ID: 0.95, e3.ID: 0.7} {
		got, err := store.GetEntry(gdb, id)
		require.NoError(t, err)
		assert.InDelta(t, want, got.Confidence, 1e-9, "entry %d", id)
	}

	items, err := q.List(ctx, models.QueueStatusExecuted)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	r, err = o.RunAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, r, "a second pass finds nothing to do")

	got, err := store.GetEntry(gdb, e1.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
}

type fakeTagger struct {
	mu    sync.Mutex
	fail  map[uint]bool
	known []string
	names map[uint][]string
}

func (f *fakeTagger) assign(entries []capability.TaxonomyEntry, extra uint) ([]capability.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []capability.Assignment
	for _, e := range entries {
		if f.fail[e.ID] {
			return nil, errors.New("model returned garbage")
		}
		out = append(out, capability.Assignment{EntryID: e.ID, Names: f.names[e.ID]})
	}
	return append(out, capability.Assignment{EntryID: extra, Names: []string{"stray"}}), nil
}

func (f *fakeTagger) Categorize(_ context.Context, entries []capability.TaxonomyEntry, known []string) ([]capability.Assignment, error) {
	f.mu.Lock()
	f.known = known
	f.mu.Unlock()
	return f.assign(entries, 9999)
}

func (f *fakeTagger) Tag(_ context.Context, entries []capability.TaxonomyEntry) ([]capability.Assignment, error) {
	return f.assign(entries, 9999)
}

func TestOptimizer_FillsMissingTaxonomy(t *testing.T) {
	q, gdb := newQueue(t)
	ctx := context.Background()
	v := seedVideo(t, gdb, "v1", models.StatusAnalyzed)
	done := seedEntry(t, gdb, v.ID, store.EntryInput{Title: "Play the wind", Categories: []string{"Scouting"}, Tags: []string{"wind"}})
	bare := seedEntry(t, gdb, v.ID, store.EntryInput{Title: "Glass from the shade"})
	stuck := seedEntry(t, gdb, v.ID, store.EntryInput{Title: "Pack light on day one"})

	tagger := &fakeTagger{
		fail: map[uint]bool{stuck.ID: true},
		names: map[uint][]string{
			bare.ID:  {"Scouting", "Optics"},
			stuck.ID: {"Gear"},
		},
	}
	cfg := testOptimizeConfig()
	cfg.TaxonomyBatchSize = 1
	o := NewOptimizer(gdb, q, cfg, logging.Discard()).WithTagger(tagger, nil)

	r, err := o.RunAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Categorized: 1, Tagged: 1}, r, "a failed batch is skipped, not fatal")
	assert.Contains(t, tagger.known, "Scouting")

	got, err := store.GetEntry(gdb, bare.ID)
	require.NoError(t, err)
	assert.Len(t, got.Categories, 2)
	var tags []string
	for _, tag := range got.Tags {
		tags = append(tags, tag.Name)
	}
	assert.ElementsMatch(t, []string{"scouting", "optics"}, tags)

	got, err = store.GetEntry(gdb, done.ID)
	require.NoError(t, err)
	assert.Len(t, got.Categories, 1, "entries with taxonomy are left alone")
	assert.Len(t, got.Tags, 1)

	got, err = store.GetEntry(gdb, stuck.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Categories)
	assert.Empty(t, got.Tags)

	tagger.fail = nil
	r, err = o.RunAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Categorized: 1, Tagged: 1}, r, "skipped entries are retried on the next pass")

	items, err := q.List(ctx, models.QueueStatusExecuted)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	for _, it := range items {
		assert.Equal(t, ActionAddTaxonomy, it.ActionType)
	}
}

func TestOptimizer_RunSuggestions(t *testing.T) {
	q, gdb := newQueue(t)
	ctx := context.Background()
	weak := seedVideo(t, gdb, "weak", models.StatusAnalyzed)
	garbage := seedEntry(t, gdb, weak.ID, store.EntryInput{Title: "Um", Content: "meh", Confidence: 0.1})

	good := seedVideo(t, gdb, "good", models.StatusAnalyzed)
	for _, title := range []string{"Glassing basins", "Reading wind", "Packing out quarters"} {
		seedEntry(t, gdb, good.ID, store.EntryInput{Title: title})
	}
	failed := seedVideo(t, gdb, "broken", models.StatusFailed)

	o := NewOptimizer(gdb, q, testOptimizeConfig(), logging.Discard())
	r, err := o.RunSuggestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Suggestions)

	pending, err := q.List(ctx, models.QueueStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	type key struct {
		action string
		target uint
		tier   string
	}
	var got []key
	for _, it := range pending {
		got = append(got, key{it.ActionType, it.TargetID, it.Severity})
	}
	assert.ElementsMatch(t, []key{
		{ActionReingest, weak.ID, string(Destructive)},
		{ActionDeleteEntry, garbage.ID, string(Destructive)},
		{ActionReingest, failed.ID, string(Suggestion)},
	}, got)

	_, err = store.GetEntry(gdb, garbage.ID)
	assert.NoError(t, err, "suggestions never mutate")

	_, err = o.RunSuggestions(ctx)
	require.NoError(t, err)
	pending, err = q.List(ctx, models.QueueStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3, "pending proposals are not duplicated")
}
