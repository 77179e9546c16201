package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/models"
)

func TestWeakVideos(t *testing.T) {
	gdb := db.OpenTest(t)
	thin := seedVideo(t, gdb, "thin")
	rich := seedVideo(t, gdb, "rich")
	seedVideo(t, gdb, "pending")

	seedEntry(t, gdb, thin.ID, 0, EntryInput{Title: "Only one", Content: "x", Confidence: 0.9})
	for _, title := range []string{"One", "Two", "Three"} {
		seedEntry(t, gdb, rich.ID, 0, EntryInput{Title: title, Content: "x", Confidence: 0.9})
	}
	for _, id := range []uint{thin.ID, rich.ID} {
		_, err := SetVideoStatus(gdb, id, StatusChange{To: models.StatusTranscriptFetched})
		require.NoError(t, err)
		_, err = SetVideoStatus(gdb, id, StatusChange{To: models.StatusAnalyzed})
		require.NoError(t, err)
	}

	weak, err := WeakVideos(gdb, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "thin", weak[0].VideoID)
	assert.EqualValues(t, 1, weak[0].EntryCount)

	weak, err = WeakVideos(gdb, 1, 0.95)
	require.NoError(t, err)
	assert.Len(t, weak, 2)
}

func TestLowQualityEntries(t *testing.T) {
	gdb := db.OpenTest(t)
	v := seedVideo(t, gdb, "abc")
	junk := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Um", Content: "uh huh", Confidence: 0.1})
	seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Long but unsure", Content: strings.Repeat("é", 60), Confidence: 0.1})
	seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Short but sure", Content: "ok", Confidence: 0.9})

	got, err := LowQualityEntries(gdb, 0.3, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, junk.ID, got[0].ID)
}

func TestUnflaggedEntries(t *testing.T) {
	gdb := db.OpenTest(t)
	v := seedVideo(t, gdb, "abc")
	a := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "A", Content: "a"})
	b := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "B", Content: "b"})
	require.NoError(t, gdb.Create(&models.BiasFlag{KnowledgeID: a.ID, BiasType: models.BiasAffiliate}).Error)

	got, err := UnflaggedEntries(gdb, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
}

func TestEntriesWithoutTaxonomy(t *testing.T) {
	gdb := db.OpenTest(t)
	v := seedVideo(t, gdb, "abc")
	bare := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Bare", Content: "a"})
	tagged := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Tagged", Content: "b", Tags: []string{"wind"}})
	filed := seedEntry(t, gdb, v.ID, 0, EntryInput{Title: "Filed", Content: "c", Categories: []string{"Scouting"}})

	got, err := UncategorizedEntries(gdb, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{bare.ID, tagged.ID}, entryIDs(got))

	got, err = UntaggedEntries(gdb, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{bare.ID}, entryIDs(got))

	require.NoError(t, AddEntryTaxonomy(gdb, bare.ID, []string{"Scouting", " "}, []string{"Glassing"}))
	require.NoError(t, AddEntryTaxonomy(gdb, bare.ID, []string{"scouting"}, nil), "existing links are kept")
	e, err := GetEntry(gdb, bare.ID)
	require.NoError(t, err)
	require.Len(t, e.Categories, 1)
	assert.Equal(t, "scouting", e.Categories[0].Slug)
	require.Len(t, e.Tags, 1)
	assert.Equal(t, "glassing", e.Tags[0].Name)

	got, err = UntaggedEntries(gdb, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint{filed.ID}, entryIDs(got))
	assert.ErrorIs(t, AddEntryTaxonomy(gdb, 999, nil, []string{"x"}), ErrNotFound)
}

func entryIDs(entries []models.KnowledgeEntry) []uint {
	out := make([]uint, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestTitleKey(t *testing.T) {
	assert.Equal(t, "bugle calls", TitleKey("Calls: bugle"))
	assert.Equal(t, "", TitleKey("Elk calls"))
	assert.Equal(t, "", TitleKey("Use the wind"))
	assert.Equal(t, TitleKey("Thermal winds at dusk matter"), TitleKey("dusk MATTER: thermal winds"))
	assert.Equal(t, "aaaa bbbb cccc dddd", TitleKey("eeee dddd cccc bbbb aaaa"))
}

func TestCorroboratedGroups(t *testing.T) {
	gdb := db.OpenTest(t)
	v1 := seedVideo(t, gdb, "one")
	v2 := seedVideo(t, gdb, "two")
	a := seedEntry(t, gdb, v1.ID, 0, EntryInput{Title: "Thermal winds at dusk", Content: "x"})
	b := seedEntry(t, gdb, v2.ID, 0, EntryInput{Title: "Dusk thermal winds", Content: "y"})
	seedEntry(t, gdb, v1.ID, 0, EntryInput{Title: "Glass north slopes", Content: "z"})
	seedEntry(t, gdb, v1.ID, 1, EntryInput{Title: "North slopes glass", Content: "z"})

	groups, err := CorroboratedGroups(gdb)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0], 2)
	assert.Equal(t, a.ID, groups[0][0].ID)
	assert.Equal(t, b.ID, groups[0][1].ID)
}
