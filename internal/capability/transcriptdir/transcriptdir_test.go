package transcriptdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/fault"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestFetchTranscript_PreferredLanguage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "abc.de.json", `{"segments":[{"text":"hallo","start":0,"duration":1}]}`)
	writeFile(t, dir, "abc.en-US.json", `{"is_generated":true,"snippets":[{"text":"hello there","start":0,"duration":1.5}]}`)

	f := New(dir, []string{"en", "en-US", "de"})
	tr, err := f.FetchTranscript(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "en-US", tr.LanguageCode)
	assert.True(t, tr.IsGenerated)
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, "hello there", tr.Segments[0].Text)
	assert.Equal(t, 1.5, tr.Segments[0].Duration)
}

func TestFetchTranscript_BareArrayFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "xyz.json", `[{"text":"one","start":0,"duration":1},{"text":"two","start":1,"duration":1}]`)

	tr, err := New(dir, []string{"en"}).FetchTranscript(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Len(t, tr.Segments, 2)
	assert.Empty(t, tr.LanguageCode)
}

func TestFetchTranscript_PermanentFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.json", `{"segments":[]}`)
	writeFile(t, dir, "broken.json", `{"segments":`)
	f := New(dir, []string{"en"})

	for _, id := range []string{"missing", "empty", "broken", "../etc", ""} {
		_, err := f.FetchTranscript(context.Background(), id)
		require.Error(t, err, id)
		assert.True(t, fault.IsPermanent(err), "%s: %v", id, err)
	}
}

func TestFetchTranscript_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(t.TempDir(), nil).FetchTranscript(ctx, "abc")
	assert.ErrorIs(t, err, context.Canceled)
}
