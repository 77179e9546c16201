package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv is a scratch lectern installation: a sqlite database, a
// transcript directory and a fake model server.
type testEnv struct {
	t           *testing.T
	dir         string
	configPath  string
	transcripts string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	transcripts := filepath.Join(dir, "transcripts")
	require.NoError(t, os.MkdirAll(transcripts, 0o755))

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"entries":[{"entry_type":"technique","title":"Cow call in September","content":"Use a soft cow call to pull a herd bull during the September rut.","source_quote":"soft cow call","source_start_time":3,"confidence":0.8,"categories":["Outdoors"],"tags":["Elk Calling"]}]}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": content},
			"prompt_eval_count": 120,
			"eval_count":        60,
		})
	}))
	t.Cleanup(model.Close)

	cfg := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
transcripts:
  dir: %s
ollama:
  url: %s
pipeline:
  requests_per_minute: 60000
  max_retries: 0
logging:
  level: error
`, filepath.Join(dir, "lectern.db"), transcripts, model.URL)
	configPath := filepath.Join(dir, "lectern.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	return &testEnv{t: t, dir: dir, configPath: configPath, transcripts: transcripts}
}

// run executes one lectern command and returns its stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "lectern %v\n%s", args, out)
	return out
}

func (e *testEnv) writeFile(name, body string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const testManifest = `channel:
  id: UC-elk
  name: Elk 101
videos:
  - id: abc123
    title: September bugling tactics
    published_at: 2024-09-01
  - id: def456
    title: Glassing for mule deer
`

func TestCLI_ImportIngestSearch(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("db", "init")
	assert.Contains(t, out, "initialized successfully")

	out = env.mustRun("video", "import", env.writeFile("manifest.yaml", testManifest))
	assert.Contains(t, out, "Channel Elk 101: 2 new videos, 0 already known")

	out = env.mustRun("video", "import", filepath.Join(env.dir, "manifest.yaml"))
	assert.Contains(t, out, "0 new videos, 2 already known")

	out = env.mustRun("video", "list")
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "pending")

	// Only abc123 has a transcript; def456 fails permanently.
	require.NoError(t, os.WriteFile(filepath.Join(env.transcripts, "abc123.en.json"),
		[]byte(`{"segments":[{"text":"a soft cow call will pull the herd bull in september","start":3,"duration":4}]}`), 0o644))

	out = env.mustRun("ingest")
	assert.Contains(t, out, "Processed 2 videos: 1 analyzed, 1 failed")

	out = env.mustRun("video", "list", "--status", "analyzed")
	assert.Contains(t, out, "abc123")
	assert.NotContains(t, out, "def456")

	out = env.mustRun("status", "--failed")
	assert.Contains(t, out, "def456")
	assert.Contains(t, out, "no transcript")

	out = env.mustRun("search", "cow", "call")
	assert.Contains(t, out, "Cow call in September")
	assert.Contains(t, out, "https://www.youtube.com/watch?v=abc123&t=3")

	out = env.mustRun("search", "--in", "transcripts", "herd")
	assert.Contains(t, out, "September bugling tactics")

	out = env.mustRun("video", "show", "abc123")
	assert.Contains(t, out, "Status:   analyzed")
	assert.Contains(t, out, "Entries:  1")

	env.mustRun("index", "check")
	out = env.mustRun("index", "rebuild")
	assert.Contains(t, out, "Rebuilt knowledge index: 1 rows")

	out = env.mustRun("bias", "scan", "--heuristics-only")
	assert.Contains(t, out, "Scanned 1 entries")
	out = env.mustRun("bias", "report")
	assert.Contains(t, out, "Flags:")
}

func TestCLI_SkipThroughQueue(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("db", "init")
	env.mustRun("channel", "add", "UC-elk", "--name", "Elk 101")
	env.mustRun("video", "add", "abc123", "--channel", "UC-elk", "--title", "September bugling tactics")

	out := env.mustRun("video", "skip", "abc123", "--reason", "off topic")
	assert.Contains(t, out, "Queued item #1 (mark_skipped)")

	// The video is untouched until the item is approved.
	out = env.mustRun("video", "list", "--status", "pending")
	assert.Contains(t, out, "abc123")

	out = env.mustRun("queue", "list")
	assert.Contains(t, out, "mark_skipped")
	assert.Contains(t, out, "suggestion")

	out = env.mustRun("queue", "approve", "1", "--by", "alice")
	assert.Contains(t, out, "Item #1 executed")

	out = env.mustRun("video", "list", "--status", "skipped")
	assert.Contains(t, out, "abc123")

	_, err := env.run("queue", "approve", "1")
	require.Error(t, err)

	out = env.mustRun("queue", "list")
	assert.Contains(t, out, "Queue is empty.")

	out = env.mustRun("video", "reingest", "abc123", "--approve", "--by", "alice")
	assert.Contains(t, out, "executed")
	out = env.mustRun("video", "list", "--status", "pending")
	assert.Contains(t, out, "abc123")
}

func TestCLI_QueueProposeAndReject(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("db", "init")
	env.mustRun("channel", "add", "UC-elk")
	env.mustRun("video", "add", "abc123", "--channel", "UC-elk")

	_, err := env.run("queue", "propose", "--action", "paint_it_red", "--target", "1")
	require.Error(t, err)

	out := env.mustRun("queue", "propose", "--action", "delete_video", "--target", "1")
	assert.Contains(t, out, "Queued item #1 (delete_video, destructive)")

	out = env.mustRun("queue", "reject", "1", "--by", "bob")
	assert.Contains(t, out, "Item #1 rejected by bob")

	out = env.mustRun("queue", "list", "--status", "rejected")
	assert.Contains(t, out, "delete_video")

	out = env.mustRun("queue", "execute-approved")
	assert.Contains(t, out, "Nothing to execute.")
}

func TestCLI_MissingConfigUsesDefaultsOnlyForDefaultPath(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "status"})
	require.Error(t, cmd.Execute())
}

func TestCLI_SearchRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("db", "init")
	_, err := env.run("search", "--in", "podcasts", "elk")
	require.Error(t, err)
	_, err = env.run("search", "--type", "rumor", "elk")
	require.Error(t, err)
}
