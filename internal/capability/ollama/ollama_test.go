package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/logging"
)

// fakeServer replies to /api/chat with content wrapped in a chat response and
// records the last request body.
func fakeServer(t *testing.T, status int, content string, got *chatRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": content})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": content},
			"prompt_eval_count": 100,
			"eval_count":        40,
		})
	}))
	t.Cleanup(srv.Close)
	return New(config.OllamaConfig{URL: srv.URL + "/", Model: "llama3.2"}, logging.Discard())
}

func TestAnalyzeChunk(t *testing.T) {
	var req chatRequest
	reply := "```json\n" + `{"entries":[
		{"entry_type":"tip","title":"Glass early","content":"Be on the glass at first light.","source_quote":"first light","source_start_time":12.5,"confidence":"0.9","categories":["Outdoors"],"tags":["glassing"]},
		{"entry_type":"rumor","title":"x","content":"y"}
	]}` + "\n```"
	c := fakeServer(t, http.StatusOK, reply, &req)

	got, err := c.AnalyzeChunk(context.Background(), capability.ChunkRequest{
		VideoTitle: "Elk", ChannelName: "Elk 101", Index: 1, Total: 3, Text: "words", StartTime: 10, EndTime: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, "llama3.2", req.Model)
	assert.Equal(t, "json", req.Format)
	assert.False(t, req.Stream)
	assert.Equal(t, 0.3, req.Options.Temperature)
	assert.Equal(t, 4096, req.Options.NumPredict)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "Chunk: 2 of 3")

	assert.Equal(t, 140, got.TokensUsed)
	require.Len(t, got.Candidates, 2)
	first := got.Candidates[0]
	assert.Equal(t, "Glass early", first.Title)
	require.NotNil(t, first.Confidence)
	assert.Equal(t, 0.9, *first.Confidence)
	require.NotNil(t, first.SourceStartTime)
	assert.Equal(t, 12.5, *first.SourceStartTime)
	assert.Nil(t, first.SourceEndTime)
	assert.Equal(t, "rumor", got.Candidates[1].EntryType)
}

func TestAnalyzeChunk_BadJSONIsTransient(t *testing.T) {
	c := fakeServer(t, http.StatusOK, "I found some entries!", nil)
	_, err := c.AnalyzeChunk(context.Background(), capability.ChunkRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrTransient)
}

func TestChat_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusInternalServerError, false},
		{http.StatusTooManyRequests, false},
		{http.StatusNotFound, true},
		{http.StatusBadRequest, true},
	}
	for _, tt := range tests {
		c := fakeServer(t, tt.status, "model not found", nil)
		_, err := c.AnalyzeChunk(context.Background(), capability.ChunkRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not found")
		assert.Equal(t, tt.permanent, fault.IsPermanent(err), "status %d", tt.status)
		assert.Equal(t, !tt.permanent, fault.IsTransient(err), "status %d", tt.status)
	}
}

func TestChat_Unreachable(t *testing.T) {
	c := New(config.OllamaConfig{URL: "http://127.0.0.1:1", Model: "m"}, nil)
	_, err := c.AnalyzeChunk(context.Background(), capability.ChunkRequest{})
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
}

func TestDetectBias(t *testing.T) {
	var req chatRequest
	reply := `{"results":[
		{"id":7,"is_biased":true,"bias_type":"affiliate","bias_severity":"high","brand_names":["Vortex"],"bias_notes":"discount code"},
		{"id":8,"is_biased":false},
		{"id":99,"is_biased":true,"bias_type":"sponsored","bias_severity":"low"}
	]}`
	c := fakeServer(t, http.StatusOK, reply, &req)

	got, err := c.DetectBias(context.Background(), []capability.BiasEntry{
		{ID: 7, EntryType: "tip", Title: "Optics", Content: "Use code ELK for 10% off"},
		{ID: 8, EntryType: "tip", Title: "Wind", Content: "Check the wind"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.1, req.Options.Temperature)
	assert.Equal(t, 2048, req.Options.NumPredict)
	assert.Contains(t, req.Messages[1].Content, "[Entry 7]")

	require.Len(t, got, 1)
	assert.Equal(t, uint(7), got[0].EntryID)
	assert.Equal(t, "affiliate", got[0].BiasType)
	assert.Equal(t, []string{"Vortex"}, got[0].BrandNames)
	assert.Equal(t, DetectedBy, got[0].DetectedBy)
}

func TestDetectBias_Empty(t *testing.T) {
	c := New(config.OllamaConfig{URL: "http://127.0.0.1:1", Model: "m"}, nil)
	got, err := c.DetectBias(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCategorizeAndTag(t *testing.T) {
	entries := []capability.TaxonomyEntry{
		{ID: 3, EntryType: "tip", Title: "Wind", Content: "Keep the wind in your face"},
		{ID: 4, EntryType: "warning", Title: "Skyline", Content: "Do not walk ridgelines"},
	}

	var req chatRequest
	c := fakeServer(t, http.StatusOK, `{"assignments":[
		{"id":3,"categories":["Scouting"]},
		{"id":4,"categories":[]},
		{"id":42,"categories":["Gear"]}
	]}`, &req)
	got, err := c.Categorize(context.Background(), entries, []string{"Scouting", "Gear"})
	require.NoError(t, err)
	assert.Equal(t, []capability.Assignment{{EntryID: 3, Names: []string{"Scouting"}}}, got)
	assert.Contains(t, req.Messages[1].Content, "Available categories: Scouting, Gear")
	assert.Contains(t, req.Messages[1].Content, "[Entry 4] (warning) Skyline")

	c = fakeServer(t, http.StatusOK, `{"assignments":[{"id":4,"tags":["ridgeline","stealth"]}]}`, nil)
	got, err = c.Tag(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, []capability.Assignment{{EntryID: 4, Names: []string{"ridgeline", "stealth"}}}, got)

	c = fakeServer(t, http.StatusOK, "not json", nil)
	_, err = c.Tag(context.Background(), entries)
	assert.True(t, fault.IsTransient(err))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1} "))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}"))
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
	}))
	defer srv.Close()

	assert.NoError(t, New(config.OllamaConfig{URL: srv.URL, Model: "llama3.2"}, nil).Ping(context.Background()))
	assert.Error(t, New(config.OllamaConfig{URL: srv.URL, Model: "mistral"}, nil).Ping(context.Background()))
}
