// Package ollama implements the analysis, bias detection and tagging
// capabilities on top of a local Ollama server's /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/logging"
)

// DetectedBy is recorded on bias flags produced by this detector.
const DetectedBy = "bias_agent"

// Client talks to one Ollama model.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	log     *slog.Logger
}

var (
	_ capability.Analyzer     = (*Client)(nil)
	_ capability.BiasDetector = (*Client)(nil)
	_ capability.Tagger       = (*Client)(nil)
)

// New returns a client for the configured server and model. The HTTP client
// has no timeout of its own; callers bound calls through a capability.Gate.
func New(cfg config.OllamaConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
		http:    &http.Client{},
		log:     logging.OrDefault(log),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// chat sends one non-streaming JSON-format chat request and returns the
// assistant's content and the tokens the server reported.
func (c *Client) chat(ctx context.Context, system, user string, opts chatOptions) (string, int, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Format:  "json",
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", 0, fmt.Errorf("ollama: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", 0, fault.Permanent(fmt.Errorf("ollama: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fault.Transient(fmt.Errorf("ollama: post chat: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fault.Transient(fmt.Errorf("ollama: read response: %w", err))
	}
	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		err := fmt.Errorf("ollama: chat returned %d: %s", resp.StatusCode, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", 0, fault.Transient(err)
		}
		return "", 0, fault.Permanent(err)
	}
	if decodeErr != nil {
		return "", 0, fault.Transient(fmt.Errorf("ollama: decode response: %w", decodeErr))
	}
	return stripFences(out.Message.Content), out.PromptEvalCount + out.EvalCount, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// add even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &n); err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexFloat(n)
	return nil
}

func (f *flexFloat) ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

type rawEntry struct {
	EntryType       string     `json:"entry_type"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	SourceQuote     string     `json:"source_quote"`
	SourceStartTime *flexFloat `json:"source_start_time"`
	SourceEndTime   *flexFloat `json:"source_end_time"`
	Confidence      *flexFloat `json:"confidence"`
	Categories      []string   `json:"categories"`
	Tags            []string   `json:"tags"`
}

// AnalyzeChunk asks the model for knowledge entries in one chunk. A reply
// that is not the expected JSON is a transient failure.
func (c *Client) AnalyzeChunk(ctx context.Context, req capability.ChunkRequest) (*capability.Analysis, error) {
	content, tokens, err := c.chat(ctx, analysisSystemPrompt, analysisUserPrompt(req),
		chatOptions{Temperature: 0.3, NumPredict: 4096})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Entries []rawEntry `json:"entries"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		c.log.Warn("unparseable analysis reply", "chunk", req.Index, "reply", truncate(content, 200))
		return nil, fault.Transient(fmt.Errorf("ollama: parse analysis for chunk %d: %w", req.Index, err))
	}

	out := &capability.Analysis{TokensUsed: tokens, Candidates: make([]capability.Candidate, 0, len(parsed.Entries))}
	for _, e := range parsed.Entries {
		out.Candidates = append(out.Candidates, capability.Candidate{
			EntryType:       e.EntryType,
			Title:           e.Title,
			Content:         e.Content,
			SourceQuote:     e.SourceQuote,
			SourceStartTime: e.SourceStartTime.ptr(),
			SourceEndTime:   e.SourceEndTime.ptr(),
			Confidence:      e.Confidence.ptr(),
			Categories:      e.Categories,
			Tags:            e.Tags,
		})
	}
	return out, nil
}

type rawBiasResult struct {
	ID           uint     `json:"id"`
	IsBiased     bool     `json:"is_biased"`
	BiasType     string   `json:"bias_type"`
	BiasSeverity string   `json:"bias_severity"`
	BrandNames   []string `json:"brand_names"`
	BiasNotes    string   `json:"bias_notes"`
}

// DetectBias asks the model which of entries carry commercial bias. Results
// naming an entry outside the batch are dropped.
func (c *Client) DetectBias(ctx context.Context, entries []capability.BiasEntry) ([]capability.BiasCandidate, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	content, _, err := c.chat(ctx, biasSystemPrompt, biasUserPrompt(entries),
		chatOptions{Temperature: 0.1, NumPredict: 2048})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Results []rawBiasResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fault.Transient(fmt.Errorf("ollama: parse bias results: %w", err))
	}

	inBatch := make(map[uint]bool, len(entries))
	for _, e := range entries {
		inBatch[e.ID] = true
	}
	var out []capability.BiasCandidate
	for _, r := range parsed.Results {
		if !r.IsBiased || !inBatch[r.ID] {
			continue
		}
		out = append(out, capability.BiasCandidate{
			EntryID:    r.ID,
			BiasType:   r.BiasType,
			Severity:   r.BiasSeverity,
			BrandNames: r.BrandNames,
			Notes:      r.BiasNotes,
			DetectedBy: DetectedBy,
		})
	}
	return out, nil
}

type rawAssignment struct {
	ID         uint     `json:"id"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// Categorize asks the model for categories for entries.
func (c *Client) Categorize(ctx context.Context, entries []capability.TaxonomyEntry, known []string) ([]capability.Assignment, error) {
	return c.assign(ctx, "categories", entries, categorizeUserPrompt(entries, known),
		func(r rawAssignment) []string { return r.Categories })
}

// Tag asks the model for tags for entries.
func (c *Client) Tag(ctx context.Context, entries []capability.TaxonomyEntry) ([]capability.Assignment, error) {
	return c.assign(ctx, "tags", entries, tagUserPrompt(entries),
		func(r rawAssignment) []string { return r.Tags })
}

// assign runs one taxonomy prompt. Assignments naming an entry outside the
// batch, or carrying no names, are dropped.
func (c *Client) assign(ctx context.Context, kind string, entries []capability.TaxonomyEntry, prompt string,
	names func(rawAssignment) []string) ([]capability.Assignment, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	content, _, err := c.chat(ctx, taxonomySystemPrompt, prompt, chatOptions{Temperature: 0.2, NumPredict: 2048})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Assignments []rawAssignment `json:"assignments"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fault.Transient(fmt.Errorf("ollama: parse %s: %w", kind, err))
	}

	inBatch := make(map[uint]bool, len(entries))
	for _, e := range entries {
		inBatch[e.ID] = true
	}
	var out []capability.Assignment
	for _, a := range parsed.Assignments {
		n := names(a)
		if !inBatch[a.ID] || len(n) == 0 {
			continue
		}
		out = append(out, capability.Assignment{EntryID: a.ID, Names: n})
	}
	return out, nil
}

// Ping checks that the server is reachable and the model is installed.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("ollama: decode tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return errors.New("ollama: model " + c.model + " is not installed")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
