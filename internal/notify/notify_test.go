package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/optimize"
)

type recorder struct {
	got []Message
	err error
}

func (r *recorder) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func TestMulti_SendsToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("boom")}
	m := Multi{a, nil, b}
	err := m.Send(context.Background(), Message{Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want boom", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(a.got), len(b.got))
	}
}

func TestMulti_Enabled(t *testing.T) {
	if (Multi{}).Enabled() {
		t.Error("empty Multi should be disabled")
	}
	if (Multi{nil}).Enabled() {
		t.Error("Multi of nils should be disabled")
	}
	if !(Multi{&recorder{}}).Enabled() {
		t.Error("Multi with a notifier should be enabled")
	}
}

func TestFormatIngest(t *testing.T) {
	tests := []struct {
		name  string
		in    ingest.Summary
		color string
	}{
		{"clean", ingest.Summary{Processed: 2, Analyzed: 2}, ColorSuccess},
		{"failed video", ingest.Summary{Processed: 2, Analyzed: 1, Failed: 1}, ColorWarning},
		{"errors", ingest.Summary{Processed: 2, Analyzed: 1, Failed: 1, Errors: 1}, ColorError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatIngest(tt.in)
			if len(msg.Events) != 1 {
				t.Fatalf("events = %d", len(msg.Events))
			}
			if msg.Events[0].Color != tt.color {
				t.Errorf("color = %s, want %s", msg.Events[0].Color, tt.color)
			}
			if len(msg.Events[0].Fields) != 4 {
				t.Errorf("fields = %d, want 4", len(msg.Events[0].Fields))
			}
		})
	}
	if got := FormatIngest(ingest.Summary{Processed: 3, Analyzed: 2}).Text; got != "Ingest: 2 of 3 videos analyzed" {
		t.Errorf("text = %q", got)
	}
}

func TestFormatBiasScan(t *testing.T) {
	quiet := FormatBiasScan(bias.ScanReport{Scanned: 5})
	if quiet.Events[0].Color != ColorInfo || quiet.Events[0].Body != "" {
		t.Errorf("quiet scan = %+v", quiet.Events[0])
	}

	loud := FormatBiasScan(bias.ScanReport{Scanned: 5, Suspicious: 3, Flagged: 4, Reviews: 2, Fallbacks: 1})
	evt := loud.Events[0]
	if evt.Color != ColorWarning {
		t.Errorf("color = %s, want warning", evt.Color)
	}
	if evt.Body != "2 entries need review\nDetector unavailable for 1 batches; heuristics used" {
		t.Errorf("body = %q", evt.Body)
	}
	if loud.Text != "Bias scan: 4 flags on 5 entries scanned" {
		t.Errorf("text = %q", loud.Text)
	}
}

func TestFormatOptimize(t *testing.T) {
	msg := FormatOptimize(optimize.Report{TagMerges: 1, Categorized: 5, Rescored: 2, Failed: 1, Suggestions: 3}, 4)
	if msg.Text != "Optimizer: 4 items awaiting approval" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Events[0].Color != ColorWarning {
		t.Errorf("color = %s, want warning", msg.Events[0].Color)
	}
	if f := msg.Events[0].Fields[1]; f.Name != "Categorized" || f.Value != "5" {
		t.Errorf("categorized field = %+v", f)
	}
	if f := msg.Events[0].Fields[3]; f.Name != "Rescored" || f.Value != "2" {
		t.Errorf("rescored field = %+v", f)
	}
}
