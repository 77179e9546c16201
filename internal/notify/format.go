package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/lectern/internal/bias"
	"github.com/zulandar/lectern/internal/ingest"
	"github.com/zulandar/lectern/internal/optimize"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

func event(title, body, severity string, fields ...Field) Event {
	return Event{Title: title, Body: body, Severity: severity, Color: severityColor(severity), Fields: fields}
}

func count(name string, n int) Field {
	return Field{Name: name, Value: strconv.Itoa(n), Short: true}
}

// FormatIngest summarizes one ingest pass. Failures raise the severity.
func FormatIngest(s ingest.Summary) Message {
	severity := "success"
	switch {
	case s.Errors > 0:
		severity = "error"
	case s.Failed > 0:
		severity = "warning"
	}
	title := fmt.Sprintf("Ingest: %d of %d videos analyzed", s.Analyzed, s.Processed)
	return Message{
		Text: title,
		Events: []Event{event(title, "", severity,
			count("Analyzed", s.Analyzed), count("Failed", s.Failed),
			count("Skipped", s.Skipped), count("Errors", s.Errors))},
	}
}

// FormatBiasScan summarizes one bias scan.
func FormatBiasScan(r bias.ScanReport) Message {
	severity := "info"
	var body []string
	if r.Reviews > 0 {
		severity = "warning"
		body = append(body, fmt.Sprintf("%d entries need review", r.Reviews))
	}
	if r.Fallbacks > 0 {
		body = append(body, fmt.Sprintf("Detector unavailable for %d batches; heuristics used", r.Fallbacks))
	}
	title := fmt.Sprintf("Bias scan: %d flags on %d entries scanned", r.Flagged, r.Scanned)
	return Message{
		Text: title,
		Events: []Event{event(title, strings.Join(body, "\n"), severity,
			count("Scanned", r.Scanned), count("Suspicious", r.Suspicious),
			count("Flagged", r.Flagged), count("Reviews", r.Reviews))},
	}
}

// FormatOptimize summarizes an optimizer run and the approval backlog.
func FormatOptimize(r optimize.Report, pending int) Message {
	severity := "info"
	if r.Failed > 0 {
		severity = "warning"
	}
	title := fmt.Sprintf("Optimizer: %d items awaiting approval", pending)
	return Message{
		Text: title,
		Events: []Event{event(title, "", severity,
			count("Tag merges", r.TagMerges), count("Categorized", r.Categorized),
			count("Tagged", r.Tagged), count("Rescored", r.Rescored),
			count("Failed", r.Failed), count("Suggestions", r.Suggestions))},
	}
}
