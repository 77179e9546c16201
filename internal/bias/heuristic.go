package bias

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/models"
)

// Detector names recorded on flags the heuristics produce.
const (
	DetectedByHeuristic = "heuristic"
	DetectedByFallback  = "heuristic_fallback"
)

var affiliatePatterns = compile(
	`use (?:my |the )?code\b`,
	`link in (?:the )?description`,
	`affiliate`,
	`discount code`,
	`promo code`,
	`sponsored by`,
	`check (?:them )?out at`,
	`special (?:offer|deal)`,
	`percent off`,
	`\bsave \d+%`,
	`coupon`,
)

var promotionalPatterns = compile(
	`best .{1,30} on the market`,
	`nothing compares to`,
	`only .{1,20} I(?:'ll| will) ever use`,
	`hands down the best`,
	`game ?changer`,
	`can'?t hunt without`,
	`(?:my|the) go[- ]?to`,
	`I(?:'ve| have) tried (?:them )?all.{0,30}(?:best|winner)`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Finding is what the phrase and brand patterns saw in one entry.
type Finding struct {
	Brands      []string
	Affiliate   bool
	Promotional bool
}

// Suspicious reports whether anything matched.
func (f Finding) Suspicious() bool {
	return f.Affiliate || f.Promotional || len(f.Brands) > 0
}

// Candidate turns a finding into a flag. Affiliate language outranks
// promotional claims, which outrank bare brand mentions.
func (f Finding) Candidate(entryID uint, detectedBy string) capability.BiasCandidate {
	c := capability.BiasCandidate{EntryID: entryID, BrandNames: f.Brands, DetectedBy: detectedBy}
	switch {
	case f.Affiliate:
		c.BiasType, c.Severity, c.Notes = models.BiasAffiliate, models.SeverityMedium, "Affiliate or discount language"
	case f.Promotional:
		c.BiasType, c.Severity, c.Notes = models.BiasUnsubstantiatedClaim, models.SeverityMedium, "Promotional claims"
	case len(f.Brands) > 0:
		c.BiasType, c.Severity = models.BiasBrandPromotion, models.SeverityLow
		c.Notes = fmt.Sprintf("Mentions brands: %s", strings.Join(f.Brands, ", "))
	default:
		c.BiasType, c.Severity, c.Notes = models.BiasBrandPromotion, models.SeverityLow, "Possible commercial content"
	}
	return c
}

type brand struct {
	name string
	re   *regexp.Regexp
}

// HeuristicDetector flags entries by regular expressions over their title,
// content and quote. It needs no external service.
type HeuristicDetector struct {
	brands []brand
}

var _ capability.BiasDetector = (*HeuristicDetector)(nil)

// NewHeuristicDetector matches the given brand names as whole words,
// ignoring case.
func NewHeuristicDetector(brands []string) *HeuristicDetector {
	h := &HeuristicDetector{}
	for _, b := range brands {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		h.brands = append(h.brands, brand{name: b, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(b) + `\b`)})
	}
	return h
}

// Inspect runs every pattern over one entry.
func (h *HeuristicDetector) Inspect(e capability.BiasEntry) Finding {
	text := e.Title + " " + e.Content + " " + e.SourceQuote
	var f Finding
	for _, b := range h.brands {
		if b.re.MatchString(text) {
			f.Brands = append(f.Brands, b.name)
		}
	}
	f.Affiliate = anyMatch(affiliatePatterns, text)
	f.Promotional = anyMatch(promotionalPatterns, text)
	return f
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectBias returns one candidate for every suspicious entry.
func (h *HeuristicDetector) DetectBias(_ context.Context, entries []capability.BiasEntry) ([]capability.BiasCandidate, error) {
	var out []capability.BiasCandidate
	for _, e := range entries {
		if f := h.Inspect(e); f.Suspicious() {
			out = append(out, f.Candidate(e.ID, DetectedByHeuristic))
		}
	}
	return out, nil
}
