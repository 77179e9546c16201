package bias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/lectern/internal/capability"
	"github.com/zulandar/lectern/internal/models"
)

func TestHeuristicDetector_Inspect(t *testing.T) {
	h := NewHeuristicDetector([]string{"Vortex", "Stone Glacier", " "})

	tests := []struct {
		name string
		text string
		want Finding
	}{
		{"clean", "Glass the timber edges at first light.", Finding{}},
		{"affiliate code", "Use my code ELK10 at checkout", Finding{Affiliate: true}},
		{"save percent", "You can save 20% this week", Finding{Affiliate: true}},
		{"promotional", "These boots are hands down the best I own", Finding{Promotional: true}},
		{"go-to", "That pack is my go-to for backcountry trips", Finding{Promotional: true}},
		{"brand", "I carry vortex binos and a stone glacier pack", Finding{Brands: []string{"Vortex", "Stone Glacier"}}},
		{"brand needs word boundary", "the vortexes of wind in the canyon", Finding{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Inspect(capability.BiasEntry{Content: tt.text})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Suspicious(), got.Suspicious())
		})
	}
}

func TestFinding_Candidate(t *testing.T) {
	c := Finding{Affiliate: true, Promotional: true, Brands: []string{"Vortex"}}.Candidate(7, DetectedByFallback)
	assert.Equal(t, models.BiasAffiliate, c.BiasType)
	assert.Equal(t, models.SeverityMedium, c.Severity)
	assert.Equal(t, uint(7), c.EntryID)
	assert.Equal(t, DetectedByFallback, c.DetectedBy)

	c = Finding{Promotional: true}.Candidate(7, DetectedByHeuristic)
	assert.Equal(t, models.BiasUnsubstantiatedClaim, c.BiasType)

	c = Finding{Brands: []string{"Vortex", "Sitka"}}.Candidate(7, DetectedByHeuristic)
	assert.Equal(t, models.BiasBrandPromotion, c.BiasType)
	assert.Equal(t, models.SeverityLow, c.Severity)
	assert.Equal(t, "Mentions brands: Vortex, Sitka", c.Notes)
}

func TestHeuristicDetector_DetectBias(t *testing.T) {
	h := NewHeuristicDetector(nil)
	got, err := h.DetectBias(context.Background(), []capability.BiasEntry{
		{ID: 1, Title: "Wind", Content: "Check the wind often"},
		{ID: 2, Title: "Deal", Content: "Link in the description for a coupon"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].EntryID)
	assert.Equal(t, DetectedByHeuristic, got[0].DetectedBy)
}
