package models

import "time"

// Bias types.
const (
	BiasBrandPromotion       = "brand_promotion"
	BiasAffiliate            = "affiliate"
	BiasSponsored            = "sponsored"
	BiasProductPlacement     = "product_placement"
	BiasUnsubstantiatedClaim = "unsubstantiated_claim"
)

// Bias severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// BiasTypes lists the valid bias types.
var BiasTypes = []string{
	BiasBrandPromotion, BiasAffiliate, BiasSponsored,
	BiasProductPlacement, BiasUnsubstantiatedClaim,
}

// BiasFlag annotates a knowledge entry. At most one flag exists per
// (entry, bias type); later scans update it in place.
type BiasFlag struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	KnowledgeID uint   `gorm:"not null;uniqueIndex:idx_bias_entry_type"`
	BiasType    string `gorm:"size:32;not null;uniqueIndex:idx_bias_entry_type"`
	Severity    string `gorm:"size:8;default:medium"`
	BrandNames  string `gorm:"type:text"`
	Notes       string `gorm:"type:text"`
	DetectedBy  string `gorm:"size:32;default:llm"`
	ReviewedBy  string `gorm:"size:64"`
	ReviewedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidBiasType reports whether t is a known bias type.
func ValidBiasType(t string) bool {
	for _, bt := range BiasTypes {
		if bt == t {
			return true
		}
	}
	return false
}

// ValidSeverity reports whether s is low, medium or high.
func ValidSeverity(s string) bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}
