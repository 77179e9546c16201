package bias

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/models"
)

// FlagSummary totals the stored flags.
type FlagSummary struct {
	TotalFlags     int64
	FlaggedEntries int64
	Unreviewed     int64
	ByType         map[string]int64
	BySeverity     map[string]int64
	ByDetector     map[string]int64
}

// Summary counts flags by type, severity and detector, and the entries
// that carry at least one flag.
func Summary(db *gorm.DB) (*FlagSummary, error) {
	s := &FlagSummary{}
	if err := db.Model(&models.BiasFlag{}).Count(&s.TotalFlags).Error; err != nil {
		return nil, fmt.Errorf("bias: count flags: %w", err)
	}
	if err := db.Model(&models.BiasFlag{}).Distinct("knowledge_id").Count(&s.FlaggedEntries).Error; err != nil {
		return nil, fmt.Errorf("bias: count flagged entries: %w", err)
	}
	if err := db.Model(&models.BiasFlag{}).Where("reviewed_at IS NULL").Count(&s.Unreviewed).Error; err != nil {
		return nil, fmt.Errorf("bias: count unreviewed flags: %w", err)
	}

	var err error
	if s.ByType, err = countBy(db, "bias_type"); err != nil {
		return nil, err
	}
	if s.BySeverity, err = countBy(db, "severity"); err != nil {
		return nil, err
	}
	if s.ByDetector, err = countBy(db, "detected_by"); err != nil {
		return nil, err
	}
	return s, nil
}

func countBy(db *gorm.DB, column string) (map[string]int64, error) {
	var rows []struct {
		Label string
		N     int64
	}
	err := db.Model(&models.BiasFlag{}).
		Select(column + " AS label, COUNT(*) AS n").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("bias: count flags by %s: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}
