package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/models"
)

// FlagInput is one bias observation for one knowledge entry.
type FlagInput struct {
	KnowledgeID uint
	BiasType    string
	Severity    string
	BrandNames  []string
	Notes       string
	DetectedBy  string
}

// UpsertBiasFlag stores a flag for (entry, bias type). An existing flag of
// the same type is updated in place; review marks are kept. The entry
// itself is not touched.
func UpsertBiasFlag(db *gorm.DB, in FlagInput) (*models.BiasFlag, error) {
	if !models.ValidBiasType(in.BiasType) {
		return nil, fault.Integrity(fmt.Errorf("store: invalid bias type %q", in.BiasType))
	}
	if !models.ValidSeverity(in.Severity) {
		return nil, fault.Integrity(fmt.Errorf("store: invalid bias severity %q", in.Severity))
	}
	var n int64
	if err := db.Model(&models.KnowledgeEntry{}).Where("id = ?", in.KnowledgeID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("store: find entry %d: %w", in.KnowledgeID, err)
	}
	if n == 0 {
		return nil, notFound("knowledge entry", in.KnowledgeID)
	}

	brands := "[]"
	if len(in.BrandNames) > 0 {
		data, err := json.Marshal(in.BrandNames)
		if err != nil {
			return nil, fmt.Errorf("store: encode brand names: %w", err)
		}
		brands = string(data)
	}
	flag := models.BiasFlag{
		KnowledgeID: in.KnowledgeID,
		BiasType:    in.BiasType,
		Severity:    in.Severity,
		BrandNames:  brands,
		Notes:       in.Notes,
		DetectedBy:  in.DetectedBy,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "knowledge_id"}, {Name: "bias_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"severity", "brand_names", "notes", "detected_by", "updated_at"}),
	}).Create(&flag).Error
	if err != nil {
		return nil, fmt.Errorf("store: upsert bias flag for entry %d: %w", in.KnowledgeID, err)
	}

	var out models.BiasFlag
	if err := db.Where("knowledge_id = ? AND bias_type = ?", in.KnowledgeID, in.BiasType).First(&out).Error; err != nil {
		return nil, fmt.Errorf("store: reload bias flag for entry %d: %w", in.KnowledgeID, err)
	}
	return &out, nil
}

// BrandNames decodes the brand list stored on a flag.
func BrandNames(f *models.BiasFlag) []string {
	var out []string
	if f.BrandNames == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(f.BrandNames), &out); err != nil {
		return nil
	}
	return out
}

// ListBiasFlags returns the flags of one entry ordered by bias type.
func ListBiasFlags(db *gorm.DB, knowledgeID uint) ([]models.BiasFlag, error) {
	var flags []models.BiasFlag
	if err := db.Where("knowledge_id = ?", knowledgeID).Order("bias_type").Find(&flags).Error; err != nil {
		return nil, fmt.Errorf("store: list bias flags for entry %d: %w", knowledgeID, err)
	}
	return flags, nil
}

// MarkFlagsReviewed stamps every flag of an entry as reviewed by who and
// returns how many flags it touched.
func MarkFlagsReviewed(db *gorm.DB, knowledgeID uint, who string) (int64, error) {
	if _, err := GetEntry(db, knowledgeID); err != nil {
		return 0, err
	}
	now := time.Now()
	result := db.Model(&models.BiasFlag{}).
		Where("knowledge_id = ?", knowledgeID).
		Updates(map[string]interface{}{"reviewed_by": who, "reviewed_at": &now})
	if result.Error != nil {
		return 0, fmt.Errorf("store: review flags of entry %d: %w", knowledgeID, result.Error)
	}
	return result.RowsAffected, nil
}
