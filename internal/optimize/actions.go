package optimize

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

// Action types.
const (
	ActionReingest         = "re_ingest"
	ActionDeleteEntry      = "delete_entry"
	ActionDeleteVideo      = "delete_video"
	ActionMergeEntries     = "merge_entries"
	ActionMergeTags        = "merge_tags"
	ActionReclassifyEntry  = "reclassify_entry"
	ActionUpdateConfidence = "update_confidence"
	ActionReviewEntry      = "review_entry"
	ActionMarkSkipped      = "mark_skipped"
	ActionAddTaxonomy      = "add_taxonomy"
)

// Details carries the action arguments beyond the target id. It is stored
// as JSON on the queue item.
type Details struct {
	DropID     uint     `json:"drop_id,omitempty"`
	RemoveIDs  []uint   `json:"remove_ids,omitempty"`
	EntryType  string   `json:"entry_type,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Note       string   `json:"note,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (d Details) encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("optimize: encode details: %w", err)
	}
	return string(data), nil
}

func decodeDetails(s string) (Details, error) {
	var d Details
	if s == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return d, fmt.Errorf("optimize: decode details: %w", err)
	}
	return d, nil
}

// action describes one executable action type.
type action struct {
	target      string
	defaultTier Tier
	check       func(Details) error
	run         func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error
}

// actions is the registry of every action the queue can execute. Each run
// goes through the store write paths, so index rows and cascades follow
// the mutation inside the same transaction.
var actions = map[string]action{
	ActionReingest: {
		target:      models.TargetVideo,
		defaultTier: Destructive,
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, _ Details) error {
			_, err := store.ResetForReingest(tx, item.TargetID, uuid.NewString())
			return err
		},
	},
	ActionDeleteEntry: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Destructive,
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, _ Details) error {
			return store.DeleteEntry(tx, item.TargetID)
		},
	},
	ActionDeleteVideo: {
		target:      models.TargetVideo,
		defaultTier: Destructive,
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, _ Details) error {
			return store.DeleteVideo(tx, item.TargetID)
		},
	},
	ActionMergeEntries: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Destructive,
		check: func(d Details) error {
			if d.DropID == 0 {
				return fmt.Errorf("drop_id is required")
			}
			return nil
		},
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			return store.MergeEntries(tx, item.TargetID, d.DropID)
		},
	},
	ActionMergeTags: {
		target:      models.TargetTag,
		defaultTier: Auto,
		check: func(d Details) error {
			if len(d.RemoveIDs) == 0 {
				return fmt.Errorf("remove_ids is required")
			}
			return nil
		},
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			return store.MergeTags(tx, item.TargetID, d.RemoveIDs)
		},
	},
	ActionReclassifyEntry: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Suggestion,
		check: func(d Details) error {
			if !models.ValidEntryType(d.EntryType) {
				return fmt.Errorf("invalid entry_type %q", d.EntryType)
			}
			return nil
		},
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			return store.Reclassify(tx, item.TargetID, d.EntryType)
		},
	},
	ActionUpdateConfidence: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Auto,
		check: func(d Details) error {
			if d.Confidence == nil || *d.Confidence < 0 || *d.Confidence > 1 {
				return fmt.Errorf("confidence in [0,1] is required")
			}
			return nil
		},
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			return store.UpdateConfidence(tx, item.TargetID, *d.Confidence)
		},
	},
	ActionReviewEntry: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Suggestion,
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, _ Details) error {
			who := item.ResolvedBy
			if who == "" {
				who = "queue"
			}
			_, err := store.MarkFlagsReviewed(tx, item.TargetID, who)
			return err
		},
	},
	ActionMarkSkipped: {
		target:      models.TargetVideo,
		defaultTier: Suggestion,
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			reason := d.Reason
			if reason == "" {
				reason = item.Description
			}
			_, err := store.MarkSkipped(tx, item.TargetID, reason, uuid.NewString())
			return err
		},
	},
	ActionAddTaxonomy: {
		target:      models.TargetKnowledgeEntry,
		defaultTier: Auto,
		check: func(d Details) error {
			if len(d.Categories) == 0 && len(d.Tags) == 0 {
				return fmt.Errorf("categories or tags are required")
			}
			return nil
		},
		run: func(tx *gorm.DB, item *models.OptimizationQueueItem, d Details) error {
			return store.AddEntryTaxonomy(tx, item.TargetID, d.Categories, d.Tags)
		},
	},
}

// Actions returns the known action types.
func Actions() []string {
	return []string{
		ActionReingest, ActionDeleteEntry, ActionDeleteVideo, ActionMergeEntries, ActionMergeTags,
		ActionReclassifyEntry, ActionUpdateConfidence, ActionReviewEntry, ActionMarkSkipped, ActionAddTaxonomy,
	}
}

// DefaultTier returns the tier used when a proposal names none.
func DefaultTier(actionType string) (Tier, bool) {
	a, ok := actions[actionType]
	return a.defaultTier, ok
}
