package models

import "time"

// Queue item statuses.
const (
	QueueStatusPending  = "pending"
	QueueStatusApproved = "approved"
	QueueStatusRejected = "rejected"
	QueueStatusExecuted = "executed"
	QueueStatusFailed   = "failed"
)

// Target types an optimization action can point at.
const (
	TargetVideo          = "video"
	TargetKnowledgeEntry = "knowledge_entry"
	TargetTag            = "tag"
)

// OptimizationQueueItem is a proposed change to the store. Severity holds
// the approval tier: auto, suggestion or destructive.
type OptimizationQueueItem struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	ActionType  string `gorm:"size:32;not null;index:idx_queue_action_target"`
	Severity    string `gorm:"size:16;not null"`
	TargetType  string `gorm:"size:32;not null;index:idx_queue_action_target"`
	TargetID    uint   `gorm:"index:idx_queue_action_target"`
	Description string `gorm:"type:text"`
	Details     string `gorm:"type:text"`
	Status      string `gorm:"size:16;default:pending;index"`
	Error       string `gorm:"type:text"`
	ResolvedBy  string `gorm:"size:64"`
	CreatedAt   time.Time
	ResolvedAt  *time.Time
	ExecutedAt  *time.Time
}

// TableName keeps the singular table name used by the queue.
func (OptimizationQueueItem) TableName() string { return "optimization_queue" }

// OptimizationLog records every executed or failed action.
type OptimizationLog struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	QueueID     *uint  `gorm:"index"`
	ActionType  string `gorm:"size:32;not null"`
	Outcome     string `gorm:"size:16;not null"`
	Description string `gorm:"type:text"`
	Details     string `gorm:"type:text"`
	Error       string `gorm:"type:text"`
	CreatedAt   time.Time
}

// TableName keeps the singular table name used by the log.
func (OptimizationLog) TableName() string { return "optimization_log" }
