// Package optimize is the mediated-change workflow. Corrective actions are
// proposed as queue items with an approval tier: auto items run at once,
// suggestion and destructive items wait in pending until an operator
// approves or rejects them.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/lectern/internal/db"
	"github.com/zulandar/lectern/internal/fault"
	"github.com/zulandar/lectern/internal/logging"
	"github.com/zulandar/lectern/internal/metrics"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/store"
)

// Proposal is a requested change. An empty Tier uses the action's default.
type Proposal struct {
	Action      string
	Tier        Tier
	TargetID    uint
	Description string
	Details     Details
}

// Queue owns the optimization queue and its execution log.
type Queue struct {
	db      *gorm.DB
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewQueue returns a Queue backed by gdb.
func NewQueue(gdb *gorm.DB, log *slog.Logger, m *metrics.Metrics) *Queue {
	return &Queue{db: gdb, log: logging.OrDefault(log), metrics: m}
}

func (p *Proposal) validate() (action, error) {
	a, ok := actions[p.Action]
	if !ok {
		return a, fault.Permanentf("optimize: unknown action %q", p.Action)
	}
	if p.Tier == "" {
		p.Tier = a.defaultTier
	}
	if !p.Tier.Valid() {
		return a, fault.Permanentf("optimize: unknown tier %q", p.Tier)
	}
	if p.TargetID == 0 {
		return a, fault.Permanentf("optimize: %s needs a target id", p.Action)
	}
	if a.check != nil {
		if err := a.check(p.Details); err != nil {
			return a, fault.Permanent(fmt.Errorf("optimize: %s: %w", p.Action, err))
		}
	}
	return a, nil
}

// Enqueue records a proposal. An auto-tier proposal executes in the same
// transaction and comes back executed, or failed with its error and no
// trace of the mutation. Other tiers come back pending. When the same
// action is already pending for the target, that item is returned instead.
func (q *Queue) Enqueue(ctx context.Context, p Proposal) (*models.OptimizationQueueItem, error) {
	var item *models.OptimizationQueueItem
	err := db.Transaction(ctx, q.db, func(tx *gorm.DB) error {
		var err error
		item, err = q.EnqueueTx(tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	q.observe(item)
	return item, nil
}

// EnqueueTx is Enqueue inside the caller's transaction.
func (q *Queue) EnqueueTx(tx *gorm.DB, p Proposal) (*models.OptimizationQueueItem, error) {
	a, err := p.validate()
	if err != nil {
		return nil, err
	}

	if p.Tier.NeedsApproval() {
		var existing models.OptimizationQueueItem
		err := tx.Where("action_type = ? AND target_type = ? AND target_id = ? AND status = ?",
			p.Action, a.target, p.TargetID, models.QueueStatusPending).
			Order("id").First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("optimize: find pending %s for %d: %w", p.Action, p.TargetID, err)
		}
	}

	details, err := p.Details.encode()
	if err != nil {
		return nil, err
	}
	item := &models.OptimizationQueueItem{
		ActionType:  p.Action,
		Severity:    string(p.Tier),
		TargetType:  a.target,
		TargetID:    p.TargetID,
		Description: p.Description,
		Details:     details,
		Status:      models.QueueStatusPending,
	}
	if !p.Tier.NeedsApproval() {
		item.ResolvedBy = "auto"
	}
	if err := tx.Create(item).Error; err != nil {
		return nil, fmt.Errorf("optimize: enqueue %s for %d: %w", p.Action, p.TargetID, err)
	}
	if p.Tier.NeedsApproval() {
		return item, nil
	}
	if err := q.execute(tx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// execute runs the item's action in a savepoint of tx and records the
// outcome. An action error rolls back only the savepoint: the item is then
// marked failed with the error and execute returns nil. Errors recording
// the outcome are returned.
func (q *Queue) execute(tx *gorm.DB, item *models.OptimizationQueueItem) error {
	var runErr error
	a, ok := actions[item.ActionType]
	if !ok {
		runErr = fmt.Errorf("unknown action %q", item.ActionType)
	} else {
		runErr = tx.Transaction(func(stx *gorm.DB) error {
			d, err := decodeDetails(item.Details)
			if err != nil {
				return err
			}
			return a.run(stx, item, d)
		})
	}

	now := time.Now()
	updates := map[string]interface{}{"executed_at": &now}
	entry := models.OptimizationLog{
		QueueID:     &item.ID,
		ActionType:  item.ActionType,
		Description: item.Description,
		Details:     item.Details,
	}
	if item.ResolvedAt == nil {
		updates["resolved_at"] = &now
		item.ResolvedAt = &now
	}
	if runErr == nil {
		updates["status"] = models.QueueStatusExecuted
		updates["error"] = ""
		entry.Outcome = models.QueueStatusExecuted
	} else {
		updates["status"] = models.QueueStatusFailed
		updates["error"] = runErr.Error()
		entry.Outcome = models.QueueStatusFailed
		entry.Error = runErr.Error()
	}
	if err := tx.Model(&models.OptimizationQueueItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("optimize: record outcome of item %d: %w", item.ID, err)
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("optimize: log item %d: %w", item.ID, err)
	}

	item.Status = updates["status"].(string)
	item.Error = updates["error"].(string)
	item.ExecutedAt = &now
	if runErr != nil {
		q.log.Warn("queue item failed", "item", item.ID, "action", item.ActionType, "target", item.TargetID, "error", runErr)
	} else {
		q.log.Info("queue item executed", "item", item.ID, "action", item.ActionType, "target", item.TargetID)
	}
	return nil
}

// Get returns one queue item.
func (q *Queue) Get(ctx context.Context, id uint) (*models.OptimizationQueueItem, error) {
	var item models.OptimizationQueueItem
	err := q.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("optimize: queue item %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("optimize: get queue item %d: %w", id, err)
	}
	return &item, nil
}

// List returns queue items with the given status, or all items when status
// is empty, oldest first.
func (q *Queue) List(ctx context.Context, status string) ([]models.OptimizationQueueItem, error) {
	query := q.db.WithContext(ctx).Order("id")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []models.OptimizationQueueItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("optimize: list queue: %w", err)
	}
	return items, nil
}

// Approve moves a pending suggestion or destructive item to approved and
// executes it before returning. The returned item is executed or failed.
// Approving anything else returns *fault.ApprovalStateError and changes
// nothing.
func (q *Queue) Approve(ctx context.Context, id uint, by string) (*models.OptimizationQueueItem, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Tier(item.Severity).NeedsApproval() {
		return nil, &fault.ApprovalStateError{ItemID: id, Op: "approve", Status: item.Status, Tier: item.Severity}
	}
	if err := q.resolve(ctx, item, "approve", models.QueueStatusApproved, by); err != nil {
		return nil, err
	}
	return q.executeApproved(ctx, id)
}

// Reject moves a pending item to rejected. Rejecting anything else returns
// *fault.ApprovalStateError and changes nothing.
func (q *Queue) Reject(ctx context.Context, id uint, by string) (*models.OptimizationQueueItem, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := q.resolve(ctx, item, "reject", models.QueueStatusRejected, by); err != nil {
		return nil, err
	}
	q.log.Info("queue item rejected", "item", id, "action", item.ActionType, "by", by)
	out, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q.observe(out)
	return out, nil
}

// resolve is the conditional pending -> to update. Losing a race to another
// resolver reports the status that won.
func (q *Queue) resolve(ctx context.Context, item *models.OptimizationQueueItem, op, to, by string) error {
	if item.Status != models.QueueStatusPending {
		return &fault.ApprovalStateError{ItemID: item.ID, Op: op, Status: item.Status}
	}
	now := time.Now()
	result := q.db.WithContext(ctx).Model(&models.OptimizationQueueItem{}).
		Where("id = ? AND status = ?", item.ID, models.QueueStatusPending).
		Updates(map[string]interface{}{"status": to, "resolved_by": by, "resolved_at": &now})
	if result.Error != nil {
		return fmt.Errorf("optimize: %s item %d: %w", op, item.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		status := "unknown"
		if cur, err := q.Get(ctx, item.ID); err == nil {
			status = cur.Status
		}
		return &fault.ApprovalStateError{ItemID: item.ID, Op: op, Status: status}
	}
	return nil
}

// executeApproved runs one approved item in its own transaction. The item
// is re-read inside the transaction so a concurrent executor finds it
// already terminal.
func (q *Queue) executeApproved(ctx context.Context, id uint) (*models.OptimizationQueueItem, error) {
	var item models.OptimizationQueueItem
	err := db.Transaction(ctx, q.db, func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return fmt.Errorf("optimize: load item %d: %w", id, err)
		}
		if item.Status != models.QueueStatusApproved {
			return &fault.ApprovalStateError{ItemID: id, Op: "execute", Status: item.Status}
		}
		return q.execute(tx, &item)
	})
	if err != nil {
		return nil, err
	}
	q.observe(&item)
	return &item, nil
}

// ExecuteApproved runs every item left approved, for instance by a crash
// between approval and execution. It returns the items it ran.
func (q *Queue) ExecuteApproved(ctx context.Context) ([]models.OptimizationQueueItem, error) {
	approved, err := q.List(ctx, models.QueueStatusApproved)
	if err != nil {
		return nil, err
	}
	var out []models.OptimizationQueueItem
	for _, a := range approved {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		item, err := q.executeApproved(ctx, a.ID)
		if fault.IsApprovalState(err) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, *item)
	}
	return out, nil
}

func (q *Queue) observe(item *models.OptimizationQueueItem) {
	q.metrics.QueueItem(item.ActionType, item.Severity, item.Status)
}
