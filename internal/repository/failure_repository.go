package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/workshop-seat-booking/internal/model"
)

const defaultFailureLimit = 100

// FailureRepo provides access to the settlement_failures table.
type FailureRepo struct {
	db sqlx.ExtContext
}

// NewFailureRepo returns a FailureRepo bound to db.
func NewFailureRepo(db sqlx.ExtContext) *FailureRepo { return &FailureRepo{db: db} }

// Record stores a failure and fills in its id.  One row exists per order
// code and reason; recording the same pair again refreshes its detail, so
// a replayed webhook does not grow the queue.
func (r *FailureRepo) Record(ctx context.Context, f *model.SettlementFailure) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_failures (order_code, outcome, reason, detail)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), detail = VALUES(detail)`,
		f.OrderCode, f.Outcome, f.Reason, f.Detail)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

// List returns the most recent failures, at most limit of them.
func (r *FailureRepo) List(ctx context.Context, limit int) ([]model.SettlementFailure, error) {
	if limit <= 0 {
		limit = defaultFailureLimit
	}
	out := []model.SettlementFailure{}
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT id, order_code, outcome, reason, detail, created_at
		FROM settlement_failures ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}
