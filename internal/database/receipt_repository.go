package database

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
)

// ReceiptRepository manages the submission ids already applied per identity.
type ReceiptRepository struct {
	db *sqlx.DB
}

// NewReceiptRepository creates a new repository instance
func NewReceiptRepository(db *sqlx.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Exists reports whether the submission was already applied.
func (r *ReceiptRepository) Exists(ctx context.Context, identity, submissionID string) (bool, error) {
	var n int
	query := r.db.Rebind("SELECT COUNT(*) FROM merge_receipts WHERE identity = ? AND submission_id = ?")
	if err := r.db.GetContext(ctx, &n, query, identity, submissionID); err != nil {
		return false, errors.Wrap(err, "failed to look up receipt")
	}
	return n > 0, nil
}

// Prune deletes receipts created before cutoff and returns how many went.
// A client re-sending a batch older than the retention window gets it
// applied again.
func (r *ReceiptRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind("DELETE FROM merge_receipts WHERE created_at < ?")
	res, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune receipts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pruned receipts")
	}
	return n, nil
}

// recordReceipt inserts the receipt and reports whether it was new.
func recordReceipt(ctx context.Context, q sqlx.ExtContext, identity, submissionID string, now time.Time) (bool, error) {
	query := q.Rebind(`
		INSERT INTO merge_receipts (identity, submission_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (identity, submission_id) DO NOTHING`)
	res, err := q.ExecContext(ctx, query, identity, submissionID, now)
	if err != nil {
		return false, errors.Wrap(err, "failed to record receipt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to check receipt")
	}
	return n == 1, nil
}
