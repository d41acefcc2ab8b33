package database

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/example/cscsync/pkg/models"
)

// TodayUniqueRepository reads the day-scoped sets. Writes go through
// AggregateRepository.Merge so they share its transaction.
type TodayUniqueRepository struct {
	db *sqlx.DB
}

// NewTodayUniqueRepository creates a new repository instance
func NewTodayUniqueRepository(db *sqlx.DB) *TodayUniqueRepository {
	return &TodayUniqueRepository{db: db}
}

// Count returns the size of the set of kind for identity on day.
func (r *TodayUniqueRepository) Count(ctx context.Context, identity string, kind models.TodayKind, day models.Day) (int, error) {
	return countTodayUnique(ctx, r.db, identity, kind, day)
}

// Members returns the sorted set of kind for identity on day.
func (r *TodayUniqueRepository) Members(ctx context.Context, identity string, kind models.TodayKind, day models.Day) ([]string, error) {
	var qids []string
	query := r.db.Rebind("SELECT qid FROM today_unique WHERE identity = ? AND kind = ? AND day = ? ORDER BY qid")
	if err := r.db.SelectContext(ctx, &qids, query, identity, string(kind), string(day)); err != nil {
		return nil, errors.Wrap(err, "failed to list today-unique set")
	}
	return qids, nil
}

// Summary returns the server view of the set of kind on day.
func (r *TodayUniqueRepository) Summary(ctx context.Context, identity string, kind models.TodayKind, day models.Day) (models.TodayUniqueSummary, error) {
	n, err := r.Count(ctx, identity, kind, day)
	return models.TodayUniqueSummary{Day: day, UniqueCount: n}, err
}

// addTodayUnique unions qids into the set. Existing members are left alone.
func addTodayUnique(ctx context.Context, q sqlx.ExtContext, identity string, kind models.TodayKind, day models.Day, qids []string) error {
	query := q.Rebind(`
		INSERT INTO today_unique (identity, kind, day, qid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity, kind, day, qid) DO NOTHING`)
	for _, qid := range qids {
		if _, err := q.ExecContext(ctx, query, identity, string(kind), string(day), qid); err != nil {
			return errors.Wrapf(err, "failed to add %s to today-unique set", qid)
		}
	}
	return nil
}

func countTodayUnique(ctx context.Context, q sqlx.ExtContext, identity string, kind models.TodayKind, day models.Day) (int, error) {
	var n int
	query := q.Rebind("SELECT COUNT(*) FROM today_unique WHERE identity = ? AND kind = ? AND day = ?")
	if err := sqlx.GetContext(ctx, q, &n, query, identity, string(kind), string(day)); err != nil {
		return 0, errors.Wrap(err, "failed to count today-unique set")
	}
	return n, nil
}
