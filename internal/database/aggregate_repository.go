package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/example/cscsync/internal/merge"
	"github.com/example/cscsync/pkg/models"
)

var aggregateCols = []string{
	"identity", "qid",
	"correct_total", "wrong_total", "streak3_total", "wrong_streak3_total",
	"streak_len", "wrong_streak_len",
	"streak_max", "streak_max_day", "wrong_streak_max", "wrong_streak_max_day",
	"client_updated_at", "updated_at",
}

var (
	aggregateColumns   = strings.Join(aggregateCols, ", ")
	upsertAggregateSQL = buildUpsert()
)

// ensureAggregateSQL creates a zero row so the SELECT ... FOR UPDATE that
// follows always locks one, serializing concurrent merges into a new qid.
const ensureAggregateSQL = `
	INSERT INTO counter_aggregates (identity, qid, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (identity, qid) DO NOTHING`

func buildUpsert() string {
	set := make([]string, 0, len(aggregateCols)-2)
	for _, col := range aggregateCols[2:] {
		set = append(set, col+" = excluded."+col)
	}
	return "INSERT INTO counter_aggregates (" + aggregateColumns + ")" +
		" VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(aggregateCols)), ", ") + ")" +
		" ON CONFLICT (identity, qid) DO UPDATE SET " + strings.Join(set, ", ")
}

// AggregateRepository holds the authoritative counter families. Rows are
// only ever changed through Merge.
type AggregateRepository struct {
	db     *sqlx.DB
	policy merge.Policy
	now    func() time.Time
}

// NewAggregateRepository creates a new repository instance
func NewAggregateRepository(db *sqlx.DB, policy merge.Policy) *AggregateRepository {
	if policy == "" {
		policy = merge.PolicyReplace
	}
	return &AggregateRepository{db: db, policy: policy, now: time.Now}
}

// MergeResult is the outcome of one merge transaction.
type MergeResult struct {
	// Duplicate is set when the submission id was already applied.
	Duplicate bool
	Counters  map[string]models.CounterFamily
	Today     map[models.TodayKind]models.TodayUniqueSummary
}

// Merge applies req for identity in one transaction: the receipt check, every
// counter row and the today-unique unions commit or roll back together.
func (r *AggregateRepository) Merge(ctx context.Context, identity string, req *models.MergeRequest) (*MergeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin merge")
	}
	defer tx.Rollback()

	res := &MergeResult{
		Counters: make(map[string]models.CounterFamily),
		Today:    make(map[models.TodayKind]models.TodayUniqueSummary),
	}
	now := r.now().UTC()

	if req.SubmissionID != "" {
		fresh, err := recordReceipt(ctx, tx, identity, req.SubmissionID, now)
		if err != nil {
			return nil, err
		}
		res.Duplicate = !fresh
	}

	qids := req.QIDs()
	for _, qid := range qids {
		if !res.Duplicate {
			if _, err := tx.ExecContext(ctx, tx.Rebind(ensureAggregateSQL), identity, qid, now); err != nil {
				return nil, errors.Wrapf(err, "failed to create aggregate %s", qid)
			}
		}
		agg, err := getAggregate(ctx, tx, identity, qid, true)
		if err != nil {
			return nil, err
		}
		if !res.Duplicate {
			agg = r.policy.Apply(agg, qid, req)
			if err := upsertAggregate(ctx, tx, identity, qid, agg, req.UpdatedAt, now); err != nil {
				return nil, err
			}
		}
		res.Counters[qid] = agg
	}

	for _, kind := range models.TodayKinds {
		d := req.Today(kind)
		if d == nil {
			continue
		}
		if !res.Duplicate {
			if err := addTodayUnique(ctx, tx, identity, kind, d.Day, d.QIDs); err != nil {
				return nil, err
			}
		}
		n, err := countTodayUnique(ctx, tx, identity, kind, d.Day)
		if err != nil {
			return nil, err
		}
		res.Today[kind] = models.TodayUniqueSummary{Day: d.Day, UniqueCount: n}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit merge")
	}
	return res, nil
}

// Get returns one counter family. Unknown qids yield zero counters.
func (r *AggregateRepository) Get(ctx context.Context, identity, qid string) (models.CounterFamily, error) {
	return getAggregate(ctx, r.db, identity, qid, false)
}

// ListByIdentity returns every counter family of identity keyed by qid.
func (r *AggregateRepository) ListByIdentity(ctx context.Context, identity string) (map[string]models.CounterFamily, error) {
	var rows []models.AggregateRow
	query := r.db.Rebind("SELECT " + aggregateColumns + " FROM counter_aggregates WHERE identity = ? ORDER BY qid")
	if err := r.db.SelectContext(ctx, &rows, query, identity); err != nil {
		return nil, errors.Wrap(err, "failed to list aggregates")
	}
	out := make(map[string]models.CounterFamily, len(rows))
	for _, row := range rows {
		out[row.QID] = row.CounterFamily
	}
	return out, nil
}

// All returns every row, ordered by identity and qid.
func (r *AggregateRepository) All(ctx context.Context) ([]models.AggregateRow, error) {
	var rows []models.AggregateRow
	query := "SELECT " + aggregateColumns + " FROM counter_aggregates ORDER BY identity, qid"
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to list aggregates")
	}
	return rows, nil
}

// Summaries returns per-identity totals plus the today-unique counts of day.
func (r *AggregateRepository) Summaries(ctx context.Context, day models.Day) ([]models.IdentitySummary, error) {
	var out []models.IdentitySummary
	query := `
		SELECT identity,
			COUNT(*) AS questions,
			COALESCE(SUM(correct_total), 0) AS correct_total,
			COALESCE(SUM(wrong_total), 0) AS wrong_total,
			COALESCE(SUM(streak3_total), 0) AS streak3_total
		FROM counter_aggregates
		GROUP BY identity
		ORDER BY identity`
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, errors.Wrap(err, "failed to summarize aggregates")
	}

	var counts []struct {
		Identity string `db:"identity"`
		Kind     string `db:"kind"`
		N        int    `db:"n"`
	}
	countQuery := r.db.Rebind("SELECT identity, kind, COUNT(*) AS n FROM today_unique WHERE day = ? GROUP BY identity, kind")
	if err := r.db.SelectContext(ctx, &counts, countQuery, string(day)); err != nil {
		return nil, errors.Wrap(err, "failed to count today-unique sets")
	}
	byIdentity := make(map[string]int, len(out))
	for i := range out {
		byIdentity[out[i].Identity] = i
	}
	for _, c := range counts {
		i, ok := byIdentity[c.Identity]
		if !ok {
			out = append(out, models.IdentitySummary{Identity: c.Identity})
			i = len(out) - 1
			byIdentity[c.Identity] = i
		}
		switch models.TodayKind(c.Kind) {
		case models.TodayStreak3:
			out[i].Streak3Today = c.N
		case models.TodayStreak3Wrong:
			out[i].WrongStreak3Today = c.N
		}
	}
	return out, nil
}

func getAggregate(ctx context.Context, q sqlx.ExtContext, identity, qid string, forUpdate bool) (models.CounterFamily, error) {
	var row models.AggregateRow
	query := "SELECT " + aggregateColumns + " FROM counter_aggregates WHERE identity = ? AND qid = ?"
	if forUpdate && isPostgres(q) {
		query += " FOR UPDATE"
	}
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(query), identity, qid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CounterFamily{}, nil
	}
	if err != nil {
		return models.CounterFamily{}, errors.Wrapf(err, "failed to load aggregate %s", qid)
	}
	return row.CounterFamily, nil
}

func upsertAggregate(ctx context.Context, q sqlx.ExtContext, identity, qid string, c models.CounterFamily, clientUpdatedAt int64, now time.Time) error {
	_, err := q.ExecContext(ctx, q.Rebind(upsertAggregateSQL),
		identity, qid,
		c.CorrectTotal, c.WrongTotal, c.CorrectStreak3Total, c.WrongStreak3Total,
		c.CorrectStreakLen, c.WrongStreakLen,
		c.CorrectStreakMax, string(c.CorrectStreakMaxDay),
		c.WrongStreakMax, string(c.WrongStreakMaxDay),
		clientUpdatedAt, now,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to store aggregate %s", qid)
	}
	return nil
}
