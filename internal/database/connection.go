package database

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the global database connection
var DB *sqlx.DB

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Connect opens the database and stores it in DB.
func Connect(dbType, dsn string) error {
	db, err := Open(dbType, dsn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open connects to sqlite or postgres and initializes the schema.
func Open(dbType, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch dbType {
	case "", "sqlite":
		db, err = openSQLite(dsn)
	case "postgres":
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to postgres")
		}
	default:
		return nil, errors.Newf("unsupported database type %q", dbType)
	}
	if err != nil {
		return nil, err
	}

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		// Create data directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create data directory")
		}
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to sqlite")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// Close closes the global connection
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

func isPostgres(db interface{ DriverName() string }) bool {
	return db.DriverName() == "postgres"
}

var schema = []struct {
	name string
	ddl  string
}{
	{"sync_sessions", `
		CREATE TABLE IF NOT EXISTS sync_sessions (
			identity TEXT PRIMARY KEY,
			session_key TEXT NOT NULL UNIQUE,
			issued_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		)`},
	{"counter_aggregates", `
		CREATE TABLE IF NOT EXISTS counter_aggregates (
			identity TEXT NOT NULL,
			qid TEXT NOT NULL,
			correct_total BIGINT NOT NULL DEFAULT 0,
			wrong_total BIGINT NOT NULL DEFAULT 0,
			streak3_total BIGINT NOT NULL DEFAULT 0,
			wrong_streak3_total BIGINT NOT NULL DEFAULT 0,
			streak_len BIGINT NOT NULL DEFAULT 0,
			wrong_streak_len BIGINT NOT NULL DEFAULT 0,
			streak_max BIGINT NOT NULL DEFAULT 0,
			streak_max_day TEXT NOT NULL DEFAULT '',
			wrong_streak_max BIGINT NOT NULL DEFAULT 0,
			wrong_streak_max_day TEXT NOT NULL DEFAULT '',
			client_updated_at BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (identity, qid)
		)`},
	{"today_unique", `
		CREATE TABLE IF NOT EXISTS today_unique (
			identity TEXT NOT NULL,
			kind TEXT NOT NULL,
			day TEXT NOT NULL,
			qid TEXT NOT NULL,
			PRIMARY KEY (identity, kind, day, qid)
		)`},
	{"merge_receipts", `
		CREATE TABLE IF NOT EXISTS merge_receipts (
			identity TEXT NOT NULL,
			submission_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (identity, submission_id)
		)`},
}

// InitSchema creates the tables if they don't exist
func InitSchema(db *sqlx.DB) error {
	for _, t := range schema {
		if _, err := db.Exec(t.ddl); err != nil {
			return errors.Wrapf(err, "failed to create %s table", t.name)
		}
	}
	return nil
}
