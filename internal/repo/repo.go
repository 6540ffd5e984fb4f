package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

type RunKind string

const (
	KindExtract RunKind = "extract"
	KindImport  RunKind = "import"
)

// RunRecord is one extractor run or database import as the operator saw it.
type RunRecord struct {
	ID         string
	Kind       RunKind
	Fem        string
	Mpcf       string
	Spcf       string
	Database   string
	Success    bool
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

type RunRepository interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	fem         TEXT NOT NULL DEFAULT '',
	mpcf        TEXT NOT NULL DEFAULT '',
	spcf        TEXT NOT NULL DEFAULT '',
	database    TEXT NOT NULL DEFAULT '',
	success     BOOLEAN NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

type PostgresRunRepository struct {
	db *sql.DB
}

func NewPostgresRunDB(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Migrate creates the runs table when it does not exist.
func (r *PostgresRunRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func (r *PostgresRunRepository) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `INSERT INTO runs (id, kind, fem, mpcf, spcf, database, success, message, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, rec.ID, string(rec.Kind), rec.Fem, rec.Mpcf, rec.Spcf,
		rec.Database, rec.Success, rec.Message, rec.StartedAt, rec.FinishedAt)
	return err
}

func (r *PostgresRunRepository) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, kind, fem, mpcf, spcf, database, success, message, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var kind string
		if err := rows.Scan(&rec.ID, &kind, &rec.Fem, &rec.Mpcf, &rec.Spcf, &rec.Database,
			&rec.Success, &rec.Message, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		rec.Kind = RunKind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// OpenDB connects to Postgres and verifies the connection.
func OpenDB(ctx context.Context, connStr string) (*sql.DB, error) {
	if !strings.Contains(connStr, "sslmode=") {
		if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
			sep := "?"
			if strings.Contains(connStr, "?") {
				sep = "&"
			}
			connStr = connStr + sep + "sslmode=require"
		} else {
			connStr = connStr + " sslmode=require"
		}
	}
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// MemoryRunRepository keeps run history for the lifetime of the process.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs []RunRecord
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{}
}

func (r *MemoryRunRepository) RecordRun(_ context.Context, rec RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rec)
	return nil
}

func (r *MemoryRunRepository) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	r.mu.RLock()
	out := make([]RunRecord, len(r.runs))
	copy(out, r.runs)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
