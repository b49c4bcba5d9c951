// Package postgres keeps the collection store in memory and mirrors every
// committed state into one JSONB row per collection.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"molluscadb/internal/infra/persistence/memory"
	"molluscadb/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName  = "pgx"
	fallbackDSN = "postgres://localhost/molluscadb?sslmode=disable"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	selectBuckets = `SELECT bucket, payload FROM state`
	upsertBucket  = `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`
)

var (
	openHook   = sql.Open
	openHookMu sync.Mutex
)

// Store is a memory.Store whose commits are written through to Postgres.
type Store struct {
	*memory.Store
	db      *sql.DB
	writeMu sync.Mutex
	// persisted is the Seq of the newest snapshot written; guarded by writeMu.
	persisted uint64
}

// NewStore connects to dsn, creates the state table when missing and loads
// whatever collections it already holds. An empty dsn targets a local server.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = fallbackDSN
	}
	openHookMu.Lock()
	open := openHook
	openHookMu.Unlock()

	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snapshot, found, err := readBuckets(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.writeThrough))
	if found {
		s.ImportState(snapshot)
	}
	return s, nil
}

// DB returns the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close stops subscriptions and closes the database handle.
func (s *Store) Close() error {
	_ = s.Store.Close()
	return s.db.Close()
}

func readBuckets(ctx context.Context, db *sql.DB) (memory.Snapshot, bool, error) {
	var snapshot memory.Snapshot
	rows, err := db.QueryContext(ctx, selectBuckets)
	if err != nil {
		return snapshot, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found := false
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snapshot, false, fmt.Errorf("scan state: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return snapshot, false, err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return snapshot, false, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, found, nil
}

func (s *Store) writeThrough(ctx context.Context, snapshot memory.Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if snapshot.Seq != 0 && snapshot.Seq <= s.persisted {
		return nil
	}
	buckets, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	order := make([]string, 0, len(buckets))
	for bucket := range buckets {
		order = append(order, bucket)
	}
	sort.Strings(order)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, bucket := range order {
		if _, err := tx.ExecContext(ctx, upsertBucket, bucket, buckets[bucket]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.persisted = snapshot.Seq
	return nil
}

// OverrideSQLOpen replaces the sql.Open used by NewStore until the returned
// restore function runs.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openHookMu.Lock()
	prev := openHook
	openHook = fn
	openHookMu.Unlock()
	return func() {
		openHookMu.Lock()
		openHook = prev
		openHookMu.Unlock()
	}
}
