// Package sqlite keeps the collection store in memory and mirrors every
// committed state into a SQLite file, one row per collection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"molluscadb/internal/infra/persistence/memory"
	"molluscadb/pkg/domain"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath = "molluscadb.db"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`
	selectBuckets = `SELECT bucket, payload FROM state`
	upsertBucket  = `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`
)

// Store is a memory.Store whose commits are written through to SQLite.
type Store struct {
	*memory.Store
	db      *sql.DB
	path    string
	writeMu sync.Mutex
	// persisted is the Seq of the newest snapshot written; guarded by writeMu.
	persisted uint64
}

// NewStore opens (creating if needed) the database at path and loads the
// collections it holds. An empty path uses molluscadb.db in the working
// directory.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.prepare(context.Background(), engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepare(ctx context.Context, engine *domain.RulesEngine) error {
	if _, err := s.db.ExecContext(ctx, createStateTable); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, selectBuckets)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	found := false
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.writeThrough))
	if found {
		s.ImportState(snapshot)
	}
	return nil
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

// Close stops subscriptions and closes the database handle.
func (s *Store) Close() error {
	_ = s.Store.Close()
	return s.db.Close()
}

// DB returns the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }
