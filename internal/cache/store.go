package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davidferlay/octatrack-manager/internal/model"
	_ "modernc.org/sqlite"
)

// schemaVersion is persisted via PRAGMA user_version. Version 1 was a
// single "projects" table holding the whole project per row; it is migrated
// by dropping the table (a cold cache miss on first run after upgrade is
// acceptable, the cache is never a source of truth).
const schemaVersion = 2

// ErrQuotaExceeded is returned by internal writes when the configured byte
// budget would be exceeded. PutProject reacts by evicting old projects and
// retrying once; it never reaches callers.
var ErrQuotaExceeded = errors.New("cache: storage quota exceeded")

// Options configures a Store.
type Options struct {
	// QuotaBytes caps the total stored payload size. 0 disables the quota.
	QuotaBytes int64

	// KeepRecent is how many most-recently-written projects survive a
	// quota eviction. Defaults to 5.
	KeepRecent int

	// Logf receives best-effort diagnostics for swallowed cache errors.
	// May be nil.
	Logf func(format string, args ...any)
}

// Store is the persistent cache of project metadata and bank snapshots,
// backed by a local SQLite database.
//
// The store is a best-effort accelerator: read failures surface as cache
// misses and write failures are logged and swallowed, so the application
// keeps working with zero caching. Writes always replace whole entries,
// never merge.
//
// PutProject is deliberately not transactional across its N+1 underlying
// writes; each key is written independently and the engine's per-key
// atomicity is all that is relied on. A torn composite write only costs a
// future cache miss.
type Store struct {
	db         *sql.DB
	quotaBytes int64
	keepRecent int
	logf       func(string, ...any)
	now        func() time.Time
}

// migration is one registered schema step, applied when the persisted
// version is below To.
type migration struct {
	To    int
	Apply func(*sql.Tx) error
}

var migrations = []migration{
	{To: 2, Apply: dropLegacyLayout},
}

// dropLegacyLayout removes the v1 single-table layout outright. No
// field-level migration of old rows is attempted.
func dropLegacyLayout(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS projects`)
	return err
}

// Open opens (or creates) the cache database at path and migrates its
// schema if needed.
func Open(path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("open cache %s: %w", path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	// modernc/sqlite allows one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache pragma: %w", err)
		}
	}

	s := &Store{
		db:         db,
		quotaBytes: opts.QuotaBytes,
		keepRecent: opts.KeepRecent,
		logf:       opts.Logf,
		now:        time.Now,
	}
	if s.keepRecent <= 0 {
		s.keepRecent = 5
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("cache schema version: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if version < m.To {
			if err := m.Apply(tx); err != nil {
				return fmt.Errorf("cache migration to v%d: %w", m.To, err)
			}
		}
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS project_metadata (
			path        TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			captured_at INTEGER NOT NULL,
			timestamps  TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS project_banks (
			key         TEXT PRIMARY KEY,
			path        TEXT NOT NULL,
			bank_id     INTEGER NOT NULL,
			payload     BLOB NOT NULL,
			captured_at INTEGER NOT NULL,
			file_mtime  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_project_banks_path ON project_banks(path)`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("cache schema: %w", err)
		}
	}

	// PRAGMA does not accept bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("cache schema version: %w", err)
	}

	return tx.Commit()
}

func (s *Store) log(format string, args ...any) {
	if s.logf != nil {
		s.logf(format, args...)
	}
}

func bankKey(path string, index model.BankIndex) string {
	return fmt.Sprintf("%s:%d", path, index)
}

// GetMetadata returns the cached metadata for a project path, or nil when
// not cached. Read failures are reported as cache misses.
func (s *Store) GetMetadata(ctx context.Context, path string) *model.ProjectMetadata {
	meta, _ := s.GetMetadataWithTimestamps(ctx, path)
	return meta
}

// GetMetadataWithTimestamps returns the cached metadata along with the
// FileTimestamps snapshot stored next to it. The snapshot is nil when the
// entry predates timestamp tracking; such entries are unconditionally
// stale.
func (s *Store) GetMetadataWithTimestamps(ctx context.Context, path string) (*model.ProjectMetadata, *model.FileTimestamps) {
	var payload []byte
	var tsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, timestamps FROM project_metadata WHERE path = ?`, path,
	).Scan(&payload, &tsJSON)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log("cache: metadata read for %s: %v", path, err)
		}
		return nil, nil
	}

	var meta model.ProjectMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		s.log("cache: metadata decode for %s: %v", path, err)
		return nil, nil
	}

	if !tsJSON.Valid {
		return &meta, nil
	}
	var ts model.FileTimestamps
	if err := json.Unmarshal([]byte(tsJSON.String), &ts); err != nil {
		s.log("cache: timestamps decode for %s: %v", path, err)
		return &meta, nil
	}
	return &meta, &ts
}

// GetBank returns one cached bank, or nil when not cached.
func (s *Store) GetBank(ctx context.Context, path string, index model.BankIndex) *model.Bank {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM project_banks WHERE key = ?`, bankKey(path, index),
	).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log("cache: bank read for %s/%s: %v", path, index.Letter(), err)
		}
		return nil
	}

	var bank model.Bank
	if err := json.Unmarshal(payload, &bank); err != nil {
		s.log("cache: bank decode for %s/%s: %v", path, index.Letter(), err)
		return nil
	}
	return &bank
}

// GetBanks returns all cached banks for a project, ordered by bank letter.
func (s *Store) GetBanks(ctx context.Context, path string) []*model.Bank {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM project_banks WHERE path = ? ORDER BY bank_id`, path)
	if err != nil {
		s.log("cache: banks read for %s: %v", path, err)
		return nil
	}
	defer rows.Close()

	var banks []*model.Bank
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			s.log("cache: banks scan for %s: %v", path, err)
			return nil
		}
		var bank model.Bank
		if err := json.Unmarshal(payload, &bank); err != nil {
			s.log("cache: bank decode for %s: %v", path, err)
			continue
		}
		banks = append(banks, &bank)
	}
	if err := rows.Err(); err != nil {
		s.log("cache: banks read for %s: %v", path, err)
	}
	return banks
}

// PutMetadata caches a project's metadata, replacing any previous entry.
// Failures are logged and swallowed.
func (s *Store) PutMetadata(ctx context.Context, path string, meta *model.ProjectMetadata, ts *model.FileTimestamps) {
	if err := s.putMetadata(ctx, path, meta, ts); err != nil {
		s.log("cache: metadata write for %s: %v", path, err)
	}
}

func (s *Store) putMetadata(ctx context.Context, path string, meta *model.ProjectMetadata, ts *model.FileTimestamps) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	var tsJSON any
	if ts != nil {
		b, err := json.Marshal(ts)
		if err != nil {
			return err
		}
		tsJSON = string(b)
	}

	if err := s.checkQuota(ctx, int64(len(payload))); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_metadata (path, payload, captured_at, timestamps)
		 VALUES (?, ?, ?, ?)`,
		path, payload, s.now().UnixNano(), tsJSON)
	return err
}

// PutBank caches a single bank snapshot, replacing any previous entry.
// fileMtime is the bank file's mtime at fetch time; 0 means unknown.
// Failures are logged and swallowed.
func (s *Store) PutBank(ctx context.Context, path string, index model.BankIndex, bank *model.Bank, fileMtime int64) {
	if err := s.putBank(ctx, path, index, bank, fileMtime); err != nil {
		s.log("cache: bank write for %s/%s: %v", path, index.Letter(), err)
	}
}

func (s *Store) putBank(ctx context.Context, path string, index model.BankIndex, bank *model.Bank, fileMtime int64) error {
	payload, err := json.Marshal(bank)
	if err != nil {
		return err
	}

	if err := s.checkQuota(ctx, int64(len(payload))); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO project_banks (key, path, bank_id, payload, captured_at, file_mtime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bankKey(path, index), path, int(index), payload, s.now().UnixNano(), fileMtime)
	return err
}

// PutProject caches a whole project: metadata first, then every bank, as
// independent per-key writes.
//
// When a write trips the storage quota, every cached project except the
// KeepRecent most-recently-written ones is evicted and the full write is
// retried exactly once. If the retry still fails the error is logged and
// swallowed; the UI must work with zero caching.
func (s *Store) PutProject(ctx context.Context, path string, meta *model.ProjectMetadata, banks map[model.BankIndex]*model.Bank, ts *model.FileTimestamps) {
	err := s.writeProject(ctx, path, meta, banks, ts)
	if errors.Is(err, ErrQuotaExceeded) {
		if evictErr := s.evictForQuota(ctx); evictErr != nil {
			s.log("cache: quota eviction: %v", evictErr)
		}
		err = s.writeProject(ctx, path, meta, banks, ts)
	}
	if err != nil {
		s.log("cache: project write for %s: %v", path, err)
	}
}

func (s *Store) writeProject(ctx context.Context, path string, meta *model.ProjectMetadata, banks map[model.BankIndex]*model.Bank, ts *model.FileTimestamps) error {
	if err := s.putMetadata(ctx, path, meta, ts); err != nil {
		return err
	}
	for index, bank := range banks {
		var mtime int64
		if ts != nil && index.Valid() {
			mtime = ts.BankFiles[index]
		}
		if err := s.putBank(ctx, path, index, bank, mtime); err != nil {
			return err
		}
	}
	return nil
}

// checkQuota rejects a write whose payload would push the stored total past
// the configured budget.
func (s *Store) checkQuota(ctx context.Context, incoming int64) error {
	if s.quotaBytes <= 0 {
		return nil
	}
	size, err := s.storedBytes(ctx)
	if err != nil {
		return err
	}
	if size+incoming > s.quotaBytes {
		return ErrQuotaExceeded
	}
	return nil
}

func (s *Store) storedBytes(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(LENGTH(payload)) FROM project_metadata), 0)
		     + COALESCE((SELECT SUM(LENGTH(payload)) FROM project_banks), 0)`,
	).Scan(&size)
	return size, err
}

// evictForQuota drops every cached project except the keepRecent
// most-recently-written ones, ranked by stored capture timestamp. An
// in-flight PutProject has already written its metadata row, so the
// incoming project ranks newest and survives its own eviction.
func (s *Store) evictForQuota(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM project_metadata ORDER BY captured_at DESC, rowid DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var victims []string
	rank := 0
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return err
		}
		if rank >= s.keepRecent {
			victims = append(victims, path)
		}
		rank++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, path := range victims {
		if err := s.deleteProject(ctx, path); err != nil {
			return err
		}
		s.log("cache: evicted %s under quota pressure", path)
	}
	return nil
}

func (s *Store) deleteProject(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM project_metadata WHERE path = ?`, path); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM project_banks WHERE path = ?`, path)
	return err
}

// ClearProject removes all cached entries for one project path.
func (s *Store) ClearProject(ctx context.Context, path string) {
	if err := s.deleteProject(ctx, path); err != nil {
		s.log("cache: clear %s: %v", path, err)
	}
}

// Clear wipes the whole cache.
func (s *Store) Clear(ctx context.Context) {
	for _, stmt := range []string{
		`DELETE FROM project_metadata`,
		`DELETE FROM project_banks`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.log("cache: clear: %v", err)
			return
		}
	}
}

// Stats summarizes cache contents.
type Stats struct {
	ProjectCount int
	BankCount    int
	Oldest       time.Time
	Newest       time.Time
	StoredBytes  int64
}

// Stats returns cache-wide counters. Failures yield zero stats.
func (s *Store) Stats(ctx context.Context) Stats {
	var st Stats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM project_metadata),
		       (SELECT COUNT(*) FROM project_banks),
		       (SELECT MIN(captured_at) FROM project_metadata),
		       (SELECT MAX(captured_at) FROM project_metadata)`,
	).Scan(&st.ProjectCount, &st.BankCount, &oldest, &newest)
	if err != nil {
		s.log("cache: stats: %v", err)
		return Stats{}
	}
	if oldest.Valid {
		st.Oldest = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		st.Newest = time.Unix(0, newest.Int64)
	}
	if size, err := s.storedBytes(ctx); err == nil {
		st.StoredBytes = size
	}
	return st
}

// AllPaths lists every cached project path, most recently written first.
func (s *Store) AllPaths(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM project_metadata ORDER BY captured_at DESC, rowid DESC`)
	if err != nil {
		s.log("cache: paths: %v", err)
		return nil
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			s.log("cache: paths: %v", err)
			return nil
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		s.log("cache: paths: %v", err)
	}
	return paths
}
