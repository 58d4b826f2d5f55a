package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// SQLiteStore implements VectorStore on a single SQLite database.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	// dims caches the recorded vector length; 0 until the first upsert.
	dims int
}

var _ VectorStore = (*SQLiteStore)(nil)

// checkIntegrity is replaced in tests.
var checkIntegrity = validateIntegrity

// validateIntegrity checks an existing database before it is opened for writing.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// quarantine moves a corrupt database to path+".corrupt" so a fresh index
// can be built, and returns the tracked roots it could still read. Entries
// are derived data and are rebuilt by the next sync; the folder list is not.
func quarantine(path string, cause error) ([]string, error) {
	slog.Warn("index_database_corrupted",
		slog.String("path", path),
		slog.String("error", cause.Error()))

	roots, err := readRoots(path)
	if err != nil {
		slog.Warn("index_roots_unreadable",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	aside := path + ".corrupt"
	if err := os.Rename(path, aside); err != nil {
		return nil, merrors.New(merrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index corrupted at %s and cannot be moved aside", path), err).
			WithSuggestion("Remove " + path + " and re-add your folders")
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	slog.Info("index_database_quarantined",
		slog.String("path", aside),
		slog.Int("roots_salvaged", len(roots)))
	return roots, nil
}

// readRoots reads the folders table of a database opened read-only.
func readRoots(path string) ([]string, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT path FROM folders ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// NewSQLiteStore opens (or creates) the index database at path.
// An empty path creates an in-memory store for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var (
		dsn      string
		salvaged []string
		err      error
	)
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := checkIntegrity(path); validErr != nil {
			salvaged, err = quarantine(path, validErr)
			if err != nil {
				return nil, err
			}
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; modernc serializes on the connection anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN params, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if v, err := s.GetState(context.Background(), StateKeyDimensions); err == nil && v != "" {
		s.dims, _ = strconv.Atoi(v)
	}
	if len(salvaged) > 0 {
		if err := s.SetRoots(context.Background(), salvaged); err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("index_roots_restored", slog.Int("roots", len(salvaged)))
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		path TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		ocr_text TEXT NULL,
		last_modified INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_ocr ON embeddings(ocr_text);

	CREATE TABLE IF NOT EXISTS folders (
		path TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Upsert inserts or replaces one entry. The first upsert fixes the vector
// length; later entries with a different length are rejected.
func (s *SQLiteStore) Upsert(ctx context.Context, e Entry) error {
	if e.Path == "" {
		return merrors.Validation("entry path is required", nil)
	}
	if len(e.Vector) == 0 {
		return merrors.Validation("entry vector is empty", nil).WithDetail("path", e.Path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return merrors.Store("upsert", err)
	}

	if s.dims != 0 && len(e.Vector) != s.dims {
		return merrors.New(merrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector has %d dimensions, index uses %d", len(e.Vector), s.dims), nil).
			WithDetail("path", e.Path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Store("upsert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var ocr any
	if e.OCRText != "" {
		ocr = e.OCRText
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO embeddings (path, vector, ocr_text, last_modified) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			vector = excluded.vector,
			ocr_text = excluded.ocr_text,
			last_modified = excluded.last_modified`,
		e.Path, EncodeVector(e.Vector), ocr, e.LastModified); err != nil {
		return merrors.Store("upsert", err).WithDetail("path", e.Path)
	}

	if s.dims == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`,
			StateKeyDimensions, strconv.Itoa(len(e.Vector))); err != nil {
			return merrors.Store("upsert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return merrors.Store("upsert", fmt.Errorf("failed to commit: %w", err))
	}
	if s.dims == 0 {
		s.dims = len(e.Vector)
	}
	return nil
}

// All returns every entry. Rows with undecodable vectors are skipped.
func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := s.Each(ctx, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		slog.Warn("store_read_failed", slog.String("op", "all"), slog.String("error", err.Error()))
		return []Entry{}, err
	}
	return entries, nil
}

// Each streams entries to fn in path order. Returning an error from fn stops
// the iteration and is passed through.
func (s *SQLiteStore) Each(ctx context.Context, fn func(Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, vector, ocr_text, last_modified FROM embeddings ORDER BY path`)
	if err != nil {
		return fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e    Entry
			blob []byte
			ocr  sql.NullString
		)
		if err := rows.Scan(&e.Path, &blob, &ocr, &e.LastModified); err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			slog.Warn("store_entry_skipped", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		e.Vector = vec
		e.OCRText = ocr.String
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stamps returns path -> LastModified for every entry.
func (s *SQLiteStore) Stamps(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamps := make(map[string]int64)
	if err := s.checkOpen(); err != nil {
		return stamps, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, last_modified FROM embeddings`)
	if err != nil {
		slog.Warn("store_read_failed", slog.String("op", "stamps"), slog.String("error", err.Error()))
		return stamps, fmt.Errorf("failed to query stamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path string
			ts   int64
		)
		if err := rows.Scan(&path, &ts); err != nil {
			return make(map[string]int64), fmt.Errorf("failed to scan stamp: %w", err)
		}
		stamps[path] = ts
	}
	if err := rows.Err(); err != nil {
		return make(map[string]int64), err
	}
	return stamps, nil
}

// DeleteByPath removes one entry.
func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return merrors.Store("delete", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE path = ?`, path); err != nil {
		return merrors.Store("delete", err).WithDetail("path", path)
	}
	return nil
}

// DeleteWhere removes entries under root that are absent from keep.
func (s *SQLiteStore) DeleteWhere(ctx context.Context, root string, keep map[string]struct{}) ([]string, error) {
	if root == "" {
		return nil, merrors.Validation("scoped delete requires a root", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, merrors.Store("delete_where", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Store("delete_where", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	candidates, err := pathsUnder(ctx, tx, root)
	if err != nil {
		return nil, merrors.Store("delete_where", err)
	}

	var removed []string
	for _, p := range candidates {
		if _, ok := keep[p]; ok {
			continue
		}
		removed = append(removed, p)
	}
	if err := deletePaths(ctx, tx, removed); err != nil {
		return nil, merrors.Store("delete_where", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, merrors.Store("delete_where", fmt.Errorf("failed to commit: %w", err))
	}
	return removed, nil
}

// pathsUnder lists stored paths strictly inside root. The SQL prefix match is
// a coarse filter; IsUnder enforces the separator boundary.
func pathsUnder(ctx context.Context, tx *sql.Tx, root string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT path FROM embeddings WHERE substr(path, 1, length(?1)) = ?1`, root)
	if err != nil {
		return nil, fmt.Errorf("failed to query paths under %s: %w", root, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if IsUnder(p, root) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}

func deletePaths(ctx context.Context, tx *sql.Tx, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM embeddings WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

// SetRoots replaces the root set in one transaction.
func (s *SQLiteStore) SetRoots(ctx context.Context, roots []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return merrors.Store("set_roots", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return merrors.Store("set_roots", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceRoots(ctx, tx, roots); err != nil {
		return merrors.Store("set_roots", err)
	}
	if err := tx.Commit(); err != nil {
		return merrors.Store("set_roots", fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func replaceRoots(ctx context.Context, tx *sql.Tx, roots []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM folders`); err != nil {
		return fmt.Errorf("failed to clear folders: %w", err)
	}
	for _, r := range roots {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO folders (path) VALUES (?)`, r); err != nil {
			return fmt.Errorf("failed to insert folder %s: %w", r, err)
		}
	}
	return nil
}

// Roots returns the tracked roots sorted lexically.
func (s *SQLiteStore) Roots(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := []string{}
	if err := s.checkOpen(); err != nil {
		return roots, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM folders ORDER BY path`)
	if err != nil {
		slog.Warn("store_read_failed", slog.String("op", "roots"), slog.String("error", err.Error()))
		return roots, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return []string{}, err
		}
		roots = append(roots, r)
	}
	if err := rows.Err(); err != nil {
		return []string{}, err
	}
	return roots, nil
}

// ReconcileRoots swaps in the new root set and purges orphaned entries in
// one transaction. A failure leaves both the roots and the entries untouched.
func (s *SQLiteStore) ReconcileRoots(ctx context.Context, roots []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, merrors.Store("reconcile_roots", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, merrors.Store("reconcile_roots", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := replaceRoots(ctx, tx, roots); err != nil {
		return nil, merrors.Store("reconcile_roots", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT path FROM embeddings`)
	if err != nil {
		return nil, merrors.Store("reconcile_roots", err)
	}
	var orphans []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, merrors.Store("reconcile_roots", err)
		}
		if !UnderAny(p, roots) {
			orphans = append(orphans, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, merrors.Store("reconcile_roots", err)
	}

	if err := deletePaths(ctx, tx, orphans); err != nil {
		return nil, merrors.Store("reconcile_roots", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, merrors.Store("reconcile_roots", fmt.Errorf("failed to commit: %w", err))
	}

	sort.Strings(orphans)
	return orphans, nil
}

// Has reports whether path has an entry.
func (s *SQLiteStore) Has(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM embeddings WHERE path = ?`, path).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up %s: %w", path, err)
	}
	return true, nil
}

// Count returns the number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Stats returns counts, dimensions and the on-disk size.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	n, err := s.Count(ctx)
	if err != nil {
		return st, err
	}
	st.Entries = n

	roots, err := s.Roots(ctx)
	if err != nil {
		return st, err
	}
	st.Roots = len(roots)

	s.mu.RLock()
	st.Dimensions = s.dims
	s.mu.RUnlock()

	st.Model, _ = s.GetState(ctx, StateKeyModel)

	if s.path != "" {
		for _, suffix := range []string{"", "-wal"} {
			if fi, err := os.Stat(s.path + suffix); err == nil {
				st.SizeBytes += fi.Size()
			}
		}
	}
	return st, nil
}

// SetState writes a meta key.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return merrors.Store("set_state", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return merrors.Store("set_state", err).WithDetail("key", key)
	}
	return nil
}

// GetState reads a meta key. Missing keys return "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return v, nil
}

// Close closes the database. Further calls fail.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
