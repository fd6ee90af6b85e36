// Package sqlite persists metadata records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
)

// DBFile is the database file name inside the data directory
const DBFile = "syncenum.db"

// Store is a SQLite backed store.Store and store.History
type Store struct {
	db *sql.DB
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.History = (*Store)(nil)
)

// New opens (creating if needed) the database under dataDir
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return open(filepath.Join(dataDir, DBFile))
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		account TEXT NOT NULL,
		file_id TEXT NOT NULL,
		parent_path TEXT NOT NULL,
		name TEXT NOT NULL,
		etag TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL DEFAULT 0,
		is_dir INTEGER NOT NULL DEFAULT 0,
		permissions TEXT NOT NULL DEFAULT '',
		encrypted INTEGER NOT NULL DEFAULT 0,
		rich_workspace TEXT NOT NULL DEFAULT '',
		session TEXT NOT NULL DEFAULT '',
		favorite INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (account, file_id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_parent_name ON records(account, parent_path, name, file_id);
	CREATE INDEX IF NOT EXISTS idx_records_favorite ON records(account, favorite);

	CREATE TABLE IF NOT EXISTS directories (
		account TEXT NOT NULL,
		path TEXT NOT NULL,
		etag TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (account, path)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account TEXT NOT NULL,
		path TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		updated INTEGER DEFAULT 0,
		deleted INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_account_time ON runs(account, start_time DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetDirectoryState implements store.Store
func (s *Store) GetDirectoryState(ctx context.Context, account, path string) (*domain.DirectoryState, error) {
	st := domain.DirectoryState{Account: account, Path: domain.CleanPath(path)}
	err := s.db.QueryRowContext(ctx,
		`SELECT etag, updated_at FROM directories WHERE account = ? AND path = ?`,
		account, st.Path,
	).Scan(&st.ETag, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query directory state: %w", err)
	}
	return &st, nil
}

// UpsertDirectoryState implements store.Store
func (s *Store) UpsertDirectoryState(ctx context.Context, state domain.DirectoryState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO directories (account, path, etag, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(account, path) DO UPDATE SET etag = excluded.etag, updated_at = excluded.updated_at
	`, state.Account, domain.CleanPath(state.Path), state.ETag, state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save directory state: %w", err)
	}
	return nil
}

const recordColumns = `account, file_id, parent_path, name, etag, size, mod_time, is_dir,
	permissions, encrypted, rich_workspace, session, favorite, tags`

// GetRecord implements store.Store
func (s *Store) GetRecord(ctx context.Context, account, fileID string) (*domain.MetadataRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE account = ? AND file_id = ?`,
		account, fileID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return rec, nil
}

// UpsertRecord implements store.Store
func (s *Store) UpsertRecord(ctx context.Context, rec domain.MetadataRecord) error {
	return s.UpsertRecords(ctx, []domain.MetadataRecord{rec})
}

// UpsertRecords implements store.Store
func (s *Store) UpsertRecords(ctx context.Context, recs []domain.MetadataRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, file_id) DO UPDATE SET
			parent_path = excluded.parent_path, name = excluded.name, etag = excluded.etag,
			size = excluded.size, mod_time = excluded.mod_time, is_dir = excluded.is_dir,
			permissions = excluded.permissions, encrypted = excluded.encrypted,
			rich_workspace = excluded.rich_workspace, session = excluded.session,
			favorite = excluded.favorite, tags = excluded.tags
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.FileID == "" {
			return store.ErrMissingID
		}
		tags, err := encodeTags(rec.Tags)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			rec.Account,
			rec.FileID,
			domain.CleanPath(rec.ParentPath),
			rec.Name,
			rec.ETag,
			rec.Size,
			rec.ModTime.UnixNano(),
			rec.IsDir,
			rec.Permissions,
			rec.Encrypted,
			rec.RichWorkspace,
			rec.Session,
			rec.Favorite,
			tags,
		)
		if err != nil {
			return fmt.Errorf("failed to save record %s: %w", rec.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// QueryRecords implements store.Store
func (s *Store) QueryRecords(ctx context.Context, q store.Query) ([]domain.MetadataRecord, error) {
	where := []string{"account = ?"}
	args := []any{q.Account}

	if q.ParentPath != "" {
		where = append(where, "parent_path = ?")
		args = append(args, domain.CleanPath(q.ParentPath))
	}
	if q.Favorite {
		where = append(where, "favorite = 1")
	}
	if q.Tagged {
		where = append(where, "tags <> ''")
	}
	if q.Visible {
		where = append(where, "encrypted = 0", "(session = '' OR session = ?)")
		args = append(args, q.Session)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	offset := 0
	if q.Offset > 0 {
		offset = q.Offset
	}
	args = append(args, limit, offset)

	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY name, file_id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []domain.MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// DeleteRecord implements store.Store
func (s *Store) DeleteRecord(ctx context.Context, account, fileID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE account = ? AND file_id = ?`, account, fileID,
	); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// DeleteRecordsNotIn implements store.Store
func (s *Store) DeleteRecordsNotIn(ctx context.Context, account, parentPath string, keep []string) (int, error) {
	parentPath = domain.CleanPath(parentPath)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT file_id FROM records WHERE account = ? AND parent_path = ?`, account, parentPath)
	if err != nil {
		return 0, fmt.Errorf("failed to query children: %w", err)
	}
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan child: %w", err)
		}
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating children: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE account = ? AND file_id = ?`, account, id,
		); err != nil {
			return 0, fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deletions: %w", err)
	}
	return len(stale), nil
}

// DeleteTree implements store.Store
func (s *Store) DeleteTree(ctx context.Context, account, path string) error {
	path = domain.CleanPath(path)
	pattern := escapeLike(strings.TrimSuffix(path, "/")) + "/%"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE account = ? AND (parent_path = ? OR parent_path LIKE ? ESCAPE '\')`,
		account, path, pattern,
	); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM directories WHERE account = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
		account, path, pattern,
	); err != nil {
		return fmt.Errorf("failed to delete directory states: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tree deletion: %w", err)
	}
	return nil
}

// PurgeAccount implements store.Store
func (s *Store) PurgeAccount(ctx context.Context, account string) error {
	for _, table := range []string{"records", "directories", "runs"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE account = ?`, account); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.MetadataRecord, error) {
	var (
		rec     domain.MetadataRecord
		modTime int64
		tags    string
	)
	err := row.Scan(
		&rec.Account,
		&rec.FileID,
		&rec.ParentPath,
		&rec.Name,
		&rec.ETag,
		&rec.Size,
		&modTime,
		&rec.IsDir,
		&rec.Permissions,
		&rec.Encrypted,
		&rec.RichWorkspace,
		&rec.Session,
		&rec.Favorite,
		&tags,
	)
	if err != nil {
		return nil, err
	}
	rec.ModTime = time.Unix(0, modTime).UTC()
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("invalid tags for %s: %w", rec.FileID, err)
		}
	}
	return &rec, nil
}

// encodeTags stores an empty tag set as '' so the Tagged predicate stays a plain comparison
func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
