package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailforward/internal/model"
)

// SQLite keeps the ledger in a local SQLite database keyed by the
// processed key, so lookups do not scan the whole history.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens (or creates) a SQLite database at dbPath and runs any
// pending schema migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite ledger: %w", err)
	}

	// One connection: ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLite) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// IsProcessed reports whether the pair has a row.
func (s *SQLite) IsProcessed(
	ctx context.Context, sender string, timestamp int64,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM processed WHERE key = ?",
		model.ProcessedKey(sender, timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("querying ledger: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed inserts the pair. Marking an existing pair is a no-op.
func (s *SQLite) MarkProcessed(
	ctx context.Context, sender string, timestamp int64,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed (id, key, sender, udate, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), model.ProcessedKey(sender, timestamp),
		sender, timestamp, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", model.ProcessedKey(sender, timestamp), err)
	}
	return nil
}

// Keys returns every recorded key in insertion order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys, "SELECT key FROM processed ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	return keys, nil
}

// Import inserts raw keys, such as those of a JSON ledger, in one
// transaction. Keys already present are skipped. It returns the number
// of keys added.
func (s *SQLite) Import(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO processed (id, key, sender, udate, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing import statement: %w", err)
	}
	defer stmt.Close()

	added := 0
	now := time.Now().UTC()
	for _, key := range keys {
		sender, udate := splitKey(key)
		res, err := stmt.ExecContext(ctx, uuid.New().String(), key, sender, udate, now)
		if err != nil {
			return 0, fmt.Errorf("importing %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing import: %w", err)
	}
	return added, nil
}
