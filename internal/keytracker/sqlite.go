package keytracker

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteTier stores spilled keys in one table of a SQLite database.
type SQLiteTier struct {
	db    *sql.DB
	table string
}

// NewSQLiteTier creates the table if needed.
func NewSQLiteTier(ctx context.Context, db *sql.DB, table string) (*SQLiteTier, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid key tracker table name %q", table)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		normalized TEXT PRIMARY KEY,
		original   TEXT NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLiteTier{db: db, table: table}, nil
}

func (s *SQLiteTier) Has(ctx context.Context, normalized string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE normalized = ? LIMIT 1`, s.table), normalized).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *SQLiteTier) PutBatch(ctx context.Context, keys []KeyPair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (normalized, original) VALUES (?, ?)`, s.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.Normalized, k.Original); err != nil {
			return fmt.Errorf("inserting key %q: %w", k.Original, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTier) Originals(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT original FROM %s ORDER BY rowid`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
