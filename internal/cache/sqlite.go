package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dyluth/weir/pkg/record"
)

// SQLite is a Cache backed by a local SQLite database (pure Go driver).
// Records are stored once by id; a side table indexes tag key/value pairs
// so filter queries can hit tag constraints without decoding every row.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite record cache at the given
// path. The parent directory is created when missing.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("cache: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}

	c := &SQLite{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migration: %w", err)
	}

	return c, nil
}

func (c *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id         TEXT PRIMARY KEY,
			creator    TEXT    NOT NULL,
			kind       INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			content    TEXT    NOT NULL,
			tags       TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_records_creator ON records(creator);
		CREATE INDEX IF NOT EXISTS idx_records_kind    ON records(kind);
		CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);

		CREATE TABLE IF NOT EXISTS record_tags (
			record_id TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     TEXT NOT NULL,
			FOREIGN KEY (record_id) REFERENCES records(id)
		);

		CREATE INDEX IF NOT EXISTS idx_tags_lookup ON record_tags(key, value);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Put stores a record. Records are immutable, so re-putting a known id is a
// no-op (INSERT OR IGNORE).
func (c *SQLite) Put(ctx context.Context, r *record.Record) error {
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return fmt.Errorf("cache: marshal tags: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (id, creator, kind, created_at, content, tags)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Creator, r.Kind, r.CreatedAt, r.Content, string(tagsJSON))
	if err != nil {
		return fmt.Errorf("cache: insert record: %w", err)
	}

	// Only index tags for rows we actually inserted.
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		for _, group := range r.Tags {
			if len(group) < 2 {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO record_tags (record_id, key, value) VALUES (?, ?, ?)`,
				r.ID, group[0], group[1]); err != nil {
				return fmt.Errorf("cache: index tag: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Query returns the cached records matching the filter, oldest first.
func (c *SQLite) Query(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	query := `SELECT DISTINCT r.id, r.creator, r.kind, r.created_at, r.content, r.tags FROM records r`
	where := []string{}
	args := []any{}

	if len(filter.Authors) > 0 {
		where = append(where, "r.creator IN ("+placeholders(len(filter.Authors))+")")
		for _, a := range filter.Authors {
			args = append(args, a)
		}
	}
	if len(filter.Kinds) > 0 {
		where = append(where, "r.kind IN ("+placeholders(len(filter.Kinds))+")")
		for _, k := range filter.Kinds {
			args = append(args, k)
		}
	}

	joinIdx := 0
	for key, values := range filter.Tags {
		if len(values) == 0 {
			continue
		}
		alias := fmt.Sprintf("t%d", joinIdx)
		joinIdx++
		query += fmt.Sprintf(" JOIN record_tags %s ON %s.record_id = r.id", alias, alias)
		where = append(where, fmt.Sprintf("%s.key = ? AND %s.value IN (%s)",
			alias, alias, placeholders(len(values))))
		args = append(args, key)
		for _, v := range values {
			args = append(args, v)
		}
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: query records: %w", err)
	}
	defer rows.Close()

	out := []*record.Record{}
	for rows.Next() {
		var r record.Record
		var tagsJSON string
		if err := rows.Scan(&r.ID, &r.Creator, &r.Kind, &r.CreatedAt, &r.Content, &tagsJSON); err != nil {
			return nil, fmt.Errorf("cache: scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
			// A corrupt cache row degrades to a tagless record rather than
			// failing the whole query.
			r.Tags = [][]string{}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: iterate records: %w", err)
	}

	return out, nil
}

// Close closes the underlying database connection.
func (c *SQLite) Close() error {
	return c.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
