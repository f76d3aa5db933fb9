package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
)

// Row is the generic shape the command surface speaks: column name to value,
// with the tags_json column already parsed back into a "tags" array.
type Row = map[string]any

// Store implements the command surface over a migrated sqlite handle.
type Store struct {
	db  *sql.DB
	log logging.Logger

	// Guards locally generated ids so two creates in the same millisecond
	// cannot collide.
	idMu       sync.Mutex
	lastMillis int64
}

// NewStore wraps an already-open, already-migrated database handle.
func NewStore(db *sql.DB, log logging.Logger) *Store {
	return &Store{db: db, log: log}
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Settings returns the string key/value store sharing this handle.
func (s *Store) Settings() *Settings {
	return &Settings{db: s.db}
}

var tableWhitelist = func() map[string]struct{} {
	m := map[string]struct{}{"workspaces": {}, "projects": {}}
	for _, t := range records.Tables() {
		m[t] = struct{}{}
	}
	return m
}()

func checkTable(table string) error {
	if _, ok := tableWhitelist[table]; !ok {
		return fmt.Errorf("invalid table %q", table)
	}
	return nil
}

// nextID produces a "{prefix}_{unixMillis}" id, monotonic within this store.
func (s *Store) nextID(prefix string) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	millis := time.Now().UnixMilli()
	if millis <= s.lastMillis {
		millis = s.lastMillis + 1
	}
	s.lastMillis = millis
	return fmt.Sprintf("%s_%d", prefix, millis)
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// normalizePayload converts the generic payload for storage: a "tags" array
// becomes the JSON-encoded tags_json column.
func normalizePayload(payload Row) Row {
	out := make(Row, len(payload))
	for k, v := range payload {
		if k == "tags" {
			data, err := json.Marshal(v)
			if err != nil {
				data = []byte("[]")
			}
			out["tags_json"] = string(data)
			continue
		}
		out[k] = v
	}
	return out
}

// List returns all rows of table, filtered by project when projectID is
// non-empty and the table is project-scoped, oldest first.
func (s *Store) List(ctx context.Context, table, projectID string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY created_at ASC", table)
	var args []any
	if projectID != "" && table != "workspaces" && table != "projects" {
		query = fmt.Sprintf("SELECT * FROM %s WHERE project_id = ? ORDER BY created_at ASC", table)
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts payload into table under a freshly generated id and call
// time timestamps, returning the stored row.
func (s *Store) Create(ctx context.Context, table, idPrefix string, payload Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	p := normalizePayload(payload)
	cols := make([]string, 0, len(p))
	for k := range p {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	id := s.nextID(idPrefix)
	now := nowStamp()

	names := append([]string{"id"}, cols...)
	names = append(names, "created_at", "updated_at")
	args := make([]any, 0, len(names))
	args = append(args, id)
	for _, c := range cols {
		args = append(args, p[c])
	}
	args = append(args, now, now)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), placeholders(len(names)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	return s.getByID(ctx, table, id)
}

// Update applies a partial update: every named column is set to the new
// value unless that value is nil, in which case the existing one is kept
// (COALESCE discipline). It returns the merged row.
func (s *Store) Update(ctx context.Context, table, id string, updates Row) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	u := normalizePayload(updates)
	cols := make([]string, 0, len(u))
	for k := range u {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = COALESCE(?, %s)", c, c))
		args = append(args, u[c])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, nowStamp(), id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return nil, common.ErrNotFound
	}

	return s.getByID(ctx, table, id)
}

// Delete removes a row by id. Deleting an absent row returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Dedicated commands for the two kinds that predate the generic surface.
// They are thin names over the same implementation.

func (s *Store) CreateAccount(ctx context.Context, payload Row) (Row, error) {
	return s.Create(ctx, "accounts", "account", payload)
}

func (s *Store) UpdateAccount(ctx context.Context, id string, updates Row) (Row, error) {
	return s.Update(ctx, "accounts", id, updates)
}

func (s *Store) CreateIdentity(ctx context.Context, payload Row) (Row, error) {
	return s.Create(ctx, "identities", "identity", payload)
}

func (s *Store) UpdateIdentity(ctx context.Context, id string, updates Row) (Row, error) {
	return s.Update(ctx, "identities", id, updates)
}

func (s *Store) getByID(ctx context.Context, table, id string) (Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s row: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.ErrNotFound
	}
	return scanRow(rows, cols)
}

// scanRow reads the current row into a generic map and parses tags_json back
// into a "tags" array (empty on any parse failure).
func scanRow(rows *sql.Rows, cols []string) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}

	row := make(Row, len(cols))
	for i, c := range cols {
		switch v := values[i].(type) {
		case []byte:
			row[c] = string(v)
		default:
			row[c] = v
		}
	}

	if rawTags, ok := row["tags_json"]; ok {
		tags := []string{}
		if raw, ok := rawTags.(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &tags); err != nil {
				tags = []string{}
			}
		}
		delete(row, "tags_json")
		row["tags"] = tags
	}

	return row, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
