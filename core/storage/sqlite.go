package storage

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/artpar/modelgate/core/formatter"
	"github.com/artpar/modelgate/core/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultListLimit = 100

// SQLiteStore implements Store with SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if strings.HasPrefix(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := NewSQLiteStoreFromDB(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreFromDB creates a store from an existing connection.
// The caller runs Migrate.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate runs all pending migrations.
func (s *SQLiteStore) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("scan migration: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrations = append(migrations, entry.Name())
		}
	}
	sort.Strings(migrations)

	for _, name := range migrations {
		version := strings.TrimSuffix(name, ".sql")
		if applied[version] {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}

	return nil
}

// Save stores the JSON mapping of inst. The record id is taken from the
// instance's id field when set; otherwise a UUID is generated and, when the
// schema declares an id field, written into the stored data.
func (s *SQLiteStore) Save(ctx context.Context, inst *validation.Instance) (Record, error) {
	sch := inst.Schema()
	data := formatter.ToJSONMapping(inst)

	var id string
	if v, ok := data[IDField]; ok && v != nil {
		id = fmt.Sprint(v)
	} else {
		id = uuid.New().String()
		if assignsID(sch) {
			data[IDField] = id
		}
	}

	body, err := json.Marshal(data)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", sch.Name(), err)
	}

	rec := Record{ID: id, Schema: sch.Name(), Data: data, CreatedAt: s.now()}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records (id, schema, data, created_at) VALUES (?, ?, ?, ?)",
		rec.ID, rec.Schema, string(body), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return Record{}, fmt.Errorf("save %s/%s: %w", rec.Schema, rec.ID, ErrDuplicate)
		}
		return Record{}, fmt.Errorf("save %s/%s: %w", rec.Schema, rec.ID, err)
	}

	return rec, nil
}

// Get retrieves a record by schema and id.
func (s *SQLiteStore) Get(ctx context.Context, schemaName, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, schema, data, created_at FROM records WHERE schema = ? AND id = ?",
		schemaName, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s/%s: %w", schemaName, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s/%s: %w", schemaName, id, err)
	}
	return rec, nil
}

// List retrieves records of a schema with the total count matching the
// filters.
func (s *SQLiteStore) List(ctx context.Context, schemaName string, opts ListOptions) ([]Record, int64, error) {
	where := " WHERE schema = ?"
	args := []any{schemaName}

	keys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		where += " AND json_extract(data, ?) = ?"
		args = append(args, "$."+k, opts.Filters[k])
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", schemaName, err)
	}

	order := "ASC"
	if opts.OrderDesc {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := fmt.Sprintf(
		"SELECT id, schema, data, created_at FROM records%s ORDER BY created_at %s, rowid %s LIMIT %d OFFSET %d",
		where, order, order, limit, opts.Offset,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", schemaName, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("list %s: %w", schemaName, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", schemaName, err)
	}

	return records, count, nil
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, schemaName, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE schema = ? AND id = ?", schemaName, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", schemaName, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", schemaName, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s/%s: %w", schemaName, id, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		body      string
		createdAt string
	)
	if err := row.Scan(&rec.ID, &rec.Schema, &body, &createdAt); err != nil {
		return Record{}, err
	}

	// Numbers stay exact until the engine coerces them
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&rec.Data); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at of %s: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	return rec, nil
}

var _ Store = (*SQLiteStore)(nil)
