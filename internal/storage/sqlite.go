package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/swexcamp/adventd/internal/idgen"
)

// Open opens (creating if necessary) the sqlite database at path, applies
// the standard pragmas, and runs the given schema. The schema must be
// idempotent; it is executed on every start.
func Open(path, schema string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	if err := Migrate(db, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate executes schema statement by statement.
func Migrate(db *sql.DB, schema string) error {
	statements := strings.Split(schema, ";")
	for _, raw := range statements {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement=%q)", err, stmt)
		}
	}
	return nil
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes how one entity type maps onto its sqlite table. Columns
// excludes the id column, which every table stores as 36-char text under
// the primary key. Encode and Decode must agree on column order.
type Table[T any] struct {
	Name    string
	Columns []string
	Encode  func(T) ([]any, error)
	Decode  func(Scanner) (T, error)
}

// SQLStore is the relational Store backend: one table per entity type,
// single-row statements, no cross-entity transactions.
type SQLStore[T any] struct {
	db    *sql.DB
	table Table[T]
	newID func() string

	insertSQL    string
	selectSQL    string
	selectAllSQL string
	updateSQL    string
	deleteSQL    string
}

func NewSQLStore[T any](db *sql.DB, table Table[T]) *SQLStore[T] {
	cols := strings.Join(table.Columns, ", ")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(table.Columns)), ", ")
	var sets []string
	for _, c := range table.Columns {
		sets = append(sets, c+" = ?")
	}
	return &SQLStore[T]{
		db:    db,
		table: table,
		newID: idgen.New,

		insertSQL:    fmt.Sprintf("INSERT INTO %s (id, %s) VALUES (?, %s)", table.Name, cols, marks),
		selectSQL:    fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", cols, table.Name),
		selectAllSQL: fmt.Sprintf("SELECT id, %s FROM %s", cols, table.Name),
		updateSQL:    fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table.Name, strings.Join(sets, ", ")),
		deleteSQL:    fmt.Sprintf("DELETE FROM %s WHERE id = ?", table.Name),
	}
}

func (s *SQLStore[T]) Create(ctx context.Context, value T) (string, error) {
	id := s.newID()
	args, err := s.table.Encode(value)
	if err != nil {
		return "", serializationError("encode "+s.table.Name, err)
	}
	_, err = s.db.ExecContext(ctx, s.insertSQL, append([]any{id}, args...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("insert %s: %w", s.table.Name, ErrDuplicateID)
		}
		return "", ioError("insert "+s.table.Name, err)
	}
	return id, nil
}

func (s *SQLStore[T]) Read(ctx context.Context, id string) (T, error) {
	var zero T
	row := s.db.QueryRowContext(ctx, s.selectSQL, id)
	value, err := s.table.Decode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("read %s %s: %w", s.table.Name, id, ErrUnknownID)
		}
		return zero, serializationError("decode "+s.table.Name, err)
	}
	return value, nil
}

func (s *SQLStore[T]) ReadAll(ctx context.Context) ([]Record[T], error) {
	rows, err := s.db.QueryContext(ctx, s.selectAllSQL)
	if err != nil {
		return nil, ioError("list "+s.table.Name, err)
	}
	defer rows.Close()

	var out []Record[T]
	for rows.Next() {
		rec, err := scanRecord(rows, s.table)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("iterate "+s.table.Name, err)
	}
	return out, nil
}

func (s *SQLStore[T]) Update(ctx context.Context, id string, value T) error {
	args, err := s.table.Encode(value)
	if err != nil {
		return serializationError("encode "+s.table.Name, err)
	}
	res, err := s.db.ExecContext(ctx, s.updateSQL, append(args, id)...)
	if err != nil {
		return ioError("update "+s.table.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ioError("update "+s.table.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: %w", s.table.Name, id, ErrUnknownID)
	}
	return nil
}

func (s *SQLStore[T]) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.deleteSQL, id)
	if err != nil {
		return ioError("delete "+s.table.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ioError("delete "+s.table.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", s.table.Name, id, ErrUnknownID)
	}
	return nil
}

// scanRecord decodes one id-prefixed row from a multi-row select: the id
// column is read first, the remaining columns go to the table decoder
// through a shifted scanner.
func scanRecord[T any](rows *sql.Rows, table Table[T]) (Record[T], error) {
	var id string
	value, err := table.Decode(shiftedScanner{inner: rows, id: &id})
	if err != nil {
		return Record[T]{}, serializationError("decode "+table.Name, err)
	}
	return Record[T]{ID: id, Value: value}, nil
}

type shiftedScanner struct {
	inner Scanner
	id    *string
}

func (s shiftedScanner) Scan(dest ...any) error {
	return s.inner.Scan(append([]any{s.id}, dest...)...)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
