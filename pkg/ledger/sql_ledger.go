package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL placeholder syntax and driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", d)
	}
}

// SQLLedger implements Ledger and Swapper using database/sql. Every write
// runs in a transaction together with its journal row.
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
	signer  Signer
}

// NewSQLLedger wraps an open database. signer may be nil.
func NewSQLLedger(db *sql.DB, dialect Dialect, signer Signer) *SQLLedger {
	return &SQLLedger{db: db, dialect: dialect, signer: signer}
}

// OpenSQL opens dsn with the dialect's driver and creates the schema.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string, signer Signer) (*SQLLedger, error) {
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	l := NewSQLLedger(db, dialect, signer)
	if err := l.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (s *SQLLedger) Close() error { return s.db.Close() }

// seqColumn is the self-assigning sequence key for append-only tables.
// Sequence numbers come from the database, so concurrent appenders never
// compute the same key.
func (d Dialect) seqColumn() string {
	if d == DialectPostgres {
		return "seq BIGSERIAL PRIMARY KEY"
	}
	return "seq INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS mango_refs (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS mango_snapshots (
	` + d.seqColumn() + `,
	locator TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS mango_journal (
	` + d.seqColumn() + `,
	op TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	signature TEXT NOT NULL
)`,
	}
}

// Migrate creates the ledger tables if they do not exist.
func (s *SQLLedger) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for postgres.
func (s *SQLLedger) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLLedger) getReference(ctx context.Context, q execer, name string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, s.rebind(`SELECT value FROM mango_refs WHERE name = ?`), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get ref %q: %w", name, err)
	}
	return value, nil
}

func (s *SQLLedger) GetReference(ctx context.Context, name string) (string, error) {
	return s.getReference(ctx, s.db, name)
}

func (s *SQLLedger) SetReference(ctx context.Context, name, value string) error {
	if value == "" {
		return s.DeleteReference(ctx, name)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO mango_refs (name, value) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET value = excluded.value`), name, value); err != nil {
			return fmt.Errorf("set ref %q: %w", name, err)
		}
		return s.appendJournal(ctx, tx, journalFor(name, value))
	})
}

func (s *SQLLedger) DeleteReference(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM mango_refs WHERE name = ?`), name); err != nil {
			return fmt.Errorf("delete ref %q: %w", name, err)
		}
		return s.appendJournal(ctx, tx, journalFor(name, ""))
	})
}

func (s *SQLLedger) CompareAndSwapReference(ctx context.Context, name, expected, next string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if expected == "" && next == "" {
			actual, err := s.getReference(ctx, tx, name)
			if err != nil {
				return err
			}
			if actual != "" {
				return &MismatchError{Name: name, Expected: expected, Actual: actual}
			}
			return nil
		}

		var (
			res sql.Result
			err error
		)
		switch {
		case expected == "":
			res, err = tx.ExecContext(ctx, s.rebind(
				`INSERT INTO mango_refs (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`), name, next)
		case next == "":
			res, err = tx.ExecContext(ctx, s.rebind(
				`DELETE FROM mango_refs WHERE name = ? AND value = ?`), name, expected)
		default:
			res, err = tx.ExecContext(ctx, s.rebind(
				`UPDATE mango_refs SET value = ? WHERE name = ? AND value = ?`), next, name, expected)
		}
		if err != nil {
			return fmt.Errorf("compare-and-swap ref %q: %w", name, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			actual, err := s.getReference(ctx, tx, name)
			if err != nil {
				return err
			}
			return &MismatchError{Name: name, Expected: expected, Actual: actual}
		}
		return s.appendJournal(ctx, tx, journalFor(name, next))
	})
}

func (s *SQLLedger) ListReferenceNames(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT name FROM mango_refs ORDER BY name`)
}

func (s *SQLLedger) AppendSnapshot(ctx context.Context, locator string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO mango_snapshots (locator) VALUES (?)`), locator); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
		return s.appendJournal(ctx, tx, JournalEntry{Op: OpSnapshot, Value: locator})
	})
}

func (s *SQLLedger) ListSnapshots(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT locator FROM mango_snapshots ORDER BY seq`)
}

// Journal returns every journal row, oldest first.
func (s *SQLLedger) Journal(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT op, name, value, signature FROM mango_journal ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]JournalEntry, 0)
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Op, &e.Name, &e.Value, &e.Signature); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLLedger) appendJournal(ctx context.Context, tx *sql.Tx, entry JournalEntry) error {
	entry, err := signEntry(s.signer, entry)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO mango_journal (op, name, value, signature) VALUES (?, ?, ?, ?)`),
		entry.Op, entry.Name, entry.Value, entry.Signature); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (s *SQLLedger) listStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLLedger) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}
