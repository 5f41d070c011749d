// Package sqlstore is the relational clipboard.Repository. The same queries
// run on PostgreSQL (pgx or lib/pq) and SQLite; the share_key UNIQUE
// constraint is what keeps two items off one key.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pin-clipboard/internal/clipboard"
	"pin-clipboard/internal/db"
)

// Dialect selects placeholder style and locking clauses.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case db.DriverPgx, db.DriverPostgres:
		return Postgres, nil
	case db.DriverSQLite:
		return SQLite, nil
	}
	return 0, fmt.Errorf("no dialect for driver %q", driver)
}

// replaceAttempts bounds Replace retries lost to a concurrent writer
// claiming the same share key.
const replaceAttempts = 5

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ clipboard.Repository = (*Repository)(nil)

// New returns a repository over an already migrated database.
func New(conn *sql.DB, d Dialect) *Repository {
	return &Repository{db: conn, dialect: d}
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (r *Repository) bind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Repository) forUpdate() string {
	if r.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// isShareKeyViolation reports whether err is a unique violation on
// share_key. Other constraint failures, a primary key collision included,
// are not PIN conflicts.
func isShareKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "share_key")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, "share_key")
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		msg := sqliteErr.Error()
		return (sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || strings.Contains(msg, "UNIQUE constraint failed")) &&
			strings.Contains(msg, "clipboard_items.share_key")
	}
	return false
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

const itemColumns = `id, kind, content, pin, created_at, expires_at, access_count, is_active`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (clipboard.Item, error) {
	var (
		it               clipboard.Item
		kind             string
		pin              sql.NullString
		created, expires int64
	)
	if err := s.Scan(&it.ID, &kind, &it.Content, &pin, &created, &expires, &it.AccessCount, &it.IsActive); err != nil {
		return clipboard.Item{}, err
	}
	it.Kind = clipboard.Kind(kind)
	it.Pin = pin.String
	it.CreatedAt = fromMillis(created)
	it.ExpiresAt = fromMillis(expires)
	return it, nil
}

func (r *Repository) loadFiles(ctx context.Context, q queryer, itemID string) ([]clipboard.Attachment, error) {
	rows, err := q.QueryContext(ctx, r.bind(`
		SELECT original_name, storage_ref, size, mime_type
		FROM clipboard_files WHERE item_id = ? ORDER BY position`), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []clipboard.Attachment
	for rows.Next() {
		a := clipboard.Attachment{ItemID: itemID}
		if err := rows.Scan(&a.OriginalName, &a.StorageRef, &a.Size, &a.MimeType); err != nil {
			return nil, err
		}
		files = append(files, a)
	}
	return files, rows.Err()
}

// loadBy reads one item and its attachments. suffix is appended to the
// item query (a locking clause inside transactions).
func (r *Repository) loadBy(ctx context.Context, q queryer, column, value, suffix string) (clipboard.Item, error) {
	row := q.QueryRowContext(ctx, r.bind(
		`SELECT `+itemColumns+` FROM clipboard_items WHERE `+column+` = ?`+suffix), value)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return clipboard.Item{}, clipboard.ErrNotFound
	}
	if err != nil {
		return clipboard.Item{}, err
	}
	if it.Files, err = r.loadFiles(ctx, q, it.ID); err != nil {
		return clipboard.Item{}, err
	}
	return it, nil
}

func (r *Repository) insertTx(ctx context.Context, tx *sql.Tx, item clipboard.Item) error {
	var pin any
	if item.Pin != "" {
		pin = item.Pin
	}
	_, err := tx.ExecContext(ctx, r.bind(`
		INSERT INTO clipboard_items (id, kind, content, pin, share_key, created_at, expires_at, access_count, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, string(item.Kind), item.Content, pin, item.ShareKey(),
		toMillis(item.CreatedAt), toMillis(item.ExpiresAt), item.AccessCount, item.IsActive)
	if err != nil {
		if isShareKeyViolation(err) {
			return clipboard.ErrDuplicatePin
		}
		return err
	}

	for i, f := range item.Files {
		if _, err := tx.ExecContext(ctx, r.bind(`
			INSERT INTO clipboard_files (item_id, position, original_name, storage_ref, size, mime_type)
			VALUES (?, ?, ?, ?, ?, ?)`),
			item.ID, i, f.OriginalName, f.StorageRef, f.Size, f.MimeType); err != nil {
			return fmt.Errorf("insert attachment %d: %w", i, err)
		}
	}
	return nil
}

// deleteTx removes an item's attachment rows and then the item row.
func (r *Repository) deleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, r.bind(`DELETE FROM clipboard_files WHERE item_id = ?`), id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, r.bind(`DELETE FROM clipboard_items WHERE id = ?`), id)
	return err
}

// inTx runs fn in a transaction, committing on success.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Repository) Insert(ctx context.Context, item clipboard.Item) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return r.insertTx(ctx, tx, item)
	})
	if err != nil && !errors.Is(err, clipboard.ErrDuplicatePin) && isShareKeyViolation(err) {
		// commit-time constraint failure
		return clipboard.ErrDuplicatePin
	}
	return err
}

func (r *Repository) Replace(ctx context.Context, item clipboard.Item) (*clipboard.Item, error) {
	key := item.ShareKey()
	for attempt := 1; ; attempt++ {
		var prev *clipboard.Item
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			old, err := r.loadBy(ctx, tx, "share_key", key, r.forUpdate())
			switch {
			case errors.Is(err, clipboard.ErrNotFound):
			case err != nil:
				return err
			default:
				if err := r.deleteTx(ctx, tx, old.ID); err != nil {
					return err
				}
				prev = &old
			}
			return r.insertTx(ctx, tx, item)
		})
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, clipboard.ErrDuplicatePin) || attempt >= replaceAttempts {
			return nil, fmt.Errorf("replace %s: %w", key, err)
		}
	}
}

func (r *Repository) GetByKey(ctx context.Context, key string) (clipboard.Item, error) {
	return r.loadBy(ctx, r.db, "share_key", key, "")
}

func (r *Repository) GetByID(ctx context.Context, id string) (clipboard.Item, error) {
	return r.loadBy(ctx, r.db, "id", id, "")
}

func (r *Repository) Delete(ctx context.Context, id string) (*clipboard.Item, error) {
	var removed *clipboard.Item
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		it, err := r.loadBy(ctx, tx, "id", id, r.forUpdate())
		if errors.Is(err, clipboard.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.deleteTx(ctx, tx, id); err != nil {
			return err
		}
		removed = &it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *Repository) IncrementAccess(ctx context.Context, id string) (clipboard.Item, error) {
	var snap clipboard.Item
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.bind(
			`UPDATE clipboard_items SET access_count = access_count + 1 WHERE id = ?`), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return clipboard.ErrNotFound
		}
		snap, err = r.loadBy(ctx, tx, "id", id, "")
		return err
	})
	if err != nil {
		return clipboard.Item{}, err
	}
	return snap, nil
}

// List returns every item oldest first.
func (r *Repository) List(ctx context.Context) ([]clipboard.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM clipboard_items ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}

	var items []clipboard.Item
	index := map[string]int{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	frows, err := r.db.QueryContext(ctx, `
		SELECT item_id, original_name, storage_ref, size, mime_type
		FROM clipboard_files ORDER BY item_id, position`)
	if err != nil {
		return nil, err
	}
	defer frows.Close()
	for frows.Next() {
		var a clipboard.Attachment
		if err := frows.Scan(&a.ItemID, &a.OriginalName, &a.StorageRef, &a.Size, &a.MimeType); err != nil {
			return nil, err
		}
		// files of an item inserted between the two queries are skipped
		if i, ok := index[a.ItemID]; ok {
			items[i].Files = append(items[i].Files, a)
		}
	}
	return items, frows.Err()
}
