package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/ordersync-backend/internal/domain/errs"
)

// Storage provides SQL database access (SQLite or PostgreSQL).
// It implements the Repository interface.
type Storage struct {
	db      *sqlx.DB
	dialect dialect
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// dialect captures the DDL differences between the supported drivers
type dialect struct {
	name      string
	autoID    string
	money     string
	timestamp string
}

var (
	sqliteDialect = dialect{
		name:      "sqlite3",
		autoID:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		money:     "TEXT",
		timestamp: "DATETIME",
	}
	postgresDialect = dialect{
		name:      "postgres",
		autoID:    "BIGSERIAL PRIMARY KEY",
		money:     "NUMERIC(14,2)",
		timestamp: "TIMESTAMPTZ",
	}
)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return Open("sqlite3", dbPath)
}

// Open connects to the given driver ("sqlite3" or "postgres") and runs
// pending migrations.
func Open(driver, dsn string) (*Storage, error) {
	var d dialect
	switch driver {
	case "", "sqlite3", "sqlite":
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case "postgres":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}

	db, err := sqlx.Connect(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}

	s := &Storage{db: db, dialect: d}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// sqliteDSN enables foreign keys, a busy timeout and immediate write locks
// on every pooled connection.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Driver returns the SQL driver name in use
func (s *Storage) Driver() string {
	return s.dialect.name
}

// InTx runs fn inside a transaction, rolling back on error or panic
func (s *Storage) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &errs.PersistenceError{Op: "begin transaction", Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &errs.PersistenceError{Op: "commit transaction", Err: err}
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func notFound(err error, resource string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &errs.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// sqlTx implements Tx on a sqlx transaction
type sqlTx struct {
	tx *sqlx.Tx
}

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *sqlTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name: %q", name)
	}

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return &errs.PersistenceError{Op: "savepoint " + name, Err: err}
	}

	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return &errs.PersistenceError{Op: "rollback to " + name, Err: errors.Join(err, rbErr)}
		}
		_, _ = t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return &errs.PersistenceError{Op: "release " + name, Err: err}
	}
	return nil
}

func (t *sqlTx) UpsertOrder(ctx context.Context, order *ExternalOrder) (*ExternalOrder, error) {
	return upsertOrder(ctx, t.tx, order)
}

func (t *sqlTx) GetOrder(ctx context.Context, id int64) (*ExternalOrder, error) {
	return getOrder(ctx, t.tx, id)
}

func (t *sqlTx) InsertMovement(ctx context.Context, m *InventoryMovement) error {
	return insertMovement(ctx, t.tx, m)
}

func (t *sqlTx) MarkProcessed(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE external_orders SET processed = ?, processed_at = ?, updated_at = ?
		WHERE id = ? AND processed = ?`),
		true, at.UTC(), time.Now().UTC(), orderID, false)
	if err != nil {
		return false, fmt.Errorf("failed to mark order %d processed: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) ResetProcessed(ctx context.Context, orderID int64) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE external_orders SET processed = ?, processed_at = NULL, updated_at = ?
		WHERE id = ?`),
		false, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("failed to reset order %d: %w", orderID, err)
	}
	return nil
}
