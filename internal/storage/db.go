package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // Register SQLite driver
	"github.com/sirupsen/logrus"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned when a row addressed by id does not exist
var ErrNotFound = errors.New("not found")

// Store provides registry persistence
type Store struct {
	db     *sql.DB
	driver string
	dsn    string
	now    func() time.Time
}

// NewStore opens a SQLite store at dbPath
func NewStore(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open initializes a store for the given driver and data source
func Open(driver, dsn string) (*Store, error) {
	if _, ok := Migrations[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q (expected %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite serializes writers; a single connection also keeps :memory: databases coherent
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{
		db:     db,
		driver: driver,
		dsn:    dsn,
		now:    time.Now,
	}

	if err := store.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database connection after init error")
		}
		return nil, err
	}

	logrus.WithField("driver", driver).Info("Initialized registry database")
	return store, nil
}

// initSchema applies all pending migrations
func (s *Store) initSchema() error {
	ctx := context.Background()

	currentVersion := 0
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	_ = row.Scan(&currentVersion) // schema_version does not exist before the first migration

	for _, migration := range Migrations[s.driver] {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.WithField("version", migration.Version).Info("Applying schema migration")

		if _, err := s.db.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to apply migration v%d: %w", migration.Version, err)
		}

		if _, err := s.db.ExecContext(ctx,
			s.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			migration.Version,
			s.now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", migration.Version, err)
		}

		currentVersion = migration.Version
	}

	return nil
}

// Driver returns the database driver name
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
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

// withTx runs fn in a transaction and commits when it returns nil
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Helper functions

func closeRows(rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		logrus.WithError(closeErr).Warn("Failed to close database rows")
	}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
