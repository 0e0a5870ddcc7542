package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	return dbpool, nil
}

// Store is the pool handle shared by the repositories. Every repository call
// checks out its own session from it and returns the session before exiting.
type Store struct {
	db      *sql.DB
	dialect Dialect
	locker  KeyLocker
	log     *logging.Logger
}

func NewStore(db *sql.DB, dialect Dialect, locker KeyLocker, logger *logging.Logger) *Store {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{db: db, dialect: dialect, locker: locker, log: logger}
}

// Open connects to the configured backend and returns the store together with
// a cleanup function that releases the pool.
func Open(ctx context.Context, driver, dsn, lockMode string, logger *logging.Logger) (*Store, func(), error) {
	var (
		db      *sql.DB
		cleanup func()
		dialect Dialect
	)

	switch Dialect(driver) {
	case DialectPostgres:
		pool, err := ConnectDB(dsn)
		if err != nil {
			return nil, nil, &models.AppError{Kind: models.KindConnection, Message: "unable to connect to database", Err: err}
		}
		db = stdlib.OpenDBFromPool(pool)
		cleanup = func() {
			_ = db.Close()
			pool.Close()
		}
		dialect = DialectPostgres
	case DialectSQLite:
		var err error
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, nil, &models.AppError{Kind: models.KindConnection, Message: "unable to open sqlite database", Err: err}
		}
		cleanup = func() { _ = db.Close() }
		dialect = DialectSQLite
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		cleanup()
		return nil, nil, &models.AppError{Kind: models.KindConnection, Message: "unable to connect to database", Err: err}
	}

	locker, err := NewLocker(lockMode, db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return NewStore(db, dialect, locker, logger), cleanup, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Logger() *logging.Logger { return s.log }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// withSession checks out a dedicated session, runs fn and always releases it.
// A session pinned to ctx by a key lock is used as is and left open.
func (s *Store) withSession(ctx context.Context, table string, fn func(conn *sql.Conn) error) error {
	if conn := pinnedSession(ctx); conn != nil {
		return fn(conn)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "unable to connect to database", Err: err})
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			s.log.Warn("failed to release database session", zap.String("table", table), zap.Error(cerr))
		}
	}()
	return fn(conn)
}

// withTx runs fn in a transaction on its own session. On failure the
// transaction is rolled back before the session is released. Errors that are
// already domain errors pass through; anything else is wrapped by wrap and logged.
func (s *Store) withTx(ctx context.Context, table string, wrap func(error) *models.AppError, fn func(tx *sql.Tx) error) error {
	return s.withSession(ctx, table, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return s.log.Fail(wrap(fmt.Errorf("error beginning transaction: %w", err)))
		}

		if err := fn(tx); err != nil {
			if rx := tx.Rollback(); rx != nil {
				s.log.Error("Error rolling back transaction", zap.String("table", table), zap.Error(rx))
			}
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return err
			}
			return s.log.Fail(wrap(err))
		}

		if err := tx.Commit(); err != nil {
			return s.log.Fail(wrap(fmt.Errorf("error committing transaction: %w", err)))
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
