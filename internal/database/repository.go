package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
)

// upserter is the contract SafeUpsert needs from a repository: how to derive the
// business key of a record, look it up and insert the record.
type upserter[K comparable, R any] interface {
	table() string
	key(ctx context.Context, rec R) (K, error)
	Exists(ctx context.Context, key K) (models.Existence, error)
	Insert(ctx context.Context, rec R) (int64, error)
}

// safeUpsert inserts rec unless a row with the same business key already
// exists. It reports whether a row was written. The check and the insert run
// under the store's key lock, and a conflicting insert that lost the race is
// treated as already present.
func safeUpsert[K comparable, R any](ctx context.Context, s *Store, repo upserter[K, R], rec R) (bool, error) {
	key, err := repo.key(ctx, rec)
	if err != nil {
		return false, err
	}
	keyStr := fmt.Sprint(key)

	ctx, unlock, err := s.locker.Lock(ctx, repo.table(), keyStr)
	if err != nil {
		return false, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: repo.table(), Key: keyStr, Message: "unable to lock business key", Err: err})
	}
	defer unlock()

	existence, err := repo.Exists(ctx, key)
	if err != nil {
		return false, err
	}

	switch existence {
	case models.Found:
		return false, nil
	case models.Absent:
		if _, err := repo.Insert(ctx, rec); err != nil {
			if errors.Is(err, models.ErrExistingEntry) {
				s.log.Info("Entry added concurrently, skipping", zap.String("table", repo.table()), zap.String("key", keyStr))
				return false, nil
			}
			return false, err
		}
		return true, nil
	default:
		return false, s.log.Fail(&models.AppError{Kind: models.KindLogic, Table: repo.table(), Key: keyStr, Message: fmt.Sprintf("unexpected existence state %s", existence)})
	}
}

// selectKeys runs a single-column lookup on its own session.
func selectKeys[K any](ctx context.Context, s *Store, table, query string, args ...any) ([]K, error) {
	var results []K
	err := s.withSession(ctx, table, func(conn *sql.Conn) error {
		var err error
		results, err = scanColumn[K](ctx, s, conn, table, query, args...)
		return err
	})
	return results, err
}

func scanColumn[K any](ctx context.Context, s *Store, q queryer, table, query string, args ...any) ([]K, error) {
	s.log.Query(query, args...)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "error executing query", Err: err})
	}
	defer rows.Close()

	var results []K
	for rows.Next() {
		var v K
		if err := rows.Scan(&v); err != nil {
			return nil, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "error scanning row", Err: err})
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "error reading rows", Err: err})
	}
	return results, nil
}

// classify turns the rows matching a business key into the tri-state result.
// On error the returned state is meaningless and callers must check err first.
func classify[K comparable](s *Store, table string, key K, results []K) (models.Existence, error) {
	keyStr := fmt.Sprint(key)
	switch {
	case len(results) == 0:
		s.log.Info("No existing entry", zap.String("table", table), zap.String("key", keyStr))
		return models.Absent, nil
	case len(results) > 1:
		err := s.log.Fail(&models.AppError{
			Kind:    models.KindDuplicateEntry,
			Table:   table,
			Key:     keyStr,
			Message: fmt.Sprintf("%d entries share the same key", len(results)),
		})
		return models.Ambiguous, err
	case results[0] == key:
		s.log.Info("Existing entry found", zap.String("table", table), zap.String("key", keyStr))
		return models.Found, nil
	default:
		err := s.log.Fail(&models.AppError{
			Kind:    models.KindLogic,
			Table:   table,
			Key:     keyStr,
			Message: fmt.Sprintf("lookup returned key %v", results[0]),
		})
		return models.Absent, err
	}
}

// insertRow runs an INSERT ... ON CONFLICT DO NOTHING RETURNING id inside tx.
// An empty result means the business key was already present.
func insertRow(ctx context.Context, s *Store, tx *sql.Tx, table, key, fileName, query string, args ...any) (int64, error) {
	s.log.Query(query, args...)

	var id int64
	err := tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows), err != nil && isUniqueViolation(err):
		return 0, s.log.Fail(&models.AppError{
			Kind:     models.KindExistingEntry,
			Table:    table,
			Key:      key,
			FileName: fileName,
			Message:  "entry already exists",
		})
	case err != nil:
		return 0, err
	}
	return id, nil
}

func (s *Store) insert(ctx context.Context, table, key, fileName string, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	s.log.Info("Adding entry", zap.String("table", table), zap.String("key", key))

	var id int64
	err := s.withTx(ctx, table, func(err error) *models.AppError {
		return &models.AppError{Kind: models.KindEntry, Table: table, Key: key, FileName: fileName, Message: "unable to add entry, database rolled back", Err: err}
	}, func(tx *sql.Tx) error {
		var err error
		id, err = fn(tx)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("Entry added", zap.String("table", table), zap.String("key", key), zap.Int64("id", id))
	return id, nil
}

// delete removes the rows matching key and reports how many were removed.
// Dependent rows in other tables are left untouched.
func (s *Store) delete(ctx context.Context, table, key, query string, arg any) (int64, error) {
	var affected int64
	err := s.withTx(ctx, table, func(err error) *models.AppError {
		return &models.AppError{Kind: models.KindDelete, Table: table, Key: key, Message: "unable to delete entry, database rolled back", Err: err}
	}, func(tx *sql.Tx) error {
		s.log.Query(query, arg)
		res, err := tx.ExecContext(ctx, query, arg)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Warn("DELETED entry", zap.String("table", table), zap.String("key", key), zap.Int64("rows", affected))
	return affected, nil
}

// resolveExperimentID looks up the surrogate id for a creation timestamp.
func resolveExperimentID(ctx context.Context, s *Store, q queryer, timestamp, table, fileName string) (int64, error) {
	ids, err := scanColumn[int64](ctx, s, q, TableExperiment,
		`SELECT exp_metadata_id FROM exp_metadata WHERE exp_timestamp = $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return exactlyOne(s, ids, table, timestamp, fileName, "parent experiment")
}

func exactlyOne[T any](s *Store, results []T, table, key, fileName, what string) (T, error) {
	var zero T
	switch len(results) {
	case 0:
		return zero, s.log.Fail(&models.AppError{Kind: models.KindNotFound, Table: table, Key: key, FileName: fileName, Message: what + " not found"})
	case 1:
		return results[0], nil
	default:
		return zero, s.log.Fail(&models.AppError{Kind: models.KindDuplicateEntry, Table: table, Key: key, FileName: fileName, Message: fmt.Sprintf("%s matched %d entries", what, len(results))})
	}
}

func nullString(valid bool, v string) sql.NullString {
	return sql.NullString{String: v, Valid: valid}
}

func nullInt(valid bool, v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: valid}
}
