package database

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

// FileRepository manages stm_files rows keyed by file name.
type FileRepository struct {
	store *Store
}

func NewFileRepository(store *Store) *FileRepository {
	return &FileRepository{store: store}
}

func (r *FileRepository) table() string { return TableFiles }

func (r *FileRepository) key(_ context.Context, rec models.FileRecord) (string, error) {
	return rec.FileName, nil
}

func (r *FileRepository) Exists(ctx context.Context, fileName string) (models.Existence, error) {
	results, err := selectKeys[string](ctx, r.store, TableFiles,
		`SELECT file_name FROM stm_files WHERE file_name = $1`, fileName)
	if err != nil {
		return models.Absent, err
	}
	return classify(r.store, TableFiles, fileName, results)
}

// Insert resolves the parent experiment from rec.CreationTimestamp and writes
// the file row in the same transaction. A missing parent fails with a not-found
// error and nothing is written.
func (r *FileRepository) Insert(ctx context.Context, rec models.FileRecord) (int64, error) {
	query := `
	INSERT INTO stm_files (exp_metadata_id, file_name, file_date, file_type, file_location)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (file_name) DO NOTHING
	RETURNING file_id`

	return r.store.insert(ctx, TableFiles, rec.FileName, rec.FileName, func(tx *sql.Tx) (int64, error) {
		expID, err := resolveExperimentID(ctx, r.store, tx, rec.CreationTimestamp, TableFiles, rec.FileName)
		if err != nil {
			return 0, err
		}
		return insertRow(ctx, r.store, tx, TableFiles, rec.FileName, rec.FileName, query,
			expID,
			rec.FileName,
			rec.FileDate,
			string(rec.FileType),
			rec.FileLocation,
		)
	})
}

func (r *FileRepository) SafeUpsert(ctx context.Context, rec models.FileRecord) (bool, error) {
	return safeUpsert[string, models.FileRecord](ctx, r.store, r, rec)
}

// Delete removes the file row only. Its type-specific metadata row is kept.
func (r *FileRepository) Delete(ctx context.Context, fileName string) (int64, error) {
	return r.store.delete(ctx, TableFiles, fileName,
		`DELETE FROM stm_files WHERE file_name = $1`, fileName)
}

// Resolve returns the file and experiment ids for a file name.
func (r *FileRepository) Resolve(ctx context.Context, fileName string) (models.FileRef, error) {
	var ref models.FileRef
	err := r.store.withSession(ctx, TableFiles, func(conn *sql.Conn) error {
		var err error
		ref, err = resolveFile(ctx, r.store, conn, fileName, TableFiles)
		return err
	})
	return ref, err
}

// CountByExperiment returns how many file rows reference the experiment id.
func (r *FileRepository) CountByExperiment(ctx context.Context, expMetadataID int64) (int64, error) {
	counts, err := selectKeys[int64](ctx, r.store, TableFiles,
		`SELECT COUNT(*) FROM stm_files WHERE exp_metadata_id = $1`, expMetadataID)
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

func resolveFile(ctx context.Context, s *Store, q queryer, fileName, table string) (models.FileRef, error) {
	query := `SELECT file_id, exp_metadata_id FROM stm_files WHERE file_name = $1`
	s.log.Query(query, fileName)

	rows, err := q.QueryContext(ctx, query, fileName)
	if err != nil {
		return models.FileRef{}, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: TableFiles, Message: "error executing query", Err: err})
	}
	defer rows.Close()

	var refs []models.FileRef
	for rows.Next() {
		var ref models.FileRef
		if err := rows.Scan(&ref.FileID, &ref.ExpMetadataID); err != nil {
			return models.FileRef{}, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: TableFiles, Message: "error scanning row", Err: err})
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return models.FileRef{}, s.log.Fail(&models.AppError{Kind: models.KindConnection, Table: TableFiles, Message: "error reading rows", Err: err})
	}

	return exactlyOne(s, refs, table, fileName, fileName, "parent file")
}

func fileIDKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
