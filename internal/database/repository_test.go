package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = "20160415123456"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, cleanup, err := Open(ctx, string(DialectSQLite), filepath.Join(t.TempDir(), "stm.db"), LockLocal, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	require.NoError(t, store.CreateSchema(ctx))
	return store
}

func countRows(t *testing.T, store *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, store.DB().QueryRow(query, args...).Scan(&n))
	return n
}

func experimentRecord() models.ExperimentMetadata {
	return models.ExperimentMetadata{
		CreationTimestamp: testTimestamp,
		Comment: models.CommentMetadata{
			Present:   true,
			Users:     "Alice, Bob",
			Substrate: "Au(111)",
			Adsorbate: "CO",
			Prep:      "sputter-anneal",
			Notebook:  12,
			Notes:     "test run",
		},
	}
}

func fileRecord(name string, fileType models.FileType) models.FileRecord {
	return models.FileRecord{
		CreationTimestamp: testTimestamp,
		FileName:          name,
		FileDate:          testTimestamp,
		FileType:          fileType,
		FileLocation:      "/data/" + name,
	}
}

func TestExperimentRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Expect: two safe upserts with the same key to yield one row", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewExperimentRepository(store)

		inserted, err := repo.SafeUpsert(ctx, experimentRecord())
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.SafeUpsert(ctx, experimentRecord())
		require.NoError(t, err)
		assert.False(t, inserted)

		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM exp_metadata WHERE exp_timestamp = $1`, testTimestamp))
	})

	t.Run("Expect: exists to report absent then found", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewExperimentRepository(store)

		existence, err := repo.Exists(ctx, testTimestamp)
		require.NoError(t, err)
		assert.Equal(t, models.Absent, existence)

		_, err = repo.Insert(ctx, experimentRecord())
		require.NoError(t, err)

		existence, err = repo.Exists(ctx, testTimestamp)
		require.NoError(t, err)
		assert.Equal(t, models.Found, existence)
	})

	t.Run("Expect: a direct second insert to be rejected as existing", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewExperimentRepository(store)

		_, err := repo.Insert(ctx, experimentRecord())
		require.NoError(t, err)

		_, err = repo.Insert(ctx, experimentRecord())
		assert.ErrorIs(t, err, models.ErrExistingEntry)
		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM exp_metadata`))
	})

	t.Run("Expect: comment fields to be NULL without structured metadata", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewExperimentRepository(store)

		_, err := repo.Insert(ctx, models.ExperimentMetadata{CreationTimestamp: testTimestamp})
		require.NoError(t, err)

		rows, err := NewQueryService(store).Select(ctx, TableExperiment, map[string]any{"exp_timestamp": testTimestamp})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0]["exp_users"])
		assert.Nil(t, rows[0]["exp_notebook"])
	})

	t.Run("Expect: concurrent safe upserts on one key to insert once", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewExperimentRepository(store)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.SafeUpsert(ctx, experimentRecord())
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, inserted)
		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM exp_metadata`))
	})
}

func TestFileRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Expect: not found and no row when the experiment is missing", func(t *testing.T) {
		store := newTestStore(t)
		repo := NewFileRepository(store)

		_, err := repo.Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))

		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM stm_files`))
	})

	t.Run("Expect: file names to stay unique", func(t *testing.T) {
		store := newTestStore(t)
		_, err := NewExperimentRepository(store).SafeUpsert(ctx, experimentRecord())
		require.NoError(t, err)
		repo := NewFileRepository(store)

		inserted, err := repo.SafeUpsert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.SafeUpsert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		require.NoError(t, err)
		assert.False(t, inserted)

		_, err = repo.Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		assert.ErrorIs(t, err, models.ErrExistingEntry)

		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM stm_files WHERE file_name = $1`, "a.Z_flat"))
	})

	t.Run("Expect: resolve to return both parent ids", func(t *testing.T) {
		store := newTestStore(t)
		expID, err := NewExperimentRepository(store).Insert(ctx, experimentRecord())
		require.NoError(t, err)
		repo := NewFileRepository(store)
		fileID, err := repo.Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		require.NoError(t, err)

		ref, err := repo.Resolve(ctx, "a.Z_flat")

		require.NoError(t, err)
		assert.Equal(t, models.FileRef{FileID: fileID, ExpMetadataID: expID}, ref)

		_, err = repo.Resolve(ctx, "missing.Z_flat")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("Expect: an invalid file type to roll back with an entry error", func(t *testing.T) {
		store := newTestStore(t)
		_, err := NewExperimentRepository(store).Insert(ctx, experimentRecord())
		require.NoError(t, err)

		_, err = NewFileRepository(store).Insert(ctx, fileRecord("a.bin", models.FileType("raw")))

		assert.ErrorIs(t, err, models.ErrEntry)
		assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM stm_files`))
	})
}

func TestMetadataRepositories(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, name string, fileType models.FileType) (*Store, int64) {
		store := newTestStore(t)
		_, err := NewExperimentRepository(store).Insert(ctx, experimentRecord())
		require.NoError(t, err)
		fileID, err := NewFileRepository(store).Insert(ctx, fileRecord(name, fileType))
		require.NoError(t, err)
		return store, fileID
	}

	t.Run("Expect: topo metadata to be keyed by its file id", func(t *testing.T) {
		store, fileID := setup(t, "a.Z_flat", models.FileTypeTopo)
		repo := NewTopoRepository(store)
		rec := models.TopoMetadata{
			MetadataParent: models.MetadataParent{FileName: "a.Z_flat"},
			VGap:           1.5, ISet: 2e-10, XRes: 256, YRes: 256, XInc: 0.1, YInc: 0.1, XYUnit: "nm",
		}

		inserted, err := repo.SafeUpsert(ctx, rec)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repo.SafeUpsert(ctx, rec)
		require.NoError(t, err)
		assert.False(t, inserted)

		existence, err := repo.Exists(ctx, fileID)
		require.NoError(t, err)
		assert.Equal(t, models.Found, existence)
		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM stm_topo_metadata WHERE file_id = $1`, fileID))
	})

	t.Run("Expect: spec and cits metadata to be written to their tables", func(t *testing.T) {
		store, _ := setup(t, "b.I(V)_flat", models.FileTypeIVCurve)
		_, err := NewFileRepository(store).Insert(ctx, fileRecord("c.I(V)_flat", models.FileTypeIVMap))
		require.NoError(t, err)

		_, err = NewSpecRepository(store).SafeUpsert(ctx, models.SpecMetadata{
			MetadataParent: models.MetadataParent{FileName: "b.I(V)_flat"},
			VGap:           0.5, VStart: -1, VRes: 200, VInc: 0.01, VUnit: "V", XOffset: 1, YOffset: 2,
		})
		require.NoError(t, err)

		_, err = NewCitsRepository(store).SafeUpsert(ctx, models.CitsMetadata{
			MetadataParent: models.MetadataParent{FileName: "c.I(V)_flat"},
			XRes:           64, YRes: 64, VRes: 100, VUnit: "V", XYUnit: "nm",
		})
		require.NoError(t, err)

		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM stm_spec_metadata`))
		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM stm_cits_metadata`))
	})

	t.Run("Expect: not found when the parent file is missing", func(t *testing.T) {
		store := newTestStore(t)

		_, err := NewTopoRepository(store).SafeUpsert(ctx, models.TopoMetadata{
			MetadataParent: models.MetadataParent{FileName: "missing.Z_flat"},
		})

		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM stm_topo_metadata`))
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Expect: deleting an experiment to leave its files as orphans", func(t *testing.T) {
		store := newTestStore(t)
		experiments := NewExperimentRepository(store)
		_, err := experiments.Insert(ctx, experimentRecord())
		require.NoError(t, err)
		_, err = NewFileRepository(store).Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		require.NoError(t, err)

		removed, err := experiments.Delete(ctx, testTimestamp)

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, 0, countRows(t, store, `SELECT COUNT(*) FROM exp_metadata`))
		assert.Equal(t, 1, countRows(t, store, `SELECT COUNT(*) FROM stm_files WHERE file_name = $1`, "a.Z_flat"))

		orphans, err := NewQueryService(store).Orphans(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.Z_flat"}, orphans.Files)
	})

	t.Run("Expect: deleting a file to leave its metadata in place", func(t *testing.T) {
		store := newTestStore(t)
		_, err := NewExperimentRepository(store).Insert(ctx, experimentRecord())
		require.NoError(t, err)
		files := NewFileRepository(store)
		fileID, err := files.Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))
		require.NoError(t, err)
		_, err = NewTopoRepository(store).Insert(ctx, models.TopoMetadata{MetadataParent: models.MetadataParent{FileName: "a.Z_flat"}})
		require.NoError(t, err)

		_, err = files.Delete(ctx, "a.Z_flat")
		require.NoError(t, err)

		orphans, err := NewQueryService(store).Orphans(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{fileID}, orphans.Metadata[TableTopo])
		assert.False(t, orphans.Empty())
	})

	t.Run("Expect: deleting a missing key to remove nothing", func(t *testing.T) {
		store := newTestStore(t)

		removed, err := NewTopoRepository(store).Delete(ctx, 42)

		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})
}

func TestAmbiguousExistence(t *testing.T) {
	ctx := context.Background()
	store, cleanup, err := Open(ctx, string(DialectSQLite), filepath.Join(t.TempDir(), "legacy.db"), LockNone, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(cleanup)

	// A legacy table created before the unique constraint existed.
	_, err = store.DB().Exec(`
	CREATE TABLE exp_metadata (
		exp_metadata_id INTEGER PRIMARY KEY AUTOINCREMENT,
		exp_timestamp VARCHAR(14) NOT NULL,
		exp_users TEXT, exp_substrate TEXT, exp_adsorbate TEXT, exp_prep TEXT,
		exp_notebook INTEGER, exp_notes TEXT
	)`)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = store.DB().Exec(`INSERT INTO exp_metadata (exp_timestamp) VALUES ($1)`, testTimestamp)
		require.NoError(t, err)
	}
	repo := NewExperimentRepository(store)

	t.Run("Expect: duplicated keys to be reported as ambiguous", func(t *testing.T) {
		existence, err := repo.Exists(ctx, testTimestamp)

		assert.Equal(t, models.Ambiguous, existence)
		assert.ErrorIs(t, err, models.ErrDuplicateEntry)
	})

	t.Run("Expect: safe upsert to propagate the integrity error", func(t *testing.T) {
		inserted, err := repo.SafeUpsert(ctx, experimentRecord())

		assert.False(t, inserted)
		assert.ErrorIs(t, err, models.ErrDuplicateEntry)
		assert.Equal(t, 2, countRows(t, store, `SELECT COUNT(*) FROM exp_metadata`))
	})

	t.Run("Expect: parent resolution to refuse ambiguous parents", func(t *testing.T) {
		_, err := store.DB().Exec(fmtDDL(store, TableFiles))
		require.NoError(t, err)

		_, err = NewFileRepository(store).Insert(ctx, fileRecord("a.Z_flat", models.FileTypeTopo))

		assert.ErrorIs(t, err, models.ErrDuplicateEntry)
	})
}

func TestClassify(t *testing.T) {
	store := NewStore(nil, DialectSQLite, nil, nil)

	existence, err := classify(store, TableFiles, "a", []string{"b"})

	assert.Equal(t, models.Absent, existence)
	assert.ErrorIs(t, err, models.ErrLogic)
}

func TestOpen(t *testing.T) {
	t.Run("Expect: unknown drivers to be rejected", func(t *testing.T) {
		_, _, err := Open(context.Background(), "oracle", "x", LockNone, nil)
		assert.Error(t, err)
	})

	t.Run("Expect: busy timeout pragma to be appended once", func(t *testing.T) {
		assert.Equal(t, "a.db?_pragma=busy_timeout(5000)", sqliteDSN("a.db"))
		assert.Equal(t, "a.db?mode=rw&_pragma=busy_timeout(5000)", sqliteDSN("a.db?mode=rw"))
		assert.Equal(t, "a.db?_pragma=busy_timeout(100)", sqliteDSN("a.db?_pragma=busy_timeout(100)"))
	})
}

func fmtDDL(store *Store, table string) string {
	for _, def := range schemaTables {
		if def.name == table {
			return fmt.Sprintf(def.ddl, store.primaryKeyType())
		}
	}
	return ""
}
