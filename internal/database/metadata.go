package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

// metadataTable describes one of the type-specific metadata tables. Each row
// hangs off a file and carries the file's experiment id as well.
type metadataTable[R any] struct {
	name     string
	idColumn string
	columns  []string
	parent   func(R) string
	values   func(R) []any
}

var topoTable = metadataTable[models.TopoMetadata]{
	name:     TableTopo,
	idColumn: "topo_metadata_id",
	columns:  []string{"v_gap", "i_set", "x_res", "y_res", "x_inc", "y_inc", "xy_unit"},
	parent:   func(m models.TopoMetadata) string { return m.ParentFileName() },
	values: func(m models.TopoMetadata) []any {
		return []any{m.VGap, m.ISet, m.XRes, m.YRes, m.XInc, m.YInc, m.XYUnit}
	},
}

var specTable = metadataTable[models.SpecMetadata]{
	name:     TableSpec,
	idColumn: "spec_metadata_id",
	columns:  []string{"v_gap", "v_start", "i_set", "v_res", "v_inc", "v_unit", "x_offset", "y_offset"},
	parent:   func(m models.SpecMetadata) string { return m.ParentFileName() },
	values: func(m models.SpecMetadata) []any {
		return []any{m.VGap, m.VStart, m.ISet, m.VRes, m.VInc, m.VUnit, m.XOffset, m.YOffset}
	},
}

var citsTable = metadataTable[models.CitsMetadata]{
	name:     TableCits,
	idColumn: "cits_metadata_id",
	columns:  []string{"v_gap", "i_set", "x_res", "y_res", "x_inc", "y_inc", "xy_unit", "v_start", "v_res", "v_inc", "v_unit"},
	parent:   func(m models.CitsMetadata) string { return m.ParentFileName() },
	values: func(m models.CitsMetadata) []any {
		return []any{m.VGap, m.ISet, m.XRes, m.YRes, m.XInc, m.YInc, m.XYUnit, m.VStart, m.VRes, m.VInc, m.VUnit}
	},
}

func (t metadataTable[R]) insertQuery() string {
	columns := append([]string{"exp_metadata_id", "file_id"}, t.columns...)
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(`
	INSERT INTO %s (%s)
	VALUES (%s)
	ON CONFLICT (file_id) DO NOTHING
	RETURNING %s`, t.name, strings.Join(columns, ", "), strings.Join(placeholders, ", "), t.idColumn)
}

// MetadataRepository manages one metadata table keyed by file_id.
type MetadataRepository[R any] struct {
	store *Store
	def   metadataTable[R]
}

type (
	TopoRepository = MetadataRepository[models.TopoMetadata]
	SpecRepository = MetadataRepository[models.SpecMetadata]
	CitsRepository = MetadataRepository[models.CitsMetadata]
)

func NewTopoRepository(store *Store) *TopoRepository {
	return &TopoRepository{store: store, def: topoTable}
}

func NewSpecRepository(store *Store) *SpecRepository {
	return &SpecRepository{store: store, def: specTable}
}

func NewCitsRepository(store *Store) *CitsRepository {
	return &CitsRepository{store: store, def: citsTable}
}

func (r *MetadataRepository[R]) table() string { return r.def.name }

// key resolves the parent file, whose id is the business key of a metadata row.
func (r *MetadataRepository[R]) key(ctx context.Context, rec R) (int64, error) {
	var ref models.FileRef
	err := r.store.withSession(ctx, r.def.name, func(conn *sql.Conn) error {
		var err error
		ref, err = resolveFile(ctx, r.store, conn, r.def.parent(rec), r.def.name)
		return err
	})
	return ref.FileID, err
}

func (r *MetadataRepository[R]) Exists(ctx context.Context, fileID int64) (models.Existence, error) {
	query := fmt.Sprintf(`SELECT file_id FROM %s WHERE file_id = $1`, r.def.name)
	results, err := selectKeys[int64](ctx, r.store, r.def.name, query, fileID)
	if err != nil {
		return models.Absent, err
	}
	return classify(r.store, r.def.name, fileID, results)
}

// Insert resolves file_id and exp_metadata_id from the parent file name and
// writes the row in the same transaction.
func (r *MetadataRepository[R]) Insert(ctx context.Context, rec R) (int64, error) {
	fileName := r.def.parent(rec)
	query := r.def.insertQuery()

	return r.store.insert(ctx, r.def.name, fileName, fileName, func(tx *sql.Tx) (int64, error) {
		ref, err := resolveFile(ctx, r.store, tx, fileName, r.def.name)
		if err != nil {
			return 0, err
		}
		args := append([]any{ref.ExpMetadataID, ref.FileID}, r.def.values(rec)...)
		return insertRow(ctx, r.store, tx, r.def.name, fileIDKey(ref.FileID), fileName, query, args...)
	})
}

func (r *MetadataRepository[R]) SafeUpsert(ctx context.Context, rec R) (bool, error) {
	return safeUpsert[int64, R](ctx, r.store, r, rec)
}

func (r *MetadataRepository[R]) Delete(ctx context.Context, fileID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_id = $1`, r.def.name)
	return r.store.delete(ctx, r.def.name, fileIDKey(fileID), query, fileID)
}

func (r *MetadataRepository[R]) Table() string { return r.def.name }
