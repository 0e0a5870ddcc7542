package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
)

type ColumnKind int

const (
	ColumnText ColumnKind = iota
	ColumnInt
	ColumnFloat
)

type Column struct {
	Name string
	Kind ColumnKind
}

// Tables lists the queryable columns of every table, in table order.
var Tables = map[string][]Column{
	TableExperiment: {
		{"exp_metadata_id", ColumnInt},
		{"exp_timestamp", ColumnText},
		{"exp_users", ColumnText},
		{"exp_substrate", ColumnText},
		{"exp_adsorbate", ColumnText},
		{"exp_prep", ColumnText},
		{"exp_notebook", ColumnInt},
		{"exp_notes", ColumnText},
	},
	TableFiles: {
		{"file_id", ColumnInt},
		{"exp_metadata_id", ColumnInt},
		{"file_name", ColumnText},
		{"file_date", ColumnText},
		{"file_type", ColumnText},
		{"file_location", ColumnText},
	},
	TableTopo: {
		{"topo_metadata_id", ColumnInt},
		{"exp_metadata_id", ColumnInt},
		{"file_id", ColumnInt},
		{"v_gap", ColumnFloat},
		{"i_set", ColumnFloat},
		{"x_res", ColumnInt},
		{"y_res", ColumnInt},
		{"x_inc", ColumnFloat},
		{"y_inc", ColumnFloat},
		{"xy_unit", ColumnText},
	},
	TableSpec: {
		{"spec_metadata_id", ColumnInt},
		{"exp_metadata_id", ColumnInt},
		{"file_id", ColumnInt},
		{"v_gap", ColumnFloat},
		{"v_start", ColumnFloat},
		{"i_set", ColumnFloat},
		{"v_res", ColumnInt},
		{"v_inc", ColumnFloat},
		{"v_unit", ColumnText},
		{"x_offset", ColumnFloat},
		{"y_offset", ColumnFloat},
	},
	TableCits: {
		{"cits_metadata_id", ColumnInt},
		{"exp_metadata_id", ColumnInt},
		{"file_id", ColumnInt},
		{"v_gap", ColumnFloat},
		{"i_set", ColumnFloat},
		{"x_res", ColumnInt},
		{"y_res", ColumnInt},
		{"x_inc", ColumnFloat},
		{"y_inc", ColumnFloat},
		{"xy_unit", ColumnText},
		{"v_start", ColumnFloat},
		{"v_res", ColumnInt},
		{"v_inc", ColumnFloat},
		{"v_unit", ColumnText},
	},
}

func lookupColumn(table, name string) (Column, bool) {
	for _, c := range Tables[table] {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// BuildSelect renders a SELECT over table with one equality clause per non-nil
// field, joined by AND. Floats are compared after ROUND on both sides, strings
// are quoted and anything else is compared as is. Clauses follow the table's
// column order so the same fields always yield the same statement.
func BuildSelect(table string, fields map[string]any) (string, error) {
	columns, ok := Tables[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	for name := range fields {
		if _, ok := lookupColumn(table, name); !ok {
			return "", fmt.Errorf("unknown column %q for table %s", name, table)
		}
	}

	var clauses []string
	for _, column := range columns {
		value, ok := fields[column.Name]
		if !ok {
			continue
		}
		if clause, ok := whereClause(column.Name, value); ok {
			clauses = append(clauses, clause)
		}
	}

	query := "SELECT * FROM " + table
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query, nil
}

func whereClause(column string, value any) (string, bool) {
	value, ok := deref(value)
	if !ok {
		return "", false
	}

	switch v := value.(type) {
	case float64:
		return fmt.Sprintf("ROUND(%s) = ROUND(%s)", column, strconv.FormatFloat(v, 'f', -1, 64)), true
	case float32:
		return fmt.Sprintf("ROUND(%s) = ROUND(%s)", column, strconv.FormatFloat(float64(v), 'f', -1, 32)), true
	case string:
		return fmt.Sprintf("%s = '%s'", column, strings.ReplaceAll(v, "'", "''")), true
	default:
		return fmt.Sprintf("%s = %v", column, v), true
	}
}

// deref unwraps pointer and sql.Null* values. ok is false for nil.
func deref(value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case *string:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *float64:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *int:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *int64:
		if v == nil {
			return nil, false
		}
		return *v, true
	case sql.NullString:
		return v.String, v.Valid
	case sql.NullFloat64:
		return v.Float64, v.Valid
	case sql.NullInt64:
		return v.Int64, v.Valid
	default:
		return value, true
	}
}

// ParseFields converts textual filters, as received from the CLI or a query
// string, into typed values using the column kinds of table.
func ParseFields(table string, raw map[string]string) (map[string]any, error) {
	if _, ok := Tables[table]; !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	fields := make(map[string]any, len(raw))
	for name, text := range raw {
		column, ok := lookupColumn(table, name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q for table %s", name, table)
		}
		switch column.Kind {
		case ColumnFloat:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s expects a number: %w", name, err)
			}
			fields[name] = v
		case ColumnInt:
			v, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s expects an integer: %w", name, err)
			}
			fields[name] = v
		default:
			fields[name] = text
		}
	}
	return fields, nil
}

// QueryService runs read-only reports against the store.
type QueryService struct {
	store *Store
}

func NewQueryService(store *Store) *QueryService {
	return &QueryService{store: store}
}

// Select returns the rows of table matching fields. Each row maps column name
// to value, with NULL as nil.
func (q *QueryService) Select(ctx context.Context, table string, fields map[string]any) ([]map[string]any, error) {
	query, err := BuildSelect(table, fields)
	if err != nil {
		return nil, q.store.log.Fail(&models.AppError{Kind: models.KindLogic, Table: table, Message: "invalid report request", Err: err})
	}
	return q.run(ctx, table, query)
}

func (q *QueryService) AllExperiments(ctx context.Context) ([]map[string]any, error) {
	return q.run(ctx, TableExperiment, `SELECT * FROM exp_metadata ORDER BY exp_timestamp`)
}

func (q *QueryService) run(ctx context.Context, table, query string) ([]map[string]any, error) {
	var results []map[string]any
	err := q.store.withSession(ctx, table, func(conn *sql.Conn) error {
		q.store.log.Query(query)
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return q.store.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "error executing query", Err: err})
		}
		defer rows.Close()

		results, err = scanMaps(rows)
		if err != nil {
			return q.store.log.Fail(&models.AppError{Kind: models.KindConnection, Table: table, Message: "error reading rows", Err: err})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	q.store.log.Info("Report executed", zap.String("table", table), zap.Int("rows", len(results)))
	return results, nil
}

func scanMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// OrphanReport lists rows whose parent has been deleted.
type OrphanReport struct {
	Files    []string           `json:"files"`
	Metadata map[string][]int64 `json:"metadata"`
}

func (r OrphanReport) Empty() bool {
	if len(r.Files) > 0 {
		return false
	}
	for _, ids := range r.Metadata {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Orphans finds file rows without an experiment and metadata rows without a file.
func (q *QueryService) Orphans(ctx context.Context) (OrphanReport, error) {
	report := OrphanReport{Metadata: make(map[string][]int64)}

	files, err := selectKeys[string](ctx, q.store, TableFiles, `
	SELECT f.file_name FROM stm_files f
	LEFT JOIN exp_metadata e ON e.exp_metadata_id = f.exp_metadata_id
	WHERE e.exp_metadata_id IS NULL
	ORDER BY f.file_name`)
	if err != nil {
		return report, err
	}
	report.Files = files

	for _, table := range []string{TableTopo, TableSpec, TableCits} {
		query := fmt.Sprintf(`
		SELECT m.file_id FROM %s m
		LEFT JOIN stm_files f ON f.file_id = m.file_id
		WHERE f.file_id IS NULL
		ORDER BY m.file_id`, table)
		ids, err := selectKeys[int64](ctx, q.store, table, query)
		if err != nil {
			return report, err
		}
		if len(ids) > 0 {
			report.Metadata[table] = ids
		}
	}
	return report, nil
}
