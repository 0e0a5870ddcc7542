package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
)

const (
	TableExperiment = "exp_metadata"
	TableFiles      = "stm_files"
	TableTopo       = "stm_topo_metadata"
	TableSpec       = "stm_spec_metadata"
	TableCits       = "stm_cits_metadata"
)

// Table bodies take the dialect's auto-increment primary key type as %[1]s.
// Child tables hold plain id columns: there are no foreign keys and deleting a
// parent leaves its children in place.
var schemaTables = []struct {
	name string
	ddl  string
}{
	{TableExperiment, `
	CREATE TABLE IF NOT EXISTS exp_metadata (
		exp_metadata_id %[1]s,
		exp_timestamp VARCHAR(14) NOT NULL,
		exp_users TEXT,
		exp_substrate TEXT,
		exp_adsorbate TEXT,
		exp_prep TEXT,
		exp_notebook INTEGER,
		exp_notes TEXT,
		CONSTRAINT uq_exp_metadata_timestamp UNIQUE (exp_timestamp)
	)`},
	{TableFiles, `
	CREATE TABLE IF NOT EXISTS stm_files (
		file_id %[1]s,
		exp_metadata_id BIGINT NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		file_date VARCHAR(14),
		file_type VARCHAR(16) NOT NULL CHECK (file_type IN ('topo', 'ivcurve', 'ivmap', 'izcurve')),
		file_location TEXT,
		CONSTRAINT uq_stm_files_name UNIQUE (file_name)
	)`},
	{TableTopo, `
	CREATE TABLE IF NOT EXISTS stm_topo_metadata (
		topo_metadata_id %[1]s,
		exp_metadata_id BIGINT NOT NULL,
		file_id BIGINT NOT NULL,
		v_gap DOUBLE PRECISION,
		i_set DOUBLE PRECISION,
		x_res INTEGER,
		y_res INTEGER,
		x_inc DOUBLE PRECISION,
		y_inc DOUBLE PRECISION,
		xy_unit VARCHAR(16),
		CONSTRAINT uq_stm_topo_metadata_file UNIQUE (file_id)
	)`},
	{TableSpec, `
	CREATE TABLE IF NOT EXISTS stm_spec_metadata (
		spec_metadata_id %[1]s,
		exp_metadata_id BIGINT NOT NULL,
		file_id BIGINT NOT NULL,
		v_gap DOUBLE PRECISION,
		v_start DOUBLE PRECISION,
		i_set DOUBLE PRECISION,
		v_res INTEGER,
		v_inc DOUBLE PRECISION,
		v_unit VARCHAR(16),
		x_offset DOUBLE PRECISION,
		y_offset DOUBLE PRECISION,
		CONSTRAINT uq_stm_spec_metadata_file UNIQUE (file_id)
	)`},
	{TableCits, `
	CREATE TABLE IF NOT EXISTS stm_cits_metadata (
		cits_metadata_id %[1]s,
		exp_metadata_id BIGINT NOT NULL,
		file_id BIGINT NOT NULL,
		v_gap DOUBLE PRECISION,
		i_set DOUBLE PRECISION,
		x_res INTEGER,
		y_res INTEGER,
		x_inc DOUBLE PRECISION,
		y_inc DOUBLE PRECISION,
		xy_unit VARCHAR(16),
		v_start DOUBLE PRECISION,
		v_res INTEGER,
		v_inc DOUBLE PRECISION,
		v_unit VARCHAR(16),
		CONSTRAINT uq_stm_cits_metadata_file UNIQUE (file_id)
	)`},
}

func (s *Store) primaryKeyType() string {
	if s.dialect == DialectSQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

// CreateSchema creates the five tables if they do not exist yet.
func (s *Store) CreateSchema(ctx context.Context) error {
	return s.withTx(ctx, "", func(err error) *models.AppError {
		return &models.AppError{Kind: models.KindConnection, Message: "error creating schema", Err: err}
	}, func(tx *sql.Tx) error {
		for _, table := range schemaTables {
			query := fmt.Sprintf(table.ddl, s.primaryKeyType())
			s.log.Query(query)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("error creating %s table: %w", table.name, err)
			}
			s.log.Info("Table ready", zap.String("table", table.name))
		}
		return nil
	})
}
