package database

import (
	"context"
	"database/sql"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

// ExperimentRepository manages exp_metadata rows keyed by creation timestamp.
type ExperimentRepository struct {
	store *Store
}

func NewExperimentRepository(store *Store) *ExperimentRepository {
	return &ExperimentRepository{store: store}
}

func (r *ExperimentRepository) table() string { return TableExperiment }

func (r *ExperimentRepository) key(_ context.Context, rec models.ExperimentMetadata) (string, error) {
	return rec.CreationTimestamp, nil
}

func (r *ExperimentRepository) Exists(ctx context.Context, timestamp string) (models.Existence, error) {
	results, err := selectKeys[string](ctx, r.store, TableExperiment,
		`SELECT exp_timestamp FROM exp_metadata WHERE exp_timestamp = $1`, timestamp)
	if err != nil {
		return models.Absent, err
	}
	return classify(r.store, TableExperiment, timestamp, results)
}

// Insert writes the experiment row. Comment fields are stored as NULL when the
// creation comment carried no structured metadata.
func (r *ExperimentRepository) Insert(ctx context.Context, rec models.ExperimentMetadata) (int64, error) {
	query := `
	INSERT INTO exp_metadata (exp_timestamp, exp_users, exp_substrate, exp_adsorbate, exp_prep, exp_notebook, exp_notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (exp_timestamp) DO NOTHING
	RETURNING exp_metadata_id`

	c := rec.Comment
	return r.store.insert(ctx, TableExperiment, rec.CreationTimestamp, "", func(tx *sql.Tx) (int64, error) {
		return insertRow(ctx, r.store, tx, TableExperiment, rec.CreationTimestamp, "", query,
			rec.CreationTimestamp,
			nullString(c.Present, c.Users),
			nullString(c.Present, c.Substrate),
			nullString(c.Present, c.Adsorbate),
			nullString(c.Present, c.Prep),
			nullInt(c.Present, c.Notebook),
			nullString(c.Present, c.Notes),
		)
	})
}

func (r *ExperimentRepository) SafeUpsert(ctx context.Context, rec models.ExperimentMetadata) (bool, error) {
	return safeUpsert[string, models.ExperimentMetadata](ctx, r.store, r, rec)
}

// Delete removes the experiment row only. Files and metadata that referenced it
// stay behind as orphans.
func (r *ExperimentRepository) Delete(ctx context.Context, timestamp string) (int64, error) {
	return r.store.delete(ctx, TableExperiment, timestamp,
		`DELETE FROM exp_metadata WHERE exp_timestamp = $1`, timestamp)
}

// ResolveID returns the surrogate id for a creation timestamp.
func (r *ExperimentRepository) ResolveID(ctx context.Context, timestamp string) (int64, error) {
	var id int64
	err := r.store.withSession(ctx, TableExperiment, func(conn *sql.Conn) error {
		var err error
		id, err = resolveExperimentID(ctx, r.store, conn, timestamp, TableExperiment, "")
		return err
	})
	return id, err
}
