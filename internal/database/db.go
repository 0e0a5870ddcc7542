package database

import (
	"context"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

type ExperimentStore interface {
	Exists(ctx context.Context, timestamp string) (models.Existence, error)
	SafeUpsert(ctx context.Context, rec models.ExperimentMetadata) (bool, error)
	Delete(ctx context.Context, timestamp string) (int64, error)
	ResolveID(ctx context.Context, timestamp string) (int64, error)
}

type FileStore interface {
	Exists(ctx context.Context, fileName string) (models.Existence, error)
	SafeUpsert(ctx context.Context, rec models.FileRecord) (bool, error)
	Delete(ctx context.Context, fileName string) (int64, error)
	Resolve(ctx context.Context, fileName string) (models.FileRef, error)
	CountByExperiment(ctx context.Context, expMetadataID int64) (int64, error)
}

type MetadataStore[R any] interface {
	Table() string
	Exists(ctx context.Context, fileID int64) (models.Existence, error)
	SafeUpsert(ctx context.Context, rec R) (bool, error)
	Delete(ctx context.Context, fileID int64) (int64, error)
}

type ReportStore interface {
	Select(ctx context.Context, table string, fields map[string]any) ([]map[string]any, error)
	AllExperiments(ctx context.Context) ([]map[string]any, error)
	Orphans(ctx context.Context) (OrphanReport, error)
}

var (
	_ ExperimentStore                    = (*ExperimentRepository)(nil)
	_ FileStore                          = (*FileRepository)(nil)
	_ MetadataStore[models.TopoMetadata] = (*TopoRepository)(nil)
	_ MetadataStore[models.SpecMetadata] = (*SpecRepository)(nil)
	_ MetadataStore[models.CitsMetadata] = (*CitsRepository)(nil)
	_ ReportStore                        = (*QueryService)(nil)
)
