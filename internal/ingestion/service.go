package ingestion

import (
	"context"
	"fmt"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/database"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/instrument"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
)

// EntryAdder is what the batch driver needs from the ingestion service.
type EntryAdder interface {
	AddEntry(ctx context.Context, file *instrument.File) error
}

type Repositories struct {
	Experiments database.ExperimentStore
	Files       database.FileStore
	Topo        database.MetadataStore[models.TopoMetadata]
	Spec        database.MetadataStore[models.SpecMetadata]
	Cits        database.MetadataStore[models.CitsMetadata]
}

// NewRepositories wires the five table repositories to one store.
func NewRepositories(store *database.Store) Repositories {
	return Repositories{
		Experiments: database.NewExperimentRepository(store),
		Files:       database.NewFileRepository(store),
		Topo:        database.NewTopoRepository(store),
		Spec:        database.NewSpecRepository(store),
		Cits:        database.NewCitsRepository(store),
	}
}

type IngestionService struct {
	repos   Repositories
	metrics *Metrics
	log     *logging.Logger
}

func NewIngestionService(repos Repositories, metrics *Metrics, logger *logging.Logger) *IngestionService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &IngestionService{repos: repos, metrics: metrics, log: logger}
}

// AddEntry stores one parsed instrument file: experiment first, then the file
// row, then the metadata row matching the file's type. Each step completes
// before the next begins and the first failure aborts the rest. The three
// steps are not one transaction; calling AddEntry again completes a partial chain.
func (s *IngestionService) AddEntry(ctx context.Context, file *instrument.File) error {
	fileType := file.Type()

	var addMetadata func(ctx context.Context) error
	switch fileType {
	case models.FileTypeTopo:
		addMetadata = func(ctx context.Context) error {
			return upsertStep(ctx, s, s.repos.Topo.Table(), s.repos.Topo.SafeUpsert, topoRecord(file))
		}
	case models.FileTypeIVCurve:
		addMetadata = func(ctx context.Context) error {
			return upsertStep(ctx, s, s.repos.Spec.Table(), s.repos.Spec.SafeUpsert, specRecord(file))
		}
	case models.FileTypeIVMap:
		addMetadata = func(ctx context.Context) error {
			return upsertStep(ctx, s, s.repos.Cits.Table(), s.repos.Cits.SafeUpsert, citsRecord(file))
		}
	case models.FileTypeIZCurve:
		s.log.Warn("File type not supported yet, nothing written", zap.String("file", file.Name), zap.String("type", string(fileType)))
		return &models.AppError{Kind: models.KindUnsupportedFormat, FileName: file.Name, Message: fmt.Sprintf("%s files are not supported", fileType)}
	default:
		return s.log.Fail(&models.AppError{Kind: models.KindUnknownFormat, FileName: file.Name, Message: fmt.Sprintf("file contains an unknown data type %q", fileType)})
	}

	experiment, err := experimentRecord(file)
	if err != nil {
		return s.log.Fail(err)
	}
	if err := upsertStep(ctx, s, database.TableExperiment, s.repos.Experiments.SafeUpsert, experiment); err != nil {
		return err
	}

	record, err := fileRecord(file, experiment.CreationTimestamp)
	if err != nil {
		return s.log.Fail(err)
	}
	if err := upsertStep(ctx, s, database.TableFiles, s.repos.Files.SafeUpsert, record); err != nil {
		return err
	}

	if err := addMetadata(ctx); err != nil {
		return err
	}

	s.log.Info("Entry complete", zap.String("file", file.Name), zap.String("type", string(fileType)))
	return nil
}

func upsertStep[R any](ctx context.Context, s *IngestionService, table string, upsert func(context.Context, R) (bool, error), rec R) error {
	inserted, err := upsert(ctx, rec)
	if err != nil {
		return err
	}
	if inserted {
		s.metrics.rowInserted(table)
	}
	return nil
}

// RemoveFile deletes the file's metadata row and then the file row. The
// experiment row is never touched.
func (s *IngestionService) RemoveFile(ctx context.Context, fileName string) error {
	ref, err := s.repos.Files.Resolve(ctx, fileName)
	if err != nil {
		return err
	}

	for _, remove := range []func(context.Context, int64) (int64, error){
		s.repos.Topo.Delete,
		s.repos.Spec.Delete,
		s.repos.Cits.Delete,
	} {
		if _, err := remove(ctx, ref.FileID); err != nil {
			return err
		}
	}

	_, err = s.repos.Files.Delete(ctx, fileName)
	return err
}

// RemoveExperiment deletes the experiment row only. Files that referenced it
// are left in place and reported as orphans in the log.
func (s *IngestionService) RemoveExperiment(ctx context.Context, timestamp string) (int64, error) {
	id, err := s.repos.Experiments.ResolveID(ctx, timestamp)
	if err != nil {
		return 0, err
	}

	dependents, err := s.repos.Files.CountByExperiment(ctx, id)
	if err != nil {
		return 0, err
	}

	if _, err := s.repos.Experiments.Delete(ctx, timestamp); err != nil {
		return 0, err
	}

	if dependents > 0 {
		s.log.Warn("Experiment deleted, dependent files left orphaned",
			zap.String("key", timestamp),
			zap.Int64("orphaned_files", dependents))
	}
	return dependents, nil
}
