package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/instrument"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor defines the batch operations over a directory of instrument files.
type Processor interface {
	ScanForFiles(rootPath string) ([]models.FileInfo, error)
	Execute(ctx context.Context, rootPath string) (*models.BatchReport, error)
}

type FileProcessorConfig struct {
	HaltOnError    bool
	NumReaders     int
	PushgatewayURL string
}

// FileProcessor is the batch driver: it finds flat files under a directory and
// ingests them one at a time, isolating or halting on failures.
type FileProcessor struct {
	ingestor EntryAdder
	worker   *ReadWorker
	metrics  *Metrics
	config   FileProcessorConfig
	log      *logging.Logger
}

func NewFileProcessor(ingestor EntryAdder, reader instrument.Reader, metrics *Metrics, cfg FileProcessorConfig, logger *logging.Logger) *FileProcessor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileProcessor{
		ingestor: ingestor,
		worker:   NewReadWorker(reader, cfg.NumReaders, logger),
		metrics:  metrics,
		config:   cfg,
		log:      logger,
	}
}

// ScanForFiles walks rootPath for exported flat files and returns them sorted
// by path.
func (fp *FileProcessor) ScanForFiles(rootPath string) ([]models.FileInfo, error) {
	var fileInfos []models.FileInfo
	fp.log.Info("Scanning for files", zap.String("path", rootPath))

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !instrument.IsFlatFile(info.Name()) {
			return nil
		}
		modality := instrument.Modality(info.Name())
		if modality == "unknown" {
			fp.log.Warn("Flat file with unrecognised channel suffix", zap.String("file", info.Name()))
		}
		fileInfos = append(fileInfos, models.FileInfo{Path: path, Name: info.Name(), Modality: modality})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", rootPath, err)
	}

	sort.Slice(fileInfos, func(i, j int) bool { return fileInfos[i].Path < fileInfos[j].Path })

	fp.log.Info("Scan complete", zap.Int("files", len(fileInfos)))
	return fileInfos, nil
}

// Execute ingests every flat file under rootPath. Unsupported files are listed
// in the report and never count as failures. With HaltOnError the first failure
// stops the batch and is returned alongside the partial report.
func (fp *FileProcessor) Execute(ctx context.Context, rootPath string) (*models.BatchReport, error) {
	report := &models.BatchReport{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := fp.log.With(zap.String("run_id", report.RunID))
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		if err := fp.metrics.Push(context.Background(), fp.config.PushgatewayURL, report.RunID); err != nil {
			log.Warn("Failed to push batch metrics", zap.Error(err))
		}
	}()

	files, err := fp.ScanForFiles(rootPath)
	if err != nil {
		return report, err
	}

	readCtx, cancel := context.WithCancel(ctx)
	runner, queue, wg := fp.worker.Setup(files)
	defer func() {
		cancel()
		wg.Wait()
	}()
	runner.Run(readCtx)

	for i, info := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		started := time.Now()
		result, err := queue.take(ctx, i)
		if err != nil {
			return report, err
		}
		err = result.err
		if err != nil {
			err = log.Fail(&models.AppError{Kind: models.KindParse, FileName: info.Name, Message: "unable to read instrument file", Err: err})
		} else {
			err = fp.ingestor.AddEntry(ctx, result.file)
		}

		switch {
		case err == nil:
			report.Ingested = append(report.Ingested, info.Name)
			fp.metrics.fileProcessed("ingested", time.Since(started))
		case errors.Is(err, models.ErrUnsupportedFormat):
			report.Unsupported = append(report.Unsupported, info.Name)
			fp.metrics.fileProcessed("unsupported", time.Since(started))
		default:
			report.Failures = append(report.Failures, models.FileFailure{FileName: info.Name, Kind: models.KindOf(err), Err: err})
			fp.metrics.fileProcessed("failed", time.Since(started))
			if fp.config.HaltOnError {
				log.Error("Halting batch after failure", zap.String("file", info.Name), zap.String("kind", string(models.KindOf(err))))
				return report, err
			}
			log.Warn("Skipping file after failure", zap.String("file", info.Name), zap.String("kind", string(models.KindOf(err))))
		}
	}

	log.Info("Batch finished",
		zap.Int("ingested", len(report.Ingested)),
		zap.Int("unsupported", len(report.Unsupported)),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}
