package ingestion

import (
	"context"
	"sync"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/instrument"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/logging"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
)

type Runner[T any] struct {
	Run T
}

type readJob struct {
	index int
	info  models.FileInfo
}

type readResult struct {
	file *instrument.File
	err  error
}

// ReadWorker reads instrument files ahead of the ingestion loop. Reads run in
// parallel, but results are handed back in scan order so that entries are
// still added one file at a time. At most window files are read and not yet
// taken by the loop.
type ReadWorker struct {
	reader     instrument.Reader
	numWorkers int
	window     int
	log        *logging.Logger
}

func NewReadWorker(reader instrument.Reader, numWorkers int, logger *logging.Logger) *ReadWorker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ReadWorker{reader: reader, numWorkers: numWorkers, window: numWorkers * 2, log: logger}
}

// readQueue hands read results back in scan order. A slot is taken before each
// read is dispatched and given back when the loop takes the result.
type readQueue struct {
	results []chan readResult
	slots   chan struct{}
}

// take blocks until the result for file i is ready and frees its slot.
func (q *readQueue) take(ctx context.Context, i int) (readResult, error) {
	select {
	case result := <-q.results[i]:
		<-q.slots
		return result, nil
	case <-ctx.Done():
		return readResult{}, ctx.Err()
	}
}

// Setup prepares one result slot per file. Run starts the dispatcher and the
// readers; cancelling ctx stops them early.
func (w *ReadWorker) Setup(files []models.FileInfo) (Runner[func(ctx context.Context)], *readQueue, *sync.WaitGroup) {
	queue := &readQueue{
		results: make([]chan readResult, len(files)),
		slots:   make(chan struct{}, w.window),
	}
	for i := range queue.results {
		queue.results[i] = make(chan readResult, 1)
	}
	jobs := make(chan readJob)
	var wg sync.WaitGroup

	return Runner[func(ctx context.Context)]{
		Run: func(ctx context.Context) {
			go w.dispatch(ctx, files, jobs, queue.slots)
			for i := 1; i <= w.numWorkers; i++ {
				wg.Add(1)
				go w.read(ctx, i, jobs, queue.results, &wg)
			}
		},
	}, queue, &wg
}

func (w *ReadWorker) dispatch(ctx context.Context, files []models.FileInfo, jobs chan<- readJob, slots chan<- struct{}) {
	defer close(jobs)
	for i, info := range files {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		select {
		case jobs <- readJob{index: i, info: info}:
		case <-ctx.Done():
			return
		}
	}
}

func (w *ReadWorker) read(ctx context.Context, workerID int, jobs <-chan readJob, results []chan readResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range jobs {
		if ctx.Err() != nil {
			results[job.index] <- readResult{err: ctx.Err()}
			continue
		}
		w.log.Debug("Reading instrument file", zap.Int("worker", workerID), zap.String("file", job.info.Name))
		file, err := w.reader.Read(job.info.Path)
		if file != nil {
			// Sample arrays are never stored.
			for i := range file.Scans {
				file.Scans[i].Data = nil
			}
		}
		results[job.index] <- readResult{file: file, err: err}
	}
}
