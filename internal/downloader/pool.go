package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"likesync/pkg/likes"
	"likesync/pkg/logger"
	"likesync/pkg/metadata"
	"likesync/pkg/metrics"
)

// Job is a single download task
type Job struct {
	Candidate likes.Candidate
	// LikedBy is the tracked account whose like produced the candidate
	LikedBy string
}

// Result is the outcome of a download job
type Result struct {
	Job      Job
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int
}

// MediaFetcher downloads media bytes
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, url string) ([]byte, error)
}

// MediaStorage checks for and stores downloaded media
type MediaStorage interface {
	Exists(name string) bool
	Save(r io.Reader, name string) error
}

// Recorder is notified of every completed download
type Recorder interface {
	Record(rec metadata.MediaRecord) error
}

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	itemTimeout time.Duration
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     MediaFetcher
	storage     MediaStorage
	recorder    Recorder
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool. Each job gets at most
// itemTimeout to fetch its bytes; zero means no per-item limit.
func NewWorkerPool(
	numWorkers int,
	itemTimeout time.Duration,
	fetcher MediaFetcher,
	storage MediaStorage,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		itemTimeout: itemTimeout,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		fetcher:     fetcher,
		storage:     storage,
		logger:      log,
	}
}

// SetRecorder registers a recorder for completed downloads
func (wp *WorkerPool) SetRecorder(r Recorder) {
	wp.recorder = r
}

// Start starts all workers. Cancelling ctx aborts in-flight downloads.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx, wp.cancel = context.WithCancel(ctx)

	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish and closes the results channel
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob handles a single download job. Failures stay inside the result.
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	c := job.Candidate
	result := Result{Job: job}

	if wp.storage.Exists(c.Filename) {
		wp.logger.DebugWithFields("Media already exists", map[string]interface{}{
			"worker_id": workerID,
			"filename":  c.Filename,
		})
		metrics.Downloads.WithLabelValues("skipped").Inc()
		result.Success = true
		result.Skipped = true
		result.Duration = time.Since(start)
		return result
	}

	ctx := wp.ctx
	if wp.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.itemTimeout)
		defer cancel()
	}

	data, err := wp.fetcher.DownloadMedia(ctx, c.URL)
	if err != nil {
		return wp.fail(result, start, fmt.Errorf("download failed: %w", err))
	}
	result.Size = len(data)

	if err := wp.storage.Save(bytes.NewReader(data), c.Filename); err != nil {
		return wp.fail(result, start, fmt.Errorf("save failed: %w", err))
	}

	result.Success = true
	result.Duration = time.Since(start)
	metrics.Downloads.WithLabelValues("success").Inc()
	metrics.DownloadBytes.Add(float64(result.Size))
	logger.LogDownload(wp.logger, job.LikedBy, c.Filename, result.Size, nil)

	if wp.recorder != nil {
		rec := metadata.FromCandidate(c, job.LikedBy, int64(result.Size))
		if err := wp.recorder.Record(rec); err != nil {
			wp.logger.WithError(err).WithField("filename", c.Filename).Warn("Failed to record download in manifest")
		}
	}

	return result
}

func (wp *WorkerPool) fail(result Result, start time.Time, err error) Result {
	result.Error = err
	result.Duration = time.Since(start)
	metrics.Downloads.WithLabelValues("failed").Inc()
	logger.LogDownload(wp.logger, result.Job.LikedBy, result.Job.Candidate.Filename, 0, err)
	return result
}

// GetQueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}

// DownloadAll runs jobs through a fresh pool and blocks until every job
// has finished or ctx is cancelled
func DownloadAll(
	ctx context.Context,
	numWorkers int,
	itemTimeout time.Duration,
	fetcher MediaFetcher,
	storage MediaStorage,
	recorder Recorder,
	log logger.Logger,
	jobs []Job,
) []Result {
	if len(jobs) == 0 {
		return nil
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	pool := NewWorkerPool(numWorkers, itemTimeout, fetcher, storage, log)
	pool.SetRecorder(recorder)
	pool.Start(ctx)

	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	results := make([]Result, 0, len(jobs))
	for r := range pool.Results() {
		results = append(results, r)
	}
	return results
}

// Summary aggregates a batch of results
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int
}

// Summarize counts the outcomes in results
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Success:
			s.Downloaded++
			s.Bytes += r.Size
		default:
			s.Failed++
		}
	}
	return s
}
