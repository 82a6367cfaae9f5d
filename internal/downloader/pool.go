// Package downloader runs media processing jobs across a bounded set of
// workers. Records are independent of each other, so the pool imposes no
// ordering; results surface on a channel as workers finish.
package downloader

import (
	"sync"
	"time"

	"nestsync/pkg/logger"
	"nestsync/pkg/store"
)

// Result is the outcome of processing one record
type Result struct {
	Record   *store.Activity
	Err      error
	Duration time.Duration
}

// ProcessFunc handles one record end to end
type ProcessFunc func(*store.Activity) error

// WorkerPool fans records out to concurrent workers
type WorkerPool struct {
	numWorkers int
	jobs       chan *store.Activity
	results    chan Result
	wg         sync.WaitGroup
	process    ProcessFunc
	logger     logger.Logger
}

// NewWorkerPool creates a pool with the given number of workers
func NewWorkerPool(numWorkers int, process ProcessFunc, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan *store.Activity, numWorkers*2),
		results:    make(chan Result, numWorkers),
		process:    process,
		logger:     log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop signals that no more jobs will be submitted, waits for in-flight
// jobs, and closes the results channel
func (wp *WorkerPool) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
	close(wp.results)
}

// Submit queues a record for processing. Results must be drained
// concurrently or the pool stalls once its buffers fill.
func (wp *WorkerPool) Submit(rec *store.Activity) {
	wp.jobs <- rec
}

// Results returns the channel results arrive on; it closes after Stop
func (wp *WorkerPool) Results() <-chan Result {
	return wp.results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for rec := range wp.jobs {
		start := time.Now()
		err := wp.process(rec)
		duration := time.Since(start)

		if err != nil {
			wp.logger.DebugWithFields("worker finished record with error", map[string]interface{}{
				"worker_id": id,
				"activity":  rec.ID,
				"error":     err.Error(),
				"duration":  duration,
			})
		} else {
			wp.logger.DebugWithFields("worker finished record", map[string]interface{}{
				"worker_id": id,
				"activity":  rec.ID,
				"duration":  duration,
			})
		}

		wp.results <- Result{Record: rec, Err: err, Duration: duration}
	}
}
