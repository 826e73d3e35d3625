package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// JobProcessor drains whatever work is currently due.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor at a fixed interval. Processing errors are
// logged and do not stop the loop.
type Worker struct {
	processor JobProcessor
	interval  time.Duration
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor: processor,
		interval:  pollInterval,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. It drains once immediately so queued jobs are not left waiting a
// full interval after boot.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	log.Printf("job worker polling every %v", w.interval)
	w.drain(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("job worker exiting: context cancelled")
			return
		case <-w.quit:
			log.Println("job worker exiting: stop requested")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("job processing pass failed: %v", err)
	}
}

// Stop signals the loop to exit and blocks until it has.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}
