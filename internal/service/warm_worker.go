package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/domain"
	"github.com/persistorai/storygraph/internal/metrics"
	"github.com/persistorai/storygraph/internal/models"
)

// BookBuilder builds every chapter of a book.
type BookBuilder interface {
	EnsureBook(ctx context.Context, bookID int) (*models.BookSummary, error)
}

var _ domain.Warmer = (*WarmWorker)(nil)

// WarmWorker builds whole-book caches in the background.
type WarmWorker struct {
	books       BookBuilder
	log         *logrus.Logger
	jobs        chan int
	concurrency int
	retryDelay  time.Duration
}

// NewWarmWorker creates a worker with the given queue capacity and concurrency.
func NewWarmWorker(books BookBuilder, log *logrus.Logger, queueSize, concurrency int) *WarmWorker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if concurrency <= 0 {
		concurrency = 2
	}

	return &WarmWorker{
		books:       books,
		log:         log,
		jobs:        make(chan int, queueSize),
		concurrency: concurrency,
		retryDelay:  baseRetryDelay,
	}
}

// Enqueue adds a book. Non-blocking; drops the job and returns false if the
// queue is full.
func (w *WarmWorker) Enqueue(bookID int) bool {
	select {
	case w.jobs <- bookID:
		metrics.WarmQueueDepth.Set(float64(len(w.jobs)))
		return true
	default:
		w.log.WithField("book_id", bookID).Warn("warm queue full, dropping job")
		return false
	}
}

// Run spawns the workers and blocks until ctx is cancelled and all workers
// have stopped. Call in a goroutine.
func (w *WarmWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithField("concurrency", w.concurrency).Info("starting warm workers")

	for i := range w.concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	w.log.Info("all warm workers stopped")
}

func (w *WarmWorker) runWorker(ctx context.Context, id int) {
	w.log.WithField("worker_id", id).Debug("warm worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case bookID := <-w.jobs:
			metrics.WarmQueueDepth.Set(float64(len(w.jobs)))
			w.warmWithRetry(ctx, bookID)
		}
	}
}

const (
	maxRetries     = 3
	baseRetryDelay = 2 * time.Second
)

func (w *WarmWorker) warmWithRetry(ctx context.Context, bookID int) {
	log := w.log.WithField("book_id", bookID)

	for attempt := range maxRetries {
		if ctx.Err() != nil {
			return
		}

		sum, err := w.books.EnsureBook(ctx, bookID)
		if errors.Is(err, models.ErrAborted) {
			log.Info("book warm aborted")
			return
		}
		if errors.Is(err, models.ErrManifestNotFound) {
			log.Debug("no manifest yet, skipping warm")
			return
		}

		if err != nil {
			log.WithError(err).WithField("attempt", attempt+1).Warn("book warm failed")

			if attempt < maxRetries-1 {
				delay := w.retryDelay * (1 << attempt)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			continue
		}

		log.WithField("chapters", len(sum.Chapters)).Info("book cache warmed")

		return
	}

	log.Error("book warm failed after all retries")
}
