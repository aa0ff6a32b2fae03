package translate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"firefeed/pipeline/internal/models"
)

// Task is one translation request. OnSuccess receives the renditions
// keyed by language; OnError receives the terminal failure. Callbacks
// run on the worker goroutine and are never retried.
type Task struct {
	ID          string
	ItemID      string
	Title       string
	Content     string
	SourceLang  string
	TargetLangs []string
	OnSuccess   func(translations map[string]models.Translation) error
	OnError     func(taskID string, err error)
}

// QueueStats is a snapshot of the queue's running counters.
type QueueStats struct {
	Processed int64 `json:"processed"`
	Errored   int64 `json:"errored"`
	Queued    int   `json:"queued"`
}

// Queue is a bounded FIFO of translation tasks drained by a fixed pool
// of workers. Enqueue never blocks: when the queue is full the task is
// rejected and the caller decides what to do with the item.
type Queue struct {
	translator Translator
	tasks      chan Task
	workers    int

	processed atomic.Int64
	errored   atomic.Int64

	mu      sync.Mutex
	started bool
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue holding at most size pending tasks, drained
// by the given number of workers.
func NewQueue(translator Translator, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{
		translator: translator,
		tasks:      make(chan Task, size),
		workers:    workers,
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.Info().Int("workers", q.workers).Int("capacity", cap(q.tasks)).Msg("Translation queue started")
}

// Enqueue offers a task to the queue. Returns false when the queue is
// full or already stopped. A task without an ID gets one assigned.
func (q *Queue) Enqueue(task Task) bool {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	select {
	case q.tasks <- task:
		return true
	default:
		log.Warn().
			Str("task_id", task.ID).
			Str("item_id", task.ItemID).
			Msg("Translation queue full, task rejected")
		return false
	}
}

// Stop closes the queue, lets workers drain pending tasks within the
// grace period, then cancels whatever is still running.
func (q *Queue) Stop(grace time.Duration) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		log.Warn().Msg("Translation queue drain timed out, cancelling workers")
		if q.cancel != nil {
			q.cancel()
		}
		<-done
	}

	if q.cancel != nil {
		q.cancel()
	}
	log.Info().
		Int64("processed", q.processed.Load()).
		Int64("errored", q.errored.Load()).
		Msg("Translation queue stopped")
}

// Stats returns the running counters and the current backlog length.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Processed: q.processed.Load(),
		Errored:   q.errored.Load(),
		Queued:    len(q.tasks),
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.process(ctx, id, task)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, workerID int, task Task) {
	targets := excludeLang(task.TargetLangs, task.SourceLang)
	if len(targets) == 0 {
		log.Debug().
			Str("task_id", task.ID).
			Str("item_id", task.ItemID).
			Msg("No target languages beyond source, nothing to translate")
		q.processed.Add(1)
		return
	}

	translations, err := q.translator.Translate(ctx, task.Title, task.Content, task.SourceLang, targets)
	if err != nil {
		q.errored.Add(1)
		log.Error().
			Err(err).
			Int("worker", workerID).
			Str("task_id", task.ID).
			Str("item_id", task.ItemID).
			Msg("Translation task failed")
		if task.OnError != nil {
			task.OnError(task.ID, err)
		}
		return
	}

	if task.OnSuccess != nil {
		if err := task.OnSuccess(translations); err != nil {
			// The renditions were produced; only their handoff failed.
			log.Error().
				Err(err).
				Str("task_id", task.ID).
				Str("item_id", task.ItemID).
				Msg("Translation result callback failed")
		}
	}
	q.processed.Add(1)
}

// excludeLang drops the source language from the target list so an item
// is never translated into its own language.
func excludeLang(langs []string, exclude string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l != exclude {
			out = append(out, l)
		}
	}
	return out
}
