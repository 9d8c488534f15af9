package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"onecam/internal/domain"
)

// EventHandler processes one file event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.FileEvent) (*domain.Notification, error)
}

// Options configures a Watcher.
type Options struct {
	Roots     []domain.WatchedRoot
	Handler   EventHandler
	QueueSize int
	Workers   int
	Logger    zerolog.Logger
}

// Watcher subscribes to create events in every root directory (not their
// subdirectories). A producer goroutine feeds a bounded queue that a pool of
// workers drains, so a slow copy never stalls event detection or other events.
//
// When the queue is full the producer blocks; events then accumulate in the
// kernel's watch queue, and an overflow there is logged as lost events.
type Watcher struct {
	roots     []domain.WatchedRoot
	handler   EventHandler
	queueSize int
	workers   int
	logger    zerolog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	handled  atomic.Int64
	failed   atomic.Int64
	overflow atomic.Int64
}

// Stats counts processed events since start.
type Stats struct {
	Handled  int64 `json:"handled"`
	Failed   int64 `json:"failed"`
	Overflow int64 `json:"overflow"`
}

func New(opts Options) *Watcher {
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Watcher{
		roots:     opts.Roots,
		handler:   opts.Handler,
		queueSize: queue,
		workers:   workers,
		logger:    opts.Logger,
	}
}

// Start begins watching. It returns once the subscriptions are in place;
// processing continues in the background until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.handler == nil {
		return errors.New("watcher: handler is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root.Dir, 0o755); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watcher: ensure %s root: %w", root.Role, err)
		}
		if err := fsw.Add(root.Dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watcher: watch %s: %w", root.Dir, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	queue := make(chan domain.FileEvent, w.queueSize)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(queue)
		w.produce(runCtx, fsw, queue)
	}()
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(runCtx, id, queue)
		}(i)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	w.fsw = fsw
	w.cancel = cancel
	w.done = done
	w.running = true

	dirs := make([]string, 0, len(w.roots))
	for _, root := range w.roots {
		dirs = append(dirs, root.Dir)
	}
	w.logger.Info().Strs("dirs", dirs).Int("workers", w.workers).Int("queue", w.queueSize).Msg("started monitoring folders")
	return nil
}

// Stop cancels the subscription and waits for the producer and workers to
// exit, or for ctx to expire.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	fsw, cancel, done := w.fsw, w.cancel, w.done
	w.fsw, w.cancel, w.done = nil, nil, nil
	w.running = false
	w.mu.Unlock()

	cancel()
	closeErr := fsw.Close()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("watcher: stop: %w", ctx.Err())
	}
	w.logger.Info().Msg("stopped monitoring")
	return closeErr
}

// Run starts the watcher, blocks until ctx is cancelled, then stops it,
// waiting at most stopTimeout for in-flight events.
func (w *Watcher) Run(ctx context.Context, stopTimeout time.Duration) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return w.Stop(stopCtx)
}

// Stats returns the event counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Handled:  w.handled.Load(),
		Failed:   w.failed.Load(),
		Overflow: w.overflow.Load(),
	}
}

func (w *Watcher) produce(ctx context.Context, fsw *fsnotify.Watcher, queue chan<- domain.FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			fe := domain.FileEvent{Path: ev.Name}
			if info, err := os.Stat(ev.Name); err == nil {
				fe.IsDir = info.IsDir()
			}
			select {
			case queue <- fe:
			case <-ctx.Done():
				return
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.overflow.Add(1)
				w.logger.Warn().Err(err).Msg("watch queue overflowed; some create events were lost")
				continue
			}
			w.logger.Error().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) consume(ctx context.Context, id int, queue <-chan domain.FileEvent) {
	log := w.logger.With().Int("worker", id).Logger()
	for ev := range queue {
		if ctx.Err() != nil {
			continue
		}
		w.process(ctx, log, ev)
	}
}

// process isolates each event: errors and panics are logged and never reach
// other events or the caller.
func (w *Watcher) process(ctx context.Context, log zerolog.Logger, ev domain.FileEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			log.Error().Interface("panic", r).Str("path", ev.Path).Msg("event handler panicked")
		}
	}()
	n, err := w.handler.Handle(ctx, ev)
	if err != nil {
		w.failed.Add(1)
		log.Error().Err(err).Str("path", ev.Path).Msg("error copying file")
		return
	}
	if n != nil {
		w.handled.Add(1)
	}
}
