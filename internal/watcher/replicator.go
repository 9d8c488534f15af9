package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"onecam/internal/domain"
	"onecam/internal/storage"
)

// Broadcaster delivers notifications to every connected subscriber.
type Broadcaster interface {
	Broadcast(n domain.Notification)
}

// Replicator copies newly created images from a watched root into its public
// destination and announces the public path.
type Replicator struct {
	classifier *Classifier
	stores     map[string]*storage.FileStore
	notifier   Broadcaster
	settle     time.Duration
	logger     zerolog.Logger
}

// NewReplicator builds a replicator for roots. settle is the interval used to
// wait for a file's size to stop changing before copying; zero copies at once.
func NewReplicator(roots []domain.WatchedRoot, notifier Broadcaster, settle time.Duration, logger zerolog.Logger) (*Replicator, error) {
	stores := make(map[string]*storage.FileStore, len(roots))
	for _, root := range roots {
		store, err := storage.NewFileStore(root.Destination)
		if err != nil {
			return nil, fmt.Errorf("%s root: %w", root.Role, err)
		}
		stores[filepath.Clean(root.Dir)] = store
	}
	return &Replicator{
		classifier: NewClassifier(roots),
		stores:     stores,
		notifier:   notifier,
		settle:     settle,
		logger:     logger,
	}, nil
}

// Handle processes one event. It returns (nil, nil) when the event is skipped:
// directories, non-image files and paths outside every root. A non-nil error
// means the copy failed and nothing was announced.
func (r *Replicator) Handle(ctx context.Context, ev domain.FileEvent) (*domain.Notification, error) {
	if ev.IsDir || !domain.IsImageExt(filepath.Ext(ev.Path)) {
		return nil, nil
	}
	root, ok := r.classifier.Classify(ev.Path)
	if !ok {
		r.logger.Warn().Err(fmt.Errorf("%w: %s", domain.ErrUnknownRoot, ev.Path)).Msg("image detected in an unknown folder")
		return nil, nil
	}
	r.logger.Info().Str("path", ev.Path).Str("role", string(root.Role)).Msg("new image detected")

	if r.settle > 0 {
		if err := waitStable(ctx, ev.Path, r.settle); err != nil {
			return nil, err
		}
	}

	name := filepath.Base(ev.Path)
	store := r.stores[root.Dir]
	dest, err := store.CopyFile(ctx, ev.Path, name)
	if err != nil {
		return nil, fmt.Errorf("replicate %s: %w", ev.Path, err)
	}

	n := domain.Notification{ImagePath: root.PublicPath(name)}
	r.logger.Info().Str("src", ev.Path).Str("dest", dest).Str("image_path", n.ImagePath).Msg("image replicated")
	if r.notifier != nil {
		r.notifier.Broadcast(n)
	}
	return &n, nil
}

// waitStable blocks until two consecutive size readings taken interval apart
// agree, giving up after a bounded number of checks.
func waitStable(ctx context.Context, path string, interval time.Duration) error {
	const maxChecks = 20
	last := int64(-1)
	for i := 0; i < maxChecks; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.Size() == last && last > 0 {
			return nil
		}
		last = info.Size()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil
}
