// Package watcher observes one run: it streams events into the cache and seeds
// it from a snapshot.
package watcher

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/credential"
	"github.com/xiaot623/gogo/autoqa/internal/reconcile"
	"github.com/xiaot623/gogo/autoqa/internal/router"
	"github.com/xiaot623/gogo/autoqa/internal/session"
)

// Loader reads the authoritative state of a run.
type Loader interface {
	Load(ctx context.Context, runID string) (reconcile.Snapshot, error)
}

// Config holds watcher settings.
type Config struct {
	BaseURL     string
	Credentials credential.Source
	Logger      router.Logger
	// SessionOptions are applied after the options derived from the fields above.
	SessionOptions []session.Option
}

// Watcher keeps the cache of one run in sync with the server.
type Watcher struct {
	runID   string
	cache   *cache.Cache
	loader  Loader
	session *session.Session
	handler router.HandlerID
	logger  router.Logger

	mu      sync.Mutex
	loadErr error
	closed  bool
	stop    context.CancelFunc
}

// Watch starts observing runID. The stream is connected before the snapshot
// is read so that no event between the two is missed. If the snapshot cannot
// be read, Watch returns the running watcher together with the error; call
// Reload to retry. Cancelling ctx closes the watcher.
func Watch(ctx context.Context, runID string, c *cache.Cache, loader Loader, cfg Config) (*Watcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Credentials != nil {
		opts = append(opts, session.WithCredentials(cfg.Credentials))
	}
	opts = append(opts, cfg.SessionOptions...)

	sess, err := session.New(cfg.BaseURL, runID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	w := &Watcher{
		runID:   runID,
		cache:   c,
		loader:  loader,
		session: sess,
		logger:  logger,
	}
	w.handler = sess.AddMessageHandler(reconcile.NewHandler(runID, c, logger))

	watchCtx, stop := context.WithCancel(ctx)
	w.stop = stop
	go func() {
		<-watchCtx.Done()
		w.Close()
	}()

	sess.Connect()
	if err := w.Reload(watchCtx); err != nil {
		return w, err
	}
	return w, nil
}

// Reload reads the snapshot again and merges it into the cache.
func (w *Watcher) Reload(ctx context.Context) error {
	snap, err := w.loader.Load(ctx, w.runID)
	w.mu.Lock()
	w.loadErr = err
	w.mu.Unlock()
	if err != nil {
		w.logger.Printf("ERROR: run %s: failed to load snapshot: %v", w.runID, err)
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	reconcile.Seed(w.cache, w.runID, snap)
	return nil
}

// Err returns the error of the last snapshot load, if it failed.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadErr
}

// RunID returns the observed run id.
func (w *Watcher) RunID() string { return w.runID }

// State returns the connection state of the event stream.
func (w *Watcher) State() session.State { return w.session.State() }

// Close stops observing the run. It is safe to call more than once.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.session.RemoveMessageHandler(w.handler)
	w.session.Disconnect()
	w.stop()
}
