package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"galleryclean/internal/metrics"
	"galleryclean/internal/storage"
)

var ErrLoadFailed = errors.New("catalog load failed")

// Source is the media index the catalog is loaded from.
type Source interface {
	ListMedia(ctx context.Context) ([]storage.MediaItem, error)
}

// Snapshot is an immutable view of the catalog. Items must not be modified.
type Snapshot struct {
	Items   []storage.MediaItem
	Loaded  bool
	Version uint64
}

type loadCall struct {
	done chan struct{}
	err  error
}

// Catalog caches the full media listing in memory and publishes every
// replacement to subscribers.
type Catalog struct {
	source  Source
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	snap     Snapshot
	inflight *loadCall
	loadSeq  uint64 // last started load
	applied  uint64 // last load whose result was kept
	subs     map[int]chan Snapshot
	nextSub  int
}

func New(source Source, logger zerolog.Logger, m *metrics.Metrics) *Catalog {
	return &Catalog{
		source:  source,
		logger:  logger,
		metrics: m,
		subs:    make(map[int]chan Snapshot),
	}
}

// Load loads the catalog once; later calls return the cached snapshot.
func (c *Catalog) Load(ctx context.Context) error {
	return c.LoadIfEmpty(ctx)
}

// LoadIfEmpty queries the index unless a snapshot is already loaded.
// Concurrent callers share one query.
func (c *Catalog) LoadIfEmpty(ctx context.Context) error {
	c.mu.Lock()
	if c.snap.Loaded {
		c.mu.Unlock()
		return nil
	}
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	call.err = c.load(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)

	return call.err
}

// ForceReload re-queries the index and replaces the snapshot. On failure the
// previous snapshot is kept.
func (c *Catalog) ForceReload(ctx context.Context) error {
	return c.load(ctx)
}

func (c *Catalog) load(ctx context.Context) error {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	start := time.Now()
	items, err := c.source.ListMedia(ctx)
	if err != nil {
		c.metrics.RecordCatalogLoad("error", 0)
		c.logger.Error().Err(err).Msg("catalog load failed")
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if items == nil {
		items = []storage.MediaItem{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer load already landed.
	if seq < c.applied {
		return nil
	}
	c.applied = seq
	c.replace(items)

	c.metrics.RecordCatalogLoad("ok", len(items))
	c.logger.Info().
		Int("items", len(items)).
		Uint64("version", c.snap.Version).
		Dur("took", time.Since(start)).
		Msg("catalog loaded")

	return nil
}

// replace swaps in a new snapshot and publishes it. Caller holds c.mu.
func (c *Catalog) replace(items []storage.MediaItem) {
	c.snap = Snapshot{
		Items:   items,
		Loaded:  true,
		Version: c.snap.Version + 1,
	}
	for _, ch := range c.subs {
		offer(ch, c.snap)
	}
}

// offer delivers snap, replacing any value the subscriber has not read yet.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- snap
}

// Snapshot returns the current view without touching the index.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe returns a channel that holds the latest snapshot. It starts with
// the current one; a slow reader only ever sees the newest value. The cancel
// func closes the channel.
func (c *Catalog) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snap
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Invalidate drops the given ids from the snapshot. Unknown ids are ignored
// and a call that removes nothing publishes nothing.
func (c *Catalog) Invalidate(ids []int64) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]storage.MediaItem, 0, len(c.snap.Items))
	for _, it := range c.snap.Items {
		if _, ok := drop[it.ID]; !ok {
			kept = append(kept, it)
		}
	}
	removed := len(c.snap.Items) - len(kept)
	if removed == 0 {
		return
	}

	c.replace(kept)
	c.metrics.SetCatalogItems(len(kept))
	c.logger.Debug().Int("removed", removed).Uint64("version", c.snap.Version).Msg("catalog invalidated")
}
