package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"galleryclean/internal/cleanup"
	"galleryclean/internal/deletion"
	"galleryclean/internal/metrics"
)

var (
	ErrNothingSelected  = errors.New("nothing selected")
	ErrDeletionInFlight = errors.New("deletion already in progress for category")
	ErrUnknownGroup     = errors.New("unknown cleanup group")
	ErrClosed           = errors.New("review session closed")
)

type Detector interface {
	Detect(ctx context.Context, category cleanup.Category, p cleanup.Params) ([]cleanup.Group, error)
}

type Deleter interface {
	Delete(ctx context.Context, ids []int64, host deletion.Host) deletion.Outcome
}

type Reloader interface {
	ForceReload(ctx context.Context) error
}

type Options struct {
	LargeVideoThresholdMB int
	OldMediaDays          int
	ReconcileDelay        time.Duration
	Metrics               *metrics.Metrics
}

type categoryState struct {
	inflight int
	deleting bool
	groups   []cleanup.Group
	err      string
	selected map[string]struct{}
}

// Controller drives the review-and-delete workflow for the three cleanup
// categories. Every category moves independently between loading, ready and
// deleting.
type Controller struct {
	detector Detector
	deleter  Deleter
	reloader Reloader
	opts     Options
	logger   zerolog.Logger

	mu          sync.Mutex
	states      map[cleanup.Category]*categoryState
	pending     map[string]cleanup.Category // authorization id -> category
	early       map[string]deletion.Outcome // results that beat their Delete call back
	reclaimable int64
	timers      map[*time.Timer]struct{}
	closed      bool

	unsubscribe func()
}

func NewController(
	detector Detector,
	deleter Deleter,
	slot *deletion.ConfirmationSlot,
	reloader Reloader,
	opts Options,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		detector: detector,
		deleter:  deleter,
		reloader: reloader,
		opts:     opts,
		logger:   logger,
		states:   make(map[cleanup.Category]*categoryState),
		pending:  make(map[string]cleanup.Category),
		early:    make(map[string]deletion.Outcome),
		timers:   make(map[*time.Timer]struct{}),
	}
	for _, cat := range cleanup.Categories {
		c.states[cat] = &categoryState{selected: make(map[string]struct{})}
	}
	if slot != nil {
		c.unsubscribe = slot.Subscribe(c.onConfirmation)
	}
	return c
}

func (c *Controller) params() cleanup.Params {
	return cleanup.Params{
		LargeVideoThresholdMB: c.opts.LargeVideoThresholdMB,
		OldMediaDays:          c.opts.OldMediaDays,
	}
}

// Scan runs detection for one category and blocks until it completes. The
// category shows as loading while any scan for it is running; whichever scan
// finishes last decides the result.
func (c *Controller) Scan(ctx context.Context, category cleanup.Category) error {
	c.mu.Lock()
	st, ok := c.states[category]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown cleanup category %d", int(category))
	}
	st.inflight++
	c.mu.Unlock()

	groups, err := c.detector.Detect(ctx, category, c.params())

	c.mu.Lock()
	defer c.mu.Unlock()

	st.inflight--
	if err != nil {
		st.groups = []cleanup.Group{}
		st.err = err.Error()
		c.logger.Error().Err(err).Str("category", category.String()).Msg("cleanup scan failed")
	} else {
		if groups == nil {
			groups = []cleanup.Group{}
		}
		st.groups = groups
		st.err = ""
	}
	pruneSelection(st)
	c.recompute()

	return err
}

// ScanAll scans every category concurrently and returns the first error.
func (c *Controller) ScanAll(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, cat := range cleanup.Categories {
		wg.Add(1)
		go func(cat cleanup.Category) {
			defer wg.Done()
			if err := c.Scan(ctx, cat); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(cat)
	}
	wg.Wait()
	return firstErr
}

// ToggleSelection selects or deselects one group of the category.
func (c *Controller) ToggleSelection(category cleanup.Category, groupID string, selected bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[category]
	if st == nil {
		return ErrUnknownGroup
	}
	if !selected {
		delete(st.selected, groupID)
		return nil
	}
	for _, g := range st.groups {
		if g.ID == groupID {
			st.selected[groupID] = struct{}{}
			return nil
		}
	}
	return ErrUnknownGroup
}

func (c *Controller) SelectAll(category cleanup.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.states[category]
	if st == nil {
		return
	}
	st.selected = make(map[string]struct{}, len(st.groups))
	for _, g := range st.groups {
		st.selected[g.ID] = struct{}{}
	}
}

func (c *Controller) ClearAll(category cleanup.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.states[category]; st != nil {
		st.selected = make(map[string]struct{})
	}
}

// DeleteSelected deletes the media behind the category's selected groups.
// Duplicate groups keep their first member.
func (c *Controller) DeleteSelected(ctx context.Context, category cleanup.Category, host deletion.Host) (deletion.Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return deletion.Outcome{}, ErrClosed
	}
	st := c.states[category]
	if st == nil {
		c.mu.Unlock()
		return deletion.Outcome{}, ErrUnknownGroup
	}
	if st.deleting {
		c.mu.Unlock()
		return deletion.Outcome{}, ErrDeletionInFlight
	}

	var ids []int64
	for _, g := range st.groups {
		if _, ok := st.selected[g.ID]; ok {
			ids = append(ids, g.DeletionTargets()...)
		}
	}
	if len(ids) == 0 {
		c.mu.Unlock()
		return deletion.Outcome{}, ErrNothingSelected
	}
	st.deleting = true
	c.mu.Unlock()

	c.logger.Info().
		Str("category", category.String()).
		Int("items", len(ids)).
		Msg("deleting selected media")

	out := c.deleter.Delete(ctx, ids, host)

	c.mu.Lock()
	defer c.mu.Unlock()

	if out.Status == deletion.StatusAwaitingConfirmation {
		if early, ok := c.early[out.AuthorizationID]; ok {
			delete(c.early, out.AuthorizationID)
			out = early
		} else {
			c.pending[out.AuthorizationID] = category
			return out, nil
		}
	}
	c.apply(category, out)

	return out, nil
}

// onConfirmation receives host-confirmed outcomes from the confirmation slot.
func (c *Controller) onConfirmation(out deletion.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	category, ok := c.pending[out.AuthorizationID]
	if !ok {
		c.early[out.AuthorizationID] = out
		return
	}
	delete(c.pending, out.AuthorizationID)
	c.apply(category, out)
}

// apply folds a terminal outcome into the state. Caller holds c.mu.
func (c *Controller) apply(category cleanup.Category, out deletion.Outcome) {
	st := c.states[category]
	st.deleting = false

	switch out.Status {
	case deletion.StatusSuccess:
		deleted := make(map[int64]struct{}, len(out.DeletedIDs))
		for _, id := range out.DeletedIDs {
			deleted[id] = struct{}{}
		}
		for _, other := range c.states {
			other.groups = pruneGroups(other.groups, deleted)
			pruneSelection(other)
		}
		st.selected = make(map[string]struct{})
		st.err = ""
		c.recompute()
		c.scheduleReconcile()
	case deletion.StatusCancelled:
		c.logger.Info().Str("category", category.String()).Msg("deletion cancelled")
	case deletion.StatusFailed:
		st.err = out.Reason
		c.logger.Warn().Str("category", category.String()).Str("reason", out.Reason).Msg("deletion failed")
		// A failed batch may still have touched the index.
		c.scheduleReconcile()
	}
}

func pruneGroups(groups []cleanup.Group, deleted map[int64]struct{}) []cleanup.Group {
	kept := make([]cleanup.Group, 0, len(groups))
	for _, g := range groups {
		if ng, ok := g.Without(deleted); ok {
			kept = append(kept, ng)
		}
	}
	return kept
}

func pruneSelection(st *categoryState) {
	present := make(map[string]struct{}, len(st.groups))
	for _, g := range st.groups {
		present[g.ID] = struct{}{}
	}
	for id := range st.selected {
		if _, ok := present[id]; !ok {
			delete(st.selected, id)
		}
	}
}

// recompute refreshes the reclaimable total. Caller holds c.mu.
func (c *Controller) recompute() {
	var total int64
	for _, st := range c.states {
		total += cleanup.TotalSize(st.groups)
	}
	c.reclaimable = total
	c.opts.Metrics.SetReclaimableBytes(total)
}

// scheduleReconcile reloads the catalog after ReconcileDelay so it matches
// what the index reports. Caller holds c.mu.
func (c *Controller) scheduleReconcile() {
	if c.reloader == nil || c.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(c.opts.ReconcileDelay, func() {
		c.mu.Lock()
		delete(c.timers, t)
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if err := c.reloader.ForceReload(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("post-deletion catalog reload failed")
		}
	})
	c.timers[t] = struct{}{}
}

// Close detaches from the confirmation slot and stops pending reloads.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
}
