package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"galleryclean/internal/metrics"
	"galleryclean/internal/storage"
)

// Invalidator drops deleted items from an in-memory view such as the
// catalog or the thumbnail cache.
type Invalidator interface {
	Invalidate(ids []int64)
}

// Invalidators fans one invalidation out to several views, in order.
type Invalidators []Invalidator

func (v Invalidators) Invalidate(ids []int64) {
	for _, inv := range v {
		inv.Invalidate(ids)
	}
}

// Coordinator resolves media ids, runs them through the selected authority
// and keeps the catalog in step with what was actually deleted.
type Coordinator struct {
	index       Index
	authority   Authority
	fallback    *DirectIndex
	invalidator Invalidator
	slot        *ConfirmationSlot
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	pending map[string][]Target // authorization id -> submitted targets
}

func NewCoordinator(
	index Index,
	authority Authority,
	invalidator Invalidator,
	slot *ConfirmationSlot,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		index:       index,
		authority:   authority,
		fallback:    NewDirectIndex(index, logger),
		invalidator: invalidator,
		slot:        slot,
		logger:      logger,
		metrics:     m,
		pending:     make(map[string][]Target),
	}
}

func (c *Coordinator) Tier() Tier {
	return c.authority.Tier()
}

// Delete removes the given media. Ids that no longer resolve are skipped.
// With the host-mediated tier the outcome is usually AwaitingConfirmation and
// the final result is delivered through the confirmation slot.
func (c *Coordinator) Delete(ctx context.Context, ids []int64, host Host) Outcome {
	targets := make([]Target, 0, len(ids))
	for _, id := range ids {
		locator, err := c.index.Locator(ctx, id)
		if err != nil {
			c.logger.Warn().Err(err).Int64("id", id).Msg("skipping unresolvable media id")
			continue
		}
		targets = append(targets, Target{ID: id, Locator: locator})
	}

	if len(targets) == 0 {
		out := failed(c.authority.Tier(), ErrNoValidTargets)
		c.record(out)
		return out
	}

	var presented string
	if host != nil {
		host = trackingHost{Host: host, track: func(authID string) {
			presented = authID
			c.mu.Lock()
			c.pending[authID] = targets
			c.mu.Unlock()
		}}
	}

	out, err := c.authority.Delete(ctx, targets, host)
	if err != nil && presented != "" {
		c.mu.Lock()
		delete(c.pending, presented)
		c.mu.Unlock()
	}
	if err != nil {
		if c.authority.Tier() != TierHostMediated {
			out = failed(c.authority.Tier(), err)
			c.record(out)
			return out
		}
		c.logger.Warn().Err(err).Msg("host confirmation unavailable, deleting directly")
		out, _ = c.fallback.Delete(ctx, targets, nil)
	}

	if out.Status == StatusSuccess {
		c.invalidator.Invalidate(out.DeletedIDs)
	}

	c.record(out)
	c.logger.Info().
		Str("tier", string(out.Tier)).
		Str("status", string(out.Status)).
		Int("requested", len(ids)).
		Int("deleted", len(out.DeletedIDs)).
		Msg("deletion finished")

	return out
}

// HandleAuthorizationResult applies the host's answer to a pending
// authorization and delivers the outcome to the confirmation slot. Once
// accepted, the answer is committed even if ctx is cancelled midway.
func (c *Coordinator) HandleAuthorizationResult(ctx context.Context, authID string, result Result) (Outcome, error) {
	c.mu.Lock()
	submitted, ok := c.pending[authID]
	delete(c.pending, authID)
	c.mu.Unlock()

	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownAuthorization, authID)
	}

	ctx = context.WithoutCancel(ctx)

	var out Outcome
	switch result {
	case ResultOK:
		out = c.commit(ctx, authID, submitted)
	case ResultCancelled:
		c.discard(ctx, authID)
		out = cancelled(TierHostMediated)
	default:
		c.discard(ctx, authID)
		out = failed(TierHostMediated, ErrUnknownResult)
	}
	out.AuthorizationID = authID

	c.record(out)
	c.logger.Info().
		Str("authorization", authID).
		Str("result", result.String()).
		Str("status", string(out.Status)).
		Msg("authorization resolved")

	if !c.slot.Deliver(out) {
		c.logger.Warn().Str("authorization", authID).Msg("no confirmation subscriber, outcome dropped")
	}

	return out, nil
}

// commit deletes an approved authorization and reports only the targets the
// index actually removed.
func (c *Coordinator) commit(ctx context.Context, authID string, submitted []Target) Outcome {
	removed, err := c.index.CompleteAuthorization(ctx, authID, true)

	gone := make(map[string]struct{}, len(removed))
	for _, locator := range removed {
		gone[locator] = struct{}{}
	}
	var deleted, kept []int64
	for _, t := range submitted {
		if _, ok := gone[t.Locator]; ok {
			deleted = append(deleted, t.ID)
		} else {
			kept = append(kept, t.ID)
		}
	}

	if len(deleted) == 0 {
		if err != nil {
			return failed(TierHostMediated, fmt.Errorf("%w: %w", ErrNothingDeleted, err))
		}
		return failed(TierHostMediated, ErrNothingDeleted)
	}
	if len(kept) > 0 || err != nil {
		c.logger.Warn().
			Err(err).
			Str("authorization", authID).
			Interface("failed_ids", kept).
			Msg("some items could not be deleted")
	}

	c.invalidator.Invalidate(deleted)
	return succeeded(TierHostMediated, deleted)
}

// trackingHost registers an authorization as pending before the host sees
// it, so an answer never arrives for an unknown id.
type trackingHost struct {
	Host
	track func(authID string)
}

func (h trackingHost) PresentAuthorization(ctx context.Context, auth *storage.Authorization) error {
	h.track(auth.ID)
	return h.Host.PresentAuthorization(ctx, auth)
}

func (c *Coordinator) discard(ctx context.Context, authID string) {
	if _, err := c.index.CompleteAuthorization(ctx, authID, false); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Str("authorization", authID).Msg("failed to discard authorization")
	}
}

func (c *Coordinator) record(out Outcome) {
	c.metrics.RecordDeletion(string(out.Tier), string(out.Status), len(out.DeletedIDs))
}
