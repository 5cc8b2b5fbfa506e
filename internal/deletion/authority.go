package deletion

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"galleryclean/internal/storage"
)

// Index is the platform media index deletions go through.
type Index interface {
	Locator(ctx context.Context, id int64) (string, error)
	DeleteLocator(ctx context.Context, locator string) (bool, error)
	ResolvePath(ctx context.Context, locator string) (string, error)
	Forget(ctx context.Context, locator string) error
	CreateDeletionAuthorization(ctx context.Context, locators []string) (*storage.Authorization, error)
	CompleteAuthorization(ctx context.Context, id string, approved bool) ([]string, error)
}

// Host shows an authorization prompt to whoever can approve it. It is
// supplied per request and never retained.
type Host interface {
	PresentAuthorization(ctx context.Context, auth *storage.Authorization) error
}

// Target is a resolved deletion target.
type Target struct {
	ID      int64
	Locator string
}

// Authority performs deletions under one authorization tier. A non-nil error
// means the request never reached the point of deleting anything.
type Authority interface {
	Tier() Tier
	Delete(ctx context.Context, targets []Target, host Host) (Outcome, error)
}

// HostMediated batches every target into one authorization and hands it to
// the host. The answer arrives later through the coordinator.
type HostMediated struct {
	index  Index
	logger zerolog.Logger
}

func NewHostMediated(index Index, logger zerolog.Logger) *HostMediated {
	return &HostMediated{index: index, logger: logger}
}

func (a *HostMediated) Tier() Tier { return TierHostMediated }

func (a *HostMediated) Delete(ctx context.Context, targets []Target, host Host) (Outcome, error) {
	if host == nil {
		return Outcome{}, ErrNoHost
	}

	locators := make([]string, len(targets))
	for i, t := range targets {
		locators[i] = t.Locator
	}

	auth, err := a.index.CreateDeletionAuthorization(ctx, locators)
	if err != nil {
		return Outcome{}, fmt.Errorf("create authorization: %w", err)
	}

	if err := host.PresentAuthorization(ctx, auth); err != nil {
		if _, derr := a.index.CompleteAuthorization(ctx, auth.ID, false); derr != nil {
			a.logger.Warn().Err(derr).Str("authorization", auth.ID).Msg("failed to discard authorization")
		}
		return Outcome{}, fmt.Errorf("present authorization: %w", err)
	}

	a.logger.Info().
		Str("authorization", auth.ID).
		Int("items", len(targets)).
		Msg("deletion awaiting host confirmation")

	return Outcome{
		Status:          StatusAwaitingConfirmation,
		AuthorizationID: auth.ID,
		Tier:            TierHostMediated,
	}, nil
}

// DirectIndex deletes each target through the index.
type DirectIndex struct {
	index  Index
	logger zerolog.Logger
}

func NewDirectIndex(index Index, logger zerolog.Logger) *DirectIndex {
	return &DirectIndex{index: index, logger: logger}
}

func (a *DirectIndex) Tier() Tier { return TierDirectIndex }

func (a *DirectIndex) Delete(ctx context.Context, targets []Target, _ Host) (Outcome, error) {
	var agg aggregate
	for _, t := range targets {
		agg.record(t.ID, a.deleteOne(ctx, t))
	}
	return agg.outcome(TierDirectIndex, a.logger), nil
}

func (a *DirectIndex) deleteOne(ctx context.Context, t Target) error {
	ok, err := a.index.DeleteLocator(ctx, t.Locator)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", t.Locator, storage.ErrNotFound)
	}
	return nil
}

// LegacyFilesystem removes files directly and then drops them from the
// index. Targets whose path cannot be resolved go through the index instead.
type LegacyFilesystem struct {
	index  Index
	direct *DirectIndex
	remove func(path string) error
	logger zerolog.Logger
}

func NewLegacyFilesystem(index Index, logger zerolog.Logger) *LegacyFilesystem {
	return &LegacyFilesystem{
		index:  index,
		direct: NewDirectIndex(index, logger),
		remove: os.Remove,
		logger: logger,
	}
}

func (a *LegacyFilesystem) Tier() Tier { return TierLegacyFilesystem }

func (a *LegacyFilesystem) Delete(ctx context.Context, targets []Target, _ Host) (Outcome, error) {
	var agg aggregate
	for _, t := range targets {
		agg.record(t.ID, a.deleteOne(ctx, t))
	}
	return agg.outcome(TierLegacyFilesystem, a.logger), nil
}

func (a *LegacyFilesystem) deleteOne(ctx context.Context, t Target) error {
	path, err := a.index.ResolvePath(ctx, t.Locator)
	if err != nil || path == "" {
		a.logger.Debug().Err(err).Str("locator", t.Locator).Msg("path unresolvable, deleting through index")
		return a.direct.deleteOne(ctx, t)
	}

	if err := a.remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	if err := a.index.Forget(ctx, t.Locator); err != nil {
		a.logger.Warn().Err(err).Str("locator", t.Locator).Msg("file removed but index entry kept")
	}
	return nil
}

type aggregate struct {
	deleted []int64
	failed  []int64
	lastErr error
}

func (a *aggregate) record(id int64, err error) {
	if err != nil {
		a.failed = append(a.failed, id)
		a.lastErr = err
		return
	}
	a.deleted = append(a.deleted, id)
}

func (a *aggregate) outcome(tier Tier, logger zerolog.Logger) Outcome {
	if len(a.deleted) == 0 {
		if a.lastErr != nil {
			return failed(tier, fmt.Errorf("%w: %w", ErrNothingDeleted, a.lastErr))
		}
		return failed(tier, ErrNothingDeleted)
	}
	if len(a.failed) > 0 {
		logger.Warn().
			Str("tier", string(tier)).
			Interface("failed_ids", a.failed).
			Err(a.lastErr).
			Msg("some items could not be deleted")
	}
	return succeeded(tier, a.deleted)
}

// Capabilities is what the runtime supports, probed once at startup.
type Capabilities struct {
	HostConfirmation bool
	IndexDeletion    bool
}

// SelectAuthority picks the authority for this process. A non-empty pinned
// tier overrides the probe.
func SelectAuthority(caps Capabilities, pinned Tier, index Index, logger zerolog.Logger) (Authority, error) {
	tier := pinned
	if tier == "" {
		switch {
		case caps.HostConfirmation:
			tier = TierHostMediated
		case caps.IndexDeletion:
			tier = TierDirectIndex
		default:
			tier = TierLegacyFilesystem
		}
	}

	var a Authority
	switch tier {
	case TierHostMediated:
		a = NewHostMediated(index, logger)
	case TierDirectIndex:
		a = NewDirectIndex(index, logger)
	case TierLegacyFilesystem:
		a = NewLegacyFilesystem(index, logger)
	default:
		return nil, fmt.Errorf("unknown deletion tier %q", tier)
	}

	logger.Info().
		Str("tier", string(tier)).
		Bool("pinned", pinned != "").
		Bool("host_confirmation", caps.HostConfirmation).
		Bool("index_deletion", caps.IndexDeletion).
		Msg("deletion authority selected")

	return a, nil
}
