package deletion

import (
	"errors"
	"fmt"
)

var (
	ErrNoValidTargets       = errors.New("no valid deletion targets")
	ErrPlatformDenied       = errors.New("deletion was not authorized")
	ErrNothingDeleted       = errors.New("no files were deleted")
	ErrNoHost               = errors.New("no host available to confirm deletion")
	ErrUnknownAuthorization = errors.New("unknown authorization")
	ErrUnknownResult        = errors.New("unknown authorization result")
)

// Tier names an authorization strategy.
type Tier string

const (
	TierHostMediated     Tier = "host"
	TierDirectIndex      Tier = "direct"
	TierLegacyFilesystem Tier = "legacy"
)

type Status string

const (
	StatusSuccess              Status = "success"
	StatusCancelled            Status = "cancelled"
	StatusFailed               Status = "failed"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
)

// Outcome is the result of a deletion request. DeletedIDs is set only on
// success; Reason only on failure or cancellation.
type Outcome struct {
	Status          Status  `json:"status"`
	DeletedIDs      []int64 `json:"deleted_ids,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	AuthorizationID string  `json:"authorization_id,omitempty"`
	Tier            Tier    `json:"tier"`
}

func succeeded(tier Tier, ids []int64) Outcome {
	return Outcome{Status: StatusSuccess, DeletedIDs: ids, Tier: tier}
}

func failed(tier Tier, err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: err.Error(), Tier: tier}
}

func cancelled(tier Tier) Outcome {
	return Outcome{Status: StatusCancelled, Reason: ErrPlatformDenied.Error(), Tier: tier}
}

// Result is the host's answer to an authorization prompt.
type Result int

const (
	ResultUnknown Result = iota
	ResultOK
	ResultCancelled
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseResult(s string) (Result, error) {
	switch s {
	case "ok":
		return ResultOK, nil
	case "cancelled", "canceled":
		return ResultCancelled, nil
	default:
		return ResultUnknown, fmt.Errorf("%w: %q", ErrUnknownResult, s)
	}
}
