package storage

import "time"

type MediaKind int

const (
	KindImage MediaKind = iota + 1
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// MediaItem is one indexed photo or video. Values are never mutated after
// they leave the index; the catalog replaces or drops them instead.
type MediaItem struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Locator    string     `json:"locator"`
	CapturedAt *time.Time `json:"captured_at,omitempty"` // nil when the file carries no capture metadata
	Kind       MediaKind  `json:"kind"`
	Folder     string     `json:"folder,omitempty"`
	Size       *int64     `json:"size,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"` // videos only
	ModifiedAt time.Time  `json:"modified_at"`           // file mtime at the last scan
}

// SizeOrZero returns the byte size, treating an unknown size as 0.
func (m MediaItem) SizeOrZero() int64 {
	if m.Size == nil {
		return 0
	}
	return *m.Size
}

// CapturedAtOrEpoch returns the capture time, or the Unix epoch when absent.
func (m MediaItem) CapturedAtOrEpoch() time.Time {
	if m.CapturedAt == nil {
		return time.Unix(0, 0)
	}
	return *m.CapturedAt
}

// IndexEntry is what the scanner writes for a file found on disk.
type IndexEntry struct {
	Path       string
	Name       string
	Folder     string
	Kind       MediaKind
	Size       int64
	CapturedAt *time.Time
	DurationMs *int64
	ModifiedAt time.Time
}

type AuthorizationStatus string

const (
	AuthorizationPending   AuthorizationStatus = "pending"
	AuthorizationApproved  AuthorizationStatus = "approved"
	AuthorizationCancelled AuthorizationStatus = "cancelled"
)

// Authorization is a batched deletion request waiting for a host decision.
type Authorization struct {
	ID        string              `json:"id"`
	Locators  []string            `json:"locators"`
	Status    AuthorizationStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}
