package cleanup

import (
	"encoding/json"
	"fmt"

	"galleryclean/internal/storage"
)

type Category int

const (
	Duplicates Category = iota
	LargeVideos
	OldMedia
)

// Categories lists every category in presentation order.
var Categories = []Category{Duplicates, LargeVideos, OldMedia}

func (c Category) String() string {
	switch c {
	case Duplicates:
		return "duplicates"
	case LargeVideos:
		return "large_videos"
	case OldMedia:
		return "old_media"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseCategory(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown cleanup category %q", s)
}

// MinMembers is the smallest group that still means something for the
// category. Fewer members and the group is dropped.
func (c Category) MinMembers() int {
	if c == Duplicates {
		return 2
	}
	return 1
}

// Criteria records why a group was formed. Only the field matching the
// group's category is set.
type Criteria struct {
	ContentHash string `json:"content_hash,omitempty"`
	ThresholdMB int    `json:"threshold_mb,omitempty"`
	DaysOld     int    `json:"days_old,omitempty"`
}

// Group is a set of media items that can be reclaimed together.
type Group struct {
	ID        string              `json:"id"`
	Category  Category            `json:"category"`
	Criteria  Criteria            `json:"criteria"`
	Items     []storage.MediaItem `json:"items"`
	TotalSize int64               `json:"total_size"`
	Count     int                 `json:"count"`
}

func newGroup(id string, category Category, criteria Criteria, items []storage.MediaItem) Group {
	g := Group{
		ID:       id,
		Category: category,
		Criteria: criteria,
		Items:    items,
		Count:    len(items),
	}
	for _, it := range items {
		g.TotalSize += it.SizeOrZero()
	}
	return g
}

// Without returns the group minus the given ids. ok is false when the group
// falls below its category's minimum and should be dropped.
func (g Group) Without(deleted map[int64]struct{}) (Group, bool) {
	kept := make([]storage.MediaItem, 0, len(g.Items))
	for _, it := range g.Items {
		if _, gone := deleted[it.ID]; !gone {
			kept = append(kept, it)
		}
	}
	if len(kept) < g.Category.MinMembers() {
		return Group{}, false
	}
	if len(kept) == len(g.Items) {
		return g, true
	}
	return newGroup(g.ID, g.Category, g.Criteria, kept), true
}

// DeletionTargets returns the ids a deletion of this group removes. A
// duplicate group keeps its first member.
func (g Group) DeletionTargets() []int64 {
	items := g.Items
	if g.Category == Duplicates && len(items) > 0 {
		items = items[1:]
	}
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// TotalSize sums group sizes.
func TotalSize(groups []Group) int64 {
	var total int64
	for _, g := range groups {
		total += g.TotalSize
	}
	return total
}
