package review

import (
	"galleryclean/internal/cleanup"
)

// CategoryState is a read-only view of one category.
type CategoryState struct {
	Category  cleanup.Category `json:"category"`
	Loading   bool             `json:"loading"`
	Deleting  bool             `json:"deleting"`
	Groups    []cleanup.Group  `json:"groups"`
	Error     string           `json:"error,omitempty"`
	Selected  []string         `json:"selected"`
	TotalSize int64            `json:"total_size"`
}

// SessionState is a read-only view of the whole review session.
type SessionState struct {
	Categories       []CategoryState `json:"categories"`
	ReclaimableBytes int64           `json:"reclaimable_bytes"`
}

// Category returns the state for one category.
func (s SessionState) Category(c cleanup.Category) CategoryState {
	for _, cs := range s.Categories {
		if cs.Category == c {
			return cs
		}
	}
	return CategoryState{Category: c}
}

func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := SessionState{ReclaimableBytes: c.reclaimable}
	for _, cat := range cleanup.Categories {
		st := c.states[cat]

		selected := make([]string, 0, len(st.selected))
		for _, g := range st.groups {
			if _, ok := st.selected[g.ID]; ok {
				selected = append(selected, g.ID)
			}
		}

		groups := st.groups
		if groups == nil {
			groups = []cleanup.Group{}
		}

		out.Categories = append(out.Categories, CategoryState{
			Category:  cat,
			Loading:   st.inflight > 0,
			Deleting:  st.deleting,
			Groups:    groups,
			Error:     st.err,
			Selected:  selected,
			TotalSize: cleanup.TotalSize(st.groups),
		})
	}
	return out
}
