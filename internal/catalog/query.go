package catalog

import (
	"time"

	"galleryclean/internal/storage"
)

// Album groups catalog items by containing folder.
type Album struct {
	Folder    string              `json:"folder"`
	Count     int                 `json:"count"`
	TotalSize int64               `json:"total_size"`
	Cover     storage.MediaItem   `json:"cover"`
	Items     []storage.MediaItem `json:"-"`
}

// filter returns a snapshot holding only the items keep accepts. Order and
// version are preserved.
func (s Snapshot) filter(keep func(storage.MediaItem) bool) Snapshot {
	out := make([]storage.MediaItem, 0)
	for _, it := range s.Items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return Snapshot{Items: out, Loaded: s.Loaded, Version: s.Version}
}

func (s Snapshot) Images() Snapshot {
	return s.filter(func(it storage.MediaItem) bool { return it.Kind == storage.KindImage })
}

func (s Snapshot) Videos() Snapshot {
	return s.filter(func(it storage.MediaItem) bool { return it.Kind == storage.KindVideo })
}

// OlderThan keeps items captured before cutoff. Items with no capture time
// count as captured at the epoch.
func (s Snapshot) OlderThan(cutoff time.Time) Snapshot {
	return s.filter(func(it storage.MediaItem) bool { return it.CapturedAtOrEpoch().Before(cutoff) })
}

// LargerThan keeps items strictly larger than bytes. Unknown sizes never match.
func (s Snapshot) LargerThan(bytes int64) Snapshot {
	return s.filter(func(it storage.MediaItem) bool { return it.SizeOrZero() > bytes })
}

func (c *Catalog) Get(id int64) (storage.MediaItem, bool) {
	snap := c.Snapshot()
	for _, it := range snap.Items {
		if it.ID == id {
			return it, true
		}
	}
	return storage.MediaItem{}, false
}

// Albums groups the snapshot by folder, most recent album first.
func (c *Catalog) Albums() []Album {
	snap := c.Snapshot()

	index := make(map[string]int)
	var albums []Album
	for _, it := range snap.Items {
		i, ok := index[it.Folder]
		if !ok {
			i = len(albums)
			index[it.Folder] = i
			albums = append(albums, Album{Folder: it.Folder, Cover: it})
		}
		a := &albums[i]
		a.Items = append(a.Items, it)
		a.Count++
		a.TotalSize += it.SizeOrZero()
	}
	return albums
}
