package media

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// imageCaptureTime reads the EXIF DateTime of an image. Files without EXIF
// return nil.
func imageCaptureTime(path string) *time.Time {
	if !exifCapable(path) {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}

	t, err := x.DateTime()
	if err != nil || t.IsZero() {
		return nil
	}

	return &t
}
