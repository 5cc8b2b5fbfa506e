package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const locatorScheme = "media://"

var ErrInvalidLocator = errors.New("invalid locator")

// FormatLocator builds the access locator for an indexed item,
// e.g. media://images/42 or media://video/7.
func FormatLocator(kind MediaKind, id int64) string {
	collection := "images"
	if kind == KindVideo {
		collection = "video"
	}
	return locatorScheme + collection + "/" + strconv.FormatInt(id, 10)
}

// ParseLocator extracts the kind and id from a locator.
func ParseLocator(locator string) (MediaKind, int64, error) {
	rest, ok := strings.CutPrefix(locator, locatorScheme)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}

	collection, rawID, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}

	var kind MediaKind
	switch collection {
	case "images":
		kind = KindImage
	case "video":
		kind = KindVideo
	default:
		return 0, 0, fmt.Errorf("%w: unknown collection %q", ErrInvalidLocator, collection)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}

	return kind, id, nil
}
