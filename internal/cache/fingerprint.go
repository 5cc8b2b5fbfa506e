package cache

import (
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FingerprintCache remembers content fingerprints by locator, byte size and
// modification time, so an unchanged file is not re-hashed on every
// duplicate scan and a rewritten one always is.
type FingerprintCache struct {
	lru *lru.Cache[string, string]
}

func NewFingerprintCache(size int) *FingerprintCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, string](size)
	return &FingerprintCache{lru: c}
}

func fingerprintKey(locator string, size int64, modTime time.Time) string {
	return locator + "#" + strconv.FormatInt(size, 10) + "#" + strconv.FormatInt(modTime.UnixNano(), 10)
}

func (c *FingerprintCache) Get(locator string, size int64, modTime time.Time) (string, bool) {
	return c.lru.Get(fingerprintKey(locator, size, modTime))
}

func (c *FingerprintCache) Put(locator string, size int64, modTime time.Time, fingerprint string) {
	c.lru.Add(fingerprintKey(locator, size, modTime), fingerprint)
}
