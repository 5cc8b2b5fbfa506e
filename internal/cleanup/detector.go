package cleanup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"galleryclean/internal/catalog"
	"galleryclean/internal/metrics"
	"galleryclean/internal/storage"
)

const bytesPerMB = 1024 * 1024

// CatalogReader is the catalog view the detector works from.
type CatalogReader interface {
	LoadIfEmpty(ctx context.Context) error
	Snapshot() catalog.Snapshot
}

// ContentOpener opens the bytes behind a locator.
type ContentOpener interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// FingerprintCache remembers content hashes. A hit must mean the file is
// unchanged, so entries are keyed by locator, size and modification time.
type FingerprintCache interface {
	Get(locator string, size int64, modTime time.Time) (string, bool)
	Put(locator string, size int64, modTime time.Time, fingerprint string)
}

type Options struct {
	Workers      int
	Fingerprints FingerprintCache
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Params carries the thresholds a scan runs with.
type Params struct {
	LargeVideoThresholdMB int
	OldMediaDays          int
}

type Detector struct {
	reader CatalogReader
	opener ContentOpener
	opts   Options
	logger zerolog.Logger
}

func NewDetector(reader CatalogReader, opener ContentOpener, opts Options, logger zerolog.Logger) *Detector {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() / 2
		if opts.Workers < 1 {
			opts.Workers = 1
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		reader: reader,
		opener: opener,
		opts:   opts,
		logger: logger,
	}
}

func (d *Detector) snapshot(ctx context.Context) (catalog.Snapshot, error) {
	if err := d.reader.LoadIfEmpty(ctx); err != nil {
		return catalog.Snapshot{}, err
	}
	return d.reader.Snapshot(), nil
}

// Duplicates groups images with identical content. Groups keep catalog order
// and every group has at least two members.
func (d *Detector) Duplicates(ctx context.Context) ([]Group, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.duplicates(ctx, snap)
}

// LargeVideos returns one group per video larger than thresholdMB.
func (d *Detector) LargeVideos(ctx context.Context, thresholdMB int) ([]Group, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return largeVideos(snap, thresholdMB), nil
}

// OldMedia returns one group per item captured more than daysOld days ago.
// Items without a capture time are always old.
func (d *Detector) OldMedia(ctx context.Context, daysOld int) ([]Group, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return oldMedia(snap, daysOld, d.opts.Now()), nil
}

// All runs every detection over one snapshot and returns duplicates, then
// large videos, then old media.
func (d *Detector) All(ctx context.Context, thresholdMB, daysOld int) ([]Group, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var (
		wg     sync.WaitGroup
		dups   []Group
		dupErr error
		large  []Group
		old    []Group
		now    = d.opts.Now()
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		dups, dupErr = d.duplicates(ctx, snap)
	}()
	go func() {
		defer wg.Done()
		large = largeVideos(snap, thresholdMB)
	}()
	go func() {
		defer wg.Done()
		old = oldMedia(snap, daysOld, now)
	}()
	wg.Wait()

	if dupErr != nil {
		return nil, dupErr
	}

	all := make([]Group, 0, len(dups)+len(large)+len(old))
	all = append(all, dups...)
	all = append(all, large...)
	all = append(all, old...)
	return all, nil
}

// Detect runs the detection for a single category.
func (d *Detector) Detect(ctx context.Context, category Category, p Params) ([]Group, error) {
	start := time.Now()

	var (
		groups []Group
		err    error
	)
	switch category {
	case Duplicates:
		groups, err = d.Duplicates(ctx)
	case LargeVideos:
		groups, err = d.LargeVideos(ctx, p.LargeVideoThresholdMB)
	case OldMedia:
		groups, err = d.OldMedia(ctx, p.OldMediaDays)
	default:
		return nil, fmt.Errorf("unknown cleanup category %d", int(category))
	}
	if err != nil {
		return nil, err
	}

	d.opts.Metrics.RecordScan(category.String(), len(groups), time.Since(start))
	d.logger.Debug().
		Str("category", category.String()).
		Int("groups", len(groups)).
		Dur("took", time.Since(start)).
		Msg("cleanup scan finished")

	return groups, nil
}

func (d *Detector) duplicates(ctx context.Context, snap catalog.Snapshot) ([]Group, error) {
	images := snap.Images().Items

	fingerprints, err := d.fingerprintAll(ctx, images)
	if err != nil {
		return nil, err
	}

	byHash := make(map[string][]storage.MediaItem)
	var order []string
	for i, it := range images {
		fp := fingerprints[i]
		if _, seen := byHash[fp]; !seen {
			order = append(order, fp)
		}
		byHash[fp] = append(byHash[fp], it)
	}

	var groups []Group
	for _, fp := range order {
		members := byHash[fp]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, newGroup("duplicates:"+fp, Duplicates, Criteria{ContentHash: fp}, members))
	}
	return groups, nil
}

// fingerprintAll hashes images on a bounded worker pool. The result is
// indexed like images.
func (d *Detector) fingerprintAll(ctx context.Context, images []storage.MediaItem) ([]string, error) {
	results := make([]string, len(images))
	jobs := make(chan int, len(images))
	for i := range images {
		jobs <- i
	}
	close(jobs)

	workers := d.opts.Workers
	if workers > len(images) {
		workers = len(images)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				results[i] = d.fingerprint(ctx, images[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Detector) fingerprint(ctx context.Context, it storage.MediaItem) string {
	size := it.SizeOrZero()
	if d.opts.Fingerprints != nil {
		if fp, ok := d.opts.Fingerprints.Get(it.Locator, size, it.ModifiedAt); ok {
			return fp
		}
	}

	fp, err := d.hashContent(ctx, it.Locator)
	if err != nil {
		d.opts.Metrics.IncHashFailures()
		d.logger.Debug().Err(err).Str("locator", it.Locator).Msg("content unreadable, fingerprinting by locator")
		return locatorFingerprint(it.Locator)
	}

	if d.opts.Fingerprints != nil {
		d.opts.Fingerprints.Put(it.Locator, size, it.ModifiedAt, fp)
	}
	return fp
}

func (d *Detector) hashContent(ctx context.Context, locator string) (string, error) {
	r, err := d.opener.Open(ctx, locator)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read %s: %w", locator, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// locatorFingerprint stands in for a content hash when the bytes cannot be
// read. It never collides with a real content hash.
func locatorFingerprint(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return "locator:" + hex.EncodeToString(sum[:])
}

func largeVideos(snap catalog.Snapshot, thresholdMB int) []Group {
	threshold := int64(thresholdMB) * bytesPerMB

	var groups []Group
	for _, it := range snap.Videos().LargerThan(threshold).Items {
		id := fmt.Sprintf("large_videos:%dmb:%d", thresholdMB, it.ID)
		groups = append(groups, newGroup(id, LargeVideos, Criteria{ThresholdMB: thresholdMB}, []storage.MediaItem{it}))
	}
	return groups
}

func oldMedia(snap catalog.Snapshot, daysOld int, now time.Time) []Group {
	cutoff := now.Add(-time.Duration(daysOld) * 24 * time.Hour)

	var groups []Group
	for _, it := range snap.OlderThan(cutoff).Items {
		id := fmt.Sprintf("old_media:%dd:%d", daysOld, it.ID)
		groups = append(groups, newGroup(id, OldMedia, Criteria{DaysOld: daysOld}, []storage.MediaItem{it}))
	}
	return groups
}
