package review

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galleryclean/internal/cleanup"
	"galleryclean/internal/deletion"
	"galleryclean/internal/storage"
)

type scanResponse struct {
	groups []cleanup.Group
	err    error
	gate   chan struct{}
}

// scriptedDetector answers Detect calls from a queue, per category.
type scriptedDetector struct {
	mu        sync.Mutex
	responses map[cleanup.Category][]scanResponse
	calls     atomic.Int32
}

func newScriptedDetector() *scriptedDetector {
	return &scriptedDetector{responses: map[cleanup.Category][]scanResponse{}}
}

func (d *scriptedDetector) push(cat cleanup.Category, r scanResponse) {
	d.mu.Lock()
	d.responses[cat] = append(d.responses[cat], r)
	d.mu.Unlock()
}

func (d *scriptedDetector) Detect(ctx context.Context, cat cleanup.Category, p cleanup.Params) ([]cleanup.Group, error) {
	d.mu.Lock()
	queue := d.responses[cat]
	var r scanResponse
	if len(queue) > 0 {
		r = queue[0]
		d.responses[cat] = queue[1:]
	}
	d.mu.Unlock()
	d.calls.Add(1)

	if r.gate != nil {
		<-r.gate
	}
	return r.groups, r.err
}

type fakeDeleter struct {
	mu    sync.Mutex
	out   deletion.Outcome
	gate  chan struct{}
	calls [][]int64
}

func (d *fakeDeleter) Delete(ctx context.Context, ids []int64, host deletion.Host) deletion.Outcome {
	d.mu.Lock()
	d.calls = append(d.calls, ids)
	gate := d.gate
	out := d.out
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return out
}

func mediaItem(id, size int64, kind storage.MediaKind) storage.MediaItem {
	return storage.MediaItem{ID: id, Kind: kind, Locator: storage.FormatLocator(kind, id), Size: &size}
}

func perItemGroups(cat cleanup.Category, items ...storage.MediaItem) []cleanup.Group {
	var groups []cleanup.Group
	for _, it := range items {
		groups = append(groups, cleanup.Group{
			ID:        cat.String() + ":" + it.Locator,
			Category:  cat,
			Items:     []storage.MediaItem{it},
			Count:     1,
			TotalSize: it.SizeOrZero(),
		})
	}
	return groups
}

func dupGroup(items ...storage.MediaItem) cleanup.Group {
	g := cleanup.Group{ID: "duplicates:h", Category: cleanup.Duplicates, Items: items, Count: len(items)}
	for _, it := range items {
		g.TotalSize += it.SizeOrZero()
	}
	return g
}

func newTestController(det Detector, del Deleter, slot *deletion.ConfirmationSlot) *Controller {
	c := NewController(det, del, slot, nil, Options{
		LargeVideoThresholdMB: 100,
		OldMediaDays:          365,
		ReconcileDelay:        time.Hour,
	}, zerolog.Nop())
	return c
}

func TestScan_ReadyAndError(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.LargeVideos, scanResponse{groups: perItemGroups(cleanup.LargeVideos, mediaItem(5, 500, storage.KindVideo))})
	det.push(cleanup.LargeVideos, scanResponse{err: errors.New("catalog load failed")})
	c := newTestController(det, &fakeDeleter{}, nil)
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.LargeVideos))
	st := c.State().Category(cleanup.LargeVideos)
	assert.False(t, st.Loading)
	assert.Len(t, st.Groups, 1)
	assert.Empty(t, st.Error)
	assert.Equal(t, int64(500), c.State().ReclaimableBytes)

	require.NoError(t, c.ToggleSelection(cleanup.LargeVideos, st.Groups[0].ID, true))

	assert.Error(t, c.Scan(context.Background(), cleanup.LargeVideos))
	st = c.State().Category(cleanup.LargeVideos)
	assert.Empty(t, st.Groups)
	assert.Equal(t, "catalog load failed", st.Error)
	assert.Empty(t, st.Selected, "failed scan prunes the selection")
	assert.Zero(t, c.State().ReclaimableBytes)
}

func TestScan_LastCompletedWins(t *testing.T) {
	det := newScriptedDetector()
	slow := make(chan struct{})
	staleGroups := perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage))
	freshGroups := perItemGroups(cleanup.OldMedia, mediaItem(2, 20, storage.KindImage), mediaItem(3, 30, storage.KindImage))
	det.push(cleanup.OldMedia, scanResponse{groups: staleGroups, gate: slow})
	det.push(cleanup.OldMedia, scanResponse{groups: freshGroups})
	c := newTestController(det, &fakeDeleter{}, nil)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Scan(context.Background(), cleanup.OldMedia) }()
	require.Eventually(t, func() bool { return det.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	assert.True(t, c.State().Category(cleanup.OldMedia).Loading, "older scan still running")
	assert.Len(t, c.State().Category(cleanup.OldMedia).Groups, 2)

	close(slow)
	require.NoError(t, <-done)

	st := c.State().Category(cleanup.OldMedia)
	assert.False(t, st.Loading)
	assert.Equal(t, staleGroups, st.Groups, "the scan that completed last wins")
}

func TestSelection_OnlyCurrentGroups(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage), mediaItem(2, 10, storage.KindImage))})
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(2, 10, storage.KindImage))})
	c := newTestController(det, &fakeDeleter{}, nil)
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	assert.ErrorIs(t, c.ToggleSelection(cleanup.OldMedia, "nope", true), ErrUnknownGroup)

	c.SelectAll(cleanup.OldMedia)
	assert.Len(t, c.State().Category(cleanup.OldMedia).Selected, 2)

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	st := c.State().Category(cleanup.OldMedia)
	assert.Equal(t, []string{st.Groups[0].ID}, st.Selected, "stale ids are pruned on rescan")

	c.ClearAll(cleanup.OldMedia)
	assert.Empty(t, c.State().Category(cleanup.OldMedia).Selected)
}

func TestDeleteSelected_NothingSelected(t *testing.T) {
	c := newTestController(newScriptedDetector(), &fakeDeleter{}, nil)
	defer c.Close()

	_, err := c.DeleteSelected(context.Background(), cleanup.Duplicates, nil)
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.False(t, c.State().Category(cleanup.Duplicates).Deleting)
}

func TestDeleteSelected_DuplicatesKeepFirst(t *testing.T) {
	a, b, d := mediaItem(1, 100, storage.KindImage), mediaItem(2, 100, storage.KindImage), mediaItem(3, 100, storage.KindImage)
	det := newScriptedDetector()
	det.push(cleanup.Duplicates, scanResponse{groups: []cleanup.Group{dupGroup(a, b, d)}})
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, a, b)})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusSuccess, DeletedIDs: []int64{2, 3}}}
	c := newTestController(det, del, nil)
	defer c.Close()

	require.NoError(t, c.ScanAll(context.Background()))
	c.SelectAll(cleanup.Duplicates)
	c.SelectAll(cleanup.OldMedia)

	out, err := c.DeleteSelected(context.Background(), cleanup.Duplicates, nil)
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusSuccess, out.Status)
	assert.Equal(t, [][]int64{{2, 3}}, del.calls)

	state := c.State()
	assert.Empty(t, state.Category(cleanup.Duplicates).Groups, "a single survivor is no longer a duplicate group")
	assert.Empty(t, state.Category(cleanup.Duplicates).Selected)

	old := state.Category(cleanup.OldMedia)
	require.Len(t, old.Groups, 1, "deleted items leave every category")
	assert.Equal(t, int64(1), old.Groups[0].Items[0].ID)
	assert.Len(t, old.Selected, 1, "other categories keep their surviving selection")
	assert.Equal(t, int64(100), state.ReclaimableBytes)
}

func TestDeleteSelected_FailureKeepsGroups(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.LargeVideos, scanResponse{groups: perItemGroups(cleanup.LargeVideos, mediaItem(7, 999, storage.KindVideo))})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusFailed, Reason: "no files were deleted: disk is read-only"}}
	c := newTestController(det, del, nil)
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.LargeVideos))
	c.SelectAll(cleanup.LargeVideos)

	out, err := c.DeleteSelected(context.Background(), cleanup.LargeVideos, nil)
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusFailed, out.Status)

	st := c.State().Category(cleanup.LargeVideos)
	assert.False(t, st.Deleting)
	assert.Len(t, st.Groups, 1)
	assert.Equal(t, "no files were deleted: disk is read-only", st.Error)
}

func TestDeleteSelected_SingleInFlightPerCategory(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.LargeVideos, scanResponse{groups: perItemGroups(cleanup.LargeVideos, mediaItem(7, 999, storage.KindVideo))})
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(8, 1, storage.KindImage))})
	gate := make(chan struct{})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusCancelled}, gate: gate}
	c := newTestController(det, del, nil)
	defer c.Close()

	require.NoError(t, c.ScanAll(context.Background()))
	c.SelectAll(cleanup.LargeVideos)
	c.SelectAll(cleanup.OldMedia)

	done := make(chan struct{}, 2)
	go func() {
		_, _ = c.DeleteSelected(context.Background(), cleanup.LargeVideos, nil)
		done <- struct{}{}
	}()
	require.Eventually(t, func() bool { return c.State().Category(cleanup.LargeVideos).Deleting }, time.Second, time.Millisecond)

	_, err := c.DeleteSelected(context.Background(), cleanup.LargeVideos, nil)
	assert.ErrorIs(t, err, ErrDeletionInFlight)

	go func() {
		_, _ = c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
		done <- struct{}{}
	}()
	require.Eventually(t, func() bool { return c.State().Category(cleanup.OldMedia).Deleting }, time.Second, time.Millisecond)

	close(gate)
	<-done
	<-done
	assert.False(t, c.State().Category(cleanup.LargeVideos).Deleting)
	assert.False(t, c.State().Category(cleanup.OldMedia).Deleting)
}

func TestHostConfirmation_CancelledLeavesStateUntouched(t *testing.T) {
	v10, v11 := mediaItem(10, 300, storage.KindVideo), mediaItem(11, 400, storage.KindVideo)
	det := newScriptedDetector()
	det.push(cleanup.LargeVideos, scanResponse{groups: perItemGroups(cleanup.LargeVideos, v10, v11)})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusAwaitingConfirmation, AuthorizationID: "auth-1", Tier: deletion.TierHostMediated}}
	slot := deletion.NewConfirmationSlot()
	c := newTestController(det, del, slot)
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.LargeVideos))
	c.SelectAll(cleanup.LargeVideos)

	out, err := c.DeleteSelected(context.Background(), cleanup.LargeVideos, nil)
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusAwaitingConfirmation, out.Status)
	assert.Equal(t, [][]int64{{10, 11}}, del.calls)
	assert.True(t, c.State().Category(cleanup.LargeVideos).Deleting)

	require.True(t, slot.Deliver(deletion.Outcome{Status: deletion.StatusCancelled, AuthorizationID: "auth-1", Tier: deletion.TierHostMediated}))

	st := c.State().Category(cleanup.LargeVideos)
	assert.False(t, st.Deleting)
	assert.Len(t, st.Groups, 2, "no items removed")
	assert.Len(t, st.Selected, 2, "selection untouched")
	assert.Empty(t, st.Error, "cancellation is not an error")
	assert.Equal(t, int64(700), c.State().ReclaimableBytes)
}

func TestHostConfirmation_OKRoutesToOriginatingCategory(t *testing.T) {
	v10, v11 := mediaItem(10, 300, storage.KindVideo), mediaItem(11, 400, storage.KindVideo)
	det := newScriptedDetector()
	det.push(cleanup.LargeVideos, scanResponse{groups: perItemGroups(cleanup.LargeVideos, v10, v11)})
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, v10)})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusAwaitingConfirmation, AuthorizationID: "auth-2"}}
	slot := deletion.NewConfirmationSlot()
	c := newTestController(det, del, slot)
	defer c.Close()

	require.NoError(t, c.ScanAll(context.Background()))
	require.NoError(t, c.ToggleSelection(cleanup.LargeVideos, perItemGroups(cleanup.LargeVideos, v10)[0].ID, true))

	_, err := c.DeleteSelected(context.Background(), cleanup.LargeVideos, nil)
	require.NoError(t, err)

	slot.Deliver(deletion.Outcome{Status: deletion.StatusSuccess, DeletedIDs: []int64{10}, AuthorizationID: "auth-2"})

	state := c.State()
	lv := state.Category(cleanup.LargeVideos)
	assert.False(t, lv.Deleting)
	require.Len(t, lv.Groups, 1)
	assert.Equal(t, int64(11), lv.Groups[0].Items[0].ID)
	assert.Empty(t, lv.Selected)
	assert.Empty(t, state.Category(cleanup.OldMedia).Groups)
	assert.Equal(t, int64(400), state.ReclaimableBytes)
}

func TestHostConfirmation_ResultBeforeDeleteReturns(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage))})
	slot := deletion.NewConfirmationSlot()
	gate := make(chan struct{})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusAwaitingConfirmation, AuthorizationID: "auth-3"}, gate: gate}
	c := newTestController(det, del, slot)
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	c.SelectAll(cleanup.OldMedia)

	result := make(chan deletion.Outcome, 1)
	go func() {
		out, _ := c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
		result <- out
	}()
	require.Eventually(t, func() bool { return c.State().Category(cleanup.OldMedia).Deleting }, time.Second, time.Millisecond)

	slot.Deliver(deletion.Outcome{Status: deletion.StatusSuccess, DeletedIDs: []int64{1}, AuthorizationID: "auth-3"})
	close(gate)

	out := <-result
	assert.Equal(t, deletion.StatusSuccess, out.Status)
	st := c.State().Category(cleanup.OldMedia)
	assert.False(t, st.Deleting)
	assert.Empty(t, st.Groups)
}

type countingReloader struct{ calls atomic.Int32 }

func (r *countingReloader) ForceReload(ctx context.Context) error {
	r.calls.Add(1)
	return nil
}

func TestDeleteSelected_SchedulesReconcile(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage))})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusSuccess, DeletedIDs: []int64{1}}}
	reloader := &countingReloader{}
	c := NewController(det, del, nil, reloader, Options{ReconcileDelay: 10 * time.Millisecond}, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	c.SelectAll(cleanup.OldMedia)
	_, err := c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return reloader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeleteSelected_FailureStillReconciles(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage))})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusFailed, Reason: "no files were deleted"}}
	reloader := &countingReloader{}
	c := NewController(det, del, nil, reloader, Options{ReconcileDelay: 10 * time.Millisecond}, zerolog.Nop())
	defer c.Close()

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	c.SelectAll(cleanup.OldMedia)
	_, err := c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return reloader.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, c.State().Category(cleanup.OldMedia).Groups, 1)
}

func TestClose_StopsPendingReconcile(t *testing.T) {
	det := newScriptedDetector()
	det.push(cleanup.OldMedia, scanResponse{groups: perItemGroups(cleanup.OldMedia, mediaItem(1, 10, storage.KindImage))})
	del := &fakeDeleter{out: deletion.Outcome{Status: deletion.StatusSuccess, DeletedIDs: []int64{1}}}
	reloader := &countingReloader{}
	slot := deletion.NewConfirmationSlot()
	c := NewController(det, del, slot, reloader, Options{ReconcileDelay: 50 * time.Millisecond}, zerolog.Nop())

	require.NoError(t, c.Scan(context.Background(), cleanup.OldMedia))
	c.SelectAll(cleanup.OldMedia)
	_, err := c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
	require.NoError(t, err)

	c.Close()
	time.Sleep(100 * time.Millisecond)

	assert.Zero(t, reloader.calls.Load())
	assert.False(t, slot.Deliver(deletion.Outcome{}), "controller no longer subscribed")

	_, err = c.DeleteSelected(context.Background(), cleanup.OldMedia, nil)
	assert.ErrorIs(t, err, ErrClosed)
}
