// Package uploader implements the client-side ingestion pipeline: a queue
// manager that dispatches uploads with bounded concurrency, a worker that
// retries transient failures with backoff, durable queue snapshots, and an
// inbox watcher that feeds the queue.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"EchoVault/logger"
	"EchoVault/model"
)

// UploadWorker is the queue's view of the retrying worker.
type UploadWorker interface {
	UploadWithRetry(ctx context.Context, item *model.UploadItem, progress func(float64)) (*Result, error)
}

// Observer receives an immutable queue snapshot after every state mutation.
// Snapshots arrive in revision order; when mutations race, observers may see
// only the newest of the racing snapshots. Observers must not call back into
// queue methods that mutate state.
type Observer func(model.QueueSnapshot)

// Queue owns the batch of pending uploads. It is the single writer of item
// state: workers only return results, which the queue applies. Dispatch is
// FIFO over pending items, capped at maxConcurrent in-flight uploads, with
// a hard pause gate in front of both.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	items         []*model.UploadItem
	active        int
	maxConcurrent int
	paused        bool

	worker    UploadWorker
	observers map[int]Observer
	nextObsID int
	revision  uint64

	// notifyMu serializes observer delivery; delivered is the highest
	// revision handed out so far, guarded by notifyMu.
	notifyMu  sync.Mutex
	delivered uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue dispatching at most maxConcurrent uploads at once.
func NewQueue(worker UploadWorker, maxConcurrent int) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		maxConcurrent: maxConcurrent,
		worker:        worker,
		observers:     make(map[int]Observer),
		ctx:           ctx,
		cancel:        cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a file for upload and returns the new item's ID. Dispatch
// happens immediately if a slot is free.
func (q *Queue) Add(filePath, title, artist, album string, genres []string) string {
	item := &model.UploadItem{
		ID:        uuid.New().String(),
		FilePath:  filePath,
		Title:     title,
		Artist:    artist,
		Album:     album,
		Genres:    genres,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
	logger.Debug("enqueued upload", logger.String("itemId", item.ID), logger.String("file", filePath))
	return item.ID
}

// Restore re-adds items recovered from a persisted snapshot. Their stored
// status is kept (pending, failed or paused); anything else is normalized to
// pending. Payload paths that no longer exist surface as failures at upload
// time, when the worker tries to open them.
func (q *Queue) Restore(items []model.UploadItem) {
	q.mu.Lock()
	for _, it := range items {
		cp := it.Clone()
		switch cp.Status {
		case model.StatusPending, model.StatusFailed, model.StatusPaused:
		default:
			cp.Status = model.StatusPending
			cp.Progress = 0
			cp.Error = ""
		}
		if cp.ID == "" {
			cp.ID = uuid.New().String()
		}
		q.items = append(q.items, &cp)
	}
	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
}

// Subscribe registers an observer and returns its unsubscribe function.
// Observers are called synchronously with a snapshot on every mutation.
func (q *Queue) Subscribe(obs Observer) func() {
	q.mu.Lock()
	id := q.nextObsID
	q.nextObsID++
	q.observers[id] = obs
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.observers, id)
		q.mu.Unlock()
	}
}

// Pause stops new dispatches and relabels pending items as paused. In-flight
// uploads are not aborted; aborting a stream that may be near completion
// wastes more than it saves.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	for _, it := range q.items {
		if it.Status == model.StatusPending {
			it.Status = model.StatusPaused
		}
	}
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
}

// Resume relabels paused items back to pending and restarts dispatching.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	for _, it := range q.items {
		if it.Status == model.StatusPaused {
			it.Status = model.StatusPending
		}
	}
	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
}

// Retry resets a failed item to pending with progress and error cleared.
// Calling it on an item in any other state is a no-op: the UI may race the
// scheduler and must not crash on stale references.
func (q *Queue) Retry(id string) {
	q.mu.Lock()
	it := q.findLocked(id)
	if it == nil || it.Status != model.StatusFailed {
		q.mu.Unlock()
		return
	}
	it.Status = model.StatusPending
	it.Progress = 0
	it.Error = ""
	it.Duplicate = false
	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
}

// RetryAllFailed resets every failed item to pending. Returns the count.
func (q *Queue) RetryAllFailed() int {
	q.mu.Lock()
	count := 0
	for _, it := range q.items {
		if it.Status == model.StatusFailed {
			it.Status = model.StatusPending
			it.Progress = 0
			it.Error = ""
			it.Duplicate = false
			count++
		}
	}
	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
	return count
}

// Remove deletes an item from the queue. Removing an unknown ID is a no-op.
// An in-flight worker for a removed item runs to completion and its result
// is discarded; removal does not abort the network operation.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	removed := false
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		q.mu.Unlock()
		return
	}
	snap := q.snapshotLocked()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.notify(snap)
}

// DiscardDuplicates removes all failed items that were rejected as known
// duplicates. Returns the count removed.
func (q *Queue) DiscardDuplicates() int {
	q.mu.Lock()
	kept := q.items[:0]
	count := 0
	for _, it := range q.items {
		if it.Status == model.StatusFailed && it.Duplicate {
			count++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
	return count
}

// ClearCompleted removes all completed items. Returns the count removed.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	kept := q.items[:0]
	count := 0
	for _, it := range q.items {
		if it.Status == model.StatusComplete {
			count++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
	return count
}

// UpdateMetadata edits an item's tags. Only allowed while the item is not
// in flight or finished.
func (q *Queue) UpdateMetadata(id, title, artist, album string, genres []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it := q.findLocked(id)
	if it == nil {
		return fmt.Errorf("item not found: %s", id)
	}
	switch it.Status {
	case model.StatusPending, model.StatusFailed, model.StatusPaused:
	default:
		return fmt.Errorf("item %s is not editable in state %s", id, it.Status)
	}
	it.Title = title
	it.Artist = artist
	it.Album = album
	it.Genres = append([]string(nil), genres...)
	return nil
}

// Snapshot returns a deep copy of the current queue state.
func (q *Queue) Snapshot() model.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Wait blocks until the queue drains: no item left in pending, uploading or
// paused state.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.drainedLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Close cancels the queue's context, which aborts in-flight uploads and any
// pending backoff sleeps.
func (q *Queue) Close() {
	q.cancel()
}

// dispatchLocked fills free slots with the earliest pending items, FIFO.
// Pause is a hard gate checked before the concurrency ceiling.
func (q *Queue) dispatchLocked() {
	if q.paused {
		return
	}
	for q.active < q.maxConcurrent {
		it := q.firstPendingLocked()
		if it == nil {
			return
		}
		it.Status = model.StatusUploading
		it.Progress = 0
		it.Error = ""
		q.active++
		go q.run(it.ID, it.Clone())
	}
}

func (q *Queue) firstPendingLocked() *model.UploadItem {
	for _, it := range q.items {
		if it.Status == model.StatusPending {
			return it
		}
	}
	return nil
}

func (q *Queue) findLocked(id string) *model.UploadItem {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (q *Queue) drainedLocked() bool {
	for _, it := range q.items {
		switch it.Status {
		case model.StatusPending, model.StatusUploading, model.StatusPaused:
			return false
		}
	}
	return true
}

// run executes one dispatched upload outside the lock and applies its result.
func (q *Queue) run(id string, item model.UploadItem) {
	result, err := q.safeUpload(&item)
	q.complete(id, result, err)
}

// safeUpload converts worker panics into errors so a crashing worker can
// never leak its concurrency slot.
func (q *Queue) safeUpload(item *model.UploadItem) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upload worker panic: %v", r)
		}
	}()
	return q.worker.UploadWithRetry(q.ctx, item, func(p float64) {
		q.setProgress(item.ID, p)
	})
}

// setProgress raises an in-flight item's progress. Values below the current
// high-water mark are dropped so progress never regresses, including across
// worker-internal retry attempts.
func (q *Queue) setProgress(id string, p float64) {
	q.mu.Lock()
	it := q.findLocked(id)
	if it == nil || it.Status != model.StatusUploading || p <= it.Progress {
		q.mu.Unlock()
		return
	}
	if p > 100 {
		p = 100
	}
	it.Progress = p
	snap := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snap)
}

// complete applies a worker result. The slot is freed unconditionally,
// exactly once per dispatch, before the next dispatch round runs.
func (q *Queue) complete(id string, result *Result, err error) {
	q.mu.Lock()
	q.active--

	it := q.findLocked(id)
	if it != nil && it.Status == model.StatusUploading {
		if err != nil {
			it.Status = model.StatusFailed
			it.Error = err.Error()
			it.Duplicate = errors.Is(err, ErrDuplicate)
		} else {
			it.Status = model.StatusComplete
			it.Progress = 100
			if result != nil {
				it.RemoteID = result.SongID
			}
		}
	}
	// Result for a removed item is discarded; the slot is still reclaimed.

	q.dispatchLocked()
	snap := q.snapshotLocked()
	q.cond.Broadcast()
	q.mu.Unlock()

	q.notify(snap)
}

func (q *Queue) snapshotLocked() model.QueueSnapshot {
	items := make([]model.UploadItem, 0, len(q.items))
	for _, it := range q.items {
		items = append(items, it.Clone())
	}
	q.revision++
	return model.QueueSnapshot{
		Items:         items,
		ActiveCount:   q.active,
		MaxConcurrent: q.maxConcurrent,
		IsPaused:      q.paused,
		Revision:      q.revision,
	}
}

// notify delivers a snapshot to all current observers. Delivery is serialized
// under notifyMu and gated on the snapshot revision, so an observer can never
// see an older snapshot after a newer one even when the goroutines carrying
// them race between snapshot capture and delivery. A snapshot overtaken by a
// newer one is dropped; the newer snapshot already reflects its state.
func (q *Queue) notify(snap model.QueueSnapshot) {
	q.mu.Lock()
	observers := make([]Observer, 0, len(q.observers))
	for _, obs := range q.observers {
		observers = append(observers, obs)
	}
	q.mu.Unlock()

	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()
	if snap.Revision <= q.delivered {
		return
	}
	q.delivered = snap.Revision

	for _, obs := range observers {
		obs(snap)
	}
}
