package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"EchoVault/logger"
	"EchoVault/model"
)

// StorageKey is the fixed key queue snapshots are persisted under. One queue
// per session, one key; a new session's snapshot replaces the old one.
const StorageKey = "echovault:upload:queue"

// SnapshotStore persists queue snapshots across process restarts.
type SnapshotStore interface {
	Save(ctx context.Context, pq model.PersistedQueue) error
	Load(ctx context.Context) (*model.PersistedQueue, error)
	Clear(ctx context.Context) error
}

// RedisStore keeps the persisted queue as a JSON blob in Redis. The key TTL
// matches the staleness window, so Redis reaps what Load would discard.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save overwrites the persisted queue.
func (s *RedisStore) Save(ctx context.Context, pq model.PersistedQueue) error {
	data, err := json.Marshal(pq)
	if err != nil {
		return fmt.Errorf("marshal persisted queue: %w", err)
	}
	if err := s.client.Set(ctx, StorageKey, data, model.MaxSnapshotAge).Err(); err != nil {
		return fmt.Errorf("save persisted queue: %w", err)
	}
	return nil
}

// Load returns the persisted queue, or nil if none exists or the snapshot
// is older than the staleness window (stale snapshots are deleted).
func (s *RedisStore) Load(ctx context.Context) (*model.PersistedQueue, error) {
	data, err := s.client.Get(ctx, StorageKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load persisted queue: %w", err)
	}

	var pq model.PersistedQueue
	if err := json.Unmarshal(data, &pq); err != nil {
		return nil, fmt.Errorf("decode persisted queue: %w", err)
	}

	if pq.Stale(time.Now()) {
		logger.Info("discarding stale queue snapshot", logger.Any("savedAt", pq.SavedAt))
		if err := s.Clear(ctx); err != nil {
			logger.Warn("failed to clear stale queue snapshot", logger.ErrorField(err))
		}
		return nil, nil
	}

	return &pq, nil
}

// Clear deletes the persisted queue.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, StorageKey).Err(); err != nil {
		return fmt.Errorf("clear persisted queue: %w", err)
	}
	return nil
}

// NewPersistObserver returns an observer that writes every snapshot to the
// store, keeping only restorable items. Save failures are logged, never
// propagated: persistence is best-effort and must not disturb the queue.
func NewPersistObserver(store SnapshotStore) Observer {
	return func(snap model.QueueSnapshot) {
		pq := model.PersistedQueue{
			SavedAt: time.Now(),
			Items:   model.FilterPersistable(snap.Items),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, pq); err != nil {
			logger.Warn("queue snapshot persistence failed", logger.ErrorField(err))
		}
	}
}
