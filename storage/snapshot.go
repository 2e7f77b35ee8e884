package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

const (
	// TaskDataKey holds the JSON encoded {columns, authors, tasks} snapshot.
	TaskDataKey = "taskData"
	// LastFetchedKey holds the epoch milliseconds of the last successful remote fetch.
	LastFetchedKey = "lastFetchedTime"
)

// ErrCorruptSnapshot reports a cached snapshot that could not be decoded or failed validation.
var ErrCorruptSnapshot = errors.New("storage: corrupt snapshot")

// SnapshotCache reads and writes board snapshots through a KV.
type SnapshotCache struct {
	kv KV
}

func NewSnapshotCache(kv KV) *SnapshotCache {
	if kv == nil {
		panic("storage.NewSnapshotCache: kv is nil")
	}
	return &SnapshotCache{kv: kv}
}

// Load returns the cached snapshot. A corrupt entry is deleted and reported as a miss
// together with an ErrCorruptSnapshot error.
func (c *SnapshotCache) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	raw, ok, err := c.kv.Get(ctx, TaskDataKey)
	if err != nil || !ok {
		return domain.Snapshot{}, false, err
	}
	var snap domain.Snapshot
	if err := sonic.UnmarshalString(raw, &snap); err != nil {
		_ = c.kv.Delete(ctx, TaskDataKey)
		return domain.Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := validateSnapshot(snap); err != nil {
		_ = c.kv.Delete(ctx, TaskDataKey)
		return domain.Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return snap, true, nil
}

// Save overwrites the cached snapshot.
func (c *SnapshotCache) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := sonic.ConfigStd.MarshalToString(snap)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, TaskDataKey, data)
}

// MarkFetched records t as the time of the last successful remote fetch.
func (c *SnapshotCache) MarkFetched(ctx context.Context, t time.Time) error {
	return c.kv.Set(ctx, LastFetchedKey, strconv.FormatInt(t.UnixMilli(), 10))
}

// FetchedAt returns the recorded fetch time, if any.
func (c *SnapshotCache) FetchedAt(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := c.kv.Get(ctx, LastFetchedKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", LastFetchedKey, err)
	}
	return time.UnixMilli(ms), true, nil
}

func validateSnapshot(s domain.Snapshot) error {
	seen := make(map[int]struct{}, len(s.Tasks))
	for _, t := range s.Tasks {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}
