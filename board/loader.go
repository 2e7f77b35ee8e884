package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// ErrFetchFailed is returned once every remote attempt has failed and no cached data could
// stand in.
var ErrFetchFailed = errors.New("board: fetching task data failed")

// ErrMissingTasks marks a remote payload without a tasks array.
var ErrMissingTasks = errors.New("board: remote payload has no tasks")

// remoteSnapshot tells an absent tasks array apart from an empty one.
type remoteSnapshot struct {
	Columns []domain.Column `json:"columns"`
	Authors []domain.Author `json:"authors"`
	Tasks   *[]domain.Task  `json:"tasks"`
}

func (r remoteSnapshot) snapshot() (domain.Snapshot, error) {
	if r.Tasks == nil {
		return domain.Snapshot{}, ErrMissingTasks
	}
	return domain.Snapshot{Columns: r.Columns, Authors: r.Authors, Tasks: *r.Tasks}.Normalized(), nil
}

// FetchData populates the store once. A cached snapshot is used without consulting the
// remote source; otherwise the remote is tried up to FetchAttempts times back to back.
// After a failed load the store stays empty and unfetched so the caller may call again.
func (s *Store) FetchData(ctx context.Context) (err error) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if s.DataFetched() {
		return nil
	}

	metrics, ctx := newFetchMetrics(ctx, s.tracer, s.logger)
	defer func() { metrics.Finish(err) }()

	cacheStart := time.Now()
	cached, hit, stale := s.loadCached(ctx)
	metrics.ObserveCache(time.Since(cacheStart))
	if hit && !stale {
		metrics.SetSource(sourceCache)
		metrics.SetTasksLoaded(len(cached.Tasks))
		s.apply(cached)
		return nil
	}

	remote, fetchErr := s.fetchRemote(ctx, metrics)
	if fetchErr == nil {
		metrics.SetSource(sourceRemote)
		metrics.SetTasksLoaded(len(remote.Tasks))
		s.persistFetched(ctx, remote)
		s.apply(remote)
		return nil
	}

	if hit {
		s.logger.WithError(fetchErr).Warn("serving stale cached task data")
		metrics.SetSource(sourceStaleCache)
		metrics.SetTasksLoaded(len(cached.Tasks))
		s.apply(cached)
		return nil
	}

	metrics.SetSource(sourceNone)
	return fetchErr
}

// loadCached returns the normalized cached snapshot, whether one exists and whether it is
// older than MaxCacheAge. Unreadable or corrupt entries count as a miss.
func (s *Store) loadCached(ctx context.Context) (domain.Snapshot, bool, bool) {
	snap, ok, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("cached task data unusable, falling back to remote")
	}
	if !ok {
		return domain.Snapshot{}, false, false
	}
	snap = snap.Normalized()
	if s.cfg.MaxCacheAge <= 0 {
		return snap, true, false
	}

	fetchedAt, found, err := s.cache.FetchedAt(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("unreadable cache timestamp")
	}
	age := s.now().Sub(fetchedAt)
	stale := !found || age > s.cfg.MaxCacheAge
	if stale {
		s.logger.WithFields(log.Fields{"age": age.String(), "maxAge": s.cfg.MaxCacheAge.String()}).Debug("cached task data is stale")
	}
	return snap, true, stale
}

func (s *Store) fetchRemote(ctx context.Context, metrics *fetchMetrics) (domain.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.FetchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		metrics.ObserveAttempt()

		var payload remoteSnapshot
		start := time.Now()
		err := s.fetcher.GetJSON(ctx, s.cfg.DataPath, &payload)
		metrics.ObserveRemote(time.Since(start))
		if err == nil {
			snap, err := payload.snapshot()
			if err == nil {
				return snap, nil
			}
			lastErr = err
			s.logger.WithError(err).WithField("attempt", attempt).Error("task data fetch attempt returned an invalid payload")
			continue
		}
		lastErr = err
		s.logger.WithError(err).WithFields(log.Fields{
			"attempt":   attempt,
			"remaining": s.cfg.FetchAttempts - attempt,
		}).Error("task data fetch attempt failed")
	}
	s.logger.WithError(lastErr).Error("all attempts to fetch task data failed")
	return domain.Snapshot{}, fmt.Errorf("%w: %w", ErrFetchFailed, lastErr)
}

// persistFetched republishes a remote snapshot into the cache. Failures are logged only:
// the data is already usable in memory.
func (s *Store) persistFetched(ctx context.Context, snap domain.Snapshot) {
	if err := s.cache.Save(ctx, snap); err != nil {
		s.logger.WithError(err).Error("failed to cache task data")
		return
	}
	if err := s.cache.MarkFetched(ctx, s.now()); err != nil {
		s.logger.WithError(err).Error("failed to record fetch time")
	}
}

func (s *Store) apply(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = snap.Columns
	s.authors = snap.Authors
	s.tasks = snap.Tasks
	s.dataFetched = true
	s.processTasksPaginationLocked()
	s.changes.notify()
}
