package board

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"taskboard/domain"
	"taskboard/storage"
)

func TestFetchDataFromRemoteNormalizesAndPersists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	fetcher := &stubFetcher{responses: []string{`{"columns":[],"authors":[{"id":1}],"tasks":[{"id":5,"title":"Fix bug","author_id":1}]}`}}
	store, _, _ := newTestStore(t, fetcher, kv)

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !store.DataFetched() {
		t.Fatalf("expected data to be fetched")
	}
	tasks := store.Tasks()
	if len(tasks) != 1 || tasks[0].Column != domain.DefaultColumn {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	cached, ok, err := storage.NewSnapshotCache(kv).Load(ctx)
	if err != nil || !ok {
		t.Fatalf("expected cached snapshot, ok=%v err=%v", ok, err)
	}
	want := domain.Snapshot{Columns: store.Columns(), Authors: store.Authors(), Tasks: store.Tasks()}
	if diff := cmp.Diff(want, cached.Normalized()); diff != "" {
		t.Fatalf("cached snapshot mismatch (-want +got):\n%s", diff)
	}
	if cached.Tasks[0].Column != domain.DefaultColumn {
		t.Fatalf("expected normalized column in cache, got %+v", cached.Tasks[0])
	}

	raw, ok, _ := kv.Get(ctx, storage.LastFetchedKey)
	if !ok || raw != strconv.FormatInt(fixedNow.UnixMilli(), 10) {
		t.Fatalf("unexpected %s: %q", storage.LastFetchedKey, raw)
	}
}

func TestFetchDataUsesCacheWithoutRemote(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	snap := domain.Snapshot{
		Authors: []domain.Author{{"id": 9}},
		Tasks:   []domain.Task{{ID: 1, Title: "Cached", AuthorID: 9, CurrentColumn: "Done"}},
	}
	if err := storage.NewSnapshotCache(kv).Save(ctx, snap); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, kv)

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("expected remote to be skipped, got %d calls", fetcher.Calls())
	}
	tasks := store.Tasks()
	if len(tasks) != 1 || tasks[0].Column != "Done" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if store.PaginatedTasks(9)[0].ID != 1 {
		t.Fatalf("expected pagination index to be rebuilt")
	}
	if cols := store.Columns(); cols == nil {
		t.Fatalf("expected empty non-nil columns")
	}
}

func TestFetchDataIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, nil)

	for i := 0; i < 2; i++ {
		if err := store.FetchData(ctx); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected a single remote call, got %d", fetcher.Calls())
	}
}

func TestFetchDataConcurrentCallsFetchOnce(t *testing.T) {
	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.FetchData(context.Background()); err != nil {
				t.Errorf("fetch: %v", err)
			}
		}()
	}
	wg.Wait()

	if fetcher.Calls() != 1 {
		t.Fatalf("expected a single remote call, got %d", fetcher.Calls())
	}
	if got := len(store.PaginatedTasks(1)); got != 2 {
		t.Fatalf("expected author 1 bucket of 2, got %d", got)
	}
}

func TestFetchDataRetriesAndGivesUp(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	fetcher := &stubFetcher{errs: []error{errBoom, errBoom, errBoom}}
	store, hook, _ := newTestStore(t, fetcher, kv)

	err := store.FetchData(ctx)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, errBoom) {
		t.Fatalf("expected ErrFetchFailed wrapping the last error, got %v", err)
	}
	if fetcher.Calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.Calls())
	}
	if store.DataFetched() {
		t.Fatalf("expected store to remain unfetched")
	}
	if tasks := store.Tasks(); len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %+v", tasks)
	}
	if _, ok, _ := kv.Get(ctx, storage.TaskDataKey); ok {
		t.Fatalf("expected nothing cached")
	}

	attemptLogs := 0
	for _, entry := range hook.AllEntries() {
		if entry.Message == "task data fetch attempt failed" {
			attemptLogs++
		}
	}
	if attemptLogs != 3 {
		t.Fatalf("expected 3 attempt failure logs, got %d", attemptLogs)
	}

	// A later call retries from scratch.
	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("retry fetch: %v", err)
	}
	if !store.DataFetched() || fetcher.Calls() != 4 {
		t.Fatalf("expected retry to succeed on the 4th call, fetched=%v calls=%d", store.DataFetched(), fetcher.Calls())
	}
}

func TestFetchDataSucceedsOnLastAttempt(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{errBoom, errBoom}}
	store, _, _ := newTestStore(t, fetcher, nil)

	if err := store.FetchData(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.Calls())
	}
	if len(store.Tasks()) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(store.Tasks()))
	}
}

func TestFetchDataRejectsPayloadWithoutTasks(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	fetcher := &stubFetcher{responses: []string{`{}`, `null`, `{"columns":[],"authors":[]}`}}
	store, _, _ := newTestStore(t, fetcher, kv)

	err := store.FetchData(ctx)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, ErrMissingTasks) {
		t.Fatalf("expected ErrFetchFailed wrapping ErrMissingTasks, got %v", err)
	}
	if fetcher.Calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.Calls())
	}
	if store.DataFetched() {
		t.Fatalf("expected store to remain unfetched")
	}
	if _, ok, _ := kv.Get(ctx, storage.TaskDataKey); ok {
		t.Fatalf("expected nothing cached")
	}
}

func TestFetchDataRetriesAfterPayloadWithoutTasks(t *testing.T) {
	fetcher := &stubFetcher{responses: []string{`{}`, sampleBoard}}
	store, _, _ := newTestStore(t, fetcher, nil)

	if err := store.FetchData(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 2 || len(store.Tasks()) != 3 {
		t.Fatalf("expected success on the 2nd attempt, calls=%d tasks=%d", fetcher.Calls(), len(store.Tasks()))
	}
}

func TestFetchDataAcceptsEmptyTaskList(t *testing.T) {
	fetcher := &stubFetcher{responses: []string{`{"tasks":[]}`}}
	store, _, _ := newTestStore(t, fetcher, nil)

	if err := store.FetchData(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !store.DataFetched() || fetcher.Calls() != 1 {
		t.Fatalf("expected a single successful fetch, fetched=%v calls=%d", store.DataFetched(), fetcher.Calls())
	}
}

func TestFetchDataStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, nil)

	err := store.FetchData(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("expected no remote calls, got %d", fetcher.Calls())
	}
}

func TestFetchDataRecoversFromCorruptCache(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	if err := kv.Set(ctx, storage.TaskDataKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, kv)

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected remote fetch after corrupt cache, got %d calls", fetcher.Calls())
	}
	if _, ok, err := storage.NewSnapshotCache(kv).Load(ctx); !ok || err != nil {
		t.Fatalf("expected cache to be rewritten, ok=%v err=%v", ok, err)
	}
}

func TestFetchDataTreatsKVErrorAsMiss(t *testing.T) {
	kv := &stubKV{
		get: func(context.Context, string) (string, bool, error) { return "", false, errBoom },
		set: func(context.Context, string, string) error { return errBoom },
	}
	fetcher := &stubFetcher{}
	store, hook, _ := newTestStore(t, fetcher, kv)

	if err := store.FetchData(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !store.DataFetched() || fetcher.Calls() != 1 {
		t.Fatalf("expected remote data in memory, fetched=%v calls=%d", store.DataFetched(), fetcher.Calls())
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "failed to cache task data" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cache write failure to be logged")
	}
}

func TestFetchDataRefreshesExpiredCache(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	cache := storage.NewSnapshotCache(kv)
	if err := cache.Save(ctx, domain.Snapshot{Tasks: []domain.Task{{ID: 1, Title: "Old", AuthorID: 1}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := cache.MarkFetched(ctx, fixedNow.Add(-2*time.Hour)); err != nil {
		t.Fatalf("seed time: %v", err)
	}

	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, kv)
	store.cfg.MaxCacheAge = time.Hour

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Fatalf("expected remote refresh, got %d calls", fetcher.Calls())
	}
	if len(store.Tasks()) != 3 {
		t.Fatalf("expected remote tasks, got %+v", store.Tasks())
	}
}

func TestFetchDataKeepsFreshCacheWithMaxAge(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	cache := storage.NewSnapshotCache(kv)
	if err := cache.Save(ctx, domain.Snapshot{Tasks: []domain.Task{{ID: 1, Title: "Recent", AuthorID: 1}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := cache.MarkFetched(ctx, fixedNow.Add(-time.Minute)); err != nil {
		t.Fatalf("seed time: %v", err)
	}

	fetcher := &stubFetcher{}
	store, _, _ := newTestStore(t, fetcher, kv)
	store.cfg.MaxCacheAge = time.Hour

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("expected cached data, got %d remote calls", fetcher.Calls())
	}
}

func TestFetchDataFallsBackToStaleCache(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	if err := storage.NewSnapshotCache(kv).Save(ctx, domain.Snapshot{Tasks: []domain.Task{{ID: 4, Title: "Stale", AuthorID: 2}}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fetcher := &stubFetcher{errs: []error{errBoom, errBoom, errBoom}}
	store, hook, _ := newTestStore(t, fetcher, kv)
	store.cfg.MaxCacheAge = time.Hour

	if err := store.FetchData(ctx); err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if fetcher.Calls() != 3 {
		t.Fatalf("expected 3 remote attempts, got %d", fetcher.Calls())
	}
	tasks := store.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Stale" {
		t.Fatalf("expected stale tasks, got %+v", tasks)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "serving stale cached task data" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stale fallback to be logged")
	}
}
