// Package board holds the task board state container: it loads tasks, authors and columns
// from a local snapshot cache or the remote source, derives filtered and paginated views,
// and applies local task creation with transient toasts.
package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"taskboard/domain"
	"taskboard/storage"
)

// DefaultDataPath is the remote endpoint serving the board snapshot.
const DefaultDataPath = "/api/frontend-task-data.json"

// Fetcher issues a GET for path and decodes the JSON response into out.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// Config tunes the store. Zero fields take their DefaultConfig value.
type Config struct {
	DataPath       string
	FetchAttempts  int
	TasksPerPage   int
	AuthorsPerPage int
	ToastDuration  time.Duration
	// MaxCacheAge makes cached snapshots older than this stale. Zero keeps them forever.
	MaxCacheAge time.Duration
}

// DefaultConfig returns the stock tuning: 3 fetch attempts, 3s toasts and no cache expiry.
func DefaultConfig() Config {
	return Config{
		DataPath:       DefaultDataPath,
		FetchAttempts:  3,
		TasksPerPage:   10,
		AuthorsPerPage: 10,
		ToastDuration:  3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = def.FetchAttempts
	}
	if c.TasksPerPage <= 0 {
		c.TasksPerPage = def.TasksPerPage
	}
	if c.AuthorsPerPage <= 0 {
		c.AuthorsPerPage = def.AuthorsPerPage
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = def.ToastDuration
	}
	if c.MaxCacheAge < 0 {
		c.MaxCacheAge = 0
	}
	return c
}

// Store is the task board state container. It is safe for concurrent use.
type Store struct {
	fetcher   Fetcher
	cache     *storage.SnapshotCache
	logger    *log.Logger
	cfg       Config
	scheduler Scheduler
	tracer    trace.Tracer
	now       func() time.Time

	// fetchMu serializes loads so network I/O never runs under mu.
	fetchMu sync.Mutex

	mu             sync.Mutex
	tasks          []domain.Task
	authors        []domain.Author
	columns        []domain.Column
	selectedAuthor int
	searchQuery    string
	currentPage    int
	dataFetched    bool
	index          domain.PaginatedIndex
	toast          domain.Toast
	toastTimer     Timer

	changes *changeBroker
}

// New creates an empty store reading remote data through fetcher and persisting into kv.
func New(fetcher Fetcher, kv storage.KV, logger *log.Logger, cfg Config) *Store {
	if fetcher == nil {
		panic("board.New: fetcher is required")
	}
	if logger == nil {
		panic("board.New: logger is required")
	}
	return &Store{
		fetcher:     fetcher,
		cache:       storage.NewSnapshotCache(kv),
		logger:      logger,
		cfg:         cfg.withDefaults(),
		scheduler:   clockScheduler{},
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		tasks:       []domain.Task{},
		authors:     []domain.Author{},
		columns:     []domain.Column{},
		currentPage: 1,
		index:       domain.PaginatedIndex{},
		changes:     newChangeBroker(),
	}
}

// View is a point in time copy of the state exposed to UI collaborators.
type View struct {
	Tasks          []domain.Task   `json:"tasks"`
	Authors        []domain.Author `json:"authors"`
	Columns        []domain.Column `json:"columns"`
	SelectedAuthor int             `json:"selectedAuthor,omitempty"`
	SearchQuery    string          `json:"searchQuery"`
	CurrentPage    int             `json:"currentPage"`
	TasksPerPage   int             `json:"tasksPerPage"`
	AuthorsPerPage int             `json:"authorsPerPage"`
	TotalTaskPages int             `json:"totalTaskPages"`
	DataFetched    bool            `json:"dataFetched"`
	Toast          domain.Toast    `json:"toast"`
}

// View returns the filtered tasks together with the filter, pagination and toast state.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Tasks:          s.filteredTasksLocked(),
		Authors:        append([]domain.Author{}, s.authors...),
		Columns:        append([]domain.Column{}, s.columns...),
		SelectedAuthor: s.selectedAuthor,
		SearchQuery:    s.searchQuery,
		CurrentPage:    s.currentPage,
		TasksPerPage:   s.cfg.TasksPerPage,
		AuthorsPerPage: s.cfg.AuthorsPerPage,
		TotalTaskPages: s.totalTaskPagesLocked(),
		DataFetched:    s.dataFetched,
		Toast:          s.toast,
	}
}

// Tasks returns a copy of the full task list.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task{}, s.tasks...)
}

// Authors returns the author records. The records themselves are shared and must not be modified.
func (s *Store) Authors() []domain.Author {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Author{}, s.authors...)
}

// Columns returns the column records. The records themselves are shared and must not be modified.
func (s *Store) Columns() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Column{}, s.columns...)
}

// DataFetched reports whether a load has populated the store.
func (s *Store) DataFetched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataFetched
}

// SelectedAuthor returns the author filter, 0 when unset.
func (s *Store) SelectedAuthor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedAuthor
}

// SearchQuery returns the current title search.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

// CurrentPage returns the 1-based page being viewed.
func (s *Store) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage
}

// TasksPerPage is the page size used for task pages.
func (s *Store) TasksPerPage() int { return s.cfg.TasksPerPage }

// AuthorsPerPage is the page size used for author pages.
func (s *Store) AuthorsPerPage() int { return s.cfg.AuthorsPerPage }

// PaginatedTasks returns a copy of the pagination bucket of authorID.
func (s *Store) PaginatedTasks(authorID int) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Bucket(authorID)
}

func (s *Store) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{Columns: s.columns, Authors: s.authors, Tasks: s.tasks}
}
