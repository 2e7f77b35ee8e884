package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	toastTaskCreated      = "Task added successfully!"
	toastTaskCreateFailed = "Failed to create task"
)

// ErrEmptyTitle rejects tasks without a title.
var ErrEmptyTitle = errors.New("board: task title is empty")

// ProcessTasksPagination clears the pagination index and regroups every task by author.
func (s *Store) ProcessTasksPagination() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processTasksPaginationLocked()
	s.changes.notify()
}

func (s *Store) processTasksPaginationLocked() {
	s.index.Rebuild(s.tasks)
}

// PaginateAuthorTasks recomputes the selected author's bucket from the full task list.
func (s *Store) PaginateAuthorTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paginateAuthorTasksLocked()
	s.changes.notify()
}

func (s *Store) paginateAuthorTasksLocked() {
	if s.selectedAuthor != 0 {
		s.index.RebuildAuthor(s.tasks, s.selectedAuthor)
	}
}

// SetSelectedAuthor filters by authorID (0 clears the filter) and returns to the first page.
func (s *Store) SetSelectedAuthor(authorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedAuthor = authorID
	s.currentPage = 1
	s.paginateAuthorTasksLocked()
	s.changes.notify()
}

// UpdateSearchQuery sets the title search and returns to the first page.
func (s *Store) UpdateSearchQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = query
	s.currentPage = 1
	s.changes.notify()
}

// SetCurrentPage moves to page, clamped to at least 1.
func (s *Store) SetCurrentPage(page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPage = page
	s.changes.notify()
}

// CreateTask appends a new task in the default column, persists the snapshot and shows a
// toast. On failure an error toast is shown and the error returned; a task appended before
// the failure stays in memory.
func (s *Store) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.changes.notify()

	task, err := s.createTaskLocked(ctx, in)
	if err != nil {
		s.logger.WithError(err).WithField("author", in.AuthorID).Error("failed to create task")
		s.setToastLocked(domain.ToastError, toastTaskCreateFailed)
		return task, err
	}
	s.logger.WithFields(log.Fields{"task": task.ID, "author": task.AuthorID}).Debug("task created")
	s.setToastLocked(domain.ToastSuccess, toastTaskCreated)
	return task, nil
}

func (s *Store) createTaskLocked(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Task{}, ErrEmptyTitle
	}
	task := domain.BuildTask(domain.NextTaskID(s.tasks), in, s.now())
	s.tasks = append(s.tasks, task)
	s.index.Append(task)

	if err := s.cache.Save(ctx, s.snapshotLocked()); err != nil {
		return task, fmt.Errorf("persist task data: %w", err)
	}
	s.processTasksPaginationLocked()
	return task, nil
}
