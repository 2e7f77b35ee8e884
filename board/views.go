package board

import "taskboard/domain"

// FilteredTasks returns the tasks of the selected author (all tasks when none is selected)
// whose title contains the search query, ignoring case.
func (s *Store) FilteredTasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredTasksLocked()
}

func (s *Store) filteredTasksLocked() []domain.Task {
	return domain.FilterTasks(s.tasks, s.selectedAuthor, s.searchQuery)
}

// TotalTaskPages is 0 without a selected author, otherwise the page count of that author's
// pagination bucket. The search query does not affect it.
func (s *Store) TotalTaskPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTaskPagesLocked()
}

func (s *Store) totalTaskPagesLocked() int {
	if s.selectedAuthor == 0 {
		return 0
	}
	return domain.PageCount(s.index.Count(s.selectedAuthor), s.cfg.TasksPerPage)
}

// HasAuthor reports whether the loaded authors include authorID.
func (s *Store) HasAuthor(authorID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.authors {
		if id, ok := a.ID(); ok && id == authorID {
			return true
		}
	}
	return false
}

// TotalAuthorPages is the number of author pages.
func (s *Store) TotalAuthorPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.PageCount(len(s.authors), s.cfg.AuthorsPerPage)
}

// AuthorPage returns the authors on the 1-based page, empty past the last page.
func (s *Store) AuthorPage(page int) []domain.Author {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end := domain.PageBounds(len(s.authors), page, s.cfg.AuthorsPerPage)
	return append([]domain.Author{}, s.authors[start:end]...)
}
