package domain

import "strings"

// FilterTasks keeps the tasks of authorID (any author when 0) whose title contains query,
// ignoring case. An empty query matches everything.
func FilterTasks(tasks []Task, authorID int, query string) []Task {
	needle := strings.ToLower(query)
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if authorID != 0 && t.AuthorID != authorID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// PageCount returns how many pages of perPage items n items fill.
func PageCount(n, perPage int) int {
	if n <= 0 {
		return 0
	}
	if perPage <= 0 {
		perPage = 1
	}
	return (n + perPage - 1) / perPage
}

// PageBounds returns the [start, end) slice bounds of a 1-based page.
func PageBounds(n, page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 1
	}
	start := (page - 1) * perPage
	if start > n {
		start = n
	}
	end := start + perPage
	if end > n {
		end = n
	}
	return start, end
}
