package domain

// PaginatedIndex groups tasks by author id. It is derived from the task list and never
// authoritative.
type PaginatedIndex map[int][]Task

// Rebuild clears the index and regroups every task. Calling it repeatedly yields the same index.
func (p PaginatedIndex) Rebuild(tasks []Task) {
	clear(p)
	for _, t := range tasks {
		p[t.AuthorID] = append(p[t.AuthorID], t)
	}
}

// RebuildAuthor recomputes a single author's bucket from the full task list.
func (p PaginatedIndex) RebuildAuthor(tasks []Task, authorID int) {
	bucket := make([]Task, 0)
	for _, t := range tasks {
		if t.AuthorID == authorID {
			bucket = append(bucket, t)
		}
	}
	p[authorID] = bucket
}

// Append pushes one task onto its author's bucket without touching other entries.
func (p PaginatedIndex) Append(t Task) {
	p[t.AuthorID] = append(p[t.AuthorID], t)
}

// Count returns the number of tasks indexed for authorID.
func (p PaginatedIndex) Count(authorID int) int {
	return len(p[authorID])
}

// Bucket returns a copy of the tasks indexed for authorID.
func (p PaginatedIndex) Bucket(authorID int) []Task {
	src := p[authorID]
	out := make([]Task, len(src))
	copy(out, src)
	return out
}
