package domain

// Snapshot is the board payload served by the remote source and kept in the local cache.
type Snapshot struct {
	Columns []Column `json:"columns"`
	Authors []Author `json:"authors"`
	Tasks   []Task   `json:"tasks"`
}

// Normalized returns a copy with non-nil slices and every task normalized.
func (s Snapshot) Normalized() Snapshot {
	out := Snapshot{
		Columns: make([]Column, len(s.Columns)),
		Authors: make([]Author, len(s.Authors)),
		Tasks:   NormalizeTasks(s.Tasks),
	}
	copy(out.Columns, s.Columns)
	copy(out.Authors, s.Authors)
	return out
}
