package domain

import (
	"bytes"
	"maps"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultColumn is the board column new and unassigned tasks land in.
const DefaultColumn = "To do"

// DateLayout is the calendar date format used for DateCreated.
const DateLayout = "2006-01-02"

// Task represents a single board item. Fields the board does not interpret are kept in
// Extra and written back unchanged.
type Task struct {
	ID            int            `json:"id"`
	Title         string         `json:"title"`
	AuthorID      int            `json:"author_id"`
	DateCreated   string         `json:"date_created,omitempty"`
	Column        string         `json:"column"`
	CurrentColumn string         `json:"current_column,omitempty"`
	Extra         map[string]any `json:"-"`
}

type taskFields Task

var taskKeys = map[string]struct{}{
	"id":             {},
	"title":          {},
	"author_id":      {},
	"date_created":   {},
	"column":         {},
	"current_column": {},
}

// MarshalJSON writes the known fields followed by any extra ones.
func (t Task) MarshalJSON() ([]byte, error) {
	base, err := sonic.ConfigStd.Marshal(taskFields(t))
	if err != nil {
		return nil, err
	}
	extra := make(map[string]any, len(t.Extra))
	for k, v := range t.Extra {
		if _, known := taskKeys[k]; !known {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return base, nil
	}
	rest, err := sonic.ConfigStd.Marshal(extra)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(base) + len(rest))
	buf.Write(base[:len(base)-1])
	buf.WriteByte(',')
	buf.Write(rest[1:])
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the known fields and collects the rest into Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var fields taskFields
	if err := sonic.ConfigStd.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := sonic.ConfigStd.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range taskKeys {
		delete(all, k)
	}
	fields.Extra = nil
	if len(all) > 0 {
		fields.Extra = all
	}
	*t = Task(fields)
	return nil
}

// NewTask carries the user supplied fields of a task being created.
type NewTask struct {
	Title    string `json:"title"`
	AuthorID int    `json:"authorId"`
}

// Normalize returns a copy of t with Column derived from CurrentColumn.
func (t Task) Normalize() Task {
	t.Column = t.CurrentColumn
	t.Extra = maps.Clone(t.Extra)
	if t.Column == "" {
		t.Column = DefaultColumn
	}
	return t
}

// NormalizeTasks normalizes every task into a new slice. A nil input yields an empty slice.
func NormalizeTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Normalize()
	}
	return out
}

// NextTaskID returns one past the largest id in tasks, or 1 for an empty list.
func NextTaskID(tasks []Task) int {
	maxID := 0
	for _, t := range tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return maxID + 1
}

// BuildTask assembles a freshly created task dated on the local calendar day of now.
func BuildTask(id int, in NewTask, now time.Time) Task {
	return Task{
		ID:            id,
		Title:         in.Title,
		AuthorID:      in.AuthorID,
		DateCreated:   now.Local().Format(DateLayout),
		Column:        DefaultColumn,
		CurrentColumn: DefaultColumn,
	}
}
