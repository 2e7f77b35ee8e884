package api

import (
	"context"

	"taskboard/board"
	"taskboard/domain"
)

// Board is the task board state the handlers expose. *board.Store implements it.
type Board interface {
	FetchData(ctx context.Context) error
	DataFetched() bool
	View() board.View
	FilteredTasks() []domain.Task
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	AuthorPage(page int) []domain.Author
	HasAuthor(authorID int) bool
	TotalAuthorPages() int
	SetSelectedAuthor(authorID int)
	UpdateSearchQuery(query string)
	SetCurrentPage(page int)
	Toast() domain.Toast
	Subscribe() (<-chan struct{}, func())
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type createTaskResponse struct {
	Task  domain.Task  `json:"task"`
	Toast domain.Toast `json:"toast"`
}

type errorResponse struct {
	Error string        `json:"error"`
	Toast *domain.Toast `json:"toast,omitempty"`
}

type authorsResponse struct {
	Authors    []domain.Author `json:"authors"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
}

type authorFilterRequest struct {
	AuthorID int `json:"authorId"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type pageRequest struct {
	Page int `json:"page"`
}

type fetchResponse struct {
	DataFetched bool   `json:"dataFetched"`
	Error       string `json:"error,omitempty"`
}
