package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
)

const (
	maxBodySize  = 16 * 1024
	fetchTimeout = 30 * time.Second
)

var errInvalidBody = errors.New("invalid body")

// Register wires up all API routes on the provided Echo instance. A nil auth leaves the
// routes open.
func Register(e *echo.Echo, store Board, auth Authenticator, logger *log.Logger) {
	e.JSONSerializer = JSONSerializer{}
	e.GET("/healthz", healthz(store))

	g := e.Group("/api")
	if auth != nil {
		g.Use(requireAuth(auth, logger))
	}
	g.GET("/board", getBoard(store))
	g.GET("/tasks", getTasks(store))
	g.POST("/tasks", postTask(store, logger))
	g.GET("/authors", getAuthors(store))
	g.PUT("/filter/author", putAuthorFilter(store))
	g.PUT("/filter/search", putSearch(store))
	g.PUT("/page", putPage(store))
	g.GET("/toast", getToast(store))
	g.POST("/fetch", postFetch(store, logger))
	g.GET("/stream", streamBoard(store, logger))
}

func healthz(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"dataFetched": store.DataFetched()})
	}
}

func getBoard(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.View())
	}
}

func getTasks(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, tasksResponse{Tasks: store.FilteredTasks()})
	}
}

func postTask(store Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.NewTask
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		task, err := store.CreateTask(c.Request().Context(), in)
		toast := store.Toast()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, board.ErrEmptyTitle) {
				status = http.StatusBadRequest
			} else {
				logger.WithError(err).Error("create task")
			}
			return c.JSON(status, errorResponse{Error: err.Error(), Toast: &toast})
		}
		return c.JSON(http.StatusCreated, createTaskResponse{Task: task, Toast: toast})
	}
}

func getAuthors(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		page := 1
		if raw := strings.TrimSpace(c.QueryParam("page")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid page")
			}
			page = n
		}
		return c.JSON(http.StatusOK, authorsResponse{
			Authors:    store.AuthorPage(page),
			Page:       page,
			TotalPages: store.TotalAuthorPages(),
		})
	}
}

func putAuthorFilter(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req authorFilterRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if req.AuthorID < 0 {
			return c.String(http.StatusBadRequest, "invalid author id")
		}
		if req.AuthorID != 0 && store.DataFetched() && !store.HasAuthor(req.AuthorID) {
			return c.String(http.StatusNotFound, "unknown author")
		}
		store.SetSelectedAuthor(req.AuthorID)
		return c.JSON(http.StatusOK, store.View())
	}
}

func putSearch(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req searchRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		store.UpdateSearchQuery(req.Query)
		return c.JSON(http.StatusOK, store.View())
	}
}

func putPage(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req pageRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if req.Page <= 0 {
			return c.String(http.StatusBadRequest, "invalid page")
		}
		store.SetCurrentPage(req.Page)
		return c.JSON(http.StatusOK, store.View())
	}
}

func getToast(store Board) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Toast())
	}
}

func postFetch(store Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), fetchTimeout)
		defer cancel()

		resp := fetchResponse{}
		if err := store.FetchData(ctx); err != nil {
			logger.WithError(err).Warn("fetch task data")
			resp.Error = err.Error()
		}
		resp.DataFetched = store.DataFetched()
		if !resp.DataFetched {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// decodeBody reads a size limited JSON body into v, rejecting unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}
