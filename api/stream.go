package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const sseDataPrefix = "data: "

// streamBoard pushes the board view as a server-sent event on connect and after every change.
func streamBoard(store Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		changes, unsubscribe := store.Subscribe()
		defer unsubscribe()
		for {
			data, err := sonic.ConfigStd.Marshal(store.View())
			if err != nil {
				logger.WithError(err).Error("encode board view")
				return err
			}
			if _, err := c.Response().Write([]byte(sseDataPrefix)); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-changes:
			}
		}
	}
}
