package daemon

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Echo builds the status server.
func (d *Daemon) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		d.logger.Debugf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(d.opts.Metrics.Handler()))
	e.GET("/status", func(c echo.Context) error { return c.JSON(http.StatusOK, d.Status()) })
	e.GET("/history", d.handleHistory)
	e.POST("/sync", func(c echo.Context) error {
		if !d.Trigger() {
			return echo.NewHTTPError(http.StatusConflict, "a sync is already queued")
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
	})
	return e
}

func (d *Daemon) handleHistory(c echo.Context) error {
	if d.opts.History == nil {
		return echo.NewHTTPError(http.StatusNotFound, "journal disabled")
	}
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	runs, err := d.opts.History.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, runs)
}
