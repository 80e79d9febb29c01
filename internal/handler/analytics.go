package handler

import (
	"net/http"
	"strconv"

	"github.com/abdusco/shrinkly/internal/analytics"
	"github.com/abdusco/shrinkly/internal/store"
	"github.com/labstack/echo/v4"
)

type AnalyticsHandler struct {
	store *store.Store
}

func NewAnalyticsHandler(s *store.Store) *AnalyticsHandler {
	return &AnalyticsHandler{store: s}
}

// Summary recomputes analytics from the current snapshot. The optional
// top and recent query parameters override how many entries are returned.
func (h *AnalyticsHandler) Summary(c echo.Context) error {
	top, err := intParam(c, "top", analytics.DefaultTop)
	if err != nil {
		return err
	}
	recent, err := intParam(c, "recent", analytics.DefaultRecent)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, analytics.Summarize(h.store.List(), top, recent))
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return n, nil
}
