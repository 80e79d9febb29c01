package handler

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/abdusco/shrinkly/internal/notify"
	"github.com/abdusco/shrinkly/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const invalidURLMessage = "Please enter a valid URL (e.g., https://example.com)"

type LinkHandler struct {
	store *store.Store
}

func NewLinkHandler(s *store.Store) *LinkHandler {
	return &LinkHandler{store: s}
}

type CreateLinkRequest struct {
	URL string `json:"url"`
}

type CreateLinkResponse struct {
	Link   store.Link    `json:"link"`
	Notice notify.Notice `json:"notice"`
}

type ListLinksResponse struct {
	Links []store.Link `json:"links"`
}

type DeleteLinkResponse struct {
	Notice notify.Notice `json:"notice"`
}

type VisitResponse struct {
	Link     store.Link `json:"link"`
	Location string     `json:"location"`
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	link, err := h.store.Create(ctx, req.URL)
	if errors.Is(err, store.ErrInvalidURL) {
		log.Debug().Str("url", req.URL).Msg("rejected invalid url")
		return echo.NewHTTPError(http.StatusBadRequest, invalidURLMessage)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create link").SetInternal(err)
	}

	return c.JSON(http.StatusCreated, CreateLinkResponse{
		Link:   link,
		Notice: notify.Created(link),
	})
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	return c.JSON(http.StatusOK, ListLinksResponse{Links: h.store.List()})
}

func (h *LinkHandler) DeleteLink(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if err := h.store.Delete(ctx, id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete link").SetInternal(err)
	}

	return c.JSON(http.StatusOK, DeleteLinkResponse{Notice: notify.Deleted(id)})
}

// Visit records a click and tells the caller where to navigate. The short
// URL itself is never resolved.
func (h *LinkHandler) Visit(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	visitor := store.Visitor{
		UserAgent: c.Request().UserAgent(),
		IP:        getClientIP(c.Request()),
	}

	link, ok, err := h.store.RecordClick(ctx, id, visitor)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record click").SetInternal(err)
	}
	if !ok {
		log.Warn().Str("id", id).Msg("link not found")
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	}

	log.Info().Str("id", id).Str("ip", visitor.IP).Msg("visiting link")

	return c.JSON(http.StatusOK, VisitResponse{Link: link, Location: link.OriginalURL})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For is the original client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if ip := net.ParseIP(first); ip != nil {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
