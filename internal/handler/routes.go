package handler

import (
	"io/fs"
	"net/http"

	"github.com/abdusco/shrinkly/internal/store"
	"github.com/labstack/echo/v4"
)

// Register mounts the API, the dashboard and static assets served from
// files.
func Register(e *echo.Echo, s *store.Store, files fs.FS) {
	linkHandler := NewLinkHandler(s)
	analyticsHandler := NewAnalyticsHandler(s)
	dashboardHandler := NewDashboardHandler(files)

	api := e.Group("/api")
	api.POST("/links", linkHandler.CreateLink)
	api.GET("/links", linkHandler.ListLinks)
	api.DELETE("/links/:id", linkHandler.DeleteLink)
	api.POST("/links/:id/visit", linkHandler.Visit)
	api.GET("/analytics", analyticsHandler.Summary)

	e.GET("/", dashboardHandler.ServeHTML)
	e.GET("/dashboard", dashboardHandler.ServeHTML)
	e.StaticFS("/static", files)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
