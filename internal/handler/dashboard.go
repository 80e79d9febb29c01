package handler

import (
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

type DashboardHandler struct {
	files fs.FS
}

func NewDashboardHandler(files fs.FS) *DashboardHandler {
	return &DashboardHandler{files: files}
}

func (h *DashboardHandler) ServeHTML(c echo.Context) error {
	data, err := fs.ReadFile(h.files, "index.html")
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to read index.html")
	}
	return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, data)
}
