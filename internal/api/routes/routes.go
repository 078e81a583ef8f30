package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/api/handlers"
)

func Register(e *echo.Echo, h *handlers.Handlers) {
	api := e.Group("/api/v1")

	api.POST("/exports", h.CreateExport)
	api.GET("/exports", h.ListExports)
	api.GET("/exports/:id", h.GetExport)
	api.GET("/exports/:id/download", h.DownloadExport)
	api.DELETE("/exports/:id", h.DeleteExport)
}
