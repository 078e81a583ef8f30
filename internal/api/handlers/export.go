package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/export"
)

// CreateExportRequest carries the dataset already filtered and ordered by
// the caller (the PHP front end owns querying), plus the template selection.
type CreateExportRequest struct {
	ExportType string     `json:"export_type"`
	Template   string     `json:"template"`
	Rows       [][]string `json:"rows"`
}

func (h *Handlers) CreateExport(c echo.Context) error {
	var req CreateExportRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if req.ExportType == "" || req.Template == "" {
		return apiErr(c, http.StatusBadRequest, "export_type and template are required")
	}
	if len(req.Rows) == 0 {
		return apiErr(c, http.StatusBadRequest, "rows must not be empty")
	}

	rec, err := h.manager.CreateExport(c.Request().Context(), req.ExportType, req.Template, export.NewSliceSource(req.Rows))
	if err != nil {
		return exportErr(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) GetExport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid export id")
	}
	rec, err := h.manager.GetStatus(id)
	if err != nil {
		return exportErr(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handlers) ListExports(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.ListExports())
}

func (h *Handlers) DeleteExport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid export id")
	}
	if err := h.manager.DeleteExport(c.Request().Context(), id); err != nil {
		return exportErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DownloadExport streams one artifact. Selector comes from query params:
// ?archive=true for the bundle, ?batch=N for one batch of a multi-file
// export, neither for the primary artifact.
func (h *Handlers) DownloadExport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid export id")
	}

	sel := export.Selector{Kind: export.SelectorPrimary}
	if c.QueryParam("archive") == "true" {
		sel = export.Selector{Kind: export.SelectorArchive}
	} else if batch := c.QueryParam("batch"); batch != "" {
		n, err := strconv.Atoi(batch)
		if err != nil {
			return apiErr(c, http.StatusBadRequest, "batch must be an integer")
		}
		sel = export.Selector{Kind: export.SelectorBatch, Batch: n}
	}

	dl, err := h.manager.Download(c.Request().Context(), id, sel)
	if err != nil {
		return exportErr(c, err)
	}
	defer dl.Body.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", dl.Filename))
	if dl.ByteSize > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(dl.ByteSize, 10))
	}
	return c.Stream(http.StatusOK, dl.ContentType, dl.Body)
}
