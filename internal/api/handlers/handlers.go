package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hdpolover/ybb-data-management-service-sub000/internal/api/middleware"
	"github.com/hdpolover/ybb-data-management-service-sub000/internal/export"
)

// Handlers holds the API dependencies. All export semantics live in the
// manager; this layer only binds requests and maps typed errors onto HTTP.
type Handlers struct {
	manager *export.Manager
	log     *zap.Logger
}

func NewHandlers(manager *export.Manager, log *zap.Logger) *Handlers {
	return &Handlers{manager: manager, log: log}
}

// ── Error helpers ─────────────────────────────────────────────────────────────

type errResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ReqID   string `json:"request_id,omitempty"`
}

func apiErr(c echo.Context, code int, msg string) error {
	reqID, _ := c.Get(middleware.ContextKeyRequestID).(string)
	return c.JSON(code, errResponse{Code: code, Message: msg, ReqID: reqID})
}

// exportErr maps the manager's typed errors onto HTTP responses.
func exportErr(c echo.Context, err error) error {
	var selErr *export.InvalidSelectorError
	var failErr *export.ExportFailedError

	switch {
	case errors.Is(err, export.ErrNotFound):
		return apiErr(c, http.StatusNotFound, "export not found")
	case errors.Is(err, export.ErrNotReady):
		return apiErr(c, http.StatusConflict, "export is still processing")
	case errors.Is(err, export.ErrInvalidState):
		return apiErr(c, http.StatusConflict, err.Error())
	case errors.Is(err, export.ErrUnknownTemplate), errors.Is(err, export.ErrEmptyDataset):
		return apiErr(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &selErr):
		return apiErr(c, http.StatusBadRequest, selErr.Error())
	case errors.As(err, &failErr):
		return apiErr(c, http.StatusGone, failErr.Error())
	default:
		return apiErr(c, http.StatusInternalServerError, "internal error")
	}
}
