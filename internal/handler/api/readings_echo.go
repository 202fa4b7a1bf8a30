package api

import (
	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/middleware"
	xhttp "EnviroPulse/pkg/http"
	xlogger "EnviroPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ReadingsEchoHandler accepts readings pushed by sensors or gateways.
type ReadingsEchoHandler struct {
	logger   *xlogger.Logger
	pipeline *middleware.IngestPipeline
}

func NewReadingsEchoHandler(logger *xlogger.Logger, pipeline *middleware.IngestPipeline) *ReadingsEchoHandler {
	return &ReadingsEchoHandler{logger: logger, pipeline: pipeline}
}

func (h *ReadingsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/readings", h.Ingest)
}

// Ingest responds 202 once readings are handed to the backend or buffered
// for retry.
func (h *ReadingsEchoHandler) Ingest(c echo.Context) error {
	req := &models.IngestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows := make([]*models.RawReading, len(req.Readings))
	for i := range req.Readings {
		r := req.Readings[i].Raw()
		rows[i] = &r
	}

	res, err := h.pipeline.Submit(c.Request().Context(), "http", rows)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("ingest failed",
				xlogger.Int("accepted", res.Accepted),
				xlogger.Int("dropped", res.Dropped),
				xlogger.Error(err),
			)
		}
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.AcceptedResponse(c, res)
}
