package api

import (
	"net/http"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/usecase"
	xhttp "EnviroPulse/pkg/http"
	xlogger "EnviroPulse/pkg/logger"
	"EnviroPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// SensorsEchoHandler serves sensor metadata and raw rows.
type SensorsEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.SensorsUseCase
}

func NewSensorsEchoHandler(logger *xlogger.Logger, uc *usecase.SensorsUseCase) *SensorsEchoHandler {
	return &SensorsEchoHandler{logger: logger, uc: uc}
}

func (h *SensorsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/sensors", h.List)
	g := e.Group("/sensor-data")
	g.GET("/latest", h.Latest)
	g.GET("/series", h.Series)
	g.GET("/range", h.Range)
}

func (h *SensorsEchoHandler) List(c echo.Context) error {
	res, err := h.uc.ListSensors(c.Request().Context())
	if err != nil {
		return h.fail(c, "list sensors", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SensorsEchoHandler) Latest(c echo.Context) error {
	res, err := h.uc.Latest(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SensorsEchoHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseBounds(req.Start, req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	res, err := h.uc.Series(c.Request().Context(), req.SensorID, usecase.RangeParams{From: from, To: to, TimeColumn: req.TimeColumn})
	if err != nil {
		return h.fail(c, "series", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SensorsEchoHandler) Range(c echo.Context) error {
	req := &models.RangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseBounds(req.Start, req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	res, err := h.uc.Range(c.Request().Context(), usecase.RangeParams{
		SensorIDs:  req.SensorIDs,
		From:       from,
		To:         to,
		TimeColumn: req.TimeColumn,
	})
	if err != nil {
		return h.fail(c, "range", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SensorsEchoHandler) fail(c echo.Context, op string, err error) error {
	ae := toAppError(err)
	if h.logger != nil && ae.Status >= 500 {
		h.logger.Error("sensors usecase error", xlogger.String("op", op), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, ae)
}

// parseBounds parses start and end; naive values are UTC.
func parseBounds(start, end string) (time.Time, time.Time, *xhttp.AppError) {
	from, _, ok := util.ParseTimestamp(start, time.UTC)
	if !ok {
		return from, from, xhttp.NewAppError("ERR_INVALID_TIMESTAMP", "start", "start is not a valid timestamp", http.StatusBadRequest).WithParam("value", start)
	}
	to, _, ok := util.ParseTimestamp(end, time.UTC)
	if !ok {
		return from, to, xhttp.NewAppError("ERR_INVALID_TIMESTAMP", "end", "end is not a valid timestamp", http.StatusBadRequest).WithParam("value", end)
	}
	return from, to, nil
}
