package api

import (
	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/usecase"
	xhttp "EnviroPulse/pkg/http"
	xlogger "EnviroPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type DashboardEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.DashboardUseCase
}

func NewDashboardEchoHandler(logger *xlogger.Logger, uc *usecase.DashboardUseCase) *DashboardEchoHandler {
	return &DashboardEchoHandler{logger: logger, uc: uc}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/dashboard")
	g.GET("/temperature", h.Temperature)
	g.GET("/noise", h.Noise)
}

func (h *DashboardEchoHandler) Temperature(c echo.Context) error {
	req := &models.DashboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Temperature(c.Request().Context(), req.TopN)
	if err != nil {
		h.logError("temperature dashboard error", err)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardEchoHandler) Noise(c echo.Context) error {
	req := &models.DashboardRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Noise(c.Request().Context(), req.TopN)
	if err != nil {
		h.logError("noise dashboard error", err)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *DashboardEchoHandler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, xlogger.Error(err))
	}
}
