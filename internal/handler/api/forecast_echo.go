package api

import (
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/usecase"
	xhttp "EnviroPulse/pkg/http"
	xlogger "EnviroPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastEchoHandler serves predictions and bundle metadata.
type ForecastEchoHandler struct {
	logger *xlogger.Logger
	uc     *usecase.ForecastUseCase
}

func NewForecastEchoHandler(logger *xlogger.Logger, uc *usecase.ForecastUseCase) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, uc: uc}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predict", h.Predict)
	g.POST("/predict", h.Predict)
	g.GET("/predict/all", h.PredictAll)
	g.GET("/bundles", h.Bundles)
}

func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Predict(c.Request().Context(), usecase.PredictParams{
		SensorID:    req.SensorID,
		Metric:      req.Metric,
		FutureTsUTC: req.FutureTsUTC,
		Lookback:    time.Duration(req.LookbackHours) * time.Hour,
	})
	if err != nil {
		return h.fail(c, "predict", err, xlogger.Int64("sensor_id", req.SensorID), xlogger.String("metric", req.Metric))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) PredictAll(c echo.Context) error {
	req := &models.PredictAllRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, err := models.ParseMetric(req.Metric); err != nil {
		return h.fail(c, "predict_all", err)
	}

	res, err := h.uc.PredictAll(c.Request().Context(), req.Metric, req.FutureTsUTC, time.Duration(req.LookbackHours)*time.Hour)
	if err != nil {
		return h.fail(c, "predict_all", err, xlogger.String("metric", req.Metric))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *ForecastEchoHandler) Bundles(c echo.Context) error {
	res := h.uc.Bundles()
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *ForecastEchoHandler) fail(c echo.Context, op string, err error, fields ...xlogger.Field) error {
	ae := toAppError(err)
	if h.logger != nil {
		fields = append(fields, xlogger.String("op", op), xlogger.String("code", ae.Code), xlogger.Error(err))
		if ae.Status >= 500 {
			h.logger.Error("forecast usecase error", fields...)
		} else {
			h.logger.Debug("forecast request rejected", fields...)
		}
	}
	return xhttp.AppErrorResponse(c, ae)
}
