package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"EnviroPulse/internal/domain/models"
	"EnviroPulse/internal/middleware"
	xhttp "EnviroPulse/pkg/http"
)

// ingestRetryAfter matches the pipeline's maximum flush backoff.
const ingestRetryAfter = 5 * time.Second

var kindStatus = map[models.ErrorKind]int{
	models.KindInvalidMetric:       http.StatusBadRequest,
	models.KindInvalidTimestamp:    http.StatusBadRequest,
	models.KindHorizonTooSmall:     http.StatusBadRequest,
	models.KindHorizonTooLarge:     http.StatusBadRequest,
	models.KindInsufficientHistory: http.StatusBadRequest,
	models.KindBundleNotFound:      http.StatusInternalServerError,
	models.KindMalformedBundle:     http.StatusInternalServerError,
}

// toAppError maps domain errors to HTTP errors. Anything unrecognised is an
// internal error whose cause is not exposed.
func toAppError(err error) *xhttp.AppError {
	var fe *models.ForecastError
	if errors.As(err, &fe) {
		if fe.Kind == models.KindNoHistory {
			return xhttp.UnavailableError("no data available").WithError(err).WithParam("detail", fe.Message)
		}
		status, ok := kindStatus[fe.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		ae := xhttp.NewAppError(kindCode(fe.Kind), "", fe.Error(), status).WithError(err)
		if len(fe.Missing) > 0 {
			ae.WithParam("missing", fe.Missing)
		}
		if len(fe.Samples) > 0 {
			ae.WithParam("samples", fe.Samples)
		}
		if fe.Requested != 0 || fe.Bound != 0 {
			ae.WithParam("requested_min", fe.Requested).WithParam("bound_min", fe.Bound)
		}
		return ae
	}
	if errors.Is(err, models.ErrInvalidArgument) {
		return xhttp.BadRequestError(strings.TrimPrefix(err.Error(), models.ErrInvalidArgument.Error()+": ")).WithError(err)
	}
	if errors.Is(err, middleware.ErrBufferFull) {
		return xhttp.NewAppError("ERR_BUFFER_FULL", "", "ingest temporarily unavailable", http.StatusServiceUnavailable).
			WithError(err).WithRetryAfter(ingestRetryAfter)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}

// kindCode renders e.g. horizon_too_small as ERR_HORIZON_TOO_SMALL.
func kindCode(k models.ErrorKind) string {
	return "ERR_" + strings.ToUpper(string(k))
}
