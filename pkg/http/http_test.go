package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"EnviroPulse/pkg/http/middleware"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	SensorID int64  `query:"sensor_id" json:"sensor_id" validate:"required,gte=0"`
	Metric   string `query:"metric" json:"metric" default:"celsius" validate:"oneof=celsius average_db"`
	TopN     int    `query:"top_n" json:"top_n" default:"5" validate:"gte=1,lte=25"`
}

func bindSample(t *testing.T, target string) (*sampleRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	var r sampleRequest
	errs := ReadAndValidateRequest(c, &r)
	return &r, errs
}

func TestReadAndValidateRequest(t *testing.T) {
	r, errs := bindSample(t, "/?sensor_id=4")
	require.Nil(t, errs)
	assert.Equal(t, int64(4), r.SensorID)
	assert.Equal(t, "celsius", r.Metric)
	assert.Equal(t, 5, r.TopN)

	_, errs = bindSample(t, "/?sensor_id=4&top_n=99&metric=humidity")
	require.Len(t, errs, 2)
	assert.Equal(t, "metric", errs[0].Field)
	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "top_n", errs[1].Field)
	assert.Equal(t, "25", errs[1].Params["max"])

	_, errs = bindSample(t, "/?sensor_id=abc")
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNKNOWN", errs[0].Code)
}

func TestAppErrorResponse_UsesStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, AppErrorResponse(c, UnavailableError("no data available")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NO_DATA", body.Data[0].Code)
}

func TestAppErrorResponse_RetryAfter(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	ae := NewAppError("ERR_BUFFER_FULL", "", "busy", http.StatusServiceUnavailable).WithRetryAfter(1500 * time.Millisecond)
	require.NoError(t, AppErrorResponse(c, ae))
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, AppErrorResponse(c, BadRequestError("nope")))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

type countingAllower struct{ left int }

func (a *countingAllower) Allow(string) bool {
	a.left--
	return a.left >= 0
}

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/healthz", func(c echo.Context) error { return SuccessResponse(c, "ok") })
}

func TestServer_CORSAndRateLimit(t *testing.T) {
	s := NewServer([]Handler{pingHandler{}},
		WithMetrics(false, 0),
		WithCORSOrigins([]string{"http://localhost:5173"}),
		WithMiddleware(middleware.RateLimit(&countingAllower{left: 1}, "/api")),
	)

	do := func(path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if origin != "" {
			req.Header.Set(echo.HeaderOrigin, origin)
		}
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		return rec
	}

	rec := do("/api/ping", "http://localhost:5173")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	assert.Equal(t, http.StatusTooManyRequests, do("/api/ping", "").Code)
	assert.Equal(t, http.StatusOK, do("/healthz", "").Code)

	rec = do("/healthz", "http://evil.example")
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
