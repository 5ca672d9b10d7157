package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasehunt/internal/gameerr"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })
}

func TestMiddleware_StatusLabels(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/limited", func(c echo.Context) error {
		return gameerr.New(gameerr.CodeRateLimited, "slow down")
	})
	e.GET("/teapot", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	okBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("/ok", "200"))
	limitedBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("/limited", "429"))
	teapotBefore := testutil.ToFloat64(RequestsTotal.WithLabelValues("/teapot", "418"))

	for _, path := range []string{"/ok", "/limited", "/teapot"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, okBefore+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("/ok", "200")))
	assert.Equal(t, limitedBefore+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("/limited", "429")))
	assert.Equal(t, teapotBefore+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("/teapot", "418")))
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveRequests))
}
