package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		check      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{"без проверки", nil, http.StatusOK, `{"status":"ready"}`},
		{"проверка успешна", func(context.Context) error { return nil }, http.StatusOK, `{"status":"ready"}`},
		{"проверка провалена", func(context.Context) error { return errors.New("mysql down") }, http.StatusServiceUnavailable, `{"status":"not_ready"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.check != nil {
				opts = append(opts, WithReadinessCheck(tt.check))
			}
			s := NewServer(":0", "payment-service", opts...)

			rec := httptest.NewRecorder()
			s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHealthz(t *testing.T) {
	s := NewServer(":0", "payment-service")

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(PaymentTransitions.WithLabelValues("processing", "completed"))

	RecordTransition("processing", "completed")

	after := testutil.ToFloat64(PaymentTransitions.WithLabelValues("processing", "completed"))
	assert.Equal(t, before+1, after)
}

func TestRecordEventPublished(t *testing.T) {
	okBefore := testutil.ToFloat64(EventsPublished.WithLabelValues("payment.created", "success"))
	errBefore := testutil.ToFloat64(EventsPublished.WithLabelValues("payment.created", "error"))

	RecordEventPublished("payment.created", nil)
	RecordEventPublished("payment.created", errors.New("kafka down"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(EventsPublished.WithLabelValues("payment.created", "success")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(EventsPublished.WithLabelValues("payment.created", "error")))
}

func TestGinMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMetricsMiddleware("payment-test"))
	r.GET("/api/v1/payments/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/payments/abc", nil))

	got := testutil.ToFloat64(RequestsTotal.WithLabelValues("payment-test", "GET /api/v1/payments/:id", "error"))
	assert.Equal(t, float64(1), got)
}
