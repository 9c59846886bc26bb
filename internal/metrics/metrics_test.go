package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePageCount(t *testing.T) {
	before := testutil.ToFloat64(pageCounts.WithLabelValues("pdf", "fallback"))
	ObservePageCount("pdf", "fallback")
	after := testutil.ToFloat64(pageCounts.WithLabelValues("pdf", "fallback"))
	assert.Equal(t, before+1, after)
}

func TestMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/items/:id", "200"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/items/:id", "200"))

	assert.Equal(t, before+1, after)
}
