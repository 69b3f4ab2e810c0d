package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"))
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))

	l.SetLimit(10, time.Hour)
	assert.True(t, l.Allow("9.9.9.9"))
}

func TestRateLimiterSweep(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	l.Allow("a")
	l.visitors["a"].lastSeen = time.Now().Add(-time.Hour)
	l.Sweep()
	assert.Empty(t, l.visitors)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}), Secure())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}
