package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"csv-agent/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(8, nil, zap.NewNop())
	require.NoError(t, err)
	return store
}

func sessionRouter(store *session.Store) *gin.Engine {
	r := gin.New()
	r.Use(SessionMiddleware(store))
	r.GET("/", func(c *gin.Context) {
		sess := c.MustGet(ContextSession).(*session.Session)
		c.String(http.StatusOK, sess.ID)
	})
	return r
}

func TestSessionMiddlewareIssuesCookie(t *testing.T) {
	store := newStore(t)
	r := sessionRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, cookies[0].Value, w.Body.String())
	assert.Equal(t, 1, store.Len())
}

func TestSessionMiddlewareReusesSession(t *testing.T) {
	store := newStore(t)
	r := sessionRouter(store)
	id := "0b6f4a2e-8c1d-4f6a-9a51-0c5d2f3e7b10"

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, id, w.Body.String())
		assert.Empty(t, w.Result().Cookies())
	}
	assert.Equal(t, 1, store.Len())
}

func TestSessionMiddlewareReplacesMalformedCookie(t *testing.T) {
	store := newStore(t)
	r := sessionRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "../../etc"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, "../../etc", w.Body.String())
	require.Len(t, w.Result().Cookies(), 1)
}

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(2, 0)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
	assert.Equal(t, 0, tb.Remaining())
}

func TestCleanupDropsRefilledBuckets(t *testing.T) {
	limiter := NewSessionRateLimiter(RateLimiterConfig{
		MessagesPerMinute: 60,
		FilesPerHour:      1,
		BurstSize:         1,
		CleanupInterval:   time.Hour,
	}, zap.NewNop())
	defer limiter.Stop()

	assert.True(t, limiter.AllowMessage("idle"))
	assert.True(t, limiter.AllowFile("busy"))
	// "idle" refills one token per second, "busy" one per hour
	limiter.messageLimits["idle"].lastRefill = time.Now().Add(-2 * time.Second)

	limiter.cleanup()
	assert.NotContains(t, limiter.messageLimits, "idle")
	assert.Contains(t, limiter.fileLimits, "busy")

	limiter.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewSessionRateLimiter(RateLimiterConfig{
		MessagesPerMinute: 1,
		FilesPerHour:      1,
		BurstSize:         2,
		CleanupInterval:   time.Hour,
	}, zap.NewNop())
	defer limiter.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextSessionID, c.GetHeader("X-Session"))
		c.Next()
	})
	r.POST("/chat", RateLimitMiddleware(limiter, LimitMessage), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/dataset", RateLimitMiddleware(limiter, LimitFile), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(path, sessionID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-Session", sessionID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("/chat", "a").Code)
	assert.Equal(t, http.StatusOK, send("/chat", "a").Code)
	limited := send("/chat", "a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	// buckets are per session
	assert.Equal(t, http.StatusOK, send("/chat", "b").Code)

	assert.Equal(t, http.StatusOK, send("/dataset", "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("/dataset", "a").Code)
}

func TestRateLimitMiddlewareRequiresSession(t *testing.T) {
	limiter := NewSessionRateLimiter(RateLimiterConfig{MessagesPerMinute: 1, BurstSize: 1}, zap.NewNop())
	defer limiter.Stop()

	r := gin.New()
	r.POST("/chat", RateLimitMiddleware(limiter, LimitMessage), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
