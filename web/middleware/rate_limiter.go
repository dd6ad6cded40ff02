package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"csv-agent/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	MessagesPerMinute int           // Max messages per session per minute
	FilesPerHour      int           // Max file uploads per session per hour
	BurstSize         int           // Allow burst of N requests
	CleanupInterval   time.Duration // How often to clean up old entries
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time
	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Full reports whether the bucket has refilled to capacity.
func (tb *TokenBucket) Full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := time.Since(tb.lastRefill).Seconds()
	return tb.tokens+(elapsed*tb.refillRate) >= tb.maxTokens
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// SessionRateLimiter manages rate limits per session
type SessionRateLimiter struct {
	config        RateLimiterConfig
	messageLimits map[string]*TokenBucket
	fileLimits    map[string]*TokenBucket
	mu            sync.RWMutex
	logger        *zap.Logger
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewSessionRateLimiter creates a new session-based rate limiter
func NewSessionRateLimiter(config RateLimiterConfig, logger *zap.Logger) *SessionRateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	limiter := &SessionRateLimiter{
		config:        config,
		messageLimits: make(map[string]*TokenBucket),
		fileLimits:    make(map[string]*TokenBucket),
		logger:        logger,
		stopCleanup:   make(chan struct{}),
	}

	// Start cleanup goroutine
	go limiter.cleanupRoutine()

	return limiter
}

// cleanupRoutine periodically removes stale entries
func (srl *SessionRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(srl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srl.cleanup()
		case <-srl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets that have refilled completely. A full bucket
// behaves exactly like a new one, so forgetting it changes no decision.
func (srl *SessionRateLimiter) cleanup() {
	srl.mu.Lock()
	defer srl.mu.Unlock()

	before := len(srl.messageLimits) + len(srl.fileLimits)
	for _, limits := range []map[string]*TokenBucket{srl.messageLimits, srl.fileLimits} {
		for sessionID, bucket := range limits {
			if bucket.Full() {
				delete(limits, sessionID)
			}
		}
	}
	if removed := before - len(srl.messageLimits) - len(srl.fileLimits); removed > 0 {
		srl.logger.Debug("Cleaned up rate limiter buckets", zap.Int("removed", removed))
	}
}

// Stop stops the cleanup routine. Safe to call more than once.
func (srl *SessionRateLimiter) Stop() {
	srl.stopOnce.Do(func() { close(srl.stopCleanup) })
}

// AllowMessage checks if a message can be sent for the given session
func (srl *SessionRateLimiter) AllowMessage(sessionID string) bool {
	srl.mu.Lock()
	bucket, exists := srl.messageLimits[sessionID]
	if !exists {
		// Create new bucket: MessagesPerMinute tokens, refill at rate/60 per second
		refillRate := float64(srl.config.MessagesPerMinute) / 60.0
		bucket = NewTokenBucket(float64(srl.config.BurstSize), refillRate)
		srl.messageLimits[sessionID] = bucket
	}
	srl.mu.Unlock()

	return bucket.Allow()
}

// AllowFile checks if a file upload can proceed for the given session
func (srl *SessionRateLimiter) AllowFile(sessionID string) bool {
	srl.mu.Lock()
	bucket, exists := srl.fileLimits[sessionID]
	if !exists {
		// Create new bucket: FilesPerHour tokens, refill at rate/3600 per second
		refillRate := float64(srl.config.FilesPerHour) / 3600.0
		bucket = NewTokenBucket(float64(srl.config.FilesPerHour), refillRate)
		srl.fileLimits[sessionID] = bucket
	}
	srl.mu.Unlock()

	return bucket.Allow()
}

// GetMessageLimit returns remaining message tokens for a session
func (srl *SessionRateLimiter) GetMessageLimit(sessionID string) (remaining int, limit int) {
	srl.mu.RLock()
	bucket, exists := srl.messageLimits[sessionID]
	srl.mu.RUnlock()

	if !exists {
		return srl.config.BurstSize, srl.config.BurstSize
	}
	return bucket.Remaining(), srl.config.BurstSize
}

// Limit types accepted by RateLimitMiddleware
const (
	LimitMessage = "message"
	LimitFile    = "file"
)

// RateLimitMiddleware creates a Gin middleware for rate limiting
func RateLimitMiddleware(limiter *SessionRateLimiter, limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDValue, exists := c.Get(ContextSessionID)
		if !exists {
			// Session middleware should run before this
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session not initialized"})
			return
		}

		sessionID, _ := sessionIDValue.(string)
		var allowed bool
		var remaining, limit int

		switch limitType {
		case LimitMessage:
			allowed = limiter.AllowMessage(sessionID)
			remaining, limit = limiter.GetMessageLimit(sessionID)
		case LimitFile:
			allowed = limiter.AllowFile(sessionID)
			// For files, we don't expose remaining (too complex with hourly buckets)
			remaining, limit = limiter.config.FilesPerHour, limiter.config.FilesPerHour
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown limit type"})
			return
		}

		// Add rate limit headers
		c.Header("X-RateLimit-Limit", formatInt(limit))
		c.Header("X-RateLimit-Remaining", formatInt(remaining))

		if !allowed {
			// Get logger from context
			logger, _ := c.Get("logger")
			zapLogger, _ := logger.(*zap.Logger)
			if zapLogger != nil {
				zapLogger.Warn("Rate limit exceeded",
					zap.String("session_id", sessionID),
					zap.String("limit_type", limitType),
					zap.Int("limit", limit))
			}

			c.Header("Retry-After", "60") // Suggest retry after 60 seconds
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// formatInt converts int to string for headers
func formatInt(n int) string {
	return strconv.Itoa(n)
}

// ConfigFromApp maps the application settings onto a limiter config.
func ConfigFromApp(cfg *config.Config) RateLimiterConfig {
	return RateLimiterConfig{
		MessagesPerMinute: cfg.RateLimitMessagesPerMin,
		FilesPerHour:      cfg.RateLimitFilesPerHour,
		BurstSize:         cfg.RateLimitBurstSize,
		CleanupInterval:   10 * time.Minute,
	}
}
