package middleware

import (
	"net/http"

	"csv-agent/session"
	"csv-agent/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const SessionCookieName = "csv_agent_session"
const CookieMaxAge = 24 * 60 * 60 // 1 day

// Context keys, shared with the handlers package.
const (
	ContextSessionID = "sessionID"
	ContextSession   = "session"
)

// SessionMiddleware attaches the browser's session to the request. A
// missing or malformed cookie starts a new session.
func SessionMiddleware(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(SessionCookieName)
		if err != nil && err != http.ErrNoCookie {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse session cookie"})
			return
		}
		if err == http.ErrNoCookie || !utils.IsValidSessionID(sessionID) {
			sessionID = uuid.New().String()
			c.SetCookie(SessionCookieName, sessionID, CookieMaxAge, "/", "", false, true)
		}

		sess := store.GetOrCreate(sessionID)
		c.Set(ContextSessionID, sessionID)
		c.Set(ContextSession, sess)
		c.Next()
	}
}
