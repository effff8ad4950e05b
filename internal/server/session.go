package server

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"mkulima/internal/cache"
)

// SessionHeader selects the cache slot. Without it requests share the
// "latest" slot.
const SessionHeader = "X-Session-ID"

const sessionContextKey = "session"

var validSession = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

func sessionSlot() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(SessionHeader))
		if key == "" {
			key = cache.DefaultKey
		} else if !validSession.MatchString(key) {
			abortError(c, http.StatusBadRequest, "Invalid "+SessionHeader+" header.")
			return
		}
		c.Set(sessionContextKey, key)
		c.Header(SessionHeader, key)
		c.Next()
	}
}

func sessionKey(c *gin.Context) string {
	if key := c.GetString(sessionContextKey); key != "" {
		return key
	}
	return cache.DefaultKey
}
