package server

import (
	"net/http"
	"strings"

	"keybalancer-go/internal/store"

	"github.com/gin-gonic/gin"
)

const sessionCookie = "session"

// sessionUser resolves the session cookie to an account, or nil.
func (s *Server) sessionUser(c *gin.Context) *store.User {
	token, err := c.Cookie(sessionCookie)
	if err != nil || strings.TrimSpace(token) == "" {
		return nil
	}
	user, err := s.users.BySession(c.Request.Context(), strings.TrimSpace(token))
	if err != nil {
		return nil
	}
	return user
}

// requireSession aborts with 401 unless a valid session cookie is present.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := s.sessionUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			return
		}
		c.Set("user", user)
		c.Set("username", user.Username)
		c.Next()
	}
}

// requireAdmin runs after requireSession and gates admin-only routes.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.Admin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// requireAPIKey authenticates programmatic callers via the Authorization
// header or the ?key= query parameter.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("Authorization"))
		key = strings.TrimSpace(strings.TrimPrefix(key, "Bearer "))
		if key == "" {
			key = strings.TrimSpace(c.Query("key"))
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is required"})
			return
		}
		user, err := s.users.ByAPIKey(c.Request.Context(), key, c.Request.UserAgent())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			return
		}
		c.Set("user", user)
		c.Set("username", user.Username)
		c.Next()
	}
}

func currentUser(c *gin.Context) *store.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	user, _ := v.(*store.User)
	return user
}
