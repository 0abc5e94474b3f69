package server

import (
	"net/http"

	"keybalancer-go/internal/users"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerAuthRoutes(root *gin.RouterGroup) {
	ag := root.Group("/auth")

	ag.POST("/whoami", func(c *gin.Context) {
		user := s.sessionUser(c)
		if user == nil {
			c.JSON(http.StatusOK, gin.H{"loggedIn": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"loggedIn": true, "user": users.Public(user)})
	})

	ag.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		token, user, err := s.users.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
			return
		}
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(sessionCookie, token, int(s.users.SessionTTL().Seconds()), "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"loggedIn": true, "user": users.Public(user)})
	})

	ag.POST("/logout", func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err != nil || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
			return
		}
		s.users.Logout(token)
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"loggedOut": true})
	})
}
