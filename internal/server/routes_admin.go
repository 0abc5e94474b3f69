package server

import (
	"errors"
	"net/http"
	"strconv"

	"keybalancer-go/internal/store"
	"keybalancer-go/internal/users"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// primaryAdminID is the bootstrap account; it can never be deleted or demoted.
const primaryAdminID = 1

const proxyToggleConfigKey = "use_proxies_for_balancer"

func (s *Server) registerAdminRoutes(root *gin.RouterGroup) {
	ag := root.Group("/admin", s.requireSession(), s.requireAdmin())

	ag.GET("/users", func(c *gin.Context) {
		all, err := s.users.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"allUsers": all})
	})

	ag.POST("/createUser", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		_, err := s.users.Create(c.Request.Context(), req.Username, req.Password, false)
		switch {
		case errors.Is(err, users.ErrUserExists):
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already exists"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	ag.POST("/userSites", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		target, err := s.users.ByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		sites, err := s.sites.UserSites(c.Request.Context(), target.ID, false)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sites"})
			return
		}
		index := make(map[string]store.AccessLevel, len(sites))
		for _, site := range sites {
			index[site.Domain] = s.sites.AccessLevel(c.Request.Context(), site.Domain, target.ID)
		}
		c.JSON(http.StatusOK, gin.H{"sites": index})
	})

	ag.POST("/deleteUser", func(c *gin.Context) {
		var req struct {
			UserID int `json:"userId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.UserID == primaryAdminID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete primary admin"})
			return
		}
		caller := currentUser(c)
		target, err := s.users.ByID(c.Request.Context(), req.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if caller.ID != primaryAdminID && target.Admin && target.ID != caller.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete other admins"})
			return
		}
		if err := s.users.Delete(c.Request.Context(), req.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
			return
		}
		if err := s.sites.RemoveUserFromAllSites(c.Request.Context(), req.UserID); err != nil {
			log.WithError(err).WithField("user_id", req.UserID).Warn("failed to revoke site roles of deleted user")
		}
		c.JSON(http.StatusOK, gin.H{})
	})

	ag.POST("/setUserRole", func(c *gin.Context) {
		var req struct {
			UserID  int   `json:"userId"`
			IsAdmin *bool `json:"isAdmin"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 || req.IsAdmin == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.UserID == primaryAdminID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot change role of primary admin"})
			return
		}
		switch err := s.users.SetAdmin(c.Request.Context(), req.UserID, *req.IsAdmin); {
		case errors.Is(err, users.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change role"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	ag.POST("/setUserPassword", func(c *gin.Context) {
		var req struct {
			UserID      int    `json:"userId"`
			NewPassword string `json:"newPassword"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 || req.NewPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		caller := currentUser(c)
		target, err := s.users.ByID(c.Request.Context(), req.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if caller.ID != primaryAdminID && target.Admin && target.ID != caller.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot change password of other admins"})
			return
		}
		if err := s.users.SetPassword(c.Request.Context(), req.UserID, req.NewPassword); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	})

	ag.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"useProxiesForBalancer": s.cfg.ProxiesEnabled(),
			"storageBackend":        s.cfg.StorageBackend,
		})
	})

	ag.POST("/config", func(c *gin.Context) {
		var req struct {
			UseProxiesForBalancer *bool `json:"useProxiesForBalancer"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.UseProxiesForBalancer == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		s.cfg.SetProxiesEnabled(*req.UseProxiesForBalancer)
		if err := s.backend.SetConfig(c.Request.Context(), proxyToggleConfigKey, strconv.FormatBool(*req.UseProxiesForBalancer)); err != nil {
			log.WithError(err).Warn("failed to persist proxy toggle")
		}
		c.JSON(http.StatusOK, gin.H{"useProxiesForBalancer": s.cfg.ProxiesEnabled()})
	})
}
