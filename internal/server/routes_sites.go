package server

import (
	"errors"
	"net/http"

	"keybalancer-go/internal/balancer"
	"keybalancer-go/internal/store"
	"keybalancer-go/internal/users"

	"github.com/gin-gonic/gin"
)

// siteView is the management-UI shape of a site: member ids are expanded
// into public user records and the balancer capability is announced.
type siteView struct {
	Domain           string             `json:"domain"`
	Public           bool               `json:"public"`
	Readers          []users.PublicUser `json:"readers"`
	Editors          []users.PublicUser `json:"editors"`
	Keys             []balancer.Key     `json:"keys"`
	SupportsBalancer bool               `json:"supportsBalancer"`
}

func (s *Server) siteToView(c *gin.Context, site *store.Site) siteView {
	expand := func(ids []int) []users.PublicUser {
		out := make([]users.PublicUser, 0, len(ids))
		for _, id := range ids {
			if u, err := s.users.ByID(c.Request.Context(), id); err == nil {
				out = append(out, users.Public(u))
			}
		}
		return out
	}
	keys := site.Keys
	if keys == nil {
		keys = []balancer.Key{}
	}
	return siteView{
		Domain:           site.Domain,
		Public:           site.Public,
		Readers:          expand(site.Readers),
		Editors:          expand(site.Editors),
		Keys:             keys,
		SupportsBalancer: s.engine.Registry().Supports(site.Domain),
	}
}

func (s *Server) registerSiteRoutes(root *gin.RouterGroup) {
	sg := root.Group("/sites", s.requireSession())

	sg.POST("/index", func(c *gin.Context) {
		user := currentUser(c)
		sites, err := s.sites.UserSites(c.Request.Context(), user.ID, user.Admin)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sites"})
			return
		}
		views := make([]siteView, 0, len(sites))
		for _, site := range sites {
			views = append(views, s.siteToView(c, site))
		}
		c.JSON(http.StatusOK, gin.H{"sites": views})
	})

	sg.POST("/add", func(c *gin.Context) {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		switch err := s.sites.AddSite(c.Request.Context(), req.URL); {
		case errors.Is(err, store.ErrSiteExists):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Site already exists"})
		case errors.Is(err, store.ErrInvalidDomain):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add site"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/addKey", func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain"`
			Key    string `json:"key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user := currentUser(c)
		if !s.sites.SiteExists(c.Request.Context(), req.Domain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
			return
		}
		if s.sites.AccessLevel(c.Request.Context(), req.Domain, user.ID) == store.AccessNone && !user.Admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "No permission"})
			return
		}
		if s.sites.HasKey(c.Request.Context(), req.Domain, req.Key) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Key already exists"})
			return
		}

		// A supported provider probes the key before it is stored: rejected
		// credentials never enter the pool.
		balance := balancer.UnsupportedBalance
		if s.engine.Registry().Supports(req.Domain) {
			result, err := s.classify(c, req.Domain, req.Key, user.Username)
			if err != nil {
				return
			}
			if !result.Usable() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Balancer has determined the key is invalid."})
				return
			}
			balance = result.Canonical()
		}

		switch err := s.sites.AddKey(c.Request.Context(), req.Domain, req.Key, balance); {
		case errors.Is(err, store.ErrKeyExists):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Key already exists"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add key"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/balancerCheck", func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain"`
			Key    string `json:"key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user := currentUser(c)
		if !s.engine.Registry().Supports(req.Domain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Balancer does not exist for domain"})
			return
		}
		if !s.sites.SiteExists(c.Request.Context(), req.Domain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
			return
		}
		if s.sites.AccessLevel(c.Request.Context(), req.Domain, user.ID) != store.AccessEditor && !user.Admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "No permission"})
			return
		}
		if !s.sites.HasKey(c.Request.Context(), req.Domain, req.Key) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}

		result, err := s.classify(c, req.Domain, req.Key, user.Username)
		if err != nil {
			return
		}
		if !result.Usable() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Balancer has determined the key is invalid."})
			return
		}
		if err := s.sites.ApplyClassification(c.Request.Context(), req.Domain, req.Key, result); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store balance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	})

	sg.POST("/removeKey", func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain"`
			Key    string `json:"key"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if !currentUser(c).Admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "No permission"})
			return
		}
		switch err := s.sites.RemoveKey(c.Request.Context(), req.Domain, req.Key); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case errors.Is(err, store.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove key"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/sortKeys", func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user := currentUser(c)
		if s.sites.AccessLevel(c.Request.Context(), req.Domain, user.ID) != store.AccessEditor && !user.Admin {
			c.JSON(http.StatusForbidden, gin.H{"error": "No permission"})
			return
		}
		switch err := s.sites.SortKeys(c.Request.Context(), req.Domain); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case errors.Is(err, balancer.ErrNoSortableBalances):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no keys with balance to sort"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sort keys"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/addUserToSite", s.requireAdmin(), func(c *gin.Context) {
		var req struct {
			Domain   string `json:"domain"`
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		target, err := s.users.ByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		switch err := s.sites.AddReader(c.Request.Context(), req.Domain, target.ID); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "User already a reader"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/changeUserRole", s.requireAdmin(), func(c *gin.Context) {
		var req struct {
			Domain   string `json:"domain"`
			Username string `json:"username"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		role := store.AccessLevel(req.Role)
		if role != store.AccessReader && role != store.AccessEditor {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		target, err := s.users.ByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		switch err := s.sites.ChangeRole(c.Request.Context(), req.Domain, target.ID, role); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change role"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/removeUserFromSite", s.requireAdmin(), func(c *gin.Context) {
		var req struct {
			Domain   string `json:"domain"`
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" || req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		target, err := s.users.ByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		switch err := s.sites.RemoveUserFromSite(c.Request.Context(), req.Domain, target.ID); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove user"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})

	sg.POST("/deleteSite", s.requireAdmin(), func(c *gin.Context) {
		var req struct {
			Domain string `json:"domain"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Domain == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		switch err := s.sites.DeleteSite(c.Request.Context(), req.Domain); {
		case errors.Is(err, store.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Site does not exist"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete site"})
		default:
			c.JSON(http.StatusOK, gin.H{})
		}
	})
}

// classify runs one engine probe for an HTTP handler and writes the error
// response itself when the probe cannot settle.
func (s *Server) classify(c *gin.Context, domain, key, username string) (balancer.Classification, error) {
	result, err := s.engine.Classify(c.Request.Context(), domain, key, username)
	switch {
	case errors.Is(err, balancer.ErrCheckInFlight):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "A balance check is already running for your account"})
	case errors.Is(err, balancer.ErrUnsupportedProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "Balancer does not exist for domain"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Balance check failed"})
	}
	return result, err
}
