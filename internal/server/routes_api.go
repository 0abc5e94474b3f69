package server

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"

	"keybalancer-go/internal/balancer"
	"keybalancer-go/internal/store"

	"github.com/gin-gonic/gin"
)

const maxPrecheckedCount = 10

func (s *Server) registerAPIRoutes(root *gin.RouterGroup) {
	vg := root.Group("/v1", s.requireAPIKey())

	vg.GET("/getKeys", func(c *gin.Context) {
		site, tokens, ok := s.siteTokensForCaller(c)
		if !ok {
			return
		}
		count := parseCount(c.Query("count"), len(tokens))
		c.JSON(http.StatusOK, gin.H{"site": site, "keys": tokens[:count]})
	})

	vg.GET("/getPrecheckedKeys", func(c *gin.Context) {
		site, tokens, ok := s.siteTokensForCaller(c)
		if !ok {
			return
		}
		count := parseCount(c.Query("count"), len(tokens))
		if count > maxPrecheckedCount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count cannot be greater than " + strconv.Itoa(maxPrecheckedCount)})
			return
		}
		if !s.engine.Registry().Supports(site) {
			c.JSON(http.StatusOK, gin.H{"site": site, "keys": tokens[:count]})
			return
		}

		user := currentUser(c)
		valid := make([]string, 0, count)
		for _, token := range tokens {
			if len(valid) >= count {
				break
			}
			result, err := s.engine.Classify(c.Request.Context(), site, token, user.Username)
			if errors.Is(err, balancer.ErrCheckInFlight) {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "A balance check is already running for your account"})
				return
			}
			if err != nil || !result.Usable() {
				continue
			}
			valid = append(valid, token)
		}
		c.JSON(http.StatusOK, gin.H{"site": site, "keys": valid})
	})
}

// siteTokensForCaller validates the ?site= query against the caller's access
// and returns the site's tokens in random order. Inaccessible sites are
// reported as missing so their existence does not leak.
func (s *Server) siteTokensForCaller(c *gin.Context) (string, []string, bool) {
	site := c.Query("site")
	if site == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "site is required"})
		return "", nil, false
	}
	user := currentUser(c)
	if !s.sites.SiteExists(c.Request.Context(), site) {
		c.JSON(http.StatusNotFound, gin.H{"error": "site does not exist"})
		return "", nil, false
	}
	if s.sites.AccessLevel(c.Request.Context(), site, user.ID) == store.AccessNone && !user.Admin {
		c.JSON(http.StatusNotFound, gin.H{"error": "site does not exist"})
		return "", nil, false
	}
	tokens, err := s.sites.SiteTokens(c.Request.Context(), site)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read site keys"})
		return "", nil, false
	}
	rand.Shuffle(len(tokens), func(i, j int) { tokens[i], tokens[j] = tokens[j], tokens[i] })
	return site, tokens, true
}

func parseCount(raw string, available int) int {
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		count = 1
	}
	if count > available {
		count = available
	}
	return count
}
