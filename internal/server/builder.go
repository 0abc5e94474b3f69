package server

import (
	"net/http"

	"keybalancer-go/internal/balancer"
	"keybalancer-go/internal/config"
	mw "keybalancer-go/internal/middleware"
	"keybalancer-go/internal/store"
	"keybalancer-go/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies encapsulates runtime services required to build the HTTP engine.
type Dependencies struct {
	Sites   *store.SiteStore
	Users   *users.Store
	Engine  *balancer.Engine
	Backend store.Backend
}

// Server holds the wired services behind the HTTP surface.
type Server struct {
	cfg     *config.Config
	sites   *store.SiteStore
	users   *users.Store
	engine  *balancer.Engine
	backend store.Backend
}

func New(cfg *config.Config, deps Dependencies) *Server {
	return &Server{
		cfg:     cfg,
		sites:   deps.Sites,
		users:   deps.Users,
		engine:  deps.Engine,
		backend: deps.Backend,
	}
}

// BuildEngine constructs the Gin engine with the standard middleware chain
// and every route group mounted.
func (s *Server) BuildEngine() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	_ = engine.SetTrustedProxies([]string{})

	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics())
	engine.Use(mw.CORS())
	engine.Use(mw.RequestLogger())
	engine.Use(mw.RateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))

	// The management surface is mounted under /$ to keep static assets and
	// API paths from colliding.
	root := engine.Group("/$")
	s.registerAuthRoutes(root)
	s.registerSiteRoutes(root)
	s.registerAdminRoutes(root)
	s.registerAPIRoutes(root)

	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.registerLogStream(engine)

	return engine
}
