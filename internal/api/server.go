// Package api exposes the read-only query surface other strategies and
// dashboards consume: nearest structure levels, confluence, active
// events, and the bounce machine states.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bounce-catcher/internal/bounce"
	"bounce-catcher/internal/marketdata"
	"bounce-catcher/internal/structure"
)

// Config holds HTTP server settings.
type Config struct {
	Host      string
	Port      int
	Debug     bool
	JWTSecret string // empty disables auth
}

// Server is the HTTP query server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *structure.Engine
	catcher    *bounce.Catcher
	logger     zerolog.Logger
}

// NewServer wires routes over the structure engine and bounce catcher.
func NewServer(cfg Config, engine *structure.Engine, catcher *bounce.Catcher, logger zerolog.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		engine:  engine,
		catcher: catcher,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	router.GET("/healthz", s.handleHealth)

	v1 := router.Group("/api/v1")
	if cfg.JWTSecret != "" {
		v1.Use(jwtAuthMiddleware(cfg.JWTSecret))
	}
	{
		v1.GET("/structure/:symbol/:timeframe", s.handleSnapshot)
		v1.GET("/structure/:symbol/:timeframe/nearest-support", s.handleNearestSupport)
		v1.GET("/structure/:symbol/:timeframe/nearest-resistance", s.handleNearestResistance)
		v1.GET("/structure/:symbol/:timeframe/confluence", s.handleConfluence)
		v1.GET("/structure/:symbol/:timeframe/events", s.handleEvents)
		v1.GET("/bounce/states", s.handleBounceStates)
		v1.GET("/bounce/:symbol/state", s.handleBounceState)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// parseScope validates the symbol/timeframe path parameters.
func parseScope(c *gin.Context) (string, string, bool) {
	symbol := c.Param("symbol")
	tf, err := marketdata.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return symbol, string(tf), true
}

func (s *Server) handleSnapshot(c *gin.Context) {
	symbol, tf, ok := parseScope(c)
	if !ok {
		return
	}
	snap, found := s.engine.Snapshot(symbol, tf)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no structure computed yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleNearestSupport(c *gin.Context) {
	symbol, tf, ok := parseScope(c)
	if !ok {
		return
	}
	price, ok := parsePrice(c)
	if !ok {
		return
	}
	level, found := s.engine.NearestSupport(symbol, tf, price)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no support below price"})
		return
	}
	c.JSON(http.StatusOK, level)
}

func (s *Server) handleNearestResistance(c *gin.Context) {
	symbol, tf, ok := parseScope(c)
	if !ok {
		return
	}
	price, ok := parsePrice(c)
	if !ok {
		return
	}
	level, found := s.engine.NearestResistance(symbol, tf, price)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no resistance above price"})
		return
	}
	c.JSON(http.StatusOK, level)
}

func (s *Server) handleConfluence(c *gin.Context) {
	symbol, tf, ok := parseScope(c)
	if !ok {
		return
	}
	price, ok := parsePrice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"timeframe":  tf,
		"price":      price,
		"confluence": s.engine.ConfluenceScoreAt(symbol, tf, price),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	symbol, tf, ok := parseScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"breakout": s.engine.HasActiveBreakout(symbol, tf),
		"retest":   s.engine.HasActiveRetest(symbol, tf),
	})
}

func (s *Server) handleBounceStates(c *gin.Context) {
	c.JSON(http.StatusOK, s.catcher.States())
}

func (s *Server) handleBounceState(c *gin.Context) {
	c.JSON(http.StatusOK, s.catcher.StateFor(c.Param("symbol")))
}

func parsePrice(c *gin.Context) (float64, bool) {
	var query struct {
		Price float64 `form:"price" binding:"required,gt=0"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price query parameter required"})
		return 0, false
	}
	return query.Price, true
}
