// Package api exposes the operator control surface over HTTP: status,
// positions, circuit breakers, blacklist management, and the emergency stop.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solana-sniper-bot/internal/auth"
	"solana-sniper-bot/internal/blacklist"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/market"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// BotAPI is the surface the bot exposes to the control API.
type BotAPI interface {
	Status() map[string]interface{}
	OpenPositions() []market.Position
	ClosedPositions() []market.Position
	ActiveBreakers() []string
	ResetBreaker(name string) error
	EmergencyStop(reason string)
	Resume()
	BanToken(address, reason string) error
	Blacklist() ([]blacklist.Entry, []blacklist.Entry)
	RecentTrades(ctx context.Context, limit int) ([]journal.TradeRecord, error)
}

// Server represents the HTTP control API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	bot         BotAPI
	authService *auth.Service
	config      ServerConfig
	logger      zerolog.Logger
}

// NewServer creates a new control API server
func NewServer(config ServerConfig, bot BotAPI, authService *auth.Service, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		bot:         bot,
		authService: authService,
		config:      config,
		logger:      logger.With().Str("component", "API").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/api/login", s.handleLogin)

	api := s.router.Group("/api")
	api.Use(auth.Middleware(s.authService))
	{
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/positions/closed", s.handleClosedPositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/breakers", s.handleBreakers)
		api.POST("/breakers/:name/reset", s.handleResetBreaker)
		api.POST("/control/emergency-stop", s.handleEmergencyStop)
		api.POST("/control/resume", s.handleResume)
		api.GET("/blacklist", s.handleBlacklist)
		api.POST("/blacklist", s.handleBanToken)
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("control API server failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("control API listening")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "token_type": "Bearer"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bot.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.bot.OpenPositions()})
}

func (s *Server) handleClosedPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.bot.ClosedPositions()})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.bot.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": s.bot.ActiveBreakers()})
}

func (s *Server) handleResetBreaker(c *gin.Context) {
	name := c.Param("name")
	if err := s.bot.ResetBreaker(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info().Str("breaker", name).Msg("breaker reset by operator")
	c.JSON(http.StatusOK, gin.H{"reset": name})
}

type emergencyStopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	var req emergencyStopRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	s.bot.EmergencyStop(req.Reason)
	s.logger.Warn().Str("reason", req.Reason).Msg("emergency stop via API")
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.bot.Resume()
	s.logger.Info().Msg("trading resumed via API")
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

func (s *Server) handleBlacklist(c *gin.Context) {
	tokens, creators := s.bot.Blacklist()
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "creators": creators})
}

type banRequest struct {
	Address string `json:"address" binding:"required"`
	Reason  string `json:"reason"`
}

func (s *Server) handleBanToken(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address required"})
		return
	}
	if req.Reason == "" {
		req.Reason = "operator ban"
	}

	if err := s.bot.BanToken(req.Address, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"banned": req.Address})
}
