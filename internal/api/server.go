package api

import (
	"net/http"
	"time"

	"copytrade-core/internal/hub"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/reconciliation"
	"copytrade-core/internal/session"
	"copytrade-core/internal/strategy"
	"copytrade-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// TradingEngine is the control surface the API exposes over sessions.
type TradingEngine interface {
	Start(userID string, cfg strategy.Config, credential string) error
	Stop(userID string) error
	GetState(userID string) (session.State, bool)
	ActiveSessions() int
}

// Server wires HTTP endpoints around the trading engine.
type Server struct {
	Router     *gin.Engine
	DB         *db.Database
	Engine     TradingEngine
	Reconciler *reconciliation.Service
	Hub        *hub.Hub
	Metrics    *monitor.Metrics
	JWTSecret  string
	Meta       SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbol   string
	Interval string
	Version  string
}

func NewServer(database *db.Database, eng TradingEngine, reconciler *reconciliation.Service, h *hub.Hub, metrics *monitor.Metrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:     r,
		DB:         database,
		Engine:     eng,
		Reconciler: reconciler,
		Hub:        h,
		Metrics:    metrics,
		JWTSecret:  jwtSecret,
		Meta:       meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/strategies", s.getStrategies)
			protected.GET("/orders", s.getOrders)

			protected.GET("/session", s.getSession)
			protected.POST("/session/start", s.startSession)
			protected.POST("/session/stop", s.stopSession)

			protected.POST("/orders/reconcile", s.reconcileOrders)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
