package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"copytrade-core/internal/engine"
	"copytrade-core/internal/reconciliation"
	"copytrade-core/internal/strategy"
	"copytrade-core/pkg/db"

	"github.com/gin-gonic/gin"
)

type startSessionRequest struct {
	StrategyID string `json:"strategy_id"`
	Credential string `json:"credential" binding:"required,min=1"`

	// Inline overrides when no catalogue strategy is referenced.
	Symbol          string    `json:"symbol"`
	Interval        string    `json:"interval"`
	Pattern         string    `json:"pattern"`
	CapitalSequence []float64 `json:"capital_sequence"`
}

type reconcileRequest struct {
	Completions []reconciliation.Completion `json:"completions" binding:"required"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// startSession starts automated trading for the current user, either from
// a catalogue strategy or from an inline configuration.
func (s *Server) startSession(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}

	cfg, err := s.resolveConfig(c, req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_STRATEGY", err.Error())
		return
	}

	if err := s.Engine.Start(userID, cfg, strings.TrimSpace(req.Credential)); err != nil {
		switch {
		case errors.Is(err, engine.ErrAlreadyRunning):
			respondError(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
		case errors.Is(err, engine.ErrMissingCredential):
			respondError(c, http.StatusBadRequest, "MISSING_CREDENTIAL", err.Error())
		default:
			respondError(c, http.StatusBadRequest, "INVALID_STRATEGY", err.Error())
		}
		return
	}

	state, _ := s.Engine.GetState(userID)
	c.JSON(http.StatusOK, state)
}

// resolveConfig builds the session config from the catalogue entry or the
// inline fields. Inline fields override catalogue values when both are
// present.
func (s *Server) resolveConfig(c *gin.Context, req startSessionRequest) (strategy.Config, error) {
	var cfg strategy.Config

	if req.StrategyID != "" {
		rec, err := s.DB.GetStrategy(c.Request.Context(), req.StrategyID)
		if errors.Is(err, db.ErrNotFound) {
			return cfg, errors.New("unknown strategy: " + req.StrategyID)
		}
		if err != nil {
			return cfg, err
		}
		cfg = strategy.FromRecord(*rec)
	}

	if req.Symbol != "" {
		cfg.Symbol = req.Symbol
	}
	if req.Interval != "" {
		cfg.Interval = req.Interval
	}
	if req.Pattern != "" {
		cfg.Pattern = req.Pattern
	}
	if len(req.CapitalSequence) > 0 {
		cfg.CapitalSequence = req.CapitalSequence
	}

	return cfg, nil
}

// stopSession halts the current user's trading session.
func (s *Server) stopSession(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	if err := s.Engine.Stop(userID); err != nil {
		if errors.Is(err, engine.ErrNoSession) {
			respondError(c, http.StatusNotFound, "NO_SESSION", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "STOPPED"})
}

// getSession returns the current user's session state.
func (s *Server) getSession(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	state, ok := s.Engine.GetState(userID)
	if !ok {
		respondError(c, http.StatusNotFound, "NO_SESSION", "no active session")
		return
	}
	c.JSON(http.StatusOK, state)
}

// getStrategies lists the strategy catalogue.
func (s *Server) getStrategies(c *gin.Context) {
	strategies, err := s.DB.ListStrategies(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if strategies == nil {
		strategies = []db.Strategy{}
	}
	c.JSON(http.StatusOK, strategies)
}

// getOrders lists the current user's order history, newest first.
func (s *Server) getOrders(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	status := c.Query("status")
	limit := parseIntDefault(c.Query("limit"), 100)
	if limit > 500 {
		limit = 500
	}
	offset := parseIntDefault(c.Query("offset"), 0)

	orders, err := s.DB.ListOrdersByUser(c.Request.Context(), userID, status, offset, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	if orders == nil {
		orders = []db.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// reconcileOrders applies a batch of settlement reports for the current
// user. Each item succeeds or fails on its own; the report carries the
// per-item outcomes.
func (s *Server) reconcileOrders(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated")
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if len(req.Completions) == 0 {
		respondError(c, http.StatusBadRequest, "EMPTY_BATCH", "completions must not be empty")
		return
	}

	report := s.Reconciler.ApplyCompleted(c.Request.Context(), userID, req.Completions)
	c.JSON(http.StatusOK, report)
}

// getSystemStatus reports coarse runtime health for the UI.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"symbol":          s.Meta.Symbol,
		"interval":        s.Meta.Interval,
		"version":         s.Meta.Version,
		"active_sessions": s.Engine.ActiveSessions(),
		"ws_listeners":    s.Hub.TotalListeners(),
	})
}

// getMetrics returns the process metrics snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
