package dispatcher

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"kite-strangle-bot/internal/logger"
	"kite-strangle-bot/internal/session"
	"kite-strangle-bot/internal/types"

	"github.com/gin-gonic/gin"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

type codeRequest struct {
	Code string `json:"code"`
}

type tradeResponse struct {
	TradeID  string              `json:"trade_id"`
	Status   types.OutcomeStatus `json:"status"`
	Message  string              `json:"message"`
	Warnings []string            `json:"warnings,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Router exposes the dispatcher over HTTP.
type Router struct {
	d      *Dispatcher
	secret string
}

func NewRouter(d *Dispatcher, secret string) *Router {
	return &Router{d: d, secret: secret}
}

// Register mounts the /api routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.Use(r.requireSecret())
	group.POST("/trade", r.handleTrade)
	group.POST("/session", r.handleLogin)
	group.GET("/session", r.handleSession)
	group.DELETE("/session", r.handleLogout)
	group.GET("/positions", r.handlePositions)
	group.GET("/holdings", r.handleHoldings)
}

func (r *Router) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(r.secret)) != 1 {
			logger.Warn(c.Request.Context(), "Rejected request with bad webhook secret", "ip", c.ClientIP(), "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (r *Router) handleTrade(c *gin.Context) {
	var req codeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	outcome, text, err := r.d.Trade(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": text})
		return
	}

	resp := tradeResponse{
		TradeID: outcome.TradeID,
		Status:  outcome.Status(),
		Message: text,
	}
	for _, w := range outcome.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	code := http.StatusOK
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
		code = http.StatusBadGateway
	}
	c.JSON(code, resp)
}

func (r *Router) handleLogin(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := r.d.Login(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

func (r *Router) handleSession(c *gin.Context) {
	sess, ok := r.d.Current(c.Request.Context())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": types.ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (r *Router) handleLogout(c *gin.Context) {
	r.d.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (r *Router) handlePositions(c *gin.Context) {
	pos, err := r.d.Positions(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": pos})
}

func (r *Router) handleHoldings(c *gin.Context) {
	h, err := r.d.Holdings(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdings": h})
}

func toSessionResponse(s *session.Session) sessionResponse {
	return sessionResponse{UserID: s.UserID(), CreatedAt: s.CreatedAt(), ExpiresAt: s.ExpiresAt()}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTradeInProgress):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrNoSession):
		return http.StatusConflict
	case types.IsAuthFailure(err):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
