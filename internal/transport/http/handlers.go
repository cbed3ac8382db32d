// Package http holds the REST handlers of the avatar control surface.
package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dkeye/Avatar/internal/adapters/signal"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SpeakRequest struct {
	Text string `json:"text" binding:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type Handlers struct {
	Avatar  core.AvatarService
	Limiter *signal.RateLimiter

	// base is the server lifetime; background opens run on it.
	base context.Context
}

func NewHandlers(base context.Context, avatar core.AvatarService, limiter *signal.RateLimiter) *Handlers {
	return &Handlers{Avatar: avatar, Limiter: limiter, base: base}
}

// Open starts a session. By default it returns 202 at once and progress is
// observed through state or the websocket; with ?wait=true it blocks until
// the answer has been submitted.
func (h *Handlers) Open(c *gin.Context) {
	if c.Query("wait") != "true" {
		go func() {
			if err := h.Avatar.Open(h.base); err != nil {
				log.Warn().Str("module", "transport.http").Err(err).Msg("background open failed")
			}
		}()
		c.JSON(http.StatusAccepted, h.Avatar.Status())
		return
	}
	if err := h.Avatar.Open(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Avatar.Status())
}

func (h *Handlers) Speak(c *gin.Context) {
	var req SpeakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid text"})
		return
	}
	if ok, wait := h.Limiter.Reserve(signal.ClientID(c.GetString("client_token"))); !ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
		return
	}
	res, err := h.Avatar.Speak(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handlers) Close(c *gin.Context) {
	h.Avatar.Close()
	c.JSON(http.StatusOK, h.Avatar.Status())
}

func (h *Handlers) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Avatar.Status())
}

// StatusCode maps the error taxonomy onto HTTP.
func StatusCode(err error) int {
	var (
		authErr   *domain.AuthError
		speechErr *domain.SpeechError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case domain.IsRemote(err):
		return http.StatusBadGateway
	case errors.As(err, &authErr) && authErr.Reason == domain.AuthUnavailable,
		errors.As(err, &speechErr) && speechErr.Reason == domain.SpeechUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := StatusCode(err)
	log.Warn().Str("module", "transport.http").Err(err).Int("status", code).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(code, ErrorResponse{Error: http.StatusText(code), Message: err.Error()})
}
