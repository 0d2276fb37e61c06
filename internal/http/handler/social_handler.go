package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
	oauthsvc "github.com/socialkit/crosspost/internal/service/oauth"
	"github.com/socialkit/crosspost/internal/service/publish"
)

// statusTokenExpired mirrors 511 Network Authentication Required: there is no
// usable token and the operator must log in again.
const statusTokenExpired = http.StatusNetworkAuthenticationRequired

// SocialHandler serves the per-network OAuth and publish endpoints.
type SocialHandler struct {
	sessions map[social.Network]oauthsvc.Session
	linkedin *publish.Orchestrator
	twitter  *publish.TweetPublisher
	shares   repository.ShareRecordRepo
	logger   *zap.Logger
}

// NewSocialHandler creates the handler set.
func NewSocialHandler(
	sessions map[social.Network]oauthsvc.Session,
	linkedin *publish.Orchestrator,
	twitter *publish.TweetPublisher,
	shares repository.ShareRecordRepo,
	logger *zap.Logger,
) *SocialHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &SocialHandler{
		sessions: sessions,
		linkedin: linkedin,
		twitter:  twitter,
		shares:   shares,
		logger:   logger,
	}
}

// Login redirects to the provider authorization URL, or returns it as text
// when the urlOnly query parameter is present.
func (h *SocialHandler) Login(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}

	loginURL, _, err := session.BuildLoginURL(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	if _, urlOnly := c.GetQuery("urlOnly"); urlOnly {
		c.String(http.StatusOK, loginURL)
		return
	}
	c.Redirect(http.StatusFound, loginURL)
}

// Callback completes the OAuth flow: nonce match, code exchange, identity
// validation.
func (h *SocialHandler) Callback(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": providerErr,
			"cause": c.Query("error_description"),
		})
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	state := strings.TrimSpace(c.Query("state"))
	if code == "" || state == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "invalid_request",
			"cause": "code and state are required",
		})
		return
	}

	matched, codeVerifier, err := session.MatchNonce(c.Request.Context(), state)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !matched {
		h.respondError(c, social.ErrNonceMismatch)
		return
	}

	token, err := session.ExchangeCode(c.Request.Context(), code, codeVerifier)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := session.ValidateIdentity(c.Request.Context(), token.AccessToken); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Tokens reports whether a usable token exists, driving the refresh path as
// a side effect.
func (h *SocialHandler) Tokens(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}

	accessToken, err := session.EnsureValidToken(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := session.ValidateIdentity(c.Request.Context(), accessToken); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Publish creates a post on the requested network.
func (h *SocialHandler) Publish(c *gin.Context) {
	network, ok := h.networkFor(c)
	if !ok {
		return
	}

	var req social.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "invalid_request",
			"cause": err.Error(),
		})
		return
	}

	var (
		result social.PublishResult
		err    error
	)
	switch network {
	case social.NetworkLinkedIn:
		result, err = h.linkedin.Publish(c.Request.Context(), req)
	case social.NetworkTwitter:
		result, err = h.twitter.Publish(c.Request.Context(), req)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Location", result.PostURL)
	c.Header("X-RestLi-Id", result.PostURN)
	c.JSON(http.StatusCreated, result)
}

// ListShares returns the recent publish audit records for a network.
func (h *SocialHandler) ListShares(c *gin.Context) {
	network, ok := h.networkFor(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.shares.ListRecent(c.Request.Context(), network, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []social.ShareRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *SocialHandler) networkFor(c *gin.Context) (social.Network, bool) {
	network, err := social.ParseNetwork(c.Param("network"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_network", "cause": err.Error()})
		return "", false
	}
	if _, ok := h.sessions[network]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "network_not_configured", "cause": string(network)})
		return "", false
	}
	return network, true
}

func (h *SocialHandler) sessionFor(c *gin.Context) (oauthsvc.Session, bool) {
	network, ok := h.networkFor(c)
	if !ok {
		return nil, false
	}
	return h.sessions[network], true
}

func (h *SocialHandler) respondError(c *gin.Context, err error) {
	var shareErr *social.ShareError

	switch {
	case errors.Is(err, social.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_request", "cause": err.Error()})
	case errors.Is(err, social.ErrNonceMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "nonce_mismatch", "cause": err.Error()})
	case errors.Is(err, social.ErrExpiredToken):
		c.JSON(statusTokenExpired, gin.H{"error": "token_expired", "cause": err.Error()})
	case errors.Is(err, social.ErrWrongToken):
		c.JSON(http.StatusLocked, gin.H{"error": "wrong_token", "cause": err.Error()})
	case errors.As(err, &shareErr):
		c.JSON(http.StatusFailedDependency, gin.H{"error": "failed_to_share", "cause": shareErr.Error()})
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "cause": err.Error()})
	}
}
