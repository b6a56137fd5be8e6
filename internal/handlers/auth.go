package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-shortener/internal/apperr"
	"github.com/serroba/url-shortener/internal/audit"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/messaging"
	"go.uber.org/zap"
)

// AuthHandler handles account and token operations.
type AuthHandler struct {
	service      *auth.Service
	publishAudit messaging.Publish[audit.Event]
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(
	service *auth.Service,
	publishAudit messaging.Publish[audit.Event],
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		service:      service,
		publishAudit: publishAudit,
		logger:       logger,
	}
}

func (h *AuthHandler) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	user, err := h.service.Register(ctx, req.Body.Email, req.Body.Password)
	if err != nil {
		return nil, toHTTPError(h.logger, "register", err)
	}

	h.audit(ctx, &audit.Event{Type: audit.UserRegistered, UserID: user.ID, Email: user.Email})

	resp := &RegisterResponse{}
	resp.Body.ID = user.ID
	resp.Body.Email = user.Email
	resp.Body.CreatedAt = user.CreatedAt

	return resp, nil
}

func (h *AuthHandler) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	result, err := h.service.Login(ctx, req.Body.Email, req.Body.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			h.audit(ctx, &audit.Event{
				Type:   audit.LoginFailed,
				Email:  auth.NormalizeEmail(req.Body.Email),
				Reason: err.Error(),
			})
		}

		return nil, toHTTPError(h.logger, "login", err)
	}

	h.audit(ctx, &audit.Event{Type: audit.LoginSucceeded, UserID: result.User.ID, Email: result.User.Email})

	resp := &LoginResponse{}
	resp.Body.TokenPairBody = toTokenPairBody(result.TokenPair)
	resp.Body.User = toUserBody(result.User)

	return resp, nil
}

func (h *AuthHandler) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	pair, err := h.service.Refresh(ctx, req.Body.UserID, req.Body.RefreshToken)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			h.audit(ctx, &audit.Event{
				Type:   audit.TokenRefreshRejected,
				UserID: req.Body.UserID,
				Reason: err.Error(),
			})
		}

		return nil, toHTTPError(h.logger, "refresh", err)
	}

	h.audit(ctx, &audit.Event{Type: audit.TokenRefreshed, UserID: req.Body.UserID})

	return &RefreshResponse{Body: toTokenPairBody(*pair)}, nil
}

func (h *AuthHandler) Profile(ctx context.Context, _ *struct{}) (*ProfileResponse, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}

	user, err := h.service.Profile(ctx, id.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "profile", err)
	}

	resp := &ProfileResponse{}
	resp.Body.UserID = user.ID
	resp.Body.Email = user.Email

	return resp, nil
}

// audit publishes an audit event. Publish failures never fail the request.
func (h *AuthHandler) audit(ctx context.Context, event *audit.Event) {
	meta := RequestMetaFromContext(ctx)
	event.ClientIP = meta.ClientIP
	event.UserAgent = meta.UserAgent
	event.OccurredAt = time.Now().UTC()

	if err := h.publishAudit(ctx, event); err != nil {
		h.logger.Error("failed to publish audit event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
