package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/shortener"
	"go.uber.org/zap"
)

// URLHandler handles URL shortening operations.
type URLHandler struct {
	service *shortener.Service
	logger  *zap.Logger
}

// NewURLHandler creates a new URL handler.
func NewURLHandler(service *shortener.Service, logger *zap.Logger) *URLHandler {
	return &URLHandler{service: service, logger: logger}
}

// CreateShortURL shortens a URL. Authenticated callers become its owner.
func (h *URLHandler) CreateShortURL(ctx context.Context, req *CreateShortURLRequest) (*CreateShortURLResponse, error) {
	var ownerID string
	if id, ok := auth.IdentityFromContext(ctx); ok {
		ownerID = id.UserID
	}

	shortURL, err := h.service.Create(ctx, req.Body.URL, ownerID)
	if err != nil {
		return nil, toHTTPError(h.logger, "create url", err)
	}

	resp := &CreateShortURLResponse{Body: h.project(shortURL)}
	resp.Location = resp.Body.ShortURL

	return resp, nil
}

func (h *URLHandler) ListMine(ctx context.Context, _ *struct{}) (*ListURLsResponse, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}

	urls, err := h.service.ListByOwner(ctx, id.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "list urls", err)
	}

	resp := &ListURLsResponse{Body: make([]URLBody, 0, len(urls))}
	for i := range urls {
		resp.Body = append(resp.Body, h.project(&urls[i]))
	}

	return resp, nil
}

func (h *URLHandler) UpdateURL(ctx context.Context, req *UpdateURLRequest) (*URLResponse, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}

	shortURL, err := h.service.Update(ctx, req.ID, shortener.Patch{OriginalURL: req.Body.URL}, id.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "update url", err)
	}

	return &URLResponse{Body: h.project(shortURL)}, nil
}

func (h *URLHandler) DeleteURL(ctx context.Context, req *URLIDRequest) (*URLResponse, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}

	shortURL, err := h.service.Delete(ctx, req.ID, id.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "delete url", err)
	}

	return &URLResponse{Body: h.project(shortURL)}, nil
}

func (h *URLHandler) GetURL(ctx context.Context, req *ShortCodeRequest) (*URLResponse, error) {
	shortURL, err := h.service.Get(ctx, shortener.Code(req.ShortCode))
	if err != nil {
		return nil, toHTTPError(h.logger, "get url", err)
	}

	return &URLResponse{Body: h.project(shortURL)}, nil
}

func (h *URLHandler) RecordClick(ctx context.Context, req *ShortCodeRequest) (*ClickResponse, error) {
	clicks, err := h.service.RecordClick(ctx, shortener.Code(req.ShortCode))
	if err != nil {
		return nil, toHTTPError(h.logger, "record click", err)
	}

	resp := &ClickResponse{}
	resp.Body.Code = req.ShortCode
	resp.Body.Clicks = clicks

	return resp, nil
}

// RedirectToURL resolves a code and counts the hit. 302 keeps clients from
// caching the redirect so every visit is counted.
func (h *URLHandler) RedirectToURL(ctx context.Context, req *ShortCodeRequest) (*RedirectResponse, error) {
	target, err := h.service.Resolve(ctx, shortener.Code(req.ShortCode))
	if err != nil {
		return nil, toHTTPError(h.logger, "redirect", err)
	}

	return &RedirectResponse{Status: http.StatusFound, Location: target}, nil
}

func (h *URLHandler) project(u *shortener.ShortURL) URLBody {
	return toURLBody(u, h.service.ShortLink(u.Code))
}
