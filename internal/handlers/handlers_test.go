package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/serroba/url-shortener/internal/audit"
	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/credential"
	"github.com/serroba/url-shortener/internal/handlers"
	"github.com/serroba/url-shortener/internal/middleware"
	"github.com/serroba/url-shortener/internal/shortener"
	"github.com/serroba/url-shortener/internal/store"
	"github.com/serroba/url-shortener/internal/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	testURL      = "https://example.com/very/long/path"
	testEmail    = "user@example.com"
	testPassword = "strongPassword123"
	testBaseURL  = "http://localhost:8888/r"
)

// auditRecorder captures published audit events.
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *auditRecorder) publish(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, *event)

	return r.err
}

func (r *auditRecorder) types() []audit.Type {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]audit.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}

	return out
}

type testServer struct {
	api     humatest.TestAPI
	urls    *store.MemoryStore
	users   *store.MemoryAuthStore
	audits  *auditRecorder
	service *shortener.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		urls:   store.NewMemoryStore(),
		users:  store.NewMemoryAuthStore(),
		audits: &auditRecorder{},
	}

	hasher, err := credential.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	issuer, err := token.NewHS256Issuer("0123456789abcdef0123456789abcdef", "url-shortener")
	require.NoError(t, err)

	authService, err := auth.NewService(s.users, hasher, issuer, auth.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	gen, err := shortener.NewCodeGenerator(shortener.MinCodeLength)
	require.NoError(t, err)

	s.service = shortener.NewService(s.urls, gen, testBaseURL, zap.NewNop())

	_, api := humatest.New(t, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.RequestMeta(api))
	api.UseMiddleware(middleware.Authenticate(api, issuer, zap.NewNop()))

	handlers.RegisterRoutes(api,
		handlers.NewAuthHandler(authService, s.audits.publish, zap.NewNop()),
		handlers.NewURLHandler(s.service, zap.NewNop()),
	)

	s.api = api

	return s
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(body, &out))

	return out
}

type loginBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type urlBody struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	ShortURL    string  `json:"shortUrl"`
	OriginalURL string  `json:"originalUrl"`
	Clicks      int64   `json:"clicks"`
	OwnerID     string  `json:"ownerId"`
	DeletedAt   *string `json:"deletedAt"`
}

// login registers an account with the given email and returns its tokens.
func (s *testServer) login(t *testing.T, email string) loginBody {
	t.Helper()

	resp := s.api.Post("/auth/register", map[string]any{"email": email, "password": testPassword})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = s.api.Post("/auth/login", map[string]any{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	return decode[loginBody](t, resp.Body.Bytes())
}

func bearer(tok string) string {
	return "Authorization: Bearer " + tok
}

var errPublish = errors.New("publish error")
