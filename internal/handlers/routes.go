package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SecurityScheme is the OpenAPI security scheme name for bearer access tokens.
const SecurityScheme = "bearer"

// Security requirements. An empty requirement marks authentication as optional.
var (
	RequireAuth  = []map[string][]string{{SecurityScheme: {}}}
	OptionalAuth = []map[string][]string{{SecurityScheme: {}}, {}}
)

// RegisterRoutes registers the auth and URL operations.
func RegisterRoutes(api huma.API, authHandler *AuthHandler, urlHandler *URLHandler) {
	registerAuthRoutes(api, authHandler)
	registerURLRoutes(api, urlHandler)
}

func registerAuthRoutes(api huma.API, h *AuthHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register",
		Description:   "Creates an account. The password is stored only as a salted hash.",
		Tags:          []string{"Auth"},
		DefaultStatus: http.StatusCreated,
	}, h.Register)

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in",
		Description: "Exchanges credentials for an access token and a refresh token.",
		Tags:        []string{"Auth"},
	}, h.Login)

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Rotate refresh token",
		Description: "Exchanges a refresh token for a new token pair. Each refresh token works once.",
		Tags:        []string{"Auth"},
	}, h.Refresh)

	huma.Register(api, huma.Operation{
		OperationID: "profile",
		Method:      http.MethodGet,
		Path:        "/auth/profile",
		Summary:     "Current user",
		Tags:        []string{"Auth"},
		Security:    RequireAuth,
	}, h.Profile)
}

func registerURLRoutes(api huma.API, h *URLHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-url",
		Method:        http.MethodPost,
		Path:          "/url",
		Summary:       "Create short URL",
		Description:   "Creates a short URL. Authenticated callers own the URL they create.",
		Tags:          []string{"URLs"},
		DefaultStatus: http.StatusCreated,
		Security:      OptionalAuth,
	}, h.CreateShortURL)

	// Registered before /url/{shortCode} so "me" is never read as a code.
	huma.Register(api, huma.Operation{
		OperationID: "list-my-urls",
		Method:      http.MethodGet,
		Path:        "/url/me",
		Summary:     "List my URLs",
		Tags:        []string{"URLs"},
		Security:    RequireAuth,
	}, h.ListMine)

	huma.Register(api, huma.Operation{
		OperationID: "update-url",
		Method:      http.MethodPatch,
		Path:        "/url/{id}",
		Summary:     "Update short URL",
		Tags:        []string{"URLs"},
		Security:    RequireAuth,
	}, h.UpdateURL)

	huma.Register(api, huma.Operation{
		OperationID: "delete-url",
		Method:      http.MethodDelete,
		Path:        "/url/{id}",
		Summary:     "Delete short URL",
		Description: "Soft-deletes the URL. Its code stops resolving immediately.",
		Tags:        []string{"URLs"},
		Security:    RequireAuth,
	}, h.DeleteURL)

	huma.Register(api, huma.Operation{
		OperationID: "get-url",
		Method:      http.MethodGet,
		Path:        "/url/{shortCode}",
		Summary:     "Get short URL",
		Tags:        []string{"URLs"},
	}, h.GetURL)

	huma.Register(api, huma.Operation{
		OperationID: "record-click",
		Method:      http.MethodPatch,
		Path:        "/url/{shortCode}/click",
		Summary:     "Record click",
		Tags:        []string{"URLs"},
	}, h.RecordClick)

	huma.Register(api, huma.Operation{
		OperationID: "redirect",
		Method:      http.MethodGet,
		Path:        "/r/{shortCode}",
		Summary:     "Redirect to original URL",
		Tags:        []string{"URLs"},
	}, h.RedirectToURL)
}
