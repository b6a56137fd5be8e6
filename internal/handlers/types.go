package handlers

import (
	"time"

	"github.com/serroba/url-shortener/internal/auth"
	"github.com/serroba/url-shortener/internal/shortener"
)

// RegisterRequest is the request body for creating an account.
type RegisterRequest struct {
	Body struct {
		Email    string `doc:"Account email" example:"jane@example.com" format:"email" json:"email" maxLength:"254"`
		Password string `doc:"At least six characters" example:"s3cret-pass" json:"password" maxLength:"128" minLength:"6"`
	}
}

// RegisterResponse is the created account, without credentials.
type RegisterResponse struct {
	Body struct {
		ID        string    `doc:"User ID" json:"id"`
		Email     string    `doc:"Account email" json:"email"`
		CreatedAt time.Time `doc:"Creation time" json:"createdAt"`
	}
}

// LoginRequest is the request body for exchanging credentials for tokens.
type LoginRequest struct {
	Body struct {
		Email    string `doc:"Account email" example:"jane@example.com" json:"email" maxLength:"254"`
		Password string `doc:"Account password" example:"s3cret-pass" json:"password" maxLength:"128"`
	}
}

// UserBody is the public projection of a user.
type UserBody struct {
	ID    string `doc:"User ID" json:"id"`
	Email string `doc:"Account email" json:"email"`
}

// TokenPairBody carries a freshly issued token pair.
type TokenPairBody struct {
	AccessToken  string `doc:"Short-lived bearer token" json:"accessToken"`
	RefreshToken string `doc:"Single-use refresh token" json:"refreshToken"`
}

// LoginResponse is the response for a successful login.
type LoginResponse struct {
	Body struct {
		TokenPairBody
		User UserBody `json:"user"`
	}
}

// RefreshRequest is the request body for rotating a refresh token.
type RefreshRequest struct {
	Body struct {
		UserID       string `doc:"Owner of the refresh token" json:"userId" minLength:"1"`
		RefreshToken string `doc:"Refresh token to rotate" json:"refreshToken" minLength:"1"`
	}
}

// RefreshResponse is the rotated token pair.
type RefreshResponse struct {
	Body TokenPairBody
}

// ProfileResponse is the authenticated caller.
type ProfileResponse struct {
	Body struct {
		UserID string `doc:"User ID" json:"userId"`
		Email  string `doc:"Account email" json:"email"`
	}
}

// URLBody is the public projection of a short URL.
type URLBody struct {
	ID          string     `doc:"URL ID" json:"id"`
	Code        string     `doc:"The short code" example:"aB3dE5gH7j" json:"code"`
	ShortURL    string     `doc:"The full short URL" example:"http://localhost:8888/r/aB3dE5gH7j" json:"shortUrl"`
	OriginalURL string     `doc:"The original URL" example:"https://example.com/very/long/path" json:"originalUrl"`
	Clicks      int64      `doc:"Successful redirects" json:"clicks"`
	OwnerID     string     `doc:"Owning user, empty for anonymous URLs" json:"ownerId,omitempty"`
	CreatedAt   time.Time  `doc:"Creation time" json:"createdAt"`
	UpdatedAt   time.Time  `doc:"Last update time" json:"updatedAt"`
	DeletedAt   *time.Time `doc:"Soft-delete time" json:"deletedAt,omitempty"`
}

// CreateShortURLRequest is the request body for creating a short URL.
type CreateShortURLRequest struct {
	Body struct {
		URL string `doc:"The URL to shorten" example:"https://example.com/very/long/path" json:"url" maxLength:"2048" minLength:"1"`
	}
}

// CreateShortURLResponse is the response for a successfully created short URL.
type CreateShortURLResponse struct {
	Location string `doc:"The short URL location" header:"Location"`
	Body     URLBody
}

// URLResponse wraps a single short URL.
type URLResponse struct {
	Body URLBody
}

// ListURLsResponse lists the caller's short URLs, newest first.
type ListURLsResponse struct {
	Body []URLBody
}

// URLIDRequest addresses a short URL by ID.
type URLIDRequest struct {
	ID string `doc:"URL ID" path:"id"`
}

// UpdateURLRequest patches a short URL.
type UpdateURLRequest struct {
	ID   string `doc:"URL ID" path:"id"`
	Body struct {
		URL *string `doc:"New destination URL" example:"https://example.com/new" json:"url,omitempty" maxLength:"2048"`
	}
}

// ShortCodeRequest addresses a short URL by code.
type ShortCodeRequest struct {
	ShortCode string `doc:"The short code" example:"aB3dE5gH7j" path:"shortCode"`
}

// ClickResponse reports the click count after recording a hit.
type ClickResponse struct {
	Body struct {
		Code   string `doc:"The short code" json:"code"`
		Clicks int64  `doc:"Updated counter" json:"clicks"`
	}
}

// RedirectResponse is the response for redirecting a short URL.
type RedirectResponse struct {
	Status   int
	Location string `doc:"The destination URL" header:"Location"`
}

func toURLBody(u *shortener.ShortURL, shortLink string) URLBody {
	return URLBody{
		ID:          u.ID,
		Code:        string(u.Code),
		ShortURL:    shortLink,
		OriginalURL: u.OriginalURL,
		Clicks:      u.Clicks,
		OwnerID:     u.OwnerID,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
		DeletedAt:   u.DeletedAt,
	}
}

func toUserBody(u auth.PublicUser) UserBody {
	return UserBody{ID: u.ID, Email: u.Email}
}

func toTokenPairBody(p auth.TokenPair) TokenPairBody {
	return TokenPairBody{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}
