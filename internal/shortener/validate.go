package shortener

import (
	"net/url"
	"strings"

	"github.com/serroba/url-shortener/internal/apperr"
)

// MaxURLLength bounds destination URLs.
const MaxURLLength = 2048

const msgInvalidURL = "Invalid URL. It must start with http:// or https://"

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	if raw == "" || len(raw) > MaxURLLength || strings.ContainsAny(raw, " \t\r\n") {
		return apperr.InvalidInput(msgInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return apperr.InvalidInput(msgInvalidURL)
	}

	return nil
}
