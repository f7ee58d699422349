package contextutils

import (
	"net/url"
	"strings"
)

// MaskSecret masks a secret (jwt key, session key) for logging.
// Only the first and last 4 characters survive.
func MaskSecret(secret string) string {
	if secret == "" {
		return "[EMPTY]"
	}

	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}

	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// MaskDatabaseURL hides the credentials of a postgres connection URL.
func MaskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		if i := strings.LastIndex(raw, "@"); i >= 0 {
			return "postgres://***:***@" + raw[i+1:]
		}
		return raw
	}
	u.User = url.UserPassword("***", "***")
	return strings.Replace(u.String(), "%2A%2A%2A", "***", -1)
}
