package config

import "net/url"

// RedactURL masks the password of a database connection URL for display.
// Unparseable values are returned unchanged rather than guessed at.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
