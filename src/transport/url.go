package transport

import (
	"fmt"
	"net/url"
)

// WithCredential appends the credential to base as the query parameter param,
// keeping any query already present.
func WithCredential(base, param, credential string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set(param, credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact strips the query string so credentials never reach the logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
