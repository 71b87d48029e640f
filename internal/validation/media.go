package validation

import (
	"errors"
	"net/url"
	"strings"
)

const maxMediaURLLen = 2048

// ValidateMediaURL accepts an empty string (no media) or an absolute http(s) URL.
func ValidateMediaURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if len(raw) > maxMediaURLLen {
		return errors.New("mediaUrl must not exceed 2048 characters")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("mediaUrl must be a valid http or https URL")
	}
	return nil
}
