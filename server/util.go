package server

import (
	"net/url"
	"strings"
)

// originAllowed reports whether a websocket origin matches one of the allowed
// origins. Scheme and host must match exactly; an allowed origin without a
// port accepts any port. Requests without an Origin header (non-browser
// clients) are allowed.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	o, err := url.Parse(origin)
	if err != nil || o.Scheme == "" || o.Hostname() == "" {
		return false
	}
	for _, entry := range allowed {
		a, err := url.Parse(entry)
		if err != nil || a.Scheme == "" || a.Hostname() == "" {
			continue
		}
		if !strings.EqualFold(o.Scheme, a.Scheme) || !strings.EqualFold(o.Hostname(), a.Hostname()) {
			continue
		}
		if a.Port() == "" || a.Port() == o.Port() {
			return true
		}
	}
	return false
}
