package dashboard

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Origins is the set of browser origins allowed to reach kvedit from another
// site, usually the Splunk Web URL hosting the visualization. "*" matches
// every origin.
type Origins []string

// Allows reports whether origin is listed. Matching ignores case and a
// trailing slash.
func (o Origins) Allows(origin string) bool {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return false
	}
	return slices.ContainsFunc(o, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin)
	})
}

// SameOrigin reports whether the request's Origin header names the host the
// request was sent to.
func SameOrigin(r *http.Request) bool {
	u, err := url.Parse(r.Header.Get("Origin"))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
