package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// newUpgrader returns a websocket upgrader accepting the listed browser
// origins. An empty list keeps gorilla's same-origin check and "*" accepts
// any origin.
func newUpgrader(origins []string) *websocket.Upgrader {
	up := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(origins) == 0 {
		return up
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			up.CheckOrigin = func(*http.Request) bool { return true }
			return up
		}
		allowed[normalizeOrigin(o)] = true
	}
	up.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[normalizeOrigin(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	return up
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}
