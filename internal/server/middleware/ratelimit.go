package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns a middleware that caps each client IP at
// requestsPerMinute over a sliding one-minute window. Over-limit requests
// get a 429. The server disables this entirely in dev mode rather than
// raising the cap.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
