package testutil

import (
	"net/http"
	"time"

	"devcompliance/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped "now" the way the requesttime
// middleware would, so handler tests are deterministic.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithRequestID attaches a correlation id as the request ID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
