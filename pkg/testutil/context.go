package testutil

import (
	"net/http"
	"time"

	"crossdock/pkg/requestcontext"
)

// WithActor marks the request as performed by the given actor, the way the
// actor middleware would for a real request.
func WithActor(req *http.Request, actorID string) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}

// WithFrozenTime pins the request-scoped clock so TTL and expiry assertions
// are deterministic.
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
