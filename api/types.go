package api

import "context"

// Authenticator is implemented by types able to validate bearer tokens from
// the Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Notifier pushes a short out-of-band nudge when ideas or change requests
// arrive. Failures are never surfaced to the request path.
type Notifier interface {
	Notify(ctx context.Context, text string)
}
