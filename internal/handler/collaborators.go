package handler

import (
	"context"
	"io"
)

// External collaborators consumed by the flows.  Concrete implementations
// live in internal/email, internal/storage and internal/analytics; tests
// substitute fakes.

// EmailSender delivers a magic-link login email.  A send failure aborts the
// enclosing flow: the invite persists the user only after the email went out.
type EmailSender interface {
	SendLink(ctx context.Context, to, link string) error
}

// ObjectStore stores profile pictures and derives temporary public URLs.
// PublicURL reports storage.ErrObjectNotFound when the key has no object.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	PublicURL(ctx context.Context, key string) (string, error)
}

// AnalyticsSink captures product events.  Failures are logged by the sink
// and ignored by callers; analytics never block the primary flow.
type AnalyticsSink interface {
	Capture(ctx context.Context, userID uint64, event string) error
	Alias(ctx context.Context, userID uint64, email string) error
}
