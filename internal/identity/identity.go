// Package identity is the client core's view of the identity provider. The
// provider itself is opaque; this package defines the models, the classified
// errors the gate reacts to, and the Client port the gate consumes.
package identity

import (
	"context"
	"errors"
	"time"
)

// Classified provider errors. The gate distinguishes these from generic
// failures: an expired or used link is terminal for that link, and an
// invalid refresh token clears the session instead of retrying forever.
var (
	ErrLinkExpired         = errors.New("link expired")
	ErrLinkUsed            = errors.New("link already used")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Session is the opaque credential bundle issued by the provider.
type Session struct {
	AccessToken      string
	UserID           string
	Email            string
	EmailConfirmedAt *time.Time
}

// User is the derived profile record keyed by the session's user ID.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	LegalAccepted bool
	Banned        bool
	// OnboardingComplete is nil while the flag is still being determined.
	OnboardingComplete *bool
}

// Client is the provider surface the gate depends on. Implementations return
// classified errors where applicable and (nil, nil) from GetSession when the
// user is signed out.
type Client interface {
	// ExchangeCodeForSession trades an auth callback URL for a session.
	// Each link token is consumable exactly once.
	ExchangeCodeForSession(ctx context.Context, rawURL string) (*Session, error)
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	// GetUser fetches the settled profile for the current session.
	GetUser(ctx context.Context) (*User, error)
	// UpdatePassword sets a new password for the current session's user.
	UpdatePassword(ctx context.Context, newPassword string) error
	// SignOut destroys the current session.
	SignOut(ctx context.Context) error
}
