// Package user holds the account record the routing gates read from.
package user

import (
	"time"

	"github.com/google/uuid"
)

// CurrentLegalVersion is the terms/privacy revision every account must have
// accepted before entering the main app.
const CurrentLegalVersion = 2

// User is the canonical account record.
type User struct {
	ID                    uuid.UUID
	Email                 string
	PasswordHash          string
	EmailVerifiedAt       *time.Time
	LegalAcceptedVersion  int
	OnboardingCompletedAt *time.Time
	Banned                bool
	CreatedAt             time.Time
}

// EmailVerified reports whether the address has been confirmed.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// LegalAccepted reports whether the current document revision is accepted.
func (u *User) LegalAccepted() bool {
	return u.LegalAcceptedVersion >= CurrentLegalVersion
}

// OnboardingComplete reports whether onboarding has finished.
func (u *User) OnboardingComplete() bool {
	return u.OnboardingCompletedAt != nil
}
