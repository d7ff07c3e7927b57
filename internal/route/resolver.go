// Package route computes the single canonical route a user must be on given
// their auth, legal, and onboarding state. Resolve is a pure decision table;
// it never errors and never navigates.
package route

import "strings"

// Route is an app navigation target.
type Route string

const (
	Landing       Route = "/"
	SignIn        Route = "/signin"
	SignUp        Route = "/signup"
	VerifyEmail   Route = "/verify-email"
	ResetPassword Route = "/reset-password"
	Legal         Route = "/legal"
	Onboarding    Route = "/onboarding"
	Home          Route = "/home"
)

// Input is the settled state the gate feeds into Resolve. UserLoaded false
// means the profile fetch is still outstanding; OnboardingComplete nil means
// the flag itself has not been determined yet.
type Input struct {
	HasSession         bool
	UserLoaded         bool
	EmailVerified      bool
	LegalAccepted      bool
	OnboardingComplete *bool
	PasswordRecovery   bool
}

// Resolve returns the canonical route for the input, or false when no
// decision can be made yet (caller keeps showing its loading state).
//
// Rules evaluate top-down and the first match wins. Any ambiguous
// combination resolves to the earliest applicable rule: a user stuck on a
// gate screen beats an under-qualified user leaking into the main app.
func Resolve(in Input) (Route, bool) {
	// Recovery interrupts nothing and is interrupted by nothing.
	if in.PasswordRecovery {
		return ResetPassword, true
	}
	if !in.HasSession {
		return Landing, true
	}
	if !in.UserLoaded {
		return "", false
	}
	if !in.EmailVerified {
		return VerifyEmail, true
	}
	if !in.LegalAccepted {
		return Legal, true
	}
	if in.OnboardingComplete == nil {
		return "", false
	}
	if !*in.OnboardingComplete {
		return Onboarding, true
	}
	return Home, true
}

// IsPublic reports whether an unauthenticated user may stay on path.
func IsPublic(path string) bool {
	switch Route(path) {
	case Landing, SignIn, SignUp:
		return true
	}
	return strings.HasPrefix(path, string(Legal))
}

// IsContent reports whether path points at shared content (post or reel).
func IsContent(path string) bool {
	return strings.HasPrefix(path, "/post/") || strings.HasPrefix(path, "/reel/")
}
