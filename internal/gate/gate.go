// Package gate is the single component allowed to issue auth-driven
// navigation. It consumes the route resolver, the token store, the callback
// guard, and the auth-link state machine, and performs at most one redirect
// per genuine state transition.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"linkgate/internal/authlink"
	"linkgate/internal/callback"
	"linkgate/internal/deeplink"
	"linkgate/internal/identity"
	"linkgate/internal/route"
	"linkgate/internal/tokenstore"
)

// Navigator is the platform navigation surface. Replace swaps the current
// route; the gate calls it at most once per transition.
type Navigator interface {
	Replace(route string)
	CurrentRoute() string
}

// State is what the host renders from: a loading placeholder while
// hydrating, children otherwise, plus the link-exchange status for the
// callback and reset screens.
type State struct {
	Hydrating     bool
	Authenticated bool
	Link          authlink.Status
}

// Gate orchestrates session hydration, deep-link handling, and redirects.
type Gate struct {
	identity identity.Client
	nav      Navigator
	tokens   *tokenstore.Store
	guard    *callback.Guard
	machine  *authlink.Machine
	logger   *slog.Logger

	mu           sync.Mutex
	hydrating    bool
	session      *identity.Session
	user         *identity.User
	lastRedirect string
}

// Option configures a Gate.
type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// New builds a Gate. It starts in the hydrating state; call Start to resolve
// the initial session.
func New(client identity.Client, nav Navigator, tokens *tokenstore.Store, guard *callback.Guard, machine *authlink.Machine, opts ...Option) *Gate {
	g := &Gate{
		identity:  client,
		nav:       nav,
		tokens:    tokens,
		guard:     guard,
		machine:   machine,
		logger:    slog.New(slog.DiscardHandler),
		hydrating: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start hydrates session and user state, then applies the first routing
// decision. No navigation happens before Start completes.
func (g *Gate) Start(ctx context.Context) {
	session, err := g.identity.GetSession(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidRefreshToken) {
			_ = g.identity.SignOut(ctx)
		} else {
			g.logger.WarnContext(ctx, "session hydration failed", "error", err)
		}
		session = nil
	}

	var user *identity.User
	if session != nil {
		var uerr error
		user, uerr = g.fetchUser(ctx)
		if errors.Is(uerr, identity.ErrInvalidRefreshToken) {
			_ = g.identity.SignOut(ctx)
			session = nil
		}
	}

	g.mu.Lock()
	g.session = session
	g.user = user
	g.hydrating = false
	g.mu.Unlock()

	g.Refresh(ctx)
}

// State returns the render snapshot.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Hydrating:     g.hydrating,
		Authenticated: g.session != nil,
		Link:          g.machine.Status(),
	}
}

// OnAuthChange is the auth-state subscription callback. A nil session means
// the user signed out or the session decayed.
func (g *Gate) OnAuthChange(ctx context.Context, session *identity.Session) {
	var user *identity.User
	if session != nil {
		user, _ = g.fetchUser(ctx)
	}

	g.mu.Lock()
	g.session = session
	g.user = user
	// Suppression is scoped to one auth epoch.
	g.lastRedirect = ""
	g.mu.Unlock()

	g.Refresh(ctx)
}

// HandleURL processes one incoming URL from any delivery channel: a live
// URL-opened event, the cold-start initial URL, or a hash re-read on mount.
func (g *Gate) HandleURL(ctx context.Context, raw string) {
	link := deeplink.Parse(raw)
	if link == nil {
		return
	}

	switch link.Kind {
	case deeplink.KindAuth:
		// Capture recovery intent synchronously, before any async work:
		// platform navigation can strip the originating hash before an
		// async handler gets to inspect it.
		if link.Intent == deeplink.IntentRecovery {
			g.tokens.SetPasswordRecovery()
		}
		g.handleAuthLink(ctx, link)
	case deeplink.KindReferral:
		g.tokens.SetPendingReferralCode(link.ReferralCode)
	case deeplink.KindPost:
		g.handleContentLink(ctx, "/post/"+link.ID)
	case deeplink.KindReel:
		g.handleContentLink(ctx, "/reel/"+link.ID)
	}
}

func (g *Gate) handleContentLink(ctx context.Context, path string) {
	g.tokens.SetPendingRoute(path)
	g.Refresh(ctx)
}

func (g *Gate) handleAuthLink(ctx context.Context, link *deeplink.Link) {
	if g.guard.WasProcessed(link.Raw) {
		g.logger.DebugContext(ctx, "duplicate auth callback suppressed", "url", link.Raw)
		return
	}
	if g.guard.IsProcessing() {
		// Another exchange is in flight; park this URL for the drain pass.
		g.tokens.SetPendingAuthURL(link.Raw)
		return
	}

	intent := authlink.IntentVerify
	if link.Intent == deeplink.IntentRecovery {
		intent = authlink.IntentRecovery
	}

	g.guard.SetProcessing(true)
	g.machine.Begin(intent)

	exCtx, cancel := context.WithTimeout(ctx, callback.ProcessingTimeout)
	session, err := g.identity.ExchangeCodeForSession(exCtx, link.Raw)
	cancel()

	if err != nil {
		g.guard.SetProcessing(false)
		g.finishFailedExchange(ctx, link, err)
		g.drainPendingAuthURL(ctx)
		return
	}

	// Hash only after the exchange attempt was dispatched, and only for
	// settled outcomes: a transiently failed URL stays unhashed so a
	// manual retry can re-exchange it.
	g.guard.MarkProcessed(link.Raw)
	g.machine.Succeed()

	user, _ := g.fetchUser(ctx)

	g.mu.Lock()
	g.session = session
	g.user = user
	g.hydrating = false
	g.lastRedirect = ""
	g.mu.Unlock()

	g.guard.SetProcessing(false)
	g.Refresh(ctx)
	g.drainPendingAuthURL(ctx)
}

func (g *Gate) finishFailedExchange(ctx context.Context, link *deeplink.Link, err error) {
	switch {
	case errors.Is(err, identity.ErrLinkExpired):
		g.guard.MarkProcessed(link.Raw)
		g.machine.Fail("This link has expired. Please request a new one.")
	case errors.Is(err, identity.ErrLinkUsed):
		g.guard.MarkProcessed(link.Raw)
		if g.hasSession() {
			// A duplicate delivery raced ahead of the guard but the first
			// exchange already signed us in; absorb silently.
			g.machine.Succeed()
			g.Refresh(ctx)
			return
		}
		g.machine.Fail("This link has already been used. Please request a new one.")
	case errors.Is(err, context.DeadlineExceeded):
		// Diagnostics distinguish a timeout from a user-cancelled attempt;
		// the user-facing affordance is the same retry message.
		g.logger.WarnContext(ctx, "link exchange timed out", "url", link.Raw)
		g.machine.Fail("Could not complete sign-in. Please try again.")
	default:
		g.logger.WarnContext(ctx, "link exchange failed", "url", link.Raw, "error", err)
		g.machine.Fail("Could not complete sign-in. Please try again.")
	}
}

func (g *Gate) drainPendingAuthURL(ctx context.Context) {
	pending := g.tokens.GetAndClearPendingAuthURL()
	if pending == "" {
		return
	}
	if link := deeplink.Parse(pending); link != nil && link.Kind == deeplink.KindAuth {
		g.handleAuthLink(ctx, link)
	}
}

// Refresh computes the canonical route and issues at most one redirect.
// It does nothing while hydrating or while a link exchange is in flight.
func (g *Gate) Refresh(_ context.Context) {
	if g.guard.IsProcessing() || g.machine.Status().State == authlink.StateProcessing {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hydrating {
		return
	}

	current := g.nav.CurrentRoute()

	if g.session == nil {
		g.lastRedirect = ""
		switch route.Route(current) {
		case route.VerifyEmail, route.ResetPassword:
			// Recovery surfaces are not valid before authentication starts.
			g.nav.Replace(string(route.SignIn))
		default:
			if !route.IsPublic(current) {
				g.nav.Replace(string(route.Landing))
			}
		}
		return
	}

	in := route.Input{
		HasSession:       true,
		UserLoaded:       g.user != nil,
		PasswordRecovery: g.tokens.PeekPasswordRecovery(),
	}
	if g.user != nil {
		in.EmailVerified = g.user.EmailVerified
		in.LegalAccepted = g.user.LegalAccepted
		in.OnboardingComplete = g.user.OnboardingComplete
	}

	resolved, ok := route.Resolve(in)
	if !ok {
		return
	}

	target := string(resolved)
	// A shared content link beats onboarding/legal gating once the user is
	// authenticated, but never the email-verification or recovery gates.
	if pending := g.tokens.PeekPendingRoute(); pending != "" && route.IsContent(pending) &&
		resolved != route.VerifyEmail && resolved != route.ResetPassword {
		target = g.tokens.GetAndClearPendingRoute()
	}

	if target == current {
		g.lastRedirect = target
		return
	}
	if target == g.lastRedirect {
		// Already redirected for this resolved state; re-renders must not
		// re-trigger navigation.
		return
	}

	g.lastRedirect = target
	g.nav.Replace(target)
}

func (g *Gate) fetchUser(ctx context.Context) (*identity.User, error) {
	user, err := g.identity.GetUser(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "user fetch failed", "error", err)
		return nil, err
	}
	return user, nil
}

func (g *Gate) hasSession() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session != nil
}
