package gate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"linkgate/internal/authlink"
	"linkgate/internal/callback"
	"linkgate/internal/identity"
	"linkgate/internal/route"
	"linkgate/internal/tokenstore"
	mockidentity "linkgate/mocks/identity"
)

// fakeNavigator records Replace calls. trackRoute controls whether the
// reported current route follows the last Replace, mimicking a navigation
// stack that has (or has not yet) settled.
type fakeNavigator struct {
	mu         sync.Mutex
	current    string
	trackRoute bool
	replaced   []string
}

func (n *fakeNavigator) Replace(r string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, r)
	if n.trackRoute {
		n.current = r
	}
}

func (n *fakeNavigator) CurrentRoute() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

type fixture struct {
	gate    *Gate
	client  *mockidentity.MockClient
	nav     *fakeNavigator
	tokens  *tokenstore.Store
	guard   *callback.Guard
	machine *authlink.Machine
}

func newFixture(t *testing.T, currentRoute string) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mockidentity.NewMockClient(ctrl)
	nav := &fakeNavigator{current: currentRoute, trackRoute: true}
	tokens := tokenstore.New()
	guard := callback.NewGuard()
	machine := authlink.New()
	return &fixture{
		gate:    New(client, nav, tokens, guard, machine),
		client:  client,
		nav:     nav,
		tokens:  tokens,
		guard:   guard,
		machine: machine,
	}
}

func qualifiedUser() *identity.User {
	complete := true
	return &identity.User{
		ID:                 "user-1",
		Email:              "sam@example.com",
		EmailVerified:      true,
		LegalAccepted:      true,
		OnboardingComplete: &complete,
	}
}

func TestGate_NoNavigationWhileHydrating(t *testing.T) {
	f := newFixture(t, "/home")

	f.gate.Refresh(context.Background())

	assert.True(t, f.gate.State().Hydrating)
	assert.Empty(t, f.nav.replaced)
}

func TestGate_UnauthenticatedRouting(t *testing.T) {
	cases := []struct {
		name        string
		current     string
		wantReplace []string
	}{
		{name: "landing renders without redirect", current: "/", wantReplace: nil},
		{name: "signin renders without redirect", current: "/signin", wantReplace: nil},
		{name: "legal documents render without redirect", current: "/legal/terms", wantReplace: nil},
		{name: "private route redirects to landing", current: "/home", wantReplace: []string{"/"}},
		{name: "verify-email redirects to signin", current: "/verify-email", wantReplace: []string{"/signin"}},
		{name: "reset-password redirects to signin", current: "/reset-password", wantReplace: []string{"/signin"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.current)
			f.client.EXPECT().GetSession(gomock.Any()).Return(nil, nil)

			f.gate.Start(context.Background())

			assert.False(t, f.gate.State().Hydrating)
			assert.Equal(t, tc.wantReplace, f.nav.replaced)
		})
	}
}

func TestGate_AuthenticatedRouting(t *testing.T) {
	t.Run("qualified user is sent home", func(t *testing.T) {
		f := newFixture(t, "/")
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil)

		f.gate.Start(context.Background())

		assert.Equal(t, []string{"/home"}, f.nav.replaced)
	})

	t.Run("no redirect while user record is still loading", func(t *testing.T) {
		f := newFixture(t, "/")
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(nil, errors.New("fetch in flight"))

		f.gate.Start(context.Background())

		assert.Empty(t, f.nav.replaced)
	})

	t.Run("invalid refresh token clears the session", func(t *testing.T) {
		f := newFixture(t, "/home")
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(nil, identity.ErrInvalidRefreshToken)
		f.client.EXPECT().SignOut(gomock.Any()).Return(nil)

		f.gate.Start(context.Background())

		assert.False(t, f.gate.State().Authenticated)
		assert.Equal(t, []string{"/"}, f.nav.replaced)
	})

	t.Run("unverified email gates before onboarding", func(t *testing.T) {
		f := newFixture(t, "/")
		user := qualifiedUser()
		user.EmailVerified = false
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(user, nil)

		f.gate.Start(context.Background())

		assert.Equal(t, []string{"/verify-email"}, f.nav.replaced)
	})
}

func TestGate_PendingContentRoute(t *testing.T) {
	t.Run("content link beats onboarding gating and is consumed", func(t *testing.T) {
		f := newFixture(t, "/")
		incomplete := false
		user := qualifiedUser()
		user.OnboardingComplete = &incomplete
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(user, nil)

		f.tokens.SetPendingRoute("/reel/99")
		f.gate.Start(context.Background())

		assert.Equal(t, []string{"/reel/99"}, f.nav.replaced)
		assert.Empty(t, f.tokens.PeekPendingRoute(), "pending route is consumed on use")
	})

	t.Run("content link does not beat the email verification gate", func(t *testing.T) {
		f := newFixture(t, "/")
		user := qualifiedUser()
		user.EmailVerified = false
		f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(user, nil)

		f.tokens.SetPendingRoute("/post/42")
		f.gate.Start(context.Background())

		assert.Equal(t, []string{"/verify-email"}, f.nav.replaced)
		assert.Equal(t, "/post/42", f.tokens.PeekPendingRoute(), "pending route is retained for later")
	})
}

func TestGate_RedirectLoopSuppression(t *testing.T) {
	f := newFixture(t, "/")
	// The navigation stack never settles, as if the platform is slow to
	// commit the route change.
	f.nav.trackRoute = false
	f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
	f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil)

	f.gate.Start(context.Background())
	for i := 0; i < 5; i++ {
		f.gate.Refresh(context.Background())
	}

	assert.Equal(t, []string{"/home"}, f.nav.replaced, "repeated renders must not re-trigger navigation")
}

func TestGate_SignOutResetsSuppression(t *testing.T) {
	f := newFixture(t, "/")
	f.nav.trackRoute = false
	f.client.EXPECT().GetSession(gomock.Any()).Return(&identity.Session{UserID: "user-1"}, nil)
	f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil).Times(2)

	f.gate.Start(context.Background())
	require.Equal(t, []string{"/home"}, f.nav.replaced)

	// Session decays, then the user signs back in; the gate must redirect
	// again even though the target matches the suppressed one.
	f.nav.current = "/home"
	f.gate.OnAuthChange(context.Background(), nil)
	f.nav.current = "/"
	f.gate.OnAuthChange(context.Background(), &identity.Session{UserID: "user-1"})

	assert.Equal(t, []string{"/home", "/", "/home"}, f.nav.replaced)
}

func TestGate_AuthLinkExchange(t *testing.T) {
	const verifyURL = "committed://auth-callback?type=verify&token=deadbeef"

	t.Run("successful verify exchange signs in and routes once", func(t *testing.T) {
		f := newFixture(t, "/")
		f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), verifyURL).
			Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil)

		f.gate.HandleURL(context.Background(), verifyURL)

		st := f.gate.State()
		assert.True(t, st.Authenticated)
		assert.Equal(t, authlink.StateSuccess, st.Link.State)
		assert.Equal(t, authlink.IntentVerify, st.Link.Intent)
		assert.Equal(t, []string{"/home"}, f.nav.replaced)
	})

	t.Run("same URL delivered twice exchanges once", func(t *testing.T) {
		f := newFixture(t, "/")
		f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), verifyURL).
			Return(&identity.Session{UserID: "user-1"}, nil).Times(1)
		f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil)

		// Foreground event, cold-start read, and hash re-read all deliver
		// the same physical URL.
		f.gate.HandleURL(context.Background(), verifyURL)
		f.gate.HandleURL(context.Background(), verifyURL)
		f.gate.HandleURL(context.Background(), verifyURL)

		assert.Equal(t, []string{"/home"}, f.nav.replaced)
	})

	t.Run("recovery link routes to reset password over all gating", func(t *testing.T) {
		const recoveryURL = "committed://auth-callback?type=recovery&token=deadbeef"
		f := newFixture(t, "/")
		user := qualifiedUser()
		user.EmailVerified = false // recovery still wins
		f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), recoveryURL).
			Return(&identity.Session{UserID: "user-1"}, nil)
		f.client.EXPECT().GetUser(gomock.Any()).Return(user, nil)

		f.gate.HandleURL(context.Background(), recoveryURL)

		st := f.gate.State()
		assert.Equal(t, authlink.IntentRecovery, st.Link.Intent)
		assert.True(t, f.tokens.PeekPasswordRecovery())
		assert.Equal(t, []string{string(route.ResetPassword)}, f.nav.replaced)
	})

	t.Run("expired link surfaces a terminal error without navigating", func(t *testing.T) {
		f := newFixture(t, "/")
		f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), verifyURL).
			Return(nil, identity.ErrLinkExpired)

		f.gate.HandleURL(context.Background(), verifyURL)

		st := f.gate.State()
		assert.Equal(t, authlink.StateError, st.Link.State)
		assert.Contains(t, st.Link.Err, "expired")
		assert.Empty(t, f.nav.replaced)

		// Expired is terminal for this URL: a redelivery is suppressed.
		f.gate.HandleURL(context.Background(), verifyURL)
	})

	t.Run("timed-out exchange can be retried with the same URL", func(t *testing.T) {
		f := newFixture(t, "/")
		gomock.InOrder(
			f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), verifyURL).
				Return(nil, context.DeadlineExceeded),
			f.client.EXPECT().ExchangeCodeForSession(gomock.Any(), verifyURL).
				Return(&identity.Session{UserID: "user-1"}, nil),
		)
		f.client.EXPECT().GetUser(gomock.Any()).Return(qualifiedUser(), nil)

		f.gate.HandleURL(context.Background(), verifyURL)
		st := f.gate.State()
		assert.Equal(t, authlink.StateError, st.Link.State)
		assert.NotEmpty(t, st.Link.Err, "retry message expected")

		f.gate.HandleURL(context.Background(), verifyURL)
		assert.Equal(t, authlink.StateSuccess, f.gate.State().Link.State)
	})

	t.Run("URL arriving mid-exchange is parked, not exchanged", func(t *testing.T) {
		f := newFixture(t, "/")
		f.guard.SetProcessing(true)

		f.gate.HandleURL(context.Background(), verifyURL)

		assert.Equal(t, verifyURL, f.tokens.PeekPendingAuthURL())
	})
}

func TestGate_ReferralLink(t *testing.T) {
	f := newFixture(t, "/")

	f.gate.HandleURL(context.Background(), "https://app.example/?ref=ABC123")

	assert.Equal(t, "ABC123", f.tokens.PeekPendingReferralCode())
	assert.Empty(t, f.nav.replaced)
}

func TestGate_UnknownLinkIsIgnored(t *testing.T) {
	f := newFixture(t, "/")

	f.gate.HandleURL(context.Background(), "https://app.example/about")
	f.gate.HandleURL(context.Background(), "")

	assert.Empty(t, f.nav.replaced)
	assert.Equal(t, authlink.StateIdle, f.gate.State().Link.State)
}
