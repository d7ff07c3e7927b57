package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"linkgate/internal/jwttoken"
	"linkgate/internal/linktoken/service"
	"linkgate/internal/linktoken/store/usedjti"
	"linkgate/internal/user"
	"linkgate/internal/user/store"
	dErrors "linkgate/pkg/domain-errors"
	"linkgate/pkg/email"
)

type captureSender struct {
	msgs []email.Message
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

type fixture struct {
	svc    *service.Service
	users  *store.InMemoryStore
	tokens *jwttoken.Service
	sender *captureSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := store.NewMemory()
	tokens := jwttoken.New("test-key", "linkgate-test")
	sender := &captureSender{}

	svc, err := service.New(users, usedjti.NewMemory(), tokens, service.Config{
		PublicBaseURL:   "https://app.example.com",
		RecoveryLinkTTL: time.Hour,
		VerifyLinkTTL:   24 * time.Hour,
		AccessTokenTTL:  time.Hour,
	}, service.WithEmailSender(sender))
	require.NoError(t, err)

	return &fixture{svc: svc, users: users, tokens: tokens, sender: sender}
}

func (f *fixture) createUser(t *testing.T, address string) *user.User {
	t.Helper()
	u := &user.User{
		ID:           uuid.New(),
		Email:        address,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

// linkFromEmail pulls the https link out of the most recent message body.
func (f *fixture) linkFromEmail(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sender.msgs)
	body := f.sender.msgs[len(f.sender.msgs)-1].Body
	start := strings.Index(body, "https://")
	require.GreaterOrEqual(t, start, 0, "email body should contain a link")
	link := body[start:]
	if end := strings.IndexAny(link, " \n"); end >= 0 {
		link = link[:end]
	}
	return link
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	_, query, found := strings.Cut(link, "token=")
	require.True(t, found, "link should carry a token")
	return query
}

func TestIssueLink_SendsRecoveryEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "sam@example.com")

	require.NoError(t, f.svc.IssueLink(ctx, "sam@example.com", service.IntentRecovery))

	require.Len(t, f.sender.msgs, 1)
	msg := f.sender.msgs[0]
	assert.Equal(t, "sam@example.com", msg.To)
	assert.Equal(t, "Reset your password", msg.Subject)

	link := f.linkFromEmail(t)
	assert.True(t, strings.HasPrefix(link, "https://app.example.com/auth-callback?type=recovery&token="))
}

func TestIssueLink_UnknownAddressIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.IssueLink(ctx, "nobody@example.com", service.IntentVerify))
	assert.Empty(t, f.sender.msgs, "no email should be sent for unknown addresses")
}

func TestIssueLink_RejectsUnknownIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createUser(t, "sam@example.com")

	err := f.svc.IssueLink(ctx, "sam@example.com", "magic")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestExchange_EmailedTokenGrantsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	require.NoError(t, f.svc.IssueLink(ctx, "sam@example.com", service.IntentRecovery))
	token := tokenFromLink(t, f.linkFromEmail(t))

	session, err := f.svc.Exchange(ctx, token, "")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.Equal(t, "Unknown Device", session.Device)
	assert.Equal(t, u.ID, session.User.ID)

	claims, err := f.tokens.ValidateAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.Subject)
}

func TestExchange_VerifyIntentConfirmsEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	token, _, err := f.tokens.GenerateLinkToken(u.ID, u.Email, service.IntentVerify, time.Hour)
	require.NoError(t, err)

	session, err := f.svc.Exchange(ctx, token, "")
	require.NoError(t, err)
	assert.True(t, session.User.EmailVerified())

	stored, err := f.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified())
}

func TestExchange_SecondUseRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	token, _, err := f.tokens.GenerateLinkToken(u.ID, u.Email, service.IntentRecovery, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Exchange(ctx, token, "")
	require.NoError(t, err)

	_, err = f.svc.Exchange(ctx, token, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyUsed))
}

func TestExchange_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	token, _, err := f.tokens.GenerateLinkToken(u.ID, u.Email, service.IntentRecovery, -time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Exchange(ctx, token, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
}

func TestExchange_BannedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	banned := &user.User{
		ID:           uuid.New(),
		Email:        "banned@example.com",
		PasswordHash: "hash",
		Banned:       true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, f.users.Create(ctx, banned))

	token, _, err := f.tokens.GenerateLinkToken(banned.ID, banned.Email, service.IntentRecovery, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Exchange(ctx, token, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestExchange_DeletedAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	token, _, err := f.tokens.GenerateLinkToken(uuid.New(), "gone@example.com", service.IntentRecovery, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Exchange(ctx, token, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	err := f.svc.UpdatePassword(ctx, u.ID, "short")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	require.NoError(t, f.svc.UpdatePassword(ctx, u.ID, "correct horse battery"))

	stored, err := f.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse battery")))
}

func TestCurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.createUser(t, "sam@example.com")

	got, err := f.svc.CurrentUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = f.svc.CurrentUser(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
