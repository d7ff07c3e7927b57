// Package service implements the link-token flows: issuing emailed auth
// links, exchanging them for sessions, and the account operations a session
// unlocks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"linkgate/internal/jwttoken"
	"linkgate/internal/linktoken/device"
	"linkgate/internal/linktoken/metrics"
	"linkgate/internal/linktoken/store/usedjti"
	"linkgate/internal/user"
	userstore "linkgate/internal/user/store"
	dErrors "linkgate/pkg/domain-errors"
	"linkgate/pkg/email"
	"linkgate/pkg/platform/sentinel"
)

const tracerName = "linkgate/linktoken"

// Link intents. The intent travels inside the token and in the callback
// URL's type parameter; the two must always agree.
const (
	IntentRecovery = "recovery"
	IntentVerify   = "verify"
)

const minPasswordLength = 8

// Config carries the issuance parameters for the service.
type Config struct {
	// PublicBaseURL is the https origin of the universal links placed in
	// emails, e.g. "https://app.example.com".
	PublicBaseURL string

	RecoveryLinkTTL time.Duration
	VerifyLinkTTL   time.Duration
	AccessTokenTTL  time.Duration
}

// Session is the result of a successful token exchange.
type Session struct {
	AccessToken string
	ExpiresIn   int
	Device      string
	User        *user.User
}

type Service struct {
	users    userstore.Store
	usedJTIs usedjti.Store
	tokens   *jwttoken.Service
	sender   email.Sender
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	cfg      Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEmailSender(sender email.Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(users userstore.Store, usedJTIs usedjti.Store, tokens *jwttoken.Service, cfg Config, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if usedJTIs == nil {
		return nil, errors.New("used jti store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}

	svc := &Service{
		users:    users,
		usedJTIs: usedJTIs,
		tokens:   tokens,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer(tracerName),
		cfg:      cfg,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.sender == nil {
		svc.sender = &email.LogSender{Logger: svc.logger}
	}

	return svc, nil
}

// IssueLink mints a link token for the account behind address and emails it.
// Unknown addresses return nil so the endpoint cannot be used to probe which
// emails have accounts.
func (s *Service) IssueLink(ctx context.Context, address, intent string) error {
	ctx, span := s.tracer.Start(ctx, "linktoken.IssueLink")
	defer span.End()

	ttl, err := s.linkTTL(intent)
	if err != nil {
		return err
	}

	u, err := s.users.FindByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.InfoContext(ctx, "link requested for unknown address", "intent", intent)
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	token, jti, err := s.tokens.GenerateLinkToken(u.ID, u.Email, intent, ttl)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint link token")
	}

	link := fmt.Sprintf("%s/auth-callback?type=%s&token=%s",
		s.cfg.PublicBaseURL, url.QueryEscape(intent), url.QueryEscape(token))

	if err := s.sender.Send(ctx, s.composeEmail(u.Email, intent, link, ttl)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to send email")
	}

	if s.metrics != nil {
		s.metrics.LinksIssued.WithLabelValues(intent).Inc()
	}
	s.logger.InfoContext(ctx, "auth link issued",
		"user_id", u.ID,
		"intent", intent,
		"jti", jti,
	)
	return nil
}

// Exchange redeems a link token for a session. Each token is spendable once;
// the used-jti ledger arbitrates races between concurrent redemptions.
func (s *Service) Exchange(ctx context.Context, rawToken, userAgent string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "linktoken.Exchange")
	defer span.End()

	claims, err := s.tokens.ValidateLinkToken(rawToken)
	if err != nil {
		s.countExchange("unknown", resultOf(err))
		return nil, err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	first, err := s.usedJTIs.MarkUsed(ctx, claims.ID, remaining)
	if err != nil {
		s.countExchange(claims.Intent, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record token use")
	}
	if !first {
		s.countExchange(claims.Intent, "already_used")
		return nil, dErrors.New(dErrors.CodeAlreadyUsed, "link has already been used")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.countExchange(claims.Intent, "invalid")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countExchange(claims.Intent, "invalid")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		s.countExchange(claims.Intent, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if u.Banned {
		s.countExchange(claims.Intent, "banned")
		return nil, dErrors.New(dErrors.CodeForbidden, "account is suspended")
	}

	// Following a verify link is itself proof of address ownership.
	if claims.Intent == IntentVerify && !u.EmailVerified() {
		now := time.Now().UTC()
		if err := s.users.MarkEmailVerified(ctx, u.ID, now); err != nil {
			s.countExchange(claims.Intent, "error")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark email verified")
		}
		u.EmailVerifiedAt = &now
	}

	accessToken, err := s.tokens.GenerateAccessToken(u.ID, u.Email, s.cfg.AccessTokenTTL)
	if err != nil {
		s.countExchange(claims.Intent, "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint access token")
	}

	display := device.ParseUserAgent(userAgent)
	s.countExchange(claims.Intent, "success")
	s.logger.InfoContext(ctx, "link token exchanged",
		"user_id", u.ID,
		"intent", claims.Intent,
		"jti", claims.ID,
		"device", display,
	)

	return &Session{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		Device:      display,
		User:        u,
	}, nil
}

// UpdatePassword replaces the caller's password hash. Used by the recovery
// flow after a successful exchange.
func (s *Service) UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	ctx, span := s.tracer.Start(ctx, "linktoken.UpdatePassword")
	defer span.End()

	if len(newPassword) < minPasswordLength {
		return dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "unknown account")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}

	if s.metrics != nil {
		s.metrics.PasswordResets.Inc()
	}
	s.logger.InfoContext(ctx, "password updated", "user_id", userID)
	return nil
}

// CurrentUser loads the account behind an authenticated session.
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown account")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return u, nil
}

func (s *Service) linkTTL(intent string) (time.Duration, error) {
	switch intent {
	case IntentRecovery:
		return s.cfg.RecoveryLinkTTL, nil
	case IntentVerify:
		return s.cfg.VerifyLinkTTL, nil
	default:
		return 0, dErrors.New(dErrors.CodeInvalidInput, "intent must be recovery or verify")
	}
}

func (s *Service) composeEmail(to, intent, link string, ttl time.Duration) email.Message {
	first, _ := email.DeriveNameFromEmail(to)

	var subject, action string
	switch intent {
	case IntentRecovery:
		subject = "Reset your password"
		action = "reset your password"
	default:
		subject = "Confirm your email address"
		action = "confirm your email address"
	}

	body := fmt.Sprintf(
		"Hi %s,\n\nTap the link below to %s. It expires in %s and works once.\n\n%s\n\nIf you didn't request this, you can ignore this email.\n",
		first, action, ttl.Round(time.Minute), link,
	)

	return email.Message{To: to, Subject: subject, Body: body}
}

func (s *Service) countExchange(intent, result string) {
	if s.metrics != nil {
		s.metrics.Exchanges.WithLabelValues(intent, result).Inc()
	}
}

func resultOf(err error) string {
	if dErrors.HasCode(err, dErrors.CodeExpired) {
		return "expired"
	}
	return "invalid"
}
