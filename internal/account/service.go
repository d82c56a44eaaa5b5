// Package account implements local username/password accounts: login and
// logout against the session store, registration and activation by code.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"annogate/internal/platform/metrics"
	"annogate/internal/session"
	dErrors "annogate/pkg/domain-errors"
	"annogate/pkg/platform/sentinel"
	"annogate/pkg/requestcontext"
)

// Messages shown to form clients.
const (
	MsgCheckInput      = "Please check your input."
	MsgBadCredentials  = "Invalid username or password."
	MsgInactive        = "Your account is not active, please check your e-mail."
	MsgInvalidCode     = "This activation code is not valid."
	MsgRequired        = "Required"
	MsgUsernameTaken   = "That username or email is already registered."
	MsgPasswordTooWeak = "Shorter than minimum length 2"
	MsgUnknownEmail    = "No account is registered with this email address."
	MsgResetSent       = "Please check your e-mail to finish resetting your password."
	MsgResetDone       = "Your password has been reset!"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]{3,30}$`)

// ActivationNotifier delivers activation codes: to new users, and to users
// who asked for a password reset.
type ActivationNotifier interface {
	ActivationIssued(ctx context.Context, u *User, a *Activation) error
	PasswordResetIssued(ctx context.Context, u *User, a *Activation) error
}

// LogNotifier records that a code was issued without revealing it.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) ActivationIssued(ctx context.Context, u *User, _ *Activation) error {
	n.Logger.InfoContext(ctx, "activation issued",
		"user_id", u.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (n LogNotifier) PasswordResetIssued(ctx context.Context, u *User, _ *Activation) error {
	n.Logger.InfoContext(ctx, "password reset issued",
		"user_id", u.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Service holds the account use cases.
type Service struct {
	store    Store
	sessions session.Store
	notifier ActivationNotifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cost     int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier replaces the activation notifier.
func WithNotifier(n ActivationNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics counts login attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the service.
func NewService(store Store, sessions session.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sessions: sessions,
		notifier: LogNotifier{Logger: logger},
		logger:   logger,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Persona is the identity a user of the server at host claims.
func Persona(username, host string) string {
	return fmt.Sprintf("acct:%s@%s", username, host)
}

// Login verifies credentials and claims the user's persona in a fresh session
// that carries over any personas of currentSessionID.
func (s *Service) Login(ctx context.Context, currentSessionID, username, password, host string) (*session.Session, string, error) {
	fields := dErrors.FieldErrors{}
	if strings.TrimSpace(username) == "" {
		fields["username"] = MsgRequired
	}
	if password == "" {
		fields["password"] = MsgRequired
	}
	if len(fields) > 0 {
		return nil, "", dErrors.Validation(MsgCheckInput, fields)
	}

	u, err := s.store.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.metrics.IncLogin("failure")
		return nil, "", dErrors.New(dErrors.CodeUnauthorized, MsgBadCredentials)
	}
	if !u.Active {
		s.metrics.IncLogin("inactive")
		return nil, "", dErrors.New(dErrors.CodeForbidden, MsgInactive)
	}

	now := s.now().UTC()
	sess := session.New(now)
	sess.Device = session.ParseUserAgent(requestcontext.UserAgent(ctx))
	if currentSessionID != "" {
		if prev, err := s.sessions.Get(ctx, currentSessionID); err == nil {
			for _, p := range prev.Personas {
				sess.AddPersona(p)
			}
			_ = s.sessions.Delete(ctx, currentSessionID)
		}
	}
	persona := Persona(u.Username, host)
	sess.AddPersona(persona)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	s.metrics.IncLogin("success")
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", u.ID.String(),
		"device", sess.Device,
		"request_id", requestcontext.RequestID(ctx),
	)
	return sess, persona, nil
}

// Logout drops every persona by deleting the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to end session")
	}
	return nil
}

// Register creates an inactive account and issues its activation code.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	fields := dErrors.FieldErrors{}
	if !usernamePattern.MatchString(username) {
		fields["username"] = "Must be 3-30 letters, digits, dots or underscores."
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "Invalid email address"
	}
	if len(password) < 2 {
		fields["password"] = MsgPasswordTooWeak
	}
	if len(fields) > 0 {
		return nil, dErrors.Validation(MsgCheckInput, fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	a := &Activation{Code: uuid.NewString(), UserID: u.ID, CreatedAt: now}

	if err := s.store.CreateUser(ctx, u, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Validation(MsgCheckInput, dErrors.FieldErrors{"username": MsgUsernameTaken})
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	if err := s.notifier.ActivationIssued(ctx, u, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver activation",
			"user_id", u.ID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return u, nil
}

// Activate consumes code, sets the password and activates the account.
func (s *Service) Activate(ctx context.Context, code, password string) (*User, *Activation, error) {
	return s.redeem(ctx, code, password)
}

// ForgotPassword issues a reset code to the account registered with email.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return dErrors.Validation(MsgCheckInput, dErrors.FieldErrors{"email": MsgRequired})
	}

	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Validation(MsgCheckInput, dErrors.FieldErrors{"email": MsgUnknownEmail})
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	a := &Activation{Code: uuid.NewString(), UserID: u.ID, CreatedAt: s.now().UTC()}
	if err := s.store.CreateActivation(ctx, a); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue reset code")
	}
	if err := s.notifier.PasswordResetIssued(ctx, u, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to deliver password reset",
			"user_id", u.ID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

// ResetPassword consumes a reset code and sets the new password. Redeeming
// the code proves the email address, so an inactive account becomes active.
func (s *Service) ResetPassword(ctx context.Context, code, password string) (*User, error) {
	u, _, err := s.redeem(ctx, code, password)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "password reset",
		"user_id", u.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return u, nil
}

func (s *Service) redeem(ctx context.Context, code, password string) (*User, *Activation, error) {
	fields := dErrors.FieldErrors{}
	if code == "" {
		fields["code"] = MsgRequired
	}
	if len(password) < 2 {
		fields["password"] = MsgPasswordTooWeak
	}
	if len(fields) > 0 {
		return nil, nil, dErrors.Validation(MsgCheckInput, fields)
	}

	a, err := s.store.FindActivation(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.Validation(MsgCheckInput, dErrors.FieldErrors{"code": MsgInvalidCode})
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activation")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	u, err := s.store.Activate(ctx, a.UserID, string(hash), a.Code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.Validation(MsgCheckInput, dErrors.FieldErrors{"code": MsgInvalidCode})
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate account")
	}
	return u, a, nil
}
