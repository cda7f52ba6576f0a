// Package auth drives the signup, login, logout and role-gated access flow.
// Sessions move between two states, anonymous and authenticated; every
// transition goes through Service.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/memberhub/internal/domain/user"
	"github.com/geocoder89/memberhub/internal/session"
	"github.com/geocoder89/memberhub/internal/validate"
)

type UserStore interface {
	FindBy(ctx context.Context, field user.Field, value string) ([]user.User, error)
	Insert(ctx context.Context, u user.User) (user.User, error)
	SetRole(ctx context.Context, id string, role user.Role) error
	List(ctx context.Context) ([]user.User, error)
	Ping(ctx context.Context) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type SessionManager interface {
	Authenticate(ctx context.Context, current *session.Session, userID, name string, role user.Role) (*session.Session, error)
	Destroy(ctx context.Context, s *session.Session) error
	Now() time.Time
}

// EventRecorder counts auth outcomes. Prometheus metrics implement it.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}

const (
	EventSignUp  = "signup"
	EventLogin   = "login"
	EventLogout  = "logout"
	EventPromote = "promote"
	EventDemote  = "demote"
	EventLookup  = "lookup"
)

type Service struct {
	users    UserStore
	hasher   PasswordHasher
	sessions SessionManager
	events   EventRecorder
	log      *slog.Logger
}

func NewService(users UserStore, hasher PasswordHasher, sessions SessionManager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		events:   noopRecorder{},
		log:      log,
	}
}

func (s *Service) WithEvents(rec EventRecorder) *Service {
	if rec != nil {
		s.events = rec
	}
	return s
}

type MembersView struct {
	Name string
	// Role is the live role from the credential store when the name
	// resolves to exactly one record, and the session role otherwise.
	Role user.Role
}

type LookupResult struct {
	Name    string
	Matches int
}

// SignUp creates a user with role "user" and authenticates the session as
// that user. Emails must be unique.
func (s *Service) SignUp(ctx context.Context, sess *session.Session, in SignUpInput) (*session.Session, error) {
	if err := in.Validate(); err != nil {
		s.rejected(EventSignUp, err, nil)
		return nil, err
	}

	existing, err := s.users.FindBy(ctx, user.FieldEmail, in.Email)
	if err != nil {
		return nil, s.fault(EventSignUp, "find user by email", err)
	}
	if len(existing) > 0 {
		s.events.AuthEvent(EventSignUp, "email_taken")
		s.log.Info("signup rejected: email taken", "email", in.Email)
		return nil, ErrEmailTaken
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fault(EventSignUp, "hash password", err)
	}

	created, err := s.users.Insert(ctx, user.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: digest,
		Role:         user.RoleUser,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			s.events.AuthEvent(EventSignUp, "email_taken")
			return nil, ErrEmailTaken
		}
		return nil, s.fault(EventSignUp, "insert user", err)
	}

	next, err := s.sessions.Authenticate(ctx, sess, created.ID, created.Name, created.Role)
	if err != nil {
		return nil, s.fault(EventSignUp, "authenticate session", err)
	}

	s.events.AuthEvent(EventSignUp, "success")
	s.log.Info("user signed up", "user_id", created.ID, "email", created.Email)
	return next, nil
}

// SignUpForm validates an untrusted form and signs up on success.
func (s *Service) SignUpForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
	in, err := ParseSignUp(raw)
	if err != nil {
		s.rejected(EventSignUp, err, raw)
		return nil, err
	}
	return s.SignUp(ctx, sess, in)
}

// Login authenticates the session when exactly one record carries the email
// and the password verifies against it. Zero or several matches are treated
// the same: user not found.
func (s *Service) Login(ctx context.Context, sess *session.Session, in LoginInput) (*session.Session, error) {
	if err := in.Validate(); err != nil {
		s.rejected(EventLogin, err, nil)
		return nil, err
	}

	matches, err := s.users.FindBy(ctx, user.FieldEmail, in.Email)
	if err != nil {
		return nil, s.fault(EventLogin, "find user by email", err)
	}

	if len(matches) != 1 {
		s.events.AuthEvent(EventLogin, "user_not_found")
		s.log.Info("login failed: user not found", "email", in.Email, "matches", len(matches))
		return nil, ErrUserNotFound
	}

	u := matches[0]
	if !s.hasher.Verify(in.Password, u.PasswordHash) {
		s.events.AuthEvent(EventLogin, "incorrect_password")
		s.log.Info("login failed: incorrect password", "email", in.Email)
		return nil, ErrIncorrectPassword
	}

	next, err := s.sessions.Authenticate(ctx, sess, u.ID, u.Name, u.Role)
	if err != nil {
		return nil, s.fault(EventLogin, "authenticate session", err)
	}

	s.events.AuthEvent(EventLogin, "success")
	s.log.Info("user logged in", "user_id", u.ID, "email", u.Email, "role", u.Role)
	return next, nil
}

// LoginForm validates an untrusted form and logs in on success.
func (s *Service) LoginForm(ctx context.Context, sess *session.Session, raw map[string]any) (*session.Session, error) {
	in, err := ParseLogin(raw)
	if err != nil {
		s.rejected(EventLogin, err, raw)
		return nil, err
	}
	return s.Login(ctx, sess, in)
}

func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		return s.fault(EventLogout, "destroy session", err)
	}

	if sess != nil && sess.Authenticated {
		s.events.AuthEvent(EventLogout, "success")
		s.log.Info("user logged out", "user_id", sess.UserID)
	}
	return nil
}

func (s *Service) Members(ctx context.Context, sess *session.Session) (MembersView, error) {
	if err := s.requireAuthenticated(sess); err != nil {
		return MembersView{}, err
	}

	view := MembersView{Name: sess.Name, Role: sess.Role}

	matches, err := s.users.FindBy(ctx, user.FieldName, sess.Name)
	if err != nil {
		return MembersView{}, s.fault("members", "find user by name", err)
	}
	if len(matches) == 1 {
		view.Role = matches[0].Role
	}

	return view, nil
}

// ListUsers is the admin listing. The check uses the role captured in the
// session at login.
func (s *Service) ListUsers(ctx context.Context, sess *session.Session) ([]user.User, error) {
	if err := s.requireAdmin(sess); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.fault("list_users", "list users", err)
	}
	return users, nil
}

func (s *Service) Promote(ctx context.Context, sess *session.Session, id string) error {
	return s.setRole(ctx, sess, EventPromote, id, user.RoleAdmin)
}

func (s *Service) Demote(ctx context.Context, sess *session.Session, id string) error {
	return s.setRole(ctx, sess, EventDemote, id, user.RoleUser)
}

func (s *Service) setRole(ctx context.Context, sess *session.Session, event, id string, role user.Role) error {
	if err := s.requireAdmin(sess); err != nil {
		s.events.AuthEvent(event, "forbidden")
		return err
	}

	if err := s.users.SetRole(ctx, id, role); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.events.AuthEvent(event, "not_found")
			return err
		}
		return s.fault(event, "set role", err)
	}

	s.events.AuthEvent(event, "success")
	s.log.Info("user role changed", "target_id", id, "role", role, "by", sess.UserID)
	return nil
}

// LookupByName validates raw as a bare string before it is used as a query
// value. Anything else, including operator objects such as {"$ne": "x"}, is
// rejected without touching the store.
func (s *Service) LookupByName(ctx context.Context, raw any) (LookupResult, error) {
	if err := LookupRule.Check("user", raw); err != nil {
		s.rejected(EventLookup, err, map[string]any{"user": raw})
		return LookupResult{}, err
	}

	name := raw.(string)

	matches, err := s.users.FindBy(ctx, user.FieldName, name)
	if err != nil {
		return LookupResult{}, s.fault(EventLookup, "find user by name", err)
	}

	s.events.AuthEvent(EventLookup, "success")
	s.log.Debug("lookup by name", "name", name, "matches", len(matches))
	return LookupResult{Name: name, Matches: len(matches)}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

func (s *Service) requireAuthenticated(sess *session.Session) error {
	if !sess.IsAuthenticated(s.sessions.Now()) {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *Service) requireAdmin(sess *session.Session) error {
	if err := s.requireAuthenticated(sess); err != nil {
		return err
	}
	if sess.Role != user.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// rejected records a validation failure. raw, when present, supplies the
// attempted value for the audit log; password values are never logged.
func (s *Service) rejected(event string, err error, raw map[string]any) {
	outcome := "invalid"
	if validate.IsInjection(err) {
		outcome = "injection"
	}
	s.events.AuthEvent(event, outcome)

	var ve *validate.ValidationError
	if !errors.As(err, &ve) {
		return
	}

	attrs := []any{"event", event, "field", ve.Field, "rule", ve.Rule, "injection", ve.Injection}
	if v, ok := raw[ve.Field]; ok && ve.Field != "password" {
		attrs = append(attrs, "value", v)
	}
	s.log.Warn("input rejected", attrs...)
}

func (s *Service) fault(event, op string, err error) error {
	s.events.AuthEvent(event, "error")
	s.log.Error("store fault", "event", event, "operation", op, "err", err)
	return storeFault(op, err)
}
