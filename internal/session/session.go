// Package session resolves bearer tokens into typed sessions and proxies
// sign-up, sign-in, sign-out and password resets to Supabase Auth.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/logging"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/supabase"
)

var log = logging.For("session")

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin access required")
)

// ValidationError is a bad sign-up or sign-in input, reported to the
// caller as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Session is the authenticated caller. IsAdmin always comes from the
// profiles table, never from the token or the request.
type Session struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	IsAdmin     bool      `json:"is_admin"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuthClient interface {
	SignUp(ctx context.Context, email, password, name string) (*supabase.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.AuthResponse, error)
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
	SignOut(ctx context.Context, accessToken string) error
	Recover(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, accessToken string, attrs supabase.UserAttributes) (*supabase.User, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
}

// ActivityLogger records sign-up and sign-in events.
type ActivityLogger interface {
	Log(ctx context.Context, userID uuid.UUID, event, description, ip string)
}

type Options struct {
	JWTSecret string
	// OnSignOut runs after a session ends, e.g. to stop its projector.
	OnSignOut func(userID uuid.UUID)
	// ResetRedirectURL is where the emailed reset link lands, normally
	// the frontend's /reset-password page.
	ResetRedirectURL string
	Now              func() time.Time
}

type Manager struct {
	auth     AuthClient
	profiles ProfileStore
	activity ActivityLogger
	opts     Options
}

func NewManager(auth AuthClient, profiles ProfileStore, activity ActivityLogger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{auth: auth, profiles: profiles, activity: activity, opts: opts}
}

// Authenticate verifies token and loads the caller's profile. Local HS256
// verification is tried first; Supabase is asked when that is not possible.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var s *Session
	if m.opts.JWTSecret != "" {
		if local, err := m.verifyLocal(token); err == nil {
			s = local
		} else {
			log.WithError(err).Debug("local token verification failed, asking supabase")
		}
	}
	if s == nil {
		u, err := m.auth.GetUser(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad user id", ErrUnauthenticated)
		}
		s = &Session{UserID: id, Email: u.Email, Role: u.Role}
	}
	s.AccessToken = token

	if err := m.resolveAdmin(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) verifyLocal(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.opts.JWTSecret), nil
	}, jwt.WithTimeFunc(m.opts.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("jwt invalid")
	}

	sub, _ := claims.GetSubject()
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("jwt subject is not a user id")
	}
	s := &Session{
		UserID: id,
		Email:  stringClaim(claims, "email"),
		Role:   stringClaim(claims, "role"),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

func (m *Manager) resolveAdmin(ctx context.Context, s *Session) error {
	p, err := m.profiles.Get(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	s.IsAdmin = p != nil && p.IsAdmin
	return nil
}

type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// SignUpResult carries a session only when Supabase issued one; otherwise
// the user has to confirm their email first.
type SignUpResult struct {
	Profile              *models.Profile `json:"profile"`
	Session              *Session        `json:"session,omitempty"`
	ConfirmationRequired bool            `json:"confirmation_required"`
}

func (m *Manager) SignUp(ctx context.Context, in SignUpInput, ip string) (*SignUpResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := ValidateSignUp(in); err != nil {
		return nil, err
	}

	resp, err := m.auth.SignUp(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(resp.User.ID)
	if err != nil {
		return nil, fmt.Errorf("signup returned bad user id %q", resp.User.ID)
	}

	profile, err := m.profiles.Create(ctx, &models.Profile{ID: id, Name: in.Name, Email: in.Email})
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	out := &SignUpResult{Profile: profile, ConfirmationRequired: resp.AccessToken == ""}
	if resp.AccessToken != "" {
		out.Session = m.sessionFrom(resp, profile)
		m.activity.Log(ctx, id, "signup", "New user registered", ip)
	}
	return out, nil
}

func (m *Manager) SignIn(ctx context.Context, email, password, ip string) (*Session, error) {
	email = normalizeEmail(email)
	if !emailRe.MatchString(email) {
		return nil, &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Message: "Enter your password."}
	}

	resp, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(resp.User.ID)
	if err != nil {
		return nil, fmt.Errorf("signin returned bad user id %q", resp.User.ID)
	}
	profile, err := m.profiles.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	s := m.sessionFrom(resp, profile)
	m.activity.Log(ctx, id, "login", "User logged in", ip)
	return s, nil
}

// SignOut revokes the token upstream and tears down per-user state even
// when the upstream call fails.
func (m *Manager) SignOut(ctx context.Context, s *Session) error {
	err := m.auth.SignOut(ctx, s.AccessToken)
	if m.opts.OnSignOut != nil {
		m.opts.OnSignOut(s.UserID)
	}
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// RequestPasswordReset asks Supabase to email a reset link. Unknown
// addresses are not reported.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !emailRe.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Enter a valid email."}
	}
	if err := m.auth.Recover(ctx, email, m.opts.ResetRedirectURL); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}

// UpdatePassword sets a new password for the session's user, typically
// the session opened by a reset link.
func (m *Manager) UpdatePassword(ctx context.Context, s *Session, password, ip string) error {
	if len(password) < minPasswordLen {
		return &ValidationError{Field: "password", Message: "Password must be at least 6 characters."}
	}
	if _, err := m.auth.UpdateUser(ctx, s.AccessToken, supabase.UserAttributes{Password: password}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	m.activity.Log(ctx, s.UserID, "password_update", "User updated password", ip)
	return nil
}

func (m *Manager) sessionFrom(resp *supabase.AuthResponse, profile *models.Profile) *Session {
	id, _ := uuid.Parse(resp.User.ID)
	s := &Session{
		UserID:      id,
		Email:       resp.User.Email,
		Role:        resp.User.Role,
		IsAdmin:     profile != nil && profile.IsAdmin,
		AccessToken: resp.AccessToken,
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0).UTC()
	case resp.ExpiresIn > 0:
		s.ExpiresAt = m.opts.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	return s
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLen = 6

// ValidateSignUp applies the registration form rules.
func ValidateSignUp(in SignUpInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "Display name is required."}
	}
	if !emailRe.MatchString(strings.TrimSpace(in.Email)) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address."}
	}
	if !strongPassword(in.Password) {
		return &ValidationError{Field: "password",
			Message: "Password must be at least 6 chars, include upper & lower case letters and a number."}
	}
	if in.Confirm != in.Password {
		return &ValidationError{Field: "confirm", Message: "Passwords do not match."}
	}
	return nil
}

func strongPassword(pw string) bool {
	if len(pw) < minPasswordLen {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
