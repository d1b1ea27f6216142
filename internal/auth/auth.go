// Package auth gates the ledger behind a single local login.
//
// Users and the current session live in the same local store as the ledger. The
// first user can only be created while no user exists; a users document that exists
// but cannot be read counts as existing. Passwords are kept as bcrypt hashes, and
// plain-text passwords written by older versions are accepted once and replaced by a
// hash on the next successful login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"installments/internal/logger"
	"installments/internal/store"
)

const (
	MaxUsernameLength = 32
	MinPasswordLength = 4

	SessionTTL         = 12 * time.Hour
	RememberSessionTTL = 30 * 24 * time.Hour
)

var (
	ErrAlreadySetUp       = errors.New("login is already set up")
	ErrNoUsers            = errors.New("no user exists yet, run setup first")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrUsernameTooLong    = fmt.Errorf("username is longer than %d characters", MaxUsernameLength)
	ErrPasswordTooShort   = fmt.Errorf("password is shorter than %d characters", MinPasswordLength)
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotLoggedIn        = errors.New("not logged in")
)

// User is a stored login. Password is only set on records written before hashing.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Password     string `json:"password,omitempty"`
}

// Session is the active login.
type Session struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Gate manages users and the session.
type Gate struct {
	kv    store.KV
	clock func() time.Time
	cost  int
	log   zerolog.Logger
}

type Option func(*Gate)

func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.clock = clock }
}

// WithCost sets the bcrypt cost; tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(g *Gate) { g.cost = cost }
}

func NewGate(kv store.KV, opts ...Option) *Gate {
	g := &Gate{
		kv:    kv,
		clock: time.Now,
		cost:  bcrypt.DefaultCost,
		log:   logger.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NormalizeUsername trims and lower-cases a username for comparison.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// HasUsers reports whether a login is set up. An unreadable users document reports
// true so setup cannot replace it.
func (g *Gate) HasUsers(ctx context.Context) bool {
	users, err := g.users(ctx)
	return err != nil || len(users) > 0
}

// CreateFirstUser sets up the only login. It fails once any user exists.
func (g *Gate) CreateFirstUser(ctx context.Context, username, password, confirm string) (string, error) {
	const op = "CreateFirstUser"

	existing, err := g.users(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if len(existing) > 0 {
		return "", fmt.Errorf("%s: %w", op, ErrAlreadySetUp)
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", fmt.Errorf("%s: %w", op, ErrPasswordTooShort)
	}
	if password != confirm {
		return "", fmt.Errorf("%s: %w", op, ErrPasswordMismatch)
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", fmt.Errorf("%s: %w", op, ErrUsernameTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("%s: failed to hash password: %w", op, err)
	}
	if err := store.Save(ctx, g.kv, store.KeyAuthUsers, []User{{Username: username, PasswordHash: string(hash)}}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	g.log.Info().Str("username", username).Msg("First user created")
	return username, nil
}

// Login checks the credentials and starts a session of SessionTTL, or
// RememberSessionTTL when remember is set.
func (g *Gate) Login(ctx context.Context, username, password string, remember bool) (Session, error) {
	const op = "Login"

	name := NormalizeUsername(username)
	if name == "" || password == "" {
		return Session{}, fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}

	users, err := g.users(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(users) == 0 {
		return Session{}, fmt.Errorf("%s: %w", op, ErrNoUsers)
	}
	idx := findUser(users, name)
	if idx < 0 || !g.matches(&users[idx], password) {
		g.log.Warn().Str("username", name).Msg("Login rejected")
		return Session{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if users[idx].Password != "" {
		if err := g.upgrade(ctx, users, idx, password); err != nil {
			g.log.Error().Err(err).Str("username", users[idx].Username).Msg("Failed to hash legacy password")
		}
	}

	ttl := SessionTTL
	if remember {
		ttl = RememberSessionTTL
	}
	now := g.clock()
	session := Session{
		Username:  users[idx].Username,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	}
	if err := store.Save(ctx, g.kv, store.KeyAuthSession, session); err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	g.log.Info().Str("username", session.Username).Time("expires_at", session.ExpiresAt).Msg("Logged in")
	return session, nil
}

func (g *Gate) Logout(ctx context.Context) error {
	if err := g.kv.Delete(ctx, store.KeyAuthSession); err != nil {
		return fmt.Errorf("Logout: %w", err)
	}
	return nil
}

// CurrentSession returns the unexpired session, removing an expired one.
func (g *Gate) CurrentSession(ctx context.Context) (Session, bool) {
	d := store.Load(ctx, g.kv, store.KeyAuthSession, func() Session { return Session{} })
	if d.Err != nil {
		g.log.Warn().Err(d.Err).Msg("Stored session unreadable")
		return Session{}, false
	}

	s := d.Value
	if s.Username == "" || s.ExpiresAt.IsZero() {
		return Session{}, false
	}
	if g.clock().After(s.ExpiresAt) {
		if err := g.Logout(ctx); err != nil {
			g.log.Warn().Err(err).Msg("Failed to remove expired session")
		}
		return Session{}, false
	}
	return s, true
}

func (g *Gate) IsLoggedIn(ctx context.Context) bool {
	_, ok := g.CurrentSession(ctx)
	return ok
}

// EnsureSession returns the active session or explains why there is none.
func (g *Gate) EnsureSession(ctx context.Context) (Session, error) {
	if s, ok := g.CurrentSession(ctx); ok {
		return s, nil
	}
	if !g.HasUsers(ctx) {
		return Session{}, ErrNoUsers
	}
	return Session{}, ErrNotLoggedIn
}

// ChangePassword replaces a user's password after checking the current one.
func (g *Gate) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	const op = "ChangePassword"

	name := NormalizeUsername(username)
	if name == "" || oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingCredentials)
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return fmt.Errorf("%s: %w", op, ErrPasswordTooShort)
	}

	users, err := g.users(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	idx := findUser(users, name)
	if idx < 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if !g.matches(&users[idx], oldPassword) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := g.upgrade(ctx, users, idx, newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	g.log.Info().Str("username", users[idx].Username).Msg("Password changed")
	return nil
}

// users returns the usable stored logins. Entries without a name or password are
// skipped; a document that cannot be decoded is an error.
func (g *Gate) users(ctx context.Context) ([]User, error) {
	d := store.Load(ctx, g.kv, store.KeyAuthUsers, func() []User { return []User{} })
	if d.Err != nil {
		g.log.Warn().Err(d.Err).Msg("Stored users unreadable")
		return nil, d.Err
	}

	valid := make([]User, 0, len(d.Value))
	for _, u := range d.Value {
		if u.Username != "" && (u.PasswordHash != "" || u.Password != "") {
			valid = append(valid, u)
		}
	}
	return valid, nil
}

func (g *Gate) matches(u *User, password string) bool {
	if u.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return u.Password == password
}

// upgrade stores password as the bcrypt hash of users[idx].
func (g *Gate) upgrade(ctx context.Context, users []User, idx int, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	users[idx].PasswordHash = string(hash)
	users[idx].Password = ""
	return store.Save(ctx, g.kv, store.KeyAuthUsers, users)
}

func findUser(users []User, normalized string) int {
	for i, u := range users {
		if NormalizeUsername(u.Username) == normalized {
			return i
		}
	}
	return -1
}
