package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"keybalancer-go/internal/store"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrBadPassword  = errors.New("wrong username or password")
)

// PublicUser is the view of an account exposed to other users.
type PublicUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type session struct {
	userID  int
	expires time.Time
}

// Store manages operator accounts and their sessions. Accounts persist
// through the storage backend; sessions are held in memory and expire.
type Store struct {
	backend    store.Backend
	sessionTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]session
	nextID   int
}

// NewStore loads existing accounts to seed the id counter.
func NewStore(ctx context.Context, backend store.Backend, sessionTTL time.Duration) (*Store, error) {
	s := &Store{
		backend:    backend,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]session),
		nextID:     1,
	}
	existing, err := backend.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range existing {
		if u.ID >= s.nextID {
			s.nextID = u.ID + 1
		}
	}
	return s, nil
}

// SessionTTL reports how long issued sessions stay valid.
func (s *Store) SessionTTL() time.Duration { return s.sessionTTL }

// Bootstrap ensures an admin account exists when none do.
func (s *Store) Bootstrap(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	existing, err := s.backend.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if _, err := s.Create(ctx, username, password, true); err != nil {
		return err
	}
	log.WithField("username", username).Info("bootstrapped admin account")
	return nil
}

// Create adds an account with a freshly generated API key.
func (s *Store) Create(ctx context.Context, username, password string, admin bool) (*store.User, error) {
	if _, err := s.ByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	user := &store.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Admin:        admin,
		APIKey:       uuid.NewString(),
	}
	if err := s.backend.SetUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes an account and invalidates its sessions.
func (s *Store) Delete(ctx context.Context, id int) error {
	if err := s.backend.DeleteUser(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}
	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.userID == id {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	return nil
}

// ByID fetches one account.
func (s *Store) ByID(ctx context.Context, id int) (*store.User, error) {
	user, err := s.backend.GetUser(ctx, id)
	if store.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ByUsername scans for an account by name.
func (s *Store) ByUsername(ctx context.Context, username string) (*store.User, error) {
	all, err := s.backend.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

// List returns every account's public view.
func (s *Store) List(ctx context.Context) ([]PublicUser, error) {
	all, err := s.backend.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PublicUser, 0, len(all))
	for _, u := range all {
		out = append(out, PublicUser{ID: u.ID, Username: u.Username, Admin: u.Admin})
	}
	return out, nil
}

// Public converts a stored user to its shareable view.
func Public(u *store.User) PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Admin: u.Admin}
}

// SetAdmin flips an account's admin flag.
func (s *Store) SetAdmin(ctx context.Context, id int, admin bool) error {
	user, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}
	user.Admin = admin
	return s.backend.SetUser(ctx, user)
}

// SetPassword replaces an account's password hash.
func (s *Store) SetPassword(ctx context.Context, id int, password string) error {
	user, err := s.ByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.backend.SetUser(ctx, user)
}

// Login verifies credentials and issues a session token.
func (s *Store) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.ByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrBadPassword
	}
	if !CheckPassword(password, user.PasswordHash) {
		return "", nil, ErrBadPassword
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{userID: user.ID, expires: time.Now().Add(s.sessionTTL)}
	s.mu.Unlock()
	return token, user, nil
}

// Logout drops a session token.
func (s *Store) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// BySession resolves a session token to its account, pruning it when expired.
func (s *Store) BySession(ctx context.Context, token string) (*store.User, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	if time.Now().After(sess.expires) {
		s.Logout(token)
		return nil, ErrUserNotFound
	}
	return s.ByID(ctx, sess.userID)
}

// ByAPIKey resolves an API key to its account, recording the caller's
// user agent for the admin view.
func (s *Store) ByAPIKey(ctx context.Context, apiKey, userAgent string) (*store.User, error) {
	all, err := s.backend.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.APIKey != apiKey {
			continue
		}
		if userAgent != "" && userAgent != u.LastUserAgent {
			u.LastUserAgent = userAgent
			if err := s.backend.SetUser(ctx, u); err != nil {
				log.WithError(err).Warn("failed to record api key user agent")
			}
		}
		return u, nil
	}
	return nil, ErrUserNotFound
}
