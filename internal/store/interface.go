package store

import (
	"context"
	"errors"

	"keybalancer-go/internal/balancer"
)

// Site is a provider's credential collection.
type Site struct {
	Domain  string         `json:"domain"`
	Public  bool           `json:"public"`
	Readers []int          `json:"readers"`
	Editors []int          `json:"editors"`
	Keys    []balancer.Key `json:"keys"`
}

// Clone returns a deep copy safe to hand out to callers.
func (s *Site) Clone() *Site {
	out := &Site{
		Domain:  s.Domain,
		Public:  s.Public,
		Readers: append([]int(nil), s.Readers...),
		Editors: append([]int(nil), s.Editors...),
		Keys:    append([]balancer.Key(nil), s.Keys...),
	}
	return out
}

// User is an operator account.
type User struct {
	ID            int    `json:"id"`
	Username      string `json:"username"`
	PasswordHash  string `json:"password_hash"`
	Admin         bool   `json:"admin"`
	APIKey        string `json:"api_key"`
	LastUserAgent string `json:"last_user_agent,omitempty"`
}

// Backend persists sites, users and runtime config flags.
type Backend interface {
	Initialize(ctx context.Context) error
	Close() error
	Health(ctx context.Context) error

	GetSite(ctx context.Context, domain string) (*Site, error)
	SetSite(ctx context.Context, site *Site) error
	DeleteSite(ctx context.Context, domain string) error
	ListSites(ctx context.Context) ([]*Site, error)

	GetUser(ctx context.Context, id int) (*User, error)
	SetUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id int) error
	ListUsers(ctx context.Context) ([]*User, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// ErrNotFound is returned when a document does not exist.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsNotFound reports whether err is a missing-document error.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
