package store

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"

	"keybalancer-go/internal/balancer"
)

var (
	ErrSiteNotFound  = errors.New("site not found")
	ErrSiteExists    = errors.New("site already exists")
	ErrKeyNotFound   = errors.New("key not found")
	ErrKeyExists     = errors.New("key already exists")
	ErrInvalidDomain = errors.New("invalid domain")
)

// ProxySiteDomain is the reserved site whose keys are egress proxy endpoints.
const ProxySiteDomain = "https.proxy"

// AccessLevel describes what a user may do with a site.
type AccessLevel string

const (
	AccessNone   AccessLevel = "none"
	AccessReader AccessLevel = "reader"
	AccessEditor AccessLevel = "editor"
)

// SiteStore owns site documents: all mutations of one site run under that
// site's lock, so concurrent sort/add/remove on the same site serialize while
// different sites proceed independently.
type SiteStore struct {
	backend Backend

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSiteStore(backend Backend) *SiteStore {
	return &SiteStore{backend: backend, locks: make(map[string]*sync.Mutex)}
}

func (s *SiteStore) lockFor(domain string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		s.locks[domain] = l
	}
	return l
}

// AddSite registers a new, empty site.
func (s *SiteStore) AddSite(ctx context.Context, domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" || strings.ContainsAny(domain, "/\\ ") {
		return ErrInvalidDomain
	}

	lock := s.lockFor(domain)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.backend.GetSite(ctx, domain); err == nil {
		return ErrSiteExists
	} else if !IsNotFound(err) {
		return err
	}
	return s.backend.SetSite(ctx, &Site{Domain: domain})
}

// DeleteSite removes a site and all its keys.
func (s *SiteStore) DeleteSite(ctx context.Context, domain string) error {
	lock := s.lockFor(domain)
	lock.Lock()
	defer lock.Unlock()

	err := s.backend.DeleteSite(ctx, domain)
	if IsNotFound(err) {
		return ErrSiteNotFound
	}
	return err
}

// Site returns a copy of one site.
func (s *SiteStore) Site(ctx context.Context, domain string) (*Site, error) {
	site, err := s.backend.GetSite(ctx, domain)
	if IsNotFound(err) {
		return nil, ErrSiteNotFound
	}
	return site, err
}

// SiteExists reports whether the domain is registered.
func (s *SiteStore) SiteExists(ctx context.Context, domain string) bool {
	_, err := s.backend.GetSite(ctx, domain)
	return err == nil
}

// UserSites lists the sites visible to a user. Admins see everything.
func (s *SiteStore) UserSites(ctx context.Context, userID int, admin bool) ([]*Site, error) {
	all, err := s.backend.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	if admin {
		return all, nil
	}
	out := make([]*Site, 0, len(all))
	for _, site := range all {
		if s.accessOf(site, userID) != AccessNone {
			out = append(out, site)
		}
	}
	return out, nil
}

// AccessLevel reports a user's access to one site.
func (s *SiteStore) AccessLevel(ctx context.Context, domain string, userID int) AccessLevel {
	site, err := s.backend.GetSite(ctx, domain)
	if err != nil {
		return AccessNone
	}
	return s.accessOf(site, userID)
}

func (s *SiteStore) accessOf(site *Site, userID int) AccessLevel {
	for _, id := range site.Editors {
		if id == userID {
			return AccessEditor
		}
	}
	for _, id := range site.Readers {
		if id == userID {
			return AccessReader
		}
	}
	return AccessNone
}

// mutate runs fn against the current site document under the site's lock and
// persists the result.
func (s *SiteStore) mutate(ctx context.Context, domain string, fn func(*Site) error) error {
	lock := s.lockFor(domain)
	lock.Lock()
	defer lock.Unlock()

	site, err := s.backend.GetSite(ctx, domain)
	if IsNotFound(err) {
		return ErrSiteNotFound
	}
	if err != nil {
		return err
	}
	if err := fn(site); err != nil {
		return err
	}
	return s.backend.SetSite(ctx, site)
}

// AddKey appends a credential with its canonical balance string.
func (s *SiteStore) AddKey(ctx context.Context, domain, token, balance string) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		for _, k := range site.Keys {
			if k.Token == token {
				return ErrKeyExists
			}
		}
		site.Keys = append(site.Keys, balancer.Key{Token: token, Balance: balance})
		return nil
	})
}

// HasKey reports whether the token is stored for the domain.
func (s *SiteStore) HasKey(ctx context.Context, domain, token string) bool {
	site, err := s.backend.GetSite(ctx, domain)
	if err != nil {
		return false
	}
	for _, k := range site.Keys {
		if k.Token == token {
			return true
		}
	}
	return false
}

// RemoveKey deletes one credential from a site.
func (s *SiteStore) RemoveKey(ctx context.Context, domain, token string) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		for i, k := range site.Keys {
			if k.Token == token {
				site.Keys = append(site.Keys[:i], site.Keys[i+1:]...)
				return nil
			}
		}
		return ErrKeyNotFound
	})
}

// ApplyClassification writes a probe result to the stored key. This is the
// boundary where the tagged Classification becomes a canonical string; a
// transient result never downgrades a previously stored real balance.
func (s *SiteStore) ApplyClassification(ctx context.Context, domain, token string, c balancer.Classification) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		for i, k := range site.Keys {
			if k.Token != token {
				continue
			}
			if c.Transient() && k.Balance != balancer.UnsupportedBalance && k.Balance != balancer.RateLimited().Canonical() {
				return nil
			}
			site.Keys[i].Balance = c.Canonical()
			return nil
		}
		return ErrKeyNotFound
	})
}

// SortKeys deduplicates a site's keys by token (first occurrence wins) and
// orders them by balance family. Returns balancer.ErrNoSortableBalances when
// the stored balances do not admit a single comparator.
func (s *SiteStore) SortKeys(ctx context.Context, domain string) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		site.Keys = balancer.DedupKeys(site.Keys)
		sorted, err := balancer.SortKeys(site.Keys)
		if err != nil {
			return err
		}
		site.Keys = sorted
		return nil
	})
}

// SiteTokens lists the raw tokens stored for a site.
func (s *SiteStore) SiteTokens(ctx context.Context, domain string) ([]string, error) {
	site, err := s.Site(ctx, domain)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(site.Keys))
	for _, k := range site.Keys {
		tokens = append(tokens, k.Token)
	}
	return tokens, nil
}

// AddReader grants read access.
func (s *SiteStore) AddReader(ctx context.Context, domain string, userID int) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		for _, id := range site.Readers {
			if id == userID {
				return errors.New("user already a reader")
			}
		}
		site.Readers = append(site.Readers, userID)
		return nil
	})
}

// ChangeRole moves a user between the reader and editor lists.
func (s *SiteStore) ChangeRole(ctx context.Context, domain string, userID int, role AccessLevel) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		site.Readers = removeID(site.Readers, userID)
		site.Editors = removeID(site.Editors, userID)
		switch role {
		case AccessReader:
			site.Readers = append(site.Readers, userID)
		case AccessEditor:
			site.Editors = append(site.Editors, userID)
		default:
			return errors.New("invalid role")
		}
		return nil
	})
}

// RemoveUserFromSite revokes both roles on one site.
func (s *SiteStore) RemoveUserFromSite(ctx context.Context, domain string, userID int) error {
	return s.mutate(ctx, domain, func(site *Site) error {
		site.Readers = removeID(site.Readers, userID)
		site.Editors = removeID(site.Editors, userID)
		return nil
	})
}

// RemoveUserFromAllSites revokes a deleted user's roles everywhere.
func (s *SiteStore) RemoveUserFromAllSites(ctx context.Context, userID int) error {
	sites, err := s.backend.ListSites(ctx)
	if err != nil {
		return err
	}
	for _, site := range sites {
		if err := s.RemoveUserFromSite(ctx, site.Domain, userID); err != nil && !errors.Is(err, ErrSiteNotFound) {
			return err
		}
	}
	return nil
}

func removeID(ids []int, target int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// PickProxy satisfies balancer.ProxySource with the https.proxy site's keys.
func (s *SiteStore) PickProxy() (string, bool) {
	tokens, err := s.SiteTokens(context.Background(), ProxySiteDomain)
	if err != nil || len(tokens) == 0 {
		return "", false
	}
	return tokens[rand.Intn(len(tokens))], true
}
