package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FileBackend stores each document as a JSON file under a base directory:
// sites/<domain>.json, users/<id>.json, config.json.
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	sites   map[string]*Site
	users   map[int]*User
	config  map[string]string
}

// NewFileBackend creates a file-based storage backend rooted at baseDir.
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{
		baseDir: baseDir,
		sites:   make(map[string]*Site),
		users:   make(map[int]*User),
		config:  make(map[string]string),
	}
}

func (f *FileBackend) Initialize(ctx context.Context) error {
	for _, dir := range []string{
		filepath.Join(f.baseDir, "sites"),
		filepath.Join(f.baseDir, "users"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := f.loadAll(); err != nil {
		return fmt.Errorf("load existing data: %w", err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) Health(ctx context.Context) error {
	_, err := os.Stat(f.baseDir)
	return err
}

func (f *FileBackend) loadAll() error {
	siteFiles, err := filepath.Glob(filepath.Join(f.baseDir, "sites", "*.json"))
	if err != nil {
		return err
	}
	for _, path := range siteFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var site Site
		if err := json.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		f.sites[site.Domain] = &site
	}

	userFiles, err := filepath.Glob(filepath.Join(f.baseDir, "users", "*.json"))
	if err != nil {
		return err
	}
	for _, path := range userFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var user User
		if err := json.Unmarshal(data, &user); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		f.users[user.ID] = &user
	}

	cfgPath := filepath.Join(f.baseDir, "config.json")
	if data, err := os.ReadFile(cfgPath); err == nil {
		if err := json.Unmarshal(data, &f.config); err != nil {
			return fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeJSON persists a document atomically: temp file then rename.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// siteFilename maps a domain onto a safe file name.
func siteFilename(domain string) string {
	return url.PathEscape(strings.ToLower(domain)) + ".json"
}

func (f *FileBackend) sitePath(domain string) string {
	return filepath.Join(f.baseDir, "sites", siteFilename(domain))
}

func (f *FileBackend) userPath(id int) string {
	return filepath.Join(f.baseDir, "users", strconv.Itoa(id)+".json")
}

func (f *FileBackend) GetSite(ctx context.Context, domain string) (*Site, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	site, ok := f.sites[domain]
	if !ok {
		return nil, &ErrNotFound{Key: domain}
	}
	return site.Clone(), nil
}

func (f *FileBackend) SetSite(ctx context.Context, site *Site) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites[site.Domain] = site.Clone()
	return writeJSON(f.sitePath(site.Domain), site)
}

func (f *FileBackend) DeleteSite(ctx context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sites[domain]; !ok {
		return &ErrNotFound{Key: domain}
	}
	delete(f.sites, domain)
	if err := os.Remove(f.sitePath(domain)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileBackend) ListSites(ctx context.Context) ([]*Site, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Site, 0, len(f.sites))
	for _, site := range f.sites {
		out = append(out, site.Clone())
	}
	return out, nil
}

func (f *FileBackend) GetUser(ctx context.Context, id int) (*User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	user, ok := f.users[id]
	if !ok {
		return nil, &ErrNotFound{Key: strconv.Itoa(id)}
	}
	copied := *user
	return &copied, nil
}

func (f *FileBackend) SetUser(ctx context.Context, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.ID] = &copied
	return writeJSON(f.userPath(user.ID), user)
}

func (f *FileBackend) DeleteUser(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return &ErrNotFound{Key: strconv.Itoa(id)}
	}
	delete(f.users, id)
	if err := os.Remove(f.userPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (f *FileBackend) ListUsers(ctx context.Context) ([]*User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*User, 0, len(f.users))
	for _, user := range f.users {
		copied := *user
		out = append(out, &copied)
	}
	return out, nil
}

func (f *FileBackend) GetConfig(ctx context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.config[key]
	if !ok {
		return "", &ErrNotFound{Key: key}
	}
	return value, nil
}

func (f *FileBackend) SetConfig(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = value
	return writeJSON(filepath.Join(f.baseDir, "config.json"), f.config)
}
