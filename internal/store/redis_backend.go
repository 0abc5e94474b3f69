package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend persists documents as JSON values under prefixed keys.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis storage backend.
func NewRedisBackend(addr, password string, db int, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "keybalancer:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) siteKey(domain string) string { return r.prefix + "site:" + domain }
func (r *RedisBackend) userKey(id int) string        { return r.prefix + "user:" + strconv.Itoa(id) }

func (r *RedisBackend) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return &ErrNotFound{Key: key}
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (r *RedisBackend) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, data, 0).Err()
}

func (r *RedisBackend) GetSite(ctx context.Context, domain string) (*Site, error) {
	var site Site
	if err := r.getJSON(ctx, r.siteKey(domain), &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *RedisBackend) SetSite(ctx context.Context, site *Site) error {
	if err := r.setJSON(ctx, r.siteKey(site.Domain), site); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.prefix+"sites", site.Domain).Err()
}

func (r *RedisBackend) DeleteSite(ctx context.Context, domain string) error {
	removed, err := r.client.Del(ctx, r.siteKey(domain)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return &ErrNotFound{Key: domain}
	}
	return r.client.SRem(ctx, r.prefix+"sites", domain).Err()
}

func (r *RedisBackend) ListSites(ctx context.Context) ([]*Site, error) {
	domains, err := r.client.SMembers(ctx, r.prefix+"sites").Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Site, 0, len(domains))
	for _, domain := range domains {
		site, err := r.GetSite(ctx, domain)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, site)
	}
	return out, nil
}

func (r *RedisBackend) GetUser(ctx context.Context, id int) (*User, error) {
	var user User
	if err := r.getJSON(ctx, r.userKey(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *RedisBackend) SetUser(ctx context.Context, user *User) error {
	if err := r.setJSON(ctx, r.userKey(user.ID), user); err != nil {
		return err
	}
	return r.client.SAdd(ctx, r.prefix+"users", strconv.Itoa(user.ID)).Err()
}

func (r *RedisBackend) DeleteUser(ctx context.Context, id int) error {
	removed, err := r.client.Del(ctx, r.userKey(id)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return &ErrNotFound{Key: strconv.Itoa(id)}
	}
	return r.client.SRem(ctx, r.prefix+"users", strconv.Itoa(id)).Err()
}

func (r *RedisBackend) ListUsers(ctx context.Context) ([]*User, error) {
	ids, err := r.client.SMembers(ctx, r.prefix+"users").Result()
	if err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		user, err := r.GetUser(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, user)
	}
	return out, nil
}

func (r *RedisBackend) GetConfig(ctx context.Context, key string) (string, error) {
	value, err := r.client.HGet(ctx, r.prefix+"config", key).Result()
	if err == redis.Nil {
		return "", &ErrNotFound{Key: key}
	}
	return value, err
}

func (r *RedisBackend) SetConfig(ctx context.Context, key, value string) error {
	return r.client.HSet(ctx, r.prefix+"config", key, value).Err()
}
