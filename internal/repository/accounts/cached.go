package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedDirectory fronts the repository with an in-memory cache of known
// account ids. Only positive lookups are cached so a freshly seeded account
// becomes routable immediately.
type CachedDirectory struct {
	repo *Repository
	c    *cache.Cache
}

// NewCachedDirectory wraps repo; ttl <= 0 means entries never expire
func NewCachedDirectory(repo *Repository, ttl time.Duration) *CachedDirectory {
	exp := ttl
	if exp <= 0 {
		exp = cache.NoExpiration
	}
	return &CachedDirectory{
		repo: repo,
		c:    cache.New(exp, time.Minute*5),
	}
}

// Exists reports whether the account is registered
func (d *CachedDirectory) Exists(ctx context.Context, id string) (bool, error) {
	if _, ok := d.c.Get(id); ok {
		return true, nil
	}

	ok, err := d.repo.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		d.c.SetDefault(id, struct{}{})
	}
	return ok, nil
}

// SetPresence writes through to the repository. An account that turns out
// to be gone is dropped from the cache.
func (d *CachedDirectory) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	err := d.repo.SetPresence(ctx, id, online, lastSeen)
	if errors.Is(err, ErrNotFound) {
		d.Forget(id)
	}
	return err
}

// Forget drops a cached id
func (d *CachedDirectory) Forget(id string) {
	d.c.Delete(id)
}
