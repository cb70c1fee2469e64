package abac

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedDirectory decorates a Directory with a short-TTL ristretto cache over
// profile lookups. Only directory reads are cached; decisions are always
// fully re-evaluated, so a stale profile can at worst lag an HR change by the
// TTL.
type CachedDirectory struct {
	next  Directory
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedDirectory(next Directory, ttl time.Duration) (*CachedDirectory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedDirectory{next: next, cache: cache, ttl: ttl}, nil
}

func (d *CachedDirectory) GetEmployeeProfile(ctx context.Context, userID string) (*EmployeeProfile, error) {
	if v, ok := d.cache.Get(userID); ok {
		profile, _ := v.(*EmployeeProfile)
		return profile, nil
	}
	profile, err := d.next.GetEmployeeProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	// absent profiles are cached too (typed nil), so directory misses do not
	// hammer the backend
	d.cache.SetWithTTL(userID, profile, 1, d.ttl)
	return profile, nil
}

// Invalidate evicts one subject's cached profile.
func (d *CachedDirectory) Invalidate(userID string) {
	d.cache.Del(userID)
}
