package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	cacheport "github.com/dannybszn/doris-referral/internal/infrastructure/cache/port"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/repository/port"
)

// CachedUserRepository memoizes lookups by id. Cache failures fall through
// to the inner directory; they never fail a request.
type CachedUserRepository struct {
	inner port.UserDirectory
	cache cacheport.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedUserRepository(inner port.UserDirectory, cache cacheport.Cache, ttl time.Duration, log *zap.Logger) *CachedUserRepository {
	return &CachedUserRepository{inner: inner, cache: cache, ttl: ttl, log: log}
}

var _ port.UserDirectory = (*CachedUserRepository)(nil)

func userKey(id string) string { return "user:" + id }

func (r *CachedUserRepository) FindByID(ctx context.Context, id string) (chat.User, error) {
	if u, ok := r.lookup(ctx, id); ok {
		return u, nil
	}
	u, err := r.inner.FindByID(ctx, id)
	if err != nil {
		return chat.User{}, err
	}
	r.store(ctx, u)
	return u, nil
}

func (r *CachedUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]chat.User, error) {
	out := make(map[string]chat.User, len(ids))
	var missing []string
	for _, id := range ids {
		if u, ok := r.lookup(ctx, id); ok {
			out[id] = u
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	found, err := r.inner.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range found {
		out[id] = u
		r.store(ctx, u)
	}
	return out, nil
}

// ListByRole is not cached; the talent list changes as users register.
func (r *CachedUserRepository) ListByRole(ctx context.Context, role chat.Role) ([]chat.User, error) {
	return r.inner.ListByRole(ctx, role)
}

// Invalidate drops cached entries for ids.
func (r *CachedUserRepository) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	_, err := r.cache.Del(ctx, keys...)
	return err
}

func (r *CachedUserRepository) lookup(ctx context.Context, id string) (chat.User, bool) {
	raw, err := r.cache.Get(ctx, userKey(id))
	if err != nil {
		if !errors.Is(err, cacheport.ErrMiss) {
			r.log.Warn("user cache get failed", zap.String("user_id", id), zap.Error(err))
		}
		return chat.User{}, false
	}
	var u chat.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		_, _ = r.cache.Del(ctx, userKey(id))
		return chat.User{}, false
	}
	return u, true
}

func (r *CachedUserRepository) store(ctx context.Context, u chat.User) {
	raw, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, userKey(u.ID), string(raw), r.ttl); err != nil {
		r.log.Warn("user cache set failed", zap.String("user_id", u.ID), zap.Error(err))
	}
}
