package adapter

import (
	"context"
	"sort"
	"sync"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/repository/port"
)

// MemoryUserRepository keeps the directory in a map.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]chat.User
}

func NewMemoryUserRepository(users ...chat.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[string]chat.User, len(users))}
	_ = r.Upsert(context.Background(), users...)
	return r
}

var (
	_ port.UserDirectory = (*MemoryUserRepository)(nil)
	_ port.UserSeeder    = (*MemoryUserRepository)(nil)
)

func (r *MemoryUserRepository) Upsert(_ context.Context, users ...chat.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.users[u.ID] = u
	}
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (chat.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByIDs(_ context.Context, ids []string) (map[string]chat.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]chat.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) ListByRole(_ context.Context, role chat.Role) ([]chat.User, error) {
	r.mu.RLock()
	out := make([]chat.User, 0)
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	r.mu.RUnlock()
	sortUsers(out)
	return out, nil
}

func sortUsers(users []chat.User) {
	sort.Slice(users, func(i, j int) bool {
		a, b := users[i].DisplayName(), users[j].DisplayName()
		if a != b {
			return a < b
		}
		return users[i].ID < users[j].ID
	})
}
