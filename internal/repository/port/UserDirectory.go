package port

import (
	"context"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
)

// UserDirectory is the read-only view of the identity service that the
// messaging core needs. The core never writes user records.
type UserDirectory interface {
	// FindByID returns chat.ErrUserNotFound when id is unknown.
	FindByID(ctx context.Context, id string) (chat.User, error)
	// FindByIDs returns the users that exist; unknown ids are omitted.
	FindByIDs(ctx context.Context, ids []string) (map[string]chat.User, error)
	// ListByRole returns every user with role, ordered by display name.
	ListByRole(ctx context.Context, role chat.Role) ([]chat.User, error)
}

// UserSeeder loads directory entries for standalone deployments and tests.
type UserSeeder interface {
	Upsert(ctx context.Context, users ...chat.User) error
}
