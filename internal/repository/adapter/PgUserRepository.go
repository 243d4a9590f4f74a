package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/repository/port"
)

// PgUserRepository reads the users table owned by the identity service.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

var (
	_ port.UserDirectory = (*PgUserRepository)(nil)
	_ port.UserSeeder    = (*PgUserRepository)(nil)
)

const pgUserColumns = `id, role, first_name, last_name, company_name, avatar`

func (r *PgUserRepository) FindByID(ctx context.Context, id string) (chat.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return chat.User{}, fmt.Errorf("pg: find user: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[chat.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("pg: find user: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]chat.User, error) {
	out := make(map[string]chat.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("pg: find users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[chat.User])
	if err != nil {
		return nil, fmt.Errorf("pg: find users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *PgUserRepository) ListByRole(ctx context.Context, role chat.Role) ([]chat.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users WHERE role = $1`, string(role))
	if err != nil {
		return nil, fmt.Errorf("pg: list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[chat.User])
	if err != nil {
		return nil, fmt.Errorf("pg: list users: %w", err)
	}
	sortUsers(users)
	return users, nil
}

func (r *PgUserRepository) Upsert(ctx context.Context, users ...chat.User) error {
	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(`INSERT INTO users (`+pgUserColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name, company_name = EXCLUDED.company_name, avatar = EXCLUDED.avatar`,
			u.ID, string(u.Role), u.FirstName, u.LastName, u.CompanyName, u.Avatar)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pg: upsert users: %w", err)
	}
	return nil
}
