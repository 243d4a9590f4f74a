package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/repository/port"
)

// SqliteUserRepository reads users from the local SQLite database.
type SqliteUserRepository struct {
	db *sql.DB
}

func NewSqliteUserRepository(db *sql.DB) *SqliteUserRepository {
	return &SqliteUserRepository{db: db}
}

var (
	_ port.UserDirectory = (*SqliteUserRepository)(nil)
	_ port.UserSeeder    = (*SqliteUserRepository)(nil)
)

const sqliteUserColumns = `id, role, first_name, last_name, company_name, avatar`

func scanSqliteUser(s interface{ Scan(...any) error }) (chat.User, error) {
	var u chat.User
	var role string
	if err := s.Scan(&u.ID, &role, &u.FirstName, &u.LastName, &u.CompanyName, &u.Avatar); err != nil {
		return chat.User{}, err
	}
	u.Role = chat.Role(role)
	return u, nil
}

func (r *SqliteUserRepository) FindByID(ctx context.Context, id string) (chat.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id)
	u, err := scanSqliteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.User{}, chat.ErrUserNotFound
	}
	if err != nil {
		return chat.User{}, fmt.Errorf("sqlite: find user: %w", err)
	}
	return u, nil
}

func (r *SqliteUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]chat.User, error) {
	out := make(map[string]chat.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + sqliteUserColumns + ` FROM users WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	users, err := r.queryUsers(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *SqliteUserRepository) ListByRole(ctx context.Context, role chat.Role) ([]chat.User, error) {
	users, err := r.queryUsers(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE role = ?`, string(role))
	if err != nil {
		return nil, err
	}
	sortUsers(users)
	return users, nil
}

func (r *SqliteUserRepository) queryUsers(ctx context.Context, q string, args ...any) ([]chat.User, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query users: %w", err)
	}
	defer rows.Close()
	var users []chat.User
	for rows.Next() {
		u, err := scanSqliteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SqliteUserRepository) Upsert(ctx context.Context, users ...chat.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (`+sqliteUserColumns+`) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET role = excluded.role, first_name = excluded.first_name,
  last_name = excluded.last_name, company_name = excluded.company_name, avatar = excluded.avatar`,
			u.ID, string(u.Role), u.FirstName, u.LastName, u.CompanyName, u.Avatar); err != nil {
			return fmt.Errorf("sqlite: upsert user %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}
