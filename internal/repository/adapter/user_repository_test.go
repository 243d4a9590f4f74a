package adapter

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	cacheadapter "github.com/dannybszn/doris-referral/internal/infrastructure/cache/adapter"
	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	"github.com/dannybszn/doris-referral/internal/infrastructure/database"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/repository/port"
)

var directoryFixture = []chat.User{
	{ID: "a1", Role: chat.RoleAgency, CompanyName: "Bright Models"},
	{ID: "m1", Role: chat.RoleModel, FirstName: "Zoe", LastName: "Adams"},
	{ID: "m2", Role: chat.RoleModel, FirstName: "Ana", LastName: "Lima"},
	{ID: "x1", Role: chat.RoleAdmin, FirstName: "Root"},
}

func newSqliteDirectory(t *testing.T) *SqliteUserRepository {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSqliteUserRepository(db)
}

func exerciseDirectory(t *testing.T, dir port.UserDirectory, seed port.UserSeeder) {
	t.Helper()
	ctx := context.Background()
	if err := seed.Upsert(ctx, directoryFixture...); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	u, err := dir.FindByID(ctx, "a1")
	if err != nil || u.Role != chat.RoleAgency || u.CompanyName != "Bright Models" {
		t.Fatalf("FindByID(a1) = (%+v, %v)", u, err)
	}
	if _, err := dir.FindByID(ctx, "nobody"); !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("FindByID(nobody) error = %v, want ErrUserNotFound", err)
	}

	found, err := dir.FindByIDs(ctx, []string{"m1", "nobody", "x1"})
	if err != nil {
		t.Fatalf("FindByIDs failed: %v", err)
	}
	if len(found) != 2 || found["m1"].FirstName != "Zoe" || found["x1"].Role != chat.RoleAdmin {
		t.Fatalf("FindByIDs = %+v", found)
	}

	talents, err := dir.ListByRole(ctx, chat.RoleModel)
	if err != nil {
		t.Fatalf("ListByRole failed: %v", err)
	}
	if len(talents) != 2 || talents[0].ID != "m2" || talents[1].ID != "m1" {
		t.Fatalf("ListByRole(model) = %+v, want [m2 m1] by display name", talents)
	}

	// Upsert overwrites.
	if err := seed.Upsert(ctx, chat.User{ID: "m1", Role: chat.RoleModel, FirstName: "Zoey"}); err != nil {
		t.Fatal(err)
	}
	if u, _ := dir.FindByID(ctx, "m1"); u.FirstName != "Zoey" {
		t.Fatalf("after upsert FirstName = %q, want Zoey", u.FirstName)
	}
}

func TestMemoryUserRepository(t *testing.T) {
	r := NewMemoryUserRepository()
	exerciseDirectory(t, r, r)
}

func TestSqliteUserRepository(t *testing.T) {
	r := newSqliteDirectory(t)
	exerciseDirectory(t, r, r)
}

type countingDirectory struct {
	port.UserDirectory
	byID  atomic.Int32
	byIDs atomic.Int32
}

func (c *countingDirectory) FindByID(ctx context.Context, id string) (chat.User, error) {
	c.byID.Add(1)
	return c.UserDirectory.FindByID(ctx, id)
}

func (c *countingDirectory) FindByIDs(ctx context.Context, ids []string) (map[string]chat.User, error) {
	c.byIDs.Add(1)
	return c.UserDirectory.FindByIDs(ctx, ids)
}

func TestCachedUserRepository(t *testing.T) {
	ctx := context.Background()
	fc := clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	inner := &countingDirectory{UserDirectory: NewMemoryUserRepository(directoryFixture...)}
	r := NewCachedUserRepository(inner, cacheadapter.NewMemoryCache(fc), time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := r.FindByID(ctx, "a1"); err != nil {
			t.Fatal(err)
		}
	}
	if got := inner.byID.Load(); got != 1 {
		t.Fatalf("inner FindByID called %d times, want 1", got)
	}

	// a1 is cached; only m1 should reach the inner directory.
	found, err := r.FindByIDs(ctx, []string{"a1", "m1"})
	if err != nil || len(found) != 2 {
		t.Fatalf("FindByIDs = (%v, %v)", found, err)
	}
	if _, err := r.FindByIDs(ctx, []string{"a1", "m1"}); err != nil {
		t.Fatal(err)
	}
	if got := inner.byIDs.Load(); got != 1 {
		t.Fatalf("inner FindByIDs called %d times, want 1", got)
	}

	// Misses are not cached.
	if _, err := r.FindByID(ctx, "ghost"); !errors.Is(err, chat.ErrUserNotFound) {
		t.Fatalf("FindByID(ghost) = %v", err)
	}

	fc.Advance(time.Minute)
	if _, err := r.FindByID(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if got := inner.byID.Load(); got != 3 {
		t.Fatalf("after expiry inner FindByID called %d times, want 3", got)
	}

	if err := r.Invalidate(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	_, _ = r.FindByID(ctx, "a1")
	if got := inner.byID.Load(); got != 4 {
		t.Fatalf("after invalidate inner FindByID called %d times, want 4", got)
	}
}
