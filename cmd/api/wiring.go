package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/config"
	"github.com/dannybszn/doris-referral/internal/infrastructure/cache/adapter"
	cacheport "github.com/dannybszn/doris-referral/internal/infrastructure/cache/port"
	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	"github.com/dannybszn/doris-referral/internal/infrastructure/database"
	queueAdapter "github.com/dannybszn/doris-referral/internal/infrastructure/queue/adapter"
	queueport "github.com/dannybszn/doris-referral/internal/infrastructure/queue/port"
	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	chatAdapter "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/adapter"
	chatport "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/controller"
	userAdapter "github.com/dannybszn/doris-referral/internal/repository/adapter"
	userport "github.com/dannybszn/doris-referral/internal/repository/port"
)

type storage struct {
	chats  chatport.ChatRepository
	users  userport.UserDirectory
	seeder userport.UserSeeder
	health map[string]controller.Pinger
	close  func()
}

// openStorage connects the configured driver and applies migrations.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var opts []func(*pgxpool.Config)
		if cfg.Storage.MaxConns > 0 {
			opts = append(opts, database.WithMaxConns(int32(cfg.Storage.MaxConns)))
		}
		pool, err := database.Connect(connectCtx, cfg.Storage.DBURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := database.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		users := userAdapter.NewPgUserRepository(pool)
		return &storage{
			chats:  chatAdapter.NewPgChatRepository(pool),
			users:  users,
			seeder: users,
			health: map[string]controller.Pinger{"postgres": controller.PingFunc(pool.Ping)},
			close:  pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		users := userAdapter.NewSqliteUserRepository(db)
		return &storage{
			chats:  chatAdapter.NewSqliteChatRepository(db),
			users:  users,
			seeder: users,
			health: map[string]controller.Pinger{"sqlite": controller.PingFunc(db.PingContext)},
			close:  func() { closeDB(db, log) },
		}, nil

	default:
		log.Warn("memory storage: conversations are lost on restart")
		users := userAdapter.NewMemoryUserRepository()
		return &storage{
			chats:  chatAdapter.NewMemoryChatRepository(),
			users:  users,
			seeder: users,
			close:  func() {},
		}, nil
	}
}

func closeDB(db *sql.DB, log *zap.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("close sqlite", zap.Error(err))
	}
}

type infra struct {
	cache       cacheport.Cache
	router      *realtime.Router
	bus         realtime.Bus
	queueClient queueport.Client
	queueServer queueport.Server
	health      map[string]controller.Pinger
	closers     []func() error
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		_ = i.closers[j]()
	}
}

// openInfra picks Redis-backed cache, fan-out and tasks when REDIS_URL is
// set, and in-process stand-ins otherwise.
func openInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*infra, error) {
	in := &infra{router: realtime.NewRouter(), health: map[string]controller.Pinger{}}

	if cfg.Redis.URL == "" {
		in.cache = adapter.NewMemoryCache(clock.Real())
		in.bus = realtime.NewLocalBus(in.router)
		q := queueAdapter.NewInlineQueue(1024, time.Second, log.Named("tasks"))
		in.queueClient, in.queueServer = q, q
		in.closers = append(in.closers, in.cache.Close, q.Close)
		return in, nil
	}

	client, err := adapter.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	in.closers = append(in.closers, client.Close)
	in.cache = adapter.NewRedisCache(client, "messaging:")
	in.bus = realtime.NewRedisBus(client, realtime.DefaultChannel, in.router, log.Named("bus"))
	in.health["redis"] = controller.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	qc, err := queueAdapter.NewAsynqClient(cfg.Redis.URL)
	if err != nil {
		in.close()
		return nil, fmt.Errorf("asynq client: %w", err)
	}
	in.closers = append(in.closers, qc.Close)
	qs, err := queueAdapter.NewAsynqServer(cfg.Redis.URL, cfg.Queue, log.Named("tasks"))
	if err != nil {
		in.close()
		return nil, fmt.Errorf("asynq server: %w", err)
	}
	in.queueClient, in.queueServer = qc, qs
	in.closers = append(in.closers, in.bus.Close)
	return in, nil
}

func mergeChecks(maps ...map[string]controller.Pinger) map[string]controller.Pinger {
	out := make(map[string]controller.Pinger)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
