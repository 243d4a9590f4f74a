package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	v1 "github.com/dannybszn/doris-referral/cmd/api/router/v1"
	"github.com/dannybszn/doris-referral/internal/config"
	"github.com/dannybszn/doris-referral/internal/infrastructure/auth"
	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	"github.com/dannybszn/doris-referral/internal/infrastructure/logging"
	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/moderation"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/task"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	httpHandler "github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/http"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/notify"
	userAdapter "github.com/dannybszn/doris-referral/internal/repository/adapter"
	userport "github.com/dannybszn/doris-referral/internal/repository/port"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	seedUsers := pflag.String("seed-users", "", "JSON file of users to upsert into the directory at startup")
	issueToken := pflag.String("issue-token", "", "print a signed token for this user id and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		tok, err := auth.GenerateToken(&cfg.Auth, *issueToken, "", time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedUsers, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, seedPath string, log *zap.Logger) error {
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	clk := clock.Real()
	dir := userAdapter.NewCachedUserRepository(st.users, infra.cache, cfg.Messaging.UserCacheTTL, log)
	if seedPath != "" {
		n, err := seed(ctx, st.seeder, dir, seedPath)
		if err != nil {
			return err
		}
		log.Info("directory seeded", zap.String("file", seedPath), zap.Int("users", n))
	}
	store := usecase.NewMessageStore(st.chats, clk, cfg.Messaging.PageSize, cfg.Messaging.MaxLength)
	manager := usecase.NewConversationManager(st.chats, dir, store, clk, notify.NewBusNotifier(infra.bus, dir, log), log)
	send := usecase.NewSendMessageUseCase(manager, store, moderation.NewFilter(), dir, task.NewResyncScheduler(infra.queueClient, "chat"), log)
	task.RegisterResyncConversationTask(infra.queueServer, manager)

	gin.SetMode(cfg.HTTP.Mode)
	r := gin.New()
	r.Use(logging.GinLogger(log), logging.GinRecovery(log))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	v1.RegisterRoutes(r, httpHandler.Deps{
		Auth:           &cfg.Auth,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Log:            log,
		Manager:        manager,
		Messages:       store,
		Send:           send,
		Users:          dir,
		Router:         infra.router,
		Stream:         realtime.Options{SendBuffer: cfg.Realtime.SendBuffer, PingPeriod: cfg.Realtime.PingPeriod},
		Health:         mergeChecks(st.health, infra.health),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go func() {
		if err := infra.bus.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("event bus: %w", err)
		}
	}()
	go func() {
		if err := infra.queueServer.Run(bgCtx); err != nil {
			errCh <- fmt.Errorf("task server: %w", err)
		}
	}()
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.Bool("redis", cfg.Redis.URL != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
	}

	// Streams never finish on their own; close them before draining requests.
	infra.router.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancelBg()
	_ = infra.queueServer.Stop(shutdownCtx)
	return runErr
}

// seed upserts the users listed in the JSON file at path and evicts them from
// the shared cache, which may still hold entries written by another node.
func seed(ctx context.Context, seeder userport.UserSeeder, cache *userAdapter.CachedUserRepository, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("seed users: %w", err)
	}
	var users []chat.User
	if err := json.Unmarshal(b, &users); err != nil {
		return 0, fmt.Errorf("seed users: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID == "" || !u.Role.Valid() {
			return 0, fmt.Errorf("seed users: invalid entry %+v", u)
		}
		ids = append(ids, u.ID)
	}
	if err := seeder.Upsert(ctx, users...); err != nil {
		return 0, err
	}
	if err := cache.Invalidate(ctx, ids...); err != nil {
		return 0, fmt.Errorf("seed users: invalidate cache: %w", err)
	}
	return len(users), nil
}
