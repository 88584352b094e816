package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/storage"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.FromEnv(sugar)
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-auth-go", "backend", cfg.Backend, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg, database.ConfigFromEnv(), sugar)
	if err != nil {
		sugar.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		Issuer:        cfg.Issuer,
	}, nil)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}

	users := user.NewUserService(stores.Users, user.BcryptHasher{Cost: cfg.BcryptCost})
	m := metrics.New()
	sessions, err := auth.NewService(auth.Dependencies{
		Codec:      codec,
		Sessions:   stores.Sessions,
		Blacklist:  stores.Blacklist,
		Subjects:   users,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Logger:     sugar.Named("auth"),
		Metrics:    m,
	})
	if err != nil {
		sugar.Fatalf("auth service: %v", err)
	}

	handler := router.RegisterRoutes(router.Deps{
		Logger:  sugar.Named("http"),
		Users:   user.NewHandler(users, sessions, sugar.Named("user")),
		Auth:    auth.NewHandler(sessions, sugar.Named("auth")),
		Tokens:  sessions,
		Metrics: m.Handler(),
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("listening", "addr", srv.Addr)

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}
