// Command purge maintains the token blacklist out of band: it sweeps entries
// whose expiry has passed and can drop a single token on request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/storage"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	tok := flag.String("token", "", "remove this token from the blacklist")
	every := flag.Duration("every", 0, "repeat the sweep at this interval until interrupted")
	flag.Parse()

	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar().Named("purge")

	cfg, err := config.FromEnv(sugar)
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	if cfg.Backend == config.BackendMemory {
		sugar.Fatal("memory backend has nothing to purge from another process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg, database.ConfigFromEnv(), sugar)
	if err != nil {
		sugar.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	svc, err := newService(cfg, stores, sugar)
	if err != nil {
		sugar.Fatalf("auth service: %v", err)
	}

	if *tok != "" {
		removed, err := svc.Purge(ctx, *tok)
		if err != nil {
			sugar.Fatalf("remove token: %v", err)
		}
		sugar.Infow("manual purge", "removed", removed)
		return
	}

	if err := sweep(ctx, svc, sugar); err != nil {
		sugar.Fatalf("sweep: %v", err)
	}
	if *every <= 0 {
		return
	}

	t := time.NewTicker(*every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			sugar.Info("goodbye")
			return
		case <-t.C:
			if err := sweep(ctx, svc, sugar); err != nil {
				sugar.Warnf("sweep: %v", err)
			}
		}
	}
}

// newService builds the session service over the opened stores so every
// blacklist write goes through it.
func newService(cfg config.Config, stores *storage.Stores, logger *zap.SugaredLogger) (*auth.Service, error) {
	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		Issuer:        cfg.Issuer,
	}, nil)
	if err != nil {
		return nil, err
	}
	return auth.NewService(auth.Dependencies{
		Codec:      codec,
		Sessions:   stores.Sessions,
		Blacklist:  stores.Blacklist,
		Subjects:   user.NewUserService(stores.Users, user.BcryptHasher{Cost: cfg.BcryptCost}),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Logger:     logger,
	})
}

type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

func sweep(ctx context.Context, svc sweeper, logger *zap.SugaredLogger) error {
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	logger.Infow("blacklist swept", "removed", n)
	return nil
}
