package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mapleleafu/pongarena/pongarena-backend/events"
	"github.com/mapleleafu/pongarena/pongarena-backend/handlers"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/config"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/logger"
	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
	"github.com/mapleleafu/pongarena/pongarena-backend/repository"
)

func main() {
    if err := godotenv.Load(); err != nil {
        slog.Info("no .env file loaded", "error", err)
    }

    cfg, err := config.LoadConfig()
    if err != nil {
        slog.Error("invalid configuration", "error", err)
        os.Exit(1)
    }

    log := logger.New(cfg.LogLevel, cfg.LogFormat)
    slog.SetDefault(log)

    if err := run(cfg, log); err != nil {
        log.Error("server stopped with error", "error", err)
        os.Exit(1)
    }
}

func run(cfg *config.Config, log *slog.Logger) error {
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if cfg.RunMigrations {
        if err := repository.Migrate(cfg.PostgresURL(), log); err != nil {
            return err
        }
    }

    db, err := repository.ConnectToPostgreSQL(ctx, cfg.PostgresDSN())
    if err != nil {
        return err
    }
    defer db.Close()
    log.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)

    matchStore := repository.NewMatchStore(db)
    var accounts registry.AccountLookup = repository.NewAccountStore(db)

    if cfg.RedisAddr != "" {
        rdb, err := repository.ConnectRedis(ctx, cfg.RedisAddr)
        if err != nil {
            log.Warn("redis unavailable, username cache disabled", "addr", cfg.RedisAddr, "error", err)
        } else {
            defer rdb.Close()
            accounts = repository.NewCachedAccounts(accounts, rdb, 10*time.Minute, log)
            log.Info("username cache enabled", "addr", cfg.RedisAddr)
        }
    }

    opts := registry.DefaultOptions()

    if cfg.MongoURI != "" {
        mongoClient, err := repository.ConnectMongoDB(ctx, cfg.MongoURI)
        if err != nil {
            log.Warn("mongodb unavailable, match archive disabled", "error", err)
        } else {
            defer mongoClient.Disconnect(context.Background())
            opts.Archiver = repository.NewMongoArchive(mongoClient, cfg.MongoDatabase)
            log.Info("match archive enabled", "database", cfg.MongoDatabase)
        }
    }

    if cfg.NATSURL != "" {
        nc, err := events.Connect(cfg.NATSURL, log)
        if err != nil {
            log.Warn("nats unavailable, match events disabled", "error", err)
        } else {
            pub := events.NewNATSPublisher(nc)
            defer pub.Close()
            opts.Publisher = pub
            log.Info("match events enabled", "subject", events.SubjectMatchEnded)
        }
    }

    reg := registry.New(accounts, matchStore, log, opts)
    validator := handlers.NewJWTValidator(cfg.JWTSecret)
    hub := handlers.NewHub(reg, validator, log, handlers.DefaultHubOptions())
    reg.SetBroadcaster(hub)

    if _, err := reg.Recover(ctx); err != nil {
        log.Error("match recovery failed", "error", err)
    }
    reg.Start()

    games := handlers.NewGameHandler(reg, matchStore, accounts, log)
    srv := &http.Server{
        Addr:              cfg.HTTPAddr,
        Handler:           handlers.NewRouter(hub, games, validator),
        ReadHeaderTimeout: 10 * time.Second,
    }

    errCh := make(chan error, 1)
    go func() {
        log.Info("server running", "addr", cfg.HTTPAddr)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case <-ctx.Done():
        log.Info("shutting down")
    case err := <-errCh:
        if err != nil {
            reg.Stop()
            return err
        }
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    hub.Stop()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Warn("http shutdown", "error", err)
    }
    // Stops the loops and drains pending writes while the stores are still open.
    reg.Stop()
    return nil
}
