package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-manager/cleanup"
	"github.com/jrsteele09/go-session-manager/internal/config"
	"github.com/jrsteele09/go-session-manager/token"
	"github.com/jrsteele09/go-session-manager/token/refresh"
	"github.com/jrsteele09/go-session-manager/token/refresh/postgres"
	refreshrepofake "github.com/jrsteele09/go-session-manager/token/refresh/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running sessiond")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("sessiond stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if c.GetSigningSecret() == "" {
		return errors.New("SIGNING_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newRefreshStore(ctx, c)
	if err != nil {
		return fmt.Errorf("refresh store: %w", err)
	}
	defer closeStore()

	blacklist, err := newBlacklist(ctx, c)
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}

	scheduler, err := cleanup.NewScheduler(
		store,
		blacklist,
		c.GetCleanupInterval(),
		c.GetRetentionGrace(),
		cleanup.WithLogger(log.Logger),
	)
	if err != nil {
		return fmt.Errorf("cleanup scheduler: %w", err)
	}

	scheduler.Start(ctx)
	log.Info().
		Dur("interval", c.GetCleanupInterval()).
		Msg("cleanup scheduler running")

	waitForStopSignal()
	cancel()
	scheduler.Wait()
	return nil
}

func newRefreshStore(ctx context.Context, c config.Config) (refresh.Store, func(), error) {
	dsn := c.GetPostgresDSN()
	if dsn == "" {
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory refresh token store")
		return refreshrepofake.NewFakeRefreshStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Msg("refresh token store backed by postgres")
	return postgres.NewStore(pool), pool.Close, nil
}

func newBlacklist(ctx context.Context, c config.Config) (token.Blacklist, error) {
	if !c.GetBlacklistEnabled() {
		return nil, nil
	}

	addr := c.GetRedisAddr()
	if addr == "" {
		log.Warn().Msg("REDIS_ADDR not set, using in-memory token blacklist")
		return token.NewInMemoryBlacklist(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: c.GetRedisPassword(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	log.Info().Msg("token blacklist backed by redis")
	return token.NewRedisBlacklist(client), nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
