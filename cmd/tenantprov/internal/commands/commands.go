package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/logger"
	"github.com/wolfeidau/tenantprov/internal/store"
	"github.com/wolfeidau/tenantprov/internal/store/memory"
	"github.com/wolfeidau/tenantprov/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

// setupLogging installs the process logger and attaches it to ctx.
func setupLogging(ctx context.Context, globals *Globals) context.Context {
	log.Logger = logger.Setup(globals.Debug)
	return log.Logger.WithContext(ctx)
}

type PostgresStoreFlags struct {
	ConnString      string        `help:"PostgreSQL connection string" env:"TENANTPROV_POSTGRES_CONNECTION_STRING"`
	MaxConns        int32         `help:"maximum number of connections in pool" default:"4"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	AutoMigrate     bool          `help:"run database migrations on startup" default:"false" env:"TENANTPROV_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or TENANTPROV_POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) open(ctx context.Context) (*postgres.RunStore, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	runStore, err := postgres.NewRunStore(ctx, &postgres.RunStoreConfig{
		Pool: postgres.PoolConfig{
			ConnString:      s.ConnString,
			MaxConns:        s.MaxConns,
			MaxConnLifetime: s.MaxConnLifetime,
		},
		AutoMigrate: s.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}

	return runStore, nil
}

// openStore returns the run journal selected by storeType and a function
// releasing it.
func openStore(ctx context.Context, storeType string, pg *PostgresStoreFlags) (store.RunStore, func(), error) {
	switch storeType {
	case "memory":
		log.Info().Msg("Using in-memory run journal")
		return memory.NewRunStore(), func() {}, nil
	case "postgres":
		runStore, err := pg.open(ctx)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("Using PostgreSQL run journal")
		return runStore, runStore.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type: %s", storeType)
	}
}

type RedisFlags struct {
	URL     string `help:"Redis URL of the confirmation event channel" env:"TENANTPROV_REDIS_URL"`
	Channel string `help:"Redis pub/sub channel carrying confirmation events" default:"tenantprov:events" env:"TENANTPROV_REDIS_CHANNEL"`
}

func (r *RedisFlags) Enabled() bool {
	return r.URL != ""
}

// source subscribes to confirmation events published on Redis.
func (r *RedisFlags) source(ctx context.Context) (*events.RedisSource, func(), error) {
	client, err := events.NewRedisClient(ctx, r.URL)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	return events.NewRedisSource(client, r.Channel), closer, nil
}

// publisher publishes confirmation events on Redis.
func (r *RedisFlags) publisher(ctx context.Context) (*events.RedisPublisher, func(), error) {
	client, err := events.NewRedisClient(ctx, r.URL)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	return events.NewRedisPublisher(client, r.Channel), closer, nil
}
