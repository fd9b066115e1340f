package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/fakeplatform"
)

type SandboxCmd struct {
	Listen     string        `help:"listen address" default:"127.0.0.1:2020" env:"TENANTPROV_LISTEN"`
	Secret     string        `help:"secret accepted for the system user" default:"sandbox" env:"TENANTPROV_SANDBOX_SECRET"`
	Readiness  time.Duration `help:"how long tenants stay unready after identity assignment" default:"2s"`
	EventDelay time.Duration `help:"delay before each confirmation event is published" default:"0s"`
	Redis      RedisFlags    `embed:"" prefix:"redis-"`
}

func (s *SandboxCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform := fakeplatform.New(fakeplatform.Config{
		Secret:         s.Secret,
		ReadinessDelay: s.Readiness,
		EventDelay:     s.EventDelay,
	})

	if s.Redis.Enabled() {
		publisher, closePublisher, err := s.Redis.publisher(ctx)
		if err != nil {
			return err
		}
		defer closePublisher()

		go func() {
			if err := publisher.Forward(ctx, platform.Events()); err != nil {
				log.Error().Err(err).Msg("Failed to forward events to redis")
			}
		}()
		log.Info().Str("channel", s.Redis.Channel).Msg("Publishing confirmation events to redis")
	} else {
		log.Warn().Msg("No redis URL set, confirmation events are not published")
	}

	log.Info().Str("version", globals.Version).
		Str("provisioner", fakeplatform.ProvisionerPrefix).
		Str("identity", fakeplatform.IdentityPrefix).
		Msg("Starting sandbox platform")

	return platform.Serve(ctx, s.Listen)
}
