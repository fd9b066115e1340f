package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/client"
	"github.com/wolfeidau/tenantprov/internal/config"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/fakeplatform"
	"github.com/wolfeidau/tenantprov/internal/identity"
	"github.com/wolfeidau/tenantprov/internal/orchestrator"
	"github.com/wolfeidau/tenantprov/internal/provisioner"
	"github.com/wolfeidau/tenantprov/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// demoTenants are provisioned by --sandbox when no tenants are given.
var demoTenants = []string{"playground", "demo-cccu", "SKCUKNS1", "PCCUKNS1", "FCCUKNS1", "NCCUKNN1"}

type ProvisionCmd struct {
	Config    string        `help:"path to the batch file" type:"existingfile" env:"TENANTPROV_CONFIG" xor:"batch"`
	Sandbox   bool          `help:"provision against an in-process fake platform" default:"false" env:"TENANTPROV_SANDBOX" xor:"batch"`
	Tenants   []string      `help:"tenants to provision in sandbox mode"`
	Listen    string        `help:"sandbox listen address" default:"127.0.0.1:0" env:"TENANTPROV_LISTEN"`
	Readiness time.Duration `help:"how long sandbox tenants stay unready after identity assignment" default:"2s"`
	KeepAlive bool          `help:"keep running after provisioning until interrupted" default:"false" env:"TENANTPROV_KEEP_ALIVE"`
	Timeout   time.Duration `help:"timeout of each API call" default:"30s" env:"TENANTPROV_HTTP_TIMEOUT"`
	Tracing   bool          `help:"enable tracing" default:"false" env:"TENANTPROV_TRACING"`

	StoreType     string             `help:"run journal type (memory or postgres)" default:"memory" env:"TENANTPROV_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Redis         RedisFlags         `embed:"" prefix:"redis-"`
}

func (p *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	ctx = setupLogging(ctx, globals)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !p.Sandbox && p.Config == "" {
		return errors.New("a batch file is required (--config or TENANTPROV_CONFIG) unless --sandbox is set")
	}

	if p.Tracing {
		batch := p.Config
		if p.Sandbox {
			batch = "sandbox"
		}
		shutdown, err := telemetry.InitTelemetry(ctx, "tenantprov", globals.Version, attribute.String("tenantprov.batch", batch))
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	runStore, closeStore, err := openStore(ctx, p.StoreType, &p.PostgresStore)
	if err != nil {
		return err
	}
	defer closeStore()

	// the sandbox and the event subscription outlive the run when --keep-alive is set
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		cfg      *config.Config
		source   events.Source
		platform *fakeplatform.Platform
	)

	if p.Sandbox {
		platform, cfg, err = p.startSandbox(ctx)
		if err != nil {
			return err
		}
		source = platform.Events()
	} else {
		cfg, err = config.Load(p.Config)
		if err != nil {
			return err
		}
	}

	switch {
	case p.Redis.Enabled():
		if platform != nil {
			publisher, closePublisher, err := p.Redis.publisher(ctx)
			if err != nil {
				return err
			}
			defer closePublisher()
			go func() {
				if err := publisher.Forward(ctx, platform.Events()); err != nil {
					log.Error().Err(err).Msg("Failed to forward sandbox events to redis")
				}
			}()
		}

		redisSource, closeSource, err := p.Redis.source(ctx)
		if err != nil {
			return err
		}
		defer closeSource()
		source = redisSource
	case source == nil:
		return errors.New("a confirmation event source is required (--redis-url or TENANTPROV_REDIS_URL)")
	}

	recorder := events.NewRecorder(0)
	if err := recorder.Start(ctx, source); err != nil {
		return fmt.Errorf("failed to subscribe to confirmation events: %w", err)
	}

	clientConfig := client.DefaultConfig()
	clientConfig.Timeout = p.Timeout
	clientConfig.Logger = log.Logger

	clientConfig.BaseURL = cfg.Provisioner.URL
	prov, err := provisioner.New(clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create provisioner client: %w", err)
	}

	clientConfig.BaseURL = cfg.Identity.URL
	ident, err := identity.New(clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create identity client: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Provisioner: prov,
		Identity:    ident,
		Waiter:      recorder,
		Store:       runStore,
	}, cfg)
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if runErr != nil {
		return fmt.Errorf("provisioning aborted: %w", runErr)
	}

	for _, app := range cfg.Applications {
		fmt.Printf("%s: %s\n", app.Name, app.URI)
	}

	if p.KeepAlive {
		log.Info().Msg("Provisioning finished, press Ctrl+C to exit")
		<-ctx.Done()
	}

	return nil
}

// startSandbox serves a fake platform for the lifetime of ctx and returns a
// batch targeting it.
func (p *ProvisionCmd) startSandbox(ctx context.Context) (*fakeplatform.Platform, *config.Config, error) {
	ln, err := net.Listen("tcp", p.Listen)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", p.Listen, err)
	}

	platform := fakeplatform.New(fakeplatform.Config{ReadinessDelay: p.Readiness})
	go func() {
		if err := platform.ServeListener(ctx, ln); err != nil {
			log.Error().Err(err).Msg("Sandbox platform failed")
		}
	}()

	tenants := p.Tenants
	if len(tenants) == 0 {
		tenants = demoTenants
	}

	baseURL := "http://" + ln.Addr().String()
	log.Info().Str("url", baseURL).Strs("tenants", tenants).Msg("Started sandbox platform")

	return platform, config.Sandbox(baseURL, tenants...), nil
}

func printReport(report *orchestrator.Report) {
	fmt.Printf("Run %s: %s\n", report.RunID, report.Status)
	fmt.Printf("Applications: %d registered, %d already present\n", report.ApplicationsRegistered, report.ApplicationsExisting)

	for _, t := range report.Tenants {
		switch {
		case t.Err != nil:
			fmt.Printf("  %-20s %-20s (in %s) %v\n", t.TenantID, t.State, t.FailedIn, t.Err)
		default:
			fmt.Printf("  %-20s %-20s %s\n", t.TenantID, t.State, t.Duration.Round(time.Millisecond))
		}
	}
}
