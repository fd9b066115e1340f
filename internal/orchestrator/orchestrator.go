// Package orchestrator provisions a batch of applications and tenants.
//
// Applications are registered first. Each tenant then goes through
//
//	REGISTERED -> TENANT_CREATED -> IDENTITY_ASSIGNED -> STABILIZING ->
//	APPS_ASSIGNED -> ADMIN_BOOTSTRAPPED
//
// one tenant at a time in batch order. A failure before APPS_ASSIGNED aborts
// the run. A failure while bootstrapping the tenant admin fails only that
// tenant.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantprov/internal/apierror"
	"github.com/wolfeidau/tenantprov/internal/config"
	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/identity"
	"github.com/wolfeidau/tenantprov/internal/models"
	"github.com/wolfeidau/tenantprov/internal/provisioner"
	"github.com/wolfeidau/tenantprov/internal/store"
	"github.com/wolfeidau/tenantprov/internal/store/memory"
	"github.com/wolfeidau/tenantprov/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// Deps are the services the orchestrator drives.
type Deps struct {
	Provisioner provisioner.Client
	Identity    identity.Client

	// Waiter confirms identity mutations. It must be subscribed before Run.
	Waiter events.Waiter

	// Store journals the run. Defaults to an in-memory store.
	Store store.RunStore
}

// discarder is implemented by waiters that buffer events.
type discarder interface {
	Discard()
}

// Orchestrator runs one provisioning batch.
type Orchestrator struct {
	provisioner provisioner.Client
	identity    identity.Client
	waiter      events.Waiter
	store       store.RunStore
	cfg         *config.Config
	metrics     *telemetry.Metrics
}

// New validates cfg and creates an orchestrator over deps.
func New(deps Deps, cfg *config.Config) (*Orchestrator, error) {
	if deps.Provisioner == nil || deps.Identity == nil || deps.Waiter == nil {
		return nil, errors.New("provisioner, identity and waiter are required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runStore := deps.Store
	if runStore == nil {
		runStore = memory.NewRunStore()
	}

	return &Orchestrator{
		provisioner: deps.Provisioner,
		identity:    deps.Identity,
		waiter:      deps.Waiter,
		store:       runStore,
		cfg:         cfg,
		metrics:     telemetry.GetMetrics(),
	}, nil
}

// Run provisions the batch. The returned error is non-nil only when the run
// was aborted; the report is returned in either case.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "provision",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.Int("tenants", len(o.cfg.Tenants)),
		))
	defer span.End()

	report := &Report{RunID: runID, Status: models.RunStatusRunning}

	err = o.store.CreateRun(ctx, &models.Run{
		RunID:     runID,
		Status:    models.RunStatusRunning,
		Tenants:   len(o.cfg.Tenants),
		StartedAt: time.Now(),
	})
	if err != nil {
		return report, fmt.Errorf("failed to journal run: %w", err)
	}

	logger := log.With().Str("run_id", runID.String()).Logger()
	logger.Info().Int("applications", len(o.cfg.Applications)).Int("tenants", len(o.cfg.Tenants)).Msg("Provisioning started")

	runErr := o.run(logger.WithContext(ctx), report)

	switch {
	case runErr != nil:
		report.Status = models.RunStatusAborted
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run aborted")
	case report.Failed() > 0:
		report.Status = models.RunStatusPartial
	default:
		report.Status = models.RunStatusCompleted
	}

	// the run context may be cancelled already
	finishCtx := context.WithoutCancel(ctx)
	if err := o.store.FinishRun(finishCtx, runID, report.Status, time.Now()); err != nil {
		logger.Error().Err(err).Msg("Failed to journal run result")
	}

	logger.Info().
		Str("status", string(report.Status)).
		Int("succeeded", report.Succeeded()).
		Int("failed", report.Failed()).
		Msg("Provisioning finished")

	return report, runErr
}

func (o *Orchestrator) run(ctx context.Context, report *Report) error {
	token, err := o.authenticate(ctx)
	if err != nil {
		return err
	}

	if err := o.system(ctx, token, func(ctx context.Context) error {
		return o.registerApplications(ctx, report)
	}); err != nil {
		return err
	}

	for _, tenant := range o.cfg.Tenants {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := &TenantResult{TenantID: tenant.Identifier, State: StateRegistered}
		report.Tenants = append(report.Tenants, result)
		o.record(ctx, report.RunID, result)

		if err := o.provisionTenant(ctx, token, report.RunID, tenant, result); err != nil {
			return err
		}
	}

	return nil
}

// authenticate obtains the system token used for every provisioner call.
func (o *Orchestrator) authenticate(ctx context.Context) (*oauth2.Token, error) {
	p := o.cfg.Provisioner

	auth, err := o.provisioner.Authenticate(ctx, p.ClientID, p.Username, p.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate as %s: %w", p.Username, err)
	}

	return tokenFrom(auth), nil
}

// system runs fn with the system token installed.
func (o *Orchestrator) system(ctx context.Context, token *oauth2.Token, fn func(context.Context) error) error {
	return credentials.SystemScope(ctx, token, fn)
}

// registerApplications registers every application of the batch. An
// application that is already registered is left as it is.
func (o *Orchestrator) registerApplications(ctx context.Context, report *Report) error {
	logger := zerolog.Ctx(ctx)

	for _, app := range o.cfg.Applications {
		started := time.Now()
		err := o.provisioner.CreateApplication(ctx, models.Application{Name: app.Name, BaseURI: app.URI})
		o.metrics.RecordStep(ctx, "create_application", started, err)

		switch {
		case err == nil:
			report.ApplicationsRegistered++
			o.metrics.ApplicationsRegistered.Add(ctx, 1)
			logger.Info().Str("application", app.Name).Str("uri", app.URI).Msg("Registered application")
		case errors.Is(err, apierror.ErrConflict):
			report.ApplicationsExisting++
			logger.Warn().Str("application", app.Name).Msg("Application already registered, skipping")
		default:
			return fmt.Errorf("failed to register application %s: %w", app.Name, err)
		}
	}

	return nil
}

// provisionTenant drives one tenant through its states. It returns an error
// only when the run must be aborted.
func (o *Orchestrator) provisionTenant(ctx context.Context, token *oauth2.Token, runID uuid.UUID, tenant config.Tenant, result *TenantResult) error {
	started := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "provision_tenant",
		trace.WithAttributes(attribute.String("tenant", tenant.Identifier)))
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Str("tenant", tenant.Identifier).Logger()
	ctx = logger.WithContext(ctx)

	// confirmations left over from an earlier tenant must not satisfy this one
	if d, ok := o.waiter.(discarder); ok {
		d.Discard()
	}

	fail := func(err error) {
		result.FailedIn = result.State
		result.Err = err
		result.Duration = time.Since(started)
		o.advance(ctx, runID, result, StateFailed)
		o.metrics.TenantsFailedTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant failed")
	}

	var adminPassword string
	err := o.system(ctx, token, func(ctx context.Context) error {
		if err := o.step(ctx, "create_tenant", func(ctx context.Context) error {
			return o.provisioner.CreateTenant(ctx, models.Tenant{
				Identifier:  tenant.Identifier,
				Name:        tenant.Name,
				Description: tenant.Description,
				SchemaName:  tenant.Schema,
			})
		}); err != nil {
			return fmt.Errorf("failed to create tenant %s: %w", tenant.Identifier, err)
		}
		o.advance(ctx, runID, result, StateTenantCreated)

		if err := o.step(ctx, "assign_identity_manager", func(ctx context.Context) error {
			imi, err := o.provisioner.AssignIdentityManager(ctx, tenant.Identifier, models.AssignedApplication{Name: o.cfg.Identity.Application})
			if err != nil {
				return err
			}
			if imi.AdminPassword == "" {
				return errors.New("no admin password returned")
			}
			adminPassword = imi.AdminPassword
			return nil
		}); err != nil {
			return fmt.Errorf("failed to assign identity manager to %s: %w", tenant.Identifier, err)
		}
		o.advance(ctx, runID, result, StateIdentityAssigned)

		o.advance(ctx, runID, result, StateStabilizing)
		if err := o.step(ctx, "assign_applications", func(ctx context.Context) error {
			return o.assignApplications(ctx, tenant.Identifier)
		}); err != nil {
			return fmt.Errorf("failed to assign applications to %s: %w", tenant.Identifier, err)
		}
		o.advance(ctx, runID, result, StateAppsAssigned)

		return nil
	})
	if err != nil {
		fail(err)
		logger.Error().Err(err).Str("state", string(result.FailedIn)).Msg("Tenant provisioning aborted")
		return err
	}

	// identity calls run outside the system scope, so the system token is
	// never sent to the identity service
	err = o.step(ctx, "bootstrap_admin", func(ctx context.Context) error {
		return o.bootstrapAdmin(ctx, tenant.Identifier, adminPassword)
	})
	if err != nil {
		fail(err)
		if ctx.Err() != nil {
			return fmt.Errorf("failed to bootstrap admin of %s: %w", tenant.Identifier, err)
		}
		logger.Error().Err(err).Msg("Tenant admin bootstrap failed, continuing with next tenant")
		return nil
	}

	result.Duration = time.Since(started)
	o.advance(ctx, runID, result, StateAdminBootstrapped)
	o.metrics.TenantsProvisionedTotal.Add(ctx, 1)
	logger.Info().Dur("duration", result.Duration).Msg("Tenant provisioned")

	return nil
}

// step runs fn as a named, timed provisioning step.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, name)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	o.metrics.RecordStep(ctx, name, started, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}

	return err
}

// advance moves result to state and journals the transition.
func (o *Orchestrator) advance(ctx context.Context, runID uuid.UUID, result *TenantResult, state State) {
	logger := zerolog.Ctx(ctx)

	if !CanTransition(result.State, state) {
		logger.Error().Str("from", string(result.State)).Str("to", string(state)).Msg("Illegal tenant state transition")
		return
	}

	result.State = state
	logger.Debug().Str("state", string(state)).Msg("Tenant state changed")
	o.record(ctx, runID, result)
}

func (o *Orchestrator) record(ctx context.Context, runID uuid.UUID, result *TenantResult) {
	rec := &models.TenantRecord{
		RunID:     runID,
		TenantID:  result.TenantID,
		State:     string(result.State),
		UpdatedAt: time.Now(),
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}

	if err := o.store.RecordTransition(context.WithoutCancel(ctx), rec); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("state", rec.State).Msg("Failed to journal tenant state")
	}
}
