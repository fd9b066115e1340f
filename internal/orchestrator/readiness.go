package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantprov/internal/apierror"
	"github.com/wolfeidau/tenantprov/internal/models"
)

// assignApplications assigns every non-identity application to the tenant.
// The tenant rejects the assignment with a precondition failure until its
// identity service and schema are ready, so that failure is retried with
// exponential backoff within the configured bounds. Any other failure is
// returned at once.
func (o *Orchestrator) assignApplications(ctx context.Context, tenantID string) error {
	others := o.cfg.OtherApplications()
	if len(others) == 0 {
		return nil
	}

	names := make([]string, 0, len(others))
	for _, app := range others {
		names = append(names, app.Name)
	}
	apps := models.AssignedApplicationsFor(names...)

	r := o.cfg.Readiness
	logger := zerolog.Ctx(ctx)

	if r.Settle > 0 {
		timer := time.NewTimer(r.Settle)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := o.provisioner.AssignApplications(ctx, tenantID, apps)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, apierror.ErrPrecondition):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(r.MaxElapsed),
		backoff.WithMaxTries(r.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.metrics.ReadinessRetriesTotal.Add(ctx, 1)
			logger.Debug().Err(err).Dur("next", next).Msg("Tenant not ready, retrying application assignment")
		}),
	)
	if err != nil {
		if errors.Is(err, apierror.ErrPrecondition) {
			return fmt.Errorf("tenant not ready after %d attempts: %w", attempts, err)
		}
		return err
	}

	return o.verifyAssignment(ctx, tenantID, names)
}

// verifyAssignment checks that the tenant reports every expected application.
func (o *Orchestrator) verifyAssignment(ctx context.Context, tenantID string, expected []string) error {
	assigned, err := o.provisioner.GetAssignedApplications(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to read assigned applications: %w", err)
	}

	have := make(map[string]bool, len(assigned))
	for _, app := range assigned {
		have[app.Name] = true
	}

	var missing []string
	for _, name := range append([]string{o.cfg.Identity.Application}, expected...) {
		if !have[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("applications missing after assignment: %v", missing)
	}

	return nil
}
