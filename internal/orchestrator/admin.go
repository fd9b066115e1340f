package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantprov/internal/apierror"
	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/logger"
	"github.com/wolfeidau/tenantprov/internal/models"
	"golang.org/x/oauth2"
)

// bootstrapAdmin replaces the tenant admin's one-time password, then creates
// the organisation admin role and its first user. Every mutation waits for
// its confirmation event before the next one is issued.
func (o *Orchestrator) bootstrapAdmin(ctx context.Context, tenantID, oneTimePassword string) error {
	admin := o.cfg.TenantAdmin

	return credentials.TenantScope(ctx, tenantID, func(ctx context.Context) error {
		zerolog.Ctx(ctx).Debug().
			Str("user", admin.User).
			Str("password_fingerprint", logger.Fingerprint(oneTimePassword)).
			Msg("Logging in with one-time password")

		auth, err := o.identity.Login(ctx, admin.User, oneTimePassword)
		if err != nil {
			return fmt.Errorf("failed to log in as %s with one-time password: %w", admin.User, err)
		}

		err = credentials.UserScope(ctx, admin.User, tokenFrom(auth), func(ctx context.Context) error {
			if err := o.identity.ChangeUserPassword(ctx, admin.User, admin.Password); err != nil {
				return fmt.Errorf("failed to change password of %s: %w", admin.User, err)
			}
			return o.confirm(ctx, events.OperationPutUserPassword, admin.User)
		})
		if err != nil {
			return err
		}

		auth, err = o.identity.Login(ctx, admin.User, admin.Password)
		if err != nil {
			return fmt.Errorf("failed to log in as %s: %w", admin.User, err)
		}

		return credentials.UserScope(ctx, admin.User, tokenFrom(auth), o.createOrgAdmin)
	})
}

// createOrgAdmin creates the organisation admin role and user, then ends the
// tenant admin session. The session is also ended when creation fails.
func (o *Orchestrator) createOrgAdmin(ctx context.Context) error {
	if err := o.grantOrgAdmin(ctx); err != nil {
		if logoutErr := o.identity.Logout(context.WithoutCancel(ctx)); logoutErr != nil {
			zerolog.Ctx(ctx).Warn().Err(logoutErr).Msg("Failed to end tenant admin session")
		}
		return err
	}

	if err := o.identity.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}

	return nil
}

func (o *Orchestrator) grantOrgAdmin(ctx context.Context) error {
	orgAdmin := o.cfg.OrgAdmin

	role := models.OrgAdminRole(orgAdmin.Role)
	if err := o.identity.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("failed to create role %s: %w", role.Identifier, err)
	}
	if err := o.confirm(ctx, events.OperationPostRole, role.Identifier); err != nil {
		return err
	}

	user := models.UserWithPassword{
		Identifier: orgAdmin.User,
		Password:   orgAdmin.Password,
		Role:       role.Identifier,
	}
	if err := o.identity.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Identifier, err)
	}
	if err := o.confirm(ctx, events.OperationPostUser, user.Identifier); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Object("user", user).Str("role", role.Identifier).Msg("Organisation admin created")

	return nil
}

// confirm waits for the event announcing operation on entity.
func (o *Orchestrator) confirm(ctx context.Context, operation, entity string) error {
	if o.waiter.Wait(ctx, operation, entity, o.cfg.Events.Timeout) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	o.metrics.ConfirmationTimeoutTotal.Add(ctx, 1)
	return fmt.Errorf("%w: %s %s after %s", apierror.ErrConfirmationTimeout, operation, entity, o.cfg.Events.Timeout)
}

// tokenFrom wraps an access token, preferring the expiry the service reported.
func tokenFrom(auth *models.Authentication) *oauth2.Token {
	if !auth.AccessTokenExpiration.IsZero() {
		return credentials.NewTokenWithExpiry(auth.AccessToken, auth.AccessTokenExpiration)
	}
	return credentials.NewToken(auth.AccessToken)
}
