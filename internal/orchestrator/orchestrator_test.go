package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantprov/internal/apierror"
	"github.com/wolfeidau/tenantprov/internal/client"
	"github.com/wolfeidau/tenantprov/internal/config"
	"github.com/wolfeidau/tenantprov/internal/credentials"
	"github.com/wolfeidau/tenantprov/internal/events"
	"github.com/wolfeidau/tenantprov/internal/fakeplatform"
	"github.com/wolfeidau/tenantprov/internal/identity"
	"github.com/wolfeidau/tenantprov/internal/models"
	"github.com/wolfeidau/tenantprov/internal/provisioner"
	"github.com/wolfeidau/tenantprov/internal/store/memory"
)

type testEnv struct {
	platform *fakeplatform.Platform
	url      string
	identity *identity.HTTPClient
	store    *memory.RunStore
}

func newTestEnv(t *testing.T, pcfg fakeplatform.Config) *testEnv {
	t.Helper()

	platform := fakeplatform.New(pcfg)
	srv := httptest.NewServer(platform.Handler())
	t.Cleanup(srv.Close)

	ident, err := identity.New(client.Config{BaseURL: srv.URL + fakeplatform.IdentityPrefix})
	require.NoError(t, err)

	return &testEnv{platform: platform, url: srv.URL, identity: ident, store: memory.NewRunStore()}
}

// batch returns a sandbox batch with fast readiness polling.
func (e *testEnv) batch(tenants ...string) *config.Config {
	cfg := config.Sandbox(e.url, tenants...)
	cfg.Events.Timeout = 2 * time.Second
	cfg.Readiness.InitialInterval = 10 * time.Millisecond
	cfg.Readiness.MaxInterval = 50 * time.Millisecond
	cfg.Readiness.MaxElapsed = 5 * time.Second
	return cfg
}

// run provisions cfg with a fresh recorder subscribed to the platform.
func (e *testEnv) run(t *testing.T, cfg *config.Config) (*Report, error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder := events.NewRecorder(0)
	require.NoError(t, recorder.Start(ctx, e.platform.Events()))

	prov, err := provisioner.New(client.Config{BaseURL: cfg.Provisioner.URL})
	require.NoError(t, err)
	ident, err := identity.New(client.Config{BaseURL: cfg.Identity.URL})
	require.NoError(t, err)

	orch, err := New(Deps{Provisioner: prov, Identity: ident, Waiter: recorder, Store: e.store}, cfg)
	require.NoError(t, err)

	return orch.Run(ctx)
}

func indexOf(calls []fakeplatform.Call, method, route string) int {
	for i, c := range calls {
		if c.Is(method, route) {
			return i
		}
	}
	return -1
}

func countCalls(calls []fakeplatform.Call, method, route string) int {
	n := 0
	for _, c := range calls {
		if c.Is(method, route) {
			n++
		}
	}
	return n
}

const (
	routeIdentityService = "/provisioner/v1/tenants/{id}/identityservice"
	routeApplications    = "/provisioner/v1/tenants/{id}/applications"
	routeRoles           = "/identity/v1/roles"
	routeLogout          = "/identity/v1/token/_current/logout"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{}, config.Sandbox("http://localhost", "demo"))
	require.Error(t, err)

	cfg := config.Sandbox("http://localhost")
	_, err = New(Deps{Provisioner: &provisioner.HTTPClient{}, Identity: &identity.HTTPClient{}, Waiter: events.NewRecorder(0)}, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig, "a batch without tenants is invalid")
}

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{ReadinessDelay: 30 * time.Millisecond})

	report, err := env.run(t, env.batch("demo"))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.Equal(t, 5, report.ApplicationsRegistered)
	require.Len(t, report.Tenants, 1)
	assert.Equal(t, StateAdminBootstrapped, report.Tenants[0].State)
	assert.NoError(t, report.Tenants[0].Err)

	assert.Equal(t,
		[]string{"identity-v1", "office-v1", "customer-v1", "accounting-v1", "portfolio-v1"},
		env.platform.AssignedApplications("demo"))

	role, ok := env.platform.Role("demo", "orgadmin")
	require.True(t, ok)
	require.Len(t, role.Permissions, 5)
	for _, perm := range role.Permissions {
		assert.ElementsMatch(t, models.AllOperations(), perm.AllowedOperations, perm.EndpointGroup)
	}

	// the operator's bootstrap password is good for exactly one login
	err = credentials.TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		_, err := env.identity.Login(ctx, "operator", "init1@l")
		require.NoError(t, err)

		_, err = env.identity.Login(ctx, "operator", "init1@l")
		assert.ErrorIs(t, err, apierror.ErrAuth)
		return nil
	})
	require.NoError(t, err)

	run, err := env.store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	history, err := env.store.History(context.Background(), report.RunID, "demo")
	require.NoError(t, err)
	var states []string
	for _, rec := range history {
		states = append(states, rec.State)
	}
	assert.Equal(t, []string{
		"REGISTERED", "TENANT_CREATED", "IDENTITY_ASSIGNED", "STABILIZING", "APPS_ASSIGNED", "ADMIN_BOOTSTRAPPED",
	}, states)
}

func TestRun_IdentityAssignedFirst(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{ReadinessDelay: 30 * time.Millisecond})

	_, err := env.run(t, env.batch("first", "second"))
	require.NoError(t, err)

	for _, tenant := range []string{"first", "second"} {
		calls := env.platform.CallsFor(tenant)

		identityAt := indexOf(calls, http.MethodPost, routeIdentityService)
		require.GreaterOrEqual(t, identityAt, 0, tenant)
		assert.Equal(t, 1, countCalls(calls, http.MethodPost, routeIdentityService), "one-time password is issued once per tenant")

		appsAt := indexOf(calls, http.MethodPost, routeApplications)
		roleAt := indexOf(calls, http.MethodPost, routeRoles)
		assert.Less(t, identityAt, appsAt, tenant)
		assert.Less(t, appsAt, roleAt, tenant)
	}
}

func TestRun_ReadinessRetry(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{ReadinessDelay: 150 * time.Millisecond})

	report, err := env.run(t, env.batch("demo"))
	require.NoError(t, err)
	assert.Equal(t, StateAdminBootstrapped, report.Tenants[0].State)

	calls := env.platform.CallsFor("demo")
	var statuses []int
	for _, c := range calls {
		if c.Is(http.MethodPost, routeApplications) {
			statuses = append(statuses, c.Status)
		}
	}

	require.GreaterOrEqual(t, len(statuses), 2, "assignment must have been retried")
	assert.Equal(t, http.StatusPreconditionFailed, statuses[0])
	assert.Equal(t, http.StatusAccepted, statuses[len(statuses)-1])
}

func TestRun_ReadinessGivesUp(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{ReadinessDelay: time.Hour})

	cfg := env.batch("demo", "never")
	cfg.Readiness.MaxTries = 3

	report, err := env.run(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrPrecondition)

	assert.Equal(t, models.RunStatusAborted, report.Status)
	require.Len(t, report.Tenants, 1, "the run stops at the first fatal failure")
	assert.Equal(t, StateFailed, report.Tenants[0].State)
	assert.Equal(t, StateStabilizing, report.Tenants[0].FailedIn)

	assert.Equal(t, 3, countCalls(env.platform.CallsFor("demo"), http.MethodPost, routeApplications))
	assert.Empty(t, env.platform.CallsFor("never"))
}

func TestRun_ConfirmationTimeoutIsTenantLocal(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{})
	env.platform.SuppressEvent(events.OperationPostRole, "first")

	cfg := env.batch("first", "second")
	cfg.Events.Timeout = 100 * time.Millisecond

	report, err := env.run(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, report.Status)

	first := report.Tenant("first")
	require.NotNil(t, first)
	assert.Equal(t, StateFailed, first.State)
	assert.Equal(t, StateAppsAssigned, first.FailedIn)
	assert.ErrorIs(t, first.Err, apierror.ErrConfirmationTimeout)

	second := report.Tenant("second")
	require.NotNil(t, second)
	assert.Equal(t, StateAdminBootstrapped, second.State)

	// no retry of the unconfirmed mutation
	assert.Equal(t, 1, countCalls(env.platform.CallsFor("first"), http.MethodPost, routeRoles))
	assert.Equal(t, 1, countCalls(env.platform.CallsFor("first"), http.MethodPost, routeLogout), "the admin session is ended after the failure")
	assert.Equal(t, 1, countCalls(env.platform.CallsFor("second"), http.MethodPost, routeLogout))
	assert.False(t, env.platform.HasUser("first", "operator"))
	assert.True(t, env.platform.HasUser("second", "operator"))

	tenants, err := env.store.ListTenants(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "FAILED", tenants[0].State)
	assert.Contains(t, tenants[0].Error, "confirmation event not received")
}

// lateConfirmations records a stale confirmation as soon as the given tenant
// boundary has been crossed.
type lateConfirmations struct {
	*events.Recorder
	discards int
	at       int
	late     events.Event
}

func (l *lateConfirmations) Discard() {
	l.Recorder.Discard()
	l.discards++
	if l.discards == l.at {
		l.Record(l.late)
	}
}

func TestRun_LateConfirmationDoesNotConfirmNextTenant(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{})
	env.platform.SuppressEvent(events.OperationPostRole, "first")
	env.platform.SuppressEvent(events.OperationPostRole, "second")

	cfg := env.batch("first", "second")
	cfg.Events.Timeout = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	waiter := &lateConfirmations{
		Recorder: events.NewRecorder(0),
		at:       2,
		late:     events.Event{Operation: events.OperationPostRole, Entity: "orgadmin", Tenant: "first"},
	}
	require.NoError(t, waiter.Start(ctx, env.platform.Events()))

	prov, err := provisioner.New(client.Config{BaseURL: cfg.Provisioner.URL})
	require.NoError(t, err)

	orch, err := New(Deps{Provisioner: prov, Identity: env.identity, Waiter: waiter, Store: env.store}, cfg)
	require.NoError(t, err)

	report, err := orch.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, waiter.discards)

	for _, tenant := range []string{"first", "second"} {
		result := report.Tenant(tenant)
		require.NotNil(t, result, tenant)
		assert.Equal(t, StateFailed, result.State, tenant)
		assert.ErrorIs(t, result.Err, apierror.ErrConfirmationTimeout, tenant)
	}
	assert.Equal(t, models.RunStatusPartial, report.Status)
}

func TestRun_ApplicationReRegistrationIsNoop(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{})

	_, err := env.run(t, env.batch("first"))
	require.NoError(t, err)

	report, err := env.run(t, env.batch("second"))
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.Equal(t, 0, report.ApplicationsRegistered)
	assert.Equal(t, 5, report.ApplicationsExisting)
	assert.Len(t, env.platform.AssignedApplications("second"), 5)
}

func TestRun_TenantReCreationAborts(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{})

	_, err := env.run(t, env.batch("demo"))
	require.NoError(t, err)

	report, err := env.run(t, env.batch("demo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrConflict)

	assert.Equal(t, models.RunStatusAborted, report.Status)
	require.Len(t, report.Tenants, 1)
	assert.Equal(t, StateFailed, report.Tenants[0].State)
	assert.Equal(t, StateRegistered, report.Tenants[0].FailedIn)
}

func TestRun_AuthenticationFailure(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{Secret: "expected"})

	report, err := env.run(t, env.batch("demo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apierror.ErrAuth)
	assert.Equal(t, models.RunStatusAborted, report.Status)
	assert.Empty(t, report.Tenants)
}

func TestRun_Cancelled(t *testing.T) {
	env := newTestEnv(t, fakeplatform.Config{ReadinessDelay: time.Hour})

	cfg := env.batch("demo")
	cfg.Readiness.MaxTries = 1000
	cfg.Readiness.MaxElapsed = time.Hour

	recorder := events.NewRecorder(0)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, recorder.Start(ctx, env.platform.Events()))

	prov, err := provisioner.New(client.Config{BaseURL: cfg.Provisioner.URL})
	require.NoError(t, err)

	orch, err := New(Deps{Provisioner: prov, Identity: env.identity, Waiter: recorder, Store: env.store}, cfg)
	require.NoError(t, err)

	report, err := orch.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusAborted, report.Status)

	run, err := env.store.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusAborted, run.Status, "the journal is finished even after cancellation")
}
