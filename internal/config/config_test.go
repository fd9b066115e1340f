package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const batch = `
provisioner:
  url: http://localhost:2020/provisioner/v1
  secret: ${TENANTPROV_TEST_SECRET}
identity:
  url: http://localhost:2021/identity/v1
events:
  timeout: 10s
readiness:
  settle: 1s
tenantAdmin:
  password: s3cret
applications:
  - name: identity-v1
    uri: http://localhost:2021/identity/v1
  - name: office-v1
    uri: http://localhost:2023/office/v1
tenants:
  - identifier: demo
    description: Demo tenant
  - identifier: playground
    name: Playground
    schema: playground_db
`

func TestLoad(t *testing.T) {
	t.Setenv("TENANTPROV_TEST_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Provisioner.Secret)
	assert.Equal(t, DefaultClientID, cfg.Provisioner.ClientID)
	assert.Equal(t, DefaultSystemUser, cfg.Provisioner.Username)
	assert.Equal(t, "identity-v1", cfg.Identity.Application)
	assert.Equal(t, 10*time.Second, cfg.Events.Timeout)
	assert.Equal(t, time.Second, cfg.Readiness.Settle)
	assert.Equal(t, DefaultMaxTries, int(cfg.Readiness.MaxTries))
	assert.Equal(t, DefaultTenantAdminUser, cfg.TenantAdmin.User)
	assert.Equal(t, DefaultOrgAdminUser, cfg.OrgAdmin.User)
	assert.Equal(t, DefaultOrgAdminPassword, cfg.OrgAdmin.Password)

	require.Len(t, cfg.Tenants, 2)
	assert.Equal(t, "demo", cfg.Tenants[0].Schema, "schema defaults to the identifier")
	assert.Equal(t, "demo", cfg.Tenants[0].Name)
	assert.Equal(t, "playground_db", cfg.Tenants[1].Schema)
	assert.Equal(t, "Playground", cfg.Tenants[1].Name)

	others := cfg.OtherApplications()
	require.Len(t, others, 1)
	assert.Equal(t, "office-v1", others[0].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing urls",
			yaml:    "applications: [{name: identity-v1}]\ntenants: [{identifier: demo}]\ntenantAdmin: {password: x}\nprovisioner: {secret: x}",
			wantErr: "provisioner.url is required",
		},
		{
			name: "duplicate application",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i}
tenantAdmin: {password: x}
applications: [{name: identity-v1}, {name: identity-v1}]
tenants: [{identifier: demo}]`,
			wantErr: `duplicate application "identity-v1"`,
		},
		{
			name: "duplicate tenant",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i}
tenantAdmin: {password: x}
applications: [{name: identity-v1}]
tenants: [{identifier: demo}, {identifier: demo}]`,
			wantErr: `duplicate tenant "demo"`,
		},
		{
			name: "identity application not listed",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i, application: identity-v2}
tenantAdmin: {password: x}
applications: [{name: identity-v1}]
tenants: [{identifier: demo}]`,
			wantErr: `identity application "identity-v2" is not in applications`,
		},
		{
			name: "missing tenant admin password",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i}
applications: [{name: identity-v1}]
tenants: [{identifier: demo}]`,
			wantErr: "tenantAdmin.password is required",
		},
		{
			name: "negative timeout",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i}
tenantAdmin: {password: x}
events: {timeout: -1s}
applications: [{name: identity-v1}]
tenants: [{identifier: demo}]`,
			wantErr: "events.timeout must be positive",
		},
		{
			name: "no tenants",
			yaml: `provisioner: {url: http://p, secret: x}
identity: {url: http://i}
tenantAdmin: {password: x}
applications: [{name: identity-v1}]`,
			wantErr: "at least one tenant is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSandbox(t *testing.T) {
	cfg := Sandbox("http://127.0.0.1:9000", "demo")
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://127.0.0.1:9000/provisioner/v1", cfg.Provisioner.URL)
	assert.Len(t, cfg.Applications, 5)
	assert.Len(t, cfg.OtherApplications(), 4)
	require.Len(t, cfg.Tenants, 1)
	assert.Equal(t, "demo", cfg.Tenants[0].Schema)
}

func TestParse_DollarInSecrets(t *testing.T) {
	t.Setenv("TENANTPROV_TEST_URL", "http://platform:2020")
	t.Setenv("et", "expanded")

	cfg, err := Parse([]byte(`
provisioner:
  url: ${TENANTPROV_TEST_URL}/provisioner/v1
  secret: "s3cr$et"
identity:
  url: ${TENANTPROV_TEST_URL}/identity/v1
tenantAdmin:
  password: "pa$$word"
orgAdmin:
  password: "$HOME-$1"
applications:
  - {name: identity-v1, uri: http://platform:2020/identity-v1}
tenants:
  - identifier: demo
`))
	require.NoError(t, err)

	assert.Equal(t, "http://platform:2020/provisioner/v1", cfg.Provisioner.URL)
	assert.Equal(t, "http://platform:2020/identity/v1", cfg.Identity.URL)
	assert.Equal(t, "s3cr$et", cfg.Provisioner.Secret)
	assert.Equal(t, "pa$$word", cfg.TenantAdmin.Password)
	assert.Equal(t, "$HOME-$1", cfg.OrgAdmin.Password)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TENANTPROV_TEST_NAME", "demo")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "braced reference", in: "id: ${TENANTPROV_TEST_NAME}", want: "id: demo"},
		{name: "unset reference", in: "id: ${TENANTPROV_TEST_UNSET}", want: "id: "},
		{name: "bare dollar name", in: "id: $TENANTPROV_TEST_NAME", want: "id: $TENANTPROV_TEST_NAME"},
		{name: "double dollar", in: "pw: a$$b", want: "pw: a$$b"},
		{name: "unterminated", in: "pw: ${oops", want: "pw: ${oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(expandEnv([]byte(tt.in))))
		})
	}
}
