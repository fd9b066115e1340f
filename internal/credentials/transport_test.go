package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureHeaders(t *testing.T) (*httptest.Server, *http.Header) {
	t.Helper()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	return srv, &got
}

func doGet(t *testing.T, ctx context.Context, client *http.Client, url string) {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestTransport_NoCredential(t *testing.T) {
	srv, got := captureHeaders(t)
	client := &http.Client{Transport: NewTransport(nil)}

	doGet(t, context.Background(), client, srv.URL)

	assert.Empty(t, got.Get("Authorization"))
	assert.Empty(t, got.Get(TenantHeader))
	assert.Empty(t, got.Get(UserHeader))
}

func TestTransport_SystemScope(t *testing.T) {
	srv, got := captureHeaders(t)
	client := &http.Client{Transport: NewTransport(nil)}

	err := SystemScope(context.Background(), staticToken("system-token"), func(ctx context.Context) error {
		doGet(t, ctx, client, srv.URL)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer system-token", got.Get("Authorization"))
	assert.Empty(t, got.Get(TenantHeader))
	assert.Empty(t, got.Get(UserHeader))
}

func TestTransport_UserScope(t *testing.T) {
	srv, got := captureHeaders(t)
	client := &http.Client{Transport: NewTransport(http.DefaultTransport)}

	err := TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		return UserScope(ctx, "antony", staticToken("user-token"), func(ctx context.Context) error {
			doGet(t, ctx, client, srv.URL)
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer user-token", got.Get("Authorization"))
	assert.Equal(t, "demo", got.Get(TenantHeader))
	assert.Equal(t, "antony", got.Get(UserHeader))
}

func TestTransport_TenantOnly(t *testing.T) {
	srv, got := captureHeaders(t)
	client := &http.Client{Transport: NewTransport(nil)}

	err := TenantScope(context.Background(), "demo", func(ctx context.Context) error {
		doGet(t, ctx, client, srv.URL)
		return nil
	})
	require.NoError(t, err)

	assert.Empty(t, got.Get("Authorization"))
	assert.Equal(t, "demo", got.Get(TenantHeader))
}

func TestTransport_DoesNotModifyRequest(t *testing.T) {
	srv, _ := captureHeaders(t)
	client := &http.Client{Transport: NewTransport(nil)}

	err := SystemScope(context.Background(), staticToken("system-token"), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Empty(t, req.Header.Get("Authorization"))
		return nil
	})
	require.NoError(t, err)
}
