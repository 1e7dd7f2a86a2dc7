// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-dev/veranda/internal/plugin"
)

func TestClient_ProxyModeRouting(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("path")
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, "team-dash")
	require.True(t, c.IsProxyMode())

	resp, err := c.Get(context.Background(), "/widgets?limit=5", nil)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/plugins/team-dash/proxy", gotPath)
	assert.Equal(t, "/widgets?limit=5", gotQuery, "original path travels as a query parameter")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestClient_OverrideModeBypassesProxy(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	c := New("http://proxy.invalid", "team-dash", WithBackendOverride(backend.URL))
	require.False(t, c.IsProxyMode())

	resp, err := c.Delete(context.Background(), "widgets/3", nil)
	require.NoError(t, err)

	assert.Equal(t, "/widgets/3", gotPath, "override prepends a slash and hits the backend directly")
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestClient_PostBodyAndHeaders(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody = make([]byte, r.ContentLength)
		r.Body.Read(gotBody) //nolint:errcheck
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Widget")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "team-dash")
	header := http.Header{"X-Widget": []string{"alpha"}}
	resp, err := c.Post(context.Background(), "/widgets", []byte(`{"name":"a"}`), header)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"name":"a"}`, string(gotBody))
	assert.Equal(t, "application/json", gotContentType, "JSON content type is defaulted for bodies")
	assert.Equal(t, "alpha", gotCustom)
}

func TestClient_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "team-dash")
	resp, err := c.Get(context.Background(), "/secret", nil)

	require.NoError(t, err, "HTTP error statuses are data for the plugin, not transport failures")
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestClient_TransportFailureIsNetworkKind(t *testing.T) {
	c := New("http://127.0.0.1:1", "team-dash")
	_, err := c.Get(context.Background(), "/widgets", nil)

	require.Error(t, err)
	assert.Equal(t, plugin.KindNetwork, plugin.Classify(err))
}

func TestClient_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(srv.URL, "team-dash")
	_, err := c.Get(ctx, "/widgets", nil)
	require.Error(t, err)
	assert.Equal(t, plugin.KindNetwork, plugin.Classify(err))
}

func TestClient_SatisfiesAPICaller(t *testing.T) {
	var _ plugin.APICaller = New("http://x", "p")
}
