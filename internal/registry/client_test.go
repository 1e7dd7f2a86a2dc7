// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-dev/veranda/internal/plugin"
)

func TestClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plugins", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		body := `[
			{"id":"team-dash","name":"Team Dash","bundleUrl":"https://cdn/x.js","version":"1.0.0"},
			{"id":"notes","name":"Notes","sourceRef":"registry:notes"}
		]`
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	records, err := New(srv.URL).List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "team-dash", records[0].ID)
	assert.True(t, records[1].IsIndirect())
}

func TestClient_ListRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"x","name":"X","bundleUrl":"https://cdn/x.js"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	records, err := New(srv.URL).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ListRejectsInvalidRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"Bad Id!","name":"X"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid plugin record")
}

func TestClient_FetchSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plugins/notes/source", r.URL.Path)
		w.Write([]byte(`{"content":"module.exports.default = {}"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	src, err := New(srv.URL).FetchSource(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "module.exports.default = {}", src)
}

func TestClient_FetchSourceEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":""}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchSource(context.Background(), "notes")
	require.Error(t, err)
	assert.Equal(t, plugin.KindNetwork, plugin.Classify(err))
}

func TestClient_FetchSourceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchSource(context.Background(), "notes")
	require.Error(t, err)
	assert.Equal(t, plugin.KindNetwork, plugin.Classify(err))
}
