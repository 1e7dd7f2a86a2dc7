// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package resolver turns a plugin record's load location into bundle source
// text. Direct records are fetched from their bundle URL; indirect records
// go through the registry's source endpoint.
package resolver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/veranda-dev/veranda/internal/plugin"
)

// SourceFetcher is the registry operation indirect records resolve through.
type SourceFetcher interface {
	FetchSource(ctx context.Context, pluginID string) (string, error)
}

// Resolver resolves bundle source for plugin records.
type Resolver struct {
	registry SourceFetcher
	http     *http.Client
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the client used for direct bundle fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) { r.http = hc }
}

// New builds a resolver. The registry fetcher may be nil when the portal is
// configured without a registry; indirect records then fail resolution.
func New(registry SourceFetcher, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ plugin.SourceResolver = (*Resolver)(nil)

// Resolve returns the bundle source text for a plugin record. All failures
// classify as network errors; the caller owns state transitions.
func (r *Resolver) Resolve(ctx context.Context, md plugin.Metadata) (string, error) {
	if md.IsIndirect() {
		if r.registry == nil {
			return "", plugin.Errorf(plugin.KindNetwork, "plugin %q needs registry source delivery but no registry is configured", md.Key())
		}
		return r.registry.FetchSource(ctx, md.Key())
	}
	return r.fetchDirect(ctx, md)
}

// fetchDirect retrieves a bundle by plain GET of its URL.
func (r *Resolver) fetchDirect(ctx context.Context, md plugin.Metadata) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.BundleURL, nil)
	if err != nil {
		return "", plugin.WrapKind(plugin.KindNetwork, err, "building bundle request failed")
	}
	req.Header.Set("Accept", "application/javascript, text/javascript")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", plugin.WrapKind(plugin.KindNetwork, err, "bundle fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", plugin.Errorf(plugin.KindNetwork, "bundle fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", plugin.WrapKind(plugin.KindNetwork, err, "reading bundle body failed")
	}
	if len(body) == 0 {
		return "", plugin.Errorf(plugin.KindNetwork, "bundle at %s is empty", md.BundleURL)
	}
	return string(body), nil
}
