// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package registry talks to the plugin registry service: listing the plugin
// records the portal should surface and fetching bundle source for records
// that use API indirection instead of a direct bundle URL.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/veranda-dev/veranda/internal/plugin"
)

// listRetries bounds the List backoff; listing runs at page load and a cold
// registry should not wedge the portal startup path.
const listRetries = 3

// Client is an HTTP client for one registry base URL.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a registry client rooted at base.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches all plugin records. Transient failures are retried with
// fibonacci backoff; a record that fails validation fails the whole listing
// so a bad registry deploy is caught loudly rather than partially rendered.
func (c *Client) List(ctx context.Context) ([]plugin.Metadata, error) {
	var records []plugin.Metadata

	backoff := retry.WithMaxRetries(listRetries, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := c.get(ctx, c.base+"/api/plugins")
		if err != nil {
			return retry.RetryableError(err)
		}
		records = nil
		if err := json.Unmarshal(body, &records); err != nil {
			return oops.In("registry").Wrapf(err, "decoding plugin listing failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, md := range records {
		if err := md.Validate(); err != nil {
			return nil, oops.In("registry").With("plugin", md.Key()).Wrapf(err, "invalid plugin record")
		}
	}
	return records, nil
}

// sourceEnvelope is the registry's source endpoint payload.
type sourceEnvelope struct {
	Content string `json:"content"`
}

// FetchSource retrieves bundle source text for an indirect plugin record.
func (c *Client) FetchSource(ctx context.Context, pluginID string) (string, error) {
	body, err := c.get(ctx, c.base+"/api/plugins/"+url.PathEscape(pluginID)+"/source")
	if err != nil {
		return "", err
	}

	var envelope sourceEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", plugin.WrapKind(plugin.KindNetwork, err, "decoding bundle source envelope failed")
	}
	if envelope.Content == "" {
		return "", plugin.Errorf(plugin.KindNetwork, "registry returned empty bundle source for %q", pluginID)
	}
	return envelope.Content, nil
}

// get performs one GET and returns the body on a 2xx status.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, "building registry request failed")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, "registry request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, plugin.Errorf(plugin.KindNetwork, "registry returned status %d for %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, fmt.Sprintf("reading registry response from %s failed", endpoint))
	}
	return body, nil
}
