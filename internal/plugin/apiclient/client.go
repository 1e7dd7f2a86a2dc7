// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package apiclient implements the per-plugin HTTP facade. Each client is
// bound to one plugin id at construction; in proxy mode every call goes
// through the portal backend, which is the sole holder of the plugin
// backend's real location and credentials. A development override talks to
// the plugin backend directly.
package apiclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veranda-dev/veranda/internal/plugin"
)

// defaultTimeout bounds a single API call when the caller's context carries
// no deadline of its own.
const defaultTimeout = 30 * time.Second

// Client is a plugin-scoped API caller. The zero value is not usable; build
// one with New.
type Client struct {
	pluginID string
	proxyURL string
	override string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackendOverride routes calls directly to the plugin's own backend,
// bypassing the portal proxy. Development use only.
func WithBackendOverride(base string) Option {
	return func(c *Client) { c.override = strings.TrimRight(base, "/") }
}

// New builds a client for one plugin, proxying through the portal backend
// rooted at proxyBase.
func New(proxyBase, pluginID string, opts ...Option) *Client {
	c := &Client{
		pluginID: pluginID,
		proxyURL: strings.TrimRight(proxyBase, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsProxyMode reports whether calls are mediated by the portal backend.
// Plugin code may display this, so it is part of the exposed surface.
func (c *Client) IsProxyMode() bool {
	return c.override == ""
}

// endpoint builds the concrete URL for a plugin-relative path.
func (c *Client) endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if c.override != "" {
		return c.override + path
	}
	return c.proxyURL + "/plugins/" + url.PathEscape(c.pluginID) + "/proxy?path=" + url.QueryEscape(path)
}

// Request performs one API call. The response is fully read so plugin code
// receives a settled value, never a stream it could leak.
func (c *Client) Request(ctx context.Context, method, path string, body []byte, header http.Header) (*plugin.APIResponse, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, "building API request failed")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, "API request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plugin.WrapKind(plugin.KindNetwork, err, "reading API response failed")
	}

	return &plugin.APIResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   data,
	}, nil
}

// Get performs a GET against the plugin's backend.
func (c *Client) Get(ctx context.Context, path string, header http.Header) (*plugin.APIResponse, error) {
	return c.Request(ctx, http.MethodGet, path, nil, header)
}

// Post performs a POST against the plugin's backend.
func (c *Client) Post(ctx context.Context, path string, body []byte, header http.Header) (*plugin.APIResponse, error) {
	return c.Request(ctx, http.MethodPost, path, body, header)
}

// Put performs a PUT against the plugin's backend.
func (c *Client) Put(ctx context.Context, path string, body []byte, header http.Header) (*plugin.APIResponse, error) {
	return c.Request(ctx, http.MethodPut, path, body, header)
}

// Patch performs a PATCH against the plugin's backend.
func (c *Client) Patch(ctx context.Context, path string, body []byte, header http.Header) (*plugin.APIResponse, error) {
	return c.Request(ctx, http.MethodPatch, path, body, header)
}

// Delete performs a DELETE against the plugin's backend.
func (c *Client) Delete(ctx context.Context, path string, header http.Header) (*plugin.APIResponse, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, header)
}
