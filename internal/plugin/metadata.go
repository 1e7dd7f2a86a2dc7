// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

// Package plugin implements the portal's plugin runtime: registry metadata,
// the manifest a loaded bundle must export, and the lifecycle host that
// drives a plugin slot from idle through ready or error.
package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultVersion is assumed when a registry record carries no version.
const DefaultVersion = "0.0.1"

// maxIDLength is the maximum allowed length for plugin ids.
const maxIDLength = 64

// idPattern validates plugin ids: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens, and not end with a
// hyphen. Single character ids are allowed.
var idPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// slugStrip removes everything a URL-safe slug cannot carry.
var slugStrip = regexp.MustCompile(`[^a-z0-9-]+`)

// Metadata is one plugin's registry record: identity and load parameters.
// It is owned by the plugin registry; the runtime treats it as read-only.
type Metadata struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// BundleURL is a directly fetchable script location. Empty when the
	// bundle source is delivered through the registry API instead.
	BundleURL string `json:"bundleUrl,omitempty" yaml:"bundleUrl,omitempty"`
	// SourceRef marks API indirection: the bundle source must be fetched
	// through the registry's source endpoint for this plugin id.
	SourceRef string `json:"sourceRef,omitempty" yaml:"sourceRef,omitempty"`

	// BackendURL is the plugin's own backend base, used only when a local
	// development override routes API calls past the portal proxy.
	BackendURL string `json:"backendUrl,omitempty" yaml:"backendUrl,omitempty"`

	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Icon    string `json:"icon,omitempty" yaml:"icon,omitempty"`

	// Capabilities restricts which host functions the plugin may call.
	// Absent means unrestricted (the bundle runs with the host page's
	// ambient privileges; only backend access is mediated).
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// apiScheme marks a bundle URL that is really an API indirection.
const apiScheme = "api://"

// Normalize returns a copy with defaults applied: Version falls back to
// DefaultVersion and Enabled to true when absent. Plugins always observe
// the normalized form in their context.
func (m Metadata) Normalize() Metadata {
	out := m
	if out.Version == "" {
		out.Version = DefaultVersion
	}
	if out.Enabled == nil {
		enabled := true
		out.Enabled = &enabled
	}
	return out
}

// IsEnabled reports the effective enabled flag, defaulting to true.
func (m Metadata) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// HasLoadLocation reports whether the record declares any way to obtain
// bundle source.
func (m Metadata) HasLoadLocation() bool {
	return m.BundleURL != "" || m.SourceRef != ""
}

// IsIndirect reports whether bundle source must be fetched through the
// registry API rather than retrieved directly.
func (m Metadata) IsIndirect() bool {
	return m.SourceRef != "" || strings.HasPrefix(m.BundleURL, apiScheme)
}

// Slug derives a URL-safe identifier from the plugin name, used for
// route matching when a record carries no explicit id.
func (m Metadata) Slug() string {
	s := strings.ToLower(strings.TrimSpace(m.Name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugStrip.ReplaceAllString(s, "")
	return strings.Trim(s, "-")
}

// Key is the stable identity used to detect plugin changes: the id, or the
// name-derived slug when no id is set.
func (m Metadata) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Slug()
}

// Validate checks registry record constraints. The runtime rejects records
// it cannot key or whose version is not parseable semver.
func (m Metadata) Validate() error {
	if m.Key() == "" {
		return fmt.Errorf("metadata needs an id or a name")
	}
	if m.ID != "" {
		if !idPattern.MatchString(m.ID) {
			return fmt.Errorf("id %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.ID)
		}
		if len(m.ID) > maxIDLength {
			return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(m.ID))
		}
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
		}
	}
	return nil
}
