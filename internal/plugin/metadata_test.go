// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package plugin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataNormalize(t *testing.T) {
	md := Metadata{ID: "widget"}.Normalize()

	assert.Equal(t, DefaultVersion, md.Version)
	require.NotNil(t, md.Enabled)
	assert.True(t, *md.Enabled)

	off := false
	md = Metadata{ID: "widget", Version: "2.1.0", Enabled: &off}.Normalize()
	assert.Equal(t, "2.1.0", md.Version)
	assert.False(t, *md.Enabled)
}

func TestMetadataIsEnabled(t *testing.T) {
	on, off := true, false

	assert.True(t, Metadata{}.IsEnabled(), "absent flag defaults to enabled")
	assert.True(t, Metadata{Enabled: &on}.IsEnabled())
	assert.False(t, Metadata{Enabled: &off}.IsEnabled())
}

func TestMetadataHasLoadLocation(t *testing.T) {
	assert.False(t, Metadata{ID: "x"}.HasLoadLocation())
	assert.True(t, Metadata{ID: "x", BundleURL: "https://cdn/x.js"}.HasLoadLocation())
	assert.True(t, Metadata{ID: "x", SourceRef: "registry:x"}.HasLoadLocation())
}

func TestMetadataIsIndirect(t *testing.T) {
	assert.False(t, Metadata{BundleURL: "https://cdn/x.js"}.IsIndirect())
	assert.True(t, Metadata{SourceRef: "registry:x"}.IsIndirect())
	assert.True(t, Metadata{BundleURL: "api://plugins/x/source"}.IsIndirect())
}

func TestMetadataKey(t *testing.T) {
	assert.Equal(t, "widget", Metadata{ID: "widget", Name: "Widget Board"}.Key())
	assert.Equal(t, "widget-board", Metadata{Name: "Widget Board"}.Key())
}

func TestMetadataSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Widget Board", "widget-board"},
		{"  My Plugin  ", "my-plugin"},
		{"UPPER", "upper"},
		{"trail-", "trail"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Metadata{Name: tt.name}.Slug())
	}
}

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{ID: "team-dash", Name: "Team Dash", Version: "1.0.0"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		md   Metadata
		want string
	}{
		{"empty id", Metadata{Version: "1.0.0"}, "id"},
		{"bad id chars", Metadata{ID: "Team Dash!", Version: "1.0.0"}, "id"},
		{"id too long", Metadata{ID: strings.Repeat("a", 65), Version: "1.0.0"}, "id"},
		{"bad version", Metadata{ID: "ok", Version: "not-semver"}, "version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
