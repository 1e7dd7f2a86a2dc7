// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veranda-dev/veranda/internal/plugin/capability"
)

func TestEnforcer_DefaultGrantIsEverything(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("catalog", nil))

	assert.True(t, e.Check("catalog", "notify.toast"))
	assert.True(t, e.Check("catalog", "api.request"))
}

func TestEnforcer_SingleSegmentWildcard(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("catalog", []string{"notify.*"}))

	assert.True(t, e.Check("catalog", "notify.toast"))
	assert.False(t, e.Check("catalog", "nav.navigate"))
	assert.False(t, e.Check("catalog", "notify.toast.sticky"))
}

func TestEnforcer_UnknownPluginDenied(t *testing.T) {
	e := capability.NewEnforcer()
	assert.False(t, e.Check("ghost", "notify.toast"))
}

func TestEnforcer_EmptyCapabilityDenied(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("catalog", nil))
	assert.False(t, e.Check("catalog", ""))
}

func TestEnforcer_GrantValidation(t *testing.T) {
	e := capability.NewEnforcer()

	assert.Error(t, e.Grant("", []string{"**"}))
	assert.Error(t, e.Grant("catalog", []string{""}))
	assert.Error(t, e.Grant("catalog", []string{"[unclosed"}))
}

func TestEnforcer_BadGrantLeavesPreviousIntact(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("catalog", []string{"notify.*"}))
	require.Error(t, e.Grant("catalog", []string{"[unclosed"}))

	assert.True(t, e.Check("catalog", "notify.toast"))
}

func TestEnforcer_Revoke(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.Grant("catalog", nil))
	e.Revoke("catalog")

	assert.False(t, e.Check("catalog", "notify.toast"))
}

func TestEnforcer_ZeroValueUsable(t *testing.T) {
	var e capability.Enforcer
	assert.False(t, e.Check("catalog", "notify.toast"))
	e.Revoke("catalog")
	require.NoError(t, e.Grant("catalog", []string{"nav.**"}))
	assert.True(t, e.Check("catalog", "nav.navigate"))
}
