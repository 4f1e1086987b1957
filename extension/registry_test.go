package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, false))
	return r
}

func TestRegisterAssignsDenseIDsInOrder(t *testing.T) {
	r := newTestRegistry(t)

	comparator, ok := r.GetByName("comparator")
	require.True(t, ok)
	matchType, ok := r.GetByName("match-type")
	require.True(t, ok)
	addressPart, ok := r.GetByName("address-part")
	require.True(t, ok)

	assert.Equal(t, ID(0), comparator.ID)
	assert.Equal(t, ID(1), matchType.ID)
	assert.Equal(t, ID(2), addressPart.ID)
}

func TestCoreExtensionIsHiddenFromCapabilityString(t *testing.T) {
	r := newTestRegistry(t)
	cap := r.CapabilityString()
	assert.NotContains(t, cap, "@core")
	assert.NotContains(t, cap, "comparator")
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("fileinto", false, nil, nil, nil)
	require.NoError(t, err)
	_, err = r.Register("fileinto", false, nil, nil, nil)
	assert.Error(t, err)
}

func TestSetEnabledBareListNarrowsToExactSet(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("fileinto envelope"))

	assert.True(t, r.IsEnabled("fileinto"))
	assert.True(t, r.IsEnabled("envelope"))
	assert.False(t, r.IsEnabled("reject"))
	assert.False(t, r.IsEnabled("vacation"))
}

func TestSetEnabledDeltaSyntax(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("-fileinto"))

	assert.False(t, r.IsEnabled("fileinto"))
	assert.True(t, r.IsEnabled("envelope"), "untouched extensions remain enabled under delta syntax")
}

func TestSetEnabledRequiredCannotBeDisabled(t *testing.T) {
	r := newTestRegistry(t)
	err := r.SetEnabled("-comparator")
	assert.NoError(t, err)
	assert.True(t, r.IsEnabled("comparator"))
}

func TestSetEnabledUnknownNameReportsError(t *testing.T) {
	r := newTestRegistry(t)
	err := r.SetEnabled("notarealextension")
	assert.Error(t, err)
}

func TestResolveGlobalTagFindsComparatorAndMatchType(t *testing.T) {
	r := newTestRegistry(t)

	ext, spec, ok := r.ResolveGlobalTag(":comparator")
	require.True(t, ok)
	assert.Equal(t, "comparator", ext.Name)
	assert.True(t, spec.TakesArgument)

	ext, _, ok = r.ResolveGlobalTag(":contains")
	require.True(t, ok)
	assert.Equal(t, "match-type", ext.Name)
}

func TestResolveGlobalTagRespectsDisabledExtensions(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("fileinto"))

	_, _, ok := r.ResolveGlobalTag(":count")
	assert.False(t, ok, "relational is not enabled, so its tags must not resolve")
}

func TestDependenciesUseBuildsOrderedTable(t *testing.T) {
	r := newTestRegistry(t)
	deps := NewDependencies(r)

	idx1, err := deps.Use("fileinto")
	require.NoError(t, err)
	idx2, err := deps.Use("envelope")
	require.NoError(t, err)
	idx1Again, err := deps.Use("fileinto")
	require.NoError(t, err)

	assert.Equal(t, 0, idx1)
	assert.Equal(t, 1, idx2)
	assert.Equal(t, idx1, idx1Again)
	assert.Equal(t, []string{"fileinto", "envelope"}, deps.Names())
}

func TestDependenciesUseRegisteredButDisabledExtensionFails(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("fileinto"))
	deps := NewDependencies(r)

	_, err := deps.Use("ereject")
	assert.Error(t, err)
}
