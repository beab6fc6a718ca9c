package license

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := NewKey()
		require.NoError(t, err)
		require.Len(t, key, 64)
		require.Regexp(t, "^[0-9a-f]{64}$", key)
		require.False(t, seen[key], "duplicate key generated")
		seen[key] = true
	}
}

func TestLimitFor(t *testing.T) {
	lic := &License{
		MaxUsers:         25,
		MaxBranches:      5,
		StorageLimitMB:   10240,
		APICallLimit:     100000,
		IntegrationLimit: 0,
	}

	for _, tc := range []struct {
		metric MetricType
		want   float64
	}{
		{MetricUsers, 25},
		{MetricBranches, 5},
		{MetricStorage, 10240},
		{MetricAPICalls, 100000},
		{MetricIntegrations, 0},
	} {
		got, err := lic.LimitFor(tc.metric)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, string(tc.metric))
	}

	_, err := lic.LimitFor("seats")
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestHasFeature(t *testing.T) {
	lic := &License{Features: FeatureSet([]string{"attendance", "leads"})}

	require.True(t, lic.HasFeature("attendance"))
	require.False(t, lic.HasFeature("sso"))

	var empty License
	require.False(t, empty.HasFeature("attendance"))
}
