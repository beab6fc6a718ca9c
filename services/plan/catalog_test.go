package plan

import (
	"testing"

	"licenseplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, cfg *config.Config) *Catalog {
	t.Helper()
	return NewCatalog(CatalogParams{Config: cfg})
}

func TestQuotaDefaults(t *testing.T) {
	c := newCatalog(t, nil)

	q, err := c.Quota(Starter)
	require.NoError(t, err)
	require.Equal(t, 5, q.MaxUsers)
	require.Equal(t, int64(10000), q.APICallLimit)
	require.Equal(t, float64(29), q.Price)

	q, err = c.Quota(Business)
	require.NoError(t, err)
	require.Equal(t, 100, q.MaxUsers)
	require.Equal(t, int64(500000), q.APICallLimit)
}

func TestQuotaEnterpriseUnmetered(t *testing.T) {
	c := newCatalog(t, nil)

	q, err := c.Quota(Enterprise)
	require.NoError(t, err)
	require.Zero(t, q.MaxUsers)
	require.Zero(t, q.APICallLimit)
}

func TestQuotaInvalidPlan(t *testing.T) {
	c := newCatalog(t, nil)

	_, err := c.Quota("platinum")
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = c.Features("platinum")
	require.ErrorIs(t, err, ErrInvalidPlan)
}

func TestFeaturesAreCumulative(t *testing.T) {
	c := newCatalog(t, nil)

	starter, err := c.Features(Starter)
	require.NoError(t, err)
	require.Contains(t, starter, "attendance")
	require.NotContains(t, starter, "claims")

	pro, err := c.Features(Professional)
	require.NoError(t, err)
	require.Subset(t, pro, starter)
	require.Contains(t, pro, "claims")

	ent, err := c.Features(Enterprise)
	require.NoError(t, err)
	require.Subset(t, ent, pro)
	require.Contains(t, ent, "white_label")
}

func TestValid(t *testing.T) {
	c := newCatalog(t, nil)

	require.True(t, c.Valid(Starter))
	require.True(t, c.Valid(Enterprise))
	require.False(t, c.Valid("platinum"))
	require.False(t, c.Valid(""))
}

func TestConfigOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Licensing.PlanOverrides = map[string]config.PlanOverride{
		"starter": {MaxUsers: 10, Price: 39},
	}

	c := newCatalog(t, cfg)

	q, err := c.Quota(Starter)
	require.NoError(t, err)
	require.Equal(t, 10, q.MaxUsers)
	require.Equal(t, float64(39), q.Price)
	// untouched fields keep their defaults
	require.Equal(t, int64(10000), q.APICallLimit)
}
