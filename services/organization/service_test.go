package organization

import (
	"context"
	"testing"

	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/gen"
	"licenseplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Organization{})
	node, err := gen.NewNode()
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestCreate(t *testing.T) {
	svc := newService(t)

	org, err := svc.Create(context.Background(), CreateRequest{
		Name:         "Acme Corp",
		BillingEmail: "billing@acme.test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, org.ID)
	require.Equal(t, "acme-corp", org.Slug)
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "Acme Corp", BillingEmail: "a@acme.test"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateRequest{Name: "Acme Corp", BillingEmail: "b@acme.test"})
	require.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), "org_missing")
	require.Error(t, err)
}

func TestList(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, name := range []string{"Acme", "Globex", "Initech"} {
		_, err := svc.Create(ctx, CreateRequest{Name: name, BillingEmail: "billing@" + name + ".test"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 3)
}
