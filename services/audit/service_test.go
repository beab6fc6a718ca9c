package audit

import (
	"context"
	"testing"
	"time"

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

	db := testutil.NewTestDB(t, &LicenseAudit{})
	node, err := gen.NewNode()
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func TestLogAndTrail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	for _, action := range []Action{ActionCreate, ActionValidate, ActionRenew} {
		require.NoError(t, svc.Log(ctx, Entry{
			Action:         action,
			LicenseID:      "lic_1",
			OrganizationID: "org_1",
			UserID:         "usr_1",
			Metadata:       map[string]any{"step": string(action)},
		}))
		time.Sleep(2 * time.Millisecond)
	}

	trail, err := svc.GetAuditTrail(ctx, "lic_1", Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(3), trail.Total)

	// newest first
	require.Equal(t, ActionRenew, trail.Items[0].Action)
	require.Equal(t, ActionCreate, trail.Items[2].Action)
	require.Equal(t, "renew", trail.Items[0].Metadata["step"])
}

func TestTrailActionFilter(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_1", OrganizationID: "org_1"}))
	require.NoError(t, svc.Log(ctx, Entry{Action: ActionTransfer, LicenseID: "lic_1", OrganizationID: "org_1"}))

	trail, err := svc.GetAuditTrail(ctx, "lic_1", Filter{Action: ActionTransfer})
	require.NoError(t, err)
	require.Equal(t, int64(1), trail.Total)
	require.Equal(t, ActionTransfer, trail.Items[0].Action)
}

func TestTrailTimeFilter(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_1", OrganizationID: "org_1"}))

	past := Filter{End: time.Now().Add(-time.Hour)}
	trail, err := svc.GetAuditTrail(ctx, "lic_1", past)
	require.NoError(t, err)
	require.Zero(t, trail.Total)

	current := Filter{Start: time.Now().Add(-time.Hour)}
	trail, err = svc.GetAuditTrail(ctx, "lic_1", current)
	require.NoError(t, err)
	require.Equal(t, int64(1), trail.Total)
}

func TestOrganizationTrailSpansLicenses(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_1", OrganizationID: "org_1"}))
	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_2", OrganizationID: "org_1"}))
	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_3", OrganizationID: "org_2"}))

	trail, err := svc.GetOrganizationAuditTrail(ctx, "org_1", Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(2), trail.Total)
}

func TestCountActions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, Entry{Action: ActionTransfer, LicenseID: "lic_1", OrganizationID: "org_1"}))
	require.NoError(t, svc.Log(ctx, Entry{Action: ActionTransfer, LicenseID: "lic_1", OrganizationID: "org_2"}))
	require.NoError(t, svc.Log(ctx, Entry{Action: ActionCreate, LicenseID: "lic_1", OrganizationID: "org_1"}))

	n, err := svc.CountActions(ctx, "lic_1", ActionTransfer)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
