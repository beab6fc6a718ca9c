package license

import (
	"context"
	"testing"
	"time"

	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/rediskey"
	"licenseplane/services/audit"
	"licenseplane/services/notify"
	"licenseplane/services/organization"
	"licenseplane/services/plan"
	"licenseplane/services/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type emitCall struct {
	event      string
	emailType  string
	recipients []string
	data       map[string]any
}

type mockEmitter struct {
	calls []emitCall
}

func (m *mockEmitter) Emit(event, emailType string, recipients []string, data map[string]any) {
	m.calls = append(m.calls, emitCall{event, emailType, recipients, data})
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	orgs    *organization.Service
	audit   *audit.Service
	emitter *mockEmitter
	org     *organization.Organization
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithCache(t, nil)
}

func newFixtureWithCache(t *testing.T, cache *redis.Client) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &License{}, &organization.Organization{}, &audit.LicenseAudit{})

	node, err := gen.NewNode()
	require.NoError(t, err)

	orgs := organization.NewService(organization.ServiceParams{DB: db, Node: node})
	auditSvc := audit.NewService(audit.ServiceParams{DB: db, Node: node})
	emitter := &mockEmitter{}

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Config:   testutil.NewTestConfig(t),
		Catalog:  plan.NewCatalog(plan.CatalogParams{}),
		Orgs:     orgs,
		Audit:    auditSvc,
		Notifier: emitter,
		Cache:    cache,
	})

	org, err := orgs.Create(context.Background(), organization.CreateRequest{
		Name:         "Acme Corp",
		BillingEmail: "billing@acme.test",
	})
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, orgs: orgs, audit: auditSvc, emitter: emitter, org: org}
}

func (f *fixture) seedLicense(t *testing.T, status Status, validFrom, validUntil time.Time) *License {
	t.Helper()

	key, err := NewKey()
	require.NoError(t, err)

	lic := &License{
		ID:             "lic_" + key[:12],
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
		OrganizationID: f.org.ID,
		LicenseKey:     key,
		Type:           TypeSubscription,
		Plan:           plan.Professional,
		Status:         status,
		BillingCycle:   BillingYearly,
		MaxUsers:       25,
		MaxBranches:    5,
		StorageLimitMB: 10240,
		APICallLimit:   100000,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
	}
	require.NoError(t, f.db.Create(lic).Error)
	return lic
}

func TestCreateAppliesPlanDefaults(t *testing.T) {
	f := newFixture(t)

	lic, err := f.svc.Create(context.Background(), CreateRequest{
		OrganizationID: f.org.ID,
		Type:           TypeSubscription,
		Plan:           plan.Starter,
		MaxUsers:       500, // must be ignored for non-enterprise plans
	})
	require.NoError(t, err)

	require.Equal(t, 5, lic.MaxUsers)
	require.Equal(t, int64(10000), lic.APICallLimit)
	require.Equal(t, int64(1024), lic.StorageLimitMB)
	require.Equal(t, StatusActive, lic.Status)
	require.Len(t, lic.LicenseKey, 64)
	require.True(t, lic.HasFeature("attendance"))
	require.False(t, lic.HasFeature("sso"))

	require.Len(t, f.emitter.calls, 1)
	require.Equal(t, notify.EventLicenseCreated, f.emitter.calls[0].event)
	require.Equal(t, []string{"billing@acme.test"}, f.emitter.calls[0].recipients)
}

func TestCreateTrial(t *testing.T) {
	f := newFixture(t)

	lic, err := f.svc.Create(context.Background(), CreateRequest{
		OrganizationID: f.org.ID,
		Type:           TypeTrial,
		Plan:           plan.Starter,
	})
	require.NoError(t, err)

	require.Equal(t, StatusTrial, lic.Status)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 30), lic.ValidUntil, time.Minute)
}

func TestCreateEnterpriseKeepsCustomQuotas(t *testing.T) {
	f := newFixture(t)

	lic, err := f.svc.Create(context.Background(), CreateRequest{
		OrganizationID: f.org.ID,
		Type:           TypeEnterprise,
		Plan:           plan.Enterprise,
		MaxUsers:       1000,
		APICallLimit:   5000000,
	})
	require.NoError(t, err)

	require.Equal(t, 1000, lic.MaxUsers)
	require.Equal(t, int64(5000000), lic.APICallLimit)
	require.True(t, lic.HasFeature("white_label"))
}

func TestCreateInvalidPlan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{
		OrganizationID: f.org.ID,
		Type:           TypeSubscription,
		Plan:           "platinum",
	})
	require.ErrorIs(t, err, plan.ErrInvalidPlan)
}

func TestValidateActiveInWindow(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -30), time.Now().AddDate(0, 0, 30))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.True(t, valid)

	got, err := f.svc.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.LastValidated)
}

func TestValidateEntersGracePeriod(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -370), time.Now().AddDate(0, 0, -5))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.True(t, valid)

	got, err := f.svc.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusGracePeriod, got.Status)
}

func TestValidateExpiresPastGrace(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -400), time.Now().AddDate(0, 0, -20))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.False(t, valid)

	got, err := f.svc.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)
}

func TestValidateSuspended(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusSuspended, time.Now().AddDate(0, 0, -30), time.Now().AddDate(0, 0, 30))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.False(t, valid)

	got, err := f.svc.Get(context.Background(), lic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, got.Status)
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestValidateCachesVerdict(t *testing.T) {
	mr, rdb := newTestCache(t)
	f := newFixtureWithCache(t, rdb)
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -30), time.Now().AddDate(0, 0, 30))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.True(t, valid)

	key := rediskey.BuildLicenseValidKey(lic.ID)
	require.True(t, mr.Exists(key))
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "1", got)

	// mutations drop the cached verdict
	_, err = f.svc.Suspend(context.Background(), lic.ID, "usr_1")
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}

func TestValidateCacheClampedToExpiry(t *testing.T) {
	mr, rdb := newTestCache(t)
	f := newFixtureWithCache(t, rdb)

	// expiry lands inside the configured TTL; the cached entry must not
	// outlive it and mask the grace transition
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -30), time.Now().Add(10*time.Second))

	valid, err := f.svc.Validate(context.Background(), lic.ID)
	require.NoError(t, err)
	require.True(t, valid)

	key := rediskey.BuildLicenseValidKey(lic.ID)
	require.True(t, mr.Exists(key))
	require.LessOrEqual(t, mr.TTL(key), 10*time.Second)
}

func TestValidateNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Validate(context.Background(), "lic_missing")
	require.Error(t, err)
}

func TestRenewOutsideWindow(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 100))

	_, err := f.svc.Renew(context.Background(), lic.ID, "usr_1")
	require.ErrorIs(t, err, ErrRenewalWindow)
}

func TestRenewInsideWindow(t *testing.T) {
	f := newFixture(t)
	oldUntil := time.Now().AddDate(0, 0, 10)
	lic := f.seedLicense(t, StatusActive, time.Now().AddDate(0, 0, -355), oldUntil)

	renewed, err := f.svc.Renew(context.Background(), lic.ID, "usr_1")
	require.NoError(t, err)

	// early renewal keeps the remaining term: the new window starts at
	// the old expiry, not at now
	require.WithinDuration(t, oldUntil, renewed.ValidFrom, time.Second)
	require.WithinDuration(t, oldUntil.AddDate(0, 0, 365), renewed.ValidUntil, time.Second)
	require.Equal(t, StatusActive, renewed.Status)

	require.Len(t, f.emitter.calls, 1)
	require.Equal(t, notify.EventLicenseRenewed, f.emitter.calls[0].event)
}

func TestRenewAfterExpiry(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusExpired, time.Now().AddDate(0, 0, -400), time.Now().AddDate(0, 0, -20))

	renewed, err := f.svc.Renew(context.Background(), lic.ID, "usr_1")
	require.NoError(t, err)

	// expired license renews from now
	require.WithinDuration(t, time.Now(), renewed.ValidFrom, time.Minute)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 365), renewed.ValidUntil, time.Minute)
	require.Equal(t, StatusActive, renewed.Status)
}

func TestSuspendAndActivate(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	suspended, err := f.svc.Suspend(context.Background(), lic.ID, "usr_1")
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, suspended.Status)

	// double suspend is rejected
	_, err = f.svc.Suspend(context.Background(), lic.ID, "usr_1")
	require.Error(t, err)

	activated, err := f.svc.Activate(context.Background(), lic.ID, "usr_1")
	require.NoError(t, err)
	require.Equal(t, StatusActive, activated.Status)
}

func TestTransferRequiresActive(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusSuspended, time.Now(), time.Now().AddDate(0, 0, 30))

	other, err := f.orgs.Create(context.Background(), organization.CreateRequest{
		Name:         "Globex",
		BillingEmail: "billing@globex.test",
	})
	require.NoError(t, err)

	_, err = f.svc.Transfer(context.Background(), lic.ID, TransferRequest{
		NewOrganizationID: other.ID,
	})
	require.ErrorIs(t, err, ErrTransferIneligible)
	require.Contains(t, err.Error(), "License must be active to transfer")
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	other, err := f.orgs.Create(context.Background(), organization.CreateRequest{
		Name:         "Globex",
		BillingEmail: "billing@globex.test",
	})
	require.NoError(t, err)

	moved, err := f.svc.Transfer(context.Background(), lic.ID, TransferRequest{
		NewOrganizationID: other.ID,
		ActorID:           "usr_1",
		Reason:            "acquisition",
	})
	require.NoError(t, err)
	require.Equal(t, other.ID, moved.OrganizationID)

	trail, err := f.audit.GetAuditTrail(context.Background(), lic.ID, audit.Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), trail.Total)
	require.Equal(t, audit.ActionTransfer, trail.Items[0].Action)
	require.Equal(t, "acquisition", trail.Items[0].Metadata["reason"])

	// both organizations are told
	require.Len(t, f.emitter.calls, 2)
	require.Equal(t, []string{"billing@acme.test"}, f.emitter.calls[0].recipients)
	require.Equal(t, []string{"billing@globex.test"}, f.emitter.calls[1].recipients)
}

func TestTransferAttemptLimit(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.audit.Log(context.Background(), audit.Entry{
			Action:         audit.ActionTransfer,
			LicenseID:      lic.ID,
			OrganizationID: f.org.ID,
		}))
	}

	other, err := f.orgs.Create(context.Background(), organization.CreateRequest{
		Name:         "Globex",
		BillingEmail: "billing@globex.test",
	})
	require.NoError(t, err)

	_, err = f.svc.Transfer(context.Background(), lic.ID, TransferRequest{
		NewOrganizationID: other.ID,
	})
	require.ErrorIs(t, err, ErrTransferIneligible)
}

func TestUpdatePlanRefreshesFeatures(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	newPlan := plan.Business
	updated, err := f.svc.Update(context.Background(), lic.ID, UpdateRequest{
		Plan: &newPlan,
	})
	require.NoError(t, err)

	require.Equal(t, plan.Business, updated.Plan)
	require.Equal(t, 100, updated.MaxUsers)
	require.True(t, updated.HasFeature("api_access"))

	trail, err := f.audit.GetAuditTrail(context.Background(), lic.ID, audit.Filter{})
	require.NoError(t, err)
	require.Equal(t, audit.ActionUpgrade, trail.Items[0].Action)
}

func TestCheckLimits(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	exceeded, err := f.svc.CheckLimits(context.Background(), lic.ID, MetricUsers, 10)
	require.NoError(t, err)
	require.False(t, exceeded)
	require.Empty(t, f.emitter.calls)

	exceeded, err = f.svc.CheckLimits(context.Background(), lic.ID, MetricUsers, 26)
	require.NoError(t, err)
	require.True(t, exceeded)
	require.Len(t, f.emitter.calls, 1)
	require.Equal(t, notify.EventLimitReached, f.emitter.calls[0].event)
}

func TestCheckLimitsUnknownMetric(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))

	_, err := f.svc.CheckLimits(context.Background(), lic.ID, "gpu_hours", 1)
	require.ErrorIs(t, err, ErrUnknownMetric)
}

func TestCheckLimitsUnmetered(t *testing.T) {
	f := newFixture(t)
	lic := f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))
	lic.IntegrationLimit = 0
	require.NoError(t, f.db.Save(lic).Error)

	exceeded, err := f.svc.CheckLimits(context.Background(), lic.ID, MetricIntegrations, 1e9)
	require.NoError(t, err)
	require.False(t, exceeded)
}

func TestListByOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 30))
	f.seedLicense(t, StatusActive, time.Now(), time.Now().AddDate(0, 0, 60))

	page, err := f.svc.ListByOrganization(context.Background(), f.org.ID, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
}
