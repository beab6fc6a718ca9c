package usage

import (
	"context"
	"testing"
	"time"

	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/gen"
	"licenseplane/services/audit"
	"licenseplane/services/license"
	"licenseplane/services/notify"
	"licenseplane/services/organization"
	"licenseplane/services/plan"
	"licenseplane/services/testutil"

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
	emitter *mockEmitter
	lic     *license.License
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&LicenseUsage{}, &LicenseEvent{},
		&license.License{}, &organization.Organization{}, &audit.LicenseAudit{},
	)

	node, err := gen.NewNode()
	require.NoError(t, err)

	cfg := testutil.NewTestConfig(t)

	orgs := organization.NewService(organization.ServiceParams{DB: db, Node: node})
	auditSvc := audit.NewService(audit.ServiceParams{DB: db, Node: node})
	emitter := &mockEmitter{}

	licenses := license.NewService(license.ServiceParams{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Catalog:  plan.NewCatalog(plan.CatalogParams{}),
		Orgs:     orgs,
		Audit:    auditSvc,
		Notifier: emitter,
	})

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Licenses: licenses,
		Orgs:     orgs,
		Notifier: emitter,
	})

	org, err := orgs.Create(context.Background(), organization.CreateRequest{
		Name:         "Acme Corp",
		BillingEmail: "billing@acme.test",
	})
	require.NoError(t, err)

	lic, err := licenses.Create(context.Background(), license.CreateRequest{
		OrganizationID: org.ID,
		Type:           license.TypeSubscription,
		Plan:           plan.Starter, // api_call_limit 10000
	})
	require.NoError(t, err)

	emitter.calls = nil // drop the creation notification

	return &fixture{db: db, svc: svc, emitter: emitter, lic: lic}
}

func (f *fixture) events(t *testing.T) []LicenseEvent {
	t.Helper()
	var out []LicenseEvent
	require.NoError(t, f.db.Where("license_id = ?", f.lic.ID).Find(&out).Error)
	return out
}

func TestTrackBelowThreshold(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 7999, nil)
	require.NoError(t, err)
	require.InDelta(t, 79.99, record.Utilization, 0.001)

	require.Empty(t, f.events(t))
	require.Empty(t, f.emitter.calls)
}

func TestTrackAtThreshold(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 8001, nil)
	require.NoError(t, err)
	require.InDelta(t, 80.01, record.Utilization, 0.001)

	events := f.events(t)
	require.Len(t, events, 1)
	require.Equal(t, EventLimitExceeded, events[0].EventType)
	require.Equal(t, license.MetricAPICalls, events[0].Metric)

	require.Len(t, f.emitter.calls, 1)
	require.Equal(t, notify.EventLimitReached, f.emitter.calls[0].event)
	require.Equal(t, []string{"billing@acme.test"}, f.emitter.calls[0].recipients)
}

func TestTrackEveryBreachRecordsOneEvent(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 9500, nil)
		require.NoError(t, err)
	}

	require.Len(t, f.events(t), 3)
}

func TestTrackSnapshotsLimitInEffect(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 5000, nil)
	require.NoError(t, err)
	require.Equal(t, float64(10000), first.Limit)
	require.InDelta(t, 50, first.Utilization, 0.001)

	// plan upgrade raises the quota; the stored sample keeps the old one
	require.NoError(t, f.db.Model(f.lic).Update("api_call_limit", 500000).Error)

	second, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 5000, nil)
	require.NoError(t, err)
	require.Equal(t, float64(500000), second.Limit)

	page, err := f.svc.History(context.Background(), f.lic.ID, HistoryFilter{Metric: license.MetricAPICalls})
	require.NoError(t, err)
	require.Equal(t, float64(10000), page.Items[0].Limit)
	require.InDelta(t, 50, page.Items[0].Utilization, 0.001)

	analytics, err := f.svc.Analytics(context.Background(), f.lic.ID)
	require.NoError(t, err)
	for _, a := range analytics {
		if a.Metric == license.MetricAPICalls {
			require.Equal(t, float64(500000), a.Limit)
		}
	}
}

func TestTrackPersistsMetadata(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 100, map[string]any{
		"source": "agent",
	})
	require.NoError(t, err)
	require.Equal(t, "agent", record.Metadata["source"])

	page, err := f.svc.History(context.Background(), f.lic.ID, HistoryFilter{})
	require.NoError(t, err)
	require.Equal(t, "agent", page.Items[0].Metadata["source"])
}

func TestTrackAlertCarriesActorContext(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 9500, map[string]any{
		"actor_id":   "usr_1",
		"ip_address": "203.0.113.7",
		"user_agent": "licensectl/1.0",
	})
	require.NoError(t, err)

	events := f.events(t)
	require.Len(t, events, 1)
	require.Equal(t, "usr_1", events[0].UserID)
	require.Equal(t, "203.0.113.7", events[0].IPAddress)
	require.Equal(t, "licensectl/1.0", events[0].UserAgent)
}

func TestTrackUnmetered(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.lic).Update("integration_limit", 0).Error)

	record, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricIntegrations, 1e9, nil)
	require.NoError(t, err)
	require.Zero(t, record.Utilization)

	require.Empty(t, f.events(t))
}

func TestTrackUnknownMetric(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Track(context.Background(), f.lic.ID, "gpu_hours", 1, nil)
	require.ErrorIs(t, err, license.ErrUnknownMetric)
}

func TestTrackUnknownLicense(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Track(context.Background(), "lic_missing", license.MetricUsers, 1, nil)
	require.Error(t, err)
}

func TestHistoryAscending(t *testing.T) {
	f := newFixture(t)

	for _, v := range []float64{100, 200, 300} {
		_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, v, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	page, err := f.svc.History(context.Background(), f.lic.ID, HistoryFilter{
		Metric:     license.MetricAPICalls,
		Pagination: pagination.Pagination{},
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.Equal(t, float64(100), page.Items[0].Value)
	require.Equal(t, float64(300), page.Items[2].Value)
}

func TestAnalyticsLatestPerMetric(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricUsers, 2, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Track(context.Background(), f.lic.ID, license.MetricUsers, 4, nil)
	require.NoError(t, err)

	analytics, err := f.svc.Analytics(context.Background(), f.lic.ID)
	require.NoError(t, err)
	require.Len(t, analytics, len(license.AllMetrics))

	byMetric := map[license.MetricType]MetricAnalytics{}
	for _, a := range analytics {
		byMetric[a.Metric] = a
	}

	users := byMetric[license.MetricUsers]
	require.Equal(t, float64(4), users.Value)
	require.InDelta(t, 80, users.Utilization, 0.001)

	// never-sampled metrics report zero
	require.Zero(t, byMetric[license.MetricStorage].Value)
	require.Zero(t, byMetric[license.MetricStorage].Utilization)
}

func TestComplianceCarriesFullAlertHistory(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 25; i++ {
		_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 9500, nil)
		require.NoError(t, err)
	}

	report, err := f.svc.Compliance(context.Background(), f.lic.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), report.AlertCount)
	require.Len(t, report.Alerts, 25)
}

func TestCompliance(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Track(context.Background(), f.lic.ID, license.MetricAPICalls, 9000, nil)
	require.NoError(t, err)

	report, err := f.svc.Compliance(context.Background(), f.lic.ID)
	require.NoError(t, err)

	require.True(t, report.Valid)
	require.Equal(t, license.StatusActive, report.Status)
	require.Equal(t, int64(1), report.SampleCount)
	require.Equal(t, int64(1), report.AlertCount)
	require.Len(t, report.Alerts, 1)
}
