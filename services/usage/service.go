package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"licenseplane/pkg/config"
	"licenseplane/pkg/db/option"
	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/repository"
	"licenseplane/pkg/task"
	"licenseplane/pkg/taskname"
	"licenseplane/services/license"
	"licenseplane/services/notify"
	"licenseplane/services/organization"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	cfg      *config.Config
	usages   repository.Repository[LicenseUsage]
	events   repository.Repository[LicenseEvent]
	licenses *license.Service
	orgs     *organization.Service
	notifier notify.Emitter
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Licenses *license.Service
	Orgs     *organization.Service
	Notifier notify.Emitter
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		cfg:      p.Config,
		usages:   repository.ProvideStore[LicenseUsage](p.DB),
		events:   repository.ProvideStore[LicenseEvent](p.DB),
		licenses: p.Licenses,
		orgs:     p.Orgs,
		notifier: p.Notifier,
		enqueuer: p.Enqueuer,
	}
}

func (s *Service) logWith(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

// Track appends one usage sample with the limit in effect at observation
// time and any caller-supplied metadata. When the sample crosses the
// configured alert threshold exactly one license event is recorded and
// the owner is warned; the sample itself is stored either way. Unmetered
// quotas (a zero limit) never produce events.
func (s *Service) Track(ctx context.Context, licenseID string, metric license.MetricType, value float64, metadata map[string]any) (*LicenseUsage, error) {
	zapLog := s.logWith(ctx)

	lic, err := s.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	limit, err := lic.LimitFor(metric)
	if err != nil {
		return nil, err
	}

	var utilization float64
	if limit > 0 {
		utilization = value / limit * 100
	}

	record := &LicenseUsage{
		ID:             gen.ID(s.node, "usg"),
		CreatedAt:      time.Now(),
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		Metric:         metric,
		Value:          value,
		Limit:          limit,
		Utilization:    utilization,
		Metadata:       datatypes.JSONMap(metadata),
	}

	if err := s.usages.Create(ctx, record); err != nil {
		zapLog.Error("failed to record usage", zap.String("license_id", licenseID), zap.Error(err))
		return nil, errutil.Internal("failed to record usage", errutil.WithErr(err))
	}

	if limit > 0 && utilization >= s.cfg.Licensing.AlertThreshold {
		if err := s.raiseAlert(ctx, lic, metric, value, limit, utilization, metadata); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// stringField pulls a well-known string key out of free-form metadata.
func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func (s *Service) raiseAlert(ctx context.Context, lic *license.License, metric license.MetricType, value, limit, utilization float64, metadata map[string]any) error {
	zapLog := s.logWith(ctx)

	event := &LicenseEvent{
		ID:        gen.ID(s.node, "evt"),
		CreatedAt: time.Now(),
		LicenseID: lic.ID,
		EventType: EventLimitExceeded,
		Metric:    metric,
		UserID:    stringField(metadata, "actor_id"),
		IPAddress: stringField(metadata, "ip_address"),
		UserAgent: stringField(metadata, "user_agent"),
		Details: datatypes.JSONMap{
			"value":       value,
			"limit":       limit,
			"utilization": utilization,
		},
	}

	if err := s.events.Create(ctx, event); err != nil {
		zapLog.Error("failed to record license event", zap.String("license_id", lic.ID), zap.Error(err))
		return errutil.Internal("failed to record license event", errutil.WithErr(err))
	}

	zapLog.Warn("usage crossed alert threshold",
		zap.String("license_id", lic.ID),
		zap.String("metric", string(metric)),
		zap.Float64("value", value),
		zap.Float64("limit", limit),
		zap.Float64("utilization", utilization),
	)

	org, err := s.orgs.Get(ctx, lic.OrganizationID)
	if err != nil {
		zapLog.Warn("failed to resolve owner for usage alert",
			zap.String("license_id", lic.ID),
			zap.Error(err),
		)
		return nil
	}

	s.notifier.Emit(notify.EventLimitReached, "usage_alert", []string{org.BillingEmail}, map[string]any{
		"license_id":  lic.ID,
		"metric":      string(metric),
		"value":       value,
		"limit":       limit,
		"utilization": fmt.Sprintf("%.2f%%", utilization),
	})

	return nil
}

// HistoryFilter narrows a usage history query. Zero fields are ignored.
type HistoryFilter struct {
	Metric     license.MetricType `form:"metric"`
	Start      time.Time          `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End        time.Time          `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	Pagination pagination.Pagination
}

// History returns usage samples for a license, oldest first.
func (s *Service) History(ctx context.Context, licenseID string, f HistoryFilter) (*pagination.Page[LicenseUsage], error) {
	if _, err := s.licenses.Get(ctx, licenseID); err != nil {
		return nil, err
	}

	query := &LicenseUsage{LicenseID: licenseID, Metric: f.Metric}

	opts := []option.QueryOption{
		option.TimeRange("created_at", f.Start, f.End),
	}

	total, err := s.usages.Count(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to query usage history", errutil.WithErr(err))
	}

	opts = append(opts,
		option.Order("created_at ASC"),
		option.ApplyPagination(f.Pagination),
	)

	records, err := s.usages.Find(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to query usage history", errutil.WithErr(err))
	}

	return pagination.NewPage(total, records), nil
}

// MetricAnalytics is the latest reading for one metric.
type MetricAnalytics struct {
	Metric      license.MetricType `json:"metric"`
	Value       float64            `json:"value"`
	Limit       float64            `json:"limit"`
	Utilization float64            `json:"utilization"`
}

// Analytics reports the latest utilization for every known metric.
// Metrics that have never been sampled report zero.
func (s *Service) Analytics(ctx context.Context, licenseID string) ([]MetricAnalytics, error) {
	lic, err := s.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	out := make([]MetricAnalytics, 0, len(license.AllMetrics))
	for _, metric := range license.AllMetrics {
		limit, err := lic.LimitFor(metric)
		if err != nil {
			return nil, err
		}

		entry := MetricAnalytics{Metric: metric, Limit: limit}

		latest, err := s.usages.FindOne(ctx,
			&LicenseUsage{LicenseID: licenseID, Metric: metric},
			option.Order("created_at DESC"),
		)
		if err != nil {
			return nil, errutil.Internal("failed to query usage analytics", errutil.WithErr(err))
		}
		if latest != nil {
			// report the limit the sample was measured against, not the
			// quota in effect now
			entry.Value = latest.Value
			entry.Limit = latest.Limit
			entry.Utilization = latest.Utilization
		}

		out = append(out, entry)
	}

	return out, nil
}

// ComplianceReport bundles the license, its latest utilization and its
// alert history into one reviewable document.
type ComplianceReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	License     *license.License  `json:"license"`
	Analytics   []MetricAnalytics `json:"analytics"`
	SampleCount int64             `json:"sample_count"`
	AlertCount  int64             `json:"alert_count"`
	Alerts      []*LicenseEvent   `json:"alerts"`
	Valid       bool              `json:"valid"`
	Status      license.Status    `json:"status"`
}

func (s *Service) Compliance(ctx context.Context, licenseID string) (*ComplianceReport, error) {
	lic, err := s.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	analytics, err := s.Analytics(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	samples, err := s.usages.Count(ctx, &LicenseUsage{LicenseID: licenseID})
	if err != nil {
		return nil, errutil.Internal("failed to build compliance report", errutil.WithErr(err))
	}

	alertCount, err := s.events.Count(ctx, &LicenseEvent{LicenseID: licenseID})
	if err != nil {
		return nil, errutil.Internal("failed to build compliance report", errutil.WithErr(err))
	}

	// the report carries the full alert history, not a page of it
	alerts, err := s.events.Find(ctx,
		&LicenseEvent{LicenseID: licenseID},
		option.Order("created_at DESC"),
	)
	if err != nil {
		return nil, errutil.Internal("failed to build compliance report", errutil.WithErr(err))
	}

	valid, err := s.licenses.Validate(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	// Validate may have moved the status, re-read.
	lic, err = s.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	return &ComplianceReport{
		GeneratedAt: time.Now(),
		License:     lic,
		Analytics:   analytics,
		SampleCount: samples,
		AlertCount:  alertCount,
		Alerts:      alerts,
		Valid:       valid,
		Status:      lic.Status,
	}, nil
}

// ExportPayload is the asynq task body for report exports.
type ExportPayload struct {
	LicenseID string `json:"license_id"`
	Key       string `json:"key"`
}

// Export queues a compliance report export and returns the object key the
// report will land under.
func (s *Service) Export(ctx context.Context, licenseID string) (string, error) {
	zapLog := s.logWith(ctx)

	if s.enqueuer == nil {
		return "", errutil.ServiceUnavailable("report export is not configured")
	}

	if _, err := s.licenses.Get(ctx, licenseID); err != nil {
		return "", err
	}

	key := fmt.Sprintf("reports/%s/%s.json", licenseID, time.Now().Format("20060102T150405"))

	payload, err := json.Marshal(ExportPayload{LicenseID: licenseID, Key: key})
	if err != nil {
		return "", errutil.Internal("failed to encode export task", errutil.WithErr(err))
	}

	if _, err := s.enqueuer.Enqueue(
		asynq.NewTask(taskname.ReportExport, payload),
		asynq.Queue(taskname.QueueLow),
	); err != nil {
		zapLog.Error("failed to enqueue report export", zap.String("license_id", licenseID), zap.Error(err))
		return "", errutil.Internal("failed to enqueue report export", errutil.WithErr(err))
	}

	zapLog.Info("report export queued", zap.String("license_id", licenseID), zap.String("key", key))
	return key, nil
}
