package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"licenseplane/pkg/config"
	"licenseplane/pkg/db/option"
	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/rediskey"
	"licenseplane/pkg/repository"
	"licenseplane/services/audit"
	"licenseplane/services/notify"
	"licenseplane/services/organization"
	"licenseplane/services/plan"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrRenewalWindow marks renew calls made before the renewal window
	// opens.
	ErrRenewalWindow = errors.New("outside renewal window")
	// ErrTransferIneligible marks transfer calls whose preconditions are
	// not met. The wrapping error message carries the reason.
	ErrTransferIneligible = errors.New("transfer ineligible")
)

const (
	defaultTermDays      = 365
	defaultTrialTermDays = 30
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	cfg      *config.Config
	repo     repository.Repository[License]
	catalog  *plan.Catalog
	orgs     *organization.Service
	audit    *audit.Service
	notifier notify.Emitter
	cache    *redis.Client
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Catalog  *plan.Catalog
	Orgs     *organization.Service
	Audit    *audit.Service
	Notifier notify.Emitter
	Cache    *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		cfg:      p.Config,
		repo:     repository.ProvideStore[License](p.DB),
		catalog:  p.Catalog,
		orgs:     p.Orgs,
		audit:    p.Audit,
		notifier: p.Notifier,
		cache:    p.Cache,
	}
}

func (s *Service) logWith(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}

type CreateRequest struct {
	OrganizationID   string       `json:"organization_id" binding:"required"`
	Type             Type         `json:"type" binding:"required"`
	Plan             plan.Plan    `json:"plan" binding:"required"`
	BillingCycle     BillingCycle `json:"billing_cycle"`
	MaxUsers         int          `json:"max_users"`
	MaxBranches      int          `json:"max_branches"`
	StorageLimitMB   int64        `json:"storage_limit_mb"`
	APICallLimit     int64        `json:"api_call_limit"`
	IntegrationLimit int          `json:"integration_limit"`
	Price            float64      `json:"price"`
	ValidUntil       *time.Time   `json:"valid_until"`
	AutoRenew        bool         `json:"auto_renew"`
	ActorID          string       `json:"actor_id"`
}

// Create issues a new license. For every plan except enterprise the quota
// fields come from the catalog regardless of what the caller supplied;
// enterprise licenses keep their negotiated custom quotas.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*License, error) {
	zapLog := s.logWith(ctx)

	quota, err := s.catalog.Quota(req.Plan)
	if err != nil {
		return nil, err
	}

	features, err := s.catalog.Features(req.Plan)
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	key, err := NewKey()
	if err != nil {
		zapLog.Error("failed to generate license key", zap.Error(err))
		return nil, errutil.Internal("failed to generate license key", errutil.WithErr(err))
	}

	now := time.Now()

	status := StatusActive
	termDays := defaultTermDays
	if req.Type == TypeTrial {
		status = StatusTrial
		termDays = defaultTrialTermDays
	}

	validUntil := now.AddDate(0, 0, termDays)
	if req.ValidUntil != nil {
		validUntil = *req.ValidUntil
	}
	if validUntil.Before(now) {
		return nil, errutil.ValidationFailed("valid_until must be in the future")
	}

	billing := req.BillingCycle
	if billing == "" {
		billing = BillingYearly
	}

	lic := &License{
		ID:             gen.ID(s.node, "lic"),
		CreatedAt:      now,
		UpdatedAt:      now,
		OrganizationID: org.ID,
		LicenseKey:     key,
		Type:           req.Type,
		Plan:           req.Plan,
		Status:         status,
		BillingCycle:   billing,
		Features:       FeatureSet(features),
		ValidFrom:      now,
		ValidUntil:     validUntil,
		AutoRenew:      req.AutoRenew,
	}

	if req.Plan == plan.Enterprise {
		lic.MaxUsers = req.MaxUsers
		lic.MaxBranches = req.MaxBranches
		lic.StorageLimitMB = req.StorageLimitMB
		lic.APICallLimit = req.APICallLimit
		lic.IntegrationLimit = req.IntegrationLimit
		lic.Price = req.Price
		if lic.Price == 0 {
			lic.Price = quota.Price
		}
	} else {
		lic.MaxUsers = quota.MaxUsers
		lic.MaxBranches = quota.MaxBranches
		lic.StorageLimitMB = quota.StorageLimitMB
		lic.APICallLimit = quota.APICallLimit
		lic.IntegrationLimit = quota.IntegrationLimit
		lic.Price = quota.Price
	}

	if err := s.repo.Create(ctx, lic); err != nil {
		zapLog.Error("failed to create license", zap.Error(err))
		return nil, errutil.Internal("failed to create license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         audit.ActionCreate,
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		UserID:         req.ActorID,
		Metadata: map[string]any{
			"plan": string(lic.Plan),
			"type": string(lic.Type),
		},
	}); err != nil {
		return nil, err
	}

	s.notifier.Emit(notify.EventLicenseCreated, "license_created", []string{org.BillingEmail}, map[string]any{
		"license_id":  lic.ID,
		"plan":        string(lic.Plan),
		"max_users":   lic.MaxUsers,
		"api_calls":   lic.APICallLimit,
		"valid_until": lic.ValidUntil,
		"features":    features,
	})

	zapLog.Info("license created",
		zap.String("license_id", lic.ID),
		zap.String("organization_id", lic.OrganizationID),
		zap.String("plan", string(lic.Plan)),
	)
	return lic, nil
}

func (s *Service) Get(ctx context.Context, id string) (*License, error) {
	lic, err := s.repo.FindOne(ctx, &License{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to get license", errutil.WithErr(err))
	}
	if lic == nil {
		return nil, errutil.NotFound("license not found")
	}
	return lic, nil
}

func (s *Service) List(ctx context.Context, p pagination.Pagination) (*pagination.Page[License], error) {
	total, err := s.repo.Count(ctx, &License{})
	if err != nil {
		return nil, errutil.Internal("failed to list licenses", errutil.WithErr(err))
	}

	items, err := s.repo.Find(ctx, &License{},
		option.Order("created_at DESC"),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list licenses", errutil.WithErr(err))
	}

	return pagination.NewPage(total, items), nil
}

func (s *Service) ListByOrganization(ctx context.Context, orgID string, p pagination.Pagination) (*pagination.Page[License], error) {
	query := &License{OrganizationID: orgID}

	total, err := s.repo.Count(ctx, query)
	if err != nil {
		return nil, errutil.Internal("failed to list licenses", errutil.WithErr(err))
	}

	items, err := s.repo.Find(ctx, query,
		option.Order("created_at DESC"),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list licenses", errutil.WithErr(err))
	}

	return pagination.NewPage(total, items), nil
}

var planRank = map[plan.Plan]int{
	plan.Starter:      1,
	plan.Professional: 2,
	plan.Business:     3,
	plan.Enterprise:   4,
}

type UpdateRequest struct {
	Plan         *plan.Plan    `json:"plan"`
	BillingCycle *BillingCycle `json:"billing_cycle"`
	Price        *float64      `json:"price"`
	AutoRenew    *bool         `json:"auto_renew"`
	ValidUntil   *time.Time    `json:"valid_until"`
	ActorID      string        `json:"actor_id"`
}

// Update patches mutable fields. A plan change refreshes the feature set
// from the catalog before other fields apply.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*License, error) {
	zapLog := s.logWith(ctx)

	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	action := audit.ActionUpdate
	oldPlan := lic.Plan

	if req.Plan != nil && *req.Plan != lic.Plan {
		features, err := s.catalog.Features(*req.Plan)
		if err != nil {
			return nil, err
		}

		quota, err := s.catalog.Quota(*req.Plan)
		if err != nil {
			return nil, err
		}

		lic.Plan = *req.Plan
		lic.Features = FeatureSet(features)
		if *req.Plan != plan.Enterprise {
			lic.MaxUsers = quota.MaxUsers
			lic.MaxBranches = quota.MaxBranches
			lic.StorageLimitMB = quota.StorageLimitMB
			lic.APICallLimit = quota.APICallLimit
			lic.IntegrationLimit = quota.IntegrationLimit
			lic.Price = quota.Price
		}

		switch {
		case planRank[*req.Plan] > planRank[oldPlan]:
			action = audit.ActionUpgrade
		case planRank[*req.Plan] < planRank[oldPlan]:
			action = audit.ActionDowngrade
		}
	}

	if req.BillingCycle != nil {
		lic.BillingCycle = *req.BillingCycle
	}
	if req.Price != nil {
		lic.Price = *req.Price
	}
	if req.AutoRenew != nil {
		lic.AutoRenew = *req.AutoRenew
	}
	if req.ValidUntil != nil {
		if req.ValidUntil.Before(lic.ValidFrom) {
			return nil, errutil.ValidationFailed("valid_until must not precede valid_from")
		}
		lic.ValidUntil = *req.ValidUntil
	}

	lic.UpdatedAt = time.Now()
	if err := s.persist(ctx, lic); err != nil {
		zapLog.Error("failed to update license", zap.String("license_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to update license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         action,
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		UserID:         req.ActorID,
		Metadata: map[string]any{
			"old_plan": string(oldPlan),
			"new_plan": string(lic.Plan),
		},
	}); err != nil {
		return nil, err
	}

	s.emitToOwner(ctx, lic, notify.EventLicenseUpdated, "license_updated", map[string]any{
		"license_id": lic.ID,
		"plan":       string(lic.Plan),
	})

	return lic, nil
}

// Validate is the on-demand state check. It is deliberately not a pure
// query: the first call after the validity window closes moves the
// license into grace_period or expired as a side effect, and every call
// records last_validated. Concurrent callers may race on the status
// write; last writer wins.
func (s *Service) Validate(ctx context.Context, id string) (bool, error) {
	zapLog := s.logWith(ctx)

	if cached, ok := s.cachedValidation(ctx, id); ok {
		return cached, nil
	}

	lic, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	now := time.Now()
	lic.LastValidated = &now

	valid, transitioned := s.evaluate(lic, now)

	lic.UpdatedAt = now
	if err := s.persist(ctx, lic); err != nil {
		zapLog.Error("failed to persist validation result", zap.String("license_id", id), zap.Error(err))
		return false, errutil.Internal("failed to validate license", errutil.WithErr(err))
	}

	if transitioned {
		if err := s.audit.Log(ctx, audit.Entry{
			Action:         audit.ActionValidate,
			LicenseID:      lic.ID,
			OrganizationID: lic.OrganizationID,
			Metadata: map[string]any{
				"new_status": string(lic.Status),
			},
		}); err != nil {
			return false, err
		}
		zapLog.Info("license status transitioned on validation",
			zap.String("license_id", lic.ID),
			zap.String("status", string(lic.Status)),
		)
	}

	s.cacheValidation(ctx, lic, valid)

	return valid, nil
}

// evaluate applies the temporal rules and mutates status in place.
// It reports validity and whether a transition occurred.
func (s *Service) evaluate(lic *License, now time.Time) (valid bool, transitioned bool) {
	if lic.Status == StatusSuspended {
		return false, false
	}

	if now.After(lic.ValidUntil) {
		graceDays := s.cfg.Licensing.GracePeriodDays
		gracePeriodEnd := lic.ValidUntil.AddDate(0, 0, graceDays)

		if !now.After(gracePeriodEnd) {
			transitioned = lic.Status != StatusGracePeriod
			lic.Status = StatusGracePeriod
			return true, transitioned
		}

		transitioned = lic.Status != StatusExpired
		lic.Status = StatusExpired
		return false, transitioned
	}

	if lic.Status == StatusTrial {
		return true, false
	}

	return lic.Status == StatusActive, false
}

// CheckLimits compares a caller-observed value against the license quota
// for the metric. Exceeding the quota is advisory: the caller is told and
// the owner notified, but nothing is blocked.
func (s *Service) CheckLimits(ctx context.Context, id string, metric MetricType, currentValue float64) (bool, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	limit, err := lic.LimitFor(metric)
	if err != nil {
		return false, err
	}

	// zero limit means unmetered
	if limit == 0 {
		return false, nil
	}

	exceeded := currentValue > limit
	if exceeded {
		s.emitToOwner(ctx, lic, notify.EventLimitReached, "limit_reached", map[string]any{
			"license_id": lic.ID,
			"metric":     string(metric),
			"current":    currentValue,
			"limit":      limit,
		})
	}

	return exceeded, nil
}

// Renew extends the validity window by the configured term. The new
// window starts at whichever is later: now or the old expiry, so an early
// renewal does not shorten the remaining term.
func (s *Service) Renew(ctx context.Context, id, actorID string) (*License, error) {
	zapLog := s.logWith(ctx)

	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	windowOpens := lic.ValidUntil.AddDate(0, 0, -s.cfg.Licensing.RenewalWindowDays)
	if now.Before(windowOpens) {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("renewal window opens %s", windowOpens.Format(time.RFC3339)),
			errutil.WithErr(ErrRenewalWindow),
		)
	}

	oldUntil := lic.ValidUntil

	newFrom := now
	if oldUntil.After(now) {
		newFrom = oldUntil
	}

	lic.ValidFrom = newFrom
	lic.ValidUntil = newFrom.AddDate(0, 0, s.cfg.Licensing.RenewalTermDays)
	lic.Status = StatusActive
	lic.UpdatedAt = now

	if err := s.persist(ctx, lic); err != nil {
		zapLog.Error("failed to renew license", zap.String("license_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to renew license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         audit.ActionRenew,
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		UserID:         actorID,
		Metadata: map[string]any{
			"old_valid_until": oldUntil,
			"new_valid_until": lic.ValidUntil,
		},
	}); err != nil {
		return nil, err
	}

	s.emitToOwner(ctx, lic, notify.EventLicenseRenewed, "license_renewed", map[string]any{
		"license_id":  lic.ID,
		"valid_until": lic.ValidUntil,
	})

	zapLog.Info("license renewed", zap.String("license_id", lic.ID), zap.Time("valid_until", lic.ValidUntil))
	return lic, nil
}

func (s *Service) Suspend(ctx context.Context, id, actorID string) (*License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if lic.Status != StatusActive {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("cannot suspend a license in status %q", lic.Status),
		)
	}

	lic.Status = StatusSuspended
	lic.UpdatedAt = time.Now()
	if err := s.persist(ctx, lic); err != nil {
		return nil, errutil.Internal("failed to suspend license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         audit.ActionSuspend,
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		UserID:         actorID,
	}); err != nil {
		return nil, err
	}

	s.emitToOwner(ctx, lic, notify.EventLicenseSuspended, "license_suspended", map[string]any{
		"license_id": lic.ID,
	})

	return lic, nil
}

func (s *Service) Activate(ctx context.Context, id, actorID string) (*License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if lic.Status != StatusSuspended {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("cannot reactivate a license in status %q", lic.Status),
		)
	}

	lic.Status = StatusActive
	lic.UpdatedAt = time.Now()
	if err := s.persist(ctx, lic); err != nil {
		return nil, errutil.Internal("failed to reactivate license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         audit.ActionReactivate,
		LicenseID:      lic.ID,
		OrganizationID: lic.OrganizationID,
		UserID:         actorID,
	}); err != nil {
		return nil, err
	}

	s.emitToOwner(ctx, lic, notify.EventLicenseActivated, "license_activated", map[string]any{
		"license_id": lic.ID,
	})

	return lic, nil
}

type TransferRequest struct {
	NewOrganizationID string `json:"new_organization_id" binding:"required"`
	ActorID           string `json:"actor_id"`
	Reason            string `json:"reason"`
}

// transferEligibility checks the preconditions without mutating anything.
func (s *Service) transferEligibility(ctx context.Context, lic *License) error {
	if lic.Status != StatusActive {
		return errutil.UnprocessableEntity(
			"License must be active to transfer",
			errutil.WithErr(ErrTransferIneligible),
		)
	}

	max := s.cfg.Licensing.MaxTransferAttempts
	if max > 0 {
		attempts, err := s.audit.CountActions(ctx, lic.ID, audit.ActionTransfer)
		if err != nil {
			return err
		}
		if attempts >= int64(max) {
			return errutil.UnprocessableEntity(
				"License transfer attempt limit reached",
				errutil.WithErr(ErrTransferIneligible),
			)
		}
	}

	return nil
}

// Transfer reassigns the owning organization. Both the losing and the
// gaining organization are notified by email.
func (s *Service) Transfer(ctx context.Context, id string, req TransferRequest) (*License, error) {
	zapLog := s.logWith(ctx)

	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.transferEligibility(ctx, lic); err != nil {
		return nil, err
	}

	oldOrg, err := s.orgs.Get(ctx, lic.OrganizationID)
	if err != nil {
		return nil, err
	}

	newOrg, err := s.orgs.Get(ctx, req.NewOrganizationID)
	if err != nil {
		return nil, err
	}

	if newOrg.Suspended {
		return nil, errutil.UnprocessableEntity(
			"Receiving organization is suspended",
			errutil.WithErr(ErrTransferIneligible),
		)
	}

	lic.OrganizationID = newOrg.ID
	lic.UpdatedAt = time.Now()
	if err := s.persist(ctx, lic); err != nil {
		zapLog.Error("failed to transfer license", zap.String("license_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to transfer license", errutil.WithErr(err))
	}

	if err := s.audit.Log(ctx, audit.Entry{
		Action:         audit.ActionTransfer,
		LicenseID:      lic.ID,
		OrganizationID: newOrg.ID,
		UserID:         req.ActorID,
		Metadata: map[string]any{
			"old_organization_id": oldOrg.ID,
			"new_organization_id": newOrg.ID,
			"reason":              req.Reason,
		},
	}); err != nil {
		return nil, err
	}

	data := map[string]any{
		"license_id":        lic.ID,
		"from_organization": oldOrg.Name,
		"to_organization":   newOrg.Name,
		"reason":            req.Reason,
	}
	s.notifier.Emit(notify.EventLicenseTransferred, "license_transferred_out", []string{oldOrg.BillingEmail}, data)
	s.notifier.Emit(notify.EventLicenseTransferred, "license_transferred_in", []string{newOrg.BillingEmail}, data)

	zapLog.Info("license transferred",
		zap.String("license_id", lic.ID),
		zap.String("from", oldOrg.ID),
		zap.String("to", newOrg.ID),
	)
	return lic, nil
}

// persist saves the full row and drops any cached validation verdict.
func (s *Service) persist(ctx context.Context, lic *License) error {
	if err := s.db.WithContext(ctx).Save(lic).Error; err != nil {
		return err
	}
	s.invalidateCache(ctx, lic.ID)
	return nil
}

func (s *Service) emitToOwner(ctx context.Context, lic *License, event, emailType string, data map[string]any) {
	org, err := s.orgs.Get(ctx, lic.OrganizationID)
	if err != nil {
		zap.L().Warn("failed to resolve owner for notification",
			zap.String("license_id", lic.ID),
			zap.Error(err),
		)
		return
	}
	s.notifier.Emit(event, emailType, []string{org.BillingEmail}, data)
}

func (s *Service) cachedValidation(ctx context.Context, id string) (bool, bool) {
	if s.cache == nil {
		return false, false
	}
	val, err := s.cache.Get(ctx, rediskey.BuildLicenseValidKey(id)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// cacheValidation stores the verdict with a TTL clamped to the next
// status boundary (expiry, or end of grace once expiry has passed), so a
// cached entry can never mask the lazy transition a fresh call would
// apply.
func (s *Service) cacheValidation(ctx context.Context, lic *License, valid bool) {
	if s.cache == nil {
		return
	}

	ttl := s.cfg.Licensing.ValidationCacheTTL

	now := time.Now()
	boundary := lic.ValidUntil
	if !now.Before(lic.ValidUntil) {
		boundary = lic.ValidUntil.AddDate(0, 0, s.cfg.Licensing.GracePeriodDays)
	}
	if remaining := boundary.Sub(now); remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	val := "0"
	if valid {
		val = "1"
	}
	if err := s.cache.Set(ctx, rediskey.BuildLicenseValidKey(lic.ID), val, ttl).Err(); err != nil {
		zap.L().Warn("failed to cache validation result", zap.String("license_id", lic.ID), zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, rediskey.BuildLicenseValidKey(id)).Err(); err != nil {
		zap.L().Warn("failed to invalidate validation cache", zap.String("license_id", id), zap.Error(err))
	}
}
