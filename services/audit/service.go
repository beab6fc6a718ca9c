package audit

import (
	"context"
	"time"

	"licenseplane/pkg/db/option"
	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[LicenseAudit]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		repo: repository.ProvideStore[LicenseAudit](p.DB),
	}
}

// Entry is the input to Log. UserID and Metadata are optional.
type Entry struct {
	Action         Action
	LicenseID      string
	OrganizationID string
	UserID         string
	Metadata       map[string]any
}

// Log appends one audit record. Persistence failures propagate to the
// caller; the trail is never silently incomplete.
func (s *Service) Log(ctx context.Context, e Entry) error {
	record := &LicenseAudit{
		ID:             gen.ID(s.node, "aud"),
		CreatedAt:      time.Now(),
		LicenseID:      e.LicenseID,
		OrganizationID: e.OrganizationID,
		UserID:         e.UserID,
		Action:         e.Action,
		Metadata:       datatypes.JSONMap(e.Metadata),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		zap.L().Error("failed to append audit record",
			zap.String("license_id", e.LicenseID),
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
		return errutil.Internal("failed to append audit record", errutil.WithErr(err))
	}

	return nil
}

// CountActions counts how many records of one action exist for a
// license.
func (s *Service) CountActions(ctx context.Context, licenseID string, action Action) (int64, error) {
	total, err := s.repo.Count(ctx, &LicenseAudit{LicenseID: licenseID, Action: action})
	if err != nil {
		return 0, errutil.Internal("failed to count audit records", errutil.WithErr(err))
	}
	return total, nil
}

// Filter narrows an audit query. Zero fields are ignored.
type Filter struct {
	Action     Action    `form:"action"`
	Start      time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End        time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	Pagination pagination.Pagination
}

func (f Filter) options() []option.QueryOption {
	opts := []option.QueryOption{
		option.TimeRange("created_at", f.Start, f.End),
	}
	if f.Action != "" {
		opts = append(opts, option.Where("action = ?", f.Action))
	}
	return opts
}

// GetAuditTrail returns the newest-first history for one license.
func (s *Service) GetAuditTrail(ctx context.Context, licenseID string, f Filter) (*pagination.Page[LicenseAudit], error) {
	return s.page(ctx, &LicenseAudit{LicenseID: licenseID}, f)
}

// GetOrganizationAuditTrail returns the newest-first history across every
// license an organization has held.
func (s *Service) GetOrganizationAuditTrail(ctx context.Context, orgID string, f Filter) (*pagination.Page[LicenseAudit], error) {
	return s.page(ctx, &LicenseAudit{OrganizationID: orgID}, f)
}

func (s *Service) page(ctx context.Context, query *LicenseAudit, f Filter) (*pagination.Page[LicenseAudit], error) {
	opts := f.options()

	total, err := s.repo.Count(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to query audit trail", errutil.WithErr(err))
	}

	opts = append(opts,
		option.Order("created_at DESC"),
		option.ApplyPagination(f.Pagination),
	)

	records, err := s.repo.Find(ctx, query, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to query audit trail", errutil.WithErr(err))
	}

	return pagination.NewPage(total, records), nil
}
