package organization

import (
	"context"
	"time"

	"licenseplane/pkg/db/option"
	"licenseplane/pkg/db/pagination"
	"licenseplane/pkg/errutil"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	repo repository.Repository[Organization]
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
		repo: repository.ProvideStore[Organization](p.DB),
	}
}

type CreateRequest struct {
	Name         string `json:"name" binding:"required"`
	Slug         string `json:"slug"`
	BillingEmail string `json:"billing_email" binding:"required,email"`
	CountryCode  string `json:"country_code"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Organization, error) {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	slugName := req.Slug
	if slugName == "" {
		slugName = slug.Make(req.Name)
	}

	exist, err := s.repo.FindOne(ctx, &Organization{Slug: slugName})
	if err != nil {
		zapLog.Error("failed to look up organization slug", zap.Error(err))
		return nil, errutil.Internal("failed to create organization", errutil.WithErr(err))
	}
	if exist != nil {
		return nil, errutil.Conflict("organization slug already in use")
	}

	now := time.Now()
	org := &Organization{
		ID:           gen.ID(s.node, "org"),
		CreatedAt:    now,
		UpdatedAt:    now,
		Name:         req.Name,
		Slug:         slugName,
		BillingEmail: req.BillingEmail,
		CountryCode:  req.CountryCode,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		zapLog.Error("failed to create organization", zap.Error(err))
		return nil, errutil.Internal("failed to create organization", errutil.WithErr(err))
	}

	zapLog.Info("organization created", zap.String("organization_id", org.ID), zap.String("slug", org.Slug))
	return org, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	org, err := s.repo.FindOne(ctx, &Organization{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to get organization", errutil.WithErr(err))
	}
	if org == nil {
		return nil, errutil.NotFound("organization not found")
	}
	return org, nil
}

func (s *Service) List(ctx context.Context, p pagination.Pagination) (*pagination.Page[Organization], error) {
	total, err := s.repo.Count(ctx, &Organization{})
	if err != nil {
		return nil, errutil.Internal("failed to list organizations", errutil.WithErr(err))
	}

	orgs, err := s.repo.Find(ctx, &Organization{},
		option.Order("created_at DESC"),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list organizations", errutil.WithErr(err))
	}

	return pagination.NewPage(total, orgs), nil
}
