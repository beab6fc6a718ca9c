package plan

import (
	"errors"
	"fmt"

	"licenseplane/pkg/config"
	"licenseplane/pkg/errutil"

	"go.uber.org/fx"
)

// ErrInvalidPlan marks lookups for plan identifiers the catalog does not
// know. Callers can test for it with errors.Is.
var ErrInvalidPlan = errors.New("invalid plan")

type Plan string

const (
	Starter      Plan = "starter"
	Professional Plan = "professional"
	Business     Plan = "business"
	Enterprise   Plan = "enterprise"
)

// Quota holds the default numeric limits and price for a plan.
type Quota struct {
	MaxUsers         int     `json:"max_users"`
	MaxBranches      int     `json:"max_branches"`
	StorageLimitMB   int64   `json:"storage_limit_mb"`
	APICallLimit     int64   `json:"api_call_limit"`
	IntegrationLimit int     `json:"integration_limit"`
	Price            float64 `json:"price"`
}

var quotaDefaults = map[Plan]Quota{
	Starter: {
		MaxUsers:         5,
		MaxBranches:      1,
		StorageLimitMB:   1024,
		APICallLimit:     10000,
		IntegrationLimit: 1,
		Price:            29,
	},
	Professional: {
		MaxUsers:         25,
		MaxBranches:      5,
		StorageLimitMB:   10240,
		APICallLimit:     100000,
		IntegrationLimit: 5,
		Price:            99,
	},
	Business: {
		MaxUsers:         100,
		MaxBranches:      20,
		StorageLimitMB:   51200,
		APICallLimit:     500000,
		IntegrationLimit: 15,
		Price:            299,
	},
	Enterprise: {
		// zero means unmetered; enterprise quotas are customer-negotiated
		MaxUsers:         0,
		MaxBranches:      0,
		StorageLimitMB:   0,
		APICallLimit:     0,
		IntegrationLimit: 0,
		Price:            999,
	},
}

// Feature sets are cumulative: each tier includes everything below it.
var starterFeatures = []string{
	"attendance",
	"leads",
	"basic_reports",
}

var professionalFeatures = []string{
	"claims",
	"journals",
	"tracking",
	"advanced_reports",
}

var businessFeatures = []string{
	"rewards",
	"documents",
	"api_access",
	"integrations",
}

var enterpriseFeatures = []string{
	"sso",
	"audit_export",
	"custom_branding",
	"priority_support",
	"white_label",
}

// Catalog answers quota and feature lookups per plan. It is pure
// configuration data; there are no side effects.
type Catalog struct {
	quotas   map[Plan]Quota
	features map[Plan][]string
}

var Module = fx.Module("plan.catalog", fx.Provide(NewCatalog))

type CatalogParams struct {
	fx.In
	Config *config.Config `optional:"true"`
}

func NewCatalog(p CatalogParams) *Catalog {
	quotas := make(map[Plan]Quota, len(quotaDefaults))
	for k, v := range quotaDefaults {
		quotas[k] = v
	}

	if p.Config != nil {
		for name, override := range p.Config.Licensing.PlanOverrides {
			applyOverride(quotas, Plan(name), override)
		}
	}

	features := map[Plan][]string{
		Starter:      cumulative(starterFeatures),
		Professional: cumulative(starterFeatures, professionalFeatures),
		Business:     cumulative(starterFeatures, professionalFeatures, businessFeatures),
		Enterprise:   cumulative(starterFeatures, professionalFeatures, businessFeatures, enterpriseFeatures),
	}

	return &Catalog{quotas: quotas, features: features}
}

func applyOverride(quotas map[Plan]Quota, name Plan, o config.PlanOverride) {
	q, ok := quotas[name]
	if !ok {
		return
	}
	if o.MaxUsers > 0 {
		q.MaxUsers = o.MaxUsers
	}
	if o.MaxBranches > 0 {
		q.MaxBranches = o.MaxBranches
	}
	if o.StorageLimitMB > 0 {
		q.StorageLimitMB = o.StorageLimitMB
	}
	if o.APICallLimit > 0 {
		q.APICallLimit = o.APICallLimit
	}
	if o.IntegrationLimit > 0 {
		q.IntegrationLimit = o.IntegrationLimit
	}
	if o.Price > 0 {
		q.Price = o.Price
	}
	quotas[name] = q
}

func cumulative(sets ...[]string) []string {
	var out []string
	for _, set := range sets {
		out = append(out, set...)
	}
	return out
}

// Quota returns the default limits for the plan.
func (c *Catalog) Quota(p Plan) (Quota, error) {
	q, ok := c.quotas[p]
	if !ok {
		return Quota{}, errutil.BadRequest(
			fmt.Sprintf("unknown plan %q", p),
			errutil.WithErr(ErrInvalidPlan),
		)
	}
	return q, nil
}

// Features returns the cumulative feature set for the plan.
func (c *Catalog) Features(p Plan) ([]string, error) {
	f, ok := c.features[p]
	if !ok {
		return nil, errutil.BadRequest(
			fmt.Sprintf("unknown plan %q", p),
			errutil.WithErr(ErrInvalidPlan),
		)
	}
	out := make([]string, len(f))
	copy(out, f)
	return out, nil
}

// Valid reports whether the identifier names a known plan.
func (c *Catalog) Valid(p Plan) bool {
	_, ok := c.quotas[p]
	return ok
}
