package license

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"licenseplane/pkg/errutil"
	"licenseplane/services/plan"

	"gorm.io/datatypes"
)

// ErrUnknownMetric marks limit lookups for metric names that do not map to
// a quota field on the license.
var ErrUnknownMetric = errors.New("unknown metric")

type Type string

const (
	TypePerpetual    Type = "perpetual"
	TypeSubscription Type = "subscription"
	TypeTrial        Type = "trial"
	TypeEnterprise   Type = "enterprise"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusExpired     Status = "expired"
	StatusSuspended   Status = "suspended"
	StatusGracePeriod Status = "grace_period"
	StatusTrial       Status = "trial"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

// MetricType names the metered quota dimensions.
type MetricType string

const (
	MetricUsers        MetricType = "users"
	MetricBranches     MetricType = "branches"
	MetricStorage      MetricType = "storage"
	MetricAPICalls     MetricType = "api_calls"
	MetricIntegrations MetricType = "integrations"
)

// AllMetrics lists every known metric type, in reporting order.
var AllMetrics = []MetricType{
	MetricUsers,
	MetricBranches,
	MetricStorage,
	MetricAPICalls,
	MetricIntegrations,
}

// License is a time-bound entitlement owned by an organization. Rows are
// never hard-deleted; retirement is modeled as status transitions.
type License struct {
	ID               string            `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt        time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"column:updated_at" json:"updated_at"`
	OrganizationID   string            `gorm:"column:organization_id;index" json:"organization_id"`
	LicenseKey       string            `gorm:"column:license_key;uniqueIndex" json:"license_key"`
	Type             Type              `gorm:"column:type" json:"type"`
	Plan             plan.Plan         `gorm:"column:plan" json:"plan"`
	Status           Status            `gorm:"column:status;index" json:"status"`
	BillingCycle     BillingCycle      `gorm:"column:billing_cycle" json:"billing_cycle"`
	MaxUsers         int               `gorm:"column:max_users" json:"max_users"`
	MaxBranches      int               `gorm:"column:max_branches" json:"max_branches"`
	StorageLimitMB   int64             `gorm:"column:storage_limit_mb" json:"storage_limit_mb"`
	APICallLimit     int64             `gorm:"column:api_call_limit" json:"api_call_limit"`
	IntegrationLimit int               `gorm:"column:integration_limit" json:"integration_limit"`
	Price            float64           `gorm:"column:price" json:"price"`
	Features         datatypes.JSONMap `gorm:"column:features" json:"features"`
	ValidFrom        time.Time         `gorm:"column:valid_from" json:"valid_from"`
	ValidUntil       time.Time         `gorm:"column:valid_until" json:"valid_until"`
	LastValidated    *time.Time        `gorm:"column:last_validated" json:"last_validated,omitempty"`
	AutoRenew        bool              `gorm:"column:auto_renew" json:"auto_renew"`
}

func (License) TableName() string {
	return "licenses"
}

// LimitFor resolves the quota limit in effect for a metric. A zero limit
// means the metric is unmetered on this license.
func (l *License) LimitFor(metric MetricType) (float64, error) {
	switch metric {
	case MetricUsers:
		return float64(l.MaxUsers), nil
	case MetricBranches:
		return float64(l.MaxBranches), nil
	case MetricStorage:
		return float64(l.StorageLimitMB), nil
	case MetricAPICalls:
		return float64(l.APICallLimit), nil
	case MetricIntegrations:
		return float64(l.IntegrationLimit), nil
	default:
		return 0, errutil.BadRequest(
			fmt.Sprintf("unknown metric %q", metric),
			errutil.WithErr(ErrUnknownMetric),
		)
	}
}

// FeatureSet converts the feature list into the JSONMap stored on the row.
func FeatureSet(features []string) datatypes.JSONMap {
	m := make(datatypes.JSONMap, len(features))
	for _, f := range features {
		m[f] = true
	}
	return m
}

// HasFeature reports whether the feature flag is enabled on the license.
func (l *License) HasFeature(name string) bool {
	v, ok := l.Features[name]
	if !ok {
		return false
	}
	enabled, ok := v.(bool)
	return ok && enabled
}

// NewKey generates a 64-character hex license key from a CSPRNG.
func NewKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
