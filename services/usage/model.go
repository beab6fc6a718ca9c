package usage

import (
	"time"

	"licenseplane/services/license"

	"gorm.io/datatypes"
)

// EventType labels rows in license_events.
type EventType string

const (
	EventLimitExceeded EventType = "limit_exceeded"
)

// LicenseUsage is one append-only usage sample. Rows are never updated
// or deleted. Limit snapshots the quota in effect at observation time so
// history keeps its context across plan changes.
type LicenseUsage struct {
	ID             string             `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt      time.Time          `gorm:"column:created_at;index" json:"created_at"`
	LicenseID      string             `gorm:"column:license_id;index" json:"license_id"`
	OrganizationID string             `gorm:"column:organization_id;index" json:"organization_id"`
	Metric         license.MetricType `gorm:"column:metric;index" json:"metric"`
	Value          float64            `gorm:"column:value" json:"value"`
	Limit          float64            `gorm:"column:metric_limit" json:"limit"`
	Utilization    float64            `gorm:"column:utilization" json:"utilization"`
	Metadata       datatypes.JSONMap  `gorm:"column:metadata;type:json" json:"metadata,omitempty"`
}

func (LicenseUsage) TableName() string {
	return "license_usages"
}

// LicenseEvent is one append-only alert record, written when a sample
// crosses the alert threshold. Actor fields are filled when the
// triggering observation carried caller context.
type LicenseEvent struct {
	ID        string             `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt time.Time          `gorm:"column:created_at;index" json:"created_at"`
	LicenseID string             `gorm:"column:license_id;index" json:"license_id"`
	EventType EventType          `gorm:"column:event_type" json:"event_type"`
	Metric    license.MetricType `gorm:"column:metric" json:"metric"`
	UserID    string             `gorm:"column:user_id" json:"user_id,omitempty"`
	IPAddress string             `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent string             `gorm:"column:user_agent" json:"user_agent,omitempty"`
	Details   datatypes.JSONMap  `gorm:"column:details;type:json" json:"details"`
}

func (LicenseEvent) TableName() string {
	return "license_events"
}
