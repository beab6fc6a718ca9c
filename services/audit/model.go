package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Action names a lifecycle operation recorded in the trail.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionValidate   Action = "validate"
	ActionTransfer   Action = "transfer"
	ActionUpgrade    Action = "upgrade"
	ActionDowngrade  Action = "downgrade"
	ActionRenew      Action = "renew"
	ActionSuspend    Action = "suspend"
	ActionReactivate Action = "reactivate"
)

// LicenseAudit is one immutable record of a lifecycle action. Rows are
// append-only; there is no update or delete path.
type LicenseAudit struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt      time.Time         `gorm:"column:created_at;index" json:"created_at"`
	LicenseID      string            `gorm:"column:license_id;index" json:"license_id"`
	OrganizationID string            `gorm:"column:organization_id;index" json:"organization_id"`
	UserID         string            `gorm:"column:user_id" json:"user_id"`
	Action         Action            `gorm:"column:action" json:"action"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata" json:"metadata"`
}

func (LicenseAudit) TableName() string {
	return "license_audits"
}
