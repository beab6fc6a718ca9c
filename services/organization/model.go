package organization

import "time"

// Organization owns licenses. BillingEmail is the notification target for
// lifecycle events on any license it holds.
type Organization struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
	Name         string    `gorm:"column:name" json:"name"`
	Slug         string    `gorm:"column:slug;uniqueIndex" json:"slug"`
	BillingEmail string    `gorm:"column:billing_email" json:"billing_email"`
	CountryCode  string    `gorm:"column:country_code" json:"country_code"`
	Suspended    bool      `gorm:"column:suspended" json:"suspended"`
}

func (Organization) TableName() string {
	return "organizations"
}
