package models

import "gorm.io/datatypes"

type OrganizationStatus string

const (
	OrganizationPending   OrganizationStatus = "pending"
	OrganizationActive    OrganizationStatus = "active"
	OrganizationSuspended OrganizationStatus = "suspended"
)

type SubscriptionTier string

const (
	TierStarter    SubscriptionTier = "starter"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// OrganizationModel is a tenant (one restaurant). Tenants are suspended,
// never deleted.
type OrganizationModel struct {
	Base
	Name             string             `json:"name"              gorm:"size:191;not null"`
	Slug             string             `json:"slug"              gorm:"size:191;uniqueIndex"`
	LogoURL          string             `json:"logo_url"`
	BrandColor       string             `json:"brand_color"       gorm:"size:16"`
	Address          string             `json:"address"`
	Description      string             `json:"description"       gorm:"type:text"`
	APIKey           string             `json:"-"                 gorm:"size:191;index"`
	WorkingHours     datatypes.JSON     `json:"working_hours"`
	Status           OrganizationStatus `json:"status"            gorm:"size:16;index"`
	SubscriptionTier SubscriptionTier   `json:"subscription_tier" gorm:"size:16"`
}

func (OrganizationModel) TableName() string { return "organizations" }

func (o *OrganizationModel) IsActive() bool { return o.Status == OrganizationActive }

// OrganizationSettingsModel carries per-tenant assistant preferences and
// the tenant's own completion credential.
type OrganizationSettingsModel struct {
	Base
	OrganizationID string `json:"organization_id" gorm:"size:36;uniqueIndex"`
	AIPersonality  string `json:"ai_personality"  gorm:"size:64"`
	OpenAIAPIKey   string `json:"-"               gorm:"column:openai_api_key"`
	AIProvider     string `json:"ai_provider"     gorm:"size:32"`
	AIModel        string `json:"ai_model"        gorm:"size:64"`
}

func (OrganizationSettingsModel) TableName() string { return "organization_settings" }

type StaffRole string

const (
	StaffOwner   StaffRole = "owner"
	StaffManager StaffRole = "manager"
	StaffMember  StaffRole = "staff"
)

// StaffModel is a restaurant employee allowed into the dashboard routes.
type StaffModel struct {
	Base
	OrganizationID string    `json:"organization_id" gorm:"size:36;index"`
	Email          string    `json:"email"           gorm:"size:191;uniqueIndex"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	Role           StaffRole `json:"role"            gorm:"size:16"`
}

func (StaffModel) TableName() string { return "staff" }
