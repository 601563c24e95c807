package models

type MenuCategoryModel struct {
	Base
	OrganizationID string `json:"organization_id" gorm:"size:36;index"`
	Name           string `json:"name"            gorm:"size:191;not null"`
	Description    string `json:"description"`
	DisplayOrder   int    `json:"display_order"`
	Visible        bool   `json:"visible"`
}

func (MenuCategoryModel) TableName() string { return "menu_categories" }

type MenuItemModel struct {
	Base
	OrganizationID string      `json:"organization_id" gorm:"size:36;index"`
	CategoryID     string      `json:"category_id"     gorm:"size:36;index"`
	Name           string      `json:"name"            gorm:"size:191;not null"`
	Description    string      `json:"description"     gorm:"type:text"`
	Price          float64     `json:"price"           gorm:"type:decimal(12,2)"`
	Allergens      StringArray `json:"allergens"`
	Available      bool        `json:"available"`
	StockCount     *int        `json:"stock_count"`
	DisplayOrder   int         `json:"display_order"`
}

func (MenuItemModel) TableName() string { return "menu_items" }
