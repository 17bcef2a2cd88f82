package refdata

import "context"

// Region is a first level administrative area.
type Region struct {
	ID   int64  `json:"region_id" db:"region_id"`
	Name string `json:"region_name" db:"region_name"`
}

// Commune belongs to exactly one region.
type Commune struct {
	ID       int64  `json:"commune_id" db:"commune_id"`
	RegionID int64  `json:"region_id" db:"region_id"`
	Name     string `json:"commune_name" db:"commune_name"`
}

// Company is the tenant a sale and its staff belong to.
type Company struct {
	ID            int64  `json:"company_id" db:"company_id"`
	Name          string `json:"company_name" db:"company_name"`
	PriorityLevel *int   `json:"priority_level" db:"priority_level"`
	IsActive      bool   `json:"is_active" db:"is_active"`
}

// InstallationAmount is the installation fee tied to a promotion.
type InstallationAmount struct {
	ID     int64  `json:"installation_amount_id" db:"installation_amount_id"`
	Amount string `json:"amount" db:"amount"`
}

// Promotion is a commercial offer. CommuneIDs lists where it is available;
// empty means everywhere.
type Promotion struct {
	ID                   int64   `json:"promotion_id" db:"promotion_id"`
	Name                 string  `json:"promotion" db:"promotion"`
	InstallationAmountID int64   `json:"installation_amount_id" db:"installation_amount_id"`
	CommuneIDs           []int64 `json:"commune_ids" db:"commune_ids"`
}

// SaleStatus is one of the fixed lifecycle stages.
type SaleStatus struct {
	ID   int64  `json:"sale_status_id" db:"sale_status_id"`
	Name string `json:"status_name" db:"status_name"`
}

// StatusReason explains a status and belongs to exactly one status.
type StatusReason struct {
	ID       int64  `json:"sale_status_reason_id" db:"sale_status_reason_id"`
	StatusID int64  `json:"sale_status_id" db:"sale_status_id"`
	Name     string `json:"reason_name" db:"reason_name"`
}

// SalesChannel is the origin of a sale.
type SalesChannel struct {
	ID   int64  `json:"sales_channel_id" db:"sales_channel_id"`
	Name string `json:"channel_name" db:"channel_name"`
}

// Contract is a contract type offered with promotions.
type Contract struct {
	ID   int64  `json:"contract_id" db:"contract_id"`
	Name string `json:"contract_name" db:"contract_name"`
}

// CompanyInput creates or updates a company.
type CompanyInput struct {
	Name          string `json:"company_name" validate:"required,max=150"`
	PriorityLevel *int   `json:"priority_level" validate:"omitempty,gte=0"`
	IsActive      *bool  `json:"is_active"`
}

// PromotionInput creates a promotion.
type PromotionInput struct {
	Name                 string  `json:"promotion" validate:"required,max=200"`
	InstallationAmountID int64   `json:"installation_amount_id" validate:"required,gt=0"`
	CommuneIDs           []int64 `json:"commune_ids" validate:"omitempty,dive,gt=0"`
}

// ChannelInput creates a sales channel.
type ChannelInput struct {
	Name string `json:"channel_name" validate:"required,max=100"`
}

// Repository reads and writes reference tables.
type Repository interface {
	ListRegions(ctx context.Context) ([]Region, error)
	GetRegion(ctx context.Context, id int64) (Region, error)
	ListCommunes(ctx context.Context, regionID int64) ([]Commune, error)
	GetCommune(ctx context.Context, id int64) (Commune, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, in CompanyInput) (int64, error)
	UpdateCompany(ctx context.Context, id int64, updates map[string]any) error
	ListPromotions(ctx context.Context, communeID *int64) ([]Promotion, error)
	GetPromotion(ctx context.Context, id int64) (Promotion, error)
	CreatePromotion(ctx context.Context, in PromotionInput) (int64, error)
	SetPromotionAmount(ctx context.Context, promotionID, amountID int64) error
	ListInstallationAmounts(ctx context.Context) ([]InstallationAmount, error)
	GetInstallationAmount(ctx context.Context, id int64) (InstallationAmount, error)
	ListStatuses(ctx context.Context) ([]SaleStatus, error)
	ListReasons(ctx context.Context, statusID int64) ([]StatusReason, error)
	GetReason(ctx context.Context, id int64) (StatusReason, error)
	ListChannels(ctx context.Context) ([]SalesChannel, error)
	CreateChannel(ctx context.Context, in ChannelInput) (int64, error)
	ListContracts(ctx context.Context) ([]Contract, error)
}
