package sales

import (
	"strings"
	"time"
)

// ============================================================================
// STATUS
// ============================================================================

// Status is the lifecycle stage of a sale. The numeric values are shared with
// the sale_statuses reference table.
type Status int64

const (
	StatusEntered    Status = 1
	StatusValidated  Status = 2
	StatusReturned   Status = 3
	StatusOnHold     Status = 4
	StatusInDispatch Status = 5
	StatusActive     Status = 6
	StatusVoided     Status = 7
)

// IsValid reports whether s is inside the fixed status domain.
func (s Status) IsValid() bool {
	return s >= StatusEntered && s <= StatusVoided
}

// EventType returns the ledger tag written when an update moves a sale into s.
// Entered is reserved for creation.
func (s Status) EventType() EventType {
	switch s {
	case StatusValidated:
		return EventValidated
	case StatusActive:
		return EventActive
	case StatusVoided:
		return EventVoided
	}
	return EventUpdated
}

// stampsValidator reports whether reaching s marks the validation stage.
func (s Status) stampsValidator() bool {
	return s == StatusValidated || s == StatusReturned || s == StatusOnHold || s == StatusVoided
}

// stampsDispatcher reports whether reaching s marks the dispatch stage.
func (s Status) stampsDispatcher() bool {
	return s == StatusInDispatch || s == StatusActive || s == StatusVoided
}

// EventType tags a history entry.
type EventType string

const (
	EventEntered   EventType = "Entered"
	EventValidated EventType = "Validated"
	EventActive    EventType = "Active"
	EventVoided    EventType = "Voided"
	EventUpdated   EventType = "Updated"
	EventPriority  EventType = "Priority"
)

// MaxAttachments bounds the attachment paths stored on a sale.
const MaxAttachments = 5

// ============================================================================
// SALE
// ============================================================================

// Sale is a client service request moving through the approval workflow.
type Sale struct {
	ID                       int64    `json:"sale_id" db:"sale_id"`
	ServiceID                *string  `json:"service_id" db:"service_id"`
	SalesChannelID           *int64   `json:"sales_channel_id" db:"sales_channel_id"`
	ClientFirstName          string   `json:"client_first_name" db:"client_first_name"`
	ClientLastName           string   `json:"client_last_name" db:"client_last_name"`
	ClientRut                string   `json:"client_rut" db:"client_rut"`
	ClientEmail              string   `json:"client_email" db:"client_email"`
	ClientPhone              string   `json:"client_phone" db:"client_phone"`
	ClientSecondaryPhone     string   `json:"client_secondary_phone" db:"client_secondary_phone"`
	RegionID                 int64    `json:"region_id" db:"region_id"`
	CommuneID                int64    `json:"commune_id" db:"commune_id"`
	Street                   string   `json:"street" db:"street"`
	Number                   string   `json:"number" db:"number"`
	DepartmentOfficeFloor    string   `json:"department_office_floor" db:"department_office_floor"`
	GeoReference             string   `json:"geo_reference" db:"geo_reference"`
	PromotionID              int64    `json:"promotion_id" db:"promotion_id"`
	InstallationAmountID     int64    `json:"installation_amount_id" db:"installation_amount_id"`
	AdditionalComments       string   `json:"additional_comments" db:"additional_comments"`
	IsPriority               bool     `json:"is_priority" db:"is_priority"`
	PriorityModifiedByUserID *int64   `json:"priority_modified_by_user_id" db:"priority_modified_by_user_id"`
	StatusID                 Status   `json:"sale_status_id" db:"sale_status_id"`
	StatusReasonID           *int64   `json:"sale_status_reason_id" db:"sale_status_reason_id"`
	CompanyID                int64    `json:"company_id" db:"company_id"`
	SuperAdminID             *int64   `json:"superadmin_id" db:"superadmin_id"`
	AdminID                  *int64   `json:"admin_id" db:"admin_id"`
	ExecutiveID              *int64   `json:"executive_id" db:"executive_id"`
	ValidatorID              *int64   `json:"validator_id" db:"validator_id"`
	DispatcherID             *int64   `json:"dispatcher_id" db:"dispatcher_id"`
	OtherImages              []string `json:"other_images" db:"other_images"`
	CreatedAt                string   `json:"created_at" db:"created_at"`
	ModifiedByUserID         *int64   `json:"modified_by_user_id" db:"modified_by_user_id"`
	Version                  int64    `json:"version" db:"version"`
}

// SaleView is a sale with its reference relations resolved for display.
type SaleView struct {
	Sale
	ChannelName        string `json:"sales_channel_name"`
	RegionName         string `json:"region_name"`
	CommuneName        string `json:"commune_name"`
	PromotionName      string `json:"promotion_name"`
	InstallationAmount string `json:"installation_amount"`
	StatusName         string `json:"sale_status_name"`
	StatusReasonName   string `json:"sale_status_reason_name"`
	CompanyName        string `json:"company_name"`
	CompanyPriority    int    `json:"company_priority_level"`
	ExecutiveName      string `json:"executive_name"`
	ValidatorName      string `json:"validator_name"`
	DispatcherName     string `json:"dispatcher_name"`
}

// CreateSaleInput is the payload accepted when entering a new sale.
type CreateSaleInput struct {
	ServiceID             *string  `json:"service_id" validate:"omitempty,max=50"`
	SalesChannelID        *int64   `json:"sales_channel_id" validate:"omitempty,gt=0"`
	ClientFirstName       string   `json:"client_first_name" validate:"required,max=100"`
	ClientLastName        string   `json:"client_last_name" validate:"required,max=100"`
	ClientRut             string   `json:"client_rut" validate:"required,max=12"`
	ClientEmail           string   `json:"client_email" validate:"omitempty,email,max=150"`
	ClientPhone           string   `json:"client_phone" validate:"required,max=20"`
	ClientSecondaryPhone  string   `json:"client_secondary_phone" validate:"omitempty,max=20"`
	RegionID              int64    `json:"region_id" validate:"required,gt=0"`
	CommuneID             int64    `json:"commune_id" validate:"required,gt=0"`
	Street                string   `json:"street" validate:"required,max=200"`
	Number                string   `json:"number" validate:"omitempty,max=20"`
	DepartmentOfficeFloor string   `json:"department_office_floor" validate:"omitempty,max=100"`
	GeoReference          string   `json:"geo_reference" validate:"omitempty,max=255"`
	PromotionID           int64    `json:"promotion_id" validate:"required,gt=0"`
	AdditionalComments    string   `json:"additional_comments" validate:"omitempty,max=2000"`
	CompanyID             *int64   `json:"company_id" validate:"omitempty,gt=0"`
	StatusReasonID        *int64   `json:"sale_status_reason_id"`
	OtherImages           []string `json:"other_images"`
}

// normalize trims the free-text fields and lowercases the email so the
// validation tags see the values that will be stored.
func (in *CreateSaleInput) normalize() {
	for _, f := range []*string{
		&in.ClientFirstName, &in.ClientLastName, &in.ClientRut, &in.ClientPhone,
		&in.ClientSecondaryPhone, &in.Street, &in.Number, &in.DepartmentOfficeFloor,
		&in.GeoReference, &in.AdditionalComments,
	} {
		*f = strings.TrimSpace(*f)
	}
	in.ClientEmail = strings.ToLower(strings.TrimSpace(in.ClientEmail))
	if in.ServiceID != nil {
		if v := strings.TrimSpace(*in.ServiceID); v != "" {
			in.ServiceID = &v
		} else {
			in.ServiceID = nil
		}
	}
}

// UpdateSaleInput carries a partial update. Nil fields are left untouched.
type UpdateSaleInput struct {
	ServiceID             *string `json:"service_id" validate:"omitempty,max=50"`
	SalesChannelID        *int64  `json:"sales_channel_id" validate:"omitempty,gt=0"`
	ClientFirstName       *string `json:"client_first_name" validate:"omitempty,min=1,max=100"`
	ClientLastName        *string `json:"client_last_name" validate:"omitempty,min=1,max=100"`
	ClientRut             *string `json:"client_rut" validate:"omitempty,max=12"`
	ClientEmail           *string `json:"client_email" validate:"omitempty,max=150"`
	ClientPhone           *string `json:"client_phone" validate:"omitempty,max=20"`
	ClientSecondaryPhone  *string `json:"client_secondary_phone" validate:"omitempty,max=20"`
	RegionID              *int64  `json:"region_id" validate:"omitempty,gt=0"`
	CommuneID             *int64  `json:"commune_id" validate:"omitempty,gt=0"`
	Street                *string `json:"street" validate:"omitempty,max=200"`
	Number                *string `json:"number" validate:"omitempty,max=20"`
	DepartmentOfficeFloor *string `json:"department_office_floor" validate:"omitempty,max=100"`
	GeoReference          *string `json:"geo_reference" validate:"omitempty,max=255"`
	PromotionID           *int64  `json:"promotion_id" validate:"omitempty,gt=0"`
	AdditionalComments    *string `json:"additional_comments" validate:"omitempty,max=2000"`
	CompanyID             *int64  `json:"company_id" validate:"omitempty,gt=0"`
	StatusID              *int64  `json:"sale_status_id" validate:"omitempty,gte=1,lte=7"`
	StatusReasonID        *int64  `json:"sale_status_reason_id" validate:"omitempty,gt=0"`
	// OtherImages, when set, is the list of existing attachment paths to keep.
	OtherImages *[]string `json:"other_images"`
	Version     *int64    `json:"version" validate:"omitempty,gt=0"`
}

// columns flattens the non-nil fields into column updates.
func (in UpdateSaleInput) columns() map[string]any {
	out := make(map[string]any)
	putString := func(col string, v *string) {
		if v != nil {
			out[col] = *v
		}
	}
	putInt := func(col string, v *int64) {
		if v != nil {
			out[col] = *v
		}
	}
	putString("service_id", in.ServiceID)
	putInt("sales_channel_id", in.SalesChannelID)
	putString("client_first_name", in.ClientFirstName)
	putString("client_last_name", in.ClientLastName)
	putString("client_rut", in.ClientRut)
	putString("client_email", in.ClientEmail)
	putString("client_phone", in.ClientPhone)
	putString("client_secondary_phone", in.ClientSecondaryPhone)
	putInt("region_id", in.RegionID)
	putInt("commune_id", in.CommuneID)
	putString("street", in.Street)
	putString("number", in.Number)
	putString("department_office_floor", in.DepartmentOfficeFloor)
	putString("geo_reference", in.GeoReference)
	putInt("promotion_id", in.PromotionID)
	putString("additional_comments", in.AdditionalComments)
	putInt("company_id", in.CompanyID)
	putInt("sale_status_id", in.StatusID)
	putInt("sale_status_reason_id", in.StatusReasonID)
	return out
}

// ============================================================================
// HISTORY
// ============================================================================

// HistoryRecord is one append-only ledger row as written.
type HistoryRecord struct {
	ID                 int64     `json:"history_id" db:"history_id"`
	SaleID             int64     `json:"sale_id" db:"sale_id"`
	PreviousStatusID   *int64    `json:"previous_status_id" db:"previous_status_id"`
	NewStatusID        int64     `json:"new_status_id" db:"new_status_id"`
	StatusReasonID     *int64    `json:"sale_status_reason_id" db:"sale_status_reason_id"`
	ModifierID         int64     `json:"modifier_id" db:"modifier_id"`
	ModifiedAt         time.Time `json:"modification_timestamp" db:"modification_timestamp"`
	EventType          EventType `json:"event_type" db:"event_type"`
	Date               string    `json:"date" db:"date"`
	IsPriority         bool      `json:"is_priority" db:"is_priority"`
	PriorityModifierID *int64    `json:"priority_modifier_id" db:"priority_modifier_id"`
	Comment            *string   `json:"comment" db:"comment"`
}

// HistoryEntry is a ledger row with names resolved at read time.
type HistoryEntry struct {
	HistoryRecord
	ModifierName         string `json:"modifier_name"`
	ModifierRole         string `json:"modifier_role"`
	PreviousStatusName   string `json:"previous_status_name"`
	NewStatusName        string `json:"new_status_name"`
	StatusReasonName     string `json:"sale_status_reason_name"`
	PriorityModifierName string `json:"priority_modifier_name"`
}

// ============================================================================
// LISTING
// ============================================================================

// Filters are the optional equality and range filters of a listing.
type Filters struct {
	SalesChannelID       *int64
	RegionID             *int64
	CommuneID            *int64
	IsPriority           *bool
	PromotionID          *int64
	InstallationAmountID *int64
	StatusID             *int64
	StatusReasonID       *int64
	CompanyID            *int64
	// ActorRoleID keeps sales touched by a user of that role.
	ActorRoleID *int64
	StartDate   *time.Time
	EndDate     *time.Time
}

// ListParams describe a listing request.
type ListParams struct {
	Page      int
	PageSize  int
	Filters   Filters
	SortField string
	SortOrder string
}

// ListResult is a page of sales plus pagination metadata.
type ListResult struct {
	Items      []SaleView `json:"sales"`
	TotalCount int        `json:"total_count"`
	TotalPages int        `json:"total_pages"`
	Page       int        `json:"current_page"`
	PageSize   int        `json:"page_size"`
}

// ============================================================================
// SIDE EFFECTS
// ============================================================================

// Upload is an attachment received with a create or update request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// SaleEvent describes a lifecycle event for notification sinks.
type SaleEvent struct {
	SaleID      int64  `json:"sale_id"`
	ClientName  string `json:"client_name"`
	ClientRut   string `json:"client_rut"`
	StatusID    int64  `json:"sale_status_id"`
	RecipientID int64  `json:"recipient_id"`
	ActorID     int64  `json:"actor_id"`
}
