package sales

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// QuerySpec is a fully composed listing query. Count and page queries share
// Where and Args so both see exactly the same rows.
type QuerySpec struct {
	Where   string
	Args    []any
	OrderBy string
	Page    int
	Limit   int
	Offset  int
}

// WhereClause renders the WHERE keyword and conditions, or nothing.
func (q QuerySpec) WhereClause() string {
	if q.Where == "" {
		return ""
	}
	return "WHERE " + q.Where
}

// sortColumns is the allow-list of user-selectable sort fields.
var sortColumns = map[string]string{
	"created_at":        "s.created_at",
	"sale_id":           "s.sale_id",
	"service_id":        "s.service_id",
	"client_first_name": "s.client_first_name",
	"client_last_name":  "s.client_last_name",
	"client_rut":        "s.client_rut",
	"region":            "r.region_name",
	"commune":           "c.commune_name",
	"promotion":         "p.promotion",
	"reason":            "ssr.reason_name",
	"company":           "co.company_name",
}

// actorColumns maps a role to the sale column stamped when that role acts.
var actorColumns = map[rbac.Role]string{
	rbac.RoleSuperAdmin: "superadmin_id",
	rbac.RoleAdmin:      "admin_id",
	rbac.RoleExecutive:  "executive_id",
	rbac.RoleValidator:  "validator_id",
	rbac.RoleDispatcher: "dispatcher_id",
}

type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *whereBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) visibility(v rbac.Visibility, p shared.Principal) {
	switch v.Ownership {
	case rbac.OwnershipCompany:
		b.add("s.company_id = " + b.arg(p.CompanyID))
	case rbac.OwnershipExecutive:
		b.add("s.executive_id = " + b.arg(p.UserID))
	}
	if len(v.Statuses) > 0 {
		b.add("s.sale_status_id = ANY(" + b.arg(v.Statuses) + ")")
	}
}

func (b *whereBuilder) eqInt(col string, v *int64) {
	if v != nil {
		b.add(col + " = " + b.arg(*v))
	}
}

func (b *whereBuilder) spec(order string, page, size int) QuerySpec {
	page, size = shared.NormalizePage(page, size)
	return QuerySpec{
		Where:   strings.Join(b.clauses, " AND "),
		Args:    b.args,
		OrderBy: order,
		Page:    page,
		Limit:   size,
		Offset:  (page - 1) * size,
	}
}

// BuildQuery merges the scope's mandatory read filter with the request's
// filters, sort and page into one QuerySpec.
func BuildQuery(scope rbac.Scope, params ListParams) QuerySpec {
	var b whereBuilder
	b.visibility(scope.Read, scope.Principal)

	f := params.Filters
	b.eqInt("s.sales_channel_id", f.SalesChannelID)
	b.eqInt("s.region_id", f.RegionID)
	b.eqInt("s.commune_id", f.CommuneID)
	if f.IsPriority != nil {
		b.add("s.is_priority = " + b.arg(*f.IsPriority))
	}
	b.eqInt("s.promotion_id", f.PromotionID)
	b.eqInt("s.installation_amount_id", f.InstallationAmountID)
	b.eqInt("s.sale_status_id", f.StatusID)
	b.eqInt("s.sale_status_reason_id", f.StatusReasonID)
	b.eqInt("s.company_id", f.CompanyID)
	if f.ActorRoleID != nil {
		if col, ok := actorColumns[rbac.Role(*f.ActorRoleID)]; ok {
			b.add("s." + col + " IS NOT NULL")
		}
	}
	// created_at is stored as "2006-01-02 15:04:05" local wall clock, so
	// lexical comparison matches chronological order.
	if f.StartDate != nil {
		b.add("s.created_at >= " + b.arg(f.StartDate.Format("2006-01-02")+" 00:00:00"))
	}
	if f.EndDate != nil {
		b.add("s.created_at <= " + b.arg(f.EndDate.Format("2006-01-02")+" 23:59:59"))
	}

	return b.spec(orderBy(scope, params.SortField, params.SortOrder), params.Page, params.PageSize)
}

// BuildSearchQuery composes a free-text search restricted by the scope's
// search visibility.
func BuildSearchQuery(scope rbac.Scope, term string, page, size int) (QuerySpec, error) {
	normalized := NormalizeSearchTerm(term)
	if normalized == "" {
		return QuerySpec{}, fmt.Errorf("%w: search term required", shared.ErrValidation)
	}
	var b whereBuilder
	b.visibility(scope.Search, scope.Principal)

	pattern := b.arg("%" + normalized + "%")
	rutPattern := b.arg("%" + NormalizeRut(term) + "%")
	b.add("(" + strings.Join([]string{
		foldSQL("s.client_first_name || ' ' || s.client_last_name") + " LIKE " + pattern,
		"replace(upper(s.client_rut), '.', '') LIKE " + rutPattern,
		foldSQL("COALESCE(s.client_email, '')") + " LIKE " + pattern,
		"s.client_phone LIKE " + pattern,
		foldSQL("s.street") + " LIKE " + pattern,
		foldSQL("COALESCE(s.service_id, '')") + " LIKE " + pattern,
	}, " OR ") + ")")

	return b.spec(orderBy(scope, "", ""), page, size), nil
}

// foldSQL lowercases and strips Spanish diacritics on the database side so
// it matches NormalizeSearchTerm.
func foldSQL(expr string) string {
	return "lower(translate(" + expr + ", 'ÁÉÍÓÚÜÑáéíóúüñ', 'AEIOUUNaeiouun'))"
}

func orderBy(scope rbac.Scope, field, order string) string {
	var parts []string
	if col, ok := sortColumns[strings.ToLower(strings.TrimSpace(field))]; ok {
		dir := "ASC"
		if strings.EqualFold(strings.TrimSpace(order), "desc") {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir+" NULLS LAST")
	}
	parts = append(parts, "s.is_priority DESC")
	if len(scope.StatusOrder) > 0 {
		parts = append(parts, statusOrderCase(scope.StatusOrder))
	}
	parts = append(parts,
		"CASE WHEN s.sale_status_id IN (1, 2) THEN 0 ELSE 1 END",
		"co.priority_level ASC NULLS LAST",
		"s.sale_id DESC",
	)
	return strings.Join(parts, ", ")
}

func statusOrderCase(order []int64) string {
	var sb strings.Builder
	sb.WriteString("CASE s.sale_status_id")
	for i, st := range order {
		fmt.Fprintf(&sb, " WHEN %d THEN %d", st, i)
	}
	fmt.Fprintf(&sb, " ELSE %d END", len(order))
	return sb.String()
}
