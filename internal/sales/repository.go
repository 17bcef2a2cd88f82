package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/salesdesk/salesdesk/internal/platform/db"
	"github.com/salesdesk/salesdesk/internal/shared"
)

// Repository reads sales and opens write transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	GetSaleView(ctx context.Context, id int64) (SaleView, error)
	// ListSales returns one page for spec plus the total matching count.
	ListSales(ctx context.Context, spec QuerySpec) ([]SaleView, int, error)
	ExistsByRut(ctx context.Context, rut string, excludeID int64) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
	History(ctx context.Context, saleID int64) ([]HistoryEntry, error)
	// EnteredBy returns the modifier of the sale's Entered ledger row.
	EnteredBy(ctx context.Context, saleID int64) (int64, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	// UpdateSale applies updates when the stored version equals expectedVersion
	// and increments the version.
	UpdateSale(ctx context.Context, id, expectedVersion int64, updates map[string]any) error
	LastComment(ctx context.Context, saleID int64) (*string, error)
	AppendHistory(ctx context.Context, rec HistoryRecord) (int64, error)
	// AttachmentsInUse returns the subset of paths referenced by a sale other
	// than excludeID.
	AttachmentsInUse(ctx context.Context, paths []string, excludeID int64) ([]string, error)
}

// PGRepository provides PostgreSQL backed persistence for sales.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ============================================================================
// READS
// ============================================================================

const saleColumns = `
	s.sale_id, s.service_id, s.sales_channel_id, s.client_first_name, s.client_last_name,
	s.client_rut, COALESCE(s.client_email, ''), s.client_phone, COALESCE(s.client_secondary_phone, ''),
	s.region_id, s.commune_id, s.street, COALESCE(s.number, ''), COALESCE(s.department_office_floor, ''),
	COALESCE(s.geo_reference, ''), s.promotion_id, s.installation_amount_id, COALESCE(s.additional_comments, ''),
	s.is_priority, s.priority_modified_by_user_id, s.sale_status_id, s.sale_status_reason_id,
	s.company_id, s.superadmin_id, s.admin_id, s.executive_id, s.validator_id, s.dispatcher_id,
	COALESCE(s.other_images, '{}'), s.created_at, s.modified_by_user_id, s.version`

const viewColumns = saleColumns + `,
	COALESCE(ch.channel_name, ''), COALESCE(r.region_name, ''), COALESCE(c.commune_name, ''),
	COALESCE(p.promotion, ''), COALESCE(ia.amount, ''), COALESCE(ss.status_name, ''),
	COALESCE(ssr.reason_name, ''), COALESCE(co.company_name, ''), COALESCE(co.priority_level, 0),
	COALESCE(ue.first_name || ' ' || ue.last_name, ''),
	COALESCE(uv.first_name || ' ' || uv.last_name, ''),
	COALESCE(ud.first_name || ' ' || ud.last_name, '')`

const viewJoins = `
	FROM sales s
	LEFT JOIN sales_channels ch ON ch.sales_channel_id = s.sales_channel_id
	LEFT JOIN regions r ON r.region_id = s.region_id
	LEFT JOIN communes c ON c.commune_id = s.commune_id
	LEFT JOIN promotions p ON p.promotion_id = s.promotion_id
	LEFT JOIN installation_amounts ia ON ia.installation_amount_id = s.installation_amount_id
	LEFT JOIN sale_statuses ss ON ss.sale_status_id = s.sale_status_id
	LEFT JOIN sale_status_reasons ssr ON ssr.sale_status_reason_id = s.sale_status_reason_id
	LEFT JOIN companies co ON co.company_id = s.company_id
	LEFT JOIN users ue ON ue.user_id = s.executive_id
	LEFT JOIN users uv ON uv.user_id = s.validator_id
	LEFT JOIN users ud ON ud.user_id = s.dispatcher_id`

func saleTargets(s *Sale) []any {
	return []any{
		&s.ID, &s.ServiceID, &s.SalesChannelID, &s.ClientFirstName, &s.ClientLastName,
		&s.ClientRut, &s.ClientEmail, &s.ClientPhone, &s.ClientSecondaryPhone,
		&s.RegionID, &s.CommuneID, &s.Street, &s.Number, &s.DepartmentOfficeFloor,
		&s.GeoReference, &s.PromotionID, &s.InstallationAmountID, &s.AdditionalComments,
		&s.IsPriority, &s.PriorityModifiedByUserID, &s.StatusID, &s.StatusReasonID,
		&s.CompanyID, &s.SuperAdminID, &s.AdminID, &s.ExecutiveID, &s.ValidatorID, &s.DispatcherID,
		&s.OtherImages, &s.CreatedAt, &s.ModifiedByUserID, &s.Version,
	}
}

func scanView(row pgx.Row, v *SaleView) error {
	targets := append(saleTargets(&v.Sale),
		&v.ChannelName, &v.RegionName, &v.CommuneName,
		&v.PromotionName, &v.InstallationAmount, &v.StatusName,
		&v.StatusReasonName, &v.CompanyName, &v.CompanyPriority,
		&v.ExecutiveName, &v.ValidatorName, &v.DispatcherName,
	)
	return row.Scan(targets...)
}

// GetSale retrieves the bare sale row.
func (r *PGRepository) GetSale(ctx context.Context, id int64) (Sale, error) {
	var s Sale
	err := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.sale_id = $1`, id).Scan(saleTargets(&s)...)
	if err != nil {
		return Sale{}, saleNotFound(id, err)
	}
	return s, nil
}

// GetSaleView retrieves a sale with resolved relations.
func (r *PGRepository) GetSaleView(ctx context.Context, id int64) (SaleView, error) {
	var v SaleView
	if err := scanView(r.pool.QueryRow(ctx, `SELECT `+viewColumns+viewJoins+` WHERE s.sale_id = $1`, id), &v); err != nil {
		return SaleView{}, saleNotFound(id, err)
	}
	return v, nil
}

// ListSales runs the count and page queries concurrently with identical criteria.
func (r *PGRepository) ListSales(ctx context.Context, spec QuerySpec) ([]SaleView, int, error) {
	var (
		total int
		items []SaleView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := `SELECT COUNT(*)` + viewJoins + ` ` + spec.WhereClause()
		return db.TranslateError(r.pool.QueryRow(gctx, query, spec.Args...).Scan(&total))
	})
	g.Go(func() error {
		args := append(append([]any{}, spec.Args...), spec.Limit, spec.Offset)
		query := fmt.Sprintf(`SELECT %s%s %s ORDER BY %s LIMIT $%d OFFSET $%d`,
			viewColumns, viewJoins, spec.WhereClause(), spec.OrderBy, len(spec.Args)+1, len(spec.Args)+2)
		rows, err := r.pool.Query(gctx, query, args...)
		if err != nil {
			return db.TranslateError(err)
		}
		defer rows.Close()
		for rows.Next() {
			var v SaleView
			if err := scanView(rows, &v); err != nil {
				return err
			}
			items = append(items, v)
		}
		return db.TranslateError(rows.Err())
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ExistsByRut reports whether another sale already carries rut.
func (r *PGRepository) ExistsByRut(ctx context.Context, rut string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE client_rut = $1 AND sale_id <> $2)`,
		rut, excludeID).Scan(&exists)
	return exists, db.TranslateError(err)
}

// ExistsByEmail reports whether another sale already carries email.
func (r *PGRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE lower(client_email) = lower($1) AND sale_id <> $2)`,
		email, excludeID).Scan(&exists)
	return exists, db.TranslateError(err)
}

// History returns the ledger of a sale in insertion order.
func (r *PGRepository) History(ctx context.Context, saleID int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.history_id, h.sale_id, h.previous_status_id, h.new_status_id, h.sale_status_reason_id,
		       h.modifier_id, h.modification_timestamp, h.event_type, h.date, h.is_priority,
		       h.priority_modifier_id, h.comment,
		       COALESCE(u.first_name || ' ' || u.last_name, ''), COALESCE(ro.role_name, ''),
		       COALESCE(ps.status_name, ''), COALESCE(ns.status_name, ''), COALESCE(ssr.reason_name, ''),
		       COALESCE(pu.first_name || ' ' || pu.last_name, '')
		FROM sale_history h
		LEFT JOIN users u ON u.user_id = h.modifier_id
		LEFT JOIN roles ro ON ro.role_id = u.role_id
		LEFT JOIN sale_statuses ps ON ps.sale_status_id = h.previous_status_id
		LEFT JOIN sale_statuses ns ON ns.sale_status_id = h.new_status_id
		LEFT JOIN sale_status_reasons ssr ON ssr.sale_status_reason_id = h.sale_status_reason_id
		LEFT JOIN users pu ON pu.user_id = h.priority_modifier_id
		WHERE h.sale_id = $1
		ORDER BY h.history_id`, saleID)
	if err != nil {
		return nil, db.TranslateError(err)
	}
	defer rows.Close()
	entries := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.SaleID, &e.PreviousStatusID, &e.NewStatusID, &e.StatusReasonID,
			&e.ModifierID, &e.ModifiedAt, &e.EventType, &e.Date, &e.IsPriority,
			&e.PriorityModifierID, &e.Comment,
			&e.ModifierName, &e.ModifierRole,
			&e.PreviousStatusName, &e.NewStatusName, &e.StatusReasonName,
			&e.PriorityModifierName,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, db.TranslateError(rows.Err())
}

// EnteredBy returns the user who entered the sale.
func (r *PGRepository) EnteredBy(ctx context.Context, saleID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT modifier_id FROM sale_history
		WHERE sale_id = $1 AND event_type = $2 ORDER BY history_id LIMIT 1`, saleID, string(EventEntered)).Scan(&id)
	if err != nil {
		return 0, saleNotFound(saleID, err)
	}
	return id, nil
}

// ============================================================================
// WRITES
// ============================================================================

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (
			service_id, sales_channel_id, client_first_name, client_last_name, client_rut,
			client_email, client_phone, client_secondary_phone, region_id, commune_id,
			street, number, department_office_floor, geo_reference, promotion_id,
			installation_amount_id, additional_comments, is_priority, sale_status_id, sale_status_reason_id,
			company_id, superadmin_id, admin_id, executive_id, other_images,
			created_at, modified_by_user_id, version
		) VALUES (
			$1, $2, $3, $4, $5,
			NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10,
			$11, NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), $15,
			$16, NULLIF($17, ''), $18, $19, $20,
			$21, $22, $23, $24, $25,
			$26, $27, $28
		) RETURNING sale_id`,
		s.ServiceID, s.SalesChannelID, s.ClientFirstName, s.ClientLastName, s.ClientRut,
		s.ClientEmail, s.ClientPhone, s.ClientSecondaryPhone, s.RegionID, s.CommuneID,
		s.Street, s.Number, s.DepartmentOfficeFloor, s.GeoReference, s.PromotionID,
		s.InstallationAmountID, s.AdditionalComments, s.IsPriority, int64(s.StatusID), s.StatusReasonID,
		s.CompanyID, s.SuperAdminID, s.AdminID, s.ExecutiveID, s.OtherImages,
		s.CreatedAt, s.ModifiedByUserID, s.Version,
	).Scan(&id)
	return id, db.TranslateError(err)
}

// nullableText columns store NULL instead of an empty string.
var nullableText = map[string]bool{
	"client_email":            true,
	"client_secondary_phone":  true,
	"number":                  true,
	"department_office_floor": true,
	"geo_reference":           true,
	"additional_comments":     true,
	"service_id":              true,
}

func (t *txRepo) UpdateSale(ctx context.Context, id, expectedVersion int64, updates map[string]any) error {
	cols := make([]string, 0, len(updates))
	for col := range updates {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		args = append(args, updates[col])
		placeholder := fmt.Sprintf("$%d", len(args))
		if nullableText[col] {
			placeholder = "NULLIF(" + placeholder + ", '')"
		}
		sets = append(sets, col+" = "+placeholder)
	}
	sets = append(sets, "version = version + 1")
	args = append(args, id, expectedVersion)
	query := fmt.Sprintf("UPDATE sales SET %s WHERE sale_id = $%d AND version = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE sale_id = $1)`, id).Scan(&exists); err != nil {
		return db.TranslateError(err)
	}
	if exists {
		return fmt.Errorf("%w: sale %d was modified concurrently, reload and retry", shared.ErrConflict, id)
	}
	return fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
}

func (t *txRepo) LastComment(ctx context.Context, saleID int64) (*string, error) {
	var comment *string
	err := t.tx.QueryRow(ctx, `SELECT comment FROM sale_history
		WHERE sale_id = $1 AND comment IS NOT NULL ORDER BY history_id DESC LIMIT 1`, saleID).Scan(&comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return comment, db.TranslateError(err)
}

func (t *txRepo) AppendHistory(ctx context.Context, rec HistoryRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sale_history (
			sale_id, previous_status_id, new_status_id, sale_status_reason_id, modifier_id,
			modification_timestamp, event_type, date, is_priority, priority_modifier_id, comment
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING history_id`,
		rec.SaleID, rec.PreviousStatusID, rec.NewStatusID, rec.StatusReasonID, rec.ModifierID,
		rec.ModifiedAt, string(rec.EventType), rec.Date, rec.IsPriority, rec.PriorityModifierID, rec.Comment,
	).Scan(&id)
	return id, db.TranslateError(err)
}

func saleNotFound(id int64, err error) error {
	err = db.TranslateError(err)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return err
}

func (t *txRepo) AttachmentsInUse(ctx context.Context, paths []string, excludeID int64) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT DISTINCT p
		FROM sales, unnest(other_images) AS p
		WHERE sale_id <> $2 AND p = ANY($1)`, paths, excludeID)
	if err != nil {
		return nil, db.TranslateError(err)
	}
	used, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return used, db.TranslateError(err)
}
