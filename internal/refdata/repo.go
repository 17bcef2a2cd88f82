package refdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesdesk/salesdesk/internal/platform/db"
	"github.com/salesdesk/salesdesk/internal/shared"
)

type repo struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Postgres backed reference data repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repo{pool: pool}
}

// scanAll collects rows with scan, translating storage errors.
func scanAll[T any](rows pgx.Rows, err error, scan func(pgx.Rows, *T) error) ([]T, error) {
	if err != nil {
		return nil, db.TranslateError(err)
	}
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var item T
		if err := scan(rows, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, db.TranslateError(rows.Err())
}

func notFound(kind string, id int64, err error) error {
	err = db.TranslateError(err)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, kind, id)
	}
	return err
}

// Regions

func (r *repo) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := r.pool.Query(ctx, `SELECT region_id, region_name FROM regions ORDER BY region_id`)
	return scanAll(rows, err, func(rows pgx.Rows, v *Region) error {
		return rows.Scan(&v.ID, &v.Name)
	})
}

func (r *repo) GetRegion(ctx context.Context, id int64) (Region, error) {
	var v Region
	err := r.pool.QueryRow(ctx, `SELECT region_id, region_name FROM regions WHERE region_id = $1`, id).
		Scan(&v.ID, &v.Name)
	if err != nil {
		return Region{}, notFound("region", id, err)
	}
	return v, nil
}

func (r *repo) ListCommunes(ctx context.Context, regionID int64) ([]Commune, error) {
	rows, err := r.pool.Query(ctx, `SELECT commune_id, region_id, commune_name FROM communes
		WHERE region_id = $1 ORDER BY commune_name`, regionID)
	return scanAll(rows, err, func(rows pgx.Rows, v *Commune) error {
		return rows.Scan(&v.ID, &v.RegionID, &v.Name)
	})
}

func (r *repo) GetCommune(ctx context.Context, id int64) (Commune, error) {
	var v Commune
	err := r.pool.QueryRow(ctx, `SELECT commune_id, region_id, commune_name FROM communes WHERE commune_id = $1`, id).
		Scan(&v.ID, &v.RegionID, &v.Name)
	if err != nil {
		return Commune{}, notFound("commune", id, err)
	}
	return v, nil
}

// Companies

func (r *repo) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT company_id, company_name, priority_level, is_active
		FROM companies ORDER BY priority_level ASC NULLS LAST, company_name`)
	return scanAll(rows, err, func(rows pgx.Rows, v *Company) error {
		return rows.Scan(&v.ID, &v.Name, &v.PriorityLevel, &v.IsActive)
	})
}

func (r *repo) GetCompany(ctx context.Context, id int64) (Company, error) {
	var v Company
	err := r.pool.QueryRow(ctx, `SELECT company_id, company_name, priority_level, is_active
		FROM companies WHERE company_id = $1`, id).Scan(&v.ID, &v.Name, &v.PriorityLevel, &v.IsActive)
	if err != nil {
		return Company{}, notFound("company", id, err)
	}
	return v, nil
}

func (r *repo) CreateCompany(ctx context.Context, in CompanyInput) (int64, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (company_name, priority_level, is_active)
		VALUES ($1, $2, $3) RETURNING company_id`, strings.TrimSpace(in.Name), in.PriorityLevel, active).Scan(&id)
	return id, db.TranslateError(err)
}

func (r *repo) UpdateCompany(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, updates[col])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE companies SET %s WHERE company_id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: company %d", shared.ErrNotFound, id)
	}
	return nil
}

// Promotions

const promotionColumns = `p.promotion_id, p.promotion, p.installation_amount_id,
	COALESCE(array_agg(pc.commune_id) FILTER (WHERE pc.commune_id IS NOT NULL), '{}')`

func scanPromotion(row pgx.Row, v *Promotion) error {
	return row.Scan(&v.ID, &v.Name, &v.InstallationAmountID, &v.CommuneIDs)
}

func (r *repo) ListPromotions(ctx context.Context, communeID *int64) ([]Promotion, error) {
	query := `SELECT ` + promotionColumns + `
		FROM promotions p
		LEFT JOIN promotion_communes pc ON pc.promotion_id = p.promotion_id`
	var args []any
	if communeID != nil {
		query += ` WHERE NOT EXISTS (SELECT 1 FROM promotion_communes x WHERE x.promotion_id = p.promotion_id)
			OR EXISTS (SELECT 1 FROM promotion_communes x WHERE x.promotion_id = p.promotion_id AND x.commune_id = $1)`
		args = append(args, *communeID)
	}
	query += ` GROUP BY p.promotion_id ORDER BY p.promotion`
	rows, err := r.pool.Query(ctx, query, args...)
	return scanAll(rows, err, func(rows pgx.Rows, v *Promotion) error {
		return scanPromotion(rows, v)
	})
}

func (r *repo) GetPromotion(ctx context.Context, id int64) (Promotion, error) {
	var v Promotion
	err := scanPromotion(r.pool.QueryRow(ctx, `SELECT `+promotionColumns+`
		FROM promotions p
		LEFT JOIN promotion_communes pc ON pc.promotion_id = p.promotion_id
		WHERE p.promotion_id = $1
		GROUP BY p.promotion_id`, id), &v)
	if err != nil {
		return Promotion{}, notFound("promotion", id, err)
	}
	return v, nil
}

func (r *repo) CreatePromotion(ctx context.Context, in PromotionInput) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO promotions (promotion, installation_amount_id)
			VALUES ($1, $2) RETURNING promotion_id`, strings.TrimSpace(in.Name), in.InstallationAmountID).Scan(&id); err != nil {
			return db.TranslateError(err)
		}
		for _, communeID := range in.CommuneIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO promotion_communes (promotion_id, commune_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, communeID); err != nil {
				return db.TranslateError(err)
			}
		}
		return nil
	})
	return id, err
}

func (r *repo) SetPromotionAmount(ctx context.Context, promotionID, amountID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE promotions SET installation_amount_id = $1 WHERE promotion_id = $2`,
		amountID, promotionID)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: promotion %d", shared.ErrNotFound, promotionID)
	}
	return nil
}

func (r *repo) ListInstallationAmounts(ctx context.Context) ([]InstallationAmount, error) {
	rows, err := r.pool.Query(ctx, `SELECT installation_amount_id, amount FROM installation_amounts ORDER BY installation_amount_id`)
	return scanAll(rows, err, func(rows pgx.Rows, v *InstallationAmount) error {
		return rows.Scan(&v.ID, &v.Amount)
	})
}

func (r *repo) GetInstallationAmount(ctx context.Context, id int64) (InstallationAmount, error) {
	var v InstallationAmount
	err := r.pool.QueryRow(ctx, `SELECT installation_amount_id, amount FROM installation_amounts
		WHERE installation_amount_id = $1`, id).Scan(&v.ID, &v.Amount)
	if err != nil {
		return InstallationAmount{}, notFound("installation amount", id, err)
	}
	return v, nil
}

// Statuses

func (r *repo) ListStatuses(ctx context.Context) ([]SaleStatus, error) {
	rows, err := r.pool.Query(ctx, `SELECT sale_status_id, status_name FROM sale_statuses ORDER BY sale_status_id`)
	return scanAll(rows, err, func(rows pgx.Rows, v *SaleStatus) error {
		return rows.Scan(&v.ID, &v.Name)
	})
}

func (r *repo) ListReasons(ctx context.Context, statusID int64) ([]StatusReason, error) {
	rows, err := r.pool.Query(ctx, `SELECT sale_status_reason_id, sale_status_id, reason_name
		FROM sale_status_reasons WHERE sale_status_id = $1 ORDER BY sale_status_reason_id`, statusID)
	return scanAll(rows, err, func(rows pgx.Rows, v *StatusReason) error {
		return rows.Scan(&v.ID, &v.StatusID, &v.Name)
	})
}

func (r *repo) GetReason(ctx context.Context, id int64) (StatusReason, error) {
	var v StatusReason
	err := r.pool.QueryRow(ctx, `SELECT sale_status_reason_id, sale_status_id, reason_name
		FROM sale_status_reasons WHERE sale_status_reason_id = $1`, id).Scan(&v.ID, &v.StatusID, &v.Name)
	if err != nil {
		return StatusReason{}, notFound("status reason", id, err)
	}
	return v, nil
}

// Channels and contracts

func (r *repo) ListChannels(ctx context.Context) ([]SalesChannel, error) {
	rows, err := r.pool.Query(ctx, `SELECT sales_channel_id, channel_name FROM sales_channels ORDER BY channel_name`)
	return scanAll(rows, err, func(rows pgx.Rows, v *SalesChannel) error {
		return rows.Scan(&v.ID, &v.Name)
	})
}

func (r *repo) CreateChannel(ctx context.Context, in ChannelInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO sales_channels (channel_name) VALUES ($1) RETURNING sales_channel_id`,
		strings.TrimSpace(in.Name)).Scan(&id)
	return id, db.TranslateError(err)
}

func (r *repo) ListContracts(ctx context.Context) ([]Contract, error) {
	rows, err := r.pool.Query(ctx, `SELECT contract_id, contract_name FROM contracts ORDER BY contract_name`)
	return scanAll(rows, err, func(rows pgx.Rows, v *Contract) error {
		return rows.Scan(&v.ID, &v.Name)
	})
}
