package refdata

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/salesdesk/salesdesk/internal/shared"
)

// statusEntered is the lifecycle stage whose reason row tags resets.
const statusEntered = 1

// Service serves reference data with a versioned cache in front of the repository.
type Service struct {
	repo     Repository
	cache    *Cache
	logger   *slog.Logger
	validate *validator.Validate
	group    singleflight.Group
}

// NewService constructs the reference data service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cache.SetLogger(logger)
	return &Service{repo: repo, cache: cache, logger: logger, validate: shared.NewValidator()}
}

// cached resolves a listing through the cache. Concurrent misses for the same
// key share one repository call, which runs detached from the caller that
// started it so a cancelled request does not fail the others.
func cached[T any](ctx context.Context, s *Service, load func(context.Context) (T, error), parts ...string) (T, error) {
	var out T
	key, err := s.cache.Key(ctx, parts...)
	if err != nil {
		s.logger.Warn("refdata cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var value T
		err := s.cache.FetchJSON(flightCtx, key, &value, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
		return value, err
	})
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return out, res.Err
		}
		return res.Val.(T), nil
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("refdata cache bump", slog.Any("error", err))
	}
}

// ============================================================================
// LISTINGS
// ============================================================================

func (s *Service) Regions(ctx context.Context) ([]Region, error) {
	return cached(ctx, s, s.repo.ListRegions, "regions")
}

func (s *Service) Communes(ctx context.Context, regionID int64) ([]Commune, error) {
	if _, err := s.repo.GetRegion(ctx, regionID); err != nil {
		return nil, err
	}
	return cached(ctx, s, func(ctx context.Context) ([]Commune, error) {
		return s.repo.ListCommunes(ctx, regionID)
	}, "communes", strconv.FormatInt(regionID, 10))
}

func (s *Service) Companies(ctx context.Context) ([]Company, error) {
	return cached(ctx, s, s.repo.ListCompanies, "companies")
}

func (s *Service) Promotions(ctx context.Context, communeID *int64) ([]Promotion, error) {
	token := "all"
	if communeID != nil {
		token = strconv.FormatInt(*communeID, 10)
	}
	return cached(ctx, s, func(ctx context.Context) ([]Promotion, error) {
		return s.repo.ListPromotions(ctx, communeID)
	}, "promotions", token)
}

func (s *Service) InstallationAmounts(ctx context.Context) ([]InstallationAmount, error) {
	return cached(ctx, s, s.repo.ListInstallationAmounts, "installation_amounts")
}

func (s *Service) Statuses(ctx context.Context) ([]SaleStatus, error) {
	return cached(ctx, s, s.repo.ListStatuses, "statuses")
}

func (s *Service) Reasons(ctx context.Context, statusID int64) ([]StatusReason, error) {
	return cached(ctx, s, func(ctx context.Context) ([]StatusReason, error) {
		return s.repo.ListReasons(ctx, statusID)
	}, "reasons", strconv.FormatInt(statusID, 10))
}

func (s *Service) Channels(ctx context.Context) ([]SalesChannel, error) {
	return cached(ctx, s, s.repo.ListChannels, "channels")
}

func (s *Service) Contracts(ctx context.Context) ([]Contract, error) {
	return cached(ctx, s, s.repo.ListContracts, "contracts")
}

// ============================================================================
// WRITES
// ============================================================================

func (s *Service) CreateCompany(ctx context.Context, in CompanyInput) (Company, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Company{}, err
	}
	id, err := s.repo.CreateCompany(ctx, in)
	if err != nil {
		return Company{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetCompany(ctx, id)
}

func (s *Service) UpdateCompany(ctx context.Context, id int64, in CompanyInput) (Company, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Company{}, err
	}
	updates := map[string]any{"company_name": in.Name}
	if in.PriorityLevel != nil {
		updates["priority_level"] = *in.PriorityLevel
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := s.repo.UpdateCompany(ctx, id, updates); err != nil {
		return Company{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetCompany(ctx, id)
}

func (s *Service) CreatePromotion(ctx context.Context, in PromotionInput) (Promotion, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Promotion{}, err
	}
	if _, err := s.repo.GetInstallationAmount(ctx, in.InstallationAmountID); err != nil {
		return Promotion{}, err
	}
	id, err := s.repo.CreatePromotion(ctx, in)
	if err != nil {
		return Promotion{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetPromotion(ctx, id)
}

// SetPromotionAmount repoints a promotion at another installation amount.
// Sales keep the amount they captured.
func (s *Service) SetPromotionAmount(ctx context.Context, promotionID, amountID int64) (Promotion, error) {
	if amountID <= 0 {
		return Promotion{}, fmt.Errorf("%w: installation_amount_id required", shared.ErrValidation)
	}
	if _, err := s.repo.GetInstallationAmount(ctx, amountID); err != nil {
		return Promotion{}, err
	}
	if err := s.repo.SetPromotionAmount(ctx, promotionID, amountID); err != nil {
		return Promotion{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetPromotion(ctx, promotionID)
}

func (s *Service) CreateChannel(ctx context.Context, in ChannelInput) (SalesChannel, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return SalesChannel{}, err
	}
	id, err := s.repo.CreateChannel(ctx, in)
	if err != nil {
		return SalesChannel{}, err
	}
	s.invalidate(ctx)
	return SalesChannel{ID: id, Name: in.Name}, nil
}

// ============================================================================
// CATALOG
// ============================================================================

// Promotion returns one promotion by id.
func (s *Service) Promotion(ctx context.Context, id int64) (Promotion, error) {
	return s.repo.GetPromotion(ctx, id)
}

// InstallationAmount returns one installation amount by id.
func (s *Service) InstallationAmount(ctx context.Context, id int64) (InstallationAmount, error) {
	return s.repo.GetInstallationAmount(ctx, id)
}

// Region returns one region by id.
func (s *Service) Region(ctx context.Context, id int64) (Region, error) {
	return s.repo.GetRegion(ctx, id)
}

// Commune returns one commune by id.
func (s *Service) Commune(ctx context.Context, id int64) (Commune, error) {
	return s.repo.GetCommune(ctx, id)
}

// StatusReason returns one status reason by id.
func (s *Service) StatusReason(ctx context.Context, id int64) (StatusReason, error) {
	return s.repo.GetReason(ctx, id)
}

// EnteredReason returns the reason row attached to the Entered status.
func (s *Service) EnteredReason(ctx context.Context) (StatusReason, error) {
	reasons, err := s.Reasons(ctx, statusEntered)
	if err != nil {
		return StatusReason{}, err
	}
	if len(reasons) == 0 {
		return StatusReason{}, fmt.Errorf("%w: no reason for status %d", shared.ErrNotFound, statusEntered)
	}
	return reasons[0], nil
}
