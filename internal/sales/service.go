package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/refdata"
	"github.com/salesdesk/salesdesk/internal/shared"
)

const (
	createdAtLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
	exportRowLimit  = 10000
)

// Catalog resolves the reference records a sale points at.
type Catalog interface {
	Promotion(ctx context.Context, id int64) (refdata.Promotion, error)
	InstallationAmount(ctx context.Context, id int64) (refdata.InstallationAmount, error)
	Region(ctx context.Context, id int64) (refdata.Region, error)
	Commune(ctx context.Context, id int64) (refdata.Commune, error)
	StatusReason(ctx context.Context, id int64) (refdata.StatusReason, error)
	EnteredReason(ctx context.Context) (refdata.StatusReason, error)
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	SaleCreated(ctx context.Context, ev SaleEvent) error
	SaleActivated(ctx context.Context, ev SaleEvent) error
}

// TransitionRecorder observes status transitions.
type TransitionRecorder interface {
	RecordSaleTransition(from, to int64)
}

// Service implements the sale lifecycle.
type Service struct {
	repo        Repository
	catalog     Catalog
	resolver    *rbac.Resolver
	logger      *slog.Logger
	validate    *validator.Validate
	attachments AttachmentStore
	notifier    Notifier
	metrics     TransitionRecorder
	now         func() time.Time
}

// NewService constructs a sales service.
func NewService(repo Repository, catalog Catalog, resolver *rbac.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		resolver: resolver,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
	}
}

// SetAttachmentStore wires attachment persistence.
func (s *Service) SetAttachmentStore(store AttachmentStore) {
	s.attachments = store
}

// SetNotifier wires the notification sink.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetMetrics wires the transition recorder.
func (s *Service) SetMetrics(m TransitionRecorder) {
	s.metrics = m
}

// SetClock overrides the wall clock used for timestamps. loc pins the zone
// created_at is rendered in.
func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		s.now = now
		return
	}
	s.now = func() time.Time { return now().In(loc) }
}

// ============================================================================
// CREATE
// ============================================================================

// Create enters a new sale in status Entered and writes its first ledger row.
func (s *Service) Create(ctx context.Context, p *shared.Principal, in CreateSaleInput, uploads []Upload) (SaleView, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return SaleView{}, err
	}
	if !scope.CanCreate {
		return SaleView{}, fmt.Errorf("%w: role %s may not create sales", shared.ErrForbidden, scope.Role)
	}
	in.normalize()
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return SaleView{}, err
	}
	if in.StatusReasonID != nil {
		return SaleView{}, fmt.Errorf("%w: a new sale cannot carry a status reason", shared.ErrValidation)
	}

	in.ClientRut = NormalizeRut(in.ClientRut)
	if !ValidRut(in.ClientRut) {
		return SaleView{}, fmt.Errorf("%w: client_rut %q is not a valid rut", shared.ErrValidation, in.ClientRut)
	}
	if err := s.ensureUnique(ctx, in.ClientRut, in.ClientEmail, 0); err != nil {
		return SaleView{}, err
	}

	promo, err := s.resolvePromotion(ctx, in.PromotionID)
	if err != nil {
		return SaleView{}, err
	}
	if err := s.ensureLocation(ctx, in.RegionID, in.CommuneID); err != nil {
		return SaleView{}, err
	}

	companyID := p.CompanyID
	if scope.Role == rbac.RoleSuperAdmin && in.CompanyID != nil {
		companyID = *in.CompanyID
	}
	if companyID <= 0 {
		return SaleView{}, fmt.Errorf("%w: company_id required", shared.ErrValidation)
	}

	images := cleanPaths(in.OtherImages)
	var saved []string
	if len(images) == 0 {
		if len(uploads) > MaxAttachments {
			return SaleView{}, fmt.Errorf("%w: at most %d attachments", shared.ErrValidation, MaxAttachments)
		}
		saved, err = s.saveUploads(ctx, uploads)
		if err != nil {
			return SaleView{}, err
		}
		images = saved
	}
	if len(images) > MaxAttachments {
		return SaleView{}, fmt.Errorf("%w: at most %d attachments", shared.ErrValidation, MaxAttachments)
	}

	now := s.now()
	sale := Sale{
		ServiceID:             in.ServiceID,
		SalesChannelID:        in.SalesChannelID,
		ClientFirstName:       strings.TrimSpace(in.ClientFirstName),
		ClientLastName:        strings.TrimSpace(in.ClientLastName),
		ClientRut:             in.ClientRut,
		ClientEmail:           in.ClientEmail,
		ClientPhone:           strings.TrimSpace(in.ClientPhone),
		ClientSecondaryPhone:  strings.TrimSpace(in.ClientSecondaryPhone),
		RegionID:              in.RegionID,
		CommuneID:             in.CommuneID,
		Street:                strings.TrimSpace(in.Street),
		Number:                strings.TrimSpace(in.Number),
		DepartmentOfficeFloor: strings.TrimSpace(in.DepartmentOfficeFloor),
		GeoReference:          strings.TrimSpace(in.GeoReference),
		PromotionID:           promo.ID,
		InstallationAmountID:  promo.InstallationAmountID,
		AdditionalComments:    strings.TrimSpace(in.AdditionalComments),
		StatusID:              StatusEntered,
		CompanyID:             companyID,
		OtherImages:           images,
		CreatedAt:             now.Format(createdAtLayout),
		ModifiedByUserID:      int64Ptr(p.UserID),
		Version:               1,
	}
	switch scope.Role {
	case rbac.RoleSuperAdmin:
		sale.SuperAdminID = int64Ptr(p.UserID)
	case rbac.RoleAdmin:
		sale.AdminID = int64Ptr(p.UserID)
	case rbac.RoleExecutive:
		sale.ExecutiveID = int64Ptr(p.UserID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if len(saved) == 0 && len(images) > 0 {
			used, err := tx.AttachmentsInUse(ctx, images, 0)
			if err != nil {
				return err
			}
			if len(used) > 0 {
				return fmt.Errorf("%w: attachment %s belongs to another sale", shared.ErrConflict, used[0])
			}
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		return appendHistory(ctx, tx, HistoryRecord{
			SaleID:      id,
			NewStatusID: int64(StatusEntered),
			ModifierID:  p.UserID,
			ModifiedAt:  now,
			EventType:   EventEntered,
			Date:        now.Format(dateLayout),
			Comment:     optionalString(sale.AdditionalComments),
		})
	})
	if err != nil {
		s.discardFiles(ctx, saved)
		return SaleView{}, err
	}

	s.recordTransition(0, int64(StatusEntered))
	s.notify(ctx, EventEntered, SaleEvent{
		SaleID:      sale.ID,
		ClientName:  sale.ClientFirstName + " " + sale.ClientLastName,
		ClientRut:   sale.ClientRut,
		StatusID:    int64(StatusEntered),
		RecipientID: p.UserID,
		ActorID:     p.UserID,
	})
	return s.repo.GetSaleView(ctx, sale.ID)
}

// ============================================================================
// UPDATE
// ============================================================================

// Update applies a partial update and records a ledger row when the status changes.
func (s *Service) Update(ctx context.Context, p *shared.Principal, id int64, in UpdateSaleInput, uploads []Upload) (SaleView, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return SaleView{}, err
	}
	if len(scope.FieldWhitelist()) == 0 && len(scope.AllowedTargetStatuses()) == 0 {
		return SaleView{}, fmt.Errorf("%w: role %s is read-only", shared.ErrForbidden, scope.Role)
	}
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return SaleView{}, err
	}

	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return SaleView{}, err
	}
	if !scope.Owns(sale.CompanyID, sale.ExecutiveID) {
		return SaleView{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}

	newStatus := sale.StatusID
	if in.StatusID != nil && Status(*in.StatusID) != sale.StatusID {
		if err := scope.PermitStatus(*in.StatusID); err != nil {
			return SaleView{}, err
		}
		newStatus = Status(*in.StatusID)
	}
	changed := newStatus != sale.StatusID

	updates := scope.FilterFields(in.columns())
	delete(updates, "sale_status_id")
	if changed {
		updates["sale_status_id"] = int64(newStatus)
		if in.StatusReasonID != nil {
			updates["sale_status_reason_id"] = *in.StatusReasonID
		}
	}

	historyReason, err := s.applyReason(ctx, sale, newStatus, changed, updates)
	if err != nil {
		return SaleView{}, err
	}
	if err := s.applyClientFields(ctx, sale, updates); err != nil {
		return SaleView{}, err
	}
	if err := s.applyReferences(ctx, sale, updates); err != nil {
		return SaleView{}, err
	}

	retained := sale.OtherImages
	if in.OtherImages != nil {
		retained = keepExisting(sale.OtherImages, cleanPaths(*in.OtherImages))
	}
	if len(retained)+len(uploads) > MaxAttachments {
		return SaleView{}, fmt.Errorf("%w: at most %d attachments, got %d existing and %d new",
			shared.ErrValidation, MaxAttachments, len(retained), len(uploads))
	}
	saved, err := s.saveUploads(ctx, uploads)
	if err != nil {
		return SaleView{}, err
	}
	var dropped []string
	if in.OtherImages != nil || len(saved) > 0 {
		updates["other_images"] = append(append([]string{}, retained...), saved...)
		dropped = missingFrom(sale.OtherImages, retained)
	}

	if col, ok := actorColumns[scope.Role]; ok {
		updates[col] = p.UserID
	}
	if changed && newStatus.stampsValidator() {
		updates["validator_id"] = p.UserID
	}
	if changed && newStatus.stampsDispatcher() {
		updates["dispatcher_id"] = p.UserID
	}
	updates["modified_by_user_id"] = p.UserID

	expected := sale.Version
	if in.Version != nil {
		expected = *in.Version
	}

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateSale(ctx, id, expected, updates); err != nil {
			return err
		}
		if len(dropped) > 0 {
			used, err := tx.AttachmentsInUse(ctx, dropped, id)
			if err != nil {
				return err
			}
			dropped = missingFrom(dropped, used)
		}
		if !changed {
			return nil
		}
		var comment *string
		if raw, ok := updates["additional_comments"].(string); ok {
			comment = optionalString(raw)
		}
		return appendHistory(ctx, tx, HistoryRecord{
			SaleID:           id,
			PreviousStatusID: int64Ptr(int64(sale.StatusID)),
			NewStatusID:      int64(newStatus),
			StatusReasonID:   historyReason,
			ModifierID:       p.UserID,
			ModifiedAt:       now,
			EventType:        newStatus.EventType(),
			Date:             now.Format(dateLayout),
			IsPriority:       sale.IsPriority,
			Comment:          comment,
		})
	})
	if err != nil {
		s.discardFiles(ctx, saved)
		return SaleView{}, err
	}
	s.discardFiles(ctx, dropped)

	if changed {
		s.recordTransition(int64(sale.StatusID), int64(newStatus))
	}
	if changed && newStatus == StatusActive {
		s.notifyActivated(ctx, sale, p.UserID)
	}
	return s.repo.GetSaleView(ctx, id)
}

// applyReason enforces the status/reason pairing and returns the reason the
// ledger row should carry.
func (s *Service) applyReason(ctx context.Context, sale Sale, newStatus Status, changed bool, updates map[string]any) (*int64, error) {
	if newStatus == StatusEntered {
		if !changed {
			delete(updates, "sale_status_reason_id")
			return nil, nil
		}
		updates["sale_status_reason_id"] = nil
		return s.enteredReasonID(ctx), nil
	}

	raw, supplied := updates["sale_status_reason_id"]
	if !supplied {
		if changed {
			return nil, fmt.Errorf("%w: sale_status_reason_id required for status %d", shared.ErrValidation, newStatus)
		}
		return nil, nil
	}
	reasonID, _ := raw.(int64)
	reason, err := s.catalog.StatusReason(ctx, reasonID)
	if err != nil {
		return nil, err
	}
	if reason.StatusID != int64(newStatus) {
		return nil, fmt.Errorf("%w: reason %d does not belong to status %d", shared.ErrValidation, reasonID, newStatus)
	}
	return int64Ptr(reasonID), nil
}

// enteredReasonID looks up the reason row tied to status Entered. A missing
// row yields no reason rather than an error.
func (s *Service) enteredReasonID(ctx context.Context) *int64 {
	reason, err := s.catalog.EnteredReason(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("entered reason lookup", slog.Any("error", err))
		}
		return nil
	}
	if reason.ID == 0 {
		return nil
	}
	return int64Ptr(reason.ID)
}

func (s *Service) applyClientFields(ctx context.Context, sale Sale, updates map[string]any) error {
	rut := sale.ClientRut
	if raw, ok := updates["client_rut"].(string); ok {
		rut = NormalizeRut(raw)
		if !ValidRut(rut) {
			return fmt.Errorf("%w: client_rut %q is not a valid rut", shared.ErrValidation, raw)
		}
		updates["client_rut"] = rut
	}
	email := sale.ClientEmail
	if raw, ok := updates["client_email"].(string); ok {
		email = normalizeEmail(raw)
		if email != "" {
			if err := s.validate.Var(email, "email"); err != nil {
				return fmt.Errorf("%w: client_email is not a valid address", shared.ErrValidation)
			}
		}
		updates["client_email"] = email
	}
	checkRut, checkEmail := "", ""
	if rut != sale.ClientRut {
		checkRut = rut
	}
	if email != sale.ClientEmail {
		checkEmail = email
	}
	return s.ensureUnique(ctx, checkRut, checkEmail, sale.ID)
}

func (s *Service) applyReferences(ctx context.Context, sale Sale, updates map[string]any) error {
	if raw, ok := updates["promotion_id"].(int64); ok {
		promo, err := s.resolvePromotion(ctx, raw)
		if err != nil {
			return err
		}
		updates["installation_amount_id"] = promo.InstallationAmountID
	}
	regionID, communeID := sale.RegionID, sale.CommuneID
	_, regionSet := updates["region_id"]
	_, communeSet := updates["commune_id"]
	if !regionSet && !communeSet {
		return nil
	}
	if v, ok := updates["region_id"].(int64); ok {
		regionID = v
	}
	if v, ok := updates["commune_id"].(int64); ok {
		communeID = v
	}
	return s.ensureLocation(ctx, regionID, communeID)
}

// ============================================================================
// PRIORITY
// ============================================================================

// SetPriority toggles the priority flag. Turning it on writes a Priority
// ledger row that carries the current status forward; turning it off does not.
func (s *Service) SetPriority(ctx context.Context, p *shared.Principal, id int64, isPriority bool) (SaleView, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return SaleView{}, err
	}
	if !scope.CanPrioritize {
		return SaleView{}, fmt.Errorf("%w: role %s may not change priority", shared.ErrForbidden, scope.Role)
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return SaleView{}, err
	}
	if !scope.Owns(sale.CompanyID, sale.ExecutiveID) {
		return SaleView{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updates := map[string]any{
			"is_priority":                  isPriority,
			"priority_modified_by_user_id": p.UserID,
			"modified_by_user_id":          p.UserID,
		}
		if err := tx.UpdateSale(ctx, id, sale.Version, updates); err != nil {
			return err
		}
		if !isPriority {
			return nil
		}
		status := int64(sale.StatusID)
		return appendHistory(ctx, tx, HistoryRecord{
			SaleID:             id,
			PreviousStatusID:   int64Ptr(status),
			NewStatusID:        status,
			StatusReasonID:     sale.StatusReasonID,
			ModifierID:         p.UserID,
			ModifiedAt:         now,
			EventType:          EventPriority,
			Date:               now.Format(dateLayout),
			IsPriority:         true,
			PriorityModifierID: int64Ptr(p.UserID),
		})
	})
	if err != nil {
		return SaleView{}, err
	}
	return s.repo.GetSaleView(ctx, id)
}

// ============================================================================
// READS
// ============================================================================

// Get returns a sale with its relations when it is inside the caller's ownership scope.
func (s *Service) Get(ctx context.Context, p *shared.Principal, id int64) (SaleView, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return SaleView{}, err
	}
	view, err := s.repo.GetSaleView(ctx, id)
	if err != nil {
		return SaleView{}, err
	}
	if !scope.Sees(view.CompanyID, view.ExecutiveID, int64(view.StatusID)) {
		return SaleView{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return view, nil
}

// List returns one page of the caller's visible sales.
func (s *Service) List(ctx context.Context, p *shared.Principal, params ListParams) (ListResult, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return ListResult{}, err
	}
	return s.page(ctx, BuildQuery(scope, params))
}

// Search runs a free-text search inside the caller's search scope.
func (s *Service) Search(ctx context.Context, p *shared.Principal, term string, page, size int) (ListResult, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return ListResult{}, err
	}
	spec, err := BuildSearchQuery(scope, term, page, size)
	if err != nil {
		return ListResult{}, err
	}
	return s.page(ctx, spec)
}

// ExportRows returns the full filtered listing, bounded, for document export.
func (s *Service) ExportRows(ctx context.Context, p *shared.Principal, params ListParams) ([]SaleView, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}
	spec := BuildQuery(scope, params)
	spec.Page, spec.Limit, spec.Offset = 1, exportRowLimit, 0
	rows, _, err := s.repo.ListSales(ctx, spec)
	return rows, err
}

// History returns the ledger of a sale in insertion order.
func (s *Service) History(ctx context.Context, p *shared.Principal, id int64) ([]HistoryEntry, error) {
	scope, err := s.resolver.Resolve(p)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Sees(sale.CompanyID, sale.ExecutiveID, int64(sale.StatusID)) {
		return nil, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return s.repo.History(ctx, id)
}

func (s *Service) page(ctx context.Context, spec QuerySpec) (ListResult, error) {
	items, total, err := s.repo.ListSales(ctx, spec)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []SaleView{}
	}
	pg := shared.NewPagination(spec.Page, spec.Limit, total)
	return ListResult{
		Items:      items,
		TotalCount: pg.Total,
		TotalPages: pg.TotalPages,
		Page:       pg.Page,
		PageSize:   pg.PerPage,
	}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) ensureUnique(ctx context.Context, rut, email string, excludeID int64) error {
	if rut != "" {
		exists, err := s.repo.ExistsByRut(ctx, rut, excludeID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: client rut already registered", shared.ErrConflict)
		}
	}
	if email != "" {
		exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: client email already registered", shared.ErrConflict)
		}
	}
	return nil
}

func (s *Service) resolvePromotion(ctx context.Context, id int64) (refdata.Promotion, error) {
	promo, err := s.catalog.Promotion(ctx, id)
	if err != nil {
		return refdata.Promotion{}, err
	}
	if _, err := s.catalog.InstallationAmount(ctx, promo.InstallationAmountID); err != nil {
		return refdata.Promotion{}, err
	}
	return promo, nil
}

func (s *Service) ensureLocation(ctx context.Context, regionID, communeID int64) error {
	if _, err := s.catalog.Region(ctx, regionID); err != nil {
		return err
	}
	commune, err := s.catalog.Commune(ctx, communeID)
	if err != nil {
		return err
	}
	if commune.RegionID != regionID {
		return fmt.Errorf("%w: commune %d is not in region %d", shared.ErrValidation, communeID, regionID)
	}
	return nil
}

func (s *Service) saveUploads(ctx context.Context, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if s.attachments == nil {
		return nil, fmt.Errorf("%w: attachments are not accepted", shared.ErrValidation)
	}
	for _, u := range uploads {
		if err := s.attachments.Check(u); err != nil {
			return nil, err
		}
	}
	paths := make([]string, 0, len(uploads))
	for _, u := range uploads {
		path, err := s.attachments.Save(ctx, u)
		if err != nil {
			s.discardFiles(ctx, paths)
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *Service) discardFiles(ctx context.Context, paths []string) {
	if s.attachments == nil {
		return
	}
	for _, path := range paths {
		if err := s.attachments.Remove(ctx, path); err != nil {
			s.logger.Warn("remove attachment", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func (s *Service) recordTransition(from, to int64) {
	if s.metrics != nil {
		s.metrics.RecordSaleTransition(from, to)
	}
}

func (s *Service) notifyActivated(ctx context.Context, sale Sale, actorID int64) {
	creator, err := s.repo.EnteredBy(ctx, sale.ID)
	if err != nil {
		s.logger.Warn("activation notice: creator lookup",
			slog.Int64("sale_id", sale.ID), slog.Any("error", err))
		return
	}
	s.notify(ctx, EventActive, SaleEvent{
		SaleID:      sale.ID,
		ClientName:  sale.ClientFirstName + " " + sale.ClientLastName,
		ClientRut:   sale.ClientRut,
		StatusID:    int64(StatusActive),
		RecipientID: creator,
		ActorID:     actorID,
	})
}

func (s *Service) notify(ctx context.Context, kind EventType, ev SaleEvent) {
	if s.notifier == nil {
		return
	}
	var err error
	switch kind {
	case EventEntered:
		err = s.notifier.SaleCreated(ctx, ev)
	case EventActive:
		err = s.notifier.SaleActivated(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("sale notification",
			slog.String("event", string(kind)),
			slog.Int64("sale_id", ev.SaleID),
			slog.Any("error", err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

func cleanPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// keepExisting returns the entries of wanted that are attached to the sale.
func keepExisting(existing, wanted []string) []string {
	set := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		set[p] = struct{}{}
	}
	out := make([]string, 0, len(wanted))
	for _, p := range wanted {
		if _, ok := set[p]; ok {
			out = append(out, p)
			delete(set, p)
		}
	}
	return out
}

func missingFrom(before, after []string) []string {
	set := make(map[string]struct{}, len(after))
	for _, p := range after {
		set[p] = struct{}{}
	}
	var out []string
	for _, p := range before {
		if _, ok := set[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
