package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/refdata"
	"github.com/salesdesk/salesdesk/internal/shared"
	_ "github.com/salesdesk/salesdesk/testing"
)

// memRepo is an in-memory Repository. Transactions snapshot state and roll
// back on error; ListSales pages over every row in id order.
type memRepo struct {
	mu      sync.Mutex
	sales   map[int64]Sale
	history []HistoryRecord
	nextID  int64
}

func newMemRepo() *memRepo {
	return &memRepo{sales: make(map[int64]Sale)}
}

func (m *memRepo) put(s Sale) Sale {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.Version == 0 {
		s.Version = 1
	}
	m.sales[s.ID] = s
	return s
}

func (m *memRepo) sale(id int64) Sale {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sales[id]
}

func (m *memRepo) records(saleID int64) []HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryRecord
	for _, r := range m.history {
		if r.SaleID == saleID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	salesSnap := make(map[int64]Sale, len(m.sales))
	for k, v := range m.sales {
		salesSnap[k] = v
	}
	historySnap := append([]HistoryRecord(nil), m.history...)
	nextSnap := m.nextID
	m.mu.Unlock()

	if err := fn(ctx, memTx{m}); err != nil {
		m.mu.Lock()
		m.sales, m.history, m.nextID = salesSnap, historySnap, nextSnap
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) GetSale(_ context.Context, id int64) (Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return s, nil
}

func (m *memRepo) GetSaleView(ctx context.Context, id int64) (SaleView, error) {
	s, err := m.GetSale(ctx, id)
	if err != nil {
		return SaleView{}, err
	}
	return SaleView{Sale: s, StatusName: fmt.Sprintf("status-%d", s.StatusID)}, nil
}

func (m *memRepo) ListSales(_ context.Context, spec QuerySpec) ([]SaleView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.sales))
	for id := range m.sales {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []SaleView
	for i := spec.Offset; i < len(ids) && i < spec.Offset+spec.Limit; i++ {
		out = append(out, SaleView{Sale: m.sales[ids[i]]})
	}
	return out, len(ids), nil
}

func (m *memRepo) ExistsByRut(_ context.Context, rut string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sales {
		if id != excludeID && s.ClientRut == rut {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ExistsByEmail(_ context.Context, email string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sales {
		if id != excludeID && s.ClientEmail != "" && s.ClientEmail == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) History(_ context.Context, saleID int64) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, r := range m.records(saleID) {
		out = append(out, HistoryEntry{HistoryRecord: r})
	}
	return out, nil
}

func (m *memRepo) EnteredBy(_ context.Context, saleID int64) (int64, error) {
	for _, r := range m.records(saleID) {
		if r.EventType == EventEntered {
			return r.ModifierID, nil
		}
	}
	return 0, fmt.Errorf("%w: entered row for sale %d", shared.ErrNotFound, saleID)
}

type memTx struct {
	m *memRepo
}

func (t memTx) InsertSale(_ context.Context, s Sale) (int64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for _, other := range t.m.sales {
		if other.ClientRut == s.ClientRut {
			return 0, fmt.Errorf("%w: uq_sales_client_rut", shared.ErrConflict)
		}
	}
	t.m.nextID++
	s.ID = t.m.nextID
	t.m.sales[s.ID] = s
	return s.ID, nil
}

func (t memTx) UpdateSale(_ context.Context, id, expectedVersion int64, updates map[string]any) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	s, ok := t.m.sales[id]
	if !ok {
		return fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	if s.Version != expectedVersion {
		return fmt.Errorf("%w: sale %d was modified concurrently", shared.ErrConflict, id)
	}
	for col, v := range updates {
		applyColumn(&s, col, v)
	}
	s.Version++
	t.m.sales[id] = s
	return nil
}

func (t memTx) LastComment(_ context.Context, saleID int64) (*string, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i := len(t.m.history) - 1; i >= 0; i-- {
		r := t.m.history[i]
		if r.SaleID == saleID && r.Comment != nil {
			return r.Comment, nil
		}
	}
	return nil, nil
}

func (t memTx) AppendHistory(_ context.Context, rec HistoryRecord) (int64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	rec.ID = int64(len(t.m.history) + 1)
	t.m.history = append(t.m.history, rec)
	return rec.ID, nil
}

func (t memTx) AttachmentsInUse(_ context.Context, paths []string, excludeID int64) ([]string, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	var used []string
	for id, s := range t.m.sales {
		if id == excludeID {
			continue
		}
		for _, p := range s.OtherImages {
			if want[p] {
				used = append(used, p)
				delete(want, p)
			}
		}
	}
	return used, nil
}

func optInt(v any) *int64 {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return &x
	}
	panic(fmt.Sprintf("unexpected id value %T", v))
}

func applyColumn(s *Sale, col string, v any) {
	str := func() string { return v.(string) }
	switch col {
	case "service_id":
		x := str()
		s.ServiceID = &x
	case "sales_channel_id":
		s.SalesChannelID = optInt(v)
	case "client_first_name":
		s.ClientFirstName = str()
	case "client_last_name":
		s.ClientLastName = str()
	case "client_rut":
		s.ClientRut = str()
	case "client_email":
		s.ClientEmail = str()
	case "client_phone":
		s.ClientPhone = str()
	case "client_secondary_phone":
		s.ClientSecondaryPhone = str()
	case "region_id":
		s.RegionID = v.(int64)
	case "commune_id":
		s.CommuneID = v.(int64)
	case "street":
		s.Street = str()
	case "number":
		s.Number = str()
	case "department_office_floor":
		s.DepartmentOfficeFloor = str()
	case "geo_reference":
		s.GeoReference = str()
	case "promotion_id":
		s.PromotionID = v.(int64)
	case "installation_amount_id":
		s.InstallationAmountID = v.(int64)
	case "additional_comments":
		s.AdditionalComments = str()
	case "company_id":
		s.CompanyID = v.(int64)
	case "sale_status_id":
		s.StatusID = Status(v.(int64))
	case "sale_status_reason_id":
		s.StatusReasonID = optInt(v)
	case "superadmin_id":
		s.SuperAdminID = optInt(v)
	case "admin_id":
		s.AdminID = optInt(v)
	case "executive_id":
		s.ExecutiveID = optInt(v)
	case "validator_id":
		s.ValidatorID = optInt(v)
	case "dispatcher_id":
		s.DispatcherID = optInt(v)
	case "modified_by_user_id":
		s.ModifiedByUserID = optInt(v)
	case "priority_modified_by_user_id":
		s.PriorityModifiedByUserID = optInt(v)
	case "is_priority":
		s.IsPriority = v.(bool)
	case "other_images":
		s.OtherImages = v.([]string)
	default:
		panic("unknown column " + col)
	}
}

// fakeCatalog holds a small fixed reference data set.
type fakeCatalog struct {
	promotions map[int64]refdata.Promotion
	amounts    map[int64]refdata.InstallationAmount
	regions    map[int64]refdata.Region
	communes   map[int64]refdata.Commune
	reasons    map[int64]refdata.StatusReason
	noEntered  bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		promotions: map[int64]refdata.Promotion{
			10: {ID: 10, Name: "Fibra 600", InstallationAmountID: 100},
			11: {ID: 11, Name: "Fibra 940", InstallationAmountID: 101},
			12: {ID: 12, Name: "Huérfana", InstallationAmountID: 999},
		},
		amounts: map[int64]refdata.InstallationAmount{
			100: {ID: 100, Amount: "0"},
			101: {ID: 101, Amount: "29990"},
		},
		regions: map[int64]refdata.Region{
			13: {ID: 13, Name: "Metropolitana"},
			5:  {ID: 5, Name: "Valparaíso"},
		},
		communes: map[int64]refdata.Commune{
			131: {ID: 131, RegionID: 13, Name: "Peñalolén"},
			51:  {ID: 51, RegionID: 5, Name: "Viña del Mar"},
		},
		reasons: map[int64]refdata.StatusReason{
			11: {ID: 11, StatusID: 1, Name: "Ingresada"},
			21: {ID: 21, StatusID: 2, Name: "Validada OK"},
			31: {ID: 31, StatusID: 3, Name: "Falta documentación"},
			51: {ID: 51, StatusID: 5, Name: "En ruta"},
			61: {ID: 61, StatusID: 6, Name: "Instalada"},
			71: {ID: 71, StatusID: 7, Name: "Cliente desiste"},
		},
	}
}

func lookup[T any](m map[int64]T, id int64, what string) (T, error) {
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return v, nil
}

func (c *fakeCatalog) Promotion(_ context.Context, id int64) (refdata.Promotion, error) {
	return lookup(c.promotions, id, "promotion")
}

func (c *fakeCatalog) InstallationAmount(_ context.Context, id int64) (refdata.InstallationAmount, error) {
	return lookup(c.amounts, id, "installation amount")
}

func (c *fakeCatalog) Region(_ context.Context, id int64) (refdata.Region, error) {
	return lookup(c.regions, id, "region")
}

func (c *fakeCatalog) Commune(_ context.Context, id int64) (refdata.Commune, error) {
	return lookup(c.communes, id, "commune")
}

func (c *fakeCatalog) StatusReason(_ context.Context, id int64) (refdata.StatusReason, error) {
	return lookup(c.reasons, id, "status reason")
}

func (c *fakeCatalog) EnteredReason(_ context.Context) (refdata.StatusReason, error) {
	if c.noEntered {
		return refdata.StatusReason{}, shared.ErrNotFound
	}
	return c.reasons[11], nil
}

type recordedEvent struct {
	kind EventType
	ev   SaleEvent
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (n *fakeNotifier) SaleCreated(_ context.Context, ev SaleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{EventEntered, ev})
	return n.err
}

func (n *fakeNotifier) SaleActivated(_ context.Context, ev SaleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{EventActive, ev})
	return n.err
}

// fakeStore keeps attachments in memory.
type fakeStore struct {
	saved   []string
	removed []string
	failOn  int
}

func (s *fakeStore) Check(u Upload) error {
	if len(u.Data) == 0 {
		return fmt.Errorf("%w: empty attachment", shared.ErrValidation)
	}
	return nil
}

func (s *fakeStore) Save(_ context.Context, u Upload) (string, error) {
	if s.failOn > 0 && len(s.saved)+1 == s.failOn {
		return "", fmt.Errorf("disk full")
	}
	p := fmt.Sprintf("/uploads/%d-%s", len(s.saved)+1, u.Filename)
	s.saved = append(s.saved, p)
	return p, nil
}

func (s *fakeStore) Remove(_ context.Context, p string) error {
	s.removed = append(s.removed, p)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	catalog  *fakeCatalog
	notifier *fakeNotifier
	store    *fakeStore
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	policy, err := rbac.DefaultPolicy()
	require.NoError(t, err)
	f := fixture{
		repo:     newMemRepo(),
		catalog:  newFakeCatalog(),
		notifier: &fakeNotifier{},
		store:    &fakeStore{},
	}
	f.svc = NewService(f.repo, f.catalog, rbac.NewResolver(policy), nil)
	f.svc.SetNotifier(f.notifier)
	f.svc.SetAttachmentStore(f.store)
	f.svc.SetClock(func() time.Time { return fixedNow }, nil)
	return f
}

func principal(role rbac.Role, userID, companyID int64) *shared.Principal {
	return &shared.Principal{UserID: userID, RoleID: int64(role), CompanyID: companyID}
}

var (
	superAdmin    = principal(rbac.RoleSuperAdmin, 1, 1)
	admin         = principal(rbac.RoleAdmin, 2, 1)
	executive     = principal(rbac.RoleExecutive, 3, 1)
	validatorUser = principal(rbac.RoleValidator, 4, 1)
	dispatcher    = principal(rbac.RoleDispatcher, 5, 1)
	consultant    = principal(rbac.RoleConsultant, 6, 1)
)

func validCreate(rut string) CreateSaleInput {
	return CreateSaleInput{
		ClientFirstName: "Ana",
		ClientLastName:  "Pérez",
		ClientRut:       rut,
		ClientEmail:     "",
		ClientPhone:     "+56911112222",
		RegionID:        13,
		CommuneID:       131,
		Street:          "Av. Grecia",
		Number:          "8735",
		PromotionID:     10,
	}
}

func strPtr(v string) *string { return &v }
