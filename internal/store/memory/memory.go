package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

const seedStoreID = "main-store"

type Store struct {
	mu               sync.RWMutex
	billsByID        map[string]*domain.Bill
	billsByIdem      map[string]*domain.Bill
	staffByStore     map[string]map[string]domain.Staff
	templatesByStore map[string]map[string]domain.RoleTemplate
	auditLogs        []domain.AuditLog
	shiftsByID       map[string]domain.Shift
	activeShiftByKey map[string]string
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		billsByID:        make(map[string]*domain.Bill),
		billsByIdem:      make(map[string]*domain.Bill),
		staffByStore:     make(map[string]map[string]domain.Staff),
		templatesByStore: make(map[string]map[string]domain.RoleTemplate),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		shiftsByID:       make(map[string]domain.Shift),
		activeShiftByKey: make(map[string]string),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD with dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory store: hash seed password for " + u.username + ": " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a demo roster for main-store and the seed
// accounts.
func NewSeeded() *Store {
	s := New()
	staff := []domain.Staff{
		{ID: "stf-ana", Name: "Ana Putri", Role: "stylist", Active: true},
		{ID: "stf-ben", Name: "Ben Santoso", Role: "colorist", Active: true},
		{ID: "stf-cici", Name: "Cici Lestari", Role: "assistant", Active: true},
		{ID: "stf-dewi", Name: "Dewi Anggraini", Role: "therapist", Active: true},
		{ID: "stf-eko", Name: "Eko Prasetyo", Role: "stylist", Active: false},
	}
	templates := []domain.RoleTemplate{
		{ServiceID: "svc-balayage", Name: "Balayage", RequiredRoles: []string{"stylist", "colorist"}},
		{ServiceID: "svc-bridal", Name: "Bridal Package", RequiredRoles: []string{"stylist", "therapist", "assistant"}},
	}
	s.staffByStore[seedStoreID] = make(map[string]domain.Staff, len(staff))
	for _, member := range staff {
		s.staffByStore[seedStoreID][member.ID] = member
	}
	s.templatesByStore[seedStoreID] = make(map[string]domain.RoleTemplate, len(templates))
	for _, tpl := range templates {
		s.templatesByStore[seedStoreID][tpl.ServiceID] = tpl
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.IdempotencyKey == "" || bill.ID == "" || len(bill.Items) == 0 {
		return nil, store.ErrInvalidBill
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.billsByIdem[bill.IdempotencyKey]; ok {
		return cloneBill(existing), nil
	}
	if _, ok := s.billsByID[bill.ID]; ok {
		return nil, store.ErrInvalidBill
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	if bill.Status == "" {
		bill.Status = domain.BillStatusDraft
	}
	if bill.Payments == nil {
		bill.Payments = []domain.Payment{}
	}

	saved := cloneBill(&bill)
	s.billsByID[saved.ID] = saved
	s.billsByIdem[saved.IdempotencyKey] = saved
	return cloneBill(saved), nil
}

func (s *Store) FindBillByID(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBill(bill), nil
}

func (s *Store) FindBillByIdempotency(_ context.Context, key string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.billsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneBill(bill), nil
}

func (s *Store) AppendPayment(_ context.Context, billID string, payment domain.Payment) (*domain.Bill, error) {
	if payment.AmountCents <= 0 || !payment.Method.IsValid() {
		return nil, store.ErrInvalidBill
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.billsByID[billID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillStatusDraft {
		return nil, store.ErrConflict
	}
	if payment.AmountCents > bill.RemainingCents() {
		return nil, store.ErrInvalidBill
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.BillID = billID
	bill.Payments = append(bill.Payments, payment)
	if bill.RemainingCents() == 0 {
		at := payment.CreatedAt
		bill.Status = domain.BillStatusPosted
		bill.PostedAt = &at
	}
	return cloneBill(bill), nil
}

func (s *Store) TransitionBill(_ context.Context, id string, from domain.BillStatus, to domain.BillStatus, reason string, at time.Time) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != from {
		return nil, store.ErrConflict
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	applyTransition(bill, to, reason, at)
	return cloneBill(bill), nil
}

func (s *Store) ListBills(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Bill, 0, 32)
	for _, bill := range s.billsByID {
		if storeID != "" && bill.StoreID != storeID {
			continue
		}
		if bill.CreatedAt.Before(from) || !bill.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneBill(bill))
	}
	slices.SortFunc(result, func(a, b domain.Bill) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SumCashByShift(_ context.Context, shiftID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, bill := range s.billsByID {
		if bill.ShiftID != shiftID || bill.Status != domain.BillStatusPosted {
			continue
		}
		for _, p := range bill.Payments {
			if p.Method.IsCash() {
				total += p.AmountCents
			}
		}
	}
	return total, nil
}

func (s *Store) ListStaff(_ context.Context, storeID string) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	staff := make([]domain.Staff, 0, len(s.staffByStore[storeID]))
	for _, member := range s.staffByStore[storeID] {
		staff = append(staff, member)
	}
	slices.SortFunc(staff, func(a, b domain.Staff) int { return strings.Compare(a.ID, b.ID) })
	return staff, nil
}

func (s *Store) UpsertStaff(_ context.Context, storeID string, staff domain.Staff) error {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(staff.ID) == "" || strings.TrimSpace(staff.Role) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staffByStore[storeID] == nil {
		s.staffByStore[storeID] = make(map[string]domain.Staff)
	}
	s.staffByStore[storeID][staff.ID] = staff
	return nil
}

func (s *Store) ListRoleTemplates(_ context.Context, storeID string) ([]domain.RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]domain.RoleTemplate, 0, len(s.templatesByStore[storeID]))
	for _, tpl := range s.templatesByStore[storeID] {
		tpl.RequiredRoles = slices.Clone(tpl.RequiredRoles)
		templates = append(templates, tpl)
	}
	slices.SortFunc(templates, func(a, b domain.RoleTemplate) int { return strings.Compare(a.ServiceID, b.ServiceID) })
	return templates, nil
}

func (s *Store) UpsertRoleTemplate(_ context.Context, storeID string, template domain.RoleTemplate) error {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(template.ServiceID) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.templatesByStore[storeID] == nil {
		s.templatesByStore[storeID] = make(map[string]domain.RoleTemplate)
	}
	template.RequiredRoles = slices.Clone(template.RequiredRoles)
	s.templatesByStore[storeID][template.ServiceID] = template
	return nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.TerminalID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.StoreID, shift.TerminalID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, store.ErrConflict
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.Denominations = nil
	shift.CountedCashCents, shift.ExpectedCashCents, shift.VarianceCents = 0, 0, 0

	s.shiftsByID[shift.ID] = shift
	s.activeShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, terminalID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[shiftMapKey(storeID, terminalID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) CloseActiveShift(_ context.Context, closing domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(closing.StoreID) == "" || strings.TrimSpace(closing.TerminalID) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(closing.StoreID, closing.TerminalID)
	shiftID, exists := s.activeShiftByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	closedAt := time.Now().UTC()
	if closing.ClosedAt != nil {
		closedAt = *closing.ClosedAt
	}
	shift.Status = domain.ShiftStatusClosed
	shift.Denominations = cloneCounts(closing.Denominations)
	shift.CountedCashCents = closing.CountedCashCents
	shift.ExpectedCashCents = closing.ExpectedCashCents
	shift.VarianceCents = closing.VarianceCents
	shift.ClosedAt = &closedAt

	delete(s.activeShiftByKey, key)
	s.shiftsByID[shiftID] = shift
	copyShift := cloneShift(shift)
	return &copyShift, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func applyTransition(bill *domain.Bill, to domain.BillStatus, reason string, at time.Time) {
	bill.Status = to
	switch to {
	case domain.BillStatusPosted:
		bill.PostedAt = &at
	case domain.BillStatusVoid, domain.BillStatusRefunded:
		bill.VoidReason = reason
		bill.ClosedAt = &at
	}
}

func shiftMapKey(storeID string, terminalID string) string {
	return storeID + "::" + terminalID
}

func cloneBill(src *domain.Bill) *domain.Bill {
	out := *src
	if src.Customer != nil {
		customer := *src.Customer
		out.Customer = &customer
	}
	out.Items = make([]domain.BillItem, len(src.Items))
	for i, item := range src.Items {
		item.Contributions = slices.Clone(item.Contributions)
		out.Items[i] = item
	}
	out.Payments = append([]domain.Payment{}, src.Payments...)
	if src.PostedAt != nil {
		at := *src.PostedAt
		out.PostedAt = &at
	}
	if src.ClosedAt != nil {
		at := *src.ClosedAt
		out.ClosedAt = &at
	}
	return &out
}

func cloneShift(src domain.Shift) domain.Shift {
	out := src
	out.Denominations = cloneCounts(src.Denominations)
	if src.ClosedAt != nil {
		at := *src.ClosedAt
		out.ClosedAt = &at
	}
	return out
}

func cloneCounts(src map[int64]int) map[int64]int {
	if src == nil {
		return nil
	}
	out := make(map[int64]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
