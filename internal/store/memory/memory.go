// Package memory implementa store.Repository sobre mapas en memoria.
// Se usa en pruebas y en modo demo sin Postgres. Cada método es atómico bajo
// el mutex; WithinTx serializa transacciones completas con un mutex aparte
// (sin rollback: en este modo una operación fallida no deja escrituras a
// medias porque los servicios validan antes de escribir).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID uint

	users          map[uint]models.User
	branches       map[uint]models.Branch
	tillSessions   map[uint]models.TillSession
	movements      map[uint]models.Movement
	policyPayments map[uint]models.PolicyPayment
	userRecs       map[uint]models.UserReconciliation
	pettyCloses    map[uint]models.PettyCashClose
	generalCloses  map[uint]models.GeneralCashClose
	auditLogs      []models.AuditLog
}

func New() *Store {
	return &Store{
		nextID:         1,
		users:          map[uint]models.User{},
		branches:       map[uint]models.Branch{},
		tillSessions:   map[uint]models.TillSession{},
		movements:      map[uint]models.Movement{},
		policyPayments: map[uint]models.PolicyPayment{},
		userRecs:       map[uint]models.UserReconciliation{},
		pettyCloses:    map[uint]models.PettyCashClose{},
		generalCloses:  map[uint]models.GeneralCashClose{},
	}
}

func (s *Store) id() uint {
	id := s.nextID
	s.nextID++
	return id
}

// inWindow reporta si t cae en la ventana semiabierta (from, to].
func inWindow(t, from, to time.Time) bool {
	return t.After(from) && !t.After(to)
}

func (s *Store) WithinTx(_ context.Context, fn func(store.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// ---------------------------------------------------------------
// Directorio
// ---------------------------------------------------------------

func (s *Store) SeedUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) SeedBranch(b models.Branch) models.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	s.branches[b.ID] = b
	return b
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetBranch(_ context.Context, id uint) (*models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListCashiersByBranch(_ context.Context, branchID uint) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.BranchID != nil && *u.BranchID == branchID && u.Role == models.RoleCashier {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------
// Sesiones de caja
// ---------------------------------------------------------------

func (s *Store) CreateTillSession(_ context.Context, ts *models.TillSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts.ID = s.id()
	ts.CreatedAt = time.Now()
	ts.UpdatedAt = ts.CreatedAt
	s.tillSessions[ts.ID] = *ts
	return nil
}

func (s *Store) GetTillSession(_ context.Context, id uint) (*models.TillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tillSessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ts, nil
}

func (s *Store) GetOpenTillSessionByCashier(_ context.Context, cashierID uint) (*models.TillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ts := range s.tillSessions {
		if ts.CashierID == cashierID && ts.Status == models.TillOpen {
			out := ts
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListOpenTillSessionsByBranch(_ context.Context, branchID uint) ([]models.TillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TillSession
	for _, ts := range s.tillSessions {
		if ts.BranchID == branchID && ts.Status == models.TillOpen {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CloseTillSessions(_ context.Context, ids []uint, pettyCloseID uint, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		ts, ok := s.tillSessions[id]
		if !ok {
			return store.ErrNotFound
		}
		ts.Status = models.TillClosed
		ts.ClosedAt = &closedAt
		ts.PettyCashCloseID = &pettyCloseID
		ts.UpdatedAt = time.Now()
		s.tillSessions[id] = ts
	}
	return nil
}

func (s *Store) DeleteTillSession(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tillSessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tillSessions, id)
	return nil
}

func (s *Store) CountMovementsBySession(_ context.Context, sessionID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.movements {
		if m.TillSessionID != nil && *m.TillSessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------
// Movimientos
// ---------------------------------------------------------------

func (s *Store) CreateMovement(_ context.Context, m *models.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.UpdatedAt = m.CreatedAt
	s.movements[m.ID] = *m
	return nil
}

func (s *Store) GetMovement(_ context.Context, id uint) (*models.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) UpdateMovement(_ context.Context, m *models.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movements[m.ID]; !ok {
		return store.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	s.movements[m.ID] = *m
	return nil
}

func (s *Store) DeleteMovement(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movements[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.movements, id)
	return nil
}

func matchGeneral(m models.Movement, general *bool) bool {
	return general == nil || m.IsGeneral == *general
}

func (s *Store) ListMovementsByActor(_ context.Context, actorID uint, from, to time.Time, general *bool) ([]models.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Movement
	for _, m := range s.movements {
		if m.ActorID == actorID && inWindow(m.CreatedAt, from, to) && matchGeneral(m, general) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListMovementsByBranch(_ context.Context, branchID *uint, from, to time.Time, general *bool) ([]models.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Movement
	for _, m := range s.movements {
		if (branchID == nil || m.BranchID == *branchID) && inWindow(m.CreatedAt, from, to) && matchGeneral(m, general) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------
// Pagos de póliza
// ---------------------------------------------------------------

func (s *Store) CreatePolicyPayment(_ context.Context, p *models.PolicyPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}
	s.policyPayments[p.ID] = *p
	return nil
}

func (s *Store) ListPolicyPaymentsByCashier(_ context.Context, cashierID uint, from, to time.Time) ([]models.PolicyPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PolicyPayment
	for _, p := range s.policyPayments {
		if p.CashierID == cashierID && !p.Cancelled && inWindow(p.PaidAt, from, to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------
// Cortes de usuario
// ---------------------------------------------------------------

func (s *Store) CreateUserReconciliation(_ context.Context, r *models.UserReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// misma restricción que el índice único parcial en Postgres
	for _, ex := range s.userRecs {
		if ex.CashierID == r.CashierID && ex.Day.Equal(r.Day) && ex.Status != models.CloseCancelled {
			return store.ErrDuplicate
		}
	}
	r.ID = s.id()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.userRecs[r.ID] = *r
	return nil
}

func (s *Store) GetUserReconciliation(_ context.Context, id uint) (*models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.userRecs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) UpdateUserReconciliation(_ context.Context, r *models.UserReconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userRecs[r.ID]; !ok {
		return store.ErrNotFound
	}
	r.UpdatedAt = time.Now()
	s.userRecs[r.ID] = *r
	return nil
}

func (s *Store) GetLastClosedUserReconciliation(_ context.Context, cashierID uint) (*models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.UserReconciliation
	for _, r := range s.userRecs {
		if r.CashierID != cashierID || r.Status != models.CloseClosed {
			continue
		}
		r := r
		if last == nil || r.WindowEnd.After(last.WindowEnd) {
			last = &r
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

func (s *Store) FindActiveUserReconciliationForDay(_ context.Context, cashierID uint, day time.Time) (*models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.userRecs {
		if r.CashierID == cashierID && r.Day.Equal(day) && r.Status != models.CloseCancelled {
			out := r
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUserReconciliationsClosedBetween(_ context.Context, branchID uint, from, to time.Time) ([]models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserReconciliation
	for _, r := range s.userRecs {
		if r.BranchID == branchID && r.Status == models.CloseClosed && inWindow(r.WindowEnd, from, to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListPendingUserReconciliationsByBranch(_ context.Context, branchID uint) ([]models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserReconciliation
	for _, r := range s.userRecs {
		if r.BranchID == branchID && r.Status == models.ClosePending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListUserReconciliationsByPettyClose(_ context.Context, pettyCloseID uint) ([]models.UserReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserReconciliation
	for _, r := range s.userRecs {
		if r.PettyCashCloseID != nil && *r.PettyCashCloseID == pettyCloseID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------
// Cortes de caja chica
// ---------------------------------------------------------------

func (s *Store) CreatePettyCashClose(_ context.Context, c *models.PettyCashClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.pettyCloses {
		if ex.BranchID == c.BranchID && ex.Day.Equal(c.Day) && ex.Status != models.CloseCancelled {
			return store.ErrDuplicate
		}
	}
	c.ID = s.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.pettyCloses[c.ID] = *c
	return nil
}

func (s *Store) GetPettyCashClose(_ context.Context, id uint) (*models.PettyCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pettyCloses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpdatePettyCashClose(_ context.Context, c *models.PettyCashClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pettyCloses[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.pettyCloses[c.ID] = *c
	return nil
}

func (s *Store) GetLastClosedPettyCashClose(_ context.Context, branchID uint) (*models.PettyCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.PettyCashClose
	for _, c := range s.pettyCloses {
		if c.BranchID != branchID || c.Status != models.CloseClosed {
			continue
		}
		c := c
		if last == nil || c.WindowEnd.After(last.WindowEnd) {
			last = &c
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

func (s *Store) FindActivePettyCashCloseForDay(_ context.Context, branchID uint, day time.Time) (*models.PettyCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.pettyCloses {
		if c.BranchID == branchID && c.Day.Equal(day) && c.Status != models.CloseCancelled {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListClosedPettyCashClosesForDay(_ context.Context, branchID *uint, day time.Time) ([]models.PettyCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PettyCashClose
	for _, c := range s.pettyCloses {
		if c.Status != models.CloseClosed || !c.Day.Equal(day) {
			continue
		}
		if branchID != nil && c.BranchID != *branchID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------------------------
// Cortes de caja general
// ---------------------------------------------------------------

func sameGeneralScope(closeBranch, queryBranch *uint) bool {
	if closeBranch == nil {
		// un corte global aplica a cualquier sucursal
		return true
	}
	return queryBranch != nil && *closeBranch == *queryBranch
}

func (s *Store) CreateGeneralCashClose(_ context.Context, c *models.GeneralCashClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.generalCloses {
		if !ex.Day.Equal(c.Day) || ex.Status == models.CloseCancelled {
			continue
		}
		sameScope := (ex.BranchID == nil && c.BranchID == nil) ||
			(ex.BranchID != nil && c.BranchID != nil && *ex.BranchID == *c.BranchID)
		if sameScope {
			return store.ErrDuplicate
		}
	}
	c.ID = s.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.generalCloses[c.ID] = *c
	return nil
}

func (s *Store) GetGeneralCashClose(_ context.Context, id uint) (*models.GeneralCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.generalCloses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpdateGeneralCashClose(_ context.Context, c *models.GeneralCashClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generalCloses[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	s.generalCloses[c.ID] = *c
	return nil
}

func (s *Store) GetLastClosedGeneralCashClose(_ context.Context, branchID *uint) (*models.GeneralCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.GeneralCashClose
	for _, c := range s.generalCloses {
		if c.Status != models.CloseClosed {
			continue
		}
		sameScope := (c.BranchID == nil && branchID == nil) ||
			(c.BranchID != nil && branchID != nil && *c.BranchID == *branchID)
		if !sameScope {
			continue
		}
		c := c
		if last == nil || c.Day.After(last.Day) {
			last = &c
		}
	}
	if last == nil {
		return nil, store.ErrNotFound
	}
	return last, nil
}

func (s *Store) FindActiveGeneralCashCloseForDay(_ context.Context, branchID *uint, day time.Time) (*models.GeneralCashClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.generalCloses {
		if c.Day.Equal(day) && c.Status != models.CloseCancelled && sameGeneralScope(c.BranchID, branchID) {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

// ---------------------------------------------------------------
// Bitácora
// ---------------------------------------------------------------

func (s *Store) CreateAuditLog(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id()
	entry.CreatedAt = time.Now()
	s.auditLogs = append(s.auditLogs, *entry)
	return nil
}

// AuditLogs regresa una copia de la bitácora; solo para pruebas.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.auditLogs))
	copy(out, s.auditLogs)
	return out
}
