// Package gormstore implementa store.Repository sobre GORM/Postgres.
// Las ventanas son semiabiertas (from, to]; las restricciones de unicidad
// por (nivel, ámbito, día) las respaldan índices únicos parciales creados en
// database.Init, por eso CreateXxx traduce el error de llave duplicada a
// store.ErrDuplicate.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"seguros-backend/internal/models"
	"seguros-backend/internal/store"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func translateCreate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
		return store.ErrDuplicate
	}
	return err
}

// ---------------------------------------------------------------
// Directorio
// ---------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) GetBranch(ctx context.Context, id uint) (*models.Branch, error) {
	var b models.Branch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (s *Store) ListCashiersByBranch(ctx context.Context, branchID uint) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND role = ?", branchID, models.RoleCashier).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ---------------------------------------------------------------
// Sesiones de caja
// ---------------------------------------------------------------

func (s *Store) CreateTillSession(ctx context.Context, ts *models.TillSession) error {
	return s.db.WithContext(ctx).Create(ts).Error
}

func (s *Store) GetTillSession(ctx context.Context, id uint) (*models.TillSession, error) {
	var ts models.TillSession
	if err := s.db.WithContext(ctx).First(&ts, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &ts, nil
}

func (s *Store) GetOpenTillSessionByCashier(ctx context.Context, cashierID uint) (*models.TillSession, error) {
	var ts models.TillSession
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND status = ?", cashierID, models.TillOpen).
		First(&ts).Error
	if err != nil {
		return nil, translate(err)
	}
	return &ts, nil
}

func (s *Store) ListOpenTillSessionsByBranch(ctx context.Context, branchID uint) ([]models.TillSession, error) {
	var out []models.TillSession
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND status = ?", branchID, models.TillOpen).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) CloseTillSessions(ctx context.Context, ids []uint, pettyCloseID uint, closedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.TillSession{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":              models.TillClosed,
			"closed_at":           closedAt,
			"petty_cash_close_id": pettyCloseID,
		}).Error
}

func (s *Store) DeleteTillSession(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.TillSession{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountMovementsBySession(ctx context.Context, sessionID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Movement{}).
		Where("till_session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// ---------------------------------------------------------------
// Movimientos
// ---------------------------------------------------------------

func (s *Store) CreateMovement(ctx context.Context, m *models.Movement) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *Store) GetMovement(ctx context.Context, id uint) (*models.Movement, error) {
	var m models.Movement
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) UpdateMovement(ctx context.Context, m *models.Movement) error {
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *Store) DeleteMovement(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Movement{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func applyGeneral(q *gorm.DB, general *bool) *gorm.DB {
	if general != nil {
		q = q.Where("is_general = ?", *general)
	}
	return q
}

func (s *Store) ListMovementsByActor(ctx context.Context, actorID uint, from, to time.Time, general *bool) ([]models.Movement, error) {
	var out []models.Movement
	q := s.db.WithContext(ctx).
		Where("actor_id = ? AND created_at > ? AND created_at <= ?", actorID, from, to)
	err := applyGeneral(q, general).Order("created_at asc, id asc").Find(&out).Error
	return out, err
}

func (s *Store) ListMovementsByBranch(ctx context.Context, branchID *uint, from, to time.Time, general *bool) ([]models.Movement, error) {
	var out []models.Movement
	q := s.db.WithContext(ctx).
		Where("created_at > ? AND created_at <= ?", from, to)
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	err := applyGeneral(q, general).Order("created_at asc, id asc").Find(&out).Error
	return out, err
}

// ---------------------------------------------------------------
// Pagos de póliza
// ---------------------------------------------------------------

func (s *Store) CreatePolicyPayment(ctx context.Context, p *models.PolicyPayment) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) ListPolicyPaymentsByCashier(ctx context.Context, cashierID uint, from, to time.Time) ([]models.PolicyPayment, error) {
	var out []models.PolicyPayment
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND cancelled = false AND paid_at > ? AND paid_at <= ?", cashierID, from, to).
		Order("paid_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ---------------------------------------------------------------
// Cortes de usuario
// ---------------------------------------------------------------

func (s *Store) CreateUserReconciliation(ctx context.Context, r *models.UserReconciliation) error {
	return translateCreate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) GetUserReconciliation(ctx context.Context, id uint) (*models.UserReconciliation, error) {
	var r models.UserReconciliation
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) UpdateUserReconciliation(ctx context.Context, r *models.UserReconciliation) error {
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *Store) GetLastClosedUserReconciliation(ctx context.Context, cashierID uint) (*models.UserReconciliation, error) {
	var r models.UserReconciliation
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND status = ?", cashierID, models.CloseClosed).
		Order("window_end desc").
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) FindActiveUserReconciliationForDay(ctx context.Context, cashierID uint, day time.Time) (*models.UserReconciliation, error) {
	var r models.UserReconciliation
	err := s.db.WithContext(ctx).
		Where("cashier_id = ? AND day = ? AND status <> ?", cashierID, day, models.CloseCancelled).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) ListUserReconciliationsClosedBetween(ctx context.Context, branchID uint, from, to time.Time) ([]models.UserReconciliation, error) {
	var out []models.UserReconciliation
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND status = ? AND window_end > ? AND window_end <= ?",
			branchID, models.CloseClosed, from, to).
		Order("window_end asc, id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListPendingUserReconciliationsByBranch(ctx context.Context, branchID uint) ([]models.UserReconciliation, error) {
	var out []models.UserReconciliation
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND status = ?", branchID, models.ClosePending).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListUserReconciliationsByPettyClose(ctx context.Context, pettyCloseID uint) ([]models.UserReconciliation, error) {
	var out []models.UserReconciliation
	err := s.db.WithContext(ctx).
		Where("petty_cash_close_id = ?", pettyCloseID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ---------------------------------------------------------------
// Cortes de caja chica
// ---------------------------------------------------------------

func (s *Store) CreatePettyCashClose(ctx context.Context, c *models.PettyCashClose) error {
	return translateCreate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetPettyCashClose(ctx context.Context, id uint) (*models.PettyCashClose, error) {
	var c models.PettyCashClose
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) UpdatePettyCashClose(ctx context.Context, c *models.PettyCashClose) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) GetLastClosedPettyCashClose(ctx context.Context, branchID uint) (*models.PettyCashClose, error) {
	var c models.PettyCashClose
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND status = ?", branchID, models.CloseClosed).
		Order("window_end desc").
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) FindActivePettyCashCloseForDay(ctx context.Context, branchID uint, day time.Time) (*models.PettyCashClose, error) {
	var c models.PettyCashClose
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND day = ? AND status <> ?", branchID, day, models.CloseCancelled).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListClosedPettyCashClosesForDay(ctx context.Context, branchID *uint, day time.Time) ([]models.PettyCashClose, error) {
	var out []models.PettyCashClose
	q := s.db.WithContext(ctx).
		Where("day = ? AND status = ?", day, models.CloseClosed)
	if branchID != nil {
		q = q.Where("branch_id = ?", *branchID)
	}
	err := q.Order("id asc").Find(&out).Error
	return out, err
}

// ---------------------------------------------------------------
// Cortes de caja general
// ---------------------------------------------------------------

func (s *Store) CreateGeneralCashClose(ctx context.Context, c *models.GeneralCashClose) error {
	return translateCreate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetGeneralCashClose(ctx context.Context, id uint) (*models.GeneralCashClose, error) {
	var c models.GeneralCashClose
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) UpdateGeneralCashClose(ctx context.Context, c *models.GeneralCashClose) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) GetLastClosedGeneralCashClose(ctx context.Context, branchID *uint) (*models.GeneralCashClose, error) {
	var c models.GeneralCashClose
	q := s.db.WithContext(ctx).Where("status = ?", models.CloseClosed)
	if branchID == nil {
		q = q.Where("branch_id IS NULL")
	} else {
		q = q.Where("branch_id = ?", *branchID)
	}
	if err := q.Order("day desc").First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) FindActiveGeneralCashCloseForDay(ctx context.Context, branchID *uint, day time.Time) (*models.GeneralCashClose, error) {
	var c models.GeneralCashClose
	q := s.db.WithContext(ctx).
		Where("day = ? AND status <> ?", day, models.CloseCancelled)
	if branchID == nil {
		// solo el corte global
		q = q.Where("branch_id IS NULL")
	} else {
		// un corte global también congela la sucursal
		q = q.Where("branch_id IS NULL OR branch_id = ?", *branchID)
	}
	if err := q.First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ---------------------------------------------------------------
// Bitácora
// ---------------------------------------------------------------

func (s *Store) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
