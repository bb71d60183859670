// Package store define el repositorio que usa el núcleo de conciliación.
// Hay dos implementaciones: gormstore (producción, Postgres) y memory
// (pruebas y modo demo). Los servicios solo conocen esta interfaz.
package store

import (
	"context"
	"errors"
	"time"

	"seguros-backend/internal/models"
)

var (
	ErrNotFound = errors.New("registro no encontrado")
	// ErrDuplicate lo produce la restricción de unicidad por (nivel, ámbito,
	// día); en Postgres la respalda un índice único parcial.
	ErrDuplicate = errors.New("ya existe un corte no cancelado para ese día")
)

type Repository interface {
	// WithinTx ejecuta fn dentro de una transacción; todo o nada.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	// Directorio (colaborador de identidad/sucursales)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetBranch(ctx context.Context, id uint) (*models.Branch, error)
	ListCashiersByBranch(ctx context.Context, branchID uint) ([]models.User, error)

	// Sesiones de caja
	CreateTillSession(ctx context.Context, s *models.TillSession) error
	GetTillSession(ctx context.Context, id uint) (*models.TillSession, error)
	GetOpenTillSessionByCashier(ctx context.Context, cashierID uint) (*models.TillSession, error)
	ListOpenTillSessionsByBranch(ctx context.Context, branchID uint) ([]models.TillSession, error)
	// CloseTillSessions marca cerradas las sesiones y las liga al corte de
	// caja chica que las cerró en cascada.
	CloseTillSessions(ctx context.Context, ids []uint, pettyCloseID uint, closedAt time.Time) error
	DeleteTillSession(ctx context.Context, id uint) error
	CountMovementsBySession(ctx context.Context, sessionID uint) (int64, error)

	// Movimientos
	CreateMovement(ctx context.Context, m *models.Movement) error
	GetMovement(ctx context.Context, id uint) (*models.Movement, error)
	UpdateMovement(ctx context.Context, m *models.Movement) error
	DeleteMovement(ctx context.Context, id uint) error
	// Ventana semiabierta (from, to]; general filtra por IsGeneral si no es
	// nil. branchID nulo en ListMovementsByBranch = todas las sucursales
	// (lo usa el corte general global).
	ListMovementsByActor(ctx context.Context, actorID uint, from, to time.Time, general *bool) ([]models.Movement, error)
	ListMovementsByBranch(ctx context.Context, branchID *uint, from, to time.Time, general *bool) ([]models.Movement, error)

	// Pagos de póliza (colaborador externo, los cancelados nunca se listan)
	CreatePolicyPayment(ctx context.Context, p *models.PolicyPayment) error
	ListPolicyPaymentsByCashier(ctx context.Context, cashierID uint, from, to time.Time) ([]models.PolicyPayment, error)

	// Cortes de usuario
	CreateUserReconciliation(ctx context.Context, r *models.UserReconciliation) error
	GetUserReconciliation(ctx context.Context, id uint) (*models.UserReconciliation, error)
	UpdateUserReconciliation(ctx context.Context, r *models.UserReconciliation) error
	GetLastClosedUserReconciliation(ctx context.Context, cashierID uint) (*models.UserReconciliation, error)
	FindActiveUserReconciliationForDay(ctx context.Context, cashierID uint, day time.Time) (*models.UserReconciliation, error)
	ListUserReconciliationsClosedBetween(ctx context.Context, branchID uint, from, to time.Time) ([]models.UserReconciliation, error)
	ListPendingUserReconciliationsByBranch(ctx context.Context, branchID uint) ([]models.UserReconciliation, error)
	ListUserReconciliationsByPettyClose(ctx context.Context, pettyCloseID uint) ([]models.UserReconciliation, error)

	// Cortes de caja chica
	CreatePettyCashClose(ctx context.Context, c *models.PettyCashClose) error
	GetPettyCashClose(ctx context.Context, id uint) (*models.PettyCashClose, error)
	UpdatePettyCashClose(ctx context.Context, c *models.PettyCashClose) error
	GetLastClosedPettyCashClose(ctx context.Context, branchID uint) (*models.PettyCashClose, error)
	FindActivePettyCashCloseForDay(ctx context.Context, branchID uint, day time.Time) (*models.PettyCashClose, error)
	ListClosedPettyCashClosesForDay(ctx context.Context, branchID *uint, day time.Time) ([]models.PettyCashClose, error)

	// Cortes de caja general
	CreateGeneralCashClose(ctx context.Context, c *models.GeneralCashClose) error
	GetGeneralCashClose(ctx context.Context, id uint) (*models.GeneralCashClose, error)
	UpdateGeneralCashClose(ctx context.Context, c *models.GeneralCashClose) error
	GetLastClosedGeneralCashClose(ctx context.Context, branchID *uint) (*models.GeneralCashClose, error)
	// FindActiveGeneralCashCloseForDay con branchID no nulo también regresa el
	// corte global del día: un corte global congela todas las sucursales.
	FindActiveGeneralCashCloseForDay(ctx context.Context, branchID *uint, day time.Time) (*models.GeneralCashClose, error)

	// Bitácora
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// Day trunca un instante a la medianoche local; es el cubo contable de todos
// los cortes.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
