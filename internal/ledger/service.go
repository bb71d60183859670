// Package ledger es el libro de movimientos de efectivo: entradas y salidas
// con instrumento de pago. Es append-only hacia el pasado: un movimiento
// cubierto por un corte cerrado de cualquier nivel queda congelado hasta que
// ese corte se cancele.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/audit"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

type Service struct {
	repo store.Repository
	now  func() time.Time
}

func NewService(repo store.Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

type RecordInput struct {
	Type          models.MovementType
	Instrument    models.Instrument
	Amount        decimal.Decimal
	ActorID       uint
	TillSessionID *uint
	IsGeneral     bool
	Description   string
}

// Record registra un movimiento. Se rechaza con Blocked si la sucursal ya
// cerró caja chica hoy (salvo movimientos generales) o si la caja general del
// día ya cerró (sin excepciones).
func (s *Service) Record(ctx context.Context, in RecordInput) (*models.Movement, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidArgument, "El importe debe ser mayor a cero")
	}
	if in.Type != models.MovementIn && in.Type != models.MovementOut {
		return nil, apperr.New(apperr.InvalidArgument, "Tipo de movimiento inválido (in|out)")
	}
	if !models.ValidInstrument(in.Instrument) {
		return nil, apperr.New(apperr.InvalidArgument, "Instrumento inválido (cash|transfer|deposit|card)")
	}

	actor, err := s.repo.GetUser(ctx, in.ActorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Usuario no encontrado")
		}
		return nil, err
	}
	if actor.BranchID == nil {
		return nil, apperr.New(apperr.InvalidArgument, "El usuario no tiene sucursal asignada")
	}
	branchID := *actor.BranchID

	now := s.now()
	day := store.Day(now)

	mov := &models.Movement{
		BranchID:      branchID,
		ActorID:       in.ActorID,
		TillSessionID: in.TillSessionID,
		Type:          in.Type,
		Instrument:    in.Instrument,
		Amount:        in.Amount.Round(2),
		// efectivo no requiere segunda validación
		Validated:   in.Instrument == models.InstrumentCash,
		IsGeneral:   in.IsGeneral,
		Description: in.Description,
		CreatedAt:   now,
	}

	// los cortes del día se verifican bajo la misma transacción que inserta:
	// un cierre que confirme en medio no debe dejar pasar un movimiento tardío
	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		// caja general cerrada hoy congela todo, incluidos movimientos generales
		if gc, err := repo.FindActiveGeneralCashCloseForDay(ctx, &branchID, day); err == nil && gc.Status == models.CloseClosed {
			return (&apperr.Error{
				Kind:    apperr.Blocked,
				Message: "La caja general del día ya cerró; no se admiten más movimientos",
			}).WithRecords(apperr.RecordRef{Entity: "general_cash_close", ID: gc.ID})
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		// caja chica cerrada hoy congela los movimientos de caja chica; los
		// generales siguen permitidos
		if !in.IsGeneral {
			if pc, err := repo.FindActivePettyCashCloseForDay(ctx, branchID, day); err == nil && pc.Status == models.CloseClosed {
				return (&apperr.Error{
					Kind:    apperr.Blocked,
					Message: "La caja chica del día ya cerró; solo se admiten movimientos generales",
				}).WithRecords(apperr.RecordRef{Entity: "petty_cash_close", ID: pc.ID})
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		if in.TillSessionID != nil {
			session, err := repo.GetTillSession(ctx, *in.TillSessionID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.New(apperr.NotFound, "Sesión de caja no encontrada")
				}
				return err
			}
			if session.Status != models.TillOpen {
				return apperr.New(apperr.Conflict, "La sesión de caja no está abierta")
			}
		}

		if err := repo.CreateMovement(ctx, mov); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &branchID,
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "movement",
			EntityID:    mov.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Movimiento %s registrado: %s %s", mov.Type, mov.Instrument, mov.Amount),
			After:       mov,
		})
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// Validate marca validado un movimiento no-efectivo; es requisito para que
// cuente en un saldo esperado.
func (s *Service) Validate(ctx context.Context, movementID, validatorID uint) (*models.Movement, error) {
	mov, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Movimiento no encontrado")
		}
		return nil, err
	}
	if mov.Instrument == models.InstrumentCash {
		return nil, apperr.New(apperr.InvalidArgument, "Los movimientos en efectivo no requieren validación")
	}
	if mov.Validated {
		return nil, apperr.New(apperr.Conflict, "El movimiento ya está validado")
	}

	validator, err := s.repo.GetUser(ctx, validatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Usuario validador no encontrado")
		}
		return nil, err
	}

	before := *mov
	mov.Validated = true
	mov.ValidatedBy = &validatorID

	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		if err := repo.UpdateMovement(ctx, mov); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &mov.BranchID,
			UserID:      validator.ID,
			UserName:    validator.Name,
			EntityType:  "movement",
			EntityID:    mov.ID,
			Action:      models.AuditActionUpdate,
			Description: "Movimiento validado",
			Before:      before,
			After:       mov,
		})
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// AssertMutable recorre los tres niveles en orden y regresa Locked con el
// corte que congela al movimiento, o nil si sigue mutable.
func (s *Service) AssertMutable(ctx context.Context, mov *models.Movement) error {
	return assertMutable(ctx, s.repo, mov)
}

func assertMutable(ctx context.Context, repo store.Repository, mov *models.Movement) error {
	return AssertPeriodOpen(ctx, repo, mov.BranchID, mov.ActorID, mov.CreatedAt)
}

// AssertPeriodOpen verifica que ningún corte cerrado cubra ya el instante
// dado para ese cajero y sucursal; lo usan las mutaciones de movimientos y
// de pagos de póliza. Regresa Locked con el corte que congela el periodo.
func AssertPeriodOpen(ctx context.Context, repo store.Repository, branchID, actorID uint, at time.Time) error {
	// 1) corte de usuario del actor con ventana que cubre el instante
	if last, err := repo.GetLastClosedUserReconciliation(ctx, actorID); err == nil {
		if !at.After(last.WindowEnd) {
			return (&apperr.Error{
				Kind:    apperr.Locked,
				Message: "El registro está cubierto por un corte de usuario cerrado",
			}).WithRecords(apperr.RecordRef{Entity: "user_reconciliation", ID: last.ID})
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 2) corte de caja chica de la sucursal que cubre la fecha
	if last, err := repo.GetLastClosedPettyCashClose(ctx, branchID); err == nil {
		if !at.After(last.WindowEnd) {
			return (&apperr.Error{
				Kind:    apperr.Locked,
				Message: "El registro está cubierto por un corte de caja chica cerrado",
			}).WithRecords(apperr.RecordRef{Entity: "petty_cash_close", ID: last.ID})
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// 3) corte de caja general de la sucursal (o global) para ese día
	if gc, err := repo.FindActiveGeneralCashCloseForDay(ctx, &branchID, store.Day(at)); err == nil && gc.Status == models.CloseClosed {
		return (&apperr.Error{
			Kind:    apperr.Locked,
			Message: "El registro está cubierto por un corte de caja general cerrado",
		}).WithRecords(apperr.RecordRef{Entity: "general_cash_close", ID: gc.ID})
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

type UpdateInput struct {
	Amount      *decimal.Decimal
	Description *string
}

// Update edita importe o descripción de un movimiento aún mutable.
func (s *Service) Update(ctx context.Context, movementID, actorID uint, in UpdateInput) (*models.Movement, error) {
	mov, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Movimiento no encontrado")
		}
		return nil, err
	}
	if err := assertMutable(ctx, s.repo, mov); err != nil {
		return nil, err
	}

	before := *mov
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, apperr.New(apperr.InvalidArgument, "El importe debe ser mayor a cero")
		}
		mov.Amount = in.Amount.Round(2)
	}
	if in.Description != nil {
		mov.Description = *in.Description
	}

	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		// revalidar bajo la transacción: otro proceso pudo cerrar un corte
		if err := assertMutable(ctx, repo, &before); err != nil {
			return err
		}
		if err := repo.UpdateMovement(ctx, mov); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &mov.BranchID,
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "movement",
			EntityID:    mov.ID,
			Action:      models.AuditActionUpdate,
			Description: "Movimiento editado",
			Before:      before,
			After:       mov,
		})
	})
	if err != nil {
		return nil, err
	}
	return mov, nil
}

// Delete borra un movimiento aún mutable; el motivo es obligatorio.
func (s *Service) Delete(ctx context.Context, movementID, actorID uint, reason string) error {
	if reason == "" {
		return apperr.New(apperr.InvalidArgument, "El motivo de eliminación es obligatorio")
	}

	mov, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Movimiento no encontrado")
		}
		return err
	}
	if err := assertMutable(ctx, s.repo, mov); err != nil {
		return err
	}

	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		if err := assertMutable(ctx, repo, mov); err != nil {
			return err
		}
		if err := repo.DeleteMovement(ctx, movementID); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &mov.BranchID,
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "movement",
			EntityID:    mov.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Movimiento eliminado: %s %s", mov.Instrument, mov.Amount),
			Reason:      reason,
			Before:      mov,
		})
	})
}
