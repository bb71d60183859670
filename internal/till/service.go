// Package till maneja las sesiones de caja de los cajeros. Una sesión la
// abre un supervisor con un fondo fijo; se cierra solo en cascada cuando
// cierra la caja chica de la sucursal, o se elimina si no tiene movimientos.
package till

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

type OpenInput struct {
	CashierID       uint
	SupervisorID    uint
	OpeningFloat    decimal.Decimal
	OpeningCash     decimal.Decimal
	OpeningTransfer decimal.Decimal
}

// Open abre la sesión de caja de un cajero. Solo puede haber una abierta por
// cajero a la vez.
func (s *Service) Open(ctx context.Context, in OpenInput) (*models.TillSession, error) {
	cashier, err := s.repo.GetUser(ctx, in.CashierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Cajero no encontrado")
		}
		return nil, err
	}
	supervisor, err := s.repo.GetUser(ctx, in.SupervisorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Supervisor no encontrado")
		}
		return nil, err
	}

	if cashier.BranchID == nil {
		return nil, apperr.New(apperr.InvalidArgument, "El cajero no tiene sucursal asignada")
	}
	if _, err := s.repo.GetBranch(ctx, *cashier.BranchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.NotFound, "Sucursal no encontrada")
		}
		return nil, err
	}

	if in.OpeningFloat.IsNegative() || in.OpeningCash.IsNegative() || in.OpeningTransfer.IsNegative() {
		return nil, apperr.New(apperr.InvalidArgument, "Los importes de apertura no pueden ser negativos")
	}

	if existing, err := s.repo.GetOpenTillSessionByCashier(ctx, in.CashierID); err == nil {
		return nil, (&apperr.Error{
			Kind:    apperr.Conflict,
			Message: fmt.Sprintf("El cajero %s ya tiene una sesión de caja abierta", cashier.Name),
		}).WithRecords(apperr.RecordRef{Entity: "till_session", ID: existing.ID})
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	session := &models.TillSession{
		BranchID:        *cashier.BranchID,
		CashierID:       in.CashierID,
		SupervisorID:    in.SupervisorID,
		OpeningFloat:    in.OpeningFloat.Round(2),
		OpeningCash:     in.OpeningCash.Round(2),
		OpeningTransfer: in.OpeningTransfer.Round(2),
		Status:          models.TillOpen,
		OpenedAt:        s.now(),
	}

	err = s.repo.WithinTx(ctx, func(repo store.Repository) error {
		if err := repo.CreateTillSession(ctx, session); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    cashier.BranchID,
			UserID:      supervisor.ID,
			UserName:    supervisor.Name,
			EntityType:  "till_session",
			EntityID:    session.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Sesión de caja abierta para %s con fondo %s", cashier.Name, session.OpeningFloat),
			After:       session,
		})
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Remove elimina una sesión sin movimientos (una apertura equivocada). El
// motivo es obligatorio y queda en bitácora.
func (s *Service) Remove(ctx context.Context, id, actorID uint, reason string) error {
	if reason == "" {
		return apperr.New(apperr.InvalidArgument, "El motivo de eliminación es obligatorio")
	}

	session, err := s.repo.GetTillSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Sesión de caja no encontrada")
		}
		return err
	}

	count, err := s.repo.CountMovementsBySession(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Newf(apperr.Conflict,
			"La sesión tiene %d movimientos ligados y no puede eliminarse", count)
	}

	actor, err := s.repo.GetUser(ctx, actorID)
	if err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		if err := repo.DeleteTillSession(ctx, id); err != nil {
			return err
		}
		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &session.BranchID,
			UserID:      actor.ID,
			UserName:    actor.Name,
			EntityType:  "till_session",
			EntityID:    session.ID,
			Action:      models.AuditActionDelete,
			Description: "Sesión de caja eliminada",
			Reason:      reason,
			Before:      session,
		})
	})
}
