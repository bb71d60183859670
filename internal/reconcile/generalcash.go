package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/audit"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

func (s *Service) buildGeneralCashPreview(ctx context.Context, repo store.Repository, branchID *uint, date time.Time) (*GeneralCashPreview, error) {
	day := store.Day(date)
	dayEnd := day.Add(24 * time.Hour)

	pv := &GeneralCashPreview{BranchID: branchID, Day: day}

	last, err := repo.GetLastClosedGeneralCashClose(ctx, branchID)
	switch {
	case err == nil:
		pv.PreviousBalance = last.Counted
	case errors.Is(err, store.ErrNotFound):
		pv.PreviousBalance = decimal.Zero
	default:
		return nil, err
	}

	// entregas de caja chica del día
	pettyCloses, err := repo.ListClosedPettyCashClosesForDay(ctx, branchID, day)
	if err != nil {
		return nil, err
	}
	for _, pc := range pettyCloses {
		pv.Inflow = pv.Inflow.Add(pc.CountedCash)
		pv.PettyCashCloseIDs = append(pv.PettyCashCloseIDs, pc.ID)
	}

	// movimientos directos al registro general del día
	general := true
	movs, err := repo.ListMovementsByBranch(ctx, branchID, day, dayEnd, &general)
	if err != nil {
		return nil, err
	}
	for _, m := range movs {
		if m.Type == models.MovementIn {
			pv.Inflow = pv.Inflow.Add(m.Amount)
		} else {
			pv.Outflow = pv.Outflow.Add(m.Amount)
		}
	}

	pv.Inflow = pv.Inflow.Round(2)
	pv.Outflow = pv.Outflow.Round(2)
	pv.Computed = pv.PreviousBalance.Add(pv.Inflow).Sub(pv.Outflow).Round(2)
	return pv, nil
}

// PreviewGeneralCash calcula el corte de caja general del día. branchID nulo
// significa corte global.
func (s *Service) PreviewGeneralCash(ctx context.Context, branchID *uint, date time.Time) (*GeneralCashPreview, error) {
	if branchID != nil {
		if _, err := s.repo.GetBranch(ctx, *branchID); err != nil {
			return nil, notFound(err, "Sucursal no encontrada")
		}
	}
	return s.buildGeneralCashPreview(ctx, s.repo, branchID, date)
}

// CloseGeneralCash cierra la caja general del día. Es la cima de la
// jerarquía: no hay objeto de candado adicional, la inmutabilidad se aplica
// con la búsqueda por sucursal/día del libro de movimientos.
func (s *Service) CloseGeneralCash(ctx context.Context, branchID *uint, actorID uint, date time.Time, counted decimal.Decimal, note, folio string) (*models.GeneralCashClose, error) {
	if branchID != nil {
		if _, err := s.repo.GetBranch(ctx, *branchID); err != nil {
			return nil, notFound(err, "Sucursal no encontrada")
		}
	}

	var close *models.GeneralCashClose
	err := s.repo.WithinTx(ctx, func(repo store.Repository) error {
		day := store.Day(date)

		if _, err := repo.FindActiveGeneralCashCloseForDay(ctx, branchID, day); err == nil {
			return apperr.New(apperr.Conflict, "Ya existe un corte de caja general para ese día")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		pv, err := s.buildGeneralCashPreview(ctx, repo, branchID, day)
		if err != nil {
			return err
		}

		diff := counted.Round(2).Sub(pv.Computed)
		warn, err := CheckDiscrepancyNote(counted, pv.Computed, note)
		if err != nil {
			return err
		}
		if warn {
			log.Printf("[WARN] Corte de caja general con diferencia mayor al 5%%: %s (calculado %s)",
				diff.String(), pv.Computed.String())
		}

		if folio == "" {
			folio = uuid.NewString()
		}

		close = &models.GeneralCashClose{
			BranchID:        branchID,
			Day:             day,
			PreviousBalance: pv.PreviousBalance,
			Inflow:          pv.Inflow,
			Outflow:         pv.Outflow,
			Computed:        pv.Computed,
			Counted:         counted.Round(2),
			Difference:      diff,
			Note:            note,
			Folio:           folio,
			Status:          models.CloseClosed,
			CreatedBy:       actorID,
		}
		if err := repo.CreateGeneralCashClose(ctx, close); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, "Ya existe un corte de caja general para ese día")
			}
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    branchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityGeneralCashClose,
			EntityID:    close.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Corte de caja general cerrado: calculado %s, contado %s, folio %s", close.Computed, close.Counted, close.Folio),
			After:       close,
		})
	})
	if err != nil {
		return nil, err
	}
	return close, nil
}

// CancelGeneralCash revierte el corte de caja general. Está en la cima de la
// jerarquía, así que no hay conflicto con niveles superiores: basta el
// código.
func (s *Service) CancelGeneralCash(ctx context.Context, id, actorID uint, code, reason string) error {
	if reason == "" {
		return apperr.New(apperr.InvalidArgument, "El motivo de cancelación es obligatorio")
	}

	close, err := s.repo.GetGeneralCashClose(ctx, id)
	if err != nil {
		return notFound(err, "Corte de caja general no encontrado")
	}
	if close.Status != models.CloseClosed {
		return apperr.New(apperr.Conflict, "El corte no está cerrado")
	}

	if err := s.codes.Consume(ctx, authcode.TargetID(EntityGeneralCashClose, id), code); err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		before := *close
		close.Status = models.CloseCancelled
		close.CancelledBy = &actorID
		close.CancelledReason = reason
		if err := repo.UpdateGeneralCashClose(ctx, close); err != nil {
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    close.BranchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityGeneralCashClose,
			EntityID:    close.ID,
			Action:      models.AuditActionCancel,
			Description: "Corte de caja general cancelado",
			Reason:      reason,
			Before:      before,
			After:       close,
		})
	})
}
