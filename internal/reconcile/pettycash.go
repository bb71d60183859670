package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/audit"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

// pettyWindowStart regresa el inicio de la ventana de caja chica: el fin del
// último corte cerrado de la sucursal, o el origen de los tiempos.
func pettyWindowStart(ctx context.Context, repo store.Repository, branchID uint) (time.Time, error) {
	last, err := repo.GetLastClosedPettyCashClose(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return last.WindowEnd, nil
}

// checkBranchCovered es la verificación bloqueante: todo cajero de la
// sucursal con actividad en la ventana debe tener un corte de usuario cerrado
// que la cubra. Regresa los cajeros ofensores.
func checkBranchCovered(ctx context.Context, repo store.Repository, branchID uint, from, to time.Time) ([]apperr.RecordRef, error) {
	cashiers, err := repo.ListCashiersByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	var offending []apperr.RecordRef
	notGeneral := false
	for _, cashier := range cashiers {
		coveredUntil := from
		last, err := repo.GetLastClosedUserReconciliation(ctx, cashier.ID)
		switch {
		case err == nil:
			if last.WindowEnd.After(coveredUntil) {
				coveredUntil = last.WindowEnd
			}
		case errors.Is(err, store.ErrNotFound):
			// sin cortes: cualquier actividad en la ventana es descubierta
		default:
			return nil, err
		}

		movs, err := repo.ListMovementsByActor(ctx, cashier.ID, coveredUntil, to, &notGeneral)
		if err != nil {
			return nil, err
		}
		pays, err := repo.ListPolicyPaymentsByCashier(ctx, cashier.ID, coveredUntil, to)
		if err != nil {
			return nil, err
		}
		if len(movs) > 0 || len(pays) > 0 {
			offending = append(offending, apperr.RecordRef{
				Entity: "user", ID: cashier.ID, Name: cashier.Name,
			})
		}
	}
	return offending, nil
}

func (s *Service) buildPettyCashPreview(ctx context.Context, repo store.Repository, branchID uint, now time.Time) (*PettyCashPreview, error) {
	start, err := pettyWindowStart(ctx, repo, branchID)
	if err != nil {
		return nil, err
	}

	// cortes de usuario a medio capturar impiden el cierre
	pending, err := repo.ListPendingUserReconciliationsByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		refs := make([]apperr.RecordRef, 0, len(pending))
		for _, r := range pending {
			refs = append(refs, apperr.RecordRef{Entity: EntityUserReconciliation, ID: r.ID})
		}
		return nil, apperr.New(apperr.Blocked,
			"Hay cortes de usuario pendientes en la sucursal").WithRecords(refs...)
	}

	offending, err := checkBranchCovered(ctx, repo, branchID, start, now)
	if err != nil {
		return nil, err
	}
	if len(offending) > 0 {
		return nil, apperr.New(apperr.Blocked,
			"Hay cajeros con actividad sin corte de usuario cerrado").WithRecords(offending...)
	}

	sessions, err := repo.ListOpenTillSessionsByBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	pv := &PettyCashPreview{
		BranchID:    branchID,
		WindowStart: start,
		WindowEnd:   now,
	}
	for _, ts := range sessions {
		pv.OpeningFloat = pv.OpeningFloat.Add(ts.OpeningFloat)
		pv.OpenTillSessionIDs = append(pv.OpenTillSessionIDs, ts.ID)
	}

	recs, err := repo.ListUserReconciliationsClosedBetween(ctx, branchID, start, now)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.PettyCashCloseID != nil {
			// ya consumido por un corte anterior
			continue
		}
		pv.In.Cash = pv.In.Cash.Add(r.InCash)
		pv.In.Card = pv.In.Card.Add(r.InCard)
		pv.In.Transfer = pv.In.Transfer.Add(r.InTransfer)
		pv.In.Deposit = pv.In.Deposit.Add(r.InDeposit)
		pv.Out.Cash = pv.Out.Cash.Add(r.OutCash)
		pv.Out.Card = pv.Out.Card.Add(r.OutCard)
		pv.Out.Transfer = pv.Out.Transfer.Add(r.OutTransfer)
		pv.Out.Deposit = pv.Out.Deposit.Add(r.OutDeposit)
		pv.UserReconciliationIDs = append(pv.UserReconciliationIDs, r.ID)
	}

	// esperado solo-efectivo: caja chica es control de efectivo físico, no
	// conciliación bancaria; tarjeta y transferencia son informativos
	pv.Expected = pv.OpeningFloat.Add(pv.In.Cash).Sub(pv.Out.Cash).Round(2)
	return pv, nil
}

// PreviewPettyCash calcula el corte de caja chica de la sucursal sin
// persistir nada.
func (s *Service) PreviewPettyCash(ctx context.Context, branchID uint) (*PettyCashPreview, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return nil, notFound(err, "Sucursal no encontrada")
	}
	return s.buildPettyCashPreview(ctx, s.repo, branchID, s.now())
}

// ClosePettyCash cierra la caja chica de la sucursal: consume los cortes de
// usuario de la ventana y cierra en cascada toda sesión de caja abierta.
func (s *Service) ClosePettyCash(ctx context.Context, branchID, actorID uint, counted CountedAmounts, note, folio string) (*models.PettyCashClose, error) {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		return nil, notFound(err, "Sucursal no encontrada")
	}

	var close *models.PettyCashClose
	err := s.repo.WithinTx(ctx, func(repo store.Repository) error {
		now := s.now()
		day := store.Day(now)

		if _, err := repo.FindActivePettyCashCloseForDay(ctx, branchID, day); err == nil {
			return apperr.New(apperr.Conflict, "Ya existe un corte de caja chica para hoy")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		pv, err := s.buildPettyCashPreview(ctx, repo, branchID, now)
		if err != nil {
			return err
		}

		diff := counted.Cash.Round(2).Sub(pv.Expected)
		warn, err := CheckDiscrepancyNote(counted.Cash, pv.Expected, note)
		if err != nil {
			return err
		}
		if warn {
			log.Printf("[WARN] Corte de caja chica de la sucursal %d con diferencia mayor al 5%%: %s (esperado %s)",
				branchID, diff.String(), pv.Expected.String())
		}

		if folio == "" {
			folio = uuid.NewString()
		}

		close = &models.PettyCashClose{
			BranchID:        branchID,
			Day:             day,
			WindowStart:     pv.WindowStart,
			WindowEnd:       now,
			OpeningFloat:    pv.OpeningFloat,
			InCash:          pv.In.Cash,
			InCard:          pv.In.Card,
			InTransfer:      pv.In.Transfer,
			InDeposit:       pv.In.Deposit,
			OutCash:         pv.Out.Cash,
			OutCard:         pv.Out.Card,
			OutTransfer:     pv.Out.Transfer,
			OutDeposit:      pv.Out.Deposit,
			Expected:        pv.Expected,
			CountedCash:     counted.Cash.Round(2),
			CountedCard:     counted.Card.Round(2),
			CountedTransfer: counted.Transfer.Round(2),
			Difference:      diff,
			Note:            note,
			Folio:           folio,
			Status:          models.CloseClosed,
			CreatedBy:       actorID,
		}
		if err := repo.CreatePettyCashClose(ctx, close); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, "Ya existe un corte de caja chica para hoy")
			}
			return err
		}

		// ligar los cortes consumidos para poder desligarlos si el corte se
		// cancela después
		for _, id := range pv.UserReconciliationIDs {
			rec, err := repo.GetUserReconciliation(ctx, id)
			if err != nil {
				return err
			}
			rec.PettyCashCloseID = &close.ID
			if err := repo.UpdateUserReconciliation(ctx, rec); err != nil {
				return err
			}
		}

		// cascada: cerrar toda sesión abierta de la sucursal
		if err := repo.CloseTillSessions(ctx, pv.OpenTillSessionIDs, close.ID, now); err != nil {
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &branchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityPettyCashClose,
			EntityID:    close.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Corte de caja chica cerrado: esperado %s, contado %s, folio %s", close.Expected, close.CountedCash, close.Folio),
			After:       close,
		})
	})
	if err != nil {
		return nil, err
	}
	return close, nil
}

// CancelPettyCash revierte un corte de caja chica con código de un solo uso.
// Si la caja general del día ya cerró, primero hay que cancelar aquélla.
// Desliga los cortes de usuario consumidos (no los reabre ni los borra).
func (s *Service) CancelPettyCash(ctx context.Context, id, actorID uint, code, reason string) error {
	if reason == "" {
		return apperr.New(apperr.InvalidArgument, "El motivo de cancelación es obligatorio")
	}

	close, err := s.repo.GetPettyCashClose(ctx, id)
	if err != nil {
		return notFound(err, "Corte de caja chica no encontrado")
	}
	if close.Status != models.CloseClosed {
		return apperr.New(apperr.Conflict, "El corte no está cerrado")
	}
	if gc, err := s.repo.FindActiveGeneralCashCloseForDay(ctx, &close.BranchID, close.Day); err == nil && gc.Status == models.CloseClosed {
		return (&apperr.Error{
			Kind:    apperr.Conflict,
			Message: "La caja general ya cerró este día; cancélala primero",
		}).WithRecords(apperr.RecordRef{Entity: EntityGeneralCashClose, ID: gc.ID})
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := s.codes.Consume(ctx, authcode.TargetID(EntityPettyCashClose, id), code); err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		before := *close

		recs, err := repo.ListUserReconciliationsByPettyClose(ctx, close.ID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rec := rec
			rec.PettyCashCloseID = nil
			if err := repo.UpdateUserReconciliation(ctx, &rec); err != nil {
				return err
			}
		}

		close.Status = models.CloseCancelled
		close.CancelledBy = &actorID
		close.CancelledReason = reason
		if err := repo.UpdatePettyCashClose(ctx, close); err != nil {
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &close.BranchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityPettyCashClose,
			EntityID:    close.ID,
			Action:      models.AuditActionCancel,
			Description: fmt.Sprintf("Corte de caja chica cancelado: se desligaron %d cortes de usuario", len(recs)),
			Reason:      reason,
			Before:      before,
			After:       close,
		})
	})
}
