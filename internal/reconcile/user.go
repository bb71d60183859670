package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/audit"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

// userWindow resuelve la ventana del corte de un cajero: inicia exactamente
// en el fin de su último corte cerrado, aunque la sesión de caja actual haya
// abierto después (las ventanas son contiguas, sin huecos entre sesiones).
// La apertura de la sesión solo aplica al primer corte. Exige sesión abierta.
func userWindow(ctx context.Context, repo store.Repository, cashierID uint) (*models.TillSession, time.Time, error) {
	till, err := repo.GetOpenTillSessionByCashier(ctx, cashierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, time.Time{}, apperr.New(apperr.Conflict, "El cajero no tiene una sesión de caja abierta")
		}
		return nil, time.Time{}, err
	}

	last, err := repo.GetLastClosedUserReconciliation(ctx, cashierID)
	switch {
	case err == nil:
		return till, last.WindowEnd, nil
	case errors.Is(err, store.ErrNotFound):
		// primer corte del cajero
		return till, till.OpenedAt, nil
	default:
		return nil, time.Time{}, err
	}
}

// userAggregates suma los movimientos del cajero más sus pagos de póliza en
// la ventana (from, to]. Un movimiento o pago no-efectivo sin validar
// invalida el corte completo: se regresa Blocked con la lista de ofensores.
func userAggregates(ctx context.Context, repo store.Repository, cashierID uint, from, to time.Time) (in, out InstrumentTotals, payCount int, err error) {
	notGeneral := false
	movs, err := repo.ListMovementsByActor(ctx, cashierID, from, to, &notGeneral)
	if err != nil {
		return in, out, 0, err
	}

	var offending []apperr.RecordRef
	for _, m := range movs {
		if m.Instrument != models.InstrumentCash && !m.Validated {
			offending = append(offending, apperr.RecordRef{
				Entity: "movement", ID: m.ID, Name: m.Description,
			})
			continue
		}
		if m.Type == models.MovementIn {
			in.add(m.Instrument, m.Amount)
		} else {
			out.add(m.Instrument, m.Amount)
		}
	}

	pays, err := repo.ListPolicyPaymentsByCashier(ctx, cashierID, from, to)
	if err != nil {
		return in, out, 0, err
	}
	for _, p := range pays {
		if p.Instrument != models.InstrumentCash && !p.Validated {
			offending = append(offending, apperr.RecordRef{
				Entity: "policy_payment", ID: p.ID, Name: p.PolicyNumber,
			})
			continue
		}
		in.add(p.Instrument, p.Amount)
		payCount++
	}

	if len(offending) > 0 {
		return in, out, 0, apperr.New(apperr.Blocked,
			"Existen movimientos no-efectivo sin validar en la ventana").WithRecords(offending...)
	}
	return in, out, payCount, nil
}

func (s *Service) buildUserPreview(ctx context.Context, repo store.Repository, cashierID uint, now time.Time) (*UserPreview, error) {
	till, start, err := userWindow(ctx, repo, cashierID)
	if err != nil {
		return nil, err
	}

	in, out, payCount, err := userAggregates(ctx, repo, cashierID, start, now)
	if err != nil {
		return nil, err
	}

	// saldo esperado solo-efectivo: los demás instrumentos son informativos
	expected := till.OpeningFloat.Add(in.Cash).Sub(out.Cash).Round(2)

	return &UserPreview{
		CashierID:      cashierID,
		BranchID:       till.BranchID,
		TillSessionID:  till.ID,
		WindowStart:    start,
		WindowEnd:      now,
		OpeningFloat:   till.OpeningFloat,
		In:             in,
		Out:            out,
		PolicyPayments: payCount,
		Expected:       expected,
	}, nil
}

// PreviewUser calcula el corte del cajero sin persistir nada.
func (s *Service) PreviewUser(ctx context.Context, cashierID uint) (*UserPreview, error) {
	if _, err := s.repo.GetUser(ctx, cashierID); err != nil {
		return nil, notFound(err, "Cajero no encontrado")
	}
	return s.buildUserPreview(ctx, s.repo, cashierID, s.now())
}

// CloseUser cierra el corte del cajero. Recalcula la ventana y los agregados
// dentro de la transacción y deja inmutables los movimientos que cubrió.
func (s *Service) CloseUser(ctx context.Context, cashierID, actorID uint, counted CountedAmounts, note string) (*models.UserReconciliation, error) {
	if _, err := s.repo.GetUser(ctx, cashierID); err != nil {
		return nil, notFound(err, "Cajero no encontrado")
	}

	var rec *models.UserReconciliation
	err := s.repo.WithinTx(ctx, func(repo store.Repository) error {
		now := s.now()
		day := store.Day(now)

		// un solo corte no cancelado por cajero y día
		if _, err := repo.FindActiveUserReconciliationForDay(ctx, cashierID, day); err == nil {
			return apperr.New(apperr.Conflict, "Ya existe un corte de usuario para hoy")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		pv, err := s.buildUserPreview(ctx, repo, cashierID, now)
		if err != nil {
			return err
		}

		diff := counted.Cash.Round(2).Sub(pv.Expected)
		warn, err := CheckDiscrepancyNote(counted.Cash, pv.Expected, note)
		if err != nil {
			return err
		}
		if warn {
			log.Printf("[WARN] Corte de usuario del cajero %d con diferencia mayor al 5%%: %s (esperado %s)",
				cashierID, diff.String(), pv.Expected.String())
		}

		rec = &models.UserReconciliation{
			BranchID:        pv.BranchID,
			CashierID:       cashierID,
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
			Status:          models.CloseClosed,
		}
		if err := repo.CreateUserReconciliation(ctx, rec); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.New(apperr.Conflict, "Ya existe un corte de usuario para hoy")
			}
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &rec.BranchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityUserReconciliation,
			EntityID:    rec.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Corte de usuario cerrado: esperado %s, contado %s", rec.Expected, rec.CountedCash),
			After:       rec,
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CancelUser revierte un corte de usuario con un código de un solo uso. Solo
// procede de abajo hacia arriba: si la caja chica del día ya cerró, primero
// hay que cancelar aquélla.
func (s *Service) CancelUser(ctx context.Context, id, actorID uint, code, reason string) error {
	if reason == "" {
		return apperr.New(apperr.InvalidArgument, "El motivo de cancelación es obligatorio")
	}

	rec, err := s.repo.GetUserReconciliation(ctx, id)
	if err != nil {
		return notFound(err, "Corte de usuario no encontrado")
	}
	if rec.Status != models.CloseClosed {
		return apperr.New(apperr.Conflict, "El corte no está cerrado")
	}
	if rec.PettyCashCloseID != nil {
		return (&apperr.Error{
			Kind:    apperr.Conflict,
			Message: "Un corte de caja chica ya consumió este corte; cancélalo primero",
		}).WithRecords(apperr.RecordRef{Entity: EntityPettyCashClose, ID: *rec.PettyCashCloseID})
	}
	if pc, err := s.repo.FindActivePettyCashCloseForDay(ctx, rec.BranchID, rec.Day); err == nil && pc.Status == models.CloseClosed {
		return (&apperr.Error{
			Kind:    apperr.Conflict,
			Message: "La caja chica de la sucursal ya cerró este día; cancélala primero",
		}).WithRecords(apperr.RecordRef{Entity: EntityPettyCashClose, ID: pc.ID})
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// el código se consume aunque la transacción posterior falle: un segundo
	// intento necesita código nuevo
	if err := s.codes.Consume(ctx, authcode.TargetID(EntityUserReconciliation, id), code); err != nil {
		return err
	}

	return s.repo.WithinTx(ctx, func(repo store.Repository) error {
		before := *rec
		rec.Status = models.CloseCancelled
		rec.CancelledBy = &actorID
		rec.CancelledReason = reason
		if err := repo.UpdateUserReconciliation(ctx, rec); err != nil {
			return err
		}

		return audit.Write(ctx, repo, audit.LogOptions{
			BranchID:    &rec.BranchID,
			UserID:      actorID,
			UserName:    s.actorName(ctx, repo, actorID),
			EntityType:  EntityUserReconciliation,
			EntityID:    rec.ID,
			Action:      models.AuditActionCancel,
			Description: "Corte de usuario cancelado",
			Reason:      reason,
			Before:      before,
			After:       rec,
		})
	})
}
