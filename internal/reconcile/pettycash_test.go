package reconcile

import (
	"context"
	"testing"
	"time"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
)

func TestClosePettyCashAggregatesAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// segundo cajero en la misma sucursal
	other := f.repo.SeedUser(models.User{Name: "Diana Ríos", Role: models.RoleCashier, BranchID: &f.branch.ID})

	tillA := f.openTill(t, f.cashier.ID, 500)
	tillB := f.openTill(t, other.ID, 300)

	f.clock.Advance(1 * time.Hour)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCash, 1000, true)
	f.addMovement(t, other.ID, models.MovementOut, models.InstrumentCash, 200, true)

	f.clock.Advance(2 * time.Hour)
	recA, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(1500)}, "")
	if err != nil {
		t.Fatalf("corte de A: %v", err)
	}
	recB, err := f.svc.CloseUser(ctx, other.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("corte de B: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	close, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(1600)}, "", "F-0099")
	if err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}

	// fondos 500+300 + efectivo 1000-200
	mustEqual(t, close.Expected, 1600, "Expected")
	if close.Folio != "F-0099" {
		t.Fatalf("folio = %s", close.Folio)
	}

	// cascada: las dos sesiones quedan cerradas y ligadas al corte
	for _, id := range []uint{tillA.ID, tillB.ID} {
		ts, _ := f.repo.GetTillSession(ctx, id)
		if ts.Status != models.TillClosed || ts.PettyCashCloseID == nil || *ts.PettyCashCloseID != close.ID {
			t.Fatalf("la sesión %d debió cerrarse en cascada: %+v", id, ts)
		}
	}

	// los cortes de usuario quedan consumidos
	for _, id := range []uint{recA.ID, recB.ID} {
		rec, _ := f.repo.GetUserReconciliation(ctx, id)
		if rec.PettyCashCloseID == nil || *rec.PettyCashCloseID != close.ID {
			t.Fatalf("el corte %d debió ligarse al de caja chica", id)
		}
	}
}

func TestClosePettyCashBlockedByUncoveredCashier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(1 * time.Hour)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCash, 400, true)
	f.clock.Advance(1 * time.Hour)

	// actividad sin corte de usuario cerrado
	_, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(500)}, "", "")
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("se esperaba Blocked, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].ID != f.cashier.ID || records[0].Entity != "user" {
		t.Fatalf("el error debe señalar al cajero %d, señaló %+v", f.cashier.ID, records)
	}
}

func TestClosePettyCashOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{}, "", ""); err != nil {
		t.Fatalf("primer cierre: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	_, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{}, "", "")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict el mismo día, hubo %v", err)
	}
}

func TestClosePettyCashIgnoresOtherBranches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	otherBranch := f.repo.SeedBranch(models.Branch{Name: "Norte"})
	outsider := f.repo.SeedUser(models.User{Name: "Elena Soto", Role: models.RoleCashier, BranchID: &otherBranch.ID})

	// actividad descubierta en la OTRA sucursal no bloquea este cierre
	session := &models.TillSession{
		BranchID:     otherBranch.ID,
		CashierID:    outsider.ID,
		SupervisorID: f.supervisor.ID,
		OpeningFloat: dec(900),
		Status:       models.TillOpen,
		OpenedAt:     f.clock.Now(),
	}
	if err := f.repo.CreateTillSession(ctx, session); err != nil {
		t.Fatalf("abrir sesión ajena: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	close, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{}, "", "")
	if err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}
	mustEqual(t, close.Expected, 0, "Expected")

	ts, _ := f.repo.GetTillSession(ctx, session.ID)
	if ts.Status != models.TillOpen {
		t.Fatalf("la sesión de otra sucursal no debe cerrarse en cascada")
	}
}

func TestCancelPettyCashUnlinksUserReconciliations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	till := f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)
	rec, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("corte de usuario: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	close, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "", "")
	if err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}

	code, _ := f.issuer.Issue(ctx, authcode.TargetID(EntityPettyCashClose, close.ID))
	if err := f.svc.CancelPettyCash(ctx, close.ID, f.supervisor.ID, code, "conteo mal capturado"); err != nil {
		t.Fatalf("cancelar caja chica: %v", err)
	}

	got, _ := f.repo.GetUserReconciliation(ctx, rec.ID)
	if got.PettyCashCloseID != nil {
		t.Fatalf("el corte de usuario debió desligarse")
	}
	if got.Status != models.CloseClosed {
		t.Fatalf("el corte de usuario no debe cambiar de estado: %s", got.Status)
	}

	// las sesiones cerradas en cascada se quedan cerradas
	ts, _ := f.repo.GetTillSession(ctx, till.ID)
	if ts.Status != models.TillClosed {
		t.Fatalf("la sesión debe permanecer cerrada tras la cancelación")
	}
}

func TestCancelPettyCashBlockedByGeneralClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	close, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{}, "", "")
	if err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	if _, err := f.svc.CloseGeneralCash(ctx, &f.branch.ID, f.supervisor.ID, f.clock.Now(), dec(0), "", ""); err != nil {
		t.Fatalf("cerrar caja general: %v", err)
	}

	code, _ := f.issuer.Issue(ctx, authcode.TargetID(EntityPettyCashClose, close.ID))
	err = f.svc.CancelPettyCash(ctx, close.ID, f.supervisor.ID, code, "fuera de orden")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict con caja general cerrada encima, hubo %v", err)
	}
}
