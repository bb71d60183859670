package reconcile

import (
	"context"
	"testing"
	"time"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
)

func TestCloseUserComputesExpectedCashOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 500)

	f.clock.Advance(1 * time.Hour)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCash, 1200, true)

	f.clock.Advance(30 * time.Minute)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCard, 300, true)

	f.clock.Advance(3 * time.Hour)

	// sin nota, con 50 de faltante, el cierre se rechaza
	_, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(1650)}, "")
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("se esperaba InvalidArgument sin nota, hubo %v", err)
	}

	rec, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(1650)}, "faltante en caja")
	if err != nil {
		t.Fatalf("cerrar corte: %v", err)
	}

	// el esperado es solo efectivo: fondo 500 + 1200; la tarjeta es informativa
	mustEqual(t, rec.Expected, 1700, "Expected")
	mustEqual(t, rec.InCard, 300, "InCard")
	mustEqual(t, rec.Difference, -50, "Difference")
	if rec.Status != models.CloseClosed {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.BranchID != f.branch.ID {
		t.Fatalf("BranchID = %d, se esperaba la sucursal de la sesión %d", rec.BranchID, f.branch.ID)
	}
}

func TestCloseUserIncludesPolicyPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 200)
	f.clock.Advance(1 * time.Hour)
	f.addPolicyPayment(t, f.cashier.ID, models.InstrumentCash, 800, true)
	f.clock.Advance(1 * time.Hour)

	rec, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(1000)}, "")
	if err != nil {
		t.Fatalf("cerrar corte: %v", err)
	}
	mustEqual(t, rec.Expected, 1000, "Expected")
	mustEqual(t, rec.InCash, 800, "InCash")
}

func TestCloseUserBlockedByUnvalidatedCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(1 * time.Hour)
	mov := f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCard, 300, false)
	f.clock.Advance(1 * time.Hour)

	_, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("se esperaba Blocked, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].ID != mov.ID {
		t.Fatalf("el error debe señalar el movimiento %d, señaló %+v", mov.ID, records)
	}
}

func TestCloseUserOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)

	if _, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, ""); err != nil {
		t.Fatalf("primer cierre: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	_, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict el mismo día, hubo %v", err)
	}
}

func TestCloseUserWindowsAreContiguous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)

	first, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("primer cierre: %v", err)
	}

	// actividad después del primer corte, cierre al día siguiente
	f.clock.Advance(1 * time.Hour)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCash, 50, true)
	f.clock.Advance(20 * time.Hour)

	second, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(150)}, "")
	if err != nil {
		t.Fatalf("segundo cierre: %v", err)
	}

	if !second.WindowStart.Equal(first.WindowEnd) {
		t.Fatalf("la ventana debe continuar donde terminó la anterior: %s != %s",
			second.WindowStart, first.WindowEnd)
	}
	mustEqual(t, second.InCash, 50, "InCash")
}

// La ventana continúa desde el corte anterior aunque la sesión de caja se
// abra horas después: un movimiento registrado antes de abrir la nueva sesión
// entra al siguiente corte en vez de quedar en tierra de nadie.
func TestUserWindowSpansTillReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// día 1: sesión, corte de usuario y caja chica cerrados en orden
	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)
	first, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("primer cierre: %v", err)
	}
	f.clock.Advance(1 * time.Hour)
	if _, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "", ""); err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}

	// día 2, 08:00: el cajero registra efectivo antes de abrir su sesión
	f.clock.Advance(20 * time.Hour)
	f.addMovement(t, f.cashier.ID, models.MovementIn, models.InstrumentCash, 50, true)
	f.clock.Advance(1 * time.Hour)
	f.openTill(t, f.cashier.ID, 200)
	f.clock.Advance(8 * time.Hour)

	// la caja chica no puede cerrar con ese movimiento sin corte que lo cubra
	_, err = f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(250)}, "", "")
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("se esperaba Blocked con movimiento sin corte, hubo %v", err)
	}

	// el corte del día 2 arranca donde terminó el del día 1 y suma el
	// movimiento de las 08:00
	second, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(250)}, "")
	if err != nil {
		t.Fatalf("segundo cierre: %v", err)
	}
	if !second.WindowStart.Equal(first.WindowEnd) {
		t.Fatalf("la ventana debe continuar donde terminó la anterior: %s != %s",
			second.WindowStart, first.WindowEnd)
	}
	mustEqual(t, second.InCash, 50, "InCash")
	mustEqual(t, second.Expected, 250, "Expected")

	if _, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(250)}, "", ""); err != nil {
		t.Fatalf("cerrar caja chica con el movimiento ya cubierto: %v", err)
	}
}

func TestCloseUserWithoutOpenTill(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CloseUser(context.Background(), f.cashier.ID, f.supervisor.ID, CountedAmounts{}, "")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict sin sesión abierta, hubo %v", err)
	}
}

func TestCancelUserRequiresValidCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)
	rec, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("cerrar corte: %v", err)
	}

	code, err := f.issuer.Issue(ctx, authcode.TargetID(EntityUserReconciliation, rec.ID))
	if err != nil {
		t.Fatalf("emitir código: %v", err)
	}

	// código equivocado no cancela y no consume el bueno
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	err = f.svc.CancelUser(ctx, rec.ID, f.supervisor.ID, wrong, "captura equivocada")
	if apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("se esperaba Unauthorized con código malo, hubo %v", err)
	}

	if err := f.svc.CancelUser(ctx, rec.ID, f.supervisor.ID, code, "captura equivocada"); err != nil {
		t.Fatalf("cancelar con código válido: %v", err)
	}

	got, _ := f.repo.GetUserReconciliation(ctx, rec.ID)
	if got.Status != models.CloseCancelled {
		t.Fatalf("status = %s", got.Status)
	}

	// el código ya se consumió: un segundo intento necesita uno nuevo
	err = f.svc.CancelUser(ctx, rec.ID, f.supervisor.ID, code, "otra vez")
	if apperr.KindOf(err) != apperr.Conflict && apperr.KindOf(err) != apperr.Unauthorized {
		t.Fatalf("el corte cancelado no debe cancelarse de nuevo, hubo %v", err)
	}
}

func TestCancelUserBlockedByPettyClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTill(t, f.cashier.ID, 100)
	f.clock.Advance(2 * time.Hour)
	rec, err := f.svc.CloseUser(ctx, f.cashier.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "")
	if err != nil {
		t.Fatalf("cerrar corte: %v", err)
	}

	f.clock.Advance(1 * time.Hour)
	petty, err := f.svc.ClosePettyCash(ctx, f.branch.ID, f.supervisor.ID, CountedAmounts{Cash: dec(100)}, "", "")
	if err != nil {
		t.Fatalf("cerrar caja chica: %v", err)
	}

	code, _ := f.issuer.Issue(ctx, authcode.TargetID(EntityUserReconciliation, rec.ID))
	err = f.svc.CancelUser(ctx, rec.ID, f.supervisor.ID, code, "intento fuera de orden")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict con caja chica cerrada encima, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].ID != petty.ID {
		t.Fatalf("el error debe señalar el corte de caja chica %d, señaló %+v", petty.ID, records)
	}
}
