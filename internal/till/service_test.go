package till

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store/memory"
)

func setup(t *testing.T) (*memory.Store, *Service, models.User, models.User) {
	t.Helper()

	repo := memory.New()
	branch := repo.SeedBranch(models.Branch{Name: "Centro"})
	supervisor := repo.SeedUser(models.User{Name: "Sofía Trejo", Role: models.RoleSupervisor, BranchID: &branch.ID})
	cashier := repo.SeedUser(models.User{Name: "Carlos Peña", Role: models.RoleCashier, BranchID: &branch.ID})

	now := time.Date(2026, 8, 28, 8, 30, 0, 0, time.Local)
	svc := NewService(repo, func() time.Time { return now })
	return repo, svc, supervisor, cashier
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestOpenTill(t *testing.T) {
	repo, svc, supervisor, cashier := setup(t)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{
		CashierID:    cashier.ID,
		SupervisorID: supervisor.ID,
		OpeningFloat: dec(500),
	})
	if err != nil {
		t.Fatalf("abrir: %v", err)
	}
	if session.Status != models.TillOpen {
		t.Fatalf("status = %s", session.Status)
	}
	if !session.OpeningFloat.Equal(dec(500)) {
		t.Fatalf("fondo = %s", session.OpeningFloat)
	}

	logs := repo.AuditLogs()
	if len(logs) != 1 || logs[0].Action != models.AuditActionCreate {
		t.Fatalf("la apertura debe quedar en bitácora: %+v", logs)
	}
}

func TestOpenTillOnlyOnePerCashier(t *testing.T) {
	_, svc, supervisor, cashier := setup(t)
	ctx := context.Background()

	first, err := svc.Open(ctx, OpenInput{CashierID: cashier.ID, SupervisorID: supervisor.ID, OpeningFloat: dec(500)})
	if err != nil {
		t.Fatalf("primera apertura: %v", err)
	}

	_, err = svc.Open(ctx, OpenInput{CashierID: cashier.ID, SupervisorID: supervisor.ID, OpeningFloat: dec(200)})
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].ID != first.ID {
		t.Fatalf("el error debe señalar la sesión abierta %d, señaló %+v", first.ID, records)
	}
}

func TestOpenTillRejectsNegativeAmounts(t *testing.T) {
	_, svc, supervisor, cashier := setup(t)

	_, err := svc.Open(context.Background(), OpenInput{
		CashierID:    cashier.ID,
		SupervisorID: supervisor.ID,
		OpeningFloat: dec(-1),
	})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("se esperaba InvalidArgument, hubo %v", err)
	}
}

func TestOpenTillUnknownCashier(t *testing.T) {
	_, svc, supervisor, _ := setup(t)

	_, err := svc.Open(context.Background(), OpenInput{CashierID: 999, SupervisorID: supervisor.ID})
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("se esperaba NotFound, hubo %v", err)
	}
}

func TestRemoveTill(t *testing.T) {
	repo, svc, supervisor, cashier := setup(t)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{CashierID: cashier.ID, SupervisorID: supervisor.ID, OpeningFloat: dec(500)})
	if err != nil {
		t.Fatalf("abrir: %v", err)
	}

	// sin motivo no hay borrado
	if err := svc.Remove(ctx, session.ID, supervisor.ID, ""); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("se esperaba InvalidArgument sin motivo, hubo %v", err)
	}

	if err := svc.Remove(ctx, session.ID, supervisor.ID, "apertura equivocada"); err != nil {
		t.Fatalf("eliminar: %v", err)
	}

	logs := repo.AuditLogs()
	last := logs[len(logs)-1]
	if last.Action != models.AuditActionDelete || last.Reason != "apertura equivocada" {
		t.Fatalf("la bitácora debe llevar el motivo: %+v", last)
	}
}

func TestRemoveTillWithMovements(t *testing.T) {
	repo, svc, supervisor, cashier := setup(t)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{CashierID: cashier.ID, SupervisorID: supervisor.ID, OpeningFloat: dec(500)})
	if err != nil {
		t.Fatalf("abrir: %v", err)
	}

	mov := &models.Movement{
		BranchID:      session.BranchID,
		ActorID:       cashier.ID,
		TillSessionID: &session.ID,
		Type:          models.MovementIn,
		Instrument:    models.InstrumentCash,
		Amount:        dec(100),
		Validated:     true,
	}
	if err := repo.CreateMovement(ctx, mov); err != nil {
		t.Fatalf("crear movimiento: %v", err)
	}

	err = svc.Remove(ctx, session.ID, supervisor.ID, "apertura equivocada")
	if apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict con movimientos ligados, hubo %v", err)
	}
}
