package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
	"seguros-backend/internal/store/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	repo  *memory.Store
	svc   *Service
	clock *fakeClock

	branch     models.Branch
	supervisor models.User
	cashier    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.New()
	branch := repo.SeedBranch(models.Branch{Name: "Centro"})
	supervisor := repo.SeedUser(models.User{Name: "Sofía Trejo", Role: models.RoleSupervisor, BranchID: &branch.ID})
	cashier := repo.SeedUser(models.User{Name: "Carlos Peña", Role: models.RoleCashier, BranchID: &branch.ID})

	clock := &fakeClock{t: time.Date(2026, 8, 28, 9, 0, 0, 0, time.Local)}

	return &fixture{
		repo:       repo,
		svc:        NewService(repo, clock.Now),
		clock:      clock,
		branch:     branch,
		supervisor: supervisor,
		cashier:    cashier,
	}
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestRecordCashIsAutoValidated(t *testing.T) {
	f := newFixture(t)

	mov, err := f.svc.Record(context.Background(), RecordInput{
		Type:       models.MovementIn,
		Instrument: models.InstrumentCash,
		Amount:     dec(250),
		ActorID:    f.cashier.ID,
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	if !mov.Validated {
		t.Fatalf("el efectivo debe quedar validado al registrarse")
	}

	card, err := f.svc.Record(context.Background(), RecordInput{
		Type:       models.MovementIn,
		Instrument: models.InstrumentCard,
		Amount:     dec(250),
		ActorID:    f.cashier.ID,
	})
	if err != nil {
		t.Fatalf("registrar tarjeta: %v", err)
	}
	if card.Validated {
		t.Fatalf("la tarjeta requiere validación de un segundo usuario")
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, RecordInput{Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(0), ActorID: f.cashier.ID})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("importe cero: se esperaba InvalidArgument, hubo %v", err)
	}

	_, err = f.svc.Record(ctx, RecordInput{Type: "transfer", Instrument: models.InstrumentCash, Amount: dec(10), ActorID: f.cashier.ID})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("tipo inválido: se esperaba InvalidArgument, hubo %v", err)
	}

	_, err = f.svc.Record(ctx, RecordInput{Type: models.MovementIn, Instrument: "cheque", Amount: dec(10), ActorID: f.cashier.ID})
	if apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("instrumento inválido: se esperaba InvalidArgument, hubo %v", err)
	}
}

func TestRecordBlockedAfterPettyClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	petty := &models.PettyCashClose{
		BranchID:  f.branch.ID,
		Day:       store.Day(f.clock.Now()),
		WindowEnd: f.clock.Now(),
		Status:    models.CloseClosed,
		CreatedBy: f.supervisor.ID,
	}
	if err := f.repo.CreatePettyCashClose(ctx, petty); err != nil {
		t.Fatalf("sembrar corte: %v", err)
	}
	f.clock.Advance(1 * time.Hour)

	_, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100), ActorID: f.cashier.ID,
	})
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("caja chica cerrada: se esperaba Blocked, hubo %v", err)
	}

	// los movimientos del registro general siguen permitidos
	if _, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100),
		ActorID: f.supervisor.ID, IsGeneral: true,
	}); err != nil {
		t.Fatalf("movimiento general tras cierre de caja chica: %v", err)
	}
}

func TestRecordBlockedAfterGeneralClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gc := &models.GeneralCashClose{
		BranchID:  &f.branch.ID,
		Day:       store.Day(f.clock.Now()),
		Status:    models.CloseClosed,
		CreatedBy: f.supervisor.ID,
	}
	if err := f.repo.CreateGeneralCashClose(ctx, gc); err != nil {
		t.Fatalf("sembrar corte general: %v", err)
	}
	f.clock.Advance(1 * time.Hour)

	// tras el cierre general no entra nada, ni siquiera movimientos generales
	_, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100),
		ActorID: f.supervisor.ID, IsGeneral: true,
	})
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("caja general cerrada: se esperaba Blocked, hubo %v", err)
	}
}

func TestValidateMovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	card, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCard, Amount: dec(300), ActorID: f.cashier.ID,
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}

	got, err := f.svc.Validate(ctx, card.ID, f.supervisor.ID)
	if err != nil {
		t.Fatalf("validar: %v", err)
	}
	if !got.Validated || got.ValidatedBy == nil || *got.ValidatedBy != f.supervisor.ID {
		t.Fatalf("la validación no quedó registrada: %+v", got)
	}

	// segunda validación es conflicto
	if _, err := f.svc.Validate(ctx, card.ID, f.supervisor.ID); apperr.KindOf(err) != apperr.Conflict {
		t.Fatalf("se esperaba Conflict, hubo %v", err)
	}

	cash, _ := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100), ActorID: f.cashier.ID,
	})
	if _, err := f.svc.Validate(ctx, cash.ID, f.supervisor.ID); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("validar efectivo: se esperaba InvalidArgument, hubo %v", err)
	}
}

func TestUpdateLockedByClosedReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mov, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100), ActorID: f.cashier.ID,
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}

	// un corte de usuario cerrado cuya ventana cubre el movimiento lo congela
	f.clock.Advance(1 * time.Hour)
	rec := &models.UserReconciliation{
		BranchID:  f.branch.ID,
		CashierID: f.cashier.ID,
		Day:       store.Day(f.clock.Now()),
		WindowEnd: f.clock.Now(),
		Status:    models.CloseClosed,
	}
	if err := f.repo.CreateUserReconciliation(ctx, rec); err != nil {
		t.Fatalf("sembrar corte: %v", err)
	}

	amount := dec(150)
	_, err = f.svc.Update(ctx, mov.ID, f.supervisor.ID, UpdateInput{Amount: &amount})
	if apperr.KindOf(err) != apperr.Locked {
		t.Fatalf("se esperaba Locked, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].Entity != "user_reconciliation" || records[0].ID != rec.ID {
		t.Fatalf("el error debe señalar el corte %d, señaló %+v", rec.ID, records)
	}

	// cancelar el corte vuelve a hacer mutable el movimiento
	rec.Status = models.CloseCancelled
	if err := f.repo.UpdateUserReconciliation(ctx, rec); err != nil {
		t.Fatalf("cancelar corte: %v", err)
	}

	got, err := f.svc.Update(ctx, mov.ID, f.supervisor.ID, UpdateInput{Amount: &amount})
	if err != nil {
		t.Fatalf("editar tras cancelar: %v", err)
	}
	if !got.Amount.Equal(amount) {
		t.Fatalf("amount = %s", got.Amount)
	}
}

func TestDeleteRequiresReasonAndWalksHierarchy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mov, err := f.svc.Record(ctx, RecordInput{
		Type: models.MovementOut, Instrument: models.InstrumentCash, Amount: dec(75), ActorID: f.cashier.ID,
	})
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}

	if err := f.svc.Delete(ctx, mov.ID, f.supervisor.ID, ""); apperr.KindOf(err) != apperr.InvalidArgument {
		t.Fatalf("sin motivo: se esperaba InvalidArgument, hubo %v", err)
	}

	// un corte de caja chica cerrado también congela
	f.clock.Advance(1 * time.Hour)
	petty := &models.PettyCashClose{
		BranchID:  f.branch.ID,
		Day:       store.Day(f.clock.Now()),
		WindowEnd: f.clock.Now(),
		Status:    models.CloseClosed,
		CreatedBy: f.supervisor.ID,
	}
	if err := f.repo.CreatePettyCashClose(ctx, petty); err != nil {
		t.Fatalf("sembrar corte: %v", err)
	}

	err = f.svc.Delete(ctx, mov.ID, f.supervisor.ID, "registro duplicado")
	if apperr.KindOf(err) != apperr.Locked {
		t.Fatalf("se esperaba Locked, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].Entity != "petty_cash_close" {
		t.Fatalf("el error debe señalar el corte de caja chica, señaló %+v", records)
	}

	// cancelado el corte, el borrado procede y deja bitácora con motivo
	petty.Status = models.CloseCancelled
	if err := f.repo.UpdatePettyCashClose(ctx, petty); err != nil {
		t.Fatalf("cancelar corte: %v", err)
	}
	if err := f.svc.Delete(ctx, mov.ID, f.supervisor.ID, "registro duplicado"); err != nil {
		t.Fatalf("borrar: %v", err)
	}

	logs := f.repo.AuditLogs()
	last := logs[len(logs)-1]
	if last.Action != models.AuditActionDelete || last.Reason != "registro duplicado" {
		t.Fatalf("la bitácora debe llevar la acción y el motivo: %+v", last)
	}
}

func TestAssertPeriodOpenCoversActorWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paidAt := f.clock.Now()
	f.clock.Advance(1 * time.Hour)
	rec := &models.UserReconciliation{
		BranchID:  f.branch.ID,
		CashierID: f.cashier.ID,
		Day:       store.Day(f.clock.Now()),
		WindowEnd: f.clock.Now(),
		Status:    models.CloseClosed,
	}
	if err := f.repo.CreateUserReconciliation(ctx, rec); err != nil {
		t.Fatalf("sembrar corte: %v", err)
	}

	// un instante dentro de la ventana cerrada está congelado
	err := AssertPeriodOpen(ctx, f.repo, f.branch.ID, f.cashier.ID, paidAt)
	if apperr.KindOf(err) != apperr.Locked {
		t.Fatalf("se esperaba Locked, hubo %v", err)
	}
	records := apperr.RecordsOf(err)
	if len(records) != 1 || records[0].Entity != "user_reconciliation" || records[0].ID != rec.ID {
		t.Fatalf("el error debe señalar el corte %d, señaló %+v", rec.ID, records)
	}

	// después de la ventana el periodo sigue abierto
	if err := AssertPeriodOpen(ctx, f.repo, f.branch.ID, f.cashier.ID, f.clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("fuera de la ventana: %v", err)
	}

	// cancelado el corte, el periodo se reabre
	rec.Status = models.CloseCancelled
	if err := f.repo.UpdateUserReconciliation(ctx, rec); err != nil {
		t.Fatalf("cancelar corte: %v", err)
	}
	if err := AssertPeriodOpen(ctx, f.repo, f.branch.ID, f.cashier.ID, paidAt); err != nil {
		t.Fatalf("tras cancelar: %v", err)
	}
}

// pettyRaceRepo simula a otro proceso que cierra la caja chica justo antes de
// que abra la transacción del movimiento.
type pettyRaceRepo struct {
	store.Repository
	branchID     uint
	supervisorID uint
	day          time.Time
}

func (r *pettyRaceRepo) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	petty := &models.PettyCashClose{
		BranchID:  r.branchID,
		Day:       r.day,
		WindowEnd: r.day,
		Status:    models.CloseClosed,
		CreatedBy: r.supervisorID,
	}
	if err := r.Repository.CreatePettyCashClose(ctx, petty); err != nil {
		return err
	}
	return r.Repository.WithinTx(ctx, fn)
}

func TestRecordChecksClosesInsideTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	race := &pettyRaceRepo{
		Repository:   f.repo,
		branchID:     f.branch.ID,
		supervisorID: f.supervisor.ID,
		day:          store.Day(f.clock.Now()),
	}
	svc := NewService(race, f.clock.Now)

	// el cierre aterriza en medio del registro; el movimiento debe
	// rechazarse de todos modos
	_, err := svc.Record(ctx, RecordInput{
		Type: models.MovementIn, Instrument: models.InstrumentCash, Amount: dec(100), ActorID: f.cashier.ID,
	})
	if apperr.KindOf(err) != apperr.Blocked {
		t.Fatalf("se esperaba Blocked con cierre concurrente, hubo %v", err)
	}
}
