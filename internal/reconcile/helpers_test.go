package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/authcode"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store/memory"
)

// fakeClock permite avanzar el tiempo a mano en las pruebas.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	repo   *memory.Store
	svc    *Service
	clock  *fakeClock
	issuer *authcode.Issuer

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
	issuer := authcode.NewIssuer(authcode.NewMemoryStore())

	return &fixture{
		repo:       repo,
		svc:        New(repo, issuer, clock.Now),
		clock:      clock,
		issuer:     issuer,
		branch:     branch,
		supervisor: supervisor,
		cashier:    cashier,
	}
}

// openTill abre una sesión de caja para el cajero en el instante actual.
func (f *fixture) openTill(t *testing.T, cashierID uint, openingFloat float64) *models.TillSession {
	t.Helper()
	session := &models.TillSession{
		BranchID:     f.branch.ID,
		CashierID:    cashierID,
		SupervisorID: f.supervisor.ID,
		OpeningFloat: dec(openingFloat),
		Status:       models.TillOpen,
		OpenedAt:     f.clock.Now(),
	}
	if err := f.repo.CreateTillSession(context.Background(), session); err != nil {
		t.Fatalf("abrir sesión: %v", err)
	}
	return session
}

// addMovement registra un movimiento directo en el repositorio con la hora
// del reloj de prueba.
func (f *fixture) addMovement(t *testing.T, actorID uint, typ models.MovementType, instr models.Instrument, amount float64, validated bool) *models.Movement {
	t.Helper()
	mov := &models.Movement{
		BranchID:   f.branch.ID,
		ActorID:    actorID,
		Type:       typ,
		Instrument: instr,
		Amount:     dec(amount),
		Validated:  validated,
		CreatedAt:  f.clock.Now(),
	}
	if err := f.repo.CreateMovement(context.Background(), mov); err != nil {
		t.Fatalf("crear movimiento: %v", err)
	}
	return mov
}

func (f *fixture) addPolicyPayment(t *testing.T, cashierID uint, instr models.Instrument, amount float64, validated bool) *models.PolicyPayment {
	t.Helper()
	payment := &models.PolicyPayment{
		PolicyNumber: "POL-001",
		BranchID:     f.branch.ID,
		CashierID:    cashierID,
		Instrument:   instr,
		Amount:       dec(amount),
		Validated:    validated,
		PaidAt:       f.clock.Now(),
	}
	if err := f.repo.CreatePolicyPayment(context.Background(), payment); err != nil {
		t.Fatalf("crear pago: %v", err)
	}
	return payment
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func mustEqual(t *testing.T, got decimal.Decimal, want float64, label string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, se esperaba %v", label, got, want)
	}
}
