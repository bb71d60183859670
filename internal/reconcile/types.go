package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/models"
)

// InstrumentTotals agrupa importes por instrumento de pago.
type InstrumentTotals struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
	Deposit  decimal.Decimal `json:"deposit"`
}

func (t *InstrumentTotals) add(instr models.Instrument, amount decimal.Decimal) {
	switch instr {
	case models.InstrumentCash:
		t.Cash = t.Cash.Add(amount)
	case models.InstrumentCard:
		t.Card = t.Card.Add(amount)
	case models.InstrumentTransfer:
		t.Transfer = t.Transfer.Add(amount)
	case models.InstrumentDeposit:
		t.Deposit = t.Deposit.Add(amount)
	}
}

// CountedAmounts son los importes contados físicamente que captura quien
// cierra. Es la única entrada del cliente que se acepta sin recalcular.
type CountedAmounts struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
}

// UserPreview es la vista previa del corte de un cajero: desglose de la
// ventana más la plantilla de captura en ceros.
type UserPreview struct {
	CashierID     uint      `json:"cashier_id"`
	BranchID      uint      `json:"branch_id"`
	TillSessionID uint      `json:"till_session_id"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`

	OpeningFloat decimal.Decimal  `json:"opening_float"`
	In           InstrumentTotals `json:"in"`
	Out          InstrumentTotals `json:"out"`

	// Cuántos pagos de póliza entraron a las sumas (informativo)
	PolicyPayments int `json:"policy_payments"`

	Expected decimal.Decimal `json:"expected"`
	Counted  CountedAmounts  `json:"counted"`
}

// PettyCashPreview es la vista previa del corte de caja chica de una
// sucursal.
type PettyCashPreview struct {
	BranchID    uint      `json:"branch_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	OpeningFloat decimal.Decimal  `json:"opening_float"`
	In           InstrumentTotals `json:"in"`
	Out          InstrumentTotals `json:"out"`

	Expected decimal.Decimal `json:"expected"`
	Counted  CountedAmounts  `json:"counted"`

	// Cortes de usuario que consumiría el cierre y sesiones que cerraría
	// en cascada
	UserReconciliationIDs []uint `json:"user_reconciliation_ids"`
	OpenTillSessionIDs    []uint `json:"open_till_session_ids"`
}

// GeneralCashPreview es la vista previa del corte de caja general.
type GeneralCashPreview struct {
	BranchID *uint     `json:"branch_id"`
	Day      time.Time `json:"day"`

	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Inflow          decimal.Decimal `json:"inflow"`
	Outflow         decimal.Decimal `json:"outflow"`
	Computed        decimal.Decimal `json:"computed"`

	PettyCashCloseIDs []uint `json:"petty_cash_close_ids"`
}
