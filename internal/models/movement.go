package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

type Instrument string

const (
	InstrumentCash     Instrument = "cash"
	InstrumentTransfer Instrument = "transfer"
	InstrumentDeposit  Instrument = "deposit"
	InstrumentCard     Instrument = "card"
)

func ValidInstrument(i Instrument) bool {
	switch i {
	case InstrumentCash, InstrumentTransfer, InstrumentDeposit, InstrumentCard:
		return true
	}
	return false
}

// Movement es un evento del libro de movimientos de efectivo. Es append-only:
// una vez cubierto por un corte cerrado (usuario, caja chica o caja general)
// no se puede editar ni borrar mientras ese corte no se cancele.
type Movement struct {
	ID       uint `gorm:"primaryKey"`
	BranchID uint `gorm:"index;not null"`
	ActorID  uint `gorm:"index;not null"` // usuario que registró el movimiento

	TillSessionID *uint // opcional: sesión de caja a la que pertenece

	Type       MovementType    `gorm:"size:10;not null"`
	Instrument Instrument      `gorm:"size:20;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// Instrumentos distintos de efectivo requieren validación de un segundo
	// usuario antes de contarse en un saldo esperado.
	Validated   bool `gorm:"not null;default:false"`
	ValidatedBy *uint

	// true = movimiento del registro general de la sucursal (no caja chica)
	IsGeneral bool `gorm:"not null;default:false"`

	Description string `gorm:"size:255"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}
