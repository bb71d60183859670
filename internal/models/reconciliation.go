package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CloseStatus string

const (
	ClosePending   CloseStatus = "pending"
	CloseClosed    CloseStatus = "closed"
	CloseCancelled CloseStatus = "cancelled"
)

// UserReconciliation es el corte de un cajero: cierra su actividad desde su
// último corte cerrado y congela los movimientos que agregó.
type UserReconciliation struct {
	ID        uint `gorm:"primaryKey"`
	BranchID  uint `gorm:"index;not null"`
	CashierID uint `gorm:"index;not null"`

	// Día contable (medianoche local). El índice único parcial por
	// (cashier_id, day) sobre status <> 'cancelled' se crea en database.Init.
	Day time.Time `gorm:"index;not null"`

	// Ventana semiabierta (start, end]. Start = fin del corte anterior, o la
	// apertura de la sesión de caja si es el primero.
	WindowStart time.Time `gorm:"not null"`
	WindowEnd   time.Time `gorm:"index;not null"`

	OpeningFloat decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	InCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InDeposit  decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	OutCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutDeposit  decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// Saldo esperado solo-efectivo: fondo + entradas efectivo - salidas efectivo
	Expected decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	CountedCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CountedCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CountedTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// contado - esperado (solo efectivo)
	Difference decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Note   string      `gorm:"size:500"`
	Status CloseStatus `gorm:"size:20;not null;index"`

	// Corte de caja chica que lo consumió (se limpia si ese corte se cancela)
	PettyCashCloseID *uint `gorm:"index"`

	CancelledBy     *uint
	CancelledReason string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PettyCashClose es el corte de caja chica de una sucursal: agrega todos los
// cortes de usuario cerrados en su ventana y cierra en cascada las sesiones
// de caja abiertas.
type PettyCashClose struct {
	ID       uint `gorm:"primaryKey"`
	BranchID uint `gorm:"index;not null"`

	Day time.Time `gorm:"index;not null"`

	WindowStart time.Time `gorm:"not null"` // fin del corte anterior, o época
	WindowEnd   time.Time `gorm:"index;not null"`

	// Suma de fondos de las sesiones abiertas al momento del corte
	OpeningFloat decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	InCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	InDeposit  decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	OutCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OutDeposit  decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Expected decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	CountedCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CountedCard     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CountedTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Difference decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Note   string      `gorm:"size:500"`
	Folio  string      `gorm:"size:60"`
	Status CloseStatus `gorm:"size:20;not null;index"`

	CreatedBy       uint `gorm:"not null"`
	CancelledBy     *uint
	CancelledReason string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GeneralCashClose es el corte diario de caja general. BranchID nulo significa
// corte global: congela todas las sucursales para ese día.
type GeneralCashClose struct {
	ID       uint  `gorm:"primaryKey"`
	BranchID *uint `gorm:"index"`

	Day time.Time `gorm:"index;not null"`

	// Saldo final del último corte general cerrado, o cero
	PreviousBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// Entregas de caja chica del día + movimientos generales de entrada
	Inflow  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Outflow decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Computed   decimal.Decimal `gorm:"type:decimal(12,2);not null"` // previo + entradas - salidas
	Counted    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Difference decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Note   string      `gorm:"size:500"`
	Folio  string      `gorm:"size:60"`
	Status CloseStatus `gorm:"size:20;not null;index"`

	CreatedBy       uint `gorm:"not null"`
	CancelledBy     *uint
	CancelledReason string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
