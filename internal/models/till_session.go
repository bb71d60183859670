package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TillSessionStatus string

const (
	TillOpen                 TillSessionStatus = "open"
	TillClosed               TillSessionStatus = "closed"
	TillPendingAuthorization TillSessionStatus = "pending_authorization"
)

// TillSession es la caja abierta de un cajero durante su turno.
// Solo puede existir UNA sesión abierta por cajero; se cierra en cascada
// cuando se cierra la caja chica de la sucursal.
type TillSession struct {
	ID           uint `gorm:"primaryKey"`
	BranchID     uint `gorm:"index;not null"`
	Branch       Branch
	CashierID    uint `gorm:"index;not null"`
	SupervisorID uint `gorm:"not null"` // supervisor que autorizó la apertura

	OpeningFloat    decimal.Decimal `gorm:"type:decimal(12,2);not null"` // fondo fijo
	OpeningCash     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OpeningTransfer decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Status   TillSessionStatus `gorm:"size:30;not null;default:'open'"`
	OpenedAt time.Time         `gorm:"index;not null"`
	ClosedAt *time.Time

	// Corte de caja chica que la cerró en cascada (si aplica)
	PettyCashCloseID *uint

	CreatedAt time.Time
	UpdatedAt time.Time
}
