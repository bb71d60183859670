package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PolicyPayment es un pago a póliza cobrado por un cajero. Para la
// conciliación cuenta como entrada adicional; los pagos cancelados se
// excluyen de toda suma.
type PolicyPayment struct {
	ID           uint   `gorm:"primaryKey"`
	PolicyNumber string `gorm:"size:50;index;not null"`
	BranchID     uint   `gorm:"index;not null"`
	CashierID    uint   `gorm:"index;not null"`

	Instrument Instrument      `gorm:"size:20;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Validated bool `gorm:"not null;default:false"`
	Cancelled bool `gorm:"not null;default:false"`

	PaidAt time.Time `gorm:"index;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
