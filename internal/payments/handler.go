// Package payments expone el CRUD mínimo de pagos a póliza. El módulo real de
// pólizas vive en otro sistema; aquí solo se captura lo que la conciliación
// necesita sumar.
package payments

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"seguros-backend/internal/audit"
	"seguros-backend/internal/auth"
	"seguros-backend/internal/database"
	"seguros-backend/internal/ledger"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

type CreatePolicyPaymentRequest struct {
	PolicyNumber string            `json:"policy_number"`
	Instrument   models.Instrument `json:"instrument"`
	Amount       decimal.Decimal   `json:"amount"`
}

// POST /api/policy-payments
func CreatePolicyPaymentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreatePolicyPaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		if body.PolicyNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "policy_number es obligatorio")
		}
		if !models.ValidInstrument(body.Instrument) {
			return fiber.NewError(fiber.StatusBadRequest, "Instrumento inválido (cash|transfer|deposit|card)")
		}
		if !body.Amount.IsPositive() {
			return fiber.NewError(fiber.StatusBadRequest, "El importe debe ser mayor a cero")
		}

		cashierID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var cashier models.User
		if err := database.DB.First(&cashier, cashierID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Usuario no encontrado")
		}
		if cashier.BranchID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "El usuario no tiene sucursal asignada")
		}

		payment := models.PolicyPayment{
			PolicyNumber: body.PolicyNumber,
			BranchID:     *cashier.BranchID,
			CashierID:    cashierID,
			Instrument:   body.Instrument,
			Amount:       body.Amount.Round(2),
			Validated:    body.Instrument == models.InstrumentCash,
			PaidAt:       time.Now(),
		}
		if err := database.DB.Create(&payment).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo registrar el pago")
		}

		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    cashier.BranchID,
			UserID:      cashier.ID,
			UserName:    cashier.Name,
			EntityType:  "policy_payment",
			EntityID:    payment.ID,
			Action:      models.AuditActionCreate,
			Description: "Pago de póliza " + payment.PolicyNumber + " registrado",
			After:       payment,
		})

		return c.Status(fiber.StatusCreated).JSON(payment)
	}
}

// POST /api/policy-payments/:id/validate
func ValidatePolicyPaymentHandler(repo store.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var payment models.PolicyPayment
		if err := database.DB.First(&payment, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Pago no encontrado")
		}
		if payment.Cancelled {
			return fiber.NewError(fiber.StatusConflict, "El pago está cancelado")
		}
		if payment.Instrument == models.InstrumentCash {
			return fiber.NewError(fiber.StatusBadRequest, "Los pagos en efectivo no requieren validación")
		}
		if payment.Validated {
			return fiber.NewError(fiber.StatusConflict, "El pago ya está validado")
		}
		// un pago cubierto por un corte cerrado ya se contó (o se excluyó) en
		// un saldo firmado; primero hay que cancelar el corte
		if err := ledger.AssertPeriodOpen(c.Context(), repo, payment.BranchID, payment.CashierID, payment.PaidAt); err != nil {
			return err
		}

		before := payment
		payment.Validated = true
		if err := database.DB.Save(&payment).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo validar el pago")
		}

		validatorID, _ := auth.UserID(c)
		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &payment.BranchID,
			UserID:      validatorID,
			EntityType:  "policy_payment",
			EntityID:    payment.ID,
			Action:      models.AuditActionUpdate,
			Description: "Pago de póliza validado",
			Before:      before,
			After:       payment,
		})

		return c.JSON(payment)
	}
}

type CancelPolicyPaymentRequest struct {
	Reason string `json:"reason"`
}

// POST /api/policy-payments/:id/cancel — un pago cancelado sale de todas las
// sumas de conciliación.
func CancelPolicyPaymentHandler(repo store.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var body CancelPolicyPaymentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		if body.Reason == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El motivo de cancelación es obligatorio")
		}

		var payment models.PolicyPayment
		if err := database.DB.First(&payment, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Pago no encontrado")
		}
		if payment.Cancelled {
			return fiber.NewError(fiber.StatusConflict, "El pago ya está cancelado")
		}
		if err := ledger.AssertPeriodOpen(c.Context(), repo, payment.BranchID, payment.CashierID, payment.PaidAt); err != nil {
			return err
		}

		before := payment
		payment.Cancelled = true
		if err := database.DB.Save(&payment).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo cancelar el pago")
		}

		actorID, _ := auth.UserID(c)
		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &payment.BranchID,
			UserID:      actorID,
			EntityType:  "policy_payment",
			EntityID:    payment.ID,
			Action:      models.AuditActionCancel,
			Description: "Pago de póliza " + payment.PolicyNumber + " cancelado",
			Reason:      body.Reason,
			Before:      before,
			After:       payment,
		})

		return c.JSON(payment)
	}
}

// GET /api/policy-payments?from=2026-08-01&to=2026-08-31&cashier_id=1
func ListPolicyPaymentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.PolicyPayment{})

		role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
		switch role {
		case models.RoleCashier:
			cashierID, err := auth.UserID(c)
			if err != nil {
				return err
			}
			dbq = dbq.Where("cashier_id = ?", cashierID)
		case models.RoleSupervisor:
			if bid := auth.BranchID(c); bid != nil {
				dbq = dbq.Where("branch_id = ?", *bid)
			}
		default:
			if bid := c.QueryInt("branch_id"); bid > 0 {
				dbq = dbq.Where("branch_id = ?", bid)
			}
		}

		if cid := c.QueryInt("cashier_id"); cid > 0 {
			dbq = dbq.Where("cashier_id = ?", cid)
		}
		if from := c.Query("from"); from != "" {
			if t, err := time.ParseInLocation("2006-01-02", from, time.Local); err == nil {
				dbq = dbq.Where("paid_at >= ?", t)
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.ParseInLocation("2006-01-02", to, time.Local); err == nil {
				dbq = dbq.Where("paid_at < ?", t.Add(24*time.Hour))
			}
		}

		var payments []models.PolicyPayment
		if err := dbq.Order("paid_at DESC").Find(&payments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los pagos")
		}
		return c.JSON(payments)
	}
}
