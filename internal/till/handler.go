package till

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"seguros-backend/internal/auth"
	"seguros-backend/internal/database"
	"seguros-backend/internal/models"
)

type OpenTillRequest struct {
	CashierID       uint            `json:"cashier_id"`
	OpeningFloat    decimal.Decimal `json:"opening_float"`
	OpeningCash     decimal.Decimal `json:"opening_cash"`
	OpeningTransfer decimal.Decimal `json:"opening_transfer"`
}

// POST /api/till-sessions
func OpenTillHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OpenTillRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		if body.CashierID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "cashier_id es obligatorio")
		}

		supervisorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		session, err := svc.Open(c.Context(), OpenInput{
			CashierID:       body.CashierID,
			SupervisorID:    supervisorID,
			OpeningFloat:    body.OpeningFloat,
			OpeningCash:     body.OpeningCash,
			OpeningTransfer: body.OpeningTransfer,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

type RemoveTillRequest struct {
	Reason string `json:"reason"`
}

// DELETE /api/till-sessions/:id
func RemoveTillHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var body RemoveTillRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		if err := svc.Remove(c.Context(), uint(id), actorID, body.Reason); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Sesión de caja eliminada"})
	}
}

// GET /api/till-sessions?status=open&branch_id=1
func ListTillSessionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.TillSession{})

		// supervisores y cajeros solo ven su sucursal
		role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
		if role != models.RoleSuperAdmin {
			if bid := auth.BranchID(c); bid != nil {
				dbq = dbq.Where("branch_id = ?", *bid)
			}
		} else if bid := c.QueryInt("branch_id"); bid > 0 {
			dbq = dbq.Where("branch_id = ?", bid)
		}

		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}

		var sessions []models.TillSession
		if err := dbq.Order("opened_at DESC").Find(&sessions).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar las sesiones")
		}
		return c.JSON(sessions)
	}
}
