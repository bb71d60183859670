package ledger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"seguros-backend/internal/auth"
	"seguros-backend/internal/database"
	"seguros-backend/internal/models"
)

type RecordMovementRequest struct {
	Type          models.MovementType `json:"type"`
	Instrument    models.Instrument   `json:"instrument"`
	Amount        decimal.Decimal     `json:"amount"`
	TillSessionID *uint               `json:"till_session_id"`
	IsGeneral     bool                `json:"is_general"`
	Description   string              `json:"description"`
}

// POST /api/movements
func RecordMovementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RecordMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		mov, err := svc.Record(c.Context(), RecordInput{
			Type:          body.Type,
			Instrument:    body.Instrument,
			Amount:        body.Amount,
			ActorID:       actorID,
			TillSessionID: body.TillSessionID,
			IsGeneral:     body.IsGeneral,
			Description:   body.Description,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(mov)
	}
}

// POST /api/movements/:id/validate
func ValidateMovementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		validatorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		mov, err := svc.Validate(c.Context(), uint(id), validatorID)
		if err != nil {
			return err
		}
		return c.JSON(mov)
	}
}

type UpdateMovementRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
}

// PUT /api/movements/:id
func UpdateMovementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var body UpdateMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		mov, err := svc.Update(c.Context(), uint(id), actorID, UpdateInput{
			Amount:      body.Amount,
			Description: body.Description,
		})
		if err != nil {
			return err
		}
		return c.JSON(mov)
	}
}

type DeleteMovementRequest struct {
	Reason string `json:"reason"`
}

// DELETE /api/movements/:id
func DeleteMovementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var body DeleteMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		if err := svc.Delete(c.Context(), uint(id), actorID, body.Reason); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Movimiento eliminado"})
	}
}

// GET /api/movements?from=2026-08-01&to=2026-08-31&instrument=cash&general=true
func ListMovementsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Movement{})

		role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
		switch role {
		case models.RoleCashier:
			// los cajeros solo ven sus propios movimientos
			actorID, err := auth.UserID(c)
			if err != nil {
				return err
			}
			dbq = dbq.Where("actor_id = ?", actorID)
		case models.RoleSupervisor:
			if bid := auth.BranchID(c); bid != nil {
				dbq = dbq.Where("branch_id = ?", *bid)
			}
		default:
			if bid := c.QueryInt("branch_id"); bid > 0 {
				dbq = dbq.Where("branch_id = ?", bid)
			}
		}

		if from := c.Query("from"); from != "" {
			if t, err := time.ParseInLocation("2006-01-02", from, time.Local); err == nil {
				dbq = dbq.Where("created_at >= ?", t)
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.ParseInLocation("2006-01-02", to, time.Local); err == nil {
				dbq = dbq.Where("created_at < ?", t.Add(24*time.Hour))
			}
		}
		if instr := c.Query("instrument"); instr != "" {
			dbq = dbq.Where("instrument = ?", instr)
		}
		if general := c.Query("general"); general != "" {
			dbq = dbq.Where("is_general = ?", general == "true")
		}

		var movs []models.Movement
		if err := dbq.Order("created_at DESC").Find(&movs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los movimientos")
		}
		return c.JSON(movs)
	}
}
