package authcode

import (
	"github.com/gofiber/fiber/v2"
)

type IssueRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id"`
}

// Tipos de corte que admiten cancelación con código.
var cancellableEntities = map[string]bool{
	"user_reconciliation": true,
	"petty_cash_close":    true,
	"general_cash_close":  true,
}

// POST /api/auth-codes — solo super admin. El código se entrega fuera de
// banda a quien ejecutará la cancelación; aquí solo se emite y regresa.
func IssueHandler(issuer *Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body IssueRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		if !cancellableEntities[body.EntityType] {
			return fiber.NewError(fiber.StatusBadRequest,
				"entity_type debe ser user_reconciliation, petty_cash_close o general_cash_close")
		}
		if body.EntityID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "entity_id es obligatorio")
		}

		code, err := issuer.Issue(c.Context(), TargetID(body.EntityType, body.EntityID))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo emitir el código")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"entity_type": body.EntityType,
			"entity_id":   body.EntityID,
			"code":        code,
		})
	}
}
