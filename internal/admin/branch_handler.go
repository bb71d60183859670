// Package admin expone el CRUD de sucursales y altas de usuarios. Todo va
// detrás de RequireRole(super_admin).
package admin

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"seguros-backend/internal/audit"
	"seguros-backend/internal/auth"
	"seguros-backend/internal/database"
	"seguros-backend/internal/models"
)

type BranchRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// POST /api/admin/branches
func CreateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		if strings.TrimSpace(body.Name) == "" {
			return fiber.NewError(fiber.StatusBadRequest, "El nombre de la sucursal es obligatorio")
		}

		branch := models.Branch{
			Name:    strings.TrimSpace(body.Name),
			Address: body.Address,
			Phone:   body.Phone,
		}
		if err := database.DB.Create(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "No se pudo crear la sucursal (¿nombre duplicado?)")
		}

		actorID, _ := auth.UserID(c)
		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &branch.ID,
			UserID:      actorID,
			EntityType:  "branch",
			EntityID:    branch.ID,
			Action:      models.AuditActionCreate,
			Description: "Sucursal " + branch.Name + " creada",
			After:       branch,
		})

		return c.Status(fiber.StatusCreated).JSON(branch)
	}
}

// GET /api/admin/branches
func ListBranchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var branches []models.Branch
		if err := database.DB.Order("name").Find(&branches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar las sucursales")
		}
		return c.JSON(branches)
	}
}

// PUT /api/admin/branches/:id
func UpdateBranchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}

		var body BranchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		var branch models.Branch
		if err := database.DB.First(&branch, id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		before := branch
		if strings.TrimSpace(body.Name) != "" {
			branch.Name = strings.TrimSpace(body.Name)
		}
		if body.Address != "" {
			branch.Address = body.Address
		}
		if body.Phone != "" {
			branch.Phone = body.Phone
		}

		if err := database.DB.Save(&branch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo actualizar la sucursal")
		}

		actorID, _ := auth.UserID(c)
		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    &branch.ID,
			UserID:      actorID,
			EntityType:  "branch",
			EntityID:    branch.ID,
			Action:      models.AuditActionUpdate,
			Description: "Sucursal actualizada",
			Before:      before,
			After:       branch,
		})

		return c.JSON(branch)
	}
}

type CreateUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
	BranchID *uint           `json:"branch_id"`
}

// POST /api/admin/users — alta de supervisores y cajeros. Ambos roles
// requieren sucursal; el fondo operativo de un cajero vive en su sesión de
// caja, no aquí.
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if body.Name == "" || body.Email == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Nombre, email y contraseña son obligatorios")
		}
		if body.Role != models.RoleSupervisor && body.Role != models.RoleCashier {
			return fiber.NewError(fiber.StatusBadRequest, "El rol debe ser supervisor o cashier")
		}
		if body.BranchID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "branch_id es obligatorio para este rol")
		}

		var branch models.Branch
		if err := database.DB.First(&branch, *body.BranchID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Sucursal no encontrada")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo procesar la contraseña")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         body.Role,
			BranchID:     body.BranchID,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "No se pudo crear el usuario (¿email duplicado?)")
		}

		actorID, _ := auth.UserID(c)
		_ = audit.WriteLog(audit.LogOptions{
			BranchID:    body.BranchID,
			UserID:      actorID,
			EntityType:  "user",
			EntityID:    user.ID,
			Action:      models.AuditActionCreate,
			Description: "Usuario " + user.Name + " creado con rol " + string(user.Role),
		})

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"role":      user.Role,
			"branch_id": user.BranchID,
		})
	}
}

// GET /api/admin/users?branch_id=1&role=cashier
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.User{})
		if bid := c.QueryInt("branch_id"); bid > 0 {
			dbq = dbq.Where("branch_id = ?", bid)
		}
		if role := c.Query("role"); role != "" {
			dbq = dbq.Where("role = ?", role)
		}

		var users []models.User
		if err := dbq.Order("name").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los usuarios")
		}

		resp := make([]fiber.Map, 0, len(users))
		for _, u := range users {
			resp = append(resp, fiber.Map{
				"id":        u.ID,
				"name":      u.Name,
				"email":     u.Email,
				"role":      u.Role,
				"branch_id": u.BranchID,
			})
		}
		return c.JSON(resp)
	}
}
