package reconcile

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"seguros-backend/internal/auth"
	"seguros-backend/internal/database"
	"seguros-backend/internal/models"
)

// cashierFromRequest resuelve al cajero objetivo: los cajeros siempre operan
// sobre sí mismos; supervisores y super admin indican cashier_id.
func cashierFromRequest(c *fiber.Ctx, explicit uint) (uint, error) {
	role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if role == models.RoleCashier {
		return auth.UserID(c)
	}
	if explicit == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "cashier_id es obligatorio")
	}
	return explicit, nil
}

// branchFromRequest resuelve la sucursal objetivo: supervisores usan la suya,
// super admin indica branch_id.
func branchFromRequest(c *fiber.Ctx, explicit uint) (uint, error) {
	role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if role == models.RoleSupervisor {
		if bid := auth.BranchID(c); bid != nil {
			return *bid, nil
		}
	}
	if explicit == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "branch_id es obligatorio")
	}
	return explicit, nil
}

// GET /api/reconciliations/user/preview?cashier_id=1
func PreviewUserHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cashierID, err := cashierFromRequest(c, uint(c.QueryInt("cashier_id")))
		if err != nil {
			return err
		}
		pv, err := svc.PreviewUser(c.Context(), cashierID)
		if err != nil {
			return err
		}
		return c.JSON(pv)
	}
}

type CloseUserRequest struct {
	CashierID uint           `json:"cashier_id"`
	Counted   CountedAmounts `json:"counted"`
	Note      string         `json:"note"`
}

// POST /api/reconciliations/user
func CloseUserHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CloseUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		cashierID, err := cashierFromRequest(c, body.CashierID)
		if err != nil {
			return err
		}
		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		rec, err := svc.CloseUser(c.Context(), cashierID, actorID, body.Counted, body.Note)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

type CancelRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// POST /api/reconciliations/user/:id/cancel
func CancelUserHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}
		var body CancelRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := svc.CancelUser(c.Context(), uint(id), actorID, body.Code, body.Reason); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Corte de usuario cancelado"})
	}
}

// GET /api/reconciliations/petty-cash/preview?branch_id=1
func PreviewPettyCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID, err := branchFromRequest(c, uint(c.QueryInt("branch_id")))
		if err != nil {
			return err
		}
		pv, err := svc.PreviewPettyCash(c.Context(), branchID)
		if err != nil {
			return err
		}
		return c.JSON(pv)
	}
}

type ClosePettyCashRequest struct {
	BranchID uint           `json:"branch_id"`
	Counted  CountedAmounts `json:"counted"`
	Note     string         `json:"note"`
	Folio    string         `json:"folio"`
}

// POST /api/reconciliations/petty-cash
func ClosePettyCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ClosePettyCashRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		branchID, err := branchFromRequest(c, body.BranchID)
		if err != nil {
			return err
		}
		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		close, err := svc.ClosePettyCash(c.Context(), branchID, actorID, body.Counted, body.Note, body.Folio)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(close)
	}
}

// POST /api/reconciliations/petty-cash/:id/cancel
func CancelPettyCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}
		var body CancelRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := svc.CancelPettyCash(c.Context(), uint(id), actorID, body.Code, body.Reason); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Corte de caja chica cancelado"})
	}
}

// generalBranchFromRequest admite branch_id cero/ausente: corte global.
func generalBranchFromRequest(c *fiber.Ctx, explicit uint) *uint {
	role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if role == models.RoleSupervisor {
		return auth.BranchID(c)
	}
	if explicit > 0 {
		return &explicit
	}
	return nil
}

func dateFromQuery(c *fiber.Ctx, svcNow func() time.Time) time.Time {
	if d := c.Query("date"); d != "" {
		if t, err := time.ParseInLocation("2006-01-02", d, time.Local); err == nil {
			return t
		}
	}
	return svcNow()
}

// GET /api/reconciliations/general-cash/preview?branch_id=1&date=2026-08-30
func PreviewGeneralCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		branchID := generalBranchFromRequest(c, uint(c.QueryInt("branch_id")))
		pv, err := svc.PreviewGeneralCash(c.Context(), branchID, dateFromQuery(c, svc.now))
		if err != nil {
			return err
		}
		return c.JSON(pv)
	}
}

type CloseGeneralCashRequest struct {
	BranchID uint           `json:"branch_id"`
	Date     string         `json:"date"`
	Counted  CountedAmounts `json:"counted"`
	Note     string         `json:"note"`
	Folio    string         `json:"folio"`
}

// POST /api/reconciliations/general-cash
func CloseGeneralCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CloseGeneralCashRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		branchID := generalBranchFromRequest(c, body.BranchID)

		date := svc.now()
		if body.Date != "" {
			t, err := time.ParseInLocation("2006-01-02", body.Date, time.Local)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Fecha inválida (formato 2006-01-02)")
			}
			date = t
		}

		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		close, err := svc.CloseGeneralCash(c.Context(), branchID, actorID, date, body.Counted.Cash, body.Note, body.Folio)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(close)
	}
}

// POST /api/reconciliations/general-cash/:id/cancel
func CancelGeneralCashHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
		}
		var body CancelRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}
		actorID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := svc.CancelGeneralCash(c.Context(), uint(id), actorID, body.Code, body.Reason); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "Corte de caja general cancelado"})
	}
}

// listCloses arma la consulta común de los tres listados: filtros por
// sucursal, estado y rango de días.
func listCloses(c *fiber.Ctx, dest any) error {
	dbq := database.DB

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
	if from := c.Query("from"); from != "" {
		if t, err := time.ParseInLocation("2006-01-02", from, time.Local); err == nil {
			dbq = dbq.Where("day >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.ParseInLocation("2006-01-02", to, time.Local); err == nil {
			dbq = dbq.Where("day <= ?", t)
		}
	}

	if err := dbq.Order("day DESC, id DESC").Find(dest).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los cortes")
	}
	return c.JSON(dest)
}

func getClose(c *fiber.Ctx, dest any) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Id inválido")
	}
	if err := database.DB.First(dest, id).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Corte no encontrado")
	}
	return c.JSON(dest)
}

// GET /api/reconciliations/user/:id
func GetUserReconciliationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var rec models.UserReconciliation
		return getClose(c, &rec)
	}
}

// GET /api/reconciliations/petty-cash/:id
func GetPettyCashCloseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var close models.PettyCashClose
		return getClose(c, &close)
	}
}

// GET /api/reconciliations/general-cash/:id
func GetGeneralCashCloseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var close models.GeneralCashClose
		return getClose(c, &close)
	}
}

// GET /api/reconciliations/user?status=closed&from=2026-08-01
func ListUserReconciliationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var recs []models.UserReconciliation
		return listCloses(c, &recs)
	}
}

// GET /api/reconciliations/petty-cash
func ListPettyCashClosesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var closes []models.PettyCashClose
		return listCloses(c, &closes)
	}
}

// GET /api/reconciliations/general-cash
func ListGeneralCashClosesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var closes []models.GeneralCashClose
		return listCloses(c, &closes)
	}
}
