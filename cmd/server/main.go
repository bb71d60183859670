package main

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"seguros-backend/internal/admin"
	"seguros-backend/internal/apperr"
	"seguros-backend/internal/audit"
	"seguros-backend/internal/auth"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/config"
	"seguros-backend/internal/database"
	"seguros-backend/internal/ledger"
	"seguros-backend/internal/models"
	"seguros-backend/internal/payments"
	"seguros-backend/internal/reconcile"
	"seguros-backend/internal/store/gormstore"
	"seguros-backend/internal/till"
)

// errorHandler traduce la taxonomía de apperr a HTTP; los errores de dominio
// llevan su lista de registros ofensores en el cuerpo.
func errorHandler(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body := fiber.Map{
			"error": appErr.Message,
			"kind":  appErr.Kind,
		}
		if len(appErr.Records) > 0 {
			body["records"] = appErr.Records
		}
		return c.Status(apperr.HTTPStatus(appErr.Kind)).JSON(body)
	}

	code := fiber.StatusInternalServerError
	message := "Error interno del servidor"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		log.Printf("[ERROR] %v", err)
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}

func main() {
	cfg := config.Load()

	database.Init(cfg)
	repo := gormstore.New(database.DB)

	var codeStore authcode.Store
	if cfg.RedisAddr != "" {
		codeStore = authcode.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AuthCodeTTL)
	} else {
		codeStore = authcode.NewMemoryStore()
	}
	issuer := authcode.NewIssuer(codeStore)

	tillSvc := till.NewService(repo, nil)
	ledgerSvc := ledger.NewService(repo, nil)
	reconSvc := reconcile.New(repo, issuer, nil)

	app := fiber.New(fiber.Config{
		AppName:      "seguros-backend",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Autenticación (pública)
	api.Post("/auth/register-super-admin", auth.RegisterSuperAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Todo lo demás requiere token
	api.Use(auth.JWTMiddleware(cfg))
	api.Get("/auth/me", auth.MeHandler())

	// Administración (solo super admin)
	adminGroup := api.Group("/admin", auth.RequireRole(models.RoleSuperAdmin))
	adminGroup.Post("/branches", admin.CreateBranchHandler())
	adminGroup.Get("/branches", admin.ListBranchesHandler())
	adminGroup.Put("/branches/:id", admin.UpdateBranchHandler())
	adminGroup.Post("/users", admin.CreateUserHandler())
	adminGroup.Get("/users", admin.ListUsersHandler())

	// Sesiones de caja
	api.Post("/till-sessions",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		till.OpenTillHandler(tillSvc))
	api.Delete("/till-sessions/:id",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		till.RemoveTillHandler(tillSvc))
	api.Get("/till-sessions", till.ListTillSessionsHandler())

	// Libro de movimientos
	api.Post("/movements", ledger.RecordMovementHandler(ledgerSvc))
	api.Get("/movements", ledger.ListMovementsHandler())
	api.Post("/movements/:id/validate",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		ledger.ValidateMovementHandler(ledgerSvc))
	api.Put("/movements/:id", ledger.UpdateMovementHandler(ledgerSvc))
	api.Delete("/movements/:id",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		ledger.DeleteMovementHandler(ledgerSvc))

	// Pagos de póliza
	api.Post("/policy-payments", payments.CreatePolicyPaymentHandler())
	api.Get("/policy-payments", payments.ListPolicyPaymentsHandler())
	api.Post("/policy-payments/:id/validate",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		payments.ValidatePolicyPaymentHandler(repo))
	api.Post("/policy-payments/:id/cancel",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		payments.CancelPolicyPaymentHandler(repo))

	// Cortes: usuario, caja chica, caja general
	recGroup := api.Group("/reconciliations")
	recGroup.Get("/user/preview", reconcile.PreviewUserHandler(reconSvc))
	recGroup.Get("/user", reconcile.ListUserReconciliationsHandler())
	recGroup.Post("/user", reconcile.CloseUserHandler(reconSvc))
	recGroup.Post("/user/:id/cancel",
		auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin),
		reconcile.CancelUserHandler(reconSvc))
	recGroup.Get("/user/:id", reconcile.GetUserReconciliationHandler())

	supervisorUp := auth.RequireRole(models.RoleSupervisor, models.RoleSuperAdmin)
	recGroup.Get("/petty-cash/preview", supervisorUp, reconcile.PreviewPettyCashHandler(reconSvc))
	recGroup.Get("/petty-cash", reconcile.ListPettyCashClosesHandler())
	recGroup.Post("/petty-cash", supervisorUp, reconcile.ClosePettyCashHandler(reconSvc))
	recGroup.Post("/petty-cash/:id/cancel", supervisorUp, reconcile.CancelPettyCashHandler(reconSvc))
	recGroup.Get("/petty-cash/:id", reconcile.GetPettyCashCloseHandler())

	recGroup.Get("/general-cash/preview", supervisorUp, reconcile.PreviewGeneralCashHandler(reconSvc))
	recGroup.Get("/general-cash", reconcile.ListGeneralCashClosesHandler())
	recGroup.Post("/general-cash", supervisorUp, reconcile.CloseGeneralCashHandler(reconSvc))
	recGroup.Post("/general-cash/:id/cancel", supervisorUp, reconcile.CancelGeneralCashHandler(reconSvc))
	recGroup.Get("/general-cash/:id", reconcile.GetGeneralCashCloseHandler())

	// Códigos de autorización para cancelaciones
	api.Post("/auth-codes",
		auth.RequireRole(models.RoleSuperAdmin),
		authcode.IssueHandler(issuer))

	// Bitácora
	api.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Printf("Servidor escuchando en el puerto %s", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatalf("[FATAL] No se pudo iniciar el servidor: %v", err)
	}
}
