package database

import (
	"log"

	"seguros-backend/internal/config"
	"seguros-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("No se pudo conectar a la base de datos: %v", err)
	}

	err = DB.AutoMigrate(
		&models.Branch{},
		&models.User{},
		&models.TillSession{},
		&models.Movement{},
		&models.PolicyPayment{},
		&models.UserReconciliation{},
		&models.PettyCashClose{},
		&models.GeneralCashClose{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("Error en AutoMigrate: %v", err)
	}

	// Unicidad por (nivel, ámbito, día) sobre cortes no cancelados. Se exige
	// en la base y no solo en la aplicación: dos Close concurrentes para la
	// misma ventana no deben poder confirmar ambos.
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_user_recs_cashier_day
			ON user_reconciliations (cashier_id, day) WHERE status <> 'cancelled'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_petty_closes_branch_day
			ON petty_cash_closes (branch_id, day) WHERE status <> 'cancelled'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_general_closes_branch_day
			ON general_cash_closes (COALESCE(branch_id, 0), day) WHERE status <> 'cancelled'`,
		// una sola sesión abierta por cajero
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_till_sessions_open_cashier
			ON till_sessions (cashier_id) WHERE status = 'open'`,
	}
	for _, idx := range indexes {
		if err := DB.Exec(idx).Error; err != nil {
			log.Fatalf("No se pudo crear el índice de unicidad: %v", err)
		}
	}

	log.Println("Conexión a base de datos lista. Migración completada.")
}
