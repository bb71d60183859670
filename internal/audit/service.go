package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"seguros-backend/internal/database"
	"seguros-backend/internal/models"
	"seguros-backend/internal/store"
)

type LogOptions struct {
	BranchID    *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	// Motivo obligatorio en delete y cancel
	Reason string
	Before any
	After  any
}

// Entry arma el renglón de bitácora con el antes/después serializado.
func Entry(opts LogOptions) *models.AuditLog {
	// jsonb necesita "null" y no cadena vacía
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	return &models.AuditLog{
		BranchID:    opts.BranchID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		Reason:      opts.Reason,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}
}

// Write registra en bitácora a través del repositorio; dentro de una
// transacción el renglón confirma o se revierte junto con la operación.
func Write(ctx context.Context, repo store.Repository, opts LogOptions) error {
	if err := repo.CreateAuditLog(ctx, Entry(opts)); err != nil {
		return fmt.Errorf("no se pudo escribir la bitácora: %w", err)
	}
	return nil
}

// WriteLog escribe directo con la conexión global; lo usan los handlers CRUD
// que no pasan por el repositorio.
func WriteLog(opts LogOptions) error {
	if err := database.DB.Create(Entry(opts)).Error; err != nil {
		return fmt.Errorf("no se pudo escribir la bitácora: %w", err)
	}
	return nil
}
