// Package reconcile implementa los tres niveles de corte de custodia de
// efectivo: corte de usuario (cajero), corte de caja chica (sucursal) y
// corte de caja general. Cada Close recalcula su ventana y sus agregados en
// el servidor dentro de una transacción; jamás confía en totales del cliente.
package reconcile

import (
	"context"
	"errors"
	"time"

	"seguros-backend/internal/apperr"
	"seguros-backend/internal/authcode"
	"seguros-backend/internal/store"
)

type Service struct {
	repo  store.Repository
	codes *authcode.Issuer
	now   func() time.Time
}

func New(repo store.Repository, codes *authcode.Issuer, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, codes: codes, now: now}
}

const (
	EntityUserReconciliation = "user_reconciliation"
	EntityPettyCashClose     = "petty_cash_close"
	EntityGeneralCashClose   = "general_cash_close"
)

// actorName resuelve el nombre para la bitácora; si el usuario no existe se
// registra vacío en lugar de fallar la operación.
func (s *Service) actorName(ctx context.Context, repo store.Repository, actorID uint) string {
	u, err := repo.GetUser(ctx, actorID)
	if err != nil {
		return ""
	}
	return u.Name
}

func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, msg)
	}
	return err
}
