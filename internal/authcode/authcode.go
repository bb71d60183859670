// Package authcode emite y consume los códigos de un solo uso que exigen las
// cancelaciones de cortes. El almacén es intercambiable: memoria para una
// sola instancia, Redis con TTL para despliegues con más de un proceso.
package authcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"seguros-backend/internal/apperr"
)

type Store interface {
	Put(ctx context.Context, targetID, code string) error
	// Take valida y elimina en un solo paso: la primera validación exitosa
	// consume el código.
	Take(ctx context.Context, targetID, code string) (bool, error)
}

type Issuer struct {
	store Store
}

func NewIssuer(store Store) *Issuer {
	return &Issuer{store: store}
}

// TargetID arma la llave del código: tipo de entidad + id.
func TargetID(entityType string, entityID uint) string {
	return fmt.Sprintf("%s:%d", entityType, entityID)
}

func (i *Issuer) Issue(ctx context.Context, targetID string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	if err := i.store.Put(ctx, targetID, code); err != nil {
		return "", err
	}
	return code, nil
}

func (i *Issuer) Consume(ctx context.Context, targetID, code string) error {
	ok, err := i.store.Take(ctx, targetID, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.Unauthorized, "Código de autorización inválido o ya utilizado")
	}
	return nil
}
