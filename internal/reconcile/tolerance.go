package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"seguros-backend/internal/apperr"
)

var (
	// un centavo de tolerancia por redondeo
	centTolerance = decimal.NewFromFloat(0.01)
	// arriba del 5% del esperado la nota se escala
	escalationRate = decimal.NewFromFloat(0.05)
)

const escalationNoteLen = 15

// CheckDiscrepancyNote aplica la política de tolerancia: hasta un centavo de
// diferencia no se exige nota; más de un centavo exige nota; más del 5% del
// esperado exige además una nota de al menos 15 caracteres. Regresa true
// cuando la diferencia rebasó el 5% (el llamador la registra como
// advertencia, no bloquea).
func CheckDiscrepancyNote(counted, expected decimal.Decimal, note string) (bool, error) {
	absDiff := counted.Round(2).Sub(expected.Round(2)).Abs()
	if absDiff.LessThanOrEqual(centTolerance) {
		return false, nil
	}

	note = strings.TrimSpace(note)
	if note == "" {
		return false, apperr.New(apperr.InvalidArgument,
			"La diferencia entre contado y esperado requiere una nota explicativa")
	}

	if absDiff.GreaterThan(expected.Abs().Mul(escalationRate)) {
		if len([]rune(note)) < escalationNoteLen {
			return false, apperr.Newf(apperr.InvalidArgument,
				"La diferencia excede el 5%% del esperado: la nota debe tener al menos %d caracteres", escalationNoteLen)
		}
		return true, nil
	}

	return false, nil
}
