package facturacion

import (
	"context"
	"errors"
	"fmt"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/repository"
	"github.com/evalenzup/facturacion-core/pkg/logger"
)

// FolioSequencer asigna el siguiente folio por (emisor, serie).
//
// Garantías: estrictamente creciente, sin huecos entre llamadores concurrentes
// y sin reúso aunque se borren comprobantes, porque el contador nunca
// retrocede. La lectura exclusiva (candado de fila) y la escritura ocurren en
// la misma transacción.
type FolioSequencer struct {
	tx  TxRunner
	log *logger.Logger
}

// NewFolioSequencer construye el secuenciador.
func NewFolioSequencer(tx TxRunner, log *logger.Logger) *FolioSequencer {
	return &FolioSequencer{tx: tx, log: log}
}

// Next devuelve el siguiente folio para el par. Si la persistencia detecta una
// carrera (el contador aún no existía y otro llamador lo creó primero),
// recalcula y reintenta exactamente una vez; una segunda derrota es fatal.
func (s *FolioSequencer) Next(ctx context.Context, emisorRFC, serie string) (int64, error) {
	folio, err := s.asignar(ctx, emisorRFC, serie)
	if err == nil {
		return folio, nil
	}
	if !errors.Is(err, domain.ErrFolioConflict) {
		return 0, err
	}

	s.log.Warn().
		Str("emisor_rfc", emisorRFC).
		Str("serie", serie).
		Msg("carrera al crear el contador de folios; reintento único")

	folio, err = s.asignar(ctx, emisorRFC, serie)
	if err != nil {
		if errors.Is(err, domain.ErrFolioConflict) {
			return 0, fmt.Errorf("asignación de folio (%s, %s) perdió la carrera dos veces: %w", emisorRFC, serie, err)
		}
		return 0, err
	}
	return folio, nil
}

func (s *FolioSequencer) asignar(ctx context.Context, emisorRFC, serie string) (int64, error) {
	var folio int64
	err := s.tx.Run(ctx, func(_ repository.ComprobanteRepository, folios repository.FolioRepository) error {
		ultimo, _, err := folios.UltimoForUpdate(ctx, emisorRFC, serie)
		if err != nil {
			return err
		}
		folio = ultimo + 1
		return folios.Guardar(ctx, emisorRFC, serie, folio)
	})
	if err != nil {
		return 0, err
	}
	return folio, nil
}
