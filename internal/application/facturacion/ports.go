// Package facturacion orquesta el pipeline de timbrado y cancelación:
// validación → impuestos → folio → ensamblado → cadena → sello → PAC →
// persistencia del timbre y artefactos.
package facturacion

import (
	"context"

	"github.com/evalenzup/facturacion-core/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción con los repositorios
// atados a ella. El contador de folios solo debe tocarse por esta vía.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		comprobantes repository.ComprobanteRepository,
		folios repository.FolioRepository,
	) error) error
}

// ArtifactStore persiste artefactos del timbrado y devuelve su ruta.
type ArtifactStore interface {
	Guardar(emisorRFC, serie string, folio int64, uuid, ext string, data []byte) (string, error)
}
