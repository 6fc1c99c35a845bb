// Package repository define los puertos de persistencia del dominio.
package repository

import (
	"context"

	"github.com/evalenzup/facturacion-core/internal/domain/entity"
)

// ComprobanteRepository persistencia del ciclo de vida del comprobante.
// Las transiciones de estado son atómicas: un solo UPDATE condicionado al
// estado de origen; cero filas afectadas significa transición inválida.
type ComprobanteRepository interface {
	// Create persiste un comprobante en estado DRAFT.
	Create(ctx context.Context, c *entity.Comprobante) error

	// GetByID carga el comprobante completo. ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*entity.Comprobante, error)

	// GuardarSellado persiste folio, fecha acotada, importes recalculados y
	// campos de sello del comprobante aún en DRAFT.
	GuardarSellado(ctx context.Context, c *entity.Comprobante) error

	// MergeTimbre funde el timbre y las rutas de artefactos y transiciona
	// DRAFT → TIMBRADO en un solo UPDATE. ErrEstadoInvalido si el comprobante
	// no estaba en DRAFT.
	MergeTimbre(ctx context.Context, id string, timbre *entity.Timbre, xmlPath, pdfPath string) error

	// ResetADraft es la operación administrativa de recuperación: limpia todos
	// los campos de timbre y regresa a DRAFT atómicamente.
	ResetADraft(ctx context.Context, id string) error

	// MarcarCancelado persiste el acuse y transiciona TIMBRADO → CANCELADO.
	MarcarCancelado(ctx context.Context, id string, canc *entity.Cancelacion) error
}
