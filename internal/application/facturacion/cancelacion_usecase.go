package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	"github.com/evalenzup/facturacion-core/internal/domain/repository"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/pac"
	"github.com/evalenzup/facturacion-core/pkg/logger"
)

// CancelacionUseCase solicita la cancelación de un comprobante timbrado y
// persiste el acuse. La aceptación del PAC queda encolada ante el SAT: el
// estado CANCELADO registra la solicitud aceptada, no la resolución final.
type CancelacionUseCase struct {
	comprobantes repository.ComprobanteRepository
	cancelador   pac.Cancelador
	log          *logger.Logger
}

// NewCancelacionUseCase construye el caso de uso.
func NewCancelacionUseCase(
	comprobantes repository.ComprobanteRepository,
	cancelador pac.Cancelador,
	log *logger.Logger,
) *CancelacionUseCase {
	return &CancelacionUseCase{comprobantes: comprobantes, cancelador: cancelador, log: log}
}

// Cancelar solicita la cancelación del comprobante por su ID interno.
// motivo es el código del catálogo ("01".."04"); folioSustitucion solo con "01".
func (u *CancelacionUseCase) Cancelar(ctx context.Context, comprobanteID, motivo, folioSustitucion string) (*pac.Acuse, error) {
	c, err := u.comprobantes.GetByID(ctx, comprobanteID)
	if err != nil {
		return nil, err
	}
	if !c.EstaTimbrado() {
		return nil, fmt.Errorf("%w: cancelar exige TIMBRADO, el comprobante está %s", domain.ErrEstadoInvalido, c.Estado)
	}

	acuse, err := u.cancelador.Cancelar(ctx, pac.SolicitudCancelacion{
		EmisorRFC:        c.EmisorRFC,
		UUID:             c.Timbre.UUID,
		Motivo:           motivo,
		FolioSustitucion: folioSustitucion,
	})
	if err != nil {
		u.log.Error().Err(err).
			Str("comprobante_id", comprobanteID).
			Str("uuid", c.Timbre.UUID).
			Msg("solicitud de cancelación rechazada")
		return nil, err
	}

	canc := &entity.Cancelacion{
		Motivo:           motivo,
		FolioSustitucion: folioSustitucion,
		AcuseCodigo:      acuse.Codigo,
		AcuseMensaje:     acuse.Mensaje,
		FechaSolicitud:   time.Now(),
	}
	if err := u.comprobantes.MarcarCancelado(ctx, comprobanteID, canc); err != nil {
		return nil, err
	}

	u.log.Info().
		Str("comprobante_id", comprobanteID).
		Str("uuid", c.Timbre.UUID).
		Str("motivo", motivo).
		Str("acuse_codigo", acuse.Codigo).
		Msg("cancelación solicitada; resolución del SAT pendiente")
	return acuse, nil
}
