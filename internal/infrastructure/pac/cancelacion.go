package pac

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/evalenzup/facturacion-core/internal/domain"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// SolicitudCancelacion datos de la petición de cancelación de un CFDI timbrado.
type SolicitudCancelacion struct {
	EmisorRFC        string
	UUID             string
	Motivo           string // "01".."04"
	FolioSustitucion string // UUID sustituto; obligatorio solo con motivo "01"
}

// Acuse acuse del PAC a la solicitud de cancelación. La aceptación queda
// encolada ante el SAT: no es prueba de cancelación definitiva.
type Acuse struct {
	Codigo  string
	Mensaje string
}

type requestCancelacion struct {
	XMLName          xml.Name `xml:"requestCancelaCFDI"`
	UserID           string   `xml:"UserID"`
	UserPass         string   `xml:"UserPass"`
	EmisorRFC        string   `xml:"emisorRFC"`
	UUID             string   `xml:"uuid"`
	Motivo           string   `xml:"Motivo"`
	FolioSustitucion string   `xml:"FolioSustitucion,omitempty"`
}

type envelopeCancelacion struct {
	Acuse *acuseCancelacion `xml:"respuestaCancelacion"`
	Fault *faultPAC         `xml:"fault"`
}

type acuseCancelacion struct {
	Code    string `xml:"code"`
	Message string `xml:"message"`
}

// Cancelar solicita la cancelación de un CFDI por UUID. Valida el motivo
// contra el catálogo y la regla del folio sustituto antes de tocar la red.
// Un fault del PAC se expone textual, nunca se sintetiza como éxito.
func (c *Client) Cancelar(ctx context.Context, sol SolicitudCancelacion) (*Acuse, error) {
	if err := validarSolicitud(sol); err != nil {
		return nil, err
	}

	req := requestCancelacion{
		UserID:           c.cfg.UserID,
		UserPass:         c.cfg.UserPass,
		EmisorRFC:        sol.EmisorRFC,
		UUID:             sol.UUID,
		Motivo:           sol.Motivo,
		FolioSustitucion: sol.FolioSustitucion,
	}
	payload, err := xml.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cancelación: serializar envelope: %w", err)
	}

	rawBody, err := c.post(ctx, "cancelacion", c.cfg.CancelacionURL, payload)
	if err != nil {
		return nil, err
	}

	var env envelopeCancelacion
	if err := xml.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("%w: respuesta de cancelación no parseable: %v", domain.ErrProtocolViolation, err)
	}
	if env.Fault != nil {
		return nil, &domain.PACFault{Code: env.Fault.Code, Description: env.Fault.Description}
	}
	if env.Acuse == nil {
		return nil, fmt.Errorf("%w: respuesta sin fault y sin acuse de cancelación", domain.ErrProtocolViolation)
	}
	return &Acuse{Codigo: env.Acuse.Code, Mensaje: env.Acuse.Message}, nil
}

func validarSolicitud(sol SolicitudCancelacion) error {
	if sol.UUID == "" {
		return fmt.Errorf("%w: cancelación sin UUID", domain.ErrValidation)
	}
	if !pkgcfdi.ValidCancellationReasons[sol.Motivo] {
		return fmt.Errorf("%w: motivo de cancelación %q fuera de catálogo", domain.ErrValidation, sol.Motivo)
	}
	if sol.Motivo == pkgcfdi.MotivoConRelacion && sol.FolioSustitucion == "" {
		return fmt.Errorf("%w: el motivo 01 (sustitución) exige FolioSustitucion", domain.ErrValidation)
	}
	if sol.Motivo != pkgcfdi.MotivoConRelacion && sol.FolioSustitucion != "" {
		return fmt.Errorf("%w: FolioSustitucion solo procede con motivo 01", domain.ErrValidation)
	}
	return nil
}
