package cfdi

import (
	"errors"
	"fmt"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// ValidateComprobante valida la cabecera de un comprobante antes del ensamblado.
// Regla de método/forma de pago (tipo "I"):
//   - MetodoPago es obligatorio.
//   - PPD (pago diferido) exige OMITIR FormaPago; declararla es error fatal.
//   - PUE exige FormaPago; su ausencia es error fatal, nunca se asume un default.
func ValidateComprobante(c *entity.Comprobante) error {
	if c == nil {
		return fmt.Errorf("%w: comprobante nulo", domain.ErrValidation)
	}
	var errs []error

	if err := pkgcfdi.ValidateRFC(c.EmisorRFC); err != nil {
		errs = append(errs, fmt.Errorf("emisor: %w", err))
	}
	if err := pkgcfdi.ValidateRFC(c.ReceptorRFC); err != nil {
		errs = append(errs, fmt.Errorf("receptor: %w", err))
	}
	if c.LugarExpedicion == "" {
		errs = append(errs, errors.New("LugarExpedicion es obligatorio"))
	}

	switch c.Tipo {
	case entity.TipoIngreso:
		errs = append(errs, validarMetodoFormaPago(c)...)
		if len(c.Conceptos) == 0 {
			errs = append(errs, errors.New("la factura debe tener al menos un concepto"))
		}
	case entity.TipoPago:
		if len(c.Pagos) == 0 {
			errs = append(errs, errors.New("el complemento de pago debe tener al menos un bloque de pago"))
		}
		for i, p := range c.Pagos {
			if len(p.Relacionados) == 0 {
				errs = append(errs, fmt.Errorf("pago %d sin documentos relacionados", i+1))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("tipo de comprobante desconocido %q", c.Tipo))
	}

	// Factura global: receptor genérico exige InformacionGlobal completa.
	if c.ReceptorRFC == pkgcfdi.RFCPublicoGeneral {
		if c.GlobalInformacion == nil {
			errs = append(errs, errors.New("receptor público en general requiere InformacionGlobal"))
		} else {
			g := c.GlobalInformacion
			if g.Periodicidad == "" || g.Meses == "" || g.Anio == 0 {
				errs = append(errs, errors.New("InformacionGlobal incompleta (periodicidad, meses y año son obligatorios)"))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrValidation}, errs...)...)
	}
	return nil
}

func validarMetodoFormaPago(c *entity.Comprobante) []error {
	var errs []error
	switch c.MetodoPago {
	case "":
		errs = append(errs, errors.New("MetodoPago es obligatorio en comprobantes de ingreso"))
	case pkgcfdi.MetodoPagoPPD:
		if c.FormaPago != "" {
			errs = append(errs, fmt.Errorf("MetodoPago PPD exige omitir FormaPago (se recibió %q)", c.FormaPago))
		}
	case pkgcfdi.MetodoPagoPUE:
		if c.FormaPago == "" {
			errs = append(errs, errors.New("MetodoPago PUE exige FormaPago"))
		} else if !pkgcfdi.ValidPaymentFormCodes[c.FormaPago] {
			errs = append(errs, fmt.Errorf("FormaPago %q fuera de catálogo", c.FormaPago))
		}
	default:
		errs = append(errs, fmt.Errorf("MetodoPago %q fuera de catálogo", c.MetodoPago))
	}
	return errs
}
