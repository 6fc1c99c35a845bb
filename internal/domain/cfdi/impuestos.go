// Package cfdi: motor de impuestos y reglas de validación de comprobantes
// según el Anexo 20 del SAT (CFDI 4.0). Aritmética decimal exacta; el redondeo
// ocurre únicamente al serializar (importes a 2 decimales, tasas y cantidades a 6).

package cfdi

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// Totales agrupa los totales del documento calculados desde los conceptos.
type Totales struct {
	SubTotal  decimal.Decimal // Σ importes de concepto (sin descuento)
	Descuento decimal.Decimal // Σ descuentos de concepto
	Total     decimal.Decimal // SubTotal − Descuento + Σ traslados − Σ retenciones
	Resumen   entity.ResumenImpuestos
}

// TaxEngine calcula renglones de impuesto y totales. Función pura: sin I/O,
// recalcular con el mismo input produce exactamente el mismo resultado.
type TaxEngine struct{}

// NewTaxEngine crea el motor.
func NewTaxEngine() *TaxEngine {
	return &TaxEngine{}
}

// Calculate llena Importe, Base e Importe de impuesto de cada concepto y devuelve
// los totales del documento. Una base negativa (descuento mayor que el importe)
// es un error fatal de validación. Tasa cero o ausente nunca genera renglón.
func (e *TaxEngine) Calculate(conceptos []entity.Concepto) ([]entity.Concepto, *Totales, error) {
	if len(conceptos) == 0 {
		return nil, nil, fmt.Errorf("%w: el comprobante debe tener al menos un concepto", domain.ErrValidation)
	}

	out := make([]entity.Concepto, len(conceptos))
	totales := &Totales{
		SubTotal:  decimal.Zero,
		Descuento: decimal.Zero,
	}

	// Acumuladores por (tipo, impuesto, tasa)
	type claveRenglon struct {
		tipo     string
		impuesto string
		tasa     string
	}
	acc := map[claveRenglon]*entity.RenglonImpuesto{}

	for i, c := range conceptos {
		if c.Cantidad.IsNegative() || c.ValorUnitario.IsNegative() {
			return nil, nil, fmt.Errorf("%w: concepto %d con cantidad o valor unitario negativo", domain.ErrValidation, i+1)
		}
		c.Importe = c.Cantidad.Mul(c.ValorUnitario)
		base := c.Importe.Sub(c.Descuento)
		if base.IsNegative() {
			return nil, nil, fmt.Errorf("%w: concepto %d con descuento (%s) mayor que el importe (%s)",
				domain.ErrValidation, i+1, c.Descuento.String(), c.Importe.String())
		}

		impuestos := make([]entity.ImpuestoConcepto, 0, len(c.Impuestos))
		for _, imp := range c.Impuestos {
			if imp.Tipo != entity.ImpuestoTraslado && imp.Tipo != entity.ImpuestoRetencion {
				return nil, nil, fmt.Errorf("%w: concepto %d con tipo de impuesto desconocido %q", domain.ErrValidation, i+1, imp.Tipo)
			}
			// Tasa cero o ausente: no se declara renglón (Anexo 20, nodos opcionales).
			if imp.Tasa.IsZero() || imp.TipoFactor == pkgcfdi.TipoFactorExento {
				continue
			}
			if imp.Tasa.IsNegative() {
				return nil, nil, fmt.Errorf("%w: concepto %d con tasa negativa %s", domain.ErrValidation, i+1, imp.Tasa.String())
			}
			imp.Base = base
			imp.Importe = base.Mul(imp.Tasa)
			if imp.TipoFactor == "" {
				imp.TipoFactor = pkgcfdi.TipoFactorTasa
			}
			impuestos = append(impuestos, imp)

			k := claveRenglon{tipo: imp.Tipo, impuesto: imp.Impuesto, tasa: imp.Tasa.StringFixed(6)}
			if r, ok := acc[k]; ok {
				r.Base = r.Base.Add(imp.Base)
				r.Importe = r.Importe.Add(imp.Importe)
			} else {
				acc[k] = &entity.RenglonImpuesto{
					Impuesto:   imp.Impuesto,
					TipoFactor: imp.TipoFactor,
					Tasa:       imp.Tasa,
					Base:       imp.Base,
					Importe:    imp.Importe,
				}
			}
		}
		c.Impuestos = impuestos
		out[i] = c

		totales.SubTotal = totales.SubTotal.Add(c.Importe)
		totales.Descuento = totales.Descuento.Add(c.Descuento)
	}

	// Orden determinista del resumen: por impuesto y luego por tasa.
	for k, r := range acc {
		switch k.tipo {
		case entity.ImpuestoTraslado:
			totales.Resumen.Traslados = append(totales.Resumen.Traslados, *r)
		case entity.ImpuestoRetencion:
			totales.Resumen.Retenciones = append(totales.Resumen.Retenciones, *r)
		}
	}
	ordenar := func(rs []entity.RenglonImpuesto) {
		sort.Slice(rs, func(i, j int) bool {
			if rs[i].Impuesto != rs[j].Impuesto {
				return rs[i].Impuesto < rs[j].Impuesto
			}
			return rs[i].Tasa.LessThan(rs[j].Tasa)
		})
	}
	ordenar(totales.Resumen.Traslados)
	ordenar(totales.Resumen.Retenciones)

	for _, r := range totales.Resumen.Traslados {
		totales.Resumen.TotalTrasladados = totales.Resumen.TotalTrasladados.Add(r.Importe)
	}
	for _, r := range totales.Resumen.Retenciones {
		totales.Resumen.TotalRetenidos = totales.Resumen.TotalRetenidos.Add(r.Importe)
	}

	totales.Total = totales.SubTotal.
		Sub(totales.Descuento).
		Add(totales.Resumen.TotalTrasladados).
		Sub(totales.Resumen.TotalRetenidos)

	return out, totales, nil
}

// FormatMoney formatea importes monetarios: 2 decimales, redondeo half-up.
func FormatMoney(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// FormatRate formatea tasas y cantidades: 6 decimales.
func FormatRate(d decimal.Decimal) string {
	return d.Round(6).StringFixed(6)
}
