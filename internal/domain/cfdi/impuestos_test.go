package cfdi_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/cfdi"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// TestCalculate_VectorIVA16 es el vector de referencia del motor de impuestos:
//
//	cantidad=2, valorUnitario=100.00, descuento=0, IVA 16%
//	⇒ base=200.00, IVA=32.00, subtotal=200.00, total=232.00
//
// Si alguien altera la aritmética o el orden de agregación, este test falla
// antes de que un comprobante mal totalizado llegue al PAC.
// ──────────────────────────────────────────────────────────────────────────────
func TestCalculate_VectorIVA16(t *testing.T) {
	engine := cfdi.NewTaxEngine()

	conceptos, totales, err := engine.Calculate([]entity.Concepto{lineaIVA16()})
	require.NoError(t, err)
	require.Len(t, conceptos, 1)
	require.Len(t, conceptos[0].Impuestos, 1)

	imp := conceptos[0].Impuestos[0]
	assert.Equal(t, "200.00", cfdi.FormatMoney(imp.Base), "la base debe ser cantidad*valor-descuento")
	assert.Equal(t, "32.00", cfdi.FormatMoney(imp.Importe), "IVA 16% sobre 200.00 debe ser 32.00")

	assert.Equal(t, "200.00", cfdi.FormatMoney(totales.SubTotal))
	assert.Equal(t, "32.00", cfdi.FormatMoney(totales.Resumen.TotalTrasladados))
	assert.Equal(t, "232.00", cfdi.FormatMoney(totales.Total), "total = subtotal - descuento + traslados - retenciones")
}

// TestCalculate_Idempotente verifica que recalcular con el mismo input produce
// resultados byte-idénticos tras el formateo de serialización.
func TestCalculate_Idempotente(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	input := []entity.Concepto{lineaIVA16(), lineaConRetencion()}

	_, t1, err1 := engine.Calculate(input)
	_, t2, err2 := engine.Calculate(input)
	require.NoError(t, err1)
	require.NoError(t, err2)

	assert.Equal(t, cfdi.FormatMoney(t1.Total), cfdi.FormatMoney(t2.Total))
	assert.Equal(t, cfdi.FormatMoney(t1.Resumen.TotalTrasladados), cfdi.FormatMoney(t2.Resumen.TotalTrasladados))
	assert.Equal(t, cfdi.FormatMoney(t1.Resumen.TotalRetenidos), cfdi.FormatMoney(t2.Resumen.TotalRetenidos))
	require.Equal(t, len(t1.Resumen.Traslados), len(t2.Resumen.Traslados))
	for i := range t1.Resumen.Traslados {
		assert.True(t, t1.Resumen.Traslados[i].Importe.Equal(t2.Resumen.Traslados[i].Importe))
	}
}

// TestCalculate_RetencionRestaDelTotal verifica el signo de las retenciones.
func TestCalculate_RetencionRestaDelTotal(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	_, totales, err := engine.Calculate([]entity.Concepto{lineaConRetencion()})
	require.NoError(t, err)

	// base 1000, IVA 16% = 160, retención ISR 10% = 100 ⇒ total 1060
	assert.Equal(t, "1000.00", cfdi.FormatMoney(totales.SubTotal))
	assert.Equal(t, "160.00", cfdi.FormatMoney(totales.Resumen.TotalTrasladados))
	assert.Equal(t, "100.00", cfdi.FormatMoney(totales.Resumen.TotalRetenidos))
	assert.Equal(t, "1060.00", cfdi.FormatMoney(totales.Total))
}

// TestCalculate_AgrupaPorImpuestoYTasa verifica la agregación (impuesto, tasa)
// a nivel documento: dos conceptos con IVA 16% producen UN solo renglón.
func TestCalculate_AgrupaPorImpuestoYTasa(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	_, totales, err := engine.Calculate([]entity.Concepto{lineaIVA16(), lineaIVA16()})
	require.NoError(t, err)

	require.Len(t, totales.Resumen.Traslados, 1, "misma (impuesto, tasa) debe agruparse en un renglón")
	assert.Equal(t, "400.00", cfdi.FormatMoney(totales.Resumen.Traslados[0].Base))
	assert.Equal(t, "64.00", cfdi.FormatMoney(totales.Resumen.Traslados[0].Importe))
}

// TestCalculate_TasaCeroNoGeneraRenglon: tasa 0 o exento nunca produce renglón.
func TestCalculate_TasaCeroNoGeneraRenglon(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	c := lineaIVA16()
	c.Impuestos[0].Tasa = decimal.Zero

	conceptos, totales, err := engine.Calculate([]entity.Concepto{c})
	require.NoError(t, err)
	assert.Empty(t, conceptos[0].Impuestos)
	assert.Empty(t, totales.Resumen.Traslados)
	assert.Equal(t, "200.00", cfdi.FormatMoney(totales.Total))
}

// ── Errores de validación ─────────────────────────────────────────────────────

func TestCalculate_ErrorBaseNegativa(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	c := lineaIVA16()
	c.Descuento = decimal.NewFromInt(500) // mayor que el importe (200)

	_, _, err := engine.Calculate([]entity.Concepto{c})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation, "base negativa debe ser error de validación fatal")
}

func TestCalculate_ErrorSinConceptos(t *testing.T) {
	engine := cfdi.NewTaxEngine()
	_, _, err := engine.Calculate(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func lineaIVA16() entity.Concepto {
	return entity.Concepto{
		ClaveProdServ: "01010101",
		Cantidad:      decimal.NewFromInt(2),
		ClaveUnidad:   "H87",
		Descripcion:   "Producto de prueba",
		ValorUnitario: decimal.NewFromFloat(100.00),
		ObjetoImp:     "02",
		Impuestos: []entity.ImpuestoConcepto{
			{Tipo: entity.ImpuestoTraslado, Impuesto: "002", TipoFactor: "Tasa", Tasa: decimal.NewFromFloat(0.16)},
		},
	}
}

func lineaConRetencion() entity.Concepto {
	return entity.Concepto{
		ClaveProdServ: "80141600",
		Cantidad:      decimal.NewFromInt(1),
		ClaveUnidad:   "E48",
		Descripcion:   "Servicio profesional",
		ValorUnitario: decimal.NewFromInt(1000),
		ObjetoImp:     "02",
		Impuestos: []entity.ImpuestoConcepto{
			{Tipo: entity.ImpuestoTraslado, Impuesto: "002", TipoFactor: "Tasa", Tasa: decimal.NewFromFloat(0.16)},
			{Tipo: entity.ImpuestoRetencion, Impuesto: "001", TipoFactor: "Tasa", Tasa: decimal.NewFromFloat(0.10)},
		},
	}
}
