package cfdi_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	infracfdi "github.com/evalenzup/facturacion-core/internal/infrastructure/cfdi"
)

// doctoIVA16 referencia una factura PPD de 1160.00 (base 1000.00, IVA 160.00).
func doctoIVA16(impPagado float64, parcialidad int, saldoAnt float64) entity.DoctoRelacionado {
	return entity.DoctoRelacionado{
		UUID:             "11111111-2222-3333-4444-555555555555",
		Serie:            "A",
		Folio:            "7",
		Moneda:           "MXN",
		NumParcialidad:   parcialidad,
		ImpSaldoAnt:      decimal.NewFromFloat(saldoAnt),
		ImpPagado:        decimal.NewFromFloat(impPagado),
		ImpSaldoInsoluto: decimal.NewFromFloat(saldoAnt - impPagado),
		ObjetoImp:        "02",
		FacturaTotal:     decimal.NewFromFloat(1160.00),
		FacturaImpuestos: []entity.ImpuestoConcepto{{
			Tipo:       entity.ImpuestoTraslado,
			Impuesto:   "002",
			TipoFactor: "Tasa",
			Tasa:       decimal.NewFromFloat(0.16),
			Base:       decimal.NewFromFloat(1000.00),
			Importe:    decimal.NewFromFloat(160.00),
		}},
	}
}

func complementoDePago(pagos []entity.Pago) *entity.Comprobante {
	return &entity.Comprobante{
		ID:              "p1",
		Tipo:            entity.TipoPago,
		Version:         entity.VersionCFDI40,
		Serie:           "P",
		Folio:           3,
		Fecha:           time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		EmisorRFC:       "EKU9003173C9",
		EmisorNombre:    "ESCUELA KEMPER URGATE",
		RegimenFiscal:   "601",
		ReceptorRFC:     "MISC491214B86",
		ReceptorNombre:  "MARCOS ISLAS",
		ReceptorCP:      "06500",
		ReceptorRegimen: "612",
		LugarExpedicion: "06500",
		Pagos:           pagos,
		Estado:          entity.EstadoDraft,
	}
}

func TestBuildPago_CabeceraFija(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := complementoDePago([]entity.Pago{{
		FechaPago:    time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC),
		FormaPago:    "03",
		Moneda:       "MXN",
		Monto:        decimal.NewFromFloat(580.00),
		Relacionados: []entity.DoctoRelacionado{doctoIVA16(580.00, 1, 1160.00)},
	}})

	xmlBytes, err := builder.Build(c, time.Now())
	require.NoError(t, err)

	root := parseXML(t, xmlBytes)
	assert.Equal(t, "P", root.SelectAttrValue("TipoDeComprobante", ""))
	assert.Equal(t, "0", root.SelectAttrValue("SubTotal", ""))
	assert.Equal(t, "0", root.SelectAttrValue("Total", ""))
	assert.Equal(t, "XXX", root.SelectAttrValue("Moneda", ""))
	assert.Nil(t, root.SelectAttr("MetodoPago"))

	r := root.SelectElement("cfdi:Receptor")
	require.NotNil(t, r)
	assert.Equal(t, "CP01", r.SelectAttrValue("UsoCFDI", ""))

	con := root.FindElement("./cfdi:Conceptos/cfdi:Concepto")
	require.NotNil(t, con)
	assert.Equal(t, "84111506", con.SelectAttrValue("ClaveProdServ", ""))
	assert.Equal(t, "ACT", con.SelectAttrValue("ClaveUnidad", ""))
	assert.Equal(t, "0", con.SelectAttrValue("ValorUnitario", ""))
}

// TestBuildPago_Prorrateo: pagar la mitad de la factura arrastra la mitad de
// sus impuestos, redondeados a centavos a nivel de la referencia.
func TestBuildPago_Prorrateo(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := complementoDePago([]entity.Pago{{
		FechaPago:    time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC),
		FormaPago:    "03",
		Moneda:       "MXN",
		Monto:        decimal.NewFromFloat(580.00),
		Relacionados: []entity.DoctoRelacionado{doctoIVA16(580.00, 1, 1160.00)},
	}})

	xmlBytes, err := builder.Build(c, time.Now())
	require.NoError(t, err)
	root := parseXML(t, xmlBytes)

	tras := root.FindElement("./cfdi:Complemento/pago20:Pagos/pago20:Pago/pago20:DoctoRelacionado/pago20:ImpuestosDR/pago20:TrasladosDR/pago20:TrasladoDR")
	require.NotNil(t, tras)
	assert.Equal(t, "500.00", tras.SelectAttrValue("BaseDR", ""))
	assert.Equal(t, "80.00", tras.SelectAttrValue("ImporteDR", ""))
	assert.Equal(t, "0.160000", tras.SelectAttrValue("TasaOCuotaDR", ""))

	trasP := root.FindElement("./cfdi:Complemento/pago20:Pagos/pago20:Pago/pago20:ImpuestosP/pago20:TrasladosP/pago20:TrasladoP")
	require.NotNil(t, trasP)
	assert.Equal(t, "500.00", trasP.SelectAttrValue("BaseP", ""))
	assert.Equal(t, "80.00", trasP.SelectAttrValue("ImporteP", ""))

	totales := root.FindElement("./cfdi:Complemento/pago20:Pagos/pago20:Totales")
	require.NotNil(t, totales)
	assert.Equal(t, "500.00", totales.SelectAttrValue("TotalTrasladosBaseIVA16", ""))
	assert.Equal(t, "80.00", totales.SelectAttrValue("TotalTrasladosImpuestoIVA16", ""))
	assert.Equal(t, "580.00", totales.SelectAttrValue("MontoTotalPagos", ""))
}

// TestBuildPago_RemanenteAlUltimo: un desajuste de centavos dentro de la
// tolerancia se carga al último documento relacionado.
func TestBuildPago_RemanenteAlUltimo(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := complementoDePago([]entity.Pago{{
		FechaPago: time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC),
		FormaPago: "03",
		Moneda:    "MXN",
		Monto:     decimal.NewFromFloat(100.00),
		Relacionados: []entity.DoctoRelacionado{
			doctoIVA16(50.00, 1, 1160.00),
			doctoIVA16(49.97, 2, 1110.00), // suma 99.97, faltan 0.03
		},
	}})

	xmlBytes, err := builder.Build(c, time.Now())
	require.NoError(t, err)
	root := parseXML(t, xmlBytes)

	drs := root.FindElements("./cfdi:Complemento/pago20:Pagos/pago20:Pago/pago20:DoctoRelacionado")
	require.Len(t, drs, 2)
	assert.Equal(t, "50.00", drs[0].SelectAttrValue("ImpPagado", ""))
	assert.Equal(t, "50.00", drs[1].SelectAttrValue("ImpPagado", ""))
	assert.Equal(t, "1060.00", drs[1].SelectAttrValue("ImpSaldoInsoluto", ""))
}

// TestBuildPago_RemanenteFueraDeTolerancia: diferencias grandes jamás se
// corrigen en silencio.
func TestBuildPago_RemanenteFueraDeTolerancia(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := complementoDePago([]entity.Pago{{
		FechaPago:    time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC),
		FormaPago:    "03",
		Moneda:       "MXN",
		Monto:        decimal.NewFromFloat(100.00),
		Relacionados: []entity.DoctoRelacionado{doctoIVA16(90.00, 1, 1160.00)},
	}})

	_, err := builder.Build(c, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuildPago_SinRelacionadosEsFatal(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := complementoDePago([]entity.Pago{{
		FechaPago: time.Now(),
		FormaPago: "03",
		Monto:     decimal.NewFromFloat(100.00),
	}})

	_, err := builder.Build(c, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
