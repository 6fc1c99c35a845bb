package cfdi_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalenzup/facturacion-core/internal/domain"
	domcfdi "github.com/evalenzup/facturacion-core/internal/domain/cfdi"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	infracfdi "github.com/evalenzup/facturacion-core/internal/infrastructure/cfdi"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/csd"
)

// facturaDePrueba arma una factura de ingreso válida con totales calculados.
func facturaDePrueba(t *testing.T) *entity.Comprobante {
	t.Helper()
	conceptos := []entity.Concepto{{
		ClaveProdServ: "01010101",
		Cantidad:      decimal.NewFromInt(2),
		ClaveUnidad:   "H87",
		Descripcion:   "Producto de prueba",
		ValorUnitario: decimal.NewFromFloat(100.00),
		ObjetoImp:     "02",
		Impuestos: []entity.ImpuestoConcepto{
			{Tipo: entity.ImpuestoTraslado, Impuesto: "002", TipoFactor: "Tasa", Tasa: decimal.NewFromFloat(0.16)},
		},
	}}
	calc, totales, err := domcfdi.NewTaxEngine().Calculate(conceptos)
	require.NoError(t, err)

	return &entity.Comprobante{
		ID:              "f1",
		Tipo:            entity.TipoIngreso,
		Version:         entity.VersionCFDI40,
		Serie:           "A",
		Folio:           42,
		Fecha:           time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		EmisorRFC:       "EKU9003173C9",
		EmisorNombre:    "ESCUELA KEMPER URGATE",
		RegimenFiscal:   "601",
		ReceptorRFC:     "MISC491214B86",
		ReceptorNombre:  "MARCOS ISLAS",
		ReceptorCP:      "06500",
		ReceptorRegimen: "612",
		UsoCFDI:         "G03",
		Moneda:          "MXN",
		LugarExpedicion: "06500",
		MetodoPago:      "PUE",
		FormaPago:       "01",
		Conceptos:       calc,
		Resumen:         totales.Resumen,
		SubTotal:        totales.SubTotal,
		Descuento:       totales.Descuento,
		Total:           totales.Total,
		Estado:          entity.EstadoDraft,
	}
}

func parseXML(t *testing.T, data []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

func TestBuild_CabeceraFactura(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	xmlBytes, err := builder.Build(facturaDePrueba(t), now)
	require.NoError(t, err)

	root := parseXML(t, xmlBytes)
	assert.Equal(t, "Comprobante", root.Tag)
	assert.Equal(t, "4.0", root.SelectAttrValue("Version", ""))
	assert.Equal(t, "A", root.SelectAttrValue("Serie", ""))
	assert.Equal(t, "42", root.SelectAttrValue("Folio", ""))
	assert.Equal(t, "200.00", root.SelectAttrValue("SubTotal", ""))
	assert.Equal(t, "232.00", root.SelectAttrValue("Total", ""))
	assert.Equal(t, "I", root.SelectAttrValue("TipoDeComprobante", ""))
	assert.Equal(t, "PUE", root.SelectAttrValue("MetodoPago", ""))
	assert.Equal(t, "01", root.SelectAttrValue("FormaPago", ""))

	emisor := root.SelectElement("cfdi:Emisor")
	require.NotNil(t, emisor)
	assert.Equal(t, "EKU9003173C9", emisor.SelectAttrValue("Rfc", ""))

	imp := root.SelectElement("cfdi:Impuestos")
	require.NotNil(t, imp, "debe existir resumen de impuestos a nivel documento")
	assert.Equal(t, "32.00", imp.SelectAttrValue("TotalImpuestosTrasladados", ""))
}

// TestBuild_FechaAcotada: la fecha de emisión nunca rebasa now-skew.
func TestBuild_FechaAcotada(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	c := facturaDePrueba(t)
	c.Fecha = now.Add(2 * time.Hour) // fechada en el futuro

	xmlBytes, err := builder.Build(c, now)
	require.NoError(t, err)

	root := parseXML(t, xmlBytes)
	fecha, err := time.ParseInLocation(infracfdi.FormatoFecha, root.SelectAttrValue("Fecha", ""), time.UTC)
	require.NoError(t, err)
	assert.False(t, fecha.After(now.Add(-infracfdi.FechaSkew)),
		"la fecha emitida no puede ser posterior a ahora menos el margen de seguridad")
}

// TestBuild_PPDOmiteFormaPago: con PPD el atributo FormaPago no debe existir.
func TestBuild_PPDOmiteFormaPago(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := facturaDePrueba(t)
	c.MetodoPago = "PPD"
	c.FormaPago = ""

	xmlBytes, err := builder.Build(c, time.Now())
	require.NoError(t, err)

	root := parseXML(t, xmlBytes)
	assert.Nil(t, root.SelectAttr("FormaPago"))
	assert.Equal(t, "PPD", root.SelectAttrValue("MetodoPago", ""))
}

// TestBuild_PPDConFormaPagoEsFatal: el builder nunca corrige en silencio.
func TestBuild_PPDConFormaPagoEsFatal(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := facturaDePrueba(t)
	c.MetodoPago = "PPD"
	c.FormaPago = "01"

	_, err := builder.Build(c, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// TestBuild_PublicoEnGeneral: receptor genérico con InformacionGlobal.
func TestBuild_PublicoEnGeneral(t *testing.T) {
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	c := facturaDePrueba(t)
	c.ReceptorRFC = "XAXX010101000"
	c.GlobalInformacion = &entity.InformacionGlobal{Periodicidad: "04", Meses: "08", Anio: 2026}

	xmlBytes, err := builder.Build(c, time.Now())
	require.NoError(t, err)

	root := parseXML(t, xmlBytes)
	g := root.SelectElement("cfdi:InformacionGlobal")
	require.NotNil(t, g)
	assert.Equal(t, "04", g.SelectAttrValue("Periodicidad", ""))
	assert.Equal(t, "2026", g.SelectAttrValue("Año", ""))

	r := root.SelectElement("cfdi:Receptor")
	require.NotNil(t, r)
	assert.Equal(t, "XAXX010101000", r.SelectAttrValue("Rfc", ""))
	assert.Equal(t, "PUBLICO EN GENERAL", r.SelectAttrValue("Nombre", ""))
	assert.Equal(t, "S01", r.SelectAttrValue("UsoCFDI", ""))
}

// ── helper compartido para pruebas de sellado ────────────────────────────────

// generarCSDPrueba emite un CSD autofirmado con serial de dígitos ASCII.
func generarCSDPrueba(t *testing.T) (*rsa.PrivateKey, *csd.Certificado) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: new(big.Int).SetBytes([]byte("30001000000300023708")),
		Subject: pkix.Name{
			CommonName: "ESCUELA KEMPER URGATE SA DE CV",
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: asn1.ObjectIdentifier{2, 5, 4, 45}, Value: "EKU9003173C9 / VADA800927DJ3"},
			},
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)
	return priv, cert
}
