package cfdi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/evalenzup/facturacion-core/internal/domain"
	domcfdi "github.com/evalenzup/facturacion-core/internal/domain/cfdi"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// XMLBuilderService construye el árbol XML del comprobante sin sellar.
// Transformación pura: no toca red ni almacenamiento. El orden de atributos
// sigue la secuencia del Anexo 20 porque la cadena original depende de él.
type XMLBuilderService struct {
	tz *time.Location
}

// NewXMLBuilderService crea el servicio con la zona horaria del emisor.
// tz nil usa la zona local del proceso.
func NewXMLBuilderService(tz *time.Location) *XMLBuilderService {
	return &XMLBuilderService{tz: tz}
}

// Build genera el XML del comprobante (tipo "I" o "P") sin sello.
// Valida la cabecera antes de ensamblar; cualquier violación es fatal.
func (s *XMLBuilderService) Build(c *entity.Comprobante, now time.Time) ([]byte, error) {
	if err := domcfdi.ValidateComprobante(c); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("cfdi:Comprobante")
	root.CreateAttr("xmlns:cfdi", NsCFDI)
	root.CreateAttr("xmlns:xsi", nsXsi)
	schemaLoc := schemaLocationCFDI
	if c.Tipo == entity.TipoPago {
		root.CreateAttr("xmlns:pago20", NsPago20)
		schemaLoc += " " + schemaLocationPago20
	}
	root.CreateAttr("xsi:schemaLocation", schemaLoc)

	fecha := ClampFecha(c.Fecha, now, s.tz)
	c.Fecha = fecha

	root.CreateAttr("Version", entity.VersionCFDI40)
	if c.Serie != "" {
		root.CreateAttr("Serie", c.Serie)
	}
	if c.Folio > 0 {
		root.CreateAttr("Folio", strconv.FormatInt(c.Folio, 10))
	}
	root.CreateAttr("Fecha", fecha.Format(FormatoFecha))

	switch c.Tipo {
	case entity.TipoIngreso:
		if err := s.buildIngreso(root, c); err != nil {
			return nil, err
		}
	case entity.TipoPago:
		if err := buildPago(root, c); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: tipo de comprobante %q", domain.ErrValidation, c.Tipo)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// buildIngreso completa los atributos y nodos de una factura de ingreso.
func (s *XMLBuilderService) buildIngreso(root *etree.Element, c *entity.Comprobante) error {
	if c.FormaPago != "" {
		root.CreateAttr("FormaPago", c.FormaPago)
	}
	root.CreateAttr("SubTotal", domcfdi.FormatMoney(c.SubTotal))
	if c.Descuento.IsPositive() {
		root.CreateAttr("Descuento", domcfdi.FormatMoney(c.Descuento))
	}
	moneda := c.Moneda
	if moneda == "" {
		moneda = pkgcfdi.MonedaMXN
	}
	root.CreateAttr("Moneda", moneda)
	if moneda != pkgcfdi.MonedaMXN && c.TipoCambio.IsPositive() {
		root.CreateAttr("TipoCambio", domcfdi.FormatRate(c.TipoCambio))
	}
	root.CreateAttr("Total", domcfdi.FormatMoney(c.Total))
	root.CreateAttr("TipoDeComprobante", entity.TipoIngreso)
	exportacion := c.Exportacion
	if exportacion == "" {
		exportacion = pkgcfdi.ExportacionNoAplica
	}
	root.CreateAttr("Exportacion", exportacion)
	root.CreateAttr("MetodoPago", c.MetodoPago)
	root.CreateAttr("LugarExpedicion", c.LugarExpedicion)

	writeInformacionGlobal(root, c)
	writeEmisor(root, c)
	writeReceptor(root, c)

	conceptos := root.CreateElement("cfdi:Conceptos")
	for _, con := range c.Conceptos {
		writeConcepto(conceptos, con)
	}

	writeImpuestosDocumento(root, c.Resumen)
	return nil
}

func writeInformacionGlobal(root *etree.Element, c *entity.Comprobante) {
	if c.GlobalInformacion == nil {
		return
	}
	g := root.CreateElement("cfdi:InformacionGlobal")
	g.CreateAttr("Periodicidad", c.GlobalInformacion.Periodicidad)
	g.CreateAttr("Meses", c.GlobalInformacion.Meses)
	g.CreateAttr("Año", strconv.Itoa(c.GlobalInformacion.Anio))
}

func writeEmisor(root *etree.Element, c *entity.Comprobante) {
	e := root.CreateElement("cfdi:Emisor")
	e.CreateAttr("Rfc", pkgcfdi.NormalizeRFC(c.EmisorRFC))
	e.CreateAttr("Nombre", c.EmisorNombre)
	e.CreateAttr("RegimenFiscal", c.RegimenFiscal)
}

func writeReceptor(root *etree.Element, c *entity.Comprobante) {
	r := root.CreateElement("cfdi:Receptor")
	rfc := pkgcfdi.NormalizeRFC(c.ReceptorRFC)
	r.CreateAttr("Rfc", rfc)
	if rfc == pkgcfdi.RFCPublicoGeneral {
		// Receptor reservado "público en general": valores mandatados por el Anexo 20.
		r.CreateAttr("Nombre", pkgcfdi.NombrePublicoGeneral)
		r.CreateAttr("DomicilioFiscalReceptor", c.LugarExpedicion)
		r.CreateAttr("RegimenFiscalReceptor", pkgcfdi.RegimenSinObligaciones)
		r.CreateAttr("UsoCFDI", pkgcfdi.UsoCFDISinEfectos)
		return
	}
	r.CreateAttr("Nombre", c.ReceptorNombre)
	r.CreateAttr("DomicilioFiscalReceptor", c.ReceptorCP)
	r.CreateAttr("RegimenFiscalReceptor", c.ReceptorRegimen)
	r.CreateAttr("UsoCFDI", c.UsoCFDI)
}

func writeConcepto(parent *etree.Element, con entity.Concepto) {
	el := parent.CreateElement("cfdi:Concepto")
	el.CreateAttr("ClaveProdServ", con.ClaveProdServ)
	if con.NoIdentificacion != "" {
		el.CreateAttr("NoIdentificacion", con.NoIdentificacion)
	}
	el.CreateAttr("Cantidad", domcfdi.FormatRate(con.Cantidad))
	el.CreateAttr("ClaveUnidad", con.ClaveUnidad)
	if con.Unidad != "" {
		el.CreateAttr("Unidad", con.Unidad)
	}
	el.CreateAttr("Descripcion", con.Descripcion)
	el.CreateAttr("ValorUnitario", domcfdi.FormatMoney(con.ValorUnitario))
	el.CreateAttr("Importe", domcfdi.FormatMoney(con.Importe))
	if con.Descuento.IsPositive() {
		el.CreateAttr("Descuento", domcfdi.FormatMoney(con.Descuento))
	}
	objeto := con.ObjetoImp
	if objeto == "" {
		objeto = pkgcfdi.ObjetoImpNo
	}
	el.CreateAttr("ObjetoImp", objeto)

	if len(con.Impuestos) == 0 {
		return
	}
	imp := el.CreateElement("cfdi:Impuestos")
	var traslados, retenciones *etree.Element
	for _, r := range con.Impuestos {
		switch r.Tipo {
		case entity.ImpuestoTraslado:
			if traslados == nil {
				traslados = imp.CreateElement("cfdi:Traslados")
			}
			t := traslados.CreateElement("cfdi:Traslado")
			t.CreateAttr("Base", domcfdi.FormatMoney(r.Base))
			t.CreateAttr("Impuesto", r.Impuesto)
			t.CreateAttr("TipoFactor", r.TipoFactor)
			t.CreateAttr("TasaOCuota", domcfdi.FormatRate(r.Tasa))
			t.CreateAttr("Importe", domcfdi.FormatMoney(r.Importe))
		case entity.ImpuestoRetencion:
			if retenciones == nil {
				retenciones = imp.CreateElement("cfdi:Retenciones")
			}
			t := retenciones.CreateElement("cfdi:Retencion")
			t.CreateAttr("Base", domcfdi.FormatMoney(r.Base))
			t.CreateAttr("Impuesto", r.Impuesto)
			t.CreateAttr("TipoFactor", r.TipoFactor)
			t.CreateAttr("TasaOCuota", domcfdi.FormatRate(r.Tasa))
			t.CreateAttr("Importe", domcfdi.FormatMoney(r.Importe))
		}
	}
}

// writeImpuestosDocumento escribe el resumen a nivel documento.
// Orden del Anexo 20: Retenciones antes que Traslados.
func writeImpuestosDocumento(root *etree.Element, resumen entity.ResumenImpuestos) {
	if len(resumen.Traslados) == 0 && len(resumen.Retenciones) == 0 {
		return
	}
	imp := root.CreateElement("cfdi:Impuestos")
	if len(resumen.Retenciones) > 0 {
		imp.CreateAttr("TotalImpuestosRetenidos", domcfdi.FormatMoney(resumen.TotalRetenidos))
	}
	if len(resumen.Traslados) > 0 {
		imp.CreateAttr("TotalImpuestosTrasladados", domcfdi.FormatMoney(resumen.TotalTrasladados))
	}
	if len(resumen.Retenciones) > 0 {
		rets := imp.CreateElement("cfdi:Retenciones")
		for _, r := range resumen.Retenciones {
			el := rets.CreateElement("cfdi:Retencion")
			el.CreateAttr("Impuesto", r.Impuesto)
			el.CreateAttr("Importe", domcfdi.FormatMoney(r.Importe))
		}
	}
	if len(resumen.Traslados) > 0 {
		tras := imp.CreateElement("cfdi:Traslados")
		for _, r := range resumen.Traslados {
			el := tras.CreateElement("cfdi:Traslado")
			el.CreateAttr("Base", domcfdi.FormatMoney(r.Base))
			el.CreateAttr("Impuesto", r.Impuesto)
			el.CreateAttr("TipoFactor", r.TipoFactor)
			el.CreateAttr("TasaOCuota", domcfdi.FormatRate(r.Tasa))
			el.CreateAttr("Importe", domcfdi.FormatMoney(r.Importe))
		}
	}
}
