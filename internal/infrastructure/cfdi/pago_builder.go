package cfdi

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/evalenzup/facturacion-core/internal/domain"
	domcfdi "github.com/evalenzup/facturacion-core/internal/domain/cfdi"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// ToleranciaRemanente es la diferencia máxima entre el monto del pago y la suma
// de importes aplicados que se corrige asignando el remanente al último
// documento relacionado. Diferencias mayores son error de validación.
// TODO(confirmar con contabilidad): la corrección viene de la operación
// observada; falta confirmar que sea regla de negocio y no un parche.
var ToleranciaRemanente = decimal.NewFromFloat(0.05)

// buildPago completa un comprobante tipo "P" (complemento de recepción de pagos 2.0):
// cabecera fija (SubTotal 0, Moneda XXX, Total 0), concepto único mandatado y
// nodo pago20:Pagos con totales, bloques de pago y documentos relacionados.
func buildPago(root *etree.Element, c *entity.Comprobante) error {
	root.CreateAttr("SubTotal", "0")
	root.CreateAttr("Moneda", pkgcfdi.MonedaSinMoneda)
	root.CreateAttr("Total", "0")
	root.CreateAttr("TipoDeComprobante", entity.TipoPago)
	root.CreateAttr("Exportacion", pkgcfdi.ExportacionNoAplica)
	root.CreateAttr("LugarExpedicion", c.LugarExpedicion)

	writeEmisor(root, c)

	// Receptor de un CFDI de pago siempre usa CP01.
	r := root.CreateElement("cfdi:Receptor")
	r.CreateAttr("Rfc", pkgcfdi.NormalizeRFC(c.ReceptorRFC))
	r.CreateAttr("Nombre", c.ReceptorNombre)
	r.CreateAttr("DomicilioFiscalReceptor", c.ReceptorCP)
	r.CreateAttr("RegimenFiscalReceptor", c.ReceptorRegimen)
	r.CreateAttr("UsoCFDI", "CP01")

	// Concepto único fijo (Anexo 20: 84111506 / ACT / cantidad 1 / valor 0).
	conceptos := root.CreateElement("cfdi:Conceptos")
	con := conceptos.CreateElement("cfdi:Concepto")
	con.CreateAttr("ClaveProdServ", pkgcfdi.ClaveProdServPago)
	con.CreateAttr("Cantidad", "1")
	con.CreateAttr("ClaveUnidad", pkgcfdi.ClaveUnidadPago)
	con.CreateAttr("Descripcion", pkgcfdi.DescripcionPago)
	con.CreateAttr("ValorUnitario", "0")
	con.CreateAttr("Importe", "0")
	con.CreateAttr("ObjetoImp", pkgcfdi.ObjetoImpNo)

	comp := root.CreateElement("cfdi:Complemento")
	pagos := comp.CreateElement("pago20:Pagos")
	pagos.CreateAttr("Version", entity.VersionPagos20)

	// Los totales se calculan de los bloques; el nodo Totales va primero.
	totales := pagos.CreateElement("pago20:Totales")

	montoTotal := decimal.Zero
	totalBaseIVA16 := decimal.Zero
	totalImpIVA16 := decimal.Zero
	hayIVA16 := false

	for i := range c.Pagos {
		p := &c.Pagos[i]
		if err := ajustarRemanente(p); err != nil {
			return err
		}
		agg, err := writePagoBlock(pagos, p)
		if err != nil {
			return fmt.Errorf("pago %d: %w", i+1, err)
		}
		montoTotal = montoTotal.Add(p.Monto)
		if agg.hayIVA16 {
			hayIVA16 = true
			totalBaseIVA16 = totalBaseIVA16.Add(agg.baseIVA16)
			totalImpIVA16 = totalImpIVA16.Add(agg.impIVA16)
		}
	}

	if hayIVA16 {
		totales.CreateAttr("TotalTrasladosBaseIVA16", domcfdi.FormatMoney(totalBaseIVA16))
		totales.CreateAttr("TotalTrasladosImpuestoIVA16", domcfdi.FormatMoney(totalImpIVA16))
	}
	totales.CreateAttr("MontoTotalPagos", domcfdi.FormatMoney(montoTotal))
	return nil
}

// ajustarRemanente corrige desajustes de centavos entre el monto del pago y la
// suma de importes aplicados, cargando la diferencia al último relacionado.
// Una diferencia mayor a la tolerancia es error fatal, nunca se corrige.
func ajustarRemanente(p *entity.Pago) error {
	if len(p.Relacionados) == 0 {
		return fmt.Errorf("%w: pago sin documentos relacionados", domain.ErrValidation)
	}
	suma := decimal.Zero
	for _, d := range p.Relacionados {
		suma = suma.Add(d.ImpPagado)
	}
	diff := p.Monto.Sub(suma)
	if diff.IsZero() {
		return nil
	}
	if diff.Abs().GreaterThan(ToleranciaRemanente) {
		return fmt.Errorf("%w: los importes aplicados (%s) no suman el monto del pago (%s)",
			domain.ErrValidation, suma.String(), p.Monto.String())
	}
	ultimo := &p.Relacionados[len(p.Relacionados)-1]
	ultimo.ImpPagado = ultimo.ImpPagado.Add(diff)
	ultimo.ImpSaldoInsoluto = ultimo.ImpSaldoAnt.Sub(ultimo.ImpPagado)
	return nil
}

type aggregadoPago struct {
	hayIVA16  bool
	baseIVA16 decimal.Decimal
	impIVA16  decimal.Decimal
}

func writePagoBlock(parent *etree.Element, p *entity.Pago) (*aggregadoPago, error) {
	el := parent.CreateElement("pago20:Pago")
	el.CreateAttr("FechaPago", p.FechaPago.Format(FormatoFecha))
	forma := p.FormaPago
	if forma == "" {
		return nil, fmt.Errorf("%w: FormaDePagoP es obligatoria", domain.ErrValidation)
	}
	el.CreateAttr("FormaDePagoP", forma)
	moneda := p.Moneda
	if moneda == "" {
		moneda = pkgcfdi.MonedaMXN
	}
	el.CreateAttr("MonedaP", moneda)
	if moneda == pkgcfdi.MonedaMXN {
		el.CreateAttr("TipoCambioP", "1")
	} else if p.TipoCambio.IsPositive() {
		el.CreateAttr("TipoCambioP", domcfdi.FormatRate(p.TipoCambio))
	}
	el.CreateAttr("Monto", domcfdi.FormatMoney(p.Monto))

	// Agregación de impuestos del pago por (tipo, impuesto, tasa) desde los DR.
	type clave struct {
		tipo, impuesto, tasa string
	}
	acc := map[clave]*entity.RenglonImpuesto{}
	tipos := map[clave]string{}

	for i := range p.Relacionados {
		d := &p.Relacionados[i]
		rows, err := writeDoctoRelacionado(el, d)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			k := clave{tipo: r.Tipo, impuesto: r.Impuesto, tasa: r.Tasa.StringFixed(6)}
			tipos[k] = r.Tipo
			if agg, ok := acc[k]; ok {
				agg.Base = agg.Base.Add(r.Base)
				agg.Importe = agg.Importe.Add(r.Importe)
			} else {
				acc[k] = &entity.RenglonImpuesto{
					Impuesto: r.Impuesto, TipoFactor: r.TipoFactor,
					Tasa: r.Tasa, Base: r.Base, Importe: r.Importe,
				}
			}
		}
	}

	if len(acc) == 0 {
		return &aggregadoPago{}, nil
	}

	// Orden determinista para ImpuestosP.
	claves := make([]clave, 0, len(acc))
	for k := range acc {
		claves = append(claves, k)
	}
	sort.Slice(claves, func(i, j int) bool {
		if claves[i].impuesto != claves[j].impuesto {
			return claves[i].impuesto < claves[j].impuesto
		}
		return claves[i].tasa < claves[j].tasa
	})

	impuestosP := el.CreateElement("pago20:ImpuestosP")
	var retP, trasP *etree.Element
	agg := &aggregadoPago{}
	for _, k := range claves {
		r := acc[k]
		switch tipos[k] {
		case entity.ImpuestoRetencion:
			if retP == nil {
				retP = impuestosP.CreateElement("pago20:RetencionesP")
			}
			n := retP.CreateElement("pago20:RetencionP")
			n.CreateAttr("ImpuestoP", r.Impuesto)
			n.CreateAttr("ImporteP", domcfdi.FormatMoney(r.Importe))
		default:
			if trasP == nil {
				trasP = impuestosP.CreateElement("pago20:TrasladosP")
			}
			n := trasP.CreateElement("pago20:TrasladoP")
			n.CreateAttr("BaseP", domcfdi.FormatMoney(r.Base))
			n.CreateAttr("ImpuestoP", r.Impuesto)
			n.CreateAttr("TipoFactorP", r.TipoFactor)
			n.CreateAttr("TasaOCuotaP", domcfdi.FormatRate(r.Tasa))
			n.CreateAttr("ImporteP", domcfdi.FormatMoney(r.Importe))
			if r.Impuesto == pkgcfdi.ImpuestoIVA && r.Tasa.Equal(decimal.NewFromFloat(0.16)) {
				agg.hayIVA16 = true
				agg.baseIVA16 = agg.baseIVA16.Add(r.Base)
				agg.impIVA16 = agg.impIVA16.Add(r.Importe)
			}
		}
	}
	return agg, nil
}

// writeDoctoRelacionado escribe el DR y devuelve sus renglones de impuesto
// prorrateados (redondeados a centavos a nivel referencia, como exige el SAT).
func writeDoctoRelacionado(parent *etree.Element, d *entity.DoctoRelacionado) ([]entity.ImpuestoConcepto, error) {
	if d.UUID == "" {
		return nil, fmt.Errorf("%w: documento relacionado sin UUID", domain.ErrValidation)
	}
	if d.ImpPagado.IsNegative() || d.ImpSaldoAnt.IsNegative() {
		return nil, fmt.Errorf("%w: importes negativos en documento relacionado %s", domain.ErrValidation, d.UUID)
	}

	el := parent.CreateElement("pago20:DoctoRelacionado")
	el.CreateAttr("IdDocumento", d.UUID)
	if d.Serie != "" {
		el.CreateAttr("Serie", d.Serie)
	}
	if d.Folio != "" {
		el.CreateAttr("Folio", d.Folio)
	}
	moneda := d.Moneda
	if moneda == "" {
		moneda = pkgcfdi.MonedaMXN
	}
	el.CreateAttr("MonedaDR", moneda)
	el.CreateAttr("EquivalenciaDR", "1")
	el.CreateAttr("NumParcialidad", strconv.Itoa(d.NumParcialidad))
	el.CreateAttr("ImpSaldoAnt", domcfdi.FormatMoney(d.ImpSaldoAnt))
	el.CreateAttr("ImpPagado", domcfdi.FormatMoney(d.ImpPagado))
	el.CreateAttr("ImpSaldoInsoluto", domcfdi.FormatMoney(d.ImpSaldoInsoluto))
	objeto := d.ObjetoImp
	if objeto == "" {
		objeto = pkgcfdi.ObjetoImpSi
	}
	el.CreateAttr("ObjetoImpDR", objeto)

	rows := ProratearImpuestosDR(d)
	if len(rows) == 0 {
		return nil, nil
	}

	impuestosDR := el.CreateElement("pago20:ImpuestosDR")
	var retDR, trasDR *etree.Element
	for _, r := range rows {
		switch r.Tipo {
		case entity.ImpuestoRetencion:
			if retDR == nil {
				retDR = impuestosDR.CreateElement("pago20:RetencionesDR")
			}
			n := retDR.CreateElement("pago20:RetencionDR")
			n.CreateAttr("BaseDR", domcfdi.FormatMoney(r.Base))
			n.CreateAttr("ImpuestoDR", r.Impuesto)
			n.CreateAttr("TipoFactorDR", r.TipoFactor)
			n.CreateAttr("TasaOCuotaDR", domcfdi.FormatRate(r.Tasa))
			n.CreateAttr("ImporteDR", domcfdi.FormatMoney(r.Importe))
		default:
			if trasDR == nil {
				trasDR = impuestosDR.CreateElement("pago20:TrasladosDR")
			}
			n := trasDR.CreateElement("pago20:TrasladoDR")
			n.CreateAttr("BaseDR", domcfdi.FormatMoney(r.Base))
			n.CreateAttr("ImpuestoDR", r.Impuesto)
			n.CreateAttr("TipoFactorDR", r.TipoFactor)
			n.CreateAttr("TasaOCuotaDR", domcfdi.FormatRate(r.Tasa))
			n.CreateAttr("ImporteDR", domcfdi.FormatMoney(r.Importe))
		}
	}
	return rows, nil
}

// ProratearImpuestosDR escala los renglones de impuesto de la factura
// referenciada por el factor ImpPagado / Total de la factura, redondeando a
// centavos a nivel de la referencia antes de reagregarlos al pago.
func ProratearImpuestosDR(d *entity.DoctoRelacionado) []entity.ImpuestoConcepto {
	if d.FacturaTotal.IsZero() || len(d.FacturaImpuestos) == 0 {
		return nil
	}
	factor := d.ImpPagado.Div(d.FacturaTotal)
	out := make([]entity.ImpuestoConcepto, 0, len(d.FacturaImpuestos))
	for _, r := range d.FacturaImpuestos {
		out = append(out, entity.ImpuestoConcepto{
			Tipo:       r.Tipo,
			Impuesto:   r.Impuesto,
			TipoFactor: r.TipoFactor,
			Tasa:       r.Tasa,
			Base:       r.Base.Mul(factor).Round(2),
			Importe:    r.Importe.Mul(factor).Round(2),
		})
	}
	return out
}
