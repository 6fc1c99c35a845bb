package cfdi

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
	"golang.org/x/text/unicode/norm"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
)

// CadenaDeriver produce la cadena original de un comprobante: la serialización
// determinista `||version|...||` que realmente se firma. El motor concreto
// depende de la versión del documento (reglas nativas para 4.0, procesador
// XSLT externo para 3.3), por eso es una estrategia conectable.
type CadenaDeriver interface {
	// Derivar emite la cadena original exacta. Cualquier campo obligatorio
	// irresoluble es fatal: no existe cadena aproximada ni parcial.
	Derivar(ctx context.Context, xmlBytes []byte) (string, error)
	// Version es la versión de documento que este deriver sabe procesar.
	Version() string
}

// SelectDeriver elige el motor según los metadatos de versión del documento.
func SelectDeriver(version string, xslt XSLTConfig) (CadenaDeriver, error) {
	switch version {
	case entity.VersionCFDI40:
		return NewNativeDeriver40(), nil
	case entity.VersionCFDI33:
		return NewXSLTDeriver(version, xslt)
	default:
		return nil, fmt.Errorf("%w: no hay deriver de cadena original para la versión %q", domain.ErrConfiguration, version)
	}
}

// ── Motor nativo (reglas declarativas, CFDI 4.0 + Pagos 2.0) ─────────────────

// attrRule es un atributo de la secuencia de la cadena: nombre y obligatoriedad.
type attrRule struct {
	Name     string
	Required bool
}

func req(name string) attrRule { return attrRule{Name: name, Required: true} }
func opt(name string) attrRule { return attrRule{Name: name} }

// NativeDeriver40 deriva la cadena original de CFDI 4.0 (incluido el
// complemento de pagos 2.0) con tablas de reglas por elemento: atributos en
// orden fijo de cabecera y después cada bloque repetible en orden de documento.
type NativeDeriver40 struct {
	rules map[string][]attrRule
	skip  map[string]bool
}

// NewNativeDeriver40 construye el motor con las tablas de reglas del Anexo 20.
func NewNativeDeriver40() *NativeDeriver40 {
	return &NativeDeriver40{rules: reglas40, skip: subarbolesExcluidos}
}

// Version implementa CadenaDeriver.
func (d *NativeDeriver40) Version() string { return entity.VersionCFDI40 }

// Derivar implementa CadenaDeriver. El XML se canonicaliza (C14N) antes de
// parsear para que variaciones de serialización no alteren la cadena, y cada
// valor se normaliza a NFC con espacios colapsados.
func (d *NativeDeriver40) Derivar(_ context.Context, xmlBytes []byte) (string, error) {
	canonical, err := canonicalize(xmlBytes)
	if err != nil {
		// El C14N rechaza algunos documentos válidos con DOCTYPE; el parseo
		// directo sigue siendo determinista porque etree conserva el orden.
		canonical = xmlBytes
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(canonical); err != nil {
		return "", fmt.Errorf("%w: parsear XML para cadena original: %v", domain.ErrValidation, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Comprobante" {
		return "", fmt.Errorf("%w: el documento no es un cfdi:Comprobante", domain.ErrValidation)
	}
	if v := root.SelectAttrValue("Version", ""); v != entity.VersionCFDI40 {
		return "", fmt.Errorf("%w: el motor nativo solo deriva la versión %s (documento %q)",
			domain.ErrConfiguration, entity.VersionCFDI40, v)
	}

	var campos []string
	if err := d.walk(root, &campos); err != nil {
		return "", err
	}
	return "||" + strings.Join(campos, "|") + "||", nil
}

// walk recorre el árbol en orden de documento aplicando la regla de cada elemento.
func (d *NativeDeriver40) walk(el *etree.Element, campos *[]string) error {
	if d.skip[el.Tag] {
		return nil
	}
	rules, ok := d.rules[el.Tag]
	if !ok {
		return fmt.Errorf("%w: sin regla de cadena original para el elemento %q", domain.ErrConfiguration, el.Tag)
	}
	for _, r := range rules {
		attr := el.SelectAttr(r.Name)
		if attr == nil {
			if r.Required {
				return fmt.Errorf("%w: atributo obligatorio %s@%s ausente", domain.ErrValidation, el.Tag, r.Name)
			}
			continue
		}
		*campos = append(*campos, normalizarValor(attr.Value))
	}
	for _, child := range el.ChildElements() {
		if err := d.walk(child, campos); err != nil {
			return err
		}
	}
	return nil
}

// normalizarValor colapsa espacios en blanco y normaliza a NFC para que la
// cadena sea byte-determinista ante variaciones de codificación de acentos.
func normalizarValor(v string) string {
	return norm.NFC.String(strings.Join(strings.Fields(v), " "))
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// subarbolesExcluidos nunca aportan campos: la Addenda es libre, el timbre lo
// agrega el PAC después de firmar y la firma no puede firmarse a sí misma.
var subarbolesExcluidos = map[string]bool{
	"Addenda":             true,
	"TimbreFiscalDigital": true,
	"Signature":           true,
}

// reglas40 son las secuencias de atributos por elemento (CFDI 4.0 y pago20).
// Los atributos no listados (Sello, Certificado, xmlns, xsi) no forman parte
// de la cadena. Donde un nombre local aparece en dos niveles (Impuestos,
// Retencion) la tabla usa el superconjunto con opcionales.
var reglas40 = map[string][]attrRule{
	"Comprobante": {
		req("Version"), opt("Serie"), opt("Folio"), req("Fecha"), opt("FormaPago"),
		req("NoCertificado"), opt("CondicionesDePago"), req("SubTotal"), opt("Descuento"),
		req("Moneda"), opt("TipoCambio"), req("Total"), req("TipoDeComprobante"),
		req("Exportacion"), opt("MetodoPago"), req("LugarExpedicion"), opt("Confirmacion"),
	},
	"InformacionGlobal": {req("Periodicidad"), req("Meses"), req("Año")},
	"CfdiRelacionados":  {req("TipoRelacion")},
	"CfdiRelacionado":   {req("UUID")},
	"Emisor":            {req("Rfc"), req("Nombre"), req("RegimenFiscal"), opt("FacAtrAdquirente")},
	"Receptor": {
		req("Rfc"), req("Nombre"), req("DomicilioFiscalReceptor"), opt("ResidenciaFiscal"),
		opt("NumRegIdTrib"), req("RegimenFiscalReceptor"), req("UsoCFDI"),
	},
	"Conceptos": {},
	"Concepto": {
		req("ClaveProdServ"), opt("NoIdentificacion"), req("Cantidad"), req("ClaveUnidad"),
		opt("Unidad"), req("Descripcion"), req("ValorUnitario"), req("Importe"),
		opt("Descuento"), req("ObjetoImp"),
	},
	"Impuestos":   {opt("TotalImpuestosRetenidos"), opt("TotalImpuestosTrasladados")},
	"Traslados":   {},
	"Traslado":    {req("Base"), req("Impuesto"), req("TipoFactor"), opt("TasaOCuota"), opt("Importe")},
	"Retenciones": {},
	"Retencion":   {opt("Base"), req("Impuesto"), opt("TipoFactor"), opt("TasaOCuota"), req("Importe")},
	"Complemento": {},

	// pago20:Pagos
	"Pagos": {req("Version")},
	"Totales": {
		opt("TotalRetencionesIVA"), opt("TotalRetencionesISR"), opt("TotalRetencionesIEPS"),
		opt("TotalTrasladosBaseIVA16"), opt("TotalTrasladosImpuestoIVA16"),
		opt("TotalTrasladosBaseIVA8"), opt("TotalTrasladosImpuestoIVA8"),
		opt("TotalTrasladosBaseIVA0"), opt("TotalTrasladosImpuestoIVA0"),
		opt("TotalTrasladosBaseIVAExento"), req("MontoTotalPagos"),
	},
	"Pago": {
		req("FechaPago"), req("FormaDePagoP"), req("MonedaP"), opt("TipoCambioP"), req("Monto"),
		opt("NumOperacion"), opt("RfcEmisorCtaOrd"), opt("NomBancoOrdExt"), opt("CtaOrdenante"),
		opt("RfcEmisorCtaBen"), opt("CtaBeneficiario"),
	},
	"DoctoRelacionado": {
		req("IdDocumento"), opt("Serie"), opt("Folio"), req("MonedaDR"), opt("EquivalenciaDR"),
		req("NumParcialidad"), req("ImpSaldoAnt"), req("ImpPagado"), req("ImpSaldoInsoluto"),
		req("ObjetoImpDR"),
	},
	"ImpuestosDR":   {},
	"RetencionesDR": {},
	"RetencionDR":   {req("BaseDR"), req("ImpuestoDR"), req("TipoFactorDR"), req("TasaOCuotaDR"), req("ImporteDR")},
	"TrasladosDR":   {},
	"TrasladoDR":    {req("BaseDR"), req("ImpuestoDR"), req("TipoFactorDR"), opt("TasaOCuotaDR"), opt("ImporteDR")},
	"ImpuestosP":    {},
	"RetencionesP":  {},
	"RetencionP":    {req("ImpuestoP"), req("ImporteP")},
	"TrasladosP":    {},
	"TrasladoP":     {req("BaseP"), req("ImpuestoP"), req("TipoFactorP"), opt("TasaOCuotaP"), opt("ImporteP")},
}
