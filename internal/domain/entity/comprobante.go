package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de un comprobante fiscal (CFDI).
const (
	EstadoDraft     = "DRAFT"     // Creado, sin sellar ni timbrar
	EstadoTimbrado  = "TIMBRADO"  // Timbrado por el PAC (tiene TimbreFiscalDigital)
	EstadoCancelado = "CANCELADO" // Solicitud de cancelación aceptada por el PAC
)

// Tipos de comprobante soportados (catálogo c_TipoDeComprobante).
const (
	TipoIngreso = "I" // Factura de ingreso
	TipoPago    = "P" // Complemento de recepción de pagos
)

// Versiones de documento soportadas.
const (
	VersionCFDI40  = "4.0" // CFDI Anexo 20
	VersionCFDI33  = "3.3" // CFDI legado (cadena vía XSLT externo)
	VersionPagos20 = "2.0" // Complemento pago20:Pagos
)

// Comprobante es la cabecera de un documento fiscal (factura o complemento de pago).
// El folio es inmutable una vez persistido; los campos de timbre solo existen
// cuando Estado == TIMBRADO.
type Comprobante struct {
	ID      string
	Tipo    string // "I" o "P"
	Version string // "4.0" (o "3.3" legado)
	Serie   string
	Folio   int64
	Fecha   time.Time // Fecha de emisión (hora local del emisor, acotada)

	// Emisor
	EmisorRFC     string
	EmisorNombre  string
	RegimenFiscal string

	// Receptor
	ReceptorRFC     string
	ReceptorNombre  string
	ReceptorCP      string // DomicilioFiscalReceptor
	ReceptorRegimen string
	UsoCFDI         string
	// Modo público en general: Receptor XAXX010101000 + InformacionGlobal
	GlobalInformacion *InformacionGlobal

	Moneda          string
	TipoCambio      decimal.Decimal // 1 si Moneda == MXN
	LugarExpedicion string          // CP del emisor
	Exportacion     string          // "01" = no aplica

	MetodoPago string // PUE / PPD (obligatorio en tipo "I")
	FormaPago  string // c_FormaPago; omitido si MetodoPago == PPD

	Conceptos []Concepto
	Resumen   ResumenImpuestos // Derivado por el motor de impuestos, nunca editado a mano
	Pagos     []Pago           // Solo para Tipo == "P"

	SubTotal  decimal.Decimal
	Descuento decimal.Decimal
	Total     decimal.Decimal

	// Sello del emisor (se llenan al firmar)
	Sello         string // Base64 RSA PKCS#1 v1.5 / SHA-256 sobre la cadena original
	NoCertificado string // Serial del CSD en esquema de 20 dígitos SAT
	Certificado   string // DER del certificado en Base64

	Estado string
	Timbre *Timbre // nil mientras no esté timbrado

	// Rutas de artefactos persistidos tras el timbrado
	XMLPath string
	PDFPath string

	Cancelacion *Cancelacion // nil si nunca se solicitó cancelación

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InformacionGlobal metadatos obligatorios para facturas globales (público en general).
type InformacionGlobal struct {
	Periodicidad string // "01" diario ... "05" bimestral
	Meses        string // "01".."18"
	Anio         int
}

// Timbre es el TimbreFiscalDigital devuelto por el PAC (prueba de registro ante el SAT).
type Timbre struct {
	UUID             string
	FechaTimbrado    time.Time
	RfcProvCertif    string // RFC del proveedor de certificación (PAC)
	NoCertificadoSAT string
	SelloCFD         string // Sello del emisor contenido en el timbre
	SelloSAT         string // Sello del SAT sobre el timbre
}

// Cancelacion registra la solicitud de cancelación y su acuse.
// La aceptación del acuse no es prueba de cancelación definitiva: el SAT la
// procesa de forma asíncrona.
type Cancelacion struct {
	Motivo           string // "01".."04"
	FolioSustitucion string // UUID del comprobante sustituto; obligatorio con motivo 01
	AcuseCodigo      string
	AcuseMensaje     string
	FechaSolicitud   time.Time
}

// EstaTimbrado indica si el comprobante ya tiene timbre fiscal.
func (c *Comprobante) EstaTimbrado() bool {
	return c.Estado == EstadoTimbrado && c.Timbre != nil
}
