package entity

import "github.com/shopspring/decimal"

// Tipos de impuesto por renglón (Traslado = trasladado, Retencion = retenido).
const (
	ImpuestoTraslado  = "T"
	ImpuestoRetencion = "R"
)

// Concepto es una línea del comprobante con su clasificación SAT.
type Concepto struct {
	ClaveProdServ    string // Catálogo c_ClaveProdServ (ej. 84111506)
	NoIdentificacion string // SKU interno, opcional
	Cantidad         decimal.Decimal
	ClaveUnidad      string // Catálogo c_ClaveUnidad (H87, E48, ACT, ...)
	Unidad           string
	Descripcion      string
	ValorUnitario    decimal.Decimal
	Descuento        decimal.Decimal
	ObjetoImp        string // "01" no objeto, "02" sí objeto de impuesto

	// Importe = Cantidad * ValorUnitario (lo fija el motor de impuestos)
	Importe decimal.Decimal

	Impuestos []ImpuestoConcepto
}

// ImpuestoConcepto es un renglón de impuesto declarado sobre un concepto.
// La base y el importe los calcula el motor; el llamador solo declara tipo y tasa.
type ImpuestoConcepto struct {
	Tipo       string          // "T" o "R"
	Impuesto   string          // "001" ISR, "002" IVA, "003" IEPS
	TipoFactor string          // "Tasa", "Cuota", "Exento"
	Tasa       decimal.Decimal // TasaOCuota con 6 decimales
	Base       decimal.Decimal
	Importe    decimal.Decimal
}

// RenglonImpuesto es un agregado (impuesto, tasa) a nivel documento.
type RenglonImpuesto struct {
	Impuesto   string
	TipoFactor string
	Tasa       decimal.Decimal
	Base       decimal.Decimal
	Importe    decimal.Decimal
}

// ResumenImpuestos agrupa traslados y retenciones por (impuesto, tasa).
// Es un dato derivado: se recalcula siempre desde los conceptos.
type ResumenImpuestos struct {
	Traslados        []RenglonImpuesto
	Retenciones      []RenglonImpuesto
	TotalTrasladados decimal.Decimal
	TotalRetenidos   decimal.Decimal
}
