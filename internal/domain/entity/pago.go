package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pago es un bloque de pago del complemento pago20:Pagos (comprobante tipo "P").
type Pago struct {
	FechaPago  time.Time
	FormaPago  string // c_FormaPago del pago recibido
	Moneda     string
	TipoCambio decimal.Decimal
	Monto      decimal.Decimal

	Relacionados []DoctoRelacionado
}

// DoctoRelacionado referencia a una factura previa con su contabilidad de parcialidades.
// Los impuestos DR se prorratean desde los renglones de la factura referenciada
// por ImpPagado / Total de la factura.
type DoctoRelacionado struct {
	UUID             string // IdDocumento: UUID del timbre de la factura pagada
	Serie            string
	Folio            string
	Moneda           string
	NumParcialidad   int
	ImpSaldoAnt      decimal.Decimal
	ImpPagado        decimal.Decimal
	ImpSaldoInsoluto decimal.Decimal
	ObjetoImp        string

	// Datos de la factura referenciada necesarios para el prorrateo
	FacturaTotal     decimal.Decimal
	FacturaImpuestos []ImpuestoConcepto // renglones agregados de la factura original
}

// FolioCounter es el último folio asignado para un par (emisor, serie).
// Invariante: estrictamente creciente, nunca se reutiliza aunque se borren comprobantes.
type FolioCounter struct {
	EmisorRFC   string
	Serie       string
	UltimoFolio int64
	UpdatedAt   time.Time
}
