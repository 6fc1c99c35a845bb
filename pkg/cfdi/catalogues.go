// Package cfdi contiene catálogos y validaciones alineados al Anexo 20 del SAT
// (CFDI 4.0) y al complemento de recepción de pagos 2.0.
package cfdi

// =============================================================================
// c_MetodoPago (Anexo 20 - catálogo 11)
// =============================================================================

const (
	MetodoPagoPUE = "PUE" // Pago en una sola exhibición
	MetodoPagoPPD = "PPD" // Pago en parcialidades o diferido (FormaPago se OMITE)
)

// ValidPaymentMethodCodes métodos de pago válidos.
var ValidPaymentMethodCodes = map[string]bool{
	MetodoPagoPUE: true,
	MetodoPagoPPD: true,
}

// =============================================================================
// c_FormaPago (Anexo 20 - catálogo 7) - códigos de uso frecuente
// =============================================================================

const (
	FormaPagoEfectivo      = "01" // Efectivo
	FormaPagoCheque        = "02" // Cheque nominativo
	FormaPagoTransferencia = "03" // Transferencia electrónica de fondos
	FormaPagoTarjetaCred   = "04" // Tarjeta de crédito
	FormaPagoTarjetaDeb    = "28" // Tarjeta de débito
	FormaPagoPorDefinir    = "99" // Por definir (usado con PPD en el pago posterior)
)

// ValidPaymentFormCodes formas de pago válidas (uso común en facturación).
var ValidPaymentFormCodes = map[string]bool{
	FormaPagoEfectivo: true, FormaPagoCheque: true, FormaPagoTransferencia: true,
	FormaPagoTarjetaCred: true, FormaPagoTarjetaDeb: true, FormaPagoPorDefinir: true,
}

// =============================================================================
// c_Impuesto (Anexo 20 - catálogo 9)
// =============================================================================

const (
	ImpuestoISR  = "001"
	ImpuestoIVA  = "002"
	ImpuestoIEPS = "003"
)

// =============================================================================
// c_TipoFactor
// =============================================================================

const (
	TipoFactorTasa   = "Tasa"
	TipoFactorCuota  = "Cuota"
	TipoFactorExento = "Exento"
)

// =============================================================================
// Receptor genérico (factura global / público en general)
// =============================================================================

const (
	// RFCPublicoGeneral receptor reservado para operaciones con público en general.
	RFCPublicoGeneral = "XAXX010101000"
	// RFCExtranjero receptor genérico para residentes en el extranjero.
	RFCExtranjero = "XEXX010101000"
	// NombrePublicoGeneral razón social obligatoria para el receptor genérico en 4.0.
	NombrePublicoGeneral = "PUBLICO EN GENERAL"
	// UsoCFDISinEfectos uso obligatorio para el receptor genérico.
	UsoCFDISinEfectos = "S01"
	// RegimenSinObligaciones régimen del receptor genérico (616).
	RegimenSinObligaciones = "616"
)

// Periodicidades de InformacionGlobal (c_Periodicidad).
const (
	PeriodicidadDiaria    = "01"
	PeriodicidadSemanal   = "02"
	PeriodicidadQuincenal = "03"
	PeriodicidadMensual   = "04"
	PeriodicidadBimestral = "05"
)

// =============================================================================
// Motivos de cancelación (c_MotivoCancelacion, RMF 2022)
// =============================================================================

const (
	MotivoConRelacion    = "01" // Comprobante emitido con errores CON relación (exige FolioSustitucion)
	MotivoSinRelacion    = "02" // Comprobante emitido con errores SIN relación
	MotivoNoSeLlevoACabo = "03" // No se llevó a cabo la operación
	MotivoGlobalNominal  = "04" // Operación nominativa relacionada en factura global
)

// ValidCancellationReasons motivos de cancelación aceptados por el SAT.
var ValidCancellationReasons = map[string]bool{
	MotivoConRelacion: true, MotivoSinRelacion: true,
	MotivoNoSeLlevoACabo: true, MotivoGlobalNominal: true,
}

// =============================================================================
// Complemento de pagos 2.0 - concepto fijo obligatorio
// =============================================================================

const (
	// ClaveProdServPago clave de producto/servicio del concepto único de un CFDI de pago.
	ClaveProdServPago = "84111506"
	// ClaveUnidadPago clave de unidad "ACT" (actividad) del concepto de pago.
	ClaveUnidadPago = "ACT"
	// DescripcionPago descripción mandatada por el Anexo 20 para el concepto de pago.
	DescripcionPago = "Pago"
)

// =============================================================================
// Otros valores fijos del Anexo 20
// =============================================================================

const (
	MonedaMXN           = "MXN"
	MonedaSinMoneda     = "XXX" // Obligatoria en comprobantes tipo "P"
	ExportacionNoAplica = "01"
	ObjetoImpNo         = "01"
	ObjetoImpSi         = "02"
)
