package cfdi

import (
	"fmt"
	"regexp"
	"strings"
)

// Patrón oficial del RFC (Anexo 20): 3 letras para moral, 4 para física,
// 6 dígitos de fecha y 3 caracteres de homoclave.
var rfcPattern = regexp.MustCompile(`^([A-ZÑ&]{3,4})([0-9]{6})([A-Z0-9]{3})$`)

// NormalizeRFC devuelve el RFC en mayúsculas y sin espacios ni guiones.
func NormalizeRFC(rfc string) string {
	rfc = strings.ToUpper(strings.TrimSpace(rfc))
	rfc = strings.ReplaceAll(rfc, "-", "")
	rfc = strings.ReplaceAll(rfc, " ", "")
	return rfc
}

// ValidateRFC valida la estructura del RFC. Acepta los RFC genéricos
// (XAXX010101000 y XEXX010101000) usados en facturas globales.
func ValidateRFC(rfc string) error {
	rfc = NormalizeRFC(rfc)
	if rfc == RFCPublicoGeneral || rfc == RFCExtranjero {
		return nil
	}
	if !rfcPattern.MatchString(rfc) {
		return fmt.Errorf("cfdi: RFC %q no cumple la estructura del Anexo 20", rfc)
	}
	return nil
}

// EsPersonaMoral indica si el RFC corresponde a una persona moral (12 caracteres).
func EsPersonaMoral(rfc string) bool {
	return len(NormalizeRFC(rfc)) == 12
}
