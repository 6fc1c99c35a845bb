package csd

import (
	"fmt"
	"math/big"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// SerialToDigitString convierte el serial del certificado al esquema imprimible
// del SAT (atributo NoCertificado, 20 dígitos): cada byte del serial es el
// código ASCII de un dígito decimal.
//
// Ejemplo: serial 0x3330303031303030... → "30001000...".
func SerialToDigitString(serial *big.Int) (string, error) {
	if serial == nil {
		return "", fmt.Errorf("%w: certificado sin número de serie", domain.ErrCorruptMaterial)
	}
	raw := serial.Bytes()
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b < '0' || b > '9' {
			return "", fmt.Errorf("%w: serial del certificado con byte no decimal 0x%02x", domain.ErrCorruptMaterial, b)
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: serial del certificado vacío", domain.ErrCorruptMaterial)
	}
	return string(out), nil
}
