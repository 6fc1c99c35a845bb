package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores del pipeline de facturación (sin dependencias externas).
// Toda ruta fatal deja el comprobante en su último estado consistente.
var (
	// ErrValidation entrada malformada o incompleta; no se persiste nada parcial.
	ErrValidation = errors.New("comprobante inválido")
	// ErrConfiguration falta certificado, llave o regla de transformación; requiere corrección operativa.
	ErrConfiguration = errors.New("configuración incompleta")
	// ErrCrypto material criptográfico inservible. Las sub-razones se conservan en la cadena de wrapping.
	ErrCrypto = errors.New("error criptográfico")
	// ErrFolioConflict carrera detectada al asignar folio; se reintenta una sola vez.
	ErrFolioConflict = errors.New("conflicto de folio")
	// ErrNotFound recurso no encontrado.
	ErrNotFound = errors.New("recurso no encontrado")
	// ErrEstadoInvalido transición de estado no permitida (ej. re-timbrar un timbrado).
	ErrEstadoInvalido = errors.New("estado del comprobante no permite la operación")
)

// Sub-razones de ErrCrypto (siempre envueltas sobre ErrCrypto).
var (
	ErrBadPassphrase   = fmt.Errorf("%w: contraseña de la llave incorrecta", ErrCrypto)
	ErrCorruptMaterial = fmt.Errorf("%w: material corrupto o en formato no soportado", ErrCrypto)
	ErrPairMismatch    = fmt.Errorf("%w: la llave no corresponde al certificado", ErrCrypto)
)

// PACFault es el rechazo explícito de la autoridad certificadora.
// Se expone textual, nunca se reintenta automáticamente ni se sintetiza como éxito.
type PACFault struct {
	Code        string
	Description string
}

func (f *PACFault) Error() string {
	return fmt.Sprintf("PAC fault [%s]: %s", f.Code, f.Description)
}

// ErrProtocolViolation respuesta "exitosa" del PAC que no cumple el protocolo
// (por ejemplo, sin UUID). Fatal; no se persiste transición alguna.
var ErrProtocolViolation = errors.New("respuesta del PAC viola el protocolo")

// TransportError es una falla de red hacia el PAC. El llamador puede reintentar
// la etapa completa; el cliente nunca reintenta por su cuenta.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transporte PAC (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
