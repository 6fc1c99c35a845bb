// Package cfdi implementa el ensamblado del XML CFDI 4.0 (Anexo 20 SAT), la
// derivación de la cadena original y el sellado del comprobante.
package cfdi

import "time"

// Namespaces oficiales del Anexo 20 y del complemento de pagos 2.0.
const (
	NsCFDI   = "http://www.sat.gob.mx/cfd/4"
	NsPago20 = "http://www.sat.gob.mx/Pagos20"
	NsTFD    = "http://www.sat.gob.mx/TimbreFiscalDigital"
	nsXsi    = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationCFDI   = "http://www.sat.gob.mx/cfd/4 http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"
	schemaLocationPago20 = "http://www.sat.gob.mx/Pagos20 http://www.sat.gob.mx/sitio_internet/cfd/Pagos/Pagos20.xsd"
)

// FechaSkew es el margen de seguridad al fijar la fecha de emisión: el PAC
// rechaza comprobantes fechados en el futuro, así que nunca se emite con
// fecha posterior a "ahora menos el margen".
const FechaSkew = 30 * time.Second

// FormatoFecha es el formato del atributo Fecha (hora local del emisor, sin zona).
const FormatoFecha = "2006-01-02T15:04:05"

// ClampFecha acota la fecha de emisión: nunca posterior a now-skew en la zona
// horaria del emisor. Una fecha cero también se sustituye por el tope.
func ClampFecha(fecha, now time.Time, tz *time.Location) time.Time {
	if tz == nil {
		tz = time.Local
	}
	tope := now.Add(-FechaSkew).In(tz)
	if fecha.IsZero() || fecha.After(tope) {
		return tope
	}
	return fecha.In(tz)
}
