// Package csd parsea y valida el material de firma del contribuyente:
// certificado .cer (DER o PEM) y llave privada .key (PKCS#8 cifrado, PEM o
// contenedor PKCS#12). Opera solo sobre los bytes recibidos; nunca persiste
// ni cachea llaves entre operaciones.
package csd

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// Tipos de certificado inferidos del key usage.
const (
	TipoCSD  = "CSD"  // Certificado de Sello Digital (solo firma)
	TipoFIEL = "FIEL" // e.firma (firma + cifrado)
)

// oidUniqueIdentifier (2.5.4.45): el SAT guarda aquí "RFC / CURP" del titular.
var oidUniqueIdentifier = asn1.ObjectIdentifier{2, 5, 4, 45}

// Certificado es el resultado de parsear un .cer del SAT.
type Certificado struct {
	RFC           string // RFC del titular (subject x500UniqueIdentifier)
	RazonSocial   string // CommonName del subject
	Emisor        string // DN de la autoridad emisora
	SerialHex     string // Serial en hexadecimal
	NoCertificado string // Serial en el esquema de 20 dígitos del SAT
	NotBefore     time.Time
	NotAfter      time.Time
	Tipo          string // CSD o FIEL
	Cert          *x509.Certificate
}

// ParseCertificado acepta transparentemente un .cer en DER o PEM.
func ParseCertificado(data []byte) (*Certificado, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: certificado vacío", domain.ErrCorruptMaterial)
	}

	der := data
	if block, _ := pem.Decode(data); block != nil && block.Type == "CERTIFICATE" {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsear certificado: %v", domain.ErrCorruptMaterial, err)
	}

	noCert, err := SerialToDigitString(cert.SerialNumber)
	if err != nil {
		return nil, err
	}

	return &Certificado{
		RFC:           rfcFromSubject(cert.Subject),
		RazonSocial:   cert.Subject.CommonName,
		Emisor:        cert.Issuer.String(),
		SerialHex:     cert.SerialNumber.Text(16),
		NoCertificado: noCert,
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		Tipo:          inferirTipo(cert),
		Cert:          cert,
	}, nil
}

// Vigente indica si el certificado está dentro de su ventana de validez en el instante dado.
func (c *Certificado) Vigente(now time.Time) bool {
	return !now.Before(c.NotBefore) && !now.After(c.NotAfter)
}

// rfcFromSubject extrae el RFC del x500UniqueIdentifier (formato "RFC / CURP").
// Si no existe, cae al SerialNumber del subject, que algunos emisores usan.
func rfcFromSubject(subject pkix.Name) string {
	for _, n := range subject.Names {
		if n.Type.Equal(oidUniqueIdentifier) {
			if s, ok := n.Value.(string); ok {
				return strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
			}
		}
	}
	return strings.TrimSpace(strings.SplitN(subject.SerialNumber, "/", 2)[0])
}

// inferirTipo distingue CSD de FIEL: el CSD solo tiene firma digital y no
// repudio; la FIEL añade usos de cifrado de llave o datos.
func inferirTipo(cert *x509.Certificate) string {
	const cifrado = x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageKeyAgreement
	if cert.KeyUsage&cifrado != 0 {
		return TipoFIEL
	}
	return TipoCSD
}
