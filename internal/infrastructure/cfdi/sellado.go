// Sellado del comprobante: firma RSA de la cadena original con el CSD del
// emisor e inyección de Sello, NoCertificado y Certificado en la cabecera.

package cfdi

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/csd"
)

// SelladoService firma comprobantes. La llave privada se usa una sola vez por
// operación y se descarta; nunca se registra en logs ni se cachea.
type SelladoService struct{}

// NewSelladoService crea el servicio.
func NewSelladoService() *SelladoService {
	return &SelladoService{}
}

// Sellar firma la cadena original: RSA PKCS#1 v1.5 sobre el digest SHA-256 de
// la cadena codificada en UTF-8 (NFC). Devuelve el sello en Base64.
func (s *SelladoService) Sellar(cadena string, key *rsa.PrivateKey) (string, error) {
	if cadena == "" {
		return "", fmt.Errorf("%w: cadena original vacía", domain.ErrValidation)
	}
	if key == nil {
		return "", fmt.Errorf("%w: llave privada nula", domain.ErrCrypto)
	}
	digest := sha256.Sum256([]byte(norm.NFC.String(cadena)))
	firma, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: firmar cadena original: %v", domain.ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(firma), nil
}

// FirmarComprobante completa el ciclo de sellado de un XML sin firmar:
//
//  1. Inyecta NoCertificado y Certificado (ambos forman parte de la cadena).
//  2. Deriva la cadena original con el motor de la versión del documento.
//  3. Firma la cadena y fija el atributo Sello.
//
// Devuelve el XML sellado y la cadena firmada.
func (s *SelladoService) FirmarComprobante(
	ctx context.Context,
	xmlBytes []byte,
	deriver CadenaDeriver,
	cert *csd.Certificado,
	key *rsa.PrivateKey,
) (firmado []byte, cadena string, err error) {
	if cert == nil || cert.Cert == nil {
		return nil, "", fmt.Errorf("%w: certificado de sello ausente", domain.ErrConfiguration)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, "", fmt.Errorf("%w: parsear XML a sellar: %v", domain.ErrValidation, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, "", fmt.Errorf("%w: documento sin raíz", domain.ErrValidation)
	}

	root.CreateAttr("NoCertificado", cert.NoCertificado)
	root.CreateAttr("Certificado", base64.StdEncoding.EncodeToString(cert.Cert.Raw))

	sinSello, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("serializar XML para cadena: %w", err)
	}
	cadena, err = deriver.Derivar(ctx, sinSello)
	if err != nil {
		return nil, "", err
	}

	sello, err := s.Sellar(cadena, key)
	if err != nil {
		return nil, "", err
	}
	root.CreateAttr("Sello", sello)

	firmado, err = doc.WriteToBytes()
	if err != nil {
		return nil, "", fmt.Errorf("serializar XML sellado: %w", err)
	}
	return firmado, cadena, nil
}

// VerificarSello comprueba que un sello Base64 verifica contra la llave pública
// del certificado para la cadena dada. Útil en pruebas y auditoría.
func VerificarSello(cadena, selloB64 string, cert *csd.Certificado) error {
	pub, ok := cert.Cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificado sin llave pública RSA", domain.ErrCorruptMaterial)
	}
	firma, err := base64.StdEncoding.DecodeString(selloB64)
	if err != nil {
		return fmt.Errorf("%w: sello no es Base64: %v", domain.ErrCrypto, err)
	}
	digest := sha256.Sum256([]byte(norm.NFC.String(cadena)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], firma); err != nil {
		return fmt.Errorf("%w: el sello no verifica: %v", domain.ErrCrypto, err)
	}
	return nil
}

// AtributosSello extrae Sello, NoCertificado y Certificado de un XML sellado,
// para persistirlos junto a la cabecera del comprobante.
func AtributosSello(xmlFirmado []byte) (sello, noCertificado, certificado string, err error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlFirmado); err != nil {
		return "", "", "", fmt.Errorf("%w: parsear XML sellado: %v", domain.ErrValidation, err)
	}
	root := doc.Root()
	if root == nil {
		return "", "", "", fmt.Errorf("%w: documento sin raíz", domain.ErrValidation)
	}
	sello = root.SelectAttrValue("Sello", "")
	if sello == "" {
		return "", "", "", fmt.Errorf("%w: el XML no tiene atributo Sello", domain.ErrValidation)
	}
	return sello, root.SelectAttrValue("NoCertificado", ""), root.SelectAttrValue("Certificado", ""), nil
}
