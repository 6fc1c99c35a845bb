package csd

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/evalenzup/facturacion-core/internal/domain"
	pkgcfdi "github.com/evalenzup/facturacion-core/pkg/cfdi"
)

// Material es el par certificado/llave listo para firmar, más el resultado de
// su validación. Se carga por operación; la llave nunca se cachea.
type Material struct {
	Cert *Certificado
	Key  *rsa.PrivateKey
	Par  *ResultadoPar
}

// MaterialStore entrega el material de sello del emisor. La implementación de
// archivos lee y descifra en cada llamada.
type MaterialStore interface {
	Material(emisorRFC string, now time.Time) (*Material, error)
}

// FileStore carga el CSD desde rutas configuradas (.cer + .key cifrada).
type FileStore struct {
	certPath   string
	keyPath    string
	passphrase string
}

// NewFileStore construye el almacén de material sobre el sistema de archivos.
func NewFileStore(certPath, keyPath, passphrase string) *FileStore {
	return &FileStore{certPath: certPath, keyPath: keyPath, passphrase: passphrase}
}

// Material lee, parsea y descifra el par, verifica que corresponda y que el
// certificado pertenezca al emisor solicitado. Un par no correspondiente o un
// RFC ajeno son fatales; la vigencia queda reportada en Par para el llamador.
func (s *FileStore) Material(emisorRFC string, now time.Time) (*Material, error) {
	if s.certPath == "" || s.keyPath == "" {
		return nil, fmt.Errorf("%w: rutas del CSD no configuradas", domain.ErrConfiguration)
	}

	certBytes, err := os.ReadFile(s.certPath)
	if err != nil {
		return nil, fmt.Errorf("%w: leer certificado %s: %v", domain.ErrConfiguration, s.certPath, err)
	}
	cert, err := ParseCertificado(certBytes)
	if err != nil {
		return nil, err
	}

	keyBytes, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: leer llave %s: %v", domain.ErrConfiguration, s.keyPath, err)
	}
	key, err := DecryptKey(keyBytes, s.passphrase)
	if err != nil {
		return nil, err
	}

	par, err := RequireMatchingPair(cert, key, now)
	if err != nil {
		return nil, err
	}

	if rfc := pkgcfdi.NormalizeRFC(emisorRFC); rfc != "" && cert.RFC != rfc {
		return nil, fmt.Errorf("%w: el certificado pertenece a %s, no a %s",
			domain.ErrConfiguration, cert.RFC, rfc)
	}

	return &Material{Cert: cert, Key: key, Par: par}, nil
}
