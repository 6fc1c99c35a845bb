package csd

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// ResultadoPar reporta la validación certificado/llave como dos hechos
// independientes: "la llave corresponde al certificado" y "el certificado
// está vigente". Un par expirado pero correspondiente sigue siendo un par.
type ResultadoPar struct {
	Corresponde bool
	Vigente     bool
	Razon       string
}

// ValidatePair verifica que el módulo público del certificado coincida con el
// componente público de la llave, y por separado la vigencia del certificado.
func ValidatePair(cert *Certificado, key *rsa.PrivateKey, now time.Time) (*ResultadoPar, error) {
	if cert == nil || cert.Cert == nil {
		return nil, fmt.Errorf("%w: certificado nulo", domain.ErrCrypto)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: llave nula", domain.ErrCrypto)
	}

	certPub, ok := cert.Cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado no contiene llave pública RSA", domain.ErrCorruptMaterial)
	}

	res := &ResultadoPar{
		Corresponde: certPub.N.Cmp(key.N) == 0 && certPub.E == key.E,
		Vigente:     cert.Vigente(now),
	}
	switch {
	case !res.Corresponde:
		res.Razon = "el módulo de la llave no coincide con el del certificado"
	case !res.Vigente:
		res.Razon = fmt.Sprintf("certificado fuera de vigencia (%s a %s)",
			cert.NotBefore.Format("2006-01-02"), cert.NotAfter.Format("2006-01-02"))
	}
	return res, nil
}

// RequireMatchingPair es el guard previo a la firma: rechaza pares no
// correspondientes con ErrPairMismatch. La vigencia NO bloquea aquí; se
// reporta por separado para que el orquestador decida.
func RequireMatchingPair(cert *Certificado, key *rsa.PrivateKey, now time.Time) (*ResultadoPar, error) {
	res, err := ValidatePair(cert, key, now)
	if err != nil {
		return nil, err
	}
	if !res.Corresponde {
		return res, domain.ErrPairMismatch
	}
	return res, nil
}
