package csd

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// encryptedPrivateKeyInfo es la estructura externa de un PKCS#8 cifrado
// (RFC 5958). Solo se usa para distinguir "contraseña incorrecta" de
// "formato no soportado": si el contenedor parsea pero el descifrado falla,
// el problema es la contraseña.
type encryptedPrivateKeyInfo struct {
	Algo          asn1.RawValue
	EncryptedData []byte
}

// DecryptKey descifra la llave privada del contribuyente probando, en orden:
//
//  1. DER binario: PKCS#8 cifrado (formato .key del SAT), PKCS#8 plano, PKCS#1.
//  2. PEM: bloques PRIVATE KEY, RSA PRIVATE KEY y ENCRYPTED PRIVATE KEY.
//  3. Contenedor PKCS#12 (.pfx) protegido por contraseña.
//
// Devuelve ErrBadPassphrase cuando el material es reconocible pero la
// contraseña no descifra, y ErrCorruptMaterial cuando ningún formato aplica.
func DecryptKey(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: llave vacía", domain.ErrCorruptMaterial)
	}

	// 1) DER binario
	if key, err := decryptDER(data, passphrase); err == nil {
		return key, nil
	} else if errors.Is(err, domain.ErrBadPassphrase) {
		return nil, err
	}

	// 2) PEM
	if block, _ := pem.Decode(data); block != nil {
		return decryptPEMBlock(block, passphrase)
	}

	// 3) PKCS#12
	if priv, _, err := pkcs12.Decode(data, passphrase); err == nil {
		if rsaKey, ok := priv.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: el PKCS#12 no contiene llave RSA", domain.ErrCorruptMaterial)
	} else if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, domain.ErrBadPassphrase
	}

	return nil, fmt.Errorf("%w: la llave no es PKCS#8, PEM ni PKCS#12", domain.ErrCorruptMaterial)
}

func decryptDER(der []byte, passphrase string) (*rsa.PrivateKey, error) {
	// ¿Es un PKCS#8 cifrado? Si la estructura externa parsea, cualquier fallo
	// posterior de descifrado se atribuye a la contraseña.
	var epki encryptedPrivateKeyInfo
	if rest, err := asn1.Unmarshal(der, &epki); err == nil && len(rest) == 0 && len(epki.EncryptedData) > 0 {
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(der, []byte(passphrase))
		if err != nil {
			return nil, domain.ErrBadPassphrase
		}
		return key, nil
	}

	// PKCS#8 plano
	if keyAny, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := keyAny.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: llave PKCS#8 no RSA", domain.ErrCorruptMaterial)
	}

	// PKCS#1 plano
	if rsaKey, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return rsaKey, nil
	}

	return nil, fmt.Errorf("%w: DER no reconocido", domain.ErrCorruptMaterial)
}

func decryptPEMBlock(block *pem.Block, passphrase string) (*rsa.PrivateKey, error) {
	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, domain.ErrBadPassphrase
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: PEM PKCS#1 corrupto: %v", domain.ErrCorruptMaterial, err)
		}
		return key, nil
	case "PRIVATE KEY":
		keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: PEM PKCS#8 corrupto: %v", domain.ErrCorruptMaterial, err)
		}
		rsaKey, ok := keyAny.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: llave PEM no RSA", domain.ErrCorruptMaterial)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("%w: bloque PEM %q no soportado", domain.ErrCorruptMaterial, block.Type)
	}
}
