package csd_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/csd"
)

const (
	testRFC      = "EKU9003173C9"
	testSerial   = "30001000000300023708" // bytes ASCII, esquema SAT
	testPassword = "12345678a"
)

// generarCSD emite un certificado autofirmado con la forma de un CSD del SAT:
// serial de dígitos ASCII, RFC en x500UniqueIdentifier y key usage de solo firma.
func generarCSD(t *testing.T, notBefore, notAfter time.Time, keyUsage x509.KeyUsage) (*rsa.PrivateKey, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: new(big.Int).SetBytes([]byte(testSerial)),
		Subject: pkix.Name{
			CommonName: "ESCUELA KEMPER URGATE SA DE CV",
			ExtraNames: []pkix.AttributeTypeAndValue{
				{Type: asn1.ObjectIdentifier{2, 5, 4, 45}, Value: testRFC + " / VADA800927DJ3"},
			},
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,
		KeyUsage:  keyUsage,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	return priv, der
}

func vigencia() (time.Time, time.Time) {
	now := time.Now()
	return now.Add(-time.Hour), now.Add(365 * 24 * time.Hour)
}

// ── Certificado ───────────────────────────────────────────────────────────────

func TestParseCertificado_DER(t *testing.T) {
	nb, na := vigencia()
	_, der := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment)

	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)
	assert.Equal(t, testRFC, cert.RFC, "el RFC sale del x500UniqueIdentifier, sin la CURP")
	assert.Equal(t, testSerial, cert.NoCertificado, "NoCertificado = bytes ASCII del serial")
	assert.Equal(t, csd.TipoCSD, cert.Tipo)
	assert.True(t, cert.Vigente(time.Now()))
}

func TestParseCertificado_PEM(t *testing.T) {
	nb, na := vigencia()
	_, der := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	cert, err := csd.ParseCertificado(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, testRFC, cert.RFC, "DER y PEM deben aceptarse de forma transparente")
}

func TestParseCertificado_TipoFIEL(t *testing.T) {
	nb, na := vigencia()
	_, der := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment)

	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)
	assert.Equal(t, csd.TipoFIEL, cert.Tipo, "key usage de cifrado implica e.firma, no CSD")
}

func TestParseCertificado_Corrupto(t *testing.T) {
	_, err := csd.ParseCertificado([]byte("no soy un certificado"))
	assert.ErrorIs(t, err, domain.ErrCorruptMaterial)
}

// ── Llave privada ─────────────────────────────────────────────────────────────

func TestDecryptKey_PKCS8CifradoDER(t *testing.T) {
	nb, na := vigencia()
	priv, _ := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)

	der, err := pkcs8.MarshalPrivateKey(priv, []byte(testPassword), nil)
	require.NoError(t, err)

	key, err := csd.DecryptKey(der, testPassword)
	require.NoError(t, err)
	assert.Zero(t, key.N.Cmp(priv.N), "la llave descifrada debe ser la original")
}

func TestDecryptKey_ContrasenaIncorrecta(t *testing.T) {
	nb, na := vigencia()
	priv, _ := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)

	der, err := pkcs8.MarshalPrivateKey(priv, []byte(testPassword), nil)
	require.NoError(t, err)

	_, err = csd.DecryptKey(der, "otra-contraseña")
	assert.ErrorIs(t, err, domain.ErrBadPassphrase,
		"contraseña mala debe distinguirse de material corrupto")
}

func TestDecryptKey_PKCS8PlanoDER(t *testing.T) {
	nb, na := vigencia()
	priv, _ := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	key, err := csd.DecryptKey(der, "")
	require.NoError(t, err)
	assert.Zero(t, key.N.Cmp(priv.N))
}

func TestDecryptKey_PEMPKCS1(t *testing.T) {
	nb, na := vigencia()
	priv, _ := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	key, err := csd.DecryptKey(pemBytes, "")
	require.NoError(t, err)
	assert.Zero(t, key.N.Cmp(priv.N))
}

func TestDecryptKey_FormatoNoSoportado(t *testing.T) {
	_, err := csd.DecryptKey([]byte{0xde, 0xad, 0xbe, 0xef}, testPassword)
	assert.ErrorIs(t, err, domain.ErrCorruptMaterial)
}

// ── Par certificado/llave ─────────────────────────────────────────────────────

func TestValidatePair_ParCorrecto(t *testing.T) {
	nb, na := vigencia()
	priv, der := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)
	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)

	res, err := csd.ValidatePair(cert, priv, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Corresponde)
	assert.True(t, res.Vigente)
	assert.Empty(t, res.Razon)
}

// Una llave que descifra bien pero no corresponde al certificado se rechaza.
func TestValidatePair_LlaveAjena(t *testing.T) {
	nb, na := vigencia()
	_, der := generarCSD(t, nb, na, x509.KeyUsageDigitalSignature)
	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)

	otra, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	res, err := csd.ValidatePair(cert, otra, time.Now())
	require.NoError(t, err)
	assert.False(t, res.Corresponde)

	_, err = csd.RequireMatchingPair(cert, otra, time.Now())
	assert.ErrorIs(t, err, domain.ErrPairMismatch)
}

// Un par expirado pero correspondiente se acepta como par; la vigencia se
// reporta como hecho independiente.
func TestValidatePair_ExpiradoPeroCorrespondiente(t *testing.T) {
	priv, der := generarCSD(t,
		time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour),
		x509.KeyUsageDigitalSignature)
	cert, err := csd.ParseCertificado(der)
	require.NoError(t, err)

	res, err := csd.ValidatePair(cert, priv, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Corresponde, "expirado no implica par incorrecto")
	assert.False(t, res.Vigente)
	assert.Contains(t, res.Razon, "vigencia")
}
