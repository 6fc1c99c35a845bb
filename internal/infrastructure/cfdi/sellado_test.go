package cfdi_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infracfdi "github.com/evalenzup/facturacion-core/internal/infrastructure/cfdi"
)

func TestSellar_FirmaVerificable(t *testing.T) {
	priv, cert := generarCSDPrueba(t)
	svc := infracfdi.NewSelladoService()

	cadena := "||4.0|A|42|2026-08-30T12:00:00|..."
	sello, err := svc.Sellar(cadena, priv)
	require.NoError(t, err)

	firma, err := base64.StdEncoding.DecodeString(sello)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(cadena))
	require.NoError(t, rsa.VerifyPKCS1v15(&priv.PublicKey, crypto.SHA256, digest[:], firma))

	assert.NoError(t, infracfdi.VerificarSello(cadena, sello, cert))
}

func TestVerificarSello_Alterado(t *testing.T) {
	priv, cert := generarCSDPrueba(t)
	svc := infracfdi.NewSelladoService()

	sello, err := svc.Sellar("||4.0|original||", priv)
	require.NoError(t, err)

	assert.Error(t, infracfdi.VerificarSello("||4.0|alterada||", sello, cert))
}

func TestFirmarComprobante_PipelineCompleto(t *testing.T) {
	priv, cert := generarCSDPrueba(t)
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	svc := infracfdi.NewSelladoService()
	deriver := infracfdi.NewNativeDeriver40()

	xmlBytes, err := builder.Build(facturaDePrueba(t), time.Now())
	require.NoError(t, err)

	firmado, cadena, err := svc.FirmarComprobante(context.Background(), xmlBytes, deriver, cert, priv)
	require.NoError(t, err)
	require.NotEmpty(t, cadena)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(firmado))
	root := doc.Root()

	// NoCertificado y Certificado se fijan antes de derivar: la cadena ya los trae.
	assert.Equal(t, cert.NoCertificado, root.SelectAttrValue("NoCertificado", ""))
	assert.Contains(t, cadena, "|"+cert.NoCertificado+"|")

	certB64 := root.SelectAttrValue("Certificado", "")
	require.NotEmpty(t, certB64)
	der, err := base64.StdEncoding.DecodeString(certB64)
	require.NoError(t, err)
	assert.Equal(t, cert.Cert.Raw, der)

	sello := root.SelectAttrValue("Sello", "")
	require.NotEmpty(t, sello)
	assert.NoError(t, infracfdi.VerificarSello(cadena, sello, cert))
}

// TestFirmarComprobante_Determinista: mismo XML y llave, mismo sello.
// PKCS#1 v1.5 es determinista; si esto falla hay entropía en la cadena.
func TestFirmarComprobante_Determinista(t *testing.T) {
	priv, cert := generarCSDPrueba(t)
	builder := infracfdi.NewXMLBuilderService(time.UTC)
	svc := infracfdi.NewSelladoService()
	deriver := infracfdi.NewNativeDeriver40()

	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	xmlBytes, err := builder.Build(facturaDePrueba(t), now)
	require.NoError(t, err)

	_, cadenaA, err := svc.FirmarComprobante(context.Background(), xmlBytes, deriver, cert, priv)
	require.NoError(t, err)
	_, cadenaB, err := svc.FirmarComprobante(context.Background(), xmlBytes, deriver, cert, priv)
	require.NoError(t, err)
	assert.Equal(t, cadenaA, cadenaB)

	selloA, err := svc.Sellar(cadenaA, priv)
	require.NoError(t, err)
	selloB, err := svc.Sellar(cadenaB, priv)
	require.NoError(t, err)
	assert.Equal(t, selloA, selloB)
}

func TestFirmarComprobante_SinCertificado(t *testing.T) {
	priv, _ := generarCSDPrueba(t)
	svc := infracfdi.NewSelladoService()

	_, _, err := svc.FirmarComprobante(context.Background(), []byte("<x/>"), infracfdi.NewNativeDeriver40(), nil, priv)
	assert.Error(t, err)
}

// La llave de firma debe pertenecer al certificado publicado: una llave ajena
// produce un sello que el propio certificado no verifica.
func TestSellar_LlaveAjenaNoVerifica(t *testing.T) {
	_, cert := generarCSDPrueba(t)
	otra, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	svc := infracfdi.NewSelladoService()
	sello, err := svc.Sellar("||4.0|cadena||", otra)
	require.NoError(t, err)

	assert.Error(t, infracfdi.VerificarSello("||4.0|cadena||", sello, cert))
}
