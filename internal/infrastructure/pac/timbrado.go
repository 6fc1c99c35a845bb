package pac

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
)

// ── Envelope de timbrado ──────────────────────────────────────────────────────

// requestTimbrado es el envelope de la operación de timbrado del PAC.
type requestTimbrado struct {
	XMLName    xml.Name `xml:"requestTimbradoCFDI"`
	UserID     string   `xml:"UserID"`
	UserPass   string   `xml:"UserPass"`
	EmisorRFC  string   `xml:"emisorRFC"`
	Text2CFDI  string   `xml:"text2CFDI"` // XML sellado en Base64
	GenerarCBB bool     `xml:"generarCBB"`
	GenerarTXT bool     `xml:"generarTXT"`
	GenerarPDF bool     `xml:"generarPDF"`
}

// respuestaTimbrado respuesta exitosa: documentos en Base64.
type respuestaTimbrado struct {
	XML string `xml:"xml"` // CFDI timbrado (con tfd:TimbreFiscalDigital)
	PNG string `xml:"png"` // CBB opcional
	TXT string `xml:"txt"`
	PDF string `xml:"pdf"`
}

// faultPAC rechazo explícito del PAC.
type faultPAC struct {
	Code        string `xml:"code"`
	Description string `xml:"description"`
}

// envelopeRespuesta acepta cualquiera de las dos formas de respuesta.
type envelopeRespuesta struct {
	Timbrado *respuestaTimbrado `xml:"respuestaTimbrado"`
	Fault    *faultPAC          `xml:"fault"`
}

// OpcionesTimbrado formatos adicionales a solicitar al PAC.
type OpcionesTimbrado struct {
	GenerarCBB bool
	GenerarTXT bool
	GenerarPDF bool
}

// ResultadoTimbrado es el producto del timbrado: el XML ya timbrado, el timbre
// extraído y los adjuntos opcionales que el PAC haya devuelto.
type ResultadoTimbrado struct {
	XMLTimbrado []byte
	Timbre      *entity.Timbre
	CBB         []byte
	TXT         []byte
	PDF         []byte
}

// Timbrar envía el XML sellado al PAC y devuelve el comprobante timbrado.
//
// Un fault del PAC se devuelve textual como *domain.PACFault y nunca se
// reintenta. Una respuesta "exitosa" sin XML o sin UUID es una violación de
// protocolo: fatal, el llamador no debe persistir transición alguna.
func (c *Client) Timbrar(ctx context.Context, xmlSellado []byte, emisorRFC string, opts OpcionesTimbrado) (*ResultadoTimbrado, error) {
	req := requestTimbrado{
		UserID:     c.cfg.UserID,
		UserPass:   c.cfg.UserPass,
		EmisorRFC:  emisorRFC,
		Text2CFDI:  base64.StdEncoding.EncodeToString(xmlSellado),
		GenerarCBB: opts.GenerarCBB,
		GenerarTXT: opts.GenerarTXT,
		GenerarPDF: opts.GenerarPDF,
	}
	payload, err := xml.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("timbrado: serializar envelope: %w", err)
	}

	rawBody, err := c.post(ctx, "timbrado", c.cfg.TimbradoURL, payload)
	if err != nil {
		return nil, err
	}
	return c.parseTimbrado(rawBody)
}

func (c *Client) parseTimbrado(rawBody []byte) (*ResultadoTimbrado, error) {
	var env envelopeRespuesta
	if err := xml.Unmarshal(rawBody, &env); err != nil {
		return nil, fmt.Errorf("%w: respuesta de timbrado no parseable: %v", domain.ErrProtocolViolation, err)
	}

	if env.Fault != nil {
		return nil, &domain.PACFault{Code: env.Fault.Code, Description: env.Fault.Description}
	}
	if env.Timbrado == nil || env.Timbrado.XML == "" {
		return nil, fmt.Errorf("%w: respuesta sin fault y sin CFDI timbrado", domain.ErrProtocolViolation)
	}

	xmlTimbrado, err := base64.StdEncoding.DecodeString(env.Timbrado.XML)
	if err != nil {
		return nil, fmt.Errorf("%w: CFDI timbrado no es Base64: %v", domain.ErrProtocolViolation, err)
	}

	timbre, err := c.ExtractTimbre(xmlTimbrado)
	if err != nil {
		return nil, err
	}

	res := &ResultadoTimbrado{XMLTimbrado: xmlTimbrado, Timbre: timbre}
	res.CBB = decodeOpcional(env.Timbrado.PNG)
	res.TXT = decodeOpcional(env.Timbrado.TXT)
	res.PDF = decodeOpcional(env.Timbrado.PDF)
	return res, nil
}

// decodeOpcional decodifica un adjunto opcional; un adjunto corrupto se
// descarta sin abortar el timbrado, el CFDI timbrado ya es válido.
func decodeOpcional(b64 string) []byte {
	if b64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil
	}
	return data
}
