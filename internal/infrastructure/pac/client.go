// Package pac implementa el cliente de timbrado y cancelación contra el
// proveedor autorizado de certificación (PAC): sobre HTTP+XML, parseo de la
// respuesta y extracción del TimbreFiscalDigital.
package pac

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/pkg/logger"
)

// Entornos del PAC.
const (
	AppEnvTest = "test" // Endpoint de pruebas del PAC
	AppEnvProd = "prod" // Endpoint de producción
	AppEnvDev  = "dev"  // Local: no envía al PAC
)

// DefaultTimeout timeout de red por defecto; el PAC puede tardar varios
// segundos en responder.
const DefaultTimeout = 60 * time.Second

// maxResponseBytes acota la lectura del cuerpo de respuesta.
const maxResponseBytes = 4 << 20

// Timbrador define el puerto de salida del timbrado. La implementación
// concreta es Client; para tests se puede inyectar un mock.
type Timbrador interface {
	Timbrar(ctx context.Context, xmlSellado []byte, emisorRFC string, opts OpcionesTimbrado) (*ResultadoTimbrado, error)
}

// Cancelador define el puerto de salida de la cancelación.
type Cancelador interface {
	Cancelar(ctx context.Context, sol SolicitudCancelacion) (*Acuse, error)
}

// Config credenciales y endpoints del PAC.
type Config struct {
	TimbradoURL    string
	CancelacionURL string
	UserID         string
	UserPass       string
	Timeout        time.Duration
}

// Client cliente HTTP hacia el PAC. Nunca reintenta por su cuenta: un fault
// se expone textual y las fallas de transporte se envuelven para que el
// llamador decida.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

var (
	_ Timbrador  = (*Client)(nil)
	_ Cancelador = (*Client)(nil)
)

// NewClient construye el cliente con el timeout configurado (60 s por defecto).
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// post envía el payload XML y devuelve el cuerpo de la respuesta.
// Errores de red o de status se reportan como TransportError.
func (c *Client) post(ctx context.Context, op, url string, payload []byte) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: endpoint del PAC para %s no configurado", domain.ErrConfiguration, op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.TransportError{Op: op, Err: ctx.Err()}
		}
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.TransportError{
			Op:  op,
			Err: fmt.Errorf("status HTTP %d: %s", resp.StatusCode, truncar(rawBody, 300)),
		}
	}
	return rawBody, nil
}

func truncar(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
