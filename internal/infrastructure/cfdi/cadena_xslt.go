package cfdi

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// XSLTConfig localiza la hoja de transformación oficial del SAT y el
// procesador externo que la ejecuta (las hojas 3.x usan XSLT 1.0).
type XSLTConfig struct {
	// StylesheetPath ruta a la hoja XSLT (ej. cadenaoriginal_3_3.xslt).
	StylesheetPath string
	// Processor binario procesador; por defecto xsltproc.
	Processor string
}

// XSLTDeriver deriva la cadena original delegando en un procesador XSLT
// externo. No impone timeout propio: el contexto del llamador acota la espera.
type XSLTDeriver struct {
	version string
	cfg     XSLTConfig
}

// NewXSLTDeriver valida la configuración y construye el deriver.
// La hoja de transformación ausente es un error de configuración, no de datos.
func NewXSLTDeriver(version string, cfg XSLTConfig) (*XSLTDeriver, error) {
	if cfg.StylesheetPath == "" {
		return nil, fmt.Errorf("%w: falta la hoja XSLT de cadena original para la versión %s", domain.ErrConfiguration, version)
	}
	if _, err := os.Stat(cfg.StylesheetPath); err != nil {
		return nil, fmt.Errorf("%w: hoja XSLT %s: %v", domain.ErrConfiguration, cfg.StylesheetPath, err)
	}
	if cfg.Processor == "" {
		cfg.Processor = "xsltproc"
	}
	return &XSLTDeriver{version: version, cfg: cfg}, nil
}

// Version implementa CadenaDeriver.
func (d *XSLTDeriver) Version() string { return d.version }

// Derivar implementa CadenaDeriver ejecutando el procesador con el XML por stdin.
func (d *XSLTDeriver) Derivar(ctx context.Context, xmlBytes []byte) (string, error) {
	cmd := exec.CommandContext(ctx, d.cfg.Processor, d.cfg.StylesheetPath, "-")
	cmd.Stdin = bytes.NewReader(xmlBytes)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("derivación XSLT interrumpida: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: procesador XSLT falló: %v (%s)",
			domain.ErrConfiguration, err, strings.TrimSpace(stderr.String()))
	}

	cadena := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(cadena, "||") || !strings.HasSuffix(cadena, "||") {
		return "", fmt.Errorf("%w: la salida del procesador no tiene forma de cadena original", domain.ErrValidation)
	}
	return cadena, nil
}
