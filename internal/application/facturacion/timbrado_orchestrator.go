package facturacion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/evalenzup/facturacion-core/internal/domain"
	domcfdi "github.com/evalenzup/facturacion-core/internal/domain/cfdi"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	"github.com/evalenzup/facturacion-core/internal/domain/repository"
	infracfdi "github.com/evalenzup/facturacion-core/internal/infrastructure/cfdi"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/csd"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/pac"
	"github.com/evalenzup/facturacion-core/pkg/logger"
)

// Modos de operación del pipeline.
const (
	EnvDev  = "dev"  // Sella pero no envía al PAC
	EnvTest = "test" // Envía al endpoint de pruebas del PAC
	EnvProd = "prod"
)

// PipelineConfig parámetros del orquestador de timbrado.
type PipelineConfig struct {
	Env      string
	XSLT     infracfdi.XSLTConfig
	Opciones pac.OpcionesTimbrado
}

// ResultadoPipeline producto de una corrida del pipeline.
type ResultadoPipeline struct {
	Comprobante *entity.Comprobante
	Cadena      string
	XMLSellado  []byte
	XMLTimbrado []byte // vacío en modo dev
}

// TimbradoOrchestrator orquesta el ciclo completo de un comprobante:
//
//	DRAFT → impuestos → folio → XML → cadena original → sello → PAC → TIMBRADO
//
// Ejecución síncrona, una corrida por llamador. Toda ruta de error deja el
// comprobante en su último estado consistente: tras el sellado persistido, el
// timbrado puede reintentarse desde ahí sin re-firmar a ciegas.
type TimbradoOrchestrator struct {
	comprobantes repository.ComprobanteRepository
	sequencer    *FolioSequencer
	engine       *domcfdi.TaxEngine
	builder      *infracfdi.XMLBuilderService
	sellador     *infracfdi.SelladoService
	material     csd.MaterialStore
	timbrador    pac.Timbrador
	artifacts    ArtifactStore
	cfg          PipelineConfig
	log          *logger.Logger
}

// NewTimbradoOrchestrator construye el orquestador con todas sus dependencias.
// timbrador puede ser nil solo en modo dev.
func NewTimbradoOrchestrator(
	comprobantes repository.ComprobanteRepository,
	sequencer *FolioSequencer,
	builder *infracfdi.XMLBuilderService,
	sellador *infracfdi.SelladoService,
	material csd.MaterialStore,
	timbrador pac.Timbrador,
	artifacts ArtifactStore,
	cfg PipelineConfig,
	log *logger.Logger,
) *TimbradoOrchestrator {
	return &TimbradoOrchestrator{
		comprobantes: comprobantes,
		sequencer:    sequencer,
		engine:       domcfdi.NewTaxEngine(),
		builder:      builder,
		sellador:     sellador,
		material:     material,
		timbrador:    timbrador,
		artifacts:    artifacts,
		cfg:          cfg,
		log:          log,
	}
}

// Timbrar ejecuta el pipeline completo para un comprobante en DRAFT.
func (o *TimbradoOrchestrator) Timbrar(ctx context.Context, comprobanteID string) (*ResultadoPipeline, error) {
	log := o.log.With().Str("comprobante_id", comprobanteID).Logger()

	c, err := o.comprobantes.GetByID(ctx, comprobanteID)
	if err != nil {
		return nil, err
	}
	if c.Estado != entity.EstadoDraft {
		return nil, fmt.Errorf("%w: timbrar exige DRAFT, el comprobante está %s", domain.ErrEstadoInvalido, c.Estado)
	}

	// 1. Impuestos y totales: siempre derivados, nunca se confía en lo editado.
	if c.Tipo == entity.TipoIngreso {
		conceptos, totales, err := o.engine.Calculate(c.Conceptos)
		if err != nil {
			return nil, o.fallo(&log, "impuestos", err)
		}
		c.Conceptos = conceptos
		c.Resumen = totales.Resumen
		c.SubTotal = totales.SubTotal
		c.Descuento = totales.Descuento
		c.Total = totales.Total
	}

	// 2. Folio: una sola vez; un comprobante con folio lo conserva.
	if c.Folio == 0 {
		folio, err := o.sequencer.Next(ctx, c.EmisorRFC, c.Serie)
		if err != nil {
			return nil, o.fallo(&log, "folio", err)
		}
		c.Folio = folio
		log.Info().Int64("folio", folio).Str("serie", c.Serie).Msg("folio asignado")
	}

	// 3. Ensamblado del XML sin sello.
	now := time.Now()
	xmlBytes, err := o.builder.Build(c, now)
	if err != nil {
		return nil, o.fallo(&log, "ensamblado", err)
	}

	// 4. Material de sello: cargado por operación, nunca cacheado.
	mat, err := o.material.Material(c.EmisorRFC, now)
	if err != nil {
		return nil, o.fallo(&log, "material", err)
	}
	if !mat.Par.Vigente {
		return nil, o.fallo(&log, "material",
			fmt.Errorf("%w: %s", domain.ErrConfiguration, mat.Par.Razon))
	}

	// 5. Cadena original + sello.
	deriver, err := infracfdi.SelectDeriver(c.Version, o.cfg.XSLT)
	if err != nil {
		return nil, o.fallo(&log, "cadena", err)
	}
	firmado, cadena, err := o.sellador.FirmarComprobante(ctx, xmlBytes, deriver, mat.Cert, mat.Key)
	if err != nil {
		return nil, o.fallo(&log, "sello", err)
	}
	sello, noCert, certB64, err := infracfdi.AtributosSello(firmado)
	if err != nil {
		return nil, o.fallo(&log, "sello", err)
	}
	c.Sello, c.NoCertificado, c.Certificado = sello, noCert, certB64

	if err := o.comprobantes.GuardarSellado(ctx, c); err != nil {
		return nil, o.fallo(&log, "persistir-sello", err)
	}

	res := &ResultadoPipeline{Comprobante: c, Cadena: cadena, XMLSellado: firmado}

	// 6. PAC. En dev el pipeline termina aquí: sellado, sin timbrar.
	if o.cfg.Env == EnvDev {
		log.Info().Msg("modo dev: comprobante sellado, timbrado omitido")
		return res, nil
	}
	if o.timbrador == nil {
		return nil, o.fallo(&log, "timbrado",
			fmt.Errorf("%w: cliente PAC no configurado para el entorno %s", domain.ErrConfiguration, o.cfg.Env))
	}

	timbrado, err := o.timbrador.Timbrar(ctx, firmado, c.EmisorRFC, o.cfg.Opciones)
	if err != nil {
		// Fault o transporte: el comprobante queda DRAFT con sello persistido,
		// re-ejecutar el pipeline es seguro.
		return nil, o.fallo(&log, "timbrado", err)
	}

	// 7. Artefactos + transición atómica DRAFT → TIMBRADO.
	xmlPath, err := o.artifacts.Guardar(c.EmisorRFC, c.Serie, c.Folio, timbrado.Timbre.UUID, "xml", timbrado.XMLTimbrado)
	if err != nil {
		return nil, o.fallo(&log, "artefactos", err)
	}
	pdfPath := ""
	if len(timbrado.PDF) > 0 {
		if pdfPath, err = o.artifacts.Guardar(c.EmisorRFC, c.Serie, c.Folio, timbrado.Timbre.UUID, "pdf", timbrado.PDF); err != nil {
			return nil, o.fallo(&log, "artefactos", err)
		}
	}

	if err := o.comprobantes.MergeTimbre(ctx, c.ID, timbrado.Timbre, xmlPath, pdfPath); err != nil {
		return nil, o.fallo(&log, "persistir-timbre", err)
	}

	c.Estado = entity.EstadoTimbrado
	c.Timbre = timbrado.Timbre
	c.XMLPath = xmlPath
	c.PDFPath = pdfPath
	res.XMLTimbrado = timbrado.XMLTimbrado

	log.Info().
		Str("uuid", timbrado.Timbre.UUID).
		Str("serie", c.Serie).
		Int64("folio", c.Folio).
		Msg("comprobante timbrado")
	return res, nil
}

// ResetADraft operación administrativa: limpia el timbre y regresa a DRAFT.
func (o *TimbradoOrchestrator) ResetADraft(ctx context.Context, comprobanteID string) error {
	if err := o.comprobantes.ResetADraft(ctx, comprobanteID); err != nil {
		return err
	}
	o.log.Warn().Str("comprobante_id", comprobanteID).Msg("comprobante regresado a DRAFT (reset administrativo)")
	return nil
}

// fallo registra la etapa fallida y devuelve el error envuelto con ella.
func (o *TimbradoOrchestrator) fallo(log *zerolog.Logger, etapa string, err error) error {
	log.Error().Err(err).Str("etapa", etapa).Msg("pipeline de timbrado detenido")
	return fmt.Errorf("%s: %w", etapa, err)
}
