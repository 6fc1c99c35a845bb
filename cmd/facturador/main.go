package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/evalenzup/facturacion-core/internal/application/facturacion"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/artifacts"
	infracfdi "github.com/evalenzup/facturacion-core/internal/infrastructure/cfdi"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/csd"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/pac"
	"github.com/evalenzup/facturacion-core/internal/infrastructure/postgres"
	"github.com/evalenzup/facturacion-core/pkg/config"
	"github.com/evalenzup/facturacion-core/pkg/logger"
)

// facturador: operación puntual sobre un comprobante ya capturado.
//
//	facturador timbrar  -id <uuid>
//	facturador cancelar -id <uuid> -motivo 02 [-sustitucion <uuid-fiscal>]
//	facturador reset    -id <uuid>
func main() {
	if len(os.Args) < 2 {
		uso()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("modo_timbrado", cfg.Timbrado.Env).
		Msg("iniciando facturador")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	comprobanteRepo := postgres.NewComprobanteRepository(pool)
	txRunner := postgres.NewTxRunner(pool)
	sequencer := facturacion.NewFolioSequencer(txRunner, log)

	tz, err := time.LoadLocation(cfg.Timbrado.TimeZone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.Timbrado.TimeZone).Msg("zona horaria inválida")
	}

	materialStore := csd.NewFileStore(cfg.CSD.CertPath, cfg.CSD.KeyPath, cfg.CSD.Passphrase)

	// Cliente PAC — solo se usa si el modo es "test" o "prod".
	// En modo "dev" el orquestador no lo invoca.
	var timbrador pac.Timbrador
	var cancelador pac.Cancelador
	if cfg.Timbrado.Env != facturacion.EnvDev && cfg.Timbrado.Env != "" {
		cliente := pac.NewClient(pac.Config{
			TimbradoURL:    cfg.PAC.TimbradoURL,
			CancelacionURL: cfg.PAC.CancelacionURL,
			UserID:         cfg.PAC.UserID,
			UserPass:       cfg.PAC.UserPass,
			Timeout:        cfg.PAC.Timeout(),
		}, log)
		timbrador = cliente
		cancelador = cliente
	}

	orquestador := facturacion.NewTimbradoOrchestrator(
		comprobanteRepo,
		sequencer,
		infracfdi.NewXMLBuilderService(tz),
		infracfdi.NewSelladoService(),
		materialStore,
		timbrador,
		artifacts.NewStore(cfg.Timbrado.ArtifactsDir),
		facturacion.PipelineConfig{
			Env:  cfg.Timbrado.Env,
			XSLT: infracfdi.XSLTConfig{StylesheetPath: cfg.Timbrado.XSLTPath},
		},
		log,
	)

	switch os.Args[1] {
	case "timbrar":
		fs := flag.NewFlagSet("timbrar", flag.ExitOnError)
		id := fs.String("id", "", "id del comprobante a timbrar")
		_ = fs.Parse(os.Args[2:])
		exigir(*id, "-id")

		res, err := orquestador.Timbrar(ctx, *id)
		if err != nil {
			log.Fatal().Err(err).Msg("timbrado fallido")
		}
		if res.Comprobante.Timbre != nil {
			fmt.Println(res.Comprobante.Timbre.UUID)
		} else {
			fmt.Println("sellado (modo dev, sin timbrar)")
		}

	case "cancelar":
		fs := flag.NewFlagSet("cancelar", flag.ExitOnError)
		id := fs.String("id", "", "id del comprobante a cancelar")
		motivo := fs.String("motivo", "", "motivo SAT: 01, 02, 03 o 04")
		sustitucion := fs.String("sustitucion", "", "UUID que sustituye (solo motivo 01)")
		_ = fs.Parse(os.Args[2:])
		exigir(*id, "-id")
		exigir(*motivo, "-motivo")

		if cancelador == nil {
			log.Fatal().Msg("cancelar requiere modo test o prod")
		}
		uc := facturacion.NewCancelacionUseCase(comprobanteRepo, cancelador, log)
		acuse, err := uc.Cancelar(ctx, *id, *motivo, *sustitucion)
		if err != nil {
			log.Fatal().Err(err).Msg("cancelación fallida")
		}
		fmt.Printf("%s: %s\n", acuse.Codigo, acuse.Mensaje)

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ExitOnError)
		id := fs.String("id", "", "id del comprobante a regresar a DRAFT")
		_ = fs.Parse(os.Args[2:])
		exigir(*id, "-id")

		if err := orquestador.ResetADraft(ctx, *id); err != nil {
			log.Fatal().Err(err).Msg("reset fallido")
		}
		fmt.Println("comprobante en DRAFT")

	default:
		uso()
		os.Exit(2)
	}
}

func exigir(valor, bandera string) {
	if valor == "" {
		fmt.Fprintf(os.Stderr, "falta %s\n", bandera)
		os.Exit(2)
	}
}

func uso() {
	fmt.Fprintln(os.Stderr, "uso: facturador <timbrar|cancelar|reset> [flags]")
}
