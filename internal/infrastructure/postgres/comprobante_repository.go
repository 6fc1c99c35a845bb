package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
	"github.com/evalenzup/facturacion-core/internal/domain/repository"
)

var _ repository.ComprobanteRepository = (*ComprobanteRepo)(nil)

// ComprobanteRepo implementación de ComprobanteRepository (usable con pool o tx).
// Cabecera e importes en columnas; conceptos, resumen y pagos en JSONB.
type ComprobanteRepo struct {
	q Querier
}

// NewComprobanteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewComprobanteRepository(q Querier) *ComprobanteRepo {
	return &ComprobanteRepo{q: q}
}

// Create persiste un comprobante en estado DRAFT.
func (r *ComprobanteRepo) Create(ctx context.Context, c *entity.Comprobante) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Estado == "" {
		c.Estado = entity.EstadoDraft
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now

	detalle, err := marshalDetalle(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO comprobantes (
			id, tipo, version, serie, folio, fecha,
			emisor_rfc, emisor_nombre, regimen_fiscal,
			receptor_rfc, receptor_nombre, receptor_cp, receptor_regimen, uso_cfdi,
			moneda, tipo_cambio, lugar_expedicion, exportacion, metodo_pago, forma_pago,
			detalle, subtotal, descuento, total, estado, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
	_, err = r.q.Exec(ctx, query,
		c.ID, c.Tipo, c.Version, c.Serie, c.Folio, c.Fecha,
		c.EmisorRFC, c.EmisorNombre, c.RegimenFiscal,
		c.ReceptorRFC, c.ReceptorNombre, c.ReceptorCP, c.ReceptorRegimen, c.UsoCFDI,
		c.Moneda, c.TipoCambio, c.LugarExpedicion, c.Exportacion, c.MetodoPago, nullIfEmpty(c.FormaPago),
		detalle, c.SubTotal, c.Descuento, c.Total, c.Estado, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("comprobante duplicado: %w", err)
		}
		return fmt.Errorf("insert comprobante: %w", err)
	}
	return nil
}

// GetByID carga el comprobante completo.
func (r *ComprobanteRepo) GetByID(ctx context.Context, id string) (*entity.Comprobante, error) {
	query := `
		SELECT id, tipo, version, serie, folio, fecha,
		       emisor_rfc, emisor_nombre, regimen_fiscal,
		       receptor_rfc, receptor_nombre, receptor_cp, receptor_regimen, uso_cfdi,
		       moneda, tipo_cambio, lugar_expedicion, exportacion, metodo_pago, forma_pago,
		       detalle, subtotal, descuento, total,
		       sello, no_certificado, certificado, estado,
		       timbre_uuid, fecha_timbrado, rfc_prov_certif, no_certificado_sat, sello_cfd, sello_sat,
		       xml_path, pdf_path,
		       cancel_motivo, cancel_folio_sustitucion, cancel_acuse_codigo, cancel_acuse_mensaje, cancel_fecha_solicitud,
		       created_at, updated_at
		FROM comprobantes WHERE id = $1`

	var c entity.Comprobante
	var detalle []byte
	var formaPago, sello, noCert, cert *string
	var timbreUUID, rfcProv, noCertSAT, selloCFD, selloSAT *string
	var fechaTimbrado *time.Time
	var xmlPath, pdfPath *string
	var cancelMotivo, cancelFolioSust, cancelCodigo, cancelMensaje *string
	var cancelFecha *time.Time

	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Tipo, &c.Version, &c.Serie, &c.Folio, &c.Fecha,
		&c.EmisorRFC, &c.EmisorNombre, &c.RegimenFiscal,
		&c.ReceptorRFC, &c.ReceptorNombre, &c.ReceptorCP, &c.ReceptorRegimen, &c.UsoCFDI,
		&c.Moneda, &c.TipoCambio, &c.LugarExpedicion, &c.Exportacion, &c.MetodoPago, &formaPago,
		&detalle, &c.SubTotal, &c.Descuento, &c.Total,
		&sello, &noCert, &cert, &c.Estado,
		&timbreUUID, &fechaTimbrado, &rfcProv, &noCertSAT, &selloCFD, &selloSAT,
		&xmlPath, &pdfPath,
		&cancelMotivo, &cancelFolioSust, &cancelCodigo, &cancelMensaje, &cancelFecha,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: comprobante %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get comprobante: %w", err)
	}

	if err := unmarshalDetalle(detalle, &c); err != nil {
		return nil, err
	}
	c.FormaPago = derefStr(formaPago)
	c.Sello = derefStr(sello)
	c.NoCertificado = derefStr(noCert)
	c.Certificado = derefStr(cert)
	c.XMLPath = derefStr(xmlPath)
	c.PDFPath = derefStr(pdfPath)

	if timbreUUID != nil {
		c.Timbre = &entity.Timbre{
			UUID:             *timbreUUID,
			RfcProvCertif:    derefStr(rfcProv),
			NoCertificadoSAT: derefStr(noCertSAT),
			SelloCFD:         derefStr(selloCFD),
			SelloSAT:         derefStr(selloSAT),
		}
		if fechaTimbrado != nil {
			c.Timbre.FechaTimbrado = *fechaTimbrado
		}
	}
	if cancelMotivo != nil {
		c.Cancelacion = &entity.Cancelacion{
			Motivo:           *cancelMotivo,
			FolioSustitucion: derefStr(cancelFolioSust),
			AcuseCodigo:      derefStr(cancelCodigo),
			AcuseMensaje:     derefStr(cancelMensaje),
		}
		if cancelFecha != nil {
			c.Cancelacion.FechaSolicitud = *cancelFecha
		}
	}
	return &c, nil
}

// GuardarSellado persiste folio, fecha acotada, importes recalculados por el
// motor y campos de sello de un DRAFT.
func (r *ComprobanteRepo) GuardarSellado(ctx context.Context, c *entity.Comprobante) error {
	detalle, err := marshalDetalle(c)
	if err != nil {
		return err
	}
	query := `
		UPDATE comprobantes
		SET serie = $2, folio = $3, fecha = $4,
		    detalle = $5, subtotal = $6, descuento = $7, total = $8,
		    sello = $9, no_certificado = $10, certificado = $11,
		    updated_at = NOW()
		WHERE id = $1 AND estado = $12`
	tag, err := r.q.Exec(ctx, query,
		c.ID, c.Serie, c.Folio, c.Fecha,
		detalle, c.SubTotal, c.Descuento, c.Total,
		nullIfEmpty(c.Sello), nullIfEmpty(c.NoCertificado), nullIfEmpty(c.Certificado),
		entity.EstadoDraft,
	)
	if err != nil {
		return fmt.Errorf("guardar sellado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el comprobante %s no está en DRAFT", domain.ErrEstadoInvalido, c.ID)
	}
	return nil
}

// MergeTimbre funde el timbre y transiciona DRAFT → TIMBRADO en un solo UPDATE.
func (r *ComprobanteRepo) MergeTimbre(ctx context.Context, id string, t *entity.Timbre, xmlPath, pdfPath string) error {
	if t == nil || t.UUID == "" {
		return fmt.Errorf("%w: timbre sin UUID", domain.ErrProtocolViolation)
	}
	query := `
		UPDATE comprobantes
		SET estado = $2,
		    timbre_uuid = $3, fecha_timbrado = $4, rfc_prov_certif = $5,
		    no_certificado_sat = $6, sello_cfd = $7, sello_sat = $8,
		    xml_path = $9, pdf_path = $10,
		    updated_at = NOW()
		WHERE id = $1 AND estado = $11`
	tag, err := r.q.Exec(ctx, query,
		id, entity.EstadoTimbrado,
		t.UUID, t.FechaTimbrado, nullIfEmpty(t.RfcProvCertif),
		nullIfEmpty(t.NoCertificadoSAT), nullIfEmpty(t.SelloCFD), nullIfEmpty(t.SelloSAT),
		nullIfEmpty(xmlPath), nullIfEmpty(pdfPath),
		entity.EstadoDraft,
	)
	if err != nil {
		return fmt.Errorf("merge timbre: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el comprobante %s no está en DRAFT", domain.ErrEstadoInvalido, id)
	}
	return nil
}

// ResetADraft limpia todos los campos de timbre y regresa a DRAFT atómicamente.
// Operación administrativa de recuperación, no una transición normal.
func (r *ComprobanteRepo) ResetADraft(ctx context.Context, id string) error {
	query := `
		UPDATE comprobantes
		SET estado = $2,
		    sello = NULL, no_certificado = NULL, certificado = NULL,
		    timbre_uuid = NULL, fecha_timbrado = NULL, rfc_prov_certif = NULL,
		    no_certificado_sat = NULL, sello_cfd = NULL, sello_sat = NULL,
		    xml_path = NULL, pdf_path = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND estado = $3`
	tag, err := r.q.Exec(ctx, query, id, entity.EstadoDraft, entity.EstadoTimbrado)
	if err != nil {
		return fmt.Errorf("reset a draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el comprobante %s no está TIMBRADO", domain.ErrEstadoInvalido, id)
	}
	return nil
}

// MarcarCancelado persiste el acuse y transiciona TIMBRADO → CANCELADO.
func (r *ComprobanteRepo) MarcarCancelado(ctx context.Context, id string, canc *entity.Cancelacion) error {
	if canc == nil {
		return fmt.Errorf("%w: cancelación nula", domain.ErrValidation)
	}
	query := `
		UPDATE comprobantes
		SET estado = $2,
		    cancel_motivo = $3, cancel_folio_sustitucion = $4,
		    cancel_acuse_codigo = $5, cancel_acuse_mensaje = $6, cancel_fecha_solicitud = $7,
		    updated_at = NOW()
		WHERE id = $1 AND estado = $8`
	tag, err := r.q.Exec(ctx, query,
		id, entity.EstadoCancelado,
		canc.Motivo, nullIfEmpty(canc.FolioSustitucion),
		nullIfEmpty(canc.AcuseCodigo), nullIfEmpty(canc.AcuseMensaje), canc.FechaSolicitud,
		entity.EstadoTimbrado,
	)
	if err != nil {
		return fmt.Errorf("marcar cancelado: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el comprobante %s no está TIMBRADO", domain.ErrEstadoInvalido, id)
	}
	return nil
}

// detalleJSON agrupa lo que viaja en la columna JSONB.
type detalleJSON struct {
	Conceptos []entity.Concepto         `json:"conceptos,omitempty"`
	Resumen   entity.ResumenImpuestos   `json:"resumen"`
	Pagos     []entity.Pago             `json:"pagos,omitempty"`
	Global    *entity.InformacionGlobal `json:"informacion_global,omitempty"`
}

func marshalDetalle(c *entity.Comprobante) ([]byte, error) {
	data, err := json.Marshal(detalleJSON{
		Conceptos: c.Conceptos,
		Resumen:   c.Resumen,
		Pagos:     c.Pagos,
		Global:    c.GlobalInformacion,
	})
	if err != nil {
		return nil, fmt.Errorf("serializar detalle: %w", err)
	}
	return data, nil
}

func unmarshalDetalle(data []byte, c *entity.Comprobante) error {
	if len(data) == 0 {
		return nil
	}
	var d detalleJSON
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("detalle corrupto: %w", err)
	}
	c.Conceptos = d.Conceptos
	c.Resumen = d.Resumen
	c.Pagos = d.Pagos
	c.GlobalInformacion = d.Global
	return nil
}
