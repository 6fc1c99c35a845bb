package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/repository"
)

var _ repository.FolioRepository = (*FolioRepo)(nil)

// FolioRepo contador de folios por (emisor, serie) sobre PostgreSQL.
// Tabla folios: emisor_rfc TEXT, serie TEXT, ultimo_folio BIGINT, updated_at;
// PRIMARY KEY (emisor_rfc, serie).
type FolioRepo struct {
	q Querier
}

// NewFolioRepository construye el adaptador. Pasar la tx del TxRunner: el
// candado de SELECT ... FOR UPDATE solo existe dentro de una transacción.
func NewFolioRepository(q Querier) *FolioRepo {
	return &FolioRepo{q: q}
}

// UltimoForUpdate lee el último folio del par tomando el candado de fila.
func (r *FolioRepo) UltimoForUpdate(ctx context.Context, emisorRFC, serie string) (int64, bool, error) {
	query := `
		SELECT ultimo_folio FROM folios
		WHERE emisor_rfc = $1 AND serie = $2
		FOR UPDATE`
	var ultimo int64
	err := r.q.QueryRow(ctx, query, emisorRFC, serie).Scan(&ultimo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("leer contador de folios: %w", err)
	}
	return ultimo, true, nil
}

// Guardar persiste el nuevo máximo. Si la fila ya existía la actualiza bajo el
// candado; la inserción inicial puede perder la carrera contra otro llamador,
// lo que se reporta como ErrFolioConflict para el reintento único.
func (r *FolioRepo) Guardar(ctx context.Context, emisorRFC, serie string, folio int64) error {
	query := `
		INSERT INTO folios (emisor_rfc, serie, ultimo_folio, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (emisor_rfc, serie) DO UPDATE
		SET ultimo_folio = EXCLUDED.ultimo_folio, updated_at = NOW()
		WHERE folios.ultimo_folio < EXCLUDED.ultimo_folio`
	tag, err := r.q.Exec(ctx, query, emisorRFC, serie, folio)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: contador (%s, %s)", domain.ErrFolioConflict, emisorRFC, serie)
		}
		return fmt.Errorf("guardar contador de folios: %w", err)
	}
	// Cero filas: alguien ya registró un folio igual o mayor. Sin el candado
	// de fila eso es una carrera; con él no debería ocurrir.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: el contador (%s, %s) avanzó más allá de %d", domain.ErrFolioConflict, emisorRFC, serie, folio)
	}
	return nil
}
