package repository

import "context"

// FolioRepository acceso al contador de folios por (emisor, serie).
// Debe usarse dentro de una transacción: la lectura exclusiva solo tiene
// sentido mientras la transacción retiene el candado de fila.
type FolioRepository interface {
	// UltimoForUpdate lee el último folio asignado tomando el candado de fila
	// (SELECT ... FOR UPDATE). found=false si el par aún no tiene contador.
	UltimoForUpdate(ctx context.Context, emisorRFC, serie string) (ultimo int64, found bool, err error)

	// Guardar persiste el nuevo máximo. La inserción inicial puede fallar con
	// ErrFolioConflict si otro llamador creó el contador primero.
	Guardar(ctx context.Context, emisorRFC, serie string, folio int64) error
}
