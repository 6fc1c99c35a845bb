// Package artifacts guarda los artefactos del timbrado (XML timbrado y
// adjuntos renderizados) en el sistema de archivos local.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evalenzup/facturacion-core/internal/domain"
)

// Store almacén local de artefactos. La ruta de cada artefacto queda
// determinada por emisor, serie+folio y UUID del timbre:
//
//	{root}/{emisorRFC}/{serie}{folio}_{UUID}.{ext}
type Store struct {
	root string
}

// NewStore construye el almacén sobre el directorio raíz configurado.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Guardar persiste un artefacto y devuelve su ruta absoluta.
func (s *Store) Guardar(emisorRFC, serie string, folio int64, uuid, ext string, data []byte) (string, error) {
	if s.root == "" {
		return "", fmt.Errorf("%w: directorio de artefactos no configurado", domain.ErrConfiguration)
	}
	if uuid == "" {
		return "", fmt.Errorf("%w: artefacto sin UUID", domain.ErrValidation)
	}

	dir := filepath.Join(s.root, emisorRFC)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("crear directorio de artefactos: %w", err)
	}

	nombre := fmt.Sprintf("%s%d_%s.%s", serie, folio, uuid, ext)
	ruta := filepath.Join(dir, nombre)
	if err := os.WriteFile(ruta, data, 0o644); err != nil {
		return "", fmt.Errorf("escribir artefacto %s: %w", ruta, err)
	}
	return ruta, nil
}
