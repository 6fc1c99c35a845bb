package pac

import (
	"fmt"
	"regexp"
	"time"

	"github.com/beevik/etree"

	"github.com/evalenzup/facturacion-core/internal/domain"
	"github.com/evalenzup/facturacion-core/internal/domain/entity"
)

// Patrones de respaldo sobre los bytes crudos. Cada PAC serializa el timbre
// con su propio prefijo de namespace; los patrones solo miran atributos.
var (
	reUUID          = regexp.MustCompile(`UUID="([^"]+)"`)
	reFechaTimbrado = regexp.MustCompile(`FechaTimbrado="([^"]+)"`)
	reRfcProv       = regexp.MustCompile(`RfcProvCertif="([^"]+)"`)
	reNoCertSAT     = regexp.MustCompile(`NoCertificadoSAT="([^"]+)"`)
	reSelloCFD      = regexp.MustCompile(`SelloCFD="([^"]+)"`)
	reSelloSAT      = regexp.MustCompile(`SelloSAT="([^"]+)"`)
)

// ExtractTimbre localiza el tfd:TimbreFiscalDigital dentro del CFDI timbrado.
//
// Estrategias en orden: (1) búsqueda estructural con etree ignorando el
// prefijo de namespace; (2) patrones sobre los bytes crudos. Gana la primera
// que produzca UUID; si ambas producen y difieren, se registra una advertencia
// y se conserva la estructural. Sin UUID por ninguna vía es violación de
// protocolo.
func (c *Client) ExtractTimbre(xmlTimbrado []byte) (*entity.Timbre, error) {
	estructural := extraerEstructural(xmlTimbrado)
	respaldo := extraerPorPatrones(xmlTimbrado)

	switch {
	case estructural != nil && respaldo != nil:
		if estructural.UUID != respaldo.UUID && c.log != nil {
			c.log.Warn().
				Str("uuid_estructural", estructural.UUID).
				Str("uuid_patrones", respaldo.UUID).
				Msg("las estrategias de extracción del timbre no coinciden; se conserva la estructural")
		}
		return estructural, nil
	case estructural != nil:
		return estructural, nil
	case respaldo != nil:
		return respaldo, nil
	default:
		return nil, fmt.Errorf("%w: CFDI timbrado sin TimbreFiscalDigital con UUID", domain.ErrProtocolViolation)
	}
}

// extraerEstructural recorre el árbol buscando el elemento TimbreFiscalDigital
// por nombre local, sin importar el prefijo con que el PAC lo haya serializado.
func extraerEstructural(xmlTimbrado []byte) *entity.Timbre {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlTimbrado); err != nil {
		return nil
	}
	root := doc.Root()
	if root == nil {
		return nil
	}

	var tfd *etree.Element
	var buscar func(el *etree.Element)
	buscar = func(el *etree.Element) {
		if tfd != nil {
			return
		}
		if el.Tag == "TimbreFiscalDigital" {
			tfd = el
			return
		}
		for _, child := range el.ChildElements() {
			buscar(child)
		}
	}
	buscar(root)
	if tfd == nil {
		return nil
	}

	t := &entity.Timbre{
		UUID:             tfd.SelectAttrValue("UUID", ""),
		RfcProvCertif:    tfd.SelectAttrValue("RfcProvCertif", ""),
		NoCertificadoSAT: tfd.SelectAttrValue("NoCertificadoSAT", ""),
		SelloCFD:         tfd.SelectAttrValue("SelloCFD", ""),
		SelloSAT:         tfd.SelectAttrValue("SelloSAT", ""),
	}
	if t.UUID == "" {
		return nil
	}
	t.FechaTimbrado = parseFechaTimbrado(tfd.SelectAttrValue("FechaTimbrado", ""))
	return t
}

// extraerPorPatrones es el respaldo cuando el XML no parsea o el árbol viene
// en una forma inesperada.
func extraerPorPatrones(xmlTimbrado []byte) *entity.Timbre {
	capturar := func(re *regexp.Regexp) string {
		m := re.FindSubmatch(xmlTimbrado)
		if len(m) < 2 {
			return ""
		}
		return string(m[1])
	}

	uuid := capturar(reUUID)
	if uuid == "" {
		return nil
	}
	return &entity.Timbre{
		UUID:             uuid,
		FechaTimbrado:    parseFechaTimbrado(capturar(reFechaTimbrado)),
		RfcProvCertif:    capturar(reRfcProv),
		NoCertificadoSAT: capturar(reNoCertSAT),
		SelloCFD:         capturar(reSelloCFD),
		SelloSAT:         capturar(reSelloSAT),
	}
}

// parseFechaTimbrado tolera la fecha con o sin zona; una fecha ilegible queda
// en cero, el UUID es el dato que manda.
func parseFechaTimbrado(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
