package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inventario-import-api/internal/models"
)

// minConfianza is the minimum header-coverage score for auto-detection
const minConfianza = 0.5

// Deteccion explains how an auto request resolved to a concrete tipo
type Deteccion struct {
	Tipo        models.TipoImportacion `json:"tipo"`
	Confianza   float64                `json:"confianza"`
	Explicacion string                 `json:"explicacion"`
}

// Detect resolves an `auto` import from the file's header row before any job
// is created. Confidence is the fraction of file headers that map onto the
// winning schema; ties break on required-field coverage, then on tipo name
// for determinism. Below minConfianza the detection fails with
// ErrUnknownImportType.
func (r *Registry) Detect(headers []string) (*Deteccion, error) {
	if len(headers) == 0 {
		return nil, models.ErrSinCabecera
	}

	type puntuacion struct {
		tipo       models.TipoImportacion
		confianza  float64
		requeridos float64
	}

	var scores []puntuacion
	for tipo, s := range r.schemas {
		matched := 0
		reqMatched, reqTotal := 0, 0
		seen := make(map[string]bool)
		for _, h := range headers {
			if campo, ok := s.ResolveHeader(h); ok && !seen[campo.Nombre] {
				seen[campo.Nombre] = true
				matched++
			}
		}
		for _, c := range s.Campos {
			if c.Requerido {
				reqTotal++
				if seen[c.Nombre] {
					reqMatched++
				}
			}
		}
		sc := puntuacion{tipo: tipo, confianza: float64(matched) / float64(len(headers))}
		if reqTotal > 0 {
			sc.requeridos = float64(reqMatched) / float64(reqTotal)
		}
		scores = append(scores, sc)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].confianza != scores[j].confianza {
			return scores[i].confianza > scores[j].confianza
		}
		if scores[i].requeridos != scores[j].requeridos {
			return scores[i].requeridos > scores[j].requeridos
		}
		return scores[i].tipo < scores[j].tipo
	})

	best := scores[0]
	if best.confianza < minConfianza {
		return nil, fmt.Errorf("%w: las cabeceras %q no coinciden con ningún esquema (mejor candidato %s, confianza %.2f)",
			models.ErrUnknownImportType, strings.Join(headers, ","), best.tipo, best.confianza)
	}

	return &Deteccion{
		Tipo:      best.tipo,
		Confianza: best.confianza,
		Explicacion: fmt.Sprintf("%.0f%% de las cabeceras coinciden con el esquema %s (%.0f%% de campos requeridos cubiertos)",
			best.confianza*100, best.tipo, best.requeridos*100),
	}, nil
}
