package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/schema"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// dateFormats accepted for date fields, tried in order
var dateFormats = []string{"2006-01-02", "02/01/2006", time.RFC3339}

// Validator validates and normalizes one raw row against a schema.
// It is stateless: the same input always yields the same verdict and the
// same correction list.
type Validator struct{}

// NewValidator creates a validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a raw row (canonical field name -> raw cell value) against
// the schema. It returns either a normalized record carrying its applied
// corrections, or the full set of field errors for the row. A rejected row
// reports every problem at once; there is no fail-fast.
func (v *Validator) Validate(fila int, raw map[string]string, s *schema.Schema) (*models.RegistroNormalizado, []models.ErrorDetallado) {
	campos := make(map[string]interface{}, len(s.Campos))
	var errores []models.ErrorDetallado
	var correcciones []models.CorreccionImportacion

	for i := range s.Campos {
		campo := &s.Campos[i]
		valor, presente := raw[campo.Nombre]

		recortado := strings.TrimSpace(valor)
		if presente && recortado != valor && recortado != "" {
			correcciones = append(correcciones, models.CorreccionImportacion{
				Campo:          campo.Nombre,
				ValorOriginal:  valor,
				ValorCorregido: recortado,
				Tipo:           models.CorreccionTrim,
			})
		}
		valor = recortado

		if valor == "" {
			if campo.Requerido {
				errores = append(errores, models.ErrorDetallado{
					Fila:    fila,
					Columna: campo.Nombre,
					Mensaje: fmt.Sprintf("el campo %s es obligatorio", campo.Nombre),
					Tipo:    models.ErrorMissingRequired,
				})
				continue
			}
			if campo.PorDefecto != "" {
				correcciones = append(correcciones, models.CorreccionImportacion{
					Campo:          campo.Nombre,
					ValorCorregido: campo.PorDefecto,
					Tipo:           models.CorreccionDefaultApplied,
				})
				valor = campo.PorDefecto
			} else {
				continue
			}
		}

		normalizado, correccion, errDet := v.normalizarCampo(fila, campo, valor)
		if errDet != nil {
			errores = append(errores, *errDet)
			continue
		}
		if correccion != nil {
			correcciones = append(correcciones, *correccion)
		}
		campos[campo.Nombre] = normalizado
	}

	// Cross-field rules only make sense once every field passed on its own
	if len(errores) == 0 {
		for _, regla := range s.Reglas {
			if columna, mensaje, ok := regla.Validar(campos); !ok {
				errores = append(errores, models.ErrorDetallado{
					Fila:    fila,
					Columna: columna,
					Valor:   fmt.Sprintf("%v", campos[columna]),
					Mensaje: mensaje,
					Tipo:    models.ErrorCrossField,
				})
			}
		}
	}

	if len(errores) > 0 {
		return nil, errores
	}

	registro := &models.RegistroNormalizado{
		Fila:         fila,
		Campos:       campos,
		Correcciones: correcciones,
	}
	if id := s.CampoIdentificador(); id != nil {
		if valor, ok := campos[id.Nombre].(string); ok {
			registro.Identificador = valor
		}
	}
	return registro, nil
}

// normalizarCampo parses one non-empty value by field type. It returns the
// typed value, an optional silent correction, or a field error.
func (v *Validator) normalizarCampo(fila int, campo *schema.Campo, valor string) (interface{}, *models.CorreccionImportacion, *models.ErrorDetallado) {
	switch campo.Tipo {
	case schema.CampoString:
		return valor, nil, nil

	case schema.CampoNumber:
		texto := valor
		var correccion *models.CorreccionImportacion
		// Accept decimal comma ("12,50"); thousands separators are rejected
		if strings.Count(texto, ",") == 1 && !strings.Contains(texto, ".") {
			normalizado := strings.Replace(texto, ",", ".", 1)
			correccion = &models.CorreccionImportacion{
				Campo:          campo.Nombre,
				ValorOriginal:  texto,
				ValorCorregido: normalizado,
				Tipo:           models.CorreccionDecimal,
			}
			texto = normalizado
		}
		n, err := strconv.ParseFloat(texto, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, nil, &models.ErrorDetallado{
				Fila:    fila,
				Columna: campo.Nombre,
				Valor:   valor,
				Mensaje: fmt.Sprintf("%s no es un número válido", campo.Nombre),
				Tipo:    models.ErrorInvalidNumber,
			}
		}
		if campo.Minimo != nil && n < *campo.Minimo {
			return nil, nil, &models.ErrorDetallado{
				Fila:    fila,
				Columna: campo.Nombre,
				Valor:   valor,
				Mensaje: fmt.Sprintf("%s debe ser mayor o igual que %g", campo.Nombre, *campo.Minimo),
				Tipo:    models.ErrorInvalidNumber,
			}
		}
		return n, correccion, nil

	case schema.CampoEnum:
		for _, legal := range campo.Valores {
			if valor == legal {
				return valor, nil, nil
			}
		}
		minuscula := strings.ToLower(valor)
		for _, legal := range campo.Valores {
			if minuscula == legal {
				return legal, &models.CorreccionImportacion{
					Campo:          campo.Nombre,
					ValorOriginal:  valor,
					ValorCorregido: legal,
					Tipo:           models.CorreccionCaseNormalize,
				}, nil
			}
		}
		if legal, ok := campo.Correcciones[minuscula]; ok {
			return legal, &models.CorreccionImportacion{
				Campo:          campo.Nombre,
				ValorOriginal:  valor,
				ValorCorregido: legal,
				Tipo:           models.CorreccionSinonimo,
			}, nil
		}
		return nil, nil, &models.ErrorDetallado{
			Fila:    fila,
			Columna: campo.Nombre,
			Valor:   valor,
			Mensaje: fmt.Sprintf("%s debe ser uno de: %s", campo.Nombre, strings.Join(campo.Valores, ", ")),
			Tipo:    models.ErrorInvalidEnum,
		}

	case schema.CampoEmail:
		minuscula := strings.ToLower(valor)
		if !emailRegex.MatchString(minuscula) {
			return nil, nil, &models.ErrorDetallado{
				Fila:    fila,
				Columna: campo.Nombre,
				Valor:   valor,
				Mensaje: fmt.Sprintf("%s no tiene formato de email válido", campo.Nombre),
				Tipo:    models.ErrorInvalidEmail,
			}
		}
		var correccion *models.CorreccionImportacion
		if minuscula != valor {
			correccion = &models.CorreccionImportacion{
				Campo:          campo.Nombre,
				ValorOriginal:  valor,
				ValorCorregido: minuscula,
				Tipo:           models.CorreccionCaseNormalize,
			}
		}
		return minuscula, correccion, nil

	case schema.CampoDate:
		for _, formato := range dateFormats {
			if t, err := time.Parse(formato, valor); err == nil {
				return t, nil, nil
			}
		}
		return nil, nil, &models.ErrorDetallado{
			Fila:    fila,
			Columna: campo.Nombre,
			Valor:   valor,
			Mensaje: fmt.Sprintf("%s no es una fecha válida (formatos: AAAA-MM-DD, DD/MM/AAAA)", campo.Nombre),
			Tipo:    models.ErrorInvalidDate,
		}

	case schema.CampoArray:
		partes := strings.Split(valor, ",")
		elementos := make([]string, 0, len(partes))
		for _, p := range partes {
			if p = strings.TrimSpace(p); p != "" {
				elementos = append(elementos, p)
			}
		}
		return elementos, nil, nil
	}

	return valor, nil, nil
}
