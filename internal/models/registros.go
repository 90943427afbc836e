package models

import (
	"time"
)

// Error classifications for ErrorDetallado.Tipo
const (
	ErrorMissingRequired = "missing_required"
	ErrorInvalidNumber   = "invalid_number"
	ErrorInvalidEnum     = "invalid_enum"
	ErrorInvalidEmail    = "invalid_email"
	ErrorInvalidDate     = "invalid_date"
	ErrorCrossField      = "cross_field"
	ErrorReferential     = "referential"
	ErrorDuplicate       = "duplicate"
)

// Correction kinds for CorreccionImportacion.Tipo
const (
	CorreccionTrim           = "trim"
	CorreccionCaseNormalize  = "case-normalize"
	CorreccionSinonimo       = "synonym"
	CorreccionDefaultApplied = "default-applied"
	CorreccionDecimal        = "decimal-normalize"
)

// ErrorDetallado is one row-scoped failure, immutable once recorded
type ErrorDetallado struct {
	Fila    int    `json:"fila"`
	Columna string `json:"columna"`
	Valor   string `json:"valor,omitempty"`
	Mensaje string `json:"mensaje"`
	Tipo    string `json:"tipo"`
}

// CorreccionImportacion records a silent repair applied during validation
type CorreccionImportacion struct {
	Campo          string `json:"campo"`
	ValorOriginal  string `json:"valorOriginal"`
	ValorCorregido string `json:"valorCorregido"`
	Tipo           string `json:"tipo"`
}

// RegistroNormalizado is a validated row ready for persistence.
// Campos holds typed values (string, float64, time.Time, []string) keyed by
// canonical field name.
type RegistroNormalizado struct {
	Fila          int
	Identificador string
	Campos        map[string]interface{}
	Correcciones  []CorreccionImportacion
}

// RegistroExitoso is one successfully persisted row, immutable once created
type RegistroExitoso struct {
	Fila                  int                     `json:"fila"`
	Tipo                  TipoImportacion         `json:"tipo"`
	Identificador         string                  `json:"identificador"`
	Datos                 map[string]interface{}  `json:"datos"`
	CorreccionesAplicadas []CorreccionImportacion `json:"correccionesAplicadas"`
	Timestamp             time.Time               `json:"timestamp"`
}

// ReporteImportacion is the final (or explicitly partial) outcome report
type ReporteImportacion struct {
	TrabajoID         string            `json:"trabajoId"`
	Tipo              TipoImportacion   `json:"tipo"`
	Estado            EstadoJob         `json:"estado"`
	Completo          bool              `json:"completo"`
	RegistrosExitosos []RegistroExitoso `json:"registrosExitosos"`
	ErroresDetallados []ErrorDetallado  `json:"erroresDetallados"`
}
