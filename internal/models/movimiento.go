package models

import (
	"time"
)

// Movement types for Movimiento.Tipo
const (
	MovimientoEntrada = "entrada"
	MovimientoSalida  = "salida"
	MovimientoAjuste  = "ajuste"
)

// TiposMovimiento is the closed set of legal movement types
var TiposMovimiento = []string{MovimientoEntrada, MovimientoSalida, MovimientoAjuste}

// Movimiento registers one stock movement against a product.
// ProductoCodigo must reference an existing product in the same tenant.
type Movimiento struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"-" db:"tenant_id"`
	ProductoCodigo string    `json:"productoCodigo" db:"producto_codigo"`
	Tipo           string    `json:"tipo" db:"tipo"`
	Cantidad       float64   `json:"cantidad" db:"cantidad"`
	Motivo         string    `json:"motivo,omitempty" db:"motivo"`
	Referencia     string    `json:"referencia,omitempty" db:"referencia"`
	Fecha          time.Time `json:"fecha" db:"fecha"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// DeltaStock returns the signed stock change this movement applies
func (m *Movimiento) DeltaStock() float64 {
	switch m.Tipo {
	case MovimientoSalida:
		return -m.Cantidad
	default:
		return m.Cantidad
	}
}
