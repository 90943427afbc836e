package models

import (
	"time"
)

// Producto represents one catalog product within a tenant.
// Codigo is the business key, unique per tenant.
type Producto struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"-" db:"tenant_id"`
	Codigo         string    `json:"codigo" db:"codigo"`
	Nombre         string    `json:"nombre" db:"nombre"`
	Categoria      string    `json:"categoria" db:"categoria"`
	PrecioCompra   float64   `json:"precioCompra" db:"precio_compra"`
	PrecioVenta    float64   `json:"precioVenta" db:"precio_venta"`
	Stock          float64   `json:"stock" db:"stock"`
	StockMinimo    float64   `json:"stockMinimo" db:"stock_minimo"`
	UnidadMedida   string    `json:"unidadMedida" db:"unidad_medida"`
	ProveedorEmail string    `json:"proveedorEmail,omitempty" db:"proveedor_email"`
	Etiquetas      []string  `json:"etiquetas,omitempty" db:"-"`
	EtiquetasJSON  string    `json:"-" db:"etiquetas"` // stored as JSON string
	FechaAlta      time.Time `json:"fechaAlta" db:"fecha_alta"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// CategoriasProducto is the closed set of legal product categories
var CategoriasProducto = []string{"alimentacion", "bebidas", "limpieza", "electronica", "otros"}

// UnidadesMedida is the closed set of legal measurement units
var UnidadesMedida = []string{"unidad", "kg", "litro", "caja", "paquete"}
