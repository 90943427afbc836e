package models

import (
	"time"
)

// Proveedor represents a supplier within a tenant.
// Email is the business key, unique per tenant.
type Proveedor struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	Nombre    string    `json:"nombre" db:"nombre"`
	Email     string    `json:"email" db:"email"`
	Telefono  string    `json:"telefono,omitempty" db:"telefono"`
	Categoria string    `json:"categoria,omitempty" db:"categoria"`
	Direccion string    `json:"direccion,omitempty" db:"direccion"`
	FechaAlta time.Time `json:"fechaAlta" db:"fecha_alta"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// CategoriasProveedor is the closed set of legal supplier categories
var CategoriasProveedor = []string{"mayorista", "minorista", "fabricante", "distribuidor"}
