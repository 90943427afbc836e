package schema

import (
	"fmt"
	"strings"

	"github.com/inventario-import-api/internal/models"
)

// TipoCampo is the primitive type of a schema field
type TipoCampo string

const (
	CampoString TipoCampo = "string"
	CampoNumber TipoCampo = "number"
	CampoEnum   TipoCampo = "enum"
	CampoDate   TipoCampo = "date"
	CampoArray  TipoCampo = "array"
	CampoEmail  TipoCampo = "email"
)

// Campo describes one spreadsheet column of an import schema.
// Schemas are data: the validator interprets these descriptors generically,
// so adding an import type never touches validation code.
type Campo struct {
	Nombre    string
	Tipo      TipoCampo
	Requerido bool
	// Valores is the closed legal set for enum fields
	Valores []string
	// Sinonimos are alternative header names accepted case-insensitively
	Sinonimos []string
	// Correcciones maps lowercased out-of-set enum values to legal ones
	Correcciones map[string]string
	// Minimo is the inclusive floor for number fields
	Minimo *float64
	// PorDefecto fills a missing optional field, recorded as a correction
	PorDefecto string
	// Identificador marks the business-key column
	Identificador bool
	// Referencial marks a field whose referenced entity must exist (checked
	// against storage by the persister, surfaced as a validation-class error)
	Referencial bool
}

// ReglaCruzada is a cross-field rule evaluated after single-field checks pass.
// It returns the offending column and a message when the rule is violated.
type ReglaCruzada struct {
	Nombre  string
	Validar func(campos map[string]interface{}) (columna, mensaje string, ok bool)
}

// Schema is the ordered field list plus cross-field rules for one tipo
type Schema struct {
	Tipo   models.TipoImportacion
	Campos []Campo
	Reglas []ReglaCruzada

	headerIndex map[string]int // lowercased name/synonym -> campo index
}

// ResolveHeader maps a raw spreadsheet header to its schema field
func (s *Schema) ResolveHeader(header string) (*Campo, bool) {
	idx, ok := s.headerIndex[strings.ToLower(strings.TrimSpace(header))]
	if !ok {
		return nil, false
	}
	return &s.Campos[idx], true
}

// CampoIdentificador returns the business-key field of the schema
func (s *Schema) CampoIdentificador() *Campo {
	for i := range s.Campos {
		if s.Campos[i].Identificador {
			return &s.Campos[i]
		}
	}
	return nil
}

// CampoReferencial returns the referential field, if the schema has one
func (s *Schema) CampoReferencial() *Campo {
	for i := range s.Campos {
		if s.Campos[i].Referencial {
			return &s.Campos[i]
		}
	}
	return nil
}

func (s *Schema) buildIndex() {
	s.headerIndex = make(map[string]int)
	for i, c := range s.Campos {
		s.headerIndex[strings.ToLower(c.Nombre)] = i
		for _, sin := range c.Sinonimos {
			s.headerIndex[strings.ToLower(sin)] = i
		}
	}
}

// Registry maps import tipos to their schemas; read-only at runtime
type Registry struct {
	schemas map[models.TipoImportacion]*Schema
}

// Lookup returns the schema for a tipo or ErrUnknownImportType
func (r *Registry) Lookup(tipo models.TipoImportacion) (*Schema, error) {
	s, ok := r.schemas[tipo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownImportType, tipo)
	}
	return s, nil
}

// Tipos returns the registered concrete tipos
func (r *Registry) Tipos() []models.TipoImportacion {
	tipos := make([]models.TipoImportacion, 0, len(r.schemas))
	for t := range r.schemas {
		tipos = append(tipos, t)
	}
	return tipos
}

func floatPtr(f float64) *float64 { return &f }

// NewRegistry builds the registry with the productos, proveedores and
// movimientos schemas
func NewRegistry() *Registry {
	productos := &Schema{
		Tipo: models.TipoProductos,
		Campos: []Campo{
			{Nombre: "nombre", Tipo: CampoString, Requerido: true, Sinonimos: []string{"producto", "descripcion"}},
			{Nombre: "codigo", Tipo: CampoString, Requerido: true, Identificador: true, Sinonimos: []string{"sku", "referencia"}},
			{Nombre: "categoria", Tipo: CampoEnum, Requerido: true, Valores: models.CategoriasProducto,
				Correcciones: map[string]string{
					"comida":      "alimentacion",
					"alimentos":   "alimentacion",
					"electro":     "electronica",
					"electronico": "electronica",
					"otro":        "otros",
				}},
			{Nombre: "precioCompra", Tipo: CampoNumber, Requerido: true, Minimo: floatPtr(0), Sinonimos: []string{"precio_compra", "coste", "costo"}},
			{Nombre: "precioVenta", Tipo: CampoNumber, Requerido: true, Minimo: floatPtr(0), Sinonimos: []string{"precio_venta", "pvp"}},
			{Nombre: "stock", Tipo: CampoNumber, Requerido: true, Minimo: floatPtr(0), Sinonimos: []string{"existencias", "cantidad"}},
			{Nombre: "stockMinimo", Tipo: CampoNumber, Minimo: floatPtr(0), PorDefecto: "0", Sinonimos: []string{"stock_minimo", "minimo"}},
			{Nombre: "unidadMedida", Tipo: CampoEnum, Valores: models.UnidadesMedida, PorDefecto: "unidad",
				Sinonimos:    []string{"unidad_medida", "unidad"},
				Correcciones: map[string]string{"ud": "unidad", "uds": "unidad", "kilos": "kg", "litros": "litro"}},
			{Nombre: "proveedorEmail", Tipo: CampoEmail, Sinonimos: []string{"proveedor_email", "email_proveedor"}},
			{Nombre: "etiquetas", Tipo: CampoArray, Sinonimos: []string{"tags"}},
			{Nombre: "fechaAlta", Tipo: CampoDate, Sinonimos: []string{"fecha_alta", "alta"}},
		},
		Reglas: []ReglaCruzada{
			{
				Nombre: "precio_venta_mayor_que_compra",
				Validar: func(campos map[string]interface{}) (string, string, bool) {
					venta, vok := campos["precioVenta"].(float64)
					compra, cok := campos["precioCompra"].(float64)
					if vok && cok && venta <= compra {
						return "precioVenta", fmt.Sprintf("precioVenta (%.2f) debe ser mayor que precioCompra (%.2f)", venta, compra), false
					}
					return "", "", true
				},
			},
		},
	}

	proveedores := &Schema{
		Tipo: models.TipoProveedores,
		Campos: []Campo{
			{Nombre: "nombre", Tipo: CampoString, Requerido: true, Sinonimos: []string{"proveedor", "razon_social"}},
			{Nombre: "email", Tipo: CampoEmail, Requerido: true, Identificador: true, Sinonimos: []string{"correo", "e-mail"}},
			{Nombre: "telefono", Tipo: CampoString, Sinonimos: []string{"tel", "movil"}},
			{Nombre: "categoria", Tipo: CampoEnum, Valores: models.CategoriasProveedor,
				Correcciones: map[string]string{"mayor": "mayorista", "fabrica": "fabricante"}},
			{Nombre: "direccion", Tipo: CampoString, Sinonimos: []string{"domicilio"}},
			{Nombre: "fechaAlta", Tipo: CampoDate, Sinonimos: []string{"fecha_alta", "alta"}},
		},
	}

	movimientos := &Schema{
		Tipo: models.TipoMovimientos,
		Campos: []Campo{
			{Nombre: "productoCodigo", Tipo: CampoString, Requerido: true, Referencial: true, Identificador: true,
				Sinonimos: []string{"producto_codigo", "codigo", "sku", "productoid"}},
			{Nombre: "tipo", Tipo: CampoEnum, Requerido: true, Valores: models.TiposMovimiento,
				Sinonimos:    []string{"tipo_movimiento", "movimiento"},
				Correcciones: map[string]string{"in": "entrada", "out": "salida", "ingreso": "entrada", "egreso": "salida", "adjust": "ajuste"}},
			{Nombre: "cantidad", Tipo: CampoNumber, Requerido: true, Minimo: floatPtr(0), Sinonimos: []string{"qty", "unidades"}},
			{Nombre: "motivo", Tipo: CampoString, Sinonimos: []string{"razon", "observaciones"}},
			{Nombre: "referencia", Tipo: CampoString, Sinonimos: []string{"ref", "documento"}},
			{Nombre: "fecha", Tipo: CampoDate, Sinonimos: []string{"fecha_movimiento"}},
		},
		Reglas: []ReglaCruzada{
			{
				Nombre: "cantidad_positiva",
				Validar: func(campos map[string]interface{}) (string, string, bool) {
					cantidad, ok := campos["cantidad"].(float64)
					if ok && cantidad == 0 {
						return "cantidad", "cantidad debe ser distinta de cero", false
					}
					return "", "", true
				},
			},
		},
	}

	schemas := map[models.TipoImportacion]*Schema{
		models.TipoProductos:   productos,
		models.TipoProveedores: proveedores,
		models.TipoMovimientos: movimientos,
	}
	for _, s := range schemas {
		s.buildIndex()
	}
	return &Registry{schemas: schemas}
}
