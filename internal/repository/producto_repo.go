package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/inventario-import-api/internal/database"
	"github.com/inventario-import-api/internal/models"
)

// productoRepo is the concrete implementation of ProductoRepository
type productoRepo struct {
	db *database.DB
}

// NewProductoRepo creates a new product repository
func NewProductoRepo(db *database.DB) ProductoRepository {
	return &productoRepo{db: db}
}

func etiquetasJSON(p *models.Producto) string {
	if len(p.Etiquetas) == 0 {
		return "[]"
	}
	b, err := json.Marshal(p.Etiquetas)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Insert inserts a single product
func (r *productoRepo) Insert(ctx context.Context, p *models.Producto) error {
	query := `
		INSERT INTO productos (id, tenant_id, codigo, nombre, categoria, precio_compra,
			precio_venta, stock, stock_minimo, unidad_medida, proveedor_email, etiquetas,
			fecha_alta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Codigo, p.Nombre, p.Categoria, p.PrecioCompra,
		p.PrecioVenta, p.Stock, p.StockMinimo, p.UnidadMedida, p.ProveedorEmail,
		etiquetasJSON(p), p.FechaAlta, now, now,
	)
	return err
}

// Upsert inserts or updates a product by (tenant_id, codigo)
func (r *productoRepo) Upsert(ctx context.Context, p *models.Producto) error {
	query := `
		INSERT INTO productos (id, tenant_id, codigo, nombre, categoria, precio_compra,
			precio_venta, stock, stock_minimo, unidad_medida, proveedor_email, etiquetas,
			fecha_alta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, codigo) DO UPDATE SET
			nombre = EXCLUDED.nombre,
			categoria = EXCLUDED.categoria,
			precio_compra = EXCLUDED.precio_compra,
			precio_venta = EXCLUDED.precio_venta,
			stock = EXCLUDED.stock,
			stock_minimo = EXCLUDED.stock_minimo,
			unidad_medida = EXCLUDED.unidad_medida,
			proveedor_email = EXCLUDED.proveedor_email,
			etiquetas = EXCLUDED.etiquetas,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Codigo, p.Nombre, p.Categoria, p.PrecioCompra,
		p.PrecioVenta, p.Stock, p.StockMinimo, p.UnidadMedida, p.ProveedorEmail,
		etiquetasJSON(p), p.FechaAlta, now, now,
	)
	return err
}

// BatchInsert inserts multiple products using PostgreSQL COPY for efficiency
func (r *productoRepo) BatchInsert(ctx context.Context, productos []*models.Producto) (int, error) {
	if len(productos) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("productos",
		"id", "tenant_id", "codigo", "nombre", "categoria", "precio_compra",
		"precio_venta", "stock", "stock_minimo", "unidad_medida", "proveedor_email",
		"etiquetas", "fecha_alta", "created_at", "updated_at",
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range productos {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.TenantID, p.Codigo, p.Nombre, p.Categoria, p.PrecioCompra,
			p.PrecioVenta, p.Stock, p.StockMinimo, p.UnidadMedida, p.ProveedorEmail,
			etiquetasJSON(p), p.FechaAlta, now, now,
		); err != nil {
			return 0, err
		}
	}

	// Flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(productos), nil
}

// ExistingCodigos returns which of the given codes already exist for the tenant
func (r *productoRepo) ExistingCodigos(ctx context.Context, tenantID string, codigos []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(codigos) == 0 {
		return existing, nil
	}

	query := `SELECT codigo FROM productos WHERE tenant_id = $1 AND codigo = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, tenantID, pq.Array(codigos))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var codigo string
		if err := rows.Scan(&codigo); err != nil {
			return nil, err
		}
		existing[codigo] = true
	}
	return existing, rows.Err()
}

// GetAllCodigos retrieves all product codes for the tenant (referential cache)
func (r *productoRepo) GetAllCodigos(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT codigo FROM productos WHERE tenant_id = $1", tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codigos []string
	for rows.Next() {
		var codigo string
		if err := rows.Scan(&codigo); err != nil {
			return nil, err
		}
		codigos = append(codigos, codigo)
	}
	return codigos, rows.Err()
}

// Count returns the total number of products for the tenant
func (r *productoRepo) Count(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM productos WHERE tenant_id = $1", tenantID).Scan(&count)
	return count, err
}
