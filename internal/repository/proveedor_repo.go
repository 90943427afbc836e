package repository

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/inventario-import-api/internal/database"
	"github.com/inventario-import-api/internal/models"
)

// proveedorRepo is the concrete implementation of ProveedorRepository
type proveedorRepo struct {
	db *database.DB
}

// NewProveedorRepo creates a new supplier repository
func NewProveedorRepo(db *database.DB) ProveedorRepository {
	return &proveedorRepo{db: db}
}

// Insert inserts a single supplier
func (r *proveedorRepo) Insert(ctx context.Context, p *models.Proveedor) error {
	query := `
		INSERT INTO proveedores (id, tenant_id, nombre, email, telefono, categoria,
			direccion, fecha_alta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Nombre, p.Email, p.Telefono, p.Categoria,
		p.Direccion, p.FechaAlta, now, now,
	)
	return err
}

// Upsert inserts or updates a supplier by (tenant_id, email)
func (r *proveedorRepo) Upsert(ctx context.Context, p *models.Proveedor) error {
	query := `
		INSERT INTO proveedores (id, tenant_id, nombre, email, telefono, categoria,
			direccion, fecha_alta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, email) DO UPDATE SET
			nombre = EXCLUDED.nombre,
			telefono = EXCLUDED.telefono,
			categoria = EXCLUDED.categoria,
			direccion = EXCLUDED.direccion,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Nombre, p.Email, p.Telefono, p.Categoria,
		p.Direccion, p.FechaAlta, now, now,
	)
	return err
}

// BatchInsert inserts multiple suppliers using PostgreSQL COPY
func (r *proveedorRepo) BatchInsert(ctx context.Context, proveedores []*models.Proveedor) (int, error) {
	if len(proveedores) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("proveedores",
		"id", "tenant_id", "nombre", "email", "telefono", "categoria",
		"direccion", "fecha_alta", "created_at", "updated_at",
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range proveedores {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.TenantID, p.Nombre, p.Email, p.Telefono, p.Categoria,
			p.Direccion, p.FechaAlta, now, now,
		); err != nil {
			return 0, err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(proveedores), nil
}

// ExistingEmails returns which of the given emails already exist for the tenant
func (r *proveedorRepo) ExistingEmails(ctx context.Context, tenantID string, emails []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(emails) == 0 {
		return existing, nil
	}

	query := `SELECT email FROM proveedores WHERE tenant_id = $1 AND email = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, tenantID, pq.Array(emails))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		existing[email] = true
	}
	return existing, rows.Err()
}

// Count returns the total number of suppliers for the tenant
func (r *proveedorRepo) Count(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proveedores WHERE tenant_id = $1", tenantID).Scan(&count)
	return count, err
}
