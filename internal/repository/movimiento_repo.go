package repository

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/inventario-import-api/internal/database"
	"github.com/inventario-import-api/internal/models"
)

// movimientoRepo is the concrete implementation of MovimientoRepository
type movimientoRepo struct {
	db *database.DB
}

// NewMovimientoRepo creates a new stock-movement repository
func NewMovimientoRepo(db *database.DB) MovimientoRepository {
	return &movimientoRepo{db: db}
}

// BatchInsert writes the movements via COPY and applies their stock deltas to
// the referenced products, all inside one transaction. A movement batch is
// therefore either fully applied (rows plus stock) or not at all.
func (r *movimientoRepo) BatchInsert(ctx context.Context, movimientos []*models.Movimiento) (int, error) {
	if len(movimientos) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("movimientos",
		"id", "tenant_id", "producto_codigo", "tipo", "cantidad", "motivo",
		"referencia", "fecha", "created_at",
	))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range movimientos {
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.TenantID, m.ProductoCodigo, m.Tipo, m.Cantidad, m.Motivo,
			m.Referencia, m.Fecha, now,
		); err != nil {
			return 0, err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, err
	}

	// Aggregate deltas per product so each product is updated once per batch
	deltas := make(map[string]float64)
	var tenantID string
	for _, m := range movimientos {
		tenantID = m.TenantID
		deltas[m.ProductoCodigo] += m.DeltaStock()
	}
	update := `UPDATE productos SET stock = stock + $1, updated_at = $2 WHERE tenant_id = $3 AND codigo = $4`
	for codigo, delta := range deltas {
		if _, err := tx.ExecContext(ctx, update, delta, now, tenantID, codigo); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(movimientos), nil
}

// ExistingReferencias returns which of the given references already exist for
// the tenant; movements without a reference are never duplicates
func (r *movimientoRepo) ExistingReferencias(ctx context.Context, tenantID string, referencias []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(referencias) == 0 {
		return existing, nil
	}

	query := `SELECT referencia FROM movimientos WHERE tenant_id = $1 AND referencia = ANY($2)`
	rows, err := r.db.QueryContext(ctx, query, tenantID, pq.Array(referencias))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		existing[ref] = true
	}
	return existing, rows.Err()
}

// Count returns the total number of movements for the tenant
func (r *movimientoRepo) Count(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movimientos WHERE tenant_id = $1", tenantID).Scan(&count)
	return count, err
}
