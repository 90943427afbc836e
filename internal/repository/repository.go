package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"github.com/inventario-import-api/internal/database"
	"github.com/inventario-import-api/internal/models"
)

// ProductoRepository defines the interface for product data operations
type ProductoRepository interface {
	Insert(ctx context.Context, p *models.Producto) error
	Upsert(ctx context.Context, p *models.Producto) error
	BatchInsert(ctx context.Context, productos []*models.Producto) (int, error)
	ExistingCodigos(ctx context.Context, tenantID string, codigos []string) (map[string]bool, error)
	GetAllCodigos(ctx context.Context, tenantID string) ([]string, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// ProveedorRepository defines the interface for supplier data operations
type ProveedorRepository interface {
	Insert(ctx context.Context, p *models.Proveedor) error
	Upsert(ctx context.Context, p *models.Proveedor) error
	BatchInsert(ctx context.Context, proveedores []*models.Proveedor) (int, error)
	ExistingEmails(ctx context.Context, tenantID string, emails []string) (map[string]bool, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// MovimientoRepository defines the interface for stock-movement data operations
type MovimientoRepository interface {
	// BatchInsert writes the movements and applies their stock deltas to the
	// referenced products inside one transaction
	BatchInsert(ctx context.Context, movimientos []*models.Movimiento) (int, error)
	ExistingReferencias(ctx context.Context, tenantID string, referencias []string) (map[string]bool, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// JobRepository is the injected job store: the state machine only sees this
// interface, so the backing storage is swappable.
type JobRepository interface {
	Create(ctx context.Context, job *models.ImportJob) error
	Update(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, id string) (*models.ImportJob, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*models.ImportJob, int, error)
	GetPendingJobs(ctx context.Context) ([]*models.ImportJob, error)
	MarkProcessing(ctx context.Context, jobID string) (bool, error)
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	AddErrores(ctx context.Context, jobID string, errores []models.ErrorDetallado) error
	GetErrores(ctx context.Context, jobID string, limit int) ([]models.ErrorDetallado, error)
	AddExitosos(ctx context.Context, jobID string, registros []models.RegistroExitoso) error
	GetExitosos(ctx context.Context, jobID string, limit int) ([]models.RegistroExitoso, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Producto   ProductoRepository
	Proveedor  ProveedorRepository
	Movimiento MovimientoRepository
	Job        JobRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Producto:   NewProductoRepo(db),
		Proveedor:  NewProveedorRepo(db),
		Movimiento: NewMovimientoRepo(db),
		Job:        NewJobRepo(db),
	}
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint error
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a PostgreSQL FK-constraint error
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
