package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/inventario-import-api/internal/models"
)

// MockProductoRepository is an in-memory ProductoRepository
type MockProductoRepository struct {
	mu               sync.Mutex
	Productos        map[string]*models.Producto // keyed by codigo
	InsertErr        error
	BatchInsertFunc  func(ctx context.Context, productos []*models.Producto) (int, error)
	BatchInsertCalls int
	UpsertCalls      int
}

func NewMockProductoRepository() *MockProductoRepository {
	return &MockProductoRepository{Productos: make(map[string]*models.Producto)}
}

func (m *MockProductoRepository) Insert(ctx context.Context, p *models.Producto) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.Productos[p.Codigo] = p
	return nil
}

func (m *MockProductoRepository) Upsert(ctx context.Context, p *models.Producto) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	m.Productos[p.Codigo] = p
	return nil
}

func (m *MockProductoRepository) BatchInsert(ctx context.Context, productos []*models.Producto) (int, error) {
	m.mu.Lock()
	m.BatchInsertCalls++
	fn := m.BatchInsertFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, productos)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return 0, m.InsertErr
	}
	for _, p := range productos {
		m.Productos[p.Codigo] = p
	}
	return len(productos), nil
}

func (m *MockProductoRepository) ExistingCodigos(ctx context.Context, tenantID string, codigos []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, c := range codigos {
		if _, ok := m.Productos[c]; ok {
			existing[c] = true
		}
	}
	return existing, nil
}

func (m *MockProductoRepository) GetAllCodigos(ctx context.Context, tenantID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codigos := make([]string, 0, len(m.Productos))
	for c := range m.Productos {
		codigos = append(codigos, c)
	}
	sort.Strings(codigos)
	return codigos, nil
}

func (m *MockProductoRepository) Count(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Productos), nil
}

// MockProveedorRepository is an in-memory ProveedorRepository
type MockProveedorRepository struct {
	mu          sync.Mutex
	Proveedores map[string]*models.Proveedor // keyed by email
	InsertErr   error
}

func NewMockProveedorRepository() *MockProveedorRepository {
	return &MockProveedorRepository{Proveedores: make(map[string]*models.Proveedor)}
}

func (m *MockProveedorRepository) Insert(ctx context.Context, p *models.Proveedor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.Proveedores[p.Email] = p
	return nil
}

func (m *MockProveedorRepository) Upsert(ctx context.Context, p *models.Proveedor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Proveedores[p.Email] = p
	return nil
}

func (m *MockProveedorRepository) BatchInsert(ctx context.Context, proveedores []*models.Proveedor) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return 0, m.InsertErr
	}
	for _, p := range proveedores {
		m.Proveedores[p.Email] = p
	}
	return len(proveedores), nil
}

func (m *MockProveedorRepository) ExistingEmails(ctx context.Context, tenantID string, emails []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, e := range emails {
		if _, ok := m.Proveedores[e]; ok {
			existing[e] = true
		}
	}
	return existing, nil
}

func (m *MockProveedorRepository) Count(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Proveedores), nil
}

// MockMovimientoRepository is an in-memory MovimientoRepository
type MockMovimientoRepository struct {
	mu          sync.Mutex
	Movimientos []*models.Movimiento
	InsertErr   error
}

func NewMockMovimientoRepository() *MockMovimientoRepository {
	return &MockMovimientoRepository{}
}

func (m *MockMovimientoRepository) BatchInsert(ctx context.Context, movimientos []*models.Movimiento) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return 0, m.InsertErr
	}
	m.Movimientos = append(m.Movimientos, movimientos...)
	return len(movimientos), nil
}

func (m *MockMovimientoRepository) ExistingReferencias(ctx context.Context, tenantID string, referencias []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool)
	for _, ref := range referencias {
		for _, mov := range m.Movimientos {
			if mov.Referencia == ref {
				existing[ref] = true
			}
		}
	}
	return existing, nil
}

func (m *MockMovimientoRepository) Count(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Movimientos), nil
}

// MockJobRepository is an in-memory JobRepository, safe for the concurrent
// reader/writer pattern the job manager relies on
type MockJobRepository struct {
	mu       sync.Mutex
	Jobs     map[string]*models.ImportJob
	Errores  map[string][]models.ErrorDetallado
	Exitosos map[string][]models.RegistroExitoso
	// CancelAfterProcesados trips the cancellation flag once the job has
	// processed at least this many rows (0 disables it)
	CancelAfterProcesados int
	CreateErr             error
	UpdateErr             error
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		Jobs:     make(map[string]*models.ImportJob),
		Errores:  make(map[string][]models.ErrorDetallado),
		Exitosos: make(map[string][]models.RegistroExitoso),
	}
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	copia := *job
	m.Jobs[job.ID] = &copia
	return nil
}

func (m *MockJobRepository) Update(ctx context.Context, job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	copia := *job
	if previo, ok := m.Jobs[job.ID]; ok {
		copia.CancelSolicitado = copia.CancelSolicitado || previo.CancelSolicitado
	}
	m.Jobs[job.ID] = &copia
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	copia := *job
	return &copia, nil
}

func (m *MockJobRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*models.ImportJob, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.ImportJob
	for _, job := range m.Jobs {
		if job.TenantID == tenantID {
			copia := *job
			jobs = append(jobs, &copia)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].FechaCreacion.After(jobs[j].FechaCreacion)
	})
	total := len(jobs)
	if offset >= len(jobs) {
		return nil, total, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, total, nil
}

func (m *MockJobRepository) GetPendingJobs(ctx context.Context) ([]*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*models.ImportJob
	for _, job := range m.Jobs {
		if job.Estado == models.EstadoPendiente {
			copia := *job
			pending = append(pending, &copia)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].FechaCreacion.Before(pending[j].FechaCreacion)
	})
	return pending, nil
}

func (m *MockJobRepository) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[jobID]
	if !ok || job.Estado != models.EstadoPendiente {
		return false, nil
	}
	job.Estado = models.EstadoProcesando
	return true, nil
}

func (m *MockJobRepository) RequestCancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.Jobs[jobID]; ok && !job.Estado.Terminal() {
		job.CancelSolicitado = true
	}
	return nil
}

func (m *MockJobRepository) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[jobID]
	if !ok {
		return false, models.ErrJobNotFound
	}
	if m.CancelAfterProcesados > 0 && job.RegistrosProcesados >= m.CancelAfterProcesados {
		job.CancelSolicitado = true
	}
	return job.CancelSolicitado, nil
}

func (m *MockJobRepository) AddErrores(ctx context.Context, jobID string, errores []models.ErrorDetallado) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errores[jobID] = append(m.Errores[jobID], errores...)
	return nil
}

func (m *MockJobRepository) GetErrores(ctx context.Context, jobID string, limit int) ([]models.ErrorDetallado, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errores := m.Errores[jobID]
	if limit > 0 && len(errores) > limit {
		errores = errores[:limit]
	}
	out := make([]models.ErrorDetallado, len(errores))
	copy(out, errores)
	return out, nil
}

func (m *MockJobRepository) AddExitosos(ctx context.Context, jobID string, registros []models.RegistroExitoso) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Exitosos[jobID] = append(m.Exitosos[jobID], registros...)
	return nil
}

func (m *MockJobRepository) GetExitosos(ctx context.Context, jobID string, limit int) ([]models.RegistroExitoso, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	registros := m.Exitosos[jobID]
	if limit > 0 && len(registros) > limit {
		registros = registros[:limit]
	}
	out := make([]models.RegistroExitoso, len(registros))
	copy(out, registros)
	return out, nil
}
