package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/config"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
	"github.com/inventario-import-api/internal/retry"
	"github.com/inventario-import-api/internal/schema"
)

// ImportService defines the interface for import operations
type ImportService interface {
	CreateImportJob(ctx context.Context, req *ImportRequest) (*models.ImportJob, error)
	ProcessImport(ctx context.Context, job *models.ImportJob) error
}

// ImportRequest carries everything needed to create an import job
type ImportRequest struct {
	TenantID        string
	Tipo            models.TipoImportacion
	ArchivoOriginal string
	RutaArchivo     string
	Opciones        models.OpcionesImportacion
}

// JobService defines the interface for job lifecycle management
type JobService interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
	GetJob(ctx context.Context, id string) (*models.JobResponse, error)
	ListJobs(ctx context.Context, tenantID string, limit, offset int) (*models.JobPage, error)
	Cancel(ctx context.Context, id string) (*models.ImportJob, error)
	SetImportService(importService ImportService)
}

// ReportService assembles the per-row outcome report of a job
type ReportService interface {
	BuildReport(ctx context.Context, id string) (*models.ReporteImportacion, error)
}

// Persister writes validated records in bounded batches for one job run.
// Row-scoped conflicts come back as ErrorDetallado values; only faults that
// should kill the job are returned as errors.
type Persister interface {
	Preparar(ctx context.Context) error
	PersistBatch(ctx context.Context, registros []*models.RegistroNormalizado) ([]models.RegistroExitoso, []models.ErrorDetallado, error)
}

// PersisterFactory builds a Persister bound to one job's tenant, tipo and options
type PersisterFactory func(job *models.ImportJob) Persister

// Services holds all service interfaces plus the shared notifier
type Services struct {
	Import   ImportService
	Job      JobService
	Report   ReportService
	Notifier *Notifier
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, registry *schema.Registry, cfg *config.Config, log zerolog.Logger) *Services {
	policy := retry.Policy{
		MaxAttempts: cfg.Import.RetryMaxAttempts,
		BaseDelay:   cfg.Import.RetryBaseDelay,
		Multiplier:  cfg.Import.RetryMultiplier,
	}

	notifier := NewNotifier(repos.Job, cfg.Import.ProgressDeltaPct, log)

	factory := func(job *models.ImportJob) Persister {
		return newBatchPersister(repos, policy, job, log)
	}

	jobSvc := newJobService(repos.Job, notifier, log)
	importSvc := newImportService(repos, registry, factory, notifier, cfg, log)
	reportSvc := newReportService(repos.Job, log)

	jobSvc.SetImportService(importSvc)

	return &Services{
		Import:   importSvc,
		Job:      jobSvc,
		Report:   reportSvc,
		Notifier: notifier,
	}
}
