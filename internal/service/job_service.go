package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/metrics"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
)

// jobService is the concrete implementation of JobService
type jobService struct {
	jobRepo       repository.JobRepository
	notifier      *Notifier
	importService ImportService
	log           zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool
	mu            sync.Mutex
	// Semaphore bounds concurrent job workers; jobs never share mutable
	// state except through the job store
	sem chan struct{}
}

// newJobService creates a new JobService with a worker pool sized for
// I/O-bound work
func newJobService(jobRepo repository.JobRepository, notifier *Notifier, log zerolog.Logger) *jobService {
	maxWorkers := runtime.NumCPU() * 4
	if maxWorkers < 4 {
		maxWorkers = 4
	}
	if maxWorkers > 32 {
		maxWorkers = 32
	}

	log.Info().Int("max_workers", maxWorkers).Msg("Initializing job service worker pool")

	return &jobService{
		jobRepo:  jobRepo,
		notifier: notifier,
		log:      log.With().Str("service", "job").Logger(),
		sem:      make(chan struct{}, maxWorkers),
	}
}

// SetImportService sets the import service for job processing
func (s *jobService) SetImportService(importService ImportService) {
	s.importService = importService
}

// StartProcessor starts the background job processor
func (s *jobService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info().Msg("Job processor started")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Job processor stopping")
			return
		case <-ticker.C:
			s.processPendingJobs()
		}
	}
}

// StopProcessor stops the background job processor and waits for in-flight
// workers
func (s *jobService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Job processor stopped")
}

// processPendingJobs claims and dispatches pending jobs
func (s *jobService) processPendingJobs() {
	jobs, err := s.jobRepo.GetPendingJobs(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get pending jobs")
		return
	}

	for _, job := range jobs {
		// Backpressure: block until a worker slot frees up
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		// Atomic claim: at most one worker ever processes a given job
		claimed, err := s.jobRepo.MarkProcessing(s.ctx, job.ID)
		if err != nil || !claimed {
			<-s.sem
			continue
		}

		s.wg.Add(1)
		go func(j *models.ImportJob) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			// A panicking worker must not take the process down; the job
			// surfaces the fault as a terminal error state
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Interface("panic", r).
						Str("job_id", j.ID).
						Msg("Job processing panicked - recovered")
					j.Estado = models.EstadoError
					j.Mensaje = "fallo interno durante el procesamiento"
					j.Touch()
					s.jobRepo.Update(s.ctx, j)
					s.notifier.Publish(j)
				}
			}()
			s.processJob(j)
		}(job)
	}
}

// processJob runs one claimed job
func (s *jobService) processJob(job *models.ImportJob) {
	select {
	case <-s.ctx.Done():
		s.log.Warn().Str("job_id", job.ID).Msg("Job processing skipped due to shutdown")
		return
	default:
	}

	s.log.Info().Str("job_id", job.ID).Str("tipo", string(job.Tipo)).Msg("Processing job")

	metrics.JobsActivos.Inc()
	defer metrics.JobsActivos.Dec()

	if s.importService != nil {
		if err := s.importService.ProcessImport(s.ctx, job); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("Import processing failed")
		}
	}
}

// GetJob retrieves a job snapshot with a bounded error preview
func (s *jobService) GetJob(ctx context.Context, id string) (*models.JobResponse, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	errores, err := s.jobRepo.GetErrores(ctx, id, 100)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("Failed to get job errors")
	}

	response := &models.JobResponse{
		ImportJob:    *job,
		Errores:      errores,
		TotalErrores: job.RegistrosConError,
	}
	if job.RegistrosConError > 0 {
		response.ReporteURL = "/v1/import/jobs/" + job.ID + "/errors"
	}

	return response, nil
}

// ListJobs returns a bounded page of the tenant's jobs
func (s *jobService) ListJobs(ctx context.Context, tenantID string, limit, offset int) (*models.JobPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := s.jobRepo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.ImportJob{}
	}
	return &models.JobPage{Trabajos: jobs, Limit: limit, Offset: offset, Total: total}, nil
}

// Cancel requests cooperative cancellation. Cancelling a terminal job is a
// no-op returning the current snapshot, never an error.
func (s *jobService) Cancel(ctx context.Context, id string) (*models.ImportJob, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Estado.Terminal() {
		return job, nil
	}

	if err := s.jobRepo.RequestCancel(ctx, id); err != nil {
		return nil, err
	}
	s.log.Info().Str("job_id", id).Msg("Cancellation requested")

	return s.jobRepo.GetByID(ctx, id)
}
