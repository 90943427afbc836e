package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/config"
	"github.com/inventario-import-api/internal/metrics"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/reader"
	"github.com/inventario-import-api/internal/repository"
	"github.com/inventario-import-api/internal/schema"
	"github.com/inventario-import-api/internal/validation"
)

// Stage weight boundaries for progress computation. Progress is
// stage-weighted so small files still show meaningful movement; within the
// row-driven stages it advances proportionally to rows processed.
const (
	progresoValidacionArchivo = 10.0
	progresoLectura           = 30.0
	progresoValidacionDatos   = 60.0
	progresoInsercion         = 90.0
)

// errorFlushThreshold bounds memory held by accumulated row errors before
// they are flushed to the job store
const errorFlushThreshold = 500

// importService is the concrete implementation of ImportService
type importService struct {
	repos        *repository.Repositories
	registry     *schema.Registry
	validator    *validation.Validator
	newPersister PersisterFactory
	notifier     *Notifier
	cfg          *config.Config
	log          zerolog.Logger
}

func newImportService(repos *repository.Repositories, registry *schema.Registry, factory PersisterFactory, notifier *Notifier, cfg *config.Config, log zerolog.Logger) *importService {
	return &importService{
		repos:        repos,
		registry:     registry,
		validator:    validation.NewValidator(),
		newPersister: factory,
		notifier:     notifier,
		cfg:          cfg,
		log:          log.With().Str("service", "import").Logger(),
	}
}

// CreateImportJob accepts the file and registers a pending job. Processing is
// asynchronous; the tipo must already be concrete (auto resolves earlier).
func (s *importService) CreateImportJob(ctx context.Context, req *ImportRequest) (*models.ImportJob, error) {
	if _, err := s.registry.Lookup(req.Tipo); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &models.ImportJob{
		ID:                 uuid.New().String(),
		TenantID:           req.TenantID,
		Tipo:               req.Tipo,
		Estado:             models.EstadoPendiente,
		ArchivoOriginal:    req.ArchivoOriginal,
		RutaArchivo:        req.RutaArchivo,
		Opciones:           req.Opciones,
		FechaCreacion:      now,
		FechaActualizacion: now,
	}

	if err := s.repos.Job.Create(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("tipo", string(job.Tipo)).
		Str("archivo", job.ArchivoOriginal).
		Bool("validar_solo", job.Opciones.ValidarSolo).
		Msg("Import job created")

	metrics.JobsCreated.WithLabelValues(string(job.Tipo)).Inc()
	s.notifier.Publish(job)
	return job, nil
}

// filaCruda is one raw data row, keyed by canonical field name
type filaCruda struct {
	numero  int
	valores map[string]string
}

// ProcessImport drives one claimed job through the pipeline. The caller has
// already won the claim, so this is the only goroutine mutating the job.
func (s *importService) ProcessImport(ctx context.Context, job *models.ImportJob) error {
	log := s.log.With().Str("job_id", job.ID).Str("tipo", string(job.Tipo)).Logger()
	inicio := time.Now()

	job.Estado = models.EstadoProcesando
	job.Etapa = models.EtapaValidacionArchivo
	s.actualizar(ctx, job)

	esquema, err := s.registry.Lookup(job.Tipo)
	if err != nil {
		return s.finalizarError(ctx, job, err.Error())
	}

	src, err := reader.Open(job.RutaArchivo)
	if err != nil {
		log.Error().Err(err).Msg("File unreadable")
		return s.finalizarError(ctx, job, fmt.Sprintf("archivo ilegible: %v", err))
	}
	defer src.Close()

	// Resolve the header row; a file where nothing maps is structurally broken
	columnas := make(map[int]string)
	for i, h := range src.Headers() {
		if campo, ok := esquema.ResolveHeader(h); ok {
			columnas[i] = campo.Nombre
		}
	}
	if len(columnas) == 0 {
		return s.finalizarError(ctx, job, "la fila de cabecera no coincide con ningún campo del esquema")
	}

	job.AvanzarProgreso(progresoValidacionArchivo)
	job.Etapa = models.EtapaLectura
	s.actualizar(ctx, job)

	// Reading stage: pull every row into memory (uploads are size-bounded)
	var filas []filaCruda
	numero := 0
	for {
		celdas, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("fila", numero+1).Msg("Read failed mid-file")
			return s.finalizarError(ctx, job, fmt.Sprintf("error de lectura en la fila %d: %v", numero+1, err))
		}
		numero++
		valores := make(map[string]string, len(columnas))
		for i, nombre := range columnas {
			if i < len(celdas) {
				valores[nombre] = celdas[i]
			}
		}
		filas = append(filas, filaCruda{numero: numero, valores: valores})
	}

	job.TotalRegistros = len(filas)
	job.AvanzarProgreso(progresoLectura)
	job.Etapa = models.EtapaValidacionDatos
	s.actualizar(ctx, job)

	// Validation stage: every row gets a verdict; failures never halt the job
	var validados []*models.RegistroNormalizado
	var erroresPendientes []models.ErrorDetallado
	for i, fila := range filas {
		if i%100 == 0 {
			if cancelado, err := s.comprobarCancelacion(ctx, job); err != nil {
				return err
			} else if cancelado {
				s.flushErrores(ctx, job.ID, &erroresPendientes)
				return s.finalizarCancelado(ctx, job)
			}
		}

		registro, errores := s.validator.Validate(fila.numero, fila.valores, esquema)
		if len(errores) > 0 {
			job.RegistrosConError++
			job.RegistrosProcesados++
			metrics.Rows.WithLabelValues("error").Inc()
			erroresPendientes = append(erroresPendientes, errores...)
			if len(erroresPendientes) >= errorFlushThreshold {
				s.flushErrores(ctx, job.ID, &erroresPendientes)
			}
		} else {
			validados = append(validados, registro)
		}

		if (i+1)%s.cfg.Import.BatchSize == 0 || i == len(filas)-1 {
			job.AvanzarProgreso(avanceEtapa(progresoLectura, progresoValidacionDatos, i+1, len(filas)))
			s.actualizar(ctx, job)
		}
	}
	s.flushErrores(ctx, job.ID, &erroresPendientes)

	job.AvanzarProgreso(progresoValidacionDatos)
	job.Etapa = models.EtapaInsercion
	s.actualizar(ctx, job)

	// Persistence stage: bounded batches; the cancellation flag is only
	// observed between batches so a submitted batch always completes
	persister := s.newPersister(job)
	if err := persister.Preparar(ctx); err != nil {
		log.Error().Err(err).Msg("Persister preparation failed")
		return s.finalizarError(ctx, job, err.Error())
	}

	tam := s.cfg.Import.BatchSize
	totalLotes := (len(validados) + tam - 1) / tam
	for lote := 0; lote < totalLotes; lote++ {
		if cancelado, err := s.comprobarCancelacion(ctx, job); err != nil {
			return err
		} else if cancelado {
			return s.finalizarCancelado(ctx, job)
		}

		desde := lote * tam
		hasta := desde + tam
		if hasta > len(validados) {
			hasta = len(validados)
		}

		exitosos, fallidos, err := persister.PersistBatch(ctx, validados[desde:hasta])
		if err != nil {
			log.Error().Err(err).Int("lote", lote+1).Msg("Batch persistence failed after retries")
			return s.finalizarError(ctx, job, fmt.Sprintf("fallo de almacenamiento: %v", err))
		}

		if err := s.repos.Job.AddExitosos(ctx, job.ID, exitosos); err != nil {
			log.Error().Err(err).Msg("Failed to store successful records")
		}
		if err := s.repos.Job.AddErrores(ctx, job.ID, fallidos); err != nil {
			log.Error().Err(err).Msg("Failed to store row errors")
		}

		job.RegistrosExitosos += len(exitosos)
		job.RegistrosConError += len(fallidos)
		job.RegistrosProcesados += len(exitosos) + len(fallidos)
		metrics.Rows.WithLabelValues("exitoso").Add(float64(len(exitosos)))
		metrics.Rows.WithLabelValues("error").Add(float64(len(fallidos)))
		job.AvanzarProgreso(avanceEtapa(progresoValidacionDatos, progresoInsercion, lote+1, totalLotes))
		s.actualizar(ctx, job)

		log.Debug().
			Int("lote", lote+1).
			Int("procesados", job.RegistrosProcesados).
			Float64("progreso", job.Progreso).
			Msg("Batch processed")
	}

	job.AvanzarProgreso(progresoInsercion)
	job.Etapa = models.EtapaFinalizacion
	s.actualizar(ctx, job)

	job.Estado = models.EstadoCompletado
	job.Progreso = 100
	job.Mensaje = s.mensajeFinal(job)
	s.actualizar(ctx, job)
	metrics.JobsFinished.WithLabelValues(string(job.Tipo), string(job.Estado)).Inc()

	log.Info().
		Int("total", job.TotalRegistros).
		Int("exitosos", job.RegistrosExitosos).
		Int("con_error", job.RegistrosConError).
		Dur("duracion", time.Since(inicio)).
		Msg("Import completed")

	return nil
}

func (s *importService) mensajeFinal(job *models.ImportJob) string {
	if job.Opciones.ValidarSolo {
		return fmt.Sprintf("simulación completada: %d registros se importarían, %d con errores (no se escribió nada)",
			job.RegistrosExitosos, job.RegistrosConError)
	}
	return fmt.Sprintf("importación completada: %d de %d registros importados", job.RegistrosExitosos, job.TotalRegistros)
}

// avanceEtapa interpolates progress inside one stage band
func avanceEtapa(desde, hasta float64, hecho, total int) float64 {
	if total <= 0 {
		return hasta
	}
	return desde + (hasta-desde)*float64(hecho)/float64(total)
}

// flushErrores writes accumulated row errors to the job store and resets the
// slice, bounding memory on high-error files
func (s *importService) flushErrores(ctx context.Context, jobID string, errores *[]models.ErrorDetallado) {
	if len(*errores) == 0 {
		return
	}
	if err := s.repos.Job.AddErrores(ctx, jobID, *errores); err != nil {
		s.log.Error().Err(err).Int("count", len(*errores)).Msg("Failed to flush row errors")
	}
	*errores = (*errores)[:0]
}

// comprobarCancelacion reads the cooperative cancellation flag
func (s *importService) comprobarCancelacion(ctx context.Context, job *models.ImportJob) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	cancelado, err := s.repos.Job.CancelRequested(ctx, job.ID)
	if err != nil && !errors.Is(err, models.ErrJobNotFound) {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to read cancellation flag")
		return false, nil
	}
	return cancelado, nil
}

// actualizar persists the job snapshot and feeds the notifier
func (s *importService) actualizar(ctx context.Context, job *models.ImportJob) {
	job.Touch()
	if err := s.repos.Job.Update(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update job")
	}
	s.notifier.Publish(job)
}

// finalizarCancelado freezes the job at its current counters
func (s *importService) finalizarCancelado(ctx context.Context, job *models.ImportJob) error {
	job.Estado = models.EstadoCancelado
	job.Mensaje = fmt.Sprintf("importación cancelada tras procesar %d de %d registros", job.RegistrosProcesados, job.TotalRegistros)
	s.actualizar(ctx, job)
	metrics.JobsFinished.WithLabelValues(string(job.Tipo), string(job.Estado)).Inc()
	s.log.Info().Str("job_id", job.ID).Int("procesados", job.RegistrosProcesados).Msg("Import cancelled")
	return nil
}

// finalizarError marks a job-fatal structural or infrastructure fault
func (s *importService) finalizarError(ctx context.Context, job *models.ImportJob, mensaje string) error {
	job.Estado = models.EstadoError
	job.Mensaje = mensaje
	s.actualizar(ctx, job)
	metrics.JobsFinished.WithLabelValues(string(job.Tipo), string(job.Estado)).Inc()
	return fmt.Errorf("import job %s failed: %s", job.ID, mensaje)
}
