package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
)

// reportService assembles per-row outcome reports
type reportService struct {
	jobs repository.JobRepository
	log  zerolog.Logger
}

func newReportService(jobs repository.JobRepository, log zerolog.Logger) *reportService {
	return &reportService{
		jobs: jobs,
		log:  log.With().Str("service", "report").Logger(),
	}
}

// BuildReport returns the structured outcome report. For a terminal job the
// report is complete and stable; before that it is a partial snapshot marked
// Completo=false.
func (s *reportService) BuildReport(ctx context.Context, id string) (*models.ReporteImportacion, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	exitosos, err := s.jobs.GetExitosos(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	errores, err := s.jobs.GetErrores(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	if exitosos == nil {
		exitosos = []models.RegistroExitoso{}
	}
	if errores == nil {
		errores = []models.ErrorDetallado{}
	}

	return &models.ReporteImportacion{
		TrabajoID:         job.ID,
		Tipo:              job.Tipo,
		Estado:            job.Estado,
		Completo:          job.Estado.Terminal(),
		RegistrosExitosos: exitosos,
		ErroresDetallados: errores,
	}, nil
}

// EscribirErroresCSV renders the error rows as a downloadable table the
// operator can fix and re-upload
func EscribirErroresCSV(w io.Writer, reporte *models.ReporteImportacion) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"fila", "columna", "valor", "tipo", "mensaje"}); err != nil {
		return err
	}
	for _, e := range reporte.ErroresDetallados {
		if err := writer.Write([]string{
			strconv.Itoa(e.Fila), e.Columna, e.Valor, e.Tipo, e.Mensaje,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
