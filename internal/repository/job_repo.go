package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/inventario-import-api/internal/database"
	"github.com/inventario-import-api/internal/models"
)

// jobRepo is the PostgreSQL implementation of JobRepository
type jobRepo struct {
	db *database.DB
}

// NewJobRepo creates a new job repository
func NewJobRepo(db *database.DB) JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `id, tenant_id, tipo, estado, etapa, total_registros, registros_procesados,
	registros_exitosos, registros_con_error, progreso, archivo_original, mensaje,
	sobrescribir_existentes, validar_solo, notificar_email, cancel_solicitado,
	ruta_archivo, fecha_creacion, fecha_actualizacion`

// Create inserts a new job
func (r *jobRepo) Create(ctx context.Context, job *models.ImportJob) error {
	query := `
		INSERT INTO import_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.Tipo, job.Estado, job.Etapa, job.TotalRegistros,
		job.RegistrosProcesados, job.RegistrosExitosos, job.RegistrosConError,
		job.Progreso, job.ArchivoOriginal, job.Mensaje,
		job.Opciones.SobrescribirExistentes, job.Opciones.ValidarSolo,
		job.Opciones.NotificarEmail, job.CancelSolicitado,
		job.RutaArchivo, job.FechaCreacion, job.FechaActualizacion,
	)
	return err
}

// Update updates job state, counters and progress
func (r *jobRepo) Update(ctx context.Context, job *models.ImportJob) error {
	query := `
		UPDATE import_jobs SET
			estado = $1, etapa = $2, total_registros = $3, registros_procesados = $4,
			registros_exitosos = $5, registros_con_error = $6, progreso = $7,
			mensaje = $8, fecha_actualizacion = $9
		WHERE id = $10
	`
	_, err := r.db.ExecContext(ctx, query,
		job.Estado, job.Etapa, job.TotalRegistros, job.RegistrosProcesados,
		job.RegistrosExitosos, job.RegistrosConError, job.Progreso,
		job.Mensaje, job.FechaActualizacion, job.ID,
	)
	return err
}

func scanJob(row interface{ Scan(...interface{}) error }) (*models.ImportJob, error) {
	var job models.ImportJob
	var etapa, mensaje, rutaArchivo sql.NullString
	err := row.Scan(
		&job.ID, &job.TenantID, &job.Tipo, &job.Estado, &etapa, &job.TotalRegistros,
		&job.RegistrosProcesados, &job.RegistrosExitosos, &job.RegistrosConError,
		&job.Progreso, &job.ArchivoOriginal, &mensaje,
		&job.Opciones.SobrescribirExistentes, &job.Opciones.ValidarSolo,
		&job.Opciones.NotificarEmail, &job.CancelSolicitado,
		&rutaArchivo, &job.FechaCreacion, &job.FechaActualizacion,
	)
	if err != nil {
		return nil, err
	}
	job.Etapa = models.Etapa(etapa.String)
	job.Mensaje = mensaje.String
	job.RutaArchivo = rutaArchivo.String
	return &job, nil
}

// GetByID retrieves a job by ID; ErrJobNotFound when absent
func (r *jobRepo) GetByID(ctx context.Context, id string) (*models.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns a page of the tenant's jobs, newest first, plus the total count
func (r *jobRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]*models.ImportJob, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM import_jobs WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE tenant_id = $1 ORDER BY fecha_creacion DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// GetPendingJobs retrieves pending jobs ready to be claimed
func (r *jobRepo) GetPendingJobs(ctx context.Context) ([]*models.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE estado = 'pendiente' ORDER BY fecha_creacion`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing atomically claims a pending job; at most one caller wins
func (r *jobRepo) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE import_jobs SET estado = 'procesando', fecha_actualizacion = $1
		WHERE id = $2 AND estado = 'pendiente'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), jobID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RequestCancel flags a non-terminal job for cooperative cancellation
func (r *jobRepo) RequestCancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE import_jobs SET cancel_solicitado = TRUE, fecha_actualizacion = $1
		WHERE id = $2 AND estado IN ('pendiente', 'procesando')
	`
	_, err := r.db.ExecContext(ctx, query, time.Now(), jobID)
	return err
}

// CancelRequested reads the cancellation flag; the worker checks it between batches
func (r *jobRepo) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var flag bool
	err := r.db.QueryRowContext(ctx,
		"SELECT cancel_solicitado FROM import_jobs WHERE id = $1", jobID).Scan(&flag)
	if err == sql.ErrNoRows {
		return false, models.ErrJobNotFound
	}
	return flag, err
}

// AddErrores appends detailed errors using the COPY protocol
func (r *jobRepo) AddErrores(ctx context.Context, jobID string, errores []models.ErrorDetallado) error {
	if len(errores) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("import_job_errores",
		"job_id", "fila", "columna", "valor", "mensaje", "tipo",
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range errores {
		if _, err := stmt.ExecContext(ctx, jobID, e.Fila, e.Columna, e.Valor, e.Mensaje, e.Tipo); err != nil {
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}

	return tx.Commit()
}

// GetErrores retrieves detailed errors for a job, ordered by row
func (r *jobRepo) GetErrores(ctx context.Context, jobID string, limit int) ([]models.ErrorDetallado, error) {
	query := `SELECT fila, columna, valor, mensaje, tipo FROM import_job_errores WHERE job_id = $1 ORDER BY fila`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", jobID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, jobID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errores []models.ErrorDetallado
	for rows.Next() {
		var e models.ErrorDetallado
		var valor sql.NullString
		if err := rows.Scan(&e.Fila, &e.Columna, &valor, &e.Mensaje, &e.Tipo); err != nil {
			return nil, err
		}
		e.Valor = valor.String
		errores = append(errores, e)
	}
	return errores, rows.Err()
}

// AddExitosos appends successful-record summaries using the COPY protocol
func (r *jobRepo) AddExitosos(ctx context.Context, jobID string, registros []models.RegistroExitoso) error {
	if len(registros) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("import_job_exitosos",
		"job_id", "fila", "tipo", "identificador", "datos", "correcciones", "ts",
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, reg := range registros {
		datos, err := json.Marshal(reg.Datos)
		if err != nil {
			return err
		}
		correcciones, err := json.Marshal(reg.CorreccionesAplicadas)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, jobID, reg.Fila, reg.Tipo, reg.Identificador,
			string(datos), string(correcciones), reg.Timestamp); err != nil {
			return err
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}

	return tx.Commit()
}

// GetExitosos retrieves successful-record summaries for a job, ordered by row
func (r *jobRepo) GetExitosos(ctx context.Context, jobID string, limit int) ([]models.RegistroExitoso, error) {
	query := `SELECT fila, tipo, identificador, datos, correcciones, ts FROM import_job_exitosos WHERE job_id = $1 ORDER BY fila`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", jobID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, jobID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var registros []models.RegistroExitoso
	for rows.Next() {
		var reg models.RegistroExitoso
		var datos, correcciones []byte
		if err := rows.Scan(&reg.Fila, &reg.Tipo, &reg.Identificador, &datos, &correcciones, &reg.Timestamp); err != nil {
			return nil, err
		}
		if len(datos) > 0 {
			json.Unmarshal(datos, &reg.Datos)
		}
		if len(correcciones) > 0 {
			json.Unmarshal(correcciones, &reg.CorreccionesAplicadas)
		}
		registros = append(registros, reg)
	}
	return registros, rows.Err()
}
