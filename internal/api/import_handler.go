package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/config"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/reader"
	"github.com/inventario-import-api/internal/schema"
	"github.com/inventario-import-api/internal/service"
)

// ImportHandler handles import endpoints
type ImportHandler struct {
	services *service.Services
	registry *schema.Registry
	cfg      *config.Config
	log      zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, registry *schema.Registry, cfg *config.Config, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("handler", "import").Logger(),
	}
}

// CreateImport handles POST /v1/import/:tipo
// Accepts a multipart upload; tipo may be a concrete schema name or "auto",
// which resolves from the file's header row before the job is created.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	ctx := c.Request.Context()

	tipo := models.TipoImportacion(c.Param("tipo"))
	switch tipo {
	case models.TipoProductos, models.TipoProveedores, models.TipoMovimientos, models.TipoAuto:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tipo debe ser uno de: productos, proveedores, movimientos, auto"})
		return
	}

	file, header, err := c.Request.FormFile("archivo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "se requiere el archivo (campo multipart 'archivo')"})
		return
	}
	defer file.Close()

	if header.Size > h.cfg.Import.MaxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("archivo demasiado grande, el máximo es %d MB", h.cfg.Import.MaxUploadSize/(1024*1024)),
		})
		return
	}

	if !reader.ExtensionSoportada(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "formato no soportado, se acepta .csv, .xlsx o .xls"})
		return
	}

	uploadDir := h.cfg.Import.UploadDir
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		h.log.Error().Err(err).Msg("Failed to create upload directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo guardar el archivo"})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	filePath := filepath.Join(uploadDir, fmt.Sprintf("%s_%s%s", tipo, uuid.New().String()[:8], ext))

	dst, err := os.Create(filePath)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo guardar el archivo"})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		h.log.Error().Err(err).Msg("Failed to copy file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo guardar el archivo"})
		return
	}
	dst.Close()

	var deteccion *schema.Deteccion
	if tipo == models.TipoAuto {
		deteccion, err = h.detectar(filePath)
		if err != nil {
			os.Remove(filePath)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tipo = deteccion.Tipo
	}

	req := &service.ImportRequest{
		TenantID:        tenantID(c),
		Tipo:            tipo,
		ArchivoOriginal: header.Filename,
		RutaArchivo:     filePath,
		Opciones: models.OpcionesImportacion{
			SobrescribirExistentes: formBool(c, "sobrescribirExistentes"),
			ValidarSolo:            formBool(c, "validarSolo"),
			NotificarEmail:         formBool(c, "notificarEmail"),
		},
	}

	job, err := h.services.Import.CreateImportJob(ctx, req)
	if err != nil {
		os.Remove(filePath)
		h.log.Error().Err(err).Msg("Failed to create import job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo crear el trabajo de importación"})
		return
	}

	h.log.Info().
		Str("job_id", job.ID).
		Str("tipo", string(job.Tipo)).
		Str("archivo", header.Filename).
		Int64("size_bytes", header.Size).
		Msg("Import job created")

	respuesta := gin.H{
		"trabajoId":         job.ID,
		"estado":            job.Estado,
		"tipo":              job.Tipo,
		"mensaje":           "trabajo de importación creado y encolado",
		"intervaloConsulta": h.cfg.Import.PollInterval.String(),
		"estadoUrl":         "/v1/import/jobs/" + job.ID,
		"eventosUrl":        "/v1/import/jobs/" + job.ID + "/events",
	}
	if deteccion != nil {
		respuesta["deteccion"] = deteccion
	}
	c.JSON(http.StatusAccepted, respuesta)
}

// detectar resolves an auto import from the saved file's headers
func (h *ImportHandler) detectar(path string) (*schema.Deteccion, error) {
	src, err := reader.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return h.registry.Detect(src.Headers())
}

// GetJob handles GET /v1/import/jobs/:job_id
func (h *ImportHandler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")

	job, err := h.services.Job.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trabajo no encontrado"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo consultar el trabajo"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /v1/import/jobs
func (h *ImportHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.services.Job.ListJobs(ctx, tenantID(c), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo listar los trabajos"})
		return
	}

	c.JSON(http.StatusOK, page)
}

// CancelJob handles POST /v1/import/jobs/:job_id/cancel.
// Cancelling a terminal job is a no-op that returns the final snapshot.
func (h *ImportHandler) CancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")

	job, err := h.services.Job.Cancel(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trabajo no encontrado"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo cancelar el trabajo"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobErrors handles GET /v1/import/jobs/:job_id/errors
// Returns the outcome report as JSON, or as a downloadable CSV of error rows
// with ?format=csv.
func (h *ImportHandler) GetJobErrors(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")

	reporte, err := h.services.Report.BuildReport(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trabajo no encontrado"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo generar el reporte"})
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=errores_%s.csv", jobID))
		if err := service.EscribirErroresCSV(c.Writer, reporte); err != nil {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to write CSV report")
		}
		return
	}

	c.JSON(http.StatusOK, reporte)
}

// StreamEvents handles GET /v1/import/jobs/:job_id/events as an SSE stream.
// Each significant status change arrives as one `estado` event; the stream
// closes after the terminal snapshot is delivered. A subscriber joining a
// finished job still receives that final snapshot.
func (h *ImportHandler) StreamEvents(c *gin.Context) {
	jobID := c.Param("job_id")

	actual, err := h.services.Notifier.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trabajo no encontrado"})
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job for SSE")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no se pudo consultar el trabajo"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// The current snapshot goes out first so the client never starts blind;
	// a job already finished gets it as its only, final event
	h.escribirEvento(c, *actual)
	if actual.Estado.Terminal() {
		return
	}

	updates, cancel := h.services.Notifier.Subscribe(jobID)
	defer cancel()

	h.log.Debug().Str("job_id", jobID).Str("remote_addr", c.ClientIP()).Msg("SSE client connected")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("job_id", jobID).Msg("SSE client disconnected")
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			h.escribirEvento(c, snapshot)
		}
	}
}

func (h *ImportHandler) escribirEvento(c *gin.Context, snapshot models.ImportJob) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", snapshot.ID).Msg("Failed to marshal SSE event")
		return
	}
	fmt.Fprintf(c.Writer, "event: estado\ndata: %s\n\n", data)
	c.Writer.Flush()
}

// formBool parses a boolean form field, accepting true/1/si
func formBool(c *gin.Context, name string) bool {
	v := strings.ToLower(strings.TrimSpace(c.PostForm(name)))
	return v == "true" || v == "1" || v == "si" || v == "sí"
}

// tenantID reads the tenant set by the router middleware
func tenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
