package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/api"
	"github.com/inventario-import-api/internal/config"
	"github.com/inventario-import-api/internal/mocks"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
	"github.com/inventario-import-api/internal/schema"
	"github.com/inventario-import-api/internal/service"
)

type apiHarness struct {
	router    *gin.Engine
	jobRepo   *mocks.MockJobRepository
	uploadDir string
}

func setupTestRouter(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	uploadDir := t.TempDir()
	jobRepo := mocks.NewMockJobRepository()
	repos := &repository.Repositories{
		Producto:   mocks.NewMockProductoRepository(),
		Proveedor:  mocks.NewMockProveedorRepository(),
		Movimiento: mocks.NewMockMovimientoRepository(),
		Job:        jobRepo,
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080"},
		Import: config.ImportConfig{
			BatchSize:        50,
			MaxUploadSize:    1024 * 1024,
			UploadDir:        uploadDir,
			RetryMaxAttempts: 1,
			ProgressDeltaPct: 1.0,
			PollInterval:     2 * time.Second,
		},
	}

	registry := schema.NewRegistry()
	services := service.NewServices(repos, registry, cfg, zerolog.Nop())
	router := api.NewRouter(services, registry, cfg, zerolog.Nop())

	return &apiHarness{router: router, jobRepo: jobRepo, uploadDir: uploadDir}
}

func subirArchivo(t *testing.T, router *gin.Engine, tipo, filename, contenido string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("archivo", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := io.WriteString(part, contenido); err != nil {
		t.Fatalf("writing multipart body failed: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest("POST", "/v1/import/"+tipo, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const csvProductos = "codigo,nombre,categoria,precioCompra,precioVenta,stock\nACE-001,Aceite,alimentacion,3.50,5.95,120\n"

func TestHealthEndpoint(t *testing.T) {
	h := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupTestRouter(t)

	// A prior request so the labelled HTTP counters have something to show
	previa := httptest.NewRequest("GET", "/health", nil)
	h.router.ServeHTTP(httptest.NewRecorder(), previa)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "import_http_requests_total") {
		t.Error("metrics exposition should include the HTTP counters")
	}
}

func TestCreateImport(t *testing.T) {
	h := setupTestRouter(t)

	w := subirArchivo(t, h.router, "productos", "inventario.csv", csvProductos)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	trabajoID, _ := response["trabajoId"].(string)
	if trabajoID == "" {
		t.Fatal("response should carry the job id")
	}
	if response["estado"] != "pendiente" {
		t.Errorf("estado = %v, want pendiente", response["estado"])
	}
	if response["estadoUrl"] != "/v1/import/jobs/"+trabajoID {
		t.Errorf("unexpected estadoUrl: %v", response["estadoUrl"])
	}

	// The job must actually be queued
	job, err := h.jobRepo.GetByID(context.Background(), trabajoID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Estado != models.EstadoPendiente {
		t.Errorf("stored estado = %s, want pendiente", job.Estado)
	}
}

func TestCreateImport_AutoDeteccion(t *testing.T) {
	h := setupTestRouter(t)

	contenido := "nombre,email,telefono\nDistribuciones Sur,ventas@sur.com,600111222\n"
	w := subirArchivo(t, h.router, "auto", "proveedores.csv", contenido)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["tipo"] != "proveedores" {
		t.Errorf("detected tipo = %v, want proveedores", response["tipo"])
	}
	deteccion, ok := response["deteccion"].(map[string]interface{})
	if !ok {
		t.Fatal("auto imports should explain their detection")
	}
	if deteccion["tipo"] != "proveedores" {
		t.Errorf("deteccion.tipo = %v, want proveedores", deteccion["tipo"])
	}
	if deteccion["confianza"].(float64) < 0.5 {
		t.Errorf("confianza = %v, want >= 0.5", deteccion["confianza"])
	}
}

func TestCreateImport_AutoSinCoincidencias(t *testing.T) {
	h := setupTestRouter(t)

	w := subirArchivo(t, h.router, "auto", "misterio.csv", "a,b,c\n1,2,3\n")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCreateImport_TipoInvalido(t *testing.T) {
	h := setupTestRouter(t)

	w := subirArchivo(t, h.router, "clientes", "datos.csv", csvProductos)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCreateImport_SinArchivo(t *testing.T) {
	h := setupTestRouter(t)

	req := httptest.NewRequest("POST", "/v1/import/productos", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCreateImport_FalloAlEncolarLimpiaElArchivo(t *testing.T) {
	h := setupTestRouter(t)
	h.jobRepo.CreateErr = errors.New("db down")

	w := subirArchivo(t, h.router, "productos", "inventario.csv", csvProductos)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}

	restos, err := os.ReadDir(h.uploadDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(restos) != 0 {
		t.Errorf("upload dir should be empty after a failed enqueue, found %d files", len(restos))
	}
}

func TestCreateImport_FormatoNoSoportado(t *testing.T) {
	h := setupTestRouter(t)

	w := subirArchivo(t, h.router, "productos", "datos.pdf", "contenido")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func crearTrabajoTerminal(t *testing.T, h *apiHarness, id string) {
	t.Helper()
	err := h.jobRepo.Create(context.Background(), &models.ImportJob{
		ID:                  id,
		TenantID:            "default",
		Tipo:                models.TipoProductos,
		Estado:              models.EstadoCompletado,
		TotalRegistros:      10,
		RegistrosProcesados: 10,
		RegistrosExitosos:   8,
		RegistrosConError:   2,
		Progreso:            100,
		FechaCreacion:       time.Now(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	h.jobRepo.AddErrores(context.Background(), id, []models.ErrorDetallado{
		{Fila: 3, Columna: "codigo", Valor: "", Mensaje: "el campo codigo es obligatorio", Tipo: models.ErrorMissingRequired},
		{Fila: 7, Columna: "precioVenta", Valor: "abc", Mensaje: "precioVenta no es un número válido", Tipo: models.ErrorInvalidNumber},
	})
}

func TestGetJob(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-123")

	req := httptest.NewRequest("GET", "/v1/import/jobs/job-123", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response models.JobResponse
	json.Unmarshal(w.Body.Bytes(), &response)

	if response.ID != "job-123" {
		t.Errorf("trabajoId = %s, want job-123", response.ID)
	}
	if response.RegistrosExitosos != 8 || response.RegistrosConError != 2 {
		t.Errorf("counters = %d/%d, want 8/2", response.RegistrosExitosos, response.RegistrosConError)
	}
	if len(response.Errores) != 2 {
		t.Errorf("error preview has %d entries, want 2", len(response.Errores))
	}
	if response.ReporteURL != "/v1/import/jobs/job-123/errors" {
		t.Errorf("unexpected report link: %s", response.ReporteURL)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	h := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/v1/import/jobs/no-existe", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-a")
	crearTrabajoTerminal(t, h, "job-b")

	req := httptest.NewRequest("GET", "/v1/import/jobs?limit=1", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var page models.JobPage
	json.Unmarshal(w.Body.Bytes(), &page)

	if len(page.Trabajos) != 1 {
		t.Errorf("got %d jobs, want 1", len(page.Trabajos))
	}
	if page.Total != 2 {
		t.Errorf("total = %d, want 2", page.Total)
	}
}

func TestCancelJob_TerminalEsNoOp(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-fin")

	req := httptest.NewRequest("POST", "/v1/import/jobs/job-fin/cancel", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var job models.ImportJob
	json.Unmarshal(w.Body.Bytes(), &job)
	if job.Estado != models.EstadoCompletado {
		t.Errorf("estado = %s, a finished job must stay completado", job.Estado)
	}
}

func TestGetJobErrors_JSON(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-err")

	req := httptest.NewRequest("GET", "/v1/import/jobs/job-err/errors", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var reporte models.ReporteImportacion
	json.Unmarshal(w.Body.Bytes(), &reporte)

	if !reporte.Completo {
		t.Error("report of a terminal job must be complete")
	}
	if len(reporte.ErroresDetallados) != 2 {
		t.Errorf("got %d detailed errors, want 2", len(reporte.ErroresDetallados))
	}
}

func TestGetJobErrors_CSV(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-csv")

	req := httptest.NewRequest("GET", "/v1/import/jobs/job-csv/errors?format=csv", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Errorf("Content-Type = %s, want text/csv", ct)
	}

	lineas := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lineas) != 3 {
		t.Fatalf("got %d CSV lines, want header + 2 rows: %q", len(lineas), w.Body.String())
	}
	if lineas[0] != "fila,columna,valor,tipo,mensaje" {
		t.Errorf("unexpected CSV header: %s", lineas[0])
	}
	if !strings.HasPrefix(lineas[1], "3,codigo") {
		t.Errorf("unexpected first error row: %s", lineas[1])
	}
}

func TestStreamEvents_TrabajoTerminado(t *testing.T) {
	h := setupTestRouter(t)
	crearTrabajoTerminal(t, h, "job-sse")

	req := httptest.NewRequest("GET", "/v1/import/jobs/job-sse/events", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("Content-Type = %s, want text/event-stream", ct)
	}

	cuerpo := w.Body.String()
	if !strings.Contains(cuerpo, "event: estado") {
		t.Errorf("SSE body should carry an estado event: %q", cuerpo)
	}
	if !strings.Contains(cuerpo, `"estado":"completado"`) {
		t.Errorf("SSE body should carry the terminal snapshot: %q", cuerpo)
	}
}

func TestStreamEvents_NotFound(t *testing.T) {
	h := setupTestRouter(t)

	req := httptest.NewRequest("GET", "/v1/import/jobs/no-existe/events", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
