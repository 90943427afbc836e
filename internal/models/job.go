package models

import (
	"time"
)

// EstadoJob represents the lifecycle state of an import job
type EstadoJob string

const (
	EstadoPendiente  EstadoJob = "pendiente"
	EstadoProcesando EstadoJob = "procesando"
	EstadoCompletado EstadoJob = "completado"
	EstadoError      EstadoJob = "error"
	EstadoCancelado  EstadoJob = "cancelado"
)

// Terminal reports whether no further transitions are possible from the state
func (e EstadoJob) Terminal() bool {
	return e == EstadoCompletado || e == EstadoError || e == EstadoCancelado
}

// TipoImportacion identifies which entity schema an import targets
type TipoImportacion string

const (
	TipoProductos   TipoImportacion = "productos"
	TipoProveedores TipoImportacion = "proveedores"
	TipoMovimientos TipoImportacion = "movimientos"
	// TipoAuto is only valid on a request; it resolves to a concrete tipo
	// from the file headers before a job is created.
	TipoAuto TipoImportacion = "auto"
)

// Etapa names a pipeline phase used for weighted progress
type Etapa string

const (
	EtapaValidacionArchivo Etapa = "validacion_archivo"
	EtapaLectura           Etapa = "lectura"
	EtapaValidacionDatos   Etapa = "validacion_datos"
	EtapaInsercion         Etapa = "insercion"
	EtapaFinalizacion      Etapa = "finalizacion"
)

// OpcionesImportacion are the caller-supplied import options
type OpcionesImportacion struct {
	SobrescribirExistentes bool `json:"sobrescribirExistentes" form:"sobrescribirExistentes"`
	ValidarSolo            bool `json:"validarSolo" form:"validarSolo"`
	NotificarEmail         bool `json:"notificarEmail" form:"notificarEmail"`
}

// ImportJob is the full lifecycle record of one import request.
// Counters hold registrosProcesados = registrosExitosos + registrosConError
// and registrosProcesados <= totalRegistros at every observable point.
type ImportJob struct {
	ID                  string              `json:"trabajoId" db:"id"`
	TenantID            string              `json:"-" db:"tenant_id"`
	Tipo                TipoImportacion     `json:"tipo" db:"tipo"`
	Estado              EstadoJob           `json:"estado" db:"estado"`
	Etapa               Etapa               `json:"etapa,omitempty" db:"etapa"`
	TotalRegistros      int                 `json:"totalRegistros" db:"total_registros"`
	RegistrosProcesados int                 `json:"registrosProcesados" db:"registros_procesados"`
	RegistrosExitosos   int                 `json:"registrosExitosos" db:"registros_exitosos"`
	RegistrosConError   int                 `json:"registrosConError" db:"registros_con_error"`
	Progreso            float64             `json:"progreso" db:"progreso"`
	ArchivoOriginal     string              `json:"archivoOriginal" db:"archivo_original"`
	Mensaje             string              `json:"mensaje,omitempty" db:"mensaje"`
	Opciones            OpcionesImportacion `json:"opciones" db:"-"`
	CancelSolicitado    bool                `json:"-" db:"cancel_solicitado"`
	RutaArchivo         string              `json:"-" db:"ruta_archivo"`
	FechaCreacion       time.Time           `json:"fechaCreacion" db:"fecha_creacion"`
	FechaActualizacion  time.Time           `json:"fechaActualizacion" db:"fecha_actualizacion"`
}

// Touch refreshes the mutation timestamp; call it on every state change
func (j *ImportJob) Touch() {
	j.FechaActualizacion = time.Now()
}

// AvanzarProgreso raises progress to p, never lowering it
func (j *ImportJob) AvanzarProgreso(p float64) {
	if p > 100 {
		p = 100
	}
	if p > j.Progreso {
		j.Progreso = p
	}
}

// JobResponse is the API response for job status
type JobResponse struct {
	ImportJob
	Errores      []ErrorDetallado `json:"errores,omitempty"`
	ReporteURL   string           `json:"reporteErroresUrl,omitempty"`
	TotalErrores int              `json:"totalErrores,omitempty"`
}

// JobPage is a bounded slice of jobs for the listing endpoint
type JobPage struct {
	Trabajos []*ImportJob `json:"trabajos"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	Total    int          `json:"total"`
}
