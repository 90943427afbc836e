package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/repository"
	"github.com/inventario-import-api/internal/retry"
)

// batchPersister is the concrete Persister for one job run. It carries the
// per-run state a batch cannot see on its own: business keys already accepted
// in earlier batches and the referential cache for movement imports.
type batchPersister struct {
	repos    *repository.Repositories
	policy   retry.Policy
	tenantID string
	tipo     models.TipoImportacion
	opciones models.OpcionesImportacion
	log      zerolog.Logger

	vistos    map[string]bool // business keys accepted so far in this run
	productos map[string]bool // referential cache for movimientos
}

func newBatchPersister(repos *repository.Repositories, policy retry.Policy, job *models.ImportJob, log zerolog.Logger) *batchPersister {
	return &batchPersister{
		repos:    repos,
		policy:   policy,
		tenantID: job.TenantID,
		tipo:     job.Tipo,
		opciones: job.Opciones,
		log:      log.With().Str("component", "persister").Str("job_id", job.ID).Logger(),
		vistos:   make(map[string]bool),
	}
}

// Preparar loads the product-code cache movement imports validate against
func (p *batchPersister) Preparar(ctx context.Context) error {
	if p.tipo != models.TipoMovimientos {
		return nil
	}
	var codigos []string
	err := p.policy.Do(ctx, func() error {
		var e error
		codigos, e = p.repos.Producto.GetAllCodigos(ctx, p.tenantID)
		return e
	})
	if err != nil {
		return fmt.Errorf("no se pudo cargar el catálogo de productos: %w", err)
	}
	p.productos = make(map[string]bool, len(codigos))
	for _, c := range codigos {
		p.productos[c] = true
	}
	return nil
}

// PersistBatch writes one bounded batch. Duplicate and referential conflicts
// are per-row outcomes; transient storage faults are retried by the policy and
// escalate only when exhausted.
func (p *batchPersister) PersistBatch(ctx context.Context, registros []*models.RegistroNormalizado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	switch p.tipo {
	case models.TipoProductos:
		return p.persistProductos(ctx, registros)
	case models.TipoProveedores:
		return p.persistProveedores(ctx, registros)
	case models.TipoMovimientos:
		return p.persistMovimientos(ctx, registros)
	}
	return nil, nil, fmt.Errorf("%w: %q", models.ErrUnknownImportType, p.tipo)
}

// separarDuplicados splits a batch into writable records and duplicate errors,
// using the in-run seen set plus the already-persisted keys
func (p *batchPersister) separarDuplicados(registros []*models.RegistroNormalizado, existentes map[string]bool, columna string) ([]*models.RegistroNormalizado, []models.ErrorDetallado) {
	var writables []*models.RegistroNormalizado
	var fallidos []models.ErrorDetallado
	for _, reg := range registros {
		clave := reg.Identificador
		if p.vistos[clave] || (!p.opciones.SobrescribirExistentes && existentes[clave]) {
			fallidos = append(fallidos, models.ErrorDetallado{
				Fila:    reg.Fila,
				Columna: columna,
				Valor:   clave,
				Mensaje: fmt.Sprintf("%s %q ya existe", columna, clave),
				Tipo:    models.ErrorDuplicate,
			})
			continue
		}
		p.vistos[clave] = true
		writables = append(writables, reg)
	}
	return writables, fallidos
}

func (p *batchPersister) exitoso(reg *models.RegistroNormalizado) models.RegistroExitoso {
	correcciones := reg.Correcciones
	if correcciones == nil {
		correcciones = []models.CorreccionImportacion{}
	}
	return models.RegistroExitoso{
		Fila:                  reg.Fila,
		Tipo:                  p.tipo,
		Identificador:         reg.Identificador,
		Datos:                 reg.Campos,
		CorreccionesAplicadas: correcciones,
		Timestamp:             time.Now(),
	}
}

func (p *batchPersister) exitosos(registros []*models.RegistroNormalizado) []models.RegistroExitoso {
	out := make([]models.RegistroExitoso, 0, len(registros))
	for _, reg := range registros {
		out = append(out, p.exitoso(reg))
	}
	return out
}

func (p *batchPersister) persistProductos(ctx context.Context, registros []*models.RegistroNormalizado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	codigos := make([]string, 0, len(registros))
	for _, reg := range registros {
		codigos = append(codigos, reg.Identificador)
	}

	var existentes map[string]bool
	err := p.policy.Do(ctx, func() error {
		var e error
		existentes, e = p.repos.Producto.ExistingCodigos(ctx, p.tenantID, codigos)
		return e
	})
	if err != nil {
		return nil, nil, err
	}

	writables, fallidos := p.separarDuplicados(registros, existentes, "codigo")

	if p.opciones.ValidarSolo {
		return p.exitosos(writables), fallidos, nil
	}

	productos := make([]*models.Producto, 0, len(writables))
	for _, reg := range writables {
		productos = append(productos, toProducto(p.tenantID, reg))
	}

	if p.opciones.SobrescribirExistentes {
		for _, prod := range productos {
			prod := prod
			if err := p.policy.Do(ctx, func() error { return p.repos.Producto.Upsert(ctx, prod) }); err != nil {
				return nil, nil, err
			}
		}
		return p.exitosos(writables), fallidos, nil
	}

	err = p.policy.Do(ctx, func() error {
		_, e := p.repos.Producto.BatchInsert(ctx, productos)
		if repository.IsUniqueViolation(e) {
			// A concurrent writer raced the existence check; resolve per row
			return retry.Permanent(e)
		}
		return e
	})
	if repository.IsUniqueViolation(err) {
		return p.insertarProductosUnoAUno(ctx, writables, fallidos)
	}
	if err != nil {
		return nil, nil, err
	}
	return p.exitosos(writables), fallidos, nil
}

// insertarProductosUnoAUno is the fallback path when a COPY batch hits a race
// duplicate: each row is inserted on its own so only the colliding rows fail
func (p *batchPersister) insertarProductosUnoAUno(ctx context.Context, registros []*models.RegistroNormalizado, fallidos []models.ErrorDetallado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	var exitosos []models.RegistroExitoso
	for _, reg := range registros {
		reg := reg
		err := p.policy.Do(ctx, func() error {
			e := p.repos.Producto.Insert(ctx, toProducto(p.tenantID, reg))
			if repository.IsUniqueViolation(e) {
				return retry.Permanent(e)
			}
			return e
		})
		if repository.IsUniqueViolation(err) {
			fallidos = append(fallidos, models.ErrorDetallado{
				Fila:    reg.Fila,
				Columna: "codigo",
				Valor:   reg.Identificador,
				Mensaje: fmt.Sprintf("codigo %q ya existe", reg.Identificador),
				Tipo:    models.ErrorDuplicate,
			})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		exitosos = append(exitosos, p.exitoso(reg))
	}
	return exitosos, fallidos, nil
}

func (p *batchPersister) persistProveedores(ctx context.Context, registros []*models.RegistroNormalizado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	emails := make([]string, 0, len(registros))
	for _, reg := range registros {
		emails = append(emails, reg.Identificador)
	}

	var existentes map[string]bool
	err := p.policy.Do(ctx, func() error {
		var e error
		existentes, e = p.repos.Proveedor.ExistingEmails(ctx, p.tenantID, emails)
		return e
	})
	if err != nil {
		return nil, nil, err
	}

	writables, fallidos := p.separarDuplicados(registros, existentes, "email")

	if p.opciones.ValidarSolo {
		return p.exitosos(writables), fallidos, nil
	}

	proveedores := make([]*models.Proveedor, 0, len(writables))
	for _, reg := range writables {
		proveedores = append(proveedores, toProveedor(p.tenantID, reg))
	}

	if p.opciones.SobrescribirExistentes {
		for _, prov := range proveedores {
			prov := prov
			if err := p.policy.Do(ctx, func() error { return p.repos.Proveedor.Upsert(ctx, prov) }); err != nil {
				return nil, nil, err
			}
		}
		return p.exitosos(writables), fallidos, nil
	}

	err = p.policy.Do(ctx, func() error {
		_, e := p.repos.Proveedor.BatchInsert(ctx, proveedores)
		if repository.IsUniqueViolation(e) {
			return retry.Permanent(e)
		}
		return e
	})
	if repository.IsUniqueViolation(err) {
		return p.insertarProveedoresUnoAUno(ctx, writables, fallidos)
	}
	if err != nil {
		return nil, nil, err
	}
	return p.exitosos(writables), fallidos, nil
}

func (p *batchPersister) insertarProveedoresUnoAUno(ctx context.Context, registros []*models.RegistroNormalizado, fallidos []models.ErrorDetallado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	var exitosos []models.RegistroExitoso
	for _, reg := range registros {
		reg := reg
		err := p.policy.Do(ctx, func() error {
			e := p.repos.Proveedor.Insert(ctx, toProveedor(p.tenantID, reg))
			if repository.IsUniqueViolation(e) {
				return retry.Permanent(e)
			}
			return e
		})
		if repository.IsUniqueViolation(err) {
			fallidos = append(fallidos, models.ErrorDetallado{
				Fila:    reg.Fila,
				Columna: "email",
				Valor:   reg.Identificador,
				Mensaje: fmt.Sprintf("email %q ya existe", reg.Identificador),
				Tipo:    models.ErrorDuplicate,
			})
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		exitosos = append(exitosos, p.exitoso(reg))
	}
	return exitosos, fallidos, nil
}

func (p *batchPersister) persistMovimientos(ctx context.Context, registros []*models.RegistroNormalizado) ([]models.RegistroExitoso, []models.ErrorDetallado, error) {
	var fallidos []models.ErrorDetallado
	var writables []*models.RegistroNormalizado

	referencias := make([]string, 0, len(registros))
	for _, reg := range registros {
		if ref, _ := reg.Campos["referencia"].(string); ref != "" {
			referencias = append(referencias, ref)
		}
	}
	var refsExistentes map[string]bool
	err := p.policy.Do(ctx, func() error {
		var e error
		refsExistentes, e = p.repos.Movimiento.ExistingReferencias(ctx, p.tenantID, referencias)
		return e
	})
	if err != nil {
		return nil, nil, err
	}

	for _, reg := range registros {
		codigo, _ := reg.Campos["productoCodigo"].(string)
		// Storage lookup, but a validation-class verdict for the caller
		if !p.productos[codigo] {
			fallidos = append(fallidos, models.ErrorDetallado{
				Fila:    reg.Fila,
				Columna: "productoCodigo",
				Valor:   codigo,
				Mensaje: fmt.Sprintf("el producto %q no existe en el catálogo", codigo),
				Tipo:    models.ErrorReferential,
			})
			continue
		}
		if ref, _ := reg.Campos["referencia"].(string); ref != "" {
			if p.vistos[ref] || refsExistentes[ref] {
				fallidos = append(fallidos, models.ErrorDetallado{
					Fila:    reg.Fila,
					Columna: "referencia",
					Valor:   ref,
					Mensaje: fmt.Sprintf("referencia %q ya existe", ref),
					Tipo:    models.ErrorDuplicate,
				})
				continue
			}
			p.vistos[ref] = true
		}
		writables = append(writables, reg)
	}

	if p.opciones.ValidarSolo {
		return p.exitosos(writables), fallidos, nil
	}

	movimientos := make([]*models.Movimiento, 0, len(writables))
	for _, reg := range writables {
		movimientos = append(movimientos, toMovimiento(p.tenantID, reg))
	}

	err = p.policy.Do(ctx, func() error {
		_, e := p.repos.Movimiento.BatchInsert(ctx, movimientos)
		return e
	})
	if err != nil {
		return nil, nil, err
	}
	return p.exitosos(writables), fallidos, nil
}

// Conversion helpers from normalized records to domain models

func campoString(reg *models.RegistroNormalizado, nombre string) string {
	s, _ := reg.Campos[nombre].(string)
	return s
}

func campoFloat(reg *models.RegistroNormalizado, nombre string) float64 {
	f, _ := reg.Campos[nombre].(float64)
	return f
}

func campoFecha(reg *models.RegistroNormalizado, nombre string) time.Time {
	if t, ok := reg.Campos[nombre].(time.Time); ok {
		return t
	}
	return time.Now()
}

func toProducto(tenantID string, reg *models.RegistroNormalizado) *models.Producto {
	etiquetas, _ := reg.Campos["etiquetas"].([]string)
	return &models.Producto{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Codigo:         campoString(reg, "codigo"),
		Nombre:         campoString(reg, "nombre"),
		Categoria:      campoString(reg, "categoria"),
		PrecioCompra:   campoFloat(reg, "precioCompra"),
		PrecioVenta:    campoFloat(reg, "precioVenta"),
		Stock:          campoFloat(reg, "stock"),
		StockMinimo:    campoFloat(reg, "stockMinimo"),
		UnidadMedida:   campoString(reg, "unidadMedida"),
		ProveedorEmail: campoString(reg, "proveedorEmail"),
		Etiquetas:      etiquetas,
		FechaAlta:      campoFecha(reg, "fechaAlta"),
	}
}

func toProveedor(tenantID string, reg *models.RegistroNormalizado) *models.Proveedor {
	return &models.Proveedor{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Nombre:    campoString(reg, "nombre"),
		Email:     campoString(reg, "email"),
		Telefono:  campoString(reg, "telefono"),
		Categoria: campoString(reg, "categoria"),
		Direccion: campoString(reg, "direccion"),
		FechaAlta: campoFecha(reg, "fechaAlta"),
	}
}

func toMovimiento(tenantID string, reg *models.RegistroNormalizado) *models.Movimiento {
	return &models.Movimiento{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		ProductoCodigo: campoString(reg, "productoCodigo"),
		Tipo:           campoString(reg, "tipo"),
		Cantidad:       campoFloat(reg, "cantidad"),
		Motivo:         campoString(reg, "motivo"),
		Referencia:     campoString(reg, "referencia"),
		Fecha:          campoFecha(reg, "fecha"),
	}
}
