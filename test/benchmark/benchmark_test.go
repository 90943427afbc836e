package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/inventario-import-api/internal/mocks"
	"github.com/inventario-import-api/internal/models"
	"github.com/inventario-import-api/internal/reader"
	"github.com/inventario-import-api/internal/schema"
	"github.com/inventario-import-api/internal/validation"
)

func filaProducto(i int) map[string]string {
	return map[string]string{
		"codigo":       fmt.Sprintf("PRD-%06d", i),
		"nombre":       fmt.Sprintf("Producto %d", i),
		"categoria":    "alimentacion",
		"precioCompra": "3,50",
		"precioVenta":  "5.95",
		"stock":        "120",
	}
}

func csvProductos(filas int) []byte {
	var buf bytes.Buffer
	buf.WriteString("codigo,nombre,categoria,precioCompra,precioVenta,stock\n")
	for i := 0; i < filas; i++ {
		fmt.Fprintf(&buf, "PRD-%06d,Producto %d,alimentacion,3.50,5.95,120\n", i, i)
	}
	return buf.Bytes()
}

// BenchmarkValidateProducto measures the full normalization of one row,
// including the decimal-comma correction path.
func BenchmarkValidateProducto(b *testing.B) {
	registry := schema.NewRegistry()
	esquema, err := registry.Lookup(models.TipoProductos)
	if err != nil {
		b.Fatal(err)
	}
	validator := validation.NewValidator()
	raw := filaProducto(0)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		validator.Validate(i, raw, esquema)
	}
}

// BenchmarkDetect measures header-based type detection
func BenchmarkDetect(b *testing.B) {
	registry := schema.NewRegistry()
	headers := []string{"codigo", "nombre", "categoria", "precioCompra", "precioVenta", "stock"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := registry.Detect(headers); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCSVRead measures streaming a 1000-row CSV file end to end
func BenchmarkCSVRead(b *testing.B) {
	path := filepath.Join(b.TempDir(), "productos.csv")
	data := csvProductos(1000)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	for i := 0; i < b.N; i++ {
		src, err := reader.Open(path)
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := src.Next(); err == io.EOF {
				break
			} else if err != nil {
				b.Fatal(err)
			}
		}
		src.Close()
	}

	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkBatchInsert measures repository batch writes of 50 products,
// the same batch size the pipeline uses.
func BenchmarkBatchInsert(b *testing.B) {
	repo := mocks.NewMockProductoRepository()

	productos := make([]*models.Producto, 50)
	for i := range productos {
		productos[i] = &models.Producto{
			Codigo:       fmt.Sprintf("PRD-%06d", i),
			Nombre:       fmt.Sprintf("Producto %d", i),
			Categoria:    "alimentacion",
			PrecioCompra: 3.50,
			PrecioVenta:  5.95,
			Stock:        120,
			TenantID:     "default",
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := repo.BatchInsert(context.Background(), productos); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(50*b.N)/b.Elapsed().Seconds(), "rows/sec")
}

// BenchmarkJobSemaphore measures acquire/release on the processor's
// concurrency gate.
func BenchmarkJobSemaphore(b *testing.B) {
	sem := make(chan struct{}, 32)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sem <- struct{}{}
			<-sem
		}
	})
}
