package reader

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/inventario-import-api/internal/models"
)

func escribirCSV(t *testing.T, contenido string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datos.csv")
	if err := os.WriteFile(path, []byte(contenido), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestOpen_CSV(t *testing.T) {
	path := escribirCSV(t, "codigo,nombre,stock\nACE-001,Aceite,10\nHAR-002,Harina,25\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	headers := src.Headers()
	want := []string{"codigo", "nombre", "stock"}
	if len(headers) != len(want) {
		t.Fatalf("got %d headers, want %d", len(headers), len(want))
	}
	for i, h := range want {
		if headers[i] != h {
			t.Errorf("header[%d] = %q, want %q", i, headers[i], h)
		}
	}

	var filas [][]string
	for {
		fila, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		filas = append(filas, fila)
	}
	if len(filas) != 2 {
		t.Fatalf("got %d rows, want 2", len(filas))
	}
	if filas[0][0] != "ACE-001" || filas[1][1] != "Harina" {
		t.Errorf("unexpected row content: %v", filas)
	}
}

func TestOpen_CSV_FilasIrregulares(t *testing.T) {
	// Short rows must read fine; the validator decides what missing cells mean
	path := escribirCSV(t, "codigo,nombre,stock\nACE-001,Aceite\nHAR-002,Harina,25,extra\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	corta, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed on short row: %v", err)
	}
	if len(corta) != 2 {
		t.Errorf("short row has %d cells, want 2", len(corta))
	}

	larga, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed on long row: %v", err)
	}
	if len(larga) != 4 {
		t.Errorf("long row has %d cells, want 4", len(larga))
	}
}

func TestOpen_CSV_CabecerasRecortadas(t *testing.T) {
	path := escribirCSV(t, "  codigo , nombre \nACE-001,Aceite\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer src.Close()

	headers := src.Headers()
	if headers[0] != "codigo" || headers[1] != "nombre" {
		t.Errorf("headers not trimmed: %v", headers)
	}
}

func TestOpen_CSV_SinCabecera(t *testing.T) {
	tests := []struct {
		name      string
		contenido string
	}{
		{"empty file", ""},
		{"only blank headers", " , , \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := escribirCSV(t, tt.contenido)
			_, err := Open(path)
			if !errors.Is(err, models.ErrSinCabecera) {
				t.Errorf("Open error = %v, want ErrSinCabecera", err)
			}
		})
	}
}

func TestOpen_FormatoNoSoportado(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datos.pdf")
	if err := os.WriteFile(path, []byte("no es una hoja de cálculo"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := Open(path)
	if !errors.Is(err, models.ErrFormatoNoSoportado) {
		t.Errorf("Open error = %v, want ErrFormatoNoSoportado", err)
	}
}

func TestExtensionSoportada(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"productos.csv", true},
		{"productos.CSV", true},
		{"inventario.xlsx", true},
		{"inventario.xls", true},
		{"listado.pdf", false},
		{"listado.txt", false},
		{"sin_extension", false},
	}

	for _, tt := range tests {
		if got := ExtensionSoportada(tt.filename); got != tt.want {
			t.Errorf("ExtensionSoportada(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
