// Package reader streams tabular rows out of uploaded spreadsheet files.
// It only understands the physical formats (CSV and Excel); header-to-field
// resolution belongs to the schema package.
package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/inventario-import-api/internal/models"
)

// Source yields the header row and then data rows of one logical sheet.
// Next returns io.EOF after the last row.
type Source interface {
	Headers() []string
	Next() ([]string, error)
	Close() error
}

// Open picks a Source implementation from the file extension
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return openCSV(path)
	case ".xlsx", ".xls":
		return openExcel(path)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrFormatoNoSoportado, filepath.Ext(path))
	}
}

// ExtensionSoportada reports whether the upload extension is accepted
func ExtensionSoportada(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

func limpiarCabeceras(raw []string) ([]string, error) {
	headers := make([]string, len(raw))
	vacias := 0
	for i, h := range raw {
		headers[i] = strings.TrimSpace(h)
		if headers[i] == "" {
			vacias++
		}
	}
	if len(headers) == 0 || vacias == len(headers) {
		return nil, models.ErrSinCabecera
	}
	return headers, nil
}
