package reader

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/inventario-import-api/internal/models"
)

type excelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

// openExcel reads the first sheet of the workbook as the logical table
func openExcel(path string) (Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("no se pudo abrir el archivo excel: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, models.ErrSinCabecera
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("no se pudo leer la hoja %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, models.ErrSinCabecera
	}
	raw, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrSinCabecera, err)
	}
	headers, err := limpiarCabeceras(raw)
	if err != nil {
		rows.Close()
		f.Close()
		return nil, err
	}

	return &excelSource{file: f, rows: rows, headers: headers}, nil
}

func (s *excelSource) Headers() []string { return s.headers }

func (s *excelSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *excelSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
