package reader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/inventario-import-api/internal/models"
)

type csvSource struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func openCSV(path string) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(file)
	// Rows may be ragged; short rows read as missing fields
	r.FieldsPerRecord = -1

	raw, err := r.Read()
	if err == io.EOF {
		file.Close()
		return nil, models.ErrSinCabecera
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrSinCabecera, err)
	}
	headers, err := limpiarCabeceras(raw)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &csvSource{file: file, reader: r, headers: headers}, nil
}

func (s *csvSource) Headers() []string { return s.headers }

func (s *csvSource) Next() ([]string, error) {
	return s.reader.Read()
}

func (s *csvSource) Close() error { return s.file.Close() }
