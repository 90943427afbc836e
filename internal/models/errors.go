package models

import "errors"

var (
	// ErrUnknownImportType is returned on schema lookup for an unknown tipo
	ErrUnknownImportType = errors.New("tipo de importación desconocido")

	// ErrJobNotFound is returned when no job exists for the given id
	ErrJobNotFound = errors.New("trabajo no encontrado")

	// ErrSinCabecera marks a file whose header row is missing or unusable
	ErrSinCabecera = errors.New("el archivo no tiene fila de cabecera válida")

	// ErrFormatoNoSoportado marks an unsupported file extension
	ErrFormatoNoSoportado = errors.New("formato de archivo no soportado")
)
