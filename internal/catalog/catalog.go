package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("catalog: database handle is required")

// Servicio is one entry of the static service catalog.
type Servicio struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Nombre string `gorm:"column:nombre;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Servicio) TableName() string {
	return "servicios"
}

// Puesto is one entry of the static position catalog.
type Puesto struct {
	ID     int64  `gorm:"column:id;primaryKey"`
	Nombre string `gorm:"column:nombre;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Puesto) TableName() string {
	return "puestos"
}

// Oficial is a known staff member used to prefill the movement form.
type Oficial struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	Nombre       string  `gorm:"column:nombre;type:text;not null"`
	CURP         string  `gorm:"column:curp;size:18;not null;default:''"`
	FechaIngreso *string `gorm:"column:fecha_ingreso;size:10"`
}

// TableName provides the explicit table binding for GORM.
func (Oficial) TableName() string {
	return "oficiales"
}

// Service exposes the read-only catalog lookups.
type Service struct {
	db *gorm.DB
}

// NewService constructs the catalog service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Service{db: db}, nil
}

// ListServicios returns the service catalog ordered by name.
func (s *Service) ListServicios(ctx context.Context) ([]Servicio, error) {
	var servicios []Servicio
	if err := s.db.WithContext(ctx).Order("nombre").Find(&servicios).Error; err != nil {
		return nil, fmt.Errorf("catalog: list servicios: %w", err)
	}
	return servicios, nil
}

// ListPuestos returns the position catalog ordered by name.
func (s *Service) ListPuestos(ctx context.Context) ([]Puesto, error) {
	var puestos []Puesto
	if err := s.db.WithContext(ctx).Order("nombre").Find(&puestos).Error; err != nil {
		return nil, fmt.Errorf("catalog: list puestos: %w", err)
	}
	return puestos, nil
}

const (
	searchMinLength = 2
	searchLimit     = 20
)

// SearchOficiales matches staff by name or CURP substring. Queries shorter
// than two characters return an empty result rather than the whole table.
func (s *Service) SearchOficiales(ctx context.Context, query string) ([]Oficial, error) {
	query = strings.TrimSpace(query)
	if len(query) < searchMinLength {
		return []Oficial{}, nil
	}
	pattern := "%" + strings.ToLower(query) + "%"
	var oficiales []Oficial
	err := s.db.WithContext(ctx).
		Where("LOWER(nombre) LIKE ? OR LOWER(curp) LIKE ?", pattern, pattern).
		Limit(searchLimit).
		Find(&oficiales).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: search oficiales: %w", err)
	}
	return oficiales, nil
}
