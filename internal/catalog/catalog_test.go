package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestCatalog(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:catalog_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Servicio{}, &Puesto{}, &Oficial{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	seed := []interface{}{
		&Servicio{ID: 1, Nombre: "Vigilancia"},
		&Servicio{ID: 2, Nombre: "Custodia"},
		&Puesto{ID: 1, Nombre: "Supervisor"},
		&Puesto{ID: 2, Nombre: "Guardia"},
		&Oficial{ID: 1, Nombre: "Juan Pérez García", CURP: "PEGJ900101HDFRRN01"},
		&Oficial{ID: 2, Nombre: "María López", CURP: "LOPM850505MDFRRS02"},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("failed to seed catalog: %v", err)
		}
	}

	service, err := NewService(db)
	if err != nil {
		t.Fatalf("failed to construct catalog service: %v", err)
	}
	return service
}

func TestListCatalogsOrderedByName(t *testing.T) {
	service := newTestCatalog(t)
	ctx := context.Background()

	servicios, err := service.ListServicios(ctx)
	if err != nil {
		t.Fatalf("unexpected servicios error: %v", err)
	}
	if len(servicios) != 2 || servicios[0].Nombre != "Custodia" || servicios[1].Nombre != "Vigilancia" {
		t.Fatalf("servicios not ordered by name: %+v", servicios)
	}

	puestos, err := service.ListPuestos(ctx)
	if err != nil {
		t.Fatalf("unexpected puestos error: %v", err)
	}
	if len(puestos) != 2 || puestos[0].Nombre != "Guardia" || puestos[1].Nombre != "Supervisor" {
		t.Fatalf("puestos not ordered by name: %+v", puestos)
	}
}

func TestSearchOficiales(t *testing.T) {
	service := newTestCatalog(t)
	ctx := context.Background()

	// Case-insensitive name match.
	matches, err := service.SearchOficiales(ctx, "juan")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(matches) != 1 || matches[0].Nombre != "Juan Pérez García" {
		t.Fatalf("expected one match for juan, got %+v", matches)
	}

	// CURP substring match.
	matches, err = service.SearchOficiales(ctx, "lopm8505")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(matches) != 1 || matches[0].Nombre != "María López" {
		t.Fatalf("expected one match by curp, got %+v", matches)
	}

	// Short queries never scan the whole table.
	matches, err = service.SearchOficiales(ctx, " a ")
	if err != nil {
		t.Fatalf("unexpected search error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty result for short query, got %+v", matches)
	}
}
