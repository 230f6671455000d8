package moper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

var testClockStart = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:moper_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Registro{}, &folio.Sequence{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Create(&folio.Sequence{ID: 1, LastNumber: 280}).Error; err != nil {
		t.Fatalf("failed to seed folio sequence: %v", err)
	}

	allocator, err := folio.NewAllocator(folio.AllocatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct allocator: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return testClockStart },
		IDProvider: &staticIDGenerator{ids: ids},
		Allocator:  allocator,
	})
	if err != nil {
		t.Fatalf("failed to construct moper service: %v", err)
	}
	return service, db
}

func mustCreate(t *testing.T, service *Service, input RegistroInput) *Registro {
	t.Helper()
	registro, err := service.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return registro
}

func mustSign(t *testing.T, service *Service, req SignatureRequest) SignatureResult {
	t.Helper()
	result, err := service.SubmitSignature(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected signature error: %v", err)
	}
	return result
}

const testImagen = "data:image/png;base64,iVBORw0KGgo="
