package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/auth"
	"github.com/SistemasTSJavier/MOPER-TS/internal/catalog"
	"github.com/SistemasTSJavier/MOPER-TS/internal/database"
	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
	"github.com/SistemasTSJavier/MOPER-TS/internal/moper"
	"github.com/SistemasTSJavier/MOPER-TS/internal/server"
	"github.com/SistemasTSJavier/MOPER-TS/internal/users"
	"github.com/gin-gonic/gin"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "secreto123"
	testImagen    = "data:image/png;base64,iVBORw0KGgo="
)

// newAPIServer wires the full stack the way cmd/moper-api does, against an
// in-memory database seeded through the regular startup path.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, database.Options{FolioInitial: 280}, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	idProvider := moper.NewUUIDProvider()
	usersService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	if err := usersService.SeedAdmin(context.Background(), adminEmail, adminPassword, "Administrador"); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		Issuer:        "moper-auth",
		Audience:      "moper-api",
	})
	allocator, err := folio.NewAllocator(folio.AllocatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct allocator: %v", err)
	}
	moperService, err := moper.NewService(moper.ServiceConfig{Database: db, IDProvider: idProvider, Allocator: allocator})
	if err != nil {
		t.Fatalf("failed to construct moper service: %v", err)
	}
	catalogService, err := catalog.NewService(db)
	if err != nil {
		t.Fatalf("failed to construct catalog service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: issuer,
		Users:        usersService,
		Moper:        moperService,
		Folios:       allocator,
		Catalog:      catalogService,
		Database:     db,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	apiServer := httptest.NewServer(handler)
	t.Cleanup(apiServer.Close)
	return apiServer
}

func call(t *testing.T, apiServer *httptest.Server, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	request, err := http.NewRequest(method, apiServer.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := apiServer.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response.StatusCode, decoded
}

func TestApprovalWorkflowEndToEnd(t *testing.T) {
	apiServer := newAPIServer(t)

	status, body := call(t, apiServer, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login response missing token: %v", body)
	}

	status, body = call(t, apiServer, http.MethodGet, "/api/folios/preview", token, nil)
	if status != http.StatusOK || body["folio"] != "SPT/No. 0281/MOP" {
		t.Fatalf("preview: expected SPT/No. 0281/MOP, got %d %v", status, body)
	}

	status, body = call(t, apiServer, http.MethodPost, "/api/moper", token, map[string]interface{}{
		"oficial_nombre":         "Juan Pérez",
		"servicio_actual_nombre": "Custodia",
		"servicio_nuevo_nombre":  "Vigilancia",
		"sueldo_nuevo":           12500,
		"motivo":                 "Cambio de servicio",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %v", status, body)
	}
	recordID, _ := body["id"].(string)
	codigo, _ := body["codigo_acceso"].(string)
	if recordID == "" || len(codigo) != 8 {
		t.Fatalf("create response incomplete: %v", body)
	}

	// The record stays folio-less until the worker signs.
	status, body = call(t, apiServer, http.MethodGet, "/api/moper/"+recordID, token, nil)
	if status != http.StatusOK || body["folio"] != nil || body["estado"] != "borrador" {
		t.Fatalf("expected folio-less draft, got %d %v", status, body)
	}

	steps := []struct {
		tipo       string
		token      string
		code       string
		completado bool
	}{
		{tipo: "conformidad", code: codigo},
		{tipo: "rh", token: token},
		{tipo: "gerente", token: token},
		{tipo: "control", token: token, completado: true},
	}
	for _, step := range steps {
		status, body = call(t, apiServer, http.MethodPatch, "/api/moper/"+recordID+"/firma", step.token, map[string]string{
			"tipo":          step.tipo,
			"imagen":        testImagen,
			"codigo_acceso": step.code,
		})
		if status != http.StatusOK {
			t.Fatalf("firma %s: expected 200, got %d %v", step.tipo, status, body)
		}
		if body["folio"] != "SPT/No. 0281/MOP" {
			t.Fatalf("firma %s: folio drifted: %v", step.tipo, body["folio"])
		}
		if body["completado"] != step.completado {
			t.Fatalf("firma %s: expected completado=%v, got %v", step.tipo, step.completado, body)
		}
	}

	status, body = call(t, apiServer, http.MethodGet, "/api/moper/"+recordID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("final get: expected 200, got %d", status)
	}
	if body["estado"] != "completado" || body["firma_conformidad_nombre"] != "Firma manuscrita" {
		t.Fatalf("unexpected final record: %v", body)
	}

	status, body = call(t, apiServer, http.MethodGet, "/api/moper", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	if body["aprobados"] != float64(1) || body["pendientes"] != float64(0) {
		t.Fatalf("expected one approved record, got %v", body)
	}

	// The next folio advanced past the minted one.
	status, body = call(t, apiServer, http.MethodGet, "/api/folios/preview", token, nil)
	if status != http.StatusOK || body["folio"] != "SPT/No. 0282/MOP" {
		t.Fatalf("post-mint preview: expected SPT/No. 0282/MOP, got %d %v", status, body)
	}
}
