package server

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
	"github.com/SistemasTSJavier/MOPER-TS/internal/users"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testEnv struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	db      *gorm.DB
}

var testAccounts = map[string]auth.Identity{
	users.RolAdmin:   {ID: "user-admin", Email: "admin@example.com", Nombre: "Ana Admin", Rol: users.RolAdmin},
	users.RolGerente: {ID: "user-gerente", Email: "gerente@example.com", Nombre: "Marco Gerente", Rol: users.RolGerente},
	users.RolRH:      {ID: "user-rh", Email: "rh@example.com", Nombre: "Laura RH", Rol: users.RolRH},
	users.RolControl: {ID: "user-control", Email: "control@example.com", Nombre: "Sofía Control", Rol: users.RolControl},
}

const testPassword = "secreto123"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, database.Options{FolioInitial: 280}, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	for _, account := range testAccounts {
		usuario := users.Usuario{
			ID:           account.ID,
			Email:        account.Email,
			PasswordHash: string(hash),
			Nombre:       account.Nombre,
			Rol:          account.Rol,
		}
		if err := db.Create(&usuario).Error; err != nil {
			t.Fatalf("failed to seed account %s: %v", account.Rol, err)
		}
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "moper-auth",
		Audience:      "moper-api",
		TokenTTL:      time.Hour,
	})
	idProvider := moper.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	allocator, err := folio.NewAllocator(folio.AllocatorConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct allocator: %v", err)
	}
	moperService, err := moper.NewService(moper.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Allocator:  allocator,
	})
	if err != nil {
		t.Fatalf("failed to construct moper service: %v", err)
	}
	catalogService, err := catalog.NewService(db)
	if err != nil {
		t.Fatalf("failed to construct catalog service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
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

	return &testEnv{handler: handler, issuer: issuer, db: db}
}

func (env *testEnv) token(t *testing.T, rol string) string {
	t.Helper()
	account, ok := testAccounts[rol]
	if !ok {
		t.Fatalf("unknown test account role %q", rol)
	}
	token, _, err := env.issuer.IssueToken(context.Background(), account)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (env *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func (env *testEnv) createRecord(t *testing.T) (string, string) {
	t.Helper()
	recorder := env.request(t, http.MethodPost, "/api/moper", env.token(t, users.RolGerente), map[string]interface{}{
		"oficial_nombre": "Juan Pérez",
		"sueldo_nuevo":   12500,
		"motivo":         "Cambio de servicio",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("record create failed: %d %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	id, _ := body["id"].(string)
	codigo, _ := body["codigo_acceso"].(string)
	if id == "" || codigo == "" {
		t.Fatalf("create response missing id or codigo_acceso: %v", body)
	}
	return id, codigo
}

const testImagen = "data:image/png;base64,iVBORw0KGgo="
