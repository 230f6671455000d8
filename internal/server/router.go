package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/auth"
	"github.com/SistemasTSJavier/MOPER-TS/internal/catalog"
	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
	"github.com/SistemasTSJavier/MOPER-TS/internal/moper"
	"github.com/SistemasTSJavier/MOPER-TS/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	identityContextKey     = "moper_identity"
	invalidTokenContextKey = "moper_invalid_token"
)

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingUsers        = errors.New("users service dependency required")
	errMissingMoper        = errors.New("moper service dependency required")
	errMissingFolios       = errors.New("folio allocator dependency required")
	errMissingCatalog      = errors.New("catalog service dependency required")
)

// TokenManager issues and validates staff session tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, identity auth.Identity) (string, int64, error)
	ValidateToken(token string) (auth.Identity, error)
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	TokenManager TokenManager
	Users        *users.Service
	Moper        *moper.Service
	Folios       *folio.Allocator
	Catalog      *catalog.Service
	Database     *gorm.DB
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router for the MOPER API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Moper == nil {
		return nil, errMissingMoper
	}
	if deps.Folios == nil {
		return nil, errMissingFolios
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:  deps.TokenManager,
		users:   deps.Users,
		moper:   deps.Moper,
		folios:  deps.Folios,
		catalog: deps.Catalog,
		db:      deps.Database,
		logger:  logger,
	}

	router.GET("/api/health", handler.handleHealth)
	router.POST("/api/auth/login", handler.handleLogin)
	router.GET("/api/catalogos/servicios", handler.handleServicios)
	router.GET("/api/catalogos/puestos", handler.handlePuestos)
	// Public capability lookup: /api/moper/codigo/:codigo. Registered through
	// the :id wildcard so it can share the tree with the by-id routes.
	router.GET("/api/moper/:id/:codigo", handler.handleMoperByCodigo)
	router.PATCH("/api/moper/:id/firma", handler.attachOptionalIdentity, handler.handleFirma)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.GET("/folios/preview", handler.handleFolioPreview)
	protected.PATCH("/folios/sequence", handler.handleFolioAdjust)
	protected.POST("/moper", handler.handleMoperCreate)
	protected.GET("/moper", handler.handleMoperList)
	protected.GET("/moper/:id", handler.handleMoperGet)
	protected.PATCH("/moper/:id", handler.handleMoperUpdate)
	protected.GET("/oficiales/search", handler.handleOficialesSearch)

	return router, nil
}

type httpHandler struct {
	tokens  TokenManager
	users   *users.Service
	moper   *moper.Service
	folios  *folio.Allocator
	catalog *catalog.Service
	db      *gorm.DB
	logger  *zap.Logger
}

// authorizeRequest rejects requests without a valid bearer token and stores
// the authenticated identity in the request context.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token requerido"})
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido o expirado"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

// attachOptionalIdentity parses a bearer token when present but never aborts.
// The signature endpoint serves both authenticated staff and access-code
// callers; a malformed token is remembered so the handler can word its 401.
func (h *httpHandler) attachOptionalIdentity(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.Next()
		return
	}
	identity, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Info("ignoring invalid token on signature request", zap.Error(err))
		c.Set(invalidTokenContextKey, true)
		c.Next()
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func currentIdentity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func isPrivileged(identity auth.Identity) bool {
	return identity.Rol == users.RolAdmin || identity.Rol == users.RolGerente
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email y contraseña requeridos"})
		return
	}

	usuario, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Credenciales incorrectas"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al iniciar sesión"})
		return
	}

	identity := auth.Identity{ID: usuario.ID, Email: usuario.Email, Nombre: usuario.Nombre, Rol: usuario.Rol}
	token, _, err := h.tokens.IssueToken(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("token issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al iniciar sesión"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identityPayload(identity), "token": token})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token requerido"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identityPayload(identity)})
}

func (h *httpHandler) handleFolioPreview(c *gin.Context) {
	preview, err := h.folios.Preview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener folio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folio": preview})
}

type adjustPayload struct {
	Delta *int64 `json:"delta"`
}

func (h *httpHandler) handleFolioAdjust(c *gin.Context) {
	identity, _ := currentIdentity(c)
	if !isPrivileged(identity) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sin permiso para ajustar el folio"})
		return
	}

	var request adjustPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Delta == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta (entero distinto de cero) requerido"})
		return
	}
	preview, err := h.folios.Adjust(c.Request.Context(), *request.Delta)
	if errors.Is(err, folio.ErrInvalidDelta) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta (entero distinto de cero) requerido"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al ajustar folio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folio": preview})
}

func (h *httpHandler) handleMoperCreate(c *gin.Context) {
	identity, _ := currentIdentity(c)
	if !isPrivileged(identity) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sin permiso para crear registros"})
		return
	}

	var request registroInputPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la petición inválido (JSON esperado)"})
		return
	}
	registro, err := h.moper.Create(c.Request.Context(), request.toInput())
	if err != nil {
		h.logger.Error("record create failed", zap.Error(err))
		respondStorageError(c, "Error al guardar registro", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": registro.ID, "codigo_acceso": registro.CodigoAcceso})
}

func (h *httpHandler) handleMoperList(c *gin.Context) {
	result, err := h.moper.List(c.Request.Context())
	if err != nil {
		h.logger.Error("record list failed", zap.Error(err))
		respondStorageError(c, "Error al listar registros", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pendientes":          result.Pendientes,
		"aprobados":           result.Aprobados,
		"registrosPendientes": resumenPayloads(result.RegistrosPendientes),
		"registrosAprobados":  resumenPayloads(result.RegistrosAprobados),
	})
}

func (h *httpHandler) handleMoperGet(c *gin.Context) {
	registro, err := h.moper.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, moper.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No encontrado"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener registro"})
		return
	}
	c.JSON(http.StatusOK, registroPayload(registro))
}

func (h *httpHandler) handleMoperUpdate(c *gin.Context) {
	identity, _ := currentIdentity(c)
	if !isPrivileged(identity) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Sin permiso para editar registros"})
		return
	}

	var request registroInputPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo inválido"})
		return
	}
	registro, err := h.moper.Update(c.Request.Context(), c.Param("id"), request.toInput())
	if errors.Is(err, moper.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No encontrado"})
		return
	}
	if err != nil {
		respondStorageError(c, "Error al actualizar", err)
		return
	}
	c.JSON(http.StatusOK, registroPayload(registro))
}

// handleMoperByCodigo serves GET /api/moper/codigo/:codigo. The route is
// registered as /api/moper/:id/:codigo, so anything but the literal "codigo"
// segment is rejected here.
func (h *httpHandler) handleMoperByCodigo(c *gin.Context) {
	if c.Param("id") != "codigo" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No encontrado"})
		return
	}
	registro, err := h.moper.GetByCodigo(c.Request.Context(), c.Param("codigo"))
	if errors.Is(err, moper.ErrInvalidArgument) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Código requerido"})
		return
	}
	if errors.Is(err, moper.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Código no válido"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener registro"})
		return
	}
	c.JSON(http.StatusOK, registroPayload(registro))
}

type firmaPayload struct {
	Tipo         string `json:"tipo"`
	Imagen       string `json:"imagen"`
	CodigoAcceso string `json:"codigo_acceso"`
}

func (h *httpHandler) handleFirma(c *gin.Context) {
	var request firmaPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tipo e imagen (data URL) requeridos"})
		return
	}

	var firmante *moper.Firmante
	if identity, ok := currentIdentity(c); ok {
		firmante = &moper.Firmante{Nombre: identity.Nombre, Rol: identity.Rol}
	}

	result, err := h.moper.SubmitSignature(c.Request.Context(), moper.SignatureRequest{
		RegistroID:   c.Param("id"),
		Tipo:         request.Tipo,
		Imagen:       request.Imagen,
		CodigoAcceso: request.CodigoAcceso,
		Firmante:     firmante,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true, "completado": result.Completado, "folio": result.Folio})
	case errors.Is(err, moper.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "tipo e imagen (data URL) requeridos"})
	case errors.Is(err, moper.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": h.firmaUnauthorizedMessage(c, request.Tipo)})
	case errors.Is(err, moper.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Su cuenta no está vinculada a esta firma"})
	case errors.Is(err, moper.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Registro no encontrado"})
	default:
		h.logger.Error("signature request failed", zap.Error(err))
		respondStorageError(c, "Error al registrar firma", err)
	}
}

// firmaUnauthorizedMessage words the 401 for the signature endpoint: the
// access-code slot gets the code message, role slots distinguish a missing
// session from a token that failed validation.
func (h *httpHandler) firmaUnauthorizedMessage(c *gin.Context, tipo string) string {
	if strings.TrimSpace(tipo) == string(moper.SlotConformidad) {
		return "Código de acceso incorrecto"
	}
	if c.GetBool(invalidTokenContextKey) {
		return "Token inválido o expirado. Cierre sesión e inicie de nuevo."
	}
	return "Debe iniciar sesión para esta firma"
}

func (h *httpHandler) handleServicios(c *gin.Context) {
	servicios, err := h.catalog.ListServicios(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al cargar servicios"})
		return
	}
	c.JSON(http.StatusOK, servicios)
}

func (h *httpHandler) handlePuestos(c *gin.Context) {
	puestos, err := h.catalog.ListPuestos(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al cargar puestos"})
		return
	}
	c.JSON(http.StatusOK, puestos)
}

func (h *httpHandler) handleOficialesSearch(c *gin.Context) {
	oficiales, err := h.catalog.SearchOficiales(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error en búsqueda"})
		return
	}
	c.JSON(http.StatusOK, oficiales)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
