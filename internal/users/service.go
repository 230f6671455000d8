package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords,
	// so a caller cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("users: invalid credentials")

	errMissingDatabase   = errors.New("users: database handle is required")
	errMissingIDProvider = errors.New("users: id provider is required")

	noOpLogger = zap.NewNop()
)

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service authenticates accounts and provisions the initial administrator.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Authenticate verifies an email/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Usuario, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var usuario Usuario
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&usuario).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err))
		return nil, fmt.Errorf("users: lookup account: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(usuario.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &usuario, nil
}

// SeedAdmin creates the initial admin account when the usuarios table is
// empty. Existing installations are left untouched.
func (s *Service) SeedAdmin(ctx context.Context, email, password, nombre string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Usuario{}).Count(&count).Error; err != nil {
		return fmt.Errorf("users: count accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return fmt.Errorf("users: generate id: %w", err)
	}
	if nombre == "" {
		nombre = "Administrador"
	}

	usuario := Usuario{
		ID:               id,
		Email:            email,
		PasswordHash:     string(hash),
		Nombre:           nombre,
		Rol:              RolAdmin,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&usuario).Error; err != nil {
		return fmt.Errorf("users: create admin: %w", err)
	}
	s.logger.Info("admin account seeded", zap.String("email", email))
	return nil
}
