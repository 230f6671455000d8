package moper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("moper: database handle is required")
	errMissingIDProvider = errors.New("moper: id provider is required")
	errMissingAllocator  = errors.New("moper: folio allocator is required")

	noOpLogger = zap.NewNop()

	dateOnlyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// dateOnly normalizes a raw date string to YYYY-MM-DD for DATE-typed
// columns, tolerating datetime-local values from the form.
func dateOnly(value string) *string {
	trimmed := strings.TrimSpace(value)
	match := dateOnlyPattern.FindString(trimmed)
	if match == "" {
		return nil
	}
	return &match
}

// FolioAllocator mints document serials inside the caller's transaction, so
// folio assignment and signature persistence commit as one unit.
type FolioAllocator interface {
	AllocateIn(tx *gorm.DB) (string, error)
}

// ServiceConfig describes the dependencies of the workflow service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Allocator  FolioAllocator
	Logger     *zap.Logger
}

// Service owns record lifecycle and the four-signature approval workflow.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	allocator  FolioAllocator
	logger     *zap.Logger
}

// NewService constructs the workflow service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	if cfg.Allocator == nil {
		return nil, errMissingAllocator
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		allocator:  cfg.Allocator,
		logger:     logger,
	}, nil
}

// RegistroInput carries the free-text business fields of a movement record.
type RegistroInput struct {
	OficialNombre        string
	CURP                 string
	FechaIngreso         string
	FechaInicioEfectiva  string
	FechaRegistro        string
	ServicioActualNombre string
	ServicioNuevoNombre  string
	PuestoActualNombre   string
	PuestoNuevoNombre    string
	SueldoActual         *float64
	SueldoNuevo          float64
	Motivo               string
	CreadoPor            string
	SolicitadoPor        string
}

// Create stores a new record. The folio stays null until the first
// conformidad signature; the access code is assigned here and never changes.
func (s *Service) Create(ctx context.Context, input RegistroInput) (*Registro, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, fmt.Errorf("moper: generate id: %w", err)
	}
	codigo, err := NewAccessCode()
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	curp := strings.TrimSpace(input.CURP)
	if len(curp) > 18 {
		curp = curp[:18]
	}
	registro := Registro{
		ID:                   id,
		CodigoAcceso:         codigo,
		OficialNombre:        strings.TrimSpace(input.OficialNombre),
		CURP:                 curp,
		FechaIngreso:         dateOnly(input.FechaIngreso),
		FechaInicioEfectiva:  dateOnly(input.FechaInicioEfectiva),
		FechaLlenado:         now.Format("2006-01-02"),
		FechaRegistro:        dateOnly(input.FechaRegistro),
		ServicioActualNombre: strings.TrimSpace(input.ServicioActualNombre),
		ServicioNuevoNombre:  strings.TrimSpace(input.ServicioNuevoNombre),
		PuestoActualNombre:   strings.TrimSpace(input.PuestoActualNombre),
		PuestoNuevoNombre:    strings.TrimSpace(input.PuestoNuevoNombre),
		SueldoActual:         input.SueldoActual,
		SueldoNuevo:          input.SueldoNuevo,
		Motivo:               strings.TrimSpace(input.Motivo),
		CreadoPor:            strings.TrimSpace(input.CreadoPor),
		SolicitadoPor:        strings.TrimSpace(input.SolicitadoPor),
		CreatedAtSeconds:     now.Unix(),
		UpdatedAtSeconds:     now.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&registro).Error; err != nil {
		s.logger.Error("record create failed", zap.Error(err))
		return nil, fmt.Errorf("moper: create record: %w", err)
	}
	return &registro, nil
}

// Update replaces the business fields of a record. The folio, access code,
// signature columns and completion flag are never touched here.
func (s *Service) Update(ctx context.Context, id string, input RegistroInput) (*Registro, error) {
	curp := strings.TrimSpace(input.CURP)
	if len(curp) > 18 {
		curp = curp[:18]
	}

	var updated Registro
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Registro
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("moper: load record: %w", err)
		}

		updates := map[string]interface{}{
			"oficial_nombre":         strings.TrimSpace(input.OficialNombre),
			"curp":                   curp,
			"fecha_ingreso":          dateOnly(input.FechaIngreso),
			"fecha_inicio_efectiva":  dateOnly(input.FechaInicioEfectiva),
			"fecha_registro":         dateOnly(input.FechaRegistro),
			"servicio_actual_nombre": strings.TrimSpace(input.ServicioActualNombre),
			"servicio_nuevo_nombre":  strings.TrimSpace(input.ServicioNuevoNombre),
			"puesto_actual_nombre":   strings.TrimSpace(input.PuestoActualNombre),
			"puesto_nuevo_nombre":    strings.TrimSpace(input.PuestoNuevoNombre),
			"sueldo_actual":          input.SueldoActual,
			"sueldo_nuevo":           input.SueldoNuevo,
			"motivo":                 strings.TrimSpace(input.Motivo),
			"creado_por":             strings.TrimSpace(input.CreadoPor),
			"solicitado_por":         strings.TrimSpace(input.SolicitadoPor),
			"updated_at_s":           s.clock().UTC().Unix(),
		}
		if err := tx.Model(&Registro{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("moper: update record: %w", err)
		}
		return tx.Where("id = ?", id).Take(&updated).Error
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrNotFound) {
			s.logger.Error("record update failed", zap.Error(txErr), zap.String("registro_id", id))
		}
		return nil, txErr
	}
	return &updated, nil
}

// Get loads a record by identifier.
func (s *Service) Get(ctx context.Context, id string) (*Registro, error) {
	var registro Registro
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&registro).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("moper: load record: %w", err)
	}
	return &registro, nil
}

// GetByCodigo loads a record through its access code. This is the public
// capability lookup used by the conformity view; a miss is indistinguishable
// from a nonexistent record.
func (s *Service) GetByCodigo(ctx context.Context, codigo string) (*Registro, error) {
	codigo = strings.TrimSpace(codigo)
	if codigo == "" {
		return nil, fmt.Errorf("%w: empty access code", ErrInvalidArgument)
	}
	var registro Registro
	err := s.db.WithContext(ctx).Where("codigo_acceso = ?", codigo).Take(&registro).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: access code", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("moper: load record by code: %w", err)
	}
	return &registro, nil
}

// ListResult summarizes pending and approved records for the dashboard.
type ListResult struct {
	Pendientes          int64
	Aprobados           int64
	RegistrosPendientes []Registro
	RegistrosAprobados  []Registro
}

const listLimit = 50

// List returns counts plus the most recent records of each bucket.
func (s *Service) List(ctx context.Context) (ListResult, error) {
	var result ListResult
	db := s.db.WithContext(ctx)

	if err := db.Model(&Registro{}).Where("completado = ?", false).Count(&result.Pendientes).Error; err != nil {
		return ListResult{}, fmt.Errorf("moper: count pending: %w", err)
	}
	if err := db.Model(&Registro{}).Where("completado = ?", true).Count(&result.Aprobados).Error; err != nil {
		return ListResult{}, fmt.Errorf("moper: count approved: %w", err)
	}
	if err := db.Where("completado = ?", false).
		Order("created_at_s DESC").
		Limit(listLimit).
		Find(&result.RegistrosPendientes).Error; err != nil {
		return ListResult{}, fmt.Errorf("moper: list pending: %w", err)
	}
	if err := db.Where("completado = ?", true).
		Order("created_at_s DESC").
		Limit(listLimit).
		Find(&result.RegistrosAprobados).Error; err != nil {
		return ListResult{}, fmt.Errorf("moper: list approved: %w", err)
	}
	return result, nil
}

// Firmante identifies an authenticated caller submitting a role-gated
// signature. It is nil for access-code submissions.
type Firmante struct {
	Nombre string
	Rol    string
}

// SignatureRequest describes one submit_signature call.
type SignatureRequest struct {
	RegistroID   string
	Tipo         string
	Imagen       string
	CodigoAcceso string
	Firmante     *Firmante
}

// SignatureResult reports the folio (possibly still nil for out-of-order
// signing) and the completion flag after the signature was persisted.
type SignatureResult struct {
	Folio      *string
	Completado bool
}

// SubmitSignature records a signature in one slot. The whole operation runs
// in a single transaction holding a row lock on the record, so concurrent
// submissions for different slots of the same record serialize and the
// completion recomputation never loses an update. Re-signing an already
// signed slot overwrites timestamp, name and image; under a same-slot race
// the last write wins.
func (s *Service) SubmitSignature(ctx context.Context, req SignatureRequest) (SignatureResult, error) {
	slot, err := ParseSlot(req.Tipo)
	if err != nil {
		return SignatureResult{}, err
	}
	if !strings.HasPrefix(req.Imagen, "data:image/") {
		return SignatureResult{}, fmt.Errorf("%w: imagen must be an image data URL", ErrInvalidArgument)
	}

	var result SignatureResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var registro Registro
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", req.RegistroID).
			Take(&registro).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, req.RegistroID)
		}
		if err != nil {
			return fmt.Errorf("moper: load record: %w", err)
		}

		signerName := FirmaManuscrita
		if slot == SlotConformidad {
			recibido := strings.TrimSpace(req.CodigoAcceso)
			if recibido == "" {
				return fmt.Errorf("%w: codigo_acceso", ErrMissingCredential)
			}
			registrado := strings.TrimSpace(registro.CodigoAcceso)
			if registrado == "" || recibido != registrado {
				return fmt.Errorf("%w: codigo_acceso", ErrWrongCredential)
			}
		} else {
			if req.Firmante == nil {
				return fmt.Errorf("%w: login required for %s", ErrMissingCredential, slot)
			}
			if !RoleAllowed(slot, req.Firmante.Rol) {
				return fmt.Errorf("%w: rol %q cannot sign %s", ErrForbidden, req.Firmante.Rol, slot)
			}
			signerName = req.Firmante.Nombre
		}

		now := s.clock().UTC()
		atCol, nombreCol, imagenCol := slot.columns()
		updates := map[string]interface{}{
			atCol:          now,
			nombreCol:      signerName,
			imagenCol:      req.Imagen,
			"updated_at_s": now.Unix(),
		}

		// First conformity signature on a folio-less record mints the folio
		// in the same transaction. A folio set by any earlier path is kept.
		if slot == SlotConformidad && registro.FirmaConformidadAt == nil && registro.Folio == nil {
			folioAsignado, err := s.allocator.AllocateIn(tx)
			if err != nil {
				return fmt.Errorf("moper: allocate folio: %w", err)
			}
			updates["folio"] = folioAsignado
		}

		if err := tx.Model(&Registro{}).Where("id = ?", registro.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("moper: persist signature: %w", err)
		}

		// Re-read all four slots inside the transaction before deriving
		// completion, so two slots completing back to back cannot both miss
		// the final state.
		var updated Registro
		if err := tx.Where("id = ?", registro.ID).Take(&updated).Error; err != nil {
			return fmt.Errorf("moper: reload record: %w", err)
		}
		completado := updated.allSigned()
		if completado && !updated.Completado {
			err := tx.Model(&Registro{}).
				Where("id = ?", registro.ID).
				Update("completado", true).Error
			if err != nil {
				return fmt.Errorf("moper: mark completed: %w", err)
			}
		}
		result = SignatureResult{Folio: updated.Folio, Completado: completado}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrNotFound) && !errors.Is(txErr, ErrUnauthorized) && !errors.Is(txErr, ErrForbidden) {
			s.logger.Error("signature submission failed",
				zap.Error(txErr),
				zap.String("registro_id", req.RegistroID),
				zap.String("tipo", req.Tipo))
		}
		return SignatureResult{}, txErr
	}

	s.logger.Info("signature recorded",
		zap.String("registro_id", req.RegistroID),
		zap.String("tipo", string(slot)),
		zap.Bool("completado", result.Completado))
	return result, nil
}
