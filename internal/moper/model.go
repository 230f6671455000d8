package moper

import (
	"fmt"
	"strings"
	"time"
)

// Slot identifies one of the four signature slots of a record. The slots are
// independent: any may be signed in any order, though only conformidad
// triggers folio assignment.
type Slot string

const (
	// SlotConformidad is the subject's own signature, reachable only through
	// the record's access code.
	SlotConformidad Slot = "conformidad"
	// SlotRH is the human-resources sign-off.
	SlotRH Slot = "rh"
	// SlotGerente is the operations manager sign-off.
	SlotGerente Slot = "gerente"
	// SlotControl is the control-center sign-off.
	SlotControl Slot = "control"
)

// ErrInvalidSlot indicates an unknown signature slot name.
var ErrInvalidSlot = fmt.Errorf("%w: unknown signature slot", ErrInvalidArgument)

// ParseSlot validates a raw slot name.
func ParseSlot(value string) (Slot, error) {
	switch Slot(strings.TrimSpace(value)) {
	case SlotConformidad:
		return SlotConformidad, nil
	case SlotRH:
		return SlotRH, nil
	case SlotGerente:
		return SlotGerente, nil
	case SlotControl:
		return SlotControl, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, value)
	}
}

// columns returns the timestamp, signer-name and image column names for the
// slot.
func (s Slot) columns() (string, string, string) {
	base := "firma_" + string(s)
	return base + "_at", base + "_nombre", base + "_imagen"
}

// Registro models one personnel movement and its four signature slots. The
// folio stays null until the first successful conformidad signature;
// codigo_acceso is assigned at creation and never changes.
type Registro struct {
	ID           string  `gorm:"column:id;primaryKey;size:190;not null"`
	Folio        *string `gorm:"column:folio;size:64"`
	CodigoAcceso string  `gorm:"column:codigo_acceso;size:16;not null;uniqueIndex:idx_registros_codigo"`

	OficialNombre        string   `gorm:"column:oficial_nombre;type:text;not null;default:''"`
	CURP                 string   `gorm:"column:curp;size:18;not null;default:''"`
	FechaIngreso         *string  `gorm:"column:fecha_ingreso;size:10"`
	FechaInicioEfectiva  *string  `gorm:"column:fecha_inicio_efectiva;size:10"`
	FechaLlenado         string   `gorm:"column:fecha_llenado;size:10;not null;default:''"`
	FechaRegistro        *string  `gorm:"column:fecha_registro;size:10"`
	ServicioActualNombre string   `gorm:"column:servicio_actual_nombre;type:text;not null;default:''"`
	ServicioNuevoNombre  string   `gorm:"column:servicio_nuevo_nombre;type:text;not null;default:''"`
	PuestoActualNombre   string   `gorm:"column:puesto_actual_nombre;type:text;not null;default:''"`
	PuestoNuevoNombre    string   `gorm:"column:puesto_nuevo_nombre;type:text;not null;default:''"`
	SueldoActual         *float64 `gorm:"column:sueldo_actual"`
	SueldoNuevo          float64  `gorm:"column:sueldo_nuevo;not null;default:0"`
	Motivo               string   `gorm:"column:motivo;type:text;not null;default:''"`
	CreadoPor            string   `gorm:"column:creado_por;type:text;not null;default:''"`
	SolicitadoPor        string   `gorm:"column:solicitado_por;type:text;not null;default:''"`

	FirmaConformidadAt     *time.Time `gorm:"column:firma_conformidad_at"`
	FirmaConformidadNombre string     `gorm:"column:firma_conformidad_nombre;not null;default:''"`
	FirmaConformidadImagen string     `gorm:"column:firma_conformidad_imagen;type:text;not null;default:''"`
	FirmaRHAt              *time.Time `gorm:"column:firma_rh_at"`
	FirmaRHNombre          string     `gorm:"column:firma_rh_nombre;not null;default:''"`
	FirmaRHImagen          string     `gorm:"column:firma_rh_imagen;type:text;not null;default:''"`
	FirmaGerenteAt         *time.Time `gorm:"column:firma_gerente_at"`
	FirmaGerenteNombre     string     `gorm:"column:firma_gerente_nombre;not null;default:''"`
	FirmaGerenteImagen     string     `gorm:"column:firma_gerente_imagen;type:text;not null;default:''"`
	FirmaControlAt         *time.Time `gorm:"column:firma_control_at"`
	FirmaControlNombre     string     `gorm:"column:firma_control_nombre;not null;default:''"`
	FirmaControlImagen     string     `gorm:"column:firma_control_imagen;type:text;not null;default:''"`

	Completado       bool  `gorm:"column:completado;not null;default:false;index:idx_registros_completado"`
	CreatedAtSeconds int64 `gorm:"column:created_at_s;not null;index:idx_registros_created"`
	UpdatedAtSeconds int64 `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Registro) TableName() string {
	return "moper_registros"
}

// allSigned reports whether every slot carries a signature.
func (r *Registro) allSigned() bool {
	return r.FirmaConformidadAt != nil &&
		r.FirmaRHAt != nil &&
		r.FirmaGerenteAt != nil &&
		r.FirmaControlAt != nil
}

// Estado is the derived workflow state computed from the folio and the four
// slots. The slots themselves stay persisted independently; Estado exists for
// reporting only.
type Estado string

const (
	// EstadoBorrador covers records without a folio.
	EstadoBorrador Estado = "borrador"
	// EstadoFoliado covers folio-bearing records missing at least one signature.
	EstadoFoliado Estado = "foliado"
	// EstadoCompletado is terminal: all four slots signed.
	EstadoCompletado Estado = "completado"
)

// EstadoActual derives the workflow state of the record.
func (r *Registro) EstadoActual() Estado {
	if r.allSigned() {
		return EstadoCompletado
	}
	if r.Folio != nil {
		return EstadoFoliado
	}
	return EstadoBorrador
}
