package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/auth"
	"github.com/SistemasTSJavier/MOPER-TS/internal/moper"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func identityPayload(identity auth.Identity) gin.H {
	return gin.H{
		"id":     identity.ID,
		"email":  identity.Email,
		"nombre": identity.Nombre,
		"rol":    identity.Rol,
	}
}

type registroInputPayload struct {
	OficialNombre        string   `json:"oficial_nombre"`
	CURP                 string   `json:"curp"`
	FechaIngreso         string   `json:"fecha_ingreso"`
	FechaInicioEfectiva  string   `json:"fecha_inicio_efectiva"`
	FechaRegistro        string   `json:"fecha_registro"`
	ServicioActualNombre string   `json:"servicio_actual_nombre"`
	ServicioNuevoNombre  string   `json:"servicio_nuevo_nombre"`
	PuestoActualNombre   string   `json:"puesto_actual_nombre"`
	PuestoNuevoNombre    string   `json:"puesto_nuevo_nombre"`
	SueldoActual         *float64 `json:"sueldo_actual"`
	SueldoNuevo          float64  `json:"sueldo_nuevo"`
	Motivo               string   `json:"motivo"`
	CreadoPor            string   `json:"creado_por"`
	SolicitadoPor        string   `json:"solicitado_por"`
}

func (p registroInputPayload) toInput() moper.RegistroInput {
	return moper.RegistroInput{
		OficialNombre:        p.OficialNombre,
		CURP:                 p.CURP,
		FechaIngreso:         p.FechaIngreso,
		FechaInicioEfectiva:  p.FechaInicioEfectiva,
		FechaRegistro:        p.FechaRegistro,
		ServicioActualNombre: p.ServicioActualNombre,
		ServicioNuevoNombre:  p.ServicioNuevoNombre,
		PuestoActualNombre:   p.PuestoActualNombre,
		PuestoNuevoNombre:    p.PuestoNuevoNombre,
		SueldoActual:         p.SueldoActual,
		SueldoNuevo:          p.SueldoNuevo,
		Motivo:               p.Motivo,
		CreadoPor:            p.CreadoPor,
		SolicitadoPor:        p.SolicitadoPor,
	}
}

// registroPayload projects a full record, signature columns included. The PDF
// renderer and the conformity view both consume this shape.
func registroPayload(r *moper.Registro) gin.H {
	return gin.H{
		"id":                       r.ID,
		"folio":                    r.Folio,
		"codigo_acceso":            r.CodigoAcceso,
		"estado":                   r.EstadoActual(),
		"oficial_nombre":           r.OficialNombre,
		"curp":                     r.CURP,
		"fecha_ingreso":            r.FechaIngreso,
		"fecha_inicio_efectiva":    r.FechaInicioEfectiva,
		"fecha_llenado":            r.FechaLlenado,
		"fecha_registro":           r.FechaRegistro,
		"servicio_actual_nombre":   r.ServicioActualNombre,
		"servicio_nuevo_nombre":    r.ServicioNuevoNombre,
		"puesto_actual_nombre":     r.PuestoActualNombre,
		"puesto_nuevo_nombre":      r.PuestoNuevoNombre,
		"sueldo_actual":            r.SueldoActual,
		"sueldo_nuevo":             r.SueldoNuevo,
		"motivo":                   r.Motivo,
		"creado_por":               r.CreadoPor,
		"solicitado_por":           r.SolicitadoPor,
		"firma_conformidad_at":     timeOrNil(r.FirmaConformidadAt),
		"firma_conformidad_nombre": r.FirmaConformidadNombre,
		"firma_conformidad_imagen": r.FirmaConformidadImagen,
		"firma_rh_at":              timeOrNil(r.FirmaRHAt),
		"firma_rh_nombre":          r.FirmaRHNombre,
		"firma_rh_imagen":          r.FirmaRHImagen,
		"firma_gerente_at":         timeOrNil(r.FirmaGerenteAt),
		"firma_gerente_nombre":     r.FirmaGerenteNombre,
		"firma_gerente_imagen":     r.FirmaGerenteImagen,
		"firma_control_at":         timeOrNil(r.FirmaControlAt),
		"firma_control_nombre":     r.FirmaControlNombre,
		"firma_control_imagen":     r.FirmaControlImagen,
		"completado":               r.Completado,
	}
}

func timeOrNil(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}

type resumenPayload struct {
	ID            string  `json:"id"`
	Folio         *string `json:"folio"`
	OficialNombre string  `json:"oficial_nombre"`
	FechaLlenado  string  `json:"fecha_llenado"`
	Completado    bool    `json:"completado"`
}

func resumenPayloads(registros []moper.Registro) []resumenPayload {
	out := make([]resumenPayload, 0, len(registros))
	for _, r := range registros {
		out = append(out, resumenPayload{
			ID:            r.ID,
			Folio:         r.Folio,
			OficialNombre: r.OficialNombre,
			FechaLlenado:  r.FechaLlenado,
			Completado:    r.Completado,
		})
	}
	return out
}

// respondStorageError renders a 500 with an operator-readable hint derived
// from the store error, when one can be derived.
func respondStorageError(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if detail := storageDetail(err); detail != "" {
		body["detail"] = detail
	}
	c.JSON(http.StatusInternalServerError, body)
}

// storageDetail maps backing-store failures to the hints operators already
// know from the legacy deployment.
func storageDetail(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "Registro duplicado."
	case errors.Is(err, gorm.ErrInvalidData):
		return "Formato de fecha o número inválido."
	}
	message := err.Error()
	switch {
	case strings.Contains(message, "UNIQUE constraint failed"):
		return "Registro duplicado."
	case strings.Contains(message, "NOT NULL constraint failed"):
		return "Falta un dato requerido."
	case strings.Contains(message, "no such table"):
		return "Tabla no existe. Ejecutar schema/migraciones en la base de datos."
	case strings.Contains(message, "no such column"):
		return "Base de datos desactualizada (falta columna). Ejecutar migraciones."
	}
	return ""
}
