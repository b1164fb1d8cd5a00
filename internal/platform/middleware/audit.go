package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/registration/internal/platform/auth"
)

// AuditEntry records who touched which patient's registration data.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	PatientID  string
	Action     string // read, create, update
	Route      string
	Method     string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit emits one structured "patient_access" log event per request that
// carries a patient id, either as the :id path parameter of a /patients/
// route or as the patient search parameter.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			entry, ok := auditEntry(c)
			if !ok {
				return err
			}
			if he, isHTTP := err.(*echo.HTTPError); isHTTP {
				entry.StatusCode = he.Code
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("route", entry.Route).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("patient_access")

			return err
		}
	}
}

func auditEntry(c echo.Context) (AuditEntry, bool) {
	patientID := extractPatientID(c)
	if patientID == "" {
		return AuditEntry{}, false
	}
	req := c.Request()
	ctx := req.Context()
	rid, _ := c.Get("request_id").(string)
	return AuditEntry{
		UserID:     auth.UserIDFromContext(ctx),
		UserRoles:  auth.RolesFromContext(ctx),
		PatientID:  patientID,
		Action:     httpMethodToAction(req.Method),
		Route:      c.Path(),
		Method:     req.Method,
		IPAddress:  c.RealIP(),
		RequestID:  rid,
		StatusCode: c.Response().Status,
		Timestamp:  time.Now().UTC(),
	}, true
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// extractPatientID finds the patient a request is about: the :id parameter
// of a /patients/:id route, or ?patient=<id> / ?patient=Patient/<id>.
func extractPatientID(c echo.Context) string {
	if strings.Contains(c.Path(), "/patients/:id") {
		if id := c.Param("id"); isUUID(id) {
			return id
		}
	}
	if patient := strings.TrimPrefix(c.QueryParam("patient"), "Patient/"); isUUID(patient) {
		return patient
	}
	return ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
