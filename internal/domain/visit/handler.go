package visit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/registration/internal/platform/auth"
	"github.com/ehr/registration/internal/platform/fhir"
	"github.com/ehr/registration/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar, auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/patients/:id/visits", h.ListVisits)

	fhirRead := fhirGroup.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar, auth.RolePhysician, auth.RoleNurse))
	fhirRead.GET("/Encounter", h.SearchEncountersFHIR)
	fhirRead.GET("/Encounter/:id", h.GetEncounterFHIR)
}

func (h *Handler) ListVisits(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	visits, total, err := h.svc.ListVisitsByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, pg.Limit, pg.Offset))
}

// -- FHIR Encounter Handlers --

func (h *Handler) SearchEncountersFHIR(c echo.Context) error {
	ref := c.QueryParam("patient")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("the patient search parameter is required", "patient"))
	}
	pid, err := uuid.Parse(strings.TrimPrefix(ref, "Patient/"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid patient reference: "+ref, "patient"))
	}

	pg := pagination.FromContext(c)
	visits, total, err := h.svc.ListVisitsByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]map[string]interface{}, len(visits))
	for i, v := range visits {
		resources[i] = v.ToFHIR()
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Encounter",
		QueryStr: "patient=" + ref,
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	}))
}

func (h *Handler) GetEncounterFHIR(c echo.Context) error {
	v, err := h.svc.GetVisitByFHIRID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Encounter", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	fhir.SetVersionHeaders(c, v.VersionID, v.UpdatedAt)
	return c.JSON(http.StatusOK, v.ToFHIR())
}
