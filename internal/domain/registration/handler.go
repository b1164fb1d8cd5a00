package registration

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/registration/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar, auth.RolePhysician, auth.RoleNurse))
	readGroup.GET("/registration/catalog", h.GetCatalog)
	readGroup.GET("/registration/options", h.GetOptions)
	readGroup.GET("/registration/districts", h.GetDistricts)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar))
	writeGroup.POST("/registration/apply", h.ApplyActions)
	writeGroup.GET("/patients/:id/visit-registration", h.LoadRegistration)
	writeGroup.PUT("/patients/:id/visit-registration", h.SaveRegistration)
}

func (h *Handler) GetCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, StaticCatalog())
}

func (h *Handler) GetOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, ResolveDependents(Classification(c.QueryParam("classification"))))
}

func (h *Handler) GetDistricts(c echo.Context) error {
	return c.JSON(http.StatusOK, ResolveDistricts(c.QueryParam("region")))
}

type applyRequest struct {
	Registration VisitRegistration `json:"registration"`
	Actions      []Action          `json:"actions"`
}

type applyResponse struct {
	Registration VisitRegistration `json:"registration"`
	Options      DependentOptions  `json:"options"`
	Districts    DistrictOptions   `json:"districts"`
}

// ApplyActions runs form edits server-side and returns the new record along
// with the option sets it now depends on. Nothing is persisted.
func (h *Handler) ApplyActions(c echo.Context) error {
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	reg, err := ApplyAll(req.Registration, req.Actions)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, applyResponse{
		Registration: reg,
		Options:      ResolveDependents(reg.AdmissionClassification),
		Districts:    ResolveDistricts(reg.Demographics.Region),
	})
}

func (h *Handler) LoadRegistration(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	draft, err := h.svc.Load(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, draft)
}

func (h *Handler) SaveRegistration(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var draft Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if draft.PatientID == uuid.Nil {
		draft.PatientID = pid
	}
	if draft.PatientID != pid {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id does not match the path")
	}

	res, err := h.svc.Save(c.Request().Context(), &draft)
	if err != nil {
		return httpError(err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// httpError maps service errors to responses. Anything unrecognized is a
// store failure.
func httpError(err error) error {
	var verr *ValidationError
	var perr *PartialSaveError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]interface{}{
			"message": ErrValidation.Error(),
			"fields":  verr.Fields,
		})
	case errors.Is(err, ErrSaveInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrVisitNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &perr):
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]interface{}{
			"message":             perr.Error(),
			"visit_id":            perr.VisitID,
			"registration_number": perr.RegistrationNumber,
		})
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
