package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pms/pms/internal/platform/export"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/", h.Root)
	g.GET("/about", h.About)
	g.GET("/view", h.View)
	g.GET("/patient/:id", h.GetPatient)
	g.GET("/sort", h.SortPatients)
	g.POST("/create", h.CreatePatient)
	g.PUT("/edit/:id", h.UpdatePatient)
	g.DELETE("/delete/:id", h.DeletePatient)
	g.GET("/export.xlsx", h.ExportPatients)
}

func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient Management System API"})
}

func (h *Handler) About(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "This is a Patient Management System API built with Go",
	})
}

func (h *Handler) View(c echo.Context) error {
	coll, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, coll)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SortPatients(c echo.Context) error {
	patients, err := h.svc.Sort(c.Request().Context(), c.QueryParam("sort_by"), c.QueryParam("order"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var d Draft
	if err := c.Bind(&d); err != nil {
		return httpError(bindError(err))
	}
	p, err := d.Patient()
	if err != nil {
		return httpError(err)
	}
	created, err := h.svc.Create(c.Request().Context(), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"message":    "Patient created successfully",
		"patient_id": created.ID,
	})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var u Update
	if err := c.Bind(&u); err != nil {
		return httpError(bindError(err))
	}
	if _, err := h.svc.Update(c.Request().Context(), c.Param("id"), u); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient updated successfully"})
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}

func (h *Handler) ExportPatients(c echo.Context) error {
	coll, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := export.WritePatients(&buf, ExportRows(coll)); err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="patients.xlsx"`)
	return c.Blob(http.StatusOK, export.ContentType, buf.Bytes())
}

// ExportRows flattens the collection into spreadsheet rows in collection
// order.
func ExportRows(coll *Collection) []export.Row {
	rows := make([]export.Row, 0, coll.Len())
	for _, p := range coll.Values() {
		rows = append(rows, export.Row{
			ID:      p.ID,
			Name:    p.Name,
			City:    p.City,
			Age:     p.Age,
			Gender:  string(p.Gender),
			Height:  p.Height,
			Weight:  p.Weight,
			BMI:     p.BMI,
			Verdict: p.Verdict,
		})
	}
	return rows
}

// bindError turns JSON decoding failures into field-level validation errors.
// Other bind failures (e.g. unsupported media type) pass through.
func bindError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return &ValidationError{Fields: []FieldError{{Field: "body", Message: "must be a JSON object"}}}
		}
		return &ValidationError{Fields: []FieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be of type %s, got %s", typeErr.Type, typeErr.Value),
		}}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ValidationError{Fields: []FieldError{{Field: "body", Message: "malformed JSON"}}}
	}
	return err
}

// httpError maps domain errors onto HTTP statuses and client-facing detail.
func httpError(err error) error {
	var verr *ValidationError
	var he *echo.HTTPError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Fields).SetInternal(err)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, "Patient with this ID already exists")
	case errors.Is(err, ErrInvalidSortField):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Invalid sort field. Must be one of ['%s']", strings.Join(SortFields, "', '")))
	case errors.Is(err, ErrInvalidSortOrder):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid order. Must be 'asc' or 'desc'")
	case errors.As(err, &he):
		return he
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
