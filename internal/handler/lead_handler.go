package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"crm-service/internal/service"
	"crm-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LeadRequest is the lead form. Products are keyed by category id; HTML
// forms send them as a JSON string in the "products" field.
type LeadRequest struct {
	LeadSource           *string `json:"leadsource" form:"leadsource"`
	Name                 *string `json:"name" form:"name"`
	Email                *string `json:"email" form:"email"`
	Address              *string `json:"address" form:"address"`
	Pincode              *string `json:"pincode" form:"pincode"`
	Number               *string `json:"number" form:"number"`
	WhatsAppURL          *string `json:"whatsapp_url" form:"whatsapp_url"`
	Notes                *string `json:"notes" form:"notes"`
	Remarks              *string `json:"remarks" form:"remarks"`
	Status               *string `json:"lead_status" form:"lead_status"`
	Stage                *string `json:"lead_stage" form:"lead_stage"`
	Activity             *string `json:"activity" form:"activity"`
	Task                 *string `json:"task" form:"task"`
	InterestedCategories *string `json:"interested_categories" form:"interested_categories"`
	LeadManager          *uint   `json:"lead_manager" form:"lead_manager"`
	Categories           []uint  `json:"categories" form:"categories"`

	Products        map[string][]service.ProductEntryInput `json:"products" form:"-"`
	ProductsPayload string                                 `json:"-" form:"products"`
}

func (r *LeadRequest) toInput() (service.LeadInput, error) {
	in := service.LeadInput{
		Fields: service.LeadFields{
			LeadSource:           r.LeadSource,
			Name:                 r.Name,
			Email:                r.Email,
			Address:              r.Address,
			Pincode:              r.Pincode,
			Number:               r.Number,
			WhatsAppURL:          r.WhatsAppURL,
			Notes:                r.Notes,
			Remarks:              r.Remarks,
			Status:               r.Status,
			Stage:                r.Stage,
			Activity:             r.Activity,
			Task:                 r.Task,
			InterestedCategories: r.InterestedCategories,
			ManagerID:            r.LeadManager,
		},
		CategoryIDs: r.Categories,
	}

	products := r.Products
	if products == nil && strings.TrimSpace(r.ProductsPayload) != "" {
		dec := json.NewDecoder(bytes.NewBufferString(r.ProductsPayload))
		if err := dec.Decode(&products); err != nil {
			return in, &service.ValidationError{Reason: "Invalid products payload."}
		}
	}

	in.Products = make(map[uint][]service.ProductEntryInput, len(products))
	for key, entries := range products {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil || id == 0 {
			return in, &service.ValidationError{Reason: fmt.Sprintf("Invalid product category %q.", key)}
		}
		in.Products[uint(id)] = entries
	}
	return in, nil
}

func parseLeadID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

// ListLeads handles the searchable, filterable lead list
func (h *Handler) ListLeads(c echo.Context) error {
	log := logger.FromEcho(c)
	filter := service.LeadFilter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Stage:  c.QueryParam("stage"),
		Page:   service.ParsePage(c.QueryParam("page")),
	}
	log.Info("Listing leads",
		zap.String("search", filter.Search),
		zap.String("status", filter.Status),
		zap.String("stage", filter.Stage),
		zap.Int("page", filter.Page))

	page, err := h.Leads.ListLeads(c.Request().Context(), filter)
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusOK, page)
}

// GetLead handles the lead detail view
func (h *Handler) GetLead(c echo.Context) error {
	id, ok := parseLeadID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Lead not found"})
	}
	lead, err := h.Leads.GetLead(c.Request().Context(), id)
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusOK, lead)
}

// CreateLead handles lead creation
func (h *Handler) CreateLead(c echo.Context) error {
	log := logger.FromEcho(c)

	var req LeadRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid lead request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	in, err := req.toInput()
	if err != nil {
		return fail(c, err, "Lead not found")
	}

	lead, err := h.Leads.CreateLead(c.Request().Context(), in)
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusCreated, lead)
}

// UpdateLead handles the lead edit form
func (h *Handler) UpdateLead(c echo.Context) error {
	log := logger.FromEcho(c)
	id, ok := parseLeadID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Lead not found"})
	}

	var req LeadRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid lead request", zap.String("lead_id", id.String()), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	in, err := req.toInput()
	if err != nil {
		return fail(c, err, "Lead not found")
	}

	lead, err := h.Leads.UpdateLead(c.Request().Context(), id, in)
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusOK, lead)
}

// DeleteLead handles lead removal
func (h *Handler) DeleteLead(c echo.Context) error {
	id, ok := parseLeadID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Lead not found"})
	}
	if err := h.Leads.DeleteLead(c.Request().Context(), id); err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Lead deleted successfully"})
}

// ExportLeads streams the filtered lead list as a spreadsheet
func (h *Handler) ExportLeads(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = service.FormatXLSX
	}
	filter := service.LeadFilter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Stage:  c.QueryParam("stage"),
	}

	var buf bytes.Buffer
	if _, err := h.Leads.ExportLeads(c.Request().Context(), filter, format, &buf); err != nil {
		return fail(c, err, "Lead not found")
	}

	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if format == service.FormatCSV {
		contentType = "text/csv"
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=leads.%s", format))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}
