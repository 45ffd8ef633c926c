package handler

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"crm-service/internal/model"
	"crm-service/internal/service"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ActivityRequest is the add-activity form. A call recording arrives as the
// multipart file "recording".
type ActivityRequest struct {
	ActivityType string `json:"activity_type" form:"activity_type"`
	Description  string `json:"description" form:"description"`
	DueDate      string `json:"due_date" form:"due_date"`
	Priority     string `json:"priority" form:"priority"`
}

// TaskNoteRequest carries a task note
type TaskNoteRequest struct {
	Note string `json:"note" form:"note"`
}

// PostponeRequest carries the new IST due date
type PostponeRequest struct {
	NewDueDate string `json:"new_due_date" form:"new_due_date"`
}

// AddActivity handles adding a call, note, task or purchase to a lead
func (h *Handler) AddActivity(c echo.Context) error {
	log := logger.FromEcho(c)
	leadID, ok := parseLeadID(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Lead not found"})
	}

	var req ActivityRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Invalid activity request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var upload *model.Upload
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		file, err := c.FormFile("recording")
		if err != nil && err != http.ErrMissingFile {
			log.Warn("Invalid recording upload", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid recording upload"})
		}
		if file != nil {
			src, err := file.Open()
			if err != nil {
				log.Error("Failed to open uploaded recording", zap.Error(err))
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid recording upload"})
			}
			defer src.Close()
			upload = &model.Upload{Filename: file.Filename, Content: src}
		}
	}

	details, err := service.BuildDetails(req.ActivityType, upload, req.DueDate, req.Priority)
	if err != nil {
		return fail(c, err, "Lead not found")
	}

	activity, err := h.Activities.AddActivity(c.Request().Context(), leadID, actor(c), req.Description, details)
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusCreated, activity)
}

// ToggleTaskComplete handles flipping a task between open and completed
func (h *Handler) ToggleTaskComplete(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Activity not found"})
	}
	completed, err := h.Activities.ToggleTaskComplete(c.Request().Context(), id)
	if err != nil {
		return fail(c, err, "Activity not found")
	}

	message := "Task marked as pending"
	if completed {
		message = "Task marked as completed"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"activity_id":  id,
		"is_completed": completed,
		"message":      message,
	})
}

// AddTaskNote handles appending a note to a task
func (h *Handler) AddTaskNote(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Activity not found"})
	}
	var req TaskNoteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	note, err := h.Activities.AddTaskNote(c.Request().Context(), id, actor(c), req.Note)
	if err != nil {
		return fail(c, err, "Activity not found")
	}
	return c.JSON(http.StatusCreated, note)
}

// PostponeTask handles moving a task's due date
func (h *Handler) PostponeTask(c echo.Context) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Activity not found"})
	}
	var req PostponeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	result, err := h.Activities.PostponeTask(c.Request().Context(), id, req.NewDueDate)
	if err != nil {
		return fail(c, err, "Activity not found")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"result":  result,
		"message": "Task postponed from " + result.OldDueIST + " to " + result.NewDueIST,
	})
}

// ListTasks handles the task list across leads
func (h *Handler) ListTasks(c echo.Context) error {
	filter := service.TaskFilter{
		State: c.QueryParam("state"),
		Page:  service.ParsePage(c.QueryParam("page")),
	}
	page, err := h.Activities.ListTasks(c.Request().Context(), filter)
	if err != nil {
		return fail(c, err, "Task not found")
	}
	return c.JSON(http.StatusOK, page)
}

// ListTaskLeads handles the list of leads with a follow-up task written on them
func (h *Handler) ListTaskLeads(c echo.Context) error {
	page, err := h.Leads.ListTaskLeads(c.Request().Context(), service.ParsePage(c.QueryParam("page")))
	if err != nil {
		return fail(c, err, "Lead not found")
	}
	return c.JSON(http.StatusOK, page)
}

// ListCallRecordings handles the superuser recordings browser. Other staff
// are sent back to the lead list.
func (h *Handler) ListCallRecordings(c echo.Context) error {
	log := logger.FromEcho(c)
	filter := service.RecordingFilter{
		Search: c.QueryParam("search"),
		Page:   service.ParsePage(c.QueryParam("page")),
	}

	page, err := h.Activities.ListCallRecordings(c.Request().Context(), actor(c), filter)
	if errors.Is(err, service.ErrForbidden) {
		log.Warn("Non-superuser tried to open call recordings")
		return c.Redirect(http.StatusFound, "/api/leads")
	}
	if err != nil {
		return fail(c, err, "Recording not found")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"recordings": page,
		"search":     filter.Search,
	})
}

// DownloadRecording streams a stored call recording
func (h *Handler) DownloadRecording(c echo.Context) error {
	log := logger.FromEcho(c)
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Recording not found"})
	}

	rec, err := h.Activities.OpenRecording(c.Request().Context(), actor(c), id)
	if errors.Is(err, service.ErrForbidden) {
		log.Warn("Non-superuser tried to download a call recording", zap.Uint("activity_id", id))
		return c.Redirect(http.StatusFound, "/api/leads")
	}
	if err != nil {
		return fail(c, err, "Recording not found")
	}
	defer rec.Content.Close()

	contentType := mime.TypeByExtension(path.Ext(rec.Filename))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
	return c.Stream(http.StatusOK, contentType, rec.Content)
}
