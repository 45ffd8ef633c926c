package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/service"
	"crm-service/pkg/clock"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/pkg/storage"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

type testServer struct {
	t          *testing.T
	e          *echo.Echo
	h          *Handler
	db         *gorm.DB
	staffToken string
	adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	clk := &clock.Fixed{At: time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)}
	jwt := jwtutil.NewJWTUtil(&config.JWTConfig{SigningKey: "test-key", ExpirationHours: 1})

	h := &Handler{
		ServiceName: "crm-service",
		Leads:       service.NewLeadService(db, clk, store),
		Activities:  service.NewActivityService(db, clk, store),
		Catalog:     service.NewCatalogService(db, clk),
		Users:       service.NewUserService(db, clk, store),
		Dashboard:   service.NewDashboardService(db, clk),
		JWT:         jwt,
		Ping:        func() error { return nil },
	}

	ctx := context.Background()
	require.NoError(t, h.Users.EnsureSuperuser(ctx, config.AdminConfig{Username: "admin", Password: "admin-pass"}))
	admin, err := h.Users.Authenticate(ctx, "admin", "admin-pass")
	require.NoError(t, err)
	staff, err := h.Users.CreateUser(ctx, service.Actor{UserID: admin.ID, IsSuperuser: true},
		service.UserInput{Username: "asha", FirstName: "Asha", Password: "staff-pass"})
	require.NoError(t, err)

	staffToken, err := jwt.GenerateToken(staff.ID, staff.Username, true, false)
	require.NoError(t, err)
	adminToken, err := jwt.GenerateToken(admin.ID, admin.Username, true, true)
	require.NoError(t, err)

	e := echo.New()
	e.Validator = middleware.NewRequestValidator()
	e.Use(middleware.RequestIDMiddleware)
	RegisterRoutes(e, h)

	return &testServer{t: t, e: e, h: h, db: db, staffToken: staffToken, adminToken: adminToken}
}

func (s *testServer) do(method, target, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, target, token string, payload interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	return s.do(method, target, token, echo.MIMEApplicationJSON, body)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) categoryID(name model.CategoryName) uint {
	s.t.Helper()
	var c model.Category
	require.NoError(s.t, s.db.Where("name = ?", name).First(&c).Error)
	return c.ID
}

func (s *testServer) createLead(payload map[string]interface{}) model.LeadView {
	s.t.Helper()
	rec := s.doJSON(http.MethodPost, "/api/leads", s.staffToken, payload)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.LeadView](s.t, rec)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "crm-service", body["service"])
	assert.NotEmpty(t, rec.Header().Get(logger.RequestIDKey))

	s.h.Ping = func() error { return errors.New("connection refused") }
	rec = s.do(http.MethodGet, "/health?check=db", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decode[map[string]string](t, rec)["database"])
}

func TestAPIRequiresStaffToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/leads", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/leads", "garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	customer, err := s.h.JWT.GenerateToken(99, "customer", false, false)
	require.NoError(t, err)
	rec = s.do(http.MethodGet, "/api/leads", customer, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/leads", s.staffToken, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"username": "asha", "password": "staff-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Token string                 `json:"token"`
		User  map[string]interface{} `json:"user"`
	}](t, rec)
	assert.Equal(t, "Asha", body.User["name"])

	claims, err := s.h.JWT.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "asha", claims.Username)
	assert.True(t, claims.IsStaff)
	assert.False(t, claims.IsSuperuser)

	rec = s.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"username": "asha", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doJSON(http.MethodPost, "/auth/login", "", map[string]string{"username": "asha"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")
}

func TestCreateAndGetLead(t *testing.T) {
	s := newTestServer(t)
	sofa := s.categoryID(model.CategorySofa)

	lead := s.createLead(map[string]interface{}{
		"name":       "Meera",
		"number":     "98765 43210",
		"categories": []uint{sofa},
		"products": map[string]interface{}{
			fmt.Sprint(sofa): []map[string]string{{"name": "Chesterfield", "price": "45000"}},
		},
	})
	assert.Equal(t, "https://wa.me/+919876543210", lead.WhatsAppURL)
	assert.Equal(t, "1 products: Sofa (1)", lead.ProductsSummary)

	rec := s.do(http.MethodGet, "/api/leads/"+lead.ID.String(), s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[model.LeadView](t, rec)
	assert.Equal(t, "Meera", got.Name)
	require.Len(t, got.LeadProducts, 1)
	assert.Equal(t, "Chesterfield", got.LeadProducts[0].Product)

	rec = s.do(http.MethodGet, "/api/leads/"+uuid.NewString(), s.staffToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/api/leads/not-a-uuid", s.staffToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLeadFromForm(t *testing.T) {
	s := newTestServer(t)
	sofa := s.categoryID(model.CategorySofa)
	bed := s.categoryID(model.CategoryBed)

	form := url.Values{}
	form.Set("name", "Ravi")
	form.Set("lead_status", "customer")
	form.Add("categories", fmt.Sprint(sofa))
	form.Add("categories", fmt.Sprint(bed))
	form.Set("products", fmt.Sprintf(`{"%d": [{"name": "Lawson"}, {"name": "Chesterfield"}]}`, sofa))

	rec := s.do(http.MethodPost, "/api/leads", s.staffToken, echo.MIMEApplicationForm, strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lead := decode[model.LeadView](t, rec)
	assert.Equal(t, model.StatusCustomer, lead.Status)
	assert.Len(t, lead.Categories, 2)
	assert.Equal(t, "2 products: Sofa (2)", lead.ProductsSummary)

	form.Set("products", "{not json")
	rec = s.do(http.MethodPost, "/api/leads", s.staffToken, echo.MIMEApplicationForm, strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLeadValidationError(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(http.MethodPost, "/api/leads", s.staffToken, map[string]interface{}{"name": "X", "lead_stage": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "Invalid lead stage")
}

func TestUpdateAndListLeads(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(map[string]interface{}{"name": "Meera"})

	rec := s.doJSON(http.MethodPut, "/api/leads/"+lead.ID.String(), s.staffToken, map[string]interface{}{
		"lead_stage": "factory_visit",
		"remarks":    "Visiting Saturday",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.LeadView](t, rec)
	assert.Equal(t, model.StageFactoryVisit, updated.Stage)
	assert.Equal(t, "Meera", updated.Name)

	rec = s.do(http.MethodGet, "/api/leads?stage=factory_visit&page=abc", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[service.Page[model.LeadView]](t, rec)
	assert.Equal(t, 1, page.Number)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Visiting Saturday", page.Items[0].Remarks)
}

func TestDeleteLeadRequiresSuperuser(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(map[string]interface{}{"name": "Meera"})

	rec := s.do(http.MethodDelete, "/api/leads/"+lead.ID.String(), s.staffToken, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, "/api/leads/"+lead.ID.String(), s.adminToken, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/leads/"+lead.ID.String(), s.staffToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(map[string]interface{}{"name": "Meera"})

	rec := s.doJSON(http.MethodPost, "/api/leads/"+lead.ID.String()+"/activities", s.staffToken, map[string]string{
		"activity_type": "task",
		"description":   "Send fabric samples",
		"due_date":      "2024-01-06T10:00",
		"priority":      "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[model.ActivityView](t, rec)
	require.NotNil(t, task.Task)
	assert.Equal(t, "06 Jan 2024, 10:00 AM", task.Task.DueIST)
	taskURL := fmt.Sprintf("/api/activities/%d", task.ID)

	rec = s.do(http.MethodPost, taskURL+"/toggle-complete", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	toggled := decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, toggled["is_completed"])
	assert.Equal(t, "Task marked as completed", toggled["message"])

	rec = s.doJSON(http.MethodPost, taskURL+"/notes", s.staffToken, map[string]string{"note": "Samples couriered"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Samples couriered", decode[model.TaskNoteView](t, rec).Note)

	rec = s.doJSON(http.MethodPost, taskURL+"/postpone", s.staffToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPost, taskURL+"/postpone", s.staffToken, map[string]string{"new_due_date": "2024-01-08T18:15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Task postponed from 06 Jan 2024, 10:00 AM to 08 Jan 2024, 06:15 PM",
		decode[map[string]interface{}](t, rec)["message"])

	rec = s.do(http.MethodPost, "/api/activities/9999/toggle-complete", s.staffToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/tasks?state=completed", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[service.Page[model.ActivityView]](t, rec)
	require.Len(t, tasks.Items, 1)
	assert.Equal(t, "Meera", tasks.Items[0].LeadName)

	rec = s.do(http.MethodGet, "/api/tasks?state=whenever", s.staffToken, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadCall(t *testing.T, s *testServer, leadID uuid.UUID) model.ActivityView {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("activity_type", "call"))
	require.NoError(t, w.WriteField("description", "Discussed sofa sizes"))
	part, err := w.CreateFormFile("recording", "voice.mp3")
	require.NoError(t, err)
	_, err = part.Write([]byte("ID3-audio"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := s.do(http.MethodPost, "/api/leads/"+leadID.String()+"/activities", s.staffToken, w.FormDataContentType(), &body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.ActivityView](t, rec)
}

func TestCallRecordings(t *testing.T) {
	s := newTestServer(t)
	lead := s.createLead(map[string]interface{}{"name": "John O'Brien"})

	call := uploadCall(t, s, lead.ID)
	require.NotNil(t, call.Call)
	assert.Equal(t, "Call Recordings/John_O_Brien__20240105_090000.mp3", call.Call.Recording)

	rec := s.do(http.MethodGet, "/api/call-recordings", s.staffToken, "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/leads", rec.Header().Get(echo.HeaderLocation))

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/call-recordings/%d/file", call.ID), s.staffToken, "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/call-recordings?search=brien", s.adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[struct {
		Recordings service.Page[model.ActivityView] `json:"recordings"`
		Search     string                           `json:"search"`
	}](t, rec)
	assert.Equal(t, "brien", listing.Search)
	require.Len(t, listing.Recordings.Items, 1)
	assert.Equal(t, call.ID, listing.Recordings.Items[0].ID)

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/call-recordings/%d/file", call.ID), s.adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3-audio", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "John_O_Brien__20240105_090000.mp3")
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)
	sofa := s.categoryID(model.CategorySofa)

	payload := map[string]interface{}{"category_id": sofa, "name": "Chesterfield", "price": "45000"}
	rec := s.doJSON(http.MethodPost, "/api/products", s.staffToken, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	product := decode[model.Product](t, rec)

	rec = s.doJSON(http.MethodPost, "/api/products", s.staffToken, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/products", s.staffToken, map[string]interface{}{"category_id": sofa})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/products?category_id=%d&is_active=true", sofa), s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Product](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/categories", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	categories := decode[[]service.CategorySummary](t, rec)
	require.Len(t, categories, len(model.CategoryNames))
	assert.Equal(t, int64(1), categories[0].ProductCount)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/products/%d", product.ID), s.staffToken, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, fmt.Sprintf("/api/products/%d", product.ID), s.staffToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)

	payload := map[string]interface{}{"username": "ravi", "password": "ravi-pass-1"}
	rec := s.doJSON(http.MethodPost, "/api/users", s.staffToken, payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/users", s.adminToken, map[string]interface{}{"username": "ravi", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.doJSON(http.MethodPost, "/api/users", s.adminToken, payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]interface{}](t, rec)

	rec = s.doJSON(http.MethodPost, "/api/users", s.adminToken, payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/users/managers", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 3)

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/users/%v", created["id"]), s.adminToken, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportLeads(t *testing.T) {
	s := newTestServer(t)
	s.createLead(map[string]interface{}{"name": "Meera"})

	rec := s.do(http.MethodGet, "/api/leads/export?format=csv", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "attachment; filename=leads.csv", rec.Header().Get(echo.HeaderContentDisposition))
	assert.Contains(t, rec.Body.String(), "Meera")

	rec = s.do(http.MethodGet, "/api/leads/export", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=leads.xlsx", rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = s.do(http.MethodGet, "/api/leads/export?format=pdf", s.staffToken, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)
	s.createLead(map[string]interface{}{"name": "Meera"})

	rec := s.do(http.MethodGet, "/api/dashboard", s.staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[service.Dashboard](t, rec)
	assert.Equal(t, int64(1), d.TotalLeads)
	assert.Equal(t, int64(1), d.LeadsByStatus[model.StatusActive])
}
