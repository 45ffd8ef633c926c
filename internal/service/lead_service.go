package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/clock"
	"crm-service/pkg/logger"
	"crm-service/pkg/storage"
	"crm-service/prometheus"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var validate = validator.New()

// LeadFields are the scalar fields of a lead form. A nil pointer leaves the
// field as it is; on create it means the default.
type LeadFields struct {
	LeadSource           *string
	Name                 *string
	Email                *string
	Address              *string
	Pincode              *string
	Number               *string
	WhatsAppURL          *string
	Notes                *string
	Remarks              *string
	Status               *string
	Stage                *string
	Activity             *string
	Task                 *string
	InterestedCategories *string
	// ManagerID selects the lead manager; 0 clears it. Unknown ids are ignored.
	ManagerID *uint
}

// ProductEntryInput is one product typed into the lead form under a category
type ProductEntryInput struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Notes string           `json:"notes"`
}

// LeadInput is a create or update submission. Categories and products are
// always replaced as a whole; empty collections clear them.
type LeadInput struct {
	Fields      LeadFields
	CategoryIDs []uint
	Products    map[uint][]ProductEntryInput
}

// LeadFilter narrows the lead list
type LeadFilter struct {
	Search string
	Status string
	Stage  string
	Page   int
}

// LeadService owns lead records and their product interest
type LeadService struct {
	db      *gorm.DB
	clock   clock.Clock
	storage storage.Storage
}

// NewLeadService creates a lead service. store holds the call recordings
// removed along with a lead and may be nil.
func NewLeadService(db *gorm.DB, clk clock.Clock, store storage.Storage) *LeadService {
	return &LeadService{db: db, clock: clk, storage: store}
}

// CreateLead inserts a new lead with its categories and product interest
func (s *LeadService) CreateLead(ctx context.Context, in LeadInput) (*model.LeadView, error) {
	log := logger.FromContext(ctx)
	defer prometheus.TrackDBOperation("lead_create")(time.Now())

	lead := &model.Lead{
		Status: model.StatusActive,
		Stage:  model.StageColdFollowUp,
	}
	if err := s.applyFields(ctx, lead, in.Fields); err != nil {
		log.Warn("Rejected lead creation", zap.Error(err))
		return nil, err
	}
	lead.DeriveWhatsAppURL()
	lead.CreatedAt = s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(lead).Error; err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		if err := replaceCategories(tx, lead, in.CategoryIDs); err != nil {
			return err
		}
		return replaceProducts(tx, lead, in.Products, s.clock.Now())
	})
	if err != nil {
		log.Error("Failed to create lead", zap.String("name", lead.Name), zap.Error(err))
		return nil, err
	}

	prometheus.RecordLeadOperation("create")
	log.Info("Lead created successfully",
		zap.String("lead_id", lead.ID.String()),
		zap.String("name", lead.Name),
		zap.String("status", string(lead.Status)),
		zap.String("stage", string(lead.Stage)))
	return s.GetLead(ctx, lead.ID)
}

// UpdateLead overwrites the submitted fields and replaces categories and products
func (s *LeadService) UpdateLead(ctx context.Context, id uuid.UUID, in LeadInput) (*model.LeadView, error) {
	log := logger.FromContext(ctx).With(zap.String("lead_id", id.String()))
	defer prometheus.TrackDBOperation("lead_update")(time.Now())

	lead, err := s.loadLead(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyFields(ctx, lead, in.Fields); err != nil {
		log.Warn("Rejected lead update", zap.Error(err))
		return nil, err
	}
	lead.DeriveWhatsAppURL()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(lead).Error; err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		if err := replaceCategories(tx, lead, in.CategoryIDs); err != nil {
			return err
		}
		return replaceProducts(tx, lead, in.Products, s.clock.Now())
	})
	if err != nil {
		log.Error("Failed to update lead", zap.Error(err))
		return nil, err
	}

	prometheus.RecordLeadOperation("update")
	log.Info("Lead updated successfully",
		zap.String("status", string(lead.Status)),
		zap.String("stage", string(lead.Stage)),
		zap.Int("categories", len(lead.Categories)))
	return s.GetLead(ctx, id)
}

// GetLead returns a lead with its activities, task notes and product associations
func (s *LeadService) GetLead(ctx context.Context, id uuid.UUID) (*model.LeadView, error) {
	defer prometheus.TrackDBOperation("lead_get")(time.Now())
	db := s.db.WithContext(ctx)

	var lead model.Lead
	err := db.Preload("Manager").
		Preload("Categories", func(tx *gorm.DB) *gorm.DB { return tx.Order("name") }).
		First(&lead, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var activities []model.Activity
	if err := db.Preload("CreatedBy").
		Where("lead_id = ?", id).
		Order("created_at DESC").Order("id DESC").
		Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}

	notes, err := loadTaskNotes(db, activities)
	if err != nil {
		return nil, err
	}

	var products []model.LeadProduct
	if err := db.Preload("Product.Category").
		Where("lead_id = ?", id).
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load lead products: %w", err)
	}
	sort.SliceStable(products, func(i, j int) bool {
		ci, cj := productCategory(products[i]), productCategory(products[j])
		if ci != cj {
			return ci < cj
		}
		return products[i].Product.Name < products[j].Product.Name
	})

	now := s.clock.Now()
	view := model.NewLeadView(lead)
	view.LeadProducts = make([]model.LeadProductView, 0, len(products))
	for _, lp := range products {
		view.LeadProducts = append(view.LeadProducts, model.NewLeadProductView(lp))
	}
	view.Activities = make([]model.ActivityView, 0, len(activities))
	for _, a := range activities {
		view.Activities = append(view.Activities, model.NewActivityView(a, notes[a.ID], now))
	}
	return &view, nil
}

// ListLeads returns one page of leads, newest first. Search matches name,
// number, email or pincode; status and stage must match exactly.
func (s *LeadService) ListLeads(ctx context.Context, f LeadFilter) (Page[model.LeadView], error) {
	defer prometheus.TrackDBOperation("lead_list")(time.Now())

	page, err := paginate[model.Lead](s.leadQuery(ctx, f), "created_at DESC", f.Page, preloadLeadRefs)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to list leads", zap.Error(err))
		return Page[model.LeadView]{}, err
	}
	return mapPage(page, model.NewLeadView), nil
}

func (s *LeadService) leadQuery(ctx context.Context, f LeadFilter) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&model.Lead{})

	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where(
			"(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(number) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(pincode) LIKE ? ESCAPE '\\')",
			pattern, pattern, pattern, pattern)
	}
	if f.Status != "" {
		query = query.Where("lead_status = ?", f.Status)
	}
	if f.Stage != "" {
		query = query.Where("lead_stage = ?", f.Stage)
	}
	return query.Session(&gorm.Session{})
}

func preloadLeadRefs(db *gorm.DB) *gorm.DB {
	return db.Preload("Manager").
		Preload("Categories", func(tx *gorm.DB) *gorm.DB { return tx.Order("name") })
}

// ListTaskLeads returns the leads whose free-text task field is filled in
func (s *LeadService) ListTaskLeads(ctx context.Context, page int) (Page[model.LeadView], error) {
	query := s.db.WithContext(ctx).Model(&model.Lead{}).
		Where("task IS NOT NULL AND task <> ''").
		Session(&gorm.Session{})

	p, err := paginate[model.Lead](query, "created_at DESC", page, preloadLeadRefs)
	if err != nil {
		return Page[model.LeadView]{}, err
	}
	return mapPage(p, model.NewLeadView), nil
}

// DeleteLead removes a lead together with its activities, task notes,
// product associations and category links
func (s *LeadService) DeleteLead(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx).With(zap.String("lead_id", id.String()))
	defer prometheus.TrackDBOperation("lead_delete")(time.Now())

	var recordings []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lead, err := s.loadLead(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := tx.Model(&model.Activity{}).Where("lead_id = ? AND recording <> ''", id).
			Pluck("recording", &recordings).Error; err != nil {
			return fmt.Errorf("list recordings: %w", err)
		}
		activityIDs := tx.Model(&model.Activity{}).Select("id").Where("lead_id = ?", id)
		if err := tx.Where("activity_id IN (?)", activityIDs).Delete(&model.TaskNote{}).Error; err != nil {
			return fmt.Errorf("delete task notes: %w", err)
		}
		if err := tx.Where("lead_id = ?", id).Delete(&model.Activity{}).Error; err != nil {
			return fmt.Errorf("delete activities: %w", err)
		}
		if err := tx.Where("lead_id = ?", id).Delete(&model.LeadProduct{}).Error; err != nil {
			return fmt.Errorf("delete lead products: %w", err)
		}
		if err := tx.Model(lead).Association("Categories").Clear(); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		return tx.Delete(lead).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("Failed to delete lead", zap.Error(err))
		}
		return err
	}

	removeRecordings(ctx, s.storage, recordings)
	prometheus.RecordLeadOperation("delete")
	log.Info("Lead deleted successfully", zap.Int("recordings_removed", len(recordings)))
	return nil
}

func (s *LeadService) loadLead(ctx context.Context, db *gorm.DB, id uuid.UUID) (*model.Lead, error) {
	var lead model.Lead
	err := db.WithContext(ctx).First(&lead, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// applyFields copies the submitted fields onto lead after validating the enums
func (s *LeadService) applyFields(ctx context.Context, lead *model.Lead, f LeadFields) error {
	if f.LeadSource != nil {
		source := model.LeadSource(strings.TrimSpace(*f.LeadSource))
		if !source.Valid() {
			return validationf("Invalid lead source %q.", source)
		}
		lead.LeadSource = source
	}
	if f.Status != nil {
		status := model.LeadStatus(strings.TrimSpace(*f.Status))
		if !status.Valid() {
			return validationf("Invalid lead status %q.", status)
		}
		lead.Status = status
	}
	if f.Stage != nil {
		stage := model.LeadStage(strings.TrimSpace(*f.Stage))
		if !stage.Valid() {
			return validationf("Invalid lead stage %q.", stage)
		}
		lead.Stage = stage
	}

	setString(&lead.Name, f.Name)
	setString(&lead.Email, f.Email)
	if lead.Email != "" && validate.Var(lead.Email, "email") != nil {
		return validationf("Enter a valid email address.")
	}
	setString(&lead.Address, f.Address)
	setString(&lead.Pincode, f.Pincode)
	setString(&lead.Number, f.Number)
	setString(&lead.WhatsAppURL, f.WhatsAppURL)
	setString(&lead.Notes, f.Notes)
	setString(&lead.Remarks, f.Remarks)
	setString(&lead.Activity, f.Activity)
	setString(&lead.Task, f.Task)
	setString(&lead.InterestedCategories, f.InterestedCategories)

	if f.ManagerID != nil {
		if *f.ManagerID == 0 {
			lead.ManagerID = nil
			lead.Manager = nil
			return nil
		}
		var manager model.User
		err := s.db.WithContext(ctx).First(&manager, *f.ManagerID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			logger.FromContext(ctx).Warn("Ignoring unknown lead manager", zap.Uint("manager_id", *f.ManagerID))
		case err != nil:
			return fmt.Errorf("look up manager: %w", err)
		default:
			lead.ManagerID = &manager.ID
			lead.Manager = &manager
		}
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// replaceCategories sets the lead's category links to exactly ids
func replaceCategories(tx *gorm.DB, lead *model.Lead, ids []uint) error {
	ids = uniqueIDs(ids)
	var categories []model.Category
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Order("name").Find(&categories).Error; err != nil {
			return fmt.Errorf("load categories: %w", err)
		}
		if len(categories) != len(ids) {
			return validationf("Unknown category selected.")
		}
	}

	association := tx.Model(lead).Association("Categories")
	if len(categories) == 0 {
		if err := association.Clear(); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
	} else if err := association.Replace(categories); err != nil {
		return fmt.Errorf("replace categories: %w", err)
	}
	lead.Categories = categories
	return nil
}

// replaceProducts rebuilds the lead's product associations and the
// denormalized payload from the submitted entries. Products that do not
// exist in the catalog yet are created active.
func replaceProducts(tx *gorm.DB, lead *model.Lead, entries map[uint][]ProductEntryInput, now time.Time) error {
	if err := tx.Where("lead_id = ?", lead.ID).Delete(&model.LeadProduct{}).Error; err != nil {
		return fmt.Errorf("clear lead products: %w", err)
	}

	categoryIDs := make([]uint, 0, len(entries))
	for id := range entries {
		categoryIDs = append(categoryIDs, id)
	}
	sort.Slice(categoryIDs, func(i, j int) bool { return categoryIDs[i] < categoryIDs[j] })

	data := model.ProductsData{}
	for _, categoryID := range categoryIDs {
		var category model.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationf("Unknown product category %d.", categoryID)
			}
			return fmt.Errorf("load category: %w", err)
		}

		group := model.CategoryProducts{CategoryName: category.DisplayName()}
		for _, entry := range entries[categoryID] {
			name := strings.TrimSpace(entry.Name)
			if name == "" {
				continue
			}
			if entry.Price != nil && entry.Price.IsNegative() {
				return validationf("Price for %s cannot be negative.", name)
			}

			product, err := findOrCreateProduct(tx, category.ID, name, now)
			if err != nil {
				return err
			}
			if err := upsertLeadProduct(tx, lead.ID, product.ID, entry, now); err != nil {
				return err
			}
			group.Products = append(group.Products, model.ProductEntry{
				Name:  name,
				Price: entry.Price,
				Notes: strings.TrimSpace(entry.Notes),
			})
		}
		if len(group.Products) > 0 {
			data[strconv.FormatUint(uint64(categoryID), 10)] = group
		}
	}

	lead.ProductsData = datatypes.NewJSONType(data)
	if err := tx.Model(lead).Update("products_data", lead.ProductsData).Error; err != nil {
		return fmt.Errorf("save products data: %w", err)
	}
	return nil
}

func findOrCreateProduct(tx *gorm.DB, categoryID uint, name string, now time.Time) (*model.Product, error) {
	var product model.Product
	err := tx.Where("category_id = ? AND name = ?", categoryID, name).First(&product).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("look up product: %w", err)
	}

	product = model.Product{
		CategoryID: categoryID,
		Name:       name,
		IsActive:   true,
		CreatedAt:  now,
	}
	if err := tx.Omit(clause.Associations).Create(&product).Error; err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &product, nil
}

func upsertLeadProduct(tx *gorm.DB, leadID uuid.UUID, productID uint, entry ProductEntryInput, now time.Time) error {
	price := decimal.NullDecimal{}
	if entry.Price != nil {
		price = decimal.NewNullDecimal(*entry.Price)
	}

	var lp model.LeadProduct
	err := tx.Where("lead_id = ? AND product_id = ?", leadID, productID).First(&lp).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		lp = model.LeadProduct{
			LeadID:      leadID,
			ProductID:   productID,
			Quantity:    1,
			Notes:       strings.TrimSpace(entry.Notes),
			PriceQuoted: price,
			CreatedAt:   now,
		}
		if err := tx.Omit(clause.Associations).Create(&lp).Error; err != nil {
			return fmt.Errorf("create lead product: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("look up lead product: %w", err)
	}

	return tx.Model(&lp).Updates(map[string]interface{}{
		"quantity":     1,
		"notes":        strings.TrimSpace(entry.Notes),
		"price_quoted": price,
	}).Error
}

func loadTaskNotes(db *gorm.DB, activities []model.Activity) (map[uint][]model.TaskNote, error) {
	var taskIDs []uint
	for _, a := range activities {
		if a.Type == model.ActivityTask {
			taskIDs = append(taskIDs, a.ID)
		}
	}
	notes := make(map[uint][]model.TaskNote, len(taskIDs))
	if len(taskIDs) == 0 {
		return notes, nil
	}

	var rows []model.TaskNote
	if err := db.Preload("CreatedBy").
		Where("activity_id IN ?", taskIDs).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load task notes: %w", err)
	}
	for _, n := range rows {
		notes[n.ActivityID] = append(notes[n.ActivityID], n)
	}
	return notes, nil
}

func productCategory(lp model.LeadProduct) string {
	if lp.Product == nil || lp.Product.Category == nil {
		return ""
	}
	return string(lp.Product.Category.Name)
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// likePattern lowercases s and escapes LIKE wildcards for a contains match
func likePattern(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return "%" + s + "%"
}
