package model

import (
	"time"

	"crm-service/pkg/clock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserRef is the short form of a staff user embedded in other views
type UserRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func userRef(u *User) *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, Name: u.FullName()}
}

// CategoryView is a category with its label
type CategoryView struct {
	ID          uint         `json:"id"`
	Name        CategoryName `json:"name"`
	DisplayName string       `json:"display_name"`
}

// NewCategoryView builds the view of c
func NewCategoryView(c Category) CategoryView {
	return CategoryView{ID: c.ID, Name: c.Name, DisplayName: c.DisplayName()}
}

// LeadProductView is a product association as shown on the lead page
type LeadProductView struct {
	ProductID   uint                `json:"product_id"`
	Product     string              `json:"product"`
	Category    string              `json:"category"`
	Quantity    uint                `json:"quantity"`
	Notes       string              `json:"notes"`
	PriceQuoted decimal.NullDecimal `json:"price_quoted"`
}

// NewLeadProductView builds the view of lp. The product should be preloaded.
func NewLeadProductView(lp LeadProduct) LeadProductView {
	v := LeadProductView{
		ProductID:   lp.ProductID,
		Quantity:    lp.Quantity,
		Notes:       lp.Notes,
		PriceQuoted: lp.PriceQuoted,
	}
	if lp.Product != nil {
		v.Product = lp.Product.Name
		if lp.Product.Category != nil {
			v.Category = lp.Product.Category.DisplayName()
		}
	}
	return v
}

// TaskNoteView is a note with its IST timestamp
type TaskNoteView struct {
	ID          uint      `json:"id"`
	Note        string    `json:"note"`
	CreatedBy   *UserRef  `json:"created_by,omitempty"`
	CreatedDate time.Time `json:"created_date"`
	CreatedIST  string    `json:"created_date_ist"`
}

// NewTaskNoteView builds the view of n
func NewTaskNoteView(n TaskNote) TaskNoteView {
	return TaskNoteView{
		ID:          n.ID,
		Note:        n.Note,
		CreatedBy:   userRef(n.CreatedBy),
		CreatedDate: clock.ToUTC(n.CreatedAt),
		CreatedIST:  clock.Display(n.CreatedAt),
	}
}

// CallView holds the call-only fields
type CallView struct {
	Recording string `json:"recording,omitempty"`
}

// TaskView holds the task-only fields
type TaskView struct {
	DueDate     *time.Time     `json:"due_date"`
	DueIST      string         `json:"due_date_ist,omitempty"`
	Priority    Priority       `json:"priority,omitempty"`
	IsCompleted bool           `json:"is_completed"`
	IsOverdue   bool           `json:"is_overdue"`
	Notes       []TaskNoteView `json:"notes"`
}

// ActivityView is one timeline entry. Only the block matching the type is set.
type ActivityView struct {
	ID          uint         `json:"id"`
	LeadID      uuid.UUID    `json:"lead_id"`
	LeadName    string       `json:"lead_name,omitempty"`
	Type        ActivityType `json:"activity_type"`
	Description string       `json:"description"`
	CreatedBy   *UserRef     `json:"created_by,omitempty"`
	CreatedDate time.Time    `json:"created_date"`
	CreatedIST  string       `json:"created_date_ist"`
	Call        *CallView    `json:"call,omitempty"`
	Task        *TaskView    `json:"task,omitempty"`
}

// NewActivityView builds the view of a, evaluating the overdue check at now
func NewActivityView(a Activity, notes []TaskNote, now time.Time) ActivityView {
	v := ActivityView{
		ID:          a.ID,
		LeadID:      a.LeadID,
		Type:        a.Type,
		Description: a.Description,
		CreatedBy:   userRef(a.CreatedBy),
		CreatedDate: clock.ToUTC(a.CreatedAt),
		CreatedIST:  clock.Display(a.CreatedAt),
	}
	if a.Lead != nil {
		v.LeadName = a.Lead.DisplayName()
	}

	switch d := a.Details().(type) {
	case CallDetails:
		v.Call = &CallView{Recording: d.RecordingPath}
	case TaskDetails:
		tv := &TaskView{
			Priority:    d.Priority,
			IsCompleted: d.Completed,
			IsOverdue:   a.IsOverdue(now),
			Notes:       make([]TaskNoteView, 0, len(notes)),
		}
		if d.DueDate != nil {
			due := clock.ToUTC(*d.DueDate)
			tv.DueDate = &due
			tv.DueIST = clock.Display(due)
		}
		for _, n := range notes {
			tv.Notes = append(tv.Notes, NewTaskNoteView(n))
		}
		v.Task = tv
	}
	return v
}

// LeadView is the lead as presented to staff, with every derived field resolved
type LeadView struct {
	ID                   uuid.UUID                 `json:"lead_id"`
	LeadSource           LeadSource                `json:"leadsource,omitempty"`
	Name                 string                    `json:"name"`
	Email                string                    `json:"email"`
	Address              string                    `json:"address"`
	Pincode              string                    `json:"pincode"`
	Number               string                    `json:"number"`
	WhatsAppURL          string                    `json:"whatsapp_url"`
	WhatsAppLink         string                    `json:"whatsapp_link"`
	Notes                string                    `json:"notes"`
	Remarks              string                    `json:"remarks"`
	Status               LeadStatus                `json:"lead_status"`
	Stage                LeadStage                 `json:"lead_stage"`
	Activity             string                    `json:"activity"`
	Task                 string                    `json:"task"`
	InterestedCategories string                    `json:"interested_categories"`
	CreatedDate          time.Time                 `json:"created_date"`
	CreatedIST           string                    `json:"created_date_ist"`
	Manager              *UserRef                  `json:"lead_manager,omitempty"`
	Categories           []CategoryView            `json:"categories"`
	ProductsData         ProductsData              `json:"products_data"`
	ProductsSummary      string                    `json:"products_summary"`
	ProductsByCategory   map[string][]ProductEntry `json:"products_by_category"`
	LeadProducts         []LeadProductView         `json:"lead_products,omitempty"`
	Activities           []ActivityView            `json:"activities,omitempty"`
}

// NewLeadView builds the list form of a lead, without children
func NewLeadView(l Lead) LeadView {
	data := l.ProductsData.Data()
	v := LeadView{
		ID:                   l.ID,
		LeadSource:           l.LeadSource,
		Name:                 l.Name,
		Email:                l.Email,
		Address:              l.Address,
		Pincode:              l.Pincode,
		Number:               l.Number,
		WhatsAppURL:          l.WhatsAppURL,
		WhatsAppLink:         l.WhatsAppLink(),
		Notes:                l.Notes,
		Remarks:              l.Remarks,
		Status:               l.Status,
		Stage:                l.Stage,
		Activity:             l.Activity,
		Task:                 l.Task,
		InterestedCategories: l.InterestedCategories,
		CreatedDate:          clock.ToUTC(l.CreatedAt),
		CreatedIST:           clock.Display(l.CreatedAt),
		Manager:              userRef(l.Manager),
		Categories:           make([]CategoryView, 0, len(l.Categories)),
		ProductsData:         data,
		ProductsSummary:      data.Summary(),
		ProductsByCategory:   data.ByCategory(),
	}
	for _, c := range l.Categories {
		v.Categories = append(v.Categories, NewCategoryView(c))
	}
	return v
}
