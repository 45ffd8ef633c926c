package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LeadSource is the channel a lead came in through
type LeadSource string

const (
	SourceWhatsApp  LeadSource = "whatsapp"
	SourceInstagram LeadSource = "instagram"
	SourceFacebook  LeadSource = "facebook"
	SourceWebsite   LeadSource = "website"
)

// Valid reports whether s is a known source. The empty source is allowed.
func (s LeadSource) Valid() bool {
	switch s {
	case "", SourceWhatsApp, SourceInstagram, SourceFacebook, SourceWebsite:
		return true
	}
	return false
}

// LeadStatus is the relationship status of a lead
type LeadStatus string

const (
	StatusActive   LeadStatus = "active"
	StatusInactive LeadStatus = "inactive"
	StatusCustomer LeadStatus = "customer"
)

// LeadStatuses lists the statuses in display order
var LeadStatuses = []LeadStatus{StatusActive, StatusInactive, StatusCustomer}

// Valid reports whether s is a known status
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusCustomer:
		return true
	}
	return false
}

// LeadStage is the position of a lead in the sales pipeline
type LeadStage string

const (
	StageColdFollowUp LeadStage = "cold_follow_up"
	StageWarmFollowUp LeadStage = "warm_follow_up"
	StageFactoryVisit LeadStage = "factory_visit"
	StageProduction   LeadStage = "production"
	StageDelivered    LeadStage = "delivered"
	StageNotFit       LeadStage = "not_fit"
)

// LeadStages lists the stages in pipeline order
var LeadStages = []LeadStage{
	StageColdFollowUp, StageWarmFollowUp, StageFactoryVisit,
	StageProduction, StageDelivered, StageNotFit,
}

// Valid reports whether s is a known stage
func (s LeadStage) Valid() bool {
	for _, stage := range LeadStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Lead is a prospective or existing customer
type Lead struct {
	ID                   uuid.UUID                        `json:"lead_id" gorm:"type:uuid;primaryKey"`
	LeadSource           LeadSource                       `json:"leadsource" gorm:"column:leadsource;type:varchar(20)"`
	Name                 string                           `json:"name" gorm:"type:varchar(200);index"`
	Email                string                           `json:"email" gorm:"type:varchar(254);index"`
	Address              string                           `json:"address" gorm:"type:text"`
	Pincode              string                           `json:"pincode" gorm:"type:varchar(10);index"`
	Number               string                           `json:"number" gorm:"type:varchar(15);index"`
	WhatsAppURL          string                           `json:"whatsapp_url" gorm:"column:whatsapp_url;type:varchar(200)"`
	Notes                string                           `json:"notes" gorm:"type:text"`
	Remarks              string                           `json:"remarks" gorm:"type:text"`
	Status               LeadStatus                       `json:"lead_status" gorm:"column:lead_status;type:varchar(20);not null;index"`
	Stage                LeadStage                        `json:"lead_stage" gorm:"column:lead_stage;type:varchar(20);not null;index"`
	Activity             string                           `json:"activity" gorm:"type:varchar(500)"`
	Task                 string                           `json:"task" gorm:"type:varchar(500)"`
	InterestedCategories string                           `json:"interested_categories" gorm:"type:varchar(500)"`
	CreatedAt            time.Time                        `json:"created_date" gorm:"index"`
	ManagerID            *uint                            `json:"lead_manager_id" gorm:"column:lead_manager_id;index"`
	Manager              *User                            `json:"lead_manager,omitempty" gorm:"foreignKey:ManagerID;constraint:OnDelete:SET NULL"`
	Categories           []Category                       `json:"categories" gorm:"many2many:lead_categories"`
	ProductsData         datatypes.JSONType[ProductsData] `json:"products_data"`
}

// BeforeCreate assigns the external identifier
func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// DisplayName is the lead name or "Unknown"
func (l *Lead) DisplayName() string {
	if l.Name == "" {
		return "Unknown"
	}
	return l.Name
}

// WhatsAppLink is the read-time deep link for the lead
func (l *Lead) WhatsAppLink() string {
	return WhatsAppLink(l.Number, l.WhatsAppURL)
}

// DeriveWhatsAppURL fills the stored link from the phone number when no link
// is stored yet. A stored link is never replaced.
func (l *Lead) DeriveWhatsAppURL() {
	if l.WhatsAppURL != "" {
		return
	}
	if digits := NormalizePhone(l.Number); digits != "" {
		l.WhatsAppURL = whatsAppPrefix + digits
	}
}

// ProductsSummary renders the product-interest payload
func (l *Lead) ProductsSummary() string {
	return l.ProductsData.Data().Summary()
}
