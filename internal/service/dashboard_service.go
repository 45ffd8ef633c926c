package service

import (
	"context"
	"fmt"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/clock"
	"crm-service/prometheus"

	"gorm.io/gorm"
)

// Dashboard is the landing page summary
type Dashboard struct {
	TotalLeads     int64                        `json:"total_leads"`
	LeadsByStatus  map[model.LeadStatus]int64   `json:"leads_by_status"`
	LeadsByStage   map[model.LeadStage]int64    `json:"leads_by_stage"`
	OpenTasks      int64                        `json:"open_tasks"`
	OverdueTasks   int64                        `json:"overdue_tasks"`
	ActivityCounts map[model.ActivityType]int64 `json:"activity_counts"`
	GeneratedAt    time.Time                    `json:"generated_at"`
	GeneratedIST   string                       `json:"generated_at_ist"`
}

// DashboardService aggregates counts for the dashboard
type DashboardService struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewDashboardService creates a dashboard service
func NewDashboardService(db *gorm.DB, clk clock.Clock) *DashboardService {
	return &DashboardService{db: db, clock: clk}
}

type groupCount struct {
	GroupKey string
	Total    int64
}

// Summary counts leads per status and stage, and open and overdue tasks
func (s *DashboardService) Summary(ctx context.Context) (*Dashboard, error) {
	defer prometheus.TrackDBOperation("dashboard")(time.Now())
	db := s.db.WithContext(ctx)
	now := s.clock.Now()

	d := &Dashboard{
		LeadsByStatus:  make(map[model.LeadStatus]int64, len(model.LeadStatuses)),
		LeadsByStage:   make(map[model.LeadStage]int64, len(model.LeadStages)),
		ActivityCounts: make(map[model.ActivityType]int64),
		GeneratedAt:    now,
		GeneratedIST:   clock.Display(now),
	}
	for _, status := range model.LeadStatuses {
		d.LeadsByStatus[status] = 0
	}
	for _, stage := range model.LeadStages {
		d.LeadsByStage[stage] = 0
	}

	byStatus, err := countBy(db.Model(&model.Lead{}), "lead_status")
	if err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		d.LeadsByStatus[model.LeadStatus(row.GroupKey)] = row.Total
		d.TotalLeads += row.Total
	}

	byStage, err := countBy(db.Model(&model.Lead{}), "lead_stage")
	if err != nil {
		return nil, err
	}
	for _, row := range byStage {
		d.LeadsByStage[model.LeadStage(row.GroupKey)] = row.Total
	}

	byType, err := countBy(db.Model(&model.Activity{}), "activity_type")
	if err != nil {
		return nil, err
	}
	for _, row := range byType {
		d.ActivityCounts[model.ActivityType(row.GroupKey)] = row.Total
	}

	var open []model.Activity
	if err := db.Select("id", "activity_type", "due_date", "is_completed").
		Where("activity_type = ? AND is_completed = ?", model.ActivityTask, false).
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("load open tasks: %w", err)
	}
	d.OpenTasks = int64(len(open))
	for i := range open {
		if open[i].IsOverdue(now) {
			d.OverdueTasks++
		}
	}
	return d, nil
}

func countBy(query *gorm.DB, column string) ([]groupCount, error) {
	var rows []groupCount
	err := query.Select(column + " AS group_key, COUNT(*) AS total").Group(column).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	return rows, nil
}
