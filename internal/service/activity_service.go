package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/clock"
	"crm-service/pkg/logger"
	"crm-service/pkg/storage"
	"crm-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Task list states
const (
	TaskStateAll       = ""
	TaskStateOpen      = "open"
	TaskStateCompleted = "completed"
	TaskStateOverdue   = "overdue"
)

// TaskFilter narrows the task list
type TaskFilter struct {
	State string
	Page  int
}

// RecordingFilter narrows the call recordings list
type RecordingFilter struct {
	Search string
	Page   int
}

// PostponeResult reports a due date change in IST
type PostponeResult struct {
	ActivityID uint       `json:"activity_id"`
	OldDueDate *time.Time `json:"old_due_date"`
	NewDueDate time.Time  `json:"new_due_date"`
	OldDueIST  string     `json:"old_due_date_ist"`
	NewDueIST  string     `json:"new_due_date_ist"`
}

// Recording is an open call recording
type Recording struct {
	Filename string
	Content  io.ReadCloser
}

// ActivityService records activities on leads and manages task follow-ups
type ActivityService struct {
	db      *gorm.DB
	clock   clock.Clock
	storage storage.Storage
}

// NewActivityService creates an activity service. store may be nil when
// call recordings are not accepted.
func NewActivityService(db *gorm.DB, clk clock.Clock, store storage.Storage) *ActivityService {
	return &ActivityService{db: db, clock: clk, storage: store}
}

// BuildDetails turns raw form values into the details of the given activity
// type. dueDate is an IST wall-clock string and may be empty.
func BuildDetails(activityType string, recording *model.Upload, dueDate, priority string) (model.ActivityDetails, error) {
	switch model.ActivityType(strings.TrimSpace(activityType)) {
	case model.ActivityCall:
		return model.CallDetails{Upload: recording}, nil
	case model.ActivityNote:
		return model.NoteDetails{}, nil
	case model.ActivityPurchase:
		return model.PurchaseDetails{}, nil
	case model.ActivityTask:
		details := model.TaskDetails{Priority: model.Priority(strings.TrimSpace(priority))}
		if !details.Priority.Valid() {
			return nil, validationf("Invalid priority %q.", priority)
		}
		if strings.TrimSpace(dueDate) != "" {
			due, err := clock.ParseLocal(dueDate)
			if err != nil {
				return nil, validationf("Invalid date format.")
			}
			details.DueDate = &due
		}
		return details, nil
	case "":
		return nil, validationf("Activity type and description are required.")
	default:
		return nil, validationf("Invalid activity type %q.", activityType)
	}
}

// AddActivity appends an activity to the lead's timeline. A call recording
// is stored as "Call Recordings/<customer>__<timestamp>.<ext>".
func (s *ActivityService) AddActivity(ctx context.Context, leadID uuid.UUID, actor Actor, description string, details model.ActivityDetails) (*model.ActivityView, error) {
	log := logger.FromContext(ctx).With(zap.String("lead_id", leadID.String()))
	defer prometheus.TrackDBOperation("activity_create")(time.Now())

	description = strings.TrimSpace(description)
	if details == nil || description == "" {
		return nil, validationf("Activity type and description are required.")
	}

	var lead model.Lead
	if err := s.db.WithContext(ctx).First(&lead, "id = ?", leadID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	activity := model.Activity{
		LeadID:      leadID,
		Type:        details.ActivityType(),
		Description: description,
		CreatedByID: actor.UserID,
		CreatedAt:   now,
	}

	switch d := details.(type) {
	case model.CallDetails:
		if d.Upload != nil {
			ref, err := s.storeRecording(ctx, lead.Name, d.Upload, now)
			if err != nil {
				log.Error("Failed to store call recording", zap.String("upload", d.Upload.Filename), zap.Error(err))
				return nil, err
			}
			activity.Recording = ref
		}
	case model.TaskDetails:
		activity.DueDate = d.DueDate
		activity.Priority = d.Priority
		activity.IsCompleted = false
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&activity).Error; err != nil {
		if activity.Recording != "" {
			if rmErr := s.storage.Remove(ctx, activity.Recording); rmErr != nil {
				log.Warn("Failed to remove orphaned recording", zap.String("recording", activity.Recording), zap.Error(rmErr))
			}
		}
		log.Error("Failed to create activity", zap.String("activity_type", string(activity.Type)), zap.Error(err))
		return nil, fmt.Errorf("insert activity: %w", err)
	}

	prometheus.RecordActivity(string(activity.Type))
	log.Info("Activity added successfully",
		zap.Uint("activity_id", activity.ID),
		zap.String("activity_type", string(activity.Type)),
		zap.String("recording", activity.Recording))

	activity.Lead = &lead
	var author model.User
	if err := s.db.WithContext(ctx).First(&author, actor.UserID).Error; err == nil {
		activity.CreatedBy = &author
	}
	view := model.NewActivityView(activity, nil, now)
	return &view, nil
}

func (s *ActivityService) storeRecording(ctx context.Context, customerName string, upload *model.Upload, at time.Time) (string, error) {
	if s.storage == nil {
		return "", errors.New("recording storage is not configured")
	}
	filename := model.RecordingFilename(customerName, upload.Filename, at)
	counter := &countingReader{r: upload.Content}
	ref, err := s.storage.Save(ctx, model.RecordingPath(filename), counter)
	if err != nil {
		return "", err
	}
	prometheus.AddRecordingBytes(counter.n)
	return ref, nil
}

// removeRecordings deletes stored files whose activities are gone. Failures
// are logged and do not undo the delete.
func removeRecordings(ctx context.Context, store storage.Storage, refs []string) {
	if store == nil {
		return
	}
	log := logger.FromContext(ctx)
	for _, ref := range refs {
		if err := store.Remove(ctx, ref); err != nil {
			log.Warn("Failed to remove recording", zap.String("recording", ref), zap.Error(err))
		}
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// loadTask returns the activity if it exists and is a task
func (s *ActivityService) loadTask(ctx context.Context, tx *gorm.DB, id uint) (*model.Activity, error) {
	var activity model.Activity
	if err := tx.WithContext(ctx).First(&activity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if activity.Type != model.ActivityTask {
		return nil, validationf("Activity %d is not a task.", id)
	}
	return &activity, nil
}

// ToggleTaskComplete flips the completion flag and returns the new value
func (s *ActivityService) ToggleTaskComplete(ctx context.Context, id uint) (bool, error) {
	log := logger.FromContext(ctx).With(zap.Uint("activity_id", id))
	defer prometheus.TrackDBOperation("task_toggle")(time.Now())

	var completed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := s.loadTask(ctx, tx, id)
		if err != nil {
			return err
		}
		completed = !task.IsCompleted
		return tx.Model(task).Update("is_completed", completed).Error
	})
	if err != nil {
		log.Warn("Failed to toggle task", zap.Error(err))
		return false, err
	}

	prometheus.RecordTaskOperation("toggle")
	log.Info("Task completion toggled", zap.Bool("is_completed", completed))
	return completed, nil
}

// AddTaskNote appends a note to a task
func (s *ActivityService) AddTaskNote(ctx context.Context, id uint, actor Actor, note string) (*model.TaskNoteView, error) {
	log := logger.FromContext(ctx).With(zap.Uint("activity_id", id))
	defer prometheus.TrackDBOperation("task_note_create")(time.Now())

	note = strings.TrimSpace(note)
	if note == "" {
		return nil, validationf("Note content is required.")
	}
	if _, err := s.loadTask(ctx, s.db, id); err != nil {
		return nil, err
	}

	taskNote := model.TaskNote{
		ActivityID:  id,
		Note:        note,
		CreatedByID: actor.UserID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&taskNote).Error; err != nil {
		log.Error("Failed to add task note", zap.Error(err))
		return nil, fmt.Errorf("insert task note: %w", err)
	}

	prometheus.RecordTaskOperation("note")
	log.Info("Task note added", zap.Uint("note_id", taskNote.ID))

	var author model.User
	if err := s.db.WithContext(ctx).First(&author, actor.UserID).Error; err == nil {
		taskNote.CreatedBy = &author
	}
	view := model.NewTaskNoteView(taskNote)
	return &view, nil
}

// PostponeTask moves a task's due date. newDate is an IST wall-clock string.
func (s *ActivityService) PostponeTask(ctx context.Context, id uint, newDate string) (*PostponeResult, error) {
	log := logger.FromContext(ctx).With(zap.Uint("activity_id", id))
	defer prometheus.TrackDBOperation("task_postpone")(time.Now())

	task, err := s.loadTask(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(newDate) == "" {
		return nil, validationf("New due date is required.")
	}
	due, err := clock.ParseLocal(newDate)
	if err != nil {
		return nil, validationf("Invalid date format.")
	}

	result := &PostponeResult{
		ActivityID: id,
		OldDueDate: task.DueDate,
		NewDueDate: due,
		OldDueIST:  "Not set",
		NewDueIST:  clock.Display(due),
	}
	if task.DueDate != nil {
		old := clock.ToUTC(*task.DueDate)
		result.OldDueDate = &old
		result.OldDueIST = clock.Display(old)
	}

	if err := s.db.WithContext(ctx).Model(task).Update("due_date", due).Error; err != nil {
		log.Error("Failed to postpone task", zap.Error(err))
		return nil, fmt.Errorf("update due date: %w", err)
	}

	prometheus.RecordTaskOperation("postpone")
	log.Info("Task postponed",
		zap.String("old_due_date", result.OldDueIST),
		zap.String("new_due_date", result.NewDueIST))
	return result, nil
}

// ListTasks returns task activities across all leads. Tasks with a due date
// come first, earliest due first.
func (s *ActivityService) ListTasks(ctx context.Context, f TaskFilter) (Page[model.ActivityView], error) {
	defer prometheus.TrackDBOperation("task_list")(time.Now())

	query := s.db.WithContext(ctx).
		Preload("Lead").
		Preload("CreatedBy").
		Where("activity_type = ?", model.ActivityTask)

	switch f.State {
	case TaskStateAll:
	case TaskStateOpen, TaskStateOverdue:
		query = query.Where("is_completed = ?", false)
	case TaskStateCompleted:
		query = query.Where("is_completed = ?", true)
	default:
		return Page[model.ActivityView]{}, validationf("Invalid task state %q.", f.State)
	}

	var tasks []model.Activity
	if err := query.Order("created_at DESC").Order("id DESC").Find(&tasks).Error; err != nil {
		logger.FromContext(ctx).Error("Failed to list tasks", zap.Error(err))
		return Page[model.ActivityView]{}, err
	}

	now := s.clock.Now()
	if f.State == TaskStateOverdue {
		overdue := tasks[:0]
		for _, t := range tasks {
			if t.IsOverdue(now) {
				overdue = append(overdue, t)
			}
		}
		tasks = overdue
	}
	sortByDueDate(tasks)

	return mapPage(paginateSlice(tasks, f.Page), func(a model.Activity) model.ActivityView {
		return model.NewActivityView(a, nil, now)
	}), nil
}

// sortByDueDate orders tasks by due date with undated tasks last, keeping
// the newest-first order within equal keys
func sortByDueDate(tasks []model.Activity) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
}

// ListCallRecordings returns call activities that carry a recording, newest
// first. Only superusers may browse recordings.
func (s *ActivityService) ListCallRecordings(ctx context.Context, actor Actor, f RecordingFilter) (Page[model.ActivityView], error) {
	if !actor.IsSuperuser {
		return Page[model.ActivityView]{}, ErrForbidden
	}
	defer prometheus.TrackDBOperation("recording_list")(time.Now())

	db := s.db.WithContext(ctx)
	query := db.Model(&model.Activity{}).
		Where("activity_type = ?", model.ActivityCall).
		Where("recording IS NOT NULL AND recording <> ''")

	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := likePattern(search)
		leads := db.Model(&model.Lead{}).Select("id").
			Where("LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(number) LIKE ? ESCAPE '\\'", pattern, pattern)
		query = query.Where("(lead_id IN (?) OR LOWER(description) LIKE ? ESCAPE '\\')", leads, pattern)
	}

	page, err := paginate[model.Activity](query.Session(&gorm.Session{}), "created_at DESC, id DESC", f.Page,
		func(tx *gorm.DB) *gorm.DB { return tx.Preload("Lead").Preload("CreatedBy") })
	if err != nil {
		logger.FromContext(ctx).Error("Failed to list call recordings", zap.Error(err))
		return Page[model.ActivityView]{}, err
	}

	now := s.clock.Now()
	return mapPage(page, func(a model.Activity) model.ActivityView {
		return model.NewActivityView(a, nil, now)
	}), nil
}

// OpenRecording returns the stored recording of a call activity
func (s *ActivityService) OpenRecording(ctx context.Context, actor Actor, id uint) (*Recording, error) {
	if !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if s.storage == nil {
		return nil, ErrNotFound
	}

	var activity model.Activity
	if err := s.db.WithContext(ctx).First(&activity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if activity.Type != model.ActivityCall || activity.Recording == "" {
		return nil, ErrNotFound
	}

	content, err := s.storage.Open(ctx, activity.Recording)
	if err != nil {
		logger.FromContext(ctx).Warn("Recording file is missing",
			zap.Uint("activity_id", id),
			zap.String("recording", activity.Recording),
			zap.Error(err))
		return nil, ErrNotFound
	}
	return &Recording{Filename: path.Base(activity.Recording), Content: content}, nil
}
