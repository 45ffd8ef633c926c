package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/clock"
	"crm-service/pkg/config"
	"crm-service/pkg/logger"
	"crm-service/pkg/storage"
	"crm-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserInput is a staff account submission
type UserInput struct {
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Password    string
	IsSuperuser bool
}

// UserService manages staff accounts
type UserService struct {
	db      *gorm.DB
	clock   clock.Clock
	storage storage.Storage
}

// NewUserService creates a user service. store may be nil.
func NewUserService(db *gorm.DB, clk clock.Clock, store storage.Storage) *UserService {
	return &UserService{db: db, clock: clk, storage: store}
}

// Authenticate checks a username and password against an active staff account
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	log := logger.FromContext(ctx).With(zap.String("username", username))
	defer prometheus.TrackDBOperation("user_login")(time.Now())

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("Login for unknown user")
		prometheus.RecordLogin("user_not_found")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn("Invalid password")
		prometheus.RecordLogin("invalid_password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive || !user.IsStaff {
		log.Warn("Login for inactive or non-staff user")
		prometheus.RecordLogin("inactive")
		return nil, ErrInvalidCredentials
	}

	prometheus.RecordLogin("success")
	log.Info("User logged in", zap.Uint("user_id", user.ID))
	return &user, nil
}

// EnsureSuperuser creates the bootstrap superuser when no account with the
// configured username exists. Nothing happens without a password.
func (s *UserService) EnsureSuperuser(ctx context.Context, cfg config.AdminConfig) error {
	log := logger.FromContext(ctx)
	if cfg.Username == "" || cfg.Password == "" {
		log.Info("Admin bootstrap skipped, no credentials configured")
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", cfg.Username).Count(&count).Error; err != nil {
		return fmt.Errorf("look up admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := s.createUser(ctx, UserInput{
		Username:    cfg.Username,
		Email:       cfg.Email,
		Password:    cfg.Password,
		IsSuperuser: true,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info("Admin user created", zap.String("username", cfg.Username))
	return nil
}

// CreateUser adds a staff account. Only superusers may create users.
func (s *UserService) CreateUser(ctx context.Context, actor Actor, in UserInput) (*model.User, error) {
	if !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	return s.createUser(ctx, in)
}

func (s *UserService) createUser(ctx context.Context, in UserInput) (*model.User, error) {
	log := logger.FromContext(ctx)
	defer prometheus.TrackDBOperation("user_create")(time.Now())

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, validationf("Username and password are required.")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("user %q: %w", username, ErrConflict)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	user := model.User{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hashed),
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  in.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	log.Info("User created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return &user, nil
}

// DeleteUser removes a staff account. Leads managed by the user lose their
// manager; activities and task notes created by the user are removed.
func (s *UserService) DeleteUser(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsSuperuser {
		return ErrForbidden
	}
	if actor.UserID == id {
		return validationf("You cannot delete your own account.")
	}
	log := logger.FromContext(ctx).With(zap.Uint("user_id", id))
	defer prometheus.TrackDBOperation("user_delete")(time.Now())

	var recordings []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := tx.Model(&model.Lead{}).Where("lead_manager_id = ?", id).
			Update("lead_manager_id", nil).Error; err != nil {
			return fmt.Errorf("release managed leads: %w", err)
		}

		if err := tx.Model(&model.Activity{}).Where("created_by_id = ? AND recording <> ''", id).
			Pluck("recording", &recordings).Error; err != nil {
			return fmt.Errorf("list recordings: %w", err)
		}
		activityIDs := tx.Model(&model.Activity{}).Select("id").Where("created_by_id = ?", id)
		if err := tx.Where("created_by_id = ? OR activity_id IN (?)", id, activityIDs).
			Delete(&model.TaskNote{}).Error; err != nil {
			return fmt.Errorf("delete task notes: %w", err)
		}
		if err := tx.Where("created_by_id = ?", id).Delete(&model.Activity{}).Error; err != nil {
			return fmt.Errorf("delete activities: %w", err)
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("Failed to delete user", zap.Error(err))
		}
		return err
	}

	removeRecordings(ctx, s.storage, recordings)
	log.Info("User deleted")
	return nil
}

// ListManagers returns the active staff users that can manage leads
func (s *UserService) ListManagers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND is_staff = ?", true, true).
		Order("first_name").Order("last_name").Order("username").
		Find(&users).Error
	return users, err
}

// GetUser returns a staff user by id
func (s *UserService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
