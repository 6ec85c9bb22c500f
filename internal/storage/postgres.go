package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Service is the PostgreSQL implementation of Storage.
type Service struct {
	DB     *gorm.DB
	logger *zap.Logger
}

var _ Storage = (*Service)(nil)

// Open connects to PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// NewStorageService wraps an open connection.
func NewStorageService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{DB: db, logger: logger}
}

// Migrate creates or updates the tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.Complaint{},
		&models.Assignment{},
		&models.WorkProof{},
		&models.ComplaintEvent{},
	)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// CreateUser inserts a user.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.DB.WithContext(ctx).Create(user).Error)
}

// GetUserByID loads a user.
func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateUser saves every field of an existing user.
func (s *Service) UpdateUser(ctx context.Context, user *models.User) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"phone_number": user.PhoneNumber,
		"name":         user.Name,
		"email":        user.Email,
		"role":         user.Role,
		"is_active":    user.IsActive,
		"updated_at":   time.Now(),
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns one page of users, newest first, and the total count.
func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	_, limit, offset := Page(f.Page, f.Limit, config.DefaultUserPageSize, config.MaxPageSize)
	var users []models.User
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CreateComplaint inserts a complaint and its creation event.
func (s *Service) CreateComplaint(ctx context.Context, c *models.Complaint, ev *models.ComplaintEvent) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Version == 0 {
			c.Version = 1
		}
		if err := tx.Create(c).Error; err != nil {
			return translate(err)
		}
		if ev != nil {
			ev.ComplaintID = c.ID
			if err := tx.Create(ev).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetComplaintByID loads a complaint.
func (s *Service) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	var c models.Complaint
	if err := s.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ListComplaints returns one page of complaints, newest first, and the total count.
func (s *Service) ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, int64, error) {
	db := s.DB.WithContext(ctx)
	q := db.Model(&models.Complaint{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.CitizenID != "" {
		q = q.Where("citizen_id = ?", f.CitizenID)
	}
	if f.WorkerID != "" {
		q = q.Where("id IN (?)", db.Model(&models.Assignment{}).Select("complaint_id").Where("worker_id = ?", f.WorkerID))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	_, limit, offset := Page(f.Page, f.Limit, config.DefaultPageSize, config.MaxPageSize)
	var complaints []models.Complaint
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&complaints).Error; err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

// ApplyUpdate writes a lifecycle change in one transaction, guarded by the
// complaint's version.
func (s *Service) ApplyUpdate(ctx context.Context, u ComplaintUpdate) error {
	c := u.Complaint
	now := time.Now()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Complaint{}).
			Where("id = ? AND version = ?", c.ID, u.ExpectedVersion).
			Updates(complaintColumns(c, u.ExpectedVersion+1, now))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Complaint{}).Where("id = ?", c.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrVersionConflict
		}

		if u.NewAssignment != nil {
			if err := tx.Model(&models.Assignment{}).
				Where("complaint_id = ? AND active = ?", c.ID, true).
				Updates(map[string]interface{}{"active": false, "superseded_at": now}).Error; err != nil {
				return err
			}
			u.NewAssignment.ComplaintID = c.ID
			u.NewAssignment.Active = true
			if err := tx.Create(u.NewAssignment).Error; err != nil {
				return err
			}
		}
		if u.WorkProof != nil {
			u.WorkProof.ComplaintID = c.ID
			if err := tx.Create(u.WorkProof).Error; err != nil {
				return err
			}
		}
		if u.Event != nil {
			u.Event.ComplaintID = c.ID
			if err := tx.Create(u.Event).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrNotFound) {
			s.logger.Error("complaint update failed", zap.String("complaint_id", c.ID), zap.Error(err))
		}
		return err
	}

	c.Version = u.ExpectedVersion + 1
	c.UpdatedAt = now
	return nil
}

// complaintColumns lists every mutable complaint column. Updates with a map
// writes zero values too, so cleared fields reach the row.
func complaintColumns(c *models.Complaint, version int64, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"title":             c.Title,
		"description":       c.Description,
		"category":          c.Category,
		"status":            c.Status,
		"priority":          c.Priority,
		"location":          c.Location,
		"latitude":          c.Latitude,
		"longitude":         c.Longitude,
		"media_urls":        c.MediaURLs,
		"is_ai_categorized": c.IsAICategorized,
		"ai_confidence":     c.AIConfidence,
		"rejection_reason":  c.RejectionReason,
		"resolved_at":       c.ResolvedAt,
		"version":           version,
		"updated_at":        now,
	}
}

// DeleteComplaint removes a complaint and its evidence trail.
func (s *Service) DeleteComplaint(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.Assignment{}, &models.WorkProof{}, &models.ComplaintEvent{}} {
			if err := tx.Where("complaint_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Complaint{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ActiveAssignment returns the complaint's active assignment, or nil when there is none.
func (s *Service) ActiveAssignment(ctx context.Context, complaintID string) (*models.Assignment, error) {
	var a models.Assignment
	err := s.DB.WithContext(ctx).
		Where("complaint_id = ? AND active = ?", complaintID, true).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignments returns every assignment of a complaint, oldest first.
func (s *Service) ListAssignments(ctx context.Context, complaintID string) ([]models.Assignment, error) {
	var out []models.Assignment
	err := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID).Order("assigned_at asc").Find(&out).Error
	return out, err
}

// ListWorkProofs returns a complaint's work proofs, newest first.
func (s *Service) ListWorkProofs(ctx context.Context, complaintID string) ([]models.WorkProof, error) {
	var out []models.WorkProof
	err := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID).Order("uploaded_at desc").Find(&out).Error
	return out, err
}

// ListEvents returns a complaint's audit trail, oldest first.
func (s *Service) ListEvents(ctx context.Context, complaintID string) ([]models.ComplaintEvent, error) {
	var out []models.ComplaintEvent
	err := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID).Order("created_at asc").Find(&out).Error
	return out, err
}

type groupCount struct {
	GroupKey string
	Count    int64
}

func (s *Service) countBy(ctx context.Context, model interface{}, column string) ([]groupCount, error) {
	var rows []groupCount
	err := s.DB.WithContext(ctx).Model(model).
		Select(column + " AS group_key, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	return rows, err
}

// CountComplaintsByStatus groups complaints by status.
func (s *Service) CountComplaintsByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.countBy(ctx, &models.Complaint{}, "status")
	if err != nil {
		return nil, err
	}
	out := make(map[models.Status]int64, len(rows))
	for _, r := range rows {
		out[models.Status(r.GroupKey)] = r.Count
	}
	return out, nil
}

// CountComplaintsByCategory groups complaints by category.
func (s *Service) CountComplaintsByCategory(ctx context.Context) (map[models.Category]int64, error) {
	rows, err := s.countBy(ctx, &models.Complaint{}, "category")
	if err != nil {
		return nil, err
	}
	out := make(map[models.Category]int64, len(rows))
	for _, r := range rows {
		out[models.Category(r.GroupKey)] = r.Count
	}
	return out, nil
}

// CountUsersByRole groups users by role.
func (s *Service) CountUsersByRole(ctx context.Context) (map[models.Role]int64, error) {
	rows, err := s.countBy(ctx, &models.User{}, "role")
	if err != nil {
		return nil, err
	}
	out := make(map[models.Role]int64, len(rows))
	for _, r := range rows {
		out[models.Role(r.GroupKey)] = r.Count
	}
	return out, nil
}
