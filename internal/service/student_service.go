package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/sims-api/internal/models"
	appErrors "github.com/edupoint/sims-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string) error
}

type studentClassRoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassRoom, error)
}

// CreateStudentRequest captures fields for creating students.
type CreateStudentRequest struct {
	FullName    string  `json:"full_name" validate:"required,max=100"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"required"`
	Address     *string `json:"address" validate:"omitempty,max=200"`
	DateOfBirth *string `json:"date_of_birth"`
	ClassRoomID *string `json:"class_room_id"`
	Status      string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// UpdateStudentRequest modifies student fields.
type UpdateStudentRequest struct {
	FullName    string  `json:"full_name" validate:"required,max=100"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"required"`
	Address     *string `json:"address" validate:"omitempty,max=200"`
	DateOfBirth *string `json:"date_of_birth"`
	ClassRoomID *string `json:"class_room_id"`
	Status      string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// StudentService handles student domain workflows.
type StudentService struct {
	repo      studentRepository
	rooms     studentClassRoomRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService creates a new student service.
func NewStudentService(repo studentRepository, rooms studentClassRoomRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, rooms: rooms, cache: cache, validator: validate, logger: logger}
}

// List returns paginated students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by identifier.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create adds a new student with per-field uniqueness checks.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid student payload")
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	fields, err := s.uniquenessFields(ctx, req.Email, req.Phone, "")
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, appErrors.FieldConflict("student already exists", fields)
	}

	dob, err := s.parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}

	if req.ClassRoomID != nil && *req.ClassRoomID != "" {
		if _, err := s.rooms.FindByID(ctx, *req.ClassRoomID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
		}
	}

	status := req.Status
	if status == "" {
		status = "ACTIVE"
	}

	student := &models.Student{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		DateOfBirth: dob,
		ClassRoomID: req.ClassRoomID,
		Status:      status,
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.invalidateClassRoomCache(ctx)
	return student, nil
}

// Update modifies an existing student with the same uniqueness checks
// excluding the student itself.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	fields, err := s.uniquenessFields(ctx, req.Email, req.Phone, id)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, appErrors.FieldConflict("student already exists", fields)
	}

	dob, err := s.parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		return nil, err
	}

	if req.ClassRoomID != nil && *req.ClassRoomID != "" {
		if _, err := s.rooms.FindByID(ctx, *req.ClassRoomID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
		}
	}

	student.FullName = req.FullName
	student.Email = req.Email
	student.Phone = req.Phone
	student.Address = req.Address
	student.DateOfBirth = dob
	student.ClassRoomID = req.ClassRoomID
	if req.Status != "" {
		student.Status = req.Status
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.invalidateClassRoomCache(ctx)
	return student, nil
}

// Delete tombstones a student and detaches it from any classroom.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}

	s.invalidateClassRoomCache(ctx)
	return nil
}

func (s *StudentService) uniquenessFields(ctx context.Context, email, phone, excludeID string) (map[string]string, error) {
	fields := map[string]string{}

	if !phonePattern.MatchString(phone) {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid student payload"), map[string]string{
			"phone": "Phone number must be exactly 10 digits.",
		})
	}

	emailTaken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student email")
	}
	if emailTaken {
		fields["email"] = "Email already exists."
	}

	phoneTaken, err := s.repo.ExistsByPhone(ctx, phone, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student phone")
	}
	if phoneTaken {
		fields["phone"] = "Phone number already exists."
	}

	return fields, nil
}

func (s *StudentService) parseDateOfBirth(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	dob, err := time.Parse(classRoomDateLayout, *raw)
	if err != nil {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid student payload"), map[string]string{
			"date_of_birth": "Date of birth must use the format YYYY-MM-DD.",
		})
	}
	return &dob, nil
}

func (s *StudentService) invalidateClassRoomCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, classRoomCachePattern); err != nil {
		s.logger.Warn("failed to invalidate classroom cache", zap.Error(err))
	}
}
