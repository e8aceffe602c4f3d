package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edupoint/sims-api/internal/models"
	appErrors "github.com/edupoint/sims-api/pkg/errors"
)

// Password assigned to auto-provisioned teacher accounts. Teachers are
// expected to change it on first login.
const defaultTeacherPassword = "defaultPassword123"

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindDetailByID(ctx context.Context, id string) (*models.TeacherDetail, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string, excludeID string) (bool, error)
	CreateWithAccount(ctx context.Context, teacher *models.Teacher, account *models.Account) error
	Update(ctx context.Context, teacher *models.Teacher) error
	UpdateImage(ctx context.Context, id, image string) error
	ConflictingAssignment(ctx context.Context, classRoomID, courseID, excludeTeacherID string) (*models.AssignmentConflict, error)
	AssignClassRoom(ctx context.Context, teacherID, courseID, classRoomID string) error
	SoftDelete(ctx context.Context, id string) error
}

type teacherAccountRepository interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

type teacherCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type teacherClassRoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.ClassRoom, error)
}

type teacherImageStore interface {
	Allowed(originalName string) bool
	MaxSize() int64
	Save(r io.Reader, originalName string, declaredSize int64) (string, error)
	Delete(name string) error
}

// CreateTeacherRequest captures fields for creating teachers.
type CreateTeacherRequest struct {
	FullName string  `json:"full_name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    string  `json:"phone" validate:"required"`
	Address  *string `json:"address" validate:"omitempty,max=200"`
	CourseID *string `json:"course_id"`
	Status   string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// UpdateTeacherRequest modifies teacher fields.
type UpdateTeacherRequest struct {
	FullName string  `json:"full_name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    string  `json:"phone" validate:"required"`
	Address  *string `json:"address" validate:"omitempty,max=200"`
	CourseID *string `json:"course_id"`
	Status   string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// AssignClassRoomRequest moves a teacher into a classroom.
type AssignClassRoomRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	ClassRoomID *string `json:"class_room_id"`
}

// TeacherService handles teacher domain workflows, including classroom
// assignment and account provisioning.
type TeacherService struct {
	repo      teacherRepository
	accounts  teacherAccountRepository
	courses   teacherCourseRepository
	rooms     teacherClassRoomRepository
	images    teacherImageStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService creates a new teacher service.
func NewTeacherService(repo teacherRepository, accounts teacherAccountRepository, courses teacherCourseRepository, rooms teacherClassRoomRepository, images teacherImageStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, accounts: accounts, courses: courses, rooms: rooms, images: images, cache: cache, validator: validate, logger: logger}
}

// List returns paginated teachers.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
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
	return teachers, pagination, nil
}

// Get returns a teacher with course and classroom context.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return detail, nil
}

// Create adds a teacher and provisions its login account in one transaction.
// Email and phone uniqueness violations are reported per field.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid teacher payload")
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	fields, err := s.uniquenessFields(ctx, req.Email, req.Phone, "")
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, appErrors.FieldConflict("teacher already exists", fields)
	}

	if req.CourseID != nil && *req.CourseID != "" {
		if _, err := s.courses.FindByID(ctx, *req.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}

	status := req.Status
	if status == "" {
		status = "ACTIVE"
	}

	account, err := s.provisionAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		CourseID: req.CourseID,
		Status:   status,
	}

	if err := s.repo.CreateWithAccount(ctx, teacher, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher with the same uniqueness checks
// excluding the teacher itself.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid teacher payload")
	}

	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	fields, err := s.uniquenessFields(ctx, req.Email, req.Phone, id)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, appErrors.FieldConflict("teacher already exists", fields)
	}

	if req.CourseID != nil && *req.CourseID != "" {
		if _, err := s.courses.FindByID(ctx, *req.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
	}

	teacher.FullName = req.FullName
	teacher.Email = req.Email
	teacher.Phone = req.Phone
	teacher.Address = req.Address
	teacher.CourseID = req.CourseID
	if req.Status != "" {
		teacher.Status = req.Status
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	s.invalidateClassRoomCache(ctx)
	return teacher, nil
}

// AssignClassRoom reassigns a teacher's course and classroom. The move is
// rejected before any write when another live teacher of the same course
// already teaches the target classroom; the conflict names the course and the
// classroom. Without a target the teacher is detached from every classroom.
func (s *TeacherService) AssignClassRoom(ctx context.Context, teacherID string, req AssignClassRoomRequest) (*models.TeacherDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid assignment payload")
	}

	if _, err := s.repo.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	var targetID string
	if req.ClassRoomID != nil && *req.ClassRoomID != "" {
		room, err := s.rooms.FindByID(ctx, *req.ClassRoomID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
		}
		targetID = room.ID

		// Read-check-write: the conflict check and the assignment below run
		// in separate statements; the window relies on transaction isolation.
		conflict, err := s.repo.ConflictingAssignment(ctx, room.ID, course.ID, teacherID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment conflict")
		}
		if conflict != nil {
			message := fmt.Sprintf("A teacher with the course %s is already assigned to classroom %s", conflict.CourseName, conflict.ClassRoomName)
			return nil, appErrors.FieldConflict("assignment conflict", map[string]string{
				"course_id":     message,
				"class_room_id": message,
			})
		}
	}

	if err := s.repo.AssignClassRoom(ctx, teacherID, course.ID, targetID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign classroom")
	}

	s.invalidateClassRoomCache(ctx)

	detail, err := s.repo.FindDetailByID(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return detail, nil
}

// Delete tombstones a teacher and detaches it from all classrooms.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}

	s.invalidateClassRoomCache(ctx)
	return nil
}

// UploadImage stores a profile image and replaces the previous one. Deleting
// the old file is best effort.
func (s *TeacherService) UploadImage(ctx context.Context, id string, file io.Reader, originalName string, size int64) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if !s.images.Allowed(originalName) {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "unsupported image type"), map[string]string{
			"image": "Only .jpg, .jpeg, .png and .gif files are allowed.",
		})
	}
	if size > s.images.MaxSize() {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "image too large"), map[string]string{
			"image": "Image must not exceed 3 MB.",
		})
	}

	stored, err := s.images.Save(file, originalName, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}

	if err := s.repo.UpdateImage(ctx, id, stored); err != nil {
		if delErr := s.images.Delete(stored); delErr != nil {
			s.logger.Warn("failed to clean up orphaned image", zap.String("file", stored), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher image")
	}

	if teacher.Image != nil && *teacher.Image != "" {
		if err := s.images.Delete(*teacher.Image); err != nil {
			s.logger.Warn("failed to delete previous image", zap.String("file", *teacher.Image), zap.Error(err))
		}
	}

	teacher.Image = &stored
	return teacher, nil
}

// uniquenessFields collects per-field duplicate messages for email and phone
// among live teachers. Phone format is also checked here so the error lands
// on the same field map.
func (s *TeacherService) uniquenessFields(ctx context.Context, email, phone, excludeID string) (map[string]string, error) {
	fields := map[string]string{}

	if !phonePattern.MatchString(phone) {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid teacher payload"), map[string]string{
			"phone": "Phone number must be exactly 10 digits.",
		})
	}

	emailTaken, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher email")
	}
	if emailTaken {
		fields["email"] = "Email already exists."
	}

	phoneTaken, err := s.repo.ExistsByPhone(ctx, phone, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher phone")
	}
	if phoneTaken {
		fields["phone"] = "Phone number already exists."
	}

	return fields, nil
}

// provisionAccount builds the TEACHER login account created alongside a new
// teacher: username is the email local part, de-duplicated with a numeric
// suffix when taken.
func (s *TeacherService) provisionAccount(ctx context.Context, req CreateTeacherRequest) (*models.Account, error) {
	base := req.Email
	if at := strings.Index(base, "@"); at > 0 {
		base = base[:at]
	}

	username := base
	for i := 1; ; i++ {
		taken, err := s.accounts.ExistsByUsername(ctx, username)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
		}
		if !taken {
			break
		}
		username = fmt.Sprintf("%s%d", base, i)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultTeacherPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash default password")
	}

	return &models.Account{
		Role:         models.RoleTeacher,
		Username:     username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Phone:        &req.Phone,
		Address:      req.Address,
	}, nil
}

func (s *TeacherService) invalidateClassRoomCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, classRoomCachePattern); err != nil {
		s.logger.Warn("failed to invalidate classroom cache", zap.Error(err))
	}
}
