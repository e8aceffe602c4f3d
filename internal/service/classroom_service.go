package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/sims-api/internal/models"
	appErrors "github.com/edupoint/sims-api/pkg/errors"
	"github.com/edupoint/sims-api/pkg/export"
)

const (
	classRoomCacheKeyFormat = "classroom:detail:%s"
	classRoomCachePattern   = "classroom:detail:*"

	classRoomDateLayout = "2006-01-02"
)

type classRoomRepository interface {
	List(ctx context.Context, filter models.ClassRoomFilter) ([]models.ClassRoom, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassRoom, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassRoomDetail, error)
	IsMember(ctx context.Context, classRoomID, teacherID string) (bool, error)
	ListStudents(ctx context.Context, classRoomID string) ([]models.Student, error)
	ListRosterCandidates(ctx context.Context, classRoomID string) ([]models.RosterCandidate, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, room *models.ClassRoom) error
	Update(ctx context.Context, room *models.ClassRoom) error
	ReconcileRoster(ctx context.Context, classRoomID string, selectedIDs, unselectedIDs []string) error
	SoftDelete(ctx context.Context, id string) error
}

type classRoomCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateClassRoomRequest captures fields for creating classrooms. The main
// teacher pointer is not accepted here: it is set through teacher assignment
// once the teacher is a member.
type CreateClassRoomRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	CourseID  string  `json:"course_id" validate:"required"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date" validate:"required"`
	Schedule  string  `json:"schedule" validate:"required,max=200"`
	Location  *string `json:"location" validate:"omitempty,max=200"`
	Status    string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// UpdateClassRoomRequest modifies classroom fields.
type UpdateClassRoomRequest struct {
	Name      string  `json:"name" validate:"required,max=100"`
	CourseID  string  `json:"course_id" validate:"required"`
	TeacherID *string `json:"teacher_id"`
	StartDate string  `json:"start_date" validate:"required"`
	EndDate   string  `json:"end_date" validate:"required"`
	Schedule  string  `json:"schedule" validate:"required,max=200"`
	Location  *string `json:"location" validate:"omitempty,max=200"`
	Status    string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// RosterExport is a rendered roster document.
type RosterExport struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ClassRoomService handles classroom domain workflows, the student roster
// and roster exports.
type ClassRoomService struct {
	repo      classRoomRepository
	courses   classRoomCourseRepository
	cache     *CacheService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassRoomService creates a new classroom service.
func NewClassRoomService(repo classRoomRepository, courses classRoomCourseRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassRoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassRoomService{
		repo:      repo,
		courses:   courses,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated classrooms.
func (s *ClassRoomService) List(ctx context.Context, filter models.ClassRoomFilter) ([]models.ClassRoom, *models.Pagination, error) {
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classrooms")
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
	return rooms, pagination, nil
}

// Get returns classroom detail with course, main teacher, member set and
// enrolled students. The payload is served read-through from the cache.
func (s *ClassRoomService) Get(ctx context.Context, id string) (*models.ClassRoomDetail, error) {
	key := fmt.Sprintf(classRoomCacheKeyFormat, id)

	var cached models.ClassRoomDetail
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, detail, 0); err != nil {
			s.logger.Warn("failed to cache classroom detail", zap.String("id", id), zap.Error(err))
		}
	}
	return detail, nil
}

// Create adds a new classroom ensuring name uniqueness and date ordering.
func (s *ClassRoomService) Create(ctx context.Context, req CreateClassRoomRequest) (*models.ClassRoom, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid classroom payload")
	}

	start, end, err := s.parseDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check classroom name")
	}
	if exists {
		return nil, appErrors.FieldConflict("classroom name already exists", map[string]string{"name": "Class room name already exists."})
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	status := req.Status
	if status == "" {
		status = "ACTIVE"
	}

	room := &models.ClassRoom{
		Name:      req.Name,
		CourseID:  req.CourseID,
		StartDate: start,
		EndDate:   end,
		Schedule:  req.Schedule,
		Location:  req.Location,
		Status:    status,
	}

	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create classroom")
	}
	return room, nil
}

// Update modifies an existing classroom. A supplied main teacher must be a
// member of the classroom.
func (s *ClassRoomService) Update(ctx context.Context, id string, req UpdateClassRoomRequest) (*models.ClassRoom, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.FromValidation(err, "invalid classroom payload")
	}

	start, end, err := s.parseDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	req.Name = strings.TrimSpace(req.Name)

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check classroom name")
	}
	if exists {
		return nil, appErrors.FieldConflict("classroom name already exists", map[string]string{"name": "Class room name already exists."})
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	// An empty teacher_id means "no main teacher", stored as NULL.
	if req.TeacherID != nil && *req.TeacherID == "" {
		req.TeacherID = nil
	}
	if req.TeacherID != nil {
		member, err := s.repo.IsMember(ctx, id, *req.TeacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check classroom membership")
		}
		if !member {
			return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid main teacher"), map[string]string{
				"teacher_id": "Main teacher must be a member of the class room.",
			})
		}
	}

	room.Name = req.Name
	room.CourseID = req.CourseID
	room.TeacherID = req.TeacherID
	room.StartDate = start
	room.EndDate = end
	room.Schedule = req.Schedule
	room.Location = req.Location
	if req.Status != "" {
		room.Status = req.Status
	}

	if err := s.repo.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update classroom")
	}

	s.invalidateCache(ctx)
	return room, nil
}

// Delete tombstones a classroom, detaches enrolled students and removes
// teacher memberships.
func (s *ClassRoomService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete classroom")
	}

	s.invalidateCache(ctx)
	return nil
}

// Roster returns the roster candidates for the classroom: live students who
// are unassigned or already enrolled, with selected flags.
func (s *ClassRoomService) Roster(ctx context.Context, id string) ([]models.RosterCandidate, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	candidates, err := s.repo.ListRosterCandidates(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster candidates")
	}
	return candidates, nil
}

// SaveRoster reconciles the classroom roster from the submitted selection
// set. Selected students are enrolled, unselected students currently in the
// classroom are detached, and everyone else is untouched. Submitting the
// same set twice is a no-op.
func (s *ClassRoomService) SaveRoster(ctx context.Context, id string, selections []models.RosterSelection) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	var selected, unselected []string
	seen := map[string]bool{}
	for _, sel := range selections {
		if err := s.validator.Struct(sel); err != nil {
			return appErrors.FromValidation(err, "invalid roster selection")
		}
		if seen[sel.StudentID] {
			return appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid roster selection"), map[string]string{
				"student_id": "Duplicate student in roster selection.",
			})
		}
		seen[sel.StudentID] = true
		if sel.Selected {
			selected = append(selected, sel.StudentID)
		} else {
			unselected = append(unselected, sel.StudentID)
		}
	}

	if err := s.repo.ReconcileRoster(ctx, id, selected, unselected); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save roster")
	}

	s.invalidateCache(ctx)
	return nil
}

// ExportRoster renders the classroom's enrolled students as CSV or PDF.
func (s *ClassRoomService) ExportRoster(ctx context.Context, id, format string) (*RosterExport, error) {
	room, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	students, err := s.repo.ListStudents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classroom students")
	}

	dataset := export.Dataset{
		Headers: []string{"Full Name", "Email", "Phone", "Status"},
	}
	for _, st := range students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Full Name": st.FullName,
			"Email":     st.Email,
			"Phone":     st.Phone,
			"Status":    st.Status,
		})
	}

	switch strings.ToLower(format) {
	case "csv", "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s-%s.csv", room.Name, time.Now().UTC().Format("20060102")),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Roster - %s", room.Name))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s-%s.pdf", room.Name, time.Now().UTC().Format("20060102")),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "unsupported export format"), map[string]string{
			"format": "Format must be csv or pdf.",
		})
	}
}

func (s *ClassRoomService) parseDates(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(classRoomDateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid classroom payload"), map[string]string{
			"start_date": "Start date must use the format YYYY-MM-DD.",
		})
	}
	end, err := time.Parse(classRoomDateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid classroom payload"), map[string]string{
			"end_date": "End date must use the format YYYY-MM-DD.",
		})
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid classroom payload"), map[string]string{
			"end_date": "End date must be on or after start date.",
		})
	}
	return start, end, nil
}

func (s *ClassRoomService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, classRoomCachePattern); err != nil {
		s.logger.Warn("failed to invalidate classroom cache", zap.Error(err))
	}
}
