package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupoint/sims-api/internal/models"
)

// ClassRoomRepository manages persistence for classrooms, their teacher
// membership set and their student roster.
type ClassRoomRepository struct {
	db *sqlx.DB
}

// NewClassRoomRepository constructs a ClassRoomRepository.
func NewClassRoomRepository(db *sqlx.DB) *ClassRoomRepository {
	return &ClassRoomRepository{db: db}
}

const classRoomColumns = `id, name, course_id, teacher_id, start_date, end_date, schedule, location, status, created_at, updated_at, deleted_at`

// List returns classrooms matching filters along with total count.
func (r *ClassRoomRepository) List(ctx context.Context, filter models.ClassRoomFilter) ([]models.ClassRoom, int, error) {
	base := "FROM class_rooms WHERE deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(COALESCE(location, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"start_date": true,
		"end_date":   true,
		"status":     true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classRoomColumns, base, sortBy, order, size, offset)
	var rooms []models.ClassRoom
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classrooms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classrooms: %w", err)
	}

	return rooms, total, nil
}

// FindByID fetches a live classroom by ID.
func (r *ClassRoomRepository) FindByID(ctx context.Context, id string) (*models.ClassRoom, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_rooms WHERE id = $1 AND deleted_at IS NULL`, classRoomColumns)
	var room models.ClassRoom
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindDetailByID fetches a live classroom together with its course and main
// teacher names, the teacher membership set and the enrolled students.
func (r *ClassRoomRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassRoomDetail, error) {
	const query = `SELECT cr.id, cr.name, cr.course_id, cr.teacher_id, cr.start_date, cr.end_date, cr.schedule, cr.location, cr.status, cr.created_at, cr.updated_at, cr.deleted_at,
			c.name AS course_name, t.full_name AS teacher_name
		FROM class_rooms cr
		LEFT JOIN courses c ON c.id = cr.course_id AND c.deleted_at IS NULL
		LEFT JOIN teachers t ON t.id = cr.teacher_id AND t.deleted_at IS NULL
		WHERE cr.id = $1 AND cr.deleted_at IS NULL`
	var detail models.ClassRoomDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	members, err := r.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Teachers = members

	students, err := r.ListStudents(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Students = students
	return &detail, nil
}

// ListMembers returns the teacher membership set of a classroom.
func (r *ClassRoomRepository) ListMembers(ctx context.Context, classRoomID string) ([]models.TeacherMember, error) {
	const query = `SELECT tc.teacher_id, t.full_name, (cr.teacher_id = tc.teacher_id) AS main_teacher
		FROM teacher_class_rooms tc
		JOIN teachers t ON t.id = tc.teacher_id AND t.deleted_at IS NULL
		JOIN class_rooms cr ON cr.id = tc.class_room_id
		WHERE tc.class_room_id = $1
		ORDER BY t.full_name ASC`
	members := []models.TeacherMember{}
	if err := r.db.SelectContext(ctx, &members, query, classRoomID); err != nil {
		return nil, fmt.Errorf("list classroom members: %w", err)
	}
	return members, nil
}

// IsMember reports whether a teacher belongs to the classroom's membership set.
func (r *ClassRoomRepository) IsMember(ctx context.Context, classRoomID, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_class_rooms WHERE class_room_id = $1 AND teacher_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classRoomID, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check classroom membership: %w", err)
	}
	return true, nil
}

// ListStudents returns the live students currently enrolled in the classroom.
func (r *ClassRoomRepository) ListStudents(ctx context.Context, classRoomID string) ([]models.Student, error) {
	const query = `SELECT id, account_id, full_name, email, phone, address, date_of_birth, class_room_id, image, status, created_at, updated_at, deleted_at
		FROM students WHERE class_room_id = $1 AND deleted_at IS NULL ORDER BY full_name ASC`
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, classRoomID); err != nil {
		return nil, fmt.Errorf("list classroom students: %w", err)
	}
	return students, nil
}

// ListRosterCandidates returns every live student eligible for the roster of
// the classroom: unassigned students plus those already enrolled in it.
func (r *ClassRoomRepository) ListRosterCandidates(ctx context.Context, classRoomID string) ([]models.RosterCandidate, error) {
	const query = `SELECT id, account_id, full_name, email, phone, address, date_of_birth, class_room_id, image, status, created_at, updated_at, deleted_at
		FROM students WHERE deleted_at IS NULL AND (class_room_id IS NULL OR class_room_id = $1) ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classRoomID); err != nil {
		return nil, fmt.Errorf("list roster candidates: %w", err)
	}

	candidates := make([]models.RosterCandidate, 0, len(students))
	for _, s := range students {
		selected := s.ClassRoomID != nil && *s.ClassRoomID == classRoomID
		candidates = append(candidates, models.RosterCandidate{Student: s, Selected: selected})
	}
	return candidates, nil
}

// ExistsByName checks if another live classroom uses the same name.
func (r *ClassRoomRepository) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM class_rooms WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check classroom name: %w", err)
	}
	return true, nil
}

// Create inserts a new classroom record.
func (r *ClassRoomRepository) Create(ctx context.Context, room *models.ClassRoom) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now

	const query = `INSERT INTO class_rooms (id, name, course_id, teacher_id, start_date, end_date, schedule, location, status, created_at, updated_at)
		VALUES (:id, :name, :course_id, :teacher_id, :start_date, :end_date, :schedule, :location, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create classroom: %w", err)
	}
	return nil
}

// Update modifies an existing classroom record.
func (r *ClassRoomRepository) Update(ctx context.Context, room *models.ClassRoom) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_rooms SET name = :name, course_id = :course_id, teacher_id = :teacher_id, start_date = :start_date, end_date = :end_date, schedule = :schedule, location = :location, status = :status, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("update classroom: %w", err)
	}
	return nil
}

// ReconcileRoster recomputes the classroom's roster from the submitted
// selection in one transaction: selected students point at the classroom,
// and students currently enrolled but no longer selected are detached.
// Applying the same selection twice is a no-op.
func (r *ClassRoomRepository) ReconcileRoster(ctx context.Context, classRoomID string, selectedIDs, unselectedIDs []string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reconcile roster tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(selectedIDs) > 0 {
		if _, err = tx.ExecContext(ctx, `UPDATE students SET class_room_id = $1, updated_at = $3 WHERE id = ANY($2) AND deleted_at IS NULL`, classRoomID, pq.Array(selectedIDs), now); err != nil {
			return fmt.Errorf("enroll selected students: %w", err)
		}
	}

	if len(unselectedIDs) > 0 {
		if _, err = tx.ExecContext(ctx, `UPDATE students SET class_room_id = NULL, updated_at = $3 WHERE id = ANY($2) AND class_room_id = $1 AND deleted_at IS NULL`, classRoomID, pq.Array(unselectedIDs), now); err != nil {
			return fmt.Errorf("detach unselected students: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reconcile roster tx: %w", err)
	}
	return nil
}

// SoftDelete tombstones a classroom and detaches everything pointing at it:
// teacher memberships are removed and enrolled students become unassigned.
func (r *ClassRoomRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete classroom tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_class_rooms WHERE class_room_id = $1`, id); err != nil {
		return fmt.Errorf("clear classroom memberships: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE students SET class_room_id = NULL, updated_at = $2 WHERE class_room_id = $1`, id, now); err != nil {
		return fmt.Errorf("detach classroom students: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE class_rooms SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now); err != nil {
		return fmt.Errorf("soft delete classroom: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete classroom tx: %w", err)
	}
	return nil
}
