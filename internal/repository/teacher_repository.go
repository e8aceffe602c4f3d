package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupoint/sims-api/internal/models"
)

// TeacherRepository manages persistence for teachers, their login accounts
// and their classroom memberships.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherColumns = `id, account_id, full_name, email, phone, address, course_id, image, status, created_at, updated_at, deleted_at`

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE deleted_at IS NULL"
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
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR phone LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":  true,
		"email":      true,
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, sortBy, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a live teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1 AND deleted_at IS NULL`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindDetailByID fetches a live teacher together with its course name and
// classroom memberships.
func (r *TeacherRepository) FindDetailByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	const query = `SELECT t.id, t.account_id, t.full_name, t.email, t.phone, t.address, t.course_id, t.image, t.status, t.created_at, t.updated_at, t.deleted_at, c.name AS course_name
		FROM teachers t
		LEFT JOIN courses c ON c.id = t.course_id AND c.deleted_at IS NULL
		WHERE t.id = $1 AND t.deleted_at IS NULL`
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	memberships, err := r.ListMemberships(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.ClassRooms = memberships
	return &detail, nil
}

// ListMemberships returns the classroom membership set of a teacher.
func (r *TeacherRepository) ListMemberships(ctx context.Context, teacherID string) ([]models.ClassRoomMembership, error) {
	const query = `SELECT tc.class_room_id, cr.name AS class_room_name, (cr.teacher_id = tc.teacher_id) AS main_teacher
		FROM teacher_class_rooms tc
		JOIN class_rooms cr ON cr.id = tc.class_room_id AND cr.deleted_at IS NULL
		WHERE tc.teacher_id = $1
		ORDER BY cr.name ASC`
	memberships := []models.ClassRoomMembership{}
	if err := r.db.SelectContext(ctx, &memberships, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher memberships: %w", err)
	}
	return memberships, nil
}

// ExistsByEmail checks if another live teacher uses the same email.
func (r *TeacherRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher email: %w", err)
	}
	return true, nil
}

// ExistsByPhone checks if another live teacher uses the same phone number.
func (r *TeacherRepository) ExistsByPhone(ctx context.Context, phone string, excludeID string) (bool, error) {
	if strings.TrimSpace(phone) == "" {
		return false, nil
	}
	query := "SELECT 1 FROM teachers WHERE phone = $1 AND deleted_at IS NULL"
	args := []interface{}{phone}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher phone: %w", err)
	}
	return true, nil
}

// CreateWithAccount inserts a teacher and its auto-provisioned login account
// in one transaction.
func (r *TeacherRepository) CreateWithAccount(ctx context.Context, teacher *models.Teacher, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	teacher.AccountID = &account.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create teacher tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const accountQuery = `INSERT INTO accounts (id, role, username, email, password_hash, phone, address, created_at, updated_at)
		VALUES (:id, :role, :username, :email, :password_hash, :phone, :address, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, accountQuery, account); err != nil {
		return fmt.Errorf("create teacher account: %w", err)
	}

	const teacherQuery = `INSERT INTO teachers (id, account_id, full_name, email, phone, address, course_id, image, status, created_at, updated_at)
		VALUES (:id, :account_id, :full_name, :email, :phone, :address, :course_id, :image, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, teacherQuery, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create teacher tx: %w", err)
	}
	return nil
}

// Update modifies an existing teacher record.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET full_name = :full_name, email = :email, phone = :phone, address = :address, course_id = :course_id, status = :status, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// UpdateImage stores the uploaded image file name for a teacher.
func (r *TeacherRepository) UpdateImage(ctx context.Context, id, image string) error {
	const query = `UPDATE teachers SET image = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, image, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher image: %w", err)
	}
	return nil
}

// ConflictingAssignment finds another live teacher of the same course who is
// already a member of the classroom. Returns sql.ErrNoRows when none exists.
func (r *TeacherRepository) ConflictingAssignment(ctx context.Context, classRoomID, courseID, excludeTeacherID string) (*models.AssignmentConflict, error) {
	const query = `SELECT t.id AS teacher_id, t.full_name AS teacher_name, c.name AS course_name, cr.name AS class_room_name
		FROM teacher_class_rooms tc
		JOIN teachers t ON t.id = tc.teacher_id AND t.deleted_at IS NULL
		JOIN courses c ON c.id = t.course_id
		JOIN class_rooms cr ON cr.id = tc.class_room_id
		WHERE tc.class_room_id = $1 AND t.course_id = $2 AND t.id <> $3
		LIMIT 1`
	var conflict models.AssignmentConflict
	if err := r.db.GetContext(ctx, &conflict, query, classRoomID, courseID, excludeTeacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find conflicting assignment: %w", err)
	}
	return &conflict, nil
}

// AssignClassRoom reassigns a teacher in one transaction: the course is
// updated, the previous memberships are dropped and stale main-teacher
// pointers are cleared. When classRoomID is non-empty the new membership is
// inserted and the teacher is promoted to main teacher if the classroom has
// none; with an empty classRoomID the teacher ends up detached.
func (r *TeacherRepository) AssignClassRoom(ctx context.Context, teacherID, courseID, classRoomID string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign classroom tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE teachers SET course_id = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`, teacherID, courseID, now); err != nil {
		return fmt.Errorf("update teacher course: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_class_rooms WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear teacher memberships: %w", err)
	}

	if classRoomID == "" {
		if _, err = tx.ExecContext(ctx, `UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1`, teacherID, now); err != nil {
			return fmt.Errorf("clear main teacher pointers: %w", err)
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit assign classroom tx: %w", err)
		}
		return nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1 AND id <> $3`, teacherID, now, classRoomID); err != nil {
		return fmt.Errorf("clear main teacher pointers: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO teacher_class_rooms (teacher_id, class_room_id, created_at) VALUES ($1, $2, $3)`, teacherID, classRoomID, now); err != nil {
		return fmt.Errorf("insert teacher membership: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE class_rooms SET teacher_id = $1, updated_at = $3 WHERE id = $2 AND teacher_id IS NULL`, teacherID, classRoomID, now); err != nil {
		return fmt.Errorf("promote main teacher: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assign classroom tx: %w", err)
	}
	return nil
}

// SoftDelete tombstones a teacher and detaches it from every classroom:
// memberships are removed and main-teacher pointers are cleared so no
// classroom keeps referencing a deleted teacher.
func (r *TeacherRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete teacher tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_class_rooms WHERE teacher_id = $1`, id); err != nil {
		return fmt.Errorf("clear teacher memberships: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1`, id, now); err != nil {
		return fmt.Errorf("clear main teacher pointers: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE teachers SET status = 'Deleted', deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now); err != nil {
		return fmt.Errorf("soft delete teacher: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete teacher tx: %w", err)
	}
	return nil
}
