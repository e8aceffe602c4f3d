package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/sims-api/internal/models"
)

func TestTeacherExistsByEmailSkipsDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL AND id <> $2 LIMIT 1")).
		WithArgs("jane@example.com", "t1").
		WillReturnError(sql.ErrNoRows)

	taken, err := repo.ExistsByEmail(context.Background(), "jane@example.com", "t1")
	require.NoError(t, err)
	assert.False(t, taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherConflictingAssignmentFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	rows := sqlmock.NewRows([]string{"teacher_id", "teacher_name", "course_name", "class_room_name"}).
		AddRow("t2", "John Smith", "Mathematics", "Class 10A")
	mock.ExpectQuery("FROM teacher_class_rooms tc").
		WithArgs("cr1", "c1", "t1").
		WillReturnRows(rows)

	conflict, err := repo.ConflictingAssignment(context.Background(), "cr1", "c1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "John Smith", conflict.TeacherName)
	assert.Equal(t, "Mathematics", conflict.CourseName)
	assert.Equal(t, "Class 10A", conflict.ClassRoomName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherConflictingAssignmentNone(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery("FROM teacher_class_rooms tc").
		WithArgs("cr1", "c1", "t1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ConflictingAssignment(context.Background(), "cr1", "c1", "t1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignClassRoomTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET course_id = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teacher_class_rooms WHERE teacher_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1 AND id <> $3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teacher_class_rooms (teacher_id, class_room_id, created_at) VALUES ($1, $2, $3)")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_rooms SET teacher_id = $1, updated_at = $3 WHERE id = $2 AND teacher_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AssignClassRoom(context.Background(), "t1", "c1", "cr1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignClassRoomWithoutTargetDetaches(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET course_id = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teacher_class_rooms WHERE teacher_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AssignClassRoom(context.Background(), "t1", "c1", "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignClassRoomRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET course_id = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teacher_class_rooms WHERE teacher_id = $1")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.AssignClassRoom(context.Background(), "t1", "c1", "cr1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherSoftDeleteDetachesClassrooms(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teacher_class_rooms WHERE teacher_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_rooms SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET status = 'Deleted', deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SoftDelete(context.Background(), "t1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherCreateWithAccountTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO teachers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	teacher := &models.Teacher{FullName: "Jane Doe", Email: "jane@example.com", Phone: "0123456789", Status: "ACTIVE"}
	account := &models.Account{Role: models.RoleTeacher, Username: "jane", Email: "jane@example.com", PasswordHash: "hash"}
	err := repo.CreateWithAccount(context.Background(), teacher, account)
	require.NoError(t, err)
	assert.NotEmpty(t, teacher.ID)
	require.NotNil(t, teacher.AccountID)
	assert.Equal(t, account.ID, *teacher.AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "account_id", "full_name", "email", "phone", "address", "course_id", "image", "status", "created_at", "updated_at", "deleted_at"}).
		AddRow("t1", nil, "Jane Doe", "jane@example.com", "0123456789", nil, nil, nil, "ACTIVE", now, now, nil)
	mock.ExpectQuery("FROM teachers WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	teachers, total, err := repo.List(context.Background(), models.TeacherFilter{})
	require.NoError(t, err)
	assert.Len(t, teachers, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
