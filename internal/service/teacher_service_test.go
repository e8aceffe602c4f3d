package service

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/sims-api/internal/models"
	appErrors "github.com/edupoint/sims-api/pkg/errors"
)

type mockTeacherRepo struct {
	teachers       map[string]models.Teacher
	emails         map[string]bool
	phones         map[string]bool
	conflict       *models.AssignmentConflict
	assignedTo     string
	assignedCourse string
	assignedRoom   string
	assignCalls    int
	updated        *models.Teacher
	created        *models.Teacher
	createdAcct    *models.Account
	deleted        []string
	imageUpdates   map[string]string
	memberships    map[string][]models.ClassRoomMembership
	detailCourses  map[string]*string
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	var list []models.Teacher
	for _, t := range m.teachers {
		list = append(list, t)
	}
	return list, len(list), nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) FindDetailByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	if t, ok := m.teachers[id]; ok {
		detail := &models.TeacherDetail{Teacher: t}
		if m.detailCourses != nil {
			detail.CourseName = m.detailCourses[id]
		}
		if m.memberships != nil {
			detail.ClassRooms = m.memberships[id]
		}
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return m.emails[email], nil
}

func (m *mockTeacherRepo) ExistsByPhone(ctx context.Context, phone string, excludeID string) (bool, error) {
	return m.phones[phone], nil
}

func (m *mockTeacherRepo) CreateWithAccount(ctx context.Context, teacher *models.Teacher, account *models.Account) error {
	if m.teachers == nil {
		m.teachers = make(map[string]models.Teacher)
	}
	if teacher.ID == "" {
		teacher.ID = "new-teacher"
	}
	if account.ID == "" {
		account.ID = "new-account"
	}
	teacher.AccountID = &account.ID
	m.teachers[teacher.ID] = *teacher
	m.created = teacher
	m.createdAcct = account
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	m.teachers[teacher.ID] = *teacher
	m.updated = teacher
	return nil
}

func (m *mockTeacherRepo) UpdateImage(ctx context.Context, id, image string) error {
	if m.imageUpdates == nil {
		m.imageUpdates = make(map[string]string)
	}
	m.imageUpdates[id] = image
	return nil
}

func (m *mockTeacherRepo) ConflictingAssignment(ctx context.Context, classRoomID, courseID, excludeTeacherID string) (*models.AssignmentConflict, error) {
	if m.conflict != nil {
		return m.conflict, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) AssignClassRoom(ctx context.Context, teacherID, courseID, classRoomID string) error {
	m.assignCalls++
	m.assignedTo = teacherID
	m.assignedCourse = courseID
	m.assignedRoom = classRoomID
	if t, ok := m.teachers[teacherID]; ok {
		t.CourseID = &courseID
		m.teachers[teacherID] = t
	}
	if classRoomID == "" {
		delete(m.memberships, teacherID)
	}
	return nil
}

func (m *mockTeacherRepo) SoftDelete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.teachers, id)
	return nil
}

type mockAccountChecker struct {
	taken map[string]bool
}

func (m *mockAccountChecker) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return m.taken[username], nil
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassRoomReader struct {
	rooms map[string]models.ClassRoom
}

func (m *mockClassRoomReader) FindByID(ctx context.Context, id string) (*models.ClassRoom, error) {
	if r, ok := m.rooms[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

type mockImageStore struct {
	allowed bool
	maxSize int64
	saved   string
	deleted []string
	saveErr error
}

func (m *mockImageStore) Allowed(originalName string) bool { return m.allowed }
func (m *mockImageStore) MaxSize() int64                   { return m.maxSize }

func (m *mockImageStore) Save(r io.Reader, originalName string, declaredSize int64) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved = "stored-file.png"
	return m.saved, nil
}

func (m *mockImageStore) Delete(name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}

func newTeacherService(repo *mockTeacherRepo, accounts *mockAccountChecker, courses *mockCourseReader, rooms *mockClassRoomReader, images *mockImageStore) *TeacherService {
	if accounts == nil {
		accounts = &mockAccountChecker{}
	}
	if courses == nil {
		courses = &mockCourseReader{}
	}
	if rooms == nil {
		rooms = &mockClassRoomReader{}
	}
	if images == nil {
		images = &mockImageStore{allowed: true, maxSize: 3 << 20}
	}
	return NewTeacherService(repo, accounts, courses, rooms, images, nil, nil, nil)
}

func TestTeacherCreateProvisionsAccount(t *testing.T) {
	repo := &mockTeacherRepo{}
	svc := newTeacherService(repo, nil, nil, nil, nil)

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName: "Jane Doe",
		Email:    "jane.doe@example.com",
		Phone:    "0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", teacher.Status)
	require.NotNil(t, repo.createdAcct)
	assert.Equal(t, "jane.doe", repo.createdAcct.Username)
	assert.Equal(t, models.RoleTeacher, repo.createdAcct.Role)
	assert.NotEqual(t, defaultTeacherPassword, repo.createdAcct.PasswordHash)
}

func TestTeacherCreateUsernameSuffixWhenTaken(t *testing.T) {
	repo := &mockTeacherRepo{}
	accounts := &mockAccountChecker{taken: map[string]bool{"jane.doe": true, "jane.doe1": true}}
	svc := newTeacherService(repo, accounts, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName: "Jane Doe",
		Email:    "jane.doe@example.com",
		Phone:    "0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe2", repo.createdAcct.Username)
}

func TestTeacherCreateDuplicateEmailAndPhonePerField(t *testing.T) {
	repo := &mockTeacherRepo{
		emails: map[string]bool{"jane@example.com": true},
		phones: map[string]bool{"0123456789": true},
	}
	svc := newTeacherService(repo, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Phone:    "0123456789",
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Email already exists.", appErr.Fields["email"])
	assert.Equal(t, "Phone number already exists.", appErr.Fields["phone"])
	assert.Nil(t, repo.created)
}

func TestTeacherCreateRejectsBadPhone(t *testing.T) {
	repo := &mockTeacherRepo{}
	svc := newTeacherService(repo, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Phone:    "12345",
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields["phone"], "10 digits")
}

func TestAssignClassRoomConflictNamesCourseAndClassRoom(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1", FullName: "Jane"}},
		conflict: &models.AssignmentConflict{
			TeacherID:     "t2",
			TeacherName:   "John Smith",
			CourseName:    "Mathematics",
			ClassRoomName: "Class 10A",
		},
	}
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", Name: "Mathematics"}}}
	rooms := &mockClassRoomReader{rooms: map[string]models.ClassRoom{"cr1": {ID: "cr1", Name: "Class 10A"}}}
	svc := newTeacherService(repo, nil, courses, rooms, nil)

	target := "cr1"
	_, err := svc.AssignClassRoom(context.Background(), "t1", AssignClassRoomRequest{CourseID: "c1", ClassRoomID: &target})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Fields["course_id"], "Mathematics")
	assert.Contains(t, appErr.Fields["course_id"], "Class 10A")
	assert.Equal(t, appErr.Fields["course_id"], appErr.Fields["class_room_id"])
	assert.Zero(t, repo.assignCalls)
	assert.Nil(t, repo.updated)
	assert.Nil(t, repo.teachers["t1"].CourseID)
}

func TestAssignClassRoomWithoutTargetDetachesTeacher(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1", FullName: "Jane"}},
		memberships: map[string][]models.ClassRoomMembership{
			"t1": {{ClassRoomID: "cr9", ClassRoomName: "Old Room", MainTeacher: true}},
		},
	}
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", Name: "Mathematics"}}}
	svc := newTeacherService(repo, nil, courses, nil, nil)

	detail, err := svc.AssignClassRoom(context.Background(), "t1", AssignClassRoomRequest{CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.assignCalls)
	assert.Equal(t, "c1", repo.assignedCourse)
	assert.Empty(t, repo.assignedRoom)
	require.NotNil(t, detail.Teacher.CourseID)
	assert.Equal(t, "c1", *detail.Teacher.CourseID)
	assert.Empty(t, detail.ClassRooms)
}

func TestAssignClassRoomSucceedsWhenNoConflict(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1", FullName: "Jane"}},
	}
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", Name: "Mathematics"}}}
	rooms := &mockClassRoomReader{rooms: map[string]models.ClassRoom{"cr1": {ID: "cr1", Name: "Class 10A"}}}
	svc := newTeacherService(repo, nil, courses, rooms, nil)

	target := "cr1"
	_, err := svc.AssignClassRoom(context.Background(), "t1", AssignClassRoomRequest{CourseID: "c1", ClassRoomID: &target})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.assignedTo)
	assert.Equal(t, "c1", repo.assignedCourse)
	assert.Equal(t, "cr1", repo.assignedRoom)
	assert.Nil(t, repo.updated)
}

func TestAssignClassRoomUnknownCourse(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1"}},
	}
	svc := newTeacherService(repo, nil, nil, nil, nil)

	_, err := svc.AssignClassRoom(context.Background(), "t1", AssignClassRoomRequest{CourseID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherDelete(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1"}},
	}
	svc := newTeacherService(repo, nil, nil, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "t1"))
	assert.Equal(t, []string{"t1"}, repo.deleted)

	err := svc.Delete(context.Background(), "t1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherUploadImageReplacesPrevious(t *testing.T) {
	prev := "old-image.png"
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1", Image: &prev}},
	}
	images := &mockImageStore{allowed: true, maxSize: 3 << 20}
	svc := newTeacherService(repo, nil, nil, nil, images)

	teacher, err := svc.UploadImage(context.Background(), "t1", nil, "photo.png", 1024)
	require.NoError(t, err)
	require.NotNil(t, teacher.Image)
	assert.Equal(t, "stored-file.png", *teacher.Image)
	assert.Equal(t, "stored-file.png", repo.imageUpdates["t1"])
	assert.Contains(t, images.deleted, "old-image.png")
}

func TestTeacherUploadImageRejectsExtension(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1"}},
	}
	images := &mockImageStore{allowed: false, maxSize: 3 << 20}
	svc := newTeacherService(repo, nil, nil, nil, images)

	_, err := svc.UploadImage(context.Background(), "t1", nil, "malware.exe", 1024)
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Fields["image"])
}

func TestTeacherUploadImageRejectsOversize(t *testing.T) {
	repo := &mockTeacherRepo{
		teachers: map[string]models.Teacher{"t1": {ID: "t1"}},
	}
	images := &mockImageStore{allowed: true, maxSize: 3 << 20}
	svc := newTeacherService(repo, nil, nil, nil, images)

	_, err := svc.UploadImage(context.Background(), "t1", nil, "huge.png", (3<<20)+1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
