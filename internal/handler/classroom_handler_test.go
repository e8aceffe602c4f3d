package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/sims-api/internal/models"
	"github.com/edupoint/sims-api/internal/service"
)

type fakeClassRoomRepo struct {
	rooms      map[string]*models.ClassRoom
	candidates []models.RosterCandidate
	members    map[string]bool
	nameTaken  bool

	reconciledSelected   []string
	reconciledUnselected []string
}

func newFakeClassRoomRepo() *fakeClassRoomRepo {
	return &fakeClassRoomRepo{rooms: map[string]*models.ClassRoom{}, members: map[string]bool{}}
}

func (f *fakeClassRoomRepo) List(ctx context.Context, filter models.ClassRoomFilter) ([]models.ClassRoom, int, error) {
	out := make([]models.ClassRoom, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeClassRoomRepo) FindByID(ctx context.Context, id string) (*models.ClassRoom, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return room, nil
}

func (f *fakeClassRoomRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassRoomDetail, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ClassRoomDetail{ClassRoom: *room}, nil
}

func (f *fakeClassRoomRepo) IsMember(ctx context.Context, classRoomID, teacherID string) (bool, error) {
	return f.members[teacherID], nil
}

func (f *fakeClassRoomRepo) ListStudents(ctx context.Context, classRoomID string) ([]models.Student, error) {
	return nil, nil
}

func (f *fakeClassRoomRepo) ListRosterCandidates(ctx context.Context, classRoomID string) ([]models.RosterCandidate, error) {
	return f.candidates, nil
}

func (f *fakeClassRoomRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return f.nameTaken, nil
}

func (f *fakeClassRoomRepo) Create(ctx context.Context, room *models.ClassRoom) error {
	room.ID = "room-1"
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeClassRoomRepo) Update(ctx context.Context, room *models.ClassRoom) error {
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeClassRoomRepo) ReconcileRoster(ctx context.Context, classRoomID string, selectedIDs, unselectedIDs []string) error {
	f.reconciledSelected = selectedIDs
	f.reconciledUnselected = unselectedIDs
	return nil
}

func (f *fakeClassRoomRepo) SoftDelete(ctx context.Context, id string) error {
	delete(f.rooms, id)
	return nil
}

type fakeCourseReader struct{}

func (fakeCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: id, Name: "Mathematics"}, nil
}

func newClassRoomRouter(repo *fakeClassRoomRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewClassRoomHandler(service.NewClassRoomService(repo, fakeCourseReader{}, nil, nil, nil))
	router := gin.New()
	router.GET("/classrooms", handler.List)
	router.GET("/classrooms/:id", handler.Get)
	router.POST("/classrooms", handler.Create)
	router.PUT("/classrooms/:id", handler.Update)
	router.DELETE("/classrooms/:id", handler.Delete)
	router.GET("/classrooms/:id/roster", handler.Roster)
	router.PUT("/classrooms/:id/roster", handler.SaveRoster)
	router.GET("/classrooms/:id/roster/export", handler.ExportRoster)
	return router
}

func seedRoom(repo *fakeClassRoomRepo) *models.ClassRoom {
	room := &models.ClassRoom{
		ID:        "room-1",
		Name:      "Class 10A",
		CourseID:  "course-1",
		StartDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Status:    "ACTIVE",
	}
	repo.rooms[room.ID] = room
	return room
}

func TestClassRoomHandlerCreate(t *testing.T) {
	repo := newFakeClassRoomRepo()
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodPost, "/classrooms", service.CreateClassRoomRequest{
		Name:      "Class 10A",
		CourseID:  "course-1",
		StartDate: "2026-01-05",
		EndDate:   "2026-06-30",
		Schedule:  "Mon/Wed 08:00",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, repo.rooms, 1)
}

func TestClassRoomHandlerCreateEndBeforeStart(t *testing.T) {
	repo := newFakeClassRoomRepo()
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodPost, "/classrooms", service.CreateClassRoomRequest{
		Name:      "Class 10A",
		CourseID:  "course-1",
		StartDate: "2026-06-30",
		EndDate:   "2026-01-05",
		Schedule:  "Mon/Wed 08:00",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "End date must be on or after start date.")
	assert.Empty(t, repo.rooms)
}

func TestClassRoomHandlerRoster(t *testing.T) {
	repo := newFakeClassRoomRepo()
	seedRoom(repo)
	repo.candidates = []models.RosterCandidate{
		{Student: models.Student{ID: "s1", FullName: "Alice"}, Selected: true},
		{Student: models.Student{ID: "s2", FullName: "Bob"}, Selected: false},
	}
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodGet, "/classrooms/room-1/roster", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"selected":true`)
	assert.Contains(t, w.Body.String(), "Bob")
}

func TestClassRoomHandlerSaveRoster(t *testing.T) {
	repo := newFakeClassRoomRepo()
	seedRoom(repo)
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodPut, "/classrooms/room-1/roster", []models.RosterSelection{
		{StudentID: "s1", Selected: true},
		{StudentID: "s2", Selected: false},
		{StudentID: "s3", Selected: true},
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"s1", "s3"}, repo.reconciledSelected)
	assert.Equal(t, []string{"s2"}, repo.reconciledUnselected)
}

func TestClassRoomHandlerSaveRosterInvalidBody(t *testing.T) {
	repo := newFakeClassRoomRepo()
	seedRoom(repo)
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodPut, "/classrooms/room-1/roster", map[string]string{"student_id": "s1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, repo.reconciledSelected)
}

func TestClassRoomHandlerExportRosterCSV(t *testing.T) {
	repo := newFakeClassRoomRepo()
	seedRoom(repo)
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodGet, "/classrooms/room-1/roster/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "Full Name")
}

func TestClassRoomHandlerExportRosterUnknownFormat(t *testing.T) {
	repo := newFakeClassRoomRepo()
	seedRoom(repo)
	router := newClassRoomRouter(repo)

	w := performJSON(router, http.MethodGet, "/classrooms/room-1/roster/export?format=xml", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
