package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/sims-api/internal/models"
	appErrors "github.com/edupoint/sims-api/pkg/errors"
)

type mockCourseRepo struct {
	courses    map[string]models.Course
	names      map[string]bool
	references map[string]int
	created    *models.Course
	deleted    []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var list []models.Course
	for _, c := range m.courses {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	return m.names[name], nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]models.Course)
	}
	if course.ID == "" {
		course.ID = "new-course"
	}
	m.courses[course.ID] = *course
	m.created = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = *course
	return nil
}

func (m *mockCourseRepo) CountReferences(ctx context.Context, id string) (int, error) {
	return m.references[id], nil
}

func (m *mockCourseRepo) SoftDelete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.courses, id)
	return nil
}

func TestCourseCreate(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{Name: "Mathematics"})
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", course.Name)
	assert.Equal(t, "ACTIVE", course.Status)
}

func TestCourseCreateDuplicateName(t *testing.T) {
	repo := &mockCourseRepo{names: map[string]bool{"Mathematics": true}}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{Name: "Mathematics"})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Fields["name"])
}

func TestCourseDeleteRejectedWhileReferenced(t *testing.T) {
	repo := &mockCourseRepo{
		courses:    map[string]models.Course{"c1": {ID: "c1", Name: "Mathematics"}},
		references: map[string]int{"c1": 2},
	}
	svc := NewCourseService(repo, nil, nil)

	err := svc.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestCourseDelete(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]models.Course{"c1": {ID: "c1", Name: "Mathematics"}},
	}
	svc := NewCourseService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, repo.deleted)
}

func TestCourseGetNotFound(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
