package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type mockGroupRepo struct {
	groups      map[string]models.Group
	byStudent   map[string][]string // studentID -> group IDs
	lastFilters []models.GroupFilter
	deleted     []string
}

func (m *mockGroupRepo) FindByID(_ context.Context, id string) (*models.Group, error) {
	if g, ok := m.groups[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) List(_ context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	m.lastFilters = append(m.lastFilters, filter)
	var out []models.Group
	if filter.StudentID != "" {
		for _, id := range m.byStudent[filter.StudentID] {
			out = append(out, m.groups[id])
		}
		return out, len(out), nil
	}
	for _, g := range m.groups {
		if filter.CenterID != "" && g.CenterID != filter.CenterID {
			continue
		}
		if filter.TeacherID != "" && !g.TaughtBy(filter.TeacherID) {
			continue
		}
		out = append(out, g)
	}
	return out, len(out), nil
}

func (m *mockGroupRepo) Create(_ context.Context, group *models.Group) error {
	if m.groups == nil {
		m.groups = make(map[string]models.Group)
	}
	if group.ID == "" {
		group.ID = "generated"
	}
	m.groups[group.ID] = *group
	return nil
}

func (m *mockGroupRepo) Update(_ context.Context, group *models.Group) error {
	m.groups[group.ID] = *group
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.groups, id)
	return nil
}

type mockParentLinks struct {
	links map[string][]models.ParentStudentLink
}

func (m *mockParentLinks) ListChildren(_ context.Context, parentID string) ([]models.ParentStudentLink, error) {
	return m.links[parentID], nil
}

func newGroupFixture() (*GroupService, *mockGroupRepo, *mockRosterCache) {
	teacher1 := "teacher-1"
	teacher2 := "teacher-2"
	repo := &mockGroupRepo{
		groups: map[string]models.Group{
			"group-1": {ID: "group-1", CenterID: "center-1", TeacherID: &teacher1, Name: "Algebra", Subject: "Math", IsActive: true},
			"group-2": {ID: "group-2", CenterID: "center-1", TeacherID: &teacher2, Name: "Physics", Subject: "Science", IsActive: true},
			"group-3": {ID: "group-3", CenterID: "center-2", Name: "Biology", Subject: "Science", IsActive: true},
		},
		byStudent: map[string][]string{
			"student-1": {"group-1"},
			"child-a":   {"group-1", "group-2"},
			"child-b":   {"group-2"},
		},
	}
	links := &mockParentLinks{links: map[string][]models.ParentStudentLink{
		"parent-1": {
			{ParentID: "parent-1", StudentID: "child-a"},
			{ParentID: "parent-1", StudentID: "child-b"},
		},
	}}
	engine := authz.NewEngine(&stubGraph{
		ownedCenters: map[string]string{"owner-1": "center-1"},
		centerOwners: map[string]string{"center-1": "owner-1", "center-2": "owner-2"},
	}, nil)
	cache := &mockRosterCache{}
	svc := NewGroupService(repo, links, engine, cache, validator.New(), zap.NewNop())
	return svc, repo, cache
}

func TestGroupCreateByTeacher(t *testing.T) {
	svc, repo, _ := newGroupFixture()

	group, err := svc.Create(context.Background(), teacherActor(), CreateGroupRequest{
		Name:    "Geometry",
		Subject: "Math",
		Days:    "mon,wed",
	})
	require.NoError(t, err)
	assert.Equal(t, "center-1", group.CenterID)
	require.NotNil(t, group.TeacherID)
	assert.Equal(t, "teacher-1", *group.TeacherID)
	assert.True(t, group.IsActive)
	assert.Contains(t, repo.groups, group.ID)
}

func TestGroupCreateDeniedForAdmin(t *testing.T) {
	svc, _, _ := newGroupFixture()

	_, err := svc.Create(context.Background(), adminActor(), CreateGroupRequest{Name: "X", Subject: "Y"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGroupCreateDeniedForStudent(t *testing.T) {
	svc, _, _ := newGroupFixture()

	_, err := svc.Create(context.Background(), studentActor("student-1"), CreateGroupRequest{Name: "X", Subject: "Y"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGroupGetHidesForeign(t *testing.T) {
	svc, _, _ := newGroupFixture()

	// Own group is visible.
	group, err := svc.Get(context.Background(), teacherActor(), "group-1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra", group.Name)

	// A colleague's group in the same center looks missing to a teacher.
	_, err = svc.Get(context.Background(), teacherActor(), "group-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupListClampsByRole(t *testing.T) {
	svc, repo, _ := newGroupFixture()
	ctx := context.Background()

	groups, _, err := svc.List(ctx, adminActor(), models.GroupFilter{})
	require.NoError(t, err)
	assert.Len(t, groups, 3)

	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}
	groups, _, err = svc.List(ctx, owner, models.GroupFilter{})
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	groups, _, err = svc.List(ctx, teacherActor(), models.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "group-1", groups[0].ID)

	groups, _, err = svc.List(ctx, studentActor("student-1"), models.GroupFilter{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "student-1", repo.lastFilters[len(repo.lastFilters)-1].StudentID)
}

func TestGroupListParentMergesChildren(t *testing.T) {
	svc, _, _ := newGroupFixture()
	centerID := "center-1"
	parent := authz.Actor{ID: "parent-1", Roles: []models.Role{models.RoleParent}, CenterID: &centerID}

	// child-a is in group-1 and group-2, child-b in group-2; the merged
	// view dedupes group-2.
	groups, total, err := svc.List(context.Background(), parent, models.GroupFilter{})
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Equal(t, 2, total)
}

func TestGroupListNoScopeIsEmpty(t *testing.T) {
	svc, _, _ := newGroupFixture()

	orphan := authz.Actor{ID: "orphan", Roles: []models.Role{models.RoleAssistant}}
	groups, total, err := svc.List(context.Background(), orphan, models.GroupFilter{})
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Zero(t, total)
}

func TestGroupUpdateByTeacher(t *testing.T) {
	svc, _, _ := newGroupFixture()
	inactive := false

	group, err := svc.Update(context.Background(), teacherActor(), "group-1", UpdateGroupRequest{
		Name:     "Algebra II",
		Subject:  "Math",
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", group.Name)
	assert.False(t, group.IsActive)
}

func TestGroupUpdateDeniedByAdmin(t *testing.T) {
	svc, _, _ := newGroupFixture()

	// Platform admins see groups but never edit them.
	_, err := svc.Update(context.Background(), adminActor(), "group-1", UpdateGroupRequest{Name: "X", Subject: "Y"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGroupDeleteRequiresOwnership(t *testing.T) {
	svc, repo, cache := newGroupFixture()
	ctx := context.Background()

	// The teacher cannot delete their own group.
	err := svc.Delete(ctx, teacherActor(), "group-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// The center owner can.
	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}
	err = svc.Delete(ctx, owner, "group-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "group-1")
	assert.Contains(t, cache.invalidated, "group-1")
}
