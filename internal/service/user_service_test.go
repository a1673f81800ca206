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

type mockUserRepo struct {
	users       map[string]models.User
	members     map[string][]models.User
	lastFilter  models.UserFilter
	assigned    []string
	removed     []string
	centerFixes []string
	deleted     []string
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastFilter = filter
	var out []models.User
	for _, u := range m.users {
		if filter.CenterID != "" && (u.CenterID == nil || *u.CenterID != filter.CenterID) {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) ListMembers(_ context.Context, centerID string) ([]models.User, error) {
	return m.members[centerID], nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.users[user.ID] = *user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) AssignRole(_ context.Context, userID string, role models.Role) error {
	m.assigned = append(m.assigned, userID+"/"+string(role))
	return nil
}

func (m *mockUserRepo) RemoveRole(_ context.Context, userID string, role models.Role) error {
	m.removed = append(m.removed, userID+"/"+string(role))
	return nil
}

func (m *mockUserRepo) UpdateCenterID(_ context.Context, id, centerID string) error {
	m.centerFixes = append(m.centerFixes, id+"/"+centerID)
	return nil
}

func newUserFixture() (*UserService, *mockUserRepo) {
	c1 := "center-1"
	c2 := "center-2"
	repo := &mockUserRepo{
		users: map[string]models.User{
			"student-1": {ID: "student-1", Name: "Student One", Email: "s1@example.com", CenterID: &c1, Roles: []models.Role{models.RoleStudent}, Status: models.UserStatusActive},
			"teacher-1": {ID: "teacher-1", Name: "Teacher One", Email: "t1@example.com", CenterID: &c1, Roles: []models.Role{models.RoleTeacher}, Status: models.UserStatusActive},
			"outsider":  {ID: "outsider", Name: "Far Away", Email: "out@example.com", CenterID: &c2, Roles: []models.Role{models.RoleStudent}, Status: models.UserStatusActive},
			"drifter":   {ID: "drifter", Name: "No Center", Email: "drift@example.com", Roles: []models.Role{models.RoleStudent}, Status: models.UserStatusActive},
		},
		members: map[string][]models.User{
			"center-1": {{ID: "student-1"}, {ID: "teacher-1"}},
		},
	}
	engine := authz.NewEngine(&stubGraph{
		ownedCenters: map[string]string{"owner-1": "center-1"},
		centerOwners: map[string]string{"center-1": "owner-1"},
	}, nil)
	svc := NewUserService(repo, engine, validator.New(), zap.NewNop())
	return svc, repo
}

func ownerActor() authz.Actor {
	return authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}
}

func TestUserGetCrossCenterLooksMissing(t *testing.T) {
	svc, _ := newUserFixture()
	ctx := context.Background()

	user, err := svc.Get(ctx, ownerActor(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, "Student One", user.Name)

	// The other center's student reads as not found, not forbidden.
	_, err = svc.Get(ctx, ownerActor(), "outsider")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "user not found", appErr.Message)
}

func TestUserGetSelf(t *testing.T) {
	svc, _ := newUserFixture()
	centerID := "center-1"
	self := authz.Actor{ID: "student-1", Roles: []models.Role{models.RoleStudent}, CenterID: &centerID}

	user, err := svc.Get(context.Background(), self, "student-1")
	require.NoError(t, err)
	assert.Equal(t, "student-1", user.ID)

	// But not a classmate.
	_, err = svc.Get(context.Background(), self, "teacher-1")
	require.Error(t, err)
}

func TestUserListClampsToScope(t *testing.T) {
	svc, repo := newUserFixture()
	ctx := context.Background()

	users, _, err := svc.List(ctx, ownerActor(), models.UserFilter{CenterID: "center-2"})
	require.NoError(t, err)
	// The requested center-2 filter is overridden by the actor's scope.
	assert.Equal(t, "center-1", repo.lastFilter.CenterID)
	for _, u := range users {
		require.NotNil(t, u.CenterID)
		assert.Equal(t, "center-1", *u.CenterID)
	}

	_, _, err = svc.List(ctx, adminActor(), models.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.CenterID)
}

func TestUserListNoScopeIsEmpty(t *testing.T) {
	svc, _ := newUserFixture()

	orphan := authz.Actor{ID: "orphan", Roles: []models.Role{models.RoleTeacher}}
	users, total, err := svc.List(context.Background(), orphan, models.UserFilter{})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Zero(t, total)
}

func TestUserMembers(t *testing.T) {
	svc, _ := newUserFixture()

	members, err := svc.Members(context.Background(), ownerActor())
	require.NoError(t, err)
	assert.Len(t, members, 2)

	// Admins have no single center to list.
	_, err = svc.Members(context.Background(), adminActor())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdate(t *testing.T) {
	svc, repo := newUserFixture()
	inactive := models.UserStatusInactive

	user, err := svc.Update(context.Background(), ownerActor(), "student-1", UpdateUserRequest{
		Name:   "Renamed",
		Email:  "renamed@example.com",
		Status: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", user.Name)
	assert.Equal(t, models.UserStatusInactive, user.Status)
	assert.Equal(t, "Renamed", repo.users["student-1"].Name)

	// Cross-center update is forbidden.
	_, err = svc.Update(context.Background(), ownerActor(), "outsider", UpdateUserRequest{Name: "X", Email: "x@example.com"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserAssignRole(t *testing.T) {
	svc, repo := newUserFixture()
	ctx := context.Background()

	err := svc.AssignRole(ctx, ownerActor(), "student-1", models.RoleAssistant)
	require.NoError(t, err)
	assert.Contains(t, repo.assigned, "student-1/assistant")

	// Only admins grant admin.
	err = svc.AssignRole(ctx, ownerActor(), "student-1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.AssignRole(ctx, ownerActor(), "student-1", models.Role("sorcerer"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserRemoveRole(t *testing.T) {
	svc, repo := newUserFixture()

	err := svc.RemoveRole(context.Background(), ownerActor(), "teacher-1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Contains(t, repo.removed, "teacher-1/teacher")
}

func TestUserRepairCenterID(t *testing.T) {
	svc, repo := newUserFixture()
	ctx := context.Background()

	err := svc.RepairCenterID(ctx, adminActor(), "drifter", "center-1")
	require.NoError(t, err)
	assert.Contains(t, repo.centerFixes, "drifter/center-1")

	// Admin only.
	err = svc.RepairCenterID(ctx, ownerActor(), "drifter", "center-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.RepairCenterID(ctx, adminActor(), "drifter", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserDelete(t *testing.T) {
	svc, repo := newUserFixture()

	err := svc.Delete(context.Background(), adminActor(), "student-1")
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "student-1")

	err = svc.Delete(context.Background(), ownerActor(), "outsider")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
