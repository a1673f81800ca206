package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
)

type mockRegistrationRepo struct {
	registered []models.User
	centers    []models.Center
	members    []models.User
	memberRole [][]models.Role
	groupIDs   []string
}

func (m *mockRegistrationRepo) RegisterCenterAdmin(_ context.Context, user *models.User, center *models.Center) error {
	user.ID = "new-admin"
	user.ApprovalStatus = models.ApprovalPending
	center.ID = "new-center"
	center.IsActive = false
	m.registered = append(m.registered, *user)
	m.centers = append(m.centers, *center)
	return nil
}

func (m *mockRegistrationRepo) CreateMember(_ context.Context, user *models.User, roles []models.Role, groupID string) error {
	user.ID = "new-member"
	m.members = append(m.members, *user)
	m.memberRole = append(m.memberRole, roles)
	m.groupIDs = append(m.groupIDs, groupID)
	return nil
}

type mockEmailReader struct {
	known map[string]models.User
}

func (m *mockEmailReader) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m.known[email]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func newRegistrationFixture() (*RegistrationService, *mockRegistrationRepo, *mockEmailReader, *mockNotifier) {
	repo := &mockRegistrationRepo{}
	emails := &mockEmailReader{known: map[string]models.User{}}
	engine := authz.NewEngine(&stubGraph{
		ownedCenters: map[string]string{"owner-1": "center-1"},
		centerOwners: map[string]string{"center-1": "owner-1"},
	}, nil)
	notify := &mockNotifier{}
	svc := NewRegistrationService(repo, emails, engine, notify, validator.New(), zap.NewNop())
	return svc, repo, emails, notify
}

func TestRegisterCenterAdmin(t *testing.T) {
	svc, repo, _, notify := newRegistrationFixture()

	user, err := svc.RegisterCenterAdmin(context.Background(), RegisterCenterRequest{
		Name:       "Jane Owner",
		Email:      "jane@example.com",
		Password:   "secret-password",
		CenterName: "Brightside Learning",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, user.ApprovalStatus)
	assert.Equal(t, []models.Role{models.RoleCenterAdmin}, user.Roles)
	require.Len(t, repo.centers, 1)
	assert.False(t, repo.centers[0].IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")))
	require.Len(t, notify.sent, 1)
	assert.Equal(t, models.NotificationWelcome, notify.sent[0].Type)
}

func TestRegisterCenterAdminDuplicateEmail(t *testing.T) {
	svc, repo, emails, _ := newRegistrationFixture()
	emails.known["jane@example.com"] = models.User{ID: "existing"}

	_, err := svc.RegisterCenterAdmin(context.Background(), RegisterCenterRequest{
		Name:       "Jane Owner",
		Email:      "jane@example.com",
		Password:   "secret-password",
		CenterName: "Brightside Learning",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.registered)
}

func TestRegisterCenterAdminValidation(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()

	// Password below the minimum length.
	_, err := svc.RegisterCenterAdmin(context.Background(), RegisterCenterRequest{
		Name:       "Jane",
		Email:      "jane@example.com",
		Password:   "short",
		CenterName: "Center",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateMemberInheritsCenter(t *testing.T) {
	svc, repo, _, _ := newRegistrationFixture()
	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}

	user, err := svc.CreateMember(context.Background(), owner, CreateMemberRequest{
		Name:     "New Teacher",
		Email:    "teacher@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleTeacher},
	})
	require.NoError(t, err)
	require.NotNil(t, user.CenterID)
	assert.Equal(t, "center-1", *user.CenterID)
	assert.Equal(t, []models.Role{models.RoleTeacher}, user.Roles)
	require.Len(t, repo.members, 1)
}

func TestCreateMemberPassesGroupThrough(t *testing.T) {
	svc, repo, _, _ := newRegistrationFixture()
	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}

	_, err := svc.CreateMember(context.Background(), owner, CreateMemberRequest{
		Name:     "New Student",
		Email:    "student@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleStudent},
		GroupID:  "group-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.groupIDs, 1)
	assert.Equal(t, "group-1", repo.groupIDs[0])
}

func TestCreateMemberRejectsAdminRole(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()
	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}

	_, err := svc.CreateMember(context.Background(), owner, CreateMemberRequest{
		Name:     "Sneaky",
		Email:    "sneaky@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleAdmin},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateMemberRequiresCenterScope(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()

	// A center admin without an owned center or center_id has no scope.
	orphan := authz.Actor{ID: "orphan", Roles: []models.Role{models.RoleCenterAdmin}}
	_, err := svc.CreateMember(context.Background(), orphan, CreateMemberRequest{
		Name:     "X",
		Email:    "x@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleStudent},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateMemberRejectsGlobalAdminActor(t *testing.T) {
	svc, _, _, _ := newRegistrationFixture()

	admin := authz.Actor{ID: "root", Roles: []models.Role{models.RoleAdmin}}
	_, err := svc.CreateMember(context.Background(), admin, CreateMemberRequest{
		Name:     "X",
		Email:    "x@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleStudent},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateMemberDuplicateEmail(t *testing.T) {
	svc, _, emails, _ := newRegistrationFixture()
	emails.known["taken@example.com"] = models.User{ID: "existing"}
	owner := authz.Actor{ID: "owner-1", Roles: []models.Role{models.RoleCenterAdmin}}

	_, err := svc.CreateMember(context.Background(), owner, CreateMemberRequest{
		Name:     "X",
		Email:    "taken@example.com",
		Password: "secret-password",
		Roles:    []models.Role{models.RoleStudent},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
