package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/lcm-api/internal/models"
)

func TestRegistrationRepositoryRegisterCenterAdmin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO centers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), models.RoleCenterAdmin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Name: "Jane", Email: "jane@example.com", PasswordHash: "hash"}
	center := &models.Center{Name: "Brightside"}
	err := repo.RegisterCenterAdmin(context.Background(), user, center)
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, models.ApprovalPending, user.ApprovalStatus)
	assert.Equal(t, user.ID, center.OwnerID)
	assert.False(t, center.IsActive)
	require.NotNil(t, user.CenterID)
	assert.Equal(t, center.ID, *user.CenterID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRegisterCenterAdminRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO centers").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	user := &models.User{Name: "Jane", Email: "jane@example.com", PasswordHash: "hash"}
	err := repo.RegisterCenterAdmin(context.Background(), user, &models.Center{Name: "Brightside"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateMember(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), models.RoleStudent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO group_students").
		WithArgs("group-1", sqlmock.AnyArg(), models.MembershipApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	centerID := "center-1"
	user := &models.User{Name: "Kid", Email: "kid@example.com", PasswordHash: "hash", CenterID: &centerID}
	err := repo.CreateMember(context.Background(), user, []models.Role{models.RoleStudent}, "group-1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateMemberWithoutGroup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), models.RoleTeacher).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(sqlmock.AnyArg(), models.RoleAssistant).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	centerID := "center-1"
	user := &models.User{Name: "Helper", Email: "helper@example.com", PasswordHash: "hash", CenterID: &centerID}
	err := repo.CreateMember(context.Background(), user, []models.Role{models.RoleTeacher, models.RoleAssistant}, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
