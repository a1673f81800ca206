package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/lcm-api/internal/models"
)

func userRow(id string, legacyRole interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "status", "approval_status", "center_id", "role", "created_at", "updated_at"}).
		AddRow(id, "Someone", id+"@example.com", "hash", "active", "approved", "center-1", legacyRole, now, now)
}

func TestUserRepositoryFindByIDMergesLegacyRole(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	// The scalar role column says teacher, the role rows say assistant;
	// the normalized set carries both.
	mock.ExpectQuery("SELECT id, name, email").
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "teacher"))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("assistant"))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Role{models.RoleTeacher, models.RoleAssistant}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDLegacyOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	// No role rows at all; a legacy-only user still resolves a role set.
	mock.ExpectQuery("SELECT id, name, email").
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "student"))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleStudent}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDDeduplicatesLegacyRole(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	// The scalar duplicates an existing role row; no double entry.
	mock.ExpectQuery("SELECT id, name, email").
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "teacher"))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("teacher"))

	user, err := repo.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleTeacher}, user.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT id, name, email").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListRoleFilterCoversBothPaths(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	// The role filter must match the legacy scalar OR a role row.
	mock.ExpectQuery(`u\.role = \$2 OR EXISTS`).
		WithArgs("center-1", models.RoleTeacher).
		WillReturnRows(userRow("user-1", "teacher"))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("center-1", models.RoleTeacher).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	role := models.RoleTeacher
	users, total, err := repo.List(context.Background(), models.UserFilter{CenterID: "center-1", Role: &role})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListApprovalStatusFilter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	// Pending approvals filter in SQL, not after the page is cut.
	mock.ExpectQuery(`u\.approval_status = \$2`).
		WithArgs(models.RoleCenterAdmin, models.ApprovalPending).
		WillReturnRows(userRow("user-1", "center_admin"))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(models.RoleCenterAdmin, models.ApprovalPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	role := models.RoleCenterAdmin
	status := models.ApprovalPending
	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, ApprovalStatus: &status})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListMembersIncludesEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT DISTINCT").
		WithArgs("center-1", models.MembershipApproved).
		WillReturnRows(userRow("member-1", nil))
	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("member-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("student"))

	members, err := repo.ListMembers(context.Background(), "center-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, []models.Role{models.RoleStudent}, members[0].Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE groups SET teacher_id = NULL").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM group_students").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM parent_student_links").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM user_roles").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM refresh_tokens").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM users").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryAssignRoleIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("ON CONFLICT \\(user_id, role\\) DO NOTHING").
		WithArgs("user-1", models.RoleAssistant).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignRole(context.Background(), "user-1", models.RoleAssistant)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
