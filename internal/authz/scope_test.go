package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/lcm-api/internal/models"
)

func TestCenterScopeAdmin(t *testing.T) {
	e := newTestEngine()

	scope, err := e.CenterScope(context.Background(), Actor{ID: "root", Roles: []models.Role{models.RoleAdmin}})
	require.NoError(t, err)
	assert.True(t, scope.All)
	assert.True(t, scope.Contains("anything"))
}

func TestCenterScopeOwnedCenterWins(t *testing.T) {
	e := newTestEngine()

	// owner-a owns center-a; a stale center_id pointing elsewhere must
	// not override the ownership record.
	actor := Actor{ID: "owner-a", Roles: []models.Role{models.RoleCenterAdmin}, CenterID: strptr("center-b")}
	scope, err := e.CenterScope(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "center-a", scope.CenterID)
	assert.False(t, scope.All)
}

func TestCenterScopeCenterIDFallback(t *testing.T) {
	e := newTestEngine()

	// A center admin without an ownership record falls back to center_id.
	actor := Actor{ID: "ca-orphan", Roles: []models.Role{models.RoleCenterAdmin}, CenterID: strptr("center-b")}
	scope, err := e.CenterScope(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "center-b", scope.CenterID)

	// Ordinary members resolve straight through center_id.
	teacher := Actor{ID: "teacher-a", Roles: []models.Role{models.RoleTeacher}, CenterID: strptr("center-a")}
	scope, err = e.CenterScope(context.Background(), teacher)
	require.NoError(t, err)
	assert.Equal(t, "center-a", scope.CenterID)
}

func TestCenterScopeNoCenter(t *testing.T) {
	e := newTestEngine()

	_, err := e.CenterScope(context.Background(), Actor{ID: "drifter", Roles: []models.Role{models.RoleStudent}})
	assert.ErrorIs(t, err, ErrNoCenter)

	_, err = e.CenterScope(context.Background(), Actor{ID: "ca-nothing", Roles: []models.Role{models.RoleCenterAdmin}})
	assert.ErrorIs(t, err, ErrNoCenter)
}

func TestScopeContains(t *testing.T) {
	assert.True(t, Scope{All: true}.Contains(""))
	assert.True(t, Scope{CenterID: "c1"}.Contains("c1"))
	assert.False(t, Scope{CenterID: "c1"}.Contains("c2"))
	assert.False(t, Scope{}.Contains("c1"))
}
