package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/lcm-api/internal/models"
)

// fakeGraph answers ownership lookups from in-memory maps.
type fakeGraph struct {
	ownedCenters  map[string]string // userID -> centerID
	centerOwners  map[string]string // centerID -> userID
	groupCenters  map[string]string // groupID -> centerID
	groupTeachers map[string]string // groupID -> teacherID
	members       map[string]bool   // groupID+"/"+studentID -> approved
	parentLinks   map[string]bool   // parentID+"/"+groupID -> has approved child
	assistants    map[string]bool   // userID+"/"+centerID -> enrolled
}

func (g *fakeGraph) OwnedCenterID(_ context.Context, userID string) (string, error) {
	return g.ownedCenters[userID], nil
}

func (g *fakeGraph) CenterOwnerID(_ context.Context, centerID string) (string, error) {
	return g.centerOwners[centerID], nil
}

func (g *fakeGraph) GroupCenterID(_ context.Context, groupID string) (string, error) {
	return g.groupCenters[groupID], nil
}

func (g *fakeGraph) GroupTeacherID(_ context.Context, groupID string) (string, error) {
	return g.groupTeachers[groupID], nil
}

func (g *fakeGraph) IsApprovedMember(_ context.Context, groupID, studentID string) (bool, error) {
	return g.members[groupID+"/"+studentID], nil
}

func (g *fakeGraph) HasApprovedLinkedChild(_ context.Context, parentID, groupID string) (bool, error) {
	return g.parentLinks[parentID+"/"+groupID], nil
}

func (g *fakeGraph) IsAssistantInCenter(_ context.Context, userID, centerID string) (bool, error) {
	return g.assistants[userID+"/"+centerID], nil
}

func newTestEngine() *Engine {
	graph := &fakeGraph{
		ownedCenters:  map[string]string{"owner-a": "center-a", "owner-b": "center-b"},
		centerOwners:  map[string]string{"center-a": "owner-a", "center-b": "owner-b"},
		groupCenters:  map[string]string{"group-a": "center-a", "group-b": "center-b"},
		groupTeachers: map[string]string{"group-a": "teacher-a", "group-b": "teacher-b"},
		members: map[string]bool{
			"group-a/student-a": true,
		},
		parentLinks: map[string]bool{
			"parent-a/group-a": true,
		},
		assistants: map[string]bool{
			"assistant-a/center-a": true,
		},
	}
	return NewEngine(graph, nil)
}

func strptr(s string) *string { return &s }

func groupA() Resource {
	return Resource{Entity: EntityGroup, ID: "group-a", CenterID: "center-a", GroupID: "group-a", TeacherID: "teacher-a"}
}

func TestEngineTenantIsolation(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// Every non-admin role scoped to center-b is denied everything on a
	// center-a group.
	actors := []Actor{
		{ID: "owner-b", Roles: []models.Role{models.RoleCenterAdmin}},
		{ID: "teacher-b", Roles: []models.Role{models.RoleTeacher}, CenterID: strptr("center-b")},
		{ID: "assistant-b", Roles: []models.Role{models.RoleAssistant}, CenterID: strptr("center-b")},
		{ID: "student-b", Roles: []models.Role{models.RoleStudent}, CenterID: strptr("center-b")},
		{ID: "parent-b", Roles: []models.Role{models.RoleParent}, CenterID: strptr("center-b")},
	}
	actions := []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

	for _, actor := range actors {
		for _, action := range actions {
			ok, err := e.Can(ctx, actor, action, groupA())
			require.NoError(t, err)
			assert.False(t, ok, "actor %s should not %s foreign group", actor.ID, action)
		}
	}
}

func TestEngineDenyByDefault(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// A student never creates, updates or deletes anything.
	student := Actor{ID: "student-a", Roles: []models.Role{models.RoleStudent}, CenterID: strptr("center-a")}
	for _, entity := range []Entity{EntityCenter, EntityGroup, EntityLesson, EntityAssessment, EntityAttendance, EntityUser} {
		for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
			ok, err := e.Can(ctx, student, action, Resource{Entity: entity, ID: "x", CenterID: "center-a", GroupID: "group-a"})
			require.NoError(t, err)
			assert.False(t, ok, "student should not %s %s", action, entity)
		}
	}

	// Roleless actors get nothing.
	nobody := Actor{ID: "nobody"}
	ok, err := e.Can(ctx, nobody, ActionView, groupA())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineAdminCannotTouchGroupContent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	admin := Actor{ID: "root", Roles: []models.Role{models.RoleAdmin}}

	ok, err := e.Can(ctx, admin, ActionView, groupA())
	require.NoError(t, err)
	assert.True(t, ok)

	// Platform admins observe but never mutate teaching content.
	for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
		ok, err := e.Can(ctx, admin, action, groupA())
		require.NoError(t, err)
		assert.False(t, ok, "admin should not %s groups", action)
	}
	for _, entity := range []Entity{EntityLesson, EntityAssessment, EntityAttendance} {
		ok, err := e.Can(ctx, admin, ActionUpdate, Resource{Entity: entity, GroupID: "group-a"})
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestEngineOwnershipAsymmetry(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// A center admin assigned center-a via center_id, without an
	// ownership record, may update but not delete.
	assigned := Actor{ID: "ca-assigned", Roles: []models.Role{models.RoleCenterAdmin}, CenterID: strptr("center-a")}
	center := Resource{Entity: EntityCenter, ID: "center-a", CenterID: "center-a"}

	ok, err := e.Can(ctx, assigned, ActionUpdate, center)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Can(ctx, assigned, ActionDelete, center)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Can(ctx, assigned, ActionDelete, groupA())
	require.NoError(t, err)
	assert.False(t, ok)

	// The owning user may delete both.
	owner := Actor{ID: "owner-a", Roles: []models.Role{models.RoleCenterAdmin}}
	ok, err = e.Can(ctx, owner, ActionDelete, center)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Can(ctx, owner, ActionDelete, groupA())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngineTeacherSelfCreate(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	teacher := Actor{ID: "teacher-a", Roles: []models.Role{models.RoleTeacher}, CenterID: strptr("center-a")}

	// Creating a group with themselves as teacher inside their center.
	ok, err := e.Can(ctx, teacher, ActionCreate, Resource{Entity: EntityGroup, CenterID: "center-a", TeacherID: "teacher-a"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Not for another teacher.
	ok, err = e.Can(ctx, teacher, ActionCreate, Resource{Entity: EntityGroup, CenterID: "center-a", TeacherID: "teacher-b"})
	require.NoError(t, err)
	assert.False(t, ok)

	// Not in a foreign center.
	ok, err = e.Can(ctx, teacher, ActionCreate, Resource{Entity: EntityGroup, CenterID: "center-b", TeacherID: "teacher-a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineTeacherOwnsGroupContent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	teacher := Actor{ID: "teacher-a", Roles: []models.Role{models.RoleTeacher}, CenterID: strptr("center-a")}

	for _, entity := range []Entity{EntityLesson, EntityAssessment, EntityAttendance} {
		for _, action := range []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete} {
			ok, err := e.Can(ctx, teacher, action, Resource{Entity: entity, GroupID: "group-a", CenterID: "center-a", TeacherID: "teacher-a"})
			require.NoError(t, err)
			assert.True(t, ok, "teacher should %s own group's %s", action, entity)
		}
		// Never on another teacher's group.
		ok, err := e.Can(ctx, teacher, ActionUpdate, Resource{Entity: entity, GroupID: "group-b", CenterID: "center-b", TeacherID: "teacher-b"})
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestEngineAssistantDualPath(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// Path one: direct center_id.
	direct := Actor{ID: "assistant-x", Roles: []models.Role{models.RoleAssistant}, CenterID: strptr("center-a")}
	ok, err := e.Can(ctx, direct, ActionUpdate, groupA())
	require.NoError(t, err)
	assert.True(t, ok)

	// Path two: no center_id but enrolled in a group of the center.
	// assistantOfCenter still needs the actor to resolve a scope first
	// for list rules, but direct checks pass through the enrollment map.
	enrolled := Actor{ID: "assistant-a", Roles: []models.Role{models.RoleAssistant}, CenterID: strptr("center-a")}
	ok, err = e.Can(ctx, enrolled, ActionCreate, Resource{Entity: EntityAttendance, GroupID: "group-a", CenterID: "center-a"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Assistants never delete lessons or assessments.
	ok, err = e.Can(ctx, direct, ActionDelete, Resource{Entity: EntityLesson, GroupID: "group-a", CenterID: "center-a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineStudentAndParentVisibility(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	member := Actor{ID: "student-a", Roles: []models.Role{models.RoleStudent}, CenterID: strptr("center-a")}
	outsider := Actor{ID: "student-x", Roles: []models.Role{models.RoleStudent}, CenterID: strptr("center-a")}

	ok, err := e.Can(ctx, member, ActionView, groupA())
	require.NoError(t, err)
	assert.True(t, ok)

	// Same center is not enough without an approved membership.
	ok, err = e.Can(ctx, outsider, ActionView, groupA())
	require.NoError(t, err)
	assert.False(t, ok)

	parent := Actor{ID: "parent-a", Roles: []models.Role{models.RoleParent}, CenterID: strptr("center-a")}
	ok, err = e.Can(ctx, parent, ActionView, Resource{Entity: EntityLesson, GroupID: "group-a"})
	require.NoError(t, err)
	assert.True(t, ok)

	strangerParent := Actor{ID: "parent-x", Roles: []models.Role{models.RoleParent}, CenterID: strptr("center-a")}
	ok, err = e.Can(ctx, strangerParent, ActionView, Resource{Entity: EntityLesson, GroupID: "group-a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineUserSelfView(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// Any role, including none in the table, may view its own record.
	self := Actor{ID: "student-a", Roles: []models.Role{models.RoleStudent}}
	ok, err := e.Can(ctx, self, ActionView, Resource{Entity: EntityUser, ID: "student-a"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Can(ctx, self, ActionView, Resource{Entity: EntityUser, ID: "somebody-else", CenterID: "center-a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngineCenterCreateDisabled(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// Nobody creates centers through the policy, admins included.
	for _, role := range models.AllRoles {
		actor := Actor{ID: "u", Roles: []models.Role{role}, CenterID: strptr("center-a")}
		ok, err := e.Can(ctx, actor, ActionCreate, Resource{Entity: EntityCenter, CenterID: "center-a"})
		require.NoError(t, err)
		assert.False(t, ok, "role %s should not create centers", role)
	}
}

func TestEngineMultiRoleUnion(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	// A teacher+assistant actor gets the union of both rule sets: the
	// assistant path grants update on a colleague's group in the same
	// center even though the teacher path would deny it.
	dual := Actor{ID: "assistant-a", Roles: []models.Role{models.RoleTeacher, models.RoleAssistant}, CenterID: strptr("center-a")}
	ok, err := e.Can(ctx, dual, ActionUpdate, groupA())
	require.NoError(t, err)
	assert.True(t, ok)
}
