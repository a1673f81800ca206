package authz

import "github.com/edustack/lcm-api/internal/models"

type actionRules map[Action][]predicate
type roleRules map[models.Role]actionRules

// ruleTable is the consolidated role × entity × action policy. Every
// outcome is an explicit allow; anything missing is a deny. Lessons and
// assessments share one rule set: ownership of both derives from the
// group's teacher and center.
var ruleTable = map[Entity]roleRules{
	EntityCenter: {
		models.RoleAdmin: {
			// Center creation stays disabled, admins included.
			ActionViewAny: {anyone},
			ActionView:    {anyone},
			ActionUpdate:  {anyone},
			ActionDelete:  {anyone},
		},
		models.RoleCenterAdmin: {
			ActionViewAny: {scoped},
			ActionView:    {ownCenter},
			ActionUpdate:  {ownCenter},
			ActionDelete:  {ownsCenter},
		},
	},

	EntityGroup: {
		models.RoleAdmin: {
			ActionViewAny: {anyone},
			ActionView:    {anyone},
		},
		models.RoleCenterAdmin: {
			ActionViewAny: {scoped},
			ActionView:    {ownCenter},
			// Deletion requires owning the center: an admin-assigned
			// center_id without an ownership record does not qualify.
			ActionDelete: {ownsCenter},
		},
		models.RoleTeacher: {
			ActionViewAny: {scoped},
			ActionView:    {groupTeacher},
			ActionCreate:  {teacherSelfCreate},
			ActionUpdate:  {groupTeacher},
		},
		models.RoleAssistant: {
			ActionViewAny: {scoped},
			ActionView:    {assistantOfCenter},
			ActionUpdate:  {assistantOfCenter},
		},
		models.RoleStudent: {
			ActionViewAny: {scoped},
			ActionView:    {approvedMember},
		},
		models.RoleParent: {
			ActionViewAny: {scoped},
			ActionView:    {linkedChildMember},
		},
	},

	EntityLesson:     groupChildRules,
	EntityAssessment: groupChildRules,

	EntityAttendance: {
		models.RoleAdmin: {
			ActionViewAny: {anyone},
			ActionView:    {anyone},
		},
		models.RoleCenterAdmin: {
			ActionViewAny: {scoped},
			ActionView:    {ownCenter},
			ActionCreate:  {ownCenter},
			ActionUpdate:  {ownCenter},
			ActionDelete:  {ownCenter},
		},
		models.RoleTeacher: {
			ActionViewAny: {scoped},
			ActionView:    {groupTeacher},
			ActionCreate:  {groupTeacher},
			ActionUpdate:  {groupTeacher},
			ActionDelete:  {groupTeacher},
		},
		models.RoleAssistant: {
			ActionViewAny: {scoped},
			ActionView:    {assistantOfCenter},
			ActionCreate:  {assistantOfCenter},
			ActionUpdate:  {assistantOfCenter},
			ActionDelete:  {assistantOfCenter},
		},
	},

	EntityUser: {
		models.RoleAdmin: {
			ActionViewAny: {anyone},
			ActionView:    {anyone},
			ActionCreate:  {anyone},
			ActionUpdate:  {anyone},
			ActionDelete:  {anyone},
		},
		models.RoleCenterAdmin: {
			ActionViewAny: {scoped},
			ActionView:    {ownCenter},
			ActionCreate:  {ownCenter},
			ActionUpdate:  {ownCenter},
			ActionDelete:  {ownCenter},
		},
		models.RoleTeacher: {
			ActionUpdate: {ownCenter},
		},
		models.RoleAssistant: {
			ActionUpdate: {ownCenter},
		},
	},
}

var groupChildRules = roleRules{
	models.RoleAdmin: {
		ActionViewAny: {anyone},
		ActionView:    {anyone},
	},
	models.RoleCenterAdmin: {
		ActionViewAny: {scoped},
		ActionView:    {ownCenter},
	},
	models.RoleTeacher: {
		ActionViewAny: {scoped},
		ActionView:    {groupTeacher},
		ActionCreate:  {groupTeacher},
		ActionUpdate:  {groupTeacher},
		ActionDelete:  {groupTeacher},
	},
	models.RoleAssistant: {
		ActionViewAny: {scoped},
		ActionView:    {assistantOfCenter},
		ActionCreate:  {assistantOfCenter},
		ActionUpdate:  {assistantOfCenter},
	},
	models.RoleStudent: {
		ActionViewAny: {scoped},
		ActionView:    {approvedMember},
	},
	models.RoleParent: {
		ActionViewAny: {scoped},
		ActionView:    {linkedChildMember},
	},
}
