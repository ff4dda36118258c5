package model

// Role names as stored in the users.role column.  The four roles form a
// strict privilege order: student < teacher < librarian < admin.  A higher
// role satisfies every requirement a lower role satisfies, so route guards
// only ever need to name the minimum role they accept.
const (
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
	RoleLibrarian = "librarian"
	RoleAdmin     = "admin"
)

// roleLevels maps each role name to its numeric privilege level.  Anything
// not present in the map (including the empty string) has level 0 and will
// fail every requirement.  Failing closed on unknown roles means a corrupted
// or missing role claim can never grant access.
var roleLevels = map[string]int{
	RoleStudent:   1,
	RoleTeacher:   2,
	RoleLibrarian: 3,
	RoleAdmin:     4,
}

// RoleLevel returns the privilege level for a role name, or 0 when the
// role is unknown.
func RoleLevel(role string) int {
	return roleLevels[role]
}

// ValidRole reports whether role is one of the four known role names.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// Satisfies reports whether a principal holding `role` meets a requirement
// of `required`.  It is the single authority for hierarchical permission
// checks; handlers and middleware must not compare role strings directly.
func Satisfies(role, required string) bool {
	return roleLevels[role] >= roleLevels[required] && roleLevels[required] > 0
}

// CompareRoles orders two roles by privilege level.  It returns a negative
// value when a is outranked by b, zero when they are equal, and a positive
// value when a outranks b.
func CompareRoles(a, b string) int {
	return roleLevels[a] - roleLevels[b]
}
