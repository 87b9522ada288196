package sandbox

import "regexp"

// userIDPattern is the default user_id shape policy (§4.4 precondition 1).
// It is fixed in this package: no configuration option tightens it (for
// example to a UUID from an external auth provider). spec.md §9 leaves the
// choice of deployment mode open and this package picks the permissive
// default.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,255}$`)

// ValidUserID reports whether id satisfies the default user_id shape.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// MaxCommandBytes is the policy maximum length for an exec command (§4.2).
const MaxCommandBytes = 10_000

// ValidCommand reports whether command satisfies the exec input
// constraints: non-empty and bounded in length.
func ValidCommand(command string) bool {
	return len(command) >= 1 && len(command) <= MaxCommandBytes
}
