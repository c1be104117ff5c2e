package envelope

// Role identifies one of the three fixed signing parties on an envelope.
type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleAssessor   Role = "assessor"
)

// Roles lists all parties in signing order. Every envelope has exactly these
// three parties, no more, no fewer.
var Roles = []Role{RoleStudent, RoleSupervisor, RoleAssessor}

// ParseRole validates a role string received at the boundary.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleSupervisor, RoleAssessor:
		return Role(s), nil
	}
	return "", NewValidationError("unknown role: " + s)
}

// Status is the sole authoritative progress marker of an envelope.
// Transitions are strictly forward; no operation ever regresses a status.
type Status string

const (
	StatusAwaitingStudent    Status = "awaiting_student"
	StatusAwaitingSupervisor Status = "awaiting_supervisor"
	StatusAwaitingAssessor   Status = "awaiting_assessor"
	StatusCompleted          Status = "completed"
)

// ParseStatus validates a status string read from storage.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAwaitingStudent, StatusAwaitingSupervisor, StatusAwaitingAssessor, StatusCompleted:
		return Status(s), nil
	}
	return "", NewValidationError("unknown status: " + s)
}

// transition describes the single forward edge out of a status.
type transition struct {
	next     Status
	nextRole Role // role invited after the edge is taken; empty when terminal
}

// transitions is the one transition table for the workflow. Every caller that
// needs "who signs next" derives it from here rather than recomputing it.
//
// The assessor's signature does not advance the status: completion is a
// separate operation because it additionally requires an explicit outcome.
var transitions = map[Status]transition{
	StatusAwaitingStudent:    {next: StatusAwaitingSupervisor, nextRole: RoleSupervisor},
	StatusAwaitingSupervisor: {next: StatusAwaitingAssessor, nextRole: RoleAssessor},
	StatusAwaitingAssessor:   {next: StatusCompleted},
}

// expectedRoles maps each non-terminal status to the only role allowed to act on it.
var expectedRoles = map[Status]Role{
	StatusAwaitingStudent:    RoleStudent,
	StatusAwaitingSupervisor: RoleSupervisor,
	StatusAwaitingAssessor:   RoleAssessor,
}

// ExpectedRole returns the role the status is waiting on.
// ok is false for the terminal status.
func (s Status) ExpectedRole() (Role, bool) {
	role, ok := expectedRoles[s]
	return role, ok
}

// Next returns the status reached when the expected role signs, and the role
// invited afterwards. nextRole is empty when the edge leads to a state with no
// further signer (the assessor finishes via the completion operation).
// ok is false when s is terminal.
func (s Status) Next() (next Status, nextRole Role, ok bool) {
	t, ok := transitions[s]
	if !ok {
		return s, "", false
	}
	return t.next, t.nextRole, true
}

// Terminal reports whether no further signing action is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}
