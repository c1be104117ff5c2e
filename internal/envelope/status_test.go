package envelope

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name         string
		status       Status
		wantNext     Status
		wantNextRole Role
		wantOK       bool
	}{
		{"student hands to supervisor", StatusAwaitingStudent, StatusAwaitingSupervisor, RoleSupervisor, true},
		{"supervisor hands to assessor", StatusAwaitingSupervisor, StatusAwaitingAssessor, RoleAssessor, true},
		{"assessor edge has no next signer", StatusAwaitingAssessor, StatusCompleted, "", true},
		{"completed is terminal", StatusCompleted, StatusCompleted, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, nextRole, ok := tt.status.Next()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if next != tt.wantNext {
				t.Errorf("next = %v, want %v", next, tt.wantNext)
			}
			if nextRole != tt.wantNextRole {
				t.Errorf("nextRole = %v, want %v", nextRole, tt.wantNextRole)
			}
		})
	}
}

func TestExpectedRole(t *testing.T) {
	tests := []struct {
		status   Status
		wantRole Role
		wantOK   bool
	}{
		{StatusAwaitingStudent, RoleStudent, true},
		{StatusAwaitingSupervisor, RoleSupervisor, true},
		{StatusAwaitingAssessor, RoleAssessor, true},
		{StatusCompleted, "", false},
	}

	for _, tt := range tests {
		role, ok := tt.status.ExpectedRole()
		if ok != tt.wantOK || role != tt.wantRole {
			t.Errorf("ExpectedRole(%v) = (%v, %v), want (%v, %v)",
				tt.status, role, ok, tt.wantRole, tt.wantOK)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, role := range Roles {
		got, err := ParseRole(string(role))
		if err != nil || got != role {
			t.Errorf("ParseRole(%q) = (%v, %v), want (%v, nil)", role, got, err, role)
		}
	}

	if _, err := ParseRole("trainer"); err == nil {
		t.Error("expected error for unknown role, got nil")
	}
}

func TestParseOutcome(t *testing.T) {
	for _, s := range []string{"COMPETENT", "NOT_YET_COMPETENT"} {
		if _, err := ParseOutcome(s); err != nil {
			t.Errorf("ParseOutcome(%q) error = %v", s, err)
		}
	}

	for _, s := range []string{"", "competent", "PASSED"} {
		if _, err := ParseOutcome(s); err == nil {
			t.Errorf("ParseOutcome(%q) expected error, got nil", s)
		}
	}
}

func TestTerminal(t *testing.T) {
	if StatusAwaitingAssessor.Terminal() {
		t.Error("awaiting_assessor should not be terminal")
	}
	if !StatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
}
