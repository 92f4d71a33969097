package domain

import (
	"fmt"
	"testing"
)

func TestValidLeadStatus(t *testing.T) {
	for _, status := range LeadStatuses() {
		if !ValidLeadStatus(status) {
			t.Fatalf("expected %s to be valid", status)
		}
	}
	for _, status := range []LeadStatus{"", "Archived", "new"} {
		if ValidLeadStatus(status) {
			t.Fatalf("expected %q to be invalid", status)
		}
	}
}

func TestValidRoleExcludesSentinel(t *testing.T) {
	for _, role := range []Role{RoleSuperAdmin, RoleAdmin, RoleCoordinator, RoleEngineer} {
		if !ValidRole(role) {
			t.Fatalf("expected %s to be storable", role)
		}
	}
	if ValidRole(RoleAll) {
		t.Fatalf("sentinel role must not be storable")
	}
	if ValidRole("Manager") {
		t.Fatalf("unknown role must not be storable")
	}
}

func TestValidFailureReason(t *testing.T) {
	for _, reason := range FailureReasons() {
		if !ValidFailureReason(reason) {
			t.Fatalf("expected %s to be valid", reason)
		}
	}
	if ValidFailureReason("Bad timing") {
		t.Fatalf("unknown reason must be invalid")
	}
}

func TestUserEmailEquals(t *testing.T) {
	u := User{Email: "Priya@Example.com"}
	if !u.EmailEquals("priya@example.COM") {
		t.Fatalf("expected case-insensitive match")
	}
	if u.EmailEquals("other@example.com") {
		t.Fatalf("expected mismatch")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	res.Merge(Result{})
	if res.HasBlocking() {
		t.Fatalf("empty result must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !res.HasBlocking() {
		t.Fatalf("block severity must block")
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected merged violations, got %d", len(res.Violations))
	}
}

func TestErrorHelpers(t *testing.T) {
	ve := ValidationError{Field: "email", Message: "is required"}
	if ve.Error() != "email: is required" {
		t.Fatalf("unexpected message %q", ve.Error())
	}
	if !IsValidation(ve) || IsValidation(fmt.Errorf("other")) {
		t.Fatalf("validation detection broken")
	}
	wrapped := fmt.Errorf("create user: %w", ve)
	if !IsValidation(wrapped) {
		t.Fatalf("expected wrapped validation error to match")
	}

	nf := NotFoundError{Entity: EntityLead, ID: 7}
	if nf.Error() != "lead 7 not found" {
		t.Fatalf("unexpected message %q", nf.Error())
	}
	if !IsNotFound(nf) || IsNotFound(ve) {
		t.Fatalf("not-found detection broken")
	}
}
