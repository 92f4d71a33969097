package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/pkg/domain"
)

func newTestService(t *testing.T, engine *RulesEngine, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(engine)
	return NewService(store, opts...), store
}

func mustUser(t *testing.T, svc *Service, name, email string, role Role) User {
	t.Helper()
	start := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	user, _, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name:      name,
		Email:     email,
		Password:  "secret",
		Role:      role,
		StartDate: &start,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func mustLead(t *testing.T, svc *Service, name, assignedTo string) Lead {
	t.Helper()
	lead, _, err := svc.CreateLead(context.Background(), CreateLeadInput{
		Name:       name,
		Email:      name + "@example.com",
		AssignedTo: assignedTo,
	})
	if err != nil {
		t.Fatalf("create lead %s: %v", name, err)
	}
	return lead
}

func mustStatus(t *testing.T, svc *Service, id int64, status LeadStatus, amount *float64, failure *FailureDetails) Lead {
	t.Helper()
	lead, _, err := svc.UpdateLeadStatus(context.Background(), id, status, amount, failure)
	if err != nil {
		t.Fatalf("move lead %d to %s: %v", id, status, err)
	}
	return lead
}

func TestCreateLeadDefaults(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	actor := mustUser(t, svc, "Priya", "priya@example.com", domain.RoleAdmin)
	if err := svc.SetCurrentUser(ctx, actor.ID); err != nil {
		t.Fatalf("set current user: %v", err)
	}

	lead, _, err := svc.CreateLead(ctx, CreateLeadInput{
		Name:       "Acme Industries",
		Email:      "contact@acme.example",
		AssignedTo: "Arun",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if lead.Status != StatusNew {
		t.Fatalf("expected status New, got %s", lead.Status)
	}
	if lead.Source != domain.SourceWebsite || lead.Priority != domain.PriorityMedium {
		t.Fatalf("expected default source/priority, got %s/%s", lead.Source, lead.Priority)
	}
	if lead.CreatedBy != "Priya" {
		t.Fatalf("expected creator Priya, got %s", lead.CreatedBy)
	}
	if lead.Notes == nil || len(lead.Notes) != 0 {
		t.Fatalf("expected empty notes slice")
	}
	if !lead.CreatedAt.Equal(lead.UpdatedAt) {
		t.Fatalf("expected created/updated equal on creation")
	}

	updated, _ := svc.GetUser(actor.ID)
	if updated.LeadsCreated != 1 {
		t.Fatalf("expected leads_created 1, got %d", updated.LeadsCreated)
	}

	log := svc.ActivityLog()
	if len(log) == 0 {
		t.Fatalf("expected activity entry")
	}
	head := log[0]
	if head.Type != domain.ActivityLeadCreated {
		t.Fatalf("expected lead_created entry, got %s", head.Type)
	}
	if head.Description != "Lead 'Acme Industries' created and assigned to Arun" {
		t.Fatalf("unexpected description %q", head.Description)
	}
	if head.Actor != "Priya" || head.ActorID != actor.ID {
		t.Fatalf("expected actor Priya/%d, got %s/%d", actor.ID, head.Actor, head.ActorID)
	}
	if head.LeadID == nil || *head.LeadID != lead.ID {
		t.Fatalf("expected lead reference on entry")
	}
}

func TestCreateLeadValidation(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateLeadInput
	}{
		{"missing name", CreateLeadInput{Email: "x@y.example", AssignedTo: "A"}},
		{"missing email", CreateLeadInput{Name: "X", AssignedTo: "A"}},
		{"missing assignee", CreateLeadInput{Name: "X", Email: "x@y.example"}},
		{"blank name", CreateLeadInput{Name: "   ", Email: "x@y.example", AssignedTo: "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateLead(ctx, tc.input)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(svc.Leads()) != 0 {
		t.Fatalf("expected no leads after rejected input")
	}
	if len(svc.ActivityLog()) != 0 {
		t.Fatalf("expected no activity after rejected input")
	}
}

func TestQuotationRequiresPositiveAmount(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	lead := mustLead(t, svc, "Quoteless", "Arun")
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)
	mustStatus(t, svc, lead.ID, StatusEnquiry, nil, nil)
	before := len(svc.ActivityLog())

	negative := -5.0
	for name, amount := range map[string]*float64{"nil amount": nil, "negative amount": &negative} {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.UpdateLeadStatus(ctx, lead.ID, StatusQuotation, amount, nil)
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	current, _ := svc.GetLead(lead.ID)
	if current.Status != StatusEnquiry || current.QuoteAmount != nil {
		t.Fatalf("expected lead untouched, got %s quote=%v", current.Status, current.QuoteAmount)
	}
	if len(svc.ActivityLog()) != before {
		t.Fatalf("expected no activity from rejected transition")
	}
}

func TestFailedRequiresKnownReason(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	lead := mustLead(t, svc, "Doomed", "Arun")
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)

	if _, _, err := svc.UpdateLeadStatus(ctx, lead.ID, StatusFailed, nil, nil); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing failure, got %v", err)
	}
	bogus := &FailureDetails{Reason: "Bad vibes"}
	if _, _, err := svc.UpdateLeadStatus(ctx, lead.ID, StatusFailed, nil, bogus); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown reason, got %v", err)
	}

	failed := mustStatus(t, svc, lead.ID, StatusFailed, nil, &FailureDetails{Reason: domain.ReasonNoResponse, Message: "went dark"})
	if failed.FailedReason == nil || *failed.FailedReason != domain.ReasonNoResponse {
		t.Fatalf("expected failure reason recorded, got %v", failed.FailedReason)
	}
	if failed.FailedMessage == nil || *failed.FailedMessage != "went dark" {
		t.Fatalf("expected failure message recorded, got %v", failed.FailedMessage)
	}
}

func TestFailedRetryClearsQuoteAndReason(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	lead := mustLead(t, svc, "Phoenix", "Arun")
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)
	mustStatus(t, svc, lead.ID, StatusEnquiry, nil, nil)
	amount := 12000.0
	mustStatus(t, svc, lead.ID, StatusQuotation, &amount, nil)
	mustStatus(t, svc, lead.ID, StatusFollowUp, nil, nil)
	mustStatus(t, svc, lead.ID, StatusFailed, nil, &FailureDetails{Reason: domain.ReasonBudgetConstraints})

	retried := mustStatus(t, svc, lead.ID, StatusNew, nil, nil)
	if retried.QuoteAmount != nil || retried.FailedReason != nil || retried.FailedMessage != nil {
		t.Fatalf("expected retry to clear quote and failure fields: %+v", retried)
	}
}

func TestFailedToFollowUpKeepsQuote(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	lead := mustLead(t, svc, "Revived", "Arun")
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)
	mustStatus(t, svc, lead.ID, StatusEnquiry, nil, nil)
	amount := 8000.0
	mustStatus(t, svc, lead.ID, StatusQuotation, &amount, nil)
	mustStatus(t, svc, lead.ID, StatusFollowUp, nil, nil)
	mustStatus(t, svc, lead.ID, StatusFailed, nil, &FailureDetails{Reason: domain.ReasonOther})

	revived := mustStatus(t, svc, lead.ID, StatusFollowUp, nil, nil)
	if revived.QuoteAmount == nil || *revived.QuoteAmount != amount {
		t.Fatalf("expected quote amount kept on follow-up recovery, got %v", revived.QuoteAmount)
	}
}

func TestStatusChangeActivityEntry(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	lead := mustLead(t, svc, "Acme", "Arun")
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)

	head := svc.ActivityLog()[0]
	if head.Type != domain.ActivityStatusChange {
		t.Fatalf("expected status_change, got %s", head.Type)
	}
	if head.Description != "Acme status changed from 'New' to 'Opportunity'" {
		t.Fatalf("unexpected description %q", head.Description)
	}
	if head.Details["fromStatus"] != "New" || head.Details["toStatus"] != "Opportunity" || head.Details["leadName"] != "Acme" {
		t.Fatalf("unexpected details %v", head.Details)
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	lead := mustLead(t, svc, "Acme", "Arun")
	if _, _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, "Archived", nil, nil); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestStrictEngineBlocksOffPipelineMove(t *testing.T) {
	svc, _ := newTestService(t, NewStrictRulesEngine())
	lead := mustLead(t, svc, "Jumpy", "Arun")
	before := len(svc.ActivityLog())

	_, _, err := svc.UpdateLeadStatus(context.Background(), lead.ID, StatusConverted, nil, nil)
	var ruleErr RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	current, _ := svc.GetLead(lead.ID)
	if current.Status != StatusNew {
		t.Fatalf("expected blocked move to leave status New, got %s", current.Status)
	}
	if len(svc.ActivityLog()) != before {
		t.Fatalf("expected no activity from blocked transaction")
	}
}

func TestDefaultEngineWarnsOffPipelineMove(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	lead := mustLead(t, svc, "Jumpy", "Arun")

	updated, res, err := svc.UpdateLeadStatus(context.Background(), lead.ID, StatusConverted, nil, nil)
	if err != nil {
		t.Fatalf("expected permissive commit, got %v", err)
	}
	if updated.Status != StatusConverted {
		t.Fatalf("expected committed status Converted, got %s", updated.Status)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("expected one warn violation, got %+v", res.Violations)
	}
}

func TestAddNoteSequencing(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	actor := mustUser(t, svc, "Priya", "priya@example.com", domain.RoleAdmin)
	if err := svc.SetCurrentUser(ctx, actor.ID); err != nil {
		t.Fatalf("set current user: %v", err)
	}
	lead := mustLead(t, svc, "Notable", "Arun")

	if _, _, err := svc.AddNoteToLead(ctx, lead.ID, "   "); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for blank note, got %v", err)
	}

	first, _, err := svc.AddNoteToLead(ctx, lead.ID, "first contact")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	second, _, err := svc.AddNoteToLead(ctx, lead.ID, "sent brochure")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if len(second.Notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(second.Notes))
	}
	if first.Notes[0].ID != 1 || second.Notes[1].ID != 2 {
		t.Fatalf("expected sequential note ids, got %d then %d", first.Notes[0].ID, second.Notes[1].ID)
	}
	if second.Notes[1].Author != "Priya" {
		t.Fatalf("expected note author Priya, got %s", second.Notes[1].Author)
	}

	head := svc.ActivityLog()[0]
	if head.Type != domain.ActivityNoteAdded || head.Description != "Note added to Notable: 'sent brochure'" {
		t.Fatalf("unexpected note activity %s %q", head.Type, head.Description)
	}
}

func TestNoteIDsSurviveLegacyImport(t *testing.T) {
	svc, store := newTestService(t, NewDefaultRulesEngine())
	store.ImportState(memory.Snapshot{
		Leads: map[int64]Lead{
			1: {Base: domain.Base{ID: 1}, Name: "Legacy", Status: domain.StatusNew, Notes: []Note{{ID: 3, Text: "old"}}},
		},
	})

	lead, _, err := svc.AddNoteToLead(context.Background(), 1, "new note")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	if lead.Notes[len(lead.Notes)-1].ID != 4 {
		t.Fatalf("expected next note id 4, got %d", lead.Notes[len(lead.Notes)-1].ID)
	}
}

func TestCreateUserDefaultsPerRole(t *testing.T) {
	cases := []struct {
		role Role
		want Permissions
	}{
		{domain.RoleSuperAdmin, Permissions{CreateLeads: true, AssignLeads: true, ViewAllLeads: true, ManageUsers: true, AccessReports: true, ModifySettings: true}},
		{domain.RoleAdmin, Permissions{CreateLeads: true, AssignLeads: true, ViewAllLeads: true, AccessReports: true}},
		{domain.RoleCoordinator, Permissions{CreateLeads: true, AssignLeads: true}},
		{domain.RoleEngineer, Permissions{}},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			svc, _ := newTestService(t, NewDefaultRulesEngine())
			user := mustUser(t, svc, "User", "user@example.com", tc.role)
			if user.Permissions != tc.want {
				t.Fatalf("role %s: expected %+v, got %+v", tc.role, tc.want, user.Permissions)
			}
			if !user.Active {
				t.Fatalf("expected new user active")
			}
			if user.StartDate == nil || !user.JoinDate.Equal(*user.StartDate) {
				t.Fatalf("expected join date to match start date")
			}
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input CreateUserInput
	}{
		{"missing name", CreateUserInput{Email: "a@b.example", Role: domain.RoleAdmin, StartDate: &start}},
		{"missing email", CreateUserInput{Name: "A", Role: domain.RoleAdmin, StartDate: &start}},
		{"bad email", CreateUserInput{Name: "A", Email: "not-an-email", Role: domain.RoleAdmin, StartDate: &start}},
		{"missing start date", CreateUserInput{Name: "A", Email: "a@b.example", Role: domain.RoleAdmin}},
		{"bad role", CreateUserInput{Name: "A", Email: "a@b.example", Role: "Wizard", StartDate: &start}},
		{"sentinel role", CreateUserInput{Name: "A", Email: "a@b.example", Role: domain.RoleAll, StartDate: &start}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.CreateUser(ctx, tc.input); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(svc.Users()) != 0 {
		t.Fatalf("expected no users after rejected input")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	mustUser(t, svc, "First", "Dup@Example.com", domain.RoleAdmin)
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name:      "Second",
		Email:     "dup@example.COM",
		Role:      domain.RoleEngineer,
		StartDate: &start,
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected duplicate email rejection, got %v", err)
	}
	if len(svc.Users()) != 1 {
		t.Fatalf("expected single user, got %d", len(svc.Users()))
	}
}

func TestRecordLogin(t *testing.T) {
	now := time.Date(2026, time.May, 5, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, NewDefaultRulesEngine(), WithClock(ClockFunc(func() time.Time { return now })))
	user := mustUser(t, svc, "Priya", "priya@example.com", domain.RoleAdmin)

	logged, _, err := svc.RecordLogin(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("record login: %v", err)
	}
	if logged.LastLogin == nil || !logged.LastLogin.Equal(now) {
		t.Fatalf("expected last login %v, got %v", now, logged.LastLogin)
	}
	head := svc.ActivityLog()[0]
	if head.Type != domain.ActivityUserLogin || head.Actor != "Priya" {
		t.Fatalf("expected user_login by Priya, got %s by %s", head.Type, head.Actor)
	}
	if head.Description != "User 'Priya' logged in" {
		t.Fatalf("unexpected description %q", head.Description)
	}
}

func TestRecordLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	if _, _, err := svc.RecordLogin(context.Background(), 404); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSetCurrentUserUnknown(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	if err := svc.SetCurrentUser(context.Background(), 7); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestActivityOneEntryPerMutation(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	mustUser(t, svc, "Priya", "priya@example.com", domain.RoleAdmin) // 1 entry
	lead := mustLead(t, svc, "Acme", "Arun")                         // 2
	mustStatus(t, svc, lead.ID, StatusOpportunity, nil, nil)         // 3
	if _, _, err := svc.AddNoteToLead(ctx, lead.ID, "note"); err != nil { // 4
		t.Fatalf("add note: %v", err)
	}

	log := svc.ActivityLog()
	if len(log) != 4 {
		t.Fatalf("expected 4 activity entries, got %d", len(log))
	}
	if log[0].Type != domain.ActivityNoteAdded || log[3].Type != domain.ActivityUserCreated {
		t.Fatalf("expected newest-first log, got head %s tail %s", log[0].Type, log[3].Type)
	}
	for i := 0; i < len(log)-1; i++ {
		if log[i].ID <= log[i+1].ID {
			t.Fatalf("expected descending ids, got %d then %d", log[i].ID, log[i+1].ID)
		}
	}
}

type captureAudit struct {
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func TestAuditRecorder(t *testing.T) {
	audit := &captureAudit{}
	svc, _ := newTestService(t, NewDefaultRulesEngine(), WithAuditRecorder(audit))
	ctx := context.Background()

	lead := mustLead(t, svc, "Audited", "Arun")
	if len(audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Operation != "create_lead" || entry.Status != AuditStatusSuccess {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.Entity != EntityLead || entry.Action != ActionCreate || entry.EntityID != lead.ID {
		t.Fatalf("unexpected audit subject %+v", entry)
	}

	if _, _, err := svc.UpdateLeadStatus(ctx, lead.ID, StatusQuotation, nil, nil); err == nil {
		t.Fatalf("expected rejection")
	}
	last := audit.entries[len(audit.entries)-1]
	if last.Status != AuditStatusError || last.Error == "" {
		t.Fatalf("expected error audit entry, got %+v", last)
	}

	// Operations outside the audit map are skipped entirely.
	before := len(audit.entries)
	svc.recordAuditSuccess(ctx, "unknown_op", 1, time.Millisecond)
	if len(audit.entries) != before {
		t.Fatalf("expected unknown operation to be skipped")
	}
}

type captureMetrics struct {
	observed []string
	failures int
}

func (c *captureMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.observed = append(c.observed, operation)
	if !success {
		c.failures++
	}
}

func TestMetricsRecorder(t *testing.T) {
	metrics := &captureMetrics{}
	svc, _ := newTestService(t, NewDefaultRulesEngine(), WithMetricsRecorder(metrics))

	mustLead(t, svc, "Measured", "Arun")
	if _, _, err := svc.AddNoteToLead(context.Background(), 999, "nope"); err == nil {
		t.Fatalf("expected failure")
	}
	if len(metrics.observed) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(metrics.observed))
	}
	if metrics.observed[0] != "create_lead" || metrics.observed[1] != "add_note_to_lead" {
		t.Fatalf("unexpected operations %v", metrics.observed)
	}
	if metrics.failures != 1 {
		t.Fatalf("expected one failed observation, got %d", metrics.failures)
	}
}

func TestSeedDemoDataIdempotent(t *testing.T) {
	svc, _ := newTestService(t, NewDefaultRulesEngine())
	ctx := context.Background()
	if err := svc.SeedDemoData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	users, leads := len(svc.Users()), len(svc.Leads())
	if users == 0 || leads == 0 {
		t.Fatalf("expected seeded data, got %d users %d leads", users, leads)
	}
	if _, ok := svc.CurrentUser(); !ok {
		t.Fatalf("expected seeded current user")
	}
	if err := svc.SeedDemoData(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if len(svc.Users()) != users || len(svc.Leads()) != leads {
		t.Fatalf("expected reseed to be a no-op")
	}
}
