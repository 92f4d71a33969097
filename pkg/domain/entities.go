// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by crmcore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies a console user record.
	EntityUser EntityType = "user"
	// EntityLead identifies a sales lead record.
	EntityLead EntityType = "lead"
	// EntityActivity identifies an activity log entry.
	EntityActivity EntityType = "activity"
)

// LeadStatus represents the canonical pipeline states a lead moves through.
type LeadStatus string

// Pipeline statuses in board order. The pipeline is not strictly linear:
// backward moves and failure recovery are part of the normal workflow.
const (
	StatusNew         LeadStatus = "New"
	StatusOpportunity LeadStatus = "Opportunity"
	StatusEnquiry     LeadStatus = "Enquiry"
	StatusQuotation   LeadStatus = "Quotation"
	StatusFollowUp    LeadStatus = "Follow-up"
	StatusConverted   LeadStatus = "Converted"
	StatusFailed      LeadStatus = "Failed"
)

// LeadStatuses returns all pipeline statuses in board order.
func LeadStatuses() []LeadStatus {
	return []LeadStatus{
		StatusNew,
		StatusOpportunity,
		StatusEnquiry,
		StatusQuotation,
		StatusFollowUp,
		StatusConverted,
		StatusFailed,
	}
}

// ValidLeadStatus reports whether s is a known pipeline status.
func ValidLeadStatus(s LeadStatus) bool {
	for _, known := range LeadStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// LeadSource enumerates where a lead originated.
type LeadSource string

// Canonical lead acquisition channels.
const (
	SourceWebsite       LeadSource = "Website"
	SourceReferral      LeadSource = "Referral"
	SourceLinkedIn      LeadSource = "LinkedIn"
	SourceEmailCampaign LeadSource = "Email Campaign"
	SourceTradeShow     LeadSource = "Trade Show"
)

// Priority captures lead urgency.
type Priority string

// Lead priorities.
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Role enumerates console user roles.
type Role string

// Console roles, most to least privileged. RoleAll is a query sentinel that
// matches every role and is never stored on a user.
const (
	RoleSuperAdmin  Role = "Super Admin"
	RoleAdmin       Role = "Admin"
	RoleCoordinator Role = "Coordinator"
	RoleEngineer    Role = "Engineer"
	RoleAll         Role = "all"
)

// ValidRole reports whether r is a storable user role.
func ValidRole(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleCoordinator, RoleEngineer:
		return true
	}
	return false
}

// Permissions is the per-user capability set. Defaults derive from the role
// at creation time; individual flags remain independently toggleable.
type Permissions struct {
	CreateLeads    bool `json:"create_leads"`
	AssignLeads    bool `json:"assign_leads"`
	ViewAllLeads   bool `json:"view_all_leads"`
	ManageUsers    bool `json:"manage_users"`
	AccessReports  bool `json:"access_reports"`
	ModifySettings bool `json:"modify_settings"`
}

// DefaultPermissions returns the role-default capability set.
func DefaultPermissions(role Role) Permissions {
	switch role {
	case RoleSuperAdmin:
		return Permissions{
			CreateLeads:    true,
			AssignLeads:    true,
			ViewAllLeads:   true,
			ManageUsers:    true,
			AccessReports:  true,
			ModifySettings: true,
		}
	case RoleAdmin:
		return Permissions{
			CreateLeads:   true,
			AssignLeads:   true,
			ViewAllLeads:  true,
			AccessReports: true,
		}
	case RoleCoordinator:
		return Permissions{
			CreateLeads: true,
			AssignLeads: true,
		}
	default:
		return Permissions{}
	}
}

// ActivityType classifies activity log entries.
type ActivityType string

// Activity entry types recorded by mutating operations.
const (
	ActivityLeadCreated  ActivityType = "lead_created"
	ActivityStatusChange ActivityType = "status_change"
	ActivityNoteAdded    ActivityType = "note_added"
	ActivityUserCreated  ActivityType = "user_created"
	ActivityUserLogin    ActivityType = "user_login"
)

// FailureReason is the fixed set of reasons a lead may be marked Failed.
type FailureReason string

// Canonical failure reasons.
const (
	ReasonBudgetConstraints  FailureReason = "Budget constraints"
	ReasonWentWithCompetitor FailureReason = "Went with competitor"
	ReasonProjectCancelled   FailureReason = "Project cancelled"
	ReasonNoResponse         FailureReason = "No response"
	ReasonOther              FailureReason = "Other"
)

// FailureReasons returns the allowed failure reason set.
func FailureReasons() []FailureReason {
	return []FailureReason{
		ReasonBudgetConstraints,
		ReasonWentWithCompetitor,
		ReasonProjectCancelled,
		ReasonNoResponse,
		ReasonOther,
	}
}

// ValidFailureReason reports whether r is in the allowed reason set.
func ValidFailureReason(r FailureReason) bool {
	for _, known := range FailureReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// FailureDetails accompanies a transition into the Failed status.
type FailureDetails struct {
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message,omitempty"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records. Identifiers are
// monotonic per collection; CreatedAt is immutable and UpdatedAt advances on
// every mutation, so UpdatedAt >= CreatedAt always holds.
type Base struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents a console user.
type User struct {
	Base
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Password      string      `json:"password,omitempty"`
	Role          Role        `json:"role"`
	Permissions   Permissions `json:"permissions"`
	Active        bool        `json:"active"`
	Avatar        string      `json:"avatar,omitempty"`
	JoinDate      time.Time   `json:"join_date"`
	LastLogin     *time.Time  `json:"last_login"`
	TasksAssigned int         `json:"tasks_assigned"`
	LeadsCreated  int         `json:"leads_created"`
	Department    *string     `json:"department,omitempty"`
	Phone         *string     `json:"phone,omitempty"`
	Manager       *string     `json:"manager,omitempty"`
	StartDate     *time.Time  `json:"start_date,omitempty"`
}

// EmailEquals reports whether the user's email matches other, ignoring case.
func (u User) EmailEquals(other string) bool {
	return strings.EqualFold(u.Email, other)
}

// Note is an append-only annotation owned by a single lead. Identifiers are
// unique within the owning lead and assigned from the lead's NoteSeq counter.
type Note struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Lead represents a sales lead moving through the pipeline. QuoteAmount is
// set when the lead enters Quotation and may only be non-nil while the lead
// is in Quotation, Follow-up, Converted, or Failed. FailedReason and
// FailedMessage are set when the lead enters Failed.
type Lead struct {
	Base
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Company       string         `json:"company,omitempty"`
	Source        LeadSource     `json:"source"`
	Priority      Priority       `json:"priority"`
	Status        LeadStatus     `json:"status"`
	AssignedTo    string         `json:"assigned_to"`
	CreatedBy     string         `json:"created_by"`
	QuoteAmount   *float64       `json:"quote_amount"`
	FailedReason  *FailureReason `json:"failed_reason,omitempty"`
	FailedMessage *string        `json:"failed_message,omitempty"`
	Notes         []Note         `json:"notes"`
	NoteSeq       int64          `json:"note_seq"`
}

// ActivityEntry is an immutable audit record appended by mutating operations.
// The activity log is ordered newest-first; identifiers are monotonic.
type ActivityEntry struct {
	ID          int64             `json:"id"`
	Type        ActivityType      `json:"type"`
	Description string            `json:"description"`
	Actor       string            `json:"user"`
	ActorID     int64             `json:"user_id"`
	LeadID      *int64            `json:"lead_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Details     map[string]string `json:"details,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
