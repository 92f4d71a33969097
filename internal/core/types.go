package core

import "crmcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	LeadStatus         = domain.LeadStatus
	LeadSource         = domain.LeadSource
	Priority           = domain.Priority
	Role               = domain.Role
	Permissions        = domain.Permissions
	ActivityType       = domain.ActivityType
	FailureReason      = domain.FailureReason
	FailureDetails     = domain.FailureDetails
	Severity           = domain.Severity
	Base               = domain.Base
	User               = domain.User
	Lead               = domain.Lead
	Note               = domain.Note
	ActivityEntry      = domain.ActivityEntry
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	ValidationError    = domain.ValidationError
	NotFoundError      = domain.NotFoundError
	PersistentStore    = domain.PersistentStore
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
)

const (
	EntityUser     = domain.EntityUser
	EntityLead     = domain.EntityLead
	EntityActivity = domain.EntityActivity
)

const (
	StatusNew         = domain.StatusNew
	StatusOpportunity = domain.StatusOpportunity
	StatusEnquiry     = domain.StatusEnquiry
	StatusQuotation   = domain.StatusQuotation
	StatusFollowUp    = domain.StatusFollowUp
	StatusConverted   = domain.StatusConverted
	StatusFailed      = domain.StatusFailed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
