package core

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"crmcore/internal/infra/persistence/memory"
	"crmcore/pkg/domain"
)

// Service operation names used for metrics, tracing, and audit entries.
const (
	opCreateLead       = "create_lead"
	opUpdateLeadStatus = "update_lead_status"
	opAddNoteToLead    = "add_note_to_lead"
	opCreateUser       = "create_user"
	opRecordLogin      = "record_login"
	opSetCurrentUser   = "set_current_user"
	opSetUserAvatar    = "set_user_avatar"
)

type auditSpec struct {
	entity EntityType
	action Action
}

var auditSpecs = map[string]auditSpec{
	opCreateLead:       {entity: EntityLead, action: ActionCreate},
	opUpdateLeadStatus: {entity: EntityLead, action: ActionUpdate},
	opAddNoteToLead:    {entity: EntityLead, action: ActionUpdate},
	opCreateUser:       {entity: EntityUser, action: ActionCreate},
	opRecordLogin:      {entity: EntityUser, action: ActionUpdate},
	opSetCurrentUser:   {entity: EntityUser, action: ActionUpdate},
	opSetUserAvatar:    {entity: EntityUser, action: ActionUpdate},
}

// Service exposes the transactional CRM operations: lead lifecycle, user
// directory, and read-only pipeline projections. Every mutating operation
// validates its input fully before touching the store and appends exactly
// one activity entry inside the same transaction.
type Service struct {
	store   PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   Clock
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation string, entityID int64, duration time.Duration) {
	spec, ok := auditSpecs[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    spec.entity,
		Action:    spec.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditFailure(ctx context.Context, operation string, entityID int64, duration time.Duration, err error) {
	spec, ok := auditSpecs[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    spec.entity,
		Action:    spec.action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Error:     err.Error(),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) finish(ctx context.Context, span TraceSpan, operation string, entityID int64, started time.Time, err error) {
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Warn(operation+" rejected", "error", err, "entity_id", entityID)
		s.recordAuditFailure(ctx, operation, entityID, duration, err)
		return
	}
	s.logger.Debug(operation+" committed", "entity_id", entityID)
	s.recordAuditSuccess(ctx, operation, entityID, duration)
}

// actorIdentity resolves the acting user inside a transaction. Bootstrap
// flows (seeding the first user) run before any current user exists and are
// attributed to the system actor.
func actorIdentity(tx Transaction) (string, int64) {
	if actor, ok := tx.CurrentUser(); ok {
		return actor.Name, actor.ID
	}
	return "System", 0
}

// CreateLeadInput carries the caller-supplied fields for a new lead.
type CreateLeadInput struct {
	Name       string
	Email      string
	Phone      string
	Company    string
	Source     LeadSource
	Priority   Priority
	AssignedTo string
}

// CreateLead constructs a lead in status New, credits the acting user's
// created-leads counter, and appends a lead_created activity entry.
func (s *Service) CreateLead(ctx context.Context, input CreateLeadInput) (lead Lead, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opCreateLead)
	started := time.Now()
	defer func() { s.finish(ctx, span, opCreateLead, lead.ID, started, err) }()

	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	assignedTo := strings.TrimSpace(input.AssignedTo)
	if name == "" {
		err = ValidationError{Field: "name", Message: "is required"}
		return
	}
	if email == "" {
		err = ValidationError{Field: "email", Message: "is required"}
		return
	}
	if assignedTo == "" {
		err = ValidationError{Field: "assignedTo", Message: "is required"}
		return
	}
	source := input.Source
	if source == "" {
		source = domain.SourceWebsite
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		actorName, actorID := actorIdentity(tx)
		created, txErr := tx.CreateLead(Lead{
			Name:       name,
			Email:      email,
			Phone:      strings.TrimSpace(input.Phone),
			Company:    strings.TrimSpace(input.Company),
			Source:     source,
			Priority:   priority,
			Status:     StatusNew,
			AssignedTo: assignedTo,
			CreatedBy:  actorName,
			Notes:      []Note{},
		})
		if txErr != nil {
			return txErr
		}
		lead = created
		if actorID != 0 {
			if _, txErr = tx.UpdateUser(actorID, func(u *User) error {
				u.LeadsCreated++
				return nil
			}); txErr != nil {
				return txErr
			}
		}
		_, txErr = tx.AppendActivity(ActivityEntry{
			Type:        domain.ActivityLeadCreated,
			Description: fmt.Sprintf("Lead '%s' created and assigned to %s", name, assignedTo),
			Actor:       actorName,
			ActorID:     actorID,
			LeadID:      &created.ID,
			Details: map[string]string{
				"leadName":   name,
				"assignedTo": assignedTo,
			},
		})
		return txErr
	})
	if err != nil {
		lead = Lead{}
	}
	return
}

// UpdateLeadStatus moves a lead to newStatus. Entering Quotation requires a
// positive quote amount; entering Failed requires failure details with a
// reason from the fixed set. Retrying a failed lead as New clears the quote
// and failure fields. Appends a status_change activity entry.
func (s *Service) UpdateLeadStatus(ctx context.Context, id int64, newStatus LeadStatus, quoteAmount *float64, failure *FailureDetails) (lead Lead, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opUpdateLeadStatus)
	started := time.Now()
	defer func() { s.finish(ctx, span, opUpdateLeadStatus, id, started, err) }()

	if !domain.ValidLeadStatus(newStatus) {
		err = ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", newStatus)}
		return
	}
	if newStatus == StatusQuotation && (quoteAmount == nil || *quoteAmount <= 0) {
		err = ValidationError{Field: "quoteAmount", Message: "a positive quote amount is required to enter Quotation"}
		return
	}
	if newStatus == StatusFailed {
		if failure == nil || failure.Reason == "" {
			err = ValidationError{Field: "failureReason", Message: "a failure reason is required to enter Failed"}
			return
		}
		if !domain.ValidFailureReason(failure.Reason) {
			err = ValidationError{Field: "failureReason", Message: fmt.Sprintf("unknown failure reason %q", failure.Reason)}
			return
		}
	}

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindLead(id)
		if !ok {
			return NotFoundError{Entity: EntityLead, ID: id}
		}
		fromStatus := current.Status
		updated, txErr := tx.UpdateLead(id, func(l *Lead) error {
			l.Status = newStatus
			switch newStatus {
			case StatusQuotation:
				amount := *quoteAmount
				l.QuoteAmount = &amount
			case StatusFailed:
				reason := failure.Reason
				l.FailedReason = &reason
				if msg := strings.TrimSpace(failure.Message); msg != "" {
					l.FailedMessage = &msg
				}
			case StatusNew:
				l.QuoteAmount = nil
				l.FailedReason = nil
				l.FailedMessage = nil
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}
		lead = updated

		actorName, actorID := actorIdentity(tx)
		details := map[string]string{
			"leadName":   current.Name,
			"fromStatus": string(fromStatus),
			"toStatus":   string(newStatus),
		}
		if newStatus == StatusFailed {
			details["failureReason"] = string(failure.Reason)
			if msg := strings.TrimSpace(failure.Message); msg != "" {
				details["failureMessage"] = msg
			}
		}
		_, txErr = tx.AppendActivity(ActivityEntry{
			Type:        domain.ActivityStatusChange,
			Description: fmt.Sprintf("%s status changed from '%s' to '%s'", current.Name, fromStatus, newStatus),
			Actor:       actorName,
			ActorID:     actorID,
			LeadID:      &id,
			Details:     details,
		})
		return txErr
	})
	if err != nil {
		lead = Lead{}
	}
	return
}

// AddNoteToLead appends an immutable note to a lead. Note ids come from the
// lead's own monotonic counter, so they never collide even if deletion is
// ever introduced. Appends a note_added activity entry.
func (s *Service) AddNoteToLead(ctx context.Context, id int64, text string) (lead Lead, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opAddNoteToLead)
	started := time.Now()
	defer func() { s.finish(ctx, span, opAddNoteToLead, id, started, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		err = ValidationError{Field: "note", Message: "text is required"}
		return
	}

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindLead(id)
		if !ok {
			return NotFoundError{Entity: EntityLead, ID: id}
		}
		actorName, actorID := actorIdentity(tx)
		now := s.clock.Now()
		updated, txErr := tx.UpdateLead(id, func(l *Lead) error {
			seq := l.NoteSeq
			for _, n := range l.Notes {
				if n.ID > seq {
					seq = n.ID
				}
			}
			seq++
			l.NoteSeq = seq
			l.Notes = append(l.Notes, Note{
				ID:        seq,
				Text:      text,
				Author:    actorName,
				Timestamp: now,
			})
			return nil
		})
		if txErr != nil {
			return txErr
		}
		lead = updated

		_, txErr = tx.AppendActivity(ActivityEntry{
			Type:        domain.ActivityNoteAdded,
			Description: fmt.Sprintf("Note added to %s: '%s'", current.Name, text),
			Actor:       actorName,
			ActorID:     actorID,
			LeadID:      &id,
			Details: map[string]string{
				"leadName": current.Name,
				"noteText": text,
			},
		})
		return txErr
	})
	if err != nil {
		lead = Lead{}
	}
	return
}

// CreateUserInput carries the caller-supplied fields for a new user.
// Permissions, when non-nil, overrides the role-default capability set.
type CreateUserInput struct {
	Name        string
	Email       string
	Password    string
	Role        Role
	Avatar      string
	StartDate   *time.Time
	Department  *string
	Phone       *string
	Manager     *string
	Permissions *Permissions
}

// CreateUser registers a console user with role-derived default permissions
// and appends a user_created activity entry. Emails are unique, compared
// case-insensitively.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (user User, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opCreateUser)
	started := time.Now()
	defer func() { s.finish(ctx, span, opCreateUser, user.ID, started, err) }()

	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" {
		err = ValidationError{Field: "name", Message: "is required"}
		return
	}
	if email == "" {
		err = ValidationError{Field: "email", Message: "is required"}
		return
	}
	if _, mailErr := mail.ParseAddress(email); mailErr != nil {
		err = ValidationError{Field: "email", Message: "is invalid"}
		return
	}
	if input.StartDate == nil {
		err = ValidationError{Field: "startDate", Message: "is required"}
		return
	}
	if !domain.ValidRole(input.Role) {
		err = ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", input.Role)}
		return
	}
	perms := domain.DefaultPermissions(input.Role)
	if input.Permissions != nil {
		perms = *input.Permissions
	}

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, exists := tx.FindUserByEmail(email); exists {
			return ValidationError{Field: "email", Message: "is already in use"}
		}
		created, txErr := tx.CreateUser(User{
			Name:        name,
			Email:       email,
			Password:    input.Password,
			Role:        input.Role,
			Permissions: perms,
			Active:      true,
			Avatar:      input.Avatar,
			JoinDate:    *input.StartDate,
			StartDate:   input.StartDate,
			Department:  input.Department,
			Phone:       input.Phone,
			Manager:     input.Manager,
		})
		if txErr != nil {
			return txErr
		}
		user = created

		actorName, actorID := actorIdentity(tx)
		_, txErr = tx.AppendActivity(ActivityEntry{
			Type:        domain.ActivityUserCreated,
			Description: fmt.Sprintf("New user '%s' created with role %s", name, input.Role),
			Actor:       actorName,
			ActorID:     actorID,
			Details: map[string]string{
				"userName": name,
				"userRole": string(input.Role),
			},
		})
		return txErr
	})
	if err != nil {
		user = User{}
	}
	return
}

// RecordLogin stamps the user's last login and appends a user_login activity
// entry attributed to the user themselves.
func (s *Service) RecordLogin(ctx context.Context, id int64) (user User, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opRecordLogin)
	started := time.Now()
	defer func() { s.finish(ctx, span, opRecordLogin, id, started, err) }()

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		now := s.clock.Now()
		updated, txErr := tx.UpdateUser(id, func(u *User) error {
			u.LastLogin = &now
			return nil
		})
		if txErr != nil {
			return txErr
		}
		user = updated

		_, txErr = tx.AppendActivity(ActivityEntry{
			Type:        domain.ActivityUserLogin,
			Description: fmt.Sprintf("User '%s' logged in", updated.Name),
			Actor:       updated.Name,
			ActorID:     updated.ID,
			Details: map[string]string{
				"userName": updated.Name,
			},
		})
		return txErr
	})
	if err != nil {
		user = User{}
	}
	return
}

// SetCurrentUser switches the acting identity used as the actor in all
// subsequently logged actions. No authentication is performed.
func (s *Service) SetCurrentUser(ctx context.Context, id int64) (err error) {
	ctx, span := s.tracer.Start(ctx, opSetCurrentUser)
	started := time.Now()
	defer func() { s.finish(ctx, span, opSetCurrentUser, id, started, err) }()

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.SetCurrentUser(id)
	})
	return
}

// SetUserAvatar updates a user's avatar reference, typically a blob store key.
func (s *Service) SetUserAvatar(ctx context.Context, id int64, avatar string) (user User, res Result, err error) {
	ctx, span := s.tracer.Start(ctx, opSetUserAvatar)
	started := time.Now()
	defer func() { s.finish(ctx, span, opSetUserAvatar, id, started, err) }()

	res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		updated, txErr := tx.UpdateUser(id, func(u *User) error {
			u.Avatar = avatar
			return nil
		})
		if txErr != nil {
			return txErr
		}
		user = updated
		return nil
	})
	if err != nil {
		user = User{}
	}
	return
}

// CurrentUser returns the acting identity, if one is set.
func (s *Service) CurrentUser() (User, bool) {
	return s.store.CurrentUser()
}
