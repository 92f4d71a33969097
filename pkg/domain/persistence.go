package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. There are no delete operations: users
// and leads are never removed and the activity log is append-only.
type Transaction interface {
	Snapshot() TransactionView
	CreateUser(User) (User, error)
	UpdateUser(id int64, mutator func(*User) error) (User, error)
	CreateLead(Lead) (Lead, error)
	UpdateLead(id int64, mutator func(*Lead) error) (Lead, error)
	AppendActivity(ActivityEntry) (ActivityEntry, error)
	FindUser(id int64) (User, bool)
	FindUserByEmail(email string) (User, bool)
	FindLead(id int64) (Lead, bool)
	SetCurrentUser(id int64) error
	CurrentUser() (User, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers. All reads
// return snapshot copies; mutating a returned value never affects the store.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetUser(id int64) (User, bool)
	ListUsers() []User
	GetLead(id int64) (Lead, bool)
	ListLeads() []Lead
	ListActivity() []ActivityEntry
	CurrentUser() (User, bool)
}
