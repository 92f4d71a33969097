// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crmcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Lead aliases domain.Lead.
	Lead = domain.Lead
	// Note aliases domain.Note.
	Note = domain.Note
	// ActivityEntry aliases domain.ActivityEntry.
	ActivityEntry = domain.ActivityEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users         map[int64]User
	leads         map[int64]Lead
	activity      []ActivityEntry // newest-first
	userSeq       int64
	leadSeq       int64
	activitySeq   int64
	currentUserID int64
}

// Snapshot captures a point-in-time clone of the store state for external
// persistence. Sequence counters travel with the data so identifiers stay
// monotonic across restarts.
type Snapshot struct {
	Users         map[int64]User  `json:"users"`
	Leads         map[int64]Lead  `json:"leads"`
	Activity      []ActivityEntry `json:"activity"`
	UserSeq       int64           `json:"user_seq"`
	LeadSeq       int64           `json:"lead_seq"`
	ActivitySeq   int64           `json:"activity_seq"`
	CurrentUserID int64           `json:"current_user_id"`
}

func newMemoryState() memoryState {
	return memoryState{
		users: make(map[int64]User),
		leads: make(map[int64]Lead),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.leads {
		cloned.leads[k] = cloneLead(v)
	}
	cloned.activity = make([]ActivityEntry, 0, len(s.activity))
	for _, e := range s.activity {
		cloned.activity = append(cloned.activity, cloneActivity(e))
	}
	cloned.userSeq = s.userSeq
	cloned.leadSeq = s.leadSeq
	cloned.activitySeq = s.activitySeq
	cloned.currentUserID = s.currentUserID
	return cloned
}

func cloneUser(u User) User {
	cp := u
	cp.LastLogin = cloneTimePtr(u.LastLogin)
	cp.StartDate = cloneTimePtr(u.StartDate)
	cp.Department = cloneStringPtr(u.Department)
	cp.Phone = cloneStringPtr(u.Phone)
	cp.Manager = cloneStringPtr(u.Manager)
	return cp
}

func cloneLead(l Lead) Lead {
	cp := l
	if l.QuoteAmount != nil {
		amount := *l.QuoteAmount
		cp.QuoteAmount = &amount
	}
	if l.FailedReason != nil {
		reason := *l.FailedReason
		cp.FailedReason = &reason
	}
	cp.FailedMessage = cloneStringPtr(l.FailedMessage)
	cp.Notes = append([]Note(nil), l.Notes...)
	return cp
}

func cloneActivity(e ActivityEntry) ActivityEntry {
	cp := e
	if e.LeadID != nil {
		id := *e.LeadID
		cp.LeadID = &id
	}
	if e.Details != nil {
		cp.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	return cp
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Users:         cloned.users,
		Leads:         cloned.leads,
		Activity:      cloned.activity,
		UserSeq:       cloned.userSeq,
		LeadSeq:       cloned.leadSeq,
		ActivitySeq:   cloned.activitySeq,
		CurrentUserID: cloned.currentUserID,
	}
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snapshot.Users {
		state.users[k] = cloneUser(v)
		if k > state.userSeq {
			state.userSeq = k
		}
	}
	for k, v := range snapshot.Leads {
		state.leads[k] = cloneLead(v)
		if k > state.leadSeq {
			state.leadSeq = k
		}
	}
	for _, e := range snapshot.Activity {
		state.activity = append(state.activity, cloneActivity(e))
		if e.ID > state.activitySeq {
			state.activitySeq = e.ID
		}
	}
	if snapshot.UserSeq > state.userSeq {
		state.userSeq = snapshot.UserSeq
	}
	if snapshot.LeadSeq > state.leadSeq {
		state.leadSeq = snapshot.LeadSeq
	}
	if snapshot.ActivitySeq > state.activitySeq {
		state.activitySeq = snapshot.ActivitySeq
	}
	state.currentUserID = snapshot.CurrentUserID
	return state
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the store's time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListUsers returns all users within the transaction snapshot, in insertion order.
func (v transactionView) ListUsers() []User {
	return listUsers(v.state)
}

// ListLeads returns all leads within the transaction snapshot, in insertion order.
func (v transactionView) ListLeads() []Lead {
	return listLeads(v.state)
}

// FindUser retrieves a user by id from the snapshot.
func (v transactionView) FindUser(id int64) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindLead retrieves a lead by id from the snapshot.
func (v transactionView) FindLead(id int64) (Lead, bool) {
	l, ok := v.state.leads[id]
	if !ok {
		return Lead{}, false
	}
	return cloneLead(l), true
}

func listUsers(state *memoryState) []User {
	out := make([]User, 0, len(state.users))
	for _, u := range state.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listLeads(state *memoryState) []Lead {
	out := make([]Lead, 0, len(state.leads))
	for _, l := range state.leads {
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the mutated snapshot before commit; a
// blocking violation discards the whole mutation set.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateUser stores a new user within the transaction.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == 0 {
		tx.state.userSeq++
		u.ID = tx.state.userSeq
	} else {
		if _, exists := tx.state.users[u.ID]; exists {
			return User{}, domain.ValidationError{Field: "id", Message: "user already exists"}
		}
		if u.ID > tx.state.userSeq {
			tx.state.userSeq = u.ID
		}
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// UpdateUser mutates a user using the provided mutator function.
func (tx *transaction) UpdateUser(id int64, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := cloneUser(current)
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.users[id] = cloneUser(current)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: cloneUser(current)})
	return cloneUser(current), nil
}

// CreateLead stores a new lead within the transaction.
func (tx *transaction) CreateLead(l Lead) (Lead, error) {
	if l.ID == 0 {
		tx.state.leadSeq++
		l.ID = tx.state.leadSeq
	} else {
		if _, exists := tx.state.leads[l.ID]; exists {
			return Lead{}, domain.ValidationError{Field: "id", Message: "lead already exists"}
		}
		if l.ID > tx.state.leadSeq {
			tx.state.leadSeq = l.ID
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	if l.Notes == nil {
		l.Notes = []Note{}
	}
	tx.state.leads[l.ID] = cloneLead(l)
	tx.recordChange(Change{Entity: domain.EntityLead, Action: domain.ActionCreate, After: cloneLead(l)})
	return cloneLead(l), nil
}

// UpdateLead mutates a lead using the provided mutator function.
func (tx *transaction) UpdateLead(id int64, mutator func(*Lead) error) (Lead, error) {
	current, ok := tx.state.leads[id]
	if !ok {
		return Lead{}, domain.NotFoundError{Entity: domain.EntityLead, ID: id}
	}
	before := cloneLead(current)
	if err := mutator(&current); err != nil {
		return Lead{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.leads[id] = cloneLead(current)
	tx.recordChange(Change{Entity: domain.EntityLead, Action: domain.ActionUpdate, Before: before, After: cloneLead(current)})
	return cloneLead(current), nil
}

// AppendActivity prepends an immutable entry to the activity log. Identifiers
// are assigned from the store-wide activity sequence; entries are never
// updated or removed.
func (tx *transaction) AppendActivity(e ActivityEntry) (ActivityEntry, error) {
	tx.state.activitySeq++
	e.ID = tx.state.activitySeq
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	tx.state.activity = append([]ActivityEntry{cloneActivity(e)}, tx.state.activity...)
	tx.recordChange(Change{Entity: domain.EntityActivity, Action: domain.ActionCreate, After: cloneActivity(e)})
	return cloneActivity(e), nil
}

// FindUser retrieves a user by id from the transactional state.
func (tx *transaction) FindUser(id int64) (User, bool) {
	u, ok := tx.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindUserByEmail retrieves a user by email, ignoring case.
func (tx *transaction) FindUserByEmail(email string) (User, bool) {
	for _, u := range tx.state.users {
		if u.EmailEquals(email) {
			return cloneUser(u), true
		}
	}
	return User{}, false
}

// FindLead retrieves a lead by id from the transactional state.
func (tx *transaction) FindLead(id int64) (Lead, bool) {
	l, ok := tx.state.leads[id]
	if !ok {
		return Lead{}, false
	}
	return cloneLead(l), true
}

// SetCurrentUser records the acting identity for subsequent operations.
func (tx *transaction) SetCurrentUser(id int64) error {
	if _, ok := tx.state.users[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	tx.state.currentUserID = id
	return nil
}

// CurrentUser returns the acting identity, if one is set.
func (tx *transaction) CurrentUser() (User, bool) {
	u, ok := tx.state.users[tx.state.currentUserID]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// Read helpers ---------------------------------------------------------------

// GetUser retrieves a user by id from committed state.
func (s *Store) GetUser(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// ListUsers returns all users from committed state in insertion order.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUsers(&s.state)
}

// GetLead retrieves a lead by id from committed state.
func (s *Store) GetLead(id int64) (Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.leads[id]
	if !ok {
		return Lead{}, false
	}
	return cloneLead(l), true
}

// ListLeads returns all leads from committed state in insertion order.
func (s *Store) ListLeads() []Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLeads(&s.state)
}

// ListActivity returns the activity log, newest entry first.
func (s *Store) ListActivity() []ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ActivityEntry, 0, len(s.state.activity))
	for _, e := range s.state.activity {
		out = append(out, cloneActivity(e))
	}
	return out
}

// CurrentUser returns the acting identity from committed state, if set.
func (s *Store) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[s.state.currentUserID]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}
