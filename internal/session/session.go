// Package session drives the human-in-the-loop review between document
// extraction and persistence. A session owns the candidate entities for one
// document, tracks their required-field checklists, and refuses to commit
// until the checklists are empty.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invoyisi/resolution-service/internal/extraction"
	"github.com/invoyisi/resolution-service/internal/match"
	"github.com/invoyisi/resolution-service/internal/models"
)

// EntityStore is the persistence collaborator. Invoice line items are
// written separately from the invoice row so a failed item write can be
// compensated by deleting the parent.
type EntityStore interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, input models.ClientInput) (*models.Client, error)
	CreateInvoice(ctx context.Context, input models.InvoiceInput) (*models.Invoice, error)
	AddInvoiceItems(ctx context.Context, invoiceID uuid.UUID, items []models.LineItem) error
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
}

// State is the session's position in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateExtracted  State = "extracted"
	StatePreviewing State = "previewing"
	StateEditing    State = "editing"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateCancelled  State = "cancelled"
)

// Side selects which candidate an edit targets. The client and invoice
// candidates are independent sub-sessions of the combined flow.
type Side string

const (
	SideClient  Side = "client"
	SideInvoice Side = "invoice"
)

// Intent declares which entities a session will persist on commit.
type Intent string

const (
	IntentClient  Intent = "client"
	IntentInvoice Intent = "invoice"
	IntentBoth    Intent = "both"
)

var (
	// ErrInvalidTransition is returned for operations not legal in the
	// session's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrIncomplete means required fields are still missing at a commit
	// attempt. This is a normal, inspectable condition, not a failure.
	ErrIncomplete = errors.New("required fields missing")
	// ErrUnknownField is returned for edits against fields outside the
	// canonical schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownClient is returned when a selected client id is not in the
	// current snapshot.
	ErrUnknownClient = errors.New("client not found in current snapshot")
)

// PersistenceError wraps a store failure so callers can distinguish it from
// validation conditions. The session returns to previewing with the
// candidate intact; retry is the caller's decision.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// CommitResult reports what a successful commit created.
type CommitResult struct {
	Client  *models.Client  `json:"client,omitempty"`
	Invoice *models.Invoice `json:"invoice,omitempty"`
}

// Session is the stateful controller for one document's resolution. It has
// no process-wide state: two documents reviewed at the same time get two
// independent sessions. All methods serialize on the session's own lock.
type Session struct {
	mu sync.Mutex

	id     uuid.UUID
	log    zerolog.Logger
	store  EntityStore
	intent Intent
	now    func() time.Time

	state   State
	raw     extraction.RawExtraction
	client  *extraction.Candidate
	invoice *extraction.Candidate
	result  match.Result

	clients          []models.Client
	selectedClientID uuid.UUID
	createdClient    *models.Client

	editing map[Side]string
	lastErr error
}

// New creates an idle session.
func New(store EntityStore, log zerolog.Logger, intent Intent) *Session {
	id := uuid.New()
	return &Session{
		id:      id,
		log:     log.With().Str("session_id", id.String()).Logger(),
		store:   store,
		intent:  intent,
		now:     time.Now,
		state:   StateIdle,
		editing: make(map[Side]string),
	}
}

// ID returns the session identity.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Intent returns the session's declared commit intent.
func (s *Session) Intent() Intent { return s.intent }

// Start attaches a raw extraction, maps both candidates, snapshots the
// existing clients and runs the matcher. Legal only from idle; a failed
// start leaves the session idle and fully retryable.
func (s *Session) Start(ctx context.Context, raw extraction.RawExtraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}

	s.raw = raw
	s.state = StateExtracted

	clients, err := s.store.ListClients(ctx)
	if err != nil {
		s.state = StateIdle
		return fmt.Errorf("listing existing clients: %w", err)
	}
	s.clients = clients

	now := s.now()
	s.client = extraction.MapClient(raw, now)
	s.invoice = extraction.MapInvoice(raw, now)

	s.result = match.Match(s.client.Fields, s.clients)
	if s.result.Matched {
		// Seeds the client link; an explicit selection later overrides it.
		s.selectedClientID = s.result.ClientID
	}
	s.recomputeMissing()

	s.state = StatePreviewing
	s.log.Info().
		Str("match_via", string(s.result.Via)).
		Int("known_clients", len(clients)).
		Int("line_items", len(s.invoice.LineItems)).
		Msg("candidates prepared")
	return nil
}

// OpenField marks one field editable. At most one field per side may be open
// at a time.
func (s *Session) OpenField(side Side, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing && s.state != StateEditing {
		return fmt.Errorf("%w: open field from %s", ErrInvalidTransition, s.state)
	}
	if _, err := s.candidateFor(side); err != nil {
		return err
	}
	if !knownField(side, name) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, side, name)
	}
	s.editing[side] = name
	s.state = StateEditing
	return nil
}

// SetField writes an edited value into the candidate and returns the
// session to previewing. The required-field checklist is recomputed in full,
// not incrementally. Amount fields coerce through decimal parsing, with
// unparseable input degrading to zero.
func (s *Session) SetField(side Side, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing && s.state != StateEditing {
		return fmt.Errorf("%w: set field from %s", ErrInvalidTransition, s.state)
	}
	if open, ok := s.editing[side]; ok && open != name {
		return fmt.Errorf("%w: %s.%s is open for edit", ErrInvalidTransition, side, open)
	}
	cand, err := s.candidateFor(side)
	if err != nil {
		return err
	}
	if !knownField(side, name) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, side, name)
	}

	if side == SideInvoice && extraction.IsAmountField(name) {
		cand.Fields[name] = extraction.ParseAmount(value)
	} else {
		cand.Fields[name] = value
	}

	delete(s.editing, side)
	if len(s.editing) == 0 {
		s.state = StatePreviewing
	}
	s.recomputeMissing()
	return nil
}

// SelectExistingClient links the invoice candidate to an already-persisted
// client. The id must be in the current snapshot. An explicit selection is
// never overridden by the matcher.
func (s *Session) SelectExistingClient(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing && s.state != StateEditing {
		return fmt.Errorf("%w: select client from %s", ErrInvalidTransition, s.state)
	}
	for _, c := range s.clients {
		if c.ID == id {
			s.selectedClientID = id
			s.recomputeMissing()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownClient, id)
}

// RefreshClients replaces the read-only client snapshot wholesale. There is
// no incremental merge.
func (s *Session) RefreshClients(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCommitted || s.state == StateCancelled {
		return fmt.Errorf("%w: refresh from %s", ErrInvalidTransition, s.state)
	}
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("refreshing clients: %w", err)
	}
	s.clients = clients
	return nil
}

// MissingFields returns the required-field checklist for one side.
func (s *Session) MissingFields(side Side) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cand, err := s.candidateFor(side)
	if err != nil {
		return nil
	}
	return cand.MissingRequired()
}

// Commit persists the candidates according to the session's intent. It is
// refused (ErrIncomplete) while required fields are missing. In the combined
// flow the client must fully commit before the invoice is attempted; if the
// client commit fails the invoice is never started. A line-item failure
// triggers a compensating delete of the just-created invoice so no orphan
// survives. On any persistence failure the session returns to previewing
// with every candidate intact.
func (s *Session) Commit(ctx context.Context) (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePreviewing {
		return nil, fmt.Errorf("%w: commit from %s", ErrInvalidTransition, s.state)
	}
	if err := s.checkComplete(); err != nil {
		return nil, err
	}

	s.state = StateCommitting
	result := &CommitResult{}

	if s.wantsClient() && s.selectedClientID == uuid.Nil {
		// A client created by an earlier partial commit is reused rather
		// than recreated; the in-flight create may have landed.
		if s.createdClient == nil {
			client, err := s.store.CreateClient(ctx, s.clientInput())
			if err != nil {
				return nil, s.fail("create client", err)
			}
			s.createdClient = client
			s.log.Info().Str("client_id", client.ID.String()).Msg("client created")
		}
		result.Client = s.createdClient
	}

	if s.wantsInvoice() {
		clientID := s.linkedClientID()
		if clientID == uuid.Nil {
			s.state = StatePreviewing
			return nil, fmt.Errorf("%w: client_id", ErrIncomplete)
		}

		invoice, err := s.store.CreateInvoice(ctx, s.invoiceInput(clientID))
		if err != nil {
			return nil, s.fail("create invoice", err)
		}
		if err := s.store.AddInvoiceItems(ctx, invoice.ID, s.invoice.LineItems); err != nil {
			if delErr := s.store.DeleteInvoice(ctx, invoice.ID); delErr != nil {
				s.log.Error().Err(delErr).
					Str("invoice_id", invoice.ID.String()).
					Msg("compensating delete failed; invoice may be orphaned")
			}
			return nil, s.fail("create invoice items", err)
		}
		invoice.Items = s.invoice.LineItems
		result.Invoice = invoice
		s.log.Info().Str("invoice_id", invoice.ID.String()).Msg("invoice created")
	}

	s.state = StateCommitted
	s.lastErr = nil
	return result, nil
}

// Cancel discards the session from any non-terminal state. No store calls
// are made; an already in-flight create is not forcibly aborted.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCommitted || s.state == StateCancelled {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateCancelled
	s.client = nil
	s.invoice = nil
	s.editing = make(map[Side]string)
	return nil
}

// Client returns the client candidate (nil before start).
func (s *Session) Client() *extraction.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Invoice returns the invoice candidate (nil before start).
func (s *Session) Invoice() *extraction.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoice
}

// MatchResult returns the matcher's seed result.
func (s *Session) MatchResult() match.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SelectedClientID returns the linked client, zero when none.
func (s *Session) SelectedClientID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedClientID
}

// Clients returns a copy of the current snapshot.
func (s *Session) Clients() []models.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Client, len(s.clients))
	copy(out, s.clients)
	return out
}

// LastError returns the error attached by the most recent failed commit.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// fail records a persistence failure and returns the session to previewing
// so the user need not re-enter anything.
func (s *Session) fail(op string, err error) error {
	s.state = StatePreviewing
	s.lastErr = &PersistenceError{Op: op, Err: err}
	s.log.Warn().Err(err).Str("op", op).Msg("commit failed")
	return s.lastErr
}

func (s *Session) wantsClient() bool {
	return s.intent == IntentClient || s.intent == IntentBoth
}

func (s *Session) wantsInvoice() bool {
	return s.intent == IntentInvoice || s.intent == IntentBoth
}

// linkedClientID resolves the invoice's client link: an explicit or seeded
// selection wins, then a client created by this session.
func (s *Session) linkedClientID() uuid.UUID {
	if s.selectedClientID != uuid.Nil {
		return s.selectedClientID
	}
	if s.createdClient != nil {
		return s.createdClient.ID
	}
	return uuid.Nil
}

func (s *Session) hasClientLink() bool {
	return s.selectedClientID != uuid.Nil || s.createdClient != nil ||
		(s.intent == IntentBoth && s.client != nil && s.client.Complete())
}

func (s *Session) recomputeMissing() {
	if s.client != nil {
		s.client.RecomputeMissing(false)
	}
	if s.invoice != nil {
		s.invoice.RecomputeMissing(s.hasClientLink())
	}
}

func (s *Session) checkComplete() error {
	if s.wantsClient() && s.selectedClientID == uuid.Nil && !s.client.Complete() {
		return fmt.Errorf("%w: client %v", ErrIncomplete, s.client.MissingRequired())
	}
	if s.wantsInvoice() && !s.invoice.Complete() {
		return fmt.Errorf("%w: invoice %v", ErrIncomplete, s.invoice.MissingRequired())
	}
	return nil
}

func (s *Session) candidateFor(side Side) (*extraction.Candidate, error) {
	switch side {
	case SideClient:
		if s.client == nil {
			return nil, fmt.Errorf("%w: no client candidate", ErrInvalidTransition)
		}
		return s.client, nil
	case SideInvoice:
		if s.invoice == nil {
			return nil, fmt.Errorf("%w: no invoice candidate", ErrInvalidTransition)
		}
		return s.invoice, nil
	default:
		return nil, fmt.Errorf("unknown side %q", side)
	}
}

func (s *Session) clientInput() models.ClientInput {
	f := s.client.Fields
	return models.ClientInput{
		Name:        str(f[extraction.FieldName]),
		Email:       str(f[extraction.FieldEmail]),
		Phone:       str(f[extraction.FieldPhone]),
		Address:     str(f[extraction.FieldAddress]),
		CompanyName: str(f[extraction.FieldCompany]),
		Notes:       str(f[extraction.FieldNotes]),
	}
}

func (s *Session) invoiceInput(clientID uuid.UUID) models.InvoiceInput {
	f := s.invoice.Fields
	now := s.now()

	issued, ok := extraction.ParseDate(str(f[extraction.FieldIssued]))
	if !ok {
		issued = now
	}
	due, ok := extraction.ParseDate(str(f[extraction.FieldDue]))
	if !ok {
		due = issued.AddDate(0, 0, 7)
	}

	return models.InvoiceInput{
		Number:     str(f[extraction.FieldNumber]),
		ClientID:   clientID,
		Status:     models.StatusDraft,
		IssuedDate: issued,
		DueDate:    due,
		Subtotal:   extraction.ParseAmount(f[extraction.FieldSubtotal]),
		Tax:        extraction.ParseAmount(f[extraction.FieldTax]),
		Discount:   extraction.ParseAmount(f[extraction.FieldDiscount]),
		Total:      extraction.ParseAmount(f[extraction.FieldTotal]),
		Notes:      str(f[extraction.FieldNotes]),
	}
}

var clientFieldNames = fieldNameSet(extraction.ClientFieldSpecs(), extraction.FieldNotes)
var invoiceFieldNames = fieldNameSet(extraction.InvoiceFieldSpecs(), extraction.FieldClientID)

func knownField(side Side, name string) bool {
	switch side {
	case SideClient:
		return clientFieldNames[name]
	case SideInvoice:
		return invoiceFieldNames[name]
	}
	return false
}

func fieldNameSet(specs []extraction.FieldSpec, extra ...string) map[string]bool {
	set := make(map[string]bool, len(specs)+len(extra))
	for _, spec := range specs {
		set[spec.Name] = true
	}
	for _, name := range extra {
		set[name] = true
	}
	return set
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
