package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoyisi/resolution-service/internal/extraction"
	"github.com/invoyisi/resolution-service/internal/match"
	"github.com/invoyisi/resolution-service/internal/models"
)

// fakeStore is an in-memory EntityStore with per-operation failure hooks.
type fakeStore struct {
	clients  []models.Client
	invoices map[uuid.UUID]*models.Invoice
	items    map[uuid.UUID][]models.LineItem

	listErr       error
	createCliErr  error
	createInvErr  error
	addItemsErr   error
	deleteInvErr  error
	createCliN    int
	createInvN    int
	listN         int
	deletedInvIDs []uuid.UUID
}

func newFakeStore(clients ...models.Client) *fakeStore {
	return &fakeStore{
		clients:  clients,
		invoices: make(map[uuid.UUID]*models.Invoice),
		items:    make(map[uuid.UUID][]models.LineItem),
	}
}

func (f *fakeStore) ListClients(ctx context.Context) ([]models.Client, error) {
	f.listN++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.clients, nil
}

func (f *fakeStore) CreateClient(ctx context.Context, in models.ClientInput) (*models.Client, error) {
	f.createCliN++
	if f.createCliErr != nil {
		return nil, f.createCliErr
	}
	c := models.Client{
		ID: uuid.New(), Name: in.Name, Email: in.Email,
		Phone: in.Phone, Address: in.Address, CompanyName: in.CompanyName, Notes: in.Notes,
	}
	f.clients = append(f.clients, c)
	return &c, nil
}

func (f *fakeStore) CreateInvoice(ctx context.Context, in models.InvoiceInput) (*models.Invoice, error) {
	f.createInvN++
	if f.createInvErr != nil {
		return nil, f.createInvErr
	}
	inv := &models.Invoice{
		ID: uuid.New(), Number: in.Number, ClientID: in.ClientID, Status: in.Status,
		IssuedDate: in.IssuedDate, DueDate: in.DueDate,
		Subtotal: in.Subtotal, Tax: in.Tax, Discount: in.Discount, Total: in.Total,
		Notes: in.Notes,
	}
	f.invoices[inv.ID] = inv
	return inv, nil
}

func (f *fakeStore) AddInvoiceItems(ctx context.Context, invoiceID uuid.UUID, items []models.LineItem) error {
	if f.addItemsErr != nil {
		return f.addItemsErr
	}
	f.items[invoiceID] = items
	return nil
}

func (f *fakeStore) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	if f.deleteInvErr != nil {
		return f.deleteInvErr
	}
	delete(f.invoices, id)
	f.deletedInvIDs = append(f.deletedInvIDs, id)
	return nil
}

func rawFrom(t *testing.T, payload string) extraction.RawExtraction {
	t.Helper()
	raw, err := extraction.ParseRawExtraction([]byte(payload))
	require.NoError(t, err)
	return raw
}

const fullDocument = `{
	"client_name":"Jane Cooper",
	"client_email":"jane@coop.example",
	"invoice_number":"2024-0042",
	"issue_date":"2025-03-01",
	"due_date":"2025-03-15",
	"items":[
		{"description":"Consulting","quantity":4,"unit_price":100,"amount":400},
		{"description":"Travel","quantity":1,"unit_price":100,"amount":100}
	],
	"tax":"50"
}`

func newTestSession(store EntityStore, intent Intent) *Session {
	return New(store, zerolog.Nop(), intent)
}

func TestStartMovesToPreviewing(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.Equal(t, StateIdle, s.State())

	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	assert.Equal(t, StatePreviewing, s.State())
	assert.Equal(t, "Jane Cooper", s.Client().Fields[extraction.FieldName])
	assert.Equal(t, "2024-0042", s.Invoice().Fields[extraction.FieldNumber])
	assert.Len(t, s.Invoice().LineItems, 2)
}

func TestStartTwiceRejected(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	err := s.Start(context.Background(), rawFrom(t, fullDocument))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartListFailureStaysIdleAndRetries(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")
	s := newTestSession(store, IntentBoth)

	err := s.Start(context.Background(), rawFrom(t, fullDocument))
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State())

	store.listErr = nil
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))
	assert.Equal(t, StatePreviewing, s.State())
}

func TestMatcherSeedsClientSelection(t *testing.T) {
	known := models.Client{ID: uuid.New(), Name: "Jane Cooper", Email: "jane@coop.example"}
	s := newTestSession(newFakeStore(known), IntentInvoice)

	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	assert.Equal(t, match.ViaEmail, s.MatchResult().Via)
	assert.Equal(t, known.ID, s.SelectedClientID())
	assert.Empty(t, s.MissingFields(SideInvoice))
}

func TestEditCycle(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	require.NoError(t, s.OpenField(SideClient, extraction.FieldName))
	assert.Equal(t, StateEditing, s.State())

	// A different field on the same side cannot be written mid-edit.
	err := s.SetField(SideClient, extraction.FieldEmail, "x@y.com")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.SetField(SideClient, extraction.FieldName, "Jane R. Cooper"))
	assert.Equal(t, StatePreviewing, s.State())
	assert.Equal(t, "Jane R. Cooper", s.Client().Fields[extraction.FieldName])
}

func TestEditBothSidesIndependently(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	require.NoError(t, s.OpenField(SideClient, extraction.FieldName))
	require.NoError(t, s.OpenField(SideInvoice, extraction.FieldNotes))

	require.NoError(t, s.SetField(SideInvoice, extraction.FieldNotes, "rush order"))
	assert.Equal(t, StateEditing, s.State()) // client edit still open

	require.NoError(t, s.SetField(SideClient, extraction.FieldName, "Jane"))
	assert.Equal(t, StatePreviewing, s.State())
}

func TestSetAmountFieldCoerces(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	require.NoError(t, s.SetField(SideInvoice, extraction.FieldTax, "not-a-number"))
	tax := s.Invoice().Fields[extraction.FieldTax].(decimal.Decimal)
	assert.True(t, tax.IsZero())
}

func TestSetUnknownFieldRejected(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	err := s.SetField(SideInvoice, "surprise", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCommitGatingOnClientID(t *testing.T) {
	known := models.Client{ID: uuid.New(), Name: "Someone Unrelated"}
	s := newTestSession(newFakeStore(known), IntentInvoice)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, `{"total":100}`)))

	require.Equal(t, []string{extraction.FieldClientID}, s.MissingFields(SideInvoice))

	_, err := s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, StatePreviewing, s.State())

	require.NoError(t, s.SelectExistingClient(known.ID))
	assert.Empty(t, s.MissingFields(SideInvoice))

	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, s.State())
	assert.Equal(t, known.ID, res.Invoice.ClientID)
}

func TestSelectUnknownClientRejected(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentInvoice)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, `{"total":100}`)))

	err := s.SelectExistingClient(uuid.New())
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestCommitBothCreatesClientThenInvoice(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(store, IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	res, err := s.Commit(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Client)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "Jane Cooper", res.Client.Name)
	assert.Equal(t, res.Client.ID, res.Invoice.ClientID)
	assert.True(t, res.Invoice.Subtotal.Equal(decimal.NewFromInt(500)))
	assert.True(t, res.Invoice.Tax.Equal(decimal.NewFromInt(50)))
	assert.True(t, res.Invoice.Total.Equal(decimal.NewFromInt(550)))
	assert.Len(t, store.items[res.Invoice.ID], 2)
}

func TestCommitClientFailureSkipsInvoice(t *testing.T) {
	store := newFakeStore()
	store.createCliErr = errors.New("unique violation")
	s := newTestSession(store, IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	_, err := s.Commit(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create client", perr.Op)
	assert.Equal(t, StatePreviewing, s.State())
	assert.Zero(t, store.createInvN)

	// Candidate data survives the failure.
	assert.Equal(t, "Jane Cooper", s.Client().Fields[extraction.FieldName])
}

func TestCommitRetryReusesCreatedClient(t *testing.T) {
	store := newFakeStore()
	store.addItemsErr = errors.New("disk full")
	s := newTestSession(store, IntentBoth)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	_, err := s.Commit(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, store.createCliN)

	store.addItemsErr = nil
	res, err := s.Commit(context.Background())
	require.NoError(t, err)
	// The already-created client is reused, not duplicated.
	assert.Equal(t, 1, store.createCliN)
	assert.NotNil(t, res.Client)
}

func TestCommitRollsBackInvoiceWhenItemsFail(t *testing.T) {
	known := models.Client{ID: uuid.New(), Name: "Jane Cooper", Email: "jane@coop.example"}
	store := newFakeStore(known)
	store.addItemsErr = errors.New("constraint violation")
	s := newTestSession(store, IntentInvoice)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	_, err := s.Commit(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create invoice items", perr.Op)

	// Compensating delete ran: no invoice survives in the store.
	assert.Empty(t, store.invoices)
	assert.Len(t, store.deletedInvIDs, 1)
	assert.Equal(t, StatePreviewing, s.State())
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	s := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s.Cancel())
	assert.Equal(t, StateCancelled, s.State())

	s2 := newTestSession(newFakeStore(), IntentBoth)
	require.NoError(t, s2.Start(context.Background(), rawFrom(t, fullDocument)))
	require.NoError(t, s2.OpenField(SideClient, extraction.FieldName))
	require.NoError(t, s2.Cancel())
	assert.Equal(t, StateCancelled, s2.State())
	assert.Nil(t, s2.Client())

	// Terminal states reject further transitions.
	assert.ErrorIs(t, s2.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, s2.OpenField(SideClient, extraction.FieldName), ErrInvalidTransition)
	_, err := s2.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefreshClientsReplacesSnapshot(t *testing.T) {
	store := newFakeStore()
	s := newTestSession(store, IntentInvoice)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, `{"total":100}`)))
	assert.Empty(t, s.Clients())

	added := models.Client{ID: uuid.New(), Name: "Late Arrival"}
	store.clients = append(store.clients, added)

	require.NoError(t, s.RefreshClients(context.Background()))
	require.Len(t, s.Clients(), 1)
	require.NoError(t, s.SelectExistingClient(added.ID))
}

func TestCommitAfterCommitRejected(t *testing.T) {
	known := models.Client{ID: uuid.New(), Name: "Jane Cooper", Email: "jane@coop.example"}
	s := newTestSession(newFakeStore(known), IntentInvoice)
	require.NoError(t, s.Start(context.Background(), rawFrom(t, fullDocument)))

	_, err := s.Commit(context.Background())
	require.NoError(t, err)

	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
