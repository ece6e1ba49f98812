package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/invoyisi/resolution-service/internal/extraction"
	"github.com/invoyisi/resolution-service/internal/services"
	"github.com/invoyisi/resolution-service/internal/session"
	"github.com/invoyisi/resolution-service/internal/storage"
)

// SessionRegistry holds the in-flight review sessions. Sessions live in
// memory only; a restart discards previews, never committed data.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*session.Session)}
}

// Put registers a session.
func (r *SessionRegistry) Put(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Get returns a session by id.
func (r *SessionRegistry) Get(id uuid.UUID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry.
func (r *SessionRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ProcessDocument accepts an uploaded invoice document, runs extraction and
// opens a review session over the result.
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "file too large or invalid form data")
		return
	}

	// Accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "no file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	intent, err := parseIntent(r.FormValue("intent"))
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	// Store the source document when storage is configured; failures here
	// never block extraction
	var documentURL string
	if storage.Client != nil {
		filename := fmt.Sprintf("%s_%s%s",
			time.Now().Format("20060102_150405"),
			uuid.New().String()[:8],
			storage.GetFileExtension(contentType),
		)
		documentURL, err = storage.UploadDocument(ctx, filename, bytes.NewReader(imageData), int64(len(imageData)), contentType)
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to upload document to storage")
			documentURL = ""
		}
	}

	// OCR text supplied directly switches extraction to text mode
	ocrText := r.FormValue("text")

	var imageBase64 string
	if ocrText == "" {
		if r.FormValue("enhance") == "true" {
			if enhanced, err := h.preprocessor.Enhance(imageData); err == nil {
				imageData = enhanced
			}
		}
		imageBase64 = base64.StdEncoding.EncodeToString(imageData)
	}

	raw, err := h.extractor.Extract(ctx, ocrText, imageBase64)
	if err != nil {
		h.sendError(w, http.StatusBadGateway, "extraction failed: "+err.Error())
		return
	}

	sess := session.New(h.store, h.log, intent)
	if err := sess.Start(ctx, raw); err != nil {
		h.storeError(w, "failed to start review session", err)
		return
	}
	h.sessions.Put(sess)

	h.log.Info().
		Str("session_id", sess.ID().String()).
		Str("intent", string(intent)).
		Dur("took", time.Since(start)).
		Msg("document processed")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"document_url": documentURL,
		"session":      h.sessionView(sess),
	})
}

// GetSession returns the current state of a review session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"session": h.sessionView(sess),
	})
}

// SetSessionField edits one candidate field.
func (h *Handler) SetSessionField(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Side  string `json:"side"`
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side := session.Side(body.Side)
	if err := sess.OpenField(side, body.Field); err != nil {
		h.sessionError(w, err)
		return
	}
	if err := sess.SetField(side, body.Field, body.Value); err != nil {
		h.sessionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"session": h.sessionView(sess),
	})
}

// SelectSessionClient links the invoice candidate to an existing client.
func (h *Handler) SelectSessionClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var body struct {
		ClientID uuid.UUID `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := sess.SelectExistingClient(body.ClientID); err != nil {
		h.sessionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"session": h.sessionView(sess),
	})
}

// RefreshSessionClients reloads the session's client snapshot.
func (h *Handler) RefreshSessionClients(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.RefreshClients(r.Context()); err != nil {
		h.sessionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"session": h.sessionView(sess),
	})
}

// CommitSession persists the session's candidates.
func (h *Handler) CommitSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := sess.Commit(r.Context())
	if err != nil {
		h.sessionError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"client":  result.Client,
		"invoice": result.Invoice,
		"session": h.sessionView(sess),
	})
}

// CancelSession discards a session.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := sess.Cancel(); err != nil {
		h.sessionError(w, err)
		return
	}
	h.sessions.Remove(sess.ID())

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "session cancelled",
	})
}

// session resolves the {id} path variable against the registry.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, ok := h.sessions.Get(id)
	if !ok {
		h.sendError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// sessionError maps session errors onto HTTP statuses.
func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	var perr *session.PersistenceError
	switch {
	case errors.Is(err, session.ErrIncomplete):
		h.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrUnknownField), errors.Is(err, session.ErrUnknownClient):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		h.log.Error().Err(err).Msg("session commit failed")
		h.sendError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error().Err(err).Msg("session operation failed")
		h.sendError(w, http.StatusInternalServerError, err.Error())
	}
}

type candidateView struct {
	Fields    map[string]any `json:"fields"`
	Missing   []string       `json:"missing_required"`
	LineItems any            `json:"line_items,omitempty"`
}

type sessionView struct {
	ID               string                     `json:"id"`
	State            session.State              `json:"state"`
	Intent           session.Intent             `json:"intent"`
	Client           *candidateView             `json:"client,omitempty"`
	Invoice          *candidateView             `json:"invoice,omitempty"`
	Match            map[string]any             `json:"match"`
	SelectedClientID string                     `json:"selected_client_id,omitempty"`
	Clients          any                        `json:"clients"`
	Validation       *services.ValidationResult `json:"validation,omitempty"`
	LastError        string                     `json:"last_error,omitempty"`
}

// sessionView renders a session for API consumers.
func (h *Handler) sessionView(sess *session.Session) sessionView {
	view := sessionView{
		ID:      sess.ID().String(),
		State:   sess.State(),
		Intent:  sess.Intent(),
		Clients: sess.Clients(),
	}

	match := sess.MatchResult()
	view.Match = map[string]any{
		"matched": match.Matched,
		"via":     match.Via,
	}
	if match.Matched {
		view.Match["client_id"] = match.ClientID.String()
	}
	if id := sess.SelectedClientID(); id != uuid.Nil {
		view.SelectedClientID = id.String()
	}

	if client := sess.Client(); client != nil {
		view.Client = &candidateView{
			Fields:  client.Fields,
			Missing: client.MissingRequired(),
		}
	}
	if invoice := sess.Invoice(); invoice != nil {
		view.Invoice = &candidateView{
			Fields:    invoice.Fields,
			Missing:   invoice.MissingRequired(),
			LineItems: invoice.LineItems,
		}
		view.Validation = h.validateCandidate(invoice)
	}
	if err := sess.LastError(); err != nil {
		view.LastError = err.Error()
	}

	return view
}

// validateCandidate runs the advisory amount checks over an invoice candidate.
func (h *Handler) validateCandidate(invoice *extraction.Candidate) *services.ValidationResult {
	f := invoice.Fields
	amounts := &services.InvoiceAmounts{
		Subtotal: extraction.ParseAmount(f[extraction.FieldSubtotal]),
		Tax:      extraction.ParseAmount(f[extraction.FieldTax]),
		Discount: extraction.ParseAmount(f[extraction.FieldDiscount]),
		Total:    extraction.ParseAmount(f[extraction.FieldTotal]),
		Items:    invoice.LineItems,
	}
	if issued, ok := extraction.ParseDate(asString(f[extraction.FieldIssued])); ok {
		amounts.IssuedDate = issued
	}
	if due, ok := extraction.ParseDate(asString(f[extraction.FieldDue])); ok {
		amounts.DueDate = due
	}
	return h.validator.Validate(amounts)
}

func parseIntent(raw string) (session.Intent, error) {
	switch raw {
	case "", "both":
		return session.IntentBoth, nil
	case "client":
		return session.IntentClient, nil
	case "invoice":
		return session.IntentInvoice, nil
	default:
		return "", fmt.Errorf("unknown intent %q", raw)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
