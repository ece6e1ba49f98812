// Package api exposes the resolution service over HTTP: document processing,
// review sessions, and client/invoice CRUD.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/invoyisi/resolution-service/internal/ai"
	"github.com/invoyisi/resolution-service/internal/db"
	"github.com/invoyisi/resolution-service/internal/models"
	"github.com/invoyisi/resolution-service/internal/ocr"
	"github.com/invoyisi/resolution-service/internal/services"
	"github.com/invoyisi/resolution-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests for document resolution
type Handler struct {
	config       *models.Config
	store        *db.Store
	extractor    *ai.Extractor
	preprocessor *ocr.Preprocessor
	validator    *services.AmountValidator
	sessions     *SessionRegistry
	log          zerolog.Logger
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, store *db.Store, extractor *ai.Extractor, log zerolog.Logger) *Handler {
	return &Handler{
		config:       config,
		store:        store,
		extractor:    extractor,
		preprocessor: ocr.NewPreprocessor(log),
		validator:    services.NewAmountValidator(),
		sessions:     NewSessionRegistry(),
		log:          log,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Document processing
	router.HandleFunc("/api/documents/process", h.ProcessDocument).Methods("POST")

	// Review sessions
	router.HandleFunc("/api/sessions/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/api/sessions/{id}/fields", h.SetSessionField).Methods("POST")
	router.HandleFunc("/api/sessions/{id}/select-client", h.SelectSessionClient).Methods("POST")
	router.HandleFunc("/api/sessions/{id}/refresh-clients", h.RefreshSessionClients).Methods("POST")
	router.HandleFunc("/api/sessions/{id}/commit", h.CommitSession).Methods("POST")
	router.HandleFunc("/api/sessions/{id}/cancel", h.CancelSession).Methods("POST")

	// Client CRUD
	router.HandleFunc("/api/clients", h.GetClients).Methods("GET")
	router.HandleFunc("/api/clients", h.CreateClient).Methods("POST")
	router.HandleFunc("/api/clients/{id}", h.GetClient).Methods("GET")
	router.HandleFunc("/api/clients/{id}", h.UpdateClient).Methods("PUT")
	router.HandleFunc("/api/clients/{id}", h.DeleteClient).Methods("DELETE")

	// Invoice read side
	router.HandleFunc("/api/invoices", h.GetInvoices).Methods("GET")
	router.HandleFunc("/api/invoices/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/api/invoices/{id}/status", h.UpdateInvoiceStatus).Methods("PUT")
	router.HandleFunc("/api/invoices/{id}", h.DeleteInvoice).Methods("DELETE")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Memory      MemoryStats       `json:"memory"`
	ImageMagick ServiceStatus     `json:"imageMagick"`
	Database    ServiceStatus     `json:"database"`
	Storage     ServiceStatus     `json:"storage"`
	AI          map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	databaseStatus := h.checkDatabase()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		ImageMagick: h.checkImageMagick(),
		Database:    databaseStatus,
		Storage:     h.checkStorage(),
		AI: map[string]string{
			"defaultProvider": h.config.AI.DefaultProvider,
		},
	}

	// Without a database the service can only preview, never commit
	if !databaseStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkImageMagick verifies ImageMagick is available
func (h *Handler) checkImageMagick() ServiceStatus {
	cmd := exec.Command("convert", "-version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     "imagemagick not found or not executable",
		}
	}

	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		version = strings.TrimSpace(lines[0])
	}

	return ServiceStatus{
		Available: true,
		Version:   version,
	}
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}
	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}
	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// GetClients returns all clients
func (h *Handler) GetClients(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		h.storeError(w, "failed to list clients", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"clients": clients,
		"count":   len(clients),
	})
}

// CreateClient inserts a new client
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var input models.ClientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Name == "" {
		h.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	client, err := h.store.CreateClient(r.Context(), input)
	if err != nil {
		h.storeError(w, "failed to create client", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"client":  client,
	})
}

// GetClient returns a single client
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.storeError(w, "failed to get client", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"client":  client,
	})
}

// UpdateClient overwrites a client's fields
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var input models.ClientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Name == "" {
		h.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	client, err := h.store.UpdateClient(r.Context(), id, input)
	if err != nil {
		h.storeError(w, "failed to update client", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"client":  client,
	})
}

// DeleteClient removes a client and its invoices
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteClient(r.Context(), id); err != nil {
		h.storeError(w, "failed to delete client", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "client deleted",
	})
}

// GetInvoices returns invoices, optionally filtered by ?client_id=
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	clientID := uuid.Nil
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid client_id")
			return
		}
		clientID = id
	}

	invoices, err := h.store.ListInvoices(r.Context(), clientID, 100)
	if err != nil {
		h.storeError(w, "failed to list invoices", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// GetInvoice returns a single invoice with its line items
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	invoice, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		h.storeError(w, "failed to get invoice", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"invoice": invoice,
	})
}

// UpdateInvoiceStatus moves an invoice through its billing lifecycle
func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch body.Status {
	case models.StatusDraft, models.StatusSent, models.StatusPaid, models.StatusOverdue:
	default:
		h.sendError(w, http.StatusBadRequest, "unknown status "+body.Status)
		return
	}

	if err := h.store.UpdateInvoiceStatus(r.Context(), id, body.Status); err != nil {
		h.storeError(w, "failed to update invoice status", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "status updated",
	})
}

// DeleteInvoice removes an invoice
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteInvoice(r.Context(), id); err != nil {
		h.storeError(w, "failed to delete invoice", err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "invoice deleted",
	})
}

// pathID parses the {id} path variable.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// storeError maps store errors onto HTTP statuses.
func (h *Handler) storeError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.sendError(w, http.StatusNotFound, message+": not found")
	case errors.Is(err, db.ErrNoDatabase):
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
	default:
		h.log.Error().Err(err).Msg(message)
		h.sendError(w, http.StatusInternalServerError, message)
	}
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
