package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client is a persisted billing client.
type Client struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClientInput carries the fields for creating a client.
type ClientInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	CompanyName string `json:"company_name"`
	Notes       string `json:"notes"`
}

// Invoice is a persisted invoice with its line items.
type Invoice struct {
	ID         uuid.UUID       `json:"id"`
	Number     string          `json:"number"`
	ClientID   uuid.UUID       `json:"client_id"`
	Status     string          `json:"status"`
	IssuedDate time.Time       `json:"issued_date"`
	DueDate    time.Time       `json:"due_date"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	Notes      string          `json:"notes,omitempty"`
	Items      []LineItem      `json:"items,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// InvoiceInput carries the fields for creating an invoice. Line items are
// written in a second step so a failed item insert can roll the invoice back.
type InvoiceInput struct {
	Number     string          `json:"number"`
	ClientID   uuid.UUID       `json:"client_id"`
	Status     string          `json:"status"`
	IssuedDate time.Time       `json:"issued_date"`
	DueDate    time.Time       `json:"due_date"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	Notes      string          `json:"notes"`
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice statuses.
const (
	StatusDraft   = "draft"
	StatusSent    = "sent"
	StatusPaid    = "paid"
	StatusOverdue = "overdue"
)
