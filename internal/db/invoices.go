package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/invoyisi/resolution-service/internal/models"
)

const invoiceColumns = `id, COALESCE(number, ''), client_id, COALESCE(status, 'draft'),
       issued_date, due_date,
       COALESCE(subtotal, 0), COALESCE(tax, 0), COALESCE(discount, 0), COALESCE(total, 0),
       COALESCE(notes, ''), created_at`

// CreateInvoice inserts the invoice row only. Line items are added with
// AddInvoiceItems so a failed item write can be compensated by DeleteInvoice.
func (s *Store) CreateInvoice(ctx context.Context, input models.InvoiceInput) (*models.Invoice, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		INSERT INTO invoices (number, client_id, status, issued_date, due_date,
		                      subtotal, tax, discount, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	inv := models.Invoice{
		Number:     input.Number,
		ClientID:   input.ClientID,
		Status:     input.Status,
		IssuedDate: input.IssuedDate,
		DueDate:    input.DueDate,
		Subtotal:   input.Subtotal,
		Tax:        input.Tax,
		Discount:   input.Discount,
		Total:      input.Total,
		Notes:      input.Notes,
	}
	err := s.pool.QueryRow(ctx, query,
		input.Number, input.ClientID, input.Status, input.IssuedDate, input.DueDate,
		input.Subtotal, input.Tax, input.Discount, input.Total, input.Notes,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// AddInvoiceItems inserts the line items of one invoice in a single
// transaction, preserving their order through the position column.
func (s *Store) AddInvoiceItems(ctx context.Context, invoiceID uuid.UUID, items []models.LineItem) error {
	if s.pool == nil {
		return ErrNoDatabase
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i, item := range items {
		if _, err := tx.Exec(ctx, query,
			invoiceID, i, item.Description, item.Quantity, item.UnitPrice, item.Amount,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetInvoice returns one invoice with its line items.
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns)

	var inv models.Invoice
	err := scanInvoice(s.pool.QueryRow(ctx, query, id), &inv)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.invoiceItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return &inv, nil
}

// ListInvoices returns invoices newest first, optionally filtered by client.
func (s *Store) ListInvoices(ctx context.Context, clientID uuid.UUID, limit int) ([]models.Invoice, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 {
		limit = 100
	}

	var (
		query string
		args  []any
	)
	if clientID != uuid.Nil {
		query = fmt.Sprintf(`SELECT %s FROM invoices WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2`, invoiceColumns)
		args = []any{clientID, limit}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM invoices ORDER BY created_at DESC LIMIT $1`, invoiceColumns)
		args = []any{limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateInvoiceStatus moves an invoice through its billing lifecycle.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status string) error {
	if s.pool == nil {
		return ErrNoDatabase
	}

	tag, err := s.pool.Exec(ctx, `UPDATE invoices SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInvoice removes an invoice. Its line items go with it via
// ON DELETE CASCADE.
func (s *Store) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	if s.pool == nil {
		return ErrNoDatabase
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) invoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]models.LineItem, error) {
	query := `
		SELECT COALESCE(description, ''), COALESCE(quantity, 0), COALESCE(unit_price, 0), COALESCE(amount, 0)
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`

	rows, err := s.pool.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.Description, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanInvoice(row pgx.Row, inv *models.Invoice) error {
	return row.Scan(
		&inv.ID, &inv.Number, &inv.ClientID, &inv.Status,
		&inv.IssuedDate, &inv.DueDate,
		&inv.Subtotal, &inv.Tax, &inv.Discount, &inv.Total,
		&inv.Notes, &inv.CreatedAt,
	)
}
