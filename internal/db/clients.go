// Package db persists clients, invoices and invoice line items in Postgres.
// Store satisfies the session package's EntityStore so that review sessions
// can commit directly against it.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invoyisi/resolution-service/internal/models"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Store runs entity queries against one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pool. A nil pool yields a store whose every call returns
// ErrNoDatabase.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const clientColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''),
       COALESCE(address, ''), COALESCE(company_name, ''), COALESCE(notes, ''), created_at`

// ListClients returns every client, newest first.
func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := fmt.Sprintf(`SELECT %s FROM clients ORDER BY created_at DESC`, clientColumns)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var c models.Client
		if err := scanClient(rows, &c); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClient returns one client by id.
func (s *Store) GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)

	var c models.Client
	err := scanClient(s.pool.QueryRow(ctx, query, id), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient inserts a client and returns the stored row.
func (s *Store) CreateClient(ctx context.Context, input models.ClientInput) (*models.Client, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		INSERT INTO clients (name, email, phone, address, company_name, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	c := models.Client{
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		CompanyName: input.CompanyName,
		Notes:       input.Notes,
	}
	err := s.pool.QueryRow(ctx, query,
		input.Name, input.Email, input.Phone, input.Address, input.CompanyName, input.Notes,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateClient overwrites the mutable fields of a client.
func (s *Store) UpdateClient(ctx context.Context, id uuid.UUID, input models.ClientInput) (*models.Client, error) {
	if s.pool == nil {
		return nil, ErrNoDatabase
	}

	query := `
		UPDATE clients
		SET name = $2, email = $3, phone = $4, address = $5, company_name = $6, notes = $7
		WHERE id = $1
		RETURNING created_at
	`

	c := models.Client{
		ID:          id,
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		CompanyName: input.CompanyName,
		Notes:       input.Notes,
	}
	err := s.pool.QueryRow(ctx, query,
		id, input.Name, input.Email, input.Phone, input.Address, input.CompanyName, input.Notes,
	).Scan(&c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteClient removes a client. Invoices referencing it are deleted by the
// schema's ON DELETE CASCADE.
func (s *Store) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if s.pool == nil {
		return ErrNoDatabase
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row, c *models.Client) error {
	return row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone,
		&c.Address, &c.CompanyName, &c.Notes, &c.CreatedAt,
	)
}
