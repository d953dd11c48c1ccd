package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
)

// ContactRepositoryInterface is the recipient-directory contract.
type ContactRepositoryInterface interface {
	GetByID(id string) (*model.Contact, error)
	ListSendableByIDs(ids []string) ([]model.Contact, error)
	List(offset, limit int) ([]model.Contact, int, error)
	Create(c *model.Contact) error
	RecordMessageSent(id string, at time.Time) error
}

// ContactRepository is the Postgres implementation.
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, name, phone, email, tags, "groups", is_active, is_blocked,
	last_message_sent, total_messages_sent, notes, created_at, updated_at`

// Create inserts a new contact.
func (r *ContactRepository) Create(c *model.Contact) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	query := `
        INSERT INTO contacts (` + contactColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := r.DB.Exec(query,
		c.ID, c.Name, c.Phone, c.Email, pq.Array(c.Tags), pq.Array(c.Groups),
		c.IsActive, c.IsBlocked, c.LastMessageSent, c.TotalMessagesSent,
		c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByID fetches one contact, nil when absent.
func (r *ContactRepository) GetByID(id string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	c, err := scanContact(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListSendableByIDs resolves the requested IDs to contacts that are active
// and not blocked. Unknown IDs are silently dropped; the caller decides what
// an empty result means.
func (r *ContactRepository) ListSendableByIDs(ids []string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
        WHERE id = ANY($1) AND is_active = TRUE AND is_blocked = FALSE`
	rows, err := r.DB.Query(query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// List returns contacts ordered by name plus the total count.
func (r *ContactRepository) List(offset, limit int) ([]model.Contact, int, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts ORDER BY name ASC LIMIT $1 OFFSET $2`
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// RecordMessageSent bumps the delivery bookkeeping after a successful send.
func (r *ContactRepository) RecordMessageSent(id string, at time.Time) error {
	query := `UPDATE contacts
        SET last_message_sent = $1, total_messages_sent = total_messages_sent + 1, updated_at = NOW()
        WHERE id = $2`
	_, err := r.DB.Exec(query, at, id)
	return err
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, pq.Array(&c.Tags), pq.Array(&c.Groups),
		&c.IsActive, &c.IsBlocked, &c.LastMessageSent, &c.TotalMessagesSent,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
