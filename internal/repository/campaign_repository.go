package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
)

// CampaignRepositoryInterface is the persistence contract consumed by the
// service, the dispatcher and the scheduler.
type CampaignRepositoryInterface interface {
	GetByID(id string) (*model.Campaign, error)
	FindByMessageID(messageID string) (*model.Campaign, error)
	Save(c *model.Campaign) error
	List(offset, limit int) ([]*model.Campaign, int, error)
	ListPending(now time.Time) ([]*model.Campaign, error)
	StatsOverview() (*OverviewStats, error)
}

// OverviewStats aggregates delivery totals across all campaigns.
type OverviewStats struct {
	TotalCampaigns  int `json:"total_campaigns"`
	TotalRecipients int `json:"total_recipients"`
	TotalSent       int `json:"total_sent"`
	TotalDelivered  int `json:"total_delivered"`
	TotalRead       int `json:"total_read"`
	TotalFailed     int `json:"total_failed"`
}

// CampaignRepository stores each campaign as one row with the recipient list
// in a JSONB column, so Save atomically persists the whole campaign document
// in a single statement.
type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, content, kind, media_url, media_filename, recipients,
	total_recipients, sent_count, delivered_count, read_count, failed_count,
	scheduled_for, is_scheduled, is_completed, created_at, updated_at`

// Save upserts the campaign. Derived counters are recomputed from the
// recipient list right before the write and UpdatedAt is refreshed, so the
// stored aggregates always equal a pure function of the recipients.
func (r *CampaignRepository) Save(c *model.Campaign) error {
	c.Recompute()
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	recipients, err := json.Marshal(c.Recipients)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO campaigns (` + campaignColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (id) DO UPDATE SET
            recipients = EXCLUDED.recipients,
            total_recipients = EXCLUDED.total_recipients,
            sent_count = EXCLUDED.sent_count,
            delivered_count = EXCLUDED.delivered_count,
            read_count = EXCLUDED.read_count,
            failed_count = EXCLUDED.failed_count,
            is_completed = EXCLUDED.is_completed,
            updated_at = EXCLUDED.updated_at
    `
	// lib/pq maps []byte to bytea; jsonb wants text.
	_, err = r.DB.Exec(query,
		c.ID, c.Content, c.Kind, c.MediaURL, c.MediaFilename, string(recipients),
		c.TotalRecipients, c.SentCount, c.DeliveredCount, c.ReadCount, c.FailedCount,
		c.ScheduledFor, c.IsScheduled, c.IsCompleted, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetByID loads one campaign with its full recipient list.
func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

// FindByMessageID resolves a gateway message ID to the campaign whose send
// produced it, nil when no campaign carries it. Message IDs are unique per
// send, so JSONB containment on the recipient list finds at most one row.
func (r *CampaignRepository) FindByMessageID(messageID string) (*model.Campaign, error) {
	match, err := json.Marshal([]map[string]string{{"message_id": messageID}})
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE recipients @> $1::jsonb LIMIT 1`
	c, err := scanCampaign(r.DB.QueryRow(query, string(match)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// List returns campaigns newest first plus the total count for pagination.
func (r *CampaignRepository) List(offset, limit int) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ListPending returns scheduled campaigns that are due and not yet complete.
// The scheduler hands each of them to the dispatcher; re-listing a campaign
// that is already dispatching is harmless because dispatch only touches
// pending recipients.
func (r *CampaignRepository) ListPending(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE is_scheduled = TRUE AND scheduled_for <= $1 AND is_completed = FALSE
        ORDER BY scheduled_for ASC`
	rows, err := r.DB.Query(query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// StatsOverview sums the stored per-campaign counters for the dashboard.
func (r *CampaignRepository) StatsOverview() (*OverviewStats, error) {
	query := `
        SELECT COUNT(*),
               COALESCE(SUM(total_recipients), 0),
               COALESCE(SUM(sent_count), 0),
               COALESCE(SUM(delivered_count), 0),
               COALESCE(SUM(read_count), 0),
               COALESCE(SUM(failed_count), 0)
        FROM campaigns
    `
	var s OverviewStats
	err := r.DB.QueryRow(query).Scan(
		&s.TotalCampaigns, &s.TotalRecipients, &s.TotalSent,
		&s.TotalDelivered, &s.TotalRead, &s.TotalFailed,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var recipients []byte
	err := row.Scan(
		&c.ID, &c.Content, &c.Kind, &c.MediaURL, &c.MediaFilename, &recipients,
		&c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.ReadCount, &c.FailedCount,
		&c.ScheduledFor, &c.IsScheduled, &c.IsCompleted, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipients, &c.Recipients); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
