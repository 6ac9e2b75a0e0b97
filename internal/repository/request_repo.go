package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gramseva/backend/internal/models"
)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, seeker_id, category_id, sub_category_id, longitude, latitude,
	service_start_date, service_end_date, description, metadata,
	status, current_wave, notification_waves, all_notified_providers, declined_providers,
	accepted_provider_id, accepted_listing_id, order_id, created_at, expires_at, updated_at`

func (r *RequestRepo) Create(ctx context.Context, req *models.ServiceRequest) error {
	waves, err := json.Marshal(req.NotificationWaves)
	if err != nil {
		return fmt.Errorf("marshal notification waves: %w", err)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO service_requests (id, seeker_id, category_id, sub_category_id, longitude, latitude,
			service_start_date, service_end_date, description, metadata,
			status, current_wave, notification_waves, all_notified_providers, declined_providers, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at
	`, req.ID, req.SeekerID, req.CategoryID, req.SubCategoryID, req.Location.Longitude, req.Location.Latitude,
		req.ServiceStartDate, req.ServiceEndDate, req.Description, req.Metadata,
		req.Status, req.CurrentWave, waves, req.AllNotifiedProviders, req.DeclinedProviders, req.ExpiresAt,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

// GetByID returns nil, nil when the request does not exist.
func (r *RequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// AppendWave records one processed wave: the wave entry is concatenated onto
// the append-only notification_waves log, the newly notified providers are
// merged into all_notified_providers, current_wave advances by one, and the
// status is written. All in a single statement so a wave is never half
// recorded. The write is conditioned on the request still being OPEN or
// MATCHED: a wave job that loaded the request before a concurrent accept,
// cancel, or expiry landed must not overwrite the terminal status. Returns
// false when the guard rejected the write.
func (r *RequestRepo) AppendWave(ctx context.Context, id uuid.UUID, wave models.NotificationWave, status models.RequestStatus) (bool, error) {
	entry, err := json.Marshal(wave)
	if err != nil {
		return false, fmt.Errorf("marshal wave entry: %w", err)
	}
	providerIDs := wave.ProviderIDs
	if providerIDs == nil {
		providerIDs = []uuid.UUID{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_requests
		SET notification_waves = notification_waves || $2::jsonb,
			all_notified_providers = all_notified_providers || $3,
			current_wave = current_wave + 1,
			status = $4,
			updated_at = now()
		WHERE id = $1 AND status IN ($5, $6)
	`, id, entry, providerIDs, status, models.StatusOpen, models.StatusMatched)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AcceptIfMatched performs the conditional write that resolves the accept
// race: the row is updated only if its status is still MATCHED at the
// storage layer. Returns false when another accept already won.
func (r *RequestRepo) AcceptIfMatched(ctx context.Context, id, providerID, listingID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_requests
		SET status = $4, accepted_provider_id = $2, accepted_listing_id = $3, updated_at = now()
		WHERE id = $1 AND status = $5
	`, id, providerID, listingID, models.StatusAccepted, models.StatusMatched)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RequestRepo) SetOrderID(ctx context.Context, id, orderID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE service_requests SET order_id = $2, updated_at = now() WHERE id = $1
	`, id, orderID)
	return err
}

// AddDeclinedProvider appends the provider to declined_providers unless it is
// already present. Returns whether a row was written, so repeated declines
// cost no storage write.
func (r *RequestRepo) AddDeclinedProvider(ctx context.Context, id, providerID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_requests
		SET declined_providers = array_append(declined_providers, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(declined_providers))
	`, id, providerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelIfActive moves the request to CANCELLED only from a non-terminal
// status. Returns false when the request already reached a terminal state.
func (r *RequestRepo) CancelIfActive(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_requests
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, models.StatusCancelled, models.StatusOpen, models.StatusMatched)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireDue flips every overdue OPEN or MATCHED request to EXPIRED and
// returns the affected requests so callers can notify the seekers.
func (r *RequestRepo) ExpireDue(ctx context.Context, cutoff time.Time) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE service_requests
		SET status = $2, updated_at = now()
		WHERE expires_at < $1 AND status IN ($3, $4)
		RETURNING `+requestColumns+`
	`, cutoff, models.StatusExpired, models.StatusOpen, models.StatusMatched)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func (r *RequestRepo) ListBySeekerID(ctx context.Context, seekerID uuid.UUID) ([]*models.ServiceRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM service_requests WHERE seeker_id = $1 ORDER BY created_at DESC
	`, seekerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, req)
	}
	return list, rows.Err()
}

func scanRequest(row pgx.Row) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	var rawWaves []byte
	err := row.Scan(&req.ID, &req.SeekerID, &req.CategoryID, &req.SubCategoryID,
		&req.Location.Longitude, &req.Location.Latitude,
		&req.ServiceStartDate, &req.ServiceEndDate, &req.Description, &req.Metadata,
		&req.Status, &req.CurrentWave, &rawWaves, &req.AllNotifiedProviders, &req.DeclinedProviders,
		&req.AcceptedProviderID, &req.AcceptedListingID, &req.OrderID,
		&req.CreatedAt, &req.ExpiresAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawWaves) > 0 {
		if err := json.Unmarshal(rawWaves, &req.NotificationWaves); err != nil {
			return nil, fmt.Errorf("unmarshal notification waves: %w", err)
		}
	}
	return &req, nil
}
