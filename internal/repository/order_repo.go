package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gramseva/backend/internal/models"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, request_id, seeker_id, provider_id, listing_id, price_paise, unit_of_measure, status, service_start_date, service_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, o.ID, o.RequestID, o.SeekerID, o.ProviderID, o.ListingID, o.PricePaise, o.UnitOfMeasure,
		o.Status, o.ServiceStartDate, o.ServiceEndDate).Scan(&o.CreatedAt)
}

func (r *OrderRepo) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, request_id, seeker_id, provider_id, listing_id, price_paise, unit_of_measure, status, service_start_date, service_end_date, created_at
		FROM orders WHERE request_id = $1
	`, requestID).Scan(&o.ID, &o.RequestID, &o.SeekerID, &o.ProviderID, &o.ListingID, &o.PricePaise,
		&o.UnitOfMeasure, &o.Status, &o.ServiceStartDate, &o.ServiceEndDate, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
