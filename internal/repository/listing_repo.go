package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gramseva/backend/internal/models"
)

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `l.id, l.provider_id, a.name, l.category_id, l.sub_category_id,
	l.title, l.price_paise, l.unit_of_measure, l.longitude, l.latitude, l.status, l.created_at, l.updated_at`

const listingFrom = `FROM listings l INNER JOIN accounts a ON a.id = l.provider_id`

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (id, provider_id, category_id, sub_category_id, title, price_paise, unit_of_measure, longitude, latitude, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, l.ID, l.ProviderID, l.CategoryID, l.SubCategoryID, l.Title, l.PricePaise, l.UnitOfMeasure,
		l.Location.Longitude, l.Location.Latitude, l.Status).Scan(&l.CreatedAt, &l.UpdatedAt)
}

// FindActiveInBounds returns active listings for the category inside the
// given coordinate bounds. The bounds are a coarse pre-filter; callers apply
// the exact great-circle radius check.
func (r *ListingRepo) FindActiveInBounds(ctx context.Context, categoryID uuid.UUID, subCategoryID *uuid.UUID, minLon, maxLon, minLat, maxLat float64) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` `+listingFrom+`
		WHERE l.status = $1 AND l.category_id = $2
		AND ($3::uuid IS NULL OR l.sub_category_id = $3)
		AND l.longitude BETWEEN $4 AND $5 AND l.latitude BETWEEN $6 AND $7
	`, models.ListingStatusActive, categoryID, subCategoryID, minLon, maxLon, minLat, maxLat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

// FindActiveByProvider returns the provider's active listings, cheapest first.
func (r *ListingRepo) FindActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` `+listingFrom+`
		WHERE l.provider_id = $1 AND l.status = $2
		ORDER BY l.price_paise ASC
	`, providerID, models.ListingStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func (r *ListingRepo) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` `+listingFrom+`
		WHERE l.provider_id = $1
		ORDER BY l.created_at DESC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func collectListings(rows pgx.Rows) ([]*models.Listing, error) {
	var list []*models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.ProviderID, &l.ProviderName, &l.CategoryID, &l.SubCategoryID,
			&l.Title, &l.PricePaise, &l.UnitOfMeasure, &l.Location.Longitude, &l.Location.Latitude,
			&l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
