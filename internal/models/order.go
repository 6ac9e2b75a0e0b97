package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusCompleted = "COMPLETED"
)

// Order binds an accepted service request to the winning provider's listing.
type Order struct {
	ID               uuid.UUID `json:"id"`
	RequestID        uuid.UUID `json:"request_id"`
	SeekerID         uuid.UUID `json:"seeker_id"`
	ProviderID       uuid.UUID `json:"provider_id"`
	ListingID        uuid.UUID `json:"listing_id"`
	PricePaise       int64     `json:"price_paise"`
	UnitOfMeasure    string    `json:"unit_of_measure"`
	Status           string    `json:"status"`
	ServiceStartDate time.Time `json:"service_start_date"`
	ServiceEndDate   time.Time `json:"service_end_date"`
	CreatedAt        time.Time `json:"created_at"`
}
