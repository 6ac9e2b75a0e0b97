package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
)

// Listing is a provider's published service offer at a fixed location.
// ProviderName is denormalized from the owning account on reads.
type Listing struct {
	ID            uuid.UUID  `json:"id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	ProviderName  string     `json:"provider_name,omitempty"`
	CategoryID    uuid.UUID  `json:"category_id"`
	SubCategoryID *uuid.UUID `json:"sub_category_id,omitempty"`
	Title         string     `json:"title"`
	PricePaise    int64      `json:"price_paise"`
	UnitOfMeasure string     `json:"unit_of_measure"`
	Location      Location   `json:"location"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MatchesCategory reports whether the listing serves the given category and,
// when the request specifies one, the subcategory.
func (l *Listing) MatchesCategory(categoryID uuid.UUID, subCategoryID *uuid.UUID) bool {
	if l.CategoryID != categoryID {
		return false
	}
	if subCategoryID == nil {
		return true
	}
	return l.SubCategoryID != nil && *l.SubCategoryID == *subCategoryID
}
