package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/models"
	"github.com/gramseva/backend/internal/services"
)

// OrderStore is the minimal order persistence interface for the factory.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
}

// Factory creates binding orders from accepted service requests at the
// accepted listing's price.
type Factory struct {
	store OrderStore
}

func NewFactory(store OrderStore) *Factory {
	return &Factory{store: store}
}

func (f *Factory) CreateFromServiceRequest(ctx context.Context, req *models.ServiceRequest, providerID uuid.UUID, listing *models.Listing) (*models.Order, error) {
	o := &models.Order{
		ID:               uuid.New(),
		RequestID:        req.ID,
		SeekerID:         req.SeekerID,
		ProviderID:       providerID,
		ListingID:        listing.ID,
		PricePaise:       listing.PricePaise,
		UnitOfMeasure:    listing.UnitOfMeasure,
		Status:           models.OrderStatusPending,
		ServiceStartDate: req.ServiceStartDate,
		ServiceEndDate:   req.ServiceEndDate,
	}
	if err := f.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

var _ services.OrderFactory = (*Factory)(nil)
