package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/models"
	"github.com/gramseva/backend/internal/repository"
)

var ErrInvalidListing = errors.New("invalid listing")

type Service interface {
	CreateListing(ctx context.Context, providerID uuid.UUID, params CreateParams) (*models.Listing, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error)
}

type CreateParams struct {
	CategoryID    uuid.UUID
	SubCategoryID *uuid.UUID
	Title         string
	PricePaise    int64
	UnitOfMeasure string
	Location      models.Location
}

type service struct {
	repo *repository.ListingRepo
}

func NewService(repo *repository.ListingRepo) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) CreateListing(ctx context.Context, providerID uuid.UUID, params CreateParams) (*models.Listing, error) {
	if params.Title == "" || params.CategoryID == uuid.Nil {
		return nil, ErrInvalidListing
	}
	if params.PricePaise < 0 {
		return nil, ErrInvalidListing
	}
	if !params.Location.Valid() {
		return nil, ErrInvalidListing
	}
	l := &models.Listing{
		ID:            uuid.New(),
		ProviderID:    providerID,
		CategoryID:    params.CategoryID,
		SubCategoryID: params.SubCategoryID,
		Title:         params.Title,
		PricePaise:    params.PricePaise,
		UnitOfMeasure: params.UnitOfMeasure,
		Location:      params.Location,
		Status:        models.ListingStatusActive,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *service) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error) {
	return s.repo.ListByProvider(ctx, providerID)
}
