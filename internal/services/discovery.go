package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/models"
)

const earthRadiusMeters = 6371000.0

// ListingSearchRepo is the minimal listing store interface required for
// candidate discovery.
type ListingSearchRepo interface {
	FindActiveInBounds(ctx context.Context, categoryID uuid.UUID, subCategoryID *uuid.UUID, minLon, maxLon, minLat, maxLat float64) ([]*models.Listing, error)
}

// Candidate is a provider eligible to accept a request in a given wave,
// ranked by distance from the request location.
type Candidate struct {
	ProviderID     uuid.UUID
	ProviderName   string
	DistanceMeters float64
	Listing        *models.Listing
}

// Discovery finds nearby providers for a request. It is read-only: the same
// inputs always produce the same candidates, and a zero-result search is not
// an error.
type Discovery struct {
	Listings ListingSearchRepo
}

func NewDiscovery(listings ListingSearchRepo) *Discovery {
	return &Discovery{Listings: listings}
}

// FindCandidates returns providers with an active listing for the category
// within radiusMeters of loc, nearest first. Providers in exclude (already
// notified in a prior wave) are skipped; a provider with several matching
// listings appears once, through its nearest listing.
func (d *Discovery) FindCandidates(ctx context.Context, loc models.Location, categoryID uuid.UUID, subCategoryID *uuid.UUID, radiusMeters float64, exclude map[uuid.UUID]bool) ([]Candidate, error) {
	if radiusMeters <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", radiusMeters)
	}
	if !loc.Valid() {
		return nil, fmt.Errorf("invalid location (%v, %v)", loc.Longitude, loc.Latitude)
	}

	minLon, maxLon, minLat, maxLat := boundsAround(loc, radiusMeters)
	listings, err := d.Listings.FindActiveInBounds(ctx, categoryID, subCategoryID, minLon, maxLon, minLat, maxLat)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	best := make(map[uuid.UUID]int)
	var candidates []Candidate
	for _, l := range listings {
		if exclude[l.ProviderID] {
			continue
		}
		dist := haversineMeters(loc, l.Location)
		if dist > radiusMeters {
			continue
		}
		if i, ok := best[l.ProviderID]; ok {
			if dist < candidates[i].DistanceMeters {
				candidates[i].DistanceMeters = dist
				candidates[i].Listing = l
			}
			continue
		}
		best[l.ProviderID] = len(candidates)
		candidates = append(candidates, Candidate{
			ProviderID:     l.ProviderID,
			ProviderName:   l.ProviderName,
			DistanceMeters: dist,
			Listing:        l,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceMeters < candidates[j].DistanceMeters
	})
	return candidates, nil
}

// boundsAround returns a coordinate box that fully contains the circle of
// the given radius. Longitude shrinks with latitude; near the poles the box
// degenerates to the full longitude span.
func boundsAround(loc models.Location, radiusMeters float64) (minLon, maxLon, minLat, maxLat float64) {
	latDelta := radiusMeters / earthRadiusMeters * (180 / math.Pi)
	lonDelta := 180.0
	if cosLat := math.Cos(loc.Latitude * math.Pi / 180); cosLat > 1e-6 {
		lonDelta = latDelta / cosLat
	}
	return loc.Longitude - lonDelta, loc.Longitude + lonDelta, loc.Latitude - latDelta, loc.Latitude + latDelta
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(a, b models.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
