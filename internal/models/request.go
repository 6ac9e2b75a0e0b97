package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a service request. Transitions are
// one-directional; the terminal states absorb.
type RequestStatus string

const (
	StatusOpen                 RequestStatus = "OPEN"
	StatusMatched              RequestStatus = "MATCHED"
	StatusAccepted             RequestStatus = "ACCEPTED"
	StatusExpired              RequestStatus = "EXPIRED"
	StatusCancelled            RequestStatus = "CANCELLED"
	StatusNoProvidersAvailable RequestStatus = "NO_PROVIDERS_AVAILABLE"
)

// Terminal reports whether no further orchestrator-driven transition occurs.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusExpired, StatusCancelled, StatusNoProvidersAvailable:
		return true
	case StatusOpen, StatusMatched:
		return false
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Self-transitions on OPEN and MATCHED are allowed (empty waves and
// widening waves re-persist the same status).
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	switch s {
	case StatusOpen:
		switch next {
		case StatusOpen, StatusMatched, StatusNoProvidersAvailable, StatusExpired, StatusCancelled:
			return true
		}
		return false
	case StatusMatched:
		switch next {
		case StatusMatched, StatusAccepted, StatusExpired, StatusCancelled:
			return true
		}
		return false
	case StatusAccepted, StatusExpired, StatusCancelled, StatusNoProvidersAvailable:
		return false
	}
	return false
}

// Location is a WGS84 coordinate pair, longitude first.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid reports whether the pair lies inside the WGS84 envelope.
func (l Location) Valid() bool {
	return l.Longitude >= -180 && l.Longitude <= 180 && l.Latitude >= -90 && l.Latitude <= 90
}

// NotificationWave is one round of provider discovery at a given radius.
// Waves are append-only; records are never mutated once written.
type NotificationWave struct {
	WaveNumber   int         `json:"wave_number"`
	RadiusMeters float64     `json:"radius_meters"`
	ProviderIDs  []uuid.UUID `json:"provider_ids"`
	NotifiedAt   time.Time   `json:"notified_at"`
}

// ServiceRequest is a seeker-initiated request for a service, matched to a
// provider through expanding notification waves.
type ServiceRequest struct {
	ID               uuid.UUID       `json:"id"`
	SeekerID         uuid.UUID       `json:"seeker_id"`
	CategoryID       uuid.UUID       `json:"category_id"`
	SubCategoryID    *uuid.UUID      `json:"sub_category_id,omitempty"`
	Location         Location        `json:"location"`
	ServiceStartDate time.Time       `json:"service_start_date"`
	ServiceEndDate   time.Time       `json:"service_end_date"`
	Description      string          `json:"description"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`

	Status      RequestStatus `json:"status"`
	CurrentWave int           `json:"current_wave"`

	NotificationWaves    []NotificationWave `json:"notification_waves"`
	AllNotifiedProviders []uuid.UUID        `json:"all_notified_providers"`
	DeclinedProviders    []uuid.UUID        `json:"declined_providers"`

	AcceptedProviderID *uuid.UUID `json:"accepted_provider_id,omitempty"`
	AcceptedListingID  *uuid.UUID `json:"accepted_listing_id,omitempty"`
	OrderID            *uuid.UUID `json:"order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WasNotified reports whether the provider appeared in any wave. Only
// notified providers may accept or decline.
func (r *ServiceRequest) WasNotified(providerID uuid.UUID) bool {
	for _, id := range r.AllNotifiedProviders {
		if id == providerID {
			return true
		}
	}
	return false
}

// HasDeclined reports whether the provider already declined this request.
func (r *ServiceRequest) HasDeclined(providerID uuid.UUID) bool {
	for _, id := range r.DeclinedProviders {
		if id == providerID {
			return true
		}
	}
	return false
}
