package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/models"
)

// Close reasons sent to providers when a request they were offered is no
// longer available.
const (
	CloseReasonAcceptedByAnother = "accepted_by_another"
	CloseReasonCancelled         = "cancelled"
)

// RequestStore is the request persistence contract used by the orchestrator.
// GetByID returns nil, nil for an unknown id. AppendWave, AcceptIfMatched and
// CancelIfActive are conditional writes resolved at the storage layer:
// AppendWave only lands while the request is still OPEN or MATCHED, so a wave
// that raced a concurrent accept, cancel, or expiry reports false instead of
// reverting a terminal status.
type RequestStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	AppendWave(ctx context.Context, id uuid.UUID, wave models.NotificationWave, status models.RequestStatus) (bool, error)
	AcceptIfMatched(ctx context.Context, id, providerID, listingID uuid.UUID) (bool, error)
	SetOrderID(ctx context.Context, id, orderID uuid.UUID) error
	AddDeclinedProvider(ctx context.Context, id, providerID uuid.UUID) (bool, error)
	CancelIfActive(ctx context.Context, id uuid.UUID) (bool, error)
	ExpireDue(ctx context.Context, cutoff time.Time) ([]*models.ServiceRequest, error)
}

// ProviderListings resolves a provider's active listings when an accept
// needs the concrete listing and price.
type ProviderListings interface {
	FindActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Listing, error)
}

// NotificationGateway fans out push notifications. All calls are
// fire-and-forget from the orchestrator's point of view: failures are logged
// and never roll back a state transition.
type NotificationGateway interface {
	NotifyProvidersNewRequest(ctx context.Context, req *models.ServiceRequest, providerIDs []uuid.UUID, radiusMeters float64) error
	NotifySeekerAccepted(ctx context.Context, req *models.ServiceRequest, order *models.Order) error
	NotifyProvidersClosed(ctx context.Context, requestID uuid.UUID, providerIDs []uuid.UUID, reason string) error
	NotifySeekerNoProviders(ctx context.Context, req *models.ServiceRequest) error
	NotifySeekerExpired(ctx context.Context, req *models.ServiceRequest) error
}

// OrderFactory materializes a binding order once a provider is accepted.
type OrderFactory interface {
	CreateFromServiceRequest(ctx context.Context, req *models.ServiceRequest, providerID uuid.UUID, listing *models.Listing) (*models.Order, error)
}

// WaveScheduler arranges a future ProcessNextWave call after the configured
// delay. The orchestrator never sleeps; the wait between waves belongs to
// the scheduler.
type WaveScheduler interface {
	ScheduleWave(ctx context.Context, requestID uuid.UUID, delay time.Duration) error
}

// ScheduleWaveFunc adapts a function to the WaveScheduler interface. Used by
// main to break the init cycle between the orchestrator and the job client.
type ScheduleWaveFunc func(ctx context.Context, requestID uuid.UUID, delay time.Duration) error

func (f ScheduleWaveFunc) ScheduleWave(ctx context.Context, requestID uuid.UUID, delay time.Duration) error {
	return f(ctx, requestID, delay)
}

// WaveResult is the outcome of one processed wave. WaveNumber is 1-indexed
// for display.
type WaveResult struct {
	WaveNumber        int  `json:"wave_number"`
	ProvidersNotified int  `json:"providers_notified"`
	NextWaveScheduled bool `json:"next_wave_scheduled"`
}

// AcceptResult pairs the accepted request with the order created for it.
type AcceptResult struct {
	Request *models.ServiceRequest `json:"request"`
	Order   *models.Order          `json:"order"`
}

// Orchestrator drives the request lifecycle: it advances notification waves,
// resolves the accept race through a conditional write, and applies cancel
// and expiry transitions. It holds no state of its own, so any number of
// instances may run concurrently against the same store.
type Orchestrator struct {
	Requests  RequestStore
	Discovery *Discovery
	Listings  ProviderListings
	Notifier  NotificationGateway
	Orders    OrderFactory
	Scheduler WaveScheduler
	Schedule  WaveScheduleConfig
	Logger    *slog.Logger
}

func NewOrchestrator(
	requests RequestStore,
	discovery *Discovery,
	listings ProviderListings,
	notifier NotificationGateway,
	orders OrderFactory,
	scheduler WaveScheduler,
	schedule WaveScheduleConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Requests:  requests,
		Discovery: discovery,
		Listings:  listings,
		Notifier:  notifier,
		Orders:    orders,
		Scheduler: scheduler,
		Schedule:  schedule,
		Logger:    logger,
	}
}

// StartForRequest kicks off matching for a freshly created request by
// running the first wave immediately.
func (o *Orchestrator) StartForRequest(ctx context.Context, requestID uuid.UUID) (*WaveResult, error) {
	return o.ProcessNextWave(ctx, requestID)
}

// ProcessNextWave runs one discovery wave at the radius for the request's
// current wave. Safe under at-least-once delivery: a request past OPEN or
// MATCHED, or with all waves spent, is a no-op.
func (o *Orchestrator) ProcessNextWave(ctx context.Context, requestID uuid.UUID) (*WaveResult, error) {
	req, err := o.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != models.StatusOpen && req.Status != models.StatusMatched {
		return &WaveResult{WaveNumber: req.CurrentWave}, nil
	}
	if req.CurrentWave >= o.Schedule.MaxWaves {
		return &WaveResult{WaveNumber: req.CurrentWave}, nil
	}

	radius := o.Schedule.RadiusForWave(req.CurrentWave)
	exclude := make(map[uuid.UUID]bool, len(req.AllNotifiedProviders))
	for _, id := range req.AllNotifiedProviders {
		exclude[id] = true
	}

	candidates, err := o.Discovery.FindCandidates(ctx, req.Location, req.CategoryID, req.SubCategoryID, radius, exclude)
	if err != nil {
		// A failed discovery query is transient; the request keeps its
		// status and the wave can be retried.
		return nil, err
	}

	waveNumber := req.CurrentWave + 1
	if len(candidates) >= o.Schedule.MinProvidersPerWave && len(candidates) > 0 {
		return o.recordMatchedWave(ctx, req, waveNumber, radius, candidates)
	}
	return o.recordEmptyWave(ctx, req, waveNumber, radius)
}

func (o *Orchestrator) recordMatchedWave(ctx context.Context, req *models.ServiceRequest, waveNumber int, radius float64, candidates []Candidate) (*WaveResult, error) {
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ProviderID
	}
	wave := models.NotificationWave{
		WaveNumber:   waveNumber,
		RadiusMeters: radius,
		ProviderIDs:  ids,
		NotifiedAt:   time.Now().UTC(),
	}
	ok, err := o.Requests.AppendWave(ctx, req.ID, wave, models.StatusMatched)
	if err != nil {
		return nil, fmt.Errorf("append wave %d: %w", waveNumber, err)
	}
	if !ok {
		// The request left OPEN/MATCHED between our read and the write.
		// Nothing was recorded, so nobody gets notified.
		o.Logger.Info("wave write lost race with a terminal transition",
			"request_id", req.ID, "wave", waveNumber)
		return &WaveResult{WaveNumber: req.CurrentWave}, nil
	}
	req.Status = models.StatusMatched
	req.CurrentWave = waveNumber
	req.NotificationWaves = append(req.NotificationWaves, wave)
	req.AllNotifiedProviders = append(req.AllNotifiedProviders, ids...)

	// Only the providers new to this wave are notified.
	if err := o.Notifier.NotifyProvidersNewRequest(ctx, req, ids, radius); err != nil {
		o.Logger.Warn("provider notification failed", "request_id", req.ID, "wave", waveNumber, "error", err)
	}

	next := waveNumber < o.Schedule.MaxWaves
	if next {
		next = o.scheduleNext(ctx, req.ID, waveNumber)
	}
	o.Logger.Info("wave matched providers",
		"request_id", req.ID, "wave", waveNumber, "radius_m", radius, "providers_notified", len(ids))
	return &WaveResult{WaveNumber: waveNumber, ProvidersNotified: len(ids), NextWaveScheduled: next}, nil
}

func (o *Orchestrator) recordEmptyWave(ctx context.Context, req *models.ServiceRequest, waveNumber int, radius float64) (*WaveResult, error) {
	status := req.Status
	exhausted := waveNumber >= o.Schedule.MaxWaves
	if exhausted && req.Status == models.StatusOpen {
		// No provider was ever reachable across the whole ladder.
		status = models.StatusNoProvidersAvailable
	}

	wave := models.NotificationWave{
		WaveNumber:   waveNumber,
		RadiusMeters: radius,
		ProviderIDs:  []uuid.UUID{},
		NotifiedAt:   time.Now().UTC(),
	}
	ok, err := o.Requests.AppendWave(ctx, req.ID, wave, status)
	if err != nil {
		return nil, fmt.Errorf("append wave %d: %w", waveNumber, err)
	}
	if !ok {
		o.Logger.Info("wave write lost race with a terminal transition",
			"request_id", req.ID, "wave", waveNumber)
		return &WaveResult{WaveNumber: req.CurrentWave}, nil
	}
	req.Status = status
	req.CurrentWave = waveNumber
	req.NotificationWaves = append(req.NotificationWaves, wave)

	if status == models.StatusNoProvidersAvailable {
		if err := o.Notifier.NotifySeekerNoProviders(ctx, req); err != nil {
			o.Logger.Warn("seeker notification failed", "request_id", req.ID, "error", err)
		}
		o.Logger.Info("request exhausted all waves", "request_id", req.ID, "waves", waveNumber)
		return &WaveResult{WaveNumber: waveNumber}, nil
	}

	next := false
	if !exhausted {
		next = o.scheduleNext(ctx, req.ID, waveNumber)
	}
	o.Logger.Info("wave found no providers",
		"request_id", req.ID, "wave", waveNumber, "radius_m", radius, "next_wave_scheduled", next)
	return &WaveResult{WaveNumber: waveNumber, NextWaveScheduled: next}, nil
}

// scheduleNext arranges the following wave. A scheduling failure is logged
// and reported through the result, never raised: the wave itself already
// committed, and the manual trigger endpoint can restart the ladder.
func (o *Orchestrator) scheduleNext(ctx context.Context, requestID uuid.UUID, afterWave int) bool {
	if err := o.Scheduler.ScheduleWave(ctx, requestID, o.Schedule.WaveDelay); err != nil {
		o.Logger.Error("schedule next wave failed", "request_id", requestID, "after_wave", afterWave, "error", err)
		return false
	}
	return true
}

// Accept resolves the race among notified providers. The winner is decided
// by a single conditional write on the request's status; everyone else gets
// ErrAlreadyAccepted.
func (o *Orchestrator) Accept(ctx context.Context, requestID, providerID uuid.UUID) (*AcceptResult, error) {
	req, err := o.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if !req.WasNotified(providerID) {
		return nil, ErrNotNotified
	}
	if req.HasDeclined(providerID) {
		return nil, ErrAlreadyDeclined
	}
	// A terminal status reports itself before the expiry clock: a cancelled
	// request whose expiresAt has also passed is still "cancelled" to the
	// caller, not "expired".
	switch {
	case req.Status == models.StatusAccepted:
		return nil, ErrAlreadyAccepted
	case req.Status == models.StatusExpired:
		return nil, ErrRequestExpired
	case req.Status.Terminal():
		return nil, &StateError{Op: "accept", Status: req.Status}
	}
	if time.Now().After(req.ExpiresAt) {
		return nil, ErrRequestExpired
	}
	if req.Status != models.StatusMatched {
		return nil, &StateError{Op: "accept", Status: req.Status}
	}

	listing, err := o.resolveListing(ctx, req, providerID)
	if err != nil {
		return nil, err
	}

	won, err := o.Requests.AcceptIfMatched(ctx, req.ID, providerID, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("accept conditional update: %w", err)
	}
	if !won {
		return nil, ErrAlreadyAccepted
	}
	req.Status = models.StatusAccepted
	req.AcceptedProviderID = &providerID
	req.AcceptedListingID = &listing.ID

	order, err := o.Orders.CreateFromServiceRequest(ctx, req, providerID, listing)
	if err != nil {
		// The accept already committed; surface the failure so the caller
		// can retry order materialization out of band.
		o.Logger.Error("order creation failed after accept", "request_id", req.ID, "provider_id", providerID, "error", err)
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := o.Requests.SetOrderID(ctx, req.ID, order.ID); err != nil {
		o.Logger.Error("persist order id failed", "request_id", req.ID, "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("persist order id: %w", err)
	}
	req.OrderID = &order.ID

	if err := o.Notifier.NotifySeekerAccepted(ctx, req, order); err != nil {
		o.Logger.Warn("seeker notification failed", "request_id", req.ID, "error", err)
	}
	if losers := othersNotified(req, providerID); len(losers) > 0 {
		if err := o.Notifier.NotifyProvidersClosed(ctx, req.ID, losers, CloseReasonAcceptedByAnother); err != nil {
			o.Logger.Warn("loser notification failed", "request_id", req.ID, "error", err)
		}
	}

	o.Logger.Info("request accepted",
		"request_id", req.ID, "provider_id", providerID, "listing_id", listing.ID, "order_id", order.ID)
	return &AcceptResult{Request: req, Order: order}, nil
}

// resolveListing picks the provider's cheapest active listing matching the
// request's category and, when set, subcategory.
func (o *Orchestrator) resolveListing(ctx context.Context, req *models.ServiceRequest, providerID uuid.UUID) (*models.Listing, error) {
	listings, err := o.Listings.FindActiveByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("find provider listings: %w", err)
	}
	var match *models.Listing
	for _, l := range listings {
		if !l.MatchesCategory(req.CategoryID, req.SubCategoryID) {
			continue
		}
		if match == nil || l.PricePaise < match.PricePaise {
			match = l
		}
	}
	if match == nil {
		return nil, ErrNoActiveListing
	}
	return match, nil
}

// Decline records a provider's refusal. Idempotent: a repeated decline is a
// no-op with no storage write. Declining never changes the request status
// and never re-opens the provider for later waves.
func (o *Orchestrator) Decline(ctx context.Context, requestID, providerID uuid.UUID, reason string) error {
	req, err := o.Requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if !req.WasNotified(providerID) {
		return ErrNotNotified
	}
	if req.AcceptedProviderID != nil && *req.AcceptedProviderID == providerID {
		return &StateError{Op: "decline", Status: req.Status}
	}
	if req.HasDeclined(providerID) {
		return nil
	}

	if _, err := o.Requests.AddDeclinedProvider(ctx, req.ID, providerID); err != nil {
		return fmt.Errorf("record decline: %w", err)
	}
	o.Logger.Info("provider declined request", "request_id", req.ID, "provider_id", providerID, "reason", reason)
	return nil
}

// Cancel is seeker-only and cooperative: it only moves a non-terminal
// request to CANCELLED. In-flight accepts resolve through the same
// conditional-write rule.
func (o *Orchestrator) Cancel(ctx context.Context, requestID, userID uuid.UUID, reason string) error {
	req, err := o.Requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.SeekerID != userID {
		return ErrNotRequestOwner
	}
	if req.Status.Terminal() {
		return &StateError{Op: "cancel", Status: req.Status}
	}

	ok, err := o.Requests.CancelIfActive(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("cancel conditional update: %w", err)
	}
	if !ok {
		// Lost a race against accept or expiry; report the status that won.
		current, err := o.Requests.GetByID(ctx, req.ID)
		if err != nil || current == nil {
			return &StateError{Op: "cancel", Status: req.Status}
		}
		return &StateError{Op: "cancel", Status: current.Status}
	}

	if len(req.AllNotifiedProviders) > 0 {
		if err := o.Notifier.NotifyProvidersClosed(ctx, req.ID, req.AllNotifiedProviders, CloseReasonCancelled); err != nil {
			o.Logger.Warn("cancel notification failed", "request_id", req.ID, "error", err)
		}
	}
	o.Logger.Info("request cancelled", "request_id", req.ID, "seeker_id", userID, "reason", reason)
	return nil
}

// ExpireOldRequests flips every overdue OPEN or MATCHED request to EXPIRED
// and notifies the seekers. Returns the number of requests expired.
func (o *Orchestrator) ExpireOldRequests(ctx context.Context) (int, error) {
	expired, err := o.Requests.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire due requests: %w", err)
	}
	for _, req := range expired {
		if err := o.Notifier.NotifySeekerExpired(ctx, req); err != nil {
			o.Logger.Warn("expiry notification failed", "request_id", req.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		o.Logger.Info("expired overdue requests", "count", len(expired))
	}
	return len(expired), nil
}

func othersNotified(req *models.ServiceRequest, winner uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range req.AllNotifiedProviders {
		if id != winner {
			out = append(out, id)
		}
	}
	return out
}
