package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/auth"
	"github.com/gramseva/backend/internal/middleware"
	"github.com/gramseva/backend/internal/models"
	"github.com/gramseva/backend/internal/services"
)

// RequestStore is the persistence surface the HTTP handler needs; the
// orchestrator owns every state transition beyond creation.
type RequestStore interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	ListBySeekerID(ctx context.Context, seekerID uuid.UUID) ([]*models.ServiceRequest, error)
}

// OrderStore looks up the order materialized for an accepted request.
type OrderStore interface {
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*models.Order, error)
}

// Matcher is the orchestrator surface exposed over HTTP.
type Matcher interface {
	StartForRequest(ctx context.Context, requestID uuid.UUID) (*services.WaveResult, error)
	ProcessNextWave(ctx context.Context, requestID uuid.UUID) (*services.WaveResult, error)
	Accept(ctx context.Context, requestID, providerID uuid.UUID) (*services.AcceptResult, error)
	Decline(ctx context.Context, requestID, providerID uuid.UUID, reason string) error
	Cancel(ctx context.Context, requestID, userID uuid.UUID, reason string) error
}

type CreateRequestBody struct {
	CategoryID       string          `json:"category_id"`
	SubCategoryID    string          `json:"sub_category_id,omitempty"`
	Longitude        float64         `json:"longitude"`
	Latitude         float64         `json:"latitude"`
	ServiceStartDate time.Time       `json:"service_start_date"`
	ServiceEndDate   time.Time       `json:"service_end_date"`
	Description      string          `json:"description"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type DeclineBody struct {
	Reason string `json:"reason,omitempty"`
}

type CancelBody struct {
	Reason string `json:"reason,omitempty"`
}

type RequestHandler struct {
	store   RequestStore
	orders  OrderStore
	matcher Matcher
	expiry  time.Duration
	log     *slog.Logger
}

func NewRequestHandler(store RequestStore, orders OrderStore, matcher Matcher, expiry time.Duration, log *slog.Logger) *RequestHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RequestHandler{store: store, orders: orders, matcher: matcher, expiry: expiry, log: log}
}

// CreateRequest opens a new service request and starts the first matching
// wave in the background. Responds 202: matching continues asynchronously.
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if actor.Role != auth.RoleSeeker {
		http.Error(w, "seekers only", http.StatusForbidden)
		return
	}
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	categoryID, err := uuid.Parse(body.CategoryID)
	if err != nil {
		http.Error(w, "invalid category_id", http.StatusBadRequest)
		return
	}
	var subCategoryID *uuid.UUID
	if body.SubCategoryID != "" {
		id, err := uuid.Parse(body.SubCategoryID)
		if err != nil {
			http.Error(w, "invalid sub_category_id", http.StatusBadRequest)
			return
		}
		subCategoryID = &id
	}
	loc := models.Location{Longitude: body.Longitude, Latitude: body.Latitude}
	if !loc.Valid() {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	if body.ServiceStartDate.IsZero() || body.ServiceEndDate.IsZero() || body.ServiceEndDate.Before(body.ServiceStartDate) {
		http.Error(w, "invalid service dates", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	req := &models.ServiceRequest{
		ID:                   uuid.New(),
		SeekerID:             actor.ID,
		CategoryID:           categoryID,
		SubCategoryID:        subCategoryID,
		Location:             loc,
		ServiceStartDate:     body.ServiceStartDate,
		ServiceEndDate:       body.ServiceEndDate,
		Description:          body.Description,
		Metadata:             body.Metadata,
		Status:               models.StatusOpen,
		CurrentWave:          0,
		NotificationWaves:    []models.NotificationWave{},
		AllNotifiedProviders: []uuid.UUID{},
		DeclinedProviders:    []uuid.UUID{},
		ExpiresAt:            now.Add(h.expiry),
	}
	if err := h.store.Create(r.Context(), req); err != nil {
		h.log.Error("create request failed", "error", err)
		http.Error(w, "create request failed", http.StatusInternalServerError)
		return
	}

	// The first wave runs outside the request's context so a client
	// disconnect cannot abort matching.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := h.matcher.StartForRequest(ctx, req.ID); err != nil {
			h.log.Error("initial wave failed", "request_id", req.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, req)
}

func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "get request failed", http.StatusInternalServerError)
		return
	}
	if req == nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if req.SeekerID != actor.ID && !req.WasNotified(actor.ID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.store.ListBySeekerID(r.Context(), actor.ID)
	if err != nil {
		h.log.Error("list requests failed", "seeker_id", actor.ID, "error", err)
		http.Error(w, "list requests failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.ServiceRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Accept resolves the provider race; at most one caller ever gets 200.
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	result, err := h.matcher.Accept(r.Context(), id, actor.ID)
	if err != nil {
		h.writeMatchError(w, "accept", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	var body DeclineBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := h.matcher.Decline(r.Context(), id, actor.ID, body.Reason); err != nil {
		h.writeMatchError(w, "decline", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	var body CancelBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := h.matcher.Cancel(r.Context(), id, actor.ID, body.Reason); err != nil {
		h.writeMatchError(w, "cancel", id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// GetOrder returns the order created when the request was accepted.
// Visible to the seeker and the winning provider.
func (h *RequestHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "get request failed", http.StatusInternalServerError)
		return
	}
	if req == nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	winner := req.AcceptedProviderID != nil && *req.AcceptedProviderID == actor.ID
	if req.SeekerID != actor.ID && !winner {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if req.OrderID == nil {
		http.Error(w, "no order for this request", http.StatusNotFound)
		return
	}
	order, err := h.orders.GetByRequestID(r.Context(), id)
	if err != nil {
		h.log.Error("get order failed", "request_id", id, "error", err)
		http.Error(w, "get order failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// TriggerWave runs the next wave immediately. Owner-only; useful when a
// scheduled wave was lost or operations wants to widen the search early.
func (h *RequestHandler) TriggerWave(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := extractRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error("get request failed", "request_id", id, "error", err)
		http.Error(w, "get request failed", http.StatusInternalServerError)
		return
	}
	if req == nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if req.SeekerID != actor.ID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	result, err := h.matcher.ProcessNextWave(r.Context(), id)
	if err != nil {
		h.writeMatchError(w, "trigger wave", id, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeMatchError maps orchestrator errors to HTTP statuses.
func (h *RequestHandler) writeMatchError(w http.ResponseWriter, op string, requestID uuid.UUID, err error) {
	var stateErr *services.StateError
	var discErr *services.DiscoveryError
	switch {
	case errors.Is(err, services.ErrRequestNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, services.ErrNotNotified):
		http.Error(w, "provider was not notified for this request", http.StatusForbidden)
	case errors.Is(err, services.ErrNotRequestOwner):
		http.Error(w, "only the requesting seeker may cancel", http.StatusForbidden)
	case errors.Is(err, services.ErrAlreadyAccepted):
		http.Error(w, "request already accepted", http.StatusConflict)
	case errors.Is(err, services.ErrAlreadyDeclined):
		http.Error(w, "provider already declined this request", http.StatusConflict)
	case errors.Is(err, services.ErrRequestExpired):
		http.Error(w, "request expired", http.StatusGone)
	case errors.Is(err, services.ErrNoActiveListing):
		http.Error(w, "no active listing matches the request category", http.StatusConflict)
	case errors.As(err, &stateErr):
		http.Error(w, stateErr.Error(), http.StatusConflict)
	case errors.As(err, &discErr):
		http.Error(w, "provider discovery temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.log.Error(op+" failed", "request_id", requestID, "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func extractRequestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		http.Error(w, "missing request id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
