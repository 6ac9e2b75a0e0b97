package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/auth"
	"github.com/gramseva/backend/internal/middleware"
	"github.com/gramseva/backend/internal/models"
	"github.com/gramseva/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockStore struct {
	created  []*models.ServiceRequest
	requests map[uuid.UUID]*models.ServiceRequest
}

func (m *mockStore) Create(_ context.Context, req *models.ServiceRequest) error {
	m.created = append(m.created, req)
	if m.requests == nil {
		m.requests = map[uuid.UUID]*models.ServiceRequest{}
	}
	m.requests[req.ID] = req
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return m.requests[id], nil
}

func (m *mockStore) ListBySeekerID(_ context.Context, seekerID uuid.UUID) ([]*models.ServiceRequest, error) {
	var out []*models.ServiceRequest
	for _, r := range m.requests {
		if r.SeekerID == seekerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockMatcher struct {
	acceptErr  error
	declineErr error
	cancelErr  error
	accepted   []uuid.UUID

	mu      sync.Mutex
	started []uuid.UUID
}

// StartForRequest is called from the handler's background goroutine, so the
// started log is guarded for the polling test.
func (m *mockMatcher) StartForRequest(_ context.Context, requestID uuid.UUID) (*services.WaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, requestID)
	return &services.WaveResult{WaveNumber: 1}, nil
}

func (m *mockMatcher) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func (m *mockMatcher) ProcessNextWave(_ context.Context, _ uuid.UUID) (*services.WaveResult, error) {
	return &services.WaveResult{WaveNumber: 2, ProvidersNotified: 3}, nil
}

func (m *mockMatcher) Accept(_ context.Context, _, providerID uuid.UUID) (*services.AcceptResult, error) {
	if m.acceptErr != nil {
		return nil, m.acceptErr
	}
	m.accepted = append(m.accepted, providerID)
	return &services.AcceptResult{Request: &models.ServiceRequest{}, Order: &models.Order{ID: uuid.New()}}, nil
}

func (m *mockMatcher) Decline(_ context.Context, _, _ uuid.UUID, _ string) error {
	return m.declineErr
}

func (m *mockMatcher) Cancel(_ context.Context, _, _ uuid.UUID, _ string) error {
	return m.cancelErr
}

type mockOrders struct {
	orders map[uuid.UUID]*models.Order
}

func (m *mockOrders) GetByRequestID(_ context.Context, requestID uuid.UUID) (*models.Order, error) {
	return m.orders[requestID], nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func authedRequest(method, target string, body string, actor middleware.Actor) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return r.WithContext(withActor(r.Context(), actor))
}

// withActor plants an actor the way the JWT middleware does.
func withActor(ctx context.Context, actor middleware.Actor) context.Context {
	mw := middleware.JWTAuth(actorValidator{actor})
	var out context.Context
	h := mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		out = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer t")
	h.ServeHTTP(httptest.NewRecorder(), req)
	return out
}

type actorValidator struct{ actor middleware.Actor }

func (v actorValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, string, error) {
	return v.actor.ID, v.actor.Role, nil
}

func createBody(categoryID uuid.UUID) string {
	b, _ := json.Marshal(map[string]any{
		"category_id":        categoryID.String(),
		"longitude":          77.5946,
		"latitude":           12.9716,
		"service_start_date": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"service_end_date":   time.Now().Add(72 * time.Hour).Format(time.RFC3339),
		"description":        "fence repair around the paddy field",
	})
	return string(b)
}

// ---------------------------------------------------------------------------
// 1. TestCreateRequest
// ---------------------------------------------------------------------------

func TestCreateRequest(t *testing.T) {
	store := &mockStore{}
	matcher := &mockMatcher{}
	h := NewRequestHandler(store, &mockOrders{}, matcher, 24*time.Hour, nil)
	seeker := middleware.Actor{ID: uuid.New(), Role: auth.RoleSeeker}

	req := authedRequest(http.MethodPost, "/v1/requests", createBody(uuid.New()), seeker)
	rec := httptest.NewRecorder()
	h.CreateRequest(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 created request, got %d", len(store.created))
	}
	created := store.created[0]
	if created.Status != models.StatusOpen {
		t.Errorf("new request should be OPEN, got %s", created.Status)
	}
	if created.SeekerID != seeker.ID {
		t.Errorf("seeker id should come from the token, got %s", created.SeekerID)
	}
	until := time.Until(created.ExpiresAt)
	if until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("expiry should be ~24h out, got %v", until)
	}

	// The first wave runs on a background goroutine.
	deadline := time.After(time.Second)
	for matcher.startedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial wave was never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestCreateRequestRejectsProviders(t *testing.T) {
	h := NewRequestHandler(&mockStore{}, &mockOrders{}, &mockMatcher{}, 24*time.Hour, nil)
	provider := middleware.Actor{ID: uuid.New(), Role: auth.RoleProvider}

	req := authedRequest(http.MethodPost, "/v1/requests", createBody(uuid.New()), provider)
	rec := httptest.NewRecorder()
	h.CreateRequest(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider, got %d", rec.Code)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	h := NewRequestHandler(&mockStore{}, &mockOrders{}, &mockMatcher{}, 24*time.Hour, nil)
	seeker := middleware.Actor{ID: uuid.New(), Role: auth.RoleSeeker}

	cases := []struct {
		name string
		body string
	}{
		{"bad json", "{"},
		{"missing category", `{"longitude":77.5,"latitude":12.9}`},
		{"bad coordinates", `{"category_id":"` + uuid.New().String() + `","longitude":200,"latitude":12.9,"service_start_date":"2026-09-10T00:00:00Z","service_end_date":"2026-09-11T00:00:00Z"}`},
		{"end before start", `{"category_id":"` + uuid.New().String() + `","longitude":77.5,"latitude":12.9,"service_start_date":"2026-09-11T00:00:00Z","service_end_date":"2026-09-10T00:00:00Z"}`},
	}
	for _, c := range cases {
		req := authedRequest(http.MethodPost, "/v1/requests", c.body, seeker)
		rec := httptest.NewRecorder()
		h.CreateRequest(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", c.name, rec.Code)
		}
	}
}

// ---------------------------------------------------------------------------
// 2. TestAcceptErrorMapping
// ---------------------------------------------------------------------------

func TestAcceptErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{services.ErrRequestNotFound, http.StatusNotFound},
		{services.ErrNotNotified, http.StatusForbidden},
		{services.ErrAlreadyAccepted, http.StatusConflict},
		{services.ErrAlreadyDeclined, http.StatusConflict},
		{services.ErrRequestExpired, http.StatusGone},
		{services.ErrNoActiveListing, http.StatusConflict},
		{&services.StateError{Op: "accept", Status: models.StatusCancelled}, http.StatusConflict},
		{&services.DiscoveryError{Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{nil, http.StatusOK},
	}
	provider := middleware.Actor{ID: uuid.New(), Role: auth.RoleProvider}
	for _, c := range cases {
		h := NewRequestHandler(&mockStore{}, &mockOrders{}, &mockMatcher{acceptErr: c.err}, 24*time.Hour, nil)
		req := authedRequest(http.MethodPost, "/v1/requests/"+uuid.New().String()+"/accept", "", provider)
		req.SetPathValue("id", uuid.New().String())
		rec := httptest.NewRecorder()
		h.Accept(rec, req)
		if rec.Code != c.code {
			t.Errorf("error %v: expected %d, got %d", c.err, c.code, rec.Code)
		}
	}
}

func TestAcceptInvalidID(t *testing.T) {
	h := NewRequestHandler(&mockStore{}, &mockOrders{}, &mockMatcher{}, 24*time.Hour, nil)
	provider := middleware.Actor{ID: uuid.New(), Role: auth.RoleProvider}

	req := authedRequest(http.MethodPost, "/v1/requests/not-a-uuid/accept", "", provider)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Accept(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// 3. TestGetRequestVisibility
// ---------------------------------------------------------------------------

func TestGetRequestVisibility(t *testing.T) {
	seekerID := uuid.New()
	notified := uuid.New()
	request := &models.ServiceRequest{
		ID:                   uuid.New(),
		SeekerID:             seekerID,
		Status:               models.StatusMatched,
		AllNotifiedProviders: []uuid.UUID{notified},
	}
	store := &mockStore{requests: map[uuid.UUID]*models.ServiceRequest{request.ID: request}}
	h := NewRequestHandler(store, &mockOrders{}, &mockMatcher{}, 24*time.Hour, nil)

	get := func(actor middleware.Actor, id string) int {
		req := authedRequest(http.MethodGet, "/v1/requests/"+id, "", actor)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.GetRequest(rec, req)
		return rec.Code
	}

	if code := get(middleware.Actor{ID: seekerID, Role: auth.RoleSeeker}, request.ID.String()); code != http.StatusOK {
		t.Errorf("owner should see the request, got %d", code)
	}
	if code := get(middleware.Actor{ID: notified, Role: auth.RoleProvider}, request.ID.String()); code != http.StatusOK {
		t.Errorf("notified provider should see the request, got %d", code)
	}
	if code := get(middleware.Actor{ID: uuid.New(), Role: auth.RoleProvider}, request.ID.String()); code != http.StatusForbidden {
		t.Errorf("stranger should get 403, got %d", code)
	}
	if code := get(middleware.Actor{ID: seekerID, Role: auth.RoleSeeker}, uuid.New().String()); code != http.StatusNotFound {
		t.Errorf("unknown id should get 404, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// 4. TestGetOrderVisibility
// ---------------------------------------------------------------------------

func TestGetOrderVisibility(t *testing.T) {
	seekerID := uuid.New()
	winner := uuid.New()
	loser := uuid.New()
	orderID := uuid.New()
	request := &models.ServiceRequest{
		ID:                   uuid.New(),
		SeekerID:             seekerID,
		Status:               models.StatusAccepted,
		AllNotifiedProviders: []uuid.UUID{winner, loser},
		AcceptedProviderID:   &winner,
		OrderID:              &orderID,
	}
	store := &mockStore{requests: map[uuid.UUID]*models.ServiceRequest{request.ID: request}}
	orders := &mockOrders{orders: map[uuid.UUID]*models.Order{
		request.ID: {ID: orderID, RequestID: request.ID, ProviderID: winner, PricePaise: 50000},
	}}
	h := NewRequestHandler(store, orders, &mockMatcher{}, 24*time.Hour, nil)

	get := func(actor middleware.Actor) int {
		req := authedRequest(http.MethodGet, "/v1/requests/"+request.ID.String()+"/order", "", actor)
		req.SetPathValue("id", request.ID.String())
		rec := httptest.NewRecorder()
		h.GetOrder(rec, req)
		return rec.Code
	}

	if code := get(middleware.Actor{ID: seekerID, Role: auth.RoleSeeker}); code != http.StatusOK {
		t.Errorf("seeker should see the order, got %d", code)
	}
	if code := get(middleware.Actor{ID: winner, Role: auth.RoleProvider}); code != http.StatusOK {
		t.Errorf("winning provider should see the order, got %d", code)
	}
	if code := get(middleware.Actor{ID: loser, Role: auth.RoleProvider}); code != http.StatusForbidden {
		t.Errorf("losing provider should get 403, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// 5. TestCancelErrorMapping
// ---------------------------------------------------------------------------

func TestCancelErrorMapping(t *testing.T) {
	seeker := middleware.Actor{ID: uuid.New(), Role: auth.RoleSeeker}

	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{services.ErrNotRequestOwner, http.StatusForbidden},
		{services.ErrRequestNotFound, http.StatusNotFound},
		{&services.StateError{Op: "cancel", Status: models.StatusAccepted}, http.StatusConflict},
	}
	for _, c := range cases {
		h := NewRequestHandler(&mockStore{}, &mockOrders{}, &mockMatcher{cancelErr: c.err}, 24*time.Hour, nil)
		id := uuid.New().String()
		req := authedRequest(http.MethodPost, "/v1/requests/"+id+"/cancel", `{"reason":"plans changed"}`, seeker)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.Cancel(rec, req)
		if rec.Code != c.code {
			t.Errorf("error %v: expected %d, got %d", c.err, c.code, rec.Code)
		}
	}
}
