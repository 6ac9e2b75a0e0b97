package listings

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gramseva/backend/internal/auth"
	"github.com/gramseva/backend/internal/models"
)

// Request/response structs use snake_case JSON to match the mobile client.

type CreateListingRequest struct {
	CategoryID    string  `json:"category_id"`
	SubCategoryID string  `json:"sub_category_id,omitempty"`
	Title         string  `json:"title"`
	PricePaise    int64   `json:"price_paise"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	Longitude     float64 `json:"longitude"`
	Latitude      float64 `json:"latitude"`
}

type ListingResponse struct {
	ID            string  `json:"id"`
	ProviderID    string  `json:"provider_id"`
	ProviderName  string  `json:"provider_name,omitempty"`
	CategoryID    string  `json:"category_id"`
	SubCategoryID string  `json:"sub_category_id,omitempty"`
	Title         string  `json:"title"`
	PricePaise    int64   `json:"price_paise"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	Longitude     float64 `json:"longitude"`
	Latitude      float64 `json:"latitude"`
	Status        string  `json:"status"`
}

type Handler struct {
	svc     Service
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(svc Service, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, log: log}
}

func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, role, err := h.actorFromRequest(r)
	if err != nil || providerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != auth.RoleProvider {
		http.Error(w, "providers only", http.StatusForbidden)
		return
	}
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		http.Error(w, "invalid category_id", http.StatusBadRequest)
		return
	}
	var subCategoryID *uuid.UUID
	if req.SubCategoryID != "" {
		id, err := uuid.Parse(req.SubCategoryID)
		if err != nil {
			http.Error(w, "invalid sub_category_id", http.StatusBadRequest)
			return
		}
		subCategoryID = &id
	}
	listing, err := h.svc.CreateListing(r.Context(), providerID, CreateParams{
		CategoryID:    categoryID,
		SubCategoryID: subCategoryID,
		Title:         req.Title,
		PricePaise:    req.PricePaise,
		UnitOfMeasure: req.UnitOfMeasure,
		Location:      models.Location{Longitude: req.Longitude, Latitude: req.Latitude},
	})
	if err != nil {
		if errors.Is(err, ErrInvalidListing) {
			http.Error(w, "missing or invalid listing fields", http.StatusBadRequest)
			return
		}
		h.log.Error("create listing failed", "error", err)
		http.Error(w, "create listing failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(listingToResponse(listing))
}

func (h *Handler) ListMyListings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID, _, err := h.actorFromRequest(r)
	if err != nil || providerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByProvider(r.Context(), providerID)
	if err != nil {
		h.log.Error("list listings failed", "error", err)
		http.Error(w, "list listings failed", http.StatusInternalServerError)
		return
	}
	resp := make([]ListingResponse, 0, len(list))
	for _, l := range list {
		resp = append(resp, listingToResponse(l))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) actorFromRequest(r *http.Request) (uuid.UUID, string, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, "", nil
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", nil
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, "", nil
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func listingToResponse(l *models.Listing) ListingResponse {
	resp := ListingResponse{
		ID:            l.ID.String(),
		ProviderID:    l.ProviderID.String(),
		ProviderName:  l.ProviderName,
		CategoryID:    l.CategoryID.String(),
		Title:         l.Title,
		PricePaise:    l.PricePaise,
		UnitOfMeasure: l.UnitOfMeasure,
		Longitude:     l.Location.Longitude,
		Latitude:      l.Location.Latitude,
		Status:        l.Status,
	}
	if l.SubCategoryID != nil {
		resp.SubCategoryID = l.SubCategoryID.String()
	}
	return resp
}
