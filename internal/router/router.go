package router

import (
	"net/http"

	"github.com/gramseva/backend/internal/auth"
	"github.com/gramseva/backend/internal/listings"
)

// New returns an http.Handler that serves the account-facing API under
// /api/v1: registration, login, and provider listing management.
func New(authHandler *auth.Handler, listingHandler *listings.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)
	mux.HandleFunc(base+"/listings", listingsHandlerFunc(listingHandler))
	return mux
}

func listingsHandlerFunc(h *listings.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.CreateListing(w, r)
		case http.MethodGet:
			h.ListMyListings(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
