package main

import (
	"net/http"

	"github.com/gramseva/backend/internal/handlers"
	"github.com/gramseva/backend/internal/middleware"
)

// RegisterV1Routes adds the /v1/requests matching API to the given mux.
// Every route sits behind JWT auth; the handlers apply ownership and
// notification checks themselves.
func RegisterV1Routes(mux *http.ServeMux, rh *handlers.RequestHandler, validator middleware.TokenValidator) {
	auth := middleware.JWTAuth(validator)

	mux.Handle("POST /v1/requests", auth(http.HandlerFunc(rh.CreateRequest)))
	mux.Handle("GET /v1/requests", auth(http.HandlerFunc(rh.ListRequests)))
	mux.Handle("GET /v1/requests/{id}", auth(http.HandlerFunc(rh.GetRequest)))
	mux.Handle("GET /v1/requests/{id}/order", auth(http.HandlerFunc(rh.GetOrder)))
	mux.Handle("POST /v1/requests/{id}/accept", auth(http.HandlerFunc(rh.Accept)))
	mux.Handle("POST /v1/requests/{id}/decline", auth(http.HandlerFunc(rh.Decline)))
	mux.Handle("POST /v1/requests/{id}/cancel", auth(http.HandlerFunc(rh.Cancel)))
	mux.Handle("POST /v1/requests/{id}/waves", auth(http.HandlerFunc(rh.TriggerWave)))
}
