// Package httpapi serves the /auth endpoints with FastAPI-compatible
// response bodies: {"detail": "..."} for errors and a 422 list of
// {loc, msg, type} for invalid input.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/peerlearn/internal/common"
)

func NewRouter(h *Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", common.AuthorizationHeaderName, "Content-Type", common.RequestIDHeaderName},
		ExposedHeaders:   []string{common.RequestIDHeaderName},
		AllowCredentials: false,
		MaxAge:           60 * 15,
	}))

	r.Route("/auth", func(rr chi.Router) {
		rr.Post("/register", h.Register)
		rr.Post("/verify-email", h.VerifyEmail)
		rr.Post("/resend-verification", h.ResendVerification)
		rr.Post("/login", h.Login)
		rr.Post("/refresh", h.Refresh)
		rr.Post("/logout", h.Logout)

		rr.Group(func(ar chi.Router) {
			ar.Use(h.Authenticated)
			ar.Get("/me", h.Me)
			ar.Put("/me", h.UpdateMe)
			ar.Get("/user/{id}", h.User)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug(r.Context(), "http request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()), "elapsed", time.Since(started))
	})
}
