package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/keyauthd/keyauthd/internal/api/handler"
	"github.com/keyauthd/keyauthd/internal/api/middleware"
	"github.com/keyauthd/keyauthd/internal/license"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(svc *license.Service, adminSecret string) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.AdminSecretHeader},
	}))
	r.Use(middleware.ContentType)

	// Health (no auth required)
	health := func(w http.ResponseWriter, r *http.Request) {
		total, err := svc.Count(r.Context())
		if err != nil {
			log.Printf("health: counting keys: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"status":"error"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"message":   "keyauthd is running",
			"totalKeys": total,
		})
	}
	r.Get("/", health)
	r.Get("/health", health)

	// Public verification
	verifyHandler := handler.NewVerifyHandler(svc)
	r.Post("/api/verify", verifyHandler.Verify)

	// Admin endpoints (shared secret required)
	keyHandler := handler.NewKeyHandler(svc)
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminSecret))
		r.Post("/create-key", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Patch("/revoke-key", keyHandler.Revoke)
		r.Delete("/delete-key", keyHandler.Delete)
	})

	return r
}
