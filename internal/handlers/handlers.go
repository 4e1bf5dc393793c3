package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"botforge-backend/internal/auth"
	"botforge-backend/internal/cache"
	"botforge-backend/internal/middleware"
	"botforge-backend/internal/models"
	"botforge-backend/internal/ratelimit"
	"botforge-backend/internal/storage"
)

const csrfTokenTTL = time.Hour

type Handler struct {
	storage  *storage.Storage
	cache    cache.Client
	settings *ratelimit.SettingsCache
}

func New(storage *storage.Storage, cacheClient cache.Client, settings *ratelimit.SettingsCache) *Handler {
	return &Handler{
		storage:  storage,
		cache:    cacheClient,
		settings: settings,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/api/csrf-token", h.CSRFToken)
	r.With(middleware.CacheResponse(h.cache, 5*time.Minute)).Get("/api/plans", h.ListPlans)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/api/orgs", h.ListOrganizations)
		r.Get("/api/orgs/{id}", h.GetOrganization)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware, h.requireSuperadmin, middleware.AdminIPWhitelist())
		r.Get("/api/admin/rate-limit-settings", h.GetRateLimitSettings)
		r.Put("/api/admin/rate-limit-settings", h.UpdateRateLimitSettings)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// CSRFToken mints a token for cookie-authenticated browser clients
// @Summary Get a CSRF token
// @Description The returned token must be echoed in the x-csrf-token header on state-changing requests
// @Tags platform
// @Produce json
// @Success 200 {object} map[string]string
// @Router /csrf-token [get]
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := uuid.New().String()
	if err := h.cache.SetCSRFToken(token, csrfTokenTTL); err != nil {
		log.Printf("ERROR CSRF token store: %v", err)
		http.Error(w, "Failed to issue CSRF token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"plans": []map[string]any{
			{"tier": models.PlanFree, "maxBots": 1, "maxMembers": 3},
			{"tier": models.PlanStarter, "maxBots": 5, "maxMembers": 10},
			{"tier": models.PlanPro, "maxBots": 25, "maxMembers": 50},
			{"tier": models.PlanEnterprise, "maxBots": -1, "maxMembers": -1},
		},
	})
}

// ListOrganizations returns the caller's organizations
// @Summary List my organizations
// @Tags orgs
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /orgs [get]
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	orgs, err := h.storage.GetOrganizationsForUser(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR List organizations for user=%s: %v", userID, err)
		http.Error(w, "Failed to load organizations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

// GetOrganization returns one organization the caller is a member of
// @Summary Get organization
// @Tags orgs
// @Produce json
// @Param id path string true "Organization id"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {string} string "Not a member"
// @Failure 404 {string} string "Not found"
// @Security BearerAuth
// @Router /orgs/{id} [get]
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	orgID := chi.URLParam(r, "id")

	membership, err := h.storage.GetMembership(r.Context(), orgID, userID)
	if err != nil {
		log.Printf("ERROR Membership lookup org=%s user=%s: %v", orgID, userID, err)
		http.Error(w, "Failed to load organization", http.StatusInternalServerError)
		return
	}
	if membership == nil || membership.Status != models.MembershipActive {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	org, err := h.storage.GetOrganization(r.Context(), orgID)
	if errors.Is(err, storage.ErrOrgNotFound) {
		http.Error(w, "Organization not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("ERROR Organization lookup %s: %v", orgID, err)
		http.Error(w, "Failed to load organization", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organization": org,
		"role":         membership.Role,
	})
}

func (h *Handler) GetRateLimitSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.storage.GetRateLimitSettings(r.Context())
	if err != nil {
		log.Printf("WARN Settings load, serving defaults: %v", err)
		settings = ratelimit.DefaultSettings
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (h *Handler) UpdateRateLimitSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.RateLimitSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if settings.MaxAttempts < 1 || settings.WindowMinutes < 1 || settings.BlockDurationMinutes < 1 {
		http.Error(w, "Thresholds must be positive", http.StatusBadRequest)
		return
	}

	if err := h.storage.UpdateRateLimitSettings(r.Context(), settings); err != nil {
		log.Printf("ERROR Settings update: %v", err)
		http.Error(w, "Failed to update settings", http.StatusInternalServerError)
		return
	}
	h.settings.Invalidate()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
}

// requireSuperadmin gates admin routes on the is_superadmin flag.
func (h *Handler) requireSuperadmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := h.storage.GetUserByID(r.Context(), userID)
		if err != nil {
			log.Printf("ERROR Superadmin check for user=%s: %v", userID, err)
			http.Error(w, "Server error", http.StatusInternalServerError)
			return
		}
		if user == nil || !user.IsSuperadmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
