package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"botforge-backend/internal/middleware"
	"botforge-backend/internal/models"
	"botforge-backend/internal/storage"
	"botforge-backend/internal/tasks"
)

const (
	authCookieName = "auth_token"
	genericAuthErr = "Invalid credentials"
)

// Store is the persistence surface the auth handlers need. *storage.Storage
// satisfies it.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetDemoUser(ctx context.Context) (*models.User, error)
	RegisterUser(ctx context.Context, input storage.RegisterInput) (*models.User, *models.Organization, error)
	CreateRefreshToken(ctx context.Context, userID, ip, userAgent string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, token, ip, userAgent string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) (int64, error)
	PrimaryOrganizationID(ctx context.Context, userID string) (string, error)
}

// LoginLimiter guards the login path against brute force. Retry-after values
// are seconds.
type LoginLimiter interface {
	IsBlocked(ctx context.Context, ip, email string) int
	RecordFailure(ctx context.Context, ip, email string) (bool, int)
	Clear(ctx context.Context, ip, email string)
}

type Handler struct {
	store   Store
	limiter LoginLimiter
	tasks   *tasks.Dispatcher
	secure  bool
}

func NewHandler(store Store, limiter LoginLimiter, dispatcher *tasks.Dispatcher) *Handler {
	return &Handler{
		store:   store,
		limiter: limiter,
		tasks:   dispatcher,
		secure:  os.Getenv("APP_ENV") == "production",
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
	r.Post("/api/auth/refresh", h.Refresh)
	r.Post("/api/auth/demo", h.DemoLogin)

	r.Group(func(r chi.Router) {
		r.Use(Middleware)
		r.Post("/api/auth/logout-all", h.LogoutAll)
		r.Get("/api/auth/me", h.Me)
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user together with their personal organization
// @Summary Register a new account
// @Description Creates the user, an owned organization and an admin membership, then returns a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param account body registerRequest true "New account"
// @Success 201 {object} map[string]interface{} "Token and user"
// @Failure 400 {object} map[string]interface{} "Validation failure or duplicate email"
// @Failure 500 {object} map[string]interface{} "Server error during registration"
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if fields := validateRegistration(req); len(fields) > 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Validation failed",
			"fields":  fields,
		})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("ERROR Password hash: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	input := storage.RegisterInput{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Username,
		OrgName:      req.Username + "'s Workspace",
	}

	var user *models.User
	var org *models.Organization
	for attempt := 0; attempt < 3; attempt++ {
		input.OrgSlug = storage.SlugFromEmail(req.Email)
		user, org, err = h.store.RegisterUser(r.Context(), input)
		if err != storage.ErrSlugTaken {
			break
		}
	}
	if err == storage.ErrEmailTaken {
		respondError(w, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		log.Printf("ERROR Registration: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	token, err := GenerateToken(user.ID, user.Email, org.ID)
	if err != nil {
		log.Printf("ERROR Token generation: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	h.tasks.EmailVerification(models.EmailJob{
		To:       user.Email,
		Template: models.EmailVerification,
		Token:    uuid.New().String(),
		TS:       time.Now().Unix(),
	})
	h.emit(r, models.AuthEvent{Type: models.EventRegister, UserID: user.ID, Email: user.Email})

	h.setAuthCookie(w, token)
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"token":   token,
		"user":    user.Public(),
	})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// Login authenticates a user and returns an access/refresh token pair
// @Summary User login
// @Description Authenticates with email and password; 2FA-enabled accounts without a code get requires2FA instead of tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{} "Token pair and user, or requires2FA"
// @Failure 400 {object} map[string]interface{} "Missing credentials"
// @Failure 401 {object} map[string]interface{} "Invalid credentials"
// @Failure 429 {object} map[string]interface{} "Too many failed attempts"
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	ip := middleware.ClientIP(r)
	if retry := h.limiter.IsBlocked(r.Context(), ip, req.Email); retry > 0 {
		respondBlocked(w, retry)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("ERROR Login user lookup: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during login")
		return
	}
	if user == nil {
		log.Printf("INFO Login failed (unknown email) ip=%s", ip)
		h.failLogin(w, r, ip, req.Email)
		return
	}

	match, err := CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		log.Printf("ERROR Login hash compare for user=%s: %v", user.ID, err)
		respondError(w, http.StatusInternalServerError, "Server error during login")
		return
	}
	if !match {
		log.Printf("INFO Login failed (wrong password) user=%s ip=%s", user.ID, ip)
		h.failLogin(w, r, ip, req.Email)
		return
	}

	if user.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			respondJSON(w, http.StatusOK, map[string]any{
				"success":     true,
				"requires2FA": true,
			})
			return
		}
		secret := ""
		if user.TwoFactorSecret != nil {
			secret = *user.TwoFactorSecret
		}
		if !VerifyTOTP(secret, req.TwoFactorCode, time.Now()) {
			log.Printf("INFO Login failed (2FA mismatch) user=%s ip=%s", user.ID, ip)
			h.failLogin(w, r, ip, req.Email)
			return
		}
	}

	h.limiter.Clear(r.Context(), ip, req.Email)

	token, refresh, err := h.issueTokenPair(r, user)
	if err != nil {
		log.Printf("ERROR Login token issue for user=%s: %v", user.ID, err)
		respondError(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	h.emit(r, models.AuthEvent{Type: models.EventLogin, UserID: user.ID, Email: user.Email})

	h.setAuthCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"token":        token,
		"refreshToken": refresh.Token,
		"user":         user.Public(),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the supplied refresh token and clears the auth cookie
// @Summary User logout
// @Description Best-effort revocation; always succeeds
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		if err := h.store.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
			log.Printf("WARN Logout revoke: %v", err)
		}
	}

	h.emit(r, models.AuthEvent{Type: models.EventLogout})

	h.clearAuthCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates a refresh token into a new token pair
// @Summary Refresh session
// @Description Single-use rotation; a token already rotated or revoked is rejected
// @Tags auth
// @Accept json
// @Produce json
// @Param token body refreshRequest true "Refresh token"
// @Success 200 {object} map[string]interface{} "New token pair and user"
// @Failure 400 {object} map[string]interface{} "Missing token"
// @Failure 401 {object} map[string]interface{} "Invalid or expired refresh token"
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Refresh token required")
		return
	}

	ip := middleware.ClientIP(r)
	rotated, err := h.store.RotateRefreshToken(r.Context(), req.RefreshToken, ip, r.UserAgent())
	if err == storage.ErrRefreshTokenInvalid {
		respondError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if err != nil {
		log.Printf("ERROR Refresh rotation: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during refresh")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), rotated.UserID)
	if err != nil {
		log.Printf("ERROR Refresh user lookup: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during refresh")
		return
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	orgID, err := h.store.PrimaryOrganizationID(r.Context(), user.ID)
	if err != nil {
		log.Printf("WARN Refresh org lookup for user=%s: %v", user.ID, err)
	}
	token, err := GenerateToken(user.ID, user.Email, orgID)
	if err != nil {
		log.Printf("ERROR Refresh token generation: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during refresh")
		return
	}

	h.emit(r, models.AuthEvent{Type: models.EventRefresh, UserID: user.ID, Email: user.Email})

	h.setAuthCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"token":        token,
		"refreshToken": rotated.Token,
		"user":         user.Public(),
	})
}

// LogoutAll revokes every refresh token the user holds
// @Summary Log out everywhere
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Count of revoked sessions"
// @Failure 401 {object} map[string]interface{}
// @Security BearerAuth
// @Router /auth/logout-all [post]
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	count, err := h.store.RevokeAllRefreshTokens(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR Logout-all for user=%s: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "Server error during logout")
		return
	}

	h.emit(r, models.AuthEvent{Type: models.EventLogoutAll, UserID: userID})

	h.clearAuthCookie(w)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"revokedSessions": count,
	})
}

// DemoLogin issues a token for the shared demo account
// @Summary Demo login
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Demo token and user"
// @Failure 404 {object} map[string]interface{} "Demo account not provisioned"
// @Router /auth/demo [post]
func (h *Handler) DemoLogin(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetDemoUser(r.Context())
	if err != nil {
		log.Printf("ERROR Demo login lookup: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during demo login")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "Demo account not available")
		return
	}

	orgID, err := h.store.PrimaryOrganizationID(r.Context(), user.ID)
	if err != nil {
		log.Printf("WARN Demo org lookup: %v", err)
	}
	token, err := GenerateToken(user.ID, user.Email, orgID)
	if err != nil {
		log.Printf("ERROR Demo token generation: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error during demo login")
		return
	}

	h.emit(r, models.AuthEvent{Type: models.EventDemoLogin, UserID: user.ID, Email: user.Email})

	h.setAuthCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user":    user.Public(),
	})
}

// Me returns the current authenticated user
// @Summary Get current user
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR Me lookup: %v", err)
		respondError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

// failLogin records the failed attempt and answers with either the generic
// 401 or, when this attempt imposed a block, an immediate 429.
func (h *Handler) failLogin(w http.ResponseWriter, r *http.Request, ip, email string) {
	h.emit(r, models.AuthEvent{Type: models.EventLoginFailed, Email: email, IPAddress: ip})

	blocked, retry := h.limiter.RecordFailure(r.Context(), ip, email)
	if blocked {
		h.emit(r, models.AuthEvent{Type: models.EventRateLimitBlocked, Email: email, IPAddress: ip})
		respondBlocked(w, retry)
		return
	}
	respondError(w, http.StatusUnauthorized, genericAuthErr)
}

func (h *Handler) issueTokenPair(r *http.Request, user *models.User) (string, *models.RefreshToken, error) {
	orgID, err := h.store.PrimaryOrganizationID(r.Context(), user.ID)
	if err != nil {
		log.Printf("WARN Org lookup for user=%s: %v", user.ID, err)
	}

	token, err := GenerateToken(user.ID, user.Email, orgID)
	if err != nil {
		return "", nil, err
	}

	refresh, err := h.store.CreateRefreshToken(r.Context(), user.ID, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		return "", nil, err
	}
	return token, refresh, nil
}

func (h *Handler) emit(r *http.Request, ev models.AuthEvent) {
	ev.IPAddress = middleware.ClientIP(r)
	ev.UserAgent = r.UserAgent()
	ev.TS = time.Now().Unix()
	h.tasks.AuditEvent(ev)
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if h.secure {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(accessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: sameSite,
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
	})
}

func validateRegistration(req registerRequest) map[string]string {
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "Username is required"
	}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "A valid email is required"
	}
	if len(req.Password) < 8 {
		fields["password"] = "Password must be at least 8 characters"
	}
	return fields
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]any{"success": false, "error": msg})
}

func respondBlocked(w http.ResponseWriter, retryAfter int) {
	respondJSON(w, http.StatusTooManyRequests, map[string]any{
		"success":    false,
		"blocked":    true,
		"retryAfter": retryAfter,
		"error":      "Too many failed attempts, try again later",
	})
}
