package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/peerlearn/internal/common"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/server/users"
	"github.com/dmitrijs2005/peerlearn/internal/validation"
)

const maxRequestBody = 1 << 20

// UserService is the part of users.Service the handlers need.
type UserService interface {
	Register(ctx context.Context, form users.Registration) error
	VerifyEmail(ctx context.Context, email, code string) (*users.User, *users.TokenPair, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*users.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*users.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*users.User, error)
	UpdateProfile(ctx context.Context, user *users.User, upd users.ProfileUpdate) (*users.User, error)
	GetByID(ctx context.Context, id string) (*users.User, error)
}

type Handler struct {
	svc UserService
	log logging.Logger
}

func NewHandler(svc UserService, log logging.Logger) *Handler {
	return &Handler{svc: svc, log: log.With("component", "httpapi")}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	Name      string `json:"name" validate:"required,notblank"`
	StudentID string `json:"student_id"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileUpdateRequest struct {
	Name            *string  `json:"name" validate:"omitnil,notblank"`
	Bio             *string  `json:"bio"`
	Avatar          *string  `json:"avatar"`
	StudyInterests  []string `json:"study_interests"`
	LearningStreaks *int     `json:"learning_streaks" validate:"omitnil,min=0"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type verifyEmailResponse struct {
	Message string           `json:"message"`
	User    *users.User      `json:"user"`
	Tokens  *users.TokenPair `json:"tokens"`
}

// decode reads a JSON body into dst and validates it. On failure the 422
// response has already been written.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil || json.Unmarshal(body, dst) != nil {
		writeValidation(w, []validationItem{{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"}})
		return false
	}
	if err := validation.Struct(dst); err != nil {
		writeFieldErrors(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !writeServiceError(w, err) {
		h.log.Error(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.svc.Register(r.Context(), users.Registration{
		Email: req.Email, Password: req.Password, Name: req.Name, StudentID: req.StudentID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Message: "Verification code sent to your email", Email: req.Email})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	user, tokens, err := h.svc.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyEmailResponse{Message: "Email verified successfully", User: user, Tokens: tokens})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeValidation(w, []validationItem{{Loc: []string{"query", "email"}, Msg: "Field required", Type: "missing"}})
		return
	}
	if err := h.svc.ResendVerification(r.Context(), email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Verification code resent to your email"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	tokens, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearer(r)
	if !ok {
		writeDetail(w, http.StatusForbidden, "Not authenticated")
		return
	}
	tokens, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// Logout only acknowledges: tokens are stateless and the client drops them.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateProfile(r.Context(), userFrom(r.Context()), users.ProfileUpdate{
		Name:            req.Name,
		Bio:             req.Bio,
		Avatar:          req.Avatar,
		StudyInterests:  req.StudyInterests,
		LearningStreaks: req.LearningStreaks,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// publicUser is what one user may see of another.
type publicUser struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Avatar  string `json:"avatar"`
}

func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicUser{ID: u.ID, MongoID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar})
}

func bearer(r *http.Request) (string, bool) {
	v := r.Header.Get(common.AuthorizationHeaderName)
	scheme, token, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, strings.TrimSpace(common.BearerPrefix)) || token == "" {
		return "", false
	}
	return token, true
}

type ctxKey string

const userKey ctxKey = "user"

func userFrom(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// Authenticated resolves the bearer access token to a user. A missing
// header is 403, a bad token 401.
func (h *Handler) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeDetail(w, http.StatusForbidden, "Not authenticated")
			return
		}
		u, err := h.svc.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, users.ErrInvalidCredentials) {
				h.fail(w, r, err)
				return
			}
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}
