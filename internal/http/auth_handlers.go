package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/pkg/auth"
)

// AccountStore is the slice of the store the auth handlers need.
type AccountStore interface {
	CreateUser(ctx context.Context, username, email, password string) (store.User, error)
	VerifyUser(ctx context.Context, username, password string) (store.User, error)
}

type AuthAPI struct {
	DB  AccountStore
	JWT *auth.JWT
	TTL time.Duration
}

type signupReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type userDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
type tokenData struct {
	User  userDTO `json:"user"`
	Token string  `json:"token"`
}

// Register handles signup and returns a JWT (auto-login)
func (a *AuthAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Signup failed")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" || len(req.Password) < 8 || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "Signup failed")
		return
	}

	u, err := a.DB.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusConflict, "Username or email already in use")
		return
	}

	tok, _ := a.JWT.Sign(u.ID, a.TTL)
	writeSuccess(w, http.StatusCreated, "Account created successfully", tokenData{
		User:  userDTO{ID: u.ID, Username: u.Username, Email: u.Email},
		Token: tok,
	})
}

// Login verifies credentials and returns a JWT
func (a *AuthAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Login failed")
		return
	}

	u, err := a.DB.VerifyUser(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tok, _ := a.JWT.Sign(u.ID, a.TTL)
	writeSuccess(w, http.StatusOK, "Login successful", tokenData{
		User:  userDTO{ID: u.ID, Username: u.Username, Email: u.Email},
		Token: tok,
	})
}

// Me returns the authenticated user's ID
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeSuccess(w, http.StatusOK, "Authenticated", map[string]string{"userId": uid})
}
