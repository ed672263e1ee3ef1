package www

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"teletable/auth"
	"teletable/store"
)

// userResponse is the public view of a user record: no password hash.
type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates a new account. New users start as viewers; an
// admin promotes them afterwards.
func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "Email and name are required")
		return
	}

	if _, err := h.db.GetUserByEmail(req.Email); err == nil {
		jsonError(w, http.StatusBadRequest, "User with this email already exists")
		return
	} else if !errors.Is(err, store.ErrUserNotFound) {
		jsonError(w, http.StatusInternalServerError, "database error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "password hashing error")
		return
	}
	u := &store.User{Name: req.Name, Email: req.Email, PasswordHash: hash, Role: auth.RoleViewer}
	if err := h.db.CreateUser(u); err != nil {
		log.Printf("www: create user: %v", err)
		jsonError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	log.Printf("www: registered user %s (%s)", u.Name, u.Email)
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := h.db.GetUserByEmail(req.Email)
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		log.Printf("www: failed login for %s", req.Email)
		jsonError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.CreateToken(u.ID, u.Name, u.Role, h.jwtSecret, h.tokenTTL)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "token generation error")
		return
	}
	h.users.Put(r.Context(), u)
	log.Printf("www: login %s (%s)", u.Name, u.Role)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleMe returns the caller's own record, cache first.
func (h *Handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	u := h.users.Get(r.Context(), id.UserID)
	if u == nil {
		var err error
		u, err = h.db.GetUserByID(id.UserID)
		if err != nil {
			jsonError(w, http.StatusNotFound, "User not found")
			return
		}
		h.users.Put(r.Context(), u)
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// handleGetUser returns one user by ?id= or the full list.
func (h *Handlers) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if idStr := r.URL.Query().Get("id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		u, err := h.db.GetUserByID(id)
		if errors.Is(err, store.ErrUserNotFound) {
			jsonError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "database error")
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
		return
	}

	users, err := h.db.ListUsers()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "database error")
		return
	}
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateUserRequest struct {
	ID   uuid.UUID  `json:"id"`
	Role *auth.Role `json:"role,omitempty"`
}

func (h *Handlers) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == nil {
		jsonError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if !req.Role.Valid() {
		jsonError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if err := h.db.UpdateUserRole(req.ID, *req.Role); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			jsonError(w, http.StatusNotFound, "User not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, "database error")
		return
	}
	h.users.Invalidate(r.Context(), req.ID)
	log.Printf("www: user %s role set to %s", req.ID, *req.Role)

	u, err := h.db.GetUserByID(req.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type deleteUserRequest struct {
	ID uuid.UUID `json:"id"`
}

func (h *Handlers) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.db.DeleteUser(req.ID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			jsonError(w, http.StatusNotFound, "User not found")
			return
		}
		jsonError(w, http.StatusInternalServerError, "database error")
		return
	}
	h.users.Invalidate(r.Context(), req.ID)
	log.Printf("www: user %s deleted", req.ID)
	w.WriteHeader(http.StatusNoContent)
}
