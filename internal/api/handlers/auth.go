package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/hugh/taskeasy/internal/api/dto"
	"github.com/hugh/taskeasy/internal/api/middleware"
	"github.com/hugh/taskeasy/internal/auth"
)

// ImportKeyHeader carries the shared secret for POST /auth/import.
const ImportKeyHeader = "X-Import-Key"

const maxImportRecords = 1000

type AuthHandler struct {
	authService auth.Authenticator
	importKey   string
}

// NewAuthHandler builds the account endpoints. An empty importKey disables
// POST /auth/import.
func NewAuthHandler(authService auth.Authenticator, importKey string) *AuthHandler {
	return &AuthHandler{authService: authService, importKey: importKey}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			writeError(w, http.StatusConflict, "User already exists")
		default:
			writeError(w, http.StatusInternalServerError, "Registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.AuthResponse{
		Token: resp.Token,
		User:  dto.UserToDTO(resp.User),
	})
}

// Login answers the same 401 for an unknown email and a wrong password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	input := auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}
	if req.Profile != nil {
		input.Profile = profilePatch(req.Profile)
	}

	resp, err := h.authService.Login(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token: resp.Token,
		User:  dto.UserToDTO(resp.User),
	})
}

// Import bulk-inserts users exported from another deployment.
func (h *AuthHandler) Import(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(ImportKeyHeader)
	if h.importKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.importKey)) != 1 {
		writeError(w, http.StatusForbidden, "Import is not allowed")
		return
	}

	var req []dto.ImportUser
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "No users to import")
		return
	}
	if len(req) > maxImportRecords {
		writeError(w, http.StatusBadRequest, "Too many users in one import")
		return
	}

	records := make([]auth.ImportRecord, len(req))
	for i, u := range req {
		records[i] = auth.ImportRecord{
			Username: u.Username,
			Email:    u.Email,
			Password: u.Password,
			Name:     u.Name,
		}
	}

	result, err := h.authService.Import(r.Context(), records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, dto.UserToDTO(user))
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), *profilePatch(&req))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, dto.UserToDTO(user))
}

func profilePatch(req *dto.ProfileRequest) *auth.ProfilePatch {
	return &auth.ProfilePatch{
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		JobTitle:  req.JobTitle,
	}
}
