package dto

import (
	"strings"
	"time"

	"github.com/hugh/taskeasy/internal/api/validation"
	"github.com/hugh/taskeasy/internal/database/models"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (r RegisterRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Username == "" {
		errors["username"] = "Username is required"
	} else if !validation.IsValidUsername(r.Username) {
		errors["username"] = "Username must be 3-32 letters, digits, '.', '_' or '-'"
	}
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	} else if ok, msg := validation.IsValidPassword(r.Password); !ok {
		errors["password"] = msg
	}
	if len(r.Name) > 100 {
		errors["name"] = "Name must be at most 100 characters"
	}

	return errors
}

// ProfileRequest is a partial profile update. Omitted fields are unchanged.
type ProfileRequest struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	JobTitle  *string `json:"jobTitle,omitempty"`
}

func (r ProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil && len(*r.Name) > 100 {
		errors["name"] = "Name must be at most 100 characters"
	}
	if r.AvatarURL != nil && *r.AvatarURL != "" && !validation.IsValidURL(*r.AvatarURL) {
		errors["avatarUrl"] = "Avatar URL must be an http(s) URL or an absolute path"
	}
	if r.Bio != nil && len(*r.Bio) > 2000 {
		errors["bio"] = "Bio must be at most 2000 characters"
	}
	if r.JobTitle != nil && len(*r.JobTitle) > 100 {
		errors["jobTitle"] = "Job title must be at most 100 characters"
	}

	return errors
}

type LoginRequest struct {
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Profile  *ProfileRequest `json:"profile,omitempty"`
}

func (r LoginRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}
	if r.Profile != nil {
		for field, msg := range r.Profile.Validate() {
			errors["profile."+field] = msg
		}
	}

	return errors
}

// ImportUser is one record of POST /auth/import. Password may already be a
// bcrypt hash.
type ImportUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type AuthResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func UserToDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		JobTitle:  u.JobTitle,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
