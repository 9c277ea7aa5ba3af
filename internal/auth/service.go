package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Service struct {
	db  *gorm.DB
	jwt *JWTService
}

func NewService(db *gorm.DB, jwt *JWTService) *Service {
	return &Service{db: db, jwt: jwt}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
	Profile  *ProfilePatch
}

// ProfilePatch holds the user fields a caller may change. Nil fields are left
// untouched.
type ProfilePatch struct {
	Name      *string
	AvatarURL *string
	Bio       *string
	JobTitle  *string
}

func (p ProfilePatch) updates() map[string]interface{} {
	u := make(map[string]interface{})
	if p.Name != nil {
		u["name"] = *p.Name
	}
	if p.AvatarURL != nil {
		u["avatar_url"] = *p.AvatarURL
	}
	if p.Bio != nil {
		u["bio"] = *p.Bio
	}
	if p.JobTitle != nil {
		u["job_title"] = *p.JobTitle
	}
	return u
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ImportRecord is one user from an external export. Password may be plaintext
// or an existing bcrypt hash.
type ImportRecord struct {
	Username string
	Email    string
	Password string
	Name     string
}

type ImportResult struct {
	Imported []string        `json:"imported"`
	Skipped  []SkippedImport `json:"skipped"`
}

type SkippedImport struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) exists(ctx context.Context, db *gorm.DB, email, username string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	taken, err := s.exists(ctx, s.db, email, username)
	if err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if taken {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Name:         input.Name,
	}
	// A concurrent registration can pass the check above; the unique
	// indexes settle it.
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	token, err := s.jwt.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

// Login fails with ErrInvalidCredentials for both an unknown email and a wrong
// password. When input.Profile is set the patch is applied and the stored
// user is re-read before responding.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if input.Profile != nil {
		updated, err := s.UpdateProfile(ctx, user.ID, *input.Profile)
		if err != nil {
			return nil, err
		}
		user = *updated
	}

	token, err := s.jwt.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token: token,
		User:  &user,
	}, nil
}

// Import inserts each record independently. Duplicates and incomplete
// records are skipped and reported, never fatal.
func (s *Service) Import(ctx context.Context, records []ImportRecord) (*ImportResult, error) {
	result := &ImportResult{
		Imported: []string{},
		Skipped:  []SkippedImport{},
	}

	for _, rec := range records {
		email := normalizeEmail(rec.Email)
		username := strings.TrimSpace(rec.Username)
		if email == "" || username == "" || rec.Password == "" {
			result.Skipped = append(result.Skipped, SkippedImport{Email: email, Reason: "missing required fields"})
			continue
		}

		taken, err := s.exists(ctx, s.db, email, username)
		if err != nil {
			return nil, fmt.Errorf("checking existing user: %w", err)
		}
		if taken {
			result.Skipped = append(result.Skipped, SkippedImport{Email: email, Reason: "already exists"})
			continue
		}

		hash := rec.Password
		if !IsPasswordHash(hash) {
			if hash, err = HashPassword(rec.Password); err != nil {
				return nil, err
			}
		}

		user := models.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Name:         rec.Name,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			reason := "insert failed"
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				reason = "already exists"
			}
			result.Skipped = append(result.Skipped, SkippedImport{Email: email, Reason: reason})
			continue
		}
		result.Imported = append(result.Imported, user.ID.String())
	}

	return result, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*models.User, error) {
	if updates := patch.updates(); len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("updating profile: %w", res.Error)
		}
	}
	return s.GetUserByID(ctx, id)
}

// FindByLogin looks a user up by email or username.
func (s *Service) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", normalizeEmail(login), login).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
