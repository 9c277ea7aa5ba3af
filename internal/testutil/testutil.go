package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/hugh/taskeasy/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const TestPassword = "testpassword123"

// SetupTestDB creates an in-memory SQLite database migrated with the
// production models. Each call gets its own database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// CreateTestUser creates a user whose password is TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	if username == "" {
		username = "user-" + uuid.NewString()[:8]
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestProject creates a project owned by creator with the given
// additional members.
func CreateTestProject(t *testing.T, db *gorm.DB, creator *models.User, members ...*models.User) *models.Project {
	t.Helper()

	project := &models.Project{
		Base: models.Base{
			ID: uuid.New(),
		},
		Title:     "Test Project",
		CreatedBy: creator.ID,
		Members: []models.ProjectMember{
			{UserID: creator.ID, Role: "owner"},
		},
	}
	for _, m := range members {
		project.Members = append(project.Members, models.ProjectMember{UserID: m.ID, Role: "member"})
	}

	if err := db.Create(project).Error; err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return project
}

// CreateTestWorkItem creates a work item in the project. opts may adjust the
// item before it is inserted.
func CreateTestWorkItem(t *testing.T, db *gorm.DB, project *models.Project, title string, opts ...func(*models.WorkItem)) *models.WorkItem {
	t.Helper()

	item := &models.WorkItem{
		Base: models.Base{
			ID: uuid.New(),
		},
		ProjectID: project.ID,
		Title:     title,
		Type:      "Task",
		State:     "New",
		Priority:  "Medium",
		CreatedBy: project.CreatedBy,
		Tags:      []string{},
	}
	for _, opt := range opts {
		opt(item)
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test work item: %v", err)
	}

	return item
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// MultipartRequest builds a multipart/form-data request carrying one file
// under field plus any extra form values.
func MultipartRequest(t *testing.T, method, path, field, filename string, content []byte, values map[string]string, token string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	User       *models.User
	Project    *models.Project
	Token      string
}

// NewTestContext creates a complete test setup: a database, a user, a project
// created by that user and a token for them.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	user := CreateTestUser(t, db, "")
	project := CreateTestProject(t, db, user)
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		User:       user,
		Project:    project,
		Token:      token,
	}
}

// Outsider creates a user with no access to ts.Project and returns them with
// a token.
func (ts *TestSetup) Outsider(t *testing.T) (*models.User, string) {
	t.Helper()
	user := CreateTestUser(t, ts.DB, "")
	return user, GenerateTestToken(t, ts.JWTService, user)
}

// AddMember grants user access to ts.Project.
func (ts *TestSetup) AddMember(t *testing.T, user *models.User) {
	t.Helper()
	m := models.ProjectMember{ProjectID: ts.Project.ID, UserID: user.ID, Role: "member"}
	if err := ts.DB.Create(&m).Error; err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
}
