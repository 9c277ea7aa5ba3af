//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/hugh/taskeasy/internal/auth"
	"github.com/hugh/taskeasy/internal/database"
	"github.com/hugh/taskeasy/internal/database/models"
	"github.com/hugh/taskeasy/pkg/config"
	"github.com/hugh/taskeasy/pkg/util"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := envOr("DEMO_EMAIL", "demo@example.com")
	password := envOr("DEMO_PASSWORD", "demo1234!")
	ctx := context.Background()

	resp, err := authService.Register(ctx, auth.RegisterInput{
		Username: envOr("DEMO_USERNAME", "demo"),
		Email:    email,
		Password: password,
		Name:     "Demo User",
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fmt.Printf("Demo user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create demo user: %v", err)
	}
	user := resp.User

	project := models.Project{
		Title:       "Demo",
		Description: "A sample project with a board and a few work items",
		CreatedBy:   user.ID,
	}
	board := models.Board{
		Name: "Team board",
		Columns: []models.BoardColumn{
			{ID: uuid.NewString(), Name: "New", Order: 0},
			{ID: uuid.NewString(), Name: "Active", Order: 1},
			{ID: uuid.NewString(), Name: "Done", Order: 2},
		},
		CreatedBy: user.ID,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ProjectMember{ProjectID: project.ID, UserID: user.ID, Role: "owner"}).Error; err != nil {
			return err
		}

		board.ProjectID = project.ID
		if err := tx.Create(&board).Error; err != nil {
			return err
		}

		for i, title := range []string{"Set up the repository", "Write the README", "Plan the first sprint"} {
			item := models.WorkItem{
				ProjectID: project.ID,
				Title:     title,
				Type:      "Task",
				State:     "New",
				Priority:  "Medium",
				CreatedBy: user.ID,
				BoardID:   &board.ID,
				ColumnID:  board.Columns[0].ID,
				Order:     i + 1,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed to create demo project: %v", err)
	}

	fmt.Printf("Demo user created successfully!\n")
	fmt.Printf("Email: %s\n", user.Email)
	fmt.Printf("Project: %s (%s)\n", project.Title, project.ID)
	fmt.Printf("Token: %s\n", resp.Token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
