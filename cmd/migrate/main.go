package main

import (
	"fmt"
	"log"
	"os"

	"github.com/archivus/docflow/internal/app/config"
	"github.com/archivus/docflow/internal/infrastructure/auth/jwt"
	"github.com/archivus/docflow/internal/infrastructure/database"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/pkg/logger"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	command := os.Args[1]

	logger := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		runMigrations(db, logger)
	case "reset":
		resetDatabase(db, logger)
	case "seed":
		seedDatabase(db, cfg, logger)
	case "status":
		migrationStatus(db, logger)
	default:
		logger.Error("Unknown command", "command", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  up     - Run all pending migrations")
	fmt.Println("  reset  - Drop all tables and recreate them")
	fmt.Println("  seed   - Seed a demo tenant and print development tokens")
	fmt.Println("  status - Show migration status")
}

func runMigrations(db *database.DB, logger *logger.Logger) {
	logger.Info("Running database migrations...")

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		return
	}

	if db.Dialector.Name() == "postgres" {
		if err := createIndexes(db); err != nil {
			logger.Error("Failed to create indexes", "error", err)
			return
		}
	}

	logger.Info("Database migrations completed successfully")
}

func resetDatabase(db *database.DB, logger *logger.Logger) {
	logger.Info("Resetting database...")

	// Reverse of migration order so dependents go first.
	all := models.GetAllModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			logger.Error("Failed to drop table", "error", err)
		}
	}

	runMigrations(db, logger)

	logger.Info("Database reset completed")
}

func seedDatabase(db *database.DB, cfg *config.Config, logger *logger.Logger) {
	logger.Info("Seeding database with initial data...")

	defaultTenant := &models.Tenant{
		Name:      "Default Tenant",
		Subdomain: "default",
		IsActive:  true,
	}
	if err := db.FirstOrCreate(defaultTenant, models.Tenant{Subdomain: "default"}).Error; err != nil {
		logger.Error("Failed to create default tenant", "error", err)
		return
	}

	emails := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	for _, email := range emails {
		user := &models.User{TenantID: defaultTenant.ID, Email: email, IsActive: true}
		if err := db.FirstOrCreate(user, models.User{TenantID: defaultTenant.ID, Email: email}).Error; err != nil {
			logger.Error("Failed to create user", "email", email, "error", err)
			return
		}
	}

	contract := &models.DocumentType{
		Base: models.Base{TenantID: defaultTenant.ID},
		Name: "Contract",
		AttributeSchema: models.JSONB{
			"title":          map[string]interface{}{"type": "string", "required": true},
			"counterparty":   map[string]interface{}{"type": "string", "required": true},
			"amount":         map[string]interface{}{"type": "number"},
			"effective_date": map[string]interface{}{"type": "date"},
		},
	}
	if err := db.Where("tenant_id = ? AND name = ?", defaultTenant.ID, contract.Name).
		FirstOrCreate(contract).Error; err != nil {
		logger.Error("Failed to create document type", "error", err)
		return
	}

	logger.Info("Database seeding completed successfully",
		"tenant_id", defaultTenant.ID,
		"document_type_id", contract.ID)

	if cfg.Auth.Provider != config.AuthProviderJWT {
		return
	}
	tokens, err := jwt.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		logger.Error("Failed to create token manager", "error", err)
		return
	}
	for _, email := range emails {
		token, err := tokens.GenerateToken(email, defaultTenant.ID, cfg.Auth.DevTokenLifetime)
		if err != nil {
			logger.Error("Failed to generate token", "email", email, "error", err)
			continue
		}
		fmt.Printf("%s\t%s\n", email, token)
	}
}

func migrationStatus(db *database.DB, logger *logger.Logger) {
	logger.Info("Checking migration status...")

	for _, model := range models.GetAllModels() {
		stmt := &gorm.Statement{DB: db.DB}
		tableName := fmt.Sprintf("%T", model)
		if err := stmt.Parse(model); err == nil {
			tableName = stmt.Schema.Table
		}

		status := "exists"
		if !db.Migrator().HasTable(model) {
			status = "missing"
		}
		logger.Info("Table status", "table", tableName, "status", status)
	}
}

func createIndexes(db *database.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_versions_tenant_status ON document_versions(tenant_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_signatures_pending ON signatures(version_id) WHERE status = 'pending'",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_signatures_one_pending ON signatures(version_id, user_id) WHERE status = 'pending'",
		"CREATE INDEX IF NOT EXISTS idx_voting_processes_open ON voting_processes(version_id, deadline) WHERE status = 'in_progress'",
		"CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(tenant_id, user_email) WHERE is_read = false",
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
