package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"crashfair/internal/config"
	"crashfair/internal/database"
	"crashfair/internal/logger"
)

const migrationsDir = "./internal/database/migrations"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, true)
	command := os.Args[1]

	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal().Msg("Usage: migrate create <migration_name>")
		}
		createMigration(log, os.Args[2])
		return
	}

	db, err := sql.Open("pgx", cfg.DB.URL())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// empty path uses the migrations embedded in the binary
	migrationsPath := config.GetEnv("MIGRATIONS_PATH", "")

	switch command {
	case "up":
		log.Info().Msg("Running migrations...")
		if err := database.RunMigrations(db, migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Msg("Migrations completed successfully")

	case "down":
		log.Info().Msg("Rolling back last migration...")
		if err := database.RollbackMigration(db, migrationsPath); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Msg("Rollback completed successfully")

	case "version":
		version, dirty, err := database.GetMigrationVersion(db, migrationsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get version")
		}
		if dirty {
			log.Warn().Uint("version", version).Msg("Current version is DIRTY, needs manual intervention")
		} else {
			log.Info().Uint("version", version).Msg("Current version")
		}

	default:
		log.Error().Str("command", command).Msg("Unknown command")
		printUsage()
		os.Exit(1)
	}
}

func createMigration(log *logger.Logger, name string) {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations directory")
	}
	nextVersion := len(files) + 1
	name = strings.ReplaceAll(strings.ToLower(name), " ", "_")

	upFile := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.up.sql", nextVersion, name))
	downFile := filepath.Join(migrationsDir, fmt.Sprintf("%06d_%s.down.sql", nextVersion, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0644); err != nil {
		log.Fatal().Err(err).Msg("Failed to create up migration")
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0644); err != nil {
		log.Fatal().Err(err).Msg("Failed to create down migration")
	}

	log.Info().Str("up", upFile).Str("down", downFile).Msg("Created migration files")
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  BLUEPRINT_DB_HOST       Database host (default: localhost)")
	fmt.Println("  BLUEPRINT_DB_PORT       Database port (default: 5432)")
	fmt.Println("  BLUEPRINT_DB_DATABASE   Database name (default: crashdb)")
	fmt.Println("  BLUEPRINT_DB_USERNAME   Database user (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_PASSWORD   Database password (default: postgres)")
	fmt.Println("  BLUEPRINT_DB_SCHEMA     Database schema (default: public)")
	fmt.Println("  MIGRATIONS_PATH         Path to migrations (default: embedded)")
}
