package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"buddy/backend/internal/graph"
	"buddy/backend/internal/transcript"
	"buddy/backend/pkg/config"
	"buddy/backend/pkg/logger"
)

const schemaVersion = "knowledge_schema_v1"

func main() {
	force := flag.Bool("force", false, "Force migration even if already applied")
	skipPostgres := flag.Bool("skip-postgres", false, "Only migrate the Neo4j schema")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting schema migration...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	if !*skipPostgres {
		if err := migrateTranscripts(ctx, cfg.DatabaseURL); err != nil {
			log.Fatal("Transcript migration failed", zap.Error(err))
		}
		log.Info("Transcript table ready")
	}

	// Check if migration already applied
	if !*force {
		applied, err := checkMigrationApplied(ctx, driver, cfg.Neo4jDatabase)
		if err != nil {
			log.Fatal("Failed to check migration status", zap.Error(err))
		}
		if applied {
			log.Info("Graph migration already applied. Use -force to reapply.")
			os.Exit(0)
		}
	}

	if err := graph.NewRepository(driver, cfg.Neo4jDatabase).EnsureSchema(ctx); err != nil {
		log.Fatal("Graph migration failed", zap.Error(err))
	}

	// Mark migration as applied
	if err := markMigrationApplied(ctx, driver, cfg.Neo4jDatabase); err != nil {
		log.Warn("Failed to mark migration as applied", zap.Error(err))
	}

	log.Info("Migration completed successfully!")
}

func migrateTranscripts(ctx context.Context, databaseURL string) error {
	pool, err := transcript.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return transcript.NewStore(pool).Migrate(ctx)
}

func checkMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext, database string) (bool, error) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: database})
	defer session.Close(ctx)

	query := `
		MATCH (m:Migration {version: $version})
		RETURN m.applied_at as applied_at
	`

	result, err := session.Run(ctx, query, map[string]any{"version": schemaVersion})
	if err != nil {
		return false, err
	}

	return result.Next(ctx), nil
}

func markMigrationApplied(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	query := `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = 'Id uniqueness per knowledge label and User.user_id index'
	`

	result, err := session.Run(ctx, query, map[string]any{"version": schemaVersion})
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
