package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"signflow/backend/internal/config"
	"signflow/backend/internal/logging"
	"signflow/backend/internal/repository"
	"signflow/backend/pkg/models"
)

// Seeds a local database with demo users, a demo document, and one
// two-signer workflow so the API can be exercised right away.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to DB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	logger.Info("Schema applied")

	owner := uuid.New().String()
	alice := uuid.New().String()
	bob := uuid.New().String()
	for _, u := range [][3]string{
		{owner, "owner@example.com", "Olivia Owner"},
		{alice, "alice@example.com", "Alice Fields"},
		{bob, "bob@example.com", "Bob Rivera"},
	} {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, email, first_name, last_name)
			VALUES ($1, $2, split_part($3, ' ', 1), split_part($3, ' ', 2))
			ON CONFLICT (email) DO NOTHING`, u[0], u[1], u[2])
		if err != nil {
			log.Fatalf("Failed to seed user %s: %v", u[1], err)
		}
	}
	logger.Info("Seeded demo users")

	docID := uuid.New().String()
	_, err = pool.Exec(ctx, `
		INSERT INTO documents (id, owner_id, title, workflow_state, extracted_text)
		VALUES ($1, $2, 'Master Services Agreement', 'none', 'This agreement is made between the parties...')`,
		docID, owner)
	if err != nil {
		log.Fatalf("Failed to seed document: %v", err)
	}
	logger.Info("Seeded demo document %s", docID)

	store := repository.NewPostgres(pool, logger)
	workflowID := uuid.New().String()
	requests := []*models.SignatureRequest{
		demoRequest(workflowID, docID, owner, alice, "alice@example.com", "Alice Fields", 1),
		demoRequest(workflowID, docID, owner, bob, "bob@example.com", "Bob Rivera", 2),
	}
	if err := store.CreateWorkflow(ctx, requests); err != nil {
		log.Fatalf("Failed to seed workflow: %v", err)
	}

	logger.Info("Seeded demo workflow %s", workflowID)
	for _, r := range requests {
		logger.Info("  request %s -> %s", r.ID, r.SignerEmail)
	}
}

func demoRequest(workflowID, docID, requestedBy, signerID, email, name string, order int) *models.SignatureRequest {
	return &models.SignatureRequest{
		ID:              uuid.New().String(),
		WorkflowID:      workflowID,
		DocumentID:      docID,
		RequestedBy:     requestedBy,
		Title:           "Master Services Agreement",
		SignerID:        &signerID,
		SignerEmail:     email,
		SignerName:      name,
		Order:           order,
		IsRequired:      true,
		Status:          models.RequestStatusInvited,
		WorkflowStatus:  models.WorkflowStatusPending,
		InvitationToken: uuid.New().String(),
	}
}
