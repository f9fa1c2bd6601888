package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signflow/backend/pkg/models"
)

// PostgresDocuments is the engine's view of the external document
// subsystem, backed by the same database.
type PostgresDocuments struct {
	db *pgxpool.Pool
}

// NewPostgresDocuments creates a new PostgresDocuments store.
func NewPostgresDocuments(db *pgxpool.Pool) *PostgresDocuments {
	return &PostgresDocuments{db: db}
}

// Get retrieves a document by id.
func (p *PostgresDocuments) Get(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	err := p.db.QueryRow(ctx,
		"SELECT id, owner_id, title, workflow_state, extracted_text FROM documents WHERE id = $1", id).
		Scan(&d.ID, &d.OwnerID, &d.Title, &d.WorkflowState, &d.ExtractedText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// HasEditAccess reports whether userID owns documentID or holds a share on it.
func (p *PostgresDocuments) HasEditAccess(ctx context.Context, documentID, userID string) (bool, error) {
	var ok bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents WHERE id = $1 AND owner_id = $2
			UNION ALL
			SELECT 1 FROM document_shares WHERE document_id = $1 AND user_id = $2
		)`, documentID, userID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SetWorkflowState flips a document's workflow state.
func (p *PostgresDocuments) SetWorkflowState(ctx context.Context, documentID, state string) error {
	tag, err := p.db.Exec(ctx,
		"UPDATE documents SET workflow_state = $2 WHERE id = $1", documentID, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
