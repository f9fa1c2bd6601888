package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"signflow/backend/pkg/models"
)

// Append persists one audit event. The id is assigned here, the sequence
// and creation time come from the database so ordering follows a single
// clock. Events are never updated or deleted.
func (p *Postgres) Append(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}
	err := p.db.QueryRow(ctx, `
		INSERT INTO audit_events (
			id, document_id, workflow_id, signature_id, event_type, description,
			performed_by, performed_by_email, performed_by_name,
			ip_address, user_agent, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING seq, created_at`,
		event.ID, event.DocumentID, event.WorkflowID, event.SignatureID,
		event.EventType, event.Description,
		event.PerformedBy, event.PerformedByEmail, event.PerformedByName,
		event.IPAddress, event.UserAgent, metadata).
		Scan(&event.Seq, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListEvents returns a workflow's events ordered by creation time
// ascending, sequence as tiebreaker.
func (p *Postgres) ListEvents(ctx context.Context, workflowID string) ([]*models.AuditEvent, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, seq, document_id, workflow_id, signature_id, event_type, description,
			performed_by, performed_by_email, performed_by_name,
			ip_address, user_agent, metadata, created_at
		FROM audit_events
		WHERE workflow_id = $1
		ORDER BY created_at, seq`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var metadata []byte
		err := rows.Scan(
			&e.ID, &e.Seq, &e.DocumentID, &e.WorkflowID, &e.SignatureID,
			&e.EventType, &e.Description,
			&e.PerformedBy, &e.PerformedByEmail, &e.PerformedByName,
			&e.IPAddress, &e.UserAgent, &metadata, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
