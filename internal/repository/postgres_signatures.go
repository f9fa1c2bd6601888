package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signflow/backend/pkg/models"
)

const requestColumns = `id, workflow_id, document_id, requested_by, title, message,
	signer_id, signer_email, signer_name, signer_role, signer_order,
	is_required, allow_delegation, status, workflow_status,
	invitation_token, invitation_expires_at, due_date,
	signed_at, declined_at, decline_reason,
	signature_image_url, certificate_url,
	ip_address, user_agent, coordinates, location_info,
	fields, created_at, updated_at`

func scanRequest(row pgx.Row) (*models.SignatureRequest, error) {
	var r models.SignatureRequest
	var fields []byte
	err := row.Scan(
		&r.ID, &r.WorkflowID, &r.DocumentID, &r.RequestedBy, &r.Title, &r.Message,
		&r.SignerID, &r.SignerEmail, &r.SignerName, &r.SignerRole, &r.Order,
		&r.IsRequired, &r.AllowDelegation, &r.Status, &r.WorkflowStatus,
		&r.InvitationToken, &r.InvitationExpiresAt, &r.DueDate,
		&r.SignedAt, &r.DeclinedAt, &r.DeclineReason,
		&r.SignatureImageURL, &r.CertificateURL,
		&r.IPAddress, &r.UserAgent, &r.Coordinates, &r.LocationInfo,
		&fields, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields: %w", err)
		}
	}
	return &r, nil
}

// patchJSON serializes only the provided members of a fields patch, so the
// JSONB merge on the server writes nothing else.
func patchJSON(p models.FieldsPatch) ([]byte, error) {
	m := map[string]any{}
	if p.Comments != nil {
		m["comments"] = *p.Comments
	}
	if p.Attachments != nil {
		m["attachments"] = p.Attachments
	}
	if p.Notarization != nil {
		m["notarization"] = p.Notarization
	}
	return json.Marshal(m)
}

// CreateWorkflow inserts all member records of a new workflow in one
// transaction.
func (p *Postgres) CreateWorkflow(ctx context.Context, requests []*models.SignatureRequest) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range requests {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO signature_requests (
				id, workflow_id, document_id, requested_by, title, message,
				signer_id, signer_email, signer_name, signer_role, signer_order,
				is_required, allow_delegation, status, workflow_status,
				invitation_token, invitation_expires_at, due_date, fields
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			r.ID, r.WorkflowID, r.DocumentID, r.RequestedBy, r.Title, r.Message,
			r.SignerID, r.SignerEmail, r.SignerName, r.SignerRole, r.Order,
			r.IsRequired, r.AllowDelegation, r.Status, r.WorkflowStatus,
			r.InvitationToken, r.InvitationExpiresAt, r.DueDate, fields)
		if err != nil {
			return fmt.Errorf("failed to insert signature request %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Get retrieves a single request by id.
func (p *Postgres) Get(ctx context.Context, id string) (*models.SignatureRequest, error) {
	row := p.db.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM signature_requests WHERE id = $1", id)
	r, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRequests retrieves all records of a workflow ordered by signer order.
func (p *Postgres) ListRequests(ctx context.Context, workflowID string) ([]*models.SignatureRequest, error) {
	rows, err := p.db.Query(ctx,
		"SELECT "+requestColumns+" FROM signature_requests WHERE workflow_id = $1 ORDER BY signer_order", workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.SignatureRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// MarkSigned transitions one record INVITED -> SIGNED. The status guard in
// the WHERE clause is what serializes concurrent sign attempts on the same
// record: the losing writer matches no row and gets ErrConflict.
func (p *Postgres) MarkSigned(ctx context.Context, upd SignedUpdate) error {
	patch, err := patchJSON(upd.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields patch: %w", err)
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE signature_requests SET
			signer_id = COALESCE(signer_id, $2),
			status = 'SIGNED',
			signed_at = $3,
			signature_image_url = $4,
			certificate_url = $5,
			ip_address = $6,
			user_agent = $7,
			coordinates = $8,
			location_info = $9,
			fields = fields || $10::jsonb,
			updated_at = now()
		WHERE id = $1 AND status = 'INVITED'`,
		upd.RequestID, upd.BindSignerID, upd.SignedAt,
		upd.SignatureImageURL, upd.CertificateURL,
		upd.IPAddress, upd.UserAgent, upd.Coordinates, upd.LocationInfo,
		patch)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CancelWorkflow bulk-declines every record of a workflow. The signed
// guard must hold against an in-flight sign, so the transaction first
// locks every row of the workflow with FOR UPDATE: a concurrent
// MarkSigned either commits before the locks are granted (and the guard
// sees SIGNED) or waits until the cancel commits (and finds the record
// no longer INVITED).
func (p *Postgres) CancelWorkflow(ctx context.Context, workflowID, reason string, declinedAt time.Time) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		"SELECT status FROM signature_requests WHERE workflow_id = $1 FOR UPDATE", workflowID)
	if err != nil {
		return err
	}
	matched := 0
	signed := false
	for rows.Next() {
		var status models.RequestStatus
		if err := rows.Scan(&status); err != nil {
			rows.Close()
			return err
		}
		matched++
		if status == models.RequestStatusSigned {
			signed = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if matched == 0 || signed {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
		UPDATE signature_requests SET
			status = 'DECLINED',
			workflow_status = 'CANCELLED',
			declined_at = $3,
			decline_reason = $2,
			updated_at = now()
		WHERE workflow_id = $1`,
		workflowID, reason, declinedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetWorkflowStatus bulk-updates the derived aggregate status on every
// record of the workflow. COMPLETED and CANCELLED are terminal: a stale
// recomputation racing a completed sibling cannot downgrade them.
func (p *Postgres) SetWorkflowStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) error {
	_, err := p.db.Exec(ctx, `
		UPDATE signature_requests SET workflow_status = $2, updated_at = now()
		WHERE workflow_id = $1
		  AND workflow_status NOT IN ('COMPLETED', 'CANCELLED')`,
		workflowID, status)
	return err
}

// ClaimCompletion atomically claims the completion transition. The insert
// conflicts for every caller but the first, so exactly one caller per
// workflow observes true.
func (p *Postgres) ClaimCompletion(ctx context.Context, workflowID string) (bool, error) {
	tag, err := p.db.Exec(ctx,
		"INSERT INTO workflow_completions (workflow_id) VALUES ($1) ON CONFLICT DO NOTHING",
		workflowID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MergeFields patch-merges fields into one record's extension bag.
func (p *Postgres) MergeFields(ctx context.Context, requestID string, patch models.FieldsPatch) error {
	data, err := patchJSON(patch)
	if err != nil {
		return fmt.Errorf("failed to encode fields patch: %w", err)
	}
	tag, err := p.db.Exec(ctx,
		"UPDATE signature_requests SET fields = fields || $2::jsonb, updated_at = now() WHERE id = $1",
		requestID, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
