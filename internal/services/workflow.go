package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signflow/backend/internal/repository"
	"signflow/backend/pkg/models"
)

// CreateWorkflowInput carries the parameters of a create call.
type CreateWorkflowInput struct {
	DocumentID    string
	RequestedBy   string
	Signers       []models.Signer
	Title         string
	Message       *string
	DueDate       *time.Time
	Reminders     *models.ReminderSettings
	SignatureType string
}

// CreateSignatureRequest creates a signing workflow: one record per
// signer, persisted atomically, followed by the audit event, the
// invitation notifications, and the reminder schedule. Validation runs
// before anything is persisted; on a validation failure no record exists.
func (s *SignatureService) CreateSignatureRequest(ctx context.Context, in CreateWorkflowInput) (*models.WorkflowSummary, error) {
	doc, err := s.documents.Get(ctx, in.DocumentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewError(models.KindNotFound, "DocumentNotFound", "document does not exist")
		}
		return nil, models.WrapError(models.KindDependencyFailure, "DocumentLookupFailed", "failed to load document", err)
	}
	if doc.WorkflowState == "draft" {
		return nil, models.NewError(models.KindStateConflict, "DocumentInDraft", "document is still in a draft workflow")
	}
	ok, err := s.documents.HasEditAccess(ctx, in.DocumentID, in.RequestedBy)
	if err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "AccessCheckFailed", "failed to check document access", err)
	}
	if !ok {
		return nil, models.NewError(models.KindPermissionDenied, "NotDocumentOwner", "requester has no access to the document")
	}
	if len(in.Signers) == 0 {
		return nil, models.NewError(models.KindInvalidInput, "NoSigners", "at least one signer is required")
	}

	now := s.now().UTC()
	workflowID := uuid.New().String()
	expiresAt := now.Add(s.cfg.InvitationTTL)
	if in.DueDate != nil {
		expiresAt = in.DueDate.UTC()
	}

	requests, err := s.buildRequests(ctx, in, workflowID, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateWorkflow(ctx, requests); err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "WorkflowCreateFailed", "failed to persist workflow", err)
	}

	desc := fmt.Sprintf("signature workflow created with %d signer(s)", len(requests))
	if err := s.repo.Append(ctx, &models.AuditEvent{
		DocumentID:  in.DocumentID,
		WorkflowID:  workflowID,
		EventType:   models.EventRequestCreated,
		Description: &desc,
		PerformedBy: &in.RequestedBy,
		Metadata: map[string]any{
			"signer_count":   len(requests),
			"signature_type": in.SignatureType,
			"due_date":       in.DueDate,
			"title":          in.Title,
		},
	}); err != nil {
		return nil, models.WrapError(models.KindDependencyFailure, "AuditAppendFailed", "failed to record creation event", err)
	}

	s.sendInvitations(ctx, requests)
	s.scheduleReminders(ctx, in, workflowID, now)

	return &models.WorkflowSummary{
		WorkflowID:  workflowID,
		DocumentID:  in.DocumentID,
		RequestedBy: in.RequestedBy,
		Title:       in.Title,
		Status:      models.WorkflowStatusPending,
		DueDate:     in.DueDate,
		Requests:    requests,
	}, nil
}

// buildRequests resolves signers and assigns orders. Identity resolution
// is best-effort: an unresolved signer stays email-only until first sign.
func (s *SignatureService) buildRequests(ctx context.Context, in CreateWorkflowInput, workflowID string, expiresAt time.Time) ([]*models.SignatureRequest, error) {
	seen := make(map[int]bool, len(in.Signers))
	requests := make([]*models.SignatureRequest, 0, len(in.Signers))
	for i, signer := range in.Signers {
		order := i + 1
		if signer.Order != nil {
			order = *signer.Order
		}
		if seen[order] {
			return nil, models.NewError(models.KindInvalidInput, "DuplicateOrder",
				fmt.Sprintf("signer order %d appears more than once", order))
		}
		seen[order] = true

		var signerID *string
		if signer.UserID != nil {
			if u, err := s.repo.FindByID(ctx, *signer.UserID); err == nil {
				signerID = &u.ID
			}
		} else if u, err := s.repo.FindByEmail(ctx, signer.Email); err == nil {
			signerID = &u.ID
		}

		expiry := expiresAt
		requests = append(requests, &models.SignatureRequest{
			ID:                  uuid.New().String(),
			WorkflowID:          workflowID,
			DocumentID:          in.DocumentID,
			RequestedBy:         in.RequestedBy,
			Title:               in.Title,
			Message:             in.Message,
			SignerID:            signerID,
			SignerEmail:         signer.Email,
			SignerName:          signer.Name,
			SignerRole:          signer.Role,
			Order:               order,
			IsRequired:          signer.IsRequired,
			Status:              models.RequestStatusInvited,
			WorkflowStatus:      models.WorkflowStatusPending,
			InvitationToken:     uuid.New().String(),
			InvitationExpiresAt: &expiry,
			DueDate:             in.DueDate,
		})
	}
	return requests, nil
}

// sendInvitations dispatches one invitation per resolvable signer. Each
// failure is logged and isolated; a notification failure never aborts the
// create.
func (s *SignatureService) sendInvitations(ctx context.Context, requests []*models.SignatureRequest) {
	for _, r := range requests {
		if r.SignerID == nil {
			continue
		}
		_, err := s.notifier.Send(ctx, *r.SignerID, Notification{
			Title: "Signature requested",
			Body:  fmt.Sprintf("You have been asked to sign \"%s\".", r.Title),
			Data: map[string]any{
				"signature_request_id": r.ID,
				"workflow_id":          r.WorkflowID,
				"invitation_token":     r.InvitationToken,
			},
		})
		if err != nil {
			s.logger.Warn("invitation notification failed for request %s: %v", r.ID, err)
		}
		desc := "invitation sent to " + r.SignerEmail
		if err := s.repo.Append(ctx, &models.AuditEvent{
			DocumentID:  r.DocumentID,
			WorkflowID:  r.WorkflowID,
			SignatureID: &r.ID,
			EventType:   models.EventInvitationSent,
			Description: &desc,
			PerformedBy: &r.RequestedBy,
		}); err != nil {
			s.logger.Warn("failed to record invitation event for request %s: %v", r.ID, err)
		}
	}
}

// scheduleReminders records the intended reminder send times; no timer is
// armed here, an external scheduler fires them.
func (s *SignatureService) scheduleReminders(ctx context.Context, in CreateWorkflowInput, workflowID string, now time.Time) {
	if in.Reminders == nil || !in.Reminders.Enabled || in.DueDate == nil {
		return
	}
	for _, days := range in.Reminders.IntervalsDays {
		at := in.DueDate.UTC().Add(-time.Duration(days) * 24 * time.Hour)
		if !at.After(now) {
			continue
		}
		desc := fmt.Sprintf("reminder scheduled %d day(s) before due date", days)
		if err := s.repo.Append(ctx, &models.AuditEvent{
			DocumentID:  in.DocumentID,
			WorkflowID:  workflowID,
			EventType:   models.EventReminderScheduled,
			Description: &desc,
			PerformedBy: &in.RequestedBy,
			Metadata: map[string]any{
				"scheduled_for": at.Format(time.RFC3339),
				"days_before":   days,
			},
		}); err != nil {
			s.logger.Warn("failed to record reminder event for workflow %s: %v", workflowID, err)
		}
	}
}
