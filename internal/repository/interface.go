package repository

import (
	"context"
	"errors"
	"time"

	"signflow/backend/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row,
// meaning another writer got there first or the state check failed.
var ErrConflict = errors.New("conditional update matched no row")

// SignedUpdate carries the mutation applied when a request is signed.
// BindSignerID is only written if the record has no signer bound yet.
type SignedUpdate struct {
	RequestID         string
	BindSignerID      string
	SignedAt          time.Time
	SignatureImageURL string
	CertificateURL    string
	IPAddress         string
	UserAgent         string
	Coordinates       *string
	LocationInfo      *string
	Fields            models.FieldsPatch
}

// SignatureStore persists signature requests. Mutations follow a
// single-writer discipline per record: every state transition is a
// conditional update that fails with ErrConflict when the precondition
// no longer holds.
type SignatureStore interface {
	// CreateWorkflow inserts all member records of a new workflow in one
	// transaction. Either every record is persisted or none is.
	CreateWorkflow(ctx context.Context, requests []*models.SignatureRequest) error
	// Get retrieves a single request by id.
	Get(ctx context.Context, id string) (*models.SignatureRequest, error)
	// ListRequests retrieves all records of a workflow ordered by signer order.
	ListRequests(ctx context.Context, workflowID string) ([]*models.SignatureRequest, error)
	// MarkSigned transitions one record INVITED -> SIGNED. ErrConflict if
	// the record is no longer INVITED.
	MarkSigned(ctx context.Context, upd SignedUpdate) error
	// CancelWorkflow transitions every non-terminal record of the workflow
	// to DECLINED and the aggregate status to CANCELLED.
	CancelWorkflow(ctx context.Context, workflowID, reason string, declinedAt time.Time) error
	// SetWorkflowStatus bulk-updates the derived aggregate status on every
	// record of the workflow.
	SetWorkflowStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) error
	// ClaimCompletion atomically claims the completion transition for a
	// workflow. It returns true for exactly one caller per workflow.
	ClaimCompletion(ctx context.Context, workflowID string) (bool, error)
	// MergeFields patch-merges fields into one record's extension bag.
	MergeFields(ctx context.Context, requestID string, patch models.FieldsPatch) error
}

// AuditStore is the append-only compliance ledger. There are deliberately
// no update or delete methods.
type AuditStore interface {
	// Append persists one event, assigning id, sequence and creation time.
	Append(ctx context.Context, event *models.AuditEvent) error
	// ListEvents returns a workflow's events ordered by creation time
	// ascending.
	ListEvents(ctx context.Context, workflowID string) ([]*models.AuditEvent, error)
}

// UserStore resolves signer identities.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// DocumentStore is the narrow slice of the external document subsystem
// the engine depends on.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	// HasEditAccess reports whether userID owns the document or holds a
	// share grant on it.
	HasEditAccess(ctx context.Context, documentID, userID string) (bool, error)
	// SetWorkflowState flips the document's workflow state. Callers treat
	// failures here as non-fatal.
	SetWorkflowState(ctx context.Context, documentID, state string) error
}

// Repository bundles the stores backed by one database.
type Repository interface {
	SignatureStore
	AuditStore
	UserStore
	Ping(ctx context.Context) error
}
