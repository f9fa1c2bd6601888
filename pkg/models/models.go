// Package models defines the domain models for the signature workflow engine.
package models

import (
	"time"
)

// RequestStatus is the per-signer state of a signature request.
type RequestStatus string

const (
	RequestStatusInvited  RequestStatus = "INVITED"
	RequestStatusSigned   RequestStatus = "SIGNED"
	RequestStatusDeclined RequestStatus = "DECLINED"
)

// WorkflowStatus is the aggregate state of a signing workflow, always
// derived from its member records and never authoritative on its own.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "PENDING"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowStatusCompleted  WorkflowStatus = "COMPLETED"
	WorkflowStatusCancelled  WorkflowStatus = "CANCELLED"
)

// EventType categorizes audit events.
type EventType string

const (
	EventRequestCreated     EventType = "REQUEST_CREATED"
	EventInvitationSent     EventType = "INVITATION_SENT"
	EventSigned             EventType = "SIGNED"
	EventSignatureValidated EventType = "SIGNATURE_VALIDATED"
	EventNotarized          EventType = "NOTARIZED"
	EventCancelled          EventType = "CANCELLED"
	EventWorkflowCompleted  EventType = "WORKFLOW_COMPLETED"
	EventReminderScheduled  EventType = "REMINDER_SCHEDULED"
)

// SignatureRequest is the per-signer unit of state within a workflow.
// A record never transitions out of SIGNED or DECLINED, and SignerID is
// immutable once bound.
type SignatureRequest struct {
	ID                  string         `json:"id"`
	WorkflowID          string         `json:"workflow_id"`
	DocumentID          string         `json:"document_id"`
	RequestedBy         string         `json:"requested_by"`
	Title               string         `json:"title"`
	Message             *string        `json:"message,omitempty"`
	SignerID            *string        `json:"signer_id,omitempty"`
	SignerEmail         string         `json:"signer_email"`
	SignerName          string         `json:"signer_name"`
	SignerRole          *string        `json:"signer_role,omitempty"`
	Order               int            `json:"order"`
	IsRequired          bool           `json:"is_required"`
	AllowDelegation     bool           `json:"allow_delegation"`
	Status              RequestStatus  `json:"status"`
	WorkflowStatus      WorkflowStatus `json:"workflow_status"`
	InvitationToken     string         `json:"invitation_token"`
	InvitationExpiresAt *time.Time     `json:"invitation_expires_at,omitempty"`
	DueDate             *time.Time     `json:"due_date,omitempty"`
	SignedAt            *time.Time     `json:"signed_at,omitempty"`
	DeclinedAt          *time.Time     `json:"declined_at,omitempty"`
	DeclineReason       *string        `json:"decline_reason,omitempty"`
	SignatureImageURL   *string        `json:"signature_image_url,omitempty"`
	CertificateURL      *string        `json:"signature_certificate_url,omitempty"`
	IPAddress           *string        `json:"ip_address,omitempty"`
	UserAgent           *string        `json:"user_agent,omitempty"`
	Coordinates         *string        `json:"coordinates,omitempty"`
	LocationInfo        *string        `json:"location_info,omitempty"`
	Fields              RequestFields  `json:"fields"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// AuditEvent is a single immutable entry in a workflow's compliance ledger.
type AuditEvent struct {
	ID               string         `json:"id"`
	Seq              int64          `json:"seq"`
	DocumentID       string         `json:"document_id"`
	WorkflowID       string         `json:"workflow_id"`
	SignatureID      *string        `json:"signature_id,omitempty"`
	EventType        EventType      `json:"event_type"`
	Description      *string        `json:"description,omitempty"`
	PerformedBy      *string        `json:"performed_by,omitempty"`
	PerformedByEmail *string        `json:"performed_by_email,omitempty"`
	PerformedByName  *string        `json:"performed_by_name,omitempty"`
	IPAddress        *string        `json:"ip_address,omitempty"`
	UserAgent        *string        `json:"user_agent,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Certificate is the compliance artifact bound to one signature. It is
// stored as a blob next to the signature image, not as a relational row.
type Certificate struct {
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	SerialNumber  string    `json:"serial_number"`
	Algorithm     string    `json:"algorithm"`
	DocumentHash  string    `json:"document_hash"`
	SignatureHash string    `json:"signature_hash"`
	Timestamp     time.Time `json:"timestamp"`
}

// User is the narrow identity-resolution view of an account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Document is the narrow view of the external document subsystem the
// engine needs: existence, ownership, workflow state, and the extracted
// text used for the document hash.
type Document struct {
	ID            string  `json:"id"`
	OwnerID       string  `json:"owner_id"`
	Title         string  `json:"title"`
	WorkflowState string  `json:"workflow_state"`
	ExtractedText *string `json:"extracted_text,omitempty"`
}

// Signer is one designated signer in a create-workflow call.
type Signer struct {
	UserID     *string `json:"user_id,omitempty"`
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Role       *string `json:"role,omitempty"`
	IsRequired bool    `json:"is_required"`
	Order      *int    `json:"order,omitempty"`
}

// ReminderSettings controls reminder scheduling for a workflow. Intervals
// are counted back from the due date in days; the engine only records the
// intended send times, an external scheduler fires them.
type ReminderSettings struct {
	Enabled       bool  `json:"enabled"`
	IntervalsDays []int `json:"intervals_days"`
}

// SignatureData is the signer-supplied payload of a sign call.
type SignatureData struct {
	Type        string  `json:"type"`
	Signature   string  `json:"signature"`
	Timestamp   any     `json:"timestamp"`
	IPAddress   string  `json:"ip_address"`
	UserAgent   string  `json:"user_agent"`
	Coordinates *string `json:"coordinates,omitempty"`
	Location    *string `json:"location,omitempty"`
}

// WorkflowSummary is the aggregate view returned by create and read calls.
type WorkflowSummary struct {
	WorkflowID  string              `json:"workflow_id"`
	DocumentID  string              `json:"document_id"`
	RequestedBy string              `json:"requested_by"`
	Title       string              `json:"title"`
	Status      WorkflowStatus      `json:"status"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
	Requests    []*SignatureRequest `json:"requests"`
}

// ValidationResult is the outcome of re-verifying a stored signature.
type ValidationResult struct {
	IsValid        bool         `json:"is_valid"`
	Certificate    *Certificate `json:"certificate,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	IntegrityCheck bool         `json:"integrity_check"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
}

// AuditTrailEntry is the display projection of one audit event.
type AuditTrailEntry struct {
	ID          string         `json:"id"`
	EventType   EventType      `json:"event_type"`
	Description *string        `json:"description,omitempty"`
	Actor       string         `json:"actor"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditTrail is the compliance report derived from a workflow's ledger.
type AuditTrail struct {
	WorkflowID          string             `json:"workflow_id"`
	DocumentID          string             `json:"document_id"`
	Entries             []*AuditTrailEntry `json:"entries"`
	TimestampVerified   bool               `json:"timestamp_verified"`
	LegalValidity       bool               `json:"legal_validity"`
	TechnicalCompliance bool               `json:"technical_compliance"`
	AuditTrailComplete  bool               `json:"audit_trail_complete"`
	GeneratedAt         time.Time          `json:"generated_at"`
}
