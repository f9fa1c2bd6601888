package models

import "time"

// Attachment is supporting material a signer attaches while signing.
type Attachment struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// NotarizationInfo is the notarial metadata attached by a notary.
type NotarizationInfo struct {
	NotaryID    string    `json:"notary_id"`
	Commission  string    `json:"commission"`
	SealURL     string    `json:"seal_url"`
	Witnesses   []string  `json:"witnesses,omitempty"`
	NotarizedAt time.Time `json:"notarized_at"`
}

// RequestFields is the typed extension record of a signature request.
// It is stored as a single JSONB column and only ever mutated through
// ApplyPatch, which writes provided members and preserves the rest.
type RequestFields struct {
	Comments     *string           `json:"comments,omitempty"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	Notarization *NotarizationInfo `json:"notarization,omitempty"`
}

// FieldsPatch carries the members of a RequestFields update. Nil members
// are not written; an omitted key never clears an existing value.
type FieldsPatch struct {
	Comments     *string
	Attachments  []Attachment
	Notarization *NotarizationInfo
}

// ApplyPatch merges p into f additively.
func (f *RequestFields) ApplyPatch(p FieldsPatch) {
	if p.Comments != nil {
		f.Comments = p.Comments
	}
	if p.Attachments != nil {
		f.Attachments = p.Attachments
	}
	if p.Notarization != nil {
		f.Notarization = p.Notarization
	}
}
