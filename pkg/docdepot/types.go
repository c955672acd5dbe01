package docdepot

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies where a document originated before ingestion.
type SourceType string

const (
	SourceTypeDrive  SourceType = "drive-origin"
	SourceTypeUpload SourceType = "manual-upload"
	SourceTypeOther  SourceType = "other"
)

// Valid reports whether s is one of the recognized source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeDrive, SourceTypeUpload, SourceTypeOther:
		return true
	}
	return false
}

// ProcessingStatus tracks how far a document has moved through downstream
// processing. New documents always start as StatusRaw; any transition
// between statuses is allowed.
type ProcessingStatus string

const (
	StatusRaw        ProcessingStatus = "raw"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

// EventType classifies entries in a document's audit trail.
type EventType string

const (
	EventTypeUploaded   EventType = "uploaded"
	EventTypeDownloaded EventType = "downloaded"
	EventTypeUpdated    EventType = "updated"
	EventTypeDeleted    EventType = "deleted"
)

// Document is the authoritative metadata record for one ingested file.
//
// FileID is the caller-facing identity; ID is the internal identity that
// events reference. ContentHash is the lowercase hex SHA-256 of the blob
// and drives duplicate suppression. IngestedAt is set once when the record
// is first created and survives re-ingestion under the same FileID.
type Document struct {
	ID               uuid.UUID              `json:"id"`
	FileID           string                 `json:"file_id"`
	FileName         string                 `json:"file_name"`
	MimeType         string                 `json:"mime_type"`
	SizeBytes        int64                  `json:"size_bytes"`
	SourceType       SourceType             `json:"source_type"`
	SourceLocation   string                 `json:"source_location,omitempty"`
	ContentHash      string                 `json:"content_hash"`
	StoragePath      string                 `json:"storage_path"`
	StorageBackend   string                 `json:"storage_backend"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	ProcessingStatus ProcessingStatus       `json:"processing_status"`
	CreatedAt        time.Time              `json:"created_at"`
	ModifiedAt       time.Time              `json:"modified_at"`
	IngestedAt       time.Time              `json:"ingested_at"`
	ParentID         *uuid.UUID             `json:"parent_id,omitempty"`
}

// Event is one append-only entry in a document's audit trail. Events are
// never updated or individually deleted; the whole trail is removed only
// when its document is deleted.
type Event struct {
	ID             uuid.UUID              `json:"id"`
	DocumentID     uuid.UUID              `json:"document_id"`
	EventType      EventType              `json:"event_type"`
	EventTimestamp time.Time              `json:"event_timestamp"`
	EventData      map[string]interface{} `json:"event_data,omitempty"`
}
