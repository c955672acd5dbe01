package docdepot

import (
	"io"

	"github.com/google/uuid"
)

// Pagination defaults for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// IngestRequest carries everything needed to bring one file under
// management. Reader is drained exactly once; the caller keeps ownership
// and closes it afterwards if it is a Closer.
type IngestRequest struct {
	Reader         io.Reader
	FileID         string // optional; generated when empty
	FileName       string
	MimeType       string // optional; defaults to application/octet-stream
	SourceType     SourceType
	SourceLocation string
	Metadata       map[string]interface{}
	Tags           []string
	ParentID       *uuid.UUID
	StorageBackend string // optional; service default when empty

	// DisableDeduplication skips the content-digest lookup so identical
	// bytes are stored again under their own record.
	DisableDeduplication bool
}

// IngestResult reports the document an ingest request resolved to.
// DuplicateDetected is set when deduplication suppressed the request in
// favor of an existing record; that outcome is a success, not an error.
type IngestResult struct {
	Document          *Document `json:"document"`
	DuplicateDetected bool      `json:"duplicate_detected"`
}

// RetrieveResult pairs a document record with its content stream. The
// caller must close Data.
type RetrieveResult struct {
	Document *Document
	Data     io.ReadCloser
}

// UpdateMetadataRequest describes a partial update to one document.
//
// A nil MetadataPatch leaves metadata alone; a non-nil patch is shallow
// merged into the existing map, overwriting colliding keys. A nil Tags
// slice leaves tags alone while an empty non-nil slice clears them. An
// empty ProcessingStatus keeps the current status. At least one field
// must be set or the update fails with ErrNoUpdatableFields.
type UpdateMetadataRequest struct {
	FileID           string
	MetadataPatch    map[string]interface{}
	Tags             []string
	ProcessingStatus ProcessingStatus
}

// ListDocumentsRequest filters and pages a document listing. Zero-valued
// filters match everything; set filters combine conjunctively. Page and
// PageSize are normalized by the service (first page, DefaultPageSize,
// capped at MaxPageSize).
type ListDocumentsRequest struct {
	SourceType       SourceType
	MimeTypeContains string
	NameContains     string
	Page             int
	PageSize         int
}

// DocumentList is one page of listing results plus pagination totals.
type DocumentList struct {
	Documents  []*Document `json:"documents"`
	TotalCount int         `json:"total_count"`
	TotalPages int         `json:"total_pages"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}
