package docdepot

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore stores raw document content addressed by an opaque storage key.
type BlobStore interface {
	// Upload stores the bytes read from reader under key, replacing any
	// previous blob at that key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// Download returns a reader over the blob at key, or ErrBlobNotFound
	// when no blob exists there. The caller must close the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a blob is present at key without reading it.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob at key. Deleting a missing blob is not an
	// error.
	Delete(ctx context.Context, key string) error
}

// DocumentUpdate names the fields ApplyDocumentUpdate may change. Field
// semantics follow UpdateMetadataRequest: nil or empty leaves the stored
// value alone.
type DocumentUpdate struct {
	MetadataPatch    map[string]interface{}
	Tags             []string
	ProcessingStatus ProcessingStatus
}

// SearchParams filters and pages a document search. Zero-valued filters
// match everything. Limit and Offset arrive already normalized.
type SearchParams struct {
	SourceType       SourceType
	MimeTypeContains string
	NameContains     string
	Limit            int
	Offset           int
}

// Repository persists document records and their audit events.
type Repository interface {
	// UpsertDocument inserts doc or, when a document with the same FileID
	// already exists, refreshes its content-derived fields (file name,
	// mime type, size, content hash, storage coordinates, metadata,
	// modified time) in place. The original internal ID, ingest time,
	// creation time, source, tags, processing status and parent are kept.
	// The stored document is returned.
	UpsertDocument(ctx context.Context, doc *Document) (*Document, error)

	// GetDocument returns the document with the given file ID, or
	// ErrDocumentNotFound.
	GetDocument(ctx context.Context, fileID string) (*Document, error)

	// GetDocumentByContentHash returns the most recently ingested document
	// whose content hash equals hash, or ErrDocumentNotFound.
	GetDocumentByContentHash(ctx context.Context, hash string) (*Document, error)

	// ApplyDocumentUpdate merges update into the stored document,
	// refreshes its modified time and returns the result.
	ApplyDocumentUpdate(ctx context.Context, fileID string, update DocumentUpdate) (*Document, error)

	// DeleteDocument permanently removes the document record.
	DeleteDocument(ctx context.Context, fileID string) error

	// SearchDocuments returns one page of matches plus the total match
	// count, ordered newest ingested first with ties broken by internal ID.
	SearchDocuments(ctx context.Context, params SearchParams) ([]*Document, int, error)

	// AppendEvent adds one entry to a document's audit trail.
	AppendEvent(ctx context.Context, event *Event) error

	// ListEventsByDocument returns a document's audit trail ordered
	// newest first with ties broken by internal ID.
	ListEventsByDocument(ctx context.Context, documentID uuid.UUID) ([]*Event, error)

	// DeleteEventsByDocument removes the whole audit trail for a
	// document. Removing an empty trail is not an error.
	DeleteEventsByDocument(ctx context.Context, documentID uuid.UUID) error
}

// Announcer broadcasts audit events to external consumers after they are
// recorded. Announcement failures never fail the operation that produced
// the event.
type Announcer interface {
	Announce(ctx context.Context, event *Event) error
}
