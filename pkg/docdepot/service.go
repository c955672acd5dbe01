package docdepot

import "context"

// Service is the main orchestrator for document ingestion, retrieval,
// metadata maintenance and the audit trail.
type Service interface {
	// Ingest brings one file under management: it digests the content,
	// suppresses duplicates unless asked not to, writes the blob, upserts
	// the document record and appends an "uploaded" audit event.
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)

	// Retrieve returns the document record together with its content
	// stream and appends a best-effort "downloaded" audit event.
	Retrieve(ctx context.Context, fileID string) (*RetrieveResult, error)

	// GetDocument returns the document record without touching content.
	GetDocument(ctx context.Context, fileID string) (*Document, error)

	// UpdateMetadata applies a partial update and appends an "updated"
	// audit event naming the changed fields.
	UpdateMetadata(ctx context.Context, req UpdateMetadataRequest) (*Document, error)

	// Delete permanently removes a document's blob, audit trail and
	// record, in that order.
	Delete(ctx context.Context, fileID string) error

	// ListEvents returns a document's audit trail, newest first.
	ListEvents(ctx context.Context, fileID string) ([]*Event, error)

	// List returns a filtered, paginated document listing.
	List(ctx context.Context, req ListDocumentsRequest) (*DocumentList, error)
}
