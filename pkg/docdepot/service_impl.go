package docdepot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docdepot/docdepot/pkg/docdepot/storagekey"
)

// Dedup cache defaults, overridable with WithDedupCache.
const (
	defaultDedupCacheSize = 1024
	defaultDedupCacheTTL  = 5 * time.Minute
)

// service implements the Service interface.
type service struct {
	repository     Repository
	blobStores     map[string]BlobStore
	defaultBackend string
	announcer      Announcer
	keyGenerator   storagekey.Generator
	dedup          *dedupIndex
	dedupSize      int
	dedupTTL       time.Duration
	logger         *slog.Logger
}

// Option is a functional option for configuring the service.
type Option func(*service)

// WithRepository sets the document repository (required).
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore registers a blob storage backend under a name.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.blobStores[name] = store
	}
}

// WithDefaultBackend selects the backend used when a request does not
// name one. When exactly one backend is registered it is the default.
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithAnnouncer sets the event announcer. Defaults to a NoopAnnouncer.
func WithAnnouncer(announcer Announcer) Option {
	return func(s *service) {
		s.announcer = announcer
	}
}

// WithKeyGenerator overrides how blob storage keys are generated.
func WithKeyGenerator(generator storagekey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = generator
	}
}

// WithDedupCache sizes the in-memory digest cache. A size of zero or less
// disables the cache; digest lookups then always hit the repository.
func WithDedupCache(size int, ttl time.Duration) Option {
	return func(s *service) {
		s.dedupSize = size
		s.dedupTTL = ttl
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service with the given options.
func New(options ...Option) (Service, error) {
	svc := &service{
		blobStores: make(map[string]BlobStore),
		dedupSize:  defaultDedupCacheSize,
		dedupTTL:   defaultDedupCacheTTL,
	}
	for _, option := range options {
		option(svc)
	}

	if svc.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if svc.defaultBackend == "" && len(svc.blobStores) == 1 {
		for name := range svc.blobStores {
			svc.defaultBackend = name
		}
	}
	if svc.keyGenerator == nil {
		svc.keyGenerator = storagekey.NewShardedGenerator()
	}
	if svc.announcer == nil {
		svc.announcer = NewNoopAnnouncer()
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	svc.dedup = newDedupIndex(svc.repository, svc.dedupSize, svc.dedupTTL)

	return svc, nil
}

func (s *service) getBackend(name string) (BlobStore, error) {
	backend, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return backend, nil
}

// announce broadcasts an already recorded event.
func (s *service) announce(ctx context.Context, event *Event) {
	if err := s.announcer.Announce(ctx, event); err != nil {
		// Log error but don't fail the operation
		s.logger.Warn("event announcement failed",
			"event_type", event.EventType,
			"document_id", event.DocumentID,
			"error", err)
	}
}

func (s *service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Reader == nil {
		return nil, &DocumentError{FileID: req.FileID, Op: "ingest", Err: ErrMissingReader}
	}
	if req.FileName == "" {
		return nil, &DocumentError{FileID: req.FileID, Op: "ingest", Err: ErrMissingFileName}
	}
	if !req.SourceType.Valid() {
		return nil, &DocumentError{FileID: req.FileID, Op: "ingest", Err: fmt.Errorf("%w: %q", ErrInvalidSource, req.SourceType)}
	}

	sp, err := newSpool(req.Reader)
	if err != nil {
		return nil, &DocumentError{FileID: req.FileID, Op: "ingest", Err: err}
	}
	defer sp.Cleanup()

	if !req.DisableDeduplication {
		existing, err := s.dedup.Lookup(ctx, sp.Digest())
		if err != nil {
			return nil, &DocumentError{FileID: req.FileID, Op: "ingest", Err: err}
		}
		if existing != nil {
			s.logger.Info("duplicate content suppressed",
				"file_id", existing.FileID,
				"content_hash", sp.Digest())
			return &IngestResult{Document: existing, DuplicateDetected: true}, nil
		}
	}

	fileID := req.FileID
	if fileID == "" {
		fileID = uuid.New().String()
	}
	backendName := req.StorageBackend
	if backendName == "" {
		backendName = s.defaultBackend
	}
	backend, err := s.getBackend(backendName)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "ingest", Err: err}
	}

	key := s.keyGenerator.GenerateKey(string(req.SourceType), fileID, req.FileName)
	content, err := sp.Reader()
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "ingest", Err: err}
	}
	if err := backend.Upload(ctx, key, content); err != nil {
		return nil, &StorageError{Backend: backendName, Key: key, Op: "upload", Err: err}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	now := time.Now().UTC()
	doc := &Document{
		ID:               uuid.New(),
		FileID:           fileID,
		FileName:         req.FileName,
		MimeType:         mimeType,
		SizeBytes:        sp.Size(),
		SourceType:       req.SourceType,
		SourceLocation:   req.SourceLocation,
		ContentHash:      sp.Digest(),
		StoragePath:      key,
		StorageBackend:   backendName,
		Metadata:         req.Metadata,
		Tags:             req.Tags,
		ProcessingStatus: StatusRaw,
		CreatedAt:        now,
		ModifiedAt:       now,
		IngestedAt:       now,
		ParentID:         req.ParentID,
	}

	stored, err := s.repository.UpsertDocument(ctx, doc)
	if err != nil {
		// Nothing references the blob yet; try not to leak it.
		if delErr := backend.Delete(ctx, key); delErr != nil {
			s.logger.Error("orphaned blob cleanup failed",
				"backend", backendName,
				"key", key,
				"error", delErr)
		}
		perr := &PartialError{Op: "ingest", Completed: []string{"content_digest", "blob_write"}, Failed: "document_upsert", Err: err}
		s.logger.Error("ingest stopped partway",
			"file_id", fileID,
			"completed_steps", perr.Completed,
			"failed_step", perr.Failed,
			"error", err)
		return nil, perr
	}
	s.dedup.Remember(stored.ContentHash, stored.FileID)

	event := &Event{
		ID:             uuid.New(),
		DocumentID:     stored.ID,
		EventType:      EventTypeUploaded,
		EventTimestamp: time.Now().UTC(),
		EventData: map[string]interface{}{
			"file_name":    stored.FileName,
			"content_hash": stored.ContentHash,
			"size_bytes":   stored.SizeBytes,
			"storage_path": stored.StoragePath,
		},
	}
	if err := s.repository.AppendEvent(ctx, event); err != nil {
		perr := &PartialError{Op: "ingest", Completed: []string{"content_digest", "blob_write", "document_upsert"}, Failed: "event_append", Err: err}
		s.logger.Error("ingest stopped partway",
			"file_id", fileID,
			"completed_steps", perr.Completed,
			"failed_step", perr.Failed,
			"error", err)
		return nil, perr
	}
	s.announce(ctx, event)

	return &IngestResult{Document: stored, DuplicateDetected: false}, nil
}

func (s *service) Retrieve(ctx context.Context, fileID string) (*RetrieveResult, error) {
	doc, err := s.repository.GetDocument(ctx, fileID)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "retrieve", Err: err}
	}
	backend, err := s.getBackend(doc.StorageBackend)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "retrieve", Err: err}
	}

	data, err := backend.Download(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &DocumentError{FileID: fileID, Op: "retrieve", Err: ErrBlobMissing}
		}
		return nil, &StorageError{Backend: doc.StorageBackend, Key: doc.StoragePath, Op: "download", Err: err}
	}

	event := &Event{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		EventType:      EventTypeDownloaded,
		EventTimestamp: time.Now().UTC(),
	}
	if err := s.repository.AppendEvent(ctx, event); err != nil {
		// Reads stay available even when the audit append fails.
		s.logger.Warn("download event not recorded",
			"file_id", fileID,
			"error", err)
	} else {
		s.announce(ctx, event)
	}

	return &RetrieveResult{Document: doc, Data: data}, nil
}

func (s *service) GetDocument(ctx context.Context, fileID string) (*Document, error) {
	doc, err := s.repository.GetDocument(ctx, fileID)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "get", Err: err}
	}
	return doc, nil
}

func (s *service) UpdateMetadata(ctx context.Context, req UpdateMetadataRequest) (*Document, error) {
	var changed []string
	if req.MetadataPatch != nil {
		changed = append(changed, "metadata")
	}
	if req.Tags != nil {
		changed = append(changed, "tags")
	}
	if req.ProcessingStatus != "" {
		changed = append(changed, "processing_status")
	}
	if len(changed) == 0 {
		return nil, &DocumentError{FileID: req.FileID, Op: "update_metadata", Err: ErrNoUpdatableFields}
	}

	doc, err := s.repository.ApplyDocumentUpdate(ctx, req.FileID, DocumentUpdate{
		MetadataPatch:    req.MetadataPatch,
		Tags:             req.Tags,
		ProcessingStatus: req.ProcessingStatus,
	})
	if err != nil {
		return nil, &DocumentError{FileID: req.FileID, Op: "update_metadata", Err: err}
	}

	event := &Event{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		EventType:      EventTypeUpdated,
		EventTimestamp: time.Now().UTC(),
		EventData:      map[string]interface{}{"fields": changed},
	}
	if err := s.repository.AppendEvent(ctx, event); err != nil {
		perr := &PartialError{Op: "update_metadata", Completed: []string{"document_update"}, Failed: "event_append", Err: err}
		s.logger.Error("metadata update stopped partway",
			"file_id", req.FileID,
			"completed_steps", perr.Completed,
			"failed_step", perr.Failed,
			"error", err)
		return nil, perr
	}
	s.announce(ctx, event)

	return doc, nil
}

func (s *service) Delete(ctx context.Context, fileID string) error {
	doc, err := s.repository.GetDocument(ctx, fileID)
	if err != nil {
		return &DocumentError{FileID: fileID, Op: "delete", Err: err}
	}
	backend, err := s.getBackend(doc.StorageBackend)
	if err != nil {
		return &DocumentError{FileID: fileID, Op: "delete", Err: err}
	}

	// Blob first: a record without a blob is detectable, a blob without a
	// record is invisible garbage.
	exists, err := backend.Exists(ctx, doc.StoragePath)
	if err != nil {
		return &StorageError{Backend: doc.StorageBackend, Key: doc.StoragePath, Op: "exists", Err: err}
	}
	if exists {
		if err := backend.Delete(ctx, doc.StoragePath); err != nil {
			return &StorageError{Backend: doc.StorageBackend, Key: doc.StoragePath, Op: "delete", Err: err}
		}
	}

	if err := s.repository.DeleteEventsByDocument(ctx, doc.ID); err != nil {
		perr := &PartialError{Op: "delete", Completed: []string{"blob_delete"}, Failed: "event_delete", Err: err}
		s.logger.Error("delete stopped partway",
			"file_id", fileID,
			"completed_steps", perr.Completed,
			"failed_step", perr.Failed,
			"error", err)
		return perr
	}
	if err := s.repository.DeleteDocument(ctx, fileID); err != nil {
		perr := &PartialError{Op: "delete", Completed: []string{"blob_delete", "event_delete"}, Failed: "document_delete", Err: err}
		s.logger.Error("delete stopped partway",
			"file_id", fileID,
			"completed_steps", perr.Completed,
			"failed_step", perr.Failed,
			"error", err)
		return perr
	}
	s.dedup.Forget(doc.ContentHash)

	// The audit trail is gone with the document, so the deleted event is
	// announced to external consumers only.
	event := &Event{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		EventType:      EventTypeDeleted,
		EventTimestamp: time.Now().UTC(),
		EventData:      map[string]interface{}{"file_id": fileID},
	}
	s.announce(ctx, event)

	return nil
}

func (s *service) ListEvents(ctx context.Context, fileID string) ([]*Event, error) {
	doc, err := s.repository.GetDocument(ctx, fileID)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "list_events", Err: err}
	}
	events, err := s.repository.ListEventsByDocument(ctx, doc.ID)
	if err != nil {
		return nil, &DocumentError{FileID: fileID, Op: "list_events", Err: err}
	}
	return events, nil
}

func (s *service) List(ctx context.Context, req ListDocumentsRequest) (*DocumentList, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	docs, total, err := s.repository.SearchDocuments(ctx, SearchParams{
		SourceType:       req.SourceType,
		MimeTypeContains: req.MimeTypeContains,
		NameContains:     req.NameContains,
		Limit:            pageSize,
		Offset:           (page - 1) * pageSize,
	})
	if err != nil {
		return nil, &RepositoryError{Op: "search_documents", Err: err}
	}
	if docs == nil {
		docs = []*Document{}
	}

	return &DocumentList{
		Documents:  docs,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
