// Package memory provides an in-memory repository implementation,
// intended for tests and development.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

// Repository is an in-memory implementation of docdepot.Repository.
// It is safe for concurrent use. Every read and write goes through a
// copy so callers can never mutate stored state through returned values.
type Repository struct {
	mu        sync.RWMutex
	documents map[string]*docdepot.Document   // file ID -> document
	idToFile  map[uuid.UUID]string            // internal ID -> file ID
	events    map[uuid.UUID][]*docdepot.Event // internal ID -> audit trail
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{
		documents: make(map[string]*docdepot.Document),
		idToFile:  make(map[uuid.UUID]string),
		events:    make(map[uuid.UUID][]*docdepot.Event),
	}
}

func (r *Repository) UpsertDocument(ctx context.Context, doc *docdepot.Document) (*docdepot.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.documents[doc.FileID]
	if !ok {
		stored := copyDocument(doc)
		r.documents[doc.FileID] = stored
		r.idToFile[stored.ID] = stored.FileID
		return copyDocument(stored), nil
	}

	// Refresh the content-derived fields. Identity, ingest and creation
	// times, source, tags, status and parent stay as first recorded.
	existing.FileName = doc.FileName
	existing.MimeType = doc.MimeType
	existing.SizeBytes = doc.SizeBytes
	existing.ContentHash = doc.ContentHash
	existing.StoragePath = doc.StoragePath
	existing.StorageBackend = doc.StorageBackend
	existing.Metadata = copyMetadata(doc.Metadata)
	existing.ModifiedAt = doc.ModifiedAt

	return copyDocument(existing), nil
}

func (r *Repository) GetDocument(ctx context.Context, fileID string) (*docdepot.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[fileID]
	if !ok {
		return nil, docdepot.ErrDocumentNotFound
	}
	return copyDocument(doc), nil
}

func (r *Repository) GetDocumentByContentHash(ctx context.Context, hash string) (*docdepot.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *docdepot.Document
	for _, doc := range r.documents {
		if doc.ContentHash != hash {
			continue
		}
		if newest == nil || laterDocument(doc, newest) {
			newest = doc
		}
	}
	if newest == nil {
		return nil, docdepot.ErrDocumentNotFound
	}
	return copyDocument(newest), nil
}

func (r *Repository) ApplyDocumentUpdate(ctx context.Context, fileID string, update docdepot.DocumentUpdate) (*docdepot.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[fileID]
	if !ok {
		return nil, docdepot.ErrDocumentNotFound
	}

	if update.MetadataPatch != nil {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{}, len(update.MetadataPatch))
		}
		for k, v := range update.MetadataPatch {
			doc.Metadata[k] = v
		}
	}
	if update.Tags != nil {
		doc.Tags = copyTags(update.Tags)
	}
	if update.ProcessingStatus != "" {
		doc.ProcessingStatus = update.ProcessingStatus
	}
	doc.ModifiedAt = time.Now().UTC()

	return copyDocument(doc), nil
}

func (r *Repository) DeleteDocument(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[fileID]
	if !ok {
		return docdepot.ErrDocumentNotFound
	}
	delete(r.documents, fileID)
	delete(r.idToFile, doc.ID)
	return nil
}

func (r *Repository) SearchDocuments(ctx context.Context, params docdepot.SearchParams) ([]*docdepot.Document, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*docdepot.Document
	for _, doc := range r.documents {
		if params.SourceType != "" && doc.SourceType != params.SourceType {
			continue
		}
		if params.MimeTypeContains != "" && !containsFold(doc.MimeType, params.MimeTypeContains) {
			continue
		}
		if params.NameContains != "" && !containsFold(doc.FileName, params.NameContains) {
			continue
		}
		matches = append(matches, doc)
	}
	sort.Slice(matches, func(i, j int) bool {
		return laterDocument(matches[i], matches[j])
	})

	total := len(matches)
	start := params.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}

	page := make([]*docdepot.Document, 0, end-start)
	for _, doc := range matches[start:end] {
		page = append(page, copyDocument(doc))
	}
	return page, total, nil
}

func (r *Repository) AppendEvent(ctx context.Context, event *docdepot.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.idToFile[event.DocumentID]; !ok {
		return docdepot.ErrDocumentNotFound
	}
	r.events[event.DocumentID] = append(r.events[event.DocumentID], copyEvent(event))
	return nil
}

func (r *Repository) ListEventsByDocument(ctx context.Context, documentID uuid.UUID) ([]*docdepot.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trail := r.events[documentID]
	events := make([]*docdepot.Event, 0, len(trail))
	for _, event := range trail {
		events = append(events, copyEvent(event))
	}
	sort.Slice(events, func(i, j int) bool {
		return laterEvent(events[i], events[j])
	})
	return events, nil
}

func (r *Repository) DeleteEventsByDocument(ctx context.Context, documentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, documentID)
	return nil
}

func copyDocument(doc *docdepot.Document) *docdepot.Document {
	docCopy := *doc
	docCopy.Metadata = copyMetadata(doc.Metadata)
	docCopy.Tags = copyTags(doc.Tags)
	if doc.ParentID != nil {
		parent := *doc.ParentID
		docCopy.ParentID = &parent
	}
	return &docCopy
}

func copyEvent(event *docdepot.Event) *docdepot.Event {
	eventCopy := *event
	eventCopy.EventData = copyMetadata(event.EventData)
	return &eventCopy
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	return append([]string(nil), tags...)
}

// laterDocument orders documents newest ingested first, ties broken by
// internal ID so pagination is stable.
func laterDocument(a, b *docdepot.Document) bool {
	if !a.IngestedAt.Equal(b.IngestedAt) {
		return a.IngestedAt.After(b.IngestedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

// laterEvent orders events newest first, ties broken by internal ID.
func laterEvent(a, b *docdepot.Event) bool {
	if !a.EventTimestamp.Equal(b.EventTimestamp) {
		return a.EventTimestamp.After(b.EventTimestamp)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

// containsFold mirrors case-insensitive substring matching (ILIKE) used
// by the Postgres repository.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
