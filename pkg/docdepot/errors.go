package docdepot

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the service and its collaborators.
var (
	// ErrDocumentNotFound is returned when no document exists for the
	// given file ID.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrBlobMissing is returned when a document record exists but its
	// blob is gone from the storage backend.
	ErrBlobMissing = errors.New("blob missing for document")

	// ErrBlobNotFound is returned by blob stores when no blob exists at
	// the requested key.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrNoUpdatableFields is returned when a metadata update names
	// nothing to change.
	ErrNoUpdatableFields = errors.New("no updatable fields provided")

	// ErrInvalidSource is returned when an ingest request carries an
	// unrecognized source type.
	ErrInvalidSource = errors.New("invalid source type")

	// ErrMissingReader is returned when an ingest request has no content.
	ErrMissingReader = errors.New("content reader is required")

	// ErrMissingFileName is returned when an ingest request has no file name.
	ErrMissingFileName = errors.New("file name is required")

	// ErrStorageBackendNotFound is returned when a document references a
	// backend that is not registered with the service.
	ErrStorageBackendNotFound = errors.New("storage backend not found")
)

// DocumentError provides context about which document and operation an
// error relates to.
type DocumentError struct {
	FileID string
	Op     string
	Err    error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %s: %v", e.FileID, e.Op, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// StorageError provides context about a failed blob store operation.
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RepositoryError provides context about a failed repository operation.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// PartialError reports a multi-step operation that stopped partway. It
// names the steps that completed before the failure so operators can tell
// what state was left behind.
type PartialError struct {
	Op        string
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: step %s failed after [%s]: %v",
		e.Op, e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
