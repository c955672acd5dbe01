// Package docdepot provides a reusable library for document ingestion and
// metadata management with pluggable repository and blob storage backends.
//
// It exposes a single Service interface that orchestrates content-addressed
// ingestion with duplicate suppression, blob upload/download, metadata
// maintenance, and an append-only audit trail per document. Implementations
// of repositories (memory, Postgres) and blob stores (memory, filesystem,
// S3) are provided under subpackages.
//
// Identity
//
// Documents carry two identities. FileID is the caller-facing one: it is
// either declared at ingestion or generated, it is unique, and re-ingesting
// under the same FileID refreshes the existing record in place. ID is the
// internal row identity that audit events reference; it never changes for
// the lifetime of a record.
package docdepot
