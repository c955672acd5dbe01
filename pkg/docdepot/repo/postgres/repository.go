// Package postgres provides a PostgreSQL repository implementation
// backed by pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

// DBTX matches both *pgxpool.Pool and pgx.Tx, so the repository can run
// over a pool or inside a caller-managed transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is a PostgreSQL implementation of docdepot.Repository.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository over an existing connection,
// pool or transaction.
func New(db DBTX) docdepot.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository over a pgx pool.
func NewWithPool(pool *pgxpool.Pool) docdepot.Repository {
	return &Repository{db: pool}
}

const documentColumns = `id, file_id, file_name, mime_type, size_bytes,
	source_type, source_location, content_hash, storage_path, storage_backend,
	metadata, tags, processing_status, created_at, modified_at, ingested_at, parent_id`

func (r *Repository) UpsertDocument(ctx context.Context, doc *docdepot.Document) (*docdepot.Document, error) {
	metadata, err := marshalJSONMap(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO documents (
			id, file_id, file_name, mime_type, size_bytes,
			source_type, source_location, content_hash, storage_path, storage_backend,
			metadata, tags, processing_status, created_at, modified_at, ingested_at, parent_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (file_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			content_hash = EXCLUDED.content_hash,
			storage_path = EXCLUDED.storage_path,
			storage_backend = EXCLUDED.storage_backend,
			metadata = EXCLUDED.metadata,
			modified_at = EXCLUDED.modified_at
		RETURNING %s`, documentColumns)

	row := r.db.QueryRow(ctx, query,
		doc.ID, doc.FileID, doc.FileName, doc.MimeType, doc.SizeBytes,
		string(doc.SourceType), doc.SourceLocation, doc.ContentHash, doc.StoragePath, doc.StorageBackend,
		metadata, tags, string(doc.ProcessingStatus), doc.CreatedAt, doc.ModifiedAt, doc.IngestedAt, doc.ParentID)

	stored, err := scanDocument(row)
	if err != nil {
		return nil, handlePostgresError(err, "upsert document")
	}
	return stored, nil
}

func (r *Repository) GetDocument(ctx context.Context, fileID string) (*docdepot.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE file_id = $1`, documentColumns)

	doc, err := scanDocument(r.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docdepot.ErrDocumentNotFound
		}
		return nil, handlePostgresError(err, "get document")
	}
	return doc, nil
}

func (r *Repository) GetDocumentByContentHash(ctx context.Context, hash string) (*docdepot.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE content_hash = $1
		ORDER BY ingested_at DESC, id DESC
		LIMIT 1`, documentColumns)

	doc, err := scanDocument(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docdepot.ErrDocumentNotFound
		}
		return nil, handlePostgresError(err, "get document by content hash")
	}
	return doc, nil
}

func (r *Repository) ApplyDocumentUpdate(ctx context.Context, fileID string, update docdepot.DocumentUpdate) (*docdepot.Document, error) {
	var patch []byte
	if update.MetadataPatch != nil {
		var err error
		patch, err = json.Marshal(update.MetadataPatch)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata patch: %w", err)
		}
	}

	// A NULL patch leaves metadata alone (NULL || jsonb is NULL, so the
	// COALESCE falls back to the stored value); NULL tags and an empty
	// status keep theirs the same way.
	query := fmt.Sprintf(`
		UPDATE documents SET
			metadata = COALESCE(metadata || $2::jsonb, metadata),
			tags = COALESCE($3::text[], tags),
			processing_status = COALESCE(NULLIF($4::text, ''), processing_status),
			modified_at = $5
		WHERE file_id = $1
		RETURNING %s`, documentColumns)

	row := r.db.QueryRow(ctx, query,
		fileID, patch, update.Tags, string(update.ProcessingStatus), time.Now().UTC())

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docdepot.ErrDocumentNotFound
		}
		return nil, handlePostgresError(err, "apply document update")
	}
	return doc, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, fileID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE file_id = $1`, fileID)
	if err != nil {
		return handlePostgresError(err, "delete document")
	}
	if tag.RowsAffected() == 0 {
		return docdepot.ErrDocumentNotFound
	}
	return nil
}

func (r *Repository) SearchDocuments(ctx context.Context, params docdepot.SearchParams) ([]*docdepot.Document, int, error) {
	where, args := buildSearchWhere(params)

	query := fmt.Sprintf(`
		SELECT %s FROM documents %s
		ORDER BY ingested_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, documentColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, append(append([]any{}, args...), params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, handlePostgresError(err, "search documents")
	}
	defer rows.Close()

	var docs []*docdepot.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, handlePostgresError(err, "search documents")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, handlePostgresError(err, "search documents")
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM documents %s`, where)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, handlePostgresError(err, "count documents")
	}

	return docs, total, nil
}

func (r *Repository) AppendEvent(ctx context.Context, event *docdepot.Event) error {
	eventData, err := marshalJSONMap(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO events (id, document_id, event_type, event_timestamp, event_data)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.DocumentID, string(event.EventType), event.EventTimestamp, eventData)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return docdepot.ErrDocumentNotFound
		}
		return handlePostgresError(err, "append event")
	}
	return nil
}

func (r *Repository) ListEventsByDocument(ctx context.Context, documentID uuid.UUID) ([]*docdepot.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, event_type, event_timestamp, event_data
		FROM events
		WHERE document_id = $1
		ORDER BY event_timestamp DESC, id DESC`, documentID)
	if err != nil {
		return nil, handlePostgresError(err, "list events")
	}
	defer rows.Close()

	events := make([]*docdepot.Event, 0)
	for rows.Next() {
		var event docdepot.Event
		var eventData []byte
		if err := rows.Scan(&event.ID, &event.DocumentID, &event.EventType, &event.EventTimestamp, &eventData); err != nil {
			return nil, handlePostgresError(err, "list events")
		}
		event.EventData = decodeJSONMap(eventData)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(err, "list events")
	}
	return events, nil
}

func (r *Repository) DeleteEventsByDocument(ctx context.Context, documentID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM events WHERE document_id = $1`, documentID); err != nil {
		return handlePostgresError(err, "delete events")
	}
	return nil
}

// buildSearchWhere assembles the WHERE clause for document search with
// numbered placeholders. Unset filters add no condition.
func buildSearchWhere(params docdepot.SearchParams) (string, []any) {
	var conditions []string
	var args []any
	arg := 1

	if params.SourceType != "" {
		conditions = append(conditions, fmt.Sprintf("source_type = $%d", arg))
		args = append(args, string(params.SourceType))
		arg++
	}
	if params.MimeTypeContains != "" {
		conditions = append(conditions, fmt.Sprintf("mime_type ILIKE $%d", arg))
		args = append(args, "%"+params.MimeTypeContains+"%")
		arg++
	}
	if params.NameContains != "" {
		conditions = append(conditions, fmt.Sprintf("file_name ILIKE $%d", arg))
		args = append(args, "%"+params.NameContains+"%")
		arg++
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanDocument(row pgx.Row) (*docdepot.Document, error) {
	var doc docdepot.Document
	var metadata []byte
	err := row.Scan(
		&doc.ID, &doc.FileID, &doc.FileName, &doc.MimeType, &doc.SizeBytes,
		&doc.SourceType, &doc.SourceLocation, &doc.ContentHash, &doc.StoragePath, &doc.StorageBackend,
		&metadata, &doc.Tags, &doc.ProcessingStatus, &doc.CreatedAt, &doc.ModifiedAt, &doc.IngestedAt, &doc.ParentID,
	)
	if err != nil {
		return nil, err
	}
	doc.Metadata = decodeJSONMap(metadata)
	return &doc, nil
}

// decodeJSONMap decodes a JSONB column. A payload that does not parse is
// surfaced under a "_raw" key instead of failing the whole read.
func decodeJSONMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("undecodable JSON payload in repository row", "error", err)
		return map[string]interface{}{"_raw": string(raw)}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func marshalJSONMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// handlePostgresError converts common Postgres error codes into messages
// that say what actually went wrong.
func handlePostgresError(err error, operation string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: duplicate key violation: %s", operation, pgErr.Detail)
		case "23503":
			return fmt.Errorf("%s: referenced row does not exist: %s", operation, pgErr.Detail)
		case "23502":
			return fmt.Errorf("%s: required column %s missing", operation, pgErr.ColumnName)
		case "42P01":
			return fmt.Errorf("%s: relation does not exist, have migrations run: %s", operation, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}
