package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdepot/docdepot/pkg/docdepot"
	"github.com/docdepot/docdepot/pkg/docdepot/repo/postgres"
)

// setupPostgres migrates a throwaway schema on the database named by
// DOCDEPOT_TEST_DATABASE_URL and drops it afterwards. Tests are skipped
// when the variable is unset.
func setupPostgres(t *testing.T) (docdepot.Repository, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("DOCDEPOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DOCDEPOT_TEST_DATABASE_URL not set; skipping database integration test")
	}
	schema := fmt.Sprintf("docdepot_test_%d", time.Now().UnixNano())
	ctx := context.Background()

	require.NoError(t, postgres.EnsureSchema(ctx, dsn, schema))
	require.NoError(t, postgres.MigrateUp(dsn, schema))

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	})

	return postgres.NewWithPool(pool), pool
}

func testDocument(fileID string) *docdepot.Document {
	now := time.Now().UTC()
	return &docdepot.Document{
		ID:               uuid.New(),
		FileID:           fileID,
		FileName:         fileID + ".txt",
		MimeType:         "text/plain",
		SizeBytes:        21,
		SourceType:       docdepot.SourceTypeUpload,
		SourceLocation:   "local",
		ContentHash:      "hash-" + fileID,
		StoragePath:      "manual-upload/ab/" + fileID,
		StorageBackend:   "memory",
		Metadata:         map[string]interface{}{"origin": "integration"},
		Tags:             []string{"it"},
		ProcessingStatus: docdepot.StatusRaw,
		CreatedAt:        now,
		ModifiedAt:       now,
		IngestedAt:       now,
	}
}

func TestRepositoryIntegration(t *testing.T) {
	repo, pool := setupPostgres(t)
	ctx := context.Background()

	t.Run("upsert and get", func(t *testing.T) {
		doc := testDocument("pg-1")

		stored, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, stored.ID)
		assert.Equal(t, doc.FileID, stored.FileID)
		assert.Equal(t, doc.Metadata, stored.Metadata)
		assert.Equal(t, doc.Tags, stored.Tags)

		got, err := repo.GetDocument(ctx, "pg-1")
		require.NoError(t, err)
		assert.Equal(t, doc.ContentHash, got.ContentHash)
		assert.Equal(t, docdepot.StatusRaw, got.ProcessingStatus)
		assert.WithinDuration(t, doc.IngestedAt, got.IngestedAt, time.Second)
	})

	t.Run("get not found", func(t *testing.T) {
		_, err := repo.GetDocument(ctx, "pg-absent")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})

	t.Run("upsert keeps first-recorded fields", func(t *testing.T) {
		first := testDocument("pg-replay")
		first.SourceType = docdepot.SourceTypeDrive
		first.Tags = []string{"original"}
		stored, err := repo.UpsertDocument(ctx, first)
		require.NoError(t, err)

		second := testDocument("pg-replay")
		second.FileName = "renamed.txt"
		second.ContentHash = "hash-replayed"
		second.SourceType = docdepot.SourceTypeOther
		second.Tags = []string{"replaced"}

		replayed, err := repo.UpsertDocument(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, stored.ID, replayed.ID)
		assert.Equal(t, "renamed.txt", replayed.FileName)
		assert.Equal(t, "hash-replayed", replayed.ContentHash)
		assert.Equal(t, docdepot.SourceTypeDrive, replayed.SourceType)
		assert.Equal(t, []string{"original"}, replayed.Tags)
		assert.WithinDuration(t, stored.IngestedAt, replayed.IngestedAt, time.Millisecond)
	})

	t.Run("lookup by content hash prefers newest", func(t *testing.T) {
		older := testDocument("pg-hash-old")
		older.ContentHash = "hash-shared"
		older.IngestedAt = time.Now().UTC().Add(-time.Hour)
		newer := testDocument("pg-hash-new")
		newer.ContentHash = "hash-shared"

		_, err := repo.UpsertDocument(ctx, older)
		require.NoError(t, err)
		_, err = repo.UpsertDocument(ctx, newer)
		require.NoError(t, err)

		got, err := repo.GetDocumentByContentHash(ctx, "hash-shared")
		require.NoError(t, err)
		assert.Equal(t, "pg-hash-new", got.FileID)

		_, err = repo.GetDocumentByContentHash(ctx, "hash-unseen")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})

	t.Run("metadata patch merges", func(t *testing.T) {
		doc := testDocument("pg-patch")
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		updated, err := repo.ApplyDocumentUpdate(ctx, "pg-patch", docdepot.DocumentUpdate{
			MetadataPatch:    map[string]interface{}{"reviewed": "yes"},
			ProcessingStatus: docdepot.StatusProcessed,
		})
		require.NoError(t, err)
		assert.Equal(t, "integration", updated.Metadata["origin"])
		assert.Equal(t, "yes", updated.Metadata["reviewed"])
		assert.Equal(t, docdepot.StatusProcessed, updated.ProcessingStatus)
		assert.Equal(t, []string{"it"}, updated.Tags)

		// Tags replace wholesale when provided.
		updated, err = repo.ApplyDocumentUpdate(ctx, "pg-patch", docdepot.DocumentUpdate{
			Tags: []string{"a", "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, updated.Tags)

		_, err = repo.ApplyDocumentUpdate(ctx, "pg-nobody", docdepot.DocumentUpdate{
			ProcessingStatus: docdepot.StatusFailed,
		})
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})

	t.Run("corrupted metadata degrades instead of failing", func(t *testing.T) {
		doc := testDocument("pg-corrupt")
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		// JSONB holding a scalar cannot unmarshal into an object.
		_, err = pool.Exec(ctx, `UPDATE documents SET metadata = '123'::jsonb WHERE file_id = $1`, "pg-corrupt")
		require.NoError(t, err)

		got, err := repo.GetDocument(ctx, "pg-corrupt")
		require.NoError(t, err)
		assert.Equal(t, "123", got.Metadata["_raw"])
	})

	t.Run("search filters and pages", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			doc := testDocument(fmt.Sprintf("pg-search-%d", i))
			doc.FileName = fmt.Sprintf("Search-Report-%d.pdf", i)
			doc.MimeType = "application/pdf"
			doc.SourceType = docdepot.SourceTypeDrive
			doc.IngestedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
			_, err := repo.UpsertDocument(ctx, doc)
			require.NoError(t, err)
		}

		docs, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{
			SourceType:   docdepot.SourceTypeDrive,
			NameContains: "search-report",
			Limit:        2,
			Offset:       0,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, docs, 2)
		assert.Equal(t, "pg-search-2", docs[0].FileID)

		docs, total, err = repo.SearchDocuments(ctx, docdepot.SearchParams{
			SourceType:   docdepot.SourceTypeDrive,
			NameContains: "search-report",
			Limit:        2,
			Offset:       2,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, docs, 1)
		assert.Equal(t, "pg-search-0", docs[0].FileID)
	})

	t.Run("event trail", func(t *testing.T) {
		doc := testDocument("pg-events")
		stored, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		for i, eventType := range []docdepot.EventType{docdepot.EventTypeUploaded, docdepot.EventTypeDownloaded} {
			err := repo.AppendEvent(ctx, &docdepot.Event{
				ID:             uuid.New(),
				DocumentID:     stored.ID,
				EventType:      eventType,
				EventTimestamp: time.Now().UTC().Add(time.Duration(i) * time.Second),
				EventData:      map[string]interface{}{"seq": fmt.Sprintf("%d", i)},
			})
			require.NoError(t, err)
		}

		events, err := repo.ListEventsByDocument(ctx, stored.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, docdepot.EventTypeDownloaded, events[0].EventType)
		assert.Equal(t, docdepot.EventTypeUploaded, events[1].EventType)

		// Appending to a document that does not exist trips the FK.
		err = repo.AppendEvent(ctx, &docdepot.Event{
			ID:             uuid.New(),
			DocumentID:     uuid.New(),
			EventType:      docdepot.EventTypeUploaded,
			EventTimestamp: time.Now().UTC(),
		})
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)

		require.NoError(t, repo.DeleteEventsByDocument(ctx, stored.ID))
		events, err = repo.ListEventsByDocument(ctx, stored.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("delete", func(t *testing.T) {
		doc := testDocument("pg-delete")
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteDocument(ctx, "pg-delete"))

		_, err = repo.GetDocument(ctx, "pg-delete")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)

		err = repo.DeleteDocument(ctx, "pg-delete")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})
}
