package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdepot/docdepot/pkg/docdepot"
	"github.com/docdepot/docdepot/pkg/docdepot/repo/memory"
)

func baseDoc(fileID string, ingestedAt time.Time) *docdepot.Document {
	return &docdepot.Document{
		ID:               uuid.New(),
		FileID:           fileID,
		FileName:         fileID + ".txt",
		MimeType:         "text/plain",
		SizeBytes:        42,
		SourceType:       docdepot.SourceTypeUpload,
		ContentHash:      "hash-" + fileID,
		StoragePath:      "path/" + fileID,
		StorageBackend:   "memory",
		ProcessingStatus: docdepot.StatusRaw,
		CreatedAt:        ingestedAt,
		ModifiedAt:       ingestedAt,
		IngestedAt:       ingestedAt,
	}
}

func TestUpsertDocument(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("insert", func(t *testing.T) {
		repo := memory.New()
		doc := baseDoc("new-doc", now)
		doc.Tags = []string{"first"}
		doc.Metadata = map[string]interface{}{"origin": "test"}

		stored, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, stored.ID)
		assert.Equal(t, doc.FileID, stored.FileID)
		assert.Equal(t, doc.Tags, stored.Tags)
		assert.Equal(t, doc.Metadata, stored.Metadata)
	})

	t.Run("update refreshes content fields only", func(t *testing.T) {
		repo := memory.New()

		first := baseDoc("same-id", now)
		first.SourceType = docdepot.SourceTypeDrive
		first.SourceLocation = "drive://a"
		first.Tags = []string{"original"}
		first.ProcessingStatus = docdepot.StatusProcessed
		_, err := repo.UpsertDocument(ctx, first)
		require.NoError(t, err)

		second := baseDoc("same-id", now.Add(time.Hour))
		second.FileName = "renamed.txt"
		second.MimeType = "application/pdf"
		second.SizeBytes = 99
		second.ContentHash = "hash-updated"
		second.StoragePath = "path/updated"
		second.SourceType = docdepot.SourceTypeOther
		second.SourceLocation = "elsewhere"
		second.Tags = []string{"replacement"}
		second.ProcessingStatus = docdepot.StatusRaw
		second.Metadata = map[string]interface{}{"revision": "two"}

		stored, err := repo.UpsertDocument(ctx, second)
		require.NoError(t, err)

		// Content-derived fields track the new upload.
		assert.Equal(t, "renamed.txt", stored.FileName)
		assert.Equal(t, "application/pdf", stored.MimeType)
		assert.Equal(t, int64(99), stored.SizeBytes)
		assert.Equal(t, "hash-updated", stored.ContentHash)
		assert.Equal(t, "path/updated", stored.StoragePath)
		assert.Equal(t, map[string]interface{}{"revision": "two"}, stored.Metadata)
		assert.Equal(t, second.ModifiedAt, stored.ModifiedAt)

		// Everything first recorded stays put.
		assert.Equal(t, first.ID, stored.ID)
		assert.Equal(t, first.IngestedAt, stored.IngestedAt)
		assert.Equal(t, first.CreatedAt, stored.CreatedAt)
		assert.Equal(t, docdepot.SourceTypeDrive, stored.SourceType)
		assert.Equal(t, "drive://a", stored.SourceLocation)
		assert.Equal(t, []string{"original"}, stored.Tags)
		assert.Equal(t, docdepot.StatusProcessed, stored.ProcessingStatus)
	})
}

func TestGetDocument(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	doc := baseDoc("lookup-1", time.Now().UTC())
	doc.Metadata = map[string]interface{}{"mutable": "no"}
	_, err := repo.UpsertDocument(ctx, doc)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		got, err := repo.GetDocument(ctx, "lookup-1")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetDocument(ctx, "nope")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		got, err := repo.GetDocument(ctx, "lookup-1")
		require.NoError(t, err)
		got.Metadata["mutable"] = "yes"
		got.FileName = "scribbled.txt"

		fresh, err := repo.GetDocument(ctx, "lookup-1")
		require.NoError(t, err)
		assert.Equal(t, "no", fresh.Metadata["mutable"])
		assert.Equal(t, "lookup-1.txt", fresh.FileName)
	})
}

func TestGetDocumentByContentHash(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("newest wins", func(t *testing.T) {
		repo := memory.New()

		older := baseDoc("older", now.Add(-time.Hour))
		older.ContentHash = "shared-hash"
		newer := baseDoc("newer", now)
		newer.ContentHash = "shared-hash"

		_, err := repo.UpsertDocument(ctx, older)
		require.NoError(t, err)
		_, err = repo.UpsertDocument(ctx, newer)
		require.NoError(t, err)

		got, err := repo.GetDocumentByContentHash(ctx, "shared-hash")
		require.NoError(t, err)
		assert.Equal(t, "newer", got.FileID)
	})

	t.Run("timestamp ties broken by ID", func(t *testing.T) {
		repo := memory.New()

		low := baseDoc("low", now)
		low.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
		low.ContentHash = "tied-hash"
		high := baseDoc("high", now)
		high.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
		high.ContentHash = "tied-hash"

		_, err := repo.UpsertDocument(ctx, low)
		require.NoError(t, err)
		_, err = repo.UpsertDocument(ctx, high)
		require.NoError(t, err)

		got, err := repo.GetDocumentByContentHash(ctx, "tied-hash")
		require.NoError(t, err)
		assert.Equal(t, "high", got.FileID)
	})

	t.Run("not found", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.GetDocumentByContentHash(ctx, "no-such-hash")
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})
}

func TestApplyDocumentUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("patch merges into empty metadata", func(t *testing.T) {
		repo := memory.New()
		doc := baseDoc("patch-1", time.Now().UTC())
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		updated, err := repo.ApplyDocumentUpdate(ctx, "patch-1", docdepot.DocumentUpdate{
			MetadataPatch: map[string]interface{}{"added": "value"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"added": "value"}, updated.Metadata)
		assert.True(t, updated.ModifiedAt.After(doc.ModifiedAt))
	})

	t.Run("zero values leave fields alone", func(t *testing.T) {
		repo := memory.New()
		doc := baseDoc("patch-2", time.Now().UTC())
		doc.Tags = []string{"kept"}
		doc.ProcessingStatus = docdepot.StatusProcessing
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)

		updated, err := repo.ApplyDocumentUpdate(ctx, "patch-2", docdepot.DocumentUpdate{
			MetadataPatch: map[string]interface{}{"only": "metadata"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, updated.Tags)
		assert.Equal(t, docdepot.StatusProcessing, updated.ProcessingStatus)
	})

	t.Run("not found", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.ApplyDocumentUpdate(ctx, "missing", docdepot.DocumentUpdate{
			ProcessingStatus: docdepot.StatusFailed,
		})
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	doc := baseDoc("to-delete", time.Now().UTC())
	_, err := repo.UpsertDocument(ctx, doc)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteDocument(ctx, "to-delete"))

	_, err = repo.GetDocument(ctx, "to-delete")
	assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)

	err = repo.DeleteDocument(ctx, "to-delete")
	assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)

	// Events can no longer be appended for the dropped document.
	err = repo.AppendEvent(ctx, &docdepot.Event{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		EventType:      docdepot.EventTypeUpdated,
		EventTimestamp: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
}

func TestSearchDocuments(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	seed := func(t *testing.T) *memory.Repository {
		t.Helper()
		repo := memory.New()
		docs := []*docdepot.Document{
			baseDoc("d1", now.Add(1*time.Minute)),
			baseDoc("d2", now.Add(2*time.Minute)),
			baseDoc("d3", now.Add(3*time.Minute)),
		}
		docs[0].SourceType = docdepot.SourceTypeDrive
		docs[0].FileName = "Annual-Report.pdf"
		docs[0].MimeType = "application/pdf"
		docs[1].SourceType = docdepot.SourceTypeUpload
		docs[1].FileName = "notes.txt"
		docs[2].SourceType = docdepot.SourceTypeDrive
		docs[2].FileName = "summary-report.txt"
		for _, d := range docs {
			_, err := repo.UpsertDocument(ctx, d)
			require.NoError(t, err)
		}
		return repo
	}

	t.Run("no filters returns all newest first", func(t *testing.T) {
		repo := seed(t)

		docs, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, docs, 3)
		assert.Equal(t, "d3", docs[0].FileID)
		assert.Equal(t, "d2", docs[1].FileID)
		assert.Equal(t, "d1", docs[2].FileID)
	})

	t.Run("source type filter", func(t *testing.T) {
		repo := seed(t)

		docs, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{
			SourceType: docdepot.SourceTypeDrive,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, docs, 2)
	})

	t.Run("name filter is case-insensitive", func(t *testing.T) {
		repo := seed(t)

		docs, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{
			NameContains: "REPORT",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		for _, d := range docs {
			assert.Contains(t, []string{"d1", "d3"}, d.FileID)
		}
	})

	t.Run("mime filter", func(t *testing.T) {
		repo := seed(t)

		_, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{
			MimeTypeContains: "pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("offset and limit", func(t *testing.T) {
		repo := seed(t)

		docs, total, err := repo.SearchDocuments(ctx, docdepot.SearchParams{Limit: 2, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, docs, 2)
		assert.Equal(t, "d3", docs[0].FileID)

		docs, total, err = repo.SearchDocuments(ctx, docdepot.SearchParams{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, docs, 1)
		assert.Equal(t, "d1", docs[0].FileID)

		// Offset past the end yields an empty page, not an error.
		docs, total, err = repo.SearchDocuments(ctx, docdepot.SearchParams{Limit: 2, Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, docs)
	})

	t.Run("equal timestamps order by ID", func(t *testing.T) {
		repo := memory.New()

		low := baseDoc("tie-low", now)
		low.ID = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
		high := baseDoc("tie-high", now)
		high.ID = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
		_, err := repo.UpsertDocument(ctx, low)
		require.NoError(t, err)
		_, err = repo.UpsertDocument(ctx, high)
		require.NoError(t, err)

		docs, _, err := repo.SearchDocuments(ctx, docdepot.SearchParams{})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "tie-high", docs[0].FileID)
		assert.Equal(t, "tie-low", docs[1].FileID)
	})
}

func TestEventTrailStorage(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	setup := func(t *testing.T) (*memory.Repository, *docdepot.Document) {
		t.Helper()
		repo := memory.New()
		doc := baseDoc("evented", now)
		_, err := repo.UpsertDocument(ctx, doc)
		require.NoError(t, err)
		return repo, doc
	}

	t.Run("append and list newest first", func(t *testing.T) {
		repo, doc := setup(t)

		for i, ts := range []time.Time{now.Add(1 * time.Second), now.Add(2 * time.Second)} {
			eventType := docdepot.EventTypeUploaded
			if i == 1 {
				eventType = docdepot.EventTypeDownloaded
			}
			err := repo.AppendEvent(ctx, &docdepot.Event{
				ID:             uuid.New(),
				DocumentID:     doc.ID,
				EventType:      eventType,
				EventTimestamp: ts,
			})
			require.NoError(t, err)
		}

		events, err := repo.ListEventsByDocument(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, docdepot.EventTypeDownloaded, events[0].EventType)
		assert.Equal(t, docdepot.EventTypeUploaded, events[1].EventType)
	})

	t.Run("equal timestamps order by ID", func(t *testing.T) {
		repo, doc := setup(t)

		firstID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		secondID := uuid.MustParse("00000000-0000-0000-0000-000000000002")
		for _, id := range []uuid.UUID{firstID, secondID} {
			err := repo.AppendEvent(ctx, &docdepot.Event{
				ID:             id,
				DocumentID:     doc.ID,
				EventType:      docdepot.EventTypeUpdated,
				EventTimestamp: now,
			})
			require.NoError(t, err)
		}

		events, err := repo.ListEventsByDocument(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, secondID, events[0].ID)
		assert.Equal(t, firstID, events[1].ID)
	})

	t.Run("unknown document has an empty trail", func(t *testing.T) {
		repo, _ := setup(t)

		events, err := repo.ListEventsByDocument(ctx, uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("append rejects unknown documents", func(t *testing.T) {
		repo, _ := setup(t)

		err := repo.AppendEvent(ctx, &docdepot.Event{
			ID:             uuid.New(),
			DocumentID:     uuid.New(),
			EventType:      docdepot.EventTypeUploaded,
			EventTimestamp: now,
		})
		assert.ErrorIs(t, err, docdepot.ErrDocumentNotFound)
	})

	t.Run("delete drops the whole trail", func(t *testing.T) {
		repo, doc := setup(t)

		err := repo.AppendEvent(ctx, &docdepot.Event{
			ID:             uuid.New(),
			DocumentID:     doc.ID,
			EventType:      docdepot.EventTypeUploaded,
			EventTimestamp: now,
		})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteEventsByDocument(ctx, doc.ID))

		events, err := repo.ListEventsByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		// Deleting an absent trail is fine.
		assert.NoError(t, repo.DeleteEventsByDocument(ctx, doc.ID))
	})

	t.Run("listed events are copies", func(t *testing.T) {
		repo, doc := setup(t)

		err := repo.AppendEvent(ctx, &docdepot.Event{
			ID:             uuid.New(),
			DocumentID:     doc.ID,
			EventType:      docdepot.EventTypeUploaded,
			EventTimestamp: now,
			EventData:      map[string]interface{}{"file_name": "original.txt"},
		})
		require.NoError(t, err)

		events, err := repo.ListEventsByDocument(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		events[0].EventData["file_name"] = "tampered.txt"

		fresh, err := repo.ListEventsByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "original.txt", fresh[0].EventData["file_name"])
	})
}
