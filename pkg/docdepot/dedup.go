package docdepot

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dedupCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdepot_dedup_cache_hits_total",
		Help: "Number of digest lookups answered by the in-memory cache.",
	})
	dedupCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docdepot_dedup_cache_misses_total",
		Help: "Number of digest lookups that fell through to the repository.",
	})
)

// dedupIndex answers "which document already holds these bytes" during
// ingestion. A small expiring LRU keeps hot digests out of the repository.
// Cache entries are advisory: every hit is re-confirmed against the
// current record before it is trusted, so stale entries can only cost an
// extra repository read, never a wrong answer.
type dedupIndex struct {
	repo  Repository
	cache *expirable.LRU[string, string] // content digest -> file ID
}

func newDedupIndex(repo Repository, size int, ttl time.Duration) *dedupIndex {
	idx := &dedupIndex{repo: repo}
	if size > 0 {
		idx.cache = expirable.NewLRU[string, string](size, nil, ttl)
	}
	return idx
}

// Lookup returns the document currently holding content with the given
// digest, or nil when the digest is unknown.
func (d *dedupIndex) Lookup(ctx context.Context, digest string) (*Document, error) {
	if d.cache != nil {
		if fileID, ok := d.cache.Get(digest); ok {
			dedupCacheHits.Inc()
			doc, err := d.repo.GetDocument(ctx, fileID)
			switch {
			case err == nil && doc.ContentHash == digest:
				return doc, nil
			case err != nil && !errors.Is(err, ErrDocumentNotFound):
				return nil, err
			}
			// The cached mapping went stale; drop it and fall through.
			d.cache.Remove(digest)
		} else {
			dedupCacheMisses.Inc()
		}
	}

	doc, err := d.repo.GetDocumentByContentHash(ctx, digest)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Remember(digest, doc.FileID)
	return doc, nil
}

// Remember records that fileID currently holds content with digest.
func (d *dedupIndex) Remember(digest, fileID string) {
	if d.cache != nil {
		d.cache.Add(digest, fileID)
	}
}

// Forget drops a digest mapping after a delete or a content change.
func (d *dedupIndex) Forget(digest string) {
	if d.cache != nil {
		d.cache.Remove(digest)
	}
}
