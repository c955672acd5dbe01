// Package storagekey generates blob storage keys for documents.
package storagekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Generator generates storage keys for document blobs.
type Generator interface {
	// GenerateKey returns the storage key for a document's blob given its
	// source type, file ID and original file name.
	GenerateKey(sourceType, fileID, fileName string) string
}

// ShardedGenerator generates keys of the form
// <source-type>/<shard>/<id-digest>_<sanitized-name>, where the shard is
// the first ShardLength hex characters of the file ID's digest. Sharding
// keeps directory fan-out bounded on filesystem backends; deriving the
// rest of the key from the file ID makes keys deterministic, so
// re-ingesting the same document overwrites its blob in place.
type ShardedGenerator struct {
	ShardLength int
}

// NewShardedGenerator creates a generator with a shard length of 2.
func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

// GenerateKey implements Generator.
func (g *ShardedGenerator) GenerateKey(sourceType, fileID, fileName string) string {
	sum := sha256.Sum256([]byte(fileID))
	digest := hex.EncodeToString(sum[:])

	shardLen := g.ShardLength
	if shardLen <= 0 || shardLen > 8 {
		shardLen = 2
	}
	shard := digest[:shardLen]

	name := digest[shardLen:16]
	if fileName != "" {
		name = name + "_" + sanitizeFilename(fileName)
	}
	return fmt.Sprintf("%s/%s/%s", sanitizePathComponent(sourceType), shard, name)
}

// FuncGenerator adapts a plain function to the Generator interface.
type FuncGenerator struct {
	GenerateFunc func(sourceType, fileID, fileName string) string
}

// GenerateKey implements Generator.
func (g *FuncGenerator) GenerateKey(sourceType, fileID, fileName string) string {
	return g.GenerateFunc(sourceType, fileID, fileName)
}

// sanitizeFilename makes a file name safe for use in a storage key.
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		" ", "_",
		"\t", "_",
		"\n", "_",
		"\r", "_",
		"\x00", "_",
	)
	sanitized := replacer.Replace(filename)
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}

// sanitizePathComponent makes a single path segment safe.
func sanitizePathComponent(component string) string {
	if component == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		"..", "-",
		" ", "-",
		"\x00", "-",
	)
	return replacer.Replace(component)
}
