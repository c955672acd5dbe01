package docdepot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeDigest drains r and returns the lowercase hex SHA-256 of its
// bytes along with the byte count.
func ComputeDigest(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// spool drains a caller's reader into a temporary file while hashing it,
// so the content digest is known before any bytes reach a storage backend
// and the content can still be replayed for the actual upload.
type spool struct {
	file   *os.File
	digest string
	size   int64
}

func newSpool(r io.Reader) (*spool, error) {
	f, err := os.CreateTemp("", "docdepot-ingest-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(h, f), r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("spool content: %w", err)
	}
	return &spool{
		file:   f,
		digest: hex.EncodeToString(h.Sum(nil)),
		size:   n,
	}, nil
}

// Reader rewinds the spooled content for replay.
func (s *spool) Reader() (io.Reader, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}
	return s.file, nil
}

func (s *spool) Digest() string { return s.digest }

func (s *spool) Size() int64 { return s.size }

// Cleanup closes and removes the temporary file.
func (s *spool) Cleanup() {
	s.file.Close()
	os.Remove(s.file.Name())
}
