package docdepot_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

func TestComputeDigest(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		digest string
		size   int64
	}{
		{
			name:   "known vector",
			input:  "abc",
			digest: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			size:   3,
		},
		{
			name:   "empty input",
			input:  "",
			digest: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			size:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest, size, err := docdepot.ComputeDigest(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.digest, digest)
			assert.Equal(t, tt.size, size)
		})
	}
}

func TestComputeDigestIsStable(t *testing.T) {
	content := "the digest of this sentence never changes"

	first, _, err := docdepot.ComputeDigest(strings.NewReader(content))
	require.NoError(t, err)
	second, _, err := docdepot.ComputeDigest(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToLower(first), first)
}
