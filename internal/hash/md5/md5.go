// Package md5 computes the attachment digests published by the remote API.
package md5

import (
	"crypto/md5" //nolint:gosec // the remote publishes MD5 digests; this is integrity checking, not security.
	"encoding/base64"
)

// Hasher implements archive.Hasher. Digests are standard base64, matching the
// md5 field of a post.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the base64-encoded MD5 digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data) //nolint:gosec // see import.
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
