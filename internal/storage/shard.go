// Package storage holds the key layout shared by every blob store backend.
// Objects are spread over nested two-character directories taken from the
// start of the key, so no single directory grows without bound.
package storage

import "strings"

const (
	shardWidth = 2
	shardDepth = 4
)

// ShardPath returns up to four two-character segments taken from the first
// eight characters of key. The last segment may be shorter.
func ShardPath(key string) []string {
	segments := make([]string, 0, shardDepth)
	for len(key) > 0 && len(segments) < shardDepth {
		n := min(shardWidth, len(key))
		segments = append(segments, key[:n])
		key = key[n:]
	}
	return segments
}

// ObjectName returns the slash-separated location of key inside namespace.
func ObjectName(namespace, key string) string {
	parts := make([]string, 0, shardDepth+2)
	if namespace != "" {
		parts = append(parts, namespace)
	}
	parts = append(parts, ShardPath(key)...)
	parts = append(parts, key)
	return strings.Join(parts, "/")
}
