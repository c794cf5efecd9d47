package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint returns the content address of a payload: hex SHA-256 over the
// raw bytes. Two writers with the same bytes always compute the same address.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// TreeID derives a snapshot id from the branch, the ordered entries, and the
// creation time. The timestamp keeps snapshots of identical content at
// different moments distinct, matching commit identity below.
func TreeID(branch string, entries []TreeEntry, createdAt int64) string {
	var b strings.Builder
	b.WriteString("tree:")
	b.WriteString(branch)
	for _, e := range entries {
		b.WriteString("\x00")
		b.WriteString(e.Name)
		b.WriteString(":")
		b.WriteString(e.Fingerprint)
	}
	fmt.Fprintf(&b, "\x00%d", createdAt)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CommitID derives a commit id from the snapshot, the parent, the message,
// the author, and the creation time. Parent is empty for a branch root.
func CommitID(treeID, parentID, message, author string, createdAt int64) string {
	s := fmt.Sprintf("commit:%s:%s:%s:%s:%d", treeID, parentID, message, author, createdAt)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
