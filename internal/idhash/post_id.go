package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputePostID computes a deterministic post_id using SHA256.
// Formula: SHA256(model|ticker|created_at|seq|title|body)
// seq is the post's position in its request, so identical posts sent
// together stay distinct.
// Returns hex-encoded hash (64 characters).
func ComputePostID(model, ticker string, createdAt time.Time, seq int, title, body string) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		model,
		ticker,
		createdAt.UTC().Format(time.RFC3339Nano),
		seq,
		title,
		body,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
