package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeRowID computes a deterministic evaluation row_id using SHA256.
// Formula: SHA256(run_id|model|date|ticker)
// Returns hex-encoded hash (64 characters).
func ComputeRowID(runID, model string, date time.Time, ticker string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		runID,
		model,
		date.Format("2006-01-02"),
		ticker,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
