package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(corpus|start|end|sorted tickers|models|min_posts|price_source)
// Tickers are sorted; model order is kept since it fixes the result columns.
// Returns hex-encoded hash (64 characters).
func ComputeRunID(
	corpus string,
	start, end time.Time,
	tickers []string,
	models []string,
	minPosts int,
	priceSource string,
) string {
	sortedTickers := append([]string(nil), tickers...)
	sort.Strings(sortedTickers)

	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		corpus,
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
		strings.Join(sortedTickers, ","),
		strings.Join(models, ","),
		minPosts,
		priceSource,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
