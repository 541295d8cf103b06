// Package idhash computes deterministic identifiers from record keys.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"raydium-swap-ingest/internal/domain"
)

// ComputeBatchToken computes a deterministic token for a set of dedup keys.
// Formula: SHA256 over the sorted "signature|instruction_index" lines.
// The result does not depend on key order or repeats.
// Returns hex-encoded hash (64 characters).
func ComputeBatchToken(keys []domain.DedupKey) string {
	lines := make([]string, 0, len(keys))
	seen := make(map[domain.DedupKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		lines = append(lines, fmt.Sprintf("%s|%d", k.Signature, k.InstructionIndex))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeRecordsToken is ComputeBatchToken over the records' keys.
func ComputeRecordsToken(records []domain.SwapRecord) string {
	keys := make([]domain.DedupKey, len(records))
	for i := range records {
		keys[i] = records[i].Key()
	}
	return ComputeBatchToken(keys)
}
