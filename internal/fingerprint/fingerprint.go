// Package fingerprint derives deterministic cache keys from the
// discriminating inputs of a job. Two submissions that are semantically
// identical must always produce the same key, regardless of how the
// caller ordered or spaced the discriminator fields.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/lexfold/alchemy-api/internal/domain"
)

// Discriminators is the minimal set of inputs that determine a job's
// output, e.g. source identifier, language pair, template ID.
type Discriminators map[string]string

// Derive computes the cache key for a processor kind and its
// discriminators. Keys are normalized (lower-cased, trimmed) and sorted
// before hashing; values are trimmed but remain case-sensitive since, for
// example, a source URI's case is significant.
func Derive(kind domain.ProcessorKind, disc Discriminators) string {
	keys := make([]string, 0, len(disc))
	normalized := make(map[string]string, len(disc))
	for k, v := range disc {
		nk := strings.ToLower(strings.TrimSpace(k))
		normalized[nk] = strings.TrimSpace(v)
		keys = append(keys, nk)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(string(kind)))
	h.Write([]byte{0})
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0x1f})
		h.Write([]byte(normalized[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
