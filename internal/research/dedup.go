package research

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
)

// ContentHash is the hex sha256 of text lowercased with whitespace collapsed.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ExcerptCandidate is new text for an already known evidence item.
type ExcerptCandidate struct {
	SourceID uuid.UUID
	Snippet  Snippet
	Hash     string
}

// Partition splits snippets into brand-new evidence (unknown or missing URL)
// and excerpt candidates for URLs the job already has. Candidates repeating
// a (source, hash) pair within the batch are dropped here; the store's unique
// constraint handles pairs persisted earlier.
func Partition(snippets []Snippet, existing []db.Source) (fresh []Snippet, excerpts []ExcerptCandidate) {
	byURL := make(map[string]uuid.UUID, len(existing))
	for _, s := range existing {
		if s.URL != "" {
			byURL[s.URL] = s.ID
		}
	}
	seen := make(map[string]bool)
	for _, sn := range snippets {
		if sn.Text == "" {
			continue
		}
		sourceID, known := byURL[sn.URL]
		if sn.URL == "" || !known {
			fresh = append(fresh, sn)
			continue
		}
		hash := ContentHash(sn.Text)
		key := sourceID.String() + ":" + hash
		if seen[key] {
			continue
		}
		seen[key] = true
		excerpts = append(excerpts, ExcerptCandidate{SourceID: sourceID, Snippet: sn, Hash: hash})
	}
	return fresh, excerpts
}
