package usecase

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
)

const contentKeyPrefixLen = 120

type fusedCandidate struct {
	doc   domain.ScoredDocument
	score float64
}

// fuseRRF combines the lexical and vector rankings with reciprocal rank
// fusion: score(doc) = sum over lists of 1/(k+rank+1). Near-identical chunks
// are deduplicated by content-prefix hash. Fused scores are max-normalized
// to [0,1] so downstream thresholds see a common scale. Output order is
// deterministic for fixed inputs.
func fuseRRF(lexical, vector []domain.ScoredDocument, rrfK int) []domain.ScoredDocument {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]fusedCandidate, len(lexical)+len(vector))
	addList := func(docs []domain.ScoredDocument) {
		for rank, doc := range docs {
			key := contentKey(doc)
			candidate, seen := acc[key]
			if !seen || candidate.doc.Text == "" {
				candidate.doc = doc
			}
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	addList(lexical)
	addList(vector)

	out := make([]domain.ScoredDocument, 0, len(acc))
	for _, c := range acc {
		doc := c.doc
		doc.Score = c.score
		out = append(out, doc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})

	if len(out) > 0 && out[0].Score > 0 {
		max := out[0].Score
		for i := range out {
			out[i].Score /= max
		}
	}
	return out
}

// contentKey hashes a normalized text prefix so duplicated chunks retrieved
// through different channels collapse to one candidate.
func contentKey(doc domain.ScoredDocument) string {
	text := strings.Join(strings.Fields(strings.ToLower(doc.Text)), " ")
	if len(text) > contentKeyPrefixLen {
		text = text[:contentKeyPrefixLen]
	}
	if text == "" {
		return "id:" + doc.ID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%016x", h.Sum64())
}

func trimDocuments(docs []domain.ScoredDocument, limit int) []domain.ScoredDocument {
	if limit <= 0 || len(docs) <= limit {
		return docs
	}
	return docs[:limit]
}
