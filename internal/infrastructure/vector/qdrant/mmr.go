package qdrant

import "math"

// selectMMR performs maximal-marginal-relevance selection over fetched hits:
// each round picks the candidate maximizing
// lambda*sim(query,doc) - (1-lambda)*max(sim(doc,selected)).
func selectMMR(queryVector []float32, hits []searchHit, limit int, lambda float64) []searchHit {
	if limit <= 0 || len(hits) == 0 {
		return nil
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	if limit > len(hits) {
		limit = len(hits)
	}

	remaining := make([]searchHit, len(hits))
	copy(remaining, hits)
	selected := make([]searchHit, 0, limit)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			relevance := cosine(queryVector, cand.Vector)
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosine(cand.Vector, sel.Vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*relevance - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
