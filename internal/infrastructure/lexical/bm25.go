package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Parameters tunes the BM25 ranking function.
type Parameters struct {
	K1 float64
	B  float64
}

func DefaultParameters() Parameters {
	return Parameters{K1: 1.5, B: 0.75}
}

// Document is one indexed passage.
type Document struct {
	ID     string
	Title  string
	Origin string
	Text   string
}

// ScoredID pairs a document index entry with its BM25 score.
type ScoredID struct {
	ID    string
	Score float64
}

// Index is an in-memory BM25 index over one document collection. It is built
// once and read-only afterwards.
type Index struct {
	params    Parameters
	docs      []Document
	avgDocLen float64
	docFreq   map[string]int
	termFreq  []map[string]int
	docLens   []int
}

// NewIndex builds the BM25 statistics for the given documents.
func NewIndex(docs []Document, params Parameters) *Index {
	idx := &Index{
		params:   params,
		docs:     docs,
		docFreq:  make(map[string]int),
		termFreq: make([]map[string]int, len(docs)),
		docLens:  make([]int, len(docs)),
	}

	totalLen := 0
	for i, doc := range docs {
		terms := Tokenize(doc.Title + " " + doc.Text)
		idx.docLens[i] = len(terms)
		totalLen += len(terms)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		idx.termFreq[i] = tf
		for term := range tf {
			idx.docFreq[term]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search scores every document against the query and returns the top limit
// documents with normalized scores in [0,1].
func (idx *Index) Search(query string, limit int) []Document {
	scored := idx.score(query)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	byID := make(map[string]int, len(idx.docs))
	for i, doc := range idx.docs {
		byID[doc.ID] = i
	}

	out := make([]Document, 0, limit)
	for _, s := range scored {
		if s.Score <= 0 {
			break
		}
		out = append(out, idx.docs[byID[s.ID]])
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Scores returns normalized BM25 scores for the whole collection.
func (idx *Index) Scores(query string) []ScoredID {
	return idx.score(query)
}

func (idx *Index) score(query string) []ScoredID {
	queryTerms := Tokenize(query)
	results := make([]ScoredID, len(idx.docs))

	maxScore := 0.0
	for i := range idx.docs {
		score := 0.0
		docLen := float64(idx.docLens[i])

		for _, term := range queryTerms {
			tf, ok := idx.termFreq[i][term]
			if !ok {
				continue
			}
			df := float64(idx.docFreq[term])
			n := float64(len(idx.docs))
			idf := math.Log(1.0 + (n-df+0.5)/(df+0.5))

			numerator := float64(tf) * (idx.params.K1 + 1.0)
			denominator := float64(tf) + idx.params.K1*(1.0-idx.params.B+idx.params.B*(docLen/idx.avgDocLen))
			score += idf * (numerator / denominator)
		}

		results[i] = ScoredID{ID: idx.docs[i].ID, Score: score}
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range results {
			results[i].Score /= maxScore
		}
	}
	return results
}

// Tokenize lowercases the text and splits it into alphanumeric runs,
// dropping runs shorter than two characters.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() >= 2 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
