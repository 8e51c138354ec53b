package usecase

import (
	"fmt"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
)

func buildArbitrationPrompt(question string, domains []domain.DomainConfig) string {
	var names strings.Builder
	for i, d := range domains {
		if i > 0 {
			names.WriteString(", ")
		}
		names.WriteString(d.Name)
		if d.Label != "" {
			names.WriteString(" (" + d.Label + ")")
		}
	}

	return fmt.Sprintf(`You decide whether a question belongs to one of these consultation topics: %s.
Return strict JSON object with keys:
relevant (boolean), domains (array of topic names from the list above).
No markdown, no extra keys.

Question:
%s`, names.String(), question)
}

func buildDecompositionPrompt(question string, domains []string, history []domain.DialogueTurn) string {
	var historyBuilder strings.Builder
	for _, turn := range history {
		historyBuilder.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}
	historySection := ""
	if historyBuilder.Len() > 0 {
		historySection = "Recent dialogue (resolve pronouns and references against it):\n" + historyBuilder.String() + "\n"
	}

	return fmt.Sprintf(`The question below spans several consultation topics: %s.
Split it into one focused sub-question per topic. Keep each sub-question self-contained.
Return strict JSON object with key:
sub_queries (array of objects with keys domain and question).
No markdown, no extra keys.

%sQuestion:
%s`, strings.Join(domains, ", "), historySection, question)
}

func buildRewritePrompt(question string) string {
	return fmt.Sprintf(`Rewrite the question as a concise search query for a document collection.
Keep all specific terms, drop filler words. Reply with the query only.

Question:
%s`, question)
}

func buildVariantsPrompt(question string, count int) string {
	return fmt.Sprintf(`Produce %d alternative phrasings of the question for document search.
Use different vocabulary in each. Return strict JSON object with key:
variants (array of strings).
No markdown, no extra keys.

Question:
%s`, count, question)
}

func buildAnswerPrompt(question string, docs []domain.ScoredDocument, profile *domain.CallerProfile) string {
	var contextBuilder strings.Builder
	for idx, doc := range docs {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] title=%s origin=%s score=%.3f\n%s\n\n",
			idx+1,
			doc.Title,
			doc.Origin,
			doc.Score,
			doc.Text,
		))
	}

	profileSection := ""
	if profile != nil && (profile.Region != "" || profile.Persona != "") {
		profileSection = fmt.Sprintf("The caller is %s based in %s. Tailor examples to them.\n\n",
			orUnspecified(profile.Persona), orUnspecified(profile.Region))
	}

	return fmt.Sprintf(`Answer the consultation question only from the context below.
Cite passages as [n]. If the context is insufficient, say so directly.

%sQuestion:
%s

Context:
%s`, profileSection, question, contextBuilder.String())
}

func buildAnswerEvalPrompt(question, answer string) string {
	return fmt.Sprintf(`Rate the answer to the question on a scale from 0 to 1 for completeness and groundedness.
Return strict JSON object with keys:
score (number from 0 to 1), feedback (string).
No markdown, no extra keys.

Question:
%s

Answer:
%s`, question, answer)
}

func orUnspecified(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unspecified"
	}
	return v
}

// extractJSONObject trims model chatter around a JSON object.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
