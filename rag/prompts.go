package rag

import (
	"fmt"

	"github.com/lkirch/sciencesage/rag/types"
)

const (
	// FallbackAnswer is returned whenever no grounded answer can be produced.
	FallbackAnswer = "I don't know based on the available information."

	// NoContextText replaces the context block when retrieval found nothing usable.
	NoContextText = "No additional context found in the database."
)

var levelDetail = map[types.Level]string{
	types.LevelSimplified: "Explain in simple language with analogies and no jargon.",
	types.LevelTechnical:  "Use technical terms and provide detailed explanations suitable for undergraduates.",
	types.LevelAdvanced:   "Give in-depth, technical, and nuanced explanations suitable for graduate students or professionals.",
}

// SystemPrompt sets the persona, audience and grounding rules for an answer.
func SystemPrompt(topic string, level types.Level) string {
	return fmt.Sprintf(
		"You are ScienceSage, an expert on explaining %s at a %s level. %s "+
			"You must ONLY use the provided context to answer. "+
			"If the context does not contain the answer, respond with exactly: %q "+
			"Do not add outside knowledge and never make up information. "+
			"When you use a part of the context, cite it inline with the bracketed reference number shown before it, for example [1].",
		topic, level.DisplayName(), levelDetail[level], FallbackAnswer)
}

// UserPrompt embeds the question and the assembled context block.
func UserPrompt(query, contextBlock string, level types.Level) string {
	return fmt.Sprintf(`Question: %s

Retrieved Context (use this only, with citations):
%s

Instructions for Answer:
- Base your answer ONLY on the retrieved context above.
- Cite the context you use inline with its reference number, like [1] or [2].
- Do not add extra information not in the context.
- If the context does not contain the answer, say: %q
- Write clearly, concisely, and at the requested %s level.
`, query, contextBlock, FallbackAnswer, level.DisplayName())
}

// RephrasePrompt asks for a clearer version of a question.
func RephrasePrompt(query string) string {
	return fmt.Sprintf("Rephrase the following question for clarity. Reply with the rephrased question only.\n\n%s", query)
}
