package answer

import (
	"strings"
)

// PromptBuilder renders the generation prompt. aux may be empty.
type PromptBuilder func(context, query, aux string) string

// BuildPrompt renders the default grounded-answer prompt.
// The auxiliary section is omitted when aux is blank.
func BuildPrompt(context, query, aux string) string {
	var b strings.Builder
	b.WriteString("You are a medical-domain AI assistant. Use ONLY the retrieved context to answer the user's question.\n")
	b.WriteString("If the answer is not contained in the provided context, be honest and advise consulting a medical professional.\n\n")
	b.WriteString("Retrieved Context:\n--------------------\n")
	b.WriteString(context)
	b.WriteString("\n--------------------\n\n")
	if aux = strings.TrimSpace(aux); aux != "" {
		b.WriteString("Patient Vitals: ")
		b.WriteString(aux)
		b.WriteString("\n\n")
	}
	b.WriteString("User Question: ")
	b.WriteString(query)
	b.WriteString("\n\nGuidelines:\n")
	b.WriteString("- Provide a clear, concise, and factual answer.\n")
	b.WriteString("- Do NOT provide a medical diagnosis.\n")
	b.WriteString("- If symptoms are severe or dangerous, instruct the user to seek immediate medical care.\n")
	b.WriteString("- If applicable, cite the context or list the source URLs used.\n\n")
	b.WriteString("Answer:")
	return strings.TrimSpace(b.String())
}
