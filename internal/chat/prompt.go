package chat

import (
	"fmt"
	"strings"

	"github.com/dharsanguruparan/Quill/internal/model"
)

const promptTemplate = `Use the following pieces of context (or previous conversation if needed) to answer the user's question in markdown format. If you don't know the answer, just say that you don't know, don't make anything up.

----------------

PREVIOUS CONVERSATION:
%s

----------------

CONTEXT:
%s

USER INPUT: %s

Answer:`

// RenderPrompt builds the generation input. The section order is fixed:
// instructions, previous conversation, retrieved context, then the question.
func RenderPrompt(history []model.Message, matches []model.Match, question string) string {
	lines := make([]string, len(history))
	for i, m := range history {
		if m.IsUserMessage {
			lines[i] = "User: " + m.Text
		} else {
			lines[i] = "Assistant: " + m.Text
		}
	}
	chunks := make([]string, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(lines, "\n"), strings.Join(chunks, "\n\n"), question)
}
