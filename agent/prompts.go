package agent

import (
	"fmt"
	"strings"

	"github.com/poiesic/colloquy/core"
)

const condensePrompt = `Given the conversation below and a follow-up question, rewrite the follow-up question as a standalone question that can be understood without the conversation.
Do NOT answer the question. Only rewrite it if needed; otherwise return it unchanged.
Reply with the standalone question only.`

const answerPrompt = `You are an assistant for question-answering tasks.
Use only the following pieces of retrieved context to answer the question.
If the context does not contain the answer, say that you don't know; do not make anything up.
Use three sentences maximum and keep the answer concise.

Context:
%s`

const tabularPrompt = `You have access to the dataset %q with %d rows and these columns: %s.
You can only work with it through the %s tool. Always call the tool with an expression that computes what the user asks for.
Base your answer on the tool result. If the result is an error, explain the problem to the user in plain terms.`

// DocumentAnnouncement is appended to a session's history when a document
// becomes searchable.
func DocumentAnnouncement(filename string) string {
	return fmt.Sprintf(`You now have knowledge of the PDF document named '%s' (texts, articles and similar).
Answer questions about the content of this file.
If you don't know the answer, be honest and suggest ways to find the information.
If there is more than one file, use the filename to refer to the content being consulted.`, filename)
}

// DatasetAnnouncement is appended to a session's history when a dataset is
// attached.
func DatasetAnnouncement(ds *core.Dataset) string {
	return fmt.Sprintf(`You now have knowledge of the CSV file named '%s' (%d rows; columns: %s).
Answer questions about the content of this file using only the dataset tool.
If you don't know the answer, be honest and suggest ways to find the information.
If there is more than one file, use the filename to refer to the content being consulted.`,
		ds.Name, len(ds.Rows), strings.Join(ds.Columns, ", "))
}

// condenseInput renders the prior conversation and the new question for the
// condensation request.
func condenseInput(history []core.Message, question string) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, msg := range history {
		switch {
		case msg.Role == core.RoleHuman:
			fmt.Fprintf(&b, "User: %s\n", msg.Content)
		case msg.Role == core.RoleAssistant && msg.Content != "":
			fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
		}
	}
	fmt.Fprintf(&b, "\nFollow-up question: %s\nStandalone question:", question)
	return b.String()
}

// contextBlock concatenates retrieved chunks, labelled with their source,
// without exceeding maxChars.
func contextBlock(results []*core.SearchResult, maxChars int) string {
	var b strings.Builder
	for _, r := range results {
		label := r.Chunk.Source()
		if page := r.Chunk.Metadata[core.MetadataPage]; page != "" {
			label += ", page " + page
		}
		entry := fmt.Sprintf("[%s]\n%s\n\n", label, strings.TrimSpace(r.Chunk.Content))
		if b.Len()+len(entry) > maxChars {
			if b.Len() == 0 {
				b.WriteString(truncate(entry, maxChars))
			}
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// cleanStandalone strips labels and quotes models tend to wrap rewrites in.
func cleanStandalone(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Standalone question:", "standalone question:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Trim(s, "\"'")
}
