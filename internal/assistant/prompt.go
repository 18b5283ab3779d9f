package assistant

import (
	"strings"
	"time"

	"dcc/internal/service"
)

const promptTemplate = `You turn a short note into a to-do item for a busy parent.
Today is {{today}}.

Reply with a single JSON object and nothing else. Use these keys:
  "title": a short imperative title
  "description": extra detail from the note, or omit the key
  "category": exactly one of {{categories}}, or omit the key
  "dueDate": the due date as YYYY-MM-DD resolved against today, or omit the key

Do not invent a due date that the note does not imply.

Note: {{input}}`

// BuildPrompt renders the instruction sent to the model for input.
func BuildPrompt(input string, today time.Time, categories []service.Category) string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	r := strings.NewReplacer(
		"{{today}}", today.Format(service.DateLayout)+" ("+today.Weekday().String()+")",
		"{{categories}}", strings.Join(names, ", "),
		"{{input}}", strings.TrimSpace(input),
	)
	return r.Replace(promptTemplate)
}
