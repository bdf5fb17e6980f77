package agent

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// PromptTemplate defines the structure of the planner prompt
type PromptTemplate struct {
	SystemPrompt string
	Capabilities []string
	ContextRules []string
}

// DefaultPromptTemplate returns the built-in travel planner prompt.
func DefaultPromptTemplate() PromptTemplate {
	return PromptTemplate{
		SystemPrompt: `You are a smart travel agency. Answer the user's travel question with concrete, well organised options.`,
		Capabilities: []string{
			"flight options with airline, departure and arrival times, stops and price",
			"hotel options with name, rating, location and nightly price",
			"practical notes about the destination when they help the traveller decide",
		},
		ContextRules: []string{
			"Only include information you are confident about; say so when something is uncertain",
			"Always state the currency next to every price",
			"Prefer short sections with headings and bullet lists so the answer reads well in an email",
			"Do not ask the user to confirm sending an email; that step is handled separately",
		},
	}
}

// BuildSystemPrompt renders the template for the given moment.
func (t PromptTemplate) BuildSystemPrompt(now time.Time) string {
	return fmt.Sprintf(`%s

You can help with:
- %s

Rules:
- %s

The current date is %s.`,
		t.SystemPrompt,
		strings.Join(t.Capabilities, "\n- "),
		strings.Join(t.ContextRules, "\n- "),
		now.Format("2006-01-02"),
	)
}

var emailBodyTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #2c3e50;">
<h2>{{.Subject}}</h2>
<div style="white-space: pre-wrap; border-left: 4px solid #3498db; padding-left: 1em;">{{.Body}}</div>
<p style="color: #666; font-size: 0.9em;">Sent by AI Travel Agent</p>
</body>
</html>
`))

// renderEmailBody turns the agent's answer into an HTML email body.
func renderEmailBody(subject, body string) (string, error) {
	var buf bytes.Buffer
	err := emailBodyTemplate.Execute(&buf, struct {
		Subject string
		Body    string
	}{Subject: subject, Body: body})
	if err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}
