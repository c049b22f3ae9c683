package debrief

import (
	"strings"
	"text/template"

	"github.com/trezcool/kiongozi/core/simulation"
)

const systemPrompt = `You are an executive coach reviewing a business-case simulation played by a learner.
Answer with a single JSON object and nothing else:
{"summary": string, "strengths": [string], "improvements": [string], "rating": integer from 1 to 5}`

var userPromptTmpl = template.Must(template.New("debrief").Parse(`Case: {{.Case.Title}}

Brief:
{{.Case.Brief}}

Decisions:
{{range .Decisions}}- {{.Prompt}}
  Chosen: {{.Option}}
{{- if .Rationale}}
  Rationale: {{.Rationale}}
{{- end}}
{{end}}
Outcome:
{{range .Metrics}}- {{.Label}}: {{.Initial}} -> {{.Final}}
{{end}}
Score: {{.Score}}/100
`))

type promptDecision struct {
	Prompt    string
	Option    string
	Rationale string
}

type promptMetric struct {
	Label   string
	Initial int
	Final   int
}

// BuildPrompt describes a completed attempt for the model.
func BuildPrompt(c simulation.Case, a simulation.Attempt) (Prompt, error) {
	data := struct {
		Case      simulation.Case
		Decisions []promptDecision
		Metrics   []promptMetric
		Score     int
	}{Case: c, Score: a.Score}

	prompts := make(map[string]string, len(c.Decisions))
	for _, d := range c.Decisions {
		prompts[d.Key] = d.Prompt
	}
	for _, ch := range a.Choices {
		label := ch.OptionKey
		if opt := c.Option(ch.DecisionKey, ch.OptionKey); opt != nil {
			label = opt.Label
		}
		data.Decisions = append(data.Decisions, promptDecision{
			Prompt:    prompts[ch.DecisionKey],
			Option:    label,
			Rationale: ch.Rationale,
		})
	}
	for _, m := range c.Metrics {
		data.Metrics = append(data.Metrics, promptMetric{Label: m.Label, Initial: m.Initial, Final: a.Metrics[m.Key]})
	}

	var sb strings.Builder
	if err := userPromptTmpl.Execute(&sb, data); err != nil {
		return Prompt{}, err
	}
	return Prompt{System: systemPrompt, User: sb.String()}, nil
}
