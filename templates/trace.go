package templates

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"nexlayer.io/mcp/tracestore"
)

const traceTemplate = `{{statusIcon .Status}} Deployment trace {{.SessionID}}
Status: {{.Status}}
{{- with .RepoURL}}
Repository: {{.}}{{end}}
{{- with .ApplicationName}}
Application: {{.}}{{end}}
Started: {{formatTime .StartTime}} ({{ago .StartTime}})
Duration: {{duration .TotalDuration}}
{{- with .Metadata.clientType}}
Client: {{.}}{{end}}

Steps ({{len .Steps}}):
{{- range $i, $s := .Steps}}
{{inc $i}}. {{statusIcon $s.Status}} {{$s.Tool}} [{{$s.Status}}{{if $s.Duration}}, {{duration $s.Duration}}{{end}}]
{{- with $s.Message}}
{{indent 4 .}}{{end}}
{{- with $s.Error}}
    Error: {{.}}{{end}}
{{- else}}
(no steps recorded)
{{- end}}
`

const summariesTemplate = `{{if not .}}No deployment traces recorded yet.{{else}}Recent deployments ({{len .}}):
{{- range .}}
{{statusIcon .Status}} {{.SessionID}}{{with .ApplicationName}} {{.}}{{end}} [{{.Status}}] {{.SuccessCount}}/{{.StepCount}} steps ok, started {{ago .StartTime}}
{{- with .RepoURL}}
    repo: {{.}}{{end}}
{{- with .FailedStep}}
    failed at: {{.}}{{end}}
{{- end}}{{end}}
`

const summaryTemplate = `{{statusIcon .Status}} {{.SessionID}}: {{.Status}}
Steps: {{.StepCount}} total, {{.SuccessCount}} succeeded, {{.FailureCount}} failed
{{- with .FailedStep}}
First failure: {{.}}{{end}}
{{- with .ApplicationName}}
Application: {{.}}{{end}}
Duration: {{duration .TotalDuration}}
`

// RenderTrace renders a full trace with its steps
func RenderTrace(trace *tracestore.Trace, now time.Time) (string, error) {
	return render(traceTemplate, trace, now)
}

// RenderSummaries renders a list of trace summaries, newest first as given
func RenderSummaries(summaries []tracestore.Summary, now time.Time) (string, error) {
	return render(summariesTemplate, summaries, now)
}

// RenderSummary renders one trace summary
func RenderSummary(summary *tracestore.Summary, now time.Time) (string, error) {
	return render(summaryTemplate, summary, now)
}

func render(text string, data interface{}, now time.Time) (string, error) {
	tmpl, err := template.New("report").Funcs(funcMap(now)).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
