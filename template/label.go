package template

import (
	"bytes"
	"fmt"
	"text/template"
)

// Label is a compiled text/template rendering short display strings,
// e.g. "{{.Year}} Q{{.Quarter}}" -> "2022 Q3".
type Label struct {
	tmpl *template.Template
}

// NewLabel parses text once so rendering per row stays cheap.
func NewLabel(name, text string) (*Label, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return &Label{tmpl: tmpl}, nil
}

// Render executes the label against params.
func (l *Label) Render(params any) (string, error) {
	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", l.tmpl.Name(), err)
	}
	return buf.String(), nil
}
