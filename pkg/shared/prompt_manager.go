package shared

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/antibyte/espresso/pkg/configuration"
)

const (
	defaultInputPrompt = "Enter an integer number for variable {{.Name}}: "
	defaultRetryPrompt = "Please enter a valid integer number: "
)

// PromptManager renders the texts shown when a program asks for input.
// Both are text/template strings taken from the [Console] section.
type PromptManager struct {
	inputTemplate *template.Template
	retryTemplate *template.Template
}

// TemplateData holds the fields available in prompt templates.
type TemplateData struct {
	Name  string
	Input string
}

// NewPromptManager parses the configured prompt templates.
func NewPromptManager() (*PromptManager, error) {
	return NewPromptManagerFrom(
		configuration.GetString("Console", "input_prompt", defaultInputPrompt),
		configuration.GetString("Console", "retry_prompt", defaultRetryPrompt),
	)
}

// NewPromptManagerFrom parses the given templates.
func NewPromptManagerFrom(input, retry string) (*PromptManager, error) {
	pm := &PromptManager{}
	var err error
	pm.inputTemplate, err = template.New("input_prompt").Parse(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse input prompt template: %w", err)
	}
	pm.retryTemplate, err = template.New("retry_prompt").Parse(retry)
	if err != nil {
		return nil, fmt.Errorf("failed to parse retry prompt template: %w", err)
	}
	return pm, nil
}

// InputPrompt returns the prompt asking for variable name.
func (pm *PromptManager) InputPrompt(name rune) (string, error) {
	return render(pm.inputTemplate, TemplateData{Name: string(name)})
}

// RetryPrompt returns the prompt shown after input that is not an integer.
func (pm *PromptManager) RetryPrompt(name rune, input string) (string, error) {
	return render(pm.retryTemplate, TemplateData{Name: string(name), Input: input})
}

func render(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}
