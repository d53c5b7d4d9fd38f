// Package prompt loads and renders the judgement prompt template used by the
// generative backend.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	placeholderText1 = "{text1}"
	placeholderText2 = "{text2}"

	defaultTemperature = 0.2
	defaultMaxTokens   = 64
)

//go:embed default_similarity.yaml
var defaultTemplateYAML []byte

// TemplateError reports an unreadable or structurally invalid template.
// It is raised at load time, before any remote call is attempted.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("prompt template: %v", e.Err)
	}
	return fmt.Sprintf("prompt template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Parameters are the generation settings the template asks for.
type Parameters struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Template is a validated judgement prompt. The user text must contain both
// text placeholders; that is checked once at load, not per render.
type Template struct {
	Version  string `yaml:"version"`
	Metadata struct {
		Author      string `yaml:"author"`
		Description string `yaml:"description"`
	} `yaml:"metadata"`
	Prompts struct {
		System string `yaml:"system"`
		User   string `yaml:"user"`
	} `yaml:"prompts"`
	Parameters Parameters `yaml:"parameters"`
}

// Default returns the embedded template.
func Default() *Template {
	tpl, err := parse(defaultTemplateYAML, "")
	if err != nil {
		// The embedded template is validated by tests; reaching this
		// means the binary itself is broken.
		panic(err)
	}
	return tpl
}

// Load reads and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Path: path, Err: err}
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, &TemplateError{Path: path, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	if err := tpl.validate(); err != nil {
		return nil, &TemplateError{Path: path, Err: err}
	}

	if tpl.Parameters.Temperature == 0 {
		tpl.Parameters.Temperature = defaultTemperature
	}
	if tpl.Parameters.MaxTokens == 0 {
		tpl.Parameters.MaxTokens = defaultMaxTokens
	}

	return &tpl, nil
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Prompts.User) == "" {
		return fmt.Errorf("user prompt is required")
	}
	for _, placeholder := range []string{placeholderText1, placeholderText2} {
		if !strings.Contains(t.Prompts.User, placeholder) {
			return fmt.Errorf("user prompt is missing the %s placeholder", placeholder)
		}
	}
	return nil
}

// Render substitutes both text values into the user prompt.
func (t *Template) Render(text1, text2 string) string {
	out := strings.ReplaceAll(t.Prompts.User, placeholderText1, text1)
	return strings.ReplaceAll(out, placeholderText2, text2)
}
